package detector

import "github.com/rewired-gh/flareline/internal/models"

// Rule says which events can play cause and effect for a correlation type.
type Rule struct {
	Cause   models.EventType
	Effects []models.EventType
	// EffectByName is false for flare effects: flare markers carry no item
	// names, so any flare of an eligible type matches.
	EffectByName bool
}

// RuleFor returns the matching rule for t. Adding a correlation type means
// adding a case here; unknown types report ok == false.
func RuleFor(t models.CorrelationType) (Rule, bool) {
	switch t {
	case models.CorrelationFoodSymptom:
		return Rule{Cause: models.EventFood, Effects: []models.EventType{models.EventSymptom}, EffectByName: true}, true
	case models.CorrelationTriggerSymptom:
		return Rule{Cause: models.EventTrigger, Effects: []models.EventType{models.EventSymptom}, EffectByName: true}, true
	case models.CorrelationMedicationSymptom:
		return Rule{Cause: models.EventMedication, Effects: []models.EventType{models.EventSymptom}, EffectByName: true}, true
	case models.CorrelationFoodFlare:
		return Rule{Cause: models.EventFood, Effects: []models.EventType{models.EventFlareCreated, models.EventFlareUpdated}}, true
	case models.CorrelationTriggerFlare:
		return Rule{Cause: models.EventTrigger, Effects: []models.EventType{models.EventFlareCreated, models.EventFlareUpdated}}, true
	}
	return Rule{}, false
}

// IsCause reports whether e can be the cause side for item itemA.
func (r Rule) IsCause(e *models.TimelineEvent, itemA string) bool {
	return e.Type == r.Cause && e.HasItem(itemA)
}

// IsEffectType reports whether e has one of the rule's effect types.
func (r Rule) IsEffectType(e *models.TimelineEvent) bool {
	for _, t := range r.Effects {
		if e.Type == t {
			return true
		}
	}
	return false
}

// IsEffect reports whether e can be the effect side for item itemB.
func (r Rule) IsEffect(e *models.TimelineEvent, itemB string) bool {
	if !r.IsEffectType(e) {
		return false
	}
	return !r.EffectByName || e.HasItem(itemB)
}
