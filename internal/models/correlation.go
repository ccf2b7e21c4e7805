package models

import (
	"errors"
	"math"
	"strings"
	"time"
)

// CorrelationType is the category of a correlation record.
type CorrelationType string

const (
	CorrelationFoodSymptom       CorrelationType = "food-symptom"
	CorrelationTriggerSymptom    CorrelationType = "trigger-symptom"
	CorrelationMedicationSymptom CorrelationType = "medication-symptom"
	CorrelationFoodFlare         CorrelationType = "food-flare"
	CorrelationTriggerFlare      CorrelationType = "trigger-flare"
)

// CorrelationTypes lists every correlation type in legend order.
var CorrelationTypes = []CorrelationType{
	CorrelationFoodSymptom,
	CorrelationTriggerSymptom,
	CorrelationMedicationSymptom,
	CorrelationFoodFlare,
	CorrelationTriggerFlare,
}

// Valid reports whether t is one of the known correlation types.
func (t CorrelationType) Valid() bool {
	switch t {
	case CorrelationFoodSymptom, CorrelationTriggerSymptom, CorrelationMedicationSymptom,
		CorrelationFoodFlare, CorrelationTriggerFlare:
		return true
	}
	return false
}

// Confidence reflects how much data backs a correlation.
type Confidence string

const (
	ConfidenceLow    Confidence = "low"
	ConfidenceMedium Confidence = "medium"
	ConfidenceHigh   Confidence = "high"
)

// Valid reports whether c is a known confidence level.
func (c Confidence) Valid() bool {
	return c == ConfidenceLow || c == ConfidenceMedium || c == ConfidenceHigh
}

// CorrelationRecord is a precomputed summary statistic between two item kinds
// (e.g. "Dairy" and "Headache"). Records are produced by the recalculation job
// and are read-only to the detector.
type CorrelationRecord struct {
	Type        CorrelationType `json:"type"`
	ItemAName   string          `json:"item_a_name"`
	ItemBName   string          `json:"item_b_name"`
	Coefficient float64         `json:"coefficient"`
	LagHours    float64         `json:"lag_hours"`
	SampleSize  int             `json:"sample_size"`
	Confidence  Confidence      `json:"confidence,omitempty"` // empty means derive from SampleSize
	RangeStart  time.Time       `json:"range_start"`
	RangeEnd    time.Time       `json:"range_end"`
	ComputedAt  time.Time       `json:"computed_at"`
}

// Validate checks that all record fields are valid
func (r *CorrelationRecord) Validate() error {
	if !r.Type.Valid() {
		return errors.New("correlation type must be one of: food-symptom, trigger-symptom, medication-symptom, food-flare, trigger-flare")
	}
	if strings.TrimSpace(r.ItemAName) == "" {
		return errors.New("item A name must not be empty")
	}
	if strings.TrimSpace(r.ItemBName) == "" {
		return errors.New("item B name must not be empty")
	}
	if math.IsNaN(r.Coefficient) || r.Coefficient < -1.0 || r.Coefficient > 1.0 {
		return errors.New("coefficient must be between -1.0 and 1.0")
	}
	if math.IsNaN(r.LagHours) || r.LagHours < 0 {
		return errors.New("lag hours must not be negative")
	}
	if r.SampleSize < 0 {
		return errors.New("sample size must not be negative")
	}
	if r.Confidence != "" && !r.Confidence.Valid() {
		return errors.New("confidence must be one of: low, medium, high")
	}
	if !r.RangeEnd.IsZero() && r.RangeEnd.Before(r.RangeStart) {
		return errors.New("range end must be >= range start")
	}
	return nil
}
