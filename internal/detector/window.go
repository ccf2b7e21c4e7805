package detector

import (
	"math"
	"time"
)

// WindowPolicy turns a record's declared lag into the matching window
// [cause, cause+maxLag]. The same policy applies to every record in a run.
type WindowPolicy struct {
	LagMultiplier float64       // window = lagHours × LagMultiplier
	MinWindow     time.Duration // floor, also used when lagHours is unusable
	MaxWindow     time.Duration // cap
}

// DefaultPolicy returns lag × 2 clamped to [4h, 48h].
func DefaultPolicy() WindowPolicy {
	return WindowPolicy{
		LagMultiplier: 2,
		MinWindow:     4 * time.Hour,
		MaxWindow:     48 * time.Hour,
	}
}

// normalized fills unusable fields from the default policy.
func (p WindowPolicy) normalized() WindowPolicy {
	def := DefaultPolicy()
	if p.LagMultiplier <= 0 || math.IsNaN(p.LagMultiplier) || math.IsInf(p.LagMultiplier, 0) {
		p.LagMultiplier = def.LagMultiplier
	}
	if p.MinWindow <= 0 {
		p.MinWindow = def.MinWindow
	}
	if p.MaxWindow <= 0 {
		p.MaxWindow = def.MaxWindow
	}
	if p.MaxWindow < p.MinWindow {
		p.MaxWindow = p.MinWindow
	}
	return p
}

// MaxLag returns the largest accepted cause→effect gap for lagHours.
func (p WindowPolicy) MaxLag(lagHours float64) time.Duration {
	p = p.normalized()
	if lagHours <= 0 || math.IsNaN(lagHours) || math.IsInf(lagHours, 0) {
		return p.MinWindow
	}

	hours := lagHours * p.LagMultiplier
	if hours >= p.MaxWindow.Hours() {
		return p.MaxWindow
	}
	window := time.Duration(hours * float64(time.Hour))
	if window < p.MinWindow {
		return p.MinWindow
	}
	return window
}
