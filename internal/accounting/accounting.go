// Package accounting turns status and meter readings into shift
// accumulators. Every function is pure: callers load the record, apply
// changes, and persist it themselves.
package accounting

import (
	"math"
	"time"

	"spray-machine-monitoring/internal/models"
)

// Limits bounds the accrual arithmetic.
type Limits struct {
	// HoursPerDay caps each time bucket.
	HoursPerDay float64

	// MinUpdateInterval is the debounce threshold: elapsed time at or
	// below it is not credited to any bucket.
	MinUpdateInterval time.Duration
}

// NormalizeStatus maps a raw status code onto the tri-state signal.
// Anything other than 1 or 0 is treated as an error.
func NormalizeStatus(code float64) models.Status {
	switch code {
	case 1:
		return models.StatusRunning
	case 0:
		return models.StatusStopped
	default:
		return models.StatusError
	}
}

// ApplyEnergy records a cumulative meter reading.
func ApplyEnergy(rec *models.ShiftRecord, reading float64) {
	rec.TotalEnergyConsumed = math.Max(0, reading-rec.EnergyAtStartOfDay)
	rec.CurrentPowerConsumption = reading
}

// ApplyStatus credits the time elapsed since the last status change to
// the bucket of the previous status, then moves the record to status.
// It reports whether anything was credited; when the elapsed time does
// not exceed the debounce threshold the record is left untouched.
func ApplyStatus(rec *models.ShiftRecord, status models.Status, now time.Time, limits Limits) bool {
	elapsed := now.Sub(rec.LastStatusChangeTime)
	if elapsed <= limits.MinUpdateInterval {
		return false
	}
	hours := elapsed.Hours()

	switch rec.LastStatus {
	case models.StatusRunning:
		rec.ActiveTime = clamp(rec.ActiveTime+hours, limits.HoursPerDay)
	case models.StatusStopped:
		rec.StopTime = clamp(rec.StopTime+hours, limits.HoursPerDay)
	default:
		rec.ErrorTime = clamp(rec.ErrorTime+hours, limits.HoursPerDay)
	}

	rec.LastStatusChangeTime = now
	rec.LastStatus = status
	return true
}

// Recompute refreshes the derived fields and re-clamps every bucket.
// Call it after any mutation and before persisting.
func Recompute(rec *models.ShiftRecord, limits Limits) {
	Clamp(rec, limits.HoursPerDay)
	rec.Efficiency = Efficiency(rec.ActiveTime, rec.StopTime)
}

// Apply runs the full accounting step for one reading: energy, time
// buckets, derived fields. reading is nil for synthetic updates such as
// watchdog ticks that carry no meter value.
func Apply(rec *models.ShiftRecord, status models.Status, reading *float64, now time.Time, limits Limits) bool {
	if reading != nil {
		ApplyEnergy(rec, *reading)
	}
	accrued := ApplyStatus(rec, status, now, limits)
	rec.LastUpdate = now
	Recompute(rec, limits)
	return accrued
}

// Efficiency is the running share of active+stop time, in percent with
// one decimal. Error time is deliberately not part of the denominator.
func Efficiency(active, stop float64) float64 {
	total := active + stop
	if total <= 0 {
		return 0
	}
	return Round(active/total*100, 1)
}

// Clamp bounds all three buckets to [0, hours].
func Clamp(rec *models.ShiftRecord, hours float64) {
	rec.ActiveTime = clamp(rec.ActiveTime, hours)
	rec.StopTime = clamp(rec.StopTime, hours)
	rec.ErrorTime = clamp(rec.ErrorTime, hours)
}

func clamp(v, hours float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	return math.Min(v, hours)
}

// Round rounds v half away from zero to the given number of decimals.
func Round(v float64, places int) float64 {
	scale := math.Pow(10, float64(places))
	return math.Round(v*scale) / scale
}
