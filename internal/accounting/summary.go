package accounting

import "spray-machine-monitoring/internal/models"

// Statistics aggregates a run of shift records.
type Statistics struct {
	TotalActiveTime     float64 `json:"totalActiveTime"`
	TotalStopTime       float64 `json:"totalStopTime"`
	TotalErrorTime      float64 `json:"totalErrorTime"`
	TotalEnergyConsumed float64 `json:"totalEnergyConsumed"`
	AverageEfficiency   float64 `json:"averageEfficiency"`
	DaysCount           int     `json:"daysCount"`
}

// Summarize totals the buckets of history. Efficiency is recomputed
// from the totals rather than averaged per day.
func Summarize(history []models.ShiftRecord) Statistics {
	var stats Statistics
	for _, day := range history {
		stats.TotalActiveTime += day.ActiveTime
		stats.TotalStopTime += day.StopTime
		stats.TotalErrorTime += day.ErrorTime
		stats.TotalEnergyConsumed += day.TotalEnergyConsumed
	}
	stats.AverageEfficiency = Efficiency(stats.TotalActiveTime, stats.TotalStopTime)
	stats.TotalActiveTime = Round(stats.TotalActiveTime, 2)
	stats.TotalStopTime = Round(stats.TotalStopTime, 2)
	stats.TotalErrorTime = Round(stats.TotalErrorTime, 2)
	stats.TotalEnergyConsumed = Round(stats.TotalEnergyConsumed, 2)
	stats.DaysCount = len(history)
	return stats
}

// Slice is one segment of the pie chart.
type Slice struct {
	Label      string  `json:"label"`
	Hours      float64 `json:"hours"`
	Percentage float64 `json:"percentage"`
}

// Breakdown splits a record's tracked time into active, stop and error
// shares. Percentages are 0 when nothing has been tracked yet.
func Breakdown(rec models.ShiftRecord) []Slice {
	total := rec.ActiveTime + rec.StopTime + rec.ErrorTime
	share := func(v float64) float64 {
		if total <= 0 {
			return 0
		}
		return Round(v/total*100, 1)
	}
	return []Slice{
		{Label: "active", Hours: Round(rec.ActiveTime, 2), Percentage: share(rec.ActiveTime)},
		{Label: "stop", Hours: Round(rec.StopTime, 2), Percentage: share(rec.StopTime)},
		{Label: "error", Hours: Round(rec.ErrorTime, 2), Percentage: share(rec.ErrorTime)},
	}
}
