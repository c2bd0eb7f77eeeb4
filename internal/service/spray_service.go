package service

import (
	"context"
	"errors"
	"fmt"

	"spray-machine-monitoring/internal/accounting"
	"spray-machine-monitoring/internal/clock"
	"spray-machine-monitoring/internal/models"
	"spray-machine-monitoring/internal/repository"
	"spray-machine-monitoring/internal/shift"
)

// HistoryDays is how many shifts the history and statistics views cover
const HistoryDays = 30

var ErrAccessDenied = errors.New("access denied: you don't have permission to access this machine")

// DaySummary is one bar of the weekly and monthly charts
type DaySummary struct {
	Date                string  `json:"date"`
	Weekday             string  `json:"weekday"`
	ActiveTime          float64 `json:"activeTime"`
	StopTime            float64 `json:"stopTime"`
	ErrorTime           float64 `json:"errorTime"`
	TotalEnergyConsumed float64 `json:"totalEnergyConsumed"`
	Efficiency          float64 `json:"efficiency"`
	HasData             bool    `json:"hasData"`
}

// RealtimeView is the live card of a machine
type RealtimeView struct {
	Machine *models.Machine `json:"machine"`
	Record  RealtimePayload `json:"data"`
	Shift   string          `json:"shift"`
	InShift bool            `json:"inShift"`
	IsToday bool            `json:"isToday"`
}

// SprayService answers the dashboard queries
type SprayService struct {
	records  ShiftRecordReader
	machines MachineDirectory
	window   shift.Window
	clock    clock.Clock
}

func NewSprayService(records ShiftRecordReader, machines MachineDirectory, window shift.Window, clk clock.Clock) *SprayService {
	return &SprayService{
		records:  records,
		machines: machines,
		window:   window,
		clock:    clk,
	}
}

// Today is the shift-local date of now
func (s *SprayService) Today() string {
	return s.window.LocalDate(s.clock.Now(), 0)
}

// CheckStarted returns ErrFutureShift when the shift of date has not
// begun yet, or shift.ErrInvalidDate for a malformed date
func (s *SprayService) CheckStarted(date string) error {
	start, err := s.window.Start(date)
	if err != nil {
		return err
	}
	if s.clock.Now().Before(start) {
		return fmt.Errorf("%w: %s", ErrFutureShift, date)
	}
	return nil
}

// Machine loads a spray machine the caller is allowed to see
func (s *SprayService) Machine(ctx context.Context, machineID string, userID uint, role string) (*models.Machine, error) {
	machine, err := s.machines.FindSprayMachine(ctx, machineID)
	if err != nil {
		return nil, err
	}
	if role != "admin" && machine.UserID != userID {
		return nil, ErrAccessDenied
	}
	return machine, nil
}

// Realtime returns today's record, or the latest one before the first
// rotation of the day
func (s *SprayService) Realtime(ctx context.Context, machine *models.Machine) (*RealtimeView, error) {
	today := s.Today()
	rec, err := s.records.FindByDate(ctx, machine.MachineID, today)
	if errors.Is(err, repository.ErrShiftRecordNotFound) {
		rec, err = s.records.FindLatest(ctx, machine.MachineID)
	}
	if err != nil {
		return nil, err
	}
	return &RealtimeView{
		Machine: machine,
		Record:  NewRealtimePayload(rec),
		Shift:   s.window.String(),
		InShift: s.window.Contains(s.clock.Now()),
		IsToday: rec.Date == today,
	}, nil
}

// Daily returns the record of one date, today when date is empty
func (s *SprayService) Daily(ctx context.Context, machineID, date string) (*models.ShiftRecord, error) {
	if date == "" {
		date = s.Today()
	}
	if _, err := shift.ParseDate(date); err != nil {
		return nil, err
	}
	return s.records.FindByDate(ctx, machineID, date)
}

// Weekly returns Monday to Sunday of the week containing date
func (s *SprayService) Weekly(ctx context.Context, machineID, date string) ([]DaySummary, error) {
	if date == "" {
		date = s.Today()
	}
	monday, err := shift.MondayOf(date)
	if err != nil {
		return nil, err
	}
	dates, err := shift.WeekDates(monday)
	if err != nil {
		return nil, err
	}
	return s.summaries(ctx, machineID, dates)
}

// Monthly returns every day of the month containing date
func (s *SprayService) Monthly(ctx context.Context, machineID, date string) ([]DaySummary, error) {
	if date == "" {
		date = s.Today()
	}
	dates, err := shift.MonthDates(date)
	if err != nil {
		return nil, err
	}
	return s.summaries(ctx, machineID, dates)
}

func (s *SprayService) summaries(ctx context.Context, machineID string, dates []string) ([]DaySummary, error) {
	records, err := s.records.FindRange(ctx, machineID, dates[0], dates[len(dates)-1])
	if err != nil {
		return nil, fmt.Errorf("load %s..%s: %w", dates[0], dates[len(dates)-1], err)
	}
	byDate := make(map[string]models.ShiftRecord, len(records))
	for _, rec := range records {
		byDate[rec.Date] = rec
	}

	days := make([]DaySummary, len(dates))
	for i, date := range dates {
		day := DaySummary{Date: date, Weekday: shift.Weekday(date)}
		if rec, ok := byDate[date]; ok {
			day.ActiveTime = accounting.Round(rec.ActiveTime, 2)
			day.StopTime = accounting.Round(rec.StopTime, 2)
			day.ErrorTime = accounting.Round(rec.ErrorTime, 2)
			day.TotalEnergyConsumed = accounting.Round(rec.TotalEnergyConsumed, 3)
			day.Efficiency = accounting.Round(rec.Efficiency, 1)
			day.HasData = true
		}
		days[i] = day
	}
	return days, nil
}

// History returns the latest shifts, newest first
func (s *SprayService) History(ctx context.Context, machineID string) ([]models.ShiftRecord, error) {
	return s.records.History(ctx, machineID, HistoryDays)
}

// Statistics aggregates the latest shifts
func (s *SprayService) Statistics(ctx context.Context, machineID string) (accounting.Statistics, error) {
	history, err := s.History(ctx, machineID)
	if err != nil {
		return accounting.Statistics{}, err
	}
	return accounting.Summarize(history), nil
}

// PieChart splits one shift's tracked time, today when date is empty
func (s *SprayService) PieChart(ctx context.Context, machineID, date string) ([]accounting.Slice, error) {
	rec, err := s.Daily(ctx, machineID, date)
	if err != nil {
		return nil, err
	}
	return accounting.Breakdown(*rec), nil
}
