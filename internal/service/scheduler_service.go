package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"spray-machine-monitoring/internal/clock"
	"spray-machine-monitoring/internal/models"
	"spray-machine-monitoring/internal/repository"
	"spray-machine-monitoring/internal/shift"
)

// rotationParallelism bounds concurrent per-machine rotations.
const rotationParallelism = 8

// ErrFutureShift is returned when asked to open a shift that has not started.
var ErrFutureShift = errors.New("shift has not started yet")

// RotationSummary reports the outcome of rotating every machine.
type RotationSummary struct {
	Date     string            `json:"date"`
	Total    int               `json:"total"`
	Created  []string          `json:"created"`
	Existing []string          `json:"existing"`
	Failed   map[string]string `json:"failed,omitempty"`
}

// Err is non-nil when at least one machine failed to rotate.
func (s RotationSummary) Err() error {
	if len(s.Failed) == 0 {
		return nil
	}
	ids := make([]string, 0, len(s.Failed))
	for id := range s.Failed {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return fmt.Errorf("rotation of %s failed for %s", s.Date, strings.Join(ids, ", "))
}

// ShiftScheduler opens a new shift record for every spray machine at
// each shift start.
type ShiftScheduler struct {
	records  ShiftRecordStore
	machines MachineDirectory
	watchdog *WatchdogRegistry
	locks    *MachineLocks
	events   *Broadcaster
	window   shift.Window
	clock    clock.Clock

	mu      sync.Mutex
	ctx     context.Context
	timer   *clock.Timer
	stopped bool
}

func NewShiftScheduler(
	records ShiftRecordStore,
	machines MachineDirectory,
	watchdog *WatchdogRegistry,
	locks *MachineLocks,
	events *Broadcaster,
	window shift.Window,
	clk clock.Clock,
) *ShiftScheduler {
	return &ShiftScheduler{
		records:  records,
		machines: machines,
		watchdog: watchdog,
		locks:    locks,
		events:   events,
		window:   window,
		clock:    clk,
	}
}

// Start opens today's shift if it has already begun and none exists,
// then schedules the daily rotation. ctx bounds every later rotation.
func (s *ShiftScheduler) Start(ctx context.Context) {
	now := s.clock.Now()
	if s.window.Started(now) {
		date := s.window.LocalDate(now, 0)
		log.Printf("[Scheduler] Catch-up rotation for %s", date)
		s.RotateAll(ctx, date)
	}

	s.mu.Lock()
	s.ctx = ctx
	s.stopped = false
	s.scheduleNext()
	s.mu.Unlock()
}

// Stop cancels the pending rotation.
func (s *ShiftScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopped = true
	s.timer.Stop()
	s.timer = nil
	log.Println("[Scheduler] Stopped")
}

// scheduleNext arms the timer for the next shift start. s.mu must be held.
func (s *ShiftScheduler) scheduleNext() {
	now := s.clock.Now()
	next := s.window.NextStart(now)
	s.timer = s.clock.AfterFunc(next.Sub(now), func() {
		s.fire(next)
	})
	log.Printf("[Scheduler] Next rotation at %s", next.Format(time.RFC3339))
}

func (s *ShiftScheduler) fire(start time.Time) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	ctx := s.ctx
	s.mu.Unlock()

	s.RotateAll(ctx, s.window.LocalDate(start, 0))

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.stopped {
		s.scheduleNext()
	}
}

// RotateAll rotates every spray machine to date. A failing machine does
// not stop the others.
func (s *ShiftScheduler) RotateAll(ctx context.Context, date string) RotationSummary {
	summary := RotationSummary{Date: date, Failed: map[string]string{}}

	machines, err := s.machines.ListSprayMachines(ctx)
	if err != nil {
		log.Printf("[Scheduler] Error listing spray machines: %v", err)
		summary.Failed["*"] = err.Error()
		return summary
	}
	summary.Total = len(machines)

	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(rotationParallelism)
	for _, m := range machines {
		machineID := m.MachineID
		g.Go(func() error {
			created, err := s.Rotate(ctx, machineID, date)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				log.Printf("[Scheduler] Error rotating %s to %s: %v", machineID, date, err)
				summary.Failed[machineID] = err.Error()
			case created:
				summary.Created = append(summary.Created, machineID)
			default:
				summary.Existing = append(summary.Existing, machineID)
			}
			return nil
		})
	}
	_ = g.Wait()

	sort.Strings(summary.Created)
	sort.Strings(summary.Existing)
	log.Printf("[Scheduler] Rotation %s: %d created, %d already open, %d failed of %d machines",
		date, len(summary.Created), len(summary.Existing), len(summary.Failed), summary.Total)
	return summary
}

// Rotate opens the machine's record for date if it does not exist yet.
// It reports whether a record was created. Only the current shift
// starts error tracking and resets the machine's live status; an
// earlier date just gets its missing record. Future dates are refused
// so the baseline is taken when that shift actually starts.
func (s *ShiftScheduler) Rotate(ctx context.Context, machineID, date string) (bool, error) {
	start, err := s.window.Start(date)
	if err != nil {
		return false, err
	}
	now := s.clock.Now()
	if now.Before(start) {
		return false, fmt.Errorf("%w: %s starts at %s", ErrFutureShift, date, start.Format(time.RFC3339))
	}
	today := s.window.LocalDate(now, 0)

	unlock := s.locks.Lock(machineID)
	baseline := 0.0
	prev, err := s.records.FindLatestBefore(ctx, machineID, date)
	switch {
	case err == nil:
		baseline = prev.CurrentPowerConsumption
	case !errors.Is(err, repository.ErrShiftRecordNotFound):
		unlock()
		return false, fmt.Errorf("load previous shift of %s: %w", machineID, err)
	}

	_, created, err := s.records.GetOrCreate(ctx, &models.ShiftRecord{
		MachineID:               machineID,
		Date:                    date,
		EnergyAtStartOfDay:      baseline,
		CurrentPowerConsumption: baseline,
		LastStatus:              models.StatusError,
		LastStatusChangeTime:    start,
		LastUpdate:              now,
	})
	if err != nil {
		unlock()
		return false, fmt.Errorf("open shift %s/%s: %w", machineID, date, err)
	}
	if !created {
		unlock()
		return false, nil
	}
	if date != today {
		unlock()
		log.Printf("[Scheduler] Backfilled shift record %s/%s", machineID, date)
		return true, nil
	}
	s.watchdog.StartErrorTracking(machineID)
	unlock()

	if err := s.machines.UpdateConnectionStatus(ctx, machineID, false, models.MachineError); err != nil {
		log.Printf("[Scheduler] Error resetting connection status of %s: %v", machineID, err)
	}
	s.events.StatusUpdate(StatusUpdatePayload{
		MachineID:     machineID,
		Status:        models.MachineError,
		IsConnected:   false,
		LastStatus:    models.StatusError,
		LastUpdate:    now,
		LastHeartbeat: now,
	})
	s.events.DailyReset(machineID, date,
		fmt.Sprintf("New shift created at %02d:%02d", s.window.StartHour, s.window.StartMinute))
	return true, nil
}
