package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"time"

	"spray-machine-monitoring/internal/accounting"
	"spray-machine-monitoring/internal/clock"
	"spray-machine-monitoring/internal/models"
	"spray-machine-monitoring/internal/repository"
	"spray-machine-monitoring/internal/shift"
)

var (
	ErrInvalidTelemetry = errors.New("invalid telemetry")
	ErrUnknownMachine   = errors.New("unknown spray machine")
)

// TelemetryService turns readings into shift accumulators. It is also
// the WatchdogHandler that accrues error time while a machine is silent.
type TelemetryService struct {
	records  ShiftRecordStore
	machines MachineDirectory
	watchdog *WatchdogRegistry
	locks    *MachineLocks
	events   *Broadcaster
	notifier Notifier
	archive  Archiver
	window   shift.Window
	limits   accounting.Limits
	clock    clock.Clock
	timeout  time.Duration
}

func NewTelemetryService(
	records ShiftRecordStore,
	machines MachineDirectory,
	watchdog *WatchdogRegistry,
	locks *MachineLocks,
	events *Broadcaster,
	window shift.Window,
	limits accounting.Limits,
	clk clock.Clock,
) *TelemetryService {
	s := &TelemetryService{
		records:  records,
		machines: machines,
		watchdog: watchdog,
		locks:    locks,
		events:   events,
		window:   window,
		limits:   limits,
		clock:    clk,
		timeout:  10 * time.Second,
	}
	watchdog.Bind(s)
	return s
}

// WithNotifier enables disconnect and reconnect alerts.
func (s *TelemetryService) WithNotifier(n Notifier) *TelemetryService {
	s.notifier = n
	return s
}

// WithArchive enables the reading archive.
func (s *TelemetryService) WithArchive(a Archiver) *TelemetryService {
	s.archive = a
	return s
}

// Handle applies one reading. It returns (nil, nil) when the reading is
// outside the shift window or today's shift has not been opened yet.
func (s *TelemetryService) Handle(ctx context.Context, msg models.TelemetryMessage) (*models.ShiftRecord, error) {
	if err := validate(msg); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	if !s.window.Contains(now) {
		return nil, nil
	}

	machine, err := s.machines.FindSprayMachine(ctx, msg.MachineID)
	if err != nil {
		if errors.Is(err, repository.ErrMachineNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrUnknownMachine, msg.MachineID)
		}
		return nil, fmt.Errorf("verify machine %s: %w", msg.MachineID, err)
	}

	unlock := s.locks.Lock(msg.MachineID)
	date := s.window.LocalDate(now, 0)
	rec, err := s.records.FindByDate(ctx, msg.MachineID, date)
	if err != nil {
		unlock()
		if errors.Is(err, repository.ErrShiftRecordNotFound) {
			log.Printf("[Ingest] No shift record for %s on %s yet, waiting for rotation", msg.MachineID, date)
			return nil, nil
		}
		return nil, fmt.Errorf("load shift record %s/%s: %w", msg.MachineID, date, err)
	}

	// A machine seen earlier in this shift that went silent is back.
	reconnected := s.watchdog.State(msg.MachineID) == WatchdogErroring && rec.ActiveTime+rec.StopTime > 0

	reading := msg.PowerConsumption
	accounting.Apply(rec, msg.Status, &reading, now, s.limits)
	if err := s.records.Save(ctx, rec); err != nil {
		unlock()
		return nil, fmt.Errorf("save shift record %s/%s: %w", msg.MachineID, date, err)
	}
	s.watchdog.Reset(msg.MachineID)
	unlock()

	status := msg.Status.ConnectionStatus()
	if err := s.machines.UpdateConnectionStatus(ctx, msg.MachineID, true, status); err != nil {
		log.Printf("[Ingest] Error updating connection status of %s: %v", msg.MachineID, err)
	}

	s.events.Realtime(rec)
	s.events.StatusUpdate(StatusUpdatePayload{
		MachineID:     msg.MachineID,
		Status:        status,
		IsConnected:   true,
		LastStatus:    msg.Status,
		LastUpdate:    rec.LastUpdate,
		LastHeartbeat: now,
	})

	if reconnected && s.notifier != nil {
		s.notifier.Notify(NotificationEvent{
			MachineID:   machine.MachineID,
			MachineName: machine.Name,
			OwnerID:     machine.UserID,
			Type:        models.NotificationSystem,
			Severity:    "success",
			Title:       "Machine reconnected",
			Message:     fmt.Sprintf("%s is sending telemetry again", machine.Name),
		})
	}
	if s.archive != nil {
		if err := s.archive.Archive(ctx, msg, rec); err != nil {
			log.Printf("[Ingest] Error archiving reading of %s: %v", msg.MachineID, err)
		}
	}

	return rec, nil
}

func validate(msg models.TelemetryMessage) error {
	if msg.MachineID == "" {
		return fmt.Errorf("%w: missing machineId", ErrInvalidTelemetry)
	}
	switch msg.Status {
	case models.StatusRunning, models.StatusStopped, models.StatusError:
	default:
		return fmt.Errorf("%w: status %d", ErrInvalidTelemetry, msg.Status)
	}
	p := msg.PowerConsumption
	if math.IsNaN(p) || math.IsInf(p, 0) || p < 0 {
		return fmt.Errorf("%w: powerConsumption %v", ErrInvalidTelemetry, p)
	}
	return nil
}

// OnTimeout runs when a machine has been silent for the message timeout.
func (s *TelemetryService) OnTimeout(machineID string) bool {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	now := s.clock.Now()
	s.markDisconnected(ctx, machineID, now)

	if !s.window.Contains(now) {
		s.closeShift(ctx, machineID, now)
		log.Printf("[Watchdog] %s timed out outside the shift window, tracking stopped", machineID)
		return false
	}

	if rec := s.accrueError(ctx, machineID, now); rec != nil {
		s.events.Realtime(rec)
	}
	log.Printf("[Watchdog] %s silent for %s, tracking error time", machineID, s.watchdog.timeout)

	if s.notifier != nil {
		machine, err := s.machines.FindSprayMachine(ctx, machineID)
		if err != nil {
			log.Printf("[Watchdog] Error loading %s for notification: %v", machineID, err)
			return true
		}
		s.notifier.Notify(NotificationEvent{
			MachineID:   machine.MachineID,
			MachineName: machine.Name,
			OwnerID:     machine.UserID,
			Type:        models.NotificationMQTTDisconnected,
			Severity:    "warning",
			Title:       "Machine disconnected",
			Message:     fmt.Sprintf("No telemetry from %s for %s", machine.Name, s.watchdog.timeout),
		})
	}
	return true
}

// OnErrorTick keeps accruing error time while the machine stays silent.
func (s *TelemetryService) OnErrorTick(machineID string) bool {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	now := s.clock.Now()
	if !s.window.Contains(now) {
		s.closeShift(ctx, machineID, now)
		log.Printf("[Watchdog] Shift over, error tracking of %s stopped", machineID)
		return false
	}

	rec := s.accrueError(ctx, machineID, now)
	if rec == nil {
		return true
	}
	s.events.Realtime(rec)
	s.events.StatusUpdate(StatusUpdatePayload{
		MachineID:     machineID,
		Status:        models.MachineError,
		IsConnected:   false,
		LastStatus:    models.StatusError,
		LastUpdate:    rec.LastUpdate,
		LastHeartbeat: now,
	})
	return true
}

func (s *TelemetryService) markDisconnected(ctx context.Context, machineID string, now time.Time) {
	if err := s.machines.UpdateConnectionStatus(ctx, machineID, false, models.MachineError); err != nil {
		log.Printf("[Watchdog] Error marking %s disconnected: %v", machineID, err)
	}
	s.events.StatusUpdate(StatusUpdatePayload{
		MachineID:     machineID,
		Status:        models.MachineError,
		IsConnected:   false,
		LastStatus:    models.StatusError,
		LastUpdate:    now,
		LastHeartbeat: now,
	})
}

// accrueError credits the time since the last status change to the
// previous status and flips the record to error. Returns nil when there
// is nothing to update.
func (s *TelemetryService) accrueError(ctx context.Context, machineID string, now time.Time) *models.ShiftRecord {
	date := s.window.LocalDate(now, 0)
	rec, err := s.records.FindByDate(ctx, machineID, date)
	if err != nil {
		if !errors.Is(err, repository.ErrShiftRecordNotFound) {
			log.Printf("[Watchdog] Error loading shift record %s/%s: %v", machineID, date, err)
		}
		return nil
	}

	accounting.Apply(rec, models.StatusError, nil, now, s.limits)
	if err := s.records.Save(ctx, rec); err != nil {
		log.Printf("[Watchdog] Error saving shift record %s/%s: %v", machineID, date, err)
		return nil
	}
	return rec
}

// closeShift accrues a silent machine's record up to the end of the
// shift it was last seen in, so the final minutes are not lost.
func (s *TelemetryService) closeShift(ctx context.Context, machineID string, now time.Time) {
	date := s.window.LocalDate(now, 0)
	end, err := s.window.End(date)
	if err != nil || now.Before(end) {
		return
	}
	rec, err := s.records.FindByDate(ctx, machineID, date)
	if err != nil {
		return
	}
	if !rec.LastStatusChangeTime.Before(end) {
		return
	}
	accounting.Apply(rec, models.StatusError, nil, end, s.limits)
	if err := s.records.Save(ctx, rec); err != nil {
		log.Printf("[Watchdog] Error closing shift record %s/%s: %v", machineID, date, err)
		return
	}
	s.events.Realtime(rec)
}

// Recover re-arms the watchdog for every machine with a record for the
// current shift, after a restart lost the in-memory timers.
func (s *TelemetryService) Recover(ctx context.Context) error {
	now := s.clock.Now()
	if !s.window.Contains(now) {
		return nil
	}

	machines, err := s.machines.ListSprayMachines(ctx)
	if err != nil {
		return fmt.Errorf("list spray machines: %w", err)
	}

	date := s.window.LocalDate(now, 0)
	erroring, armed := 0, 0
	for _, m := range machines {
		unlock := s.locks.Lock(m.MachineID)
		rec, err := s.records.FindByDate(ctx, m.MachineID, date)
		switch {
		case errors.Is(err, repository.ErrShiftRecordNotFound):
		case err != nil:
			log.Printf("[Ingest] Error loading shift record %s/%s during recovery: %v", m.MachineID, date, err)
		case rec.LastStatus == models.StatusError:
			s.watchdog.StartErrorTracking(m.MachineID)
			erroring++
		default:
			s.watchdog.Reset(m.MachineID)
			armed++
		}
		unlock()
	}

	log.Printf("[Ingest] Recovered watchdog for %s: %d erroring, %d armed", date, erroring, armed)
	return nil
}
