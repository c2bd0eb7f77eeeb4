package service

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"spray-machine-monitoring/internal/models"
)

const shiftDate = "2026-01-06"

func TestShiftScenario(t *testing.T) {
	h := newHarness(t, at(6, 6, 0, 0), time.Hour, 10*time.Second, sprayMachine("SPR01", 7))
	ctx := context.Background()

	created, err := h.scheduler.Rotate(ctx, "SPR01", shiftDate)
	if err != nil || !created {
		t.Fatalf("Rotate = %v, %v", created, err)
	}
	if got := h.watchdog.State("SPR01"); got != WatchdogErroring {
		t.Fatalf("state after rotation = %s", got)
	}

	// Error ticks accrue from the shift start until the first message.
	h.clock.Advance(2*time.Hour + 5*time.Second)
	rec := h.send(t, "SPR01", models.StatusRunning, 100)
	if !near(rec.ErrorTime, 7205.0/3600) {
		t.Fatalf("ErrorTime = %v, want %v", rec.ErrorTime, 7205.0/3600)
	}
	if rec.TotalEnergyConsumed != 100 || rec.LastStatus != models.StatusRunning {
		t.Fatalf("after first message: %+v", rec)
	}
	if got := h.watchdog.State("SPR01"); got != WatchdogArmed {
		t.Fatalf("state after message = %s", got)
	}

	h.clock.Advance(30 * time.Minute)
	rec = h.send(t, "SPR01", models.StatusStopped, 105)
	if rec.ActiveTime != 0.5 || rec.TotalEnergyConsumed != 105 || rec.Efficiency != 100 {
		t.Fatalf("after second message: active=%v energy=%v eff=%v", rec.ActiveTime, rec.TotalEnergyConsumed, rec.Efficiency)
	}

	// Silence: the timeout credits the stop bucket and flips to error.
	h.clock.Advance(time.Hour)
	stored := h.store.get(t, "SPR01", shiftDate)
	if stored.StopTime != 1 || stored.LastStatus != models.StatusError {
		t.Fatalf("after timeout: stop=%v status=%d", stored.StopTime, stored.LastStatus)
	}
	if c := h.machines.last("SPR01"); c.connected || c.status != models.MachineError {
		t.Fatalf("machine not marked disconnected: %+v", c)
	}
	if got := h.notifier.types(); len(got) != 1 || got[0] != models.NotificationMQTTDisconnected {
		t.Fatalf("notifications = %v", got)
	}

	before := stored.ErrorTime
	h.clock.Advance(35 * time.Second)
	if after := h.store.get(t, "SPR01", shiftDate).ErrorTime; !near(after-before, 30.0/3600) {
		t.Fatalf("error ticks accrued %v, want %v", after-before, 30.0/3600)
	}

	rec = h.send(t, "SPR01", models.StatusRunning, 110)
	if !near(rec.ErrorTime-before, 35.0/3600) || rec.LastStatus != models.StatusRunning {
		t.Fatalf("reconnect: error delta=%v status=%d", rec.ErrorTime-before, rec.LastStatus)
	}
	if got := h.notifier.types(); len(got) != 2 || got[1] != models.NotificationSystem {
		t.Fatalf("notifications = %v", got)
	}
}

func TestHandleOutsideShiftIsNoop(t *testing.T) {
	h := newHarness(t, at(6, 19, 0, 0), 10*time.Second, 10*time.Second, sprayMachine("SPR01", 1))
	h.store.put(models.ShiftRecord{MachineID: "SPR01", Date: shiftDate, LastStatus: models.StatusRunning, LastStatusChangeTime: at(6, 17, 0, 0)})

	rec := h.send(t, "SPR01", models.StatusStopped, 500)
	if rec != nil {
		t.Fatalf("expected nil record, got %+v", rec)
	}
	if stored := h.store.get(t, "SPR01", shiftDate); stored.ActiveTime != 0 || stored.CurrentPowerConsumption != 0 {
		t.Fatalf("record changed outside shift: %+v", stored)
	}
	if h.watchdog.Len() != 0 {
		t.Fatal("watchdog armed outside shift")
	}
}

func TestHandleWithoutRecordWaitsForRotation(t *testing.T) {
	h := newHarness(t, at(6, 9, 0, 0), 10*time.Second, 10*time.Second, sprayMachine("SPR01", 1))

	if rec := h.send(t, "SPR01", models.StatusRunning, 1); rec != nil {
		t.Fatalf("expected nil record, got %+v", rec)
	}
	if h.store.count() != 0 {
		t.Fatal("ingestion created a shift record")
	}
}

func TestHandleRejectsUnknownMachine(t *testing.T) {
	h := newHarness(t, at(6, 9, 0, 0), 10*time.Second, 10*time.Second)

	_, err := h.ingest.Handle(context.Background(), models.TelemetryMessage{MachineID: "GHOST", Status: models.StatusRunning})
	if !errors.Is(err, ErrUnknownMachine) {
		t.Fatalf("err = %v, want ErrUnknownMachine", err)
	}
}

func TestHandleRejectsInvalidTelemetry(t *testing.T) {
	h := newHarness(t, at(6, 9, 0, 0), 10*time.Second, 10*time.Second, sprayMachine("SPR01", 1))

	cases := []models.TelemetryMessage{
		{MachineID: "", Status: models.StatusRunning},
		{MachineID: "SPR01", Status: 3},
		{MachineID: "SPR01", Status: models.StatusRunning, PowerConsumption: -1},
		{MachineID: "SPR01", Status: models.StatusRunning, PowerConsumption: math.NaN()},
		{MachineID: "SPR01", Status: models.StatusRunning, PowerConsumption: math.Inf(1)},
	}
	for _, msg := range cases {
		if _, err := h.ingest.Handle(context.Background(), msg); !errors.Is(err, ErrInvalidTelemetry) {
			t.Fatalf("Handle(%+v) err = %v, want ErrInvalidTelemetry", msg, err)
		}
	}
}

func TestHandleDebouncesRapidMessages(t *testing.T) {
	h := newHarness(t, at(6, 9, 0, 0), 10*time.Second, 10*time.Second, sprayMachine("SPR01", 1))
	h.store.put(models.ShiftRecord{MachineID: "SPR01", Date: shiftDate, LastStatus: models.StatusRunning, LastStatusChangeTime: at(6, 8, 0, 0)})

	first := h.send(t, "SPR01", models.StatusRunning, 10)
	h.clock.Advance(500 * time.Millisecond)
	second := h.send(t, "SPR01", models.StatusStopped, 12)

	if second.ActiveTime != first.ActiveTime || second.StopTime != 0 {
		t.Fatalf("debounced message accrued: %+v", second)
	}
	if second.LastStatus != models.StatusRunning {
		t.Fatalf("debounced message changed status to %d", second.LastStatus)
	}
	if second.TotalEnergyConsumed != 12 {
		t.Fatalf("energy not updated: %v", second.TotalEnergyConsumed)
	}
}

func TestEnergyBelowBaselineIsZero(t *testing.T) {
	h := newHarness(t, at(6, 9, 0, 0), 10*time.Second, 10*time.Second, sprayMachine("SPR01", 1))
	h.store.put(models.ShiftRecord{MachineID: "SPR01", Date: shiftDate, EnergyAtStartOfDay: 200, LastStatusChangeTime: at(6, 6, 0, 0)})

	rec := h.send(t, "SPR01", models.StatusRunning, 150)
	if rec.TotalEnergyConsumed != 0 || rec.CurrentPowerConsumption != 150 {
		t.Fatalf("energy = %v current = %v", rec.TotalEnergyConsumed, rec.CurrentPowerConsumption)
	}
}

func TestWatchdogTicksIncreaseErrorTime(t *testing.T) {
	h := newHarness(t, at(6, 9, 0, 0), 10*time.Second, 10*time.Second, sprayMachine("SPR01", 1))
	h.store.put(models.ShiftRecord{MachineID: "SPR01", Date: shiftDate, LastStatus: models.StatusStopped, LastStatusChangeTime: at(6, 8, 0, 0)})
	h.send(t, "SPR01", models.StatusRunning, 1)

	h.clock.Advance(10 * time.Second)
	rec := h.store.get(t, "SPR01", shiftDate)
	if rec.LastStatus != models.StatusError || !near(rec.ActiveTime, 10.0/3600) {
		t.Fatalf("after timeout: status=%d active=%v", rec.LastStatus, rec.ActiveTime)
	}

	previous := rec.ErrorTime
	for i := 0; i < 5; i++ {
		h.clock.Advance(10 * time.Second)
		current := h.store.get(t, "SPR01", shiftDate).ErrorTime
		if current <= previous {
			t.Fatalf("tick %d: errorTime %v did not increase from %v", i, current, previous)
		}
		previous = current
	}
	if n := len(h.publisher.named(EventSprayRealtime)); n < 6 {
		t.Fatalf("realtime events = %d, want at least 6", n)
	}
}

func TestTimeoutAfterShiftEndStopsTracking(t *testing.T) {
	h := newHarness(t, at(6, 17, 59, 55), 10*time.Second, 10*time.Second, sprayMachine("SPR01", 1))
	h.store.put(models.ShiftRecord{MachineID: "SPR01", Date: shiftDate, LastStatus: models.StatusRunning, LastStatusChangeTime: at(6, 17, 0, 0)})
	h.send(t, "SPR01", models.StatusRunning, 1)

	h.clock.Advance(10 * time.Second)
	if got := h.watchdog.State("SPR01"); got != WatchdogIdle {
		t.Fatalf("state = %s, want idle", got)
	}
	if h.clock.PendingCount() != 0 {
		t.Fatalf("%d timers still pending", h.clock.PendingCount())
	}
	rec := h.store.get(t, "SPR01", shiftDate)
	// 17:00 to the 18:00 close, nothing after it.
	if !near(rec.ActiveTime, 1) || rec.ErrorTime != 0 {
		t.Fatalf("close-out accrual: active=%v error=%v", rec.ActiveTime, rec.ErrorTime)
	}
	if c := h.machines.last("SPR01"); c.connected {
		t.Fatal("machine still marked connected")
	}
}

func TestRecoverRearmsWatchdog(t *testing.T) {
	h := newHarness(t, at(6, 10, 0, 0), 10*time.Second, 10*time.Second,
		sprayMachine("SPR01", 1), sprayMachine("SPR02", 1), sprayMachine("SPR03", 1))
	h.store.put(models.ShiftRecord{MachineID: "SPR01", Date: shiftDate, LastStatus: models.StatusError, LastStatusChangeTime: at(6, 6, 0, 0)})
	h.store.put(models.ShiftRecord{MachineID: "SPR02", Date: shiftDate, LastStatus: models.StatusRunning, LastStatusChangeTime: at(6, 9, 0, 0)})

	if err := h.ingest.Recover(context.Background()); err != nil {
		t.Fatalf("Recover: %v", err)
	}
	want := map[string]WatchdogState{"SPR01": WatchdogErroring, "SPR02": WatchdogArmed, "SPR03": WatchdogIdle}
	for id, state := range want {
		if got := h.watchdog.State(id); got != state {
			t.Fatalf("%s state = %s, want %s", id, got, state)
		}
	}
}

func TestConcurrentMessagesMatchSerialApplication(t *testing.T) {
	const n = 16
	seed := models.ShiftRecord{
		MachineID:               "SPR01",
		Date:                    shiftDate,
		EnergyAtStartOfDay:      40,
		CurrentPowerConsumption: 40,
		LastStatus:              models.StatusStopped,
		LastStatusChangeTime:    at(6, 8, 0, 0),
	}
	msg := models.TelemetryMessage{MachineID: "SPR01", Status: models.StatusRunning, PowerConsumption: 100, ReceivedAt: at(6, 9, 0, 0)}

	serial := newHarness(t, at(6, 9, 0, 0), 10*time.Second, 10*time.Second, sprayMachine("SPR01", 1))
	serial.store.put(seed)
	for i := 0; i < n; i++ {
		if _, err := serial.ingest.Handle(context.Background(), msg); err != nil {
			t.Fatalf("serial Handle: %v", err)
		}
	}

	parallel := newHarness(t, at(6, 9, 0, 0), 10*time.Second, 10*time.Second, sprayMachine("SPR01", 1))
	parallel.store.put(seed)
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := parallel.ingest.Handle(context.Background(), msg)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("concurrent Handle: %v", err)
		}
	}

	want := serial.store.get(t, "SPR01", shiftDate)
	got := parallel.store.get(t, "SPR01", shiftDate)
	if got.Version != n || want.Version != n {
		t.Fatalf("versions = %d (parallel) / %d (serial), want %d saves each", got.Version, want.Version, n)
	}
	if got.StopTime != want.StopTime || got.ActiveTime != want.ActiveTime || got.ErrorTime != want.ErrorTime {
		t.Fatalf("buckets = %v/%v/%v, serial %v/%v/%v",
			got.ActiveTime, got.StopTime, got.ErrorTime, want.ActiveTime, want.StopTime, want.ErrorTime)
	}
	if !near(got.StopTime, 1) || got.TotalEnergyConsumed != 60 || got.LastStatus != models.StatusRunning {
		t.Fatalf("record = %+v", got)
	}
	if state := parallel.watchdog.State("SPR01"); state != WatchdogArmed {
		t.Fatalf("state = %s, want armed", state)
	}
}
