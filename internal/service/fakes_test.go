package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"spray-machine-monitoring/internal/accounting"
	"spray-machine-monitoring/internal/clock"
	"spray-machine-monitoring/internal/models"
	"spray-machine-monitoring/internal/repository"
	"spray-machine-monitoring/internal/shift"
)

var local = time.FixedZone("UTC+7", 7*3600)

func at(day, hour, minute, second int) time.Time {
	return time.Date(2026, 1, day, hour, minute, second, 0, local)
}

func testWindow(t *testing.T) shift.Window {
	t.Helper()
	w, err := shift.NewWindow(6, 0, 18, 0, 12, 7)
	if err != nil {
		t.Fatalf("NewWindow: %v", err)
	}
	return w
}

var testLimits = accounting.Limits{HoursPerDay: 12, MinUpdateInterval: time.Second}

// memStore is an in-memory ShiftRecordStore and ShiftRecordReader.
type memStore struct {
	mu      sync.Mutex
	records map[string]models.ShiftRecord
	nextID  uint
	failOn  map[string]error // machineID -> error returned by GetOrCreate
}

func newMemStore() *memStore {
	return &memStore{records: map[string]models.ShiftRecord{}, failOn: map[string]error{}}
}

func key(machineID, date string) string { return machineID + "|" + date }

func (s *memStore) put(rec models.ShiftRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	rec.ID = s.nextID
	s.records[key(rec.MachineID, rec.Date)] = rec
}

func (s *memStore) get(t *testing.T, machineID, date string) models.ShiftRecord {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[key(machineID, date)]
	if !ok {
		t.Fatalf("no record for %s on %s", machineID, date)
	}
	return rec
}

func (s *memStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

func (s *memStore) sorted(machineID string) []models.ShiftRecord {
	var out []models.ShiftRecord
	for _, rec := range s.records {
		if rec.MachineID == machineID {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out
}

func (s *memStore) FindByDate(_ context.Context, machineID, date string) (*models.ShiftRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[key(machineID, date)]
	if !ok {
		return nil, repository.ErrShiftRecordNotFound
	}
	return &rec, nil
}

func (s *memStore) FindLatest(_ context.Context, machineID string) (*models.ShiftRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	all := s.sorted(machineID)
	if len(all) == 0 {
		return nil, repository.ErrShiftRecordNotFound
	}
	rec := all[len(all)-1]
	return &rec, nil
}

func (s *memStore) FindLatestBefore(_ context.Context, machineID, date string) (*models.ShiftRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	all := s.sorted(machineID)
	for i := len(all) - 1; i >= 0; i-- {
		if all[i].Date < date {
			rec := all[i]
			return &rec, nil
		}
	}
	return nil, repository.ErrShiftRecordNotFound
}

func (s *memStore) GetOrCreate(_ context.Context, rec *models.ShiftRecord) (*models.ShiftRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failOn[rec.MachineID]; err != nil {
		return nil, false, err
	}
	if existing, ok := s.records[key(rec.MachineID, rec.Date)]; ok {
		return &existing, false, nil
	}
	s.nextID++
	rec.ID = s.nextID
	s.records[key(rec.MachineID, rec.Date)] = *rec
	return rec, true, nil
}

func (s *memStore) Save(_ context.Context, rec *models.ShiftRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.records[key(rec.MachineID, rec.Date)]
	if !ok || current.Version != rec.Version {
		return repository.ErrShiftRecordConflict
	}
	rec.Version++
	s.records[key(rec.MachineID, rec.Date)] = *rec
	return nil
}

func (s *memStore) History(_ context.Context, machineID string, limit int) ([]models.ShiftRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	all := s.sorted(machineID)
	var out []models.ShiftRecord
	for i := len(all) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, all[i])
	}
	return out, nil
}

func (s *memStore) FindRange(_ context.Context, machineID, from, to string) ([]models.ShiftRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.ShiftRecord
	for _, rec := range s.sorted(machineID) {
		if rec.Date >= from && rec.Date <= to {
			out = append(out, rec)
		}
	}
	return out, nil
}

type connection struct {
	connected bool
	status    string
}

// memMachines is an in-memory MachineDirectory.
type memMachines struct {
	mu       sync.Mutex
	machines map[string]models.Machine
	updates  map[string][]connection
	listErr  error
}

func newMemMachines(machines ...models.Machine) *memMachines {
	d := &memMachines{machines: map[string]models.Machine{}, updates: map[string][]connection{}}
	for _, m := range machines {
		d.machines[m.MachineID] = m
	}
	return d
}

func sprayMachine(id string, owner uint) models.Machine {
	return models.Machine{MachineID: id, Name: "Spray " + id, Type: models.SprayMachineType, UserID: owner}
}

func (d *memMachines) FindSprayMachine(_ context.Context, machineID string) (*models.Machine, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	m, ok := d.machines[machineID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", repository.ErrMachineNotFound, machineID)
	}
	return &m, nil
}

func (d *memMachines) ListSprayMachines(context.Context) ([]models.Machine, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.listErr != nil {
		return nil, d.listErr
	}
	var out []models.Machine
	for _, m := range d.machines {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MachineID < out[j].MachineID })
	return out, nil
}

func (d *memMachines) UpdateConnectionStatus(_ context.Context, machineID string, connected bool, status string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.updates[machineID] = append(d.updates[machineID], connection{connected, status})
	return nil
}

func (d *memMachines) last(machineID string) connection {
	d.mu.Lock()
	defer d.mu.Unlock()
	u := d.updates[machineID]
	if len(u) == 0 {
		return connection{}
	}
	return u[len(u)-1]
}

type published struct {
	event   string
	payload interface{}
	rooms   []string
}

// memPublisher records every published event.
type memPublisher struct {
	mu     sync.Mutex
	events []published
}

func (p *memPublisher) Publish(event string, payload interface{}, rooms ...string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, published{event, payload, rooms})
}

func (p *memPublisher) named(event string) []published {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []published
	for _, e := range p.events {
		if e.event == event {
			out = append(out, e)
		}
	}
	return out
}

// memNotifier records notification events synchronously.
type memNotifier struct {
	mu     sync.Mutex
	events []NotificationEvent
}

func (n *memNotifier) Notify(e NotificationEvent) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, e)
}

func (n *memNotifier) types() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []string
	for _, e := range n.events {
		out = append(out, e.Type)
	}
	return out
}

// harness wires the ingestion engine against in-memory collaborators.
type harness struct {
	clock     *clock.FakeClock
	store     *memStore
	machines  *memMachines
	publisher *memPublisher
	notifier  *memNotifier
	locks     *MachineLocks
	watchdog  *WatchdogRegistry
	ingest    *TelemetryService
	scheduler *ShiftScheduler
}

func newHarness(t *testing.T, start time.Time, timeout, tick time.Duration, machines ...models.Machine) *harness {
	t.Helper()
	h := &harness{
		clock:     clock.Fake(start),
		store:     newMemStore(),
		machines:  newMemMachines(machines...),
		publisher: &memPublisher{},
		notifier:  &memNotifier{},
		locks:     NewMachineLocks(),
	}
	window := testWindow(t)
	events := NewBroadcaster(h.publisher)
	h.watchdog = NewWatchdogRegistry(h.clock, h.locks, timeout, tick)
	h.ingest = NewTelemetryService(h.store, h.machines, h.watchdog, h.locks, events, window, testLimits, h.clock).
		WithNotifier(h.notifier)
	h.scheduler = NewShiftScheduler(h.store, h.machines, h.watchdog, h.locks, events, window, h.clock)
	t.Cleanup(h.watchdog.StopAll)
	return h
}

func (h *harness) send(t *testing.T, machineID string, status models.Status, power float64) *models.ShiftRecord {
	t.Helper()
	rec, err := h.ingest.Handle(context.Background(), models.TelemetryMessage{
		MachineID:        machineID,
		Status:           status,
		PowerConsumption: power,
		ReceivedAt:       h.clock.Now(),
	})
	if err != nil {
		t.Fatalf("Handle(%s, %d, %v): %v", machineID, status, power, err)
	}
	return rec
}

var errStoreDown = errors.New("store down")

// captureLog redirects the standard logger to a buffer for the test
func captureLog(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	flags := log.Flags()
	log.SetOutput(&buf)
	log.SetFlags(0)
	t.Cleanup(func() {
		log.SetOutput(os.Stderr)
		log.SetFlags(flags)
	})
	return &buf
}

// logLines splits captured output into messages
func logLines(buf *bytes.Buffer) []string {
	return strings.Split(strings.TrimSpace(buf.String()), "\n")
}

func near(a, b float64) bool {
	d := a - b
	return d < 1e-6 && d > -1e-6
}
