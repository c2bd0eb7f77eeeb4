package service

import (
	"log"
	"sync"
	"time"

	"spray-machine-monitoring/internal/clock"
)

// WatchdogState is where a machine sits in the silence detector.
type WatchdogState int

const (
	// WatchdogIdle: no timer pending.
	WatchdogIdle WatchdogState = iota
	// WatchdogArmed: waiting for the next message before the timeout.
	WatchdogArmed
	// WatchdogErroring: the machine went silent; error ticks are accruing.
	WatchdogErroring
)

func (s WatchdogState) String() string {
	switch s {
	case WatchdogArmed:
		return "armed"
	case WatchdogErroring:
		return "erroring"
	default:
		return "idle"
	}
}

// WatchdogHandler receives watchdog firings. Both methods run while the
// machine's lock is held and report whether error ticks should continue.
type WatchdogHandler interface {
	OnTimeout(machineID string) bool
	OnErrorTick(machineID string) bool
}

type watchdogEntry struct {
	state      WatchdogState
	timer      *clock.Timer
	generation uint64
}

// WatchdogRegistry keeps at most one pending timer per machine.
//
// Every re-arm bumps the machine's generation; a firing whose generation
// is stale by the time it holds the machine lock is discarded, so a
// message that races a timeout always wins.
type WatchdogRegistry struct {
	clock        clock.Clock
	locks        *MachineLocks
	timeout      time.Duration
	tickInterval time.Duration

	mu      sync.Mutex
	handler WatchdogHandler
	entries map[string]*watchdogEntry
	closed  bool
}

func NewWatchdogRegistry(clk clock.Clock, locks *MachineLocks, timeout, tickInterval time.Duration) *WatchdogRegistry {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if tickInterval <= 0 {
		tickInterval = 10 * time.Second
	}
	return &WatchdogRegistry{
		clock:        clk,
		locks:        locks,
		timeout:      timeout,
		tickInterval: tickInterval,
		entries:      make(map[string]*watchdogEntry),
	}
}

// Bind sets the handler invoked on firings. Must be called before the
// first Reset.
func (r *WatchdogRegistry) Bind(h WatchdogHandler) {
	r.mu.Lock()
	r.handler = h
	r.mu.Unlock()
}

// Reset cancels whatever is pending for the machine and arms a fresh
// timeout. Callers hold the machine's lock.
func (r *WatchdogRegistry) Reset(machineID string) {
	r.arm(machineID, WatchdogArmed, r.timeout)
}

// StartErrorTracking cancels whatever is pending and starts periodic
// error ticks. Callers hold the machine's lock.
func (r *WatchdogRegistry) StartErrorTracking(machineID string) {
	r.arm(machineID, WatchdogErroring, r.tickInterval)
}

// Stop cancels the machine's timer and returns it to idle.
func (r *WatchdogRegistry) Stop(machineID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[machineID]
	if !ok {
		return
	}
	e.timer.Stop()
	e.timer = nil
	e.generation++
	e.state = WatchdogIdle
}

// StopAll cancels every timer. Later Reset calls are ignored.
func (r *WatchdogRegistry) StopAll() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.closed = true
	for _, e := range r.entries {
		e.timer.Stop()
		e.timer = nil
		e.generation++
		e.state = WatchdogIdle
	}
	log.Printf("[Watchdog] Stopped (%d machines)", len(r.entries))
}

// State returns the machine's current watchdog state.
func (r *WatchdogRegistry) State(machineID string) WatchdogState {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.entries[machineID]; ok {
		return e.state
	}
	return WatchdogIdle
}

// Len counts machines with a pending timer.
func (r *WatchdogRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, e := range r.entries {
		if e.state != WatchdogIdle {
			n++
		}
	}
	return n
}

func (r *WatchdogRegistry) arm(machineID string, state WatchdogState, d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return
	}
	e, ok := r.entries[machineID]
	if !ok {
		e = &watchdogEntry{}
		r.entries[machineID] = e
	}
	r.schedule(machineID, e, state, d)
}

// schedule replaces e's timer. r.mu must be held.
func (r *WatchdogRegistry) schedule(machineID string, e *watchdogEntry, state WatchdogState, d time.Duration) {
	e.timer.Stop()
	e.generation++
	generation := e.generation
	e.state = state
	e.timer = r.clock.AfterFunc(d, func() {
		r.fire(machineID, generation)
	})
}

func (r *WatchdogRegistry) fire(machineID string, generation uint64) {
	unlock := r.locks.Lock(machineID)
	defer unlock()

	r.mu.Lock()
	e, ok := r.entries[machineID]
	if r.closed || !ok || e.generation != generation {
		r.mu.Unlock()
		return
	}
	state := e.state
	handler := r.handler
	r.mu.Unlock()

	keep := true
	if handler != nil {
		if state == WatchdogArmed {
			keep = handler.OnTimeout(machineID)
		} else {
			keep = handler.OnErrorTick(machineID)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Stop or StopAll may have run while the handler was busy.
	if r.closed || e.generation != generation {
		return
	}
	if !keep {
		e.timer = nil
		e.state = WatchdogIdle
		return
	}
	r.schedule(machineID, e, WatchdogErroring, r.tickInterval)
}
