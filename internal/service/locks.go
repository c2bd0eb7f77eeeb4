package service

import "sync"

// MachineLocks serializes all record and watchdog mutation for a single
// machine. Ingestion, watchdog firings and rotation take the same lock,
// so they never interleave a read-modify-write on one machine.
type MachineLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewMachineLocks() *MachineLocks {
	return &MachineLocks{locks: make(map[string]*sync.Mutex)}
}

// Lock blocks until the machine's lock is held and returns its release.
func (l *MachineLocks) Lock(machineID string) func() {
	l.mu.Lock()
	m, ok := l.locks[machineID]
	if !ok {
		m = &sync.Mutex{}
		l.locks[machineID] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock
}
