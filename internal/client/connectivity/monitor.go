// Package connectivity tracks whether the submission endpoint is reachable.
//
// A Monitor runs a Probe on a fixed interval and keeps a binary
// online/offline state. The first check only establishes the state; every
// later flip is delivered to subscribers as an edge.
package connectivity

import (
	"context"
	"sync"
	"time"

	"github.com/dmitrijs2005/formsync/internal/logging"
)

type Mode string

const (
	ModeUnknown Mode = "unknown"
	ModeOffline Mode = "offline"
	ModeOnline  Mode = "online"
)

const defaultProbeTimeout = 3 * time.Second

// Probe reports reachability; a nil error means reachable.
type Probe interface {
	Ping(ctx context.Context) error
}

type Monitor struct {
	probe    Probe
	interval time.Duration
	timeout  time.Duration
	log      logging.Logger

	mu   sync.RWMutex
	mode Mode
	subs []func(online bool)
}

func NewMonitor(probe Probe, interval time.Duration, log logging.Logger) *Monitor {
	return &Monitor{
		probe:    probe,
		interval: interval,
		timeout:  defaultProbeTimeout,
		log:      log.With("module", "connectivity"),
		mode:     ModeUnknown,
	}
}

// Online reports the last known state. Unknown counts as offline.
func (m *Monitor) Online() bool {
	return m.Mode() == ModeOnline
}

func (m *Monitor) Mode() Mode {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.mode
}

// OnChange registers fn for "became online" (true) and "became offline"
// (false) edges. Subscribers run synchronously on the checking goroutine.
func (m *Monitor) OnChange(fn func(online bool)) {
	m.mu.Lock()
	m.subs = append(m.subs, fn)
	m.mu.Unlock()
}

// Check probes once and updates the state. It returns the new state.
func (m *Monitor) Check(ctx context.Context) bool {
	pctx, cancel := context.WithTimeout(ctx, m.timeout)
	err := m.probe.Ping(pctx)
	cancel()

	if err != nil {
		m.log.Debug(ctx, "probe failed", "error", err)
		m.setMode(ctx, ModeOffline)
		return false
	}
	m.setMode(ctx, ModeOnline)
	return true
}

// Run checks immediately and then on every tick until ctx is done.
func (m *Monitor) Run(ctx context.Context) {
	m.Check(ctx)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.Check(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (m *Monitor) setMode(ctx context.Context, mode Mode) {
	m.mu.Lock()
	prev := m.mode
	if prev == mode {
		m.mu.Unlock()
		return
	}
	m.mode = mode
	subs := append([]func(bool){}, m.subs...)
	m.mu.Unlock()

	if prev == ModeUnknown {
		m.log.Info(ctx, "initial connectivity", "mode", mode)
		return
	}

	m.log.Info(ctx, "switched mode", "from", prev, "to", mode)
	for _, fn := range subs {
		fn(mode == ModeOnline)
	}
}
