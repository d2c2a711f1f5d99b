package pose

import (
	"context"
	"sync"
	"time"

	"rom-stream-go/internal/monitoring"
)

// Pinger is anything that can answer a health check.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Status is the last observed worker health.
type Status struct {
	State     string    `json:"state"`
	Error     string    `json:"error,omitempty"`
	CheckedAt time.Time `json:"checked_at"`
}

// Monitor polls a Pinger at a fixed interval and keeps the latest Status.
type Monitor struct {
	pinger   Pinger
	interval time.Duration

	mu     sync.RWMutex
	status Status
}

func NewMonitor(p Pinger, interval time.Duration) *Monitor {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Monitor{pinger: p, interval: interval, status: Status{State: "unknown"}}
}

// Run polls until ctx is done. The first check happens immediately.
func (m *Monitor) Run(ctx context.Context) {
	if m.pinger == nil {
		return
	}
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		m.check(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (m *Monitor) check(ctx context.Context) {
	checkCtx, cancel := context.WithTimeout(ctx, m.interval)
	defer cancel()

	st := Status{State: "ok", CheckedAt: time.Now().UTC()}
	if err := m.pinger.Ping(checkCtx); err != nil {
		st.State = "error"
		st.Error = err.Error()
	}

	m.mu.Lock()
	prev := m.status.State
	m.status = st
	m.mu.Unlock()
	if prev != st.State {
		monitoring.Logf("pose worker status %s -> %s", prev, st.State)
	}
}

func (m *Monitor) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}
