package system

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// Status is the lifecycle status of a managed service.
type Status int32

const (
	StatusRegistered Status = iota
	StatusStarting
	StatusRunning
	StatusStopping
	StatusStopped
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusRegistered:
		return "registered"
	case StatusStarting:
		return "starting"
	case StatusRunning:
		return "running"
	case StatusStopping:
		return "stopping"
	case StatusStopped:
		return "stopped"
	case StatusFailed:
		return "failed"
	default:
		return fmt.Sprintf("status(%d)", s)
	}
}

// MarshalText renders the status by name in health reports.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

var validTransitions = map[Status][]Status{
	StatusRegistered: {StatusStarting},
	StatusStarting:   {StatusRunning, StatusFailed},
	StatusRunning:    {StatusStopping},
	StatusStopping:   {StatusStopped, StatusFailed},
	StatusStopped:    {StatusStarting},
	StatusFailed:     {StatusStarting, StatusStopping},
}

func canTransition(from, to Status) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// TransitionError reports an invalid lifecycle transition.
type TransitionError struct {
	Service  string
	From, To Status
}

func (e TransitionError) Error() string {
	return fmt.Sprintf("service %s: invalid state transition: %s -> %s", e.Service, e.From, e.To)
}

// NoopService is a placeholder with no background work. It lets components
// without goroutines appear in health reports.
type NoopService struct {
	ServiceName string
}

func (n NoopService) Name() string                { return n.ServiceName }
func (n NoopService) Start(context.Context) error { return nil }
func (n NoopService) Stop(context.Context) error  { return nil }

type entry struct {
	svc    Service
	status Status
	err    error
}

// Manager starts services in registration order and stops them in reverse.
type Manager struct {
	mu      sync.Mutex
	entries []*entry
	names   map[string]struct{}
}

// NewManager creates an empty manager.
func NewManager() *Manager {
	return &Manager{names: make(map[string]struct{})}
}

// Register adds a service. Names must be unique.
func (m *Manager) Register(svc Service) error {
	if svc == nil {
		return errors.New("nil service")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	name := svc.Name()
	if name == "" {
		return errors.New("service name is required")
	}
	if _, dup := m.names[name]; dup {
		return fmt.Errorf("service %s already registered", name)
	}
	m.names[name] = struct{}{}
	m.entries = append(m.entries, &entry{svc: svc, status: StatusRegistered})
	return nil
}

// Start starts every service. When one fails, the services already started
// are stopped again and the failure is returned.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, e := range m.entries {
		if e.status == StatusRunning {
			continue
		}
		if err := m.transition(e, StatusStarting); err != nil {
			return err
		}
		if err := e.svc.Start(ctx); err != nil {
			e.status, e.err = StatusFailed, err
			m.stopRange(ctx, i-1)
			return fmt.Errorf("start %s: %w", e.svc.Name(), err)
		}
		e.status, e.err = StatusRunning, nil
	}
	return nil
}

// Stop stops running services in reverse order and joins their errors.
func (m *Manager) Stop(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stopRange(ctx, len(m.entries)-1)
}

func (m *Manager) stopRange(ctx context.Context, last int) error {
	var errs []error
	for i := last; i >= 0; i-- {
		e := m.entries[i]
		if e.status != StatusRunning {
			continue
		}
		e.status = StatusStopping
		if err := e.svc.Stop(ctx); err != nil {
			e.status, e.err = StatusFailed, err
			errs = append(errs, fmt.Errorf("stop %s: %w", e.svc.Name(), err))
			continue
		}
		e.status = StatusStopped
	}
	return errors.Join(errs...)
}

func (m *Manager) transition(e *entry, to Status) error {
	if !canTransition(e.status, to) {
		return TransitionError{Service: e.svc.Name(), From: e.status, To: to}
	}
	e.status = to
	return nil
}

// Health describes one managed service.
type Health struct {
	Name   string `json:"name"`
	Status Status `json:"status"`
	Error  string `json:"error,omitempty"`
}

// Health reports every service in registration order.
func (m *Manager) Health() []Health {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Health, 0, len(m.entries))
	for _, e := range m.entries {
		h := Health{Name: e.svc.Name(), Status: e.status}
		if e.err != nil {
			h.Error = e.err.Error()
		}
		out = append(out, h)
	}
	return out
}

// Healthy reports whether every service is running.
func (m *Manager) Healthy() bool {
	for _, h := range m.Health() {
		if h.Status != StatusRunning {
			return false
		}
	}
	return true
}
