package vault

import (
	"context"
	"fmt"
	"sync"

	"github.com/R3E-Network/yield_ledger/internal/app/system"
	"github.com/R3E-Network/yield_ledger/pkg/logger"
	"github.com/robfig/cron/v3"
)

// DefaultAuditSchedule runs the audit every minute.
const DefaultAuditSchedule = "0 * * * * *"

// ViolationRecorder counts failed audits.
type ViolationRecorder interface {
	IncInvariantViolation()
}

// Auditor periodically re-checks the committed state invariants and the
// allocation bound. A violation means the state was corrupted outside the
// operation pipeline; it is logged and counted, never repaired.
type Auditor struct {
	service  *Service
	schedule string
	recorder ViolationRecorder
	log      *logger.Logger

	mu      sync.Mutex
	cron    *cron.Cron
	running bool
}

var _ system.Service = (*Auditor)(nil)

// NewAuditor creates an auditor. An empty schedule uses DefaultAuditSchedule;
// the schedule has a seconds field.
func NewAuditor(service *Service, schedule string, recorder ViolationRecorder, log *logger.Logger) *Auditor {
	if schedule == "" {
		schedule = DefaultAuditSchedule
	}
	if log == nil {
		log = logger.NewDefault("vault-auditor")
	}
	return &Auditor{service: service, schedule: schedule, recorder: recorder, log: log}
}

func (a *Auditor) Name() string { return "vault-auditor" }

func (a *Auditor) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.running {
		return nil
	}

	c := cron.New(cron.WithSeconds())
	if _, err := c.AddFunc(a.schedule, func() { a.RunOnce() }); err != nil {
		return fmt.Errorf("register audit schedule %q: %w", a.schedule, err)
	}
	c.Start()
	a.cron = c
	a.running = true

	a.log.WithField("schedule", a.schedule).Info("invariant auditor started")
	return nil
}

func (a *Auditor) Stop(ctx context.Context) error {
	a.mu.Lock()
	if !a.running {
		a.mu.Unlock()
		return nil
	}
	c := a.cron
	a.cron = nil
	a.running = false
	a.mu.Unlock()

	done := c.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		return ctx.Err()
	}
	a.log.Info("invariant auditor stopped")
	return nil
}

// RunOnce retries any pending state sync, then performs a single audit and
// returns the violation, if any.
func (a *Auditor) RunOnce() error {
	if err := a.service.Sync(context.Background()); err != nil {
		a.log.WithError(err).Error("ledger state sync failed")
	}
	err := a.service.Audit()
	if err == nil {
		return nil
	}
	if a.recorder != nil {
		a.recorder.IncInvariantViolation()
	}
	a.log.WithError(err).Error("ledger invariant violated")
	return err
}
