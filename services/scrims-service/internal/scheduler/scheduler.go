package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/scrimx/scrims/common/logger"
	"github.com/scrimx/scrims/common/models"
	"github.com/scrimx/scrims/services/scrims-service/internal/metrics"
	"github.com/scrimx/scrims/services/scrims-service/internal/service"
)

const (
	jobDetails   = "details"
	jobOpen      = "open"
	jobExpiry    = "expiry_sweep"
	jobReminders = "reminder_sweep"
	jobReset     = "daily_reset"

	defaultFireTimeout = 2 * time.Minute
)

type Timer interface {
	Stop() bool
}

type afterFunc func(d time.Duration, f func()) Timer

func realAfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

type Config struct {
	Location              *time.Location
	ResetTime             service.Clock
	DetailsLead           time.Duration
	ExpirySweepInterval   time.Duration
	ReminderSweepInterval time.Duration
}

type tenantTimers struct {
	openTime string
	details  Timer
	open     Timer
	// gen invalidates re-arms scheduled by an older registration.
	gen int
}

// Scheduler owns every timer of the process: two daily timers per scrims plus the global sweeps.
// Nothing here is persisted; Start rebuilds the registry from stored scrims.
type Scheduler struct {
	jobs    Jobs
	cfg     Config
	metrics *metrics.Metrics
	logger  *logger.Logger

	after afterFunc
	now   func() time.Time

	mu      sync.Mutex
	tenants map[string]*tenantTimers
	global  map[string]Timer
	busy    map[string]bool
	started bool
	stopped bool

	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	startOnce sync.Once
	stopOnce  sync.Once
}

func NewScheduler(jobs Jobs, cfg Config, m *metrics.Metrics, log *logger.Logger) *Scheduler {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.DetailsLead <= 0 {
		cfg.DetailsLead = 5 * time.Minute
	}
	if cfg.ExpirySweepInterval <= 0 {
		cfg.ExpirySweepInterval = 5 * time.Minute
	}
	if cfg.ReminderSweepInterval <= 0 {
		cfg.ReminderSweepInterval = 5 * time.Minute
	}
	if m == nil {
		m = metrics.Nop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		jobs:    jobs,
		cfg:     cfg,
		metrics: m,
		logger:  log.With("component", "scheduler"),
		after:   realAfterFunc,
		now:     time.Now,
		tenants: make(map[string]*tenantTimers),
		global:  make(map[string]Timer),
		busy:    make(map[string]bool),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start restores tenant timers from storage and arms the global sweeps. Later calls do nothing.
func (s *Scheduler) Start(ctx context.Context) error {
	var err error
	s.startOnce.Do(func() {
		var all []*models.Scrims
		all, err = s.jobs.ListScrims(ctx)
		if err != nil {
			err = fmt.Errorf("restore scrims timers: %w", err)
			return
		}

		s.mu.Lock()
		defer s.mu.Unlock()

		s.started = true
		for _, sc := range all {
			s.registerLocked(sc.ScrimsID, sc.OpenTime)
		}

		s.armEveryLocked(jobExpiry, s.cfg.ExpirySweepInterval, s.jobs.SweepExpired)
		s.armEveryLocked(jobReminders, s.cfg.ReminderSweepInterval, s.jobs.DispatchReminders)
		s.armResetLocked()

		s.logger.Info("Scheduler started",
			"tenants", len(s.tenants),
			"reset_time", s.cfg.ResetTime.String(),
			"expiry_interval", s.cfg.ExpirySweepInterval,
			"reminder_interval", s.cfg.ReminderSweepInterval,
		)
	})
	return err
}

// Stop disarms every timer and waits for running fires to return.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		s.stopped = true
		for id, t := range s.tenants {
			stopTenant(t)
			delete(s.tenants, id)
		}
		for name, t := range s.global {
			t.Stop()
			delete(s.global, name)
		}
		s.metrics.ArmedTimers.Set(0)
		s.mu.Unlock()

		s.cancel()
		s.wg.Wait()
		s.logger.Info("Scheduler stopped")
	})
}

// Register arms the details and open timers for a scrims. Registering the same open time again is a no-op.
func (s *Scheduler) Register(sc *models.Scrims) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.registerLocked(sc.ScrimsID, sc.OpenTime)
}

func (s *Scheduler) Unregister(scrimsID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t, ok := s.tenants[scrimsID]; ok {
		stopTenant(t)
		delete(s.tenants, scrimsID)
		s.updateGaugeLocked()
		s.logger.Info("Scrims timers disarmed", "scrims_id", scrimsID)
	}
}

// Armed reports whether a scrims currently has timers.
func (s *Scheduler) Armed(scrimsID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.tenants[scrimsID]
	return ok
}

func (s *Scheduler) registerLocked(scrimsID, openTime string) {
	if s.stopped {
		return
	}

	existing, ok := s.tenants[scrimsID]
	if ok && existing.openTime == openTime && (existing.open != nil || !s.started) {
		return
	}

	open, err := service.ParseClock(openTime)
	if err != nil {
		s.logger.Error("Cannot schedule scrims with invalid open time", "scrims_id", scrimsID, "open_time", openTime, "error", err)
		return
	}

	gen := 1
	if ok {
		stopTenant(existing)
		gen = existing.gen + 1
	}
	t := &tenantTimers{openTime: openTime, gen: gen}
	s.tenants[scrimsID] = t

	if s.started {
		details := open.Add(-s.cfg.DetailsLead)
		t.details = s.armDailyLocked(scrimsID, gen, jobDetails, details, s.jobs.SendDetails)
		t.open = s.armDailyLocked(scrimsID, gen, jobOpen, open, s.jobs.OpenRegistration)
		s.logger.Info("Scrims timers armed", "scrims_id", scrimsID, "details_at", details.String(), "open_at", open.String())
	}
	s.updateGaugeLocked()
}

// armDailyLocked arms one per-tenant timer at the next occurrence of clock strictly after now.
// When it fires it re-arms itself for the following day before running the job.
func (s *Scheduler) armDailyLocked(
	scrimsID string,
	gen int,
	job string,
	clock service.Clock,
	fn func(ctx context.Context, scrimsID string) error,
) Timer {
	now := s.now()
	next := clock.Next(now, s.cfg.Location)
	if !next.After(now) {
		next = clock.Next(now.Add(time.Minute), s.cfg.Location)
	}

	return s.after(next.Sub(now), func() {
		s.mu.Lock()
		t, ok := s.tenants[scrimsID]
		if !ok || t.gen != gen || s.stopped {
			s.mu.Unlock()
			return
		}
		rearmed := s.armDailyLocked(scrimsID, gen, job, clock, fn)
		if job == jobDetails {
			t.details = rearmed
		} else {
			t.open = rearmed
		}
		s.mu.Unlock()

		s.fire(job, scrimsID, func(ctx context.Context) error {
			return fn(ctx, scrimsID)
		})
	})
}

func (s *Scheduler) armEveryLocked(job string, interval time.Duration, fn func(ctx context.Context) error) {
	s.global[job] = s.after(interval, func() {
		s.mu.Lock()
		if s.stopped {
			s.mu.Unlock()
			return
		}
		s.armEveryLocked(job, interval, fn)
		s.mu.Unlock()

		s.fire(job, "", fn)
	})
}

func (s *Scheduler) armResetLocked() {
	now := s.now()
	next := s.cfg.ResetTime.Next(now, s.cfg.Location)
	if !next.After(now) {
		next = s.cfg.ResetTime.Next(now.Add(time.Minute), s.cfg.Location)
	}
	s.logger.Info("Daily reset scheduled", "at", next.Format(time.RFC3339), "in", next.Sub(now).Round(time.Second))

	s.global[jobReset] = s.after(next.Sub(now), func() {
		s.mu.Lock()
		if s.stopped {
			s.mu.Unlock()
			return
		}
		s.armResetLocked()
		s.mu.Unlock()

		s.fire(jobReset, "", s.jobs.DailyReset)
	})
}

// fire runs a job on its own goroutine. A second fire of a global job is skipped while the first runs.
func (s *Scheduler) fire(job, scrimsID string, fn func(ctx context.Context) error) {
	key := job
	if scrimsID != "" {
		key = job + ":" + scrimsID
	}

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	if s.busy[key] {
		s.mu.Unlock()
		s.metrics.SchedulerFires.WithLabelValues(job, "skipped").Inc()
		s.logger.Warn("Previous run still in progress, skipping", "job", job, "scrims_id", scrimsID)
		return
	}
	s.busy[key] = true
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		defer func() {
			s.mu.Lock()
			delete(s.busy, key)
			s.mu.Unlock()
		}()
		defer func() {
			if r := recover(); r != nil {
				s.metrics.PanicsRecovered.Inc()
				s.metrics.SchedulerFires.WithLabelValues(job, "panic").Inc()
				s.logger.Error("Scheduler job panicked", "job", job, "scrims_id", scrimsID, "panic", r)
			}
		}()

		ctx, cancel := context.WithTimeout(s.ctx, defaultFireTimeout)
		defer cancel()

		start := s.now()
		if err := fn(ctx); err != nil {
			s.metrics.SchedulerFires.WithLabelValues(job, "error").Inc()
			s.logger.Error("Scheduler job failed", "job", job, "scrims_id", scrimsID, "error", err)
			return
		}
		s.metrics.SchedulerFires.WithLabelValues(job, "ok").Inc()
		s.logger.Debug("Scheduler job finished", "job", job, "scrims_id", scrimsID, "took", s.now().Sub(start))
	}()
}

func (s *Scheduler) updateGaugeLocked() {
	armed := 0
	for _, t := range s.tenants {
		if t.details != nil {
			armed++
		}
		if t.open != nil {
			armed++
		}
	}
	s.metrics.ArmedTimers.Set(float64(armed))
}

func stopTenant(t *tenantTimers) {
	if t.details != nil {
		t.details.Stop()
	}
	if t.open != nil {
		t.open.Stop()
	}
}
