package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"watchpost/internal/models"
	"watchpost/internal/probe"
	"watchpost/internal/store"
)

// Notifier is the alerting surface the scheduler talks to. Calls are
// fire-and-forget: implementations log their own failures and never
// report them back.
type Notifier interface {
	// CertWarnDays resolves the effective certificate warning
	// threshold for a user.
	CertWarnDays(ctx context.Context, userID int) int

	NotifyAPIDown(ctx context.Context, userID int, targetName, targetURL, errMsg string)
	NotifyCertExpiring(ctx context.Context, userID int, targetName, targetURL string, notAfter time.Time, daysRemaining int)
}

// Broadcaster pushes persisted probe results to connected clients.
type Broadcaster interface {
	Broadcast(event string, payload interface{}) error
}

// Scheduler owns one periodic timer per active target and runs the
// matching probe on every tick.
type Scheduler struct {
	store    store.Storer
	notifier Notifier
	logger   *zap.Logger

	probes      map[string]probe.Probe
	limiter     *rate.Limiter
	hub         Broadcaster
	tickUnit    time.Duration
	tickTimeout time.Duration
	baseCtx     context.Context

	mu   sync.Mutex
	jobs map[int]*targetJob
}

// targetJob is one live schedule entry.
type targetJob struct {
	target   models.Target
	ticker   *time.Ticker
	stop     chan struct{}
	inFlight atomic.Bool
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithTickUnit overrides the interval unit (one minute in production).
func WithTickUnit(d time.Duration) Option {
	return func(s *Scheduler) { s.tickUnit = d }
}

// WithTickTimeout bounds a single tick end to end.
func WithTickTimeout(d time.Duration) Option {
	return func(s *Scheduler) { s.tickTimeout = d }
}

// WithRateLimiter caps the process-wide outbound probe rate.
func WithRateLimiter(l *rate.Limiter) Option {
	return func(s *Scheduler) { s.limiter = l }
}

// WithBroadcaster attaches a result hub.
func WithBroadcaster(b Broadcaster) Option {
	return func(s *Scheduler) { s.hub = b }
}

// WithBaseContext sets the context ticks derive from.
func WithBaseContext(ctx context.Context) Option {
	return func(s *Scheduler) { s.baseCtx = ctx }
}

// New creates a scheduler. One probe per target kind must be supplied.
func New(st store.Storer, notifier Notifier, logger *zap.Logger, probes []probe.Probe, opts ...Option) *Scheduler {
	s := &Scheduler{
		store:       st,
		notifier:    notifier,
		logger:      logger,
		probes:      make(map[string]probe.Probe, len(probes)),
		tickUnit:    time.Minute,
		tickTimeout: 30 * time.Second,
		baseCtx:     context.Background(),
		jobs:        make(map[int]*targetJob),
	}
	for _, p := range probes {
		s.probes[p.Kind()] = p
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start clears any existing schedule entries, loads every active
// target and schedules each. A failed initial load is logged rather
// than fatal: monitoring comes up empty and the CRUD layer can still
// schedule targets afterwards.
func (s *Scheduler) Start(ctx context.Context) {
	s.StopAll()

	targets, err := s.store.ListActiveTargets(ctx)
	if err != nil {
		s.logger.Error("failed to load active targets, starting with none", zap.Error(err))
		return
	}

	s.logger.Info("starting monitoring", zap.Int("targets", len(targets)))
	for i := range targets {
		s.Schedule(&targets[i])
	}
}

// Schedule registers a periodic timer for the target and runs one
// immediate tick so a fresh target gets a status without waiting a
// full interval. Re-scheduling an already scheduled target replaces
// its timer. Inactive targets are ignored.
func (s *Scheduler) Schedule(target *models.Target) {
	s.Stop(target.ID)

	if !target.Active {
		return
	}

	interval := target.Interval
	if interval < 1 {
		interval = 1
	}

	job := &targetJob{
		target: *target,
		ticker: time.NewTicker(time.Duration(interval) * s.tickUnit),
		stop:   make(chan struct{}),
	}

	s.mu.Lock()
	s.jobs[target.ID] = job
	s.mu.Unlock()

	// Immediate tick, synchronous: callers observe a populated status
	// row as soon as Schedule returns.
	s.runTick(job)

	go func() {
		for {
			select {
			case <-job.ticker.C:
				go s.runTick(job)
			case <-job.stop:
				job.ticker.Stop()
				return
			}
		}
	}()

	s.logger.Info("scheduled target",
		zap.Int("target_id", target.ID),
		zap.String("name", target.Name),
		zap.String("kind", target.Kind),
		zap.Int("interval_min", interval))
}

// Stop cancels the recurrence for a target. An in-flight tick runs to
// completion and persists its result. Stopping an unknown id is a
// no-op.
func (s *Scheduler) Stop(targetID int) {
	s.mu.Lock()
	job, ok := s.jobs[targetID]
	if ok {
		delete(s.jobs, targetID)
	}
	s.mu.Unlock()

	if ok {
		close(job.stop)
		s.logger.Info("stopped target", zap.Int("target_id", targetID))
	}
}

// Restart replaces a target's schedule entry after its definition
// changed. A flip to inactive removes the entry entirely.
func (s *Scheduler) Restart(target *models.Target) {
	s.Stop(target.ID)
	s.Schedule(target)
}

// StopAll tears down every schedule entry; used at graceful shutdown.
func (s *Scheduler) StopAll() {
	s.mu.Lock()
	jobs := s.jobs
	s.jobs = make(map[int]*targetJob)
	s.mu.Unlock()

	for _, job := range jobs {
		close(job.stop)
	}
	if len(jobs) > 0 {
		s.logger.Info("stopped all targets", zap.Int("count", len(jobs)))
	}
}

// Scheduled reports whether a target currently has a live entry.
func (s *Scheduler) Scheduled(targetID int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.jobs[targetID]
	return ok
}

// runTick executes one probe for one target. The tick boundary is a
// hard failure-containment boundary: nothing escapes, and an
// unexpected failure still leaves an observable down status behind.
func (s *Scheduler) runTick(job *targetJob) {
	// No-overlap contract: if the previous tick is still running when
	// the next fires, skip rather than race two writers on one row.
	if !job.inFlight.CompareAndSwap(false, true) {
		s.logger.Warn("tick still in flight, skipping",
			zap.Int("target_id", job.target.ID))
		return
	}
	defer job.inFlight.Store(false)

	ctx, cancel := context.WithTimeout(s.baseCtx, s.tickTimeout)
	defer cancel()

	target := job.target

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("tick panicked",
				zap.Int("target_id", target.ID),
				zap.Any("panic", r))
			msg := fmt.Sprintf("unexpected failure during check: %v", r)
			err := s.store.UpdateStatus(ctx, target.ID, store.StatusUpdate{
				Outcome:   models.OutcomeDown,
				CheckedAt: time.Now().UTC(),
				Error:     &msg,
			})
			if err != nil {
				s.logger.Error("failed to persist panic status",
					zap.Int("target_id", target.ID), zap.Error(err))
			}
		}
	}()

	p, ok := s.probes[target.Kind]
	if !ok {
		s.logger.Error("no probe for target kind",
			zap.Int("target_id", target.ID), zap.String("kind", target.Kind))
		msg := fmt.Sprintf("unknown target kind: %s", target.Kind)
		if err := s.store.UpdateStatus(ctx, target.ID, store.StatusUpdate{
			Outcome:   models.OutcomeDown,
			CheckedAt: time.Now().UTC(),
			Error:     &msg,
		}); err != nil {
			s.logger.Error("failed to persist status", zap.Int("target_id", target.ID), zap.Error(err))
		}
		return
	}

	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			s.logger.Warn("rate limiter wait aborted",
				zap.Int("target_id", target.ID), zap.Error(err))
			return
		}
	}

	in := probe.Input{Target: &target}

	if target.Kind == models.KindAPI && target.ProxyID != nil {
		proxy, err := s.store.GetProxy(ctx, *target.ProxyID)
		switch {
		case errors.Is(err, store.ErrNotFound):
			s.logger.Warn("proxy not found, probing directly",
				zap.Int("target_id", target.ID), zap.Int("proxy_id", *target.ProxyID))
		case err != nil:
			s.logger.Error("failed to load proxy, probing directly",
				zap.Int("target_id", target.ID), zap.Error(err))
		default:
			in.Proxy = proxy
		}
	}

	if target.Kind == models.KindDomain {
		in.CertWarnDays = s.notifier.CertWarnDays(ctx, target.UserID)
	}

	result := p.Check(ctx, in)
	s.persist(ctx, &target, result)

	if s.hub != nil {
		if err := s.hub.Broadcast("probe_result", map[string]interface{}{
			"target_id": target.ID,
			"outcome":   result.Outcome,
			"latency":   result.LatencyMS,
			"state":     result.CertState,
			"time":      result.CheckedAt,
		}); err != nil {
			s.logger.Warn("failed to broadcast result",
				zap.Int("target_id", target.ID), zap.Error(err))
		}
	}

	if s.shouldAlert(&target, result) {
		// Fire-and-forget: alert latency and failure never touch
		// status persistence.
		go s.dispatchAlert(target, result)
	}
}

// persist writes the tick result to the target row and appends one
// monitoring log entry. A failed write is logged and left for the next
// tick; scheduler state is unaffected.
func (s *Scheduler) persist(ctx context.Context, target *models.Target, result probe.Result) {
	var err error
	if target.Kind == models.KindDomain {
		err = s.store.UpdateCertificate(ctx, target.ID, store.CertificateUpdate{
			State:         result.CertState,
			DaysRemaining: result.CertDaysRemaining,
			Outcome:       result.Outcome,
			CheckedAt:     result.CheckedAt,
			Error:         result.Error,
		})
	} else {
		err = s.store.UpdateStatus(ctx, target.ID, store.StatusUpdate{
			Outcome:   result.Outcome,
			LatencyMS: result.LatencyMS,
			CheckedAt: result.CheckedAt,
			Error:     result.Error,
		})
	}
	if err != nil {
		s.logger.Error("failed to persist probe result",
			zap.Int("target_id", target.ID), zap.Error(err))
	}

	if err := s.store.AppendLog(ctx, target.ID, store.LogEntry{
		Outcome:    result.Outcome,
		LatencyMS:  result.LatencyMS,
		StatusCode: result.StatusCode,
		Error:      result.Error,
		Time:       result.CheckedAt,
	}); err != nil {
		s.logger.Error("failed to append monitoring log",
			zap.Int("target_id", target.ID), zap.Error(err))
	}
}

// shouldAlert applies the alert-trigger policy: API targets alert on
// down, domain targets on an expired or warning certificate.
func (s *Scheduler) shouldAlert(target *models.Target, result probe.Result) bool {
	switch target.Kind {
	case models.KindAPI:
		return result.Outcome == models.OutcomeDown
	case models.KindDomain:
		if result.CertState == models.CertExpired {
			return true
		}
		return result.CertState == models.CertWarning && result.CertDaysRemaining != nil
	default:
		return false
	}
}

func (s *Scheduler) dispatchAlert(target models.Target, result probe.Result) {
	ctx, cancel := context.WithTimeout(s.baseCtx, s.tickTimeout)
	defer cancel()

	switch target.Kind {
	case models.KindAPI:
		errMsg := ""
		if result.Error != nil {
			errMsg = *result.Error
		}
		s.notifier.NotifyAPIDown(ctx, target.UserID, target.Name, target.URL, errMsg)
	case models.KindDomain:
		days := 0
		if result.CertDaysRemaining != nil {
			days = *result.CertDaysRemaining
		}
		notAfter := time.Time{}
		if result.CertNotAfter != nil {
			notAfter = *result.CertNotAfter
		}
		s.notifier.NotifyCertExpiring(ctx, target.UserID, target.Name, target.URL, notAfter, days)
	}
}
