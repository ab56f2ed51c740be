package services

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/RobNhz/zaptec-invoice-app/database"
)

// AutoBillingScheduler syncs and bills last month once the configured day
// of the month has been reached.
type AutoBillingScheduler struct {
	store    *database.Store
	sync     *SyncService
	billing  *BillingService
	lock     RunLock
	clock    Clock
	loc      *time.Location
	day      int
	interval time.Duration
	logger   *zap.Logger
	stopChan chan struct{}

	mu sync.Mutex
	// lastPeriod is the start of the last period attempted by this process.
	lastPeriod string
}

type AutoBillingStatus struct {
	BillingDay  int    `json:"billing_day"`
	PeriodStart string `json:"period_start"`
	PeriodEnd   string `json:"period_end"`
	Due         bool   `json:"due"`
	Invoiced    bool   `json:"invoiced"`
	LastAttempt string `json:"last_attempt,omitempty"`
}

func NewAutoBillingScheduler(store *database.Store, sync *SyncService, billing *BillingService, lock RunLock, day int, loc *time.Location, logger *zap.Logger) *AutoBillingScheduler {
	return &AutoBillingScheduler{
		store:    store,
		sync:     sync,
		billing:  billing,
		lock:     lock,
		clock:    realClock{},
		loc:      loc,
		day:      day,
		interval: time.Hour,
		logger:   logger,
		stopChan: make(chan struct{}),
	}
}

// Start blocks until Stop is called.
func (s *AutoBillingScheduler) Start(ctx context.Context) {
	s.logger.Info("auto billing scheduler started", zap.Int("billing_day", s.day))

	// Run immediately on startup to catch any missed runs
	s.RunOnce(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.RunOnce(ctx)
		case <-ctx.Done():
			s.logger.Info("auto billing scheduler stopped")
			return
		case <-s.stopChan:
			s.logger.Info("auto billing scheduler stopped")
			return
		}
	}
}

func (s *AutoBillingScheduler) Stop() {
	close(s.stopChan)
}

// RunOnce bills last month when it is due and has no invoices yet. It
// reports whether invoices were generated.
func (s *AutoBillingScheduler) RunOnce(ctx context.Context) bool {
	now := s.clock.Now().In(s.loc)
	if now.Day() < s.day {
		return false
	}

	period, err := BillingPeriod("", now)
	if err != nil {
		s.logger.Error("failed to compute billing period", zap.Error(err))
		return false
	}

	invoiced, err := s.store.PeriodInvoiced(ctx, period.StartDate(), period.EndDate())
	if err != nil {
		s.logger.Error("failed to check billed periods", zap.Error(err))
		return false
	}
	s.mu.Lock()
	if invoiced || s.lastPeriod == period.StartDate() {
		s.mu.Unlock()
		return false
	}
	s.lastPeriod = period.StartDate()
	s.mu.Unlock()

	log := s.logger.With(zap.String("period_start", period.StartDate()), zap.String("period_end", period.EndDate()))
	log.Info("billing period due")

	if err := s.runLocked(ctx, RunKindSync, func() error {
		_, err := s.sync.Run(ctx, SyncRequest{})
		return err
	}); err != nil {
		// Bill with what is already stored rather than skipping the month.
		log.Warn("sync before billing failed", zap.Error(err))
	}

	var result *GenerationResult
	err = s.runLocked(ctx, RunKindInvoices, func() error {
		var err error
		result, err = s.billing.GenerateInvoices(ctx, "")
		return err
	})
	if err != nil {
		log.Error("scheduled invoice run failed", zap.Error(err))
		s.mu.Lock()
		s.lastPeriod = ""
		s.mu.Unlock()
		return false
	}

	log.Info("scheduled invoice run finished",
		zap.Int("invoices", len(result.Invoices)),
		zap.Int("failures", len(result.Failures)))
	return len(result.Invoices) > 0
}

// Status reports the period the scheduler would bill now and whether it
// already has invoices.
func (s *AutoBillingScheduler) Status(ctx context.Context) (*AutoBillingStatus, error) {
	now := s.clock.Now().In(s.loc)
	period, err := BillingPeriod("", now)
	if err != nil {
		return nil, err
	}

	invoiced, err := s.store.PeriodInvoiced(ctx, period.StartDate(), period.EndDate())
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	last := s.lastPeriod
	s.mu.Unlock()

	return &AutoBillingStatus{
		BillingDay:  s.day,
		PeriodStart: period.StartDate(),
		PeriodEnd:   period.EndDate(),
		Due:         now.Day() >= s.day && !invoiced,
		Invoiced:    invoiced,
		LastAttempt: last,
	}, nil
}

func (s *AutoBillingScheduler) runLocked(ctx context.Context, kind string, fn func() error) error {
	release, err := s.lock.Acquire(ctx, kind)
	if err != nil {
		return err
	}
	defer release()
	return fn()
}
