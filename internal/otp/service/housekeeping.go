package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/aussiebroadwan/otpgate/internal/otp/store"
	"github.com/aussiebroadwan/otpgate/pkg/clock"
)

// HousekeepingService periodically removes lapsed blocks and old outcome
// records so durable stores do not grow without bound.
type HousekeepingService struct {
	Store     store.Store
	Logger    *slog.Logger
	Clock     clock.Clock
	Interval  time.Duration
	Retention time.Duration // how long outcome records are kept

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewHousekeepingService creates a housekeeping service. A non-positive
// interval defaults to 1 hour and a non-positive retention to 30 days.
func NewHousekeepingService(store store.Store, logger *slog.Logger, clk clock.Clock, interval, retention time.Duration) *HousekeepingService {
	if interval <= 0 {
		interval = 1 * time.Hour
	}
	if retention <= 0 {
		retention = 30 * 24 * time.Hour
	}

	return &HousekeepingService{
		Store:     store,
		Logger:    logger,
		Clock:     clk,
		Interval:  interval,
		Retention: retention,
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
}

// Start runs cleanup in the background, once immediately and then on every
// tick. Call Stop to shut it down.
func (s *HousekeepingService) Start() {
	go s.run()
	s.Logger.Debug("housekeeping service started", "interval", s.Interval)
}

// Stop blocks until any in-progress cleanup has finished.
func (s *HousekeepingService) Stop() {
	close(s.stopCh)
	<-s.doneCh
	s.Logger.Debug("housekeeping service stopped")
}

func (s *HousekeepingService) run() {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	s.cleanup()

	for {
		select {
		case <-ticker.C:
			s.cleanup()
		case <-s.stopCh:
			return
		}
	}
}

// cleanup deletes lapsed records. Each deletion is independent.
func (s *HousekeepingService) cleanup() int {
	ctx := context.Background()
	now := s.Clock.Now()

	var succeeded int

	if err := s.Store.Blocks().DeleteExpiredBlocks(ctx, now); err != nil {
		s.Logger.Error("failed to delete expired blocks", "error", err)
	} else {
		succeeded++
	}

	if err := s.Store.Outcomes().DeleteOutcomesBefore(ctx, now.Add(-s.Retention)); err != nil {
		s.Logger.Error("failed to delete old outcome records", "error", err)
	} else {
		succeeded++
	}

	s.Logger.Debug("housekeeping cleanup completed", "successful_cleanups", succeeded)
	return succeeded
}
