// Package sweeper reports pushes that never got their callback, so they can
// be reconciled by hand.
package sweeper

import (
	"context"
	"errors"
	"time"

	"github.com/bsm/redislock"
	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"

	"github.com/example/paybill-gateway/internal/domain"
	m "github.com/example/paybill-gateway/pkg/metrics"
)

const (
	lockKey      = "paybill:sweeper"
	defaultLimit = 500
)

// ErrBusy means another replica holds the sweep lock.
var ErrBusy = errors.New("sweeper: lock held elsewhere")

type Store interface {
	StalePushes(ctx context.Context, olderThan time.Time, limit int) ([]domain.PendingPush, error)
}

type Locker interface {
	Obtain(ctx context.Context, key string, ttl time.Duration, opt *redislock.Options) (*redislock.Lock, error)
}

type Options struct {
	StaleAfter time.Duration
	Interval   time.Duration
	Limit      int
}

type Sweeper struct {
	store  Store
	locker Locker
	log    *zap.Logger
	opts   Options
	now    func() time.Time
}

// New builds a sweeper. locker may be nil, in which case every replica sweeps.
func New(s Store, locker Locker, log *zap.Logger, opts Options) *Sweeper {
	if opts.Limit <= 0 {
		opts.Limit = defaultLimit
	}
	return &Sweeper{store: s, locker: locker, log: log, opts: opts, now: time.Now}
}

// Sweep lists pushes still pending after StaleAfter, logs each one and
// publishes the count.
func (s *Sweeper) Sweep(ctx context.Context) ([]domain.PendingPush, error) {
	if s.locker != nil {
		lock, err := s.locker.Obtain(ctx, lockKey, s.opts.Interval, nil)
		if errors.Is(err, redislock.ErrNotObtained) {
			return nil, ErrBusy
		}
		if err != nil {
			return nil, err
		}
		defer func() {
			if err := lock.Release(context.WithoutCancel(ctx)); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
				s.log.Warn("sweep lock release failed", zap.Error(err))
			}
		}()
	}

	cutoff := s.now().UTC().Add(-s.opts.StaleAfter)
	stale, err := s.store.StalePushes(ctx, cutoff, s.opts.Limit)
	if err != nil {
		return nil, err
	}
	m.SetStale(len(stale))
	for _, p := range stale {
		s.log.Warn("push still pending",
			zap.Int64("push_id", p.ID),
			zap.String("merchant_request_id", p.MerchantRequestID),
			zap.String("checkout_request_id", p.CheckoutRequestID),
			zap.String("account_reference", p.AccountReference),
			zap.Time("created_at", p.CreatedAt))
	}
	if len(stale) > 0 {
		s.log.Info("stale pushes found", zap.Int("count", len(stale)), zap.Time("cutoff", cutoff))
	}
	return stale, nil
}

func (s *Sweeper) run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.opts.Interval)
	defer cancel()
	if _, err := s.Sweep(ctx); err != nil {
		if errors.Is(err, ErrBusy) {
			s.log.Debug("sweep skipped, lock held elsewhere")
			return
		}
		s.log.Error("sweep failed", zap.Error(err))
	}
}

// Start schedules Sweep every Interval. Callers Shutdown the returned
// scheduler.
func (s *Sweeper) Start() (gocron.Scheduler, error) {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}
	_, err = sched.NewJob(
		gocron.DurationJob(s.opts.Interval),
		gocron.NewTask(s.run),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		_ = sched.Shutdown()
		return nil, err
	}
	sched.Start()
	s.log.Info("sweeper started", zap.Duration("interval", s.opts.Interval), zap.Duration("stale_after", s.opts.StaleAfter))
	return sched, nil
}
