package chatsync

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	collab_errors "collaboraid-sync/pkg/errors"
	"collaboraid-sync/pkg/logger"
)

type refreshable interface {
	Refresh(ctx context.Context) error
}

// Refresher periodically reconciles REST history and serves rate limited
// manual refreshes.
type Refresher struct {
	target   refreshable
	interval time.Duration
	limiter  *rate.Limiter
	logger   *logger.Logger
	stopChan chan struct{}
	wg       sync.WaitGroup
	once     sync.Once
}

func NewRefresher(target refreshable, interval time.Duration, limit rate.Limit, burst int, l *logger.Logger) *Refresher {
	if burst < 1 {
		burst = 1
	}
	return &Refresher{
		target:   target,
		interval: interval,
		limiter:  rate.NewLimiter(limit, burst),
		logger:   logger.OrNop(l).Named("refresher"),
		stopChan: make(chan struct{}),
	}
}

// Start begins the periodic loop. A non-positive interval disables it; manual
// triggers still work.
func (r *Refresher) Start(ctx context.Context) {
	if r.interval <= 0 {
		return
	}
	r.wg.Add(1)
	go r.run(ctx)
}

// Stop shuts the loop down and waits for an in-flight refresh.
func (r *Refresher) Stop() {
	r.once.Do(func() { close(r.stopChan) })
	r.wg.Wait()
}

func (r *Refresher) run(ctx context.Context) {
	defer r.wg.Done()
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopChan:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.target.Refresh(ctx); err != nil {
				r.logger.Warnf("periodic refresh: %v", err)
			}
		}
	}
}

// Trigger runs a refresh now unless the manual refresh budget is spent.
func (r *Refresher) Trigger(ctx context.Context) error {
	if !r.limiter.Allow() {
		return collab_errors.ErrRateLimited
	}
	return r.target.Refresh(ctx)
}
