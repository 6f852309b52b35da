package main

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

const (
	// DefaultPoolSize Pool configuration
	DefaultPoolSize   = 4
	AcquireTimeout    = 5 * time.Second
	HealthCheckPeriod = 60 * time.Second
	maxRecordedErrors = 10
)

var ErrPoolClosed = errors.New("pool is closed")

// WorkerPool hands out detector workers, one request at a time each.
// Workers whose model is no longer loaded are dropped on release and
// replaced by the health check.
type WorkerPool struct {
	workers    chan *Worker
	size       int
	factory    WorkerFactory
	mu         sync.Mutex
	closed     bool
	live       int
	metrics    *PoolMetrics
	lastErrors []error
	done       chan struct{}
	logger     *zap.Logger
}

type PoolMetrics struct {
	mu              sync.RWMutex
	inUse           int
	totalAcquired   int64
	totalReleased   int64
	acquireFailures int64
	replaced        int64
	waitTime        time.Duration
}

// PoolStats is a point-in-time copy of the pool metrics.
type PoolStats struct {
	Size            int           `json:"pool_size"`
	Live            int           `json:"workers_live"`
	InUse           int           `json:"workers_in_use"`
	TotalAcquired   int64         `json:"total_acquired"`
	TotalReleased   int64         `json:"total_released"`
	AcquireFailures int64         `json:"acquire_failures"`
	Replaced        int64         `json:"workers_replaced"`
	WaitTime        time.Duration `json:"wait_time_ns"`
}

func NewWorkerPool(size int, factory WorkerFactory, logger *zap.Logger) (*WorkerPool, error) {
	if size <= 0 {
		size = DefaultPoolSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	pool := &WorkerPool{
		workers: make(chan *Worker, size),
		size:    size,
		factory: factory,
		metrics: &PoolMetrics{},
		done:    make(chan struct{}),
		logger:  logger,
	}

	for i := 0; i < size; i++ {
		w, err := factory()
		if err != nil {
			pool.Destroy()
			return nil, errors.Wrapf(err, "failed to initialize worker %d", i)
		}
		pool.live++
		pool.workers <- w
	}

	go pool.healthCheck(HealthCheckPeriod)

	return pool, nil
}

func (p *WorkerPool) Acquire(ctx context.Context) (*Worker, error) {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return nil, ErrPoolClosed
	}

	start := time.Now()
	defer func() {
		p.metrics.mu.Lock()
		p.metrics.waitTime += time.Since(start)
		p.metrics.mu.Unlock()
	}()

	timer := time.NewTimer(AcquireTimeout)
	defer timer.Stop()

	select {
	case w, ok := <-p.workers:
		if !ok {
			return nil, ErrPoolClosed
		}
		p.metrics.mu.Lock()
		p.metrics.inUse++
		p.metrics.totalAcquired++
		p.metrics.mu.Unlock()
		return w, nil
	case <-timer.C:
		p.metrics.mu.Lock()
		p.metrics.acquireFailures++
		p.metrics.mu.Unlock()
		return nil, errors.New("timeout waiting for available worker")
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *WorkerPool) Release(w *Worker) {
	p.metrics.mu.Lock()
	p.metrics.inUse--
	p.metrics.totalReleased++
	p.metrics.mu.Unlock()

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		w.Close()
		return
	}
	if !w.Healthy() {
		p.logger.Warn("dropping unhealthy worker", zap.String("kind", w.Kind()))
		w.Close()
		p.live--
		return
	}
	p.workers <- w
}

func (p *WorkerPool) Destroy() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}

	p.closed = true
	close(p.done)
	close(p.workers)

	for w := range p.workers {
		w.Close()
	}
}

func (p *WorkerPool) healthCheck(period time.Duration) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-p.done:
			return
		case <-ticker.C:
			if err := p.replenish(); err != nil {
				p.logger.Warn("worker replenish failed", zap.Error(err))
			}
		}
	}
}

// replenish rebuilds workers dropped since the last check.
func (p *WorkerPool) replenish() error {
	p.mu.Lock()
	missing := p.size - p.live
	p.mu.Unlock()

	var errs error
	for i := 0; i < missing; i++ {
		w, err := p.factory()
		if err != nil {
			p.recordError(err)
			errs = multierr.Append(errs, err)
			continue
		}

		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			w.Close()
			return errs
		}
		p.live++
		p.workers <- w
		p.mu.Unlock()

		p.metrics.mu.Lock()
		p.metrics.replaced++
		p.metrics.mu.Unlock()
	}
	return errs
}

func (p *WorkerPool) recordError(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.lastErrors = append(p.lastErrors, err)
	if len(p.lastErrors) > maxRecordedErrors {
		p.lastErrors = p.lastErrors[1:]
	}
}

func (p *WorkerPool) LastErrors() []error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]error(nil), p.lastErrors...)
}

func (p *WorkerPool) GetMetrics() PoolStats {
	p.mu.Lock()
	live := p.live
	p.mu.Unlock()

	p.metrics.mu.RLock()
	defer p.metrics.mu.RUnlock()
	return PoolStats{
		Size:            p.size,
		Live:            live,
		InUse:           p.metrics.inUse,
		TotalAcquired:   p.metrics.totalAcquired,
		TotalReleased:   p.metrics.totalReleased,
		AcquireFailures: p.metrics.acquireFailures,
		Replaced:        p.metrics.replaced,
		WaitTime:        p.metrics.waitTime,
	}
}
