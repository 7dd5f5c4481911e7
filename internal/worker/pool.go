// Package worker runs fire-and-forget tasks on a fixed set of goroutines fed
// by a bounded queue.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/partner-gateway-service/internal/metrics"
)

// ErrClosed is returned by Shutdown when called more than once.
var ErrClosed = errors.New("worker pool closed")

type Task func(ctx context.Context)

type job struct {
	name string
	run  Task
}

type Pool struct {
	queue   chan job
	group   *errgroup.Group
	ctx     context.Context
	cancel  context.CancelFunc
	metrics *metrics.Metrics

	mu     sync.RWMutex
	closed bool
}

// NewPool starts workers goroutines consuming a queue of queueSize tasks.
func NewPool(workers, queueSize int, m *metrics.Metrics) *Pool {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 1 {
		queueSize = 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	group, gctx := errgroup.WithContext(ctx)
	p := &Pool{
		queue:   make(chan job, queueSize),
		group:   group,
		ctx:     gctx,
		cancel:  cancel,
		metrics: m,
	}
	for i := 0; i < workers; i++ {
		group.Go(p.work)
	}
	return p
}

// Submit enqueues a task without blocking. It returns false when the queue is
// full or the pool is shutting down.
func (p *Pool) Submit(name string, task Task) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return false
	}

	select {
	case p.queue <- job{name: name, run: task}:
		p.metrics.WorkerQueueDepth.Set(float64(len(p.queue)))
		return true
	default:
		log.Warn().Str("task", name).Int("queue_size", cap(p.queue)).Msg("worker queue full, dropping task")
		return false
	}
}

// Shutdown stops accepting tasks and waits for queued ones to finish. If ctx
// expires first, running tasks are cancelled.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrClosed
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()

	done := make(chan error, 1)
	go func() { done <- p.group.Wait() }()

	select {
	case err := <-done:
		p.cancel()
		return err
	case <-ctx.Done():
		p.cancel()
		<-done
		return fmt.Errorf("draining worker queue: %w", ctx.Err())
	}
}

func (p *Pool) work() error {
	for j := range p.queue {
		p.metrics.WorkerQueueDepth.Set(float64(len(p.queue)))
		p.run(j)
	}
	return nil
}

func (p *Pool) run(j job) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("task", j.name).Interface("panic", r).Msg("worker task panicked")
		}
	}()
	j.run(p.ctx)
}
