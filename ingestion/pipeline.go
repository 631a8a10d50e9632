package ingestion

import (
	"context"
	"errors"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/docrag/core"
)

const (
	// DefaultQueueSize is the number of jobs that can wait for a worker.
	DefaultQueueSize = 256
	// DefaultMaxAttempts is the number of tries of a job failing upstream.
	DefaultMaxAttempts = 3
	// DefaultRetryDelay is the delay before the first retry.
	DefaultRetryDelay = time.Second
)

// job is one scheduled embedding pass.
type job struct {
	id         string
	documentId core.ID
	enqueued   time.Time
}

// Pipeline runs embedding passes in the background.
// Jobs are handed off to a buffered queue and executed on a worker pool,
// detached from the request that scheduled them.
type Pipeline struct {
	processor   Processor
	pool        *ants.Pool
	queue       chan job
	queueSize   int
	options     ProcessOptions
	maxAttempts int
	retryDelay  time.Duration

	pending   sync.WaitGroup
	mu        sync.RWMutex
	closed    bool
	done      chan struct{}
	closeOnce sync.Once
	logger    *slog.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline) error

// WithPoolSize sets the worker pool size for concurrent processing.
// Default is runtime.NumCPU() / 2, with a minimum of 1.
func WithPoolSize(size int) Option {
	return func(p *Pipeline) error {
		if size < 1 {
			size = 1
		}

		if p.pool != nil {
			p.pool.Release()
		}
		pool, err := ants.NewPool(size)
		if err != nil {
			return err
		}
		p.pool = pool
		return nil
	}
}

// WithQueueSize sets how many jobs may wait for a worker before Enqueue
// reports ErrQueueFull.
func WithQueueSize(size int) Option {
	return func(p *Pipeline) error {
		p.queueSize = max(size, 1)
		return nil
	}
}

// WithProcessOptions sets the chunking options passed to every pass.
func WithProcessOptions(opts ProcessOptions) Option {
	return func(p *Pipeline) error {
		p.options = opts
		return nil
	}
}

// WithRetry sets the retry policy for passes failing upstream.
func WithRetry(maxAttempts int, baseDelay time.Duration) Option {
	return func(p *Pipeline) error {
		if maxAttempts < 1 {
			return ErrInvalidMaxAttempts
		}
		p.maxAttempts = maxAttempts
		p.retryDelay = baseDelay
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) error {
		if logger == nil {
			logger = slog.Default()
		}
		p.logger = logger
		return nil
	}
}

// NewPipeline creates a pipeline running passes with processor and starts
// its dispatcher.
func NewPipeline(processor Processor, opts ...Option) (*Pipeline, error) {
	if processor == nil {
		return nil, ErrProcessorRequired
	}

	poolSize := max(runtime.NumCPU()/2, 1)
	pool, err := ants.NewPool(poolSize)
	if err != nil {
		return nil, err
	}

	p := &Pipeline{
		processor:   processor,
		pool:        pool,
		queueSize:   DefaultQueueSize,
		options:     DefaultProcessOptions(),
		maxAttempts: DefaultMaxAttempts,
		retryDelay:  DefaultRetryDelay,
		done:        make(chan struct{}),
		logger:      slog.Default(),
	}

	for _, opt := range opts {
		if optErr := opt(p); optErr != nil {
			p.pool.Release()
			return nil, optErr
		}
	}
	p.logger = p.logger.With("component", "pipeline")
	p.queue = make(chan job, p.queueSize)

	go p.dispatch()
	return p, nil
}

// Enqueue schedules an embedding pass for a document without waiting for it.
func (p *Pipeline) Enqueue(ctx context.Context, id core.ID) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPipelineClosed
	}

	j := job{id: uuid.NewString(), documentId: id, enqueued: time.Now()}
	p.pending.Add(1)
	select {
	case p.queue <- j:
		p.logger.DebugContext(ctx, "job enqueued", "job", j.id, "document", id)
		return nil
	default:
		p.pending.Done()
		return ErrQueueFull
	}
}

// dispatch feeds queued jobs to the pool. Submit blocks while every worker is
// busy, so the queue absorbs bursts.
func (p *Pipeline) dispatch() {
	defer close(p.done)
	for j := range p.queue {
		if err := p.pool.Submit(func() {
			defer p.pending.Done()
			p.run(j)
		}); err != nil {
			p.logger.Error("failed to submit job", "job", j.id, "document", j.documentId, "err", err)
			p.pending.Done()
		}
	}
}

func (p *Pipeline) run(j job) {
	ctx := context.Background()
	logger := p.logger.With("job", j.id, "document", j.documentId)
	logger.Debug("job started", "waited", time.Since(j.enqueued))

	var outcome *Outcome
	err := RetryWithBackoff(ctx, func() error {
		var err error
		outcome, err = p.processor.ProcessDocument(ctx, j.documentId, p.options)
		return err
	}, p.maxAttempts, p.retryDelay)

	switch {
	case err == nil:
		logger.Info("job finished", "embedded", outcome.Embedded, "skipped", outcome.Skipped)
	case errors.Is(err, core.ErrStateConflict):
		logger.Info("job skipped", "reason", err)
	default:
		logger.Error("job failed", "err", err)
	}
}

// Wait blocks until every enqueued job has finished.
func (p *Pipeline) Wait() {
	p.pending.Wait()
}

// Release stops accepting jobs, waits for the dispatcher to hand off queued
// jobs and releases the worker pool.
// The pipeline should not be used after calling Release.
func (p *Pipeline) Release() {
	p.closeOnce.Do(func() {
		p.mu.Lock()
		p.closed = true
		close(p.queue)
		p.mu.Unlock()

		<-p.done
		p.pool.Release()
	})
}
