// Package tasks runs best-effort side effects on a bounded set of workers.
package tasks

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var ErrPoolClosed = errors.New("task pool closed")

// Task is one unit of side-effect work. Fn may be called more than once.
type Task struct {
	Kind  string
	Attrs map[string]string
	Fn    func(ctx context.Context) error
}

type Config struct {
	Workers        int
	QueueSize      int
	MaxAttempts    int
	BaseDelay      time.Duration
	MaxDelay       time.Duration
	AttemptTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 256
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = 200 * time.Millisecond
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 10 * time.Second
	}
	if c.AttemptTimeout <= 0 {
		c.AttemptTimeout = 15 * time.Second
	}
	return c
}

// Pool executes submitted tasks with retry and exponential backoff. Failures
// are logged and recorded on the task span; they never reach the submitter.
type Pool struct {
	cfg    Config
	jobs   chan Task
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	closed bool

	// OnFailure, when set, is called after the last attempt of a task fails.
	OnFailure func(t Task, err error)
}

func NewPool(cfg Config) *Pool {
	cfg = cfg.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		cfg:    cfg,
		jobs:   make(chan Task, cfg.QueueSize),
		ctx:    ctx,
		cancel: cancel,
	}
	for i := 0; i < cfg.Workers; i++ {
		p.wg.Add(1)
		go p.loop()
	}
	return p
}

// Submit enqueues t without blocking. A full queue drops the task.
func (p *Pool) Submit(t Task) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrPoolClosed
	}
	select {
	case p.jobs <- t:
		return nil
	default:
		slog.Warn("side_effect_dropped", "kind", t.Kind, "reason", "queue_full", "attrs", t.Attrs)
		return errors.New("task queue full")
	}
}

// Shutdown stops accepting tasks and waits for queued ones to finish. When
// ctx expires first, in-flight retries are abandoned.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.jobs)
	}
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.cancel()
		return nil
	case <-ctx.Done():
		p.cancel()
		<-done
		return ctx.Err()
	}
}

func (p *Pool) loop() {
	defer p.wg.Done()
	for t := range p.jobs {
		p.run(t)
	}
}

func (p *Pool) run(t Task) {
	ctx, span := otel.Tracer("roombooking/tasks").Start(p.ctx, "side_effect."+t.Kind)
	defer span.End()
	for k, v := range t.Attrs {
		span.SetAttributes(attribute.String(k, v))
	}

	var (
		err      error
		attempts int
	)
retry:
	for attempts < p.cfg.MaxAttempts {
		attempts++
		err = p.attempt(ctx, t)
		if err == nil {
			return
		}
		span.AddEvent("attempt_failed", traceAttrs(attempts, err)...)
		if attempts == p.cfg.MaxAttempts {
			break
		}
		select {
		case <-time.After(p.backoff(attempts)):
		case <-ctx.Done():
			err = errors.Join(err, ctx.Err())
			break retry
		}
	}

	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	slog.Error("side_effect_failed", "kind", t.Kind, "attempts", attempts, "error", err, "attrs", t.Attrs)
	if p.OnFailure != nil {
		p.OnFailure(t, err)
	}
}

func (p *Pool) attempt(ctx context.Context, t Task) (err error) {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.AttemptTimeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			err = panicError{value: r}
		}
	}()
	return t.Fn(ctx)
}

// backoff doubles the base delay per attempt, capped at MaxDelay.
func (p *Pool) backoff(attempt int) time.Duration {
	d := p.cfg.BaseDelay << (attempt - 1)
	if d <= 0 || d > p.cfg.MaxDelay {
		return p.cfg.MaxDelay
	}
	return d
}
