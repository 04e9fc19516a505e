package bus

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/walletbase/walletd/walleterrors"
)

// Handler is the consumer contract. ShouldProcess pre-filters a delivery;
// returning false acknowledges without work. Process returns the number of
// items handled, for status reporting.
type Handler interface {
	Name() string
	ShouldProcess(payload json.RawMessage) bool
	Process(ctx context.Context, payload json.RawMessage) (int, error)
}

type RunnerOptions struct {
	MaxConcurrent int
	MaxRetries    int
	BaseDelay     time.Duration
	MaxDelay      time.Duration
	// GracePeriod bounds the wait for in-flight deliveries on shutdown.
	GracePeriod time.Duration
}

func (o *RunnerOptions) defaults() {
	if o.MaxConcurrent <= 0 {
		o.MaxConcurrent = 1
	}
	if o.BaseDelay <= 0 {
		o.BaseDelay = time.Second
	}
	if o.MaxDelay < o.BaseDelay {
		o.MaxDelay = 30 * time.Second
	}
	if o.GracePeriod <= 0 {
		o.GracePeriod = 30 * time.Second
	}
}

// Runner drives a Handler for each delivery: concurrency cap, bounded
// retries with exponential backoff, dead-lettering, status reporting.
type Runner struct {
	handler  Handler
	options  RunnerOptions
	reporter *StatusReporter
	sem      chan struct{}
	wg       sync.WaitGroup
}

func NewRunner(handler Handler, options RunnerOptions, reporter *StatusReporter) *Runner {
	options.defaults()
	return &Runner{
		handler:  handler,
		options:  options,
		reporter: reporter,
		sem:      make(chan struct{}, options.MaxConcurrent),
	}
}

func (r *Runner) Name() string { return r.handler.Name() }

// Handle processes one delivery end to end. It blocks while the consumer
// is at its concurrency cap. The delivery is considered acknowledged when
// Handle returns: success, a non-retryable error, or exhausted retries
// (dead-letter, logged and dropped).
func (r *Runner) Handle(ctx context.Context, body []byte) {
	// Registered before the semaphore admit, so Drain cannot miss a
	// delivery that is about to be admitted.
	r.wg.Add(1)
	defer r.wg.Done()

	select {
	case r.sem <- struct{}{}:
	case <-ctx.Done():
		return
	}
	defer func() { <-r.sem }()

	var envelope Envelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		logger.Errorw("malformed envelope dropped", "consumer", r.Name(), "err", err)
		r.reporter.ReportError(0, walleterrors.Invariant("malformed envelope"))
		return
	}
	if !r.handler.ShouldProcess(envelope.Payload) {
		return
	}

	for attempt := 0; ; attempt++ {
		start := time.Now()
		count, err := r.handler.Process(ctx, envelope.Payload)
		elapsed := time.Since(start)
		if err == nil {
			r.reporter.ReportSuccess(elapsed)
			logger.Debugw("delivery processed", "consumer", r.Name(), "count", count, "duration", elapsed)
			return
		}
		r.reporter.ReportError(elapsed, err)

		if walleterrors.KindOf(err) == walleterrors.KindInvariant {
			logger.Errorw("invariant violation, delivery dropped",
				"consumer", r.Name(), "payload", string(envelope.Payload), "err", err)
			return
		}
		if !walleterrors.Retryable(err) || attempt >= r.options.MaxRetries {
			logger.Errorw("delivery dead-lettered",
				"consumer", r.Name(), "attempts", attempt+1, "err", err)
			return
		}
		select {
		case <-time.After(r.backoff(attempt)):
		case <-ctx.Done():
			logger.Warnw("retry abandoned on shutdown", "consumer", r.Name(), "err", err)
			return
		}
	}
}

// backoff is base * 2^attempt capped at max.
func (r *Runner) backoff(attempt int) time.Duration {
	d := r.options.BaseDelay
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= r.options.MaxDelay {
			return r.options.MaxDelay
		}
	}
	if d > r.options.MaxDelay {
		d = r.options.MaxDelay
	}
	return d
}

// Drain waits for in-flight deliveries, bounded by the grace period.
func (r *Runner) Drain() {
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(r.options.GracePeriod):
		logger.Warnw("grace period elapsed with deliveries in flight", "consumer", r.Name())
	}
}
