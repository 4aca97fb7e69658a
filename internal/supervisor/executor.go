package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hoferino/manda/internal/expressions"
	"github.com/hoferino/manda/internal/logging"
	"github.com/hoferino/manda/internal/retry"
	"github.com/hoferino/manda/internal/streaming"
	"github.com/hoferino/manda/pkg/schema"
)

const (
	// DefaultSpecialistTimeout bounds one specialist invocation including
	// its retries.
	DefaultSpecialistTimeout = 30 * time.Second

	// timeoutConfidence marks a timed-out slot as low-trust partial output.
	timeoutConfidence = 0.3
)

// Executor fans a routing decision out to the selected specialists and
// collects exactly one result per specialist, in selection order. A slot
// never stays empty: timeouts and failures become degraded results rather
// than missing ones.
type Executor struct {
	registry  *Registry
	citations *expressions.CitationExtractor
	hub       streaming.EventHub
	logger    *slog.Logger
	timeout   time.Duration
	retryCfg  retry.Config
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithTimeout overrides the per-specialist timeout.
func WithTimeout(d time.Duration) ExecutorOption {
	return func(e *Executor) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// WithRetryConfig overrides the retry configuration applied to each
// specialist invocation.
func WithRetryConfig(cfg retry.Config) ExecutorOption {
	return func(e *Executor) { e.retryCfg = cfg }
}

// WithEventHub installs a hub for specialist lifecycle events.
func WithEventHub(hub streaming.EventHub) ExecutorOption {
	return func(e *Executor) { e.hub = hub }
}

// WithExecutorLogger sets the logger.
func WithExecutorLogger(logger *slog.Logger) ExecutorOption {
	return func(e *Executor) { e.logger = logger }
}

// NewExecutor creates an Executor over the registry.
func NewExecutor(registry *Registry, opts ...ExecutorOption) *Executor {
	e := &Executor{
		registry:  registry,
		citations: expressions.NewCitationExtractor(),
		logger:    slog.Default(),
		timeout:   DefaultSpecialistTimeout,
		retryCfg:  retry.DefaultConfig(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute runs every selected specialist and returns one result per slot,
// in decision order. Parallel decisions fan out to goroutines; sequential
// ones run in order. The returned slice always has exactly one entry per
// selected specialist.
func (e *Executor) Execute(ctx context.Context, decision schema.SupervisorDecision, req Request) []schema.SpecialistResult {
	ids := decision.SelectedSpecialists
	results := make([]schema.SpecialistResult, len(ids))

	if decision.IsParallel {
		var wg sync.WaitGroup
		for i, id := range ids {
			wg.Add(1)
			go func(slot int, id schema.SpecialistID) {
				defer wg.Done()
				results[slot] = e.executeOne(ctx, id, req)
			}(i, id)
		}
		wg.Wait()
	} else {
		for i, id := range ids {
			results[i] = e.executeOne(ctx, id, req)
		}
	}
	return results
}

// executeOne runs a single specialist under the per-specialist timeout.
// The timeout is observed as a result, not an error: when the deadline
// passes, a low-confidence placeholder fills the slot and whatever the
// specialist eventually returns is discarded.
func (e *Executor) executeOne(ctx context.Context, id schema.SpecialistID, req Request) schema.SpecialistResult {
	ctx = logging.WithSpecialistID(ctx, string(id))
	start := time.Now()

	e.publish(ctx, id, schema.EventSpecialistStarted, nil)

	specialist, err := e.registry.Get(id)
	if err != nil {
		e.logger.ErrorContext(ctx, "routed to unregistered specialist", "error", err)
		return e.failureResult(ctx, id, err, start)
	}

	runCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	type outcome struct {
		res *schema.SpecialistResult
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := retry.WithRetry(runCtx, e.retryCfg,
			func(ctx context.Context) (*schema.SpecialistResult, error) {
				return specialist.Execute(ctx, req)
			})
		done <- outcome{res: res, err: err}
	}()

	select {
	case out := <-done:
		if out.err != nil {
			if e.deadlineHit(runCtx, ctx) {
				return e.timeoutResult(ctx, id, start)
			}
			return e.failureResult(ctx, id, out.err, start)
		}
		return e.normalize(ctx, id, out.res, start)
	case <-runCtx.Done():
		if !e.deadlineHit(runCtx, ctx) {
			// The turn itself was cancelled, not just this specialist.
			return e.failureResult(ctx, id, ctx.Err(), start)
		}
		return e.timeoutResult(ctx, id, start)
	}
}

// deadlineHit reports whether the per-specialist deadline expired, as
// opposed to the whole turn being cancelled.
func (e *Executor) deadlineHit(runCtx, turnCtx context.Context) bool {
	return runCtx.Err() == context.DeadlineExceeded && turnCtx.Err() == nil
}

// timeoutResult fills a slot whose specialist missed the deadline. The
// partial answer carries reduced confidence; whatever the specialist
// eventually returns is discarded.
func (e *Executor) timeoutResult(ctx context.Context, id schema.SpecialistID, start time.Time) schema.SpecialistResult {
	e.logger.WarnContext(ctx, "specialist timed out", "timeout", e.timeout.String())
	e.publish(ctx, id, schema.EventSpecialistTimedOut, map[string]any{
		"timeout_ms": e.timeout.Milliseconds(),
	})
	return schema.SpecialistResult{
		SpecialistID: id,
		Content:      fmt.Sprintf("The %s analysis did not finish in time; this answer may be incomplete.", id),
		Confidence:   timeoutConfidence,
		TimingMs:     time.Since(start).Milliseconds(),
		Err: schema.NewErrorf(schema.ErrCodeLLM, "specialist %s timed out after %s", id, e.timeout).
			WithNode(string(id)),
	}
}

// normalize fills in derived fields on a successful result: the specialist
// ID, timing, and citations extracted from the raw payload when the
// specialist did not provide structured sources itself.
func (e *Executor) normalize(ctx context.Context, id schema.SpecialistID, res *schema.SpecialistResult, start time.Time) schema.SpecialistResult {
	out := schema.SpecialistResult{}
	if res != nil {
		out = *res
	}
	out.SpecialistID = id
	out.TimingMs = time.Since(start).Milliseconds()

	if len(out.Sources) == 0 && len(out.Raw) > 0 {
		cites, err := e.citations.Extract(ctx, out.Raw, "")
		if err != nil {
			e.logger.WarnContext(ctx, "citation extraction failed", "error", err)
		} else {
			out.Sources = cites
		}
	}

	e.publish(ctx, id, schema.EventSpecialistCompleted, map[string]any{
		"confidence": out.Confidence,
		"timing_ms":  out.TimingMs,
	})
	return out
}

// failureResult converts a failed invocation into a degraded result whose
// content is the user-safe message for the classified error.
func (e *Executor) failureResult(ctx context.Context, id schema.SpecialistID, err error, start time.Time) schema.SpecialistResult {
	classified := retry.Classify(err).WithNode(string(id))
	e.logger.ErrorContext(ctx, "specialist failed",
		"code", classified.Code, "error", err)
	e.publish(ctx, id, schema.EventSpecialistCompleted, map[string]any{
		"failed": true,
		"code":   classified.Code,
	})
	return schema.SpecialistResult{
		SpecialistID: id,
		Content:      schema.UserMessage(classified.Code),
		Confidence:   0,
		TimingMs:     time.Since(start).Milliseconds(),
		Err:          classified,
	}
}

func (e *Executor) publish(ctx context.Context, id schema.SpecialistID, eventType string, payload map[string]any) {
	if e.hub == nil {
		return
	}
	_ = e.hub.Publish(ctx, streaming.TurnEvent{
		ThreadID:     logging.ThreadID(ctx),
		TurnID:       logging.TurnID(ctx),
		SpecialistID: string(id),
		EventType:    eventType,
		Payload:      payload,
	})
}
