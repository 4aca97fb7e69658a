package supervisor

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hoferino/manda/internal/checkpoint"
	"github.com/hoferino/manda/internal/logging"
	"github.com/hoferino/manda/internal/retry"
	"github.com/hoferino/manda/internal/streaming"
	"github.com/hoferino/manda/pkg/schema"
)

// MaxQueryLength bounds one user query.
const MaxQueryLength = 10000

// Classifier produces an intent classification for a query. Implementations
// typically wrap an LLM call.
type Classifier interface {
	Classify(ctx context.Context, query string, history []schema.Message) (schema.Classification, error)
}

// TurnInput is one user turn. Intent, when non-nil, carries an externally
// produced classification and the classify stage is skipped.
type TurnInput struct {
	Key    schema.ThreadKey
	Query  string
	Intent *schema.Classification
}

// TurnOutput is the full outcome of one turn: the response, the routing
// decision behind it, stage timings, and every error absorbed on the way.
type TurnOutput struct {
	TurnID         string
	Classification schema.Classification
	Decision       schema.SupervisorDecision
	Results        []schema.SpecialistResult
	Response       schema.SynthesizedResponse
	Metrics        schema.TurnMetrics
	Errors         []*schema.AgentError
}

// Supervisor orchestrates one turn: classify, route, execute, synthesize,
// checkpoint. Degradation over failure throughout: a broken stage narrows
// the answer instead of losing the turn.
type Supervisor struct {
	classifier Classifier
	router     *Router
	executor   *Executor
	store      checkpoint.Store
	hub        streaming.EventHub
	logger     *slog.Logger
	retryCfg   retry.Config
}

// SupervisorOption configures a Supervisor.
type SupervisorOption func(*Supervisor)

// WithSupervisorHub installs a hub for turn lifecycle events.
func WithSupervisorHub(hub streaming.EventHub) SupervisorOption {
	return func(s *Supervisor) { s.hub = hub }
}

// WithSupervisorLogger sets the logger.
func WithSupervisorLogger(logger *slog.Logger) SupervisorOption {
	return func(s *Supervisor) { s.logger = logger }
}

// WithClassifyRetry overrides the retry configuration for the classify stage.
func WithClassifyRetry(cfg retry.Config) SupervisorOption {
	return func(s *Supervisor) { s.retryCfg = cfg }
}

// NewSupervisor wires the turn pipeline together.
func NewSupervisor(classifier Classifier, router *Router, executor *Executor, store checkpoint.Store, opts ...SupervisorOption) *Supervisor {
	s := &Supervisor{
		classifier: classifier,
		router:     router,
		executor:   executor,
		store:      store,
		logger:     slog.Default(),
		retryCfg:   retry.DefaultConfig(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// HandleTurn runs one full turn against the thread identified by in.Key.
// Validation failures return an error; everything downstream degrades into
// the response instead.
func (s *Supervisor) HandleTurn(ctx context.Context, in TurnInput) (*TurnOutput, error) {
	if in.Query == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "query is empty")
	}
	if len(in.Query) > MaxQueryLength {
		return nil, schema.NewErrorf(schema.ErrCodeValidation,
			"query exceeds %d characters", MaxQueryLength)
	}

	turnID := uuid.NewString()
	ctx = logging.WithThreadID(ctx, in.Key.Encode())
	ctx = logging.WithTurnID(ctx, turnID)

	out := &TurnOutput{TurnID: turnID}
	out.Metrics.StartTime = time.Now().UTC()
	turnStart := time.Now()

	s.publish(ctx, schema.EventTurnStarted, map[string]any{"query_len": len(in.Query)})
	s.logger.InfoContext(ctx, "turn started")

	// Load prior state. A failed read degrades to an empty history; the
	// turn still runs.
	prior, err := s.store.Get(ctx, in.Key)
	if err != nil {
		s.logger.WarnContext(ctx, "checkpoint read failed, continuing without history", "error", err)
		out.Errors = append(out.Errors, retry.Classify(err))
		prior = nil
	}
	var history []schema.Message
	var phase string
	if prior != nil {
		history = prior.Messages
		if prior.Workflow != nil {
			phase = string(prior.Workflow.CurrentPhase)
		}
	}

	// Classify, unless the caller already did.
	stageStart := s.stageStarted(ctx, "classify")
	out.Classification = s.classify(ctx, in, history, out)
	out.Metrics.ClassifyMs = time.Since(stageStart).Milliseconds()
	s.stageCompleted(ctx, "classify", out.Metrics.ClassifyMs)

	// Route.
	stageStart = s.stageStarted(ctx, "route")
	decision, err := s.router.Route(ctx, in.Query, out.Classification, phase)
	if err != nil {
		s.logger.WarnContext(ctx, "routing failed, falling back to general", "error", err)
		out.Errors = append(out.Errors, retry.Classify(err))
		decision = schema.SupervisorDecision{
			SelectedSpecialists: []schema.SpecialistID{schema.SpecialistGeneral},
			Rationale:           "routing failed",
		}
	}
	out.Decision = decision
	out.Metrics.RouteMs = time.Since(stageStart).Milliseconds()
	s.stageCompleted(ctx, "route", out.Metrics.RouteMs)
	s.logger.InfoContext(ctx, "routed",
		"specialists", decision.SelectedSpecialists, "parallel", decision.IsParallel)

	// Execute.
	stageStart = s.stageStarted(ctx, "execute")
	out.Results = s.executor.Execute(ctx, decision, Request{
		Query:          in.Query,
		Classification: out.Classification,
		History:        history,
	})
	out.Metrics.ExecuteMs = time.Since(stageStart).Milliseconds()
	s.stageCompleted(ctx, "execute", out.Metrics.ExecuteMs)
	for _, r := range out.Results {
		if r.Err != nil {
			out.Errors = append(out.Errors, r.Err)
		}
	}

	// Synthesize.
	stageStart = s.stageStarted(ctx, "synthesize")
	out.Response = Synthesize(out.Results)
	if out.Response.Content == "" {
		out.Response = s.fallbackResponse(out)
	}
	out.Metrics.SynthesizeMs = time.Since(stageStart).Milliseconds()
	s.stageCompleted(ctx, "synthesize", out.Metrics.SynthesizeMs)
	s.publish(ctx, schema.EventSynthesisDone, map[string]any{
		"confidence":  out.Response.Confidence,
		"synthesized": out.Response.WasSynthesized,
	})

	// Persist. A failed write is reported but the response still goes out.
	now := time.Now().UTC()
	snap := checkpoint.Merge(in.Key, prior, checkpoint.Update{
		Messages: []schema.Message{
			{Role: "user", Content: in.Query, Timestamp: now},
			{Role: "assistant", Content: out.Response.Content, Timestamp: now},
		},
		Decisions: []schema.SupervisorDecision{decision},
		Errors:    out.Errors,
	})
	if err := s.store.Put(ctx, in.Key, snap); err != nil {
		s.logger.ErrorContext(ctx, "checkpoint write failed", "error", err)
		out.Errors = append(out.Errors, retry.Classify(err))
	}

	out.Metrics.TotalMs = time.Since(turnStart).Milliseconds()
	s.publish(ctx, schema.EventTurnCompleted, map[string]any{
		"total_ms":   out.Metrics.TotalMs,
		"confidence": out.Response.Confidence,
	})
	s.logger.InfoContext(ctx, "turn completed",
		"total_ms", out.Metrics.TotalMs, "errors", len(out.Errors))
	return out, nil
}

// classify returns the classification for the turn, falling back to a
// general/simple default when the classifier keeps failing.
func (s *Supervisor) classify(ctx context.Context, in TurnInput, history []schema.Message, out *TurnOutput) schema.Classification {
	if in.Intent != nil {
		return *in.Intent
	}
	if s.classifier == nil {
		return schema.Classification{Domain: "general", Complexity: "simple"}
	}

	c, err := retry.WithRetry(ctx, s.retryCfg,
		func(ctx context.Context) (schema.Classification, error) {
			return s.classifier.Classify(ctx, in.Query, history)
		})
	if err != nil {
		s.logger.WarnContext(ctx, "classification failed, defaulting to general", "error", err)
		out.Errors = append(out.Errors, retry.Classify(err))
		return schema.Classification{Domain: "general", Complexity: "simple"}
	}
	return c
}

// fallbackResponse is emitted when every specialist failed: an apology
// derived from the first absorbed error, never an empty answer.
func (s *Supervisor) fallbackResponse(out *TurnOutput) schema.SynthesizedResponse {
	code := schema.ErrCodeState
	if len(out.Errors) > 0 {
		code = out.Errors[0].Code
	}
	return schema.SynthesizedResponse{
		Content:        schema.UserMessage(code),
		Confidence:     0,
		Specialists:    out.Decision.SelectedSpecialists,
		WasSynthesized: false,
	}
}

// stageStarted marks the start of a pipeline stage on the hub and returns
// the stage's start time.
func (s *Supervisor) stageStarted(ctx context.Context, stage string) time.Time {
	s.publish(ctx, schema.EventStageStarted, map[string]any{"stage": stage})
	return time.Now()
}

func (s *Supervisor) stageCompleted(ctx context.Context, stage string, ms int64) {
	s.publish(ctx, schema.EventStageCompleted, map[string]any{"stage": stage, "ms": ms})
}

func (s *Supervisor) publish(ctx context.Context, eventType string, payload map[string]any) {
	if s.hub == nil {
		return
	}
	_ = s.hub.Publish(ctx, streaming.TurnEvent{
		ThreadID:  logging.ThreadID(ctx),
		TurnID:    logging.TurnID(ctx),
		EventType: eventType,
		Payload:   payload,
	})
}
