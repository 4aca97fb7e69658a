package supervisor

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hoferino/manda/internal/checkpoint"
	"github.com/hoferino/manda/internal/streaming"
	"github.com/hoferino/manda/pkg/schema"
)

// fakeClassifier is a function-backed Classifier for tests.
type fakeClassifier struct {
	fn func(ctx context.Context, query string, history []schema.Message) (schema.Classification, error)
}

func (f *fakeClassifier) Classify(ctx context.Context, query string, history []schema.Message) (schema.Classification, error) {
	return f.fn(ctx, query, history)
}

func keywordClassifier() *fakeClassifier {
	return &fakeClassifier{
		fn: func(ctx context.Context, query string, history []schema.Message) (schema.Classification, error) {
			q := strings.ToLower(query)
			c := schema.Classification{Domain: "general", Complexity: "simple"}
			switch {
			case strings.Contains(q, "compare"):
				c = schema.Classification{Domain: "financial", Complexity: "complex"}
			case strings.Contains(q, "ebitda") || strings.Contains(q, "revenue"):
				c = schema.Classification{Domain: "financial", Complexity: "simple"}
			case strings.Contains(q, "contract") || strings.Contains(q, "clause"):
				c = schema.Classification{Domain: "legal", Complexity: "moderate"}
			}
			return c, nil
		},
	}
}

func newTestSupervisor(t *testing.T, store checkpoint.Store) *Supervisor {
	t.Helper()
	reg := NewRegistry()
	require.NoError(t, reg.Register(staticSpecialist(schema.SpecialistGeneral, "general answer", 0.6)))
	require.NoError(t, reg.Register(staticSpecialist(schema.SpecialistFinancial, "EBITDA was 4.2M", 0.92)))
	require.NoError(t, reg.Register(staticSpecialist(schema.SpecialistEntity, "contracts renew in Q3", 0.75)))
	require.NoError(t, reg.Register(staticSpecialist(schema.SpecialistLegal, "clause summary", 0.8)))

	executor := NewExecutor(reg, WithRetryConfig(fastRetry()))
	return NewSupervisor(keywordClassifier(), NewRouter(nil), executor, store,
		WithClassifyRetry(fastRetry()))
}

func turnKey(t *testing.T, user, conv string) schema.ThreadKey {
	t.Helper()
	key, err := schema.NewThreadKey(schema.WorkflowChat, "acme", user, conv)
	require.NoError(t, err)
	return key
}

func TestHandleTurn_PublishesStageEvents(t *testing.T) {
	store := checkpoint.NewMemoryStore()
	reg := NewRegistry()
	require.NoError(t, reg.Register(staticSpecialist(schema.SpecialistFinancial, "EBITDA was 4.2M", 0.92)))

	hub := streaming.NewMemoryHub()
	ch, cancel, err := hub.Subscribe(context.Background(), streaming.EventFilter{
		EventTypes: []string{schema.EventStageStarted, schema.EventStageCompleted},
	})
	require.NoError(t, err)
	defer cancel()

	s := NewSupervisor(keywordClassifier(), NewRouter(nil),
		NewExecutor(reg, WithRetryConfig(fastRetry())), store,
		WithClassifyRetry(fastRetry()), WithSupervisorHub(hub))

	_, err = s.HandleTurn(context.Background(), TurnInput{
		Key: turnKey(t, "u1", "c1"), Query: "What was the EBITDA for 2023?",
	})
	require.NoError(t, err)

	// Every stage brackets itself with a started/completed pair, in
	// pipeline order.
	var got []string
	for len(ch) > 0 {
		e := <-ch
		got = append(got, e.EventType+":"+e.Payload.(map[string]any)["stage"].(string))
	}
	assert.Equal(t, []string{
		"stage.started:classify", "stage.completed:classify",
		"stage.started:route", "stage.completed:route",
		"stage.started:execute", "stage.completed:execute",
		"stage.started:synthesize", "stage.completed:synthesize",
	}, got)
}

func TestHandleTurn_SimpleFinancialQuery(t *testing.T) {
	store := checkpoint.NewMemoryStore()
	s := newTestSupervisor(t, store)
	key := turnKey(t, "u1", "c1")

	out, err := s.HandleTurn(context.Background(), TurnInput{Key: key, Query: "What was the EBITDA for 2023?"})
	require.NoError(t, err)

	assert.Equal(t, []schema.SpecialistID{schema.SpecialistFinancial}, out.Decision.SelectedSpecialists)
	assert.False(t, out.Decision.IsParallel)
	assert.Equal(t, "EBITDA was 4.2M", out.Response.Content)
	assert.False(t, out.Response.WasSynthesized)
	assert.NotEmpty(t, out.TurnID)
	assert.Empty(t, out.Errors)
}

func TestHandleTurn_ComplexQueryFansOutAndSynthesizes(t *testing.T) {
	store := checkpoint.NewMemoryStore()
	s := newTestSupervisor(t, store)
	key := turnKey(t, "u1", "c1")

	out, err := s.HandleTurn(context.Background(), TurnInput{
		Key:   key,
		Query: "Compare the revenue figures against the customer contracts",
	})
	require.NoError(t, err)

	assert.Equal(t, []schema.SpecialistID{
		schema.SpecialistFinancial, schema.SpecialistEntity,
	}, out.Decision.SelectedSpecialists)
	assert.True(t, out.Decision.IsParallel)
	assert.True(t, out.Response.WasSynthesized)
	assert.Contains(t, out.Response.Content, "EBITDA was 4.2M")
	assert.Contains(t, out.Response.Content, "contracts renew in Q3")
}

func TestHandleTurn_SuppliedIntentSkipsClassifier(t *testing.T) {
	store := checkpoint.NewMemoryStore()
	reg := NewRegistry()
	require.NoError(t, reg.Register(staticSpecialist(schema.SpecialistLegal, "clause summary", 0.8)))

	classifier := &fakeClassifier{
		fn: func(ctx context.Context, query string, history []schema.Message) (schema.Classification, error) {
			t.Fatal("classifier must not run when intent is supplied")
			return schema.Classification{}, nil
		},
	}
	s := NewSupervisor(classifier, NewRouter(nil), NewExecutor(reg, WithRetryConfig(fastRetry())), store)

	out, err := s.HandleTurn(context.Background(), TurnInput{
		Key:    turnKey(t, "u1", "c1"),
		Query:  "review this",
		Intent: &schema.Classification{Domain: "legal", Complexity: "moderate"},
	})
	require.NoError(t, err)
	assert.Equal(t, []schema.SpecialistID{schema.SpecialistLegal}, out.Decision.SelectedSpecialists)
}

func TestHandleTurn_ClassifierFailureDegradesToGeneral(t *testing.T) {
	store := checkpoint.NewMemoryStore()
	reg := NewRegistry()
	require.NoError(t, reg.Register(staticSpecialist(schema.SpecialistGeneral, "best effort", 0.5)))

	classifier := &fakeClassifier{
		fn: func(ctx context.Context, query string, history []schema.Message) (schema.Classification, error) {
			return schema.Classification{}, schema.NewError(schema.ErrCodeLLM, "model overloaded").WithRecoverable(false)
		},
	}
	s := NewSupervisor(classifier, NewRouter(nil), NewExecutor(reg, WithRetryConfig(fastRetry())), store,
		WithClassifyRetry(fastRetry()))

	out, err := s.HandleTurn(context.Background(), TurnInput{Key: turnKey(t, "u1", "c1"), Query: "anything"})
	require.NoError(t, err)
	assert.Equal(t, "general", out.Classification.Domain)
	assert.Equal(t, []schema.SpecialistID{schema.SpecialistGeneral}, out.Decision.SelectedSpecialists)
	assert.NotEmpty(t, out.Errors)
}

func TestHandleTurn_AllSpecialistsFailedYieldsApology(t *testing.T) {
	store := checkpoint.NewMemoryStore()
	reg := NewRegistry()
	require.NoError(t, reg.Register(&fakeSpecialist{
		id: schema.SpecialistGeneral,
		fn: func(ctx context.Context, req Request) (*schema.SpecialistResult, error) {
			return nil, schema.NewError(schema.ErrCodeTool, "retrieval down").WithRecoverable(false)
		},
	}))
	s := NewSupervisor(keywordClassifier(), NewRouter(nil), NewExecutor(reg, WithRetryConfig(fastRetry())), store)

	out, err := s.HandleTurn(context.Background(), TurnInput{Key: turnKey(t, "u1", "c1"), Query: "hello"})
	require.NoError(t, err)
	assert.Zero(t, out.Response.Confidence)
	assert.NotEmpty(t, out.Response.Content, "user always gets a response, even on total failure")
	assert.NotEmpty(t, out.Errors)
}

func TestHandleTurn_ValidationErrors(t *testing.T) {
	s := newTestSupervisor(t, checkpoint.NewMemoryStore())
	key := turnKey(t, "u1", "c1")

	_, err := s.HandleTurn(context.Background(), TurnInput{Key: key, Query: ""})
	assert.Error(t, err)

	_, err = s.HandleTurn(context.Background(), TurnInput{Key: key, Query: strings.Repeat("x", MaxQueryLength+1)})
	assert.Error(t, err)
}

func TestHandleTurn_CheckpointAccumulatesAcrossTurns(t *testing.T) {
	store := checkpoint.NewMemoryStore()
	s := newTestSupervisor(t, store)
	key := turnKey(t, "u1", "c1")
	ctx := context.Background()

	_, err := s.HandleTurn(ctx, TurnInput{Key: key, Query: "What was the EBITDA for 2023?"})
	require.NoError(t, err)
	_, err = s.HandleTurn(ctx, TurnInput{Key: key, Query: "And the revenue?"})
	require.NoError(t, err)

	snap, err := store.Get(ctx, key)
	require.NoError(t, err)
	require.NotNil(t, snap)
	require.Len(t, snap.Messages, 4)
	assert.Equal(t, "user", snap.Messages[0].Role)
	assert.Equal(t, "What was the EBITDA for 2023?", snap.Messages[0].Content)
	assert.Equal(t, "assistant", snap.Messages[3].Role)
	assert.Len(t, snap.Decisions, 2)
}

func TestHandleTurn_ThreadsAreIsolated(t *testing.T) {
	store := checkpoint.NewMemoryStore()
	s := newTestSupervisor(t, store)
	ctx := context.Background()

	alice := turnKey(t, "alice", "c1")
	bob := turnKey(t, "bob", "c1")

	_, err := s.HandleTurn(ctx, TurnInput{Key: alice, Query: "What was the EBITDA for 2023?"})
	require.NoError(t, err)

	snapBob, err := store.Get(ctx, bob)
	require.NoError(t, err)
	assert.Nil(t, snapBob, "bob's thread must not see alice's turn")

	snapAlice, err := store.Get(ctx, alice)
	require.NoError(t, err)
	require.NotNil(t, snapAlice)
	assert.Len(t, snapAlice.Messages, 2)
}
