package supervisor

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hoferino/manda/internal/retry"
	"github.com/hoferino/manda/pkg/schema"
)

func fastRetry() retry.Config {
	return retry.Config{MaxRetries: 2, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, Jitter: 0.1}
}

func TestExecute_SingleSpecialist(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(staticSpecialist(schema.SpecialistFinancial, "EBITDA was 4.2M", 0.92)))
	e := NewExecutor(reg, WithRetryConfig(fastRetry()))

	results := e.Execute(context.Background(), schema.SupervisorDecision{
		SelectedSpecialists: []schema.SpecialistID{schema.SpecialistFinancial},
	}, Request{Query: "what was EBITDA"})

	require.Len(t, results, 1)
	assert.Equal(t, schema.SpecialistFinancial, results[0].SpecialistID)
	assert.Equal(t, "EBITDA was 4.2M", results[0].Content)
	assert.Nil(t, results[0].Err)
	assert.GreaterOrEqual(t, results[0].TimingMs, int64(0))
}

func TestExecute_ParallelKeepsSelectionOrder(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(&fakeSpecialist{
		id: schema.SpecialistFinancial,
		fn: func(ctx context.Context, req Request) (*schema.SpecialistResult, error) {
			time.Sleep(30 * time.Millisecond) // finishes after entity
			return &schema.SpecialistResult{Content: "financial view", Confidence: 0.8}, nil
		},
	}))
	require.NoError(t, reg.Register(staticSpecialist(schema.SpecialistEntity, "entity view", 0.7)))
	e := NewExecutor(reg, WithRetryConfig(fastRetry()))

	results := e.Execute(context.Background(), schema.SupervisorDecision{
		SelectedSpecialists: []schema.SpecialistID{schema.SpecialistFinancial, schema.SpecialistEntity},
		IsParallel:          true,
	}, Request{})

	require.Len(t, results, 2)
	assert.Equal(t, schema.SpecialistFinancial, results[0].SpecialistID)
	assert.Equal(t, schema.SpecialistEntity, results[1].SpecialistID)
}

func TestExecute_TimeoutBecomesLowConfidenceResult(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(&fakeSpecialist{
		id: schema.SpecialistMarket,
		fn: func(ctx context.Context, req Request) (*schema.SpecialistResult, error) {
			select {
			case <-time.After(5 * time.Second):
				return &schema.SpecialistResult{Content: "too late", Confidence: 0.9}, nil
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		},
	}))
	e := NewExecutor(reg, WithRetryConfig(fastRetry()), WithTimeout(30*time.Millisecond))

	results := e.Execute(context.Background(), schema.SupervisorDecision{
		SelectedSpecialists: []schema.SpecialistID{schema.SpecialistMarket},
	}, Request{})

	require.Len(t, results, 1)
	assert.InDelta(t, timeoutConfidence, results[0].Confidence, 1e-9)
	assert.NotEqual(t, "too late", results[0].Content)
	require.NotNil(t, results[0].Err)
	assert.Equal(t, schema.ErrCodeLLM, results[0].Err.Code)
}

func TestExecute_RecoverableFailureIsRetried(t *testing.T) {
	var calls atomic.Int32
	reg := NewRegistry()
	require.NoError(t, reg.Register(&fakeSpecialist{
		id: schema.SpecialistLegal,
		fn: func(ctx context.Context, req Request) (*schema.SpecialistResult, error) {
			if calls.Add(1) < 3 {
				return nil, schema.NewError(schema.ErrCodeLLM, "rate limit")
			}
			return &schema.SpecialistResult{Content: "clause summary", Confidence: 0.85}, nil
		},
	}))
	e := NewExecutor(reg, WithRetryConfig(fastRetry()))

	results := e.Execute(context.Background(), schema.SupervisorDecision{
		SelectedSpecialists: []schema.SpecialistID{schema.SpecialistLegal},
	}, Request{})

	require.Len(t, results, 1)
	assert.Nil(t, results[0].Err)
	assert.Equal(t, "clause summary", results[0].Content)
	assert.Equal(t, int32(3), calls.Load())
}

func TestExecute_ExhaustedFailureBecomesDegradedResult(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(&fakeSpecialist{
		id: schema.SpecialistLegal,
		fn: func(ctx context.Context, req Request) (*schema.SpecialistResult, error) {
			return nil, schema.NewError(schema.ErrCodeTool, "retrieval index offline")
		},
	}))
	e := NewExecutor(reg, WithRetryConfig(fastRetry()))

	results := e.Execute(context.Background(), schema.SupervisorDecision{
		SelectedSpecialists: []schema.SpecialistID{schema.SpecialistLegal},
	}, Request{})

	require.Len(t, results, 1)
	assert.Zero(t, results[0].Confidence)
	require.NotNil(t, results[0].Err)
	assert.Equal(t, schema.ErrCodeTool, results[0].Err.Code)
	assert.Equal(t, schema.UserMessage(schema.ErrCodeTool), results[0].Content)
}

func TestExecute_UnregisteredSpecialistFillsSlot(t *testing.T) {
	e := NewExecutor(NewRegistry(), WithRetryConfig(fastRetry()))

	results := e.Execute(context.Background(), schema.SupervisorDecision{
		SelectedSpecialists: []schema.SpecialistID{schema.SpecialistGeneral},
	}, Request{})

	require.Len(t, results, 1)
	require.NotNil(t, results[0].Err)
	assert.Equal(t, schema.SpecialistGeneral, results[0].SpecialistID)
}

func TestExecute_CitationsExtractedFromRawPayload(t *testing.T) {
	raw := json.RawMessage(`{"sources": [{"document_id": "d1", "document_name": "loi.pdf", "relevance_score": 0.88}]}`)
	reg := NewRegistry()
	require.NoError(t, reg.Register(&fakeSpecialist{
		id: schema.SpecialistGeneral,
		fn: func(ctx context.Context, req Request) (*schema.SpecialistResult, error) {
			return &schema.SpecialistResult{Content: "summary", Confidence: 0.7, Raw: raw}, nil
		},
	}))
	e := NewExecutor(reg, WithRetryConfig(fastRetry()))

	results := e.Execute(context.Background(), schema.SupervisorDecision{
		SelectedSpecialists: []schema.SpecialistID{schema.SpecialistGeneral},
	}, Request{})

	require.Len(t, results, 1)
	require.Len(t, results[0].Sources, 1)
	assert.Equal(t, "d1", results[0].Sources[0].DocumentID)
}

func TestNewExecutor_DefaultTimeout(t *testing.T) {
	e := NewExecutor(NewRegistry())
	assert.Equal(t, 30*time.Second, e.timeout)

	e = NewExecutor(NewRegistry(), WithTimeout(5*time.Second))
	assert.Equal(t, 5*time.Second, e.timeout)
}
