package expressions

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/itchyny/gojq"

	"github.com/hoferino/manda/pkg/schema"
)

// DefaultCitationQuery pulls citation objects out of a raw specialist
// payload. Specialists that follow the standard shape put them under
// "sources"; the optional iterator tolerates payloads without any.
const DefaultCitationQuery = `.sources[]?`

// CitationExtractor pulls source citations out of raw specialist JSON using
// jq queries. Thread-safe: compiled *gojq.Code objects are cached and
// reused across goroutines.
type CitationExtractor struct {
	mu    sync.RWMutex
	cache map[string]*gojq.Code
}

// NewCitationExtractor creates a new extractor.
func NewCitationExtractor() *CitationExtractor {
	return &CitationExtractor{cache: make(map[string]*gojq.Code)}
}

// Extract runs the query against the raw payload and decodes every emitted
// object as a citation. A nil or empty payload yields no citations; emitted
// values that are not citation objects are a tool error.
func (e *CitationExtractor) Extract(ctx context.Context, raw json.RawMessage, query string) ([]schema.SourceCitation, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	if query == "" {
		query = DefaultCitationQuery
	}

	code, err := e.getOrCompile(query)
	if err != nil {
		return nil, err
	}

	var input any
	if err := json.Unmarshal(raw, &input); err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeTool,
			"specialist payload is not valid JSON: %s", err.Error()).WithCause(err)
	}

	iter := code.RunWithContext(ctx, input)

	var out []schema.SourceCitation
	for {
		val, ok := iter.Next()
		if !ok {
			break
		}
		if err, isErr := val.(error); isErr {
			return nil, schema.NewErrorf(schema.ErrCodeTool,
				"citation query %q failed: %s", query, err.Error()).
				WithCause(err).
				WithDetails(map[string]any{"query": query})
		}
		if val == nil {
			continue
		}
		cite, err := decodeCitation(val)
		if err != nil {
			return nil, schema.NewErrorf(schema.ErrCodeTool,
				"citation query %q emitted a non-citation value: %s", query, err.Error()).
				WithCause(err).
				WithDetails(map[string]any{"query": query})
		}
		out = append(out, cite)
	}
	return out, nil
}

func decodeCitation(val any) (schema.SourceCitation, error) {
	data, err := json.Marshal(val)
	if err != nil {
		return schema.SourceCitation{}, err
	}
	var cite schema.SourceCitation
	if err := json.Unmarshal(data, &cite); err != nil {
		return schema.SourceCitation{}, err
	}
	return cite, nil
}

func (e *CitationExtractor) getOrCompile(query string) (*gojq.Code, error) {
	e.mu.RLock()
	if code, ok := e.cache[query]; ok {
		e.mu.RUnlock()
		return code, nil
	}
	e.mu.RUnlock()

	e.mu.Lock()
	defer e.mu.Unlock()

	// Double-check after acquiring write lock.
	if code, ok := e.cache[query]; ok {
		return code, nil
	}

	parsed, err := gojq.Parse(query)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation,
			"citation query parse error in %q: %s", query, err.Error()).
			WithCause(err).
			WithDetails(map[string]any{"query": query})
	}

	code, err := gojq.Compile(parsed,
		// Sandbox: block $ENV and env access.
		gojq.WithEnvironLoader(func() []string { return nil }),
	)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation,
			"citation query compile error in %q: %s", query, err.Error()).
			WithCause(err).
			WithDetails(map[string]any{"query": query})
	}

	e.cache[query] = code
	return code, nil
}
