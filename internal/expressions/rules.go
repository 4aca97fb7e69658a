package expressions

import (
	"context"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/hoferino/manda/pkg/schema"
)

// RuleEnv is the environment a routing predicate evaluates against. Every
// field is exposed as a top-level variable in the expression.
type RuleEnv struct {
	Query      string
	Domain     string
	Complexity string
	Phase      string
}

func (e RuleEnv) toMap() map[string]any {
	return map[string]any{
		"query":      e.Query,
		"domain":     e.Domain,
		"complexity": e.Complexity,
		"phase":      e.Phase,
	}
}

// RuleEngine evaluates boolean routing predicates written in expr-lang.
// Thread-safe: compiled *vm.Program objects are cached and reused across
// goroutines.
type RuleEngine struct {
	mu    sync.RWMutex
	cache map[string]*vm.Program
}

// NewRuleEngine creates a new routing rule engine.
func NewRuleEngine() *RuleEngine {
	return &RuleEngine{cache: make(map[string]*vm.Program)}
}

// Match compiles (or retrieves from cache) a predicate and evaluates it
// against the environment. Non-boolean results are a validation error, not
// a silent false.
func (e *RuleEngine) Match(ctx context.Context, predicate string, env RuleEnv) (bool, error) {
	if predicate == "" {
		return false, schema.NewError(schema.ErrCodeValidation, "empty routing predicate")
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}

	prg, err := e.getOrCompile(predicate)
	if err != nil {
		return false, err
	}

	out, err := vm.Run(prg, env.toMap())
	if err != nil {
		return false, schema.NewErrorf(schema.ErrCodeTool,
			"routing predicate %q failed: %s", predicate, err.Error()).
			WithCause(err).
			WithDetails(map[string]any{"predicate": predicate})
	}

	matched, ok := out.(bool)
	if !ok {
		return false, schema.NewErrorf(schema.ErrCodeValidation,
			"routing predicate %q returned %T, want bool", predicate, out).
			WithDetails(map[string]any{"predicate": predicate})
	}
	return matched, nil
}

func (e *RuleEngine) getOrCompile(predicate string) (*vm.Program, error) {
	e.mu.RLock()
	if prg, ok := e.cache[predicate]; ok {
		e.mu.RUnlock()
		return prg, nil
	}
	e.mu.RUnlock()

	e.mu.Lock()
	defer e.mu.Unlock()

	// Double-check after acquiring write lock.
	if prg, ok := e.cache[predicate]; ok {
		return prg, nil
	}

	prg, err := expr.Compile(predicate,
		expr.Env(RuleEnv{}.toMap()),
		expr.AsBool(),
	)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation,
			"routing predicate compile error in %q: %s", predicate, err.Error()).
			WithCause(err).
			WithDetails(map[string]any{"predicate": predicate})
	}

	e.cache[predicate] = prg
	return prg, nil
}
