package expressions

import (
	"fmt"

	"github.com/google/cel-go/cel"

	"github.com/hoferino/manda/pkg/schema"
)

// AmbiguityPredicate decides whether a query is too ambiguous to route and
// should go to the clarify specialist instead. The predicate is a CEL
// expression compiled once at construction; it sees four variables:
//
//	query      string — the raw user query
//	length     int    — len(query)
//	domain     string — classified domain
//	complexity string — classified complexity
type AmbiguityPredicate struct {
	source string
	prg    cel.Program
}

// NewAmbiguityPredicate compiles the expression. An empty expression is a
// validation error; callers that want ambiguity detection off pass a nil
// predicate around instead.
func NewAmbiguityPredicate(expression string) (*AmbiguityPredicate, error) {
	if expression == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "empty ambiguity expression")
	}

	env, err := cel.NewEnv(
		cel.Variable("query", cel.StringType),
		cel.Variable("length", cel.IntType),
		cel.Variable("domain", cel.StringType),
		cel.Variable("complexity", cel.StringType),
	)
	if err != nil {
		return nil, fmt.Errorf("create CEL environment: %w", err)
	}

	ast, issues := env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation,
			"ambiguity expression compile error in %q: %s", expression, issues.Err().Error()).
			WithCause(issues.Err())
	}
	if ast.OutputType() != cel.BoolType {
		return nil, schema.NewErrorf(schema.ErrCodeValidation,
			"ambiguity expression %q returns %s, want bool", expression, ast.OutputType())
	}

	prg, err := env.Program(ast)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation,
			"ambiguity expression program error for %q: %s", expression, err.Error()).
			WithCause(err)
	}
	return &AmbiguityPredicate{source: expression, prg: prg}, nil
}

// Ambiguous evaluates the predicate for a classified query.
func (p *AmbiguityPredicate) Ambiguous(query string, c schema.Classification) (bool, error) {
	out, _, err := p.prg.Eval(map[string]any{
		"query":      query,
		"length":     len(query),
		"domain":     c.Domain,
		"complexity": c.Complexity,
	})
	if err != nil {
		return false, schema.NewErrorf(schema.ErrCodeTool,
			"ambiguity expression %q failed: %s", p.source, err.Error()).WithCause(err)
	}
	v, ok := out.Value().(bool)
	if !ok {
		return false, schema.NewErrorf(schema.ErrCodeTool,
			"ambiguity expression %q returned %T, want bool", p.source, out.Value())
	}
	return v, nil
}
