package supervisor

import (
	"context"
	"log/slog"
	"strings"

	"github.com/hoferino/manda/internal/expressions"
	"github.com/hoferino/manda/pkg/schema"
)

// Rule binds a routing predicate to the specialists it selects. Predicates
// are expr-lang expressions over the RuleEnv variables (query, domain,
// complexity, phase); every matching rule contributes its specialists.
type Rule struct {
	Predicate   string                `json:"predicate"`
	Specialists []schema.SpecialistID `json:"specialists"`
	Rationale   string                `json:"rationale,omitempty"`
}

// DefaultRules is the built-in routing table. Complex financial queries
// fan out to the entity specialist as well, since cross-document
// comparisons almost always need contract and org-structure context.
func DefaultRules() []Rule {
	return []Rule{
		{
			Predicate:   `domain == "financial" and complexity == "complex"`,
			Specialists: []schema.SpecialistID{schema.SpecialistFinancial, schema.SpecialistEntity},
			Rationale:   "complex financial query needs entity cross-checks",
		},
		{
			Predicate:   `domain == "financial"`,
			Specialists: []schema.SpecialistID{schema.SpecialistFinancial},
			Rationale:   "financial domain",
		},
		{
			Predicate:   `domain == "legal"`,
			Specialists: []schema.SpecialistID{schema.SpecialistLegal},
			Rationale:   "legal domain",
		},
		{
			Predicate:   `domain == "entity"`,
			Specialists: []schema.SpecialistID{schema.SpecialistEntity},
			Rationale:   "entity domain",
		},
		{
			Predicate:   `domain == "market"`,
			Specialists: []schema.SpecialistID{schema.SpecialistMarket},
			Rationale:   "market domain",
		},
	}
}

// Router turns a classified query into a routing decision.
type Router struct {
	rules     []Rule
	engine    *expressions.RuleEngine
	ambiguity *expressions.AmbiguityPredicate
	logger    *slog.Logger
}

// RouterOption configures a Router.
type RouterOption func(*Router)

// WithAmbiguityPredicate installs an ambiguity check. Ambiguous queries
// route to the clarify specialist alone. Nil leaves detection off.
func WithAmbiguityPredicate(p *expressions.AmbiguityPredicate) RouterOption {
	return func(r *Router) { r.ambiguity = p }
}

// WithRouterLogger sets the logger.
func WithRouterLogger(logger *slog.Logger) RouterOption {
	return func(r *Router) { r.logger = logger }
}

// NewRouter creates a router over the given rules. Nil rules fall back to
// DefaultRules.
func NewRouter(rules []Rule, opts ...RouterOption) *Router {
	if rules == nil {
		rules = DefaultRules()
	}
	r := &Router{
		rules:  rules,
		engine: expressions.NewRuleEngine(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Route evaluates the routing table and returns a decision. Every matching
// rule contributes its specialists (deduplicated, in match order); no match
// falls back to the general specialist. A predicate that fails to evaluate
// is skipped, never fatal: losing one rule must not lose the turn.
func (r *Router) Route(ctx context.Context, query string, c schema.Classification, phase string) (schema.SupervisorDecision, error) {
	if r.ambiguity != nil {
		ambiguous, err := r.ambiguity.Ambiguous(query, c)
		if err != nil {
			r.logger.WarnContext(ctx, "ambiguity predicate failed, continuing without it", "error", err)
		} else if ambiguous {
			return schema.SupervisorDecision{
				SelectedSpecialists: []schema.SpecialistID{schema.SpecialistClarify},
				Rationale:           "query too ambiguous to route",
				IsParallel:          false,
			}, nil
		}
	}

	env := expressions.RuleEnv{
		Query:      query,
		Domain:     c.Domain,
		Complexity: c.Complexity,
		Phase:      phase,
	}

	var selected []schema.SpecialistID
	var rationales []string
	for _, rule := range r.rules {
		matched, err := r.engine.Match(ctx, rule.Predicate, env)
		if err != nil {
			r.logger.WarnContext(ctx, "routing rule skipped",
				"predicate", rule.Predicate, "error", err)
			continue
		}
		if !matched {
			continue
		}
		for _, id := range rule.Specialists {
			selected = appendUniqueSpecialist(selected, id)
		}
		if rule.Rationale != "" {
			rationales = append(rationales, rule.Rationale)
		}
	}

	if len(selected) == 0 {
		return schema.SupervisorDecision{
			SelectedSpecialists: []schema.SpecialistID{schema.SpecialistGeneral},
			Rationale:           "no routing rule matched, falling back to general",
			IsParallel:          false,
		}, nil
	}

	return schema.SupervisorDecision{
		SelectedSpecialists: selected,
		Rationale:           strings.Join(rationales, "; "),
		IsParallel:          len(selected) > 1,
	}, nil
}

func appendUniqueSpecialist(list []schema.SpecialistID, id schema.SpecialistID) []schema.SpecialistID {
	for _, v := range list {
		if v == id {
			return list
		}
	}
	return append(list, id)
}
