package validation

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/hoferino/manda/internal/expressions"
	"github.com/hoferino/manda/internal/supervisor"
	"github.com/hoferino/manda/pkg/schema"
)

// Manifest is the deployable routing configuration: the rule table plus the
// optional ambiguity predicate and executor tuning. Loaded from JSON at
// startup and validated before anything is wired.
type Manifest struct {
	Rules              []supervisor.Rule `json:"rules"`
	AmbiguityPredicate string            `json:"ambiguity_predicate,omitempty"`
	SpecialistTimeout  string            `json:"specialist_timeout,omitempty"`
}

// manifestSchemaJSON is the JSON Schema for Manifest validation. Embedded
// as a constant to avoid filesystem dependencies.
const manifestSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "https://manda.dev/schemas/manifest.json",
  "type": "object",
  "required": ["rules"],
  "properties": {
    "rules": {
      "type": "array",
      "minItems": 1,
      "items": { "$ref": "#/$defs/rule" }
    },
    "ambiguity_predicate": {
      "type": "string",
      "minLength": 1
    },
    "specialist_timeout": {
      "type": "string",
      "pattern": "^[0-9]+(ns|us|µs|ms|s|m|h)$"
    }
  },
  "additionalProperties": false,
  "$defs": {
    "rule": {
      "type": "object",
      "required": ["predicate", "specialists"],
      "properties": {
        "predicate": {
          "type": "string",
          "minLength": 1
        },
        "specialists": {
          "type": "array",
          "minItems": 1,
          "items": {
            "type": "string",
            "enum": ["general", "financial", "entity", "legal", "market", "clarify"]
          }
        },
        "rationale": { "type": "string" }
      },
      "additionalProperties": false
    }
  }
}`

// ManifestValidator validates routing manifests structurally (JSON Schema)
// and semantically (predicates must compile, timeouts must parse). Safe for
// concurrent use.
type ManifestValidator struct {
	manifestSchema *jsonschema.Schema
	engine         *expressions.RuleEngine
}

// NewManifestValidator pre-compiles the manifest schema.
func NewManifestValidator() (*ManifestValidator, error) {
	c := jsonschema.NewCompiler()
	c.AssertFormat()

	schemaDoc, err := jsonschema.UnmarshalJSON(strings.NewReader(manifestSchemaJSON))
	if err != nil {
		return nil, fmt.Errorf("unmarshal manifest schema: %w", err)
	}
	if err := c.AddResource("https://manda.dev/schemas/manifest.json", schemaDoc); err != nil {
		return nil, fmt.Errorf("add manifest schema resource: %w", err)
	}

	compiled, err := c.Compile("https://manda.dev/schemas/manifest.json")
	if err != nil {
		return nil, fmt.Errorf("compile manifest schema: %w", err)
	}

	return &ManifestValidator{
		manifestSchema: compiled,
		engine:         expressions.NewRuleEngine(),
	}, nil
}

// Parse decodes raw JSON into a Manifest and validates it. The returned
// manifest is ready to hand to the router.
func (v *ManifestValidator) Parse(ctx context.Context, raw []byte) (*Manifest, error) {
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(string(raw)))
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation,
			"manifest is not valid JSON: %s", err.Error()).WithCause(err)
	}
	if err := v.manifestSchema.Validate(doc); err != nil {
		return nil, toValidationError(err)
	}

	m := &Manifest{}
	if err := json.Unmarshal(raw, m); err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation,
			"decode manifest: %s", err.Error()).WithCause(err)
	}
	if err := v.Validate(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

// Validate runs the semantic checks JSON Schema cannot express: every
// predicate must compile as a boolean expression, the ambiguity predicate
// must compile, and the timeout must parse as a positive duration.
func (v *ManifestValidator) Validate(ctx context.Context, m *Manifest) error {
	if m == nil {
		return schema.NewError(schema.ErrCodeValidation, "manifest is nil")
	}
	if len(m.Rules) == 0 {
		return schema.NewError(schema.ErrCodeValidation, "manifest has no routing rules")
	}

	for i, rule := range m.Rules {
		if _, err := v.engine.Match(ctx, rule.Predicate, expressions.RuleEnv{}); err != nil {
			return schema.NewErrorf(schema.ErrCodeValidation,
				"rules[%d]: invalid predicate %q: %s", i, rule.Predicate, err.Error()).WithCause(err)
		}
		for j, id := range rule.Specialists {
			if !schema.KnownSpecialists[id] {
				return schema.NewErrorf(schema.ErrCodeValidation,
					"rules[%d].specialists[%d]: unknown specialist %q", i, j, id)
			}
		}
	}

	if m.AmbiguityPredicate != "" {
		if _, err := expressions.NewAmbiguityPredicate(m.AmbiguityPredicate); err != nil {
			return schema.NewErrorf(schema.ErrCodeValidation,
				"ambiguity_predicate: %s", err.Error()).WithCause(err)
		}
	}

	if m.SpecialistTimeout != "" {
		d, err := time.ParseDuration(m.SpecialistTimeout)
		if err != nil {
			return schema.NewErrorf(schema.ErrCodeValidation,
				"specialist_timeout %q: %s", m.SpecialistTimeout, err.Error()).WithCause(err)
		}
		if d <= 0 {
			return schema.NewErrorf(schema.ErrCodeValidation,
				"specialist_timeout %q must be positive", m.SpecialistTimeout)
		}
	}

	return nil
}

// toValidationError converts a jsonschema.ValidationError into an
// AgentError with per-location violation messages.
func toValidationError(err error) *schema.AgentError {
	verr, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return schema.NewError(schema.ErrCodeValidation, err.Error())
	}

	violations := collectViolations(verr)
	if len(violations) == 0 {
		return schema.NewError(schema.ErrCodeValidation, verr.Error())
	}

	if len(violations) == 1 {
		return schema.NewError(schema.ErrCodeValidation, violations[0]).
			WithDetails(map[string]any{"violations": violations})
	}

	msg := fmt.Sprintf("manifest validation failed with %d errors", len(violations))
	return schema.NewError(schema.ErrCodeValidation, msg).
		WithDetails(map[string]any{"violations": violations})
}

// collectViolations walks a ValidationError tree and collects leaf error
// messages with their instance locations.
func collectViolations(verr *jsonschema.ValidationError) []string {
	if len(verr.Causes) == 0 {
		loc := "/"
		if len(verr.InstanceLocation) > 0 {
			loc = "/" + strings.Join(verr.InstanceLocation, "/")
		}
		return []string{fmt.Sprintf("%s: %s", loc, verr.Error())}
	}

	var violations []string
	for _, cause := range verr.Causes {
		violations = append(violations, collectViolations(cause)...)
	}
	return violations
}
