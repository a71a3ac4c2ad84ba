package nlp

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed result_schema.json
var resultSchemaJSON string

var resultSchema = jsonschema.MustCompileString("result_schema.json", resultSchemaJSON)

// Classifier wraps a Provider with output validation.
//
// It adds two layers of enforcement on top of the raw model output:
//  1. Schema validation: the reply must match the embedded result schema
//     (action present, confidence in [0, 1], no extra fields).
//  2. Action validation: the action name must be one of the allowed intents
//     from the request, preventing the model from producing phantom actions.
//
// Either violation is reported as ErrMalformedOutput so callers can treat a
// misbehaving model exactly like an unreachable one and degrade.
//
// Classifier implements Provider and can be used as a drop-in replacement
// wherever a Provider is accepted.
type Classifier struct {
	provider Provider
	log      *slog.Logger
}

// NewClassifier returns a Classifier backed by provider.
// A nil log falls back to slog.Default().
func NewClassifier(provider Provider, log *slog.Logger) *Classifier {
	if log == nil {
		log = slog.Default()
	}
	return &Classifier{provider: provider, log: log}
}

// Classify calls the underlying Provider and validates the returned Result
// against the schema and the request's allowed intent list.
func (c *Classifier) Classify(ctx context.Context, req Request) (*Result, error) {
	result, err := c.provider.Classify(ctx, req)
	if err != nil {
		return nil, err
	}

	if err := validateResult(result); err != nil {
		c.log.Warn("nlp: model output failed schema validation",
			"err", err, "action", result.Action, "confidence", result.Confidence)
		return nil, fmt.Errorf("%w: %v", ErrMalformedOutput, err)
	}

	if !allowed(result.Action, req.AllowedIntents) {
		c.log.Warn("nlp: model proposed unknown action", "action", result.Action)
		return nil, fmt.Errorf("%w: action %q is not in the allowed list",
			ErrMalformedOutput, result.Action)
	}

	return result, nil
}

// validateResult checks result against the embedded JSON schema. The struct
// is round-tripped through JSON because the schema engine validates decoded
// documents, not Go values.
func validateResult(result *Result) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("decode result: %w", err)
	}
	return resultSchema.Validate(doc)
}

func allowed(action string, intents []string) bool {
	for _, it := range intents {
		if it == action {
			return true
		}
	}
	return false
}

var _ Provider = (*Classifier)(nil)
