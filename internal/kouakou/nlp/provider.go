// Package nlp provides the hosted-model classification layer for Kouakou.
//
// The hosted model sits at the end of the intent-resolution pipeline: the
// fast path and the retrieval matcher run first, and only messages they
// cannot resolve with enough confidence reach this layer. Its sole
// responsibility is translation: convert a free-form French message into a
// structured Result (action name + confidence) that the resolver can gate
// through the confirmation policy.
//
// Invariants (unchanged by this layer):
//   - The model only proposes actions; it never executes them.
//   - Every proposal is validated against the known action list before it is
//     trusted; unknown action names are rejected as malformed output.
//   - A failing or unreachable model is never fatal: callers degrade to the
//     best local candidate or a clarification prompt.
//   - Rate limiting bounds token spend per sender.
package nlp

import (
	"context"
	"errors"
)

// ErrRateLimit is returned by a Provider when the upstream API reports a
// rate-limiting condition (e.g. HTTP 429 Too Many Requests). Callers should
// fall back to the best local candidate rather than retrying in a loop.
var ErrRateLimit = errors.New("nlp: upstream rate limit exceeded")

// ErrMalformedOutput is returned when the model replies with content that
// cannot be interpreted as a valid Result (JSON parse failure, schema
// violation, or an action name outside the allowed list). Callers should
// surface a clarification prompt so the user knows to rephrase.
var ErrMalformedOutput = errors.New("nlp: malformed response from model")

// Turn is a single prior exchange in the conversation, injected into the
// model context so it has continuity across messages.
type Turn struct {
	// Role is "user" or "assistant".
	Role string
	// Content is the message text.
	Content string
}

// Request is the input to a single classification call.
//
// The caller populates AllowedIntents on each request; the list is cheap and
// intentionally not cached inside the provider so a stale catalogue is never
// used to validate output.
type Request struct {
	// Message is the raw text sent by the breeder.
	Message string

	// AllowedIntents is the complete list of action names the model may
	// produce. Any other name in the reply is rejected.
	AllowedIntents []string

	// History contains prior turns of the current conversation, oldest
	// first. May be nil for a fresh conversation.
	History []Turn

	// Sender identifies the user for rate limiting and traceability. The
	// system prompt instructs the model to ignore it.
	Sender string
}

// Result is the structured output of a classification call.
type Result struct {
	// Action is the proposed intent name, e.g. "create_revenu".
	Action string `json:"action"`

	// Confidence is the model's certainty in [0, 1]. The resolver applies
	// its own thresholds; this layer only guarantees the range.
	Confidence float64 `json:"confidence"`

	// Reasoning is an optional one-line explanation from the model, kept
	// for logging only. Never shown to the breeder.
	Reasoning string `json:"reasoning,omitempty"`
}

// Provider classifies free-form messages into farm-management intents.
//
// Implementations must be safe for concurrent use from multiple goroutines.
// When an implementation is unavailable (network error, timeout), it returns
// a descriptive error; callers degrade to local matching.
type Provider interface {
	Classify(ctx context.Context, req Request) (*Result, error)
}
