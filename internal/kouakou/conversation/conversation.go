// Package conversation holds the short-lived per-conversation memory used
// for reference resolution ("le même acheteur", "celui-là") and for the
// pending-confirmation state machine.
//
// State is keyed by (project, conversation) and owned exclusively by that
// conversation: it never leaks across projects or users, and it expires
// after an inactivity window or a turn-count cap, whichever comes first.
package conversation

import (
	"strings"
	"sync"
	"time"

	"github.com/kbrou/kouakou/internal/kouakou/textutil"
)

// Entity kinds tracked in the reference window.
const (
	KindBuyer    = "acheteur"
	KindAnimal   = "animal"
	KindAmount   = "montant"
	KindDate     = "date"
	KindCategory = "categorie"
)

const (
	// DefaultTTL is the inactivity window after which a conversation's
	// state is discarded.
	DefaultTTL = 5 * time.Minute

	// DefaultMaxTurns caps how many turns a single conversation retains
	// before its state is reset.
	DefaultMaxTurns = 50

	// entityWindow bounds how many recent mentions are kept per kind.
	entityWindow = 10

	// mentionDedupWindow suppresses duplicate mentions of the same value
	// arriving in quick succession.
	mentionDedupWindow = time.Minute
)

// Decision is the outcome of consuming a user reply while a confirmation is
// pending.
type Decision int

const (
	// DecisionNone means no confirmation was pending.
	DecisionNone Decision = iota
	// DecisionConfirmed means the reply was affirmative; the pending action
	// should be executed.
	DecisionConfirmed
	// DecisionRejected means the reply was negative; the pending action is
	// dropped.
	DecisionRejected
	// DecisionUnrelated means the reply was neither affirmative nor
	// negative; the pending action has been cleared and the message must be
	// resolved from scratch. A pending action is never silently applied.
	DecisionUnrelated
)

// PendingAction is an action awaiting explicit user approval.
type PendingAction struct {
	Intent string
	Params map[string]any
	SetAt  time.Time
}

// Turn is one prior exchange, retained for hosted-model context.
type Turn struct {
	Role    string // "user" or "assistant"
	Content string
}

// affirmativeWords are normalized replies that mean "yes, proceed".
var affirmativeWords = []string{
	"oui", "ok", "okay", "d accord", "vas y", "allons y",
	"confirme", "valide", "c est bon", "parfait", "exact",
	"oui oui", "bien sur", "go", "yes",
}

// negativeWords are normalized replies that mean "no, cancel".
var negativeWords = []string{
	"non", "annule", "annuler", "stop", "laisse tomber",
	"abandonne", "pas du tout", "jamais", "no", "non non",
}

type mention struct {
	value       any
	mentionedAt time.Time
}

// State is the memory of a single conversation. All methods are safe for
// concurrent use; in practice one goroutine handles one message at a time
// but background recorders may read entities concurrently.
type State struct {
	mu       sync.Mutex
	entities map[string][]mention
	last     map[string]any
	turns    []Turn
	pending  *PendingAction
	lastSeen time.Time
	maxTurns int
	now      func() time.Time
}

func newState(maxTurns int, now func() time.Time) *State {
	return &State{
		entities: make(map[string][]mention),
		last:     make(map[string]any),
		maxTurns: maxTurns,
		lastSeen: now(),
		now:      now,
	}
}

// Remember records a mentioned entity so later references can resolve to it.
// Duplicate mentions of the same value within a minute collapse into one.
func (s *State) Remember(kind string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.last[kind] = value

	for _, m := range s.entities[kind] {
		if m.value == value && now.Sub(m.mentionedAt) < mentionDedupWindow {
			return
		}
	}

	window := append([]mention{{value: value, mentionedAt: now}}, s.entities[kind]...)
	if len(window) > entityWindow {
		window = window[:entityWindow]
	}
	s.entities[kind] = window
}

// referencePhrases are the normalized tokens that point back at a recently
// mentioned entity.
var referencePhrases = []string{
	"le meme", "la meme", "celui la", "celle la",
	"le meme acheteur", "le meme animal", "la meme categorie",
}

// ResolveReference resolves a pronoun-like token ("le même", "celui-là") to
// the most recently mentioned entity of the given kind. The second return is
// false when nothing of that kind has been mentioned.
func (s *State) ResolveReference(token, kind string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	normalized := textutil.Normalize(token)
	for _, phrase := range referencePhrases {
		if normalized == phrase {
			if window := s.entities[kind]; len(window) > 0 {
				return window[0].value, true
			}
			break
		}
	}
	if v, ok := s.last[kind]; ok {
		return v, true
	}
	return nil, false
}

// RecentStrings lists the string values mentioned for a kind, most recent
// first. Non-string mentions (amounts) are skipped.
func (s *State) RecentStrings(kind string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []string
	for _, m := range s.entities[kind] {
		if v, ok := m.value.(string); ok {
			out = append(out, v)
		}
	}
	return out
}

// AddTurn appends one exchange to the conversation history, trimming to the
// turn cap.
func (s *State) AddTurn(role, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.turns = append(s.turns, Turn{Role: role, Content: content})
	if len(s.turns) > s.maxTurns {
		s.turns = s.turns[len(s.turns)-s.maxTurns:]
	}
	s.lastSeen = s.now()
}

// History returns up to n most recent turns, oldest first.
func (s *State) History(n int) []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n <= 0 || n > len(s.turns) {
		n = len(s.turns)
	}
	out := make([]Turn, n)
	copy(out, s.turns[len(s.turns)-n:])
	return out
}

// SetPendingConfirmation arms the confirmation machine with an action that
// must be approved before execution. Any previously pending action is
// replaced.
func (s *State) SetPendingConfirmation(intent string, params map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pending = &PendingAction{Intent: intent, Params: params, SetAt: s.now()}
}

// Pending returns the action currently awaiting approval, or nil.
func (s *State) Pending() *PendingAction {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending
}

// ConsumeReply feeds a user reply into the confirmation machine.
//
// With a pending action: an affirmative reply yields DecisionConfirmed and
// the action (retrieval is not re-run), a negative reply yields
// DecisionRejected, and anything else yields DecisionUnrelated — in every
// case the pending state is cleared. Without a pending action the reply is
// untouched and DecisionNone is returned.
func (s *State) ConsumeReply(text string) (Decision, *PendingAction) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pending == nil {
		return DecisionNone, nil
	}
	action := s.pending
	s.pending = nil

	// A reply counts as a bare word or a leading word with trailing text
	// ("oui je confirme"), never as a mid-sentence mention.
	normalized := textutil.Normalize(text)
	for _, w := range affirmativeWords {
		if normalized == w || strings.HasPrefix(normalized, w+" ") {
			return DecisionConfirmed, action
		}
	}
	for _, w := range negativeWords {
		if normalized == w || strings.HasPrefix(normalized, w+" ") {
			return DecisionRejected, action
		}
	}
	return DecisionUnrelated, nil
}
