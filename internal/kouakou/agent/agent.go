// Package agent orchestrates the resolution pipeline: a raw operator
// message goes through pending-confirmation consumption, the fast path, the
// learned-reuse probe, retrieval, the hosted classifier and the
// confirmation policy, and always comes out as an executed action, a
// confirmation request, an answer or a clarification. No stage failure
// reaches the operator as a raw error.
package agent

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/kbrou/kouakou/common/trace"
	"github.com/kbrou/kouakou/internal/kouakou/confirm"
	"github.com/kbrou/kouakou/internal/kouakou/conversation"
	"github.com/kbrou/kouakou/internal/kouakou/extract"
	"github.com/kbrou/kouakou/internal/kouakou/fastpath"
	"github.com/kbrou/kouakou/internal/kouakou/intent"
	"github.com/kbrou/kouakou/internal/kouakou/knowledge"
	"github.com/kbrou/kouakou/internal/kouakou/learning"
	"github.com/kbrou/kouakou/internal/kouakou/nlp"
	"github.com/kbrou/kouakou/internal/kouakou/store"
	"github.com/kbrou/kouakou/internal/kouakou/textutil"
)

// Status tells the caller how a message was resolved.
type Status string

const (
	// StatusExecuted means the action ran (or was acknowledged when no
	// executor is wired).
	StatusExecuted Status = "executed"
	// StatusNeedsConfirmation means the action is parked pending an
	// explicit yes from the operator.
	StatusNeedsConfirmation Status = "needs_confirmation"
	// StatusAnswer means the message was answered without a domain action
	// (knowledge question, greeting).
	StatusAnswer Status = "answer"
	// StatusRejected means the operator declined a pending confirmation.
	StatusRejected Status = "rejected"
	// StatusClarification means resolution could not decide and asked the
	// operator to rephrase or supply a missing field.
	StatusClarification Status = "clarification"
	// StatusFailed means the action resolved but its execution failed;
	// Reply carries a safe message, never the internal error.
	StatusFailed Status = "failed"
)

// Message is one inbound operator message.
type Message struct {
	ProjetID       string
	UserID         string
	ConversationID string
	Text           string
}

// Resolution is the outcome of resolving one message.
type Resolution struct {
	Status               Status
	Intent               string
	Params               map[string]any
	Confidence           float64
	Source               intent.Source
	RequiresConfirmation bool
	// Reply is the operator-facing text, always in the operator's language.
	Reply string
}

// Answer is a knowledge-base response.
type Answer struct {
	Title         string
	Body          string
	RelatedTopics []string
}

// AccessChecker confirms a user may act on a project before anything
// executes. A nil checker allows everything.
type AccessChecker interface {
	CanAccess(ctx context.Context, projetID, userID string) error
}

// Executor runs a resolved action against the domain layer. A nil executor
// acknowledges actions without running them, which is what the interactive
// shell uses.
type Executor interface {
	Execute(ctx context.Context, projetID, intentName string, params map[string]any) (string, error)
}

// Config tunes the resolution thresholds.
type Config struct {
	// AutoExecute is the retrieval confidence above which the hosted
	// classifier is skipped.
	AutoExecute float64
	// ClarifyFloor is the confidence below which resolution asks for a
	// rephrase instead of guessing.
	ClarifyFloor float64
	// LearnedConfidence is assigned to candidates reused from the
	// learning store.
	LearnedConfidence float64
	// HistoryTurns is how much conversation history the hosted classifier
	// receives.
	HistoryTurns int
	// Policy gates execution behind confirmation.
	Policy confirm.Policy
	// Preference may relax the low-confidence confirmation rule.
	Preference confirm.Preference
}

func (c Config) withDefaults() Config {
	if c.AutoExecute == 0 {
		c.AutoExecute = 0.85
	}
	if c.ClarifyFloor == 0 {
		c.ClarifyFloor = 0.7
	}
	if c.LearnedConfidence == 0 {
		c.LearnedConfidence = 0.9
	}
	if c.HistoryTurns == 0 {
		c.HistoryTurns = 6
	}
	return c
}

// Deps wires the pipeline stages into the resolver. Conversations,
// Learning, Knowledge and Retriever are mandatory; the rest degrade
// gracefully when nil.
type Deps struct {
	Conversations *conversation.Store
	Learning      *learning.Service
	Knowledge     *knowledge.Service
	Retriever     *intent.Retriever
	Classifier    nlp.Provider
	Limiter       *nlp.RateLimiter
	Store         *store.Store
	Access        AccessChecker
	Exec          Executor
	Log           *slog.Logger
}

// Resolver is the message orchestrator. It is safe for concurrent use; all
// mutable state lives in the conversation store and the component caches.
type Resolver struct {
	cfg  Config
	deps Deps
	log  *slog.Logger
}

func NewResolver(deps Deps, cfg Config) *Resolver {
	log := deps.Log
	if log == nil {
		log = slog.Default()
	}
	if deps.Conversations == nil {
		deps.Conversations = conversation.NewStore(0, 0)
	}
	return &Resolver{
		cfg:  cfg.withDefaults(),
		deps: deps,
		log:  log.With("component", "agent"),
	}
}

// Resolve turns one message into an executed action, a confirmation
// request, an answer or a clarification. The returned error is reserved
// for infrastructure failures (access check); resolution trouble always
// becomes a clarification instead.
func (r *Resolver) Resolve(ctx context.Context, msg Message) (*Resolution, error) {
	if trace.FromContext(ctx) == "" {
		ctx = trace.WithTraceID(ctx, trace.GenerateID())
	}
	r.log.Debug("resolving message", "trace", trace.FromContext(ctx), "projet", msg.ProjetID)

	if r.deps.Access != nil {
		if err := r.deps.Access.CanAccess(ctx, msg.ProjetID, msg.UserID); err != nil {
			return nil, fmt.Errorf("agent: access check: %w", err)
		}
	}

	sess := r.deps.Conversations.Session(msg.ProjetID, msg.ConversationID)

	// A reply to a pending confirmation is consumed before any matching;
	// an unrelated message clears the pending action and resolves normally.
	decision, pending := sess.ConsumeReply(msg.Text)
	switch decision {
	case conversation.DecisionConfirmed:
		sess.AddTurn("user", msg.Text)
		cand := &intent.Candidate{Intent: pending.Intent, Confidence: 1, Params: pending.Params}
		return r.execute(ctx, msg, sess, cand, pending.Params), nil
	case conversation.DecisionRejected:
		sess.AddTurn("user", msg.Text)
		return r.reply(ctx, msg, sess, &Resolution{
			Status: StatusRejected,
			Reply:  "D'accord, j'annule. Rien n'a été enregistré.",
		}), nil
	}

	sess.AddTurn("user", msg.Text)
	params := extract.Extract(msg.Text, r.extractContext(sess))
	r.rememberEntities(sess, params)

	cand := r.resolveCandidate(ctx, msg, sess)
	if cand == nil || !intent.Known(cand.Intent) || cand.Confidence < r.cfg.ClarifyFloor {
		return r.reply(ctx, msg, sess, r.clarification(msg.Text)), nil
	}

	switch cand.Intent {
	case intent.AnswerKnowledge:
		return r.answerKnowledge(ctx, msg, sess, cand), nil
	case intent.Other:
		return r.smalltalk(ctx, msg, sess, cand), nil
	}

	spec, ok := actions[cand.Intent]
	if !ok {
		return r.reply(ctx, msg, sess, r.clarification(msg.Text)), nil
	}

	merged := mergeParams(cand.Params, params)
	for _, req := range spec.required {
		if _, ok := merged[req.field]; !ok {
			return r.reply(ctx, msg, sess, &Resolution{
				Status: StatusClarification,
				Intent: cand.Intent,
				Params: merged,
				Reply:  req.question,
			}), nil
		}
	}

	kind := confirm.KindOf(cand.Intent)
	reason := r.cfg.Policy.Evaluate(kind, typedParams(merged), cand.Confidence, r.cfg.Preference)
	if reason != confirm.ReasonNone {
		sess.SetPendingConfirmation(cand.Intent, merged)
		prompt := "Tu confirmes ?"
		switch {
		case reason == confirm.ReasonLowConfidence && spec.label != "":
			// Uncertainty gets a "did you mean" check, not the standard
			// confirmation of a well-understood action.
			prompt = fmt.Sprintf("Je ne suis pas sûr d'avoir compris. Tu veux dire %s ? (oui/non)", spec.label)
		case spec.confirm != nil:
			prompt = spec.confirm(merged)
		}
		return r.reply(ctx, msg, sess, &Resolution{
			Status:               StatusNeedsConfirmation,
			Intent:               cand.Intent,
			Params:               merged,
			Confidence:           cand.Confidence,
			Source:               cand.Source,
			RequiresConfirmation: true,
			Reply:                prompt,
		}), nil
	}

	return r.execute(ctx, msg, sess, cand, merged), nil
}

// resolveCandidate runs the matching stages in order of cost: fast path,
// learned reuse, retrieval, then the hosted classifier only when the local
// stages are not confident enough. Every stage failure degrades to the
// next stage.
func (r *Resolver) resolveCandidate(ctx context.Context, msg Message, sess *conversation.State) *intent.Candidate {
	if cand, ok := fastpath.Match(msg.Text); ok {
		return cand
	}

	if rec, err := r.deps.Learning.FindSimilar(ctx, msg.ProjetID, msg.Text); err != nil {
		r.log.Warn("learned-reuse probe failed", "error", err)
	} else if rec != nil {
		return &intent.Candidate{
			Intent:     rec.Intent,
			Confidence: r.cfg.LearnedConfidence,
			Source:     intent.SourceLearned,
			Params:     rec.Params,
		}
	}

	var best *intent.Candidate
	if cands := r.deps.Retriever.Retrieve(ctx, msg.ProjetID, msg.Text, 3); len(cands) > 0 {
		best = &cands[0]
	}
	if best != nil && best.Confidence >= r.cfg.AutoExecute {
		return best
	}

	if res := r.classify(ctx, msg, sess); res != nil {
		if best == nil || res.Confidence > best.Confidence {
			best = &intent.Candidate{
				Intent:     res.Action,
				Confidence: res.Confidence,
				Source:     intent.SourceHostedModel,
			}
		}
	}
	return best
}

// classify calls the hosted classifier when one is wired and the sender is
// within their rate budget. Any failure returns nil; the pipeline then
// lives with its local candidate.
func (r *Resolver) classify(ctx context.Context, msg Message, sess *conversation.State) *nlp.Result {
	if r.deps.Classifier == nil {
		return nil
	}
	if r.deps.Limiter != nil && !r.deps.Limiter.Allow(msg.UserID) {
		r.log.Warn("classification rate limited", "user", msg.UserID)
		return nil
	}

	var history []nlp.Turn
	for _, t := range sess.History(r.cfg.HistoryTurns) {
		history = append(history, nlp.Turn{Role: t.Role, Content: t.Content})
	}
	res, err := r.deps.Classifier.Classify(ctx, nlp.Request{
		Message:        msg.Text,
		AllowedIntents: intent.All,
		History:        history,
		Sender:         msg.UserID,
	})
	if err != nil {
		r.log.Warn("hosted classification unavailable", "error", err)
		return nil
	}
	return res
}

// execute runs the action and reports the outcome to the learning store in
// the background. Execution failure produces a safe reply, never the error.
func (r *Resolver) execute(ctx context.Context, msg Message, sess *conversation.State, cand *intent.Candidate, params map[string]any) *Resolution {
	reply := ""
	if r.deps.Exec != nil {
		out, err := r.deps.Exec.Execute(ctx, msg.ProjetID, cand.Intent, params)
		if err != nil {
			r.log.Error("action execution failed", "intent", cand.Intent, "error", err)
			r.deps.Learning.RecordFailure(msg.ProjetID, msg.Text, cand.Intent)
			return r.reply(ctx, msg, sess, &Resolution{
				Status: StatusFailed,
				Intent: cand.Intent,
				Params: params,
				Reply:  "Je n'ai pas pu enregistrer ça. Réessaie dans un instant.",
			})
		}
		reply = out
	}
	if reply == "" {
		if spec, ok := actions[cand.Intent]; ok && spec.ack != nil {
			reply = spec.ack(params)
		} else {
			reply = "C'est noté."
		}
	}

	r.deps.Learning.RecordSuccess(msg.ProjetID, msg.Text, cand.Intent, params, cand.Confidence)
	return r.reply(ctx, msg, sess, &Resolution{
		Status:     StatusExecuted,
		Intent:     cand.Intent,
		Params:     params,
		Confidence: cand.Confidence,
		Source:     cand.Source,
		Reply:      reply,
	})
}

// answerKnowledge serves an education question from the knowledge base.
func (r *Resolver) answerKnowledge(ctx context.Context, msg Message, sess *conversation.State, cand *intent.Candidate) *Resolution {
	topic, _ := cand.Params["topic"].(string)
	ans, err := r.SearchKnowledge(ctx, topic, msg.Text)
	if err != nil {
		r.log.Warn("knowledge search failed", "error", err)
	}
	if ans == nil {
		return r.reply(ctx, msg, sess, &Resolution{
			Status: StatusClarification,
			Intent: cand.Intent,
			Reply:  "Je n'ai pas trouvé d'information là-dessus. Tu peux préciser ta question ?",
		})
	}

	r.deps.Learning.RecordSuccess(msg.ProjetID, msg.Text, cand.Intent, cand.Params, cand.Confidence)
	body := ans.Title + "\n\n" + ans.Body
	if len(ans.RelatedTopics) > 0 {
		body += "\n\nSujets liés : " + strings.Join(ans.RelatedTopics, ", ")
	}
	return r.reply(ctx, msg, sess, &Resolution{
		Status:     StatusAnswer,
		Intent:     cand.Intent,
		Params:     cand.Params,
		Confidence: cand.Confidence,
		Source:     cand.Source,
		Reply:      body,
	})
}

// smalltalk answers greetings and identity questions locally.
func (r *Resolver) smalltalk(ctx context.Context, msg Message, sess *conversation.State, cand *intent.Candidate) *Resolution {
	reply := "Je suis là pour t'aider à gérer ton élevage. Tu peux me dicter une vente, une dépense ou une pesée."
	if g, _ := cand.Params["greeting"].(bool); g {
		reply = "Bonjour ! Je suis Kouakou, ton assistant d'élevage. Que puis-je faire pour toi ?"
	}
	return r.reply(ctx, msg, sess, &Resolution{
		Status:     StatusAnswer,
		Intent:     cand.Intent,
		Confidence: cand.Confidence,
		Source:     cand.Source,
		Reply:      reply,
	})
}

// SearchKnowledge answers a free-text question, optionally anchored to a
// topic category. A nil Answer with nil error means nothing relevant.
func (r *Resolver) SearchKnowledge(ctx context.Context, topic, question string) (*Answer, error) {
	results, err := r.deps.Knowledge.Search(ctx, question, topic, "", 3)
	if err != nil {
		return nil, fmt.Errorf("agent: search knowledge: %w", err)
	}
	if len(results) == 0 && topic != "" {
		// The topic anchor may be wrong; retry across all categories.
		results, err = r.deps.Knowledge.Search(ctx, question, "", "", 3)
		if err != nil {
			return nil, fmt.Errorf("agent: search knowledge: %w", err)
		}
	}
	if len(results) == 0 {
		return nil, nil
	}

	ans := &Answer{Title: results[0].Title, Body: results[0].Content}
	for _, res := range results[1:] {
		ans.RelatedTopics = append(ans.RelatedTopics, res.Title)
	}
	return ans, nil
}

// OutcomeKind names a feedback signal from the orchestrating layer.
type OutcomeKind string

const (
	OutcomeSuccess    OutcomeKind = "success"
	OutcomeFailure    OutcomeKind = "failure"
	OutcomeCorrection OutcomeKind = "correction"
)

// Outcome is one feedback signal about a past resolution.
type Outcome struct {
	Kind          OutcomeKind
	ProjetID      string
	Message       string
	Intent        string
	CorrectIntent string
	Params        map[string]any
	Confidence    float64
}

// RecordOutcome forwards a feedback signal to the learning store. The
// write is fire-and-forget; there is nothing to await.
func (r *Resolver) RecordOutcome(o Outcome) {
	switch o.Kind {
	case OutcomeSuccess:
		r.deps.Learning.RecordSuccess(o.ProjetID, o.Message, o.Intent, o.Params, o.Confidence)
	case OutcomeFailure:
		r.deps.Learning.RecordFailure(o.ProjetID, o.Message, o.Intent)
	case OutcomeCorrection:
		r.deps.Learning.RecordCorrection(o.ProjetID, o.Message, o.Intent, o.CorrectIntent, o.Params)
	default:
		r.log.Warn("unknown outcome kind", "kind", o.Kind)
	}
}

// reply finalizes a resolution: the assistant turn goes into the session
// and both turns into the persistent conversation memory, best-effort.
func (r *Resolver) reply(ctx context.Context, msg Message, sess *conversation.State, res *Resolution) *Resolution {
	sess.AddTurn("assistant", res.Reply)
	r.persistTurns(ctx, msg, res)
	return res
}

func (r *Resolver) persistTurns(ctx context.Context, msg Message, res *Resolution) {
	if r.deps.Store == nil {
		return
	}
	executed := res.Status == StatusExecuted
	detected := sql.NullString{String: res.Intent, Valid: res.Intent != ""}
	rows := []*store.ConversationMessage{
		{ID: uuid.NewString(), ProjetID: msg.ProjetID, UserID: msg.UserID,
			ConversationID: msg.ConversationID, Role: "user", Content: msg.Text,
			Intent: detected},
		{ID: uuid.NewString(), ProjetID: msg.ProjetID, UserID: msg.UserID,
			ConversationID: msg.ConversationID, Role: "assistant", Content: res.Reply,
			Intent:         detected,
			ActionExecuted: sql.NullString{String: res.Intent, Valid: executed},
			ActionSuccess:  sql.NullBool{Bool: executed, Valid: executed}},
	}
	for _, row := range rows {
		if err := r.deps.Store.AppendConversationMessage(ctx, row); err != nil {
			r.log.Warn("conversation memory append failed", "error", err)
			return
		}
	}
}

// clarification builds the fallback reply, enriched with the keywords that
// were understood so the operator knows what got through.
func (r *Resolver) clarification(text string) *Resolution {
	reply := "Je n'ai pas bien compris. Tu peux reformuler ?"
	if kws := textutil.Keywords(text); len(kws) > 0 {
		reply = fmt.Sprintf("Je n'ai pas bien compris. J'ai repéré : %s. Tu peux reformuler ?",
			strings.Join(kws, ", "))
	}
	return &Resolution{Status: StatusClarification, Reply: reply}
}

// extractContext feeds conversation memory into extraction so references
// like "le même acheteur" resolve.
func (r *Resolver) extractContext(sess *conversation.State) *extract.Context {
	return &extract.Context{
		RecentBuyers: sess.RecentStrings(conversation.KindBuyer),
	}
}

// rememberEntities stores the extracted entities for later reference
// resolution.
func (r *Resolver) rememberEntities(sess *conversation.State, params extract.Params) {
	fields := map[string]string{
		"acheteur":    conversation.KindBuyer,
		"animal_code": conversation.KindAnimal,
		"montant":     conversation.KindAmount,
		"date":        conversation.KindDate,
		"categorie":   conversation.KindCategory,
	}
	for field, kind := range fields {
		v, ok := params[field]
		if !ok {
			continue
		}
		if v.Kind == extract.KindNumber {
			sess.Remember(kind, v.Num)
		} else {
			sess.Remember(kind, v.Str)
		}
	}
}

// typedParams rebuilds a typed bag from merged parameters so the
// confirmation policy sees amounts that came from a learned record, not
// only from the current message.
func typedParams(merged map[string]any) extract.Params {
	out := make(extract.Params, len(merged))
	for field, v := range merged {
		switch t := v.(type) {
		case float64:
			out[field] = extract.Value{Kind: extract.KindNumber, Num: t}
		case string:
			out[field] = extract.Value{Kind: extract.KindString, Str: t}
		}
	}
	return out
}

// mergeParams overlays the freshly extracted parameters on the candidate's
// own (fast path or learned). The current message wins on conflict: a
// learned record may carry last week's amount.
func mergeParams(candParams map[string]any, extracted extract.Params) map[string]any {
	out := make(map[string]any, len(candParams)+len(extracted))
	for k, v := range candParams {
		out[k] = v
	}
	for k, v := range extracted.Plain() {
		out[k] = v
	}
	return out
}
