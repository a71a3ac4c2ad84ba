package agent

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/kbrou/kouakou/internal/kouakou/conversation"
	"github.com/kbrou/kouakou/internal/kouakou/intent"
	"github.com/kbrou/kouakou/internal/kouakou/knowledge"
	"github.com/kbrou/kouakou/internal/kouakou/learning"
	"github.com/kbrou/kouakou/internal/kouakou/nlp"
	"github.com/kbrou/kouakou/internal/kouakou/store"
)

type stubClassifier struct {
	result *nlp.Result
	err    error
	calls  int
}

func (s *stubClassifier) Classify(context.Context, nlp.Request) (*nlp.Result, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.result, nil
}

type recordingExecutor struct {
	intents []string
	params  []map[string]any
	err     error
}

func (e *recordingExecutor) Execute(_ context.Context, _ string, intentName string, params map[string]any) (string, error) {
	if e.err != nil {
		return "", e.err
	}
	e.intents = append(e.intents, intentName)
	e.params = append(e.params, params)
	return "", nil
}

type denyAccess struct{}

func (denyAccess) CanAccess(context.Context, string, string) error {
	return errors.New("not your project")
}

func newTestResolver(t *testing.T, deps func(*Deps)) *Resolver {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), "kouakou-test-*.db")
	if err != nil {
		t.Fatalf("failed to create temp db file: %v", err)
	}
	f.Close()

	st, err := store.Open(f.Name())
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	corpus, err := intent.LoadCorpus()
	if err != nil {
		t.Fatalf("LoadCorpus: %v", err)
	}

	learn := learning.NewService(st, nil)
	know := knowledge.NewService(st, nil)
	if err := know.Seed(context.Background()); err != nil {
		t.Fatalf("Seed: %v", err)
	}

	d := Deps{
		Conversations: conversation.NewStore(0, 0),
		Learning:      learn,
		Knowledge:     know,
		Retriever:     intent.NewRetriever(corpus, intent.Config{}, nil, learn, nil),
		Store:         st,
	}
	if deps != nil {
		deps(&d)
	}
	return NewResolver(d, Config{})
}

func msg(text string) Message {
	return Message{ProjetID: "projet-1", UserID: "user-1", ConversationID: "conv-1", Text: text}
}

func TestResolve_WeighingFastPath(t *testing.T) {
	exec := &recordingExecutor{}
	r := newTestResolver(t, func(d *Deps) { d.Exec = exec })

	res, err := r.Resolve(context.Background(), msg("P001 fait 45 kg"))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.Status != StatusExecuted {
		t.Fatalf("status = %s, want executed (reply: %s)", res.Status, res.Reply)
	}
	if res.Intent != intent.CreatePesee {
		t.Errorf("intent = %s, want create_pesee", res.Intent)
	}
	if res.Params["animal_code"] != "P001" || res.Params["poids_kg"] != 45.0 {
		t.Errorf("params = %v, want animal_code P001 and poids_kg 45", res.Params)
	}
	if res.Source != intent.SourceFastPath {
		t.Errorf("source = %s, want fast_path", res.Source)
	}
	if len(exec.intents) != 1 || exec.intents[0] != intent.CreatePesee {
		t.Errorf("executor saw %v, want one create_pesee", exec.intents)
	}
}

func TestResolve_SaleWithQuantityAndAmount(t *testing.T) {
	r := newTestResolver(t, nil)

	res, err := r.Resolve(context.Background(), msg("j'ai vendu 5 porcs à 800000"))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.Status != StatusExecuted {
		t.Fatalf("status = %s, want executed (reply: %s)", res.Status, res.Reply)
	}
	if res.Intent != intent.CreateRevenu {
		t.Errorf("intent = %s, want create_revenu", res.Intent)
	}
	if res.Params["montant"] != 800000.0 {
		t.Errorf("montant = %v, want 800000", res.Params["montant"])
	}
	if res.Params["nombre"] != 5.0 {
		t.Errorf("nombre = %v, want 5", res.Params["nombre"])
	}
}

func TestResolve_LargeAmountNeedsConfirmation(t *testing.T) {
	exec := &recordingExecutor{}
	r := newTestResolver(t, func(d *Deps) { d.Exec = exec })
	ctx := context.Background()

	res, err := r.Resolve(ctx, msg("j'ai vendu 10 porcs à 6000000"))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.Status != StatusNeedsConfirmation || !res.RequiresConfirmation {
		t.Fatalf("status = %s, want needs_confirmation", res.Status)
	}
	if len(exec.intents) != 0 {
		t.Fatalf("executor ran before confirmation: %v", exec.intents)
	}

	// The affirmative reply consumes the pending action without re-matching.
	res, err = r.Resolve(ctx, msg("oui"))
	if err != nil {
		t.Fatalf("Resolve(oui): %v", err)
	}
	if res.Status != StatusExecuted {
		t.Fatalf("status after oui = %s, want executed", res.Status)
	}
	if res.Intent != intent.CreateRevenu || res.Params["montant"] != 6000000.0 {
		t.Errorf("confirmed action = %s %v, want create_revenu montant 6000000", res.Intent, res.Params)
	}
	if len(exec.intents) != 1 {
		t.Errorf("executor ran %d times, want 1", len(exec.intents))
	}
}

func TestResolve_RejectedConfirmation(t *testing.T) {
	exec := &recordingExecutor{}
	r := newTestResolver(t, func(d *Deps) { d.Exec = exec })
	ctx := context.Background()

	if _, err := r.Resolve(ctx, msg("j'ai vendu 10 porcs à 6000000")); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	res, err := r.Resolve(ctx, msg("non"))
	if err != nil {
		t.Fatalf("Resolve(non): %v", err)
	}
	if res.Status != StatusRejected {
		t.Fatalf("status = %s, want rejected", res.Status)
	}
	if len(exec.intents) != 0 {
		t.Errorf("executor ran on rejection: %v", exec.intents)
	}
}

func TestResolve_UnrelatedMessageClearsPending(t *testing.T) {
	exec := &recordingExecutor{}
	r := newTestResolver(t, func(d *Deps) { d.Exec = exec })
	ctx := context.Background()

	if _, err := r.Resolve(ctx, msg("j'ai vendu 10 porcs à 6000000")); err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	// A new operational message resolves on its own; the parked sale must
	// never execute silently.
	res, err := r.Resolve(ctx, msg("P001 fait 45 kg"))
	if err != nil {
		t.Fatalf("Resolve(pesee): %v", err)
	}
	if res.Status != StatusExecuted || res.Intent != intent.CreatePesee {
		t.Fatalf("got %s/%s, want executed create_pesee", res.Status, res.Intent)
	}
	for _, name := range exec.intents {
		if name == intent.CreateRevenu {
			t.Fatal("parked sale executed without confirmation")
		}
	}
}

func TestResolve_DeleteAlwaysConfirmed(t *testing.T) {
	r := newTestResolver(t, nil)

	res, err := r.Resolve(context.Background(), msg("supprime la dernière dépense"))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.Status != StatusNeedsConfirmation {
		t.Fatalf("status = %s, want needs_confirmation (intent %s, reply %s)",
			res.Status, res.Intent, res.Reply)
	}
	if res.Intent != intent.DeleteRecord {
		t.Errorf("intent = %s, want delete_record", res.Intent)
	}
}

func TestResolve_UnreachableClassifierClarifies(t *testing.T) {
	cls := &stubClassifier{err: errors.New("connection refused")}
	r := newTestResolver(t, func(d *Deps) { d.Classifier = cls })

	res, err := r.Resolve(context.Background(), msg("les choses vont comme elles vont"))
	if err != nil {
		t.Fatalf("Resolve must not fail when the classifier is down: %v", err)
	}
	if res.Status != StatusClarification {
		t.Fatalf("status = %s, want clarification (intent %s)", res.Status, res.Intent)
	}
	if res.Reply == "" {
		t.Error("clarification has no reply text")
	}
	if cls.calls == 0 {
		t.Error("classifier was never consulted")
	}
}

func TestResolve_ClassifierResolvesAmbiguousMessage(t *testing.T) {
	cls := &stubClassifier{result: &nlp.Result{Action: intent.GetStatistics, Confidence: 0.82}}
	r := newTestResolver(t, func(d *Deps) { d.Classifier = cls })

	res, err := r.Resolve(context.Background(), msg("fais-moi un point global sur tout"))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.Status != StatusExecuted {
		t.Fatalf("status = %s, want executed (reply %s)", res.Status, res.Reply)
	}
	if res.Intent != intent.GetStatistics || res.Source != intent.SourceHostedModel {
		t.Errorf("got %s from %s, want get_statistics from hosted_model", res.Intent, res.Source)
	}
}

func TestResolve_LowConfidenceAsksDidYouMean(t *testing.T) {
	exec := &recordingExecutor{}
	cls := &stubClassifier{result: &nlp.Result{Action: intent.GetStatistics, Confidence: 0.75}}
	r := newTestResolver(t, func(d *Deps) {
		d.Classifier = cls
		d.Exec = exec
	})

	res, err := r.Resolve(context.Background(), msg("fais-moi un point global sur tout"))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.Status != StatusNeedsConfirmation {
		t.Fatalf("status = %s, want needs_confirmation (reply %s)", res.Status, res.Reply)
	}
	if !strings.Contains(res.Reply, "Tu veux dire") {
		t.Errorf("low-confidence prompt %q should ask what the user meant", res.Reply)
	}
	if len(exec.intents) != 0 {
		t.Fatal("executor ran before the uncertain resolution was confirmed")
	}

	res, err = r.Resolve(context.Background(), msg("oui c'est ça"))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.Status != StatusExecuted {
		t.Fatalf("status = %s, want executed after confirmation (reply %s)", res.Status, res.Reply)
	}
	if len(exec.intents) != 1 || exec.intents[0] != intent.GetStatistics {
		t.Errorf("executor saw %v, want one get_statistics", exec.intents)
	}
}

func TestResolve_MissingRequiredParamAsksForIt(t *testing.T) {
	cls := &stubClassifier{result: &nlp.Result{Action: intent.CreateVaccination, Confidence: 0.9}}
	r := newTestResolver(t, func(d *Deps) { d.Classifier = cls })

	res, err := r.Resolve(context.Background(), msg("note une vaccination pour demain matin"))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.Status != StatusClarification {
		t.Fatalf("status = %s, want clarification", res.Status)
	}
	if !strings.Contains(res.Reply, "animal") {
		t.Errorf("clarification %q does not name the missing field", res.Reply)
	}
}

func TestResolve_KnowledgeQuestionAnswered(t *testing.T) {
	r := newTestResolver(t, nil)

	res, err := r.Resolve(context.Background(), msg("quelle race de porc choisir ?"))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.Status != StatusAnswer {
		t.Fatalf("status = %s, want answer (reply %s)", res.Status, res.Reply)
	}
	if res.Intent != intent.AnswerKnowledge {
		t.Errorf("intent = %s, want answer_knowledge_question", res.Intent)
	}
	if !strings.Contains(res.Reply, "Large White") {
		t.Errorf("reply does not draw on the races document: %q", res.Reply)
	}
}

func TestResolve_Greeting(t *testing.T) {
	r := newTestResolver(t, nil)

	res, err := r.Resolve(context.Background(), msg("bonjour"))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.Status != StatusAnswer {
		t.Fatalf("status = %s, want answer", res.Status)
	}
	if !strings.Contains(res.Reply, "Kouakou") {
		t.Errorf("greeting reply = %q", res.Reply)
	}
}

func TestResolve_LearnedReuseAfterCorrection(t *testing.T) {
	r := newTestResolver(t, nil)
	ctx := context.Background()

	r.RecordOutcome(Outcome{
		Kind:          OutcomeCorrection,
		ProjetID:      "projet-1",
		Message:       "le client a pris la marchandise porcine habituelle",
		Intent:        intent.CreateDepense,
		CorrectIntent: intent.CreateRevenu,
		Params:        map[string]any{"montant": 250000.0},
	})
	r.deps.Learning.Recorder().Wait()

	res, err := r.Resolve(ctx, msg("le client a pris la marchandise porcine habituelle"))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.Intent != intent.CreateRevenu {
		t.Fatalf("intent = %s, want corrected create_revenu (status %s)", res.Intent, res.Status)
	}
	if res.Source != intent.SourceLearned {
		t.Errorf("source = %s, want learned", res.Source)
	}
	if res.Params["montant"] != 250000.0 {
		t.Errorf("montant = %v, want memorized 250000", res.Params["montant"])
	}
}

func TestResolve_ExecutionFailureIsSafe(t *testing.T) {
	exec := &recordingExecutor{err: errors.New("db locked")}
	r := newTestResolver(t, func(d *Deps) { d.Exec = exec })

	res, err := r.Resolve(context.Background(), msg("P001 fait 45 kg"))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.Status != StatusFailed {
		t.Fatalf("status = %s, want failed", res.Status)
	}
	if strings.Contains(res.Reply, "db locked") {
		t.Errorf("internal error leaked to the operator: %q", res.Reply)
	}
}

func TestResolve_AccessDenied(t *testing.T) {
	r := newTestResolver(t, func(d *Deps) { d.Access = denyAccess{} })

	if _, err := r.Resolve(context.Background(), msg("P001 fait 45 kg")); err == nil {
		t.Fatal("expected an access error")
	}
}

func TestResolve_PersistsConversationMemory(t *testing.T) {
	r := newTestResolver(t, nil)
	ctx := context.Background()

	if _, err := r.Resolve(ctx, msg("P001 fait 45 kg")); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	history, err := r.deps.Store.ConversationHistory(ctx, "projet-1", "conv-1", 10)
	if err != nil {
		t.Fatalf("ConversationHistory: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("logged %d messages, want user+assistant", len(history))
	}
	if history[0].Role != "user" || history[1].Role != "assistant" {
		t.Errorf("roles = %s/%s, want user/assistant", history[0].Role, history[1].Role)
	}
}

func TestSearchKnowledge_TopicRetryAndRelated(t *testing.T) {
	r := newTestResolver(t, nil)

	// The topic anchor is wrong for the question; the retry across all
	// categories must still find the feeding document.
	ans, err := r.SearchKnowledge(context.Background(), "commerce", "quelle ration de provende pour l'engraissement")
	if err != nil {
		t.Fatalf("SearchKnowledge: %v", err)
	}
	if ans == nil {
		t.Fatal("no answer")
	}
	if !strings.Contains(strings.ToLower(ans.Title+ans.Body), "aliment") {
		t.Errorf("answer %q does not cover feeding", ans.Title)
	}
}
