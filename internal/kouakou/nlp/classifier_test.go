package nlp

import (
	"context"
	"errors"
	"testing"

	"github.com/kbrou/kouakou/internal/kouakou/intent"
)

type stubProvider struct {
	result *Result
	err    error
	calls  int
}

func (s *stubProvider) Classify(_ context.Context, _ Request) (*Result, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	out := *s.result
	return &out, nil
}

func classifyReq(message string) Request {
	return Request{
		Message:        message,
		AllowedIntents: intent.All,
		Sender:         "user-1",
	}
}

func TestClassify_ValidResult(t *testing.T) {
	stub := &stubProvider{result: &Result{
		Action:     intent.CreateRevenu,
		Confidence: 0.92,
		Reasoning:  "vente avec montant",
	}}
	c := NewClassifier(stub, nil)

	got, err := c.Classify(context.Background(), classifyReq("j'ai vendu 3 porcs a 450000"))
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if got.Action != intent.CreateRevenu {
		t.Errorf("action = %q, want %q", got.Action, intent.CreateRevenu)
	}
	if got.Confidence != 0.92 {
		t.Errorf("confidence = %v, want 0.92", got.Confidence)
	}
}

func TestClassify_UnknownActionRejected(t *testing.T) {
	stub := &stubProvider{result: &Result{
		Action:     "launch_rocket",
		Confidence: 0.99,
	}}
	c := NewClassifier(stub, nil)

	_, err := c.Classify(context.Background(), classifyReq("fais quelque chose"))
	if !errors.Is(err, ErrMalformedOutput) {
		t.Fatalf("err = %v, want ErrMalformedOutput", err)
	}
}

func TestClassify_SchemaViolations(t *testing.T) {
	tests := []struct {
		name   string
		result Result
	}{
		{"empty action", Result{Action: "", Confidence: 0.9}},
		{"confidence above one", Result{Action: intent.CreateDepense, Confidence: 1.4}},
		{"negative confidence", Result{Action: intent.CreateDepense, Confidence: -0.1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stub := &stubProvider{result: &tt.result}
			c := NewClassifier(stub, nil)
			_, err := c.Classify(context.Background(), classifyReq("depense de 5000"))
			if !errors.Is(err, ErrMalformedOutput) {
				t.Fatalf("err = %v, want ErrMalformedOutput", err)
			}
		})
	}
}

func TestClassify_ProviderErrorPassesThrough(t *testing.T) {
	stub := &stubProvider{err: ErrRateLimit}
	c := NewClassifier(stub, nil)

	_, err := c.Classify(context.Background(), classifyReq("statistiques"))
	if !errors.Is(err, ErrRateLimit) {
		t.Fatalf("err = %v, want ErrRateLimit", err)
	}
}

func TestStripCodeFence(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{`{"action":"other"}`, `{"action":"other"}`},
		{"```json\n{\"action\":\"other\"}\n```", `{"action":"other"}`},
		{"```\n{\"action\":\"other\"}\n```", `{"action":"other"}`},
		{"  {\"action\":\"other\"}  ", `{"action":"other"}`},
	}
	for _, tt := range tests {
		if got := stripCodeFence(tt.in); got != tt.want {
			t.Errorf("stripCodeFence(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
