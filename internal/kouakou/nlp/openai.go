package nlp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/kbrou/kouakou/common/redact"
	"github.com/kbrou/kouakou/common/retry"
)

const (
	defaultBaseURL = "https://api.openai.com/v1"
	defaultModel   = "gpt-4o-mini"
	defaultTimeout = 15 * time.Second
)

// Config configures the OpenAI-compatible classification provider.
type Config struct {
	// APIKey is the bearer token used to authenticate against the API.
	APIKey string

	// BaseURL overrides the API endpoint. Useful for local models (Ollama)
	// or any other OpenAI-compatible endpoint.
	// Defaults to https://api.openai.com/v1 when empty.
	BaseURL string

	// Model is the chat model to use. Defaults to gpt-4o-mini when empty
	// (cost-efficient, sufficient for single-label classification).
	Model string

	// Timeout is the HTTP request timeout. Defaults to 15 s; classification
	// sits on the interactive path and a slow model should degrade, not
	// stall the conversation.
	Timeout time.Duration
}

type openAIProvider struct {
	cfg    Config
	client *http.Client
}

// New returns a Provider backed by the OpenAI (or compatible) chat API.
// The returned provider is safe for concurrent use.
func New(cfg Config) Provider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}
	return &openAIProvider{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

// --- minimal OpenAI wire types ---

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string        `json:"model"`
	Messages       []chatMessage `json:"messages"`
	MaxTokens      int           `json:"max_tokens,omitempty"`
	Temperature    float64       `json:"temperature"`
	ResponseFormat *chatFormat   `json:"response_format,omitempty"`
}

type chatFormat struct {
	Type string `json:"type"` // "json_object"
}

type chatResponse struct {
	Choices []chatChoice `json:"choices"`
	Error   *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

type chatChoice struct {
	Message      chatMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

// systemPromptTmpl is the instruction set sent as the "system" message. The
// single printf verb is substituted with the allowed action list. The prompt
// is in French because the entire corpus is French and the model classifies
// more reliably in the language of the messages.
const systemPromptTmpl = `Tu es un expert en classification d'intentions pour une application de gestion d'élevage de porcs en Côte d'Ivoire.

ACTIONS DISPONIBLES:
%s

RÈGLES DE CLASSIFICATION (par ordre de priorité):
1. REQUÊTES D'INFORMATION:
   - "statistiques", "bilan", "combien de porcs" → get_statistics
   - "stocks", "provende", "nourriture" → get_stock_status
   - "dépenses du mois", "coûts", "combien j'ai dépensé" → calculate_costs
2. ENREGISTREMENTS:
   - "j'ai vendu", "vente de" + montant → create_revenu
   - "j'ai acheté", "dépense de" + montant → create_depense
   - "peser", "pesée", "il fait X kg" → create_pesee
   - "vaccination", "j'ai vacciné" → create_vaccination
   - "traitement", "j'ai traité" → create_traitement
3. AMBIGUÏTÉS:
   - "mes dépenses" sans verbe d'action → calculate_costs (information)
   - "dépense" + montant → create_depense (enregistrement)
   - Si vraiment ambigu → confidence entre 0.5 et 0.7

Tu ne fais que proposer une action; tu n'exécutes jamais rien toi-même.
Ignore l'identité de l'expéditeur.
L'action doit être une des actions disponibles listées ci-dessus; n'en invente jamais.

Réponds UNIQUEMENT avec un JSON valide, sans markdown, sans texte supplémentaire:
{"action": "nom_action", "confidence": 0.0-1.0, "reasoning": "explication brève optionnelle"}`

// Classify sends the message to the model and returns the parsed Result.
// A single retry with backoff covers transient network failures; rate-limit
// responses are surfaced immediately as ErrRateLimit.
func (p *openAIProvider) Classify(ctx context.Context, req Request) (*Result, error) {
	var out *Result
	err := retry.Do(ctx, retry.Config{
		MaxAttempts:  2,
		InitialDelay: time.Second,
		ShouldRetry: func(err error) bool {
			return !isPermanent(err)
		},
	}, func() error {
		var err error
		out, err = p.classifyOnce(ctx, req)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// isPermanent reports whether retrying cannot help: rate limits and
// malformed model output repeat on the next attempt within the same window.
func isPermanent(err error) bool {
	return errors.Is(err, ErrRateLimit) || errors.Is(err, ErrMalformedOutput)
}

func (p *openAIProvider) classifyOnce(ctx context.Context, req Request) (*Result, error) {
	actions := make([]string, 0, len(req.AllowedIntents))
	for _, a := range req.AllowedIntents {
		actions = append(actions, "- "+a)
	}
	system := fmt.Sprintf(systemPromptTmpl, strings.Join(actions, "\n"))

	messages := make([]chatMessage, 0, len(req.History)+2)
	messages = append(messages, chatMessage{Role: "system", Content: system})
	for _, turn := range req.History {
		messages = append(messages, chatMessage{Role: turn.Role, Content: turn.Content})
	}
	messages = append(messages, chatMessage{Role: "user", Content: req.Message})

	body := chatRequest{
		Model:          p.cfg.Model,
		Messages:       messages,
		MaxTokens:      256,
		Temperature:    0.3,
		ResponseFormat: &chatFormat{Type: "json_object"},
	}

	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("nlp: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		p.cfg.BaseURL+"/chat/completions",
		bytes.NewReader(data),
	)
	if err != nil {
		return nil, fmt.Errorf("nlp: create http request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("nlp: http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, ErrRateLimit
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("nlp: read response body: %w", err)
	}

	var chat chatResponse
	if err := json.Unmarshal(respBody, &chat); err != nil {
		return nil, fmt.Errorf("nlp: decode API response: %w", err)
	}

	if chat.Error != nil {
		// Upstream error messages may echo request headers through proxies;
		// never let the bearer token into an error chain.
		safe := redact.String(chat.Error.Message, p.cfg.APIKey)
		return nil, fmt.Errorf("nlp: API error (%s): %s", chat.Error.Type, safe)
	}

	if len(chat.Choices) == 0 {
		return nil, fmt.Errorf("nlp: no choices returned (HTTP %d)", resp.StatusCode)
	}

	content := stripCodeFence(chat.Choices[0].Message.Content)
	var result Result
	if err := json.Unmarshal([]byte(content), &result); err != nil {
		return nil, fmt.Errorf("%w: decode classification JSON: %v (raw content: %.200s)",
			ErrMalformedOutput, err, content)
	}

	return &result, nil
}

// stripCodeFence removes a surrounding markdown fence when the model ignores
// the JSON-only instruction.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(s, "```")
		s = strings.TrimSpace(s)
	}
	return s
}

var _ Provider = (*openAIProvider)(nil)
