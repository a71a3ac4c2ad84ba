// Command kouakou runs the assistant as an interactive shell: each line
// typed on stdin is resolved through the full pipeline and the reply is
// printed. Domain actions are acknowledged, not executed; the shell exists
// to exercise and debug resolution, not to manage a farm.
package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/kbrou/kouakou/common/environment"
	"github.com/kbrou/kouakou/common/version"
	"github.com/kbrou/kouakou/internal/kouakou/agent"
	"github.com/kbrou/kouakou/internal/kouakou/confirm"
	"github.com/kbrou/kouakou/internal/kouakou/conversation"
	"github.com/kbrou/kouakou/internal/kouakou/embed"
	"github.com/kbrou/kouakou/internal/kouakou/intent"
	"github.com/kbrou/kouakou/internal/kouakou/knowledge"
	"github.com/kbrou/kouakou/internal/kouakou/learning"
	"github.com/kbrou/kouakou/internal/kouakou/nlp"
	"github.com/kbrou/kouakou/internal/kouakou/store"
)

func main() {
	fmt.Printf("Kouakou — assistant d'élevage\n")
	fmt.Printf("Version: %s\n\n", version.Info())

	// A missing .env is fine; the environment may be set directly.
	_ = godotenv.Load()

	logLevel := slog.LevelInfo
	if environment.BoolOr("KOUAKOU_DEBUG", false) {
		logLevel = slog.LevelDebug
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(log)

	if err := run(log); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(log *slog.Logger) error {
	dbPath := environment.StringOr("DATABASE_PATH", "./kouakou.db")
	st, err := store.Open(dbPath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	ctx := context.Background()

	learn := learning.NewService(st, log)
	defer learn.Recorder().Wait()

	know := knowledge.NewService(st, log)
	if err := know.Seed(ctx); err != nil {
		return fmt.Errorf("seed knowledge base: %w", err)
	}

	corpus, err := intent.LoadCorpus()
	if err != nil {
		return fmt.Errorf("load corpus: %w", err)
	}

	apiKey, _ := environment.String("OPENAI_API_KEY")

	var embedder intent.Embedder
	if apiKey != "" && environment.BoolOr("KOUAKOU_EMBEDDINGS", false) {
		embedder = embed.NewCache(embed.NewOpenAI(embed.OpenAIConfig{
			APIKey:  apiKey,
			BaseURL: environment.StringOr("OPENAI_BASE_URL", ""),
		}))
	}

	retriever := intent.NewRetriever(corpus, intent.Config{
		Floor: environment.FloatOr("KOUAKOU_RETRIEVAL_FLOOR", 0),
	}, embedder, learn, log)

	var classifier nlp.Provider
	var limiter *nlp.RateLimiter
	if apiKey != "" {
		classifier = nlp.NewClassifier(nlp.New(nlp.Config{
			APIKey:  apiKey,
			BaseURL: environment.StringOr("OPENAI_BASE_URL", ""),
			Model:   environment.StringOr("KOUAKOU_MODEL", ""),
			Timeout: time.Duration(environment.IntOr("KOUAKOU_NLP_TIMEOUT_SECONDS", 0)) * time.Second,
		}), log)
		limiter = nlp.NewRateLimiter(environment.IntOr("KOUAKOU_RATE_LIMIT", 0), 0)
	} else {
		log.Warn("OPENAI_API_KEY not set, resolving without the hosted classifier")
	}

	resolver := agent.NewResolver(agent.Deps{
		Conversations: conversation.NewStore(0, 0),
		Learning:      learn,
		Knowledge:     know,
		Retriever:     retriever,
		Classifier:    classifier,
		Limiter:       limiter,
		Store:         st,
		Log:           log,
	}, agent.Config{
		AutoExecute:  environment.FloatOr("KOUAKOU_AUTO_EXECUTE", 0),
		ClarifyFloor: environment.FloatOr("KOUAKOU_CLARIFY_FLOOR", 0),
		Policy: confirm.Policy{
			AmountCeiling: environment.FloatOr("KOUAKOU_AMOUNT_CEILING", 0),
		},
	})

	projetID := environment.StringOr("KOUAKOU_PROJET_ID", "projet-demo")
	userID := environment.StringOr("KOUAKOU_USER_ID", "operateur")
	conversationID := fmt.Sprintf("shell-%d", time.Now().Unix())

	fmt.Println("Tape un message (ou /quit pour sortir) :")
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "/quit" || line == "/exit" {
			break
		}

		res, err := resolver.Resolve(ctx, agent.Message{
			ProjetID:       projetID,
			UserID:         userID,
			ConversationID: conversationID,
			Text:           line,
		})
		if err != nil {
			log.Error("resolution failed", "error", err)
			fmt.Println("Kouakou: Une erreur interne est survenue.")
			continue
		}

		fmt.Printf("Kouakou: %s\n", res.Reply)
		if res.Intent != "" {
			log.Debug("resolved",
				"intent", res.Intent,
				"confidence", res.Confidence,
				"source", res.Source,
				"status", res.Status)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read stdin: %w", err)
	}
	fmt.Println("À bientôt !")
	return nil
}
