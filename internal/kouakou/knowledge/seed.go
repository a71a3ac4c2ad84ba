package knowledge

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/kbrou/kouakou/internal/kouakou/store"
)

//go:embed seed.yaml
var seedYAML []byte

type seedDoc struct {
	ID       string   `yaml:"id"`
	Category string   `yaml:"category"`
	Title    string   `yaml:"title"`
	Keywords []string `yaml:"keywords"`
	Summary  string   `yaml:"summary"`
	Priority int      `yaml:"priority"`
	Content  string   `yaml:"content"`
}

// Seed loads the built-in training documents into an empty knowledge base.
// A base that already has documents is left untouched, so operators can
// curate their own content without it being re-seeded on restart.
func (s *Service) Seed(ctx context.Context) error {
	docs, err := s.store.ActiveKnowledge(ctx, "")
	if err != nil {
		return fmt.Errorf("knowledge: check existing documents: %w", err)
	}
	if len(docs) > 0 {
		return nil
	}

	var seeds []seedDoc
	if err := yaml.Unmarshal(seedYAML, &seeds); err != nil {
		return fmt.Errorf("knowledge: decode seed documents: %w", err)
	}

	for _, sd := range seeds {
		doc := &store.KnowledgeDoc{
			ID:         sd.ID,
			Category:   sd.Category,
			Title:      sd.Title,
			Keywords:   sd.Keywords,
			Content:    sd.Content,
			Summary:    sql.NullString{String: sd.Summary, Valid: sd.Summary != ""},
			Priority:   sd.Priority,
			Visibility: "global",
		}
		if err := s.store.InsertKnowledge(ctx, doc); err != nil {
			return fmt.Errorf("knowledge: seed %s: %w", sd.ID, err)
		}
	}
	s.log.Info("seeded knowledge base", "documents", len(seeds))
	return nil
}
