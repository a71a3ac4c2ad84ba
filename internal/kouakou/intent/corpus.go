package intent

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"
)

// TrainingExample groups the curated utterances for one operation, with the
// keywords and canonical title the keyword scorer matches against. Loaded
// once per process and never mutated afterwards.
type TrainingExample struct {
	Intent   string   `yaml:"intent"`
	Title    string   `yaml:"title"`
	Keywords []string `yaml:"keywords"`
	Texts    []string `yaml:"texts"`
}

//go:embed corpus.yaml
var corpusYAML []byte

// LoadCorpus parses the embedded training corpus. Utterances are stored
// pre-normalized (lowercase, no diacritics) so loading does no text work.
func LoadCorpus() ([]TrainingExample, error) {
	var doc struct {
		Intents []TrainingExample `yaml:"intents"`
	}
	if err := yaml.Unmarshal(corpusYAML, &doc); err != nil {
		return nil, fmt.Errorf("intent: parse corpus: %w", err)
	}
	if len(doc.Intents) == 0 {
		return nil, fmt.Errorf("intent: corpus is empty")
	}
	for _, ex := range doc.Intents {
		if !Known(ex.Intent) {
			return nil, fmt.Errorf("intent: corpus names unknown intent %q", ex.Intent)
		}
		if len(ex.Texts) == 0 {
			return nil, fmt.Errorf("intent: corpus entry %q has no texts", ex.Intent)
		}
	}
	return doc.Intents, nil
}
