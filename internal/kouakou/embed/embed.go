// Package embed adapts an external embedding service and memoizes its
// output. The cache is process-wide and never evicts: the set of embedded
// texts is bounded by the training corpus and the operator's vocabulary,
// not by request volume.
package embed

import "context"

// Provider produces vector embeddings for text.
type Provider interface {
	// Embed produces a vector embedding for the given text.
	Embed(ctx context.Context, text string) ([]float32, error)
	// EmbedBatch embeds several texts in one service call, returning one
	// vector per input in the same order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}
