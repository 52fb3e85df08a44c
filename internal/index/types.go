package index

import (
	"context"
	"errors"
	"fmt"
)

// ChunkHit is one chunk-level result from the corpus indexer.
type ChunkHit struct {
	ArticleID int64   `json:"article_id"`
	ChunkID   int64   `json:"chunk_id"`
	Seq       int     `json:"seq"`
	TextStart int     `json:"text_start"`
	TextEnd   int     `json:"text_end"`
	Text      string  `json:"text"`
	Score     float64 `json:"score"`
}

// RerankDoc is one query-document pair submitted for cross-encoder scoring.
type RerankDoc struct {
	ID   int64  `json:"id"`
	Text string `json:"text"`
}

// Searcher is the chunk query capability consumed from the external corpus
// indexer. Implementations may block on network I/O; all methods honor ctx.
type Searcher interface {
	// DenseSearch runs a nearest-neighbor search over chunk embeddings.
	DenseSearch(ctx context.Context, query string, topK int) ([]ChunkHit, error)
	// SparseSearch runs a lexical term-frequency search over chunk text.
	SparseSearch(ctx context.Context, query string, topK int) ([]ChunkHit, error)
	// Rerank scores each document jointly with the query and returns one
	// score per input document, in input order.
	Rerank(ctx context.Context, query string, docs []RerankDoc) ([]float64, error)
}

// BackendError marks an indexer failure as retryable by the owning publish
// flow. The planner itself performs no retries beyond candidate fallback.
type BackendError struct {
	Op  string
	Err error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("index backend %s: %v", e.Op, e.Err)
}

func (e *BackendError) Unwrap() error {
	return e.Err
}

// IsBackendError reports whether err originates from the index backend.
func IsBackendError(err error) bool {
	var backendErr *BackendError
	return errors.As(err, &backendErr)
}
