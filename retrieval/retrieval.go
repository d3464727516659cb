// Package retrieval provides the per-conversation vector store: an
// append-only, exact nearest-neighbor index over chunked document text,
// partitioned by (user, conversation) and persisted as atomic snapshots.
//
// Each partition owns one flat index and one metadata sequence, aligned
// position-for-position. Writers hold a partition exclusively; readers run
// concurrently. A conversation that never received a document is valid:
// searching its missing partition returns no results rather than an error.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/becomeliminal/docqa/core"
	"github.com/becomeliminal/docqa/pkg/logger"
)

var (
	// ErrDimensionMismatch reports a vector whose dimension does not match
	// the store's configured embedding dimension. This fails loudly: a
	// mis-sized vector would silently corrupt ranking for the partition.
	ErrDimensionMismatch = errors.New("retrieval: vector dimension mismatch")

	// ErrCorruptPartition reports a snapshot whose index and metadata
	// disagree, or whose framing cannot be parsed.
	ErrCorruptPartition = errors.New("retrieval: corrupt partition snapshot")

	// ErrInvalidID reports a user or conversation ID that cannot be used as
	// a path component.
	ErrInvalidID = errors.New("retrieval: invalid id")
)

// Store owns the retrieval partitions. Safe for concurrent use.
type Store struct {
	baseDir string
	dim     int
	log     *logger.Logger

	mu         sync.Mutex // guards partitions
	partitions map[partitionKey]*partition
}

type partitionKey struct {
	userID         string
	conversationID string
}

// NewStore creates a store rooted at baseDir with a fixed embedding
// dimension. The dimension must match every writer and reader of the
// directory; snapshots written with a different dimension are rejected
// on load.
func NewStore(baseDir string, dim int, log *logger.Logger) (*Store, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("retrieval: dimension must be positive, got %d", dim)
	}
	if err := os.MkdirAll(baseDir, 0o700); err != nil {
		return nil, fmt.Errorf("retrieval: create base directory: %w", err)
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Store{
		baseDir:    baseDir,
		dim:        dim,
		log:        log.With("component", "retrieval"),
		partitions: make(map[partitionKey]*partition),
	}, nil
}

// Dimensions returns the embedding dimension the store was created with.
func (s *Store) Dimensions() int { return s.dim }

// Add appends the given chunks and their vectors to the partition for
// (userID, conversationID), creating the partition if it does not exist.
// Vectors and chunks must be parallel sequences; every vector must have the
// store's dimension. The docID is returned unchanged so callers can treat
// repeated uploads uniformly (no deduplication is performed).
//
// The index and metadata update becomes visible atomically: the snapshot is
// written to a temporary file and renamed over the old one, and the
// in-memory partition is rolled back if the write fails.
func (s *Store) Add(ctx context.Context, userID, conversationID, docID string, vectors [][]float32, chunks []string, filename string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if len(vectors) != len(chunks) {
		return "", fmt.Errorf("retrieval: %d vectors for %d chunks", len(vectors), len(chunks))
	}
	if len(vectors) == 0 {
		return docID, nil
	}
	p, err := s.getOrCreatePartition(userID, conversationID)
	if err != nil {
		return "", err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	prevCount := p.index.count()
	if err := p.index.add(vectors); err != nil {
		p.index.truncate(prevCount)
		return "", err
	}
	for _, chunk := range chunks {
		p.meta = append(p.meta, core.ChunkRecord{Text: chunk, DocID: docID, Filename: filename})
	}

	if err := p.save(); err != nil {
		// Keep index and metadata aligned with what is on disk.
		p.index.truncate(prevCount)
		p.meta = p.meta[:prevCount]
		return "", fmt.Errorf("retrieval: persist partition: %w", err)
	}

	s.log.Info("chunks indexed",
		"user_id", userID,
		"conversation_id", conversationID,
		"doc_id", docID,
		"chunks", len(chunks),
		"total", p.index.count(),
	)
	return docID, nil
}

// Search returns the texts of the chunks nearest to query, ordered by
// ascending squared Euclidean distance. Vectors are compared raw, without
// normalization, so the embedder's scale determines ranking.
//
// When docID is non-empty, filtering happens after the topK nearest
// neighbors are drawn from the full partition. A narrow filter can
// therefore return fewer than topK results, or none, even when matching
// chunks exist beyond the initial topK. That keeps a single scan per query
// at the cost of recall under the filter; callers that need exhaustive
// per-document recall should raise topK.
func (s *Store) Search(ctx context.Context, userID, conversationID string, query []float32, docID string, topK int) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(query) != s.dim {
		return nil, fmt.Errorf("%w: query has %d, store has %d", ErrDimensionMismatch, len(query), s.dim)
	}
	if topK <= 0 {
		topK = defaultTopK
	}

	p, err := s.getPartition(userID, conversationID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		// No documents in this conversation yet.
		return nil, nil
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	hits := p.index.search(query, topK)
	results := make([]string, 0, len(hits))
	for _, h := range hits {
		rec := p.meta[h.pos]
		if docID != "" && rec.DocID != docID {
			continue
		}
		results = append(results, rec.Text)
	}
	return results, nil
}

const defaultTopK = 5

// getOrCreatePartition returns the live partition for the key, loading it
// from disk or initializing it empty.
func (s *Store) getOrCreatePartition(userID, conversationID string) (*partition, error) {
	path, err := s.partitionPath(userID, conversationID)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := partitionKey{userID, conversationID}
	if p, ok := s.partitions[key]; ok {
		return p, nil
	}
	p, err := loadPartition(path, s.dim)
	if err != nil {
		return nil, err
	}
	if p == nil {
		p = newPartition(path, s.dim)
	}
	s.partitions[key] = p
	return p, nil
}

// getPartition returns the live partition for the key, or nil when neither
// a cached partition nor a snapshot exists.
func (s *Store) getPartition(userID, conversationID string) (*partition, error) {
	path, err := s.partitionPath(userID, conversationID)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := partitionKey{userID, conversationID}
	if p, ok := s.partitions[key]; ok {
		return p, nil
	}
	p, err := loadPartition(path, s.dim)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, nil
	}
	s.partitions[key] = p
	return p, nil
}

func (s *Store) partitionPath(userID, conversationID string) (string, error) {
	for _, id := range []string{userID, conversationID} {
		if id == "" || strings.ContainsAny(id, `/\`) || id == "." || id == ".." {
			return "", fmt.Errorf("%w: %q", ErrInvalidID, id)
		}
	}
	return filepath.Join(s.baseDir, userID, conversationID, snapshotName), nil
}
