// Package memory implements structured long-term memory: durable
// key-value facts extracted from what users say, scoped per user and
// shared across all of that user's conversations.
//
// Facts are purely additive with last-write-wins per key. There is no
// aggregation and no cross-conversation conflict resolution: the same
// user stating a different name in another conversation overwrites the
// fact globally. That trade-off is intentional; memory is user-level
// while history and retrieval are conversation-level.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// FactStore is the durable backend for user facts.
// Implementations: sqlite.Store.
type FactStore interface {
	// UpsertFact writes value under (userID, key), overwriting any
	// previous value.
	UpsertFact(ctx context.Context, userID, key, value string) error

	// LoadFacts returns every fact stored for userID.
	LoadFacts(ctx context.Context, userID string) (map[string]string, error)
}

// Extractor pulls durable facts out of a user message.
// Implementations: llm.Client. A failed or malformed extraction must
// surface as an empty map, not an error.
type Extractor interface {
	ExtractFacts(ctx context.Context, text string) map[string]string
}

// Manager ties extraction to the fact store.
type Manager struct {
	store     FactStore
	extractor Extractor
}

// NewManager creates a memory manager.
func NewManager(store FactStore, extractor Extractor) *Manager {
	return &Manager{store: store, extractor: extractor}
}

// Remember extracts facts from the user's original-language message and
// upserts every non-empty value. Extraction never fails the turn; store
// errors are reported because losing a write silently would make memory
// unreliable in a way the user cannot see.
func (m *Manager) Remember(ctx context.Context, userID, message string) error {
	facts := m.extractor.ExtractFacts(ctx, message)
	for key, value := range facts {
		if key == "" || value == "" {
			continue
		}
		if err := m.store.UpsertFact(ctx, userID, key, value); err != nil {
			return fmt.Errorf("memory: store fact %q: %w", key, err)
		}
	}
	return nil
}

// Facts returns everything known about the user as a raw key/value map.
func (m *Manager) Facts(ctx context.Context, userID string) (map[string]string, error) {
	facts, err := m.store.LoadFacts(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("memory: load facts: %w", err)
	}
	return facts, nil
}

// Recall loads the user's facts and formats them for prompt injection,
// one "key: value" line per fact in stable key order. Returns "" when
// nothing is known.
func (m *Manager) Recall(ctx context.Context, userID string) (string, error) {
	facts, err := m.store.LoadFacts(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("memory: load facts: %w", err)
	}
	if len(facts) == 0 {
		return "", nil
	}

	keys := make([]string, 0, len(facts))
	for k := range facts {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(k)
		b.WriteString(": ")
		b.WriteString(facts[k])
	}
	return b.String(), nil
}
