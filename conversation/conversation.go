// Package conversation manages per-conversation rolling message history
// and triggered summarization, bounding context growth while preserving
// continuity for answer generation.
//
// Each conversation's state is a summary plus an unsummarized tail of
// recent messages. When the tail outgrows the threshold, the oldest
// contiguous block is folded into the summary and the tail is clamped back
// to the threshold, so the tail never grows without bound even under
// rapid-fire turns. The summary is replaced, never appended to: each fold
// produces a new digest that supersedes the old one, so nothing already
// folded is lost.
//
// Turns against the same (user, conversation) are serialized with a keyed
// lock; without it two concurrent turns would load the same state, each
// append, and overwrite each other's writes. Different conversations
// proceed in parallel.
package conversation

import (
	"context"
	"fmt"
	"strings"

	"github.com/becomeliminal/docqa/core"
	"github.com/becomeliminal/docqa/pkg/logger"
)

// Store is the durable backend for conversation state.
// Implementations: sqlite.Store.
type Store interface {
	// LoadConversation returns the saved state, or ("", nil, nil) when the
	// conversation has never been saved.
	LoadConversation(ctx context.Context, userID, conversationID string) (summary string, messages []core.Message, err error)

	// SaveConversation atomically replaces the conversation's state.
	SaveConversation(ctx context.Context, userID, conversationID, summary string, messages []core.Message) error

	// ListConversations returns the user's conversation IDs, newest first.
	ListConversations(ctx context.Context, userID string) ([]string, error)
}

// Summarizer folds evicted messages into an existing summary, returning
// the digest that replaces it. Implementations: llm.Client.
type Summarizer interface {
	Summarize(ctx context.Context, existingSummary string, old []core.Message) (string, error)
}

// State is one conversation's working state during a turn. It is only
// ever mutated inside Manager.Turn, under the conversation's lock.
type State struct {
	UserID         string
	ConversationID string
	Summary        string
	Messages       []core.Message
}

// AppendUser pushes the user's original-language message onto the tail.
func (st *State) AppendUser(content string) {
	st.Messages = append(st.Messages, core.Message{Role: core.RoleUser, Content: content})
}

// AppendAssistant pushes the generated answer onto the tail.
func (st *State) AppendAssistant(content string) {
	st.Messages = append(st.Messages, core.Message{Role: core.RoleAssistant, Content: content})
}

// Config holds Manager configuration.
type Config struct {
	// MaxMessages is the tail-length threshold. When the tail exceeds it,
	// the oldest messages are folded into the summary and the tail is
	// clamped back to exactly MaxMessages.
	MaxMessages int
}

// DefaultConfig keeps the last 6 messages verbatim.
var DefaultConfig = &Config{MaxMessages: 6}

// Manager owns conversation state transitions.
type Manager struct {
	store      Store
	summarizer Summarizer
	config     *Config
	log        *logger.Logger
	locks      keyedMutex
}

// NewManager creates a Manager.
func NewManager(store Store, summarizer Summarizer, config *Config, log *logger.Logger) *Manager {
	if config == nil {
		config = DefaultConfig
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Manager{
		store:      store,
		summarizer: summarizer,
		config:     config,
		log:        log.With("component", "conversation"),
	}
}

// Turn runs fn with exclusive ownership of the conversation: the state is
// loaded under the conversation's lock (defaulting to empty on first
// access), fn mutates it, and when fn returns nil the state is persisted
// as a single atomic replace. When fn returns an error nothing is saved.
// Turns on the same (user, conversation) execute in arrival order; turns
// on different keys run in parallel.
func (m *Manager) Turn(ctx context.Context, userID, conversationID string, fn func(st *State) error) error {
	unlock := m.locks.lock(userID + "\x00" + conversationID)
	defer unlock()

	summary, messages, err := m.store.LoadConversation(ctx, userID, conversationID)
	if err != nil {
		return fmt.Errorf("conversation: load: %w", err)
	}
	st := &State{
		UserID:         userID,
		ConversationID: conversationID,
		Summary:        summary,
		Messages:       messages,
	}
	if err := fn(st); err != nil {
		return err
	}
	if err := m.store.SaveConversation(ctx, userID, conversationID, st.Summary, st.Messages); err != nil {
		return fmt.Errorf("conversation: save: %w", err)
	}
	return nil
}

// Compact folds the oldest messages into the summary when the tail
// exceeds the threshold. The evicted block is passed to the summarizer in
// chronological order together with the current summary; the result
// supersedes the old summary and the tail is clamped to the threshold.
//
// A summarizer failure skips compaction for this turn: the tail is kept
// intact so no messages are lost, and a later turn retries.
func (m *Manager) Compact(ctx context.Context, st *State) {
	max := m.config.MaxMessages
	if len(st.Messages) <= max {
		return
	}
	old := st.Messages[:len(st.Messages)-max]
	recent := st.Messages[len(st.Messages)-max:]

	summary, err := m.summarizer.Summarize(ctx, st.Summary, old)
	if err != nil {
		m.log.Warn("summarization failed, keeping full tail",
			"user_id", st.UserID,
			"conversation_id", st.ConversationID,
			"tail_len", len(st.Messages),
			"error", err,
		)
		return
	}

	st.Summary = summary
	st.Messages = recent
	m.log.Debug("tail compacted",
		"user_id", st.UserID,
		"conversation_id", st.ConversationID,
		"evicted", len(old),
		"tail_len", len(recent),
	)
}

// List returns the user's conversation IDs, newest first.
func (m *Manager) List(ctx context.Context, userID string) ([]string, error) {
	return m.store.ListConversations(ctx, userID)
}

// Load returns a read-only snapshot of the conversation's state without
// taking the turn lock.
func (m *Manager) Load(ctx context.Context, userID, conversationID string) (*State, error) {
	summary, messages, err := m.store.LoadConversation(ctx, userID, conversationID)
	if err != nil {
		return nil, fmt.Errorf("conversation: load: %w", err)
	}
	return &State{
		UserID:         userID,
		ConversationID: conversationID,
		Summary:        summary,
		Messages:       messages,
	}, nil
}

// FormatMessages renders messages as "ROLE: content" lines for prompt
// assembly.
func FormatMessages(messages []core.Message) string {
	var b strings.Builder
	for i, msg := range messages {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(strings.ToUpper(string(msg.Role)))
		b.WriteString(": ")
		b.WriteString(msg.Content)
	}
	return b.String()
}
