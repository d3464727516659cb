// Package core holds the shared domain types of the document-QA assistant.
package core

// Role identifies the author of a conversation message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single conversational turn.
//
// Content always holds the original-language text (the question as typed or
// spoken, or the generated answer). The translated-to-English form used for
// retrieval and generation is transient and never stored here.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// ChunkRecord describes one indexed span of document text.
//
// Records are immutable once written. A record's ordinal position in its
// partition's index IS its identity: the store is append-only and performs
// no deletion or update.
type ChunkRecord struct {
	Text     string `json:"text"`
	DocID    string `json:"doc_id"`
	Filename string `json:"filename,omitempty"`
}

// Fact is a durable user-level key-value datum extracted from user input.
// Facts are shared across all of a user's conversations.
type Fact struct {
	UserID string
	Key    string
	Value  string
}

// Well-known fact keys produced by extraction. The set is documented but
// open: unknown keys are stored as-is rather than rejected.
const (
	FactName              = "name"
	FactPreferredLanguage = "preferred_language"
	FactProfession        = "profession"
	FactInterests         = "interests"
	FactGoals             = "goals"
	FactLocation          = "location"
)
