// Package assistant orchestrates the document-QA pipelines: uploading
// documents into per-conversation retrieval partitions and answering
// questions grounded on them.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/becomeliminal/docqa/chunker"
	"github.com/becomeliminal/docqa/conversation"
	"github.com/becomeliminal/docqa/core"
	"github.com/becomeliminal/docqa/embedder"
	"github.com/becomeliminal/docqa/memory"
	"github.com/becomeliminal/docqa/pkg/logger"
	"github.com/becomeliminal/docqa/retrieval"
)

// ErrEmptyTranscript indicates a voice question produced no recognizable
// speech.
var ErrEmptyTranscript = errors.New("no speech recognized in audio")

// Translator converts text of any language to English. Implementations must
// return the input unchanged on failure rather than an error.
type Translator interface {
	TranslateToEnglish(ctx context.Context, text string) string
}

// Generator produces the final answer from the assembled prompt context and
// the question.
type Generator interface {
	GenerateAnswer(ctx context.Context, promptContext, question string) (string, error)
}

// Extractor pulls plain text out of an uploaded document file.
type Extractor interface {
	Extract(ctx context.Context, path string) (string, error)
}

// Transcriber converts spoken audio to text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error)
}

// Assistant wires the retrieval store, conversation manager, user memory and
// the LLM collaborators into the upload and ask pipelines.
type Assistant struct {
	retrieval   *retrieval.Store
	conv        *conversation.Manager
	memory      *memory.Manager
	embedder    embedder.Embedder
	translator  Translator
	generator   Generator
	extractor   Extractor
	transcriber Transcriber
	log         *logger.Logger
}

// Deps bundles the collaborators an Assistant needs. Transcriber may be nil
// when voice input is disabled.
type Deps struct {
	Retrieval    *retrieval.Store
	Conversation *conversation.Manager
	Memory       *memory.Manager
	Embedder     embedder.Embedder
	Translator   Translator
	Generator    Generator
	Extractor    Extractor
	Transcriber  Transcriber
	Log          *logger.Logger
}

// New creates an Assistant from its collaborators.
func New(deps Deps) *Assistant {
	return &Assistant{
		retrieval:   deps.Retrieval,
		conv:        deps.Conversation,
		memory:      deps.Memory,
		embedder:    deps.Embedder,
		translator:  deps.Translator,
		generator:   deps.Generator,
		extractor:   deps.Extractor,
		transcriber: deps.Transcriber,
		log:         deps.Log.With("component", "assistant"),
	}
}

// UploadResult reports what an upload added to the conversation's partition.
type UploadResult struct {
	DocID       string `json:"doc_id"`
	Filename    string `json:"filename"`
	Translated  bool   `json:"translated"`
	ChunksAdded int    `json:"chunks_added"`
}

// Upload ingests the document at path into the conversation's retrieval
// partition: extract text, translate to English, chunk, embed, store. The
// returned doc ID scopes later searches to this document.
func (a *Assistant) Upload(ctx context.Context, userID, conversationID, path, filename string) (*UploadResult, error) {
	raw, err := a.extractor.Extract(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("extract %s: %w", filename, err)
	}

	english := a.translator.TranslateToEnglish(ctx, raw)
	translated := english != raw

	chunks := chunker.Chunk(english)
	if len(chunks) == 0 {
		return nil, fmt.Errorf("extract %s: %w", filename, errNoChunks)
	}

	vectors := make([][]float32, len(chunks))
	for i, chunk := range chunks {
		vec, err := a.embedder.Embed(ctx, chunk)
		if err != nil {
			return nil, fmt.Errorf("embed chunk %d of %s: %w", i, filename, err)
		}
		vectors[i] = vec
	}

	docID := uuid.NewString()
	if _, err := a.retrieval.Add(ctx, userID, conversationID, docID, vectors, chunks, filename); err != nil {
		return nil, fmt.Errorf("store %s: %w", filename, err)
	}

	a.log.Info("document uploaded",
		"user_id", userID,
		"conversation_id", conversationID,
		"doc_id", docID,
		"filename", filename,
		"translated", translated,
		"chunks", len(chunks),
	)
	return &UploadResult{
		DocID:       docID,
		Filename:    filename,
		Translated:  translated,
		ChunksAdded: len(chunks),
	}, nil
}

var errNoChunks = errors.New("document produced no chunks")

// AskResult carries the generated answer and the memory that informed it.
type AskResult struct {
	Answer     string            `json:"answer"`
	MemoryUsed map[string]string `json:"memory_used"`
}

// Ask runs one question through the full pipeline. The original question is
// what lands in the conversation history; the English translation drives
// retrieval and generation. docID optionally narrows retrieval to one
// document; topK <= 0 uses the retrieval default.
func (a *Assistant) Ask(ctx context.Context, userID, conversationID, question, docID string, topK int) (*AskResult, error) {
	english := a.translator.TranslateToEnglish(ctx, question)

	result := &AskResult{}
	err := a.conv.Turn(ctx, userID, conversationID, func(st *conversation.State) error {
		st.AppendUser(question)

		// Fact extraction and query embedding both depend only on the
		// question, so they run side by side.
		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := a.memory.Remember(ctx, userID, question); err != nil {
				a.log.Warn("memory update failed", "user_id", userID, "error", err)
			}
		}()

		queryVec, embErr := a.embedder.Embed(ctx, english)
		wg.Wait()
		if embErr != nil {
			return fmt.Errorf("embed question: %w", embErr)
		}

		a.conv.Compact(ctx, st)

		passages, err := a.retrieval.Search(ctx, userID, conversationID, queryVec, docID, topK)
		if err != nil {
			return fmt.Errorf("search: %w", err)
		}

		facts, err := a.memory.Facts(ctx, userID)
		if err != nil {
			a.log.Warn("memory recall failed", "user_id", userID, "error", err)
			facts = map[string]string{}
		}

		prompt := buildPrompt(facts, st.Summary, st.Messages, passages, english)
		answer, err := a.generator.GenerateAnswer(ctx, prompt, english)
		if err != nil {
			return fmt.Errorf("generate answer: %w", err)
		}

		st.AppendAssistant(answer)
		result.Answer = answer
		result.MemoryUsed = facts
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// VoiceAsk transcribes the audio and runs the transcript through Ask.
func (a *Assistant) VoiceAsk(ctx context.Context, userID, conversationID string, audio []byte, mimeType, docID string, topK int) (*AskResult, string, error) {
	if a.transcriber == nil {
		return nil, "", errors.New("voice input is not configured")
	}
	transcript, err := a.transcriber.Transcribe(ctx, audio, mimeType)
	if err != nil {
		return nil, "", fmt.Errorf("transcribe: %w", err)
	}
	if strings.TrimSpace(transcript) == "" {
		return nil, "", ErrEmptyTranscript
	}

	result, err := a.Ask(ctx, userID, conversationID, transcript, docID, topK)
	if err != nil {
		return nil, transcript, err
	}
	return result, transcript, nil
}

// Search embeds the query and returns the matching chunk texts from the
// conversation's partition.
func (a *Assistant) Search(ctx context.Context, userID, conversationID, query, docID string, topK int) ([]string, error) {
	queryVec, err := a.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	return a.retrieval.Search(ctx, userID, conversationID, queryVec, docID, topK)
}

// buildPrompt assembles the generation context from everything the
// assistant knows: durable user memory, the running summary, the recent
// tail and the retrieved passages.
func buildPrompt(facts map[string]string, summary string, messages []core.Message, passages []string, question string) string {
	memoryText := formatFacts(facts)
	historyText := conversation.FormatMessages(messages)
	documentContext := strings.Join(passages, "\n")

	return fmt.Sprintf(`You are an intelligent and personalized AI assistant.

Guidelines:
- Use structured user memory if relevant.
- Use document context strictly when answering document-related questions.
- If no document context is available, rely on conversation and memory.
- Answer completely and clearly.
- Never cut responses midway.

User Memory:
%s

Conversation Summary:
%s

Recent Conversation:
%s

Document Context:
%s

Question:
%s`, memoryText, summary, historyText, documentContext, question)
}

func formatFacts(facts map[string]string) string {
	if len(facts) == 0 {
		return ""
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
	return b.String()
}
