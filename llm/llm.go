// Package llm adapts the Anthropic Messages API to the assistant's
// collaborator interfaces: answer generation, conversation summarization,
// structured fact extraction and translation.
package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/becomeliminal/docqa/core"
	"github.com/becomeliminal/docqa/pkg/logger"
)

// Config holds Claude API settings.
type Config struct {
	// APIKey is the Anthropic API key.
	APIKey string

	// Model is the Claude model to use.
	Model string

	// MaxTokens is the maximum response tokens per call.
	MaxTokens int64
}

// DefaultConfig returns sensible defaults. The API key must still be set.
func DefaultConfig() Config {
	return Config{
		Model:     "claude-sonnet-4-20250514",
		MaxTokens: 8000,
	}
}

// Client is a thin wrapper over the Anthropic client that exposes the
// assistant's LLM-backed operations. All answer-shaped failures propagate as
// errors; fact extraction and translation degrade to safe fallbacks instead,
// because their callers must never fail a turn over them.
type Client struct {
	api       *anthropic.Client
	model     anthropic.Model
	maxTokens int64
	log       *logger.Logger
}

// New creates a Client from the given config.
func New(cfg Config, log *logger.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("llm: API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultConfig().Model
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultConfig().MaxTokens
	}
	api := anthropic.NewClient(option.WithAPIKey(cfg.APIKey))
	return &Client{
		api:       &api,
		model:     anthropic.Model(cfg.Model),
		maxTokens: cfg.MaxTokens,
		log:       log.With("component", "llm"),
	}, nil
}

// complete sends a single-turn prompt and concatenates the text blocks of the
// response.
func (c *Client) complete(ctx context.Context, system, prompt string) (string, error) {
	params := anthropic.MessageNewParams{
		Model:     c.model,
		MaxTokens: c.maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}

	resp, err := c.api.Messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("claude API error: %w", err)
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	return text.String(), nil
}

const answerSystemPrompt = `You are a helpful assistant.
Explain the following document content in simple language.
Provide a detailed and complete answer using all relevant information from the document context.
Do not shorten the response.`

// GenerateAnswer produces the assistant's answer for a question given the
// assembled prompt context (memory, summary, history and retrieved passages).
func (c *Client) GenerateAnswer(ctx context.Context, promptContext, question string) (string, error) {
	prompt := fmt.Sprintf("Context:\n%s\n\nQuestion:\n%s", promptContext, question)
	answer, err := c.complete(ctx, answerSystemPrompt, prompt)
	if err != nil {
		return "", fmt.Errorf("generate answer: %w", err)
	}
	return strings.TrimSpace(answer), nil
}

const summarySystemPrompt = `You are a conversation summarizer.
Create an updated concise summary preserving important context.`

// Summarize folds a block of evicted messages into the running conversation
// summary, oldest first.
func (c *Client) Summarize(ctx context.Context, existingSummary string, old []core.Message) (string, error) {
	var conv strings.Builder
	for _, msg := range old {
		conv.WriteString(strings.ToUpper(string(msg.Role)))
		conv.WriteString(": ")
		conv.WriteString(msg.Content)
		conv.WriteString("\n")
	}

	prompt := fmt.Sprintf("Previous summary:\n%s\n\nNew conversation:\n%s", existingSummary, conv.String())
	summary, err := c.complete(ctx, summarySystemPrompt, prompt)
	if err != nil {
		return "", fmt.Errorf("summarize conversation: %w", err)
	}
	return strings.TrimSpace(summary), nil
}

const extractSystemPrompt = `You are a memory extraction engine.

Extract permanent user facts from the message.

Rules:
- Only extract factual, long-term information.
- Ignore temporary statements.
- Return ONLY valid JSON.
- If nothing important, return empty JSON {}.

Possible fields:
- name
- preferred_language
- profession
- interests
- goals
- location`

// ExtractFacts pulls durable user facts out of a message as a flat key/value
// map. Any failure, from the API call to malformed model output, yields an
// empty map; a memory miss must never fail the turn it rode in on.
func (c *Client) ExtractFacts(ctx context.Context, text string) map[string]string {
	raw, err := c.complete(ctx, extractSystemPrompt, "Message:\n"+text)
	if err != nil {
		c.log.Warn("fact extraction call failed", "error", err)
		return map[string]string{}
	}
	return parseFacts(raw)
}

// parseFacts decodes the model's JSON output into string facts. Non-string
// values are flattened with their default formatting so that lists and
// numbers still land as usable memory values.
func parseFacts(raw string) map[string]string {
	cleaned := stripCodeFences(raw)

	var decoded map[string]any
	if err := json.Unmarshal([]byte(cleaned), &decoded); err != nil {
		return map[string]string{}
	}

	facts := make(map[string]string, len(decoded))
	for key, value := range decoded {
		switch v := value.(type) {
		case string:
			facts[key] = v
		case []any:
			parts := make([]string, 0, len(v))
			for _, item := range v {
				parts = append(parts, fmt.Sprint(item))
			}
			facts[key] = strings.Join(parts, ", ")
		case nil:
			// skip
		default:
			facts[key] = fmt.Sprint(v)
		}
	}
	return facts
}

// stripCodeFences removes a surrounding markdown code fence, with or without
// a language tag, and trims whitespace.
func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if idx := strings.Index(s, "\n"); idx >= 0 && !strings.HasPrefix(s, "{") {
		// drop the language tag line, e.g. ```json
		s = s[idx+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

const translateSystemPrompt = `You are a translation engine.
Translate the user's text to English.
If the text is already in English, return it unchanged.
Return ONLY the translated text with no commentary.`

// translateBatchChars bounds the size of a single translation call; longer
// documents are split and the parts rejoined.
const translateBatchChars = 4000

// TranslateToEnglish translates text of any language to English. On any
// failure the input is returned unchanged so the pipeline keeps moving with
// the original text.
func (c *Client) TranslateToEnglish(ctx context.Context, text string) string {
	if strings.TrimSpace(text) == "" {
		return text
	}
	if len(text) <= translateBatchChars {
		return c.translateChunk(ctx, text)
	}

	var parts []string
	for start := 0; start < len(text); start += translateBatchChars {
		end := start + translateBatchChars
		if end > len(text) {
			end = len(text)
		}
		parts = append(parts, c.translateChunk(ctx, text[start:end]))
	}
	return strings.Join(parts, "\n")
}

func (c *Client) translateChunk(ctx context.Context, text string) string {
	translated, err := c.complete(ctx, translateSystemPrompt, text)
	if err != nil {
		c.log.Warn("translation failed, keeping original text", "error", err)
		return text
	}
	translated = strings.TrimSpace(translated)
	if translated == "" {
		return text
	}
	return translated
}
