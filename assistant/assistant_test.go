package assistant

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/becomeliminal/docqa/conversation"
	"github.com/becomeliminal/docqa/core"
	"github.com/becomeliminal/docqa/memory"
	"github.com/becomeliminal/docqa/pkg/logger"
	"github.com/becomeliminal/docqa/retrieval"
)

// fakeEmbedder returns fixed vectors per exact text and a far-away default
// for everything else.
type fakeEmbedder struct {
	vectors map[string][]float32
}

func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if v, ok := f.vectors[text]; ok {
		return v, nil
	}
	return []float32{50, 50}, nil
}

func (f *fakeEmbedder) Dimensions() int { return 2 }

// fakeTranslator maps specific inputs; everything else passes through.
type fakeTranslator struct {
	m map[string]string
}

func (f *fakeTranslator) TranslateToEnglish(_ context.Context, text string) string {
	if f.m != nil {
		if out, ok := f.m[text]; ok {
			return out
		}
	}
	return text
}

type fakeGenerator struct {
	mu          sync.Mutex
	gotContext  string
	gotQuestion string
	answer      string
	err         error
}

func (f *fakeGenerator) GenerateAnswer(_ context.Context, promptContext, question string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gotContext = promptContext
	f.gotQuestion = question
	return f.answer, f.err
}

type fakeExtractor struct {
	text string
	err  error
}

func (f *fakeExtractor) Extract(_ context.Context, _ string) (string, error) {
	return f.text, f.err
}

type fakeTranscriber struct {
	transcript string
	err        error
}

func (f *fakeTranscriber) Transcribe(_ context.Context, _ []byte, _ string) (string, error) {
	return f.transcript, f.err
}

// convStore is an in-memory conversation.Store.
type convStore struct {
	mu   sync.Mutex
	summ map[string]string
	msgs map[string][]core.Message
}

func newConvStore() *convStore {
	return &convStore{summ: map[string]string{}, msgs: map[string][]core.Message{}}
}

func (s *convStore) key(u, c string) string { return u + "/" + c }

func (s *convStore) LoadConversation(_ context.Context, u, c string) (string, []core.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := s.key(u, c)
	return s.summ[k], append([]core.Message(nil), s.msgs[k]...), nil
}

func (s *convStore) SaveConversation(_ context.Context, u, c, summary string, messages []core.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := s.key(u, c)
	s.summ[k] = summary
	s.msgs[k] = append([]core.Message(nil), messages...)
	return nil
}

func (s *convStore) ListConversations(_ context.Context, _ string) ([]string, error) {
	return nil, nil
}

// factStore is an in-memory memory.FactStore.
type factStore struct {
	mu    sync.Mutex
	facts map[string]map[string]string
}

func newFactStore() *factStore { return &factStore{facts: map[string]map[string]string{}} }

func (s *factStore) UpsertFact(_ context.Context, userID, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.facts[userID] == nil {
		s.facts[userID] = map[string]string{}
	}
	s.facts[userID][key] = value
	return nil
}

func (s *factStore) LoadFacts(_ context.Context, userID string) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := map[string]string{}
	for k, v := range s.facts[userID] {
		out[k] = v
	}
	return out, nil
}

type fixedFactExtractor struct {
	facts map[string]string
}

func (f *fixedFactExtractor) ExtractFacts(_ context.Context, _ string) map[string]string {
	if f.facts == nil {
		return map[string]string{}
	}
	return f.facts
}

type noopSummarizer struct{}

func (noopSummarizer) Summarize(_ context.Context, summary string, _ []core.Message) (string, error) {
	return summary, nil
}

type fixture struct {
	assistant *Assistant
	retrieval *retrieval.Store
	conv      *convStore
	facts     *factStore
	generator *fakeGenerator
}

func newFixture(t *testing.T, emb *fakeEmbedder, trans *fakeTranslator, facts map[string]string) *fixture {
	t.Helper()
	log := logger.Nop()

	rs, err := retrieval.NewStore(t.TempDir(), emb.Dimensions(), log)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	cs := newConvStore()
	fs := newFactStore()
	gen := &fakeGenerator{answer: "the answer"}

	a := New(Deps{
		Retrieval:    rs,
		Conversation: conversation.NewManager(cs, noopSummarizer{}, nil, log),
		Memory:       memory.NewManager(fs, &fixedFactExtractor{facts: facts}),
		Embedder:     emb,
		Translator:   trans,
		Generator:    gen,
		Extractor:    &fakeExtractor{text: "Rotate legumes with cereals to fix nitrogen in the soil."},
		Transcriber:  &fakeTranscriber{transcript: "how do I rotate crops"},
		Log:          log,
	})
	return &fixture{assistant: a, retrieval: rs, conv: cs, facts: fs, generator: gen}
}

func seedChunks(t *testing.T, f *fixture, user, conv string) {
	t.Helper()
	vectors := [][]float32{{0, 1}, {1, 0}, {-1, 0}}
	chunks := []string{"chunk one about soil", "chunk two about irrigation", "chunk three about seeds"}
	if _, err := f.retrieval.Add(context.Background(), user, conv, "doc-1", vectors, chunks, "guide.pdf"); err != nil {
		t.Fatalf("Add: %v", err)
	}
}

func TestAskGroundsAnswerOnNearestChunk(t *testing.T) {
	emb := &fakeEmbedder{vectors: map[string][]float32{
		"how is the field watered": {0.9, 0.1},
	}}
	f := newFixture(t, emb, &fakeTranslator{}, nil)
	seedChunks(t, f, "u1", "c1")

	res, err := f.assistant.Ask(context.Background(), "u1", "c1", "how is the field watered", "", 1)
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if res.Answer != "the answer" {
		t.Errorf("answer = %q", res.Answer)
	}
	if !strings.Contains(f.generator.gotContext, "chunk two about irrigation") {
		t.Errorf("prompt missing nearest chunk:\n%s", f.generator.gotContext)
	}
	if strings.Contains(f.generator.gotContext, "chunk one") || strings.Contains(f.generator.gotContext, "chunk three") {
		t.Errorf("prompt contains chunks beyond topK=1:\n%s", f.generator.gotContext)
	}
}

func TestAskPersistsOriginalQuestionAndAnswer(t *testing.T) {
	emb := &fakeEmbedder{vectors: map[string][]float32{
		"what does the document say": {0.9, 0.1},
	}}
	trans := &fakeTranslator{m: map[string]string{
		"दस्तावेज़ क्या कहता है": "what does the document say",
	}}
	f := newFixture(t, emb, trans, nil)
	seedChunks(t, f, "u1", "c1")

	_, err := f.assistant.Ask(context.Background(), "u1", "c1", "दस्तावेज़ क्या कहता है", "", 1)
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}

	// The generator sees the English question, the history keeps the
	// original.
	if f.generator.gotQuestion != "what does the document say" {
		t.Errorf("generator question = %q", f.generator.gotQuestion)
	}
	_, msgs, _ := f.conv.LoadConversation(context.Background(), "u1", "c1")
	if len(msgs) != 2 {
		t.Fatalf("persisted %d messages, want 2", len(msgs))
	}
	if msgs[0].Role != core.RoleUser || msgs[0].Content != "दस्तावेज़ क्या कहता है" {
		t.Errorf("first message = %+v", msgs[0])
	}
	if msgs[1].Role != core.RoleAssistant || msgs[1].Content != "the answer" {
		t.Errorf("second message = %+v", msgs[1])
	}
}

func TestAskStoresExtractedFacts(t *testing.T) {
	emb := &fakeEmbedder{}
	f := newFixture(t, emb, &fakeTranslator{}, map[string]string{"name": "Ravi", "profession": "farmer"})

	res, err := f.assistant.Ask(context.Background(), "u1", "c1", "my name is Ravi and I farm", "", 0)
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}

	stored, _ := f.facts.LoadFacts(context.Background(), "u1")
	if stored["name"] != "Ravi" || stored["profession"] != "farmer" {
		t.Errorf("stored facts = %v", stored)
	}
	if res.MemoryUsed["name"] != "Ravi" {
		t.Errorf("memory used = %v", res.MemoryUsed)
	}
}

func TestAskGeneratorFailureDoesNotPersistTurn(t *testing.T) {
	emb := &fakeEmbedder{}
	f := newFixture(t, emb, &fakeTranslator{}, nil)
	f.generator.err = errors.New("model overloaded")

	_, err := f.assistant.Ask(context.Background(), "u1", "c1", "anything", "", 0)
	if err == nil {
		t.Fatal("expected error")
	}
	_, msgs, _ := f.conv.LoadConversation(context.Background(), "u1", "c1")
	if len(msgs) != 0 {
		t.Errorf("failed turn persisted %d messages", len(msgs))
	}
}

func TestUploadChunksEmbedsAndStores(t *testing.T) {
	emb := &fakeEmbedder{vectors: map[string][]float32{}}
	f := newFixture(t, emb, &fakeTranslator{}, nil)

	res, err := f.assistant.Upload(context.Background(), "u1", "c1", "/tmp/guide.pdf", "guide.pdf")
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if res.DocID == "" {
		t.Error("empty doc ID")
	}
	if res.ChunksAdded != 1 {
		t.Errorf("chunks added = %d, want 1", res.ChunksAdded)
	}
	if res.Translated {
		t.Error("identity translation should not report translated")
	}

	chunks, err := f.assistant.Search(context.Background(), "u1", "c1", "nitrogen", "", 5)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(chunks) != 1 || !strings.Contains(chunks[0], "fix nitrogen") {
		t.Errorf("search returned %v", chunks)
	}
}

func TestVoiceAskRunsTranscriptThroughPipeline(t *testing.T) {
	emb := &fakeEmbedder{}
	f := newFixture(t, emb, &fakeTranslator{}, nil)

	res, transcript, err := f.assistant.VoiceAsk(context.Background(), "u1", "c1", []byte{1, 2, 3}, "audio/wav", "", 0)
	if err != nil {
		t.Fatalf("VoiceAsk: %v", err)
	}
	if transcript != "how do I rotate crops" {
		t.Errorf("transcript = %q", transcript)
	}
	if res.Answer != "the answer" {
		t.Errorf("answer = %q", res.Answer)
	}

	_, msgs, _ := f.conv.LoadConversation(context.Background(), "u1", "c1")
	if len(msgs) == 0 || msgs[0].Content != "how do I rotate crops" {
		t.Errorf("history = %v", msgs)
	}
}

func TestVoiceAskEmptyTranscript(t *testing.T) {
	emb := &fakeEmbedder{}
	f := newFixture(t, emb, &fakeTranslator{}, nil)
	f.assistant.transcriber = &fakeTranscriber{transcript: "   "}

	_, _, err := f.assistant.VoiceAsk(context.Background(), "u1", "c1", []byte{1}, "audio/wav", "", 0)
	if !errors.Is(err, ErrEmptyTranscript) {
		t.Errorf("err = %v, want ErrEmptyTranscript", err)
	}
}
