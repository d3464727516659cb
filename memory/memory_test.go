package memory

import (
	"context"
	"errors"
	"testing"
)

type fakeStore struct {
	facts   map[string]map[string]string // userID -> key -> value
	failAll bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{facts: make(map[string]map[string]string)}
}

func (f *fakeStore) UpsertFact(ctx context.Context, userID, key, value string) error {
	if f.failAll {
		return errors.New("disk on fire")
	}
	if f.facts[userID] == nil {
		f.facts[userID] = make(map[string]string)
	}
	f.facts[userID][key] = value
	return nil
}

func (f *fakeStore) LoadFacts(ctx context.Context, userID string) (map[string]string, error) {
	if f.failAll {
		return nil, errors.New("disk on fire")
	}
	out := make(map[string]string, len(f.facts[userID]))
	for k, v := range f.facts[userID] {
		out[k] = v
	}
	return out, nil
}

type fakeExtractor struct {
	out map[string]string
}

func (f *fakeExtractor) ExtractFacts(ctx context.Context, text string) map[string]string {
	return f.out
}

func TestRememberStoresNonEmptyFacts(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	m := NewManager(store, &fakeExtractor{out: map[string]string{
		"name":     "Alice",
		"location": "",
		"":         "ghost",
	}})

	if err := m.Remember(ctx, "u1", "My name is Alice"); err != nil {
		t.Fatalf("Remember: %v", err)
	}
	got := store.facts["u1"]
	if len(got) != 1 || got["name"] != "Alice" {
		t.Errorf("stored facts = %v, want only name=Alice", got)
	}
}

func TestRememberOverwritesPerKey(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	ext := &fakeExtractor{out: map[string]string{"name": "Alice"}}
	m := NewManager(store, ext)

	if err := m.Remember(ctx, "u1", "I am Alice"); err != nil {
		t.Fatalf("Remember: %v", err)
	}
	ext.out = map[string]string{"name": "Bob"}
	if err := m.Remember(ctx, "u1", "Actually call me Bob"); err != nil {
		t.Fatalf("Remember: %v", err)
	}
	if got := store.facts["u1"]["name"]; got != "Bob" {
		t.Errorf("name = %q, want Bob", got)
	}
	if len(store.facts["u1"]) != 1 {
		t.Errorf("expected exactly one fact record, got %v", store.facts["u1"])
	}
}

func TestRememberPassesThroughUnknownKeys(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	m := NewManager(store, &fakeExtractor{out: map[string]string{"favorite_color": "green"}})

	if err := m.Remember(ctx, "u1", "i love green"); err != nil {
		t.Fatalf("Remember: %v", err)
	}
	if store.facts["u1"]["favorite_color"] != "green" {
		t.Errorf("unknown key was not stored: %v", store.facts["u1"])
	}
}

func TestRecallFormatsSortedLines(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	store.facts["u1"] = map[string]string{
		"profession": "farmer",
		"name":       "Ravi",
	}
	m := NewManager(store, &fakeExtractor{})

	got, err := m.Recall(ctx, "u1")
	if err != nil {
		t.Fatalf("Recall: %v", err)
	}
	want := "name: Ravi\nprofession: farmer"
	if got != want {
		t.Errorf("Recall = %q, want %q", got, want)
	}
}

func TestRecallEmptyWhenNothingKnown(t *testing.T) {
	ctx := context.Background()
	m := NewManager(newFakeStore(), &fakeExtractor{})

	got, err := m.Recall(ctx, "stranger")
	if err != nil {
		t.Fatalf("Recall: %v", err)
	}
	if got != "" {
		t.Errorf("Recall = %q, want empty", got)
	}
}

func TestRememberReportsStoreFailure(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	store.failAll = true
	m := NewManager(store, &fakeExtractor{out: map[string]string{"name": "Alice"}})

	if err := m.Remember(ctx, "u1", "hi"); err == nil {
		t.Error("expected error when the store fails")
	}
}
