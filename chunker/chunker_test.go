package chunker

import (
	"strings"
	"testing"
)

func TestParamsTiers(t *testing.T) {
	cases := []struct {
		length      int
		wantSize    int
		wantOverlap int
	}{
		{0, 600, 100},
		{2_999, 600, 100},
		{3_000, 800, 150},
		{14_999, 800, 150},
		{15_000, 1_000, 200},
		{500_000, 1_000, 200},
	}
	for _, tc := range cases {
		size, overlap := Params(tc.length)
		if size != tc.wantSize || overlap != tc.wantOverlap {
			t.Errorf("Params(%d) = (%d, %d), want (%d, %d)",
				tc.length, size, overlap, tc.wantSize, tc.wantOverlap)
		}
	}
}

func TestChunkShortTextReturnsSingleChunk(t *testing.T) {
	got := Chunk("A short paragraph that easily fits one chunk.")
	if len(got) != 1 {
		t.Fatalf("got %d chunks, want 1", len(got))
	}
}

func TestChunkEmptyAndWhitespace(t *testing.T) {
	if got := Chunk(""); len(got) != 0 {
		t.Errorf("Chunk(\"\") = %v, want none", got)
	}
	if got := Chunk("   \n\n  \n "); len(got) != 0 {
		t.Errorf("whitespace-only input produced %v", got)
	}
}

func TestChunkRespectsSizeBound(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 200; i++ {
		b.WriteString("Sentence number one rambles on about document retrieval. ")
	}
	text := b.String()
	size, overlap := Params(len(text))

	chunks := Chunk(text)
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks for %d chars, got %d", len(text), len(chunks))
	}
	for i, c := range chunks {
		if len(c) > size+overlap {
			t.Errorf("chunk %d has %d chars, exceeds bound %d", i, len(c), size+overlap)
		}
	}
}

func TestChunkOverlapCarriesContext(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 100; i++ {
		b.WriteString("Paragraph text that will span several chunks in the output. ")
	}
	chunks := Chunk(b.String())
	if len(chunks) < 2 {
		t.Fatalf("need at least 2 chunks, got %d", len(chunks))
	}
	// The head of each subsequent chunk repeats the tail of its
	// predecessor.
	for i := 1; i < len(chunks); i++ {
		head := chunks[i]
		if len(head) > 40 {
			head = head[:40]
		}
		if !strings.Contains(chunks[i-1], strings.TrimSpace(head[:20])) {
			t.Errorf("chunk %d does not overlap its predecessor", i)
		}
	}
}

func TestChunkUnbrokenTextStillSplits(t *testing.T) {
	text := strings.Repeat("x", 5_000)
	chunks := Chunk(text)
	if len(chunks) < 2 {
		t.Fatalf("expected hard cuts on separator-free input, got %d chunks", len(chunks))
	}
	joined := strings.Join(chunks, "")
	if !strings.HasPrefix(joined, "xxxx") {
		t.Error("content lost while splitting separator-free input")
	}
}
