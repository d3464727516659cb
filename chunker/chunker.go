// Package chunker splits document text into overlapping chunks sized for
// embedding and retrieval granularity.
//
// Chunk size scales with document length: larger documents get larger
// chunks with proportionally larger overlap, so a long policy document is
// not shredded into hundreds of tiny fragments while a one-page resume
// still yields several retrievable spans.
package chunker

import "strings"

// Tier boundaries and the (size, overlap) pair for each, in characters.
const (
	smallDocLimit  = 3_000
	mediumDocLimit = 15_000

	smallChunkSize    = 600
	smallChunkOverlap = 100

	mediumChunkSize    = 800
	mediumChunkOverlap = 150

	largeChunkSize    = 1_000
	largeChunkOverlap = 200
)

// separators, most to least structural. The final empty separator means
// "split anywhere" and guarantees progress on pathological input.
var separators = []string{"\n\n", "\n", ".", " ", ""}

// Params returns the chunk size and overlap for a document of the given
// length.
func Params(textLength int) (size, overlap int) {
	switch {
	case textLength < smallDocLimit:
		return smallChunkSize, smallChunkOverlap
	case textLength < mediumDocLimit:
		return mediumChunkSize, mediumChunkOverlap
	default:
		return largeChunkSize, largeChunkOverlap
	}
}

// Chunk splits text into chunks using the tier chosen by its length.
// Whitespace-only output is dropped; input that fits one chunk is returned
// whole.
func Chunk(text string) []string {
	size, overlap := Params(len(text))
	return split(text, size, overlap)
}

// split recursively divides text along the separator hierarchy, then
// merges adjacent pieces into chunks of at most size characters with
// overlap characters carried between consecutive chunks.
func split(text string, size, overlap int) []string {
	pieces := divide(text, size, 0)
	return merge(pieces, size, overlap)
}

// divide breaks text into pieces no longer than size, preferring the most
// structural separator that appears in the text.
func divide(text string, size, sepIdx int) []string {
	if len(text) <= size {
		if strings.TrimSpace(text) == "" {
			return nil
		}
		return []string{text}
	}
	if sepIdx >= len(separators) {
		return nil
	}

	sep := separators[sepIdx]
	if sep == "" {
		// Hard cut: no separator left to respect.
		var out []string
		for start := 0; start < len(text); start += size {
			end := start + size
			if end > len(text) {
				end = len(text)
			}
			out = append(out, text[start:end])
		}
		return out
	}

	parts := strings.Split(text, sep)
	if len(parts) == 1 {
		return divide(text, size, sepIdx+1)
	}

	var out []string
	for i, part := range parts {
		// Keep the separator attached so merged chunks read naturally.
		if i < len(parts)-1 {
			part += sep
		}
		if len(part) <= size {
			if strings.TrimSpace(part) != "" {
				out = append(out, part)
			}
			continue
		}
		out = append(out, divide(part, size, sepIdx+1)...)
	}
	return out
}

// merge greedily packs pieces into chunks of at most size characters and
// prefixes each chunk after the first with the tail of its predecessor.
func merge(pieces []string, size, overlap int) []string {
	var chunks []string
	var cur strings.Builder

	flush := func() {
		chunk := strings.TrimSpace(cur.String())
		if chunk != "" {
			chunks = append(chunks, chunk)
		}
		cur.Reset()
	}

	for _, piece := range pieces {
		if cur.Len() > 0 && cur.Len()+len(piece) > size {
			tail := overlapTail(cur.String(), overlap)
			flush()
			cur.WriteString(tail)
		}
		cur.WriteString(piece)
	}
	flush()
	return chunks
}

// overlapTail returns the last overlap characters of s, extended left to
// the nearest space so the carried context starts on a word boundary.
func overlapTail(s string, overlap int) string {
	if overlap <= 0 || len(s) == 0 {
		return ""
	}
	if len(s) <= overlap {
		return s
	}
	tail := s[len(s)-overlap:]
	if idx := strings.IndexByte(tail, ' '); idx >= 0 && idx < len(tail)-1 {
		tail = tail[idx+1:]
	}
	return tail
}
