package notifier

import (
	"fmt"
	"unicode/utf8"
)

// DefaultMaxChunkLength matches Discord's per-message content limit.
const DefaultMaxChunkLength = 2000

// Chunk is a 1-based slice of a longer message.
type Chunk struct {
	Index int
	Text  string
}

// Segment cuts content every maxChunkLength code points, left to right.
// Chunks concatenated in order reproduce content exactly. Empty content
// yields a single empty chunk.
//
// Word and line boundaries are not respected.
func Segment(content string, maxChunkLength int) ([]Chunk, error) {
	if maxChunkLength <= 0 {
		return nil, fmt.Errorf("max chunk length must be positive (got %d)", maxChunkLength)
	}

	chunks := make([]Chunk, 0, utf8.RuneCountInString(content)/maxChunkLength+1)

	start, count := 0, 0
	for i := range content {
		if count == maxChunkLength {
			chunks = append(chunks, Chunk{Index: len(chunks) + 1, Text: content[start:i]})
			start, count = i, 0
		}
		count++
	}

	chunks = append(chunks, Chunk{Index: len(chunks) + 1, Text: content[start:]})

	return chunks, nil
}

// AllEmpty reports whether no chunk carries any text.
func AllEmpty(chunks []Chunk) bool {
	for _, chunk := range chunks {
		if chunk.Text != "" {
			return false
		}
	}
	return true
}
