package notifier

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func joinChunks(chunks []Chunk) string {
	var b strings.Builder
	for _, chunk := range chunks {
		b.WriteString(chunk.Text)
	}
	return b.String()
}

func TestSegmentLengths(t *testing.T) {
	tests := []struct {
		name        string
		content     string
		max         int
		wantLengths []int
	}{
		{"5000 ASCII characters", strings.Repeat("a", 5000), 2000, []int{2000, 2000, 1000}},
		{"Exact multiple", strings.Repeat("b", 4000), 2000, []int{2000, 2000}},
		{"Shorter than limit", "hello", 2000, []int{5}},
		{"Empty content", "", 2000, []int{0}},
		{"Limit of one", "abc", 1, []int{1, 1, 1}},
		{"Multi-byte code points", strings.Repeat("상태", 5), 3, []int{3, 3, 3, 1}},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			chunks, err := Segment(test.content, test.max)
			if err != nil {
				t.Fatalf("Segment() unexpected error: %v", err)
			}

			if len(chunks) != len(test.wantLengths) {
				t.Fatalf("expected %d chunks, got %d", len(test.wantLengths), len(chunks))
			}

			for i, chunk := range chunks {
				if chunk.Index != i+1 {
					t.Fatalf("chunk %d has index %d", i, chunk.Index)
				}
				if got := utf8.RuneCountInString(chunk.Text); got != test.wantLengths[i] {
					t.Fatalf("chunk %d length = %d, want %d", chunk.Index, got, test.wantLengths[i])
				}
				if !utf8.ValidString(chunk.Text) {
					t.Fatalf("chunk %d is not valid UTF-8", chunk.Index)
				}
			}

			if joinChunks(chunks) != test.content {
				t.Fatalf("chunks do not reconstruct the content")
			}
		})
	}
}

func TestSegmentEmptyContentIsSingleEmptyChunk(t *testing.T) {
	chunks, err := Segment("", DefaultMaxChunkLength)
	if err != nil {
		t.Fatalf("Segment() unexpected error: %v", err)
	}
	if len(chunks) != 1 || chunks[0].Text != "" || chunks[0].Index != 1 {
		t.Fatalf("unexpected chunks: %+v", chunks)
	}
	if !AllEmpty(chunks) {
		t.Fatalf("expected AllEmpty to be true")
	}
}

func TestSegmentRejectsNonPositiveLimit(t *testing.T) {
	for _, limit := range []int{0, -1} {
		if _, err := Segment("abc", limit); err == nil {
			t.Fatalf("expected error for limit %d", limit)
		}
	}
}

func TestSegmentProperties(t *testing.T) {
	contents := []string{
		"",
		"x",
		"Status report:\nCPU Usage: 3%\n",
		strings.Repeat("é", 17),
		strings.Repeat("🙂a", 33),
		"mixed ascii, 한국어, emoji 🚀 and \x00 bytes",
		"invalid \xff\xfe utf-8",
	}

	for _, content := range contents {
		for limit := 1; limit <= 12; limit++ {
			chunks, err := Segment(content, limit)
			if err != nil {
				t.Fatalf("Segment(%q, %d) unexpected error: %v", content, limit, err)
			}

			if joinChunks(chunks) != content {
				t.Fatalf("Segment(%q, %d) is not lossless", content, limit)
			}

			runes := utf8.RuneCountInString(content)
			wantCount := max(1, (runes+limit-1)/limit)
			if len(chunks) != wantCount {
				t.Fatalf("Segment(%q, %d) produced %d chunks, want %d", content, limit, len(chunks), wantCount)
			}

			for i, chunk := range chunks {
				n := utf8.RuneCountInString(chunk.Text)
				if n > limit {
					t.Fatalf("Segment(%q, %d) chunk %d exceeds limit: %d", content, limit, chunk.Index, n)
				}
				if i < len(chunks)-1 && n != limit {
					t.Fatalf("Segment(%q, %d) non-final chunk %d has length %d", content, limit, chunk.Index, n)
				}
			}
		}
	}
}
