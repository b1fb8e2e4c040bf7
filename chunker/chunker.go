// Package chunker splits normalized document text into fixed-size overlapping
// chunks measured in characters (runes).
package chunker

import (
	"fmt"
	"strings"

	"github.com/poiesic/lexrag/core"
)

// Default window.
const (
	DefaultSize    = 1000
	DefaultOverlap = 200
)

// Chunker slices text into windows of Size characters where each window
// starts Size-Overlap characters after the previous one.
type Chunker struct {
	size    int
	overlap int
}

// New returns a Chunker. It fails with core.ErrChunkConfig when size is not
// positive or overlap is outside [0, size).
func New(size, overlap int) (*Chunker, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: size must be positive, got %d", core.ErrChunkConfig, size)
	}
	if overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("%w: overlap %d must be in [0, %d)", core.ErrChunkConfig, overlap, size)
	}
	return &Chunker{size: size, overlap: overlap}, nil
}

// Size returns the maximum chunk length in characters.
func (c *Chunker) Size() int { return c.size }

// Overlap returns the number of characters consecutive chunks share.
func (c *Chunker) Overlap() int { return c.overlap }

// Split returns the chunks of doc in order. Every chunk except the last is
// exactly Size characters long; the last one ends at the end of the text.
func (c *Chunker) Split(doc *core.ExtractedDocument) []core.Chunk {
	runes := []rune(doc.Text)
	if len(runes) == 0 {
		return nil
	}

	stride := c.size - c.overlap
	var chunks []core.Chunk
	for start := 0; ; start += stride {
		end := min(start+c.size, len(runes))
		overlap := 0
		if start > 0 {
			overlap = c.overlap
		}
		ordinal := len(chunks)
		chunks = append(chunks, core.Chunk{
			ID:         core.ChunkID(doc.ID, ordinal),
			DocumentID: doc.ID,
			Ordinal:    ordinal,
			Text:       string(runes[start:end]),
			Overlap:    overlap,
		})
		if end == len(runes) {
			break
		}
	}
	return chunks
}

// Reconstruct joins chunks back into the text they were split from by
// dropping each chunk's declared overlap prefix.
func Reconstruct(chunks []core.Chunk) string {
	var b strings.Builder
	for _, ch := range chunks {
		runes := []rune(ch.Text)
		b.WriteString(string(runes[min(ch.Overlap, len(runes)):]))
	}
	return b.String()
}
