package chunker

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/poiesic/lexrag/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func doc(text string) *core.ExtractedDocument {
	return &core.ExtractedDocument{ID: core.DocumentID(text), Text: text}
}

func TestNew_RejectsInvalidWindow(t *testing.T) {
	tests := []struct {
		name          string
		size, overlap int
	}{
		{"overlap equals size", 100, 100},
		{"overlap exceeds size", 100, 200},
		{"negative overlap", 100, -1},
		{"zero size", 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.size, tt.overlap)
			assert.ErrorIs(t, err, core.ErrChunkConfig)
		})
	}
}

func TestSplit_Defaults(t *testing.T) {
	c, err := New(DefaultSize, DefaultOverlap)
	require.NoError(t, err)

	text := strings.Repeat("abcdefghij", 250) // 2500 chars
	d := doc(text)
	chunks := c.Split(d)

	// starts at 0, 800, 1600; the third ends at 2500
	require.Len(t, chunks, 3)
	assert.Len(t, chunks[0].Text, 1000)
	assert.Len(t, chunks[1].Text, 1000)
	assert.Len(t, chunks[2].Text, 900)
	assert.Equal(t, 0, chunks[0].Overlap)
	assert.Equal(t, 200, chunks[1].Overlap)
	for i, ch := range chunks {
		assert.Equal(t, core.ChunkID(d.ID, i), ch.ID)
		assert.Equal(t, d.ID, ch.DocumentID)
		assert.Equal(t, i, ch.Ordinal)
	}
}

func TestSplit_ConsecutiveChunksShareOverlap(t *testing.T) {
	c, err := New(50, 10)
	require.NoError(t, err)

	chunks := c.Split(doc(strings.Repeat("Lorem ipsum dolor sit amet. ", 20)))
	require.Greater(t, len(chunks), 2)
	for i := 1; i < len(chunks); i++ {
		prev := []rune(chunks[i-1].Text)
		cur := []rune(chunks[i].Text)
		assert.Equal(t, string(prev[len(prev)-10:]), string(cur[:10]), "chunk %d", i)
	}
}

func TestSplit_ShortText(t *testing.T) {
	c, err := New(1000, 200)
	require.NoError(t, err)

	chunks := c.Split(doc("short text"))
	require.Len(t, chunks, 1)
	assert.Equal(t, "short text", chunks[0].Text)
	assert.Equal(t, 0, chunks[0].Overlap)

	assert.Empty(t, c.Split(doc("")))
}

func TestSplit_ExactFitEmitsNoTail(t *testing.T) {
	c, err := New(10, 2)
	require.NoError(t, err)

	// 10 + 8 = 18 characters fit exactly two windows
	chunks := c.Split(doc(strings.Repeat("x", 18)))
	require.Len(t, chunks, 2)
	assert.Len(t, chunks[1].Text, 10)
}

func TestReconstruct(t *testing.T) {
	texts := []string{
		strings.Repeat("The court held that the contract was void. ", 60),
		"Статья 5. Договор считается заключённым, если между сторонами достигнуто соглашение. " +
			strings.Repeat("Право ", 300),
		strings.Repeat("z", 1000),
		strings.Repeat("z", 1001),
		"a",
	}
	windows := [][2]int{{1000, 200}, {100, 99}, {7, 0}, {64, 16}}

	for _, w := range windows {
		c, err := New(w[0], w[1])
		require.NoError(t, err)
		for _, text := range texts {
			chunks := c.Split(doc(text))
			assert.Equal(t, text, Reconstruct(chunks), "size=%d overlap=%d", w[0], w[1])
			for _, ch := range chunks {
				assert.LessOrEqual(t, utf8.RuneCountInString(ch.Text), w[0])
			}
		}
	}
}
