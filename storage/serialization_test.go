package storage

import (
	"testing"
	"time"

	"github.com/poiesic/lexrag/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEntryRoundTrip(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Microsecond)
	entry := &core.IndexedEntry{
		ID:         core.ChunkID("abc", 3),
		DocumentID: "abc",
		Text:       "A contract is formed when an offer is accepted.",
		Source:     core.WebsiteSource("Ministry of Justice"),
		Vector:     []float32{0.6, -0.8, 0, 1e-7},
		Metadata: map[string]string{
			core.MetaTitle: "Contracts",
			core.MetaURL:   "https://justice.example.gov/contracts",
		},
		InsertedAt: now,
	}

	data := MarshalEntry(entry)
	decoded, err := UnmarshalEntry(data)
	require.NoError(t, err)
	assert.Equal(t, entry, decoded)

	// Map iteration order must not change the encoding
	assert.Equal(t, data, MarshalEntry(entry))
}

func TestEntryVectorIsFixedWidth(t *testing.T) {
	base := &core.IndexedEntry{ID: "id", Text: "text"}
	empty := len(MarshalEntry(base))

	for _, vector := range [][]float32{
		{0, 0, 0, 0},
		{0.6, -0.8, 0.123456, -1e-7},
		{1, 1, 1, 1},
	} {
		entry := *base
		entry.Vector = vector
		data := MarshalEntry(&entry)
		// the one-byte length prefix is already counted in empty
		assert.Equal(t, empty+4*len(vector), len(data), "vector %v", vector)

		decoded, err := UnmarshalEntry(data)
		require.NoError(t, err)
		assert.Equal(t, vector, decoded.Vector)
	}
}

func TestEntryRoundTrip_ZeroValues(t *testing.T) {
	entry := &core.IndexedEntry{ID: "x", Text: "y", Metadata: map[string]string{}}
	decoded, err := UnmarshalEntry(MarshalEntry(entry))
	require.NoError(t, err)
	assert.Equal(t, "x", decoded.ID)
	assert.Nil(t, decoded.Vector)
	assert.True(t, decoded.InsertedAt.IsZero())
}

func TestSourceRoundTrip(t *testing.T) {
	src := &core.Source{
		Name:            "Ministry of Justice",
		URL:             "https://www.justice.gov",
		Selector:        "main, article, .content",
		ExcludePatterns: []string{"/admin", "/login"},
		CreatedAt:       time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC),
		UpdatedAt:       time.Date(2025, 3, 2, 10, 0, 0, 0, time.UTC),
	}
	decoded, err := UnmarshalSource(MarshalSource(src))
	require.NoError(t, err)
	assert.Equal(t, src, decoded)
}

func TestRunReportRoundTrip(t *testing.T) {
	start := time.Date(2025, 5, 5, 8, 0, 0, 0, time.UTC)
	report := &core.RunReport{
		ID:                 uint64(start.UnixMicro()),
		Trigger:            "scheduled",
		StartedAt:          start,
		FinishedAt:         start.Add(90 * time.Second),
		Scraped:            12,
		TooShort:           2,
		Failed:             1,
		DocumentsAdded:     5,
		DocumentsUnchanged: 4,
		ChunksAdded:        31,
		ChunksSkipped:      20,
		EmbeddingFailures:  1,
		Errors: []core.UnitError{
			{Source: "Courts", Unit: "https://courts.example.gov/x", Stage: core.StageEmbed, Message: "embedding failed: quota"},
		},
		Status: core.RunStatusSuccess,
	}
	decoded, err := UnmarshalRunReport(MarshalRunReport(report))
	require.NoError(t, err)
	assert.Equal(t, report, decoded)

	report.Fatal = "store failure: disk full"
	report.Status = core.RunStatusFailure
	decoded, err = UnmarshalRunReport(MarshalRunReport(report))
	require.NoError(t, err)
	assert.Equal(t, report, decoded)
}

func TestUnmarshal_Corrupt(t *testing.T) {
	data := MarshalEntry(&core.IndexedEntry{ID: "id", Text: "text", Vector: []float32{1, 2, 3}})

	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"truncated", data[:len(data)-2]},
		{"trailing bytes", append(append([]byte{}, data...), 0x01)},
		{"wrong version", append([]byte{0x10}, data[1:]...)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := UnmarshalEntry(tt.data)
			assert.ErrorIs(t, err, ErrSerializationFailed)
		})
	}
}
