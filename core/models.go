package core

import (
	"encoding/hex"
	"fmt"
	"time"

	"github.com/go-crypt/x/blake2b"
)

// Source descriptor prefixes recorded on every document and entry.
const (
	WebsiteSourcePrefix = "government_website:"
	PDFSourcePrefix     = "pdf:"
	FileSourcePrefix    = "file:"
)

// Metadata keys set by the extractor.
const (
	MetaTitle       = "title"
	MetaURL         = "url"
	MetaFilename    = "filename"
	MetaPageCount   = "page_count"
	MetaRetrievedAt = "retrieved_at"
	MetaCharCount   = "char_count"
	MetaSourceName  = "source_name"
	MetaContentType = "content_type"
	MetaOversized   = "oversized"
)

// DocumentID derives a stable identifier from normalized document text using BLAKE2b.
// Identical text always yields the identical id.
func DocumentID(text string) string {
	h, _ := blake2b.New(16, nil) // 16 bytes = 128 bits
	h.Write([]byte(text))
	return hex.EncodeToString(h.Sum(nil))
}

// ChunkID returns the id of the ordinal-th chunk of a document.
func ChunkID(documentID string, ordinal int) string {
	return fmt.Sprintf("%s_chunk_%d", documentID, ordinal)
}

// WebsiteSource returns the source descriptor for pages crawled from a configured site.
func WebsiteSource(name string) string {
	return WebsiteSourcePrefix + name
}

// PDFSource returns the source descriptor for an uploaded PDF.
func PDFSource(filename string) string {
	return PDFSourcePrefix + filename
}

// FileSource returns the source descriptor for an uploaded non-PDF file.
func FileSource(filename string) string {
	return FileSourcePrefix + filename
}

// Source is a configured website that the crawler ingests.
type Source struct {
	Name            string
	URL             string
	Selector        string   // Optional CSS selector for the main content region
	ExcludePatterns []string // URLs containing any of these substrings are never fetched
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// RawUnit is a single fetched page or uploaded file before extraction.
type RawUnit struct {
	Origin      string // URL or filename
	SourceName  string
	ContentType string
	Body        []byte
	FetchedAt   time.Time
}

// ExtractedDocument is the cleaned text of one unit plus descriptive metadata.
type ExtractedDocument struct {
	ID       string
	Text     string
	Source   string
	Metadata map[string]string
}

// Chunk is an overlapping slice of a document's text.
type Chunk struct {
	ID         string
	DocumentID string
	Ordinal    int
	Text       string
	Overlap    int // Characters shared with the previous chunk
}

// IndexedEntry is a chunk persisted in the vector store together with its embedding.
type IndexedEntry struct {
	ID         string
	DocumentID string
	Text       string
	Source     string
	Vector     []float32
	Metadata   map[string]string
	InsertedAt time.Time
}

// SearchResult is a vector store hit with its absolute similarity score in [0,1].
type SearchResult struct {
	Entry        *IndexedEntry
	Score        float32
	KeywordMatch bool // Every query word appears in the entry text
}

// EntryFromChunk builds an entry for a chunk of doc with the given embedding.
func EntryFromChunk(doc *ExtractedDocument, chunk Chunk, vector []float32) *IndexedEntry {
	meta := make(map[string]string, len(doc.Metadata)+1)
	for k, v := range doc.Metadata {
		meta[k] = v
	}
	meta["chunk_index"] = fmt.Sprint(chunk.Ordinal)
	return &IndexedEntry{
		ID:         chunk.ID,
		DocumentID: doc.ID,
		Text:       chunk.Text,
		Source:     doc.Source,
		Vector:     vector,
		Metadata:   meta,
	}
}
