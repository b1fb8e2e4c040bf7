// Package extract turns fetched pages and uploaded files into normalized
// plain text with descriptive metadata.
//
// Text shorter than the configured minimum is reported with
// core.ErrContentTooShort. Text longer than the maximum is accepted whole and
// flagged with the "oversized" metadata key; splitting happens in the chunker.
package extract

import (
	"fmt"
	"mime"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/poiesic/lexrag/core"
)

// Default length bounds in characters.
const (
	DefaultMinChars       = 100
	DefaultMaxChars       = 5000
	DefaultMaxUploadChars = 1_000_000
)

// Kind is the detected format of a raw unit.
type Kind int

const (
	KindText Kind = iota
	KindHTML
	KindPDF
)

func (k Kind) String() string {
	switch k {
	case KindHTML:
		return "text/html"
	case KindPDF:
		return "application/pdf"
	}
	return "text/plain"
}

// DetectKind classifies a unit by declared content type, then file extension,
// then content sniffing.
func DetectKind(contentType, name string, body []byte) Kind {
	if mediaType, _, err := mime.ParseMediaType(contentType); err == nil {
		switch {
		case mediaType == "application/pdf":
			return KindPDF
		case mediaType == "text/html" || mediaType == "application/xhtml+xml":
			return KindHTML
		case strings.HasPrefix(mediaType, "text/"):
			return KindText
		}
	}

	switch strings.ToLower(filepath.Ext(name)) {
	case ".pdf":
		return KindPDF
	case ".html", ".htm", ".xhtml":
		return KindHTML
	case ".txt", ".md", ".markdown":
		return KindText
	}

	sniffed := http.DetectContentType(body)
	switch {
	case strings.HasPrefix(sniffed, "application/pdf"):
		return KindPDF
	case strings.HasPrefix(sniffed, "text/html"):
		return KindHTML
	}
	return KindText
}

// Extractor converts raw units into documents.
type Extractor struct {
	minChars       int
	maxChars       int
	maxUploadChars int
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithMinChars sets the minimum accepted text length.
func WithMinChars(n int) Option {
	return func(e *Extractor) { e.minChars = n }
}

// WithMaxChars sets the length above which crawled pages are flagged oversized.
func WithMaxChars(n int) Option {
	return func(e *Extractor) { e.maxChars = n }
}

// WithMaxUploadChars sets the length above which uploads are flagged oversized.
func WithMaxUploadChars(n int) Option {
	return func(e *Extractor) { e.maxUploadChars = n }
}

// New creates an Extractor with default bounds and applies opts.
func New(opts ...Option) *Extractor {
	e := &Extractor{
		minChars:       DefaultMinChars,
		maxChars:       DefaultMaxChars,
		maxUploadChars: DefaultMaxUploadChars,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Page extracts a crawled unit. For HTML, links holds every absolute link on
// the page (resolved against the unit URL) and is returned even when the page
// text is too short. selector optionally names the main content region.
func (e *Extractor) Page(unit *core.RawUnit, selector string) (doc *core.ExtractedDocument, links []string, err error) {
	meta := map[string]string{
		core.MetaURL:        unit.Origin,
		core.MetaSourceName: unit.SourceName,
	}
	source := core.WebsiteSource(unit.SourceName)

	var text string
	kind := DetectKind(unit.ContentType, unit.Origin, unit.Body)
	switch kind {
	case KindHTML:
		page, err := ParseHTML(unit.Body, unit.Origin, selector)
		if err != nil {
			return nil, nil, err
		}
		text, links = page.Text, page.Links
		meta[core.MetaTitle] = page.Title
	case KindPDF:
		p, err := ParsePDF(unit.Body)
		if err != nil {
			return nil, nil, err
		}
		text = p.Text
		meta[core.MetaTitle] = p.Title
		meta[core.MetaPageCount] = strconv.Itoa(p.Pages)
	default:
		text = CollapseWhitespace(string(unit.Body))
	}
	if meta[core.MetaTitle] == "" {
		meta[core.MetaTitle] = unit.Origin
	}
	meta[core.MetaContentType] = kind.String()

	doc, err = e.finish(text, source, meta, unit.FetchedAt, e.maxChars)
	return doc, links, err
}

// File extracts an uploaded file. PDFs get a "pdf:<filename>" source, other
// formats "file:<filename>".
func (e *Extractor) File(unit *core.RawUnit) (*core.ExtractedDocument, error) {
	filename := filepath.Base(unit.Origin)
	meta := map[string]string{
		core.MetaFilename: filename,
		"size_bytes":      strconv.Itoa(len(unit.Body)),
	}

	var text, source string
	kind := DetectKind(unit.ContentType, unit.Origin, unit.Body)
	switch kind {
	case KindPDF:
		p, err := ParsePDF(unit.Body)
		if err != nil {
			return nil, err
		}
		text = p.Text
		source = core.PDFSource(filename)
		meta[core.MetaPageCount] = strconv.Itoa(p.Pages)
		meta[core.MetaTitle] = p.Title
	case KindHTML:
		page, err := ParseHTML(unit.Body, "", "")
		if err != nil {
			return nil, err
		}
		text = page.Text
		source = core.FileSource(filename)
		meta[core.MetaTitle] = page.Title
	default:
		if !utf8.Valid(unit.Body) {
			return nil, fmt.Errorf("%w: %s is not valid UTF-8 text", core.ErrExtraction, filename)
		}
		text = CollapseWhitespace(string(unit.Body))
		source = core.FileSource(filename)
	}
	if meta[core.MetaTitle] == "" {
		meta[core.MetaTitle] = strings.TrimSuffix(filename, filepath.Ext(filename))
	}
	meta[core.MetaContentType] = kind.String()

	return e.finish(text, source, meta, unit.FetchedAt, e.maxUploadChars)
}

func (e *Extractor) finish(text, source string, meta map[string]string, fetchedAt time.Time, maxChars int) (*core.ExtractedDocument, error) {
	n := utf8.RuneCountInString(text)
	if n < e.minChars {
		return nil, fmt.Errorf("%w: %d characters, minimum %d", core.ErrContentTooShort, n, e.minChars)
	}
	if fetchedAt.IsZero() {
		fetchedAt = time.Now()
	}
	meta[core.MetaCharCount] = strconv.Itoa(n)
	meta[core.MetaRetrievedAt] = fetchedAt.UTC().Format(time.RFC3339)
	if n > maxChars {
		meta[core.MetaOversized] = "true"
	}
	return &core.ExtractedDocument{
		ID:       core.DocumentID(text),
		Text:     text,
		Source:   source,
		Metadata: meta,
	}, nil
}

// CollapseWhitespace replaces every run of whitespace with a single space and
// trims both ends.
func CollapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
