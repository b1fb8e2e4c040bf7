package extract

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/poiesic/lexrag/core"
)

// PDFText is the text layer of a PDF document.
type PDFText struct {
	Title string
	Text  string
	Pages int
}

// ParsePDF extracts the text of every page, joined by newlines. Scanned
// documents without a text layer yield empty text.
func ParsePDF(body []byte) (result *PDFText, err error) {
	// The parser panics on some malformed inputs.
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = fmt.Errorf("%w: malformed pdf: %v", core.ErrExtraction, r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(body), int64(len(body)))
	if err != nil {
		return nil, fmt.Errorf("%w: opening pdf: %w", core.ErrExtraction, err)
	}

	result = &PDFText{Pages: reader.NumPage()}
	var pages []string
	for i := 1; i <= result.Pages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("%w: page %d: %w", core.ErrExtraction, i, err)
		}
		if text = CollapseWhitespace(text); text != "" {
			pages = append(pages, text)
		}
	}
	result.Text = strings.Join(pages, "\n")
	result.Title = CollapseWhitespace(reader.Trailer().Key("Info").Key("Title").Text())
	return result, nil
}
