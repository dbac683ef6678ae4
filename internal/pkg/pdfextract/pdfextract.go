package pdfextract

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/ledongthuc/pdf"
)

// Document is the plain text of a PDF, pages concatenated in page order.
type Document struct {
	Pages     int
	TextPages int
	Text      string
}

// IsEmpty reports whether the PDF had no extractable text, e.g. a scan without OCR.
func (d Document) IsEmpty() bool {
	return strings.TrimSpace(d.Text) == ""
}

// Extract reads the entire content of r and extracts plain text page by page.
// Pages without text contribute nothing; a PDF with no text at all yields an
// empty Document and a nil error.
func Extract(r io.Reader) (Document, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return Document{}, fmt.Errorf("read pdf failed: %w", err)
	}
	if len(b) == 0 {
		return Document{}, fmt.Errorf("pdf payload is empty")
	}

	pdfReader, err := pdf.NewReader(bytes.NewReader(b), int64(len(b)))
	if err != nil {
		return Document{}, fmt.Errorf("open pdf failed: %w", err)
	}

	doc := Document{Pages: pdfReader.NumPage()}
	var sb strings.Builder
	for i := 1; i <= doc.Pages; i++ {
		page := pdfReader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return Document{}, fmt.Errorf("extract text from page %d failed: %w", i, err)
		}
		if strings.TrimSpace(text) == "" {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(text)
		doc.TextPages++
	}
	doc.Text = sb.String()
	return doc, nil
}
