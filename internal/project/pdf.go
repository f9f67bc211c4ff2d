package project

import (
	"fmt"
	"strings"

	pdfx "github.com/ledongthuc/pdf"
)

const (
	DefaultPDFMaxPages = 20
	maxPDFChars        = 20000
)

// ExtractPDFText returns the plain text of the first maxPages pages of a PDF.
func ExtractPDFText(path string, maxPages int) (string, error) {
	if maxPages <= 0 {
		maxPages = DefaultPDFMaxPages
	}
	f, r, err := pdfx.Open(path)
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}
	defer f.Close()

	total := r.NumPage()
	var out strings.Builder
	for page := 1; page <= total && page <= maxPages; page++ {
		p := r.Page(page)
		if p.V.IsNull() {
			continue
		}
		txt, err := p.GetPlainText(nil)
		if err != nil {
			continue
		}
		if t := strings.TrimSpace(txt); t != "" {
			out.WriteString(t)
			out.WriteString("\n\n")
		}
		if out.Len() > maxPDFChars {
			break
		}
	}
	text := strings.TrimSpace(out.String())
	if r := []rune(text); len(r) > maxPDFChars {
		text = string(r[:maxPDFChars])
	}
	return text, nil
}
