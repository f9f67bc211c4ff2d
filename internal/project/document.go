package project

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/net/html"
)

const maxDocumentBytes = 256 << 10

// DocumentText returns the readable text of an uploaded document. PDF, HTML,
// markdown and plain text are supported.
func DocumentText(path string) (string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		return ExtractPDFText(path, DefaultPDFMaxPages)
	case ".html", ".htm":
		f, err := os.Open(path)
		if err != nil {
			return "", err
		}
		defer f.Close()
		return HTMLText(io.LimitReader(f, maxDocumentBytes))
	case ".txt", ".md":
		f, err := os.Open(path)
		if err != nil {
			return "", err
		}
		defer f.Close()
		data, err := io.ReadAll(io.LimitReader(f, maxDocumentBytes))
		return strings.TrimSpace(string(data)), err
	default:
		return "", fmt.Errorf("unsupported document type %q", filepath.Ext(path))
	}
}

// HTMLText extracts visible text, one line per block element.
func HTMLText(r io.Reader) (string, error) {
	node, err := html.Parse(r)
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}
	var b strings.Builder
	visibleText(node, &b, false)
	return compactLines(b.String()), nil
}

func visibleText(n *html.Node, b *strings.Builder, hidden bool) {
	if n.Type == html.ElementNode {
		switch strings.ToLower(n.Data) {
		case "script", "style", "noscript", "head":
			hidden = true
		case "br", "p", "div", "li", "tr", "h1", "h2", "h3", "h4", "section":
			b.WriteString("\n")
		}
	}
	if !hidden && n.Type == html.TextNode {
		b.WriteString(n.Data)
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		visibleText(c, b, hidden)
	}
}

func compactLines(s string) string {
	lines := strings.Split(s, "\n")
	out := lines[:0]
	for _, ln := range lines {
		if ln = strings.Join(strings.Fields(ln), " "); ln != "" {
			out = append(out, ln)
		}
	}
	return strings.Join(out, "\n")
}
