package pipeline

import (
	"bytes"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
	"golang.org/x/net/html"
)

// ExtractText pulls plain text out of an uploaded document. PDF and HTML
// get format-aware extraction; everything else is treated as plain text.
// Dispatch prefers the declared content type, falling back to the
// filename extension.
func ExtractText(data []byte, filename, contentType string) (string, error) {
	switch {
	case contentType == "application/pdf" || strings.EqualFold(filepath.Ext(filename), ".pdf"):
		return extractPDF(data)
	case strings.HasPrefix(contentType, "text/html"),
		strings.EqualFold(filepath.Ext(filename), ".html"),
		strings.EqualFold(filepath.Ext(filename), ".htm"):
		return extractHTML(data)
	default:
		return string(data), nil
	}
}

func extractPDF(data []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("opening pdf: %w", err)
	}

	var sb strings.Builder
	for pageNum := 1; pageNum <= reader.NumPage(); pageNum++ {
		page := reader.Page(pageNum)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			// Skip unreadable pages; one bad page should not lose
			// the rest of the document.
			continue
		}
		sb.WriteString(text)
	}
	return sb.String(), nil
}

// extractHTML walks the parsed document and collects text nodes, skipping
// script and style subtrees.
func extractHTML(data []byte) (string, error) {
	doc, err := html.Parse(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("parsing html: %w", err)
	}

	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && (n.Data == "script" || n.Data == "style") {
			return
		}
		if n.Type == html.TextNode {
			text := strings.TrimSpace(n.Data)
			if text != "" {
				if sb.Len() > 0 {
					sb.WriteByte(' ')
				}
				sb.WriteString(text)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return sb.String(), nil
}

// ExtractFromReader is ExtractText for callers holding a stream.
func ExtractFromReader(r io.Reader, filename, contentType string) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("reading document: %w", err)
	}
	return ExtractText(data, filename, contentType)
}
