// Package ocr materializes page texts for a scanned perizia, either by
// calling an OCR service or by parsing hOCR output it produced earlier.
package ocr

import (
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html"

	"github.com/nexodify/periscan/internal/fieldstate"
)

// ParseHOCR extracts per-page text from an hOCR document. Pages are numbered
// in document order starting at 1. Text assembly tries structures from finest
// to coarsest: paragraphs, then lines, then the whole page node. The first
// strategy yielding any text wins, so well-segmented output keeps its
// paragraph breaks while degenerate output still contributes something.
func ParseHOCR(r io.Reader) ([]fieldstate.Page, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parse hocr: %w", err)
	}
	var pages []fieldstate.Page
	for _, pageNode := range findByClass(doc, "ocr_page") {
		text := pageText(pageNode)
		pages = append(pages, fieldstate.Page{Number: len(pages) + 1, Text: text})
	}
	if len(pages) == 0 {
		return nil, fmt.Errorf("parse hocr: no ocr_page elements found")
	}
	return pages, nil
}

// pageStrategies lists the hOCR classes to try per page, finest first.
var pageStrategies = []string{"ocr_par", "ocr_line", "ocrx_line"}

func pageText(page *html.Node) string {
	for _, class := range pageStrategies {
		var parts []string
		for _, n := range findByClass(page, class) {
			if t := strings.TrimSpace(nodeText(n)); t != "" {
				parts = append(parts, t)
			}
		}
		if len(parts) > 0 {
			return strings.Join(parts, "\n")
		}
	}
	return strings.TrimSpace(nodeText(page))
}

// findByClass collects element nodes under root carrying the given hOCR
// class token. Matched subtrees are not descended into again, so nested
// structures do not duplicate text. root itself is never matched, which lets
// pageText search within a matched page node.
func findByClass(root *html.Node, class string) []*html.Node {
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n != root && n.Type == html.ElementNode && hasClass(n, class) {
			out = append(out, n)
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return out
}

func hasClass(n *html.Node, class string) bool {
	for _, a := range n.Attr {
		if a.Key != "class" {
			continue
		}
		for _, tok := range strings.Fields(a.Val) {
			if tok == class {
				return true
			}
		}
	}
	return false
}

func nodeText(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
			sb.WriteString(" ")
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.Join(strings.Fields(sb.String()), " ")
}
