package extract

import (
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

// Layer 1: raw-text normalization. HTML content is reduced to visible text;
// anything else is treated as plain text. Output is whitespace-normalized
// and split into sentences for the identification layer.

// Normalize reduces raw source content to clean text.
func Normalize(content []byte, contentType string) (string, error) {
	text := string(content)

	if strings.Contains(contentType, "html") || looksLikeHTML(text) {
		doc, err := html.Parse(strings.NewReader(text))
		if err != nil {
			return "", err
		}
		text = extractVisibleText(doc)
	}

	return collapseWhitespace(text), nil
}

func looksLikeHTML(text string) bool {
	head := strings.ToLower(text)
	if len(head) > 512 {
		head = head[:512]
	}
	return strings.Contains(head, "<html") || strings.Contains(head, "<!doctype html")
}

// extractVisibleText extracts text nodes from HTML, skipping scripts/styles.
func extractVisibleText(n *html.Node) string {
	var buf strings.Builder

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script", "style", "noscript", "iframe":
				return
			}
		}

		if n.Type == html.TextNode {
			text := strings.TrimSpace(n.Data)
			if text != "" {
				buf.WriteString(text)
				buf.WriteString(" ")
			}
		}

		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}

	walk(n)
	return buf.String()
}

var whitespaceRe = regexp.MustCompile(`\s+`)

func collapseWhitespace(text string) string {
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(text, " "))
}

// SplitSentences splits normalized text into sentences (simple heuristic,
// good enough to window prompts and index claims).
func SplitSentences(text string) []string {
	var sentences []string
	var current strings.Builder

	for _, r := range text {
		current.WriteRune(r)
		if r == '.' || r == '!' || r == '?' {
			s := strings.TrimSpace(current.String())
			if len(s) > 3 {
				sentences = append(sentences, s)
			}
			current.Reset()
		}
	}
	if s := strings.TrimSpace(current.String()); len(s) > 3 {
		sentences = append(sentences, s)
	}
	return sentences
}

// windowText caps the text handed to the identification prompt, cutting at
// a sentence boundary so the proxy never sees half a sentence. Degenerate
// input with no sentence under the limit is cut hard.
func windowText(text string, limit int) string {
	if len(text) <= limit {
		return text
	}
	var b strings.Builder
	for _, s := range SplitSentences(text) {
		if b.Len()+len(s) > limit {
			break
		}
		b.WriteString(s)
		b.WriteString(" ")
	}
	if b.Len() == 0 {
		return text[:limit]
	}
	return strings.TrimSpace(b.String())
}
