package extract

import (
	"strings"

	"golang.org/x/net/html"
)

// Elements whose text is never article content.
var skipElements = map[string]bool{
	"script":   true,
	"style":    true,
	"noscript": true,
	"iframe":   true,
	"head":     true,
	"meta":     true,
	"link":     true,
	"title":    true,
	"template": true,
}

// Elements that end a line of text.
var blockElements = map[string]bool{
	"p":          true,
	"div":        true,
	"br":         true,
	"li":         true,
	"tr":         true,
	"table":      true,
	"section":    true,
	"article":    true,
	"header":     true,
	"footer":     true,
	"blockquote": true,
	"h1":         true,
	"h2":         true,
	"h3":         true,
	"h4":         true,
	"h5":         true,
	"h6":         true,
}

// Anchor texts that mark the start of the footer boilerplate. Everything
// from such a link onward is dropped.
var stopAnchorHints = []string{
	"unsubscribe",
	"manage preferences",
	"email preferences",
	"取消訂閱",
	"退訂",
}

// Anchor texts that are header boilerplate. Only the link itself is
// dropped.
var skipAnchorHints = []string{
	"view in browser",
	"view this email in your browser",
	"read online",
}

// htmlToText extracts the visible text of an HTML body. Block elements
// produce line breaks and newsletter chrome (tracking scripts, view-in-
// browser links, the unsubscribe footer) is stripped. The output still needs
// normalizeText.
func htmlToText(src string) string {
	doc, err := html.Parse(strings.NewReader(src))
	if err != nil {
		return ""
	}

	var b strings.Builder
	stopped := false

	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if stopped {
			return
		}
		switch n.Type {
		case html.TextNode:
			b.WriteString(n.Data)
			return
		case html.ElementNode:
			if skipElements[n.Data] {
				return
			}
			if n.Data == "a" {
				text := strings.ToLower(collapseWhitespace(nodeText(n)))
				if matchesAny(text, stopAnchorHints) {
					stopped = true
					return
				}
				if matchesAny(text, skipAnchorHints) {
					return
				}
			}
		}
		for c := n.FirstChild; c != nil && !stopped; c = c.NextSibling {
			walk(c)
		}
		if n.Type == html.ElementNode && blockElements[n.Data] {
			b.WriteString("\n")
		}
	}
	walk(doc)

	return b.String()
}

func matchesAny(text string, hints []string) bool {
	if text == "" {
		return false
	}
	for _, hint := range hints {
		if strings.Contains(text, hint) {
			return true
		}
	}
	return false
}

// nodeText concatenates the text nodes under n.
func nodeText(n *html.Node) string {
	var b strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}
