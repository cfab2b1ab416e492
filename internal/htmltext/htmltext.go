// Package htmltext renders the visible text of parsed markup.
package htmltext

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// Visible joins the text nodes under sel with single spaces, skipping script and style
// content. goquery's Text() concatenates adjacent nodes without a separator, which
// glues "4.5 stars" or a phone number to the next element's text.
func Visible(sel *goquery.Selection) string {
	var parts []string
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			if t := strings.TrimSpace(n.Data); t != "" {
				parts = append(parts, t)
			}
			return
		case html.ElementNode:
			switch n.Data {
			case "script", "style", "noscript", "template":
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, n := range sel.Nodes {
		walk(n)
	}
	return Collapse(strings.Join(parts, " "))
}

// Document returns the visible text of the whole body, or of the document when there
// is no body element.
func Document(doc *goquery.Document) string {
	body := doc.Find("body")
	if body.Length() == 0 {
		return Visible(doc.Selection)
	}
	return Visible(body)
}

// Collapse folds runs of whitespace into single spaces.
func Collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Truncate cuts s to at most n runes.
func Truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
