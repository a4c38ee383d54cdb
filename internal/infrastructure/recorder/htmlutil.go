package recorder

import (
	"net/url"
	"strings"

	"golang.org/x/net/html"
)

func attrValue(n *html.Node, name string) string {
	for _, attr := range n.Attr {
		if attr.Key == name {
			return attr.Val
		}
	}
	return ""
}

// findTable returns the first <table> whose id or class contains the
// configured marker.
func findTable(root *html.Node, marker string) *html.Node {
	var found *html.Node
	walk(root, func(n *html.Node) bool {
		if found != nil {
			return false
		}
		if n.Type != html.ElementNode || n.Data != "table" {
			return true
		}
		if strings.Contains(attrValue(n, "id"), marker) || strings.Contains(attrValue(n, "class"), marker) {
			found = n
			return false
		}
		return true
	})
	return found
}

func tableRows(table *html.Node) []*html.Node {
	var rows []*html.Node
	walk(table, func(n *html.Node) bool {
		if n.Type == html.ElementNode && n.Data == "tr" {
			rows = append(rows, n)
			return false
		}
		return true
	})
	return rows
}

// rowCells extracts per-cell text and any hrefs found inside the row.
func rowCells(row *html.Node) (cells []string, links []string) {
	for cell := row.FirstChild; cell != nil; cell = cell.NextSibling {
		if cell.Type != html.ElementNode || (cell.Data != "td" && cell.Data != "th") {
			continue
		}
		cells = append(cells, nodeText(cell))
		walk(cell, func(n *html.Node) bool {
			if n.Type == html.ElementNode && n.Data == "a" {
				if href := attrValue(n, "href"); href != "" {
					links = append(links, href)
				}
			}
			return true
		})
	}
	return cells, links
}

// findNextLink locates a pagination anchor: rel="next" or anchor text
// "next".
func findNextLink(root *html.Node, baseURL string) string {
	var next string
	walk(root, func(n *html.Node) bool {
		if next != "" {
			return false
		}
		if n.Type != html.ElementNode || n.Data != "a" {
			return true
		}
		href := attrValue(n, "href")
		if href == "" {
			return true
		}
		if attrValue(n, "rel") == "next" || strings.EqualFold(strings.TrimSpace(nodeText(n)), "next") {
			next = resolveURL(baseURL, href)
			return false
		}
		return true
	})
	return next
}

func nodeText(n *html.Node) string {
	var sb strings.Builder
	walk(n, func(child *html.Node) bool {
		if child.Type == html.TextNode {
			sb.WriteString(child.Data)
		}
		return true
	})
	return strings.TrimSpace(sb.String())
}

// walk visits nodes depth-first; the visitor returns false to skip a
// subtree.
func walk(n *html.Node, visit func(*html.Node) bool) {
	if !visit(n) {
		return
	}
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		walk(child, visit)
	}
}

func resolveURL(baseURL, href string) string {
	base, err := url.Parse(baseURL)
	if err != nil {
		return href
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return base.ResolveReference(ref).String()
}
