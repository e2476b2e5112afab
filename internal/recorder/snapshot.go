package recorder

import (
	"bytes"
	"fmt"
	"hash/fnv"
	"strings"

	"golang.org/x/net/html"
)

// snapshotExpr captures what the preview needs in one round trip.
const snapshotExpr = `({title: document.title, url: location.href, html: document.documentElement ? document.documentElement.outerHTML : ""})`

// pageSnapshot is the evaluated result of snapshotExpr.
type pageSnapshot struct {
	Title string `json:"title"`
	URL   string `json:"url"`
	HTML  string `json:"html"`
}

// droppedElements are removed wholesale from preview snapshots. Scripts
// must not re-run inside the preview and nested browsing contexts would
// load live content behind the recording's back.
var droppedElements = map[string]bool{
	"script":   true,
	"noscript": true,
	"iframe":   true,
	"frame":    true,
	"object":   true,
	"embed":    true,
}

// SanitizeSnapshot parses raw page html, strips active content and gives
// the document a base url so relative stylesheets and images still
// resolve when the capture renders inside the preview.
func SanitizeSnapshot(raw, baseURL string) ([]byte, error) {
	doc, err := html.Parse(strings.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("parsing snapshot html: %w", err)
	}
	scrub(doc)
	if baseURL != "" {
		insertBase(doc, baseURL)
	}
	var buf bytes.Buffer
	if err := html.Render(&buf, doc); err != nil {
		return nil, fmt.Errorf("rendering snapshot html: %w", err)
	}
	return buf.Bytes(), nil
}

// scrub removes active content in place: dropped elements, inline event
// handlers and javascript: urls.
func scrub(n *html.Node) {
	var next *html.Node
	for c := n.FirstChild; c != nil; c = next {
		next = c.NextSibling
		if c.Type == html.ElementNode && droppedElements[c.Data] {
			n.RemoveChild(c)
			continue
		}
		scrub(c)
	}

	if n.Type != html.ElementNode {
		return
	}
	attrs := n.Attr[:0]
	for _, a := range n.Attr {
		key := strings.ToLower(a.Key)
		if strings.HasPrefix(key, "on") {
			continue
		}
		if isURLAttr(key) && strings.HasPrefix(strings.TrimSpace(strings.ToLower(a.Val)), "javascript:") {
			continue
		}
		attrs = append(attrs, a)
	}
	n.Attr = attrs
}

func isURLAttr(key string) bool {
	switch key {
	case "href", "src", "action", "formaction", "xlink:href":
		return true
	}
	return false
}

// insertBase prepends a base element to head unless the document already
// carries one of its own.
func insertBase(doc *html.Node, baseURL string) {
	head := findElement(doc, "head")
	if head == nil {
		return
	}
	for c := head.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && c.Data == "base" {
			return
		}
	}
	base := &html.Node{
		Type: html.ElementNode,
		Data: "base",
		Attr: []html.Attribute{{Key: "href", Val: baseURL}},
	}
	head.InsertBefore(base, head.FirstChild)
}

func findElement(n *html.Node, name string) *html.Node {
	if n.Type == html.ElementNode && n.Data == name {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findElement(c, name); found != nil {
			return found
		}
	}
	return nil
}

// snapshotSum fingerprints a capture so unchanged pages are not re-sent
// every tick.
func snapshotSum(title, url string, body []byte) uint64 {
	h := fnv.New64a()
	h.Write([]byte(title))
	h.Write([]byte{0})
	h.Write([]byte(url))
	h.Write([]byte{0})
	h.Write(body)
	return h.Sum64()
}
