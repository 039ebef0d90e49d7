package artifact

import (
	"bytes"
	"fmt"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// PrintStyle is injected into every page before PDF rendering.
const PrintStyle = "@page { size: A4; margin: 20mm; } p { margin-bottom: 1em; }"

// PrepareHTML makes a generated HTML document printable: it adds
// PrintStyle to the head and sets the title when the document has none.
// Fragments are wrapped in a full document by the parser.
func PrepareHTML(raw []byte, title string) ([]byte, error) {
	doc, err := html.Parse(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("artifact: parse html: %w", err)
	}
	head := findElement(doc, atom.Head)
	if head == nil {
		return nil, fmt.Errorf("artifact: html has no head")
	}

	if title != "" && findElement(head, atom.Title) == nil {
		t := &html.Node{Type: html.ElementNode, Data: "title", DataAtom: atom.Title}
		t.AppendChild(&html.Node{Type: html.TextNode, Data: title})
		head.AppendChild(t)
	}
	style := &html.Node{Type: html.ElementNode, Data: "style", DataAtom: atom.Style}
	style.AppendChild(&html.Node{Type: html.TextNode, Data: PrintStyle})
	head.AppendChild(style)

	var buf bytes.Buffer
	if err := html.Render(&buf, doc); err != nil {
		return nil, fmt.Errorf("artifact: render html: %w", err)
	}
	return buf.Bytes(), nil
}

func findElement(n *html.Node, a atom.Atom) *html.Node {
	if n.Type == html.ElementNode && n.DataAtom == a {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findElement(c, a); found != nil {
			return found
		}
	}
	return nil
}
