package dom

import (
	"sort"
	"strings"

	"reviewharvest-backend/lib/htmlutil"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// Element is a typed descriptor over a parsed DOM node.
type Element struct {
	node *html.Node
}

func NewElement(node *html.Node) *Element {
	if node == nil {
		return nil
	}
	return &Element{node: node}
}

func (e *Element) Tag() string {
	if e.node.Type != html.ElementNode {
		return ""
	}
	return e.node.Data
}

func (e *Element) ID() string {
	return htmlutil.GetAttr(e.node, "id")
}

func (e *Element) Attr(key string) string {
	return htmlutil.GetAttr(e.node, key)
}

func (e *Element) Classes() []string {
	return strings.Fields(htmlutil.GetAttr(e.node, "class"))
}

// Text returns the visible text of the subtree, printable characters only,
// inner whitespace collapsed.
func (e *Element) Text() string {
	return htmlutil.CleanText(e.node)
}

// Signature produces a stable structural identity for the element: the id
// when present, otherwise the tag plus its sorted class list.
func (e *Element) Signature() string {
	tag := e.Tag()
	if tag == "" {
		return ""
	}
	if id := e.ID(); id != "" {
		return tag + "#" + id
	}
	classes := e.Classes()
	if len(classes) == 0 {
		return tag
	}
	sort.Strings(classes)
	return tag + "." + strings.Join(classes, ".")
}

func (e *Element) Parent() *Element {
	p := e.node.Parent
	for p != nil && p.Type != html.ElementNode {
		p = p.Parent
	}
	if p == nil {
		return nil
	}
	return &Element{node: p}
}

func (e *Element) Children() []*Element {
	var out []*Element
	for c := e.node.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode {
			out = append(out, &Element{node: c})
		}
	}
	return out
}

// Depth counts element ancestors up to the document root.
func (e *Element) Depth() int {
	depth := 0
	for p := e.Parent(); p != nil; p = p.Parent() {
		depth++
	}
	return depth
}

// Find runs a CSS selector scoped to this element's subtree.
func (e *Element) Find(selector string) []*Element {
	doc := goquery.NewDocumentFromNode(e.node)
	var out []*Element
	for _, n := range doc.Find(selector).Nodes {
		out = append(out, &Element{node: n})
	}
	return out
}

// First returns the first match of a scoped CSS selector, or nil.
func (e *Element) First(selector string) *Element {
	found := e.Find(selector)
	if len(found) == 0 {
		return nil
	}
	return found[0]
}
