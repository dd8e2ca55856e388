package scraper

import (
	"strings"

	"golang.org/x/net/html"
)

// matcher decide se um nó de elemento atende a um seletor simples
type matcher func(n *html.Node) bool

func parseDocument(src string) (*html.Node, error) {
	return html.Parse(strings.NewReader(src))
}

// findAll percorre a árvore em profundidade e devolve os elementos que casam, em ordem de documento
func findAll(root *html.Node, m matcher) []*html.Node {
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.ElementNode && m(c) {
				out = append(out, c)
			}
			walk(c)
		}
	}
	if root != nil {
		walk(root)
	}
	return out
}

func findFirst(root *html.Node, m matcher) *html.Node {
	if root == nil {
		return nil
	}
	for c := root.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && m(c) {
			return c
		}
		if n := findFirst(c, m); n != nil {
			return n
		}
	}
	return nil
}

// tagClass casa "tag.class"; tag vazia casa qualquer elemento
func tagClass(tag, class string) matcher {
	return func(n *html.Node) bool {
		if tag != "" && n.Data != tag {
			return false
		}
		return class == "" || hasClass(n, class)
	}
}

func tag(name string) matcher { return tagClass(name, "") }

func hasAttr(key string) matcher {
	return func(n *html.Node) bool {
		_, ok := attr(n, key)
		return ok
	}
}

// attrContains casa tag[key*=substr]
func attrContains(tagName, key, substr string) matcher {
	return func(n *html.Node) bool {
		if tagName != "" && n.Data != tagName {
			return false
		}
		v, ok := attr(n, key)
		return ok && strings.Contains(v, substr)
	}
}

func anyOf(ms ...matcher) matcher {
	return func(n *html.Node) bool {
		for _, m := range ms {
			if m(n) {
				return true
			}
		}
		return false
	}
}

func hasClass(n *html.Node, class string) bool {
	v, ok := attr(n, "class")
	if !ok {
		return false
	}
	for _, c := range strings.Fields(v) {
		if c == class {
			return true
		}
	}
	return false
}

func attr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

// textContent concatena os nós de texto do elemento e normaliza espaços
func textContent(n *html.Node) string {
	if n == nil {
		return ""
	}
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
			b.WriteByte(' ')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.Join(strings.Fields(b.String()), " ")
}
