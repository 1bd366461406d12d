package extract

import (
	"regexp"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

const maxDepth = 256

var (
	multiNewlinePattern = regexp.MustCompile(`\n{3,}`)
	multiSpacePattern   = regexp.MustCompile(`[ \t\f\r]{2,}`)
)

// HTMLToText returns the readable text of an HTML document. When the page has
// an <article> or <main> element only that subtree is used; navigation,
// scripts and other chrome are skipped.
func HTMLToText(doc string) (string, error) {
	root, err := html.Parse(strings.NewReader(doc))
	if err != nil {
		return "", err
	}

	if main := findFirst(root, atom.Article); main != nil {
		root = main
	} else if main := findFirst(root, atom.Main); main != nil {
		root = main
	}

	var sb strings.Builder
	writeText(root, &sb, 0)
	return cleanText(sb.String()), nil
}

func findFirst(n *html.Node, a atom.Atom) *html.Node {
	if n.Type == html.ElementNode && n.DataAtom == a {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findFirst(c, a); found != nil {
			return found
		}
	}
	return nil
}

func writeText(n *html.Node, sb *strings.Builder, depth int) {
	if depth > maxDepth {
		return
	}

	switch n.Type {
	case html.TextNode:
		if text := strings.Join(strings.Fields(n.Data), " "); text != "" {
			sb.WriteString(text)
			sb.WriteString(" ")
		}
		return
	case html.ElementNode:
		switch n.DataAtom {
		case atom.Script, atom.Style, atom.Noscript, atom.Iframe, atom.Svg,
			atom.Nav, atom.Footer, atom.Header, atom.Aside, atom.Form, atom.Template:
			return
		case atom.Br:
			sb.WriteString("\n")
			return
		case atom.Li:
			sb.WriteString("\n- ")
		}
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		writeText(c, sb, depth+1)
	}

	if n.Type == html.ElementNode && isBlock(n.DataAtom) {
		sb.WriteString("\n\n")
	}
}

func isBlock(a atom.Atom) bool {
	switch a {
	case atom.P, atom.Div, atom.Section, atom.Article, atom.Main, atom.Blockquote, atom.Pre,
		atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6,
		atom.Ul, atom.Ol, atom.Table, atom.Tr, atom.Title:
		return true
	}
	return false
}

func cleanText(s string) string {
	s = multiSpacePattern.ReplaceAllString(s, " ")

	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}
	s = strings.Join(lines, "\n")

	s = multiNewlinePattern.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}
