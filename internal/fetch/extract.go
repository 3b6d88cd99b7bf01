package fetch

import (
	"io"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Extracted holds the article fields pulled out of an HTML document.
type Extracted struct {
	Title       string
	Authors     []string
	PublishedAt *time.Time
	BodyText    string
}

// Elements whose text is never article content.
var skipAtoms = map[atom.Atom]bool{
	atom.Script:   true,
	atom.Style:    true,
	atom.Noscript: true,
	atom.Template: true,
	atom.Nav:      true,
	atom.Header:   true,
	atom.Footer:   true,
	atom.Aside:    true,
	atom.Form:     true,
	atom.Iframe:   true,
	atom.Svg:      true,
	atom.Button:   true,
	atom.Select:   true,
	atom.Figure:   true,
}

// Elements that delimit a paragraph of body text.
var blockAtoms = map[atom.Atom]bool{
	atom.P:          true,
	atom.H1:         true,
	atom.H2:         true,
	atom.H3:         true,
	atom.H4:         true,
	atom.H5:         true,
	atom.H6:         true,
	atom.Li:         true,
	atom.Blockquote: true,
	atom.Pre:        true,
}

// Metadata keys that may carry the publication date, in priority order.
var publishedKeys = []string{
	"article:published_time",
	"parsely-pub-date",
	"datepublished",
	"date",
	"pubdate",
	"publish-date",
}

var publishedLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"January 2, 2006",
	"Jan 2, 2006",
	"2 January 2006",
}

// ExtractArticle parses HTML and pulls out the title, authors, publication
// date, and readable body text. The walk is purely structural, so the same
// document always yields the same result.
func ExtractArticle(r io.Reader) (*Extracted, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, eris.Wrap(err, "fetch: parse html")
	}

	meta := scanMetadata(doc)

	ex := &Extracted{
		Title:       pickTitle(meta),
		Authors:     pickAuthors(meta),
		PublishedAt: pickPublished(meta),
	}

	container := findBodyContainer(doc)
	if container != nil {
		ex.BodyText = bodyText(container)
	}

	return ex, nil
}

// docMetadata is everything scanMetadata gathers in one pass.
type docMetadata struct {
	docTitle   string
	metas      map[string]string // meta name/property/itemprop -> content, first wins
	timeAttrs  []string          // <time datetime="..."> values in document order
	relAuthors []string          // <a rel="author"> link text in document order
}

func scanMetadata(doc *html.Node) *docMetadata {
	m := &docMetadata{metas: make(map[string]string)}

	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.DataAtom {
			case atom.Title:
				if m.docTitle == "" {
					m.docTitle = inlineText(n)
				}
			case atom.Meta:
				key := attrValue(n, "name")
				if key == "" {
					key = attrValue(n, "property")
				}
				if key == "" {
					key = attrValue(n, "itemprop")
				}
				key = strings.ToLower(strings.TrimSpace(key))
				content := strings.TrimSpace(attrValue(n, "content"))
				if key != "" && content != "" {
					if _, exists := m.metas[key]; !exists {
						m.metas[key] = content
					}
				}
			case atom.Time:
				if dt := strings.TrimSpace(attrValue(n, "datetime")); dt != "" {
					m.timeAttrs = append(m.timeAttrs, dt)
				}
			case atom.A:
				if relHasToken(attrValue(n, "rel"), "author") {
					if name := inlineText(n); name != "" {
						m.relAuthors = append(m.relAuthors, name)
					}
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	return m
}

func pickTitle(m *docMetadata) string {
	for _, key := range []string{"og:title", "twitter:title"} {
		if v, ok := m.metas[key]; ok {
			return v
		}
	}
	return m.docTitle
}

func pickAuthors(m *docMetadata) []string {
	var raw []string
	for _, key := range []string{"author", "article:author", "parsely-author"} {
		if v, ok := m.metas[key]; ok {
			// article:author is sometimes a profile URL, not a name.
			if strings.HasPrefix(strings.ToLower(v), "http") {
				continue
			}
			raw = append(raw, v)
		}
	}
	raw = append(raw, m.relAuthors...)

	var authors []string
	seen := make(map[string]bool)
	for _, entry := range raw {
		for _, name := range splitAuthors(entry) {
			key := strings.ToLower(name)
			if !seen[key] {
				seen[key] = true
				authors = append(authors, name)
			}
		}
	}
	return authors
}

func pickPublished(m *docMetadata) *time.Time {
	candidates := make([]string, 0, len(publishedKeys)+1)
	for _, key := range publishedKeys {
		if v, ok := m.metas[key]; ok {
			candidates = append(candidates, v)
		}
	}
	if len(m.timeAttrs) > 0 {
		candidates = append(candidates, m.timeAttrs[0])
	}

	for _, c := range candidates {
		for _, layout := range publishedLayouts {
			if t, err := time.Parse(layout, c); err == nil {
				utc := t.UTC()
				return &utc
			}
		}
	}
	return nil
}

// findBodyContainer picks the node whose text is most likely the article:
// the longest <article>, else <main> or role="main", else <body>.
func findBodyContainer(doc *html.Node) *html.Node {
	var articles []*html.Node
	var mainNode, bodyNode *html.Node

	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch {
			case n.DataAtom == atom.Article:
				articles = append(articles, n)
			case n.DataAtom == atom.Main,
				strings.EqualFold(attrValue(n, "role"), "main"):
				if mainNode == nil {
					mainNode = n
				}
			case n.DataAtom == atom.Body:
				bodyNode = n
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	if len(articles) > 0 {
		best := articles[0]
		bestLen := len(inlineText(best))
		for _, a := range articles[1:] {
			if l := len(inlineText(a)); l > bestLen {
				best, bestLen = a, l
			}
		}
		return best
	}
	if mainNode != nil {
		return mainNode
	}
	return bodyNode
}

// bodyText joins the container's block elements into paragraphs. Documents
// without block markup fall back to the container's collapsed inline text.
func bodyText(container *html.Node) string {
	var blocks []string

	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			if skipAtoms[n.DataAtom] {
				return
			}
			if blockAtoms[n.DataAtom] {
				if text := inlineText(n); text != "" {
					blocks = append(blocks, text)
				}
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(container)

	if len(blocks) > 0 {
		return strings.Join(blocks, "\n\n")
	}
	return inlineText(container)
}

// inlineText returns the node's text content with whitespace collapsed,
// skipping non-content elements.
func inlineText(n *html.Node) string {
	var b strings.Builder

	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && skipAtoms[n.DataAtom] {
			return
		}
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

func attrValue(n *html.Node, name string) string {
	for _, a := range n.Attr {
		if a.Key == name {
			return a.Val
		}
	}
	return ""
}

func relHasToken(rel, token string) bool {
	for _, t := range strings.Fields(strings.ToLower(rel)) {
		if t == token {
			return true
		}
	}
	return false
}

func splitAuthors(s string) []string {
	s = strings.ReplaceAll(s, " and ", ",")
	parts := strings.Split(s, ",")
	var names []string
	for _, p := range parts {
		name := strings.TrimSpace(p)
		if l := strings.ToLower(name); strings.HasPrefix(l, "by ") {
			name = strings.TrimSpace(name[3:])
		}
		if name != "" {
			names = append(names, name)
		}
	}
	return names
}
