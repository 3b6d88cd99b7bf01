package duckduckgo

import (
	"bytes"
	"net/url"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/net/html"
)

// parseResults extracts organic results from an HTML result page. Organic
// links carry the result__a class; sponsored entries point at ad redirectors
// and are dropped. A challenge interstitial counts as a malformed response
// for the whole query.
func parseResults(page []byte, limit int) ([]Result, error) {
	doc, err := html.Parse(bytes.NewReader(page))
	if err != nil {
		return nil, eris.Wrap(err, "duckduckgo: parse result page")
	}

	if isChallengePage(doc) {
		return nil, eris.New("duckduckgo: challenge page served instead of results")
	}

	var results []Result
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if limit > 0 && len(results) >= limit {
			return
		}
		if n.Type == html.ElementNode && n.Data == "a" && hasClass(n, "result__a") {
			if target, ok := resolveHref(attr(n, "href")); ok {
				results = append(results, Result{
					Title:   strings.TrimSpace(textContent(n)),
					URL:     target,
					Snippet: snippetFor(n),
				})
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	return results, nil
}

// resolveHref turns a result anchor href into the destination URL. The HTML
// endpoint wraps destinations in a /l/?uddg=<escaped-url> redirect; ad
// entries route through y.js and are rejected.
func resolveHref(href string) (string, bool) {
	href = strings.TrimSpace(href)
	if href == "" {
		return "", false
	}
	if strings.HasPrefix(href, "//") {
		href = "https:" + href
	}

	u, err := url.Parse(href)
	if err != nil {
		return "", false
	}

	if strings.Contains(u.Path, "y.js") {
		return "", false
	}

	if strings.HasSuffix(u.Host, "duckduckgo.com") && strings.HasPrefix(u.Path, "/l/") {
		target := u.Query().Get("uddg")
		if target == "" {
			return "", false
		}
		return target, true
	}

	if u.Scheme == "" || u.Host == "" {
		return "", false
	}
	return u.String(), true
}

// snippetFor finds the result__snippet text inside the same result container
// as the title anchor. Best effort; an empty snippet is fine.
func snippetFor(anchor *html.Node) string {
	container := anchor
	for container != nil {
		if container.Type == html.ElementNode && container.Data == "div" && hasClassPrefix(container, "result") {
			break
		}
		container = container.Parent
	}
	if container == nil {
		return ""
	}

	var snippet string
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if snippet != "" {
			return
		}
		if n.Type == html.ElementNode && hasClass(n, "result__snippet") {
			snippet = strings.TrimSpace(textContent(n))
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(container)
	return snippet
}

func isChallengePage(doc *html.Node) bool {
	var found bool
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if found {
			return
		}
		if n.Type == html.ElementNode && (hasClassPrefix(n, "anomaly-modal") || attr(n, "id") == "anomaly-modal") {
			found = true
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return found
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func hasClass(n *html.Node, class string) bool {
	for _, token := range strings.Fields(attr(n, "class")) {
		if token == class {
			return true
		}
	}
	return false
}

func hasClassPrefix(n *html.Node, prefix string) bool {
	for _, token := range strings.Fields(attr(n, "class")) {
		if strings.HasPrefix(token, prefix) {
			return true
		}
	}
	return false
}

func textContent(n *html.Node) string {
	var sb strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return sb.String()
}
