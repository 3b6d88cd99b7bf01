package fetch

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/claimsift/claimsift/internal/model"
	"github.com/claimsift/claimsift/pkg/firecrawl"
	"github.com/claimsift/claimsift/pkg/jina"
)

// JinaReader adapts the Jina reading service to the Reader interface. The
// service renders JavaScript-heavy and bot-hostile pages that the direct
// HTTP path cannot, returning markdown which is flattened to plain text.
type JinaReader struct {
	client jina.Client
}

// NewJinaReader wraps a Jina client as a fetch fallback.
func NewJinaReader(client jina.Client) *JinaReader {
	return &JinaReader{client: client}
}

// Read fetches rawURL through the reading service.
func (r *JinaReader) Read(ctx context.Context, rawURL string) (model.Article, error) {
	page, err := r.client.Read(ctx, rawURL)
	if err != nil {
		return model.Article{}, eris.Wrap(err, "fetch: jina read")
	}

	art := model.Article{
		URL:      rawURL,
		Title:    page.Title,
		BodyText: markdownToText(page.Content),
	}
	if t := parseReaderTime(page.PublishedTime); t != nil {
		art.PublishedAt = t
	}
	return art, nil
}

// FirecrawlReader adapts the Firecrawl scrape API to the Reader interface.
// Same role as JinaReader behind a different rendering service.
type FirecrawlReader struct {
	client firecrawl.Client
}

// NewFirecrawlReader wraps a Firecrawl client as a fetch fallback.
func NewFirecrawlReader(client firecrawl.Client) *FirecrawlReader {
	return &FirecrawlReader{client: client}
}

// Read scrapes rawURL through Firecrawl.
func (r *FirecrawlReader) Read(ctx context.Context, rawURL string) (model.Article, error) {
	doc, err := r.client.Scrape(ctx, rawURL)
	if err != nil {
		return model.Article{}, eris.Wrap(err, "fetch: firecrawl scrape")
	}

	return model.Article{
		URL:      rawURL,
		Title:    doc.Title,
		BodyText: markdownToText(doc.Markdown),
	}, nil
}

func parseReaderTime(s string) *time.Time {
	if s == "" {
		return nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			utc := t.UTC()
			return &utc
		}
	}
	return nil
}

var (
	mdImageRe   = regexp.MustCompile(`!\[[^\]]*\]\([^)]*\)`)
	mdLinkRe    = regexp.MustCompile(`\[([^\]]+)\]\([^)]*\)`)
	mdHeadingRe = regexp.MustCompile(`(?m)^#{1,6}[ \t]*`)
	mdFenceRe   = regexp.MustCompile("(?m)^```.*$")
	mdRuleRe    = regexp.MustCompile(`(?m)^[ \t]*([-*_][ \t]*){3,}$`)
)

// markdownToText strips markdown syntax down to plain paragraphs: images
// dropped, links reduced to their text, headings and emphasis markers
// removed.
func markdownToText(md string) string {
	md = mdImageRe.ReplaceAllString(md, "")
	md = mdLinkRe.ReplaceAllString(md, "$1")
	md = mdFenceRe.ReplaceAllString(md, "")
	md = mdRuleRe.ReplaceAllString(md, "")
	md = mdHeadingRe.ReplaceAllString(md, "")
	md = strings.ReplaceAll(md, "**", "")
	md = strings.ReplaceAll(md, "__", "")
	return collapseWhitespace(md)
}
