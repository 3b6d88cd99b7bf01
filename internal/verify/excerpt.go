package verify

import (
	"sort"
	"strings"
	"unicode/utf8"
)

const elisionMarker = "[...]"

// Common words that carry no signal when matching a claim against article
// paragraphs.
var stopWords = map[string]bool{
	"the": true, "and": true, "for": true, "are": true, "was": true,
	"were": true, "been": true, "have": true, "has": true, "had": true,
	"this": true, "that": true, "with": true, "from": true, "what": true,
	"how": true, "does": true, "which": true, "where": true, "when": true,
	"who": true, "why": true, "can": true, "will": true, "not": true,
	"its": true, "their": true, "than": true, "into": true, "about": true,
}

// BuildExcerpt returns at most limit bytes of text, chosen for relevance to
// the claim. Long articles are split into paragraphs, each paragraph scored
// by how often the claim's keywords occur in it, and the best paragraphs are
// kept in their original order with elision markers at the gaps. Texts with
// no usable paragraphs or claims with no usable keywords fall back to a
// plain prefix cut.
func BuildExcerpt(claim, text string, limit int) string {
	if limit <= 0 || len(text) <= limit {
		return text
	}

	keywords := claimKeywords(claim)
	if len(keywords) == 0 {
		return prefixCut(text, limit)
	}

	paragraphs := splitParagraphs(text)
	if len(paragraphs) <= 1 {
		return prefixCut(text, limit)
	}

	type scoredParagraph struct {
		idx   int
		score int
	}
	scored := make([]scoredParagraph, len(paragraphs))
	for i, p := range paragraphs {
		lower := strings.ToLower(p)
		score := 0
		for _, kw := range keywords {
			score += strings.Count(lower, kw)
		}
		scored[i] = scoredParagraph{idx: i, score: score}
	}
	sort.SliceStable(scored, func(a, b int) bool {
		return scored[a].score > scored[b].score
	})

	// Greedy pick under budget. Each pick is charged for its joiner and a
	// possible elision marker so the assembled excerpt stays within limit.
	overhead := len("\n\n") + len(elisionMarker) + len("\n\n")
	selected := make(map[int]bool)
	total := 0
	for _, s := range scored {
		cost := len(paragraphs[s.idx]) + overhead
		if total+cost > limit {
			continue
		}
		selected[s.idx] = true
		total += cost
	}
	if len(selected) == 0 {
		return prefixCut(text, limit)
	}

	var b strings.Builder
	prev := -1
	for i, p := range paragraphs {
		if !selected[i] {
			continue
		}
		if prev >= 0 {
			b.WriteString("\n\n")
			if i != prev+1 {
				b.WriteString(elisionMarker)
				b.WriteString("\n\n")
			}
		}
		b.WriteString(p)
		prev = i
	}
	return b.String()
}

// claimKeywords returns the claim's lowercase words of 3+ characters with
// punctuation stripped, stop words and duplicates removed, in claim order.
func claimKeywords(claim string) []string {
	words := strings.Fields(strings.ToLower(claim))
	var keywords []string
	seen := make(map[string]bool)
	for _, w := range words {
		w = strings.Trim(w, "?.,!;:'\"()[]{}%")
		if len(w) < 3 || stopWords[w] || seen[w] {
			continue
		}
		seen[w] = true
		keywords = append(keywords, w)
	}
	return keywords
}

func splitParagraphs(text string) []string {
	parts := strings.Split(text, "\n\n")
	var paragraphs []string
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			paragraphs = append(paragraphs, p)
		}
	}
	return paragraphs
}

// prefixCut truncates at limit without splitting a multi-byte rune.
func prefixCut(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
