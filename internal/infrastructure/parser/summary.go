package parser

import (
	"strings"
	"sync"
	"unicode/utf8"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
)

const summaryLimit = 280

// summarizer turns feed descriptions (HTML) into short plain-text teasers.
type summarizer struct {
	mu        sync.Mutex
	converter *md.Converter
}

func newSummarizer() *summarizer {
	conv := md.NewConverter("", true, &md.Options{EscapeMode: "disabled"})
	conv.Remove("script", "style", "iframe", "noscript")
	conv.AddRules(
		md.Rule{
			Filter: []string{"a", "b", "strong", "i", "em", "u", "s", "code", "span", "abbr"},
			Replacement: func(content string, _ *goquery.Selection, _ *md.Options) *string {
				return md.String(content)
			},
		},
		md.Rule{
			Filter: []string{"h1", "h2", "h3", "h4", "h5", "h6", "pre"},
			Replacement: func(content string, _ *goquery.Selection, _ *md.Options) *string {
				return md.String("\n\n" + content + "\n\n")
			},
		},
		md.Rule{
			Filter: []string{"img", "figure", "video", "audio"},
			Replacement: func(string, *goquery.Selection, *md.Options) *string {
				return md.String("")
			},
		},
	)
	return &summarizer{converter: conv}
}

// text returns the readable text of raw with whitespace collapsed, cut to
// summaryLimit runes.
func (s *summarizer) text(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}

	s.mu.Lock()
	out, err := s.converter.ConvertString(raw)
	s.mu.Unlock()
	if err != nil {
		return ""
	}
	return truncateRunes(collapseSpace(out), summaryLimit)
}

// truncateRunes cuts s to at most limit runes, preferring a word boundary.
func truncateRunes(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	cut := string(runes[:limit])
	if i := strings.LastIndex(cut, " "); i > len(cut)/2 {
		cut = cut[:i]
	}
	return strings.TrimRight(cut, " ,.;:") + "…"
}
