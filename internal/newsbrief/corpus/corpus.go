// Package corpus joins extracted article texts into the single input of the
// summarization pipeline.
package corpus

import (
	"strings"

	"github.com/RobinCoderZhao/newsbrief/internal/newsbrief/fetcher"
)

// Placeholder stands in for the corpus when no article text was extracted.
const Placeholder = "No full text available for the requested news."

// Build concatenates the bodies of successful fetches in input order, each
// followed by a blank line. It returns Placeholder when nothing usable was
// extracted, so the result is never empty.
func Build(texts []fetcher.ArticleText) string {
	var sb strings.Builder
	for _, t := range texts {
		if !t.OK() || strings.TrimSpace(t.Body) == "" {
			continue
		}
		sb.WriteString(t.Body)
		sb.WriteString("\n\n")
	}
	if sb.Len() == 0 {
		return Placeholder
	}
	return sb.String()
}

// Stats summarizes what went into a corpus.
type Stats struct {
	Articles  int `json:"articles"`
	Extracted int `json:"extracted"`
	Failed    int `json:"failed"`
	Chars     int `json:"chars"`
}

// Count reports how many texts contributed to the corpus.
func Count(texts []fetcher.ArticleText) Stats {
	s := Stats{Articles: len(texts)}
	for _, t := range texts {
		if t.OK() && strings.TrimSpace(t.Body) != "" {
			s.Extracted++
			s.Chars += len(t.Body)
		} else {
			s.Failed++
		}
	}
	return s
}

// IsPlaceholder reports whether c is the no-text placeholder.
func IsPlaceholder(c string) bool {
	return c == Placeholder
}
