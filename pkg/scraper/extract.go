package scraper

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"
	"golang.org/x/net/html"
)

var (
	reSpaces     = regexp.MustCompile(`[ \t\r\f\v]+`)
	reBlankLines = regexp.MustCompile(`\n\s*\n+`)
)

// noiseSelectors are removed from the readability output before taking text.
const noiseSelectors = "figure, figcaption, aside, script, style, noscript, iframe, form, .share, .social, .related, .newsletter, .advertisement"

// ExtractArticle isolates the main content of an HTML page and returns its
// title and plain text with paragraphs separated by blank lines.
func ExtractArticle(rawHTML string, pageURL *url.URL) (string, string, error) {
	article, err := readability.FromReader(strings.NewReader(rawHTML), pageURL)
	if err != nil {
		return "", "", fmt.Errorf("readability: %w", err)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(article.Content))
	if err != nil {
		return "", "", fmt.Errorf("parse readable html: %w", err)
	}
	doc.Find(noiseSelectors).Remove()

	var blocks []string
	doc.Find("p, h1, h2, h3, h4, li, blockquote, pre").Each(func(_ int, s *goquery.Selection) {
		// Nested blocks are reached through their parent.
		if s.ParentsFiltered("p, li, blockquote").Length() > 0 {
			return
		}
		if t := normalizeText(s.Text()); t != "" {
			blocks = append(blocks, t)
		}
	})

	text := strings.Join(blocks, "\n\n")
	if text == "" {
		text = normalizeText(doc.Text())
	}
	if text == "" {
		return "", "", fmt.Errorf("readability found no text")
	}
	return strings.TrimSpace(article.Title), text, nil
}

func normalizeText(s string) string {
	s = reSpaces.ReplaceAllString(s, " ")
	s = reBlankLines.ReplaceAllString(s, "\n\n")
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSpace(l)
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// ExtractText converts HTML to clean structured text, removing navigation/footer/scripts.
// It is the fallback when readability cannot find an article body.
func ExtractText(htmlContent string) string {
	doc, err := html.Parse(strings.NewReader(htmlContent))
	if err != nil {
		return ""
	}

	var sb strings.Builder
	extractTextFromNode(doc, &sb, map[string]bool{
		"script": true, "style": true, "nav": true, "footer": true,
		"header": true, "noscript": true, "svg": true, "iframe": true,
		"aside": true, "form": true, "head": true,
	})
	return normalizeText(sb.String())
}

func extractTextFromNode(n *html.Node, sb *strings.Builder, skipTags map[string]bool) {
	if n.Type == html.ElementNode {
		if skipTags[n.Data] {
			return
		}
		switch n.Data {
		case "h1", "h2", "h3", "h4", "p", "li", "blockquote":
			sb.WriteString("\n\n")
		case "br", "div", "tr":
			sb.WriteString("\n")
		}
	}

	if n.Type == html.TextNode {
		if text := strings.TrimSpace(n.Data); text != "" {
			sb.WriteString(text)
			sb.WriteString(" ")
		}
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		extractTextFromNode(c, sb, skipTags)
	}

	if n.Type == html.ElementNode {
		switch n.Data {
		case "h1", "h2", "h3", "h4", "p", "li", "blockquote":
			sb.WriteString("\n\n")
		}
	}
}

func extractTitle(htmlContent string) string {
	doc, err := html.Parse(strings.NewReader(htmlContent))
	if err != nil {
		return ""
	}
	return findTitle(doc)
}

func findTitle(n *html.Node) string {
	if n.Type == html.ElementNode && n.Data == "title" && n.FirstChild != nil {
		return strings.TrimSpace(n.FirstChild.Data)
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if title := findTitle(c); title != "" {
			return title
		}
	}
	return ""
}
