package summarizer

import (
	"bytes"
	"fmt"
	"text/template"
)

// DefaultDraftPrompt asks for a dense factual summary of the corpus.
const DefaultDraftPrompt = `Summarize the following {{.Topic}} news in a detailed, informative paragraph.
Include key highlights, movie names, events, actors, and important updates.
Write it in a smooth, readable style, around 4-6 sentences:

{{.Content}}`

// DefaultPolishPrompt rewrites a draft for readers.
const DefaultPolishPrompt = `Take the raw summary below and rewrite it to be clear, concise, and user-friendly.
Keep every fact, name and date; do not add anything that is not in the summary.
Return only the rewritten summary.

{{.Content}}`

const (
	draftSystem  = "You are a news researcher who writes detailed, accurate summaries from news articles."
	polishSystem = "You are a helpful editor who makes content clear and concise."
)

// promptData is what prompt templates can reference.
type promptData struct {
	Topic   string
	Content string
}

func parsePrompt(name, text string) (*template.Template, error) {
	t, err := template.New(name).Option("missingkey=error").Parse(text)
	if err != nil {
		return nil, fmt.Errorf("parse %s prompt: %w", name, err)
	}
	return t, nil
}

func render(t *template.Template, data promptData) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render %s prompt: %w", t.Name(), err)
	}
	return buf.String(), nil
}
