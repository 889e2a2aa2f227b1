package newsbrief

import (
	"testing"

	"github.com/RobinCoderZhao/newsbrief/internal/newsbrief/sources"
	"github.com/RobinCoderZhao/newsbrief/internal/newsbrief/summarizer"
)

func TestBriefingStatus(t *testing.T) {
	refs := []sources.ArticleRef{{Title: "a", URL: "https://a"}}
	tests := []struct {
		name string
		b    Briefing
		want string
		text string
	}{
		{"no articles", Briefing{}, StatusNoArticles, ""},
		{"ok", Briefing{Headlines: refs, Summary: &summarizer.Result{Draft: "d", Polished: "p"}}, StatusOK, "p"},
		{"draft only", Briefing{Headlines: refs, Summary: &summarizer.Result{Draft: "d"}, PolishError: "quota"}, StatusDraftOnly, "d"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.b.Status(); got != tt.want {
				t.Errorf("Status() = %q, want %q", got, tt.want)
			}
			if got := tt.b.SummaryText(); got != tt.text {
				t.Errorf("SummaryText() = %q, want %q", got, tt.text)
			}
		})
	}
}
