package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"

	"github.com/temoto/robotstxt"
)

// RobotsPolicy answers robots.txt questions, caching one group per host.
// A robots.txt that cannot be fetched allows everything.
type RobotsPolicy struct {
	client    *http.Client
	userAgent string
	mu        sync.Mutex
	groups    map[string]*robotstxt.Group
	logger    *slog.Logger
}

// NewRobotsPolicy creates a policy that identifies itself as userAgent.
func NewRobotsPolicy(client *http.Client, userAgent string) *RobotsPolicy {
	return &RobotsPolicy{
		client:    client,
		userAgent: userAgent,
		groups:    make(map[string]*robotstxt.Group),
		logger:    slog.Default(),
	}
}

// Allowed reports whether u may be fetched.
func (p *RobotsPolicy) Allowed(ctx context.Context, u *url.URL) bool {
	key := u.Scheme + "://" + u.Host

	p.mu.Lock()
	group, ok := p.groups[key]
	p.mu.Unlock()

	if !ok {
		group = p.load(ctx, key)
		p.mu.Lock()
		p.groups[key] = group
		p.mu.Unlock()
	}

	if group == nil {
		return true
	}
	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	return group.Test(path)
}

func (p *RobotsPolicy) load(ctx context.Context, origin string) *robotstxt.Group {
	robotsURL := fmt.Sprintf("%s/robots.txt", origin)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, nil)
	if err != nil {
		return nil
	}
	req.Header.Set("User-Agent", p.userAgent)

	resp, err := p.client.Do(req)
	if err != nil {
		p.logger.Debug("robots.txt unavailable, allowing", "url", robotsURL, "error", err)
		return nil
	}
	defer resp.Body.Close()

	data, err := robotstxt.FromResponse(resp)
	if err != nil {
		p.logger.Debug("robots.txt unparsable, allowing", "url", robotsURL, "error", err)
		return nil
	}
	return data.FindGroup(p.userAgent)
}
