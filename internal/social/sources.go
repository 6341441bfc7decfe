package social

import (
	"context"
	"fmt"
	"time"
)

// Window bounds a lookback query.
type Window struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// Minutes returns the window length in minutes, never negative.
func (w Window) Minutes() float64 {
	d := w.To.Sub(w.From)
	if d < 0 {
		return 0
	}
	return d.Minutes()
}

// Votes carries reader reactions on one news item.
type Votes struct {
	Positive  int `json:"positive"`
	Negative  int `json:"negative"`
	Important int `json:"important"`
	Liked     int `json:"liked"`
	Disliked  int `json:"disliked"`
	Saved     int `json:"saved"`
}

// Total is the engagement count across every vote kind.
func (v Votes) Total() int {
	return v.Positive + v.Negative + v.Important + v.Liked + v.Disliked + v.Saved
}

// NewsItem is one normalized article.
type NewsItem struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	URL         string    `json:"url"`
	Author      string    `json:"author"` // publishing source title or domain
	PublishedAt time.Time `json:"published_at"`
	Votes       Votes     `json:"votes"`
}

// SourceIdentity is metadata about a social data source.
type SourceIdentity struct {
	ID               string        `json:"id"`                // e.g. "news"
	Name             string        `json:"name"`              // human-readable
	ReliabilityGrade string        `json:"reliability_grade"` // A/B/C
	TTL              time.Duration `json:"ttl"`               // cache TTL for responses
	Keyless          bool          `json:"keyless"`           // works without an API key
}

// NewsSource fetches articles mentioning a symbol inside a window.
type NewsSource interface {
	FetchNews(ctx context.Context, symbol string, window Window, limit int) ([]NewsItem, error)
	Info() SourceIdentity
}

// SupportedSources lists the source names the analyzer implements. Anything
// else is answered with an unsupported entry plus a structured error.
var SupportedSources = map[string]bool{"news": true}

// FakeNewsSource returns canned articles for tests.
type FakeNewsSource struct {
	Items      []NewsItem
	Err        error
	LastSymbol string
	LastLimit  int
}

func (f *FakeNewsSource) FetchNews(_ context.Context, symbol string, _ Window, limit int) ([]NewsItem, error) {
	f.LastSymbol = symbol
	f.LastLimit = limit
	if f.Err != nil {
		return nil, f.Err
	}
	if limit > 0 && len(f.Items) > limit {
		return f.Items[:limit], nil
	}
	return f.Items, nil
}

func (f *FakeNewsSource) Info() SourceIdentity {
	return SourceIdentity{
		ID:               "news",
		Name:             fmt.Sprintf("fake news source (%d items)", len(f.Items)),
		ReliabilityGrade: "A",
		TTL:              time.Hour,
		Keyless:          true,
	}
}
