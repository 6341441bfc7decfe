package social

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tokentruth/internal/certainty"
	"tokentruth/internal/flags"
)

func hourWindow() Window {
	to := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	return Window{From: to.Add(-time.Hour), To: to}
}

func newsItem(id, author string, pos, neg, imp int) NewsItem {
	return NewsItem{
		ID:     id,
		Title:  "story " + id,
		URL:    "https://news.example/" + id,
		Author: author,
		Votes:  Votes{Positive: pos, Negative: neg, Important: imp},
	}
}

func analyze(t *testing.T, src NewsSource, opts AnalyzeOptions) *Report {
	t.Helper()
	a := NewAnalyzer(src, nil, zerolog.Nop())
	return a.Analyze(context.Background(), "TKN", hourWindow(), opts)
}

func TestAnalyze_PositiveNews(t *testing.T) {
	src := &FakeNewsSource{Items: []NewsItem{
		newsItem("1", "alpha", 5, 0, 0),
		newsItem("2", "beta", 3, 1, 0),
		newsItem("3", "gamma", 2, 0, 2),
	}}
	rep := analyze(t, src, AnalyzeOptions{})

	require.NotNil(t, rep.Sentiment.Value)
	assert.Positive(t, *rep.Sentiment.Value)
	assert.Equal(t, certainty.Inferred, rep.Sentiment.Certainty)
	assert.Equal(t, StatusOK, rep.BySource["news"].Status)
	assert.Equal(t, 3, rep.BySource["news"].Volume)
	assert.False(t, flags.IDs(rep.Flags)[flags.NegativeSentiment])
	assert.False(t, flags.IDs(rep.Flags)[flags.LowAttention])
}

func TestAnalyze_NegativeSentimentFlagged(t *testing.T) {
	src := &FakeNewsSource{Items: []NewsItem{
		newsItem("1", "alpha", 0, 5, 0),
		newsItem("2", "beta", 0, 4, 0),
		newsItem("3", "gamma", 1, 3, 0),
	}}
	rep := analyze(t, src, AnalyzeOptions{})

	assert.Negative(t, *rep.Sentiment.Value)
	assert.True(t, flags.IDs(rep.Flags)[flags.NegativeSentiment])
	assert.Contains(t, []string{"very_negative", "negative"}, rep.Label)
}

func TestAnalyze_AllUnvotedIsNeutral(t *testing.T) {
	src := &FakeNewsSource{Items: []NewsItem{
		newsItem("1", "alpha", 0, 0, 0),
		newsItem("2", "beta", 0, 0, 0),
		newsItem("3", "gamma", 0, 0, 0),
	}}
	rep := analyze(t, src, AnalyzeOptions{})

	require.NotNil(t, rep.Sentiment.Value)
	assert.Equal(t, 0.0, *rep.Sentiment.Value)
	assert.Equal(t, "neutral", rep.Label)
}

func TestAnalyze_LowAttentionFlag(t *testing.T) {
	src := &FakeNewsSource{Items: []NewsItem{newsItem("1", "alpha", 1, 0, 0)}}
	rep := analyze(t, src, AnalyzeOptions{})
	assert.True(t, flags.IDs(rep.Flags)[flags.LowAttention])
}

func TestAnalyze_UnsupportedSourcesDualReported(t *testing.T) {
	src := &FakeNewsSource{Items: []NewsItem{
		newsItem("1", "alpha", 1, 0, 0),
		newsItem("2", "beta", 1, 0, 0),
		newsItem("3", "gamma", 1, 0, 0),
	}}
	rep := analyze(t, src, AnalyzeOptions{Sources: []string{"news", "x", "reddit", "youtube"}})

	for _, name := range []string{"x", "reddit", "youtube"} {
		entry, ok := rep.BySource[name]
		require.True(t, ok, "per-source entry for %s", name)
		assert.Equal(t, StatusUnsupported, entry.Status)
		assert.Nil(t, entry.Score)
	}
	unsupported := 0
	for _, e := range rep.Errors {
		if e.Code == certainty.CodeUnsupportedSource {
			unsupported++
			assert.False(t, e.Retryable)
		}
	}
	assert.Equal(t, 3, unsupported)
	assert.Equal(t, StatusOK, rep.BySource["news"].Status, "news still analyzed")
}

func TestAnalyze_TwitterAliasesToX(t *testing.T) {
	src := &FakeNewsSource{}
	rep := analyze(t, src, AnalyzeOptions{Sources: []string{"twitter"}})
	_, ok := rep.BySource["x"]
	assert.True(t, ok)
}

func TestAnalyze_ProviderFailure(t *testing.T) {
	src := &FakeNewsSource{Err: errors.New("cryptopanic 503")}
	rep := analyze(t, src, AnalyzeOptions{})

	assert.True(t, rep.Sentiment.IsUnknown())
	assert.True(t, rep.ZScore.IsUnknown())
	assert.True(t, flags.IDs(rep.Flags)[flags.NoSocialData])
	assert.Equal(t, 50.0, rep.RiskScore)
	require.NotEmpty(t, rep.Errors)
	assert.Equal(t, certainty.CodeUpstreamError, rep.Errors[0].Code)
	assert.True(t, rep.Errors[0].Retryable)
	assert.Equal(t, StatusPartial, rep.BySource["news"].Status)
}

func TestAnalyze_DedupeOption(t *testing.T) {
	dup := newsItem("1", "alpha", 1, 0, 0)
	dupBetter := newsItem("1", "alpha", 7, 0, 0)
	src := &FakeNewsSource{Items: []NewsItem{dup, dupBetter, newsItem("2", "beta", 1, 0, 0), newsItem("3", "gamma", 1, 0, 0)}}

	rep := analyze(t, src, AnalyzeOptions{Dedupe: true})
	assert.Equal(t, 3, rep.BySource["news"].Volume)

	repNoDedupe := analyze(t, src, AnalyzeOptions{})
	assert.Equal(t, 4, repNoDedupe.BySource["news"].Volume)
}

func TestAnalyze_VelocityAndZScore(t *testing.T) {
	items := make([]NewsItem, 30)
	for i := range items {
		items[i] = newsItem(string(rune('a'+i)), "alpha", 1, 0, 0)
	}
	rep := analyze(t, &FakeNewsSource{Items: items}, AnalyzeOptions{})

	require.NotNil(t, rep.VelocityPerMin.Value)
	assert.InDelta(t, 0.5, *rep.VelocityPerMin.Value, 1e-9, "30 items over 60 minutes")
	// static baseline mean=10 std=5: (30-10)/5 = 4
	require.NotNil(t, rep.ZScore.Value)
	assert.InDelta(t, 4.0, *rep.ZScore.Value, 1e-9)

	var spike *Anomaly
	for i := range rep.Anomalies {
		if rep.Anomalies[i].Type == "volume_spike" {
			spike = &rep.Anomalies[i]
		}
	}
	require.NotNil(t, spike)
	assert.Equal(t, flags.LevelHigh, spike.Severity)
}

func TestAnalyze_CoordinationSignal(t *testing.T) {
	// Ten items, one author: top-10 share 1.0 > 0.8.
	items := make([]NewsItem, 10)
	for i := range items {
		items[i] = newsItem(string(rune('a'+i)), "onlyvoice", 1, 0, 0)
	}
	rep := analyze(t, &FakeNewsSource{Items: items}, AnalyzeOptions{})

	var coord *Anomaly
	for i := range rep.Anomalies {
		if rep.Anomalies[i].Type == "coordination_signal" {
			coord = &rep.Anomalies[i]
		}
	}
	require.NotNil(t, coord)
	assert.Equal(t, flags.LevelHigh, coord.Severity)
	assert.True(t, flags.IDs(rep.Flags)[flags.CoordinatedNarrative])
}

func TestAnalyze_TopPostsRankedByEngagement(t *testing.T) {
	src := &FakeNewsSource{Items: []NewsItem{
		newsItem("low", "alpha", 1, 0, 0),
		newsItem("high", "beta", 9, 2, 1),
		newsItem("mid", "gamma", 4, 0, 0),
	}}
	rep := analyze(t, src, AnalyzeOptions{ReturnTopPosts: 2})

	require.Len(t, rep.TopPosts, 2)
	assert.Equal(t, "high", rep.TopPosts[0].ID)
	assert.Equal(t, "mid", rep.TopPosts[1].ID)
	assert.Contains(t, rep.TopPosts[0].TextHash, "sha256:")
}

func TestAnalyze_InfluencerPressure(t *testing.T) {
	// One creator holds all engagement across 50 items: pressure = 1.0.
	items := make([]NewsItem, 50)
	for i := range items {
		items[i] = newsItem(string(rune('a'+i)), "whale", 2, 0, 0)
	}
	rep := analyze(t, &FakeNewsSource{Items: items}, AnalyzeOptions{})
	assert.InDelta(t, 1.0, rep.InfluencerPressure, 1e-9)
}

func TestAnalyze_MaxItemsForwardedToSource(t *testing.T) {
	src := &FakeNewsSource{Items: []NewsItem{
		newsItem("1", "a", 1, 0, 0),
		newsItem("2", "b", 1, 0, 0),
		newsItem("3", "c", 1, 0, 0),
	}}
	rep := analyze(t, src, AnalyzeOptions{MaxItemsPerSource: 2})
	assert.Equal(t, 2, src.LastLimit)
	assert.Equal(t, 2, rep.BySource["news"].Volume)
}
