package social

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func item(title, url string, pos, neg, imp int) NewsItem {
	return NewsItem{Title: title, URL: url, Votes: Votes{Positive: pos, Negative: neg, Important: imp}}
}

func TestDedupe_KeepsMaxPositivePerGroup(t *testing.T) {
	items := []NewsItem{
		item("Token listed on exchange", "https://a.example/1", 2, 0, 0),
		item("Token listed on exchange", "https://a.example/1", 9, 0, 0),
		item("Different story", "https://b.example/2", 1, 0, 0),
	}
	out := Dedupe(items)
	require.Len(t, out, 2)
	assert.Equal(t, 9, out[0].Votes.Positive, "group keeps the max-positive item")
	assert.Equal(t, "Different story", out[1].Title)
}

func TestDedupe_FirstMaxWinsOnTie(t *testing.T) {
	first := item("same", "https://x/1", 5, 0, 0)
	first.ID = "first"
	second := item("same", "https://x/1", 5, 3, 0)
	second.ID = "second"

	out := Dedupe([]NewsItem{first, second})
	require.Len(t, out, 1)
	assert.Equal(t, "first", out[0].ID)
}

func TestDedupe_Idempotent(t *testing.T) {
	items := []NewsItem{
		item("a", "https://a/1", 1, 0, 0),
		item("a", "https://a/1", 4, 0, 0),
		item("b", "https://b/1", 2, 0, 0),
	}
	once := Dedupe(items)
	twice := Dedupe(once)
	assert.Equal(t, once, twice)
}

func TestDedupe_CaseAndWhitespaceNormalized(t *testing.T) {
	a := item("Token News", "https://a/1", 1, 0, 0)
	b := item("  token news", "HTTPS://A/1  ", 2, 0, 0)
	// Trimming applies to the combined text, case-folding to all of it.
	b.Title = "token news"
	b.URL = "https://a/1"
	out := Dedupe([]NewsItem{a, b})
	assert.Len(t, out, 1)
}

func TestItemSentiment(t *testing.T) {
	tests := []struct {
		name  string
		votes Votes
		want  float64
		voted bool
	}{
		{"all positive", Votes{Positive: 4}, 1.0, true},
		{"all negative", Votes{Negative: 4}, -1.0, true},
		{"important counts half", Votes{Important: 2}, 0.5, true},
		{"mixed", Votes{Positive: 2, Negative: 1, Important: 1}, (2 + 0.5 - 1) / 4.0, true},
		{"no votes", Votes{Liked: 3}, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := itemSentiment(tt.votes)
			assert.Equal(t, tt.voted, ok)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestAggregateSentiment_AllUnvotedIsExactlyNeutral(t *testing.T) {
	items := []NewsItem{
		item("a", "u1", 0, 0, 0),
		item("b", "u2", 0, 0, 0),
	}
	score, ok := aggregateSentiment(items)
	require.True(t, ok)
	assert.Equal(t, 0.0, score)
}

func TestAggregateSentiment_EmptyHasNoScore(t *testing.T) {
	_, ok := aggregateSentiment(nil)
	assert.False(t, ok)
}

func TestAggregateSentiment_MeanOverVotedOnly(t *testing.T) {
	items := []NewsItem{
		item("a", "u1", 4, 0, 0), // 1.0
		item("b", "u2", 0, 4, 0), // -1.0
		item("c", "u3", 0, 0, 0), // unvoted, excluded
		item("d", "u4", 3, 1, 0), // 0.5
	}
	score, ok := aggregateSentiment(items)
	require.True(t, ok)
	assert.InDelta(t, 0.5/3, score, 1e-9)
}

func TestSentimentLabel_Bands(t *testing.T) {
	tests := []struct {
		score float64
		want  string
	}{
		{-1.0, "very_negative"},
		{-0.6, "very_negative"},
		{-0.59, "negative"},
		{-0.2, "negative"},
		{-0.1, "slightly_negative"},
		{0.0, "neutral"},
		{0.05, "neutral"},
		{0.1, "slightly_positive"},
		{0.5, "positive"},
		{0.61, "very_positive"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, sentimentLabel(tt.score), "score %v", tt.score)
	}
}

func TestSentimentConfidence(t *testing.T) {
	// 25 items, all voted: 0.7*(25/50) + 0.3*1 = 0.65
	items := make([]NewsItem, 25)
	for i := range items {
		items[i] = item("t", "u", 1, 0, 0)
	}
	assert.InDelta(t, 0.65, sentimentConfidence(items), 1e-9)

	// 100 items, none voted: 0.7*1 + 0.3*0 = 0.7
	unvoted := make([]NewsItem, 100)
	for i := range unvoted {
		unvoted[i] = item("t", "u", 0, 0, 0)
	}
	assert.InDelta(t, 0.7, sentimentConfidence(unvoted), 1e-9)

	assert.Equal(t, 0.0, sentimentConfidence(nil))
}

func TestSentimentConfidenceCountsImportantVotes(t *testing.T) {
	// an importance-only vote contributes to the average, so it must also
	// count as signal: 0.7*(2/50) + 0.3*(1/2) = 0.178
	items := []NewsItem{
		item("t1", "u1", 0, 0, 3),
		item("t2", "u2", 0, 0, 0),
	}
	assert.InDelta(t, 0.178, sentimentConfidence(items), 1e-9)
}

func TestExtractKeywords(t *testing.T) {
	items := []NewsItem{
		item("Token launches mainnet upgrade", "u1", 0, 0, 0),
		item("Mainnet upgrade delayed again", "u2", 0, 0, 0),
		item("Team ships mainnet tooling", "u3", 0, 0, 0),
	}
	kws := ExtractKeywords(items, 3)
	require.NotEmpty(t, kws)
	assert.Equal(t, "mainnet", kws[0], "most frequent first")
	assert.NotContains(t, kws, "the")
}

func TestExtractKeywords_FiltersShortAndStopWords(t *testing.T) {
	items := []NewsItem{item("the and for is it a ok", "u", 0, 0, 0)}
	assert.Empty(t, ExtractKeywords(items, 10))
	assert.Nil(t, ExtractKeywords(nil, 10))
}
