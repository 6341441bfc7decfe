// Package social scores the narrative around a token from aggregated news:
// deterministic vote-based sentiment, attention velocity against a 30-day
// baseline, creator concentration, and coordination/volume-spike anomalies.
// Nothing here calls a language model; every signal is arithmetic over votes
// and counts so reruns on the same input produce the same output.
package social

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"tokentruth/internal/certainty"
	"tokentruth/internal/flags"
)

// SourceStatus reports how a per-source fetch went.
type SourceStatus string

const (
	StatusOK          SourceStatus = "ok"
	StatusPartial     SourceStatus = "partial"
	StatusUnsupported SourceStatus = "unsupported"
)

// SourceSentiment is the per-source slice of the sentiment section.
type SourceSentiment struct {
	Score      *float64     `json:"score"`
	Volume     int          `json:"volume"`
	Engagement int          `json:"engagement"`
	Status     SourceStatus `json:"status"`
}

// Creator is one publishing source ranked by engagement.
type Creator struct {
	Handle     string  `json:"handle"`
	Engagement int     `json:"engagement"`
	Sentiment  float64 `json:"sentiment"`
	PostID     string  `json:"post_id"`
	Source     string  `json:"source"`
}

// Anomaly is a detected irregularity in the attention pattern.
type Anomaly struct {
	Type     string      `json:"type"` // volume_spike, coordination_signal
	Severity flags.Level `json:"severity"`
	Reason   string      `json:"reason"`
}

// Post is one article ranked by engagement for the top-posts section.
type Post struct {
	Source      string    `json:"source"`
	ID          string    `json:"id"`
	URL         string    `json:"url"`
	Author      string    `json:"author,omitempty"`
	PublishedAt time.Time `json:"ts"`
	Engagement  int       `json:"engagement"`
	Sentiment   float64   `json:"sentiment"`
	TextHash    string    `json:"text_hash"`
}

// Report is the full social analysis for one asset.
type Report struct {
	Symbol string `json:"symbol"`

	Sentiment  certainty.Data[float64]    `json:"sentiment"`
	Label      string                     `json:"label,omitempty"`
	Confidence float64                    `json:"confidence"`
	BySource   map[string]SourceSentiment `json:"by_source"`

	VelocityPerMin certainty.Data[float64] `json:"mention_velocity_per_min"`
	ZScore         certainty.Data[float64] `json:"zscore_vs_30d"`
	UniqueAuthors  certainty.Data[int]     `json:"unique_authors"`
	Top10Share     float64                 `json:"creator_top10_share"`

	InfluencerPressure float64   `json:"influencer_pressure"`
	TopCreators        []Creator `json:"top_creators"`
	Anomalies          []Anomaly `json:"anomalies"`
	TopPosts           []Post    `json:"top_posts,omitempty"`

	Keywords certainty.Data[[]string] `json:"narrative_keywords"`

	Flags     []flags.Flag `json:"flags"`
	RiskScore float64      `json:"risk_score"` // 0-100 for the decision engine

	Evidence []certainty.Evidence        `json:"evidence,omitempty"`
	Warnings []string                    `json:"warnings,omitempty"`
	Errors   []certainty.StructuredError `json:"errors,omitempty"`
}

// AnalyzeOptions tune one analysis run.
type AnalyzeOptions struct {
	Sources           []string `json:"sources"`              // defaults to ["news"]
	MaxItemsPerSource int      `json:"max_items_per_source"` // 0 = no cap
	Dedupe            bool     `json:"dedupe"`
	ReturnTopPosts    int      `json:"return_top_posts"` // 0 = omit section
}

// Thresholds for flags and anomalies.
const (
	lowAttentionItems   = 3
	negativeSentimentAt = -0.3
	topCreatorCount     = 5
	concentrationPool   = 10 // creators counted into the top-N share
)

// Analyzer runs the social pipeline against a news source and a baseline.
type Analyzer struct {
	news     NewsSource
	baseline BaselineProvider
	log      zerolog.Logger
}

// NewAnalyzer wires an analyzer. A nil baseline falls back to the static
// default distribution.
func NewAnalyzer(news NewsSource, baseline BaselineProvider, log zerolog.Logger) *Analyzer {
	if baseline == nil {
		baseline = DefaultBaseline()
	}
	return &Analyzer{news: news, baseline: baseline, log: log.With().Str("component", "social").Logger()}
}

// Analyze scores one asset over the window. A news-provider failure degrades
// the whole report to UNKNOWN with a NO_SOCIAL_DATA flag rather than erroring
// out; unsupported sources are reported per source and as structured errors.
func (a *Analyzer) Analyze(ctx context.Context, symbol string, window Window, opts AnalyzeOptions) *Report {
	rep := &Report{Symbol: symbol, BySource: make(map[string]SourceSentiment)}

	sources := opts.Sources
	if len(sources) == 0 {
		sources = []string{"news"}
	}

	var items []NewsItem
	newsRequested := false
	for _, src := range sources {
		name := strings.ToLower(src)
		if name == "twitter" {
			name = "x"
		}
		if !SupportedSources[name] {
			rep.BySource[name] = SourceSentiment{Status: StatusUnsupported}
			rep.Errors = append(rep.Errors, certainty.NewError(certainty.CodeUnsupportedSource, src,
				fmt.Sprintf("source %q not implemented", src)))
			continue
		}
		newsRequested = true

		fetched, err := a.news.FetchNews(ctx, symbol, window, opts.MaxItemsPerSource)
		if err != nil {
			a.log.Warn().Err(err).Str("symbol", symbol).Msg("news fetch failed")
			rep.BySource["news"] = SourceSentiment{Status: StatusPartial}
			rep.Errors = append(rep.Errors, certainty.NewError(certainty.CodeUpstreamError, "cryptopanic", err.Error()))
			return a.markUnknown(rep, "news provider error: "+err.Error())
		}
		items = fetched
	}

	if !newsRequested {
		return a.markUnknown(rep, "no supported sources requested")
	}

	if opts.Dedupe {
		items = Dedupe(items)
	}

	a.scoreSentiment(rep, items)
	a.scoreAttention(ctx, rep, symbol, items, window)
	a.rankCreators(rep, items)
	rep.Anomalies = detectAnomalies(rep.ZScore.ValueOr(0), rep.Top10Share, rep.UniqueAuthors.Value)
	for _, an := range rep.Anomalies {
		if an.Type == "coordination_signal" {
			f := flags.New(flags.CoordinatedNarrative, an.Reason, certainty.Inferred)
			f.Level = an.Severity
			rep.Flags = append(rep.Flags, f)
			break
		}
	}
	if opts.ReturnTopPosts > 0 {
		rep.TopPosts = topPosts(items, opts.ReturnTopPosts)
	}

	if kws := ExtractKeywords(items, 10); len(kws) > 0 {
		rep.Keywords = certainty.InferredData(kws, "frequency analysis of news titles", "extracted from article titles")
	} else {
		rep.Keywords = certainty.UnknownData[[]string]("no articles available")
	}

	rep.RiskScore = narrativeRisk(rep)
	rep.Evidence = append(rep.Evidence, certainty.Evidence{
		Provider:  "cryptopanic",
		Timestamp: time.Now().UTC(),
		Ref:       "https://cryptopanic.com",
		Note:      fmt.Sprintf("analyzed %d news items", len(items)),
	})
	return rep
}

func (a *Analyzer) scoreSentiment(rep *Report, items []NewsItem) {
	voteSrc := "CryptoPanic vote aggregation"

	engagement := 0
	for _, item := range items {
		engagement += item.Votes.Total()
	}

	score, ok := aggregateSentiment(items)
	if !ok {
		rep.Sentiment = certainty.UnknownData[float64]("no news articles in window")
		rep.BySource["news"] = SourceSentiment{Status: StatusOK}
		rep.Flags = append(rep.Flags, flags.New(flags.LowAttention, "no news articles in window", certainty.Proven))
		return
	}

	rep.Sentiment = certainty.InferredData(score, voteSrc,
		fmt.Sprintf("inferred from user votes on %d articles", len(items)))
	rep.Label = sentimentLabel(score)
	rep.Confidence = sentimentConfidence(items)
	rep.BySource["news"] = SourceSentiment{Score: &score, Volume: len(items), Engagement: engagement, Status: StatusOK}

	if len(items) < lowAttentionItems {
		rep.Flags = append(rep.Flags, flags.New(flags.LowAttention,
			fmt.Sprintf("only %d news articles in window", len(items)), certainty.Proven))
	}
	if score < negativeSentimentAt {
		rep.Flags = append(rep.Flags, flags.New(flags.NegativeSentiment,
			fmt.Sprintf("sentiment score %.2f, negative dominant", score), certainty.Inferred))
	}
}

func (a *Analyzer) scoreAttention(ctx context.Context, rep *Report, symbol string, items []NewsItem, window Window) {
	minutes := window.Minutes()
	if minutes > 0 {
		rep.VelocityPerMin = certainty.InferredData(float64(len(items))/minutes,
			"mention count over lookback window", "items per minute")
	} else {
		rep.VelocityPerMin = certainty.UnknownData[float64]("empty lookback window")
	}

	base, err := a.baseline.Baseline(ctx, symbol)
	if err != nil {
		rep.ZScore = certainty.UnknownData[float64]("baseline unavailable: " + err.Error())
		rep.Warnings = append(rep.Warnings, "mention baseline unavailable: "+err.Error())
	} else {
		rep.ZScore = certainty.InferredData(base.ZScore(len(items)),
			"30-day mention baseline", fmt.Sprintf("baseline mean %.1f stddev %.1f", base.Mean, base.StdDev))
	}

	authors := make(map[string]int)
	for _, item := range items {
		if item.Author != "" {
			authors[item.Author]++
		}
	}
	if len(authors) == 0 {
		rep.UniqueAuthors = certainty.UnknownData[int]("no attributed articles")
	} else {
		rep.UniqueAuthors = certainty.ProvenData(len(authors), "news source attribution")
	}

	if len(items) > 0 && len(authors) > 0 {
		counts := make([]int, 0, len(authors))
		for _, c := range authors {
			counts = append(counts, c)
		}
		sort.Sort(sort.Reverse(sort.IntSlice(counts)))
		if len(counts) > concentrationPool {
			counts = counts[:concentrationPool]
		}
		top := 0
		for _, c := range counts {
			top += c
		}
		rep.Top10Share = float64(top) / float64(len(items))
	}
}

func (a *Analyzer) rankCreators(rep *Report, items []NewsItem) {
	type acc struct {
		engagement int
		sentiments []float64
		firstPost  string
	}
	byHandle := make(map[string]*acc)
	order := make([]string, 0)

	totalEngagement := 0
	for _, item := range items {
		handle := item.Author
		if handle == "" {
			handle = "unknown"
		}
		c, ok := byHandle[handle]
		if !ok {
			c = &acc{firstPost: item.ID}
			byHandle[handle] = c
			order = append(order, handle)
		}
		c.engagement += item.Votes.Total()
		totalEngagement += item.Votes.Total()
		if item.Votes.Positive+item.Votes.Negative > 0 {
			c.sentiments = append(c.sentiments, polarity(item.Votes))
		}
	}

	sort.SliceStable(order, func(i, j int) bool {
		return byHandle[order[i]].engagement > byHandle[order[j]].engagement
	})
	if len(order) > topCreatorCount {
		order = order[:topCreatorCount]
	}

	top3 := 0
	for i, handle := range order {
		c := byHandle[handle]
		avg := 0.0
		if len(c.sentiments) > 0 {
			for _, s := range c.sentiments {
				avg += s
			}
			avg /= float64(len(c.sentiments))
		}
		rep.TopCreators = append(rep.TopCreators, Creator{
			Handle:     handle,
			Engagement: c.engagement,
			Sentiment:  avg,
			PostID:     c.firstPost,
			Source:     "news",
		})
		if i < 3 {
			top3 += c.engagement
		}
	}

	if totalEngagement > 0 && len(items) > 0 {
		volumeFactor := float64(len(items)) / fullVolumeItems
		if volumeFactor > 1 {
			volumeFactor = 1
		}
		rep.InfluencerPressure = float64(top3) / float64(totalEngagement) * volumeFactor
	}
}

// detectAnomalies flags volume spikes against the baseline and coordination
// patterns in creator concentration.
func detectAnomalies(zscore, concentration float64, uniqueAuthors *int) []Anomaly {
	var out []Anomaly

	switch {
	case zscore >= 3.0:
		out = append(out, Anomaly{Type: "volume_spike", Severity: flags.LevelHigh,
			Reason: fmt.Sprintf("mention velocity %.1f sigma above 30-day baseline", zscore)})
	case zscore >= 2.0:
		out = append(out, Anomaly{Type: "volume_spike", Severity: flags.LevelMedium,
			Reason: fmt.Sprintf("mention velocity %.1f sigma above 30-day baseline", zscore)})
	case zscore >= 1.5:
		out = append(out, Anomaly{Type: "volume_spike", Severity: flags.LevelLow,
			Reason: fmt.Sprintf("mention velocity %.1f sigma above baseline", zscore)})
	}

	switch {
	case concentration > 0.8:
		out = append(out, Anomaly{Type: "coordination_signal", Severity: flags.LevelHigh,
			Reason: fmt.Sprintf("top creators account for %.0f%% of content", concentration*100)})
	case concentration > 0.6 && uniqueAuthors != nil && *uniqueAuthors < 5:
		out = append(out, Anomaly{Type: "coordination_signal", Severity: flags.LevelMedium,
			Reason: fmt.Sprintf("%.0f%% concentration with only %d unique authors", concentration*100, *uniqueAuthors)})
	}
	return out
}

func topPosts(items []NewsItem, limit int) []Post {
	ranked := make([]NewsItem, len(items))
	copy(ranked, items)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Votes.Total() > ranked[j].Votes.Total()
	})
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	out := make([]Post, 0, len(ranked))
	for _, item := range ranked {
		out = append(out, Post{
			Source:      "news",
			ID:          item.ID,
			URL:         item.URL,
			Author:      item.Author,
			PublishedAt: item.PublishedAt,
			Engagement:  item.Votes.Total(),
			Sentiment:   polarity(item.Votes),
			TextHash:    shortTextHash(item),
		})
	}
	return out
}

// narrativeRisk is the 0-100 decision-engine input: flag severities doubled,
// adjusted for how negative the aggregate sentiment runs.
func narrativeRisk(rep *Report) float64 {
	score := float64(flags.SeveritySum(rep.Flags)) * 2
	if rep.Sentiment.Value != nil {
		s := *rep.Sentiment.Value
		switch {
		case s < -0.5:
			score += 20
		case s < 0:
			score += 10
		case s > 0.5:
			score -= 10
		}
	}
	if score > 100 {
		return 100
	}
	if score < 0 {
		return 0
	}
	return score
}

// markUnknown produces the all-unknown report shape used when the provider
// could not serve the request at all.
func (a *Analyzer) markUnknown(rep *Report, reason string) *Report {
	rep.Sentiment = certainty.UnknownData[float64](reason)
	rep.VelocityPerMin = certainty.UnknownData[float64](reason)
	rep.ZScore = certainty.UnknownData[float64](reason)
	rep.UniqueAuthors = certainty.UnknownData[int](reason)
	rep.Keywords = certainty.UnknownData[[]string](reason)
	rep.Flags = append([]flags.Flag{flags.New(flags.NoSocialData, reason, certainty.Proven)}, rep.Flags...)
	rep.RiskScore = 50
	return rep
}
