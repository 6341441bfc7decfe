package social

import (
	"crypto/sha256"
	"fmt"
	"sort"
	"strings"
)

// textHash fingerprints an item by its normalized title and URL.
func textHash(item NewsItem) string {
	normalized := strings.TrimSpace(strings.ToLower(item.Title + " " + item.URL))
	return fmt.Sprintf("%x", sha256.Sum256([]byte(normalized)))
}

// shortTextHash is the prefixed 16-hex-digit form reported on top posts.
func shortTextHash(item NewsItem) string {
	return "sha256:" + textHash(item)[:16]
}

// Dedupe collapses items that share a text hash, keeping the item with the
// most positive votes per group. Ties keep the first seen. Running Dedupe on
// already-deduped input returns it unchanged.
func Dedupe(items []NewsItem) []NewsItem {
	type group struct {
		order int
		best  NewsItem
	}
	groups := make(map[string]*group, len(items))
	n := 0
	for _, item := range items {
		h := textHash(item)
		g, ok := groups[h]
		if !ok {
			groups[h] = &group{order: n, best: item}
			n++
			continue
		}
		if item.Votes.Positive > g.best.Votes.Positive {
			g.best = item
		}
	}

	out := make([]NewsItem, n)
	for _, g := range groups {
		out[g.order] = g.best
	}
	return out
}

// itemSentiment scores one article from its votes. The second return is
// false when the item carries no sentiment-bearing votes at all.
func itemSentiment(v Votes) (float64, bool) {
	denom := v.Positive + v.Negative + v.Important
	if denom == 0 {
		return 0, false
	}
	return (float64(v.Positive) + 0.5*float64(v.Important) - float64(v.Negative)) / float64(denom), true
}

// aggregateSentiment averages the per-item scores over voted items only.
// A non-empty set where nothing was voted on scores exactly 0 (neutral);
// an empty set has no score at all.
func aggregateSentiment(items []NewsItem) (float64, bool) {
	if len(items) == 0 {
		return 0, false
	}
	sum, voted := 0.0, 0
	for _, item := range items {
		if s, ok := itemSentiment(item.Votes); ok {
			sum += s
			voted++
		}
	}
	if voted == 0 {
		return 0.0, true
	}
	return sum / float64(voted), true
}

// sentimentLabel buckets a [-1,1] score into the seven wire labels.
func sentimentLabel(score float64) string {
	switch {
	case score <= -0.6:
		return "very_negative"
	case score <= -0.2:
		return "negative"
	case score <= -0.05:
		return "slightly_negative"
	case score <= 0.05:
		return "neutral"
	case score <= 0.2:
		return "slightly_positive"
	case score <= 0.6:
		return "positive"
	default:
		return "very_positive"
	}
}

// fullVolumeItems is the item count at which volume alone gives maximum
// confidence.
const fullVolumeItems = 50.0

// sentimentConfidence weighs sample size against how much of the sample
// actually carries votes.
func sentimentConfidence(items []NewsItem) float64 {
	if len(items) == 0 {
		return 0
	}
	volumeConfidence := float64(len(items)) / fullVolumeItems
	if volumeConfidence > 1 {
		volumeConfidence = 1
	}
	// any vote itemSentiment would score counts as signal, importance included
	withVotes := 0
	for _, item := range items {
		if item.Votes.Positive+item.Votes.Negative+item.Votes.Important > 0 {
			withVotes++
		}
	}
	votedFraction := float64(withVotes) / float64(len(items))
	return volumeConfidence*0.7 + votedFraction*0.3
}

// polarity is the positive-vs-negative balance used on creators and posts,
// ignoring importance votes.
func polarity(v Votes) float64 {
	denom := v.Positive + v.Negative
	if denom == 0 {
		return 0
	}
	return float64(v.Positive-v.Negative) / float64(denom)
}

var keywordStopWords = map[string]bool{
	"the": true, "a": true, "an": true, "and": true, "or": true, "but": true,
	"in": true, "on": true, "at": true, "to": true, "for": true, "of": true,
	"with": true, "is": true, "are": true, "was": true, "were": true,
	"be": true, "been": true, "being": true, "have": true, "has": true,
	"had": true, "do": true, "does": true, "did": true, "will": true,
	"would": true, "could": true, "should": true, "may": true, "might": true,
	"must": true, "can": true, "this": true, "that": true, "these": true,
	"those": true, "i": true, "you": true, "he": true, "she": true,
	"it": true, "we": true, "they": true, "what": true, "which": true,
}

// ExtractKeywords returns the topN most frequent title words longer than
// three characters, stop words excluded. Ordering is frequency descending
// with alphabetical tie-break for determinism.
func ExtractKeywords(items []NewsItem, topN int) []string {
	if len(items) == 0 {
		return nil
	}
	counts := make(map[string]int)
	for _, item := range items {
		for _, word := range strings.Fields(strings.ToLower(item.Title)) {
			word = strings.Trim(word, ".,!?;:()[]{}\"'")
			if len(word) > 3 && !keywordStopWords[word] {
				counts[word]++
			}
		}
	}
	words := make([]string, 0, len(counts))
	for w := range counts {
		words = append(words, w)
	}
	sort.Slice(words, func(i, j int) bool {
		if counts[words[i]] != counts[words[j]] {
			return counts[words[i]] > counts[words[j]]
		}
		return words[i] < words[j]
	})
	if len(words) > topN {
		words = words[:topN]
	}
	return words
}
