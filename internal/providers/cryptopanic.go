package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"

	"tokentruth/internal/certainty"
	"tokentruth/internal/social"
)

// CryptoPanicConfig covers the CryptoPanic posts API. An auth token is
// required even for the free tier.
type CryptoPanicConfig struct {
	BaseURL        string
	AuthToken      string
	RequestTimeout time.Duration
	MaxRetries     int
	TTL            time.Duration
	Transport      *Transport
}

// CryptoPanicClient implements social.NewsSource.
type CryptoPanicClient struct {
	baseURL   string
	authToken string
	ttl       time.Duration
	client    *ClientPool
	log       zerolog.Logger
}

func NewCryptoPanicClient(config CryptoPanicConfig, log zerolog.Logger) *CryptoPanicClient {
	clientConfig := DefaultClientConfig()
	if config.RequestTimeout > 0 {
		clientConfig.RequestTimeout = config.RequestTimeout
	}
	if config.MaxRetries > 0 {
		clientConfig.MaxRetries = config.MaxRetries
	}
	clientConfig.MaxConcurrency = 2

	ttl := config.TTL
	if ttl == 0 {
		ttl = 5 * time.Minute
	}

	return &CryptoPanicClient{
		baseURL:   config.BaseURL,
		authToken: config.AuthToken,
		ttl:       ttl,
		client:    config.Transport.Pool(ProviderCryptoPanic, clientConfig, log),
		log:       log.With().Str("component", "cryptopanic").Logger(),
	}
}

func (c *CryptoPanicClient) Info() social.SourceIdentity {
	return social.SourceIdentity{
		ID:               "news",
		Name:             "CryptoPanic",
		ReliabilityGrade: "B",
		TTL:              c.ttl,
		Keyless:          false,
	}
}

type cryptoPanicResponse struct {
	Results []cryptoPanicPost `json:"results"`
}

type cryptoPanicPost struct {
	ID          int64  `json:"id"`
	Title       string `json:"title"`
	URL         string `json:"url"`
	PublishedAt string `json:"published_at"`
	Source      struct {
		Title  string `json:"title"`
		Domain string `json:"domain"`
	} `json:"source"`
	Votes struct {
		Positive  int `json:"positive"`
		Negative  int `json:"negative"`
		Important int `json:"important"`
		Liked     int `json:"liked"`
		Disliked  int `json:"disliked"`
		Saved     int `json:"saved"`
	} `json:"votes"`
}

// FetchNews pulls recent posts for the symbol and keeps the ones inside the
// window. CryptoPanic has no server-side time filter, so the window is
// applied here.
func (c *CryptoPanicClient) FetchNews(ctx context.Context, symbol string, window social.Window, limit int) ([]social.NewsItem, error) {
	if c.authToken == "" {
		return nil, certainty.NewError(certainty.CodeMissingAPIKey, ProviderCryptoPanic,
			"CryptoPanic auth token not configured")
	}

	q := url.Values{}
	q.Set("auth_token", c.authToken)
	q.Set("currencies", symbol)
	q.Set("kind", "news")
	q.Set("public", "true")

	reqURL := fmt.Sprintf("%s/api/v1/posts/?%s", c.baseURL, q.Encode())
	req, err := http.NewRequest(http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, err
	}

	startTime := time.Now()
	resp, err := c.client.Do(ctx, req)
	if err != nil {
		c.log.Error().Err(err).Str("symbol", symbol).Msg("posts request failed")
		return nil, upstreamError(ProviderCryptoPanic, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, certainty.NewError(certainty.CodeRateLimited, ProviderCryptoPanic,
			"rate limited by CryptoPanic")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, upstreamError(ProviderCryptoPanic, fmt.Errorf("HTTP %d: %s", resp.StatusCode, resp.Status))
	}

	var body cryptoPanicResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, certainty.NewError(certainty.CodeParseError, ProviderCryptoPanic, err.Error())
	}

	items := make([]social.NewsItem, 0, len(body.Results))
	for _, post := range body.Results {
		publishedAt, err := time.Parse(time.RFC3339, post.PublishedAt)
		if err != nil {
			continue
		}
		if publishedAt.Before(window.From) || publishedAt.After(window.To) {
			continue
		}

		author := post.Source.Title
		if author == "" {
			author = post.Source.Domain
		}

		items = append(items, social.NewsItem{
			ID:          fmt.Sprintf("cryptopanic:%d", post.ID),
			Title:       post.Title,
			URL:         post.URL,
			Author:      author,
			PublishedAt: publishedAt,
			Votes: social.Votes{
				Positive:  post.Votes.Positive,
				Negative:  post.Votes.Negative,
				Important: post.Votes.Important,
				Liked:     post.Votes.Liked,
				Disliked:  post.Votes.Disliked,
				Saved:     post.Votes.Saved,
			},
		})
		if limit > 0 && len(items) >= limit {
			break
		}
	}

	c.log.Debug().
		Str("symbol", symbol).
		Int("items", len(items)).
		Dur("duration", time.Since(startTime)).
		Msg("news retrieved")

	return items, nil
}
