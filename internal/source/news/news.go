// Package news adapts financial news to the common source contract. It
// pulls configured RSS feeds (filtered by company keywords) and, when an
// API key is configured, a keyword search API for broader coverage. RSS is
// credential-free, so this source is always available.
package news

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
	"golang.org/x/time/rate"

	"stock_sentiment/internal/domain"
	"stock_sentiment/internal/source"
)

const (
	// Feed pulls: 100 calls per hour. The search API is far scarcer at 100
	// calls per day, so it gets its own limiter.
	feedQuota  = 100
	feedPeriod = time.Hour
	apiQuota   = 100
	apiPeriod  = 24 * time.Hour

	// Headlines alone carry too little signal to score.
	minContentChars = 50

	// Feeds consulted per company; more adds mostly duplicates.
	maxFeedsPerCompany = 2

	authorFallback = "news"
)

type Feed struct {
	Name string
	URL  string
}

type Config struct {
	Feeds       []Feed
	APIBaseURL  string
	APIKey      string
	Timeout     time.Duration
	PacingDelay time.Duration
}

type Adapter struct {
	client      *http.Client
	parser      *gofeed.Parser
	feeds       []Feed
	apiBaseURL  string
	apiKey      string
	feedLimiter *rate.Limiter
	apiLimiter  *rate.Limiter
	cooldown    time.Duration
	pacing      time.Duration
	logger      *slog.Logger
}

func New(cfg Config, logger *slog.Logger) *Adapter {
	return &Adapter{
		client:      &http.Client{Timeout: cfg.Timeout},
		parser:      gofeed.NewParser(),
		feeds:       cfg.Feeds,
		apiBaseURL:  strings.TrimRight(cfg.APIBaseURL, "/"),
		apiKey:      cfg.APIKey,
		feedLimiter: source.NewLimiter(feedQuota, feedPeriod),
		apiLimiter:  source.NewLimiter(apiQuota, apiPeriod),
		cooldown:    feedPeriod,
		pacing:      cfg.PacingDelay,
		logger:      logger.With("source", domain.SourceNews),
	}
}

func (a *Adapter) Source() domain.Source {
	return domain.SourceNews
}

// Available is unconditionally true: RSS needs no credentials and the
// search API is optional.
func (a *Adapter) Available(_ context.Context) bool {
	return true
}

// FetchForCompany combines search-API articles (when a key is configured)
// with RSS articles mentioning the company.
func (a *Adapter) FetchForCompany(ctx context.Context, company domain.Company, maxResults int) ([]domain.RawPost, error) {
	var posts []domain.RawPost

	if a.apiKey != "" {
		pageSize := maxResults / 2
		if pageSize < 1 {
			pageSize = 1
		}
		for _, query := range searchQueries(company) {
			found, err := a.searchAPI(ctx, query, pageSize)
			if err != nil {
				a.logger.Error("news api search failed", "query", query, "error", err)
				continue
			}
			posts = append(posts, found...)
		}
	}

	feeds := a.feeds
	if len(feeds) > maxFeedsPerCompany {
		feeds = feeds[:maxFeedsPerCompany]
	}
	for _, feed := range feeds {
		articles, err := a.fetchFeed(ctx, feed)
		if err != nil {
			a.logger.Error("feed fetch failed", "feed", feed.Name, "error", err)
			continue
		}
		posts = append(posts, filterByCompany(articles, company)...)
	}

	if len(posts) > maxResults {
		posts = posts[:maxResults]
	}

	a.logger.Debug("fetched articles", "ticker", company.Ticker, "count", len(posts))
	return posts, nil
}

// FetchForAllCompanies drives FetchForCompany over the roster in order,
// pacing between companies and skipping per-company failures.
func (a *Adapter) FetchForAllCompanies(ctx context.Context, companies []domain.Company, maxPerCompany int) []domain.CompanyBatch {
	return source.ForAllCompanies(ctx, a.logger, a.pacing, companies, maxPerCompany, a.FetchForCompany)
}

func searchQueries(company domain.Company) []string {
	var queries []string
	if company.Name != "" {
		queries = append(queries, company.Name)
	}
	if company.Ticker != "" {
		queries = append(queries, company.Ticker)
	}
	if len(queries) > 2 {
		queries = queries[:2]
	}
	return queries
}

func (a *Adapter) fetchFeed(ctx context.Context, feed Feed) ([]domain.RawPost, error) {
	if err := a.feedLimiter.Wait(ctx); err != nil {
		return nil, err
	}

	parsed, err := a.parser.ParseURLWithContext(feed.URL, ctx)
	if err != nil {
		return nil, fmt.Errorf("parse feed %s: %w", feed.Name, err)
	}

	posts := make([]domain.RawPost, 0, len(parsed.Items))
	for _, item := range parsed.Items {
		content := item.Title
		if item.Description != "" {
			content += " " + item.Description
		}
		content = source.CleanText(content)
		if len(content) <= minContentChars {
			continue
		}

		var ts time.Time
		if item.PublishedParsed != nil {
			ts = item.PublishedParsed.UTC()
		} else if item.UpdatedParsed != nil {
			ts = item.UpdatedParsed.UTC()
		}

		externalID := item.GUID
		if externalID == "" {
			externalID = item.Link
		}

		author := ""
		if item.Author != nil {
			author = item.Author.Name
		}

		posts = append(posts, domain.NewRawPost(domain.RawPost{
			ExternalID:  externalID,
			Content:     content,
			Author:      author,
			Timestamp:   ts,
			Engagement:  0, // feeds carry no popularity signal
			Source:      domain.SourceNews,
			OriginalURL: item.Link,
		}, authorFallback))
	}

	return posts, nil
}

func (a *Adapter) searchAPI(ctx context.Context, query string, maxArticles int) ([]domain.RawPost, error) {
	if err := a.apiLimiter.Wait(ctx); err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("q", query)
	params.Set("sortBy", "publishedAt")
	params.Set("language", "en")
	params.Set("pageSize", fmt.Sprintf("%d", maxArticles))
	params.Set("apiKey", a.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.apiBaseURL+"/everything?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		a.logger.Warn("rate limited upstream, cooling down", "cooldown", apiPeriod)
		_ = source.Pace(ctx, apiPeriod)
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	var ar apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&ar); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	posts := make([]domain.RawPost, 0, len(ar.Articles))
	for _, art := range ar.Articles {
		content := art.Title
		if art.Description != "" {
			content += " " + art.Description
		}
		content = source.CleanText(content)
		if len(content) <= minContentChars {
			continue
		}

		var ts time.Time
		if parsed, err := time.Parse(time.RFC3339, art.PublishedAt); err == nil {
			ts = parsed.UTC()
		}

		author := art.Author
		if author == "" {
			author = art.Source.Name
		}

		posts = append(posts, domain.NewRawPost(domain.RawPost{
			ExternalID:  art.URL,
			Content:     content,
			Author:      author,
			Timestamp:   ts,
			Engagement:  0,
			Source:      domain.SourceNews,
			OriginalURL: art.URL,
		}, authorFallback))
	}

	return posts, nil
}

// filterByCompany keeps articles mentioning the company's name, ticker, or
// any keyword.
func filterByCompany(posts []domain.RawPost, company domain.Company) []domain.RawPost {
	terms := make([]string, 0, len(company.Keywords)+2)
	for _, t := range append([]string{company.Name, company.Ticker}, company.Keywords...) {
		if t != "" {
			terms = append(terms, strings.ToLower(t))
		}
	}

	var relevant []domain.RawPost
	for _, post := range posts {
		content := strings.ToLower(post.Content)
		for _, term := range terms {
			if strings.Contains(content, term) {
				relevant = append(relevant, post)
				break
			}
		}
	}
	return relevant
}
