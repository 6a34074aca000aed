// Package microblog adapts a Twitter-style recent-search API to the common
// source contract.
package microblog

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"stock_sentiment/internal/domain"
	"stock_sentiment/internal/source"
)

const (
	// Published search quota: 300 calls per 15-minute window.
	rateQuota  = 300
	ratePeriod = 15 * time.Minute

	// API ceiling on results per request.
	maxResultsPerCall = 100

	authorPrefix = "user_"
)

type Config struct {
	BaseURL     string
	BearerToken string
	Timeout     time.Duration
	PacingDelay time.Duration
}

type Adapter struct {
	client   *http.Client
	baseURL  string
	token    string
	limiter  *rate.Limiter
	cooldown time.Duration
	pacing   time.Duration
	logger   *slog.Logger
}

func New(cfg Config, logger *slog.Logger) *Adapter {
	return &Adapter{
		client:   &http.Client{Timeout: cfg.Timeout},
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		token:    cfg.BearerToken,
		limiter:  source.NewLimiter(rateQuota, ratePeriod),
		cooldown: ratePeriod,
		pacing:   cfg.PacingDelay,
		logger:   logger.With("source", domain.SourceMicroblog),
	}
}

func (a *Adapter) Source() domain.Source {
	return domain.SourceMicroblog
}

// Available reports whether a bearer token is configured. No token is a
// valid setup; the collector just skips this source.
func (a *Adapter) Available(_ context.Context) bool {
	return a.token != ""
}

// FetchForCompany searches recent posts matching the company's keywords.
// With no usable keywords there is nothing to search for and the result is
// empty.
func (a *Adapter) FetchForCompany(ctx context.Context, company domain.Company, maxResults int) ([]domain.RawPost, error) {
	query := buildQuery(company)
	if query == "" {
		return nil, nil
	}

	if err := a.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	resp, err := a.search(ctx, query, maxResults)
	if err != nil {
		return nil, err
	}

	posts := a.transform(resp)
	if len(posts) > maxResults {
		posts = posts[:maxResults]
	}

	a.logger.Debug("fetched posts", "ticker", company.Ticker, "count", len(posts))
	return posts, nil
}

// FetchForAllCompanies drives FetchForCompany over the roster in order,
// pacing between companies and skipping per-company failures.
func (a *Adapter) FetchForAllCompanies(ctx context.Context, companies []domain.Company, maxPerCompany int) []domain.CompanyBatch {
	return source.ForAllCompanies(ctx, a.logger, a.pacing, companies, maxPerCompany, a.FetchForCompany)
}

// buildQuery ORs the first three quoted keywords, excluding reposts and
// non-English posts. Very short keywords are skipped; they match too
// broadly.
func buildQuery(company domain.Company) string {
	keywords := company.Keywords
	if len(keywords) == 0 {
		keywords = []string{company.Name, company.Ticker}
	}

	var terms []string
	for _, kw := range keywords {
		if len(kw) > 2 {
			terms = append(terms, `"`+kw+`"`)
		}
		if len(terms) == 3 {
			break
		}
	}
	if len(terms) == 0 {
		return ""
	}

	return strings.Join(terms, " OR ") + " -is:repost lang:en"
}

func (a *Adapter) search(ctx context.Context, query string, maxResults int) (*searchResponse, error) {
	if maxResults > maxResultsPerCall {
		maxResults = maxResultsPerCall
	}

	params := url.Values{}
	params.Set("query", query)
	params.Set("max_results", fmt.Sprintf("%d", maxResults))
	params.Set("tweet.fields", "created_at,author_id,public_metrics")
	params.Set("expansions", "author_id")
	params.Set("user.fields", "username")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"/search/recent?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+a.token)
	req.Header.Set("Accept", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		a.logger.Warn("rate limited upstream, cooling down", "cooldown", a.cooldown)
		_ = source.Pace(ctx, a.cooldown)
		return &searchResponse{}, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	var sr searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &sr, nil
}

func (a *Adapter) transform(resp *searchResponse) []domain.RawPost {
	users := make(map[string]string, len(resp.Includes.Users))
	for _, u := range resp.Includes.Users {
		users[u.ID] = u.Username
	}

	posts := make([]domain.RawPost, 0, len(resp.Data))
	for _, p := range resp.Data {
		content := source.CleanText(p.Text)
		if content == "" {
			continue
		}

		ts, err := time.Parse(time.RFC3339, p.CreatedAt)
		if err != nil {
			ts = time.Time{} // constructor falls back to collection time
		}

		username := users[p.AuthorID]
		engagement := p.Metrics.LikeCount + 2*p.Metrics.RepostCount + p.Metrics.ReplyCount + p.Metrics.QuoteCount

		raw := domain.NewRawPost(domain.RawPost{
			ExternalID:  p.ID,
			Content:     content,
			Author:      username,
			Timestamp:   ts.UTC(),
			Engagement:  engagement,
			Source:      domain.SourceMicroblog,
			OriginalURL: fmt.Sprintf("https://twitter.com/%s/status/%s", orPlaceholder(username, p.AuthorID), p.ID),
		}, authorPrefix+p.AuthorID)

		posts = append(posts, raw)
	}
	return posts
}

func orPlaceholder(username, authorID string) string {
	if username != "" {
		return username
	}
	return authorPrefix + authorID
}
