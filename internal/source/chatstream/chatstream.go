// Package chatstream adapts a StockTwits-style symbol stream to the common
// source contract. The API is credential-free; availability is a cheap
// connectivity probe against the trending endpoint.
package chatstream

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"stock_sentiment/internal/domain"
	"stock_sentiment/internal/source"
)

const (
	// Published API quota: 200 calls per hour.
	rateQuota  = 200
	ratePeriod = time.Hour

	// API ceiling on messages per request.
	maxPerCall = 30

	authorFallback = "unknown"
)

type Config struct {
	BaseURL     string
	Timeout     time.Duration
	PacingDelay time.Duration
}

type Adapter struct {
	client   *http.Client
	baseURL  string
	limiter  *rate.Limiter
	cooldown time.Duration
	pacing   time.Duration
	logger   *slog.Logger
}

// streamResponse mirrors the symbol stream payload.
type streamResponse struct {
	Messages []message `json:"messages"`
}

type message struct {
	ID        int64  `json:"id"`
	Body      string `json:"body"`
	CreatedAt string `json:"created_at"`
	User      struct {
		Username string `json:"username"`
	} `json:"user"`
	Likes struct {
		Total int `json:"total"`
	} `json:"likes"`
}

func New(cfg Config, logger *slog.Logger) *Adapter {
	return &Adapter{
		client:   &http.Client{Timeout: cfg.Timeout},
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		limiter:  source.NewLimiter(rateQuota, ratePeriod),
		cooldown: ratePeriod,
		pacing:   cfg.PacingDelay,
		logger:   logger.With("source", domain.SourceChatStream),
	}
}

func (a *Adapter) Source() domain.Source {
	return domain.SourceChatStream
}

// Available probes the trending endpoint. A failed probe is reported as
// unavailable, not as an error; the collector just skips the source this
// run.
func (a *Adapter) Available(ctx context.Context) bool {
	// The probe hits the same host, so it spends quota like any fetch.
	if err := a.limiter.Wait(ctx); err != nil {
		return false
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"/streams/trending.json", nil)
	if err != nil {
		return false
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// FetchForCompany pulls the message stream for the company's exact ticker
// symbol.
func (a *Adapter) FetchForCompany(ctx context.Context, company domain.Company, maxResults int) ([]domain.RawPost, error) {
	ticker := strings.ToUpper(strings.TrimSpace(company.Ticker))
	if ticker == "" {
		return nil, nil
	}

	if err := a.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	limit := maxResults
	if limit > maxPerCall {
		limit = maxPerCall
	}

	reqURL := fmt.Sprintf("%s/streams/symbol/%s.json?limit=%d", a.baseURL, ticker, limit)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
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
		a.logger.Warn("rate limited upstream, cooling down", "cooldown", a.cooldown)
		_ = source.Pace(ctx, a.cooldown)
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	var sr streamResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	posts := a.transform(&sr, ticker)
	if len(posts) > maxResults {
		posts = posts[:maxResults]
	}

	a.logger.Debug("fetched posts", "ticker", ticker, "count", len(posts))
	return posts, nil
}

// FetchForAllCompanies drives FetchForCompany over the roster in order,
// pacing between companies and skipping per-company failures.
func (a *Adapter) FetchForAllCompanies(ctx context.Context, companies []domain.Company, maxPerCompany int) []domain.CompanyBatch {
	return source.ForAllCompanies(ctx, a.logger, a.pacing, companies, maxPerCompany, a.FetchForCompany)
}

func (a *Adapter) transform(sr *streamResponse, ticker string) []domain.RawPost {
	posts := make([]domain.RawPost, 0, len(sr.Messages))
	for _, m := range sr.Messages {
		content := source.CleanText(m.Body)
		if content == "" {
			continue
		}

		ts, err := time.Parse(time.RFC3339, m.CreatedAt)
		if err != nil {
			ts = time.Time{}
		}

		raw := domain.NewRawPost(domain.RawPost{
			ExternalID:  fmt.Sprintf("%d", m.ID),
			Content:     content,
			Author:      m.User.Username,
			Timestamp:   ts.UTC(),
			Engagement:  m.Likes.Total,
			Source:      domain.SourceChatStream,
			OriginalURL: "https://stocktwits.com/symbol/" + ticker,
		}, authorFallback)

		posts = append(posts, raw)
	}
	return posts
}
