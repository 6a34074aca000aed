// Package forum adapts a Reddit-style board search API to the common source
// contract. Queries fan out across a fixed list of finance boards.
package forum

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
	// Published API quota: 60 calls per minute.
	rateQuota  = 60
	ratePeriod = time.Minute

	// Self-text beyond this adds little signal and bloats stored content.
	maxBodyChars = 500

	maxBoards  = 5
	maxQueries = 3

	authorFallback = "unknown"
)

type Config struct {
	BaseURL      string
	ClientID     string
	ClientSecret string
	UserAgent    string
	Boards       []string
	Timeout      time.Duration
	PacingDelay  time.Duration
}

type Adapter struct {
	client       *http.Client
	baseURL      string
	clientID     string
	clientSecret string
	userAgent    string
	boards       []string
	limiter      *rate.Limiter
	cooldown     time.Duration
	pacing       time.Duration
	logger       *slog.Logger
}

func New(cfg Config, logger *slog.Logger) *Adapter {
	return &Adapter{
		client:       &http.Client{Timeout: cfg.Timeout},
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		userAgent:    cfg.UserAgent,
		boards:       cfg.Boards,
		limiter:      source.NewLimiter(rateQuota, ratePeriod),
		cooldown:     ratePeriod,
		pacing:       cfg.PacingDelay,
		logger:       logger.With("source", domain.SourceForum),
	}
}

func (a *Adapter) Source() domain.Source {
	return domain.SourceForum
}

// Available reports whether API credentials are configured.
func (a *Adapter) Available(_ context.Context) bool {
	return a.clientID != "" && a.clientSecret != ""
}

// FetchForCompany searches the finance boards with ticker, company-name and
// keyword queries, stopping once maxResults posts are collected.
func (a *Adapter) FetchForCompany(ctx context.Context, company domain.Company, maxResults int) ([]domain.RawPost, error) {
	queries := buildQueries(company)
	if len(queries) == 0 {
		return nil, nil
	}

	boards := a.boards
	if len(boards) == 0 {
		return nil, nil
	}
	if len(boards) > maxBoards {
		boards = boards[:maxBoards]
	}

	perQuery := maxResults / (len(queries) * len(boards))
	if perQuery < 5 {
		perQuery = 5
	}

	var posts []domain.RawPost
	for _, query := range queries {
		for _, board := range boards {
			if ctx.Err() != nil {
				return posts, nil
			}

			found, err := a.searchBoard(ctx, board, query, perQuery)
			if err != nil {
				// One bad board/query pair never aborts the company.
				a.logger.Error("board search failed",
					"board", board,
					"query", query,
					"error", err,
				)
				continue
			}
			posts = append(posts, found...)

			if len(posts) >= maxResults {
				return posts[:maxResults], nil
			}
		}
	}

	a.logger.Debug("fetched posts", "ticker", company.Ticker, "count", len(posts))
	return posts, nil
}

// FetchForAllCompanies drives FetchForCompany over the roster in order,
// pacing between companies and skipping per-company failures.
func (a *Adapter) FetchForAllCompanies(ctx context.Context, companies []domain.Company, maxPerCompany int) []domain.CompanyBatch {
	return source.ForAllCompanies(ctx, a.logger, a.pacing, companies, maxPerCompany, a.FetchForCompany)
}

// buildQueries assembles up to three search queries per company: the
// cashtag, the plain ticker, the quoted name (when short enough to be
// specific), then quoted keywords not already covered by the name.
func buildQueries(company domain.Company) []string {
	var queries []string

	if company.Ticker != "" {
		queries = append(queries, "$"+company.Ticker, company.Ticker)
	}
	if company.Name != "" && len(strings.Fields(company.Name)) <= 3 {
		queries = append(queries, `"`+company.Name+`"`)
	}
	nameLower := strings.ToLower(company.Name)
	for _, kw := range company.Keywords {
		if len(kw) > 3 && !strings.Contains(nameLower, strings.ToLower(kw)) {
			queries = append(queries, `"`+kw+`"`)
		}
		if len(queries) >= maxQueries {
			break
		}
	}

	if len(queries) > maxQueries {
		queries = queries[:maxQueries]
	}
	return queries
}

func (a *Adapter) searchBoard(ctx context.Context, board, query string, limit int) ([]domain.RawPost, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("q", query)
	params.Set("sort", "new")
	params.Set("restrict_sr", "1")
	params.Set("t", "day")
	params.Set("limit", fmt.Sprintf("%d", limit))

	reqURL := fmt.Sprintf("%s/r/%s/search.json?%s", a.baseURL, url.PathEscape(board), params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", a.userAgent)
	req.Header.Set("Accept", "application/json")
	req.SetBasicAuth(a.clientID, a.clientSecret)

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

	var l listing
	if err := json.NewDecoder(resp.Body).Decode(&l); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	return a.transform(&l), nil
}

func (a *Adapter) transform(l *listing) []domain.RawPost {
	posts := make([]domain.RawPost, 0, len(l.Data.Children))
	for _, child := range l.Data.Children {
		t := child.Data

		if t.SelfText == "[removed]" || t.SelfText == "[deleted]" {
			continue
		}

		content := t.Title
		if body := strings.TrimSpace(t.SelfText); body != "" {
			if len(body) > maxBodyChars {
				body = body[:maxBodyChars]
			}
			content += " " + body
		}
		content = source.CleanText(content)
		if content == "" {
			continue
		}

		var ts time.Time
		if t.CreatedUTC > 0 {
			ts = time.Unix(int64(t.CreatedUTC), 0).UTC()
		}

		raw := domain.NewRawPost(domain.RawPost{
			ExternalID:  t.ID,
			Content:     content,
			Author:      t.Author,
			Timestamp:   ts,
			Engagement:  t.Score + t.NumComments,
			Source:      domain.SourceForum,
			OriginalURL: a.baseURL + t.Permalink,
		}, authorFallback)

		posts = append(posts, raw)
	}
	return posts
}
