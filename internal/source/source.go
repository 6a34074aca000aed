// Package source holds what the four adapters share: rate-limiter
// construction, the roster fan-out loop, and text normalization helpers.
// Each concrete adapter lives in its own subpackage.
package source

import (
	"context"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/time/rate"

	"stock_sentiment/internal/domain"
)

// NewLimiter builds the hard per-source call ceiling: quota calls per
// period, with the full quota available as burst. Callers Wait on it before
// every outbound call; an exhausted limiter blocks until tokens accrue, it
// never errors past the ceiling.
func NewLimiter(quota int, period time.Duration) *rate.Limiter {
	return rate.NewLimiter(rate.Every(period/time.Duration(quota)), quota)
}

// FetchFunc is one adapter's per-company fetch.
type FetchFunc func(ctx context.Context, company domain.Company, maxResults int) ([]domain.RawPost, error)

// ForAllCompanies drives fetch over the roster in order with an
// inter-company pacing delay. A failure for one company is logged and
// skipped, never aborting the roster. Cancellation is honored at company
// boundaries; a partial result is returned.
func ForAllCompanies(
	ctx context.Context,
	logger *slog.Logger,
	pacing time.Duration,
	companies []domain.Company,
	maxPerCompany int,
	fetch FetchFunc,
) []domain.CompanyBatch {
	batches := make([]domain.CompanyBatch, 0, len(companies))

	for i, company := range companies {
		if i > 0 {
			if err := Pace(ctx, pacing); err != nil {
				break
			}
		}
		if ctx.Err() != nil {
			break
		}

		posts, err := fetch(ctx, company, maxPerCompany)
		if err != nil {
			logger.Error("fetch failed for company",
				"ticker", company.Ticker,
				"error", err,
			)
			continue
		}
		if len(posts) == 0 {
			continue
		}

		batches = append(batches, domain.CompanyBatch{Company: company, Posts: posts})
	}

	return batches
}

// Pace sleeps for d, returning early with the context error on
// cancellation.
func Pace(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

var whitespaceRe = regexp.MustCompile(`\s+`)

// CleanText strips HTML markup and collapses runs of whitespace. Feed
// summaries and forum bodies routinely embed markup that would pollute both
// scoring and dedup keys.
func CleanText(s string) string {
	if s == "" {
		return ""
	}
	if strings.ContainsRune(s, '<') {
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
		if err == nil {
			s = doc.Text()
		}
	}
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(s, " "))
}
