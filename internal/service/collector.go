package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"stock_sentiment/internal/config"
	"stock_sentiment/internal/dedup"
	"stock_sentiment/internal/domain"
	"stock_sentiment/internal/source"
)

// CollectorService runs one collection pass over every configured source:
// fetch posts per company, drop duplicates, score sentiment, persist, and
// optionally publish. One source failing never aborts the run.
type CollectorService struct {
	adapters  []SourceAdapter
	scorer    Scorer
	posts     PostStore
	companies CompanyStore
	txManager TransactionManager
	publisher Publisher
	logger    *slog.Logger
	config    config.CollectionConfig
}

func NewCollectorService(
	adapters []SourceAdapter,
	scorer Scorer,
	posts PostStore,
	companies CompanyStore,
	txManager TransactionManager,
	publisher Publisher,
	logger *slog.Logger,
	cfg config.CollectionConfig,
) *CollectorService {
	return &CollectorService{
		adapters:  adapters,
		scorer:    scorer,
		posts:     posts,
		companies: companies,
		txManager: txManager,
		publisher: publisher,
		logger:    logger,
		config:    cfg,
	}
}

type sourceResult struct {
	fetched    int
	persisted  int
	duplicates int
	errors     int
	published  int
}

func (s *CollectorService) CollectAll(ctx context.Context) (*domain.CollectStats, error) {
	startTime := time.Now()
	s.logger.Info("starting collection run",
		"sources", len(s.adapters),
		"max_per_company", s.config.MaxPerCompany,
	)

	companies, err := s.companies.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("load company roster: %w", err)
	}
	if len(companies) == 0 {
		s.logger.Warn("company roster is empty, nothing to collect")
	}

	stats := domain.NewCollectStats()

	// One deduplicator spans the whole run so the same text arriving via
	// two sources is stored once.
	dd := dedup.New()

	if s.config.ParallelSources {
		var mu sync.Mutex
		g, gctx := errgroup.WithContext(ctx)
		for _, adapter := range s.adapters {
			g.Go(func() error {
				res := s.collectSource(gctx, adapter, companies, dd)
				mu.Lock()
				stats.PerSource[adapter.Source()] = res.persisted
				mergeResult(stats, res)
				mu.Unlock()
				return nil
			})
		}
		_ = g.Wait()
	} else {
		for i, adapter := range s.adapters {
			if i > 0 {
				if err := source.Pace(ctx, s.config.PacingDelay); err != nil {
					break
				}
			}
			res := s.collectSource(ctx, adapter, companies, dd)
			stats.PerSource[adapter.Source()] = res.persisted
			mergeResult(stats, res)
		}
	}

	stats.Duration = time.Since(startTime)

	s.logger.Info("collection run completed",
		"fetched", stats.Fetched,
		"persisted", stats.Persisted,
		"duplicates", stats.Duplicates,
		"errors", stats.Errors,
		"published", stats.Published,
		"duration", stats.Duration,
	)

	return stats, nil
}

func mergeResult(stats *domain.CollectStats, res sourceResult) {
	stats.Fetched += res.fetched
	stats.Persisted += res.persisted
	stats.Duplicates += res.duplicates
	stats.Errors += res.errors
	stats.Published += res.published
}

func (s *CollectorService) collectSource(ctx context.Context, adapter SourceAdapter, companies []domain.Company, dd *dedup.Deduplicator) sourceResult {
	var res sourceResult
	logger := s.logger.With("source", adapter.Source())

	if !adapter.Available(ctx) {
		logger.Warn("source unavailable, skipping")
		return res
	}

	batches := adapter.FetchForAllCompanies(ctx, companies, s.config.MaxPerCompany)

	for _, batch := range batches {
		res.fetched += len(batch.Posts)

		unique := dd.Filter(batch.Posts)
		res.duplicates += len(batch.Posts) - len(unique)
		if len(unique) == 0 {
			continue
		}

		scored := make([]domain.ScoredPost, 0, len(unique))
		for _, raw := range unique {
			label, confidence := s.scorer.Score(raw.Content, batch.Company.Ticker)
			scored = append(scored, domain.ScoredPost{
				RawPost:     raw,
				Sentiment:   label,
				Confidence:  confidence,
				CompanyID:   batch.Company.ID,
				Ticker:      batch.Company.Ticker,
				CompanyName: batch.Company.Name,
				Industry:    batch.Company.Industry,
			})
		}

		persisted, dups, err := s.persistBatch(ctx, scored)
		if err != nil {
			logger.Error("persist batch failed, skipping",
				"ticker", batch.Company.Ticker,
				"posts", len(scored),
				"error", err,
			)
			res.errors += len(scored)
			continue
		}
		res.persisted += len(persisted)
		res.duplicates += dups

		for i := range persisted {
			if s.publisher == nil {
				continue
			}
			if err := s.publisher.Publish(ctx, &persisted[i]); err != nil {
				logger.Error("publish failed", "ticker", persisted[i].Ticker, "error", err)
				res.errors++
			} else {
				res.published++
			}
		}
	}

	logger.Info("source collected",
		"fetched", res.fetched,
		"persisted", res.persisted,
		"duplicates", res.duplicates,
		"errors", res.errors,
	)

	return res
}

// persistBatch stores one company's posts atomically. Posts already seen in
// the recent window are dropped inside the same transaction, so a rollback
// discards the whole batch together.
func (s *CollectorService) persistBatch(ctx context.Context, posts []domain.ScoredPost) ([]domain.ScoredPost, int, error) {
	var persisted []domain.ScoredPost
	var duplicates int

	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		persisted = persisted[:0]
		duplicates = 0
		for i := range posts {
			post := &posts[i]
			dup, err := s.posts.FindRecentDuplicate(txCtx, post, s.config.DedupWindow)
			if err != nil {
				return fmt.Errorf("check duplicate: %w", err)
			}
			if dup {
				duplicates++
				continue
			}
			if err := s.posts.Insert(txCtx, post); err != nil {
				return fmt.Errorf("insert post: %w", err)
			}
			persisted = append(persisted, *post)
		}
		return nil
	})
	if err != nil {
		return nil, 0, err
	}

	return persisted, duplicates, nil
}

// CleanupOld deletes posts older than the configured retention period.
func (s *CollectorService) CleanupOld(ctx context.Context) (int64, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -s.config.RetentionDays)

	deleted, err := s.posts.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete old posts: %w", err)
	}

	if deleted > 0 {
		s.logger.Info("cleaned up old posts", "deleted", deleted, "cutoff", cutoff)
	}
	return deleted, nil
}
