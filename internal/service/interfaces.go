package service

//go:generate mockgen -source=interfaces.go -destination=mocks/mocks.go -package=mocks

import (
	"context"
	"time"

	"stock_sentiment/internal/domain"
)

type SourceAdapter interface {
	Source() domain.Source
	Available(ctx context.Context) bool
	FetchForAllCompanies(ctx context.Context, companies []domain.Company, maxPerCompany int) []domain.CompanyBatch
}

type Scorer interface {
	Score(text, ticker string) (domain.Sentiment, int)
}

type PostStore interface {
	Insert(ctx context.Context, post *domain.ScoredPost) error
	FindRecentDuplicate(ctx context.Context, post *domain.ScoredPost, window time.Duration) (bool, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

type CompanyStore interface {
	List(ctx context.Context) ([]domain.Company, error)
	UpsertBatch(ctx context.Context, companies []domain.Company) error
}

type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

type Publisher interface {
	Publish(ctx context.Context, post *domain.ScoredPost) error
	Close() error
}
