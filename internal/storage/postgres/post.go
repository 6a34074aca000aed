package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"stock_sentiment/internal/domain"
)

type PostStore struct {
	db *sqlx.DB
}

func NewPostStore(db *sqlx.DB) *PostStore {
	return &PostStore{db: db}
}

func (s *PostStore) Insert(ctx context.Context, post *domain.ScoredPost) error {
	if post.ID == uuid.Nil {
		post.ID = uuid.New()
	}

	query := `
		INSERT INTO sentiment_posts (
			id, company_id, ticker, company_name, industry,
			external_id, content, author, post_timestamp, engagement,
			source, original_url, sentiment, confidence
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14
		)`

	_, err := GetExecutor(ctx, s.db).ExecContext(ctx, query,
		post.ID,
		post.CompanyID,
		post.Ticker,
		post.CompanyName,
		post.Industry,
		post.ExternalID,
		post.Content,
		post.Author,
		post.Timestamp,
		post.Engagement,
		post.Source,
		post.OriginalURL,
		post.Sentiment,
		post.Confidence,
	)
	return err
}

// FindRecentDuplicate reports whether a post with the same content, source,
// and author was stored within the given window before this post's
// timestamp.
func (s *PostStore) FindRecentDuplicate(ctx context.Context, post *domain.ScoredPost, window time.Duration) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM sentiment_posts
			WHERE content = $1
			  AND source = $2
			  AND author = $3
			  AND post_timestamp >= $4
		)`

	windowStart := post.Timestamp.Add(-window)

	var exists bool
	err := GetExecutor(ctx, s.db).QueryRowxContext(ctx, query,
		post.Content, post.Source, post.Author, windowStart,
	).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists, nil
}

func (s *PostStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := GetExecutor(ctx, s.db).ExecContext(ctx,
		"DELETE FROM sentiment_posts WHERE post_timestamp < $1", cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
