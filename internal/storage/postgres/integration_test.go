//go:build integration

package postgres

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"stock_sentiment/internal/domain"
)

type PostgresIntegrationSuite struct {
	suite.Suite
	ctx       context.Context
	container *postgres.PostgresContainer
	db        *sqlx.DB
}

func (s *PostgresIntegrationSuite) SetupSuite() {
	s.ctx = context.Background()

	migrationsPath, err := filepath.Abs("../../../migrations")
	s.Require().NoError(err)

	container, err := postgres.Run(s.ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("test_db"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		postgres.WithInitScripts(
			filepath.Join(migrationsPath, "001_create_companies.up.sql"),
			filepath.Join(migrationsPath, "002_create_sentiment_posts.up.sql"),
		),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	s.Require().NoError(err)
	s.container = container

	connStr, err := container.ConnectionString(s.ctx, "sslmode=disable")
	s.Require().NoError(err)

	db, err := sqlx.Connect("postgres", connStr)
	s.Require().NoError(err)
	s.db = db
}

func (s *PostgresIntegrationSuite) TearDownSuite() {
	if s.db != nil {
		s.db.Close()
	}
	if s.container != nil {
		_ = s.container.Terminate(s.ctx)
	}
}

func (s *PostgresIntegrationSuite) SetupTest() {
	_, _ = s.db.ExecContext(s.ctx, "DELETE FROM sentiment_posts")
	_, _ = s.db.ExecContext(s.ctx, "DELETE FROM companies")
}

func TestPostgresIntegrationSuite(t *testing.T) {
	suite.Run(t, new(PostgresIntegrationSuite))
}

func (s *PostgresIntegrationSuite) seedCompany(ticker string) domain.Company {
	company := domain.Company{
		Ticker:   ticker,
		Name:     ticker + " Inc",
		Industry: "technology",
		Keywords: []string{"test"},
	}
	store := NewCompanyStore(s.db)
	s.Require().NoError(store.UpsertBatch(s.ctx, []domain.Company{company}))

	companies, err := store.List(s.ctx)
	s.Require().NoError(err)
	for _, c := range companies {
		if c.Ticker == ticker {
			return c
		}
	}
	s.Require().FailNow("seeded company not found")
	return domain.Company{}
}

func (s *PostgresIntegrationSuite) newPost(company domain.Company, content string, ts time.Time) *domain.ScoredPost {
	return &domain.ScoredPost{
		RawPost: domain.RawPost{
			ExternalID: uuid.NewString(),
			Content:    content,
			Author:     "trader42",
			Timestamp:  ts,
			Engagement: 5,
			Source:     domain.SourceMicroblog,
		},
		Sentiment:   domain.SentimentPositive,
		Confidence:  80,
		CompanyID:   company.ID,
		Ticker:      company.Ticker,
		CompanyName: company.Name,
		Industry:    company.Industry,
	}
}

func (s *PostgresIntegrationSuite) TestCompanyStore_UpsertBatch_KeepsIDOnUpdate() {
	store := NewCompanyStore(s.db)

	err := store.UpsertBatch(s.ctx, []domain.Company{
		{Ticker: "AAPL", Name: "Apple", Industry: "technology", Keywords: []string{"iphone"}},
	})
	s.NoError(err)

	first, err := store.List(s.ctx)
	s.NoError(err)
	s.Require().Len(first, 1)

	err = store.UpsertBatch(s.ctx, []domain.Company{
		{Ticker: "AAPL", Name: "Apple Inc", Industry: "technology", Keywords: []string{"iphone", "mac"}},
	})
	s.NoError(err)

	second, err := store.List(s.ctx)
	s.NoError(err)
	s.Require().Len(second, 1)
	s.Equal(first[0].ID, second[0].ID)
	s.Equal("Apple Inc", second[0].Name)
	s.Equal([]string{"iphone", "mac"}, second[0].Keywords)
}

func (s *PostgresIntegrationSuite) TestCompanyStore_List_OrderedByTicker() {
	store := NewCompanyStore(s.db)

	err := store.UpsertBatch(s.ctx, []domain.Company{
		{Ticker: "TSLA", Name: "Tesla"},
		{Ticker: "AAPL", Name: "Apple"},
		{Ticker: "MSFT", Name: "Microsoft"},
	})
	s.NoError(err)

	companies, err := store.List(s.ctx)
	s.NoError(err)
	s.Require().Len(companies, 3)
	s.Equal("AAPL", companies[0].Ticker)
	s.Equal("MSFT", companies[1].Ticker)
	s.Equal("TSLA", companies[2].Ticker)
}

func (s *PostgresIntegrationSuite) TestPostStore_Insert() {
	company := s.seedCompany("AAPL")
	store := NewPostStore(s.db)
	now := time.Now().Truncate(time.Microsecond)

	post := s.newPost(company, "AAPL to the moon", now)
	err := store.Insert(s.ctx, post)
	s.NoError(err)
	s.NotEqual(uuid.Nil, post.ID)

	var count int
	err = s.db.GetContext(s.ctx, &count, "SELECT COUNT(*) FROM sentiment_posts WHERE ticker = $1", "AAPL")
	s.NoError(err)
	s.Equal(1, count)
}

func (s *PostgresIntegrationSuite) TestPostStore_FindRecentDuplicate_WithinWindow() {
	company := s.seedCompany("AAPL")
	store := NewPostStore(s.db)
	now := time.Now().Truncate(time.Microsecond)

	first := s.newPost(company, "AAPL earnings beat expectations", now.Add(-10*time.Minute))
	s.NoError(store.Insert(s.ctx, first))

	later := s.newPost(company, "AAPL earnings beat expectations", now)
	dup, err := store.FindRecentDuplicate(s.ctx, later, 60*time.Minute)
	s.NoError(err)
	s.True(dup)
}

func (s *PostgresIntegrationSuite) TestPostStore_FindRecentDuplicate_OutsideWindow() {
	company := s.seedCompany("AAPL")
	store := NewPostStore(s.db)
	now := time.Now().Truncate(time.Microsecond)

	first := s.newPost(company, "AAPL earnings beat expectations", now.Add(-90*time.Minute))
	s.NoError(store.Insert(s.ctx, first))

	later := s.newPost(company, "AAPL earnings beat expectations", now)
	dup, err := store.FindRecentDuplicate(s.ctx, later, 60*time.Minute)
	s.NoError(err)
	s.False(dup)
}

func (s *PostgresIntegrationSuite) TestPostStore_FindRecentDuplicate_DifferentAuthor() {
	company := s.seedCompany("AAPL")
	store := NewPostStore(s.db)
	now := time.Now().Truncate(time.Microsecond)

	first := s.newPost(company, "AAPL earnings beat expectations", now.Add(-10*time.Minute))
	s.NoError(store.Insert(s.ctx, first))

	later := s.newPost(company, "AAPL earnings beat expectations", now)
	later.Author = "someone_else"
	dup, err := store.FindRecentDuplicate(s.ctx, later, 60*time.Minute)
	s.NoError(err)
	s.False(dup)
}

func (s *PostgresIntegrationSuite) TestPostStore_DeleteOlderThan() {
	company := s.seedCompany("AAPL")
	store := NewPostStore(s.db)
	now := time.Now().Truncate(time.Microsecond)

	old := s.newPost(company, "stale post about AAPL", now.AddDate(0, 0, -10))
	s.NoError(store.Insert(s.ctx, old))
	fresh := s.newPost(company, "fresh post about AAPL", now)
	s.NoError(store.Insert(s.ctx, fresh))

	deleted, err := store.DeleteOlderThan(s.ctx, now.AddDate(0, 0, -7))
	s.NoError(err)
	s.Equal(int64(1), deleted)

	var count int
	err = s.db.GetContext(s.ctx, &count, "SELECT COUNT(*) FROM sentiment_posts")
	s.NoError(err)
	s.Equal(1, count)
}

func (s *PostgresIntegrationSuite) TestTransaction_Commit() {
	company := s.seedCompany("AAPL")
	tm := NewTransactionManager(s.db)
	store := NewPostStore(s.db)
	now := time.Now().Truncate(time.Microsecond)

	err := tm.WithTransaction(s.ctx, func(ctx context.Context) error {
		return store.Insert(ctx, s.newPost(company, "committed post about AAPL", now))
	})
	s.NoError(err)

	var count int
	err = s.db.GetContext(s.ctx, &count, "SELECT COUNT(*) FROM sentiment_posts")
	s.NoError(err)
	s.Equal(1, count)
}

func (s *PostgresIntegrationSuite) TestTransaction_Rollback() {
	company := s.seedCompany("AAPL")
	tm := NewTransactionManager(s.db)
	store := NewPostStore(s.db)
	now := time.Now().Truncate(time.Microsecond)

	err := tm.WithTransaction(s.ctx, func(ctx context.Context) error {
		if err := store.Insert(ctx, s.newPost(company, "rolled back post about AAPL", now)); err != nil {
			return err
		}
		return context.Canceled
	})
	s.Error(err)

	var count int
	err = s.db.GetContext(s.ctx, &count, "SELECT COUNT(*) FROM sentiment_posts")
	s.NoError(err)
	s.Equal(0, count)
}
