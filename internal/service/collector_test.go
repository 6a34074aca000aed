package service

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"stock_sentiment/internal/config"
	"stock_sentiment/internal/domain"
	"stock_sentiment/internal/service/mocks"
)

type CollectorServiceTestSuite struct {
	suite.Suite
	ctrl *gomock.Controller

	adapter   *mocks.MockSourceAdapter
	scorer    *mocks.MockScorer
	posts     *mocks.MockPostStore
	companies *mocks.MockCompanyStore
	txManager *mocks.MockTransactionManager
	publisher *mocks.MockPublisher

	service *CollectorService
	cfg     config.CollectionConfig
	logger  *slog.Logger

	roster []domain.Company
}

func (s *CollectorServiceTestSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())

	s.adapter = mocks.NewMockSourceAdapter(s.ctrl)
	s.scorer = mocks.NewMockScorer(s.ctrl)
	s.posts = mocks.NewMockPostStore(s.ctrl)
	s.companies = mocks.NewMockCompanyStore(s.ctrl)
	s.txManager = mocks.NewMockTransactionManager(s.ctrl)
	s.publisher = mocks.NewMockPublisher(s.ctrl)

	s.cfg = config.CollectionConfig{
		MaxPerCompany: 10,
		DedupWindow:   time.Hour,
		RetentionDays: 7,
	}

	s.logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	s.adapter.EXPECT().Source().Return(domain.SourceMicroblog).AnyTimes()

	s.roster = []domain.Company{
		{ID: uuid.New(), Ticker: "AAPL", Name: "Apple", Industry: "technology"},
	}

	s.service = NewCollectorService(
		[]SourceAdapter{s.adapter},
		s.scorer,
		s.posts,
		s.companies,
		s.txManager,
		s.publisher,
		s.logger,
		s.cfg,
	)
}

func (s *CollectorServiceTestSuite) TearDownTest() {
	s.ctrl.Finish()
}

func TestCollectorServiceTestSuite(t *testing.T) {
	suite.Run(t, new(CollectorServiceTestSuite))
}

func (s *CollectorServiceTestSuite) expectTransaction() {
	s.txManager.EXPECT().WithTransaction(gomock.Any(), gomock.Any()).DoAndReturn(
		func(ctx context.Context, fn func(context.Context) error) error {
			return fn(ctx)
		},
	).AnyTimes()
}

func (s *CollectorServiceTestSuite) TestCollectAll_PersistsAndPublishes() {
	ctx := context.Background()
	now := time.Now().UTC()

	s.companies.EXPECT().List(ctx).Return(s.roster, nil)
	s.adapter.EXPECT().Available(ctx).Return(true)

	batches := []domain.CompanyBatch{
		{
			Company: s.roster[0],
			Posts: []domain.RawPost{
				{Content: "AAPL to the moon", Author: "alice", Timestamp: now, Source: domain.SourceMicroblog},
				{Content: "AAPL looking weak today", Author: "bob", Timestamp: now, Source: domain.SourceMicroblog},
			},
		},
	}
	s.adapter.EXPECT().FetchForAllCompanies(ctx, s.roster, 10).Return(batches)

	s.scorer.EXPECT().Score("AAPL to the moon", "AAPL").Return(domain.SentimentPositive, 85)
	s.scorer.EXPECT().Score("AAPL looking weak today", "AAPL").Return(domain.SentimentNegative, 70)

	s.expectTransaction()
	s.posts.EXPECT().FindRecentDuplicate(gomock.Any(), gomock.Any(), time.Hour).Return(false, nil).Times(2)
	s.posts.EXPECT().Insert(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, post *domain.ScoredPost) error {
			s.Equal("AAPL", post.Ticker)
			s.Equal("Apple", post.CompanyName)
			s.Equal("technology", post.Industry)
			s.Equal(s.roster[0].ID, post.CompanyID)
			return nil
		},
	).Times(2)

	s.publisher.EXPECT().Publish(ctx, gomock.Any()).Return(nil).Times(2)

	stats, err := s.service.CollectAll(ctx)

	s.NoError(err)
	s.Equal(2, stats.Fetched)
	s.Equal(2, stats.Persisted)
	s.Equal(0, stats.Duplicates)
	s.Equal(0, stats.Errors)
	s.Equal(2, stats.Published)
	s.Equal(2, stats.PerSource[domain.SourceMicroblog])
}

func (s *CollectorServiceTestSuite) TestCollectAll_SkipsUnavailableSource() {
	ctx := context.Background()

	s.companies.EXPECT().List(ctx).Return(s.roster, nil)
	s.adapter.EXPECT().Available(ctx).Return(false)
	// No fetch, no stores, no publishing.

	stats, err := s.service.CollectAll(ctx)

	s.NoError(err)
	s.Equal(0, stats.Fetched)
	s.Equal(0, stats.Persisted)
}

func (s *CollectorServiceTestSuite) TestCollectAll_DropsIntraRunDuplicates() {
	ctx := context.Background()

	s.companies.EXPECT().List(ctx).Return(s.roster, nil)
	s.adapter.EXPECT().Available(ctx).Return(true)

	batches := []domain.CompanyBatch{
		{
			Company: s.roster[0],
			Posts: []domain.RawPost{
				{Content: "AAPL earnings beat expectations", Author: "alice"},
				{Content: "aapl EARNINGS beat expectations!!", Author: "bob"},
			},
		},
	}
	s.adapter.EXPECT().FetchForAllCompanies(ctx, s.roster, 10).Return(batches)

	s.scorer.EXPECT().Score("AAPL earnings beat expectations", "AAPL").Return(domain.SentimentPositive, 80)

	s.expectTransaction()
	s.posts.EXPECT().FindRecentDuplicate(gomock.Any(), gomock.Any(), time.Hour).Return(false, nil)
	s.posts.EXPECT().Insert(gomock.Any(), gomock.Any()).Return(nil)
	s.publisher.EXPECT().Publish(ctx, gomock.Any()).Return(nil)

	stats, err := s.service.CollectAll(ctx)

	s.NoError(err)
	s.Equal(2, stats.Fetched)
	s.Equal(1, stats.Persisted)
	s.Equal(1, stats.Duplicates)
}

func (s *CollectorServiceTestSuite) TestCollectAll_StoredDuplicateNotPublished() {
	ctx := context.Background()

	s.companies.EXPECT().List(ctx).Return(s.roster, nil)
	s.adapter.EXPECT().Available(ctx).Return(true)

	batches := []domain.CompanyBatch{
		{
			Company: s.roster[0],
			Posts:   []domain.RawPost{{Content: "AAPL earnings beat expectations", Author: "alice"}},
		},
	}
	s.adapter.EXPECT().FetchForAllCompanies(ctx, s.roster, 10).Return(batches)
	s.scorer.EXPECT().Score(gomock.Any(), "AAPL").Return(domain.SentimentPositive, 80)

	s.expectTransaction()
	s.posts.EXPECT().FindRecentDuplicate(gomock.Any(), gomock.Any(), time.Hour).Return(true, nil)
	// No Insert, no Publish.

	stats, err := s.service.CollectAll(ctx)

	s.NoError(err)
	s.Equal(1, stats.Fetched)
	s.Equal(0, stats.Persisted)
	s.Equal(1, stats.Duplicates)
	s.Equal(0, stats.Published)
}

func (s *CollectorServiceTestSuite) TestCollectAll_PersistFailureDropsBatchOnly() {
	ctx := context.Background()

	second := domain.Company{ID: uuid.New(), Ticker: "TSLA", Name: "Tesla", Industry: "automotive"}
	roster := append(s.roster, second)

	s.companies.EXPECT().List(ctx).Return(roster, nil)
	s.adapter.EXPECT().Available(ctx).Return(true)

	batches := []domain.CompanyBatch{
		{Company: roster[0], Posts: []domain.RawPost{{Content: "AAPL post one", Author: "alice"}}},
		{Company: second, Posts: []domain.RawPost{{Content: "TSLA post two", Author: "bob"}}},
	}
	s.adapter.EXPECT().FetchForAllCompanies(ctx, roster, 10).Return(batches)

	s.scorer.EXPECT().Score("AAPL post one", "AAPL").Return(domain.SentimentNeutral, 50)
	s.scorer.EXPECT().Score("TSLA post two", "TSLA").Return(domain.SentimentNeutral, 50)

	s.expectTransaction()
	s.posts.EXPECT().FindRecentDuplicate(gomock.Any(), gomock.Any(), time.Hour).Return(false, nil).Times(2)

	failed := errors.New("connection reset")
	gomock.InOrder(
		s.posts.EXPECT().Insert(gomock.Any(), gomock.Any()).Return(failed),
		s.posts.EXPECT().Insert(gomock.Any(), gomock.Any()).Return(nil),
	)

	s.publisher.EXPECT().Publish(ctx, gomock.Any()).DoAndReturn(
		func(_ context.Context, post *domain.ScoredPost) error {
			s.Equal("TSLA", post.Ticker)
			return nil
		},
	)

	stats, err := s.service.CollectAll(ctx)

	s.NoError(err)
	s.Equal(2, stats.Fetched)
	s.Equal(1, stats.Persisted)
	s.Equal(1, stats.Errors)
	s.Equal(1, stats.Published)
}

func (s *CollectorServiceTestSuite) TestCollectAll_PublishFailureCounted() {
	ctx := context.Background()

	s.companies.EXPECT().List(ctx).Return(s.roster, nil)
	s.adapter.EXPECT().Available(ctx).Return(true)

	batches := []domain.CompanyBatch{
		{Company: s.roster[0], Posts: []domain.RawPost{{Content: "AAPL post", Author: "alice"}}},
	}
	s.adapter.EXPECT().FetchForAllCompanies(ctx, s.roster, 10).Return(batches)
	s.scorer.EXPECT().Score(gomock.Any(), "AAPL").Return(domain.SentimentPositive, 80)

	s.expectTransaction()
	s.posts.EXPECT().FindRecentDuplicate(gomock.Any(), gomock.Any(), time.Hour).Return(false, nil)
	s.posts.EXPECT().Insert(gomock.Any(), gomock.Any()).Return(nil)
	s.publisher.EXPECT().Publish(ctx, gomock.Any()).Return(errors.New("broker down"))

	stats, err := s.service.CollectAll(ctx)

	s.NoError(err)
	s.Equal(1, stats.Persisted)
	s.Equal(0, stats.Published)
	s.Equal(1, stats.Errors)
}

func (s *CollectorServiceTestSuite) TestCollectAll_NilPublisher() {
	ctx := context.Background()

	service := NewCollectorService(
		[]SourceAdapter{s.adapter},
		s.scorer,
		s.posts,
		s.companies,
		s.txManager,
		nil,
		s.logger,
		s.cfg,
	)

	s.companies.EXPECT().List(ctx).Return(s.roster, nil)
	s.adapter.EXPECT().Available(ctx).Return(true)

	batches := []domain.CompanyBatch{
		{Company: s.roster[0], Posts: []domain.RawPost{{Content: "AAPL post", Author: "alice"}}},
	}
	s.adapter.EXPECT().FetchForAllCompanies(ctx, s.roster, 10).Return(batches)
	s.scorer.EXPECT().Score(gomock.Any(), "AAPL").Return(domain.SentimentPositive, 80)

	s.expectTransaction()
	s.posts.EXPECT().FindRecentDuplicate(gomock.Any(), gomock.Any(), time.Hour).Return(false, nil)
	s.posts.EXPECT().Insert(gomock.Any(), gomock.Any()).Return(nil)

	stats, err := service.CollectAll(ctx)

	s.NoError(err)
	s.Equal(1, stats.Persisted)
	s.Equal(0, stats.Published)
}

func (s *CollectorServiceTestSuite) TestCollectAll_RosterError() {
	ctx := context.Background()

	s.companies.EXPECT().List(ctx).Return(nil, errors.New("db down"))

	stats, err := s.service.CollectAll(ctx)

	s.Error(err)
	s.Nil(stats)
	s.Contains(err.Error(), "load company roster")
}

func (s *CollectorServiceTestSuite) TestCleanupOld() {
	ctx := context.Background()

	s.posts.EXPECT().DeleteOlderThan(ctx, gomock.Any()).DoAndReturn(
		func(_ context.Context, cutoff time.Time) (int64, error) {
			s.WithinDuration(time.Now().UTC().AddDate(0, 0, -7), cutoff, time.Minute)
			return 5, nil
		},
	)

	deleted, err := s.service.CleanupOld(ctx)

	s.NoError(err)
	s.Equal(int64(5), deleted)
}

func (s *CollectorServiceTestSuite) TestCleanupOld_Error() {
	ctx := context.Background()

	s.posts.EXPECT().DeleteOlderThan(ctx, gomock.Any()).Return(int64(0), errors.New("db down"))

	_, err := s.service.CleanupOld(ctx)

	s.Error(err)
}
