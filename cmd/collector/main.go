package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"stock_sentiment/internal/config"
	"stock_sentiment/internal/publisher"
	"stock_sentiment/internal/scheduler"
	"stock_sentiment/internal/sentiment"
	"stock_sentiment/internal/service"
	"stock_sentiment/internal/source/chatstream"
	"stock_sentiment/internal/source/forum"
	"stock_sentiment/internal/source/microblog"
	"stock_sentiment/internal/source/news"
	"stock_sentiment/internal/storage/postgres"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	logger := setupLogger("info")

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger = setupLogger(cfg.LogLevel)

	db, err := sqlx.Connect("postgres", cfg.Database.DSN())
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		logger.Error("failed to ping database", "error", err)
		os.Exit(1)
	}
	logger.Info("connected to database")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Publishing is optional: without a broker URL scored posts are only
	// stored.
	var pub service.Publisher
	if cfg.RabbitMQ.URL != "" {
		rabbitMQ, err := publisher.NewRabbitMQ(publisher.Config{
			URL:        cfg.RabbitMQ.URL,
			Exchange:   cfg.RabbitMQ.Exchange,
			RoutingKey: cfg.RabbitMQ.RoutingKey,
			QueueName:  cfg.RabbitMQ.QueueName,
		}, logger)
		if err != nil {
			logger.Error("failed to connect to rabbitmq", "error", err)
			os.Exit(1)
		}
		defer rabbitMQ.Close()
		pub = rabbitMQ
	} else {
		logger.Info("no rabbitmq url configured, publishing disabled")
	}

	postStore := postgres.NewPostStore(db)
	companyStore := postgres.NewCompanyStore(db)
	txManager := postgres.NewTransactionManager(db)

	// Sync the configured roster so collection reads a consistent company
	// list from the database.
	if err := companyStore.UpsertBatch(ctx, cfg.CompanyRoster()); err != nil {
		logger.Error("failed to sync company roster", "error", err)
		os.Exit(1)
	}

	adapters := []service.SourceAdapter{
		microblog.New(microblog.Config{
			BaseURL:     cfg.Sources.Microblog.BaseURL,
			BearerToken: cfg.Sources.Microblog.BearerToken,
			Timeout:     cfg.Collection.RequestTimeout,
			PacingDelay: cfg.Collection.PacingDelay,
		}, logger),
		forum.New(forum.Config{
			BaseURL:      cfg.Sources.Forum.BaseURL,
			ClientID:     cfg.Sources.Forum.ClientID,
			ClientSecret: cfg.Sources.Forum.ClientSecret,
			UserAgent:    cfg.Sources.Forum.UserAgent,
			Boards:       cfg.Sources.Forum.Boards,
			Timeout:      cfg.Collection.RequestTimeout,
			PacingDelay:  cfg.Collection.PacingDelay,
		}, logger),
		chatstream.New(chatstream.Config{
			BaseURL:     cfg.Sources.ChatStream.BaseURL,
			Timeout:     cfg.Collection.RequestTimeout,
			PacingDelay: cfg.Collection.PacingDelay,
		}, logger),
		news.New(news.Config{
			Feeds:       newsFeeds(cfg.Sources.News.Feeds),
			APIBaseURL:  cfg.Sources.News.APIBaseURL,
			APIKey:      cfg.Sources.News.APIKey,
			Timeout:     cfg.Collection.RequestTimeout,
			PacingDelay: cfg.Collection.PacingDelay,
		}, logger),
	}

	collector := service.NewCollectorService(
		adapters,
		sentiment.NewAnalyzer(),
		postStore,
		companyStore,
		txManager,
		pub,
		logger,
		cfg.Collection,
	)

	sched := scheduler.NewScheduler(collector, cfg.Collection.Interval, cfg.Collection.RunTimeout, logger)

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	logger.Info("starting sentiment collector",
		"sources", len(adapters),
		"interval", cfg.Collection.Interval,
		"max_per_company", cfg.Collection.MaxPerCompany,
	)

	if err := sched.Start(ctx); err != nil && err != context.Canceled {
		logger.Error("scheduler error", "error", err)
		os.Exit(1)
	}
}

func newsFeeds(feeds []config.FeedConfig) []news.Feed {
	out := make([]news.Feed, len(feeds))
	for i, f := range feeds {
		out[i] = news.Feed{Name: f.Name, URL: f.URL}
	}
	return out
}

func setupLogger(level string) *slog.Logger {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: logLevel}
	handler := slog.NewJSONHandler(os.Stdout, opts)
	return slog.New(handler)
}
