package config

import (
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"stock_sentiment/internal/domain"
)

type Config struct {
	Database   DatabaseConfig          `yaml:"database"`
	RabbitMQ   RabbitMQConfig          `yaml:"rabbitmq"`
	Sources    SourcesConfig           `yaml:"sources"`
	Collection CollectionConfig        `yaml:"collection"`
	Companies  map[string][]CompanyRef `yaml:"companies"`
	LogLevel   string                  `yaml:"log_level"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	SSLMode  string `yaml:"sslmode"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode,
	)
}

// RabbitMQConfig configures the scored-post publisher. An empty URL disables
// publishing entirely; the collector runs fine without it.
type RabbitMQConfig struct {
	URL        string `yaml:"url"`
	Exchange   string `yaml:"exchange"`
	RoutingKey string `yaml:"routing_key"`
	QueueName  string `yaml:"queue_name"`
}

// SourcesConfig holds per-source endpoints and credentials. Missing
// credentials are a valid configuration: the adapter reports itself
// unavailable and the collector skips it.
type SourcesConfig struct {
	Microblog  MicroblogConfig  `yaml:"microblog"`
	Forum      ForumConfig      `yaml:"forum"`
	ChatStream ChatStreamConfig `yaml:"chat_stream"`
	News       NewsConfig       `yaml:"news"`
}

type MicroblogConfig struct {
	BaseURL     string `yaml:"base_url"`
	BearerToken string `yaml:"bearer_token"`
}

type ForumConfig struct {
	BaseURL      string   `yaml:"base_url"`
	ClientID     string   `yaml:"client_id"`
	ClientSecret string   `yaml:"client_secret"`
	UserAgent    string   `yaml:"user_agent"`
	Boards       []string `yaml:"boards"`
}

type ChatStreamConfig struct {
	BaseURL string `yaml:"base_url"`
}

type NewsConfig struct {
	Feeds      []FeedConfig `yaml:"feeds"`
	APIBaseURL string       `yaml:"api_base_url"`
	APIKey     string       `yaml:"api_key"`
}

type FeedConfig struct {
	Name string `yaml:"name"`
	URL  string `yaml:"url"`
}

type CollectionConfig struct {
	Interval        time.Duration `yaml:"interval"`
	RunTimeout      time.Duration `yaml:"run_timeout"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`
	PacingDelay     time.Duration `yaml:"pacing_delay"`
	MaxPerCompany   int           `yaml:"max_per_company"`
	DedupWindow     time.Duration `yaml:"dedup_window"`
	RetentionDays   int           `yaml:"retention_days"`
	ParallelSources bool          `yaml:"parallel_sources"`
}

// CompanyRef is one roster entry as configured, keyed under its industry.
type CompanyRef struct {
	Ticker   string   `yaml:"ticker"`
	Name     string   `yaml:"name"`
	Keywords []string `yaml:"keywords"`
}

func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.setDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) setDefaults() {
	if c.Sources.Microblog.BaseURL == "" {
		c.Sources.Microblog.BaseURL = "https://api.twitter.com/2/tweets"
	}
	if c.Sources.Forum.BaseURL == "" {
		c.Sources.Forum.BaseURL = "https://www.reddit.com"
	}
	if c.Sources.Forum.UserAgent == "" {
		c.Sources.Forum.UserAgent = "StockSentiment/1.0"
	}
	if len(c.Sources.Forum.Boards) == 0 {
		c.Sources.Forum.Boards = []string{
			"stocks", "investing", "SecurityAnalysis", "ValueInvesting",
			"StockMarket", "finance", "options", "pennystocks",
		}
	}
	if c.Sources.ChatStream.BaseURL == "" {
		c.Sources.ChatStream.BaseURL = "https://api.stocktwits.com/api/2"
	}
	if len(c.Sources.News.Feeds) == 0 {
		c.Sources.News.Feeds = []FeedConfig{
			{Name: "Yahoo Finance", URL: "https://feeds.finance.yahoo.com/rss/2.0/headline"},
			{Name: "MarketWatch", URL: "https://feeds.marketwatch.com/marketwatch/realtimeheadlines/"},
		}
	}
	if c.Sources.News.APIBaseURL == "" {
		c.Sources.News.APIBaseURL = "https://newsapi.org/v2"
	}
	if c.Collection.Interval == 0 {
		c.Collection.Interval = 30 * time.Minute
	}
	if c.Collection.RunTimeout == 0 {
		c.Collection.RunTimeout = 10 * time.Minute
	}
	if c.Collection.RequestTimeout == 0 {
		c.Collection.RequestTimeout = 10 * time.Second
	}
	if c.Collection.PacingDelay == 0 {
		c.Collection.PacingDelay = 2 * time.Second
	}
	if c.Collection.MaxPerCompany == 0 {
		c.Collection.MaxPerCompany = 10
	}
	if c.Collection.DedupWindow == 0 {
		c.Collection.DedupWindow = 60 * time.Minute
	}
	if c.Collection.RetentionDays == 0 {
		c.Collection.RetentionDays = 7
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

func (c *Config) validate() error {
	seen := make(map[string]string)
	for industry, companies := range c.Companies {
		for _, company := range companies {
			if company.Ticker == "" {
				return fmt.Errorf("company without ticker in industry %q", industry)
			}
			if prev, ok := seen[company.Ticker]; ok {
				return fmt.Errorf("duplicate ticker %s in industries %s and %s", company.Ticker, prev, industry)
			}
			seen[company.Ticker] = industry
		}
	}
	return nil
}

// CompanyRoster flattens the configured industry map into a deterministic
// slice ordered by industry then ticker. IDs are assigned by storage on
// upsert.
func (c *Config) CompanyRoster() []domain.Company {
	industries := make([]string, 0, len(c.Companies))
	for industry := range c.Companies {
		industries = append(industries, industry)
	}
	sort.Strings(industries)

	var roster []domain.Company
	for _, industry := range industries {
		companies := append([]CompanyRef(nil), c.Companies[industry]...)
		sort.Slice(companies, func(i, j int) bool { return companies[i].Ticker < companies[j].Ticker })
		for _, ref := range companies {
			roster = append(roster, domain.Company{
				Ticker:   ref.Ticker,
				Name:     ref.Name,
				Industry: industry,
				Keywords: ref.Keywords,
			})
		}
	}
	return roster
}
