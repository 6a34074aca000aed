package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Source identifies the external feed a post was collected from.
type Source string

const (
	SourceMicroblog  Source = "microblog"
	SourceForum      Source = "forum"
	SourceChatStream Source = "chat_stream"
	SourceNews       Source = "news"
)

// Sentiment is the label assigned to a post by the scorer.
type Sentiment string

const (
	SentimentPositive Sentiment = "positive"
	SentimentNeutral  Sentiment = "neutral"
	SentimentNegative Sentiment = "negative"
)

// RawPost is an unscored item as produced by a source adapter. It is
// ephemeral: created per fetch call, scored, and discarded.
type RawPost struct {
	ExternalID  string    `json:"external_id"`
	Content     string    `json:"content"`
	Author      string    `json:"author"`
	Timestamp   time.Time `json:"timestamp"`
	Engagement  int       `json:"engagement"`
	Source      Source    `json:"source"`
	OriginalURL string    `json:"original_url,omitempty"`
}

// NewRawPost builds a RawPost, applying the default policies for fields a
// source may not supply:
//   - Author: authorFallback when blank (each source has its own placeholder)
//   - Timestamp: collection time (UTC) when the source gave none
//   - Engagement: floored at 0
//
// Content is trimmed; callers are expected to have stripped markup and
// collapsed whitespace already.
func NewRawPost(p RawPost, authorFallback string) RawPost {
	p.Content = strings.TrimSpace(p.Content)
	if strings.TrimSpace(p.Author) == "" {
		p.Author = authorFallback
	}
	if p.Timestamp.IsZero() {
		p.Timestamp = time.Now().UTC()
	}
	if p.Engagement < 0 {
		p.Engagement = 0
	}
	return p
}

// ScoredPost is a RawPost with sentiment and company context attached by the
// collector. It is the record shape handed to storage.
type ScoredPost struct {
	RawPost
	ID          uuid.UUID `json:"id"`
	Sentiment   Sentiment `json:"sentiment"`
	Confidence  int       `json:"confidence"`
	CompanyID   uuid.UUID `json:"company_id"`
	Ticker      string    `json:"ticker"`
	CompanyName string    `json:"company_name"`
	Industry    string    `json:"industry"`
}

// CompanyBatch groups one company's raw posts from a single source so the
// collector can stamp company context after fetching.
type CompanyBatch struct {
	Company Company
	Posts   []RawPost
}
