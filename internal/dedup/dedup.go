// Package dedup suppresses near-duplicate posts within a collection run.
// Cross-time deduplication against already-stored records is a storage
// concern (exact content/source/author match over a trailing window); the
// two tiers are deliberately different — this one is cheap and approximate,
// the storage one exact and time-bounded.
package dedup

import (
	"strings"
	"sync"
	"unicode"

	"stock_sentiment/internal/domain"
)

// keyLength caps how much content feeds the dedup key. Reposts usually
// share their opening; comparing full bodies would miss truncated copies.
const keyLength = 100

// Deduplicator tracks content keys seen within one collection run. Safe for
// concurrent use, so one instance can span sources collected in parallel.
type Deduplicator struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

func New() *Deduplicator {
	return &Deduplicator{seen: make(map[string]struct{})}
}

// Key reduces content to its dedup key: the alphanumeric characters of the
// first keyLength characters, lowercased. Source and author are ignored on
// purpose — a repost is a repost wherever it appears.
func Key(content string) string {
	runes := []rune(content)
	if len(runes) > keyLength {
		runes = runes[:keyLength]
	}

	var b strings.Builder
	for _, r := range runes {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToLower(r))
		}
	}
	return b.String()
}

// Filter returns the posts whose key has not been seen yet in this run,
// recording each surviving key.
func (d *Deduplicator) Filter(posts []domain.RawPost) []domain.RawPost {
	unique := make([]domain.RawPost, 0, len(posts))

	d.mu.Lock()
	defer d.mu.Unlock()

	for _, post := range posts {
		key := Key(post.Content)
		if _, ok := d.seen[key]; ok {
			continue
		}
		d.seen[key] = struct{}{}
		unique = append(unique, post)
	}
	return unique
}
