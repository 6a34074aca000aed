// Package sentiment scores financial social/news text. It layers a
// finance-specific lexical adjustment on top of a general-purpose VADER
// polarity score: social posts about stocks lean heavily on slang that a
// stock lexicon alone misreads ("stonks", "diamond hands", rocket emoji).
package sentiment

import (
	"math"
	"regexp"
	"strings"

	"github.com/jonreiter/govader"

	"stock_sentiment/internal/domain"
)

const (
	// Label thresholds on the adjusted score. Narrower than VADER's own
	// defaults: finance text rarely sits exactly at zero.
	positiveThreshold = 0.1
	negativeThreshold = -0.1

	// Confidence is a weighting hint, not a probability. The floor keeps
	// every stored record informative for aggregates; the cap reserves
	// headroom for the uncertainty always present in short social text.
	minConfidence = 50
	maxConfidence = 95

	// The summed lexical adjustment is clamped before combining with the
	// VADER compound. Repeated-keyword stacking below the clamp is kept:
	// a post hitting five positive terms earns the full +0.5.
	maxAdjustment = 0.5
)

// positiveTerms and negativeTerms are matched as substrings of the
// lowercased original text, +0.1 / -0.1 each, stacking without a per-term
// cap.
var positiveTerms = []string{
	"bullish", "moon", "rocket", "gains", "profit", "rally", "surge", "boom",
	"breakout", "uptrend", "call", "long", "diamond hands", "hodl", "to the moon",
	"beat expectations", "strong earnings", "revenue growth", "expansion",
	"acquisition", "merger", "upgrade", "outperform", "buy rating",
}

var negativeTerms = []string{
	"bearish", "crash", "dump", "loss", "decline", "fall", "drop", "plunge",
	"recession", "bankruptcy", "downgrade", "sell", "short", "puts", "panic",
	"missed expectations", "weak earnings", "revenue decline", "layoffs",
	"debt", "underperform", "sell rating", "downtrend",
}

// marketPatterns carry fixed weights for idiomatic bullish/bearish phrases,
// matched against the lowercased text. Distinct matches all apply.
var marketPatterns = []struct {
	re     *regexp.Regexp
	weight float64
}{
	{regexp.MustCompile(`\b(?:to the moon|moon)\b`), 0.3},
	{regexp.MustCompile(`\b(?:diamond hands|hodl)\b`), 0.2},
	{regexp.MustCompile(`\b(?:paper hands|panic sell)\b`), -0.3},
	{regexp.MustCompile(`\b(?:stonks|stonk)\b`), 0.1},
	{regexp.MustCompile(`\$[a-z]{1,5}\b`), 0.1}, // cashtag mention
	{regexp.MustCompile(`\brocket\b|🚀`), 0.2},
	{regexp.MustCompile(`\b(?:bull market|bullish)\b`), 0.3},
	{regexp.MustCompile(`\b(?:bear market|bearish)\b`), -0.3},
	{regexp.MustCompile(`\bbuy the dip\b`), 0.2},
	{regexp.MustCompile(`\bpump and dump\b`), -0.4},
}

// slangExpansions rewrite trader shorthand into phrases the VADER lexicon
// understands, whole-word only. Applied to the scoring copy; the original
// text is left untouched for the lexical adjustment and display.
var slangExpansions = []struct {
	re          *regexp.Regexp
	replacement string
}{
	{regexp.MustCompile(`\bstonks\b`), "stocks good"},
	{regexp.MustCompile(`\bhodl\b`), "hold strong"},
	{regexp.MustCompile(`\bbtfd\b`), "buy the dip opportunity"},
	{regexp.MustCompile(`\byolo\b`), "confident investment"},
	{regexp.MustCompile(`\bfomo\b`), "fear missing opportunity"},
	{regexp.MustCompile(`\bdd\b`), "due diligence research"},
	{regexp.MustCompile(`\bta\b`), "technical analysis"},
	{regexp.MustCompile(`\brsi\b`), "relative strength index"},
	{regexp.MustCompile(`\bmacd\b`), "moving average convergence"},
}

// Analyzer scores text. It is stateless after construction and safe for
// concurrent use.
type Analyzer struct {
	vader *govader.SentimentIntensityAnalyzer
}

func NewAnalyzer() *Analyzer {
	return &Analyzer{vader: govader.NewSentimentIntensityAnalyzer()}
}

// Score returns the sentiment label and a confidence percentage in
// [50, 95]. The ticker hint is reserved for per-ticker calibration and does
// not affect the current scoring math. Score never fails: any internal
// panic degrades to (neutral, 50).
func (a *Analyzer) Score(text, ticker string) (label domain.Sentiment, confidence int) {
	defer func() {
		if r := recover(); r != nil {
			label, confidence = domain.SentimentNeutral, minConfidence
		}
	}()
	_ = ticker

	processed := expandSlang(strings.ToLower(text))
	scores := a.vader.PolarityScores(processed)

	adjusted := clamp(scores.Compound+adjustment(text), -1.0, 1.0)

	switch {
	case adjusted >= positiveThreshold:
		label = domain.SentimentPositive
	case adjusted <= negativeThreshold:
		label = domain.SentimentNegative
	default:
		label = domain.SentimentNeutral
	}

	conf := math.Abs(adjusted)
	if math.Max(scores.Positive, math.Max(scores.Neutral, scores.Negative)) > 0.5 {
		conf = math.Min(1.0, conf+0.1)
	}

	confidence = int(conf * 100)
	if confidence < minConfidence {
		confidence = minConfidence
	}
	if confidence > maxConfidence {
		confidence = maxConfidence
	}

	return label, confidence
}

// adjustment computes the additive finance-context adjustment for the
// original text, clamped to [-maxAdjustment, maxAdjustment].
func adjustment(text string) float64 {
	lower := strings.ToLower(text)
	adj := 0.0

	for _, term := range positiveTerms {
		if strings.Contains(lower, term) {
			adj += 0.1
		}
	}
	for _, term := range negativeTerms {
		if strings.Contains(lower, term) {
			adj -= 0.1
		}
	}
	for _, p := range marketPatterns {
		if p.re.MatchString(lower) {
			adj += p.weight
		}
	}

	return clamp(adj, -maxAdjustment, maxAdjustment)
}

func expandSlang(lower string) string {
	for _, s := range slangExpansions {
		lower = s.re.ReplaceAllString(lower, s.replacement)
	}
	return lower
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
