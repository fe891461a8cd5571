// Package sentiment scores news text with weighted keyword dictionaries.
// It is deterministic and offline; the report synthesizer uses it for news
// items and for the fallback report when no narrative is available.
package sentiment

import (
	"math"
	"strings"
	"time"

	"github.com/seenimoa/diligence/pkg/models"
)

// Labels attached to articles and aggregates.
const (
	LabelPositive = "positive"
	LabelNegative = "negative"
	LabelNeutral  = "neutral"
)

// labelThreshold is the absolute score above which text is non-neutral.
const labelThreshold = 0.2

// positive / negative keyword dictionaries (lowercase, stemmed).
var positiveWords = map[string]float64{
	"bullish": 0.7, "rally": 0.6, "surge": 0.7, "upbeat": 0.5,
	"positive": 0.4, "growth": 0.4, "upgrade": 0.6, "outperform": 0.6,
	"strong": 0.4, "recovery": 0.5, "record high": 0.7, "beat": 0.5,
	"exceed": 0.5, "expansion": 0.4, "profit": 0.3, "dividend": 0.4,
	"increase": 0.3, "success": 0.4, "gain": 0.4, "partnership": 0.3,
	"acquires": 0.3, "launch": 0.3, "raises": 0.4, "innovation": 0.3,
}

var negativeWords = map[string]float64{
	"bearish": 0.7, "crash": 0.8, "plunge": 0.7, "slump": 0.6,
	"negative": 0.4, "downgrade": 0.6, "underperform": 0.6,
	"weak": 0.4, "decline": 0.5, "loss": 0.4, "decrease": 0.3,
	"selloff": 0.7, "drop": 0.4, "fail": 0.5, "layoff": 0.6,
	"default": 0.7, "fraud": 0.8, "lawsuit": 0.6, "investigation": 0.5,
	"miss": 0.5, "warning": 0.5, "concern": 0.3, "bankrupt": 0.9,
	"recall": 0.4, "fine": 0.3, "breach": 0.6,
}

// ScoreText returns a sentiment score for a piece of text.
// Score ranges from -1.0 (very negative) to +1.0 (very positive).
func ScoreText(text string) (score float64, confidence float64) {
	lower := strings.ToLower(text)

	posScore := 0.0
	negScore := 0.0
	matches := 0

	for word, weight := range positiveWords {
		if strings.Contains(lower, word) {
			posScore += weight
			matches++
		}
	}

	for word, weight := range negativeWords {
		if strings.Contains(lower, word) {
			negScore += weight
			matches++
		}
	}

	total := posScore + negScore
	if matches == 0 || total == 0 {
		return 0, 0.1 // no signal
	}

	// Net score normalized to -1..+1.
	score = (posScore - negScore) / total

	// Confidence based on number of keyword matches.
	confidence = math.Min(float64(matches)*0.15+0.2, 0.85)

	return score, confidence
}

// Label maps a score to positive, negative or neutral.
func Label(score float64) string {
	switch {
	case score > labelThreshold:
		return LabelPositive
	case score < -labelThreshold:
		return LabelNegative
	default:
		return LabelNeutral
	}
}

// ScoreArticle fills the sentiment fields of an article in place and
// returns the confidence of the score.
func ScoreArticle(article *models.NewsArticle) float64 {
	text := article.Title
	if article.Description != "" {
		text += " " + article.Description
	}

	score, confidence := ScoreText(text)
	article.SentimentScore = score
	article.Sentiment = Label(score)
	return confidence
}

// Summary is the aggregate sentiment over a set of articles.
type Summary struct {
	Score      float64 `json:"score"`
	Confidence float64 `json:"confidence"`
	Label      string  `json:"label"`
	Positive   int     `json:"positive"`
	Negative   int     `json:"negative"`
	Neutral    int     `json:"neutral"`
}

// Aggregate scores every article (in place) and computes a time-weighted
// aggregate. Recent articles dominate: weight halves every 24 hours.
func Aggregate(articles []models.NewsArticle, now time.Time) Summary {
	if len(articles) == 0 {
		return Summary{Label: LabelNeutral}
	}

	var sum Summary
	weightedSum := 0.0
	totalWeight := 0.0
	confSum := 0.0

	for i := range articles {
		a := &articles[i]
		conf := ScoreArticle(a)

		switch a.Sentiment {
		case LabelPositive:
			sum.Positive++
		case LabelNegative:
			sum.Negative++
		default:
			sum.Neutral++
		}

		age := 0.0
		if !a.PublishedAt.IsZero() {
			age = math.Max(now.Sub(a.PublishedAt).Hours(), 0)
		}
		timeWeight := math.Exp(-0.693 * age / 24) // ln(2) * t/24
		w := timeWeight * conf

		weightedSum += a.SentimentScore * w
		totalWeight += w
		confSum += conf
	}

	if totalWeight > 0 {
		sum.Score = weightedSum / totalWeight
	}
	sum.Confidence = confSum / float64(len(articles))
	sum.Label = Label(sum.Score)
	return sum
}
