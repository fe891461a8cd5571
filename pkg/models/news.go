package models

import "time"

// NewsArticle is a single news item about a company.
type NewsArticle struct {
	Title          string    `json:"title"`
	Description    string    `json:"description,omitempty"`
	URL            string    `json:"url"`
	Source         string    `json:"source"`
	PublishedAt    time.Time `json:"published_at"`
	SentimentScore float64   `json:"sentiment_score"`
	Sentiment      string    `json:"sentiment,omitempty"` // "positive", "negative", "neutral"
}

// NewsDigest is the normalized output of a news provider.
type NewsDigest struct {
	Query         string        `json:"query"`
	Articles      []NewsArticle `json:"articles"`
	TotalResults  int           `json:"total_results"`
	OverallScore  float64       `json:"overall_score"`
	OverallLabel  string        `json:"overall_label"`
	PositiveCount int           `json:"positive_count"`
	NegativeCount int           `json:"negative_count"`
	NeutralCount  int           `json:"neutral_count"`
	Source        string        `json:"source"` // "newsapi" or "rss"
}
