// Package news implements the news adapter: NewsAPI "everything" search with
// a Google News RSS fallback. Every article is scored for sentiment.
// Docs: https://newsapi.org/docs/endpoints/everything
package news

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"

	"github.com/seenimoa/diligence/internal/analysis/sentiment"
	"github.com/seenimoa/diligence/internal/infra"
	"github.com/seenimoa/diligence/internal/provider"
	"github.com/seenimoa/diligence/pkg/models"
	"github.com/seenimoa/diligence/pkg/utils"
)

const (
	providerName = "news"

	// MaxArticles caps the articles kept per company.
	MaxArticles = 20

	sourceNewsAPI = "newsapi"
	sourceRSS     = "rss"
)

// newsAPIResponse is the /everything payload. Articles is a pointer so a
// missing array can be told apart from an empty one.
type newsAPIResponse struct {
	Status       string            `json:"status"`
	Code         string            `json:"code"`
	Message      string            `json:"message"`
	TotalResults int               `json:"totalResults"`
	Articles     *[]newsAPIArticle `json:"articles"`
}

type newsAPIArticle struct {
	Source struct {
		Name string `json:"name"`
	} `json:"source"`
	Title       string `json:"title"`
	Description string `json:"description"`
	URL         string `json:"url"`
	PublishedAt string `json:"publishedAt"`
}

// Adapter is the news provider.
type Adapter struct {
	provider.BaseAdapter
	rssURL string
	parser *gofeed.Parser
	now    func() time.Time
}

var _ provider.Adapter = (*Adapter)(nil)

// New creates the news adapter. rssURL is a printf template with one %s for
// the escaped query; empty disables the RSS fallback.
func New(s provider.Settings, deps provider.Deps, rssURL string) (*Adapter, error) {
	base, err := provider.NewBaseAdapter(provider.ProviderInfo{
		Name:        providerName,
		Description: "NewsAPI article search with Google News RSS fallback, keyword sentiment scored",
		Website:     "https://newsapi.org",
		Credentials: []provider.ProviderCredential{{
			Name:        "api_key",
			Description: "NewsAPI key (optional; RSS is used without it)",
			Required:    false,
			EnvVar:      "NEWS_API_KEY",
		}},
	}, s, deps.Cache, deps.Logger)
	if err != nil {
		return nil, err
	}
	return &Adapter{
		BaseAdapter: base,
		rssURL:      rssURL,
		parser:      gofeed.NewParser(),
		now:         time.Now,
	}, nil
}

// Fetch returns a *models.NewsDigest for company.
func (a *Adapter) Fetch(ctx context.Context, company string) provider.Result {
	return provider.Run(ctx, &a.BaseAdapter, company, func(ctx context.Context) (*models.NewsDigest, error) {
		return a.fetch(ctx, company)
	})
}

func (a *Adapter) fetch(ctx context.Context, company string) (*models.NewsDigest, error) {
	var (
		articles []models.NewsArticle
		total    int
		source   string
	)
	if a.Settings().APIKey != "" {
		var err error
		articles, total, err = a.searchNewsAPI(ctx, company)
		if err != nil {
			return nil, err
		}
		source = sourceNewsAPI
	}
	if len(articles) == 0 && a.rssURL != "" {
		rss, err := a.searchRSS(ctx, company)
		if err != nil {
			if source == "" {
				return nil, err
			}
			a.Logger().Debug().Str("provider", providerName).Str("company", company).Err(err).Msg("rss fallback failed")
		} else {
			articles, total, source = rss, len(rss), sourceRSS
		}
	}
	if len(articles) == 0 {
		return nil, fmt.Errorf("%w: no articles about %q", provider.ErrNoMatch, company)
	}

	sort.SliceStable(articles, func(i, j int) bool {
		return articles[i].PublishedAt.After(articles[j].PublishedAt)
	})
	if len(articles) > MaxArticles {
		articles = articles[:MaxArticles]
	}

	summary := sentiment.Aggregate(articles, a.now())
	return &models.NewsDigest{
		Query:         company,
		Articles:      articles,
		TotalResults:  total,
		OverallScore:  summary.Score,
		OverallLabel:  summary.Label,
		PositiveCount: summary.Positive,
		NegativeCount: summary.Negative,
		NeutralCount:  summary.Neutral,
		Source:        source,
	}, nil
}

func (a *Adapter) searchNewsAPI(ctx context.Context, company string) ([]models.NewsArticle, int, error) {
	params := url.Values{
		"q":        {`"` + company + `"`},
		"sortBy":   {"publishedAt"},
		"language": {"en"},
		"pageSize": {fmt.Sprint(MaxArticles)},
	}
	u := strings.TrimRight(a.Settings().BaseURL, "/") + "/everything?" + params.Encode()
	headers := map[string]string{"X-Api-Key": a.Settings().APIKey, "Accept": "application/json"}

	var resp newsAPIResponse
	if err := infra.FetchJSON(ctx, u, headers, &resp); err != nil {
		return nil, 0, fmt.Errorf("newsapi: %w", err)
	}
	if resp.Status == "error" {
		return nil, 0, statusError(resp.Code, resp.Message)
	}
	if resp.Articles == nil {
		return nil, 0, fmt.Errorf("%w: newsapi response without articles", provider.ErrMalformed)
	}

	out := make([]models.NewsArticle, 0, len(*resp.Articles))
	for _, art := range *resp.Articles {
		if art.Title == "" || art.Title == "[Removed]" {
			continue
		}
		out = append(out, models.NewsArticle{
			Title:       strings.TrimSpace(art.Title),
			Description: cleanHTML(art.Description),
			URL:         art.URL,
			Source:      art.Source.Name,
			PublishedAt: utils.ParseProviderDate(art.PublishedAt),
		})
	}
	return out, resp.TotalResults, nil
}

func statusError(code, msg string) error {
	switch code {
	case "rateLimited", "maximumResultsReached":
		return fmt.Errorf("%w: %s", provider.ErrRateLimited, msg)
	case "apiKeyInvalid", "apiKeyMissing", "apiKeyDisabled", "apiKeyExhausted":
		return fmt.Errorf("%w: %s", provider.ErrUnauthorized, msg)
	}
	return fmt.Errorf("newsapi %s: %s", code, msg)
}

func (a *Adapter) searchRSS(ctx context.Context, company string) ([]models.NewsArticle, error) {
	u := fmt.Sprintf(a.rssURL, url.QueryEscape(company))
	body, _, err := infra.DoGet(ctx, u, map[string]string{"Accept": "application/rss+xml, application/xml"})
	if err != nil {
		return nil, fmt.Errorf("rss: %w", err)
	}
	defer body.Close()

	feed, err := a.parser.Parse(body)
	if err != nil {
		return nil, &infra.DecodeError{URL: u, Err: fmt.Errorf("%w: %v", provider.ErrMalformed, err)}
	}

	out := make([]models.NewsArticle, 0, len(feed.Items))
	for _, item := range feed.Items {
		art := models.NewsArticle{
			Title:       strings.TrimSpace(item.Title),
			Description: cleanHTML(item.Description),
			URL:         item.Link,
			Source:      feed.Title,
		}
		if item.PublishedParsed != nil {
			art.PublishedAt = *item.PublishedParsed
		}
		// Google News titles end in " - Publisher".
		if i := strings.LastIndex(art.Title, " - "); i > 0 {
			art.Source = art.Title[i+3:]
			art.Title = art.Title[:i]
		}
		out = append(out, art)
	}
	return out, nil
}

// cleanHTML strips HTML tags and collapses whitespace.
func cleanHTML(s string) string {
	if s == "" {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader("<body>" + s + "</body>"))
	if err != nil {
		return s
	}
	return strings.Join(strings.Fields(doc.Text()), " ")
}
