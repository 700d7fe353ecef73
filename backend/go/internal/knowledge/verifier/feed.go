package verifier

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/Farx1/esilvchatbot/backend/go/internal/config"
	"github.com/Farx1/esilvchatbot/backend/go/internal/knowledge/keywords"
	"github.com/Farx1/esilvchatbot/backend/go/internal/models"
	pkghttp "github.com/Farx1/esilvchatbot/backend/go/pkg/http"
	"github.com/mmcdole/gofeed"
)

// FeedVerifier 读取学校的 RSS/Atom 源。
// 新闻类问题返回最新条目，其他问题只返回标题或摘要包含查询词的条目。
type FeedVerifier struct {
	cfg    config.VerifierConfig
	client *pkghttp.Client
	parser *gofeed.Parser
}

var _ Verifier = (*FeedVerifier)(nil)

func NewFeedVerifier(cfg config.VerifierConfig, client *pkghttp.Client) *FeedVerifier {
	return &FeedVerifier{cfg: cfg, client: client, parser: gofeed.NewParser()}
}

func (f *FeedVerifier) Verify(ctx context.Context, req Request) ([]models.VerifiedCandidate, error) {
	body, err := f.client.GetBody(ctx, f.cfg.FeedURL, maxPageBytes)
	if err != nil {
		return nil, unavailable("feed: %v", err)
	}
	feed, err := f.parser.ParseString(string(body))
	if err != nil {
		return nil, unavailable("parse feed: %v", err)
	}

	items := feed.Items
	sort.SliceStable(items, func(i, j int) bool { return published(items[i]).After(published(items[j])) })

	news := IsNewsQuery(req.Query)
	terms := keywords.Terms(req.Query)

	var out []models.VerifiedCandidate
	for _, it := range items {
		if len(out) >= f.cfg.MaxArticles {
			break
		}
		content := it.Description
		if content == "" {
			content = it.Content
		}
		if text, err := pageText(content); err == nil {
			content = text
		}
		if !news && !matchesAny(it.Title+" "+content, terms) {
			continue
		}
		c := models.VerifiedCandidate{
			Title:      strings.TrimSpace(it.Title),
			Content:    truncate(content, f.cfg.ArticleCharLimit),
			URL:        strings.TrimSpace(it.Link),
			Confidence: f.cfg.ExcerptConfidence,
			Tags:       it.Categories,
		}
		if pub := published(it); !pub.IsZero() {
			c.Date = pub.Format("02/01/2006")
		}
		if c.Title == "" || c.URL == "" {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

func published(it *gofeed.Item) time.Time {
	switch {
	case it.PublishedParsed != nil:
		return *it.PublishedParsed
	case it.UpdatedParsed != nil:
		return *it.UpdatedParsed
	default:
		return time.Time{}
	}
}

func matchesAny(text string, terms []string) bool {
	folded := strings.ToLower(keywords.Fold(text))
	for _, t := range terms {
		if strings.Contains(folded, t) {
			return true
		}
	}
	return false
}
