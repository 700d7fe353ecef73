package verifier

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/Farx1/esilvchatbot/backend/go/internal/config"
	"github.com/Farx1/esilvchatbot/backend/go/internal/knowledge/keywords"
	"github.com/Farx1/esilvchatbot/backend/go/internal/models"
	pkghttp "github.com/Farx1/esilvchatbot/backend/go/pkg/http"
	"github.com/Farx1/esilvchatbot/backend/go/pkg/logger"
	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"golang.org/x/net/html"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

const (
	maxPageBytes   = 4 << 20
	excerptLimit   = 200
	deepScrapeJobs = 2
)

// SiteVerifier 抓取学校官网：新闻类问题读取新闻列表并深度抓取文章，
// 其他问题使用站内搜索页。
type SiteVerifier struct {
	cfg     config.VerifierConfig
	client  *pkghttp.Client
	limiter *rate.Limiter
	logger  *logger.Logger
}

var _ Verifier = (*SiteVerifier)(nil)

// NewSiteVerifier 创建 SiteVerifier。client 负责 User-Agent 和熔断。
func NewSiteVerifier(cfg config.VerifierConfig, client *pkghttp.Client, l *logger.Logger) *SiteVerifier {
	limit := rate.Inf
	if interval := config.MustDuration(cfg.CrawlInterval, 500*time.Millisecond); interval > 0 {
		limit = rate.Every(interval)
	}
	return &SiteVerifier{
		cfg:     cfg,
		client:  client,
		limiter: rate.NewLimiter(limit, 1),
		logger:  l,
	}
}

func (s *SiteVerifier) Verify(ctx context.Context, req Request) ([]models.VerifiedCandidate, error) {
	if IsNewsQuery(req.Query) {
		return s.news(ctx, req.AsOf)
	}
	return s.search(ctx, req.Query)
}

func (s *SiteVerifier) fetch(ctx context.Context, pageURL string) ([]byte, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return s.client.GetBody(ctx, pageURL, maxPageBytes)
}

func (s *SiteVerifier) resolve(ref string) string {
	base, err := url.Parse(s.cfg.BaseURL)
	if err != nil {
		return ref
	}
	u, err := base.Parse(ref)
	if err != nil {
		return ref
	}
	return u.String()
}

// ---------- 新闻 ----------

func (s *SiteVerifier) news(ctx context.Context, asOf time.Time) ([]models.VerifiedCandidate, error) {
	listURL := s.resolve(s.cfg.NewsPath)
	body, err := s.fetch(ctx, listURL)
	if err != nil {
		return nil, unavailable("news listing: %v", err)
	}
	items, err := s.parseNewsListing(body, asOf)
	if err != nil {
		return nil, unavailable("parse news listing: %v", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(deepScrapeJobs)
	for i := range items {
		item := &items[i]
		g.Go(func() error {
			content, err := s.article(gctx, item.URL)
			if err != nil {
				// 保留列表页的摘要
				s.logger.WithError(err).WithPayload(map[string]interface{}{"url": item.URL}).Debug("Deep scrape failed, keeping excerpt")
				return nil
			}
			if content != "" {
				item.Content = content
				item.Confidence = s.cfg.ArticleConfidence
			}
			return nil
		})
	}
	_ = g.Wait()
	return items, nil
}

var genericTitle = regexp.MustCompile(`(?i)^(en savoir plus|demandez|nos brochures|contactez|télécharger|événement)`)

// parseNewsListing 解析新闻列表中的 post_wrapper 块。
func (s *SiteVerifier) parseNewsListing(body []byte, asOf time.Time) ([]models.VerifiedCandidate, error) {
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	var out []models.VerifiedCandidate
	for _, block := range findAll(doc, func(n *html.Node) bool { return hasClass(n, "post_wrapper") }) {
		if len(out) >= s.cfg.MaxArticles {
			break
		}
		item, ok := s.parseNewsBlock(block, asOf)
		if !ok {
			continue
		}
		out = append(out, item)
	}
	return out, nil
}

func (s *SiteVerifier) parseNewsBlock(block *html.Node, asOf time.Time) (models.VerifiedCandidate, bool) {
	var item models.VerifiedCandidate

	day, month, year := classText(block, "date"), classText(block, "month"), classText(block, "year")
	if day != "" && month != "" && year != "" {
		item.Date = day + " " + month + " " + year
	} else if !asOf.IsZero() {
		item.Date = asOf.Format("02/01/2006")
	}

	if h5 := findFirst(block, func(n *html.Node) bool { return n.Type == html.ElementNode && n.Data == "h5" }); h5 != nil {
		if a := findFirst(h5, isTag("a")); a != nil {
			item.Title = collapse(attr(a, "title"))
			if item.Title == "" {
				item.Title = collapse(textOf(a))
			}
			if href := attr(a, "href"); href != "" {
				item.URL = s.resolve(href)
			}
		}
	}
	if item.URL == "" {
		item.URL = s.resolve(s.cfg.NewsPath)
	}
	if len([]rune(item.Title)) <= 20 || genericTitle.MatchString(item.Title) {
		return item, false
	}

	if excerpt := findFirst(block, func(n *html.Node) bool { return hasClass(n, "post_excerpt") }); excerpt != nil {
		if p := findFirst(excerpt, isTag("p")); p != nil {
			item.Content = truncate(collapse(textOf(p)), excerptLimit)
		}
	}
	if item.Content == "" {
		item.Content = fmt.Sprintf("Actualité ESILV du %s: %s.", item.Date, item.Title)
	}

	for _, a := range findAll(block, func(n *html.Node) bool { return isTag("a")(n) && attr(n, "rel") == "tag" }) {
		if tag := collapse(textOf(a)); tag != "" {
			item.Tags = append(item.Tags, tag)
		}
	}
	item.Confidence = s.cfg.ExcerptConfidence
	return item, true
}

// article 取文章页前几个足够长的段落。
func (s *SiteVerifier) article(ctx context.Context, articleURL string) (string, error) {
	body, err := s.fetch(ctx, articleURL)
	if err != nil {
		return "", err
	}
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	var paragraphs []string
	for _, p := range findAll(doc, isTag("p")) {
		text := collapse(textOf(p))
		if len([]rune(text)) > s.cfg.MinParagraphLen {
			paragraphs = append(paragraphs, text)
		}
		if len(paragraphs) == s.cfg.DeepParagraphs {
			break
		}
	}
	return truncate(strings.Join(paragraphs, " "), s.cfg.ArticleCharLimit), nil
}

// ---------- 站内搜索 ----------

var (
	mdLink      = regexp.MustCompile(`!?\[([^\]]*)\]\([^)]*\)`)
	mdDecor     = regexp.MustCompile("[#*_>`|]+")
	sentenceEnd = regexp.MustCompile(`[.!?]+`)
)

func (s *SiteVerifier) search(ctx context.Context, query string) ([]models.VerifiedCandidate, error) {
	searchURL := s.resolve(s.cfg.SearchPath) + "?q=" + url.QueryEscape(query)
	body, err := s.fetch(ctx, searchURL)
	if err != nil {
		return nil, unavailable("site search: %v", err)
	}
	text, err := pageText(string(body))
	if err != nil {
		return nil, unavailable("convert search page: %v", err)
	}
	content := relevantSentences(text, query, 3, s.cfg.SnippetCharLimit)
	if content == "" {
		return nil, nil
	}
	return []models.VerifiedCandidate{{
		Title:      fmt.Sprintf("Information ESILV sur \"%s\"", query),
		Content:    content,
		URL:        searchURL,
		Confidence: s.cfg.SearchConfidence,
	}}, nil
}

// pageText 把页面转换为 Markdown 后去掉标记，只保留可读文本。
func pageText(page string) (string, error) {
	md, err := htmltomarkdown.ConvertString(page)
	if err != nil {
		return "", err
	}
	md = mdLink.ReplaceAllString(md, "$1")
	md = mdDecor.ReplaceAllString(md, " ")
	return collapse(md), nil
}

// relevantSentences 取前 n 个包含查询词的句子。
func relevantSentences(text, query string, n, limit int) string {
	terms := keywords.Terms(query)
	if len(terms) == 0 {
		return ""
	}
	var picked []string
	for _, sentence := range sentenceEnd.Split(text, -1) {
		sentence = strings.TrimSpace(sentence)
		if sentence == "" {
			continue
		}
		folded := strings.ToLower(keywords.Fold(sentence))
		for _, t := range terms {
			if strings.Contains(folded, t) {
				picked = append(picked, sentence)
				break
			}
		}
		if len(picked) == n {
			break
		}
	}
	return truncate(strings.Join(picked, ". "), limit)
}

// ---------- html helpers ----------

func isTag(name string) func(*html.Node) bool {
	return func(n *html.Node) bool { return n.Type == html.ElementNode && n.Data == name }
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func hasClass(n *html.Node, class string) bool {
	if n.Type != html.ElementNode {
		return false
	}
	for _, c := range strings.Fields(attr(n, "class")) {
		if c == class {
			return true
		}
	}
	return false
}

func findAll(root *html.Node, match func(*html.Node) bool) []*html.Node {
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if match(n) {
			out = append(out, n)
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return out
}

func findFirst(root *html.Node, match func(*html.Node) bool) *html.Node {
	if all := findAll(root, match); len(all) > 0 {
		return all[0]
	}
	return nil
}

func classText(root *html.Node, class string) string {
	if n := findFirst(root, func(n *html.Node) bool { return hasClass(n, class) }); n != nil {
		return collapse(textOf(n))
	}
	return ""
}

// textOf 拼接节点下的文本，跳过 script 和 style。
func textOf(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && (n.Data == "script" || n.Data == "style") {
			return
		}
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
			sb.WriteString(" ")
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return sb.String()
}
