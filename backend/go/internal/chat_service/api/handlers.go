package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Farx1/esilvchatbot/backend/go/internal/chat_service/service"
	cstore "github.com/Farx1/esilvchatbot/backend/go/internal/chat_service/store"
	"github.com/Farx1/esilvchatbot/backend/go/internal/knowledge/audit"
	"github.com/Farx1/esilvchatbot/backend/go/internal/knowledge/orchestrator"
	"github.com/Farx1/esilvchatbot/backend/go/internal/knowledge/seed"
	"github.com/Farx1/esilvchatbot/backend/go/internal/knowledge/store"
	"github.com/Farx1/esilvchatbot/backend/go/internal/knowledge/verifier"
	"github.com/Farx1/esilvchatbot/backend/go/internal/models"
	"github.com/Farx1/esilvchatbot/backend/go/internal/observability"
	"github.com/Farx1/esilvchatbot/backend/go/pkg/logger"
)

// defaultListLimit 是知识库列表未指定 limit 时的条数。
const defaultListLimit = 50

// Scraper 是手动触发的实时核实，由 orchestrator.Orchestrator 实现。
type Scraper interface {
	Scrape(ctx context.Context, req orchestrator.ScrapeRequest) (*orchestrator.ScrapeResult, error)
}

// API provides handlers for the chat service.
type API struct {
	chat      *service.ChatService
	knowledge *service.KnowledgeService
	forms     *service.FormService
	scraper   Scraper
	audit     audit.Log
	health    *service.HealthService
	metrics   *observability.Metrics
	logger    *logger.Logger
}

// NewAPI creates a new API handler. metrics 可以为 nil。
func NewAPI(chat *service.ChatService, knowledge *service.KnowledgeService, forms *service.FormService, scraper Scraper,
	log audit.Log, health *service.HealthService, metrics *observability.Metrics, l *logger.Logger) *API {
	return &API{chat: chat, knowledge: knowledge, forms: forms, scraper: scraper, audit: log, health: health, metrics: metrics, logger: l}
}

// statusOf 把领域错误映射为 HTTP 状态码。
func statusOf(err error) int {
	switch {
	case errors.Is(err, service.ErrEmptyMessage),
		errors.Is(err, service.ErrInvalidFeedback),
		errors.Is(err, orchestrator.ErrEmptyQuery),
		errors.Is(err, models.ErrInvalidFact),
		errors.Is(err, models.ErrInvalidSubmission),
		errors.Is(err, audit.ErrInvalidEntry):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrFactNotFound),
		errors.Is(err, cstore.ErrMessageNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrStoreUnavailable),
		errors.Is(err, verifier.ErrVerificationUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (a *API) fail(c *gin.Context, err error) {
	status := statusOf(err)
	if status >= http.StatusInternalServerError {
		a.logger.WithError(err).WithRequest(models.RequestInfo{Method: c.Request.Method, Path: c.FullPath(), Status: status}).Error("Request failed")
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": msg})
}

// queryInt 读取整数查询参数，缺省时返回 def。
func queryInt(c *gin.Context, name string, def int) (int, bool) {
	raw := c.Query(name)
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		badRequest(c, "invalid "+name)
		return 0, false
	}
	return n, true
}

// ChatHandler handles POST /api/v1/chat.
func (a *API) ChatHandler(c *gin.Context) {
	var req service.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request payload")
		return
	}
	resp, err := a.chat.Chat(c.Request.Context(), req)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// ListFactsHandler handles GET /api/v1/knowledge.
func (a *API) ListFactsHandler(c *gin.Context) {
	limit, ok := queryInt(c, "limit", defaultListLimit)
	if !ok {
		return
	}
	offset, ok := queryInt(c, "offset", 0)
	if !ok {
		return
	}
	facts, err := a.knowledge.Search(c.Request.Context(), c.Query("search"), store.ListOptions{
		Category: c.Query("category"),
		Limit:    limit,
		Offset:   offset,
	})
	if err != nil {
		a.fail(c, err)
		return
	}
	if facts == nil {
		facts = []*models.Fact{}
	}
	c.JSON(http.StatusOK, gin.H{"facts": facts, "count": len(facts)})
}

func (a *API) GetFactHandler(c *gin.Context) {
	f, err := a.knowledge.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, f)
}

func (a *API) CreateFactHandler(c *gin.Context) {
	var f models.Fact
	if err := c.ShouldBindJSON(&f); err != nil {
		badRequest(c, "Invalid request payload")
		return
	}
	// 这些字段由服务端生成
	f.ID, f.ContentHash = "", ""
	created, err := a.knowledge.Create(c.Request.Context(), &f)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

func (a *API) UpdateFactHandler(c *gin.Context) {
	var patch models.FactPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		badRequest(c, "Invalid request payload")
		return
	}
	updated, err := a.knowledge.Update(c.Request.Context(), c.Param("id"), patch)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

func (a *API) DeleteFactHandler(c *gin.Context) {
	if err := a.knowledge.Delete(c.Request.Context(), c.Param("id")); err != nil {
		a.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (a *API) BulkCreateHandler(c *gin.Context) {
	// 与种子文件同一格式，缺省置信度在 Models 中补全
	var payload seed.File
	if err := c.ShouldBindJSON(&payload); err != nil || len(payload.Facts) == 0 {
		badRequest(c, "facts are required")
		return
	}
	facts, err := payload.Models()
	if err != nil {
		a.fail(c, err)
		return
	}
	rep, err := a.knowledge.BulkCreate(c.Request.Context(), facts)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, rep)
}

func (a *API) BulkDeleteHandler(c *gin.Context) {
	var payload struct {
		IDs []string `json:"ids"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil || len(payload.IDs) == 0 {
		badRequest(c, "ids are required")
		return
	}
	n, err := a.knowledge.BulkDelete(c.Request.Context(), payload.IDs)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": n})
}

func (a *API) StatsHandler(c *gin.Context) {
	stats, err := a.knowledge.Stats(c.Request.Context())
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// FindConflictsHandler handles POST /api/v1/knowledge/find-conflicts.
func (a *API) FindConflictsHandler(c *gin.Context) {
	var payload struct {
		Text string `json:"text"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil || payload.Text == "" {
		badRequest(c, "text is required")
		return
	}
	matches, err := a.knowledge.FindConflicts(c.Request.Context(), payload.Text)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"matches": matches})
}

// ListUpdatesHandler handles GET /api/v1/rag-updates.
func (a *API) ListUpdatesHandler(c *gin.Context) {
	limit, ok := queryInt(c, "limit", audit.DefaultListLimit)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	entries, err := a.audit.List(ctx, audit.Filter{
		Type:    models.UpdateType(c.Query("type")),
		Trigger: models.Trigger(c.Query("trigger")),
		Limit:   limit,
	})
	if err != nil {
		a.fail(c, err)
		return
	}
	stats, err := a.audit.Stats(ctx)
	if err != nil {
		a.fail(c, err)
		return
	}
	if entries == nil {
		entries = []*models.AuditEntry{}
	}
	c.JSON(http.StatusOK, gin.H{"updates": entries, "stats": stats})
}

// AppendUpdateHandler handles POST /api/v1/rag-updates. 没有指定来源时记为 manual。
func (a *API) AppendUpdateHandler(c *gin.Context) {
	var entry models.AuditEntry
	if err := c.ShouldBindJSON(&entry); err != nil {
		badRequest(c, "Invalid request payload")
		return
	}
	entry.ID, entry.CreatedAt = "", time.Time{}
	if entry.TriggeredBy == "" {
		entry.TriggeredBy = models.TriggerManual
	}
	if err := a.audit.Append(c.Request.Context(), &entry); err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, entry)
}

// ScraperHandler handles POST /api/v1/scraper.
func (a *API) ScraperHandler(c *gin.Context) {
	var req orchestrator.ScrapeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request payload")
		return
	}
	res, err := a.scraper.Scrape(c.Request.Context(), req)
	if err != nil {
		a.fail(c, err)
		return
	}
	body := gin.H{"query": res.Query, "results": res.Candidates, "count": res.Count, "savedToKB": res.Saved != nil}
	if res.Saved != nil {
		body["newArticles"] = len(res.Saved.Inserted)
		body["existingArticles"] = res.Saved.Duplicates
	}
	c.JSON(http.StatusOK, body)
}

// FormSubmitHandler handles POST /api/v1/form-submit.
func (a *API) FormSubmitHandler(c *gin.Context) {
	var sub models.FormSubmission
	if err := c.ShouldBindJSON(&sub); err != nil {
		badRequest(c, "Invalid request payload")
		return
	}
	sub.ID, sub.Status, sub.CreatedAt = "", "", time.Time{}
	saved, err := a.forms.Submit(c.Request.Context(), &sub)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "submissionId": saved.ID, "message": service.FormSubmitMessage})
}

// ListSubmissionsHandler handles GET /api/v1/form-submissions.
func (a *API) ListSubmissionsHandler(c *gin.Context) {
	limit, ok := queryInt(c, "limit", defaultListLimit)
	if !ok {
		return
	}
	subs, err := a.forms.List(c.Request.Context(), limit)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"submissions": subs, "count": len(subs)})
}

// FeedbackHandler handles POST /api/v1/feedback.
func (a *API) FeedbackHandler(c *gin.Context) {
	var req service.FeedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request payload")
		return
	}
	fb, err := a.chat.Feedback(c.Request.Context(), req)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "feedback": fb})
}

// ListConversationsHandler handles GET /api/v1/admin/conversations.
func (a *API) ListConversationsHandler(c *gin.Context) {
	limit, ok := queryInt(c, "limit", defaultListLimit)
	if !ok {
		return
	}
	recs, err := a.chat.Conversations(c.Request.Context(), limit)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversations": recs, "total": len(recs)})
}

// HealthHandler handles GET /health.
func (a *API) HealthHandler(c *gin.Context) {
	rep := a.health.Check(c.Request.Context())
	status := http.StatusOK
	if rep.Status == service.StatusUnhealthy {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, rep)
}
