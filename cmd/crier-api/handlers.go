package main

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	crier "github.com/matthewjhunter/crier"
	"github.com/matthewjhunter/crier/internal/logging"
	"github.com/matthewjhunter/crier/internal/scheduler"
)

// handlers holds dependencies for all HTTP handler methods.
type handlers struct {
	engine *crier.Engine
	log    logging.Logger
}

// --- response helpers ---

func ok(c *gin.Context, status int, body gin.H) {
	if body == nil {
		body = gin.H{}
	}
	body["success"] = true
	c.JSON(status, body)
}

// fail maps engine errors onto status codes. Unclassified errors are logged
// and hidden behind a generic message.
func (h *handlers) fail(c *gin.Context, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		h.log.WithError(err).WithField("path", c.FullPath()).Error("request failed")
		msg = "internal server error"
	}
	c.AbortWithStatusJSON(status, gin.H{"error": msg})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, crier.ErrInvalid):
		return http.StatusBadRequest
	case errors.Is(err, crier.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, crier.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, crier.ErrBlockedContent), errors.Is(err, crier.ErrNearDuplicate):
		return http.StatusUnprocessableEntity
	case errors.Is(err, crier.ErrGenerationUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func badRequest(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": msg})
}

func pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		badRequest(c, "invalid id")
		return 0, false
	}
	return id, true
}

// page reads limit/offset query parameters with a default and a cap.
func page(c *gin.Context, def int) (limit, offset int) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(def)))
	if err != nil || limit <= 0 {
		limit = def
	}
	limit = min(limit, 500)
	offset, err = strconv.Atoi(c.DefaultQuery("offset", "0"))
	if err != nil || offset < 0 {
		offset = 0
	}
	return limit, offset
}

func (h *handlers) health(c *gin.Context) {
	if err := h.engine.Ping(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// --- config ---

func (h *handlers) getConfig(c *gin.Context) {
	cfg, err := h.engine.GetAutonomyConfig(c.Request.Context(), tenantFrom(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"config": cfg})
}

func (h *handlers) putConfig(c *gin.Context) {
	var body crier.AutonomyConfig
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, "invalid JSON body: "+err.Error())
		return
	}
	body.TenantID = tenantFrom(c)
	cfg, err := h.engine.UpdateAutonomyConfig(c.Request.Context(), body)
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"config": cfg})
}

func (h *handlers) eligibility(c *gin.Context) {
	el, err := h.engine.Eligibility(c.Request.Context(), tenantFrom(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"eligibility": el})
}

// --- generation and publishing ---

func (h *handlers) generate(c *gin.Context) {
	var req crier.GenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid JSON body: "+err.Error())
		return
	}
	item, err := h.engine.Generate(c.Request.Context(), tenantFrom(c), req)
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, http.StatusCreated, gin.H{"item": item})
}

// post publishes immediately. A platform failure is a 502 carrying the
// dispatch result.
func (h *handlers) post(c *gin.Context) {
	var req crier.PostRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid JSON body: "+err.Error())
		return
	}
	res, err := h.engine.Post(c.Request.Context(), tenantFrom(c), req)
	if err != nil {
		h.fail(c, err)
		return
	}
	if res.Outcome != scheduler.OutcomePosted {
		c.JSON(http.StatusBadGateway, gin.H{"error": res.Error, "result": res})
		return
	}
	ok(c, http.StatusOK, gin.H{"result": res})
}

// --- queue ---

func (h *handlers) listQueue(c *gin.Context) {
	limit, offset := page(c, 50)
	items, err := h.engine.ListQueue(c.Request.Context(), tenantFrom(c), crier.QueueStatus(c.Query("status")), limit, offset)
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"items": items, "count": len(items)})
}

func (h *handlers) enqueue(c *gin.Context) {
	var req crier.EnqueueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid JSON body: "+err.Error())
		return
	}
	item, err := h.engine.Enqueue(c.Request.Context(), tenantFrom(c), req)
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, http.StatusCreated, gin.H{"item": item})
}

func (h *handlers) getQueueItem(c *gin.Context) {
	id, valid := pathID(c)
	if !valid {
		return
	}
	item, err := h.engine.GetQueueItem(c.Request.Context(), tenantFrom(c), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"item": item})
}

func (h *handlers) approve(c *gin.Context) {
	id, valid := pathID(c)
	if !valid {
		return
	}
	if err := h.engine.Approve(c.Request.Context(), tenantFrom(c), id); err != nil {
		h.fail(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"id": id, "status": crier.StatusApproved})
}

func (h *handlers) requeue(c *gin.Context) {
	id, valid := pathID(c)
	if !valid {
		return
	}
	item, err := h.engine.Requeue(c.Request.Context(), tenantFrom(c), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, http.StatusCreated, gin.H{"item": item})
}

func (h *handlers) deleteQueueItem(c *gin.Context) {
	id, valid := pathID(c)
	if !valid {
		return
	}
	if err := h.engine.DeleteQueueItem(c.Request.Context(), tenantFrom(c), id); err != nil {
		h.fail(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"id": id})
}

// --- reads ---

func (h *handlers) listPosted(c *gin.Context) {
	limit, offset := page(c, 50)
	posts, err := h.engine.ListPosted(c.Request.Context(), tenantFrom(c), limit, offset)
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"posts": posts, "count": len(posts)})
}

func (h *handlers) listLogs(c *gin.Context) {
	limit, offset := page(c, 100)
	logs, err := h.engine.ListLogs(c.Request.Context(), tenantFrom(c), limit, offset)
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"logs": logs, "count": len(logs)})
}

func (h *handlers) dashboard(c *gin.Context) {
	d, err := h.engine.Dashboard(c.Request.Context(), tenantFrom(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"dashboard": d})
}

func (h *handlers) performance(c *gin.Context) {
	limit, _ := page(c, 10)
	rep, err := h.engine.Performance(c.Request.Context(), tenantFrom(c), limit)
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"performance": rep})
}

// --- knowledge ---

type knowledgeBody struct {
	Category string `json:"category"`
	Key      string `json:"key"`
	Value    string `json:"value"`
	Priority int    `json:"priority"`
	Active   *bool  `json:"active"`
}

func (b knowledgeBody) entry(tenantID string, id int64) crier.KnowledgeEntry {
	active := b.Active == nil || *b.Active
	return crier.KnowledgeEntry{
		ID:       id,
		TenantID: tenantID,
		Category: strings.TrimSpace(b.Category),
		Key:      strings.TrimSpace(b.Key),
		Value:    b.Value,
		Priority: b.Priority,
		Active:   active,
	}
}

func (h *handlers) listKnowledge(c *gin.Context) {
	activeOnly := c.Query("active") == "true"
	entries, err := h.engine.ListKnowledge(c.Request.Context(), tenantFrom(c), activeOnly)
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"entries": entries, "count": len(entries)})
}

func (h *handlers) addKnowledge(c *gin.Context) {
	var body knowledgeBody
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, "invalid JSON body: "+err.Error())
		return
	}
	entry, err := h.engine.AddKnowledge(c.Request.Context(), body.entry(tenantFrom(c), 0))
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, http.StatusCreated, gin.H{"entry": entry})
}

func (h *handlers) getKnowledge(c *gin.Context) {
	id, valid := pathID(c)
	if !valid {
		return
	}
	entry, err := h.engine.GetKnowledge(c.Request.Context(), tenantFrom(c), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"entry": entry})
}

func (h *handlers) updateKnowledge(c *gin.Context) {
	id, valid := pathID(c)
	if !valid {
		return
	}
	var body knowledgeBody
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, "invalid JSON body: "+err.Error())
		return
	}
	entry, err := h.engine.UpdateKnowledge(c.Request.Context(), body.entry(tenantFrom(c), id))
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"entry": entry})
}

func (h *handlers) deleteKnowledge(c *gin.Context) {
	id, valid := pathID(c)
	if !valid {
		return
	}
	if err := h.engine.DeleteKnowledge(c.Request.Context(), tenantFrom(c), id); err != nil {
		h.fail(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"id": id})
}

func (h *handlers) resetKnowledge(c *gin.Context) {
	n, err := h.engine.ResetKnowledge(c.Request.Context(), tenantFrom(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"seeded": n})
}

func (h *handlers) importKnowledge(c *gin.Context) {
	var body struct {
		Entries []crier.KnowledgeImport `json:"entries"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, "invalid JSON body: "+err.Error())
		return
	}
	n, err := h.engine.ImportKnowledge(c.Request.Context(), tenantFrom(c), body.Entries)
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"imported": n})
}

func (h *handlers) importKnowledgeFeed(c *gin.Context) {
	var body struct {
		URL      string `json:"url"`
		Category string `json:"category"`
		Limit    int    `json:"limit"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, "invalid JSON body: "+err.Error())
		return
	}
	if body.URL == "" {
		badRequest(c, "url is required")
		return
	}
	n, err := h.engine.ImportKnowledgeFeed(c.Request.Context(), tenantFrom(c), body.URL, body.Category, body.Limit)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	ok(c, http.StatusOK, gin.H{"imported": n})
}

// --- prompts ---

func (h *handlers) getPrompt(c *gin.Context) {
	tmpl, err := h.engine.GetPrompt(c.Request.Context(), tenantFrom(c), c.Param("type"))
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"content_type": c.Param("type"), "template": tmpl})
}

func (h *handlers) putPrompt(c *gin.Context) {
	var body struct {
		Template    string   `json:"template"`
		Temperature *float64 `json:"temperature"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, "invalid JSON body: "+err.Error())
		return
	}
	err := h.engine.SetPromptOverride(c.Request.Context(), crier.PromptOverride{
		TenantID:    tenantFrom(c),
		ContentType: c.Param("type"),
		Template:    body.Template,
		Temperature: body.Temperature,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"content_type": c.Param("type")})
}

func (h *handlers) deletePrompt(c *gin.Context) {
	if err := h.engine.DeletePromptOverride(c.Request.Context(), tenantFrom(c), c.Param("type")); err != nil {
		h.fail(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"content_type": c.Param("type")})
}

// --- platforms ---

func (h *handlers) listPlatforms(c *gin.Context) {
	creds, err := h.engine.ListPlatforms(c.Request.Context(), tenantFrom(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"platforms": creds, "supported": h.engine.SupportedPlatforms()})
}

func (h *handlers) connectPlatform(c *gin.Context) {
	var req crier.ConnectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid JSON body: "+err.Error())
		return
	}
	cred, err := h.engine.ConnectPlatform(c.Request.Context(), tenantFrom(c), req)
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, http.StatusCreated, gin.H{"platform": cred})
}

func (h *handlers) disconnectPlatform(c *gin.Context) {
	name := c.Param("platform")
	if err := h.engine.DisconnectPlatform(c.Request.Context(), tenantFrom(c), name); err != nil {
		h.fail(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"platform": name})
}
