// Package crier is an autonomous content pipeline: it generates social posts
// from a tenant's knowledge base, queues them for optional approval, publishes
// them to external platforms under per-tenant caps, and collects engagement.
package crier

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"

	"github.com/matthewjhunter/crier/internal/ai"
	"github.com/matthewjhunter/crier/internal/config"
	"github.com/matthewjhunter/crier/internal/engagement"
	"github.com/matthewjhunter/crier/internal/feeds"
	"github.com/matthewjhunter/crier/internal/governor"
	"github.com/matthewjhunter/crier/internal/knowledge"
	"github.com/matthewjhunter/crier/internal/lease"
	"github.com/matthewjhunter/crier/internal/logging"
	"github.com/matthewjhunter/crier/internal/metrics"
	"github.com/matthewjhunter/crier/internal/notify"
	"github.com/matthewjhunter/crier/internal/platform"
	"github.com/matthewjhunter/crier/internal/queue"
	"github.com/matthewjhunter/crier/internal/scheduler"
	"github.com/matthewjhunter/crier/internal/storage"
)

// Engine is the public API for crier's publishing pipeline. Every entry
// point (CLI, HTTP API, MCP server) goes through it.
type Engine struct {
	cfg        *config.Config
	log        logging.Logger
	store      *storage.Store
	knowledge  *knowledge.Service
	fetcher    *feeds.Fetcher
	generator  *ai.Generator
	ollama     *ai.OllamaClient
	queue      *queue.Queue
	registry   *platform.Registry
	governor   *governor.Governor
	dispatcher *scheduler.Dispatcher
	collector  *engagement.Collector
	ledger     *engagement.Ledger
	scheduler  *scheduler.Scheduler
	metrics    *metrics.Metrics
	redis      *goredis.Client
	now        func() time.Time
}

// NewEngine opens the database and wires every component. Nothing contacts
// Ollama or a platform until it is used.
func NewEngine(ec EngineConfig) (*Engine, error) {
	cfg := ec.Config
	if cfg == nil {
		cfg = config.Default()
	}
	log := ec.Logger
	if log == nil {
		log = logging.NewLoggerWithService("crier", cfg.Log.Level)
	}
	now := ec.Now
	if now == nil {
		now = time.Now
	}

	store, err := storage.Open(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	store.SetClock(now)

	e := &Engine{cfg: cfg, log: log, store: store, now: now}
	if err := e.wire(ec); err != nil {
		e.Close()
		return nil, err
	}
	return e, nil
}

func (e *Engine) wire(ec EngineConfig) error {
	cfg := e.cfg

	reg := ec.Registry
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	e.metrics = metrics.New(reg)

	e.knowledge = knowledge.NewService(e.store, e.log)
	e.fetcher = feeds.NewFetcher(nil)

	llm := ec.LLM
	embedder := ec.Embedder
	if llm == nil || (embedder == nil && cfg.Embedding.Model != "") {
		client, err := ai.NewOllamaClient(cfg.Ollama.BaseURL, cfg.Ollama.Model, cfg.Embedding.Model)
		if err != nil {
			return fmt.Errorf("create ollama client: %w", err)
		}
		e.ollama = client
		if llm == nil {
			llm = client
		}
		if embedder == nil && cfg.Embedding.Model != "" {
			embedder = client
		}
	}
	var guard *ai.DuplicateGuard
	if embedder != nil {
		guard = ai.NewDuplicateGuard(embedder, e.store, cfg.Embedding.Threshold, 0)
	}
	e.generator = ai.NewGenerator(llm, e.knowledge, ai.NewPromptLoader(e.store, cfg), guard, cfg.Timeouts.Generation, e.log)

	adapters := ec.Adapters
	if adapters == nil {
		adapters = e.defaultAdapters()
	}
	e.registry = platform.NewRegistry(adapters...)

	e.queue = queue.New(e.store, e.log)
	e.governor = governor.New(e.store)
	e.governor.SetClock(e.now)

	notifier := ec.Notifier
	if notifier == nil {
		multi := notify.Multi{notify.NewLog(e.log)}
		if cfg.Notify.WebhookURL != "" {
			multi = append(multi, notify.NewWebhook(cfg.Notify.WebhookURL, nil))
		}
		notifier = multi
	}

	e.dispatcher = scheduler.NewDispatcher(e.store, e.queue, e.registry, e.metrics, notifier, cfg.Timeouts.Publish, e.log)
	e.dispatcher.SetClock(e.now)
	e.collector = engagement.NewCollector(e.store, e.registry, e.metrics, cfg.Timeouts.Metrics, cfg.Scheduler.EngagementWindow, e.log)
	e.collector.SetClock(e.now)
	e.ledger = engagement.NewLedger(e.store)

	locker := ec.Locker
	if locker == nil {
		var err error
		if locker, err = e.defaultLocker(); err != nil {
			return err
		}
	}

	e.scheduler = scheduler.New(scheduler.Deps{
		Store:      e.store,
		Queue:      e.queue,
		Generator:  e.generator,
		Governor:   e.governor,
		Dispatcher: e.dispatcher,
		Collector:  e.collector,
		Locker:     locker,
		Metrics:    e.metrics,
		Notifier:   notifier,
		Log:        e.log,
	}, scheduler.Options{
		AutoPublishInterval: cfg.Scheduler.AutoPublishInterval,
		FlushInterval:       cfg.Scheduler.FlushInterval,
		EngagementInterval:  cfg.Scheduler.EngagementInterval,
		FlushBatchSize:      cfg.Scheduler.FlushBatchSize,
		Workers:             cfg.Scheduler.Workers,
	})
	e.scheduler.SetClock(e.now)
	return nil
}

func (e *Engine) defaultAdapters() []platform.Adapter {
	pc := e.cfg.Platforms
	client := platform.ClientConfig{Timeout: e.cfg.Timeouts.Publish, Logger: e.log}

	xc, lc := client, client
	xc.BaseURL = pc.XBaseURL
	lc.BaseURL = pc.LinkedInBaseURL
	adapters := []platform.Adapter{
		platform.NewX(e.store, xc),
		platform.NewLinkedIn(e.store, lc),
	}
	// Mastodon has no canonical host; it is only offered once configured.
	if pc.MastodonBaseURL != "" {
		mc := client
		mc.BaseURL = pc.MastodonBaseURL
		adapters = append(adapters, platform.NewMastodon(e.store, mc))
	}
	return adapters
}

func (e *Engine) defaultLocker() (lease.Locker, error) {
	owner := lease.OwnerID()
	if e.cfg.Lease.Backend != "redis" {
		return lease.NewSQLite(e.store, owner), nil
	}
	e.redis = goredis.NewClient(&goredis.Options{
		Addr: e.cfg.Lease.RedisAddr,
		DB:   e.cfg.Lease.RedisDB,
	})
	return lease.NewRedis(e.redis, e.cfg.Lease.Prefix, owner), nil
}

// Close releases the database and any Redis connection.
func (e *Engine) Close() error {
	if e.redis != nil {
		e.redis.Close()
	}
	return e.store.Close()
}

// Config returns the loaded configuration.
func (e *Engine) Config() *config.Config {
	return e.cfg
}

// Ping checks the database and, when Ollama backs generation, the model
// server.
func (e *Engine) Ping(ctx context.Context) error {
	if err := e.store.Ping(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if e.ollama != nil {
		if err := e.ollama.Ping(ctx); err != nil {
			return fmt.Errorf("ollama: %w", err)
		}
	}
	return nil
}

// MetricsHandler serves the Prometheus registry.
func (e *Engine) MetricsHandler() http.Handler {
	return e.metrics.Handler()
}

// Run drives all periodic ticks until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) error {
	return e.scheduler.Run(ctx)
}

// RunTick runs one guarded tick: "auto_publish", "queue_flush" or
// "engagement".
func (e *Engine) RunTick(ctx context.Context, kind string) (*TickReport, error) {
	rep, err := e.scheduler.RunTick(ctx, kind)
	if errors.Is(err, scheduler.ErrUnknownKind) {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return rep, err
}

// TickKinds lists the tick kinds RunTick accepts.
func (e *Engine) TickKinds() []string {
	return append([]string(nil), scheduler.Kinds...)
}

// --- autonomy config ---

// DefaultAutonomyConfig is what a tenant without a stored config gets:
// disabled, approval required.
func DefaultAutonomyConfig(tenantID string) AutonomyConfig {
	types := make([]string, len(ai.ContentTypes))
	for i, ct := range ai.ContentTypes {
		types[i] = string(ct)
	}
	return AutonomyConfig{
		TenantID:            tenantID,
		PostingFrequency:    governor.FrequencyDaily,
		MaxPostsPerDay:      3,
		AllowedContentTypes: types,
		Tone:                "professional and friendly",
		RequireApproval:     true,
	}
}

// GetAutonomyConfig returns the tenant's config, or the default when none
// is stored.
func (e *Engine) GetAutonomyConfig(ctx context.Context, tenantID string) (*AutonomyConfig, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenant is required", ErrInvalid)
	}
	cfg, err := e.store.GetAutonomyConfig(ctx, tenantID)
	if errors.Is(err, storage.ErrNotFound) {
		def := DefaultAutonomyConfig(tenantID)
		return &def, nil
	}
	return cfg, err
}

// ValidateAutonomyConfig rejects configs the pipeline cannot honor.
func ValidateAutonomyConfig(c AutonomyConfig) error {
	if c.TenantID == "" {
		return fmt.Errorf("%w: tenant is required", ErrInvalid)
	}
	if c.PostingFrequency != "" && !governor.ValidFrequency(c.PostingFrequency) {
		return fmt.Errorf("%w: unknown posting_frequency %q", ErrInvalid, c.PostingFrequency)
	}
	if c.MaxPostsPerDay < 0 || c.MaxPostsPerDay > 100 {
		return fmt.Errorf("%w: max_posts_per_day must be between 0 and 100", ErrInvalid)
	}
	for _, ct := range c.AllowedContentTypes {
		if _, err := ai.ParseContentType(ct); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalid, err)
		}
	}
	return nil
}

// UpdateAutonomyConfig validates and stores the tenant's config.
func (e *Engine) UpdateAutonomyConfig(ctx context.Context, c AutonomyConfig) (*AutonomyConfig, error) {
	if err := ValidateAutonomyConfig(c); err != nil {
		return nil, err
	}
	if err := e.store.UpsertAutonomyConfig(ctx, c); err != nil {
		return nil, err
	}
	return e.store.GetAutonomyConfig(ctx, c.TenantID)
}

// Eligibility reports whether the auto-publish tick would post for the
// tenant now.
func (e *Engine) Eligibility(ctx context.Context, tenantID string) (*Eligibility, error) {
	cfg, err := e.GetAutonomyConfig(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	d, err := e.governor.Evaluate(ctx, *cfg)
	if err != nil {
		return nil, err
	}
	return &Eligibility{
		Eligible:    d.Eligible,
		Reason:      d.Reason,
		PostsToday:  d.PostsToday,
		Remaining:   d.Remaining,
		NextAllowed: d.NextAllowed,
	}, nil
}

// --- generation and queue ---

// Generate produces one post and queues it as pending. Nothing is retried
// here; a generation failure is returned to the caller.
func (e *Engine) Generate(ctx context.Context, tenantID string, req GenerateRequest) (*QueueItem, error) {
	if req.Platform == "" {
		return nil, fmt.Errorf("%w: platform is required", ErrInvalid)
	}
	if _, err := e.registry.Get(req.Platform); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if req.ContentType == "" {
		req.ContentType = string(ai.ContentPromotional)
	}
	ct, err := ai.ParseContentType(req.ContentType)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	cfg, err := e.GetAutonomyConfig(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	text, err := e.generator.Generate(ctx, ai.Request{
		TenantID:    tenantID,
		Platform:    req.Platform,
		ContentType: ct,
		Context:     req.Context,
	}, *cfg)
	if err != nil {
		e.metrics.Generation("error")
		e.audit(ctx, tenantID, storage.ActionGenerate, storage.LogFailed, map[string]string{
			"platform":     req.Platform,
			"content_type": string(ct),
		}, err.Error())
		return nil, err
	}
	e.metrics.Generation("ok")

	genCtx := map[string]string{"source": "manual"}
	for k, v := range req.Context {
		genCtx[k] = v
	}
	item, err := e.queue.Enqueue(ctx, queue.EnqueueRequest{
		TenantID:     tenantID,
		ContentType:  string(ct),
		Platform:     req.Platform,
		Text:         text,
		ScheduledFor: req.ScheduledFor,
		Context:      genCtx,
	})
	if err != nil {
		return nil, mapErr(err)
	}
	e.audit(ctx, tenantID, storage.ActionGenerate, storage.LogSuccess, map[string]string{
		"platform":     req.Platform,
		"content_type": string(ct),
		"queue_id":     fmt.Sprint(item.ID),
	}, "")
	return item, nil
}

// Enqueue stores tenant-authored text as a pending item.
func (e *Engine) Enqueue(ctx context.Context, tenantID string, req EnqueueRequest) (*QueueItem, error) {
	if _, err := e.registry.Get(req.Platform); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	item, err := e.queue.Enqueue(ctx, queue.EnqueueRequest{
		TenantID:     tenantID,
		ContentType:  req.ContentType,
		Platform:     req.Platform,
		Text:         req.Text,
		ScheduledFor: req.ScheduledFor,
	})
	return item, mapErr(err)
}

// ListQueue returns the tenant's queue, newest first. An empty status lists
// every state.
func (e *Engine) ListQueue(ctx context.Context, tenantID string, status QueueStatus, limit, offset int) ([]QueueItem, error) {
	switch status {
	case "", StatusPending, StatusApproved, StatusPosted, StatusFailed:
	default:
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalid, status)
	}
	return e.queue.List(ctx, tenantID, status, limit, offset)
}

// GetQueueItem returns one of the tenant's items.
func (e *Engine) GetQueueItem(ctx context.Context, tenantID string, id int64) (*QueueItem, error) {
	item, err := e.queue.Get(ctx, tenantID, id)
	return item, mapErr(err)
}

// Approve moves a pending item to approved. An item in any other state is a
// conflict.
func (e *Engine) Approve(ctx context.Context, tenantID string, id int64) error {
	err := e.queue.Approve(ctx, tenantID, id)
	if errors.Is(err, queue.ErrNotFound) {
		if item, getErr := e.queue.Get(ctx, tenantID, id); getErr == nil {
			return fmt.Errorf("%w: item %d is %s", ErrConflict, id, item.Status)
		}
	}
	return mapErr(err)
}

// DeleteQueueItem removes an item in any state.
func (e *Engine) DeleteQueueItem(ctx context.Context, tenantID string, id int64) error {
	return mapErr(e.queue.Delete(ctx, tenantID, id))
}

// Requeue copies a failed item into a new pending one.
func (e *Engine) Requeue(ctx context.Context, tenantID string, id int64) (*QueueItem, error) {
	item, err := e.queue.Requeue(ctx, tenantID, id)
	return item, mapErr(err)
}

// Post publishes immediately, bypassing approval. A platform failure is
// reported in the result, not as an error.
func (e *Engine) Post(ctx context.Context, tenantID string, req PostRequest) (*DispatchResult, error) {
	var item *QueueItem
	var err error
	switch {
	case req.QueueID > 0:
		item, err = e.queue.Get(ctx, tenantID, req.QueueID)
		if err != nil {
			return nil, mapErr(err)
		}
		if item.Status.Terminal() {
			return nil, fmt.Errorf("%w: item %d is already %s", ErrConflict, item.ID, item.Status)
		}
	case strings.TrimSpace(req.Text) != "":
		item, err = e.Enqueue(ctx, tenantID, EnqueueRequest{Platform: req.Platform, Text: req.Text})
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("%w: queue_id or text is required", ErrInvalid)
	}

	res, err := e.dispatcher.Dispatch(ctx, *item, storage.ActionManualPublish)
	if err != nil {
		return nil, err
	}
	if res.Outcome == scheduler.OutcomeSkipped {
		return nil, fmt.Errorf("%w: item %d is being published or already terminal", ErrConflict, item.ID)
	}
	return &res, nil
}

// ListPosted returns the tenant's published posts, newest first.
func (e *Engine) ListPosted(ctx context.Context, tenantID string, limit, offset int) ([]PostedContent, error) {
	if limit <= 0 {
		limit = 50
	}
	return e.store.ListPosted(ctx, tenantID, limit, offset)
}

// ListLogs returns the tenant's audit trail, newest first.
func (e *Engine) ListLogs(ctx context.Context, tenantID string, limit, offset int) ([]LogEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	return e.store.ListLogs(ctx, tenantID, limit, offset)
}

// Dashboard returns aggregate counts for the tenant.
func (e *Engine) Dashboard(ctx context.Context, tenantID string) (*Dashboard, error) {
	return e.store.GetDashboard(ctx, tenantID, e.now())
}

// Performance reads the feedback ledger: what performed best.
func (e *Engine) Performance(ctx context.Context, tenantID string, limit int) (*PerformanceReport, error) {
	return e.ledger.Report(ctx, tenantID, limit)
}

// --- knowledge ---

// ListKnowledge returns the tenant's knowledge, seeding defaults first when
// the tenant has none.
func (e *Engine) ListKnowledge(ctx context.Context, tenantID string, activeOnly bool) ([]KnowledgeEntry, error) {
	if _, err := e.knowledge.EnsureSeeded(ctx, tenantID); err != nil {
		return nil, err
	}
	return e.store.ListKnowledge(ctx, tenantID, activeOnly)
}

// KnowledgeContext returns the formatted block the generator is grounded on.
func (e *Engine) KnowledgeContext(ctx context.Context, tenantID string) (string, error) {
	return e.knowledge.GetContext(ctx, tenantID)
}

// GetKnowledge returns one entry.
func (e *Engine) GetKnowledge(ctx context.Context, tenantID string, id int64) (*KnowledgeEntry, error) {
	entry, err := e.store.GetKnowledge(ctx, tenantID, id)
	return entry, mapErr(err)
}

// AddKnowledge upserts an entry keyed by (tenant, category, key).
func (e *Engine) AddKnowledge(ctx context.Context, entry KnowledgeEntry) (*KnowledgeEntry, error) {
	if err := knowledge.Validate([]knowledge.Entry{{Category: entry.Category, Key: entry.Key, Value: entry.Value}}); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	id, err := e.store.UpsertKnowledge(ctx, entry)
	if err != nil {
		return nil, err
	}
	return e.GetKnowledge(ctx, entry.TenantID, id)
}

// UpdateKnowledge replaces an existing entry's fields.
func (e *Engine) UpdateKnowledge(ctx context.Context, entry KnowledgeEntry) (*KnowledgeEntry, error) {
	if err := knowledge.Validate([]knowledge.Entry{{Category: entry.Category, Key: entry.Key, Value: entry.Value}}); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if err := e.store.UpdateKnowledge(ctx, entry); err != nil {
		return nil, mapErr(err)
	}
	return e.GetKnowledge(ctx, entry.TenantID, entry.ID)
}

// DeleteKnowledge purges one entry.
func (e *Engine) DeleteKnowledge(ctx context.Context, tenantID string, id int64) error {
	return mapErr(e.store.DeleteKnowledge(ctx, tenantID, id))
}

// ResetKnowledge deletes the tenant's knowledge and reseeds the defaults.
func (e *Engine) ResetKnowledge(ctx context.Context, tenantID string) (int, error) {
	return e.knowledge.Reset(ctx, tenantID)
}

// ImportKnowledge upserts a batch of entries.
func (e *Engine) ImportKnowledge(ctx context.Context, tenantID string, entries []KnowledgeImport) (int, error) {
	n, err := e.knowledge.Import(ctx, tenantID, entries)
	if errors.Is(err, knowledge.ErrInvalidEntry) {
		return 0, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return n, err
}

// ImportKnowledgeFile imports a JSON, YAML or TOML file.
func (e *Engine) ImportKnowledgeFile(ctx context.Context, tenantID, path string) (int, error) {
	entries, err := knowledge.ParseFile(path)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return e.ImportKnowledge(ctx, tenantID, entries)
}

// ImportKnowledgeFeed imports the latest items of an RSS or Atom feed.
func (e *Engine) ImportKnowledgeFeed(ctx context.Context, tenantID, url, category string, limit int) (int, error) {
	return e.fetcher.Import(ctx, e.knowledge, tenantID, url, category, limit)
}

// ImportKnowledgeOPML imports every feed listed in an OPML file. Feeds that
// fail are reported but do not stop the others.
func (e *Engine) ImportKnowledgeOPML(ctx context.Context, tenantID, path, category string, limit int) (int, []error) {
	urls, err := feeds.ParseOPML(path)
	if err != nil {
		return 0, []error{err}
	}
	var total int
	var errs []error
	for _, u := range urls {
		n, err := e.ImportKnowledgeFeed(ctx, tenantID, u, category, limit)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", u, err))
			continue
		}
		total += n
	}
	return total, errs
}

// --- prompts ---

// GetPrompt returns the template the tenant's generation uses for a type.
func (e *Engine) GetPrompt(ctx context.Context, tenantID, contentType string) (string, error) {
	ct, err := ai.ParseContentType(contentType)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return ai.NewPromptLoader(e.store, e.cfg).GetPrompt(ctx, tenantID, ct)
}

// SetPromptOverride stores a tenant template for a content type.
func (e *Engine) SetPromptOverride(ctx context.Context, p PromptOverride) error {
	if _, err := ai.ParseContentType(p.ContentType); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if _, err := ai.ExecutePrompt(p.Template, ai.PromptData{}); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return e.store.SetPromptOverride(ctx, p)
}

// DeletePromptOverride reverts a content type to the configured template.
func (e *Engine) DeletePromptOverride(ctx context.Context, tenantID, contentType string) error {
	return e.store.DeletePromptOverride(ctx, tenantID, contentType)
}

// --- platforms ---

// SupportedPlatforms lists registered adapters.
func (e *Engine) SupportedPlatforms() []string {
	return e.registry.Names()
}

// ConnectPlatform stores or replaces a tenant's credential for a platform.
func (e *Engine) ConnectPlatform(ctx context.Context, tenantID string, req ConnectRequest) (*PlatformCredential, error) {
	if _, err := e.registry.Get(req.Platform); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if strings.TrimSpace(req.AccessToken) == "" {
		return nil, fmt.Errorf("%w: access_token is required", ErrInvalid)
	}
	err := e.store.UpsertCredential(ctx, storage.PlatformCredential{
		TenantID:       tenantID,
		Platform:       req.Platform,
		AccessToken:    req.AccessToken,
		RefreshToken:   req.RefreshToken,
		ExternalUserID: req.ExternalUserID,
		Enabled:        !req.Disabled,
	})
	if err != nil {
		return nil, err
	}
	return e.store.GetCredential(ctx, tenantID, req.Platform)
}

// ListPlatforms returns the tenant's credentials. Tokens never serialize.
func (e *Engine) ListPlatforms(ctx context.Context, tenantID string) ([]PlatformCredential, error) {
	return e.store.ListCredentials(ctx, tenantID)
}

// SetPlatformEnabled toggles a credential without deleting it.
func (e *Engine) SetPlatformEnabled(ctx context.Context, tenantID, platformName string, enabled bool) error {
	return mapErr(e.store.SetCredentialEnabled(ctx, tenantID, platformName, enabled))
}

// DisconnectPlatform deletes a credential.
func (e *Engine) DisconnectPlatform(ctx context.Context, tenantID, platformName string) error {
	return mapErr(e.store.DeleteCredential(ctx, tenantID, platformName))
}

func (e *Engine) audit(ctx context.Context, tenantID, action, status string, details map[string]string, msg string) {
	err := e.store.AppendLog(ctx, storage.LogEntry{
		TenantID:     tenantID,
		ActionType:   action,
		Details:      details,
		Status:       status,
		ErrorMessage: msg,
	})
	if err != nil {
		e.log.WithError(err).Warn("Failed to append audit log")
	}
}

// mapErr translates package errors into the engine's public sentinels.
func mapErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, queue.ErrNotFound), errors.Is(err, storage.ErrNotFound):
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	case errors.Is(err, queue.ErrInvalid):
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	default:
		return err
	}
}
