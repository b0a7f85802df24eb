// Package scheduler runs the pipeline's periodic ticks: auto-publish for
// tenants who waived approval, queue flush for approved items, and
// engagement collection. Ticks of one kind never overlap.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/matthewjhunter/crier/internal/ai"
	"github.com/matthewjhunter/crier/internal/engagement"
	"github.com/matthewjhunter/crier/internal/governor"
	"github.com/matthewjhunter/crier/internal/lease"
	"github.com/matthewjhunter/crier/internal/logging"
	"github.com/matthewjhunter/crier/internal/metrics"
	"github.com/matthewjhunter/crier/internal/notify"
	"github.com/matthewjhunter/crier/internal/queue"
	"github.com/matthewjhunter/crier/internal/storage"
)

// Tick kinds.
const (
	KindAutoPublish = "auto_publish"
	KindQueueFlush  = "queue_flush"
	KindEngagement  = "engagement"
)

// Kinds lists every tick kind.
var Kinds = []string{KindAutoPublish, KindQueueFlush, KindEngagement}

// ErrTickSkipped is returned by RunTick when a tick of the same kind is
// still running here or holds the lease elsewhere.
var ErrTickSkipped = errors.New("tick skipped: previous tick still running")

// ErrUnknownKind is returned for tick kinds not in Kinds.
var ErrUnknownKind = errors.New("unknown tick kind")

// Options tunes cadence and bounds.
type Options struct {
	AutoPublishInterval time.Duration
	FlushInterval       time.Duration
	EngagementInterval  time.Duration
	FlushBatchSize      int
	Workers             int
}

func (o *Options) setDefaults() {
	if o.AutoPublishInterval <= 0 {
		o.AutoPublishInterval = time.Hour
	}
	if o.FlushInterval <= 0 {
		o.FlushInterval = 15 * time.Minute
	}
	if o.EngagementInterval <= 0 {
		o.EngagementInterval = 6 * time.Hour
	}
	if o.FlushBatchSize <= 0 {
		o.FlushBatchSize = 25
	}
	if o.Workers <= 0 {
		o.Workers = 4
	}
}

// ContentGenerator produces post text.
type ContentGenerator interface {
	Generate(ctx context.Context, req ai.Request, cfg storage.AutonomyConfig) (string, error)
}

// Deps are the collaborators a Scheduler drives.
type Deps struct {
	Store      *storage.Store
	Queue      *queue.Queue
	Generator  ContentGenerator
	Governor   *governor.Governor
	Dispatcher *Dispatcher
	Collector  *engagement.Collector
	Locker     lease.Locker
	Metrics    *metrics.Metrics
	Notifier   notify.Notifier
	Log        logging.Logger
}

type Scheduler struct {
	Deps
	opts    Options
	running map[string]*atomic.Bool
	now     func() time.Time

	randMu sync.Mutex
	rand   *rand.Rand
}

func New(deps Deps, opts Options) *Scheduler {
	opts.setDefaults()
	if deps.Notifier == nil {
		deps.Notifier = notify.NewLog(deps.Log)
	}
	s := &Scheduler{
		Deps:    deps,
		opts:    opts,
		running: make(map[string]*atomic.Bool, len(Kinds)),
		now:     time.Now,
		rand:    rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0)),
	}
	for _, k := range Kinds {
		s.running[k] = new(atomic.Bool)
	}
	return s
}

// SetClock replaces the time source.
func (s *Scheduler) SetClock(now func() time.Time) {
	s.now = now
}

// SetRand replaces the content-type picker's source.
func (s *Scheduler) SetRand(r *rand.Rand) {
	s.randMu.Lock()
	s.rand = r
	s.randMu.Unlock()
}

func (s *Scheduler) interval(kind string) time.Duration {
	switch kind {
	case KindAutoPublish:
		return s.opts.AutoPublishInterval
	case KindQueueFlush:
		return s.opts.FlushInterval
	default:
		return s.opts.EngagementInterval
	}
}

// Deadline is the time budget of one tick: the interval minus a minute,
// never under 30s.
func Deadline(interval time.Duration) time.Duration {
	d := interval - time.Minute
	if d < 30*time.Second {
		d = 30 * time.Second
	}
	return d
}

// Run fires every tick kind on its interval until ctx is cancelled, then
// waits for ticks still in flight. A fire that finds the previous tick of
// its kind still running is skipped.
func (s *Scheduler) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	for _, kind := range Kinds {
		wg.Add(1)
		go func(kind string) {
			defer wg.Done()
			s.loop(ctx, kind)
		}(kind)
	}
	wg.Wait()
	return ctx.Err()
}

func (s *Scheduler) loop(ctx context.Context, kind string) {
	interval := s.interval(kind)
	s.Log.WithFields(logging.Fields{"tick": kind, "interval": interval.String()}).Info("Scheduler started")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// Fired ticks are joined before returning so callers can close the
	// store once Run is done.
	var fired sync.WaitGroup
	defer fired.Wait()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// Fire in the background so a long tick makes the next fire
			// skip instead of queueing behind it.
			fired.Add(1)
			go func() {
				defer fired.Done()
				if _, err := s.RunTick(ctx, kind); err != nil && !errors.Is(err, ErrTickSkipped) {
					s.Log.WithField("tick", kind).WithError(err).Error("Tick failed")
				}
			}()
		}
	}
}

// Report is what one tick did. Exactly one of the result fields is set.
type Report struct {
	Kind        string             `json:"kind"`
	Duration    time.Duration      `json:"duration_ns"`
	AutoPublish *AutoPublishResult `json:"auto_publish,omitempty"`
	Flush       *FlushResult       `json:"flush,omitempty"`
	Engagement  *engagement.Result `json:"engagement,omitempty"`
}

func (s *Scheduler) runKind(ctx context.Context, kind string, rep *Report) error {
	switch kind {
	case KindAutoPublish:
		res, err := s.AutoPublish(ctx)
		rep.AutoPublish = &res
		return err
	case KindQueueFlush:
		res, err := s.FlushQueue(ctx)
		rep.Flush = &res
		return err
	default:
		res, err := s.CollectEngagement(ctx)
		rep.Engagement = &res
		return err
	}
}

// RunTick runs one guarded tick of kind.
func (s *Scheduler) RunTick(ctx context.Context, kind string) (*Report, error) {
	guard, ok := s.running[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	if !guard.CompareAndSwap(false, true) {
		s.skipped(kind, "in-process")
		return nil, ErrTickSkipped
	}
	defer guard.Store(false)

	deadline := Deadline(s.interval(kind))
	leaseName := "tick:" + kind
	if s.Locker != nil {
		acquired, err := s.Locker.TryAcquire(ctx, leaseName, 2*deadline)
		if err != nil {
			return nil, fmt.Errorf("acquire %s lease: %w", kind, err)
		}
		if !acquired {
			s.skipped(kind, "lease")
			return nil, ErrTickSkipped
		}
		defer func() {
			releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			if err := s.Locker.Release(releaseCtx, leaseName); err != nil {
				s.Log.WithField("tick", kind).WithError(err).Warn("Failed to release tick lease")
			}
		}()
	}

	tickCtx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	start := time.Now()
	rep := &Report{Kind: kind}
	err := s.runKind(tickCtx, kind, rep)
	rep.Duration = time.Since(start)
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	s.Metrics.Tick(kind, outcome, rep.Duration)
	s.Log.WithFields(logging.Fields{
		"tick":     kind,
		"outcome":  outcome,
		"duration": rep.Duration.Round(time.Millisecond).String(),
	}).Info("Tick finished")
	return rep, err
}

func (s *Scheduler) skipped(kind, by string) {
	s.Metrics.TickSkipped(kind)
	s.Log.WithFields(logging.Fields{"tick": kind, "held_by": by}).Warn("Tick skipped, previous tick still running")
}

// TenantResult is the auto-publish outcome for one tenant.
type TenantResult struct {
	TenantID string           `json:"tenant_id"`
	Skipped  string           `json:"skipped,omitempty"`
	Posted   int              `json:"posted"`
	Failed   int              `json:"failed"`
	Results  []DispatchResult `json:"results,omitempty"`
}

// AutoPublishResult summarizes an auto-publish tick.
type AutoPublishResult struct {
	Tenants []TenantResult `json:"tenants"`
}

// AutoPublish generates and immediately publishes content for every tenant
// that is enabled and does not require approval, respecting the daily cap.
// Tenants run on a bounded worker pool; one tenant's failure never stops
// another's.
func (s *Scheduler) AutoPublish(ctx context.Context) (AutoPublishResult, error) {
	configs, err := s.Store.ListAutoPublishConfigs(ctx)
	if err != nil {
		return AutoPublishResult{}, fmt.Errorf("list auto-publish tenants: %w", err)
	}

	results := make([]TenantResult, len(configs))
	var g errgroup.Group
	g.SetLimit(s.opts.Workers)
	for i, cfg := range configs {
		g.Go(func() error {
			results[i] = s.publishTenant(ctx, cfg)
			return nil
		})
	}
	_ = g.Wait()
	return AutoPublishResult{Tenants: results}, nil
}

func (s *Scheduler) publishTenant(ctx context.Context, cfg storage.AutonomyConfig) (res TenantResult) {
	res.TenantID = cfg.TenantID
	logger := s.Log.WithFields(logging.Fields{"tick": KindAutoPublish, "tenant_id": cfg.TenantID})
	defer func() {
		if r := recover(); r != nil {
			logger.WithField("panic", r).Error("Auto-publish panicked")
			s.audit(ctx, cfg.TenantID, storage.ActionAutoPublish, storage.LogFailed, nil, fmt.Sprintf("panic: %v", r))
			res.Failed++
		}
	}()

	if ctx.Err() != nil {
		res.Skipped = "deadline"
		return res
	}

	decision, err := s.Governor.Evaluate(ctx, cfg)
	if err != nil {
		logger.WithError(err).Error("Governor check failed")
		s.audit(ctx, cfg.TenantID, storage.ActionAutoPublish, storage.LogFailed, nil, err.Error())
		res.Failed++
		return res
	}
	if !decision.Eligible {
		res.Skipped = decision.Reason
		logger.WithField("reason", decision.Reason).Debug("Tenant not eligible")
		return res
	}

	platforms, err := s.Store.EnabledPlatforms(ctx, cfg.TenantID)
	if err != nil {
		logger.WithError(err).Error("Failed to list platforms")
		res.Failed++
		return res
	}
	if len(platforms) == 0 {
		res.Skipped = "no_platforms"
		s.audit(ctx, cfg.TenantID, storage.ActionAutoPublish, storage.LogSkipped,
			map[string]string{"category": string(CategoryConfiguration)}, "no enabled platform credentials")
		return res
	}

	for _, plat := range platforms {
		if ctx.Err() != nil {
			break
		}
		// Re-read the cap before every post.
		remaining, err := s.Governor.Remaining(ctx, cfg)
		if err != nil {
			logger.WithError(err).Error("Governor check failed")
			res.Failed++
			break
		}
		if remaining <= 0 {
			break
		}

		r, err := s.publishOne(ctx, cfg, plat)
		if err != nil {
			logger.WithField("platform", plat).WithError(err).Warn("Auto-publish failed")
			res.Failed++
			continue
		}
		res.Results = append(res.Results, r)
		switch r.Outcome {
		case OutcomePosted:
			res.Posted++
		case OutcomeFailed:
			res.Failed++
		}
	}
	return res
}

// publishOne generates, enqueues, approves and dispatches one post. Errors
// before dispatch are audited here.
func (s *Scheduler) publishOne(ctx context.Context, cfg storage.AutonomyConfig, plat string) (DispatchResult, error) {
	ct := s.pickContentType(cfg.AllowedContentTypes)
	text, err := s.Generator.Generate(ctx, ai.Request{
		TenantID:    cfg.TenantID,
		Platform:    plat,
		ContentType: ct,
	}, cfg)
	if err != nil {
		s.Metrics.Generation("error")
		action := storage.ActionGenerate
		if errors.Is(err, ai.ErrBlockedContent) {
			action = storage.ActionContentBlocked
			if nerr := s.Notifier.Notify(ctx, notify.Notification{
				TenantID: cfg.TenantID,
				Kind:     notify.KindContentBlocked,
				Platform: plat,
				Message:  err.Error(),
				At:       s.now(),
			}); nerr != nil {
				s.Log.WithError(nerr).Warn("Failed to notify tenant")
			}
		}
		s.audit(ctx, cfg.TenantID, action, storage.LogFailed, map[string]string{
			"platform":     plat,
			"content_type": string(ct),
			"category":     string(Classify(err)),
		}, err.Error())
		return DispatchResult{}, err
	}
	s.Metrics.Generation("ok")

	item, err := s.Queue.Enqueue(ctx, queue.EnqueueRequest{
		TenantID:    cfg.TenantID,
		ContentType: string(ct),
		Platform:    plat,
		Text:        text,
		Context:     map[string]string{"source": KindAutoPublish},
	})
	if err != nil {
		return DispatchResult{}, err
	}
	if err := s.Queue.Approve(ctx, cfg.TenantID, item.ID); err != nil {
		return DispatchResult{}, err
	}
	item.Status = storage.StatusApproved
	return s.Dispatcher.Dispatch(ctx, *item, storage.ActionAutoPublish)
}

// pickContentType chooses uniformly among the allowed types that have a
// template, falling back to every type.
func (s *Scheduler) pickContentType(allowed []string) ai.ContentType {
	var choices []ai.ContentType
	for _, a := range allowed {
		if ct, err := ai.ParseContentType(a); err == nil {
			choices = append(choices, ct)
		}
	}
	if len(choices) == 0 {
		choices = ai.ContentTypes
	}
	s.randMu.Lock()
	defer s.randMu.Unlock()
	return choices[s.rand.IntN(len(choices))]
}

// FlushResult summarizes a queue flush.
type FlushResult struct {
	Due     int `json:"due"`
	Posted  int `json:"posted"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"`
	Errors  int `json:"errors"`
}

// FlushQueue publishes up to FlushBatchSize due items across all tenants.
func (s *Scheduler) FlushQueue(ctx context.Context) (FlushResult, error) {
	var res FlushResult
	items, err := s.Queue.ListDue(ctx, s.now(), s.opts.FlushBatchSize)
	if err != nil {
		return res, fmt.Errorf("list due items: %w", err)
	}
	res.Due = len(items)
	s.Metrics.DueItems(KindQueueFlush, len(items))

	for _, item := range items {
		if ctx.Err() != nil {
			break
		}
		r, err := s.dispatchSafely(ctx, item)
		if err != nil {
			res.Errors++
			s.Log.WithFields(logging.Fields{
				"tick":      KindQueueFlush,
				"tenant_id": item.TenantID,
				"queue_id":  item.ID,
			}).WithError(err).Error("Dispatch failed")
			continue
		}
		switch r.Outcome {
		case OutcomePosted:
			res.Posted++
		case OutcomeFailed:
			res.Failed++
		default:
			res.Skipped++
		}
	}
	return res, nil
}

func (s *Scheduler) dispatchSafely(ctx context.Context, item storage.QueueItem) (r DispatchResult, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic dispatching item %d: %v", item.ID, p)
		}
	}()
	return s.Dispatcher.Dispatch(ctx, item, storage.ActionQueuePublish)
}

// CollectEngagement refreshes metrics for recent posts.
func (s *Scheduler) CollectEngagement(ctx context.Context) (engagement.Result, error) {
	return s.Collector.Collect(ctx)
}

func (s *Scheduler) audit(ctx context.Context, tenantID, action, status string, details map[string]string, msg string) {
	err := s.Store.AppendLog(ctx, storage.LogEntry{
		TenantID:     tenantID,
		ActionType:   action,
		Details:      details,
		Status:       status,
		ErrorMessage: msg,
	})
	if err != nil {
		s.Log.WithError(err).Warn("Failed to append audit log")
	}
}
