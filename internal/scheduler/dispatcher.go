package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/matthewjhunter/crier/internal/logging"
	"github.com/matthewjhunter/crier/internal/metrics"
	"github.com/matthewjhunter/crier/internal/notify"
	"github.com/matthewjhunter/crier/internal/platform"
	"github.com/matthewjhunter/crier/internal/queue"
	"github.com/matthewjhunter/crier/internal/storage"
)

// DefaultClaimStaleAfter is how long a dispatch claim blocks other
// dispatchers before it is considered abandoned.
const DefaultClaimStaleAfter = 10 * time.Minute

// settleTimeout bounds the writes that record a dispatch once the publish
// call has returned. They run even when the caller's context is done.
const settleTimeout = 10 * time.Second

// Outcome is what a single dispatch did.
type Outcome string

const (
	OutcomePosted  Outcome = "posted"
	OutcomeFailed  Outcome = "failed"
	OutcomeSkipped Outcome = "skipped"
)

// DispatchResult describes one dispatch.
type DispatchResult struct {
	Outcome  Outcome                `json:"outcome"`
	Posted   *storage.PostedContent `json:"posted,omitempty"`
	Category Category               `json:"category,omitempty"`
	Error    string                 `json:"error,omitempty"`
}

// Dispatcher publishes queue items through their platform adapter and
// records the terminal transition.
type Dispatcher struct {
	store      *storage.Store
	queue      *queue.Queue
	registry   *platform.Registry
	metrics    *metrics.Metrics
	notifier   notify.Notifier
	log        logging.Logger
	timeout    time.Duration
	staleAfter time.Duration
	now        func() time.Time
}

func NewDispatcher(store *storage.Store, q *queue.Queue, registry *platform.Registry, m *metrics.Metrics, notifier notify.Notifier, timeout time.Duration, log logging.Logger) *Dispatcher {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if notifier == nil {
		notifier = notify.NewLog(log)
	}
	return &Dispatcher{
		store:      store,
		queue:      q,
		registry:   registry,
		metrics:    m,
		notifier:   notifier,
		log:        log,
		timeout:    timeout,
		staleAfter: DefaultClaimStaleAfter,
		now:        time.Now,
	}
}

// SetClock replaces the time source.
func (d *Dispatcher) SetClock(now func() time.Time) {
	d.now = now
}

// Dispatch publishes item and marks it posted or failed. A dispatch that
// finds the item claimed by someone else or already terminal writes nothing
// and reports OutcomeSkipped. action names the audit log entry.
func (d *Dispatcher) Dispatch(ctx context.Context, item storage.QueueItem, action string) (DispatchResult, error) {
	logger := d.log.WithFields(logging.Fields{
		"tenant_id": item.TenantID,
		"queue_id":  item.ID,
		"platform":  item.Platform,
	})

	token := uuid.NewString()
	claimed, err := d.store.ClaimQueueItem(ctx, item.ID, token, d.now().Add(-d.staleAfter))
	if err != nil {
		return DispatchResult{}, err
	}
	if !claimed {
		logger.Debug("Queue item already claimed or terminal, skipping")
		return DispatchResult{Outcome: OutcomeSkipped}, nil
	}

	adapter, err := d.registry.Get(item.Platform)
	if err != nil {
		settleCtx, cancel := d.settleContext(ctx)
		defer cancel()
		return d.fail(settleCtx, item, token, action, err), nil
	}

	pubCtx, cancel := context.WithTimeout(ctx, d.timeout)
	pubCtx = platform.WithIdempotencyKey(pubCtx, fmt.Sprintf("crier-queue-%d", item.ID))
	post, err := adapter.Publish(pubCtx, item.TenantID, item.Text)
	cancel()

	settleCtx, cancel := d.settleContext(ctx)
	defer cancel()

	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			var pe *platform.Error
			if !errors.As(err, &pe) {
				err = &platform.Error{Platform: item.Platform, Kind: platform.KindTransient, Cause: err}
			}
		}
		return d.fail(settleCtx, item, token, action, err), nil
	}

	record := storage.PostedContent{
		TenantID:       item.TenantID,
		Platform:       item.Platform,
		ContentType:    item.ContentType,
		PlatformPostID: post.PlatformPostID,
		Text:           item.Text,
		PostURL:        post.PostURL,
		PostedAt:       d.now(),
	}
	posted, ok, err := d.queue.MarkPosted(settleCtx, item.ID, record)
	if err != nil {
		// The post is live but unrecorded. Keep the claim so no other
		// dispatcher republishes before it goes stale.
		logger.WithError(err).WithField("platform_post_id", post.PlatformPostID).Error("Published but failed to record post")
		d.audit(settleCtx, item, action, storage.LogFailed, map[string]string{"platform_post_id": post.PlatformPostID}, err.Error())
		return DispatchResult{}, err
	}
	details := map[string]string{}
	if !ok {
		// The item was deleted or settled elsewhere while the publish was in
		// flight. The post still went out, so it is recorded without a
		// queue link.
		logger.Warn("Queue item changed during publish, recording post without it")
		posted, err = d.store.InsertPostedContent(settleCtx, record)
		if err != nil {
			logger.WithError(err).WithField("platform_post_id", post.PlatformPostID).Error("Published but failed to record post")
			d.audit(settleCtx, item, action, storage.LogFailed, map[string]string{"platform_post_id": post.PlatformPostID}, err.Error())
			return DispatchResult{}, err
		}
		details["queue_item"] = "gone"
	}

	d.metrics.Publish(item.Platform, string(OutcomePosted))
	details["posted_id"] = fmt.Sprint(posted.ID)
	details["platform_post_id"] = posted.PlatformPostID
	details["post_url"] = posted.PostURL
	d.audit(settleCtx, item, action, storage.LogSuccess, details, "")
	logger.WithField("post_url", posted.PostURL).Info("Published content")
	return DispatchResult{Outcome: OutcomePosted, Posted: posted}, nil
}

// settleContext detaches from ctx's cancellation so a dispatch cut short by
// a tick deadline or shutdown still records its outcome.
func (d *Dispatcher) settleContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), settleTimeout)
}

func (d *Dispatcher) fail(ctx context.Context, item storage.QueueItem, token, action string, cause error) DispatchResult {
	category := Classify(cause)
	logger := d.log.WithFields(logging.Fields{
		"tenant_id": item.TenantID,
		"queue_id":  item.ID,
		"platform":  item.Platform,
		"category":  category,
	})

	marked, err := d.queue.MarkFailed(ctx, item.ID, cause.Error())
	if err != nil {
		logger.WithError(err).Error("Failed to mark queue item failed")
	}
	if !marked {
		// Pending items published directly stay pending on failure.
		if err := d.store.ReleaseQueueClaim(ctx, item.ID, token); err != nil {
			logger.WithError(err).Warn("Failed to release claim")
		}
	}

	d.metrics.Publish(item.Platform, string(category))
	d.audit(ctx, item, action, storage.LogFailed, map[string]string{"category": string(category)}, cause.Error())
	logger.WithError(cause).Warn("Publish failed")

	if category == CategoryConfiguration || category == CategoryPlatformRejected {
		kind := notify.KindCredentialMissing
		if category == CategoryPlatformRejected {
			kind = notify.KindContentRejected
		}
		err := d.notifier.Notify(ctx, notify.Notification{
			TenantID: item.TenantID,
			Kind:     kind,
			Platform: item.Platform,
			QueueID:  item.ID,
			Message:  cause.Error(),
			At:       d.now(),
		})
		if err != nil {
			logger.WithError(err).Warn("Failed to notify tenant")
		}
	}
	return DispatchResult{Outcome: OutcomeFailed, Category: category, Error: cause.Error()}
}

func (d *Dispatcher) audit(ctx context.Context, item storage.QueueItem, action, status string, details map[string]string, msg string) {
	if details == nil {
		details = map[string]string{}
	}
	details["queue_id"] = fmt.Sprint(item.ID)
	details["platform"] = item.Platform
	details["content_type"] = item.ContentType
	err := d.store.AppendLog(ctx, storage.LogEntry{
		TenantID:     item.TenantID,
		ActionType:   action,
		Details:      details,
		Status:       status,
		ErrorMessage: msg,
	})
	if err != nil {
		d.log.WithError(err).Warn("Failed to append audit log")
	}
}
