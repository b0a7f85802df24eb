// Package queue is the tenant-facing content queue. Every state change is a
// conditional write, so repeated or concurrent calls never apply twice.
package queue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/matthewjhunter/crier/internal/logging"
	"github.com/matthewjhunter/crier/internal/storage"
)

var (
	// ErrNotFound covers missing items, items of other tenants, and items
	// not in the state an operation requires.
	ErrNotFound = errors.New("queue item not found")
	// ErrInvalid is returned for items missing required fields.
	ErrInvalid = errors.New("invalid queue item")
)

// Queue wraps the content_queue table.
type Queue struct {
	store *storage.Store
	log   logging.Logger
}

func New(store *storage.Store, log logging.Logger) *Queue {
	return &Queue{store: store, log: log}
}

// EnqueueRequest is the input to Enqueue.
type EnqueueRequest struct {
	TenantID     string
	ContentType  string
	Platform     string
	Text         string
	ScheduledFor *time.Time
	Context      map[string]string
}

// Enqueue stores a new pending item.
func (q *Queue) Enqueue(ctx context.Context, req EnqueueRequest) (*storage.QueueItem, error) {
	if req.TenantID == "" || req.Platform == "" || strings.TrimSpace(req.Text) == "" {
		return nil, fmt.Errorf("%w: tenant, platform and text are required", ErrInvalid)
	}
	contentType := req.ContentType
	if contentType == "" {
		contentType = "manual"
	}
	item, err := q.store.InsertQueueItem(ctx, storage.QueueItem{
		TenantID:          req.TenantID,
		ContentType:       contentType,
		Platform:          req.Platform,
		Text:              req.Text,
		ScheduledFor:      req.ScheduledFor,
		GenerationContext: req.Context,
	})
	if err != nil {
		return nil, err
	}
	q.log.WithFields(logging.Fields{
		"tenant_id": item.TenantID,
		"queue_id":  item.ID,
		"platform":  item.Platform,
	}).Debug("Enqueued content")
	return item, nil
}

// Approve moves a pending item to approved.
func (q *Queue) Approve(ctx context.Context, tenantID string, id int64) error {
	return mapNotFound(q.store.ApproveQueueItem(ctx, tenantID, id))
}

// Delete removes an item in any state.
func (q *Queue) Delete(ctx context.Context, tenantID string, id int64) error {
	return mapNotFound(q.store.DeleteQueueItem(ctx, tenantID, id))
}

// Get returns one of the tenant's items.
func (q *Queue) Get(ctx context.Context, tenantID string, id int64) (*storage.QueueItem, error) {
	item, err := q.store.GetQueueItem(ctx, tenantID, id)
	return item, mapNotFound(err)
}

// List returns the tenant's items, optionally filtered by status.
func (q *Queue) List(ctx context.Context, tenantID string, status storage.QueueStatus, limit, offset int) ([]storage.QueueItem, error) {
	if limit <= 0 {
		limit = 50
	}
	return q.store.ListQueueItems(ctx, tenantID, status, limit, offset)
}

// ListDue returns approved items across all tenants that are due at now,
// oldest first.
func (q *Queue) ListDue(ctx context.Context, now time.Time, limit int) ([]storage.QueueItem, error) {
	return q.store.ListDueQueueItems(ctx, now, limit)
}

// MarkPosted transitions an item to posted and records the post. ok is
// false, with no write, when the item was already terminal.
func (q *Queue) MarkPosted(ctx context.Context, id int64, posted storage.PostedContent) (*storage.PostedContent, bool, error) {
	return q.store.MarkQueueItemPosted(ctx, id, posted)
}

// MarkFailed transitions an approved item to failed. ok is false, with no
// write, when the item was not approved.
func (q *Queue) MarkFailed(ctx context.Context, id int64, reason string) (bool, error) {
	return q.store.MarkQueueItemFailed(ctx, id, reason)
}

// Requeue copies a failed item into a new pending item so it can be
// re-approved. The failed item stays failed.
func (q *Queue) Requeue(ctx context.Context, tenantID string, id int64) (*storage.QueueItem, error) {
	item, err := q.Get(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if item.Status != storage.StatusFailed {
		return nil, fmt.Errorf("%w: item %d is %s, not failed", ErrNotFound, id, item.Status)
	}
	genCtx := make(map[string]string, len(item.GenerationContext)+1)
	for k, v := range item.GenerationContext {
		genCtx[k] = v
	}
	genCtx["requeued_from"] = fmt.Sprint(item.ID)
	return q.Enqueue(ctx, EnqueueRequest{
		TenantID:    item.TenantID,
		ContentType: item.ContentType,
		Platform:    item.Platform,
		Text:        item.Text,
		Context:     genCtx,
	})
}

func mapNotFound(err error) error {
	if errors.Is(err, storage.ErrNotFound) {
		return ErrNotFound
	}
	return err
}
