package notify

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"medishare/internal/platform/metrics"
	"medishare/pkg/domain"
	dErrors "medishare/pkg/domain-errors"
	"medishare/pkg/platform/sentinel"
)

// Dispatcher hands a notification to the delivery side (push, email, UI
// inbox). Delivery transport is an external collaborator; the queue only
// tracks state.
type Dispatcher interface {
	Deliver(ctx context.Context, entry Entry) error
}

// LogDispatcher is the development dispatcher: it "delivers" by logging.
type LogDispatcher struct {
	Logger *slog.Logger
}

func (d *LogDispatcher) Deliver(ctx context.Context, entry Entry) error {
	d.Logger.InfoContext(ctx, "notification delivered",
		"notification_id", entry.ID,
		"recipient_id", entry.RecipientID,
		"document_id", entry.DocumentID,
	)
	return nil
}

// Queue is the notification service over a Store.
type Queue struct {
	store   Store
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func NewQueue(store Store, logger *slog.Logger, m *metrics.Metrics) *Queue {
	return &Queue{store: store, logger: logger, metrics: m}
}

// Enqueue persists a new QUEUED entry. Recipient validity is the resolver's
// concern; by the time an entry reaches the queue the recipient is known good.
func (q *Queue) Enqueue(ctx context.Context, recipientID domain.RecipientID, docID domain.DocumentID, message string) (*Entry, error) {
	entry := Entry{
		ID:          domain.NewNotificationID(),
		RecipientID: recipientID,
		DocumentID:  docID,
		Message:     message,
		CreatedAt:   time.Now(),
		Status:      domain.DeliveryQueued,
	}
	if err := q.store.Append(ctx, entry); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "enqueue notification")
	}
	if q.metrics != nil {
		q.metrics.NotificationsEnqueued.Inc()
	}
	return &entry, nil
}

func (q *Queue) MarkDelivered(ctx context.Context, id domain.NotificationID) error {
	if err := q.store.SetStatus(ctx, id, domain.DeliveryDelivered, ""); err != nil {
		return translateStoreErr(err, "mark delivered")
	}
	if q.metrics != nil {
		q.metrics.NotificationsDelivered.Inc()
	}
	return nil
}

func (q *Queue) MarkFailed(ctx context.Context, id domain.NotificationID, reason string) error {
	if err := q.store.SetStatus(ctx, id, domain.DeliveryFailed, reason); err != nil {
		return translateStoreErr(err, "mark failed")
	}
	if q.metrics != nil {
		q.metrics.NotificationsFailed.Inc()
	}
	return nil
}

// MarkRead records that the recipient has seen the entry. Idempotent: the
// first read timestamp wins.
func (q *Queue) MarkRead(ctx context.Context, id domain.NotificationID) error {
	if err := q.store.MarkRead(ctx, id, time.Now()); err != nil {
		return translateStoreErr(err, "mark read")
	}
	return nil
}

func (q *Queue) ListByRecipient(ctx context.Context, recipientID domain.RecipientID, unreadOnly bool) ([]Entry, error) {
	entries, err := q.store.ListByRecipient(ctx, recipientID, unreadOnly)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "list notifications")
	}
	return entries, nil
}

// PendingForRetry finds entries stuck QUEUED for longer than maxAge.
func (q *Queue) PendingForRetry(ctx context.Context, maxAge time.Duration) ([]Entry, error) {
	entries, err := q.store.ListQueuedBefore(ctx, time.Now().Add(-maxAge))
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "list pending notifications")
	}
	return entries, nil
}

// HasEntryFor reports whether the recipient was ever notified about the
// document.
func (q *Queue) HasEntryFor(ctx context.Context, recipientID domain.RecipientID, docID domain.DocumentID) (bool, error) {
	return q.store.ExistsFor(ctx, recipientID, docID)
}

func translateStoreErr(err error, op string) error {
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.Wrap(err, dErrors.CodeNotFound, op+": notification not found")
	}
	return dErrors.Wrap(err, dErrors.CodeUnavailable, op)
}
