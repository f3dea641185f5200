package fanout

import (
	"context"
	"log/slog"
	"time"

	"medishare/internal/document"
	"medishare/internal/notify"
	"medishare/internal/platform/metrics"
	"medishare/pkg/domain"
)

// Sweeper is the background retry pass: it completes partial fan-outs and
// re-attempts delivery of notifications stuck in the queued state. It is
// re-entrant and cancellable; finding nothing to do is the normal outcome.
type Sweeper struct {
	service    *Service
	documents  document.Store
	queue      *notify.Queue
	dispatcher notify.Dispatcher
	logger     *slog.Logger
	metrics    *metrics.Metrics

	interval time.Duration
	maxAge   time.Duration
}

func NewSweeper(
	service *Service,
	documents document.Store,
	queue *notify.Queue,
	dispatcher notify.Dispatcher,
	logger *slog.Logger,
	m *metrics.Metrics,
	interval time.Duration,
	maxAge time.Duration,
) *Sweeper {
	return &Sweeper{
		service:    service,
		documents:  documents,
		queue:      queue,
		dispatcher: dispatcher,
		logger:     logger,
		metrics:    m,
		interval:   interval,
		maxAge:     maxAge,
	}
}

// Run loops until the context is cancelled.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep performs one pass. Exported so tests and ops tooling can run it
// without the ticker.
func (s *Sweeper) Sweep(ctx context.Context) {
	if s.metrics != nil {
		s.metrics.SweepRuns.Inc()
	}
	s.retryPartialDocuments(ctx)
	s.redeliverStuckNotifications(ctx)
}

func (s *Sweeper) retryPartialDocuments(ctx context.Context) {
	docs, err := s.documents.ListByFanOutState(ctx, domain.FanOutPartial)
	if err != nil {
		s.logger.ErrorContext(ctx, "sweep: list partial documents failed", "error", err)
		return
	}

	for _, doc := range docs {
		result, err := s.service.ProcessDocumentFinalized(ctx, doc)
		if err != nil {
			// Configuration errors stay partial until an operator registers
			// the missing rule; nothing the sweep can do.
			s.logger.WarnContext(ctx, "sweep: fan-out retry failed",
				"document_id", doc.ID,
				"error", err,
			)
			continue
		}
		if len(result.Failed) == 0 {
			if s.metrics != nil {
				s.metrics.SweepDocumentsRecovered.Inc()
			}
			s.logger.InfoContext(ctx, "sweep: document recovered to complete",
				"document_id", doc.ID,
			)
		}
	}
}

func (s *Sweeper) redeliverStuckNotifications(ctx context.Context) {
	entries, err := s.queue.PendingForRetry(ctx, s.maxAge)
	if err != nil {
		s.logger.ErrorContext(ctx, "sweep: list stuck notifications failed", "error", err)
		return
	}

	for _, entry := range entries {
		if err := s.dispatcher.Deliver(ctx, entry); err != nil {
			if markErr := s.queue.MarkFailed(ctx, entry.ID, err.Error()); markErr != nil {
				s.logger.ErrorContext(ctx, "sweep: mark failed errored",
					"notification_id", entry.ID,
					"error", markErr,
				)
			}
			continue
		}
		if err := s.queue.MarkDelivered(ctx, entry.ID); err != nil {
			s.logger.ErrorContext(ctx, "sweep: mark delivered errored",
				"notification_id", entry.ID,
				"error", err,
			)
		}
	}
}
