// Package fanout orchestrates document fan-out: resolve recipients, grant
// each one visibility in the share ledger, enqueue a notification per
// recipient, and record the document's fan-out state. Everything here is
// idempotent under at-least-once event delivery; the ledger's uniqueness
// constraint is the single source of idempotency truth.
package fanout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"medishare/internal/document"
	"medishare/internal/ledger"
	"medishare/internal/notify"
	"medishare/internal/platform/metrics"
	"medishare/pkg/domain"
	dErrors "medishare/pkg/domain-errors"
	"medishare/pkg/platform/sentinel"
)

// Resolver computes the recipients of a document.
type Resolver interface {
	Resolve(ctx context.Context, doc *document.Document) ([]domain.Recipient, error)
}

// Result reports the outcome of one fan-out run, split by recipient.
type Result struct {
	Granted []domain.RecipientID
	Failed  []domain.RecipientID
}

// Config bounds the per-document worker pool and each recipient's
// grant+enqueue sequence.
type Config struct {
	Workers          int
	RecipientTimeout time.Duration
}

type Service struct {
	documents document.Store
	resolver  Resolver
	ledger    ledger.Store
	queue     *notify.Queue
	logger    *slog.Logger
	metrics   *metrics.Metrics
	tracer    trace.Tracer

	workers          int
	recipientTimeout time.Duration
}

func NewService(
	documents document.Store,
	res Resolver,
	ledgerStore ledger.Store,
	queue *notify.Queue,
	logger *slog.Logger,
	m *metrics.Metrics,
	cfg Config,
) *Service {
	workers := cfg.Workers
	if workers <= 0 {
		workers = 8
	}
	timeout := cfg.RecipientTimeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &Service{
		documents:        documents,
		resolver:         res,
		ledger:           ledgerStore,
		queue:            queue,
		logger:           logger,
		metrics:          m,
		tracer:           otel.Tracer("medishare/fanout"),
		workers:          workers,
		recipientTimeout: timeout,
	}
}

// Trigger loads the document and runs fan-out. Used by the HTTP finalize
// endpoint and the retry sweep.
func (s *Service) Trigger(ctx context.Context, docID domain.DocumentID) (Result, error) {
	doc, err := s.documents.Get(ctx, docID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return Result{}, dErrors.New(dErrors.CodeNotFound, "document not found")
		}
		return Result{}, dErrors.Wrap(err, dErrors.CodeUnavailable, "load document")
	}
	return s.ProcessDocumentFinalized(ctx, doc)
}

// ProcessDocumentFinalized fans a finalized document out to its recipients.
//
// Per-recipient failures are isolated: they are collected into Result.Failed
// and reflected in the document's partial state, never propagated as an
// error. Only a resolver failure (a configuration bug, e.g. an unregistered
// domain type) aborts the whole operation.
func (s *Service) ProcessDocumentFinalized(ctx context.Context, doc *document.Document) (Result, error) {
	ctx, span := s.tracer.Start(ctx, "fanout.process",
		trace.WithAttributes(
			attribute.String("document.id", doc.ID.String()),
			attribute.String("document.type", doc.Type.String()),
		))
	defer span.End()

	start := time.Now()
	defer func() { s.metrics.ObserveFanOut(time.Since(start)) }()

	// Complete is terminal; this short-circuit is the primary defense
	// against duplicate event delivery.
	if doc.FanOutState == domain.FanOutComplete {
		if s.metrics != nil {
			s.metrics.FanOutsShortCircuited.Inc()
		}
		s.logger.DebugContext(ctx, "fan-out already complete, skipping",
			"document_id", doc.ID,
		)
		return Result{}, nil
	}

	recipients, err := s.resolver.Resolve(ctx, doc)
	if err != nil {
		// A document that cannot resolve is a configuration bug, not a
		// transient fault. Record zero progress and surface the error.
		if s.metrics != nil {
			s.metrics.ResolverFailures.Inc()
		}
		s.logger.ErrorContext(ctx, "recipient resolution failed",
			"document_id", doc.ID,
			"document_type", doc.Type,
			"error", err,
		)
		if stateErr := s.documents.SetFanOutState(ctx, doc.ID, domain.FanOutPartial, nil); stateErr != nil {
			s.logger.ErrorContext(ctx, "failed to record partial state",
				"document_id", doc.ID,
				"error", stateErr,
			)
		}
		return Result{}, err
	}

	var (
		mu      sync.Mutex
		granted []domain.RecipientID
		failed  []domain.RecipientID
	)

	g := &errgroup.Group{}
	g.SetLimit(s.workers)
	for _, rec := range recipients {
		g.Go(func() error {
			if err := s.processRecipient(ctx, doc, rec); err != nil {
				if s.metrics != nil {
					s.metrics.RecipientFailures.Inc()
				}
				s.logger.WarnContext(ctx, "recipient fan-out failed",
					"document_id", doc.ID,
					"recipient_id", rec.ID,
					"error", err,
				)
				mu.Lock()
				failed = append(failed, rec.ID)
				mu.Unlock()
				return nil // isolation: one recipient never aborts siblings
			}
			mu.Lock()
			granted = append(granted, rec.ID)
			mu.Unlock()
			return nil
		})
	}
	// The state transition below must not be observed ahead of the work it
	// summarizes, so join before writing it.
	_ = g.Wait()

	sortRecipientIDs(granted)
	sortRecipientIDs(failed)

	state := domain.FanOutComplete
	if len(failed) > 0 {
		state = domain.FanOutPartial
	}
	if err := s.documents.SetFanOutState(ctx, doc.ID, state, failed); err != nil {
		// Grants and notifications are durable; only the bookkeeping is
		// stale. The sweep will reconcile on its next pass.
		return Result{Granted: granted, Failed: failed},
			dErrors.Wrap(err, dErrors.CodeUnavailable, "record fan-out state")
	}

	if s.metrics != nil {
		if state == domain.FanOutComplete {
			s.metrics.FanOutsCompleted.Inc()
		} else {
			s.metrics.FanOutsPartial.Inc()
		}
	}
	s.logger.InfoContext(ctx, "fan-out processed",
		"document_id", doc.ID,
		"state", state,
		"granted", len(granted),
		"failed", len(failed),
	)
	return Result{Granted: granted, Failed: failed}, nil
}

// processRecipient runs one recipient's grant+enqueue sequence under its own
// timeout. The ledger grant is the idempotency check: a duplicate grant
// reports AlreadyExists and the recipient is only re-notified if no entry
// exists yet (covers the grant-succeeded-enqueue-failed crack from an
// earlier attempt).
func (s *Service) processRecipient(ctx context.Context, doc *document.Document, rec domain.Recipient) error {
	ctx, cancel := context.WithTimeout(ctx, s.recipientTimeout)
	defer cancel()

	ctx, span := s.tracer.Start(ctx, "fanout.recipient",
		trace.WithAttributes(attribute.String("recipient.id", rec.ID.String())))
	defer span.End()

	outcome, err := s.ledger.Grant(ctx, doc.ID, rec.ID, rec.Role)
	if err != nil {
		return fmt.Errorf("grant: %w", err)
	}

	if s.metrics != nil {
		if outcome == ledger.OutcomeCreated {
			s.metrics.GrantsCreated.Inc()
		} else {
			s.metrics.GrantsDuplicate.Inc()
		}
	}

	if outcome == ledger.OutcomeAlreadyExists {
		notified, err := s.queue.HasEntryFor(ctx, rec.ID, doc.ID)
		if err != nil {
			return fmt.Errorf("check notification: %w", err)
		}
		if notified {
			return nil
		}
	}

	if _, err := s.queue.Enqueue(ctx, rec.ID, doc.ID, messageFor(doc)); err != nil {
		return fmt.Errorf("enqueue: %w", err)
	}
	return nil
}

func messageFor(doc *document.Document) string {
	label := "document"
	switch doc.Type {
	case domain.DomainTypePrescription:
		label = "prescription"
	case domain.DomainTypeCareVoucher:
		label = "care voucher"
	case domain.DomainTypeClaimStatement:
		label = "claim statement"
	}
	if doc.Title != "" {
		return fmt.Sprintf("A new %s is available: %s", label, doc.Title)
	}
	return fmt.Sprintf("A new %s is available", label)
}

func sortRecipientIDs(ids []domain.RecipientID) {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
}
