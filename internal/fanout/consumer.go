package fanout

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"medishare/internal/document"
	kafkaconsumer "medishare/internal/platform/kafka/consumer"
	"medishare/pkg/domain"
	dErrors "medishare/pkg/domain-errors"
	"medishare/pkg/platform/sentinel"
)

// DocumentFinalized is the inbound domain event, emitted by the clinical
// write path after its own transaction commits. Delivery is at-least-once;
// duplicates are absorbed by the complete short-circuit and the ledger
// upsert.
type DocumentFinalized struct {
	DocumentID string `json:"document_id"`
	DomainType string `json:"domain_type"`
	SubjectID  string `json:"subject_id"`
	AuthorID   string `json:"author_id,omitempty"`
	Title      string `json:"title,omitempty"`
}

// EventHandler consumes DocumentFinalized messages and runs fan-out.
type EventHandler struct {
	service   *Service
	documents document.Store
	logger    *slog.Logger
}

func NewEventHandler(service *Service, documents document.Store, logger *slog.Logger) *EventHandler {
	return &EventHandler{service: service, documents: documents, logger: logger}
}

// Handle implements the consumer Handler. Returning an error triggers
// redelivery, so it is reserved for faults that retrying can fix (storage
// unavailable). Malformed payloads and configuration errors are logged and
// committed: redelivering them can only produce the same failure.
func (h *EventHandler) Handle(ctx context.Context, msg *kafkaconsumer.Message) error {
	var event DocumentFinalized
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		h.logger.ErrorContext(ctx, "malformed document-finalized event, skipping",
			"topic", msg.Topic,
			"offset", msg.Offset,
			"error", err,
		)
		return nil
	}

	docID, err := domain.ParseDocumentID(event.DocumentID)
	if err != nil {
		h.logger.ErrorContext(ctx, "event missing document id, skipping", "offset", msg.Offset)
		return nil
	}

	doc, err := h.loadOrRegister(ctx, docID, event)
	if err != nil {
		return err
	}

	result, err := h.service.ProcessDocumentFinalized(ctx, doc)
	if err != nil {
		if dErrors.IsCode(err, dErrors.CodeUnknownDomainType) {
			// Fatal for this document until an operator registers the rule.
			// The document sits in partial state; redelivery cannot fix it.
			h.logger.ErrorContext(ctx, "fan-out configuration error, needs operator attention",
				"document_id", docID,
				"error", err,
			)
			return nil
		}
		return err
	}

	if len(result.Failed) > 0 {
		h.logger.WarnContext(ctx, "fan-out partial, sweep will retry",
			"document_id", docID,
			"failed", len(result.Failed),
		)
	}
	return nil
}

// loadOrRegister fetches the document projection, creating it from the event
// on first sight. The clinical-write path owns the document; the event
// carries enough of it for fan-out.
func (h *EventHandler) loadOrRegister(ctx context.Context, docID domain.DocumentID, event DocumentFinalized) (*document.Document, error) {
	doc, err := h.documents.Get(ctx, docID)
	if err == nil {
		return doc, nil
	}
	if !errors.Is(err, sentinel.ErrNotFound) {
		return nil, err
	}

	doc = &document.Document{
		ID:          docID,
		Type:        domain.DomainType(event.DomainType),
		AuthorID:    event.AuthorID,
		SubjectID:   domain.SubjectID(event.SubjectID),
		Title:       event.Title,
		FinalizedAt: time.Now(),
		FanOutState: domain.FanOutPending,
	}
	if err := h.documents.Put(ctx, doc); err != nil {
		return nil, err
	}
	return doc, nil
}
