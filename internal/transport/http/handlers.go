package httptransport

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"medishare/internal/fanout"
	"medishare/internal/ledger"
	"medishare/internal/notify"
	"medishare/internal/platform/middleware"
	"medishare/pkg/domain"
	dErrors "medishare/pkg/domain-errors"
)

//go:generate mockgen -source=handlers.go -destination=mocks/services.go -package=mocks

// ShareService is the read side of the share ledger.
type ShareService interface {
	ListRecipients(ctx context.Context, docID domain.DocumentID) ([]ledger.ShareRecord, error)
}

// NotificationService is the read/ack side of the notification queue.
type NotificationService interface {
	ListByRecipient(ctx context.Context, recipientID domain.RecipientID, unreadOnly bool) ([]notify.Entry, error)
	MarkRead(ctx context.Context, id domain.NotificationID) error
}

// FanOutService triggers fan-out for a document. The endpoint exists for
// back-office corrections; it is idempotent by construction.
type FanOutService interface {
	Trigger(ctx context.Context, docID domain.DocumentID) (fanout.Result, error)
}

// Handler is the thin HTTP layer. It delegates to domain services without
// embedding business logic so transport concerns remain isolated.
type Handler struct {
	logger        *slog.Logger
	shares        ShareService
	notifications NotificationService
	fanout        FanOutService
}

func NewHandler(shares ShareService, notifications NotificationService, fanoutService FanOutService, logger *slog.Logger) *Handler {
	return &Handler{
		logger:        logger,
		shares:        shares,
		notifications: notifications,
		fanout:        fanoutService,
	}
}

type shareRecordResponse struct {
	RecipientID string    `json:"recipient_id"`
	Role        string    `json:"role"`
	GrantedAt   time.Time `json:"granted_at"`
}

func (h *Handler) handleListRecipients(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	docID, err := domain.ParseDocumentID(chi.URLParam(r, "documentID"))
	if err != nil {
		writeError(w, err)
		return
	}

	records, err := h.shares.ListRecipients(ctx, docID)
	if err != nil {
		h.logger.ErrorContext(ctx, "list recipients failed",
			"document_id", docID,
			"request_id", middleware.GetRequestID(ctx),
			"error", err,
		)
		writeError(w, err)
		return
	}

	recipients := make([]shareRecordResponse, 0, len(records))
	for _, record := range records {
		recipients = append(recipients, shareRecordResponse{
			RecipientID: record.RecipientID.String(),
			Role:        record.Role.String(),
			GrantedAt:   record.GrantedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"document_id": docID.String(),
		"recipients":  recipients,
	})
}

type notificationResponse struct {
	ID         string     `json:"id"`
	DocumentID string     `json:"document_id"`
	Message    string     `json:"message"`
	CreatedAt  time.Time  `json:"created_at"`
	ReadAt     *time.Time `json:"read_at,omitempty"`
	Status     string     `json:"status"`
}

func (h *Handler) handleListNotifications(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	recipientID, err := domain.ParseRecipientID(chi.URLParam(r, "recipientID"))
	if err != nil {
		writeError(w, err)
		return
	}
	unreadOnly := r.URL.Query().Get("unread") == "true"

	entries, err := h.notifications.ListByRecipient(ctx, recipientID, unreadOnly)
	if err != nil {
		h.logger.ErrorContext(ctx, "list notifications failed",
			"recipient_id", recipientID,
			"request_id", middleware.GetRequestID(ctx),
			"error", err,
		)
		writeError(w, err)
		return
	}

	notifications := make([]notificationResponse, 0, len(entries))
	for _, entry := range entries {
		notifications = append(notifications, notificationResponse{
			ID:         entry.ID.String(),
			DocumentID: entry.DocumentID.String(),
			Message:    entry.Message,
			CreatedAt:  entry.CreatedAt,
			ReadAt:     entry.ReadAt,
			Status:     entry.Status.String(),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"recipient_id":  recipientID.String(),
		"notifications": notifications,
	})
}

func (h *Handler) handleMarkNotificationRead(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := domain.ParseNotificationID(chi.URLParam(r, "notificationID"))
	if err != nil {
		writeError(w, err)
		return
	}

	if err := h.notifications.MarkRead(ctx, id); err != nil {
		h.logger.ErrorContext(ctx, "mark notification read failed",
			"notification_id", id,
			"request_id", middleware.GetRequestID(ctx),
			"error", err,
		)
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleFinalizeDocument(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	docID, err := domain.ParseDocumentID(chi.URLParam(r, "documentID"))
	if err != nil {
		writeError(w, err)
		return
	}

	result, err := h.fanout.Trigger(ctx, docID)
	if err != nil {
		h.logger.ErrorContext(ctx, "fan-out trigger failed",
			"document_id", docID,
			"request_id", middleware.GetRequestID(ctx),
			"error", err,
		)
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"document_id": docID.String(),
		"granted":     recipientIDStrings(result.Granted),
		"failed":      recipientIDStrings(result.Failed),
	})
}

func recipientIDStrings(ids []domain.RecipientID) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, id.String())
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeError centralizes domain error translation to HTTP responses, keeping
// a consistent JSON error envelope.
func writeError(w http.ResponseWriter, err error) {
	code := dErrors.CodeOf(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(dErrors.ToHTTPStatus(code))
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error": string(code),
	})
}
