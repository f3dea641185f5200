package notify

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"medishare/pkg/domain"
	"medishare/pkg/platform/sentinel"
	txcontext "medishare/pkg/platform/tx"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *PostgresStore) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

// EnsureSchema creates the notifications table if missing.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS notifications (
			id             UUID PRIMARY KEY,
			recipient_id   TEXT NOT NULL,
			document_id    TEXT NOT NULL,
			message        TEXT NOT NULL,
			created_at     TIMESTAMPTZ NOT NULL,
			read_at        TIMESTAMPTZ,
			status         TEXT NOT NULL DEFAULT 'queued',
			failure_reason TEXT NOT NULL DEFAULT ''
		);
		CREATE INDEX IF NOT EXISTS idx_notifications_recipient ON notifications (recipient_id, created_at DESC);
		CREATE INDEX IF NOT EXISTS idx_notifications_status ON notifications (status, created_at);
		CREATE INDEX IF NOT EXISTS idx_notifications_pair ON notifications (recipient_id, document_id);
	`)
	if err != nil {
		return fmt.Errorf("ensure notifications schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) Append(ctx context.Context, entry Entry) error {
	_, err := s.execer(ctx).ExecContext(ctx, `
		INSERT INTO notifications (id, recipient_id, document_id, message, created_at, read_at, status, failure_reason)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`,
		entry.ID.String(),
		entry.RecipientID.String(),
		entry.DocumentID.String(),
		entry.Message,
		entry.CreatedAt,
		entry.ReadAt,
		entry.Status.String(),
		entry.FailureReason,
	)
	if err != nil {
		return fmt.Errorf("append notification: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id domain.NotificationID) (*Entry, error) {
	row := s.db.QueryRowContext(ctx, selectEntry+` WHERE id = $1`, id.String())
	entry, err := scanEntry(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("get notification: %w", err)
	}
	return entry, nil
}

func (s *PostgresStore) SetStatus(ctx context.Context, id domain.NotificationID, status domain.DeliveryStatus, reason string) error {
	res, err := s.execer(ctx).ExecContext(ctx, `
		UPDATE notifications SET status = $2, failure_reason = $3 WHERE id = $1
	`, id.String(), status.String(), reason)
	if err != nil {
		return fmt.Errorf("set notification status: %w", err)
	}
	return checkAffected(res)
}

func (s *PostgresStore) MarkRead(ctx context.Context, id domain.NotificationID, at time.Time) error {
	res, err := s.execer(ctx).ExecContext(ctx, `
		UPDATE notifications SET read_at = COALESCE(read_at, $2) WHERE id = $1
	`, id.String(), at)
	if err != nil {
		return fmt.Errorf("mark notification read: %w", err)
	}
	return checkAffected(res)
}

func (s *PostgresStore) ListByRecipient(ctx context.Context, recipientID domain.RecipientID, unreadOnly bool) ([]Entry, error) {
	query := selectEntry + ` WHERE recipient_id = $1`
	if unreadOnly {
		query += ` AND read_at IS NULL`
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.db.QueryContext(ctx, query, recipientID.String())
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

func (s *PostgresStore) ListQueuedBefore(ctx context.Context, cutoff time.Time) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, selectEntry+`
		WHERE status = $1 AND created_at < $2
		ORDER BY created_at
	`, domain.DeliveryQueued.String(), cutoff)
	if err != nil {
		return nil, fmt.Errorf("list queued notifications: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

func (s *PostgresStore) ExistsFor(ctx context.Context, recipientID domain.RecipientID, docID domain.DocumentID) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM notifications WHERE recipient_id = $1 AND document_id = $2
		)
	`, recipientID.String(), docID.String()).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check notification exists: %w", err)
	}
	return exists, nil
}

const selectEntry = `
	SELECT id, recipient_id, document_id, message, created_at, read_at, status, failure_reason
	FROM notifications`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (*Entry, error) {
	var (
		entry       Entry
		id          string
		recipientID string
		docID       string
		status      string
		readAt      sql.NullTime
	)
	err := row.Scan(&id, &recipientID, &docID, &entry.Message, &entry.CreatedAt, &readAt, &status, &entry.FailureReason)
	if err != nil {
		return nil, err
	}
	entry.ID = domain.NotificationID(id)
	entry.RecipientID = domain.RecipientID(recipientID)
	entry.DocumentID = domain.DocumentID(docID)
	entry.Status = domain.DeliveryStatus(status)
	if readAt.Valid {
		t := readAt.Time
		entry.ReadAt = &t
	}
	return &entry, nil
}

func scanEntries(rows *sql.Rows) ([]Entry, error) {
	var entries []Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		entries = append(entries, *entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate notifications: %w", err)
	}
	return entries, nil
}

func checkAffected(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}
