package ledger

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

// PostgresStore persists share records. The primary key on
// (document_id, recipient_id) serializes concurrent grants for the same pair
// at the storage layer; ON CONFLICT DO NOTHING turns the second writer into
// an AlreadyExists outcome instead of an error.
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

// EnsureSchema creates the share_records table if missing.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS share_records (
			document_id  TEXT NOT NULL,
			recipient_id TEXT NOT NULL,
			role         TEXT NOT NULL,
			granted_at   TIMESTAMPTZ NOT NULL,
			status       TEXT NOT NULL DEFAULT 'granted',
			PRIMARY KEY (document_id, recipient_id)
		);
		CREATE INDEX IF NOT EXISTS idx_share_records_recipient ON share_records (recipient_id);
	`)
	if err != nil {
		return fmt.Errorf("ensure share_records schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) Grant(ctx context.Context, docID domain.DocumentID, recipientID domain.RecipientID, role domain.RecipientRole) (GrantOutcome, error) {
	res, err := s.execer(ctx).ExecContext(ctx, `
		INSERT INTO share_records (document_id, recipient_id, role, granted_at, status)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (document_id, recipient_id) DO NOTHING
	`, docID.String(), recipientID.String(), role.String(), time.Now(), domain.ShareGranted.String())
	if err != nil {
		return "", fmt.Errorf("grant share: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return "", fmt.Errorf("grant share: %w", err)
	}
	if affected == 0 {
		return OutcomeAlreadyExists, nil
	}
	return OutcomeCreated, nil
}

func (s *PostgresStore) Revoke(ctx context.Context, docID domain.DocumentID, recipientID domain.RecipientID) error {
	res, err := s.execer(ctx).ExecContext(ctx, `
		UPDATE share_records
		SET status = $3
		WHERE document_id = $1 AND recipient_id = $2
	`, docID.String(), recipientID.String(), domain.ShareRevoked.String())
	if err != nil {
		return fmt.Errorf("revoke share: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("revoke share: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ListRecipients(ctx context.Context, docID domain.DocumentID) ([]ShareRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT document_id, recipient_id, role, granted_at, status
		FROM share_records
		WHERE document_id = $1 AND status = $2
		ORDER BY recipient_id
	`, docID.String(), domain.ShareGranted.String())
	if err != nil {
		return nil, fmt.Errorf("list recipients: %w", err)
	}
	defer rows.Close()

	var records []ShareRecord
	for rows.Next() {
		record, err := scanShareRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan share record: %w", err)
		}
		records = append(records, *record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate share records: %w", err)
	}
	return records, nil
}

func (s *PostgresStore) Get(ctx context.Context, docID domain.DocumentID, recipientID domain.RecipientID) (*ShareRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT document_id, recipient_id, role, granted_at, status
		FROM share_records
		WHERE document_id = $1 AND recipient_id = $2
	`, docID.String(), recipientID.String())

	record, err := scanShareRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("get share record: %w", err)
	}
	return record, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanShareRecord(row rowScanner) (*ShareRecord, error) {
	var (
		record      ShareRecord
		docID       string
		recipientID string
		role        string
		status      string
	)
	if err := row.Scan(&docID, &recipientID, &role, &record.GrantedAt, &status); err != nil {
		return nil, err
	}
	record.DocumentID = domain.DocumentID(docID)
	record.RecipientID = domain.RecipientID(recipientID)
	record.Role = domain.RecipientRole(role)
	record.Status = domain.ShareStatus(status)
	return &record, nil
}
