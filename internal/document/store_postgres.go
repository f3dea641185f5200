package document

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"medishare/pkg/domain"
	"medishare/pkg/platform/sentinel"
	txcontext "medishare/pkg/platform/tx"
)

// PostgresStore persists document projections for fan-out bookkeeping.
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

// EnsureSchema creates the documents table if missing. Applied at startup;
// the schema is append-mostly and safe to re-run.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS documents (
			id                TEXT PRIMARY KEY,
			domain_type       TEXT NOT NULL,
			author_id         TEXT NOT NULL,
			subject_id        TEXT NOT NULL,
			title             TEXT NOT NULL DEFAULT '',
			finalized_at      TIMESTAMPTZ NOT NULL,
			fan_out_state     TEXT NOT NULL DEFAULT 'pending',
			failed_recipients JSONB NOT NULL DEFAULT '[]'
		);
		CREATE INDEX IF NOT EXISTS idx_documents_fan_out_state ON documents (fan_out_state);
	`)
	if err != nil {
		return fmt.Errorf("ensure documents schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id domain.DocumentID) (*Document, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, domain_type, author_id, subject_id, title, finalized_at, fan_out_state, failed_recipients
		FROM documents
		WHERE id = $1
	`, id.String())

	doc, err := scanDocument(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("get document: %w", err)
	}
	return doc, nil
}

func (s *PostgresStore) Put(ctx context.Context, doc *Document) error {
	failed, err := json.Marshal(recipientStrings(doc.FailedRecipients))
	if err != nil {
		return fmt.Errorf("marshal failed recipients: %w", err)
	}
	_, err = s.execer(ctx).ExecContext(ctx, `
		INSERT INTO documents (id, domain_type, author_id, subject_id, title, finalized_at, fan_out_state, failed_recipients)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			domain_type  = EXCLUDED.domain_type,
			author_id    = EXCLUDED.author_id,
			subject_id   = EXCLUDED.subject_id,
			title        = EXCLUDED.title,
			finalized_at = EXCLUDED.finalized_at
	`,
		doc.ID.String(),
		doc.Type.String(),
		doc.AuthorID,
		doc.SubjectID.String(),
		doc.Title,
		doc.FinalizedAt,
		doc.FanOutState.String(),
		failed,
	)
	if err != nil {
		return fmt.Errorf("put document: %w", err)
	}
	return nil
}

func (s *PostgresStore) SetFanOutState(ctx context.Context, id domain.DocumentID, state domain.FanOutState, failed []domain.RecipientID) error {
	payload, err := json.Marshal(recipientStrings(failed))
	if err != nil {
		return fmt.Errorf("marshal failed recipients: %w", err)
	}
	res, err := s.execer(ctx).ExecContext(ctx, `
		UPDATE documents
		SET fan_out_state = $2, failed_recipients = $3
		WHERE id = $1
	`, id.String(), state.String(), payload)
	if err != nil {
		return fmt.Errorf("set fan-out state: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("set fan-out state: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ListByFanOutState(ctx context.Context, state domain.FanOutState) ([]*Document, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, domain_type, author_id, subject_id, title, finalized_at, fan_out_state, failed_recipients
		FROM documents
		WHERE fan_out_state = $1
		ORDER BY finalized_at
	`, state.String())
	if err != nil {
		return nil, fmt.Errorf("list documents by state: %w", err)
	}
	defer rows.Close()

	var docs []*Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	return docs, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*Document, error) {
	var (
		doc        Document
		id         string
		domainType string
		subjectID  string
		state      string
		failedRaw  []byte
	)
	err := row.Scan(&id, &domainType, &doc.AuthorID, &subjectID, &doc.Title, &doc.FinalizedAt, &state, &failedRaw)
	if err != nil {
		return nil, err
	}
	doc.ID = domain.DocumentID(id)
	doc.Type = domain.DomainType(domainType)
	doc.SubjectID = domain.SubjectID(subjectID)
	doc.FanOutState = domain.FanOutState(state)

	var failed []string
	if err := json.Unmarshal(failedRaw, &failed); err != nil {
		return nil, fmt.Errorf("unmarshal failed recipients: %w", err)
	}
	for _, f := range failed {
		doc.FailedRecipients = append(doc.FailedRecipients, domain.RecipientID(f))
	}
	return &doc, nil
}

func recipientStrings(ids []domain.RecipientID) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, id.String())
	}
	return out
}
