package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/joseffiran/SilkRouteHelper-1/internal/core/domain"
)

type DocumentRepository struct {
	db  *sql.DB
	now func() time.Time
}

func NewDocumentRepository(db *sql.DB) *DocumentRepository {
	return &DocumentRepository{db: db, now: time.Now}
}

func (r *DocumentRepository) Create(ctx context.Context, doc *domain.Document) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO documents (
	id, filename, mime_type, storage_path, document_type, status, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
`,
		doc.ID, doc.Filename, doc.MimeType, doc.StoragePath, string(doc.DocumentType),
		string(doc.Status), doc.CreatedAt, doc.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

func (r *DocumentRepository) GetByID(ctx context.Context, id string) (*domain.Document, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id, filename, mime_type, storage_path, document_type, status, processing_mode, job_id, run_seq,
	extracted_data, error, created_at, updated_at
FROM documents
WHERE id = $1
`, id)

	var (
		doc                   domain.Document
		docType, status, mode string
		reportRaw, errorRaw   []byte
	)
	err := row.Scan(
		&doc.ID, &doc.Filename, &doc.MimeType, &doc.StoragePath, &docType, &status, &mode, &doc.JobID, &doc.RunSeq,
		&reportRaw, &errorRaw, &doc.CreatedAt, &doc.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrDocumentNotFound, "get document", fmt.Errorf("id=%s", id))
		}
		return nil, fmt.Errorf("scan document: %w", err)
	}

	doc.DocumentType = domain.DocumentType(docType)
	doc.Status = domain.DocumentStatus(status)
	doc.Mode = domain.ProcessingMode(mode)
	if len(reportRaw) > 0 {
		if err := json.Unmarshal(reportRaw, &doc.Report); err != nil {
			return nil, fmt.Errorf("unmarshal extracted data: %w", err)
		}
	}
	if len(errorRaw) > 0 {
		if err := json.Unmarshal(errorRaw, &doc.Error); err != nil {
			return nil, fmt.Errorf("unmarshal error detail: %w", err)
		}
	}
	return &doc, nil
}

// BeginRun moves a document into processing unless a run is already in
// flight. The status check and run_seq increment happen in one statement.
func (r *DocumentRepository) BeginRun(
	ctx context.Context,
	id string,
	mode domain.ProcessingMode,
	jobID string,
) (domain.RunTicket, error) {
	now := r.now().UTC()
	row := r.db.QueryRowContext(ctx, `
UPDATE documents
SET status = $2, processing_mode = $3, job_id = $4, run_seq = run_seq + 1,
	error = NULL, started_at = $5, updated_at = $5
WHERE id = $1 AND status <> $2
RETURNING run_seq
`, id, string(domain.StatusProcessing), string(mode), jobID, now)

	var runSeq int64
	if err := row.Scan(&runSeq); err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return domain.RunTicket{}, fmt.Errorf("begin run: %w", err)
		}
		return domain.RunTicket{}, r.beginRunRejected(ctx, id)
	}
	return domain.RunTicket{DocumentID: id, RunSeq: runSeq, Mode: mode, JobID: jobID}, nil
}

func (r *DocumentRepository) beginRunRejected(ctx context.Context, id string) error {
	var status string
	err := r.db.QueryRowContext(ctx, `SELECT status FROM documents WHERE id = $1`, id).Scan(&status)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return domain.WrapError(domain.ErrDocumentNotFound, "begin run", fmt.Errorf("id=%s", id))
	case err != nil:
		return fmt.Errorf("check document status: %w", err)
	default:
		return domain.WrapError(domain.ErrConflict, "begin run", fmt.Errorf("document %s is %s", id, status))
	}
}

// FinishRun writes the terminal state only while the ticket's run is current.
func (r *DocumentRepository) FinishRun(ctx context.Context, outcome domain.RunOutcome) error {
	reportJSON, err := json.Marshal(outcome.Report)
	if err != nil {
		return fmt.Errorf("marshal extracted data: %w", err)
	}
	errorJSON, err := json.Marshal(outcome.Error)
	if err != nil {
		return fmt.Errorf("marshal error detail: %w", err)
	}

	res, err := r.db.ExecContext(ctx, `
UPDATE documents
SET status = $3, extracted_data = $4, error = $5, started_at = NULL, updated_at = $6
WHERE id = $1 AND run_seq = $2 AND status = $7
`,
		outcome.Ticket.DocumentID, outcome.Ticket.RunSeq, string(outcome.Status),
		nullableJSON(reportJSON), nullableJSON(errorJSON), r.now().UTC(), string(domain.StatusProcessing),
	)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("finish run rows affected: %w", err)
	}
	if affected == 0 {
		return domain.WrapError(
			domain.ErrStaleRun,
			"finish run",
			fmt.Errorf("document %s run_seq=%d", outcome.Ticket.DocumentID, outcome.Ticket.RunSeq),
		)
	}
	return nil
}

// FailStuck ends every run that started before startedBefore. Bumping
// run_seq makes any late write from the reclaimed run stale.
func (r *DocumentRepository) FailStuck(ctx context.Context, startedBefore time.Time, detail domain.ErrorDetail) ([]string, error) {
	errorJSON, err := json.Marshal(detail)
	if err != nil {
		return nil, fmt.Errorf("marshal error detail: %w", err)
	}
	rows, err := r.db.QueryContext(ctx, `
UPDATE documents
SET status = $1, error = $2, extracted_data = NULL, run_seq = run_seq + 1, started_at = NULL, updated_at = $3
WHERE status = $4 AND started_at < $5
RETURNING id
`, string(domain.StatusError), errorJSON, r.now().UTC(), string(domain.StatusProcessing), startedBefore)
	if err != nil {
		return nil, fmt.Errorf("fail stuck documents: %w", err)
	}
	defer rows.Close()

	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan reclaimed id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reclaimed ids: %w", err)
	}
	sort.Strings(ids)
	return ids, nil
}

func (r *DocumentRepository) CountByStatus(ctx context.Context) (map[domain.DocumentStatus]int, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM documents GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count documents: %w", err)
	}
	defer rows.Close()

	out := make(map[domain.DocumentStatus]int)
	for rows.Next() {
		var (
			status string
			count  int
		)
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan status count: %w", err)
		}
		out[domain.DocumentStatus(status)] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate status counts: %w", err)
	}
	return out, nil
}
