package repository

import (
	"context"
	"database/sql"
)

// BatchRepo records import batches and their counters.
type BatchRepo struct {
	db DBTX
}

func NewBatchRepo(db DBTX) *BatchRepo { return &BatchRepo{db: db} }

func (r *BatchRepo) Insert(ctx context.Context, b ImportBatch) error {
	_, err := r.db.ExecContext(ctx, `
	INSERT INTO import_batches(id, source_type, fingerprint, rows_seen, rows_imported, rows_skipped, rows_errored, created_at)
	VALUES(?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP);
	`, b.ID, b.SourceType, b.Fingerprint, b.RowsSeen, b.RowsImported, b.RowsSkipped, b.RowsErrored)
	return err
}

// UpdateCounters is only called during the batch's own ingest run.
func (r *BatchRepo) UpdateCounters(ctx context.Context, b ImportBatch) error {
	_, err := r.db.ExecContext(ctx, `
	UPDATE import_batches SET rows_seen = ?, rows_imported = ?, rows_skipped = ?, rows_errored = ?
	WHERE id = ?`, b.RowsSeen, b.RowsImported, b.RowsSkipped, b.RowsErrored, b.ID)
	return err
}

func (r *BatchRepo) Get(ctx context.Context, id string) (*ImportBatch, error) {
	row := r.db.QueryRowContext(ctx, batchCols+` WHERE id = ?`, id)
	return scanBatchPtr(row)
}

func (r *BatchRepo) GetByFingerprint(ctx context.Context, sourceType, fingerprint string) (*ImportBatch, error) {
	row := r.db.QueryRowContext(ctx, batchCols+` WHERE source_type = ? AND fingerprint = ?`, sourceType, fingerprint)
	return scanBatchPtr(row)
}

func (r *BatchRepo) List(ctx context.Context) ([]ImportBatch, error) {
	rows, err := r.db.QueryContext(ctx, batchCols+` ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ImportBatch
	for rows.Next() {
		var b ImportBatch
		if err := rows.Scan(&b.ID, &b.SourceType, &b.Fingerprint, &b.RowsSeen, &b.RowsImported,
			&b.RowsSkipped, &b.RowsErrored, &b.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

const batchCols = `SELECT id, source_type, fingerprint, rows_seen, rows_imported, rows_skipped, rows_errored, created_at FROM import_batches`

func scanBatchPtr(row *sql.Row) (*ImportBatch, error) {
	var b ImportBatch
	if err := row.Scan(&b.ID, &b.SourceType, &b.Fingerprint, &b.RowsSeen, &b.RowsImported,
		&b.RowsSkipped, &b.RowsErrored, &b.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &b, nil
}
