package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/vitalsum-lab/vitalsum/internal/core/rollup"
)

const defaultUpsertBatchSize = 1000

const queryUpsertSummary = `
	INSERT INTO series_summaries (
		user_id, indicator, value, start_time, end_time,
		source, task_id, comment, source_table, source_table_id, indicator_id
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	ON CONFLICT (user_id, indicator, start_time, end_time)
	DO UPDATE SET
		value       = EXCLUDED.value,
		comment     = EXCLUDED.comment,
		source      = EXCLUDED.source,
		task_id     = EXCLUDED.task_id,
		update_time = CURRENT_TIMESTAMP
`

// SummaryAdapter implements storage.SummaryStore using PostgreSQL.
// The upsert key (user_id, indicator, start_time, end_time) makes every
// write idempotent: rerunning an aggregation overwrites, never duplicates.
type SummaryAdapter struct {
	db *sql.DB
}

// NewSummaryAdapter creates a summary adapter sharing the given connection.
func NewSummaryAdapter(db *sql.DB) *SummaryAdapter {
	return &SummaryAdapter{db: db}
}

// UpsertSummaries writes records in transactional chunks. A failed chunk
// rolls back and aborts the call; previously committed chunks stand, which
// is safe because a retry upserts them to identical values.
func (a *SummaryAdapter) UpsertSummaries(ctx context.Context, records []rollup.SummaryRecord, batchSize int) error {
	if len(records) == 0 {
		return nil
	}
	if batchSize <= 0 {
		batchSize = defaultUpsertBatchSize
	}

	for offset := 0; offset < len(records); offset += batchSize {
		end := offset + batchSize
		if end > len(records) {
			end = len(records)
		}
		if err := a.upsertChunk(ctx, records[offset:end]); err != nil {
			return fmt.Errorf("upsert summaries chunk at %d: %w", offset, err)
		}
	}

	slog.Info("[SummaryAdapter] Upserted summary records", "count", len(records))
	return nil
}

func (a *SummaryAdapter) upsertChunk(ctx context.Context, chunk []rollup.SummaryRecord) error {
	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, queryUpsertSummary)
	if err != nil {
		return fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, rec := range chunk {
		if _, err := stmt.ExecContext(ctx,
			rec.UserID,
			rec.Indicator,
			rec.Value,
			rec.StartTime,
			rec.EndTime,
			rec.Source,
			rec.TaskID,
			rec.Comment,
			rec.SourceTable,
			rec.SourceTableID,
			rec.IndicatorID,
		); err != nil {
			return fmt.Errorf("upsert %s/%s: %w", rec.UserID, rec.Indicator, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
