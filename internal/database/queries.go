package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"hoststatus/internal/domain"
)

const defaultListLimit = 20

// SaveRun stores the run and its deliveries in one transaction and returns the
// new run ID.
func (d *Database) SaveRun(ctx context.Context, run domain.Run) (int64, error) {
	if strings.TrimSpace(run.Status) == "" {
		return 0, errors.New("run status is empty")
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if rollbackErr := tx.Rollback(); rollbackErr != nil && !errors.Is(rollbackErr, sql.ErrTxDone) {
			d.log.ErrorContext(ctx, "Failed to rollback transaction",
				"error", rollbackErr,
				"operation", "SaveRun")
		}
	}()

	query := `insert into runs
		(kind, provider, model, started_at, finished_at, generation_error, report_length, chunk_count, status)
		values (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	res, err := tx.ExecContext(ctx, query,
		string(run.Kind),
		run.Provider,
		run.Model,
		run.StartedAt.UTC(),
		run.FinishedAt.UTC(),
		run.GenerationError,
		run.ReportLength,
		run.ChunkCount,
		run.Status)
	if err != nil {
		return 0, fmt.Errorf("insert run: %w", err)
	}

	runID, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("get run ID: %w", err)
	}

	query = `insert into deliveries
		(run_id, chunk_index, status, http_status, error_kind, error_detail)
		values (?, ?, ?, ?, ?, ?)`

	for _, delivery := range run.Deliveries {
		if _, err = tx.ExecContext(ctx, query,
			runID,
			delivery.ChunkIndex,
			delivery.Status,
			delivery.HTTPStatus,
			delivery.ErrorKind,
			delivery.ErrorDetail); err != nil {
			return 0, fmt.Errorf("insert delivery %d: %w", delivery.ChunkIndex, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit transaction: %w", err)
	}

	return runID, nil
}

// ListRuns returns the latest runs first, each with its deliveries in chunk order.
func (d *Database) ListRuns(ctx context.Context, limit int) ([]domain.Run, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}

	query := `select id, kind, provider, model, started_at, finished_at,
		generation_error, report_length, chunk_count, status
		from runs order by id desc limit ?`

	rows, err := d.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer func() {
		if err = rows.Close(); err != nil {
			d.log.ErrorContext(ctx, "Failed to close rows",
				"error", err,
				"operation", "ListRuns")
		}
	}()

	var runs []domain.Run
	for rows.Next() {
		var (
			r    domain.Run
			kind string
		)
		if err = rows.Scan(
			&r.ID,
			&kind,
			&r.Provider,
			&r.Model,
			&r.StartedAt,
			&r.FinishedAt,
			&r.GenerationError,
			&r.ReportLength,
			&r.ChunkCount,
			&r.Status,
		); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		r.Kind = domain.ReportKind(kind)
		runs = append(runs, r)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate rows: %w", err)
	}

	for i := range runs {
		deliveries, deliveriesErr := d.runDeliveries(ctx, runs[i].ID)
		if deliveriesErr != nil {
			return nil, deliveriesErr
		}
		runs[i].Deliveries = deliveries
	}

	return runs, nil
}

func (d *Database) runDeliveries(ctx context.Context, runID int64) ([]domain.Delivery, error) {
	query := `select chunk_index, status, http_status, error_kind, error_detail
		from deliveries where run_id = ? order by chunk_index`

	rows, err := d.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer func() {
		if err = rows.Close(); err != nil {
			d.log.ErrorContext(ctx, "Failed to close rows",
				"error", err,
				"runID", runID,
				"operation", "runDeliveries")
		}
	}()

	var deliveries []domain.Delivery
	for rows.Next() {
		var delivery domain.Delivery
		if err = rows.Scan(
			&delivery.ChunkIndex,
			&delivery.Status,
			&delivery.HTTPStatus,
			&delivery.ErrorKind,
			&delivery.ErrorDetail,
		); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		deliveries = append(deliveries, delivery)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate rows: %w", err)
	}

	return deliveries, nil
}
