package storage

import (
	"context"

	"go.uber.org/zap"

	"github.com/jordigilh/devctx-mcp/internal/errors"
	"github.com/jordigilh/devctx-mcp/internal/models"
)

type ErrorRecordRepository struct {
	q   Queryer
	log *zap.Logger
}

// Upsert is keyed on error_id, the SHA-256 content fingerprint computed by
// internal/firewall over the canonicalized error pattern (spec §4.E
// record_error). A repeat occurrence bumps occurrence_count and
// last_occurred_at rather than inserting a duplicate row.
func (r *ErrorRecordRepository) Upsert(ctx context.Context, rec *models.ErrorRecord) error {
	const q = `
		INSERT INTO error_records
			(error_id, error_type, error_scene, error_pattern, error_message, solution,
			 solution_confidence, block_level, auto_fix, occurrence_count, last_occurred_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,1,now())
		ON CONFLICT (error_id) DO UPDATE SET
			occurrence_count = error_records.occurrence_count + 1,
			last_occurred_at = now(),
			solution = COALESCE(EXCLUDED.solution, error_records.solution),
			solution_confidence = GREATEST(error_records.solution_confidence, EXCLUDED.solution_confidence)
		RETURNING id, occurrence_count, created_at, last_occurred_at`
	row := r.q.QueryRowxContext(ctx, q, rec.ErrorID, rec.ErrorType, rec.ErrorScene, marshalJSON(rec.ErrorPattern),
		rec.ErrorMessage, rec.Solution, rec.SolutionConfidence, rec.BlockLevel, rec.AutoFix)
	if err := row.Scan(&rec.ID, &rec.OccurrenceCount, &rec.CreatedAt, &rec.LastOccurredAt); err != nil {
		return errors.NewDatabaseError("upsert error record", err)
	}
	return nil
}

func (r *ErrorRecordRepository) ByErrorID(ctx context.Context, errorID string) (*models.ErrorRecord, error) {
	var rec models.ErrorRecord
	err := r.q.GetContext(ctx, &rec, `SELECT * FROM error_records WHERE error_id = $1`, errorID)
	if isNoRows(err) {
		return nil, errors.NewNotFoundError("error record")
	}
	if err != nil {
		return nil, errors.NewDatabaseError("get error record", err)
	}
	rec.ErrorPattern = unmarshalMap(rec.ErrorPatternJSON)
	return &rec, nil
}

// ByType lists error records with the given error_type, the candidate pool
// check_operation scores against for fuzzy matches (spec §4.E).
func (r *ErrorRecordRepository) ByType(ctx context.Context, errorType string) ([]models.ErrorRecord, error) {
	var rows []models.ErrorRecord
	err := r.q.SelectContext(ctx, &rows, `
		SELECT * FROM error_records WHERE error_type = $1 ORDER BY occurrence_count DESC`, errorType)
	if err != nil {
		return nil, errors.NewDatabaseError("list error records by type", err)
	}
	for i := range rows {
		rows[i].ErrorPattern = unmarshalMap(rows[i].ErrorPatternJSON)
	}
	return rows, nil
}

func (r *ErrorRecordRepository) IncrementBlocked(ctx context.Context, id int64) error {
	_, err := r.q.ExecContext(ctx, `UPDATE error_records SET blocked_count = blocked_count + 1 WHERE id = $1`, id)
	if err != nil {
		return errors.NewDatabaseError("increment blocked count", err)
	}
	return nil
}

// TopByOccurrence backs the SPEC_FULL.md §E "top_error_types" firewall
// stats addition.
func (r *ErrorRecordRepository) TopByOccurrence(ctx context.Context, limit int) ([]models.ErrorRecord, error) {
	var rows []models.ErrorRecord
	err := r.q.SelectContext(ctx, &rows, `
		SELECT * FROM error_records ORDER BY occurrence_count DESC LIMIT $1`, limit)
	if err != nil {
		return nil, errors.NewDatabaseError("list top error types", err)
	}
	for i := range rows {
		rows[i].ErrorPattern = unmarshalMap(rows[i].ErrorPatternJSON)
	}
	return rows, nil
}

func (r *ErrorRecordRepository) Stats(ctx context.Context) (total, blocked int, err error) {
	row := r.q.QueryRowxContext(ctx, `
		SELECT coalesce(sum(occurrence_count),0), coalesce(sum(blocked_count),0) FROM error_records`)
	if scanErr := row.Scan(&total, &blocked); scanErr != nil {
		return 0, 0, errors.NewDatabaseError("get error stats", scanErr)
	}
	return total, blocked, nil
}

type InterceptLogRepository struct {
	q   Queryer
	log *zap.Logger
}

func (r *InterceptLogRepository) Create(ctx context.Context, l *models.InterceptLog) error {
	const q = `
		INSERT INTO intercept_logs
			(error_record_id, intercept_type, intercept_action, operation_type, operation_params,
			 match_confidence, session_id)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		RETURNING id, created_at`
	row := r.q.QueryRowxContext(ctx, q, l.ErrorRecordID, l.InterceptType, l.InterceptAction, l.OperationType,
		marshalJSON(l.OperationParams), l.MatchConfidence, l.SessionID)
	if err := row.Scan(&l.ID, &l.CreatedAt); err != nil {
		return errors.NewDatabaseError("create intercept log", err)
	}
	return nil
}

func (r *InterceptLogRepository) ByErrorRecord(ctx context.Context, errorRecordID int64, limit int) ([]models.InterceptLog, error) {
	var rows []models.InterceptLog
	err := r.q.SelectContext(ctx, &rows, `
		SELECT * FROM intercept_logs WHERE error_record_id = $1 ORDER BY created_at DESC LIMIT $2`,
		errorRecordID, limit)
	if err != nil {
		return nil, errors.NewDatabaseError("list intercept logs", err)
	}
	for i := range rows {
		rows[i].OperationParams = unmarshalMap(rows[i].OperationParamsJSON)
	}
	return rows, nil
}

func (r *InterceptLogRepository) CountByAction(ctx context.Context, action models.InterceptAction) (int, error) {
	var count int
	err := r.q.GetContext(ctx, &count, `SELECT count(*) FROM intercept_logs WHERE intercept_action = $1`, action)
	if err != nil {
		return 0, errors.NewDatabaseError("count intercept logs", err)
	}
	return count, nil
}
