package storage

import (
	"context"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/jordigilh/devctx-mcp/internal/errors"
	"github.com/jordigilh/devctx-mcp/internal/models"
)

type QualityIssueRepository struct {
	q   Queryer
	log *zap.Logger
}

// Upsert relies on the partial unique index idx_quality_issues_dedup so a
// re-scan that rediscovers the same open issue updates it in place instead
// of duplicating it (spec §4.D detect_quality_issues idempotency).
func (r *QualityIssueRepository) Upsert(ctx context.Context, issue *models.QualityIssue) error {
	const q = `
		INSERT INTO quality_issues
			(issue_id, project_id, issue_type, severity, entity_id, file_path, line_number,
			 title, description, suggestion, metadata, status)
		VALUES (:issue_id, :project_id, :issue_type, :severity, :entity_id, :file_path, :line_number,
		        :title, :description, :suggestion, :metadata, :status)
		ON CONFLICT (project_id, issue_type, COALESCE(entity_id, ''), COALESCE(file_path, ''), COALESCE(line_number, -1))
		WHERE status = 'open'
		DO UPDATE SET severity = EXCLUDED.severity, title = EXCLUDED.title,
		              description = EXCLUDED.description, suggestion = EXCLUDED.suggestion,
		              metadata = EXCLUDED.metadata, detected_at = now()`
	issue.MetadataJSON = marshalJSON(issue.Metadata)
	if _, err := sqlx.NamedExecContext(ctx, r.q, q, issue); err != nil {
		return errors.NewDatabaseError("upsert quality issue", err)
	}
	return nil
}

func (r *QualityIssueRepository) Resolve(ctx context.Context, issueID string, resolvedBy *string) error {
	_, err := r.q.ExecContext(ctx, `
		UPDATE quality_issues SET status = 'resolved', resolved_at = now(), resolved_by = $2
		WHERE issue_id = $1`, issueID, resolvedBy)
	if err != nil {
		return errors.NewDatabaseError("resolve quality issue", err)
	}
	return nil
}

// Ignore implements the ignore_quality_issue tool (spec §6): the issue is
// dismissed without being counted as fixed work.
func (r *QualityIssueRepository) Ignore(ctx context.Context, issueID string) error {
	_, err := r.q.ExecContext(ctx, `
		UPDATE quality_issues SET status = 'ignored', resolved_at = now() WHERE issue_id = $1`, issueID)
	if err != nil {
		return errors.NewDatabaseError("ignore quality issue", err)
	}
	return nil
}

func (r *QualityIssueRepository) ListOpen(ctx context.Context, projectID string, severity *models.Severity) ([]models.QualityIssue, error) {
	var rows []models.QualityIssue
	var err error
	if severity != nil {
		err = r.q.SelectContext(ctx, &rows, `
			SELECT * FROM quality_issues WHERE project_id = $1 AND status = 'open' AND severity = $2
			ORDER BY detected_at DESC`, projectID, *severity)
	} else {
		err = r.q.SelectContext(ctx, &rows, `
			SELECT * FROM quality_issues WHERE project_id = $1 AND status = 'open'
			ORDER BY detected_at DESC`, projectID)
	}
	if err != nil {
		return nil, errors.NewDatabaseError("list quality issues", err)
	}
	for i := range rows {
		rows[i].Metadata = unmarshalMap(rows[i].MetadataJSON)
	}
	return rows, nil
}

// CountBySeverity powers the debt-score formula of spec §4.D.
func (r *QualityIssueRepository) CountBySeverity(ctx context.Context, projectID string) (map[models.Severity]int, error) {
	type row struct {
		Severity string `db:"severity"`
		Count    int    `db:"count"`
	}
	var rows []row
	err := r.q.SelectContext(ctx, &rows, `
		SELECT severity, count(*) FROM quality_issues
		WHERE project_id = $1 AND status = 'open' GROUP BY severity`, projectID)
	if err != nil {
		return nil, errors.NewDatabaseError("count quality issues by severity", err)
	}
	out := map[models.Severity]int{
		models.SeverityCritical: 0, models.SeverityHigh: 0,
		models.SeverityMedium: 0, models.SeverityLow: 0,
	}
	for _, rr := range rows {
		out[models.Severity(rr.Severity)] = rr.Count
	}
	return out, nil
}

// Hotspots lists up to limit open issues that carry an entity_id, most
// severe first (critical, high, medium, low) and newest first within a
// severity. It returns the issue rows as stored and does no per-entity
// grouping or weighting; identify_debt_hotspots does not use it
// (quality.Guardian.Hotspots groups ListOpen's rows by file instead).
func (r *QualityIssueRepository) Hotspots(ctx context.Context, projectID string, limit int) ([]models.QualityIssue, error) {
	var rows []models.QualityIssue
	err := r.q.SelectContext(ctx, &rows, `
		SELECT * FROM quality_issues
		WHERE project_id = $1 AND status = 'open' AND entity_id IS NOT NULL
		ORDER BY CASE severity WHEN 'critical' THEN 4 WHEN 'high' THEN 3
		                       WHEN 'medium' THEN 2 WHEN 'low' THEN 1 ELSE 0 END DESC,
		         detected_at DESC LIMIT $2`, projectID, limit)
	if err != nil {
		return nil, errors.NewDatabaseError("list quality hotspots", err)
	}
	for i := range rows {
		rows[i].Metadata = unmarshalMap(rows[i].MetadataJSON)
	}
	return rows, nil
}

type DebtSnapshotRepository struct {
	q   Queryer
	log *zap.Logger
}

func (r *DebtSnapshotRepository) Create(ctx context.Context, s *models.DebtSnapshot) error {
	const q = `
		INSERT INTO debt_snapshots
			(snapshot_id, project_id, overall_score, code_quality_score, test_coverage_score,
			 documentation_score, dependency_health_score, todo_health_score,
			 critical_count, high_count, medium_count, low_count, estimated_days_to_fix)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		RETURNING created_at`
	row := r.q.QueryRowxContext(ctx, q, s.SnapshotID, s.ProjectID, s.OverallScore, s.CodeQualityScore,
		s.TestCoverageScore, s.DocumentationScore, s.DependencyHealthScore, s.TodoHealthScore,
		s.CriticalCount, s.HighCount, s.MediumCount, s.LowCount, s.EstimatedDaysToFix)
	if err := row.Scan(&s.CreatedAt); err != nil {
		return errors.NewDatabaseError("create debt snapshot", err)
	}
	return nil
}

func (r *DebtSnapshotRepository) Latest(ctx context.Context, projectID string) (*models.DebtSnapshot, error) {
	var s models.DebtSnapshot
	err := r.q.GetContext(ctx, &s, `
		SELECT * FROM debt_snapshots WHERE project_id = $1 ORDER BY created_at DESC LIMIT 1`, projectID)
	if isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.NewDatabaseError("get latest debt snapshot", err)
	}
	return &s, nil
}

func (r *DebtSnapshotRepository) History(ctx context.Context, projectID string, limit int) ([]models.DebtSnapshot, error) {
	var rows []models.DebtSnapshot
	err := r.q.SelectContext(ctx, &rows, `
		SELECT * FROM debt_snapshots WHERE project_id = $1 ORDER BY created_at DESC LIMIT $2`, projectID, limit)
	if err != nil {
		return nil, errors.NewDatabaseError("list debt snapshot history", err)
	}
	return rows, nil
}
