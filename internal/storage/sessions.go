package storage

import (
	"context"

	"go.uber.org/zap"

	"github.com/jordigilh/devctx-mcp/internal/errors"
	"github.com/jordigilh/devctx-mcp/internal/models"
)

type SessionRepository struct {
	q   Queryer
	log *zap.Logger
}

func (r *SessionRepository) Create(ctx context.Context, s *models.Session) error {
	const q = `
		INSERT INTO sessions (session_id, project_id, start_time, goals, files_modified, issues_encountered)
		VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := r.q.ExecContext(ctx, q, s.SessionID, s.ProjectID, s.StartTime, s.Goals,
		marshalJSON(s.FilesModified), marshalJSON(s.IssuesEncountered))
	if err != nil {
		return errors.NewDatabaseError("create session", err)
	}
	return nil
}

func (r *SessionRepository) Get(ctx context.Context, sessionID string) (*models.Session, error) {
	var s models.Session
	var filesJSON, issuesJSON []byte
	row := r.q.QueryRowxContext(ctx, `
		SELECT session_id, project_id, start_time, end_time, duration_minutes, goals,
		       achievements, next_steps, files_modified, issues_encountered, context_summary
		FROM sessions WHERE session_id = $1`, sessionID)
	err := row.Scan(&s.SessionID, &s.ProjectID, &s.StartTime, &s.EndTime, &s.DurationMinutes, &s.Goals,
		&s.Achievements, &s.NextSteps, &filesJSON, &issuesJSON, &s.ContextSummary)
	if isNoRows(err) {
		return nil, errors.NewNotFoundError("session")
	}
	if err != nil {
		return nil, errors.NewDatabaseError("get session", err)
	}
	s.FilesModified = unmarshalStrings(filesJSON)
	s.IssuesEncountered = unmarshalStrings(issuesJSON)
	return &s, nil
}

// End writes end_time/duration/achievements and the follow-up fields onto a
// session unconditionally; it does not check whether the session has
// already ended. The idempotent end_session behaviour (spec §4.C) lives in
// contextstore.Store.EndSession, which returns an already-ended session
// without calling End.
func (r *SessionRepository) End(ctx context.Context, s *models.Session) error {
	const q = `
		UPDATE sessions
		SET end_time = $2, duration_minutes = $3, achievements = $4, next_steps = $5,
		    files_modified = $6, issues_encountered = $7
		WHERE session_id = $1`
	_, err := r.q.ExecContext(ctx, q, s.SessionID, s.EndTime, s.DurationMinutes, s.Achievements, s.NextSteps,
		marshalJSON(s.FilesModified), marshalJSON(s.IssuesEncountered))
	if err != nil {
		return errors.NewDatabaseError("end session", err)
	}
	return nil
}

func (r *SessionRepository) LastForProject(ctx context.Context, projectID string) (*models.Session, error) {
	var sessionID string
	err := r.q.GetContext(ctx, &sessionID, `
		SELECT session_id FROM sessions WHERE project_id = $1 ORDER BY start_time DESC LIMIT 1`, projectID)
	if isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.NewDatabaseError("get last session", err)
	}
	return r.Get(ctx, sessionID)
}

// StaleOpenCount counts sessions open for more than hours with no end_time
// (SPEC_FULL.md §C "stale_sessions").
func (r *SessionRepository) StaleOpenCount(ctx context.Context, projectID string, hours int) (int, error) {
	var count int
	err := r.q.GetContext(ctx, &count, `
		SELECT count(*) FROM sessions
		WHERE project_id = $1 AND end_time IS NULL AND start_time < now() - ($2 || ' hours')::interval`,
		projectID, hours)
	if err != nil {
		return 0, errors.NewDatabaseError("count stale sessions", err)
	}
	return count, nil
}
