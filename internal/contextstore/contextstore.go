// Package contextstore implements spec §4.C: sessions, decisions, notes,
// and TODOs, plus the cross-cutting operations (next-actionable TODO
// selection, resume context generation) that read across those aggregates.
package contextstore

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/jordigilh/devctx-mcp/internal/errors"
	"github.com/jordigilh/devctx-mcp/internal/models"
	"github.com/jordigilh/devctx-mcp/internal/storage"
)

// staleSessionHours is the threshold SPEC_FULL.md §C adds for the
// resume-context "stale_sessions" count: a session open this long with no
// end_time is presumed abandoned rather than still in progress.
const staleSessionHours = 24

type Store struct {
	db  *storage.Store
	log *logrus.Entry
}

func New(db *storage.Store, log *logrus.Logger) *Store {
	return &Store{db: db, log: log.WithField("component", "contextstore")}
}

// StartSession implements start_session(project_id, goals) -> session.
func (s *Store) StartSession(ctx context.Context, projectID, goals string) (*models.Session, error) {
	sess := &models.Session{
		SessionID: uuid.NewString(),
		ProjectID: projectID,
		StartTime: time.Now(),
		Goals:     goals,
	}
	if err := s.db.Sessions.Create(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// EndSession implements end_session(...) -> session, idempotent once the
// session is already ended (spec §4.C / §8 round-trip property).
func (s *Store) EndSession(ctx context.Context, sessionID, achievements string, nextSteps *string, filesModified, issuesEncountered []string) (*models.Session, error) {
	sess, err := s.db.Sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.EndTime != nil {
		return sess, nil
	}

	now := time.Now()
	duration := int(now.Sub(sess.StartTime) / time.Second / 60)
	sess.EndTime = &now
	sess.DurationMinutes = &duration
	sess.Achievements = &achievements
	sess.NextSteps = nextSteps
	sess.FilesModified = filesModified
	sess.IssuesEncountered = issuesEncountered

	if err := s.db.Sessions.End(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// RecordDecision implements record_decision.
func (s *Store) RecordDecision(ctx context.Context, d *models.Decision) error {
	d.DecisionID = uuid.NewString()
	if d.Status == "" {
		d.Status = models.DecisionActive
	}
	return s.db.Decisions.Create(ctx, d)
}

func (s *Store) GetDecisions(ctx context.Context, projectID string, category *string, status models.DecisionStatus) ([]models.Decision, error) {
	if status == "" {
		status = models.DecisionActive
	}
	return s.db.Decisions.List(ctx, projectID, category, status)
}

// Supersede walks the supersededBy chain starting at newID to guard against
// a cycle before accepting the write (spec §4.C / §8 universal invariant:
// "following superseded_by reaches an active decision... and never
// revisits d").
func (s *Store) Supersede(ctx context.Context, oldID, newID string) error {
	if oldID == newID {
		return errors.NewConflictError("a decision cannot supersede itself")
	}

	visited := map[string]bool{oldID: true}
	cursor := newID
	for i := 0; i < 10_000; i++ {
		d, err := s.db.Decisions.ByID(ctx, cursor)
		if err != nil {
			break // cursor is the new, not-yet-superseded decision; ByID may legitimately miss nothing further
		}
		if visited[cursor] {
			return errors.NewConflictError("supersession chain would cycle back to an already-visited decision")
		}
		visited[cursor] = true
		if d.Status != models.DecisionSuperseded || d.SupersededBy == nil {
			break
		}
		cursor = *d.SupersededBy
	}

	return s.db.Decisions.Supersede(ctx, oldID, newID)
}

// AddNote implements add_note.
func (s *Store) AddNote(ctx context.Context, n *models.Note) error {
	n.NoteID = uuid.NewString()
	return s.db.Notes.Create(ctx, n)
}

func (s *Store) GetNotes(ctx context.Context, projectID string, category *string, minImportance int, unresolvedOnly bool) ([]models.Note, error) {
	if minImportance == 0 {
		minImportance = 1
	}
	return s.db.Notes.List(ctx, projectID, category, minImportance, unresolvedOnly)
}

func (s *Store) ResolveNote(ctx context.Context, noteID string, resolvedNote *string) error {
	return s.db.Notes.Resolve(ctx, noteID, resolvedNote)
}

// CreateTodo implements create_todo, verifying that depends_on would not
// introduce a cycle (spec §4.C: "BFS across existing depends_on sets").
func (s *Store) CreateTodo(ctx context.Context, t *models.Todo, dependsOn []string) error {
	t.TodoID = uuid.NewString()
	if t.Status == "" {
		t.Status = models.TodoPending
	}

	if len(dependsOn) > 0 {
		if err := s.checkNoCycle(ctx, t.TodoID, dependsOn); err != nil {
			return err
		}
	}
	return s.db.Todos.Create(ctx, t, dependsOn)
}

// checkNoCycle BFS-walks the transitive dependency closure of every id in
// dependsOn; if newTodoID is reachable, accepting the edge would close a
// cycle.
func (s *Store) checkNoCycle(ctx context.Context, newTodoID string, dependsOn []string) error {
	visited := map[string]bool{}
	queue := append([]string{}, dependsOn...)

	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if id == newTodoID {
			return errors.NewConflictError("depends_on would introduce a dependency cycle")
		}
		if visited[id] {
			continue
		}
		visited[id] = true

		deps, err := s.db.Todos.DependsOnChain(ctx, id)
		if err != nil {
			continue // a dangling dependency id is not this check's concern
		}
		queue = append(queue, deps...)
	}
	return nil
}

func (s *Store) UpdateTodoStatus(ctx context.Context, todoID string, status models.TodoStatus, progress *int, completionNote *string) error {
	if status == models.TodoCompleted {
		return s.db.Todos.Complete(ctx, todoID, completionNote)
	}
	p := 0
	if progress != nil {
		p = *progress
	}
	return s.db.Todos.UpdateProgress(ctx, todoID, p, status)
}

func (s *Store) GetTodos(ctx context.Context, projectID string, status *models.TodoStatus) ([]models.Todo, error) {
	return s.db.Todos.ListByProject(ctx, projectID, status)
}

// GetNextTodo implements get_next_todo(project_id): the highest-priority
// pending TODO all of whose dependencies are completed, breaking ties by
// earliest created_at (spec §4.C).
func (s *Store) GetNextTodo(ctx context.Context, projectID string) (*models.Todo, error) {
	candidates, err := s.db.Todos.NextActionable(ctx, projectID, 1)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, nil
	}
	return &candidates[0], nil
}

// ResumeContext is the structured snapshot generate_resume_context returns
// (spec §4.C), with the stale_sessions addition from SPEC_FULL.md §C.
type ResumeContext struct {
	LastSession     *models.Session   `json:"last_session,omitempty"`
	PendingTodos    []models.Todo     `json:"pending_todos"`
	InProgressTodos []models.Todo     `json:"in_progress_todos"`
	RecentDecisions []models.Decision `json:"recent_decisions"`
	UnresolvedNotes []models.Note     `json:"unresolved_notes"`
	ImportantNotes  []models.Note     `json:"important_notes"`
	StaleSessions   int               `json:"stale_sessions"`
}

const resumePendingTodoLimit = 10
const resumeDecisionLimit = 5
const resumeImportantNoteMinImportance = 4

func (s *Store) GenerateResumeContext(ctx context.Context, projectID string) (*ResumeContext, error) {
	lastSession, err := s.db.Sessions.LastForProject(ctx, projectID)
	if err != nil {
		return nil, err
	}

	pendingStatus := models.TodoPending
	pending, err := s.db.Todos.ListByProject(ctx, projectID, &pendingStatus)
	if err != nil {
		return nil, err
	}
	if len(pending) > resumePendingTodoLimit {
		pending = pending[:resumePendingTodoLimit]
	}

	inProgressStatus := models.TodoInProgress
	inProgress, err := s.db.Todos.ListByProject(ctx, projectID, &inProgressStatus)
	if err != nil {
		return nil, err
	}

	decisions, err := s.db.Decisions.Recent(ctx, projectID, resumeDecisionLimit)
	if err != nil {
		return nil, err
	}

	issueCategory := string(models.NoteIssue)
	unresolvedNotes, err := s.db.Notes.List(ctx, projectID, &issueCategory, 1, true)
	if err != nil {
		return nil, err
	}

	importantNotes, err := s.db.Notes.List(ctx, projectID, nil, resumeImportantNoteMinImportance, false)
	if err != nil {
		return nil, err
	}

	staleCount, err := s.db.Sessions.StaleOpenCount(ctx, projectID, staleSessionHours)
	if err != nil {
		return nil, err
	}

	return &ResumeContext{
		LastSession:     lastSession,
		PendingTodos:    pending,
		InProgressTodos: inProgress,
		RecentDecisions: decisions,
		UnresolvedNotes: unresolvedNotes,
		ImportantNotes:  importantNotes,
		StaleSessions:   staleCount,
	}, nil
}
