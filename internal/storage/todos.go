package storage

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/jordigilh/devctx-mcp/internal/errors"
	"github.com/jordigilh/devctx-mcp/internal/models"
)

type TodoRepository struct {
	q   Queryer
	log *zap.Logger
}

func (r *TodoRepository) Create(ctx context.Context, t *models.Todo, dependsOn []string) error {
	const q = `
		INSERT INTO todos (todo_id, project_id, session_id, title, description, category, priority,
		                    estimated_difficulty, estimated_hours, status, progress, depends_on)
		VALUES (:todo_id, :project_id, :session_id, :title, :description, :category, :priority,
		        :estimated_difficulty, :estimated_hours, :status, :progress, :depends_on)
		RETURNING created_at`
	t.DependsOn = dependsOn
	namedArgs := struct {
		*models.Todo
		DependsOn []byte `db:"depends_on"`
	}{Todo: t, DependsOn: marshalJSON(dependsOn)}

	rows, err := sqlx.NamedQueryContext(ctx, r.q, q, namedArgs)
	if err != nil {
		return errors.NewDatabaseError("create todo", err)
	}
	defer rows.Close()
	if rows.Next() {
		if err := rows.Scan(&t.CreatedAt); err != nil {
			return errors.NewDatabaseError("create todo", err)
		}
	}
	return nil
}

func (r *TodoRepository) ByID(ctx context.Context, todoID string) (*models.Todo, error) {
	var row todoRow
	err := r.q.GetContext(ctx, &row, `SELECT * FROM todos WHERE todo_id = $1`, todoID)
	if isNoRows(err) {
		return nil, errors.NewNotFoundError("todo")
	}
	if err != nil {
		return nil, errors.NewDatabaseError("get todo", err)
	}
	return row.toModel(), nil
}

// ListByProject optionally filters by status (spec §4.C get_todos).
func (r *TodoRepository) ListByProject(ctx context.Context, projectID string, status *models.TodoStatus) ([]models.Todo, error) {
	var rows []todoRow
	var err error
	if status != nil {
		err = r.q.SelectContext(ctx, &rows, `
			SELECT * FROM todos WHERE project_id = $1 AND status = $2
			ORDER BY priority DESC, created_at`, projectID, *status)
	} else {
		err = r.q.SelectContext(ctx, &rows, `
			SELECT * FROM todos WHERE project_id = $1 ORDER BY priority DESC, created_at`, projectID)
	}
	if err != nil {
		return nil, errors.NewDatabaseError("list todos", err)
	}
	out := make([]models.Todo, 0, len(rows))
	for _, row := range rows {
		out = append(out, *row.toModel())
	}
	return out, nil
}

func (r *TodoRepository) UpdateProgress(ctx context.Context, todoID string, progress int, status models.TodoStatus) error {
	_, err := r.q.ExecContext(ctx, `
		UPDATE todos SET progress = $2, status = $3 WHERE todo_id = $1`, todoID, progress, status)
	if err != nil {
		return errors.NewDatabaseError("update todo progress", err)
	}
	return nil
}

func (r *TodoRepository) Complete(ctx context.Context, todoID string, note *string) error {
	_, err := r.q.ExecContext(ctx, `
		UPDATE todos SET status = 'completed', progress = 100, completed_at = $2, completion_note = $3
		WHERE todo_id = $1`, todoID, time.Now(), note)
	if err != nil {
		return errors.NewDatabaseError("complete todo", err)
	}
	return nil
}

// NextActionable returns pending todos whose dependencies are all completed,
// ordered by priority then earliest created_at — backs the get_next_todo
// tool (spec §4.C, §8: ties "break by earliest created_at"). The
// dependency-DAG cycle check happens once, at create time, in the
// context-store service.
func (r *TodoRepository) NextActionable(ctx context.Context, projectID string, limit int) ([]models.Todo, error) {
	var rows []todoRow
	err := r.q.SelectContext(ctx, &rows, `
		SELECT t.* FROM todos t
		WHERE t.project_id = $1 AND t.status = 'pending'
		  AND NOT EXISTS (
		      SELECT 1 FROM jsonb_array_elements_text(t.depends_on) dep
		      JOIN todos d ON d.todo_id = dep
		      WHERE d.status <> 'completed'
		  )
		ORDER BY t.priority DESC, t.created_at ASC
		LIMIT $2`, projectID, limit)
	if err != nil {
		return nil, errors.NewDatabaseError("list next actionable todos", err)
	}
	out := make([]models.Todo, 0, len(rows))
	for _, row := range rows {
		out = append(out, *row.toModel())
	}
	return out, nil
}

// DependsOnChain loads todoID's direct dependency IDs (its stored
// depends_on list). The service layer's cycle check calls it once per
// visited TODO to walk the transitive closure before a new depends_on edge
// is written.
func (r *TodoRepository) DependsOnChain(ctx context.Context, todoID string) ([]string, error) {
	var raw []byte
	err := r.q.GetContext(ctx, &raw, `SELECT depends_on FROM todos WHERE todo_id = $1`, todoID)
	if isNoRows(err) {
		return nil, errors.NewNotFoundError("todo")
	}
	if err != nil {
		return nil, errors.NewDatabaseError("get todo dependencies", err)
	}
	return unmarshalStrings(raw), nil
}

type todoRow struct {
	TodoID              string     `db:"todo_id"`
	ProjectID           string     `db:"project_id"`
	SessionID           *string    `db:"session_id"`
	Title               string     `db:"title"`
	Description         *string    `db:"description"`
	Category            string     `db:"category"`
	Priority            int        `db:"priority"`
	EstimatedDifficulty int        `db:"estimated_difficulty"`
	EstimatedHours      *float64   `db:"estimated_hours"`
	Status              string     `db:"status"`
	Progress            int        `db:"progress"`
	DependsOn           []byte     `db:"depends_on"`
	CompletedAt         *time.Time `db:"completed_at"`
	CompletionNote      *string    `db:"completion_note"`
	CreatedAt           time.Time  `db:"created_at"`
}

func (row todoRow) toModel() *models.Todo {
	return &models.Todo{
		TodoID:              row.TodoID,
		ProjectID:           row.ProjectID,
		SessionID:           row.SessionID,
		Title:               row.Title,
		Description:         row.Description,
		Category:            models.TodoCategory(row.Category),
		Priority:            row.Priority,
		EstimatedDifficulty: row.EstimatedDifficulty,
		EstimatedHours:      row.EstimatedHours,
		Status:              models.TodoStatus(row.Status),
		Progress:            row.Progress,
		DependsOn:           unmarshalStrings(row.DependsOn),
		CompletedAt:         row.CompletedAt,
		CompletionNote:      row.CompletionNote,
		CreatedAt:           row.CreatedAt,
	}
}
