package storage

import (
	"context"

	"go.uber.org/zap"

	"github.com/jordigilh/devctx-mcp/internal/errors"
	"github.com/jordigilh/devctx-mcp/internal/models"
)

type ProjectRepository struct {
	q   Queryer
	log *zap.Logger
}

// Upsert creates a project exactly once per project_id and otherwise
// updates its name/path/language in place, per spec §3 and §4.A(i).
func (r *ProjectRepository) Upsert(ctx context.Context, p *models.Project) error {
	const q = `
		INSERT INTO projects (project_id, name, path, language, created_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (project_id) DO UPDATE
			SET name = EXCLUDED.name, path = EXCLUDED.path, language = EXCLUDED.language
		RETURNING created_at`
	row := r.q.QueryRowxContext(ctx, q, p.ProjectID, p.Name, p.Path, p.Language)
	if err := row.Scan(&p.CreatedAt); err != nil {
		return errors.NewDatabaseError("upsert project", err)
	}
	return nil
}

func (r *ProjectRepository) Get(ctx context.Context, projectID string) (*models.Project, error) {
	var p models.Project
	err := r.q.GetContext(ctx, &p, `SELECT * FROM projects WHERE project_id = $1`, projectID)
	if isNoRows(err) {
		return nil, errors.NewNotFoundError("project")
	}
	if err != nil {
		return nil, errors.NewDatabaseError("get project", err)
	}
	return &p, nil
}

// Delete cascades to every child table via FK ON DELETE CASCADE, satisfying
// the universal invariant of spec §8 ("deleting P leaves zero rows...").
func (r *ProjectRepository) Delete(ctx context.Context, projectID string) error {
	_, err := r.q.ExecContext(ctx, `DELETE FROM projects WHERE project_id = $1`, projectID)
	if err != nil {
		return errors.NewDatabaseError("delete project", err)
	}
	return nil
}
