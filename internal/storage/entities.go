package storage

import (
	"context"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/jordigilh/devctx-mcp/internal/errors"
	"github.com/jordigilh/devctx-mcp/internal/models"
)

type EntityRepository struct {
	q   Queryer
	log *zap.Logger
}

func (r *EntityRepository) Insert(ctx context.Context, e *models.CodeEntity) error {
	const q = `
		INSERT INTO code_entities
			(entity_id, project_id, kind, name, qualified_name, file_path,
			 line_start, line_end, signature, docstring, parent_id, metadata)
		VALUES (:entity_id, :project_id, :kind, :name, :qualified_name, :file_path,
			:line_start, :line_end, :signature, :docstring, :parent_id, :metadata)
		ON CONFLICT (entity_id) DO UPDATE SET
			name = EXCLUDED.name, qualified_name = EXCLUDED.qualified_name,
			file_path = EXCLUDED.file_path, line_start = EXCLUDED.line_start,
			line_end = EXCLUDED.line_end, signature = EXCLUDED.signature,
			docstring = EXCLUDED.docstring, parent_id = EXCLUDED.parent_id,
			metadata = EXCLUDED.metadata`
	e.MetadataJSON = marshalJSON(e.Metadata)
	if _, err := sqlx.NamedExecContext(ctx, r.q, q, e); err != nil {
		return errors.NewDatabaseError("insert entity", err)
	}
	return nil
}

// DeleteForFiles removes every entity rooted in one of filePaths — the "no
// longer present on disk" branch of re-analysis (spec §4.B). Relations have
// no foreign key to entities and are not removed here; the analyzer calls
// RelationRepository.DeleteForFiles for them.
func (r *EntityRepository) DeleteForFiles(ctx context.Context, projectID string, filePaths []string) error {
	if len(filePaths) == 0 {
		return nil
	}
	q, args, err := sqlxIn(`DELETE FROM code_entities WHERE project_id = ? AND file_path IN (?)`, projectID, filePaths)
	if err != nil {
		return errors.NewDatabaseError("delete entities for files", err)
	}
	if _, err := r.q.ExecContext(ctx, q, args...); err != nil {
		return errors.NewDatabaseError("delete entities for files", err)
	}
	return nil
}

func (r *EntityRepository) FilePaths(ctx context.Context, projectID string) ([]string, error) {
	var paths []string
	err := r.q.SelectContext(ctx, &paths, `SELECT DISTINCT file_path FROM code_entities WHERE project_id = $1`, projectID)
	if err != nil {
		return nil, errors.NewDatabaseError("list entity file paths", err)
	}
	return paths, nil
}

func (r *EntityRepository) Get(ctx context.Context, projectID, entityID string) (*models.CodeEntity, error) {
	var e models.CodeEntity
	err := r.q.GetContext(ctx, &e, `SELECT * FROM code_entities WHERE project_id = $1 AND entity_id = $2`, projectID, entityID)
	if isNoRows(err) {
		return nil, errors.NewNotFoundError("entity")
	}
	if err != nil {
		return nil, errors.NewDatabaseError("get entity", err)
	}
	e.Metadata = unmarshalMap(e.MetadataJSON)
	return &e, nil
}

// FindByName performs the find_entity lookup (spec §6 tool table): exact
// match first, falling back to a case-insensitive substring match on name
// or qualified_name when fuzzy is true.
func (r *EntityRepository) FindByName(ctx context.Context, projectID, name string, fuzzy bool) ([]models.CodeEntity, error) {
	var rows []models.CodeEntity
	var err error
	if fuzzy {
		err = r.q.SelectContext(ctx, &rows, `
			SELECT * FROM code_entities
			WHERE project_id = $1 AND (name ILIKE '%'||$2||'%' OR qualified_name ILIKE '%'||$2||'%')
			ORDER BY (name = $2) DESC, name`, projectID, name)
	} else {
		err = r.q.SelectContext(ctx, &rows, `
			SELECT * FROM code_entities WHERE project_id = $1 AND name = $2 ORDER BY name`, projectID, name)
	}
	if err != nil {
		return nil, errors.NewDatabaseError("find entity by name", err)
	}
	for i := range rows {
		rows[i].Metadata = unmarshalMap(rows[i].MetadataJSON)
	}
	return rows, nil
}

func (r *EntityRepository) ListByProject(ctx context.Context, projectID string) ([]models.CodeEntity, error) {
	var rows []models.CodeEntity
	err := r.q.SelectContext(ctx, &rows, `SELECT * FROM code_entities WHERE project_id = $1`, projectID)
	if err != nil {
		return nil, errors.NewDatabaseError("list entities", err)
	}
	for i := range rows {
		rows[i].Metadata = unmarshalMap(rows[i].MetadataJSON)
	}
	return rows, nil
}

func (r *EntityRepository) ListByKind(ctx context.Context, projectID string, kind models.EntityKind) ([]models.CodeEntity, error) {
	var rows []models.CodeEntity
	err := r.q.SelectContext(ctx, &rows, `SELECT * FROM code_entities WHERE project_id = $1 AND kind = $2`, projectID, kind)
	if err != nil {
		return nil, errors.NewDatabaseError("list entities by kind", err)
	}
	for i := range rows {
		rows[i].Metadata = unmarshalMap(rows[i].MetadataJSON)
	}
	return rows, nil
}

func (r *EntityRepository) ListChildren(ctx context.Context, projectID, parentID string) ([]models.CodeEntity, error) {
	var rows []models.CodeEntity
	err := r.q.SelectContext(ctx, &rows, `SELECT * FROM code_entities WHERE project_id = $1 AND parent_id = $2`, projectID, parentID)
	if err != nil {
		return nil, errors.NewDatabaseError("list entity children", err)
	}
	for i := range rows {
		rows[i].Metadata = unmarshalMap(rows[i].MetadataJSON)
	}
	return rows, nil
}
