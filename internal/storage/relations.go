package storage

import (
	"context"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/jordigilh/devctx-mcp/internal/errors"
	"github.com/jordigilh/devctx-mcp/internal/models"
)

type RelationRepository struct {
	q   Queryer
	log *zap.Logger
}

func (r *RelationRepository) Insert(ctx context.Context, rel *models.CodeRelation) error {
	const q = `
		INSERT INTO code_relations (relation_id, project_id, source_id, target_id, kind, file_path, metadata)
		VALUES (:relation_id, :project_id, :source_id, :target_id, :kind, :file_path, :metadata)
		ON CONFLICT (relation_id) DO UPDATE SET
			target_id = EXCLUDED.target_id, metadata = EXCLUDED.metadata`
	rel.MetadataJSON = marshalJSON(rel.Metadata)
	if _, err := sqlx.NamedExecContext(ctx, r.q, q, rel); err != nil {
		return errors.NewDatabaseError("insert relation", err)
	}
	return nil
}

// MarkResolved flips metadata.resolved=true for a relation once a second
// pass matches its target_id to a concrete entity (spec §4.B cross-file
// resolution).
func (r *RelationRepository) MarkResolved(ctx context.Context, relationID, targetID string) error {
	_, err := r.q.ExecContext(ctx, `
		UPDATE code_relations
		SET target_id = $2, metadata = jsonb_set(metadata, '{resolved}', 'true', true)
		WHERE relation_id = $1`, relationID, targetID)
	if err != nil {
		return errors.NewDatabaseError("mark relation resolved", err)
	}
	return nil
}

func (r *RelationRepository) DeleteForFiles(ctx context.Context, projectID string, filePaths []string) error {
	if len(filePaths) == 0 {
		return nil
	}
	q, args, err := sqlxIn(`DELETE FROM code_relations WHERE project_id = ? AND file_path IN (?)`, projectID, filePaths)
	if err != nil {
		return errors.NewDatabaseError("delete relations for files", err)
	}
	if _, err := r.q.ExecContext(ctx, q, args...); err != nil {
		return errors.NewDatabaseError("delete relations for files", err)
	}
	return nil
}

func (r *RelationRepository) ListByProject(ctx context.Context, projectID string) ([]models.CodeRelation, error) {
	var rows []models.CodeRelation
	err := r.q.SelectContext(ctx, &rows, `SELECT * FROM code_relations WHERE project_id = $1`, projectID)
	if err != nil {
		return nil, errors.NewDatabaseError("list relations", err)
	}
	for i := range rows {
		rows[i].Metadata = unmarshalMap(rows[i].MetadataJSON)
	}
	return rows, nil
}

func (r *RelationRepository) BySource(ctx context.Context, projectID, sourceID string) ([]models.CodeRelation, error) {
	var rows []models.CodeRelation
	err := r.q.SelectContext(ctx, &rows, `SELECT * FROM code_relations WHERE project_id = $1 AND source_id = $2`, projectID, sourceID)
	if err != nil {
		return nil, errors.NewDatabaseError("list relations by source", err)
	}
	for i := range rows {
		rows[i].Metadata = unmarshalMap(rows[i].MetadataJSON)
	}
	return rows, nil
}

func (r *RelationRepository) ByTarget(ctx context.Context, projectID, targetID string) ([]models.CodeRelation, error) {
	var rows []models.CodeRelation
	err := r.q.SelectContext(ctx, &rows, `SELECT * FROM code_relations WHERE project_id = $1 AND target_id = $2`, projectID, targetID)
	if err != nil {
		return nil, errors.NewDatabaseError("list relations by target", err)
	}
	for i := range rows {
		rows[i].Metadata = unmarshalMap(rows[i].MetadataJSON)
	}
	return rows, nil
}

func (r *RelationRepository) ByKind(ctx context.Context, projectID string, kind models.RelationKind) ([]models.CodeRelation, error) {
	var rows []models.CodeRelation
	err := r.q.SelectContext(ctx, &rows, `SELECT * FROM code_relations WHERE project_id = $1 AND kind = $2`, projectID, kind)
	if err != nil {
		return nil, errors.NewDatabaseError("list relations by kind", err)
	}
	for i := range rows {
		rows[i].Metadata = unmarshalMap(rows[i].MetadataJSON)
	}
	return rows, nil
}
