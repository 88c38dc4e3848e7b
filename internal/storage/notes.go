package storage

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/jordigilh/devctx-mcp/internal/errors"
	"github.com/jordigilh/devctx-mcp/internal/models"
)

type NoteRepository struct {
	q   Queryer
	log *zap.Logger
}

func (r *NoteRepository) Create(ctx context.Context, n *models.Note) error {
	const q = `
		INSERT INTO notes (note_id, project_id, session_id, category, title, content, importance,
		                    related_code, related_entities, tags, is_resolved)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,false)
		RETURNING created_at`
	row := r.q.QueryRowxContext(ctx, q, n.NoteID, n.ProjectID, n.SessionID, n.Category, n.Title, n.Content,
		n.Importance, n.RelatedCode, marshalJSON(n.RelatedEntities), marshalJSON(n.Tags))
	if err := row.Scan(&n.CreatedAt); err != nil {
		return errors.NewDatabaseError("create note", err)
	}
	return nil
}

func (r *NoteRepository) ByID(ctx context.Context, noteID string) (*models.Note, error) {
	var row noteRow
	err := r.q.GetContext(ctx, &row, `SELECT * FROM notes WHERE note_id = $1`, noteID)
	if isNoRows(err) {
		return nil, errors.NewNotFoundError("note")
	}
	if err != nil {
		return nil, errors.NewDatabaseError("get note", err)
	}
	return row.toModel(), nil
}

// Resolve marks a note resolved (spec §4.C resolve_note); is_resolved
// implies resolved_at is set (spec §3 invariant).
func (r *NoteRepository) Resolve(ctx context.Context, noteID string, resolvedNote *string) error {
	_, err := r.q.ExecContext(ctx, `
		UPDATE notes SET is_resolved = true, resolved_at = $2, resolved_note = $3 WHERE note_id = $1`,
		noteID, time.Now(), resolvedNote)
	if err != nil {
		return errors.NewDatabaseError("resolve note", err)
	}
	return nil
}

// List orders by (importance DESC, created_at DESC) per spec §4.C.
func (r *NoteRepository) List(ctx context.Context, projectID string, category *string, minImportance int, unresolvedOnly bool) ([]models.Note, error) {
	var rows []noteRow
	var err error
	switch {
	case category != nil && unresolvedOnly:
		err = r.q.SelectContext(ctx, &rows, `
			SELECT * FROM notes WHERE project_id=$1 AND category=$2 AND importance>=$3 AND is_resolved=false
			ORDER BY importance DESC, created_at DESC`, projectID, *category, minImportance)
	case category != nil:
		err = r.q.SelectContext(ctx, &rows, `
			SELECT * FROM notes WHERE project_id=$1 AND category=$2 AND importance>=$3
			ORDER BY importance DESC, created_at DESC`, projectID, *category, minImportance)
	case unresolvedOnly:
		err = r.q.SelectContext(ctx, &rows, `
			SELECT * FROM notes WHERE project_id=$1 AND importance>=$2 AND is_resolved=false
			ORDER BY importance DESC, created_at DESC`, projectID, minImportance)
	default:
		err = r.q.SelectContext(ctx, &rows, `
			SELECT * FROM notes WHERE project_id=$1 AND importance>=$2
			ORDER BY importance DESC, created_at DESC`, projectID, minImportance)
	}
	if err != nil {
		return nil, errors.NewDatabaseError("list notes", err)
	}
	out := make([]models.Note, 0, len(rows))
	for _, row := range rows {
		out = append(out, *row.toModel())
	}
	return out, nil
}

type noteRow struct {
	NoteID          string     `db:"note_id"`
	ProjectID       string     `db:"project_id"`
	SessionID       *string    `db:"session_id"`
	Category        string     `db:"category"`
	Title           string     `db:"title"`
	Content         string     `db:"content"`
	Importance      int        `db:"importance"`
	RelatedCode     *string    `db:"related_code"`
	RelatedEntities []byte     `db:"related_entities"`
	Tags            []byte     `db:"tags"`
	IsResolved      bool       `db:"is_resolved"`
	ResolvedAt      *time.Time `db:"resolved_at"`
	ResolvedNote    *string    `db:"resolved_note"`
	CreatedAt       time.Time  `db:"created_at"`
}

func (row noteRow) toModel() *models.Note {
	return &models.Note{
		NoteID:          row.NoteID,
		ProjectID:       row.ProjectID,
		SessionID:       row.SessionID,
		Category:        models.NoteCategory(row.Category),
		Title:           row.Title,
		Content:         row.Content,
		Importance:      row.Importance,
		RelatedCode:     row.RelatedCode,
		RelatedEntities: unmarshalStrings(row.RelatedEntities),
		Tags:            unmarshalStrings(row.Tags),
		IsResolved:      row.IsResolved,
		ResolvedAt:      row.ResolvedAt,
		ResolvedNote:    row.ResolvedNote,
		CreatedAt:       row.CreatedAt,
	}
}
