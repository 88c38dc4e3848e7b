package storage

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/jordigilh/devctx-mcp/internal/errors"
	"github.com/jordigilh/devctx-mcp/internal/models"
)

type DecisionRepository struct {
	q   Queryer
	log *zap.Logger
}

func (r *DecisionRepository) Create(ctx context.Context, d *models.Decision) error {
	const q = `
		INSERT INTO decisions
			(decision_id, project_id, session_id, category, title, description, reasoning,
			 alternatives, trade_offs, impact_scope, status)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		RETURNING created_at`
	row := r.q.QueryRowxContext(ctx, q, d.DecisionID, d.ProjectID, d.SessionID, d.Category, d.Title,
		d.Description, d.Reasoning, marshalJSON(d.Alternatives), marshalJSON(d.TradeOffs), d.ImpactScope, d.Status)
	if err := row.Scan(&d.CreatedAt); err != nil {
		return errors.NewDatabaseError("create decision", err)
	}
	return nil
}

// List returns decisions filtered by category (optional) and exactly the
// given status; the default of active for an empty status is applied by
// contextstore.Store.GetDecisions (spec §4.C get_decisions).
func (r *DecisionRepository) List(ctx context.Context, projectID string, category *string, status models.DecisionStatus) ([]models.Decision, error) {
	var rows []decisionRow
	var err error
	if category != nil {
		err = r.q.SelectContext(ctx, &rows, `
			SELECT * FROM decisions WHERE project_id = $1 AND category = $2 AND status = $3
			ORDER BY created_at DESC`, projectID, *category, status)
	} else {
		err = r.q.SelectContext(ctx, &rows, `
			SELECT * FROM decisions WHERE project_id = $1 AND status = $2
			ORDER BY created_at DESC`, projectID, status)
	}
	if err != nil {
		return nil, errors.NewDatabaseError("list decisions", err)
	}
	return toDecisions(rows), nil
}

func (r *DecisionRepository) Recent(ctx context.Context, projectID string, limit int) ([]models.Decision, error) {
	var rows []decisionRow
	err := r.q.SelectContext(ctx, &rows, `
		SELECT * FROM decisions WHERE project_id = $1 AND status = 'active'
		ORDER BY created_at DESC LIMIT $2`, projectID, limit)
	if err != nil {
		return nil, errors.NewDatabaseError("list recent decisions", err)
	}
	return toDecisions(rows), nil
}

func (r *DecisionRepository) ByID(ctx context.Context, decisionID string) (*models.Decision, error) {
	var row decisionRow
	err := r.q.GetContext(ctx, &row, `SELECT * FROM decisions WHERE decision_id = $1`, decisionID)
	if isNoRows(err) {
		return nil, errors.NewNotFoundError("decision")
	}
	if err != nil {
		return nil, errors.NewDatabaseError("get decision", err)
	}
	return row.toModel(), nil
}

// Supersede marks oldID superseded and points it at newID. Cycle checking
// happens in the context-store service layer, which walks SupersededBy
// chains before calling this; the repository only performs the write.
func (r *DecisionRepository) Supersede(ctx context.Context, oldID, newID string) error {
	_, err := r.q.ExecContext(ctx, `
		UPDATE decisions SET status = 'superseded', superseded_by = $2 WHERE decision_id = $1`, oldID, newID)
	if err != nil {
		return errors.NewDatabaseError("supersede decision", err)
	}
	return nil
}

// decisionRow is the sqlx scan target; alternatives/trade_offs arrive as
// raw JSONB and are decoded in toModel.
type decisionRow struct {
	DecisionID   string  `db:"decision_id"`
	ProjectID    string  `db:"project_id"`
	SessionID    *string `db:"session_id"`
	Category     string  `db:"category"`
	Title        string  `db:"title"`
	Description  *string `db:"description"`
	Reasoning    string  `db:"reasoning"`
	Alternatives []byte  `db:"alternatives"`
	TradeOffs    []byte  `db:"trade_offs"`
	ImpactScope  *string `db:"impact_scope"`
	Status       string  `db:"status"`
	SupersededBy *string `db:"superseded_by"`
	CreatedAt    time.Time `db:"created_at"`
}

func (row decisionRow) toModel() *models.Decision {
	d := &models.Decision{
		DecisionID:   row.DecisionID,
		ProjectID:    row.ProjectID,
		SessionID:    row.SessionID,
		Category:     row.Category,
		Title:        row.Title,
		Description:  row.Description,
		Reasoning:    row.Reasoning,
		Alternatives: unmarshalStrings(row.Alternatives),
		TradeOffs:    unmarshalStringMap(row.TradeOffs),
		ImpactScope:  row.ImpactScope,
		Status:       models.DecisionStatus(row.Status),
		SupersededBy: row.SupersededBy,
		CreatedAt:    row.CreatedAt,
	}
	return d
}

func toDecisions(rows []decisionRow) []models.Decision {
	out := make([]models.Decision, 0, len(rows))
	for _, row := range rows {
		out = append(out, *row.toModel())
	}
	return out
}
