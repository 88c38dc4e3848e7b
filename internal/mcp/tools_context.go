package mcp

import (
	"context"
	"encoding/json"

	"github.com/getkin/kin-openapi/openapi3"

	"github.com/jordigilh/devctx-mcp/internal/models"
)

func registerContextTools(reg *Registry, d Deps) {
	reg.Register(Tool{
		Name:        "start_dev_session",
		Description: "Start a development session for a project.",
		Schema: objectSchema(map[string]*openapi3.Schema{
			"project_id": stringProp("Project to start a session for"),
			"goals":      stringProp("Session goals"),
		}, "project_id", "goals"),
		Handler: func(ctx context.Context, args json.RawMessage) (interface{}, error) {
			var in struct {
				ProjectID string `json:"project_id" validate:"required"`
				Goals     string `json:"goals" validate:"required"`
			}
			if err := reg.ValidateArgs(args, &in); err != nil {
				return nil, err
			}
			return d.Context.StartSession(ctx, in.ProjectID, in.Goals)
		},
	})

	reg.Register(Tool{
		Name:        "end_dev_session",
		Description: "End a development session, recording achievements and follow-ups.",
		Schema: objectSchema(map[string]*openapi3.Schema{
			"session_id":         stringProp("Session to end"),
			"achievements":       stringProp("What was accomplished"),
			"next_steps":         stringProp("Planned follow-up work"),
			"files_modified":     arrayProp("Array of modified file paths", stringProp("")),
			"issues_encountered": arrayProp("Array of issues encountered", stringProp("")),
		}, "session_id", "achievements"),
		Handler: func(ctx context.Context, args json.RawMessage) (interface{}, error) {
			var in struct {
				SessionID         string   `json:"session_id" validate:"required"`
				Achievements      string   `json:"achievements" validate:"required"`
				NextSteps         *string  `json:"next_steps"`
				FilesModified     []string `json:"files_modified"`
				IssuesEncountered []string `json:"issues_encountered"`
			}
			if err := reg.ValidateArgs(args, &in); err != nil {
				return nil, err
			}
			return d.Context.EndSession(ctx, in.SessionID, in.Achievements, in.NextSteps, in.FilesModified, in.IssuesEncountered)
		},
	})

	reg.Register(Tool{
		Name:        "record_design_decision",
		Description: "Record a design decision with its reasoning and alternatives.",
		Schema: objectSchema(map[string]*openapi3.Schema{
			"project_id":   stringProp("Project the decision belongs to"),
			"session_id":   stringProp("Originating session, if any"),
			"category":     stringProp("Decision category"),
			"title":        stringProp("Decision title"),
			"description":  stringProp("Decision description"),
			"reasoning":    stringProp("Why this decision was made"),
			"alternatives": arrayProp("Array of alternatives considered", stringProp("")),
			"impact_scope": stringProp("What this decision affects"),
		}, "project_id", "category", "title", "reasoning"),
		Handler: func(ctx context.Context, args json.RawMessage) (interface{}, error) {
			var in struct {
				ProjectID    string   `json:"project_id" validate:"required"`
				SessionID    *string  `json:"session_id"`
				Category     string   `json:"category" validate:"required"`
				Title        string   `json:"title" validate:"required"`
				Description  *string  `json:"description"`
				Reasoning    string   `json:"reasoning" validate:"required"`
				Alternatives []string `json:"alternatives"`
				ImpactScope  *string  `json:"impact_scope"`
			}
			if err := reg.ValidateArgs(args, &in); err != nil {
				return nil, err
			}
			decision := &models.Decision{
				ProjectID:    in.ProjectID,
				SessionID:    in.SessionID,
				Category:     in.Category,
				Title:        in.Title,
				Description:  in.Description,
				Reasoning:    in.Reasoning,
				Alternatives: in.Alternatives,
				ImpactScope:  in.ImpactScope,
			}
			if err := d.Context.RecordDecision(ctx, decision); err != nil {
				return nil, err
			}
			return decision, nil
		},
	})

	reg.Register(Tool{
		Name:        "add_project_note",
		Description: "Add a project note (pitfall, tip, optimization, issue, or reminder).",
		Schema: objectSchema(map[string]*openapi3.Schema{
			"project_id": stringProp("Project the note belongs to"),
			"session_id": stringProp("Originating session, if any"),
			"category":   enumStringProp("Note category", "pitfall", "tip", "optimization", "issue", "reminder"),
			"title":      stringProp("Note title"),
			"content":    stringProp("Note content"),
			"importance": intProp("Importance 1-5"),
			"tags":       arrayProp("Array of free-form tags", stringProp("")),
		}, "project_id", "category", "title", "content"),
		Handler: func(ctx context.Context, args json.RawMessage) (interface{}, error) {
			var in struct {
				ProjectID  string   `json:"project_id" validate:"required"`
				SessionID  *string  `json:"session_id"`
				Category   string   `json:"category" validate:"required,oneof=pitfall tip optimization issue reminder"`
				Title      string   `json:"title" validate:"required"`
				Content    string   `json:"content" validate:"required"`
				Importance int      `json:"importance"`
				Tags       []string `json:"tags"`
			}
			if err := reg.ValidateArgs(args, &in); err != nil {
				return nil, err
			}
			if in.Importance == 0 {
				in.Importance = 1
			}
			note := &models.Note{
				ProjectID:  in.ProjectID,
				SessionID:  in.SessionID,
				Category:   models.NoteCategory(in.Category),
				Title:      in.Title,
				Content:    in.Content,
				Importance: in.Importance,
				Tags:       in.Tags,
			}
			if err := d.Context.AddNote(ctx, note); err != nil {
				return nil, err
			}
			return note, nil
		},
	})

	reg.Register(Tool{
		Name:        "create_todo",
		Description: "Create a TODO, optionally depending on other TODOs (rejected if it would introduce a dependency cycle).",
		Schema: objectSchema(map[string]*openapi3.Schema{
			"project_id":           stringProp("Project the TODO belongs to"),
			"session_id":           stringProp("Originating session, if any"),
			"title":                stringProp("TODO title"),
			"description":          stringProp("TODO description"),
			"category":             enumStringProp("TODO category", "feature", "bugfix", "refactor", "test", "documentation"),
			"priority":             intProp("Priority 1-5"),
			"estimated_difficulty": intProp("Estimated difficulty 1-5"),
			"depends_on":           arrayProp("Array of TODO ids this one depends on", stringProp("")),
		}, "project_id", "title", "category"),
		Handler: func(ctx context.Context, args json.RawMessage) (interface{}, error) {
			var in struct {
				ProjectID           string   `json:"project_id" validate:"required"`
				SessionID           *string  `json:"session_id"`
				Title               string   `json:"title" validate:"required"`
				Description         *string  `json:"description"`
				Category            string   `json:"category" validate:"required,oneof=feature bugfix refactor test documentation"`
				Priority            int      `json:"priority"`
				EstimatedDifficulty int      `json:"estimated_difficulty"`
				DependsOn           []string `json:"depends_on"`
			}
			if err := reg.ValidateArgs(args, &in); err != nil {
				return nil, err
			}
			if in.Priority == 0 {
				in.Priority = 1
			}
			if in.EstimatedDifficulty == 0 {
				in.EstimatedDifficulty = 1
			}
			todo := &models.Todo{
				ProjectID:           in.ProjectID,
				SessionID:           in.SessionID,
				Title:               in.Title,
				Description:         in.Description,
				Category:            models.TodoCategory(in.Category),
				Priority:            in.Priority,
				EstimatedDifficulty: in.EstimatedDifficulty,
				DependsOn:           in.DependsOn,
			}
			if err := d.Context.CreateTodo(ctx, todo, in.DependsOn); err != nil {
				return nil, err
			}
			return todo, nil
		},
	})

	reg.Register(Tool{
		Name:        "update_todo_status",
		Description: "Update a TODO's status and progress.",
		Schema: objectSchema(map[string]*openapi3.Schema{
			"todo_id":         stringProp("TODO to update"),
			"status":          enumStringProp("New status", "pending", "in_progress", "completed", "blocked", "cancelled"),
			"progress":        intProp("Progress 0-100"),
			"completion_note": stringProp("Note recorded when completing"),
		}, "todo_id", "status"),
		Handler: func(ctx context.Context, args json.RawMessage) (interface{}, error) {
			var in struct {
				TodoID         string  `json:"todo_id" validate:"required"`
				Status         string  `json:"status" validate:"required,oneof=pending in_progress completed blocked cancelled"`
				Progress       *int    `json:"progress"`
				CompletionNote *string `json:"completion_note"`
			}
			if err := reg.ValidateArgs(args, &in); err != nil {
				return nil, err
			}
			if err := d.Context.UpdateTodoStatus(ctx, in.TodoID, models.TodoStatus(in.Status), in.Progress, in.CompletionNote); err != nil {
				return nil, err
			}
			return map[string]string{"todo_id": in.TodoID, "status": in.Status}, nil
		},
	})

	reg.Register(Tool{
		Name:        "get_project_context",
		Description: "Generate a resume-context snapshot: last session, pending/in-progress TODOs, recent decisions, and unresolved notes.",
		Schema: objectSchema(map[string]*openapi3.Schema{
			"project_id": stringProp("Project to summarize"),
		}, "project_id"),
		Handler: func(ctx context.Context, args json.RawMessage) (interface{}, error) {
			var in struct {
				ProjectID string `json:"project_id" validate:"required"`
			}
			if err := reg.ValidateArgs(args, &in); err != nil {
				return nil, err
			}
			return d.Context.GenerateResumeContext(ctx, in.ProjectID)
		},
	})

	reg.Register(Tool{
		Name:        "list_todos",
		Description: "List a project's TODOs, optionally filtered by status.",
		Schema: objectSchema(map[string]*openapi3.Schema{
			"project_id": stringProp("Project to list TODOs for"),
			"status":     enumStringProp("Optional status filter", "pending", "in_progress", "completed", "blocked", "cancelled"),
		}, "project_id"),
		Handler: func(ctx context.Context, args json.RawMessage) (interface{}, error) {
			var in struct {
				ProjectID string  `json:"project_id" validate:"required"`
				Status    *string `json:"status"`
			}
			if err := reg.ValidateArgs(args, &in); err != nil {
				return nil, err
			}
			var status *models.TodoStatus
			if in.Status != nil {
				s := models.TodoStatus(*in.Status)
				status = &s
			}
			return d.Context.GetTodos(ctx, in.ProjectID, status)
		},
	})

	reg.Register(Tool{
		Name:        "get_next_todo",
		Description: "Return the highest-priority pending TODO whose dependencies are all completed.",
		Schema: objectSchema(map[string]*openapi3.Schema{
			"project_id": stringProp("Project to inspect"),
		}, "project_id"),
		Handler: func(ctx context.Context, args json.RawMessage) (interface{}, error) {
			var in struct {
				ProjectID string `json:"project_id" validate:"required"`
			}
			if err := reg.ValidateArgs(args, &in); err != nil {
				return nil, err
			}
			return d.Context.GetNextTodo(ctx, in.ProjectID)
		},
	})

	reg.Register(Tool{
		Name:        "list_design_decisions",
		Description: "List a project's design decisions, optionally filtered by category and status.",
		Schema: objectSchema(map[string]*openapi3.Schema{
			"project_id": stringProp("Project to list decisions for"),
			"category":   stringProp("Optional category filter"),
			"status":     enumStringProp("Status filter (default active)", "active", "superseded", "deprecated"),
		}, "project_id"),
		Handler: func(ctx context.Context, args json.RawMessage) (interface{}, error) {
			var in struct {
				ProjectID string  `json:"project_id" validate:"required"`
				Category  *string `json:"category"`
				Status    string  `json:"status"`
			}
			if err := reg.ValidateArgs(args, &in); err != nil {
				return nil, err
			}
			return d.Context.GetDecisions(ctx, in.ProjectID, in.Category, models.DecisionStatus(in.Status))
		},
	})

	reg.Register(Tool{
		Name:        "list_project_notes",
		Description: "List a project's notes, optionally filtered by category, minimum importance, and resolution state.",
		Schema: objectSchema(map[string]*openapi3.Schema{
			"project_id":      stringProp("Project to list notes for"),
			"category":        stringProp("Optional category filter"),
			"min_importance":  intProp("Minimum importance (default 1)"),
			"unresolved_only": boolProp("Only include unresolved notes"),
		}, "project_id"),
		Handler: func(ctx context.Context, args json.RawMessage) (interface{}, error) {
			var in struct {
				ProjectID      string  `json:"project_id" validate:"required"`
				Category       *string `json:"category"`
				MinImportance  int     `json:"min_importance"`
				UnresolvedOnly bool    `json:"unresolved_only"`
			}
			if err := reg.ValidateArgs(args, &in); err != nil {
				return nil, err
			}
			return d.Context.GetNotes(ctx, in.ProjectID, in.Category, in.MinImportance, in.UnresolvedOnly)
		},
	})

	reg.Register(Tool{
		Name:        "get_project_statistics",
		Description: "Count a project's entities, relations, active decisions, notes, pending TODOs, and open quality issues.",
		Schema: objectSchema(map[string]*openapi3.Schema{
			"project_id": stringProp("Project to summarize"),
		}, "project_id"),
		Handler: func(ctx context.Context, args json.RawMessage) (interface{}, error) {
			var in struct {
				ProjectID string `json:"project_id" validate:"required"`
			}
			if err := reg.ValidateArgs(args, &in); err != nil {
				return nil, err
			}
			return projectStatistics(ctx, d, in.ProjectID)
		},
	})
}

type projectStats struct {
	ProjectID      string `json:"project_id"`
	EntityCount    int    `json:"entity_count"`
	RelationCount  int    `json:"relation_count"`
	DecisionCount  int    `json:"decision_count"`
	NoteCount      int    `json:"note_count"`
	OpenTodoCount  int    `json:"open_todo_count"`
	OpenIssueCount int    `json:"open_issue_count"`
}

func projectStatistics(ctx context.Context, d Deps, projectID string) (*projectStats, error) {
	entities, err := d.Store.Entities.ListByProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	relations, err := d.Store.Relations.ListByProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	decisions, err := d.Store.Decisions.List(ctx, projectID, nil, models.DecisionActive)
	if err != nil {
		return nil, err
	}
	notes, err := d.Store.Notes.List(ctx, projectID, nil, 1, false)
	if err != nil {
		return nil, err
	}
	pending := models.TodoPending
	todos, err := d.Store.Todos.ListByProject(ctx, projectID, &pending)
	if err != nil {
		return nil, err
	}
	issues, err := d.Store.QualityIssues.ListOpen(ctx, projectID, nil)
	if err != nil {
		return nil, err
	}

	return &projectStats{
		ProjectID:      projectID,
		EntityCount:    len(entities),
		RelationCount:  len(relations),
		DecisionCount:  len(decisions),
		NoteCount:      len(notes),
		OpenTodoCount:  len(todos),
		OpenIssueCount: len(issues),
	}, nil
}
