package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/google/uuid"
	"github.com/itchyny/gojq"

	"github.com/jordigilh/devctx-mcp/internal/errors"
	"github.com/jordigilh/devctx-mcp/internal/models"
)

func registerCodeTools(reg *Registry, d Deps) {
	reg.Register(Tool{
		Name:        "analyze_codebase",
		Description: "Walk a project root, parse recognized source files, and persist the resulting entity/relation graph.",
		Schema: objectSchema(map[string]*openapi3.Schema{
			"project_path": stringProp("Filesystem path to the project root"),
			"project_id":   stringProp("Existing project id; a new one is generated when omitted"),
		}, "project_path"),
		Handler: func(ctx context.Context, args json.RawMessage) (interface{}, error) {
			var in struct {
				ProjectPath string `json:"project_path" validate:"required"`
				ProjectID   string `json:"project_id"`
			}
			if err := reg.ValidateArgs(args, &in); err != nil {
				return nil, err
			}
			if in.ProjectID == "" {
				in.ProjectID = uuid.NewString()
			}

			project := &models.Project{
				ProjectID: in.ProjectID,
				Name:      in.ProjectID,
				Path:      in.ProjectPath,
			}
			if err := d.Store.Projects.Upsert(ctx, project); err != nil {
				return nil, err
			}

			return d.Analyzer.Analyze(ctx, in.ProjectID, in.ProjectPath)
		},
	})

	reg.Register(Tool{
		Name:        "query_architecture",
		Description: "Return a project's full entity/relation graph, optionally filtered by a jq expression.",
		Schema: objectSchema(map[string]*openapi3.Schema{
			"project_id": stringProp("Project to query"),
			"jq_filter":  stringProp("Optional jq expression evaluated over {entities, relations}"),
		}, "project_id"),
		Handler: func(ctx context.Context, args json.RawMessage) (interface{}, error) {
			var in struct {
				ProjectID string `json:"project_id" validate:"required"`
				JQFilter  string `json:"jq_filter"`
			}
			if err := reg.ValidateArgs(args, &in); err != nil {
				return nil, err
			}

			entities, err := d.Store.Entities.ListByProject(ctx, in.ProjectID)
			if err != nil {
				return nil, err
			}
			relations, err := d.Store.Relations.ListByProject(ctx, in.ProjectID)
			if err != nil {
				return nil, err
			}

			graph := map[string]interface{}{"entities": entities, "relations": relations}
			return applyJQFilter(graph, in.JQFilter)
		},
	})

	reg.Register(Tool{
		Name:        "find_entity",
		Description: "Find entities in a project by name, optionally fuzzy-matching.",
		Schema: objectSchema(map[string]*openapi3.Schema{
			"project_id": stringProp("Project to search"),
			"name":       stringProp("Entity name to search for"),
			"fuzzy":      boolProp("Allow substring/fuzzy matching (default true)"),
		}, "project_id", "name"),
		Handler: func(ctx context.Context, args json.RawMessage) (interface{}, error) {
			var in struct {
				ProjectID string `json:"project_id" validate:"required"`
				Name      string `json:"name" validate:"required"`
				Fuzzy     *bool  `json:"fuzzy"`
			}
			if err := reg.ValidateArgs(args, &in); err != nil {
				return nil, err
			}
			fuzzy := true
			if in.Fuzzy != nil {
				fuzzy = *in.Fuzzy
			}
			return d.Store.Entities.FindByName(ctx, in.ProjectID, in.Name, fuzzy)
		},
	})

	reg.Register(Tool{
		Name:        "trace_function_calls",
		Description: "Trace the outgoing call graph from an entity up to a bounded depth.",
		Schema: objectSchema(map[string]*openapi3.Schema{
			"project_id": stringProp("Project the entity belongs to"),
			"entity_id":  stringProp("Entity to trace calls from"),
			"depth":      intProp("Maximum traversal depth (default 3)"),
		}, "project_id", "entity_id"),
		Handler: func(ctx context.Context, args json.RawMessage) (interface{}, error) {
			var in struct {
				ProjectID string `json:"project_id" validate:"required"`
				EntityID  string `json:"entity_id" validate:"required"`
				Depth     int    `json:"depth"`
			}
			if err := reg.ValidateArgs(args, &in); err != nil {
				return nil, err
			}
			if in.Depth <= 0 {
				in.Depth = 3
			}
			return traceCalls(ctx, d, in.ProjectID, in.EntityID, in.Depth)
		},
	})

	reg.Register(Tool{
		Name:        "find_dependencies",
		Description: "List an entity's outgoing relations (its dependencies).",
		Schema: objectSchema(map[string]*openapi3.Schema{
			"project_id": stringProp("Project the entity belongs to"),
			"entity_id":  stringProp("Entity to inspect"),
		}, "project_id", "entity_id"),
		Handler: func(ctx context.Context, args json.RawMessage) (interface{}, error) {
			var in struct {
				ProjectID string `json:"project_id" validate:"required"`
				EntityID  string `json:"entity_id" validate:"required"`
			}
			if err := reg.ValidateArgs(args, &in); err != nil {
				return nil, err
			}
			return d.Store.Relations.BySource(ctx, in.ProjectID, in.EntityID)
		},
	})

	reg.Register(Tool{
		Name:        "list_modules",
		Description: "List every module-kind entity in a project.",
		Schema: objectSchema(map[string]*openapi3.Schema{
			"project_id": stringProp("Project to list modules for"),
		}, "project_id"),
		Handler: func(ctx context.Context, args json.RawMessage) (interface{}, error) {
			var in struct {
				ProjectID string `json:"project_id" validate:"required"`
			}
			if err := reg.ValidateArgs(args, &in); err != nil {
				return nil, err
			}
			return d.Store.Entities.ListByKind(ctx, in.ProjectID, models.EntityModule)
		},
	})

	reg.Register(Tool{
		Name:        "explain_module",
		Description: "Ask the AI capability to explain a module entity from its signature, docstring, and children (Unavailable if no AI is configured).",
		Schema: objectSchema(map[string]*openapi3.Schema{
			"project_id": stringProp("Project the entity belongs to"),
			"entity_id":  stringProp("Module entity to explain"),
		}, "project_id", "entity_id"),
		Handler: func(ctx context.Context, args json.RawMessage) (interface{}, error) {
			var in struct {
				ProjectID string `json:"project_id" validate:"required"`
				EntityID  string `json:"entity_id" validate:"required"`
			}
			if err := reg.ValidateArgs(args, &in); err != nil {
				return nil, err
			}

			entity, err := d.Store.Entities.Get(ctx, in.ProjectID, in.EntityID)
			if err != nil {
				return nil, err
			}
			children, err := d.Store.Entities.ListChildren(ctx, in.ProjectID, in.EntityID)
			if err != nil {
				return nil, err
			}

			prompt := buildExplainPrompt(entity, children)
			text, err := d.AI.Complete(ctx, prompt, 512)
			if err != nil {
				return nil, err
			}
			return map[string]string{"explanation": text}, nil
		},
	})

	reg.Register(Tool{
		Name:        "search_code_pattern",
		Description: "Search a project's entity/relation graph with a jq filter expression.",
		Schema: objectSchema(map[string]*openapi3.Schema{
			"project_id": stringProp("Project to search"),
			"jq_filter":  stringProp("jq expression evaluated over {entities, relations}"),
		}, "project_id", "jq_filter"),
		Handler: func(ctx context.Context, args json.RawMessage) (interface{}, error) {
			var in struct {
				ProjectID string `json:"project_id" validate:"required"`
				JQFilter  string `json:"jq_filter" validate:"required"`
			}
			if err := reg.ValidateArgs(args, &in); err != nil {
				return nil, err
			}

			entities, err := d.Store.Entities.ListByProject(ctx, in.ProjectID)
			if err != nil {
				return nil, err
			}
			relations, err := d.Store.Relations.ListByProject(ctx, in.ProjectID)
			if err != nil {
				return nil, err
			}

			graph := map[string]interface{}{"entities": entities, "relations": relations}
			return applyJQFilter(graph, in.JQFilter)
		},
	})
}

func buildExplainPrompt(entity *models.CodeEntity, children []models.CodeEntity) string {
	sig := ""
	if entity.Signature != nil {
		sig = *entity.Signature
	}
	doc := ""
	if entity.Docstring != nil {
		doc = *entity.Docstring
	}
	return fmt.Sprintf(
		"Explain the %s %q (file %s, signature %q, docstring %q) in plain language, noting its %d children.",
		entity.Kind, entity.QualifiedName, entity.FilePath, sig, doc, len(children))
}

// applyJQFilter runs expr over v via a JSON round trip into plain
// interface{} values, the shape gojq requires as input (spec SPEC_FULL.md
// §B/§D: jq filtering over the serialized entity/relation graph). An empty
// expr returns v unfiltered.
func applyJQFilter(v interface{}, expr string) (interface{}, error) {
	if expr == "" {
		return v, nil
	}

	query, err := gojq.Parse(expr)
	if err != nil {
		return nil, errors.NewValidationError("invalid jq_filter: " + err.Error())
	}

	encoded, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var input interface{}
	if err := json.Unmarshal(encoded, &input); err != nil {
		return nil, err
	}

	iter := query.Run(input)
	var results []interface{}
	for {
		out, ok := iter.Next()
		if !ok {
			break
		}
		if jqErr, ok := out.(error); ok {
			return nil, errors.Wrap(jqErr, errors.ErrorTypeValidation, "jq evaluation failed")
		}
		results = append(results, out)
	}
	return results, nil
}

// traceCalls BFS-walks outgoing "calls" relations from entityID up to
// maxDepth, returning one level (entities + the relations that connect
// them) per hop.
type callTraceLevel struct {
	Depth     int                   `json:"depth"`
	Entities  []models.CodeEntity   `json:"entities"`
	Relations []models.CodeRelation `json:"relations"`
}

func traceCalls(ctx context.Context, d Deps, projectID, entityID string, maxDepth int) ([]callTraceLevel, error) {
	var levels []callTraceLevel
	frontier := []string{entityID}
	visited := map[string]bool{entityID: true}

	for depth := 1; depth <= maxDepth && len(frontier) > 0; depth++ {
		var nextFrontier []string
		var levelRelations []models.CodeRelation
		var levelEntities []models.CodeEntity

		for _, id := range frontier {
			rels, err := d.Store.Relations.BySource(ctx, projectID, id)
			if err != nil {
				return nil, err
			}
			for _, r := range rels {
				if r.Kind != models.RelationCalls {
					continue
				}
				levelRelations = append(levelRelations, r)
				if visited[r.TargetID] {
					continue
				}
				visited[r.TargetID] = true
				nextFrontier = append(nextFrontier, r.TargetID)

				target, err := d.Store.Entities.Get(ctx, projectID, r.TargetID)
				if err == nil {
					levelEntities = append(levelEntities, *target)
				}
			}
		}

		if len(levelRelations) == 0 {
			break
		}
		levels = append(levels, callTraceLevel{Depth: depth, Entities: levelEntities, Relations: levelRelations})
		frontier = nextFrontier
	}

	return levels, nil
}
