package mcp

import (
	"context"
	"encoding/json"
	"sort"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"

	"github.com/jordigilh/devctx-mcp/internal/errors"
	"github.com/jordigilh/devctx-mcp/internal/models"
)

// Memory tools (spec §6 table, "Memory" group) have no dedicated aggregate
// in §3's data model; this implementation grounds them on Note, the
// closest existing aggregate, tagging each stored memory with its
// memory_level so retrieve_memory can rank by recency within a level
// (documented as an Open-Question resolution in DESIGN.md).
var memoryLevelImportance = map[string]int{"short": 2, "mid": 3, "long": 5}

func registerMemoryTools(reg *Registry, d Deps) {
	reg.Register(Tool{
		Name:        "store_memory",
		Description: "Store a piece of project memory at a given retention level (short, mid, or long).",
		Schema: objectSchema(map[string]*openapi3.Schema{
			"project_id":    stringProp("Project to store memory against"),
			"content":       stringProp("Memory content"),
			"memory_level":  enumStringProp("Retention tier", "short", "mid", "long"),
		}, "project_id", "content", "memory_level"),
		Handler: func(ctx context.Context, args json.RawMessage) (interface{}, error) {
			var in struct {
				ProjectID   string `json:"project_id" validate:"required"`
				Content     string `json:"content" validate:"required"`
				MemoryLevel string `json:"memory_level" validate:"required,oneof=short mid long"`
			}
			if err := reg.ValidateArgs(args, &in); err != nil {
				return nil, err
			}

			importance, ok := memoryLevelImportance[in.MemoryLevel]
			if !ok {
				return nil, errors.NewValidationError("memory_level must be one of short, mid, long")
			}

			note := &models.Note{
				ProjectID:  in.ProjectID,
				Category:   models.NoteReminder,
				Title:      "memory:" + in.MemoryLevel,
				Content:    in.Content,
				Importance: importance,
				Tags:       []string{"memory", "memory:" + in.MemoryLevel},
			}
			if err := d.Context.AddNote(ctx, note); err != nil {
				return nil, err
			}
			return note, nil
		},
	})

	reg.Register(Tool{
		Name:        "retrieve_memory",
		Description: "Retrieve stored project memories whose content matches a query string, most important and most recent first.",
		Schema: objectSchema(map[string]*openapi3.Schema{
			"project_id": stringProp("Project to search"),
			"query":      stringProp("Substring to match against stored memory content"),
			"top_k":      intProp("Maximum number of memories to return (default 5)"),
		}, "project_id", "query"),
		Handler: func(ctx context.Context, args json.RawMessage) (interface{}, error) {
			var in struct {
				ProjectID string `json:"project_id" validate:"required"`
				Query     string `json:"query" validate:"required"`
				TopK      int    `json:"top_k"`
			}
			if err := reg.ValidateArgs(args, &in); err != nil {
				return nil, err
			}
			if in.TopK <= 0 {
				in.TopK = 5
			}

			notes, err := d.Context.GetNotes(ctx, in.ProjectID, nil, 1, false)
			if err != nil {
				return nil, err
			}

			query := strings.ToLower(in.Query)
			var matches []models.Note
			for _, n := range notes {
				if !isMemoryNote(n) {
					continue
				}
				if strings.Contains(strings.ToLower(n.Content), query) {
					matches = append(matches, n)
				}
			}
			sort.SliceStable(matches, func(i, j int) bool {
				if matches[i].Importance != matches[j].Importance {
					return matches[i].Importance > matches[j].Importance
				}
				return matches[i].CreatedAt.After(matches[j].CreatedAt)
			})
			if len(matches) > in.TopK {
				matches = matches[:in.TopK]
			}
			return matches, nil
		},
	})
}

func isMemoryNote(n models.Note) bool {
	for _, t := range n.Tags {
		if t == "memory" {
			return true
		}
	}
	return false
}
