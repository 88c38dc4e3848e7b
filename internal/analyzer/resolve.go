package analyzer

import (
	"strings"

	"github.com/jordigilh/devctx-mcp/internal/models"
)

// resolveCrossFile implements spec §4.B's second pass: relation targets
// that name another entity in the same project are matched by qualified
// name, by {file_path:name}, or, failing both, by a bare name that exactly
// one entity carries, flipping metadata.resolved to true and
// rewriting target_id to the matched entity's id. Anything left unmatched
// keeps metadata.resolved=false, which is not a failure (spec §3).
func resolveCrossFile(entities []*models.CodeEntity, relations []*models.CodeRelation) {
	byQualifiedName := make(map[string]string, len(entities))
	byName := make(map[string][]string, len(entities))
	byFileAndName := make(map[string]string, len(entities))

	for _, e := range entities {
		byQualifiedName[e.QualifiedName] = e.EntityID
		byName[e.Name] = append(byName[e.Name], e.EntityID)
		byFileAndName[e.FilePath+":"+e.Name] = e.EntityID
	}

	for _, r := range relations {
		if r.Metadata == nil {
			r.Metadata = map[string]any{}
		}
		if resolved, _ := r.Metadata["resolved"].(bool); resolved {
			continue
		}
		targetName := r.TargetID

		if id, ok := byQualifiedName[targetName]; ok {
			markResolved(r, id)
			continue
		}
		if fp := fileScopedFile(r); fp != "" {
			if id, ok := byFileAndName[fp+":"+targetName]; ok {
				markResolved(r, id)
				continue
			}
		}
		if ids, ok := byName[lastSegment(targetName)]; ok && len(ids) == 1 {
			markResolved(r, ids[0])
			continue
		}
		r.Metadata["resolved"] = false
	}
}

func markResolved(r *models.CodeRelation, targetID string) {
	r.TargetID = targetID
	r.Metadata["resolved"] = true
}

func fileScopedFile(r *models.CodeRelation) string {
	if r.FilePath != nil {
		return *r.FilePath
	}
	return ""
}

func lastSegment(qualified string) string {
	if idx := strings.LastIndexAny(qualified, ".:"); idx >= 0 {
		return qualified[idx+1:]
	}
	return qualified
}
