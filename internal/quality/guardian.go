// Package quality implements spec §4.D: the four on-demand smell detectors
// (circular dependency, long function, god class, tight coupling), the
// debt-score formula, and file-level hotspot ranking. SPEC_FULL.md §D adds
// a fifth, opt-in detector for duplicate signatures.
package quality

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/jordigilh/devctx-mcp/internal/models"
	"github.com/jordigilh/devctx-mcp/internal/storage"
)

const (
	longFunctionCritical = 200
	longFunctionHigh      = 100
	longFunctionMedium    = 50

	godClassMethodsBase = 15
	godClassMethodsHigh  = 20
	godClassMethodsCrit  = 30
	godClassLOCBase      = 300
	godClassLOCHigh      = 500
	godClassLOCCrit      = 800

	couplingMedium = 10
	couplingHigh   = 20
)

// Guardian orchestrates the four (or five, opt-in) detectors against one
// project's persisted entity/relation graph, mirroring the analyzer's
// pattern of a small orchestrating type over the storage facade.
type Guardian struct {
	db  *storage.Store
	log *logrus.Entry
}

func New(db *storage.Store, log *logrus.Logger) *Guardian {
	return &Guardian{db: db, log: log.WithField("component", "quality")}
}

// DetectResult summarizes one detect_code_smells run.
type DetectResult struct {
	ProjectID string               `json:"project_id"`
	Issues    []models.QualityIssue `json:"issues"`
}

// DetectSmells runs the detector suite and persists every finding in one
// transaction. A re-run does not duplicate open issues for the same
// (project_id, issue_type, entity_id, file_path, line_number) tuple — the
// storage layer's partial unique index on quality_issues enforces that via
// Upsert (spec §4.D).
func (g *Guardian) DetectSmells(ctx context.Context, projectID string, includeDuplicates bool) (*DetectResult, error) {
	entities, err := g.db.Entities.ListByProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	relations, err := g.db.Relations.ListByProject(ctx, projectID)
	if err != nil {
		return nil, err
	}

	var issues []models.QualityIssue
	issues = append(issues, detectCircularDependencies(projectID, entities, relations)...)
	issues = append(issues, detectLongFunctions(projectID, entities)...)
	issues = append(issues, detectGodClasses(projectID, entities)...)
	issues = append(issues, detectTightCoupling(projectID, entities, relations)...)
	if includeDuplicates {
		issues = append(issues, detectDuplicateSignatures(projectID, entities)...)
	}

	err = g.db.WithTx(ctx, func(tx *storage.Store) error {
		for i := range issues {
			if err := tx.QualityIssues.Upsert(ctx, &issues[i]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &DetectResult{ProjectID: projectID, Issues: issues}, nil
}

func newIssue(projectID, issueType string, severity models.Severity, title string) models.QualityIssue {
	return models.QualityIssue{
		IssueID:   uuid.NewString(),
		ProjectID: projectID,
		IssueType: issueType,
		Severity:  severity,
		Title:     title,
		Status:    models.IssueOpen,
		Metadata:  map[string]any{},
	}
}

// detectCircularDependencies builds a directed graph over entities from
// "imports" relations and runs DFS, emitting one issue per minimal cycle —
// cycles sharing the same vertex set are deduplicated (spec §4.D / §9 open
// question: "minimal cycles, deduplicated by vertex set").
func detectCircularDependencies(projectID string, entities []models.CodeEntity, relations []models.CodeRelation) []models.QualityIssue {
	adj := map[string][]string{}
	for _, r := range relations {
		if r.Kind == models.RelationImports {
			adj[r.SourceID] = append(adj[r.SourceID], r.TargetID)
		}
	}
	entityByID := map[string]models.CodeEntity{}
	for _, e := range entities {
		entityByID[e.EntityID] = e
	}

	seenVertexSets := map[string]bool{}
	var issues []models.QualityIssue

	var stack []string
	onStack := map[string]bool{}
	visited := map[string]bool{}

	var visit func(node string)
	visit = func(node string) {
		visited[node] = true
		onStack[node] = true
		stack = append(stack, node)

		for _, next := range adj[node] {
			if !visited[next] {
				visit(next)
			} else if onStack[next] {
				cycle := extractCycle(stack, next)
				key := vertexSetKey(cycle)
				if !seenVertexSets[key] {
					seenVertexSets[key] = true
					issues = append(issues, cycleIssue(projectID, cycle, entityByID))
				}
			}
		}

		stack = stack[:len(stack)-1]
		onStack[node] = false
	}

	// Deterministic iteration order over a stable (sorted) vertex set so
	// repeated runs against an unchanged graph emit the same issue set.
	var nodes []string
	for _, e := range entities {
		nodes = append(nodes, e.EntityID)
	}
	sort.Strings(nodes)
	for _, n := range nodes {
		if !visited[n] {
			visit(n)
		}
	}
	return issues
}

func extractCycle(stack []string, target string) []string {
	for i, v := range stack {
		if v == target {
			return append([]string{}, stack[i:]...)
		}
	}
	return []string{target}
}

func vertexSetKey(cycle []string) string {
	set := append([]string{}, cycle...)
	sort.Strings(set)
	key := ""
	for _, v := range set {
		key += v + "|"
	}
	return key
}

func cycleIssue(projectID string, cycle []string, entityByID map[string]models.CodeEntity) models.QualityIssue {
	severity := models.SeverityHigh
	if len(cycle) > 3 {
		severity = models.SeverityCritical
	}
	names := make([]string, 0, len(cycle))
	var firstFile *string
	for _, id := range cycle {
		if e, ok := entityByID[id]; ok {
			names = append(names, e.QualifiedName)
			if firstFile == nil {
				fp := e.FilePath
				firstFile = &fp
			}
		} else {
			names = append(names, id)
		}
	}
	issue := newIssue(projectID, "circular_dependency", severity,
		fmt.Sprintf("Circular import dependency: %v", names))
	issue.FilePath = firstFile
	issue.Description = strPtr(fmt.Sprintf("Entities form an import cycle of length %d", len(cycle)))
	issue.Metadata["cycle"] = names
	if len(cycle) > 0 {
		eid := cycle[0]
		issue.EntityID = &eid
	}
	return issue
}

// detectLongFunctions flags function/method entities whose line span
// exceeds the spec §4.D thresholds. 50 lines is explicitly a non-issue
// boundary (spec §8): loc > 50 is medium, loc == 50 is clean.
func detectLongFunctions(projectID string, entities []models.CodeEntity) []models.QualityIssue {
	var issues []models.QualityIssue
	for _, e := range entities {
		if e.Kind != models.EntityFunction && e.Kind != models.EntityMethod {
			continue
		}
		loc, ok := e.LOC()
		if !ok {
			continue
		}
		severity, ok := longFunctionSeverity(loc)
		if !ok {
			continue
		}
		issue := newIssue(projectID, "long_function", severity,
			fmt.Sprintf("Function %q is %d lines long", e.Name, loc))
		issue.EntityID = &e.EntityID
		fp := e.FilePath
		issue.FilePath = &fp
		ln := e.LineStart
		issue.LineNumber = &ln
		issue.Suggestion = strPtr("Consider extracting smaller, single-purpose functions")
		issues = append(issues, issue)
	}
	return issues
}

func longFunctionSeverity(loc int) (models.Severity, bool) {
	switch {
	case loc > longFunctionCritical:
		return models.SeverityCritical, true
	case loc > longFunctionHigh:
		return models.SeverityHigh, true
	case loc > longFunctionMedium:
		return models.SeverityMedium, true
	default:
		return "", false
	}
}

// detectGodClasses counts children by parent_id and computes loc from the
// class entity's own line span, escalating severity at the 20/500 and
// 30/800 thresholds (spec §4.D).
func detectGodClasses(projectID string, entities []models.CodeEntity) []models.QualityIssue {
	methodCount := map[string]int{}
	for _, e := range entities {
		if e.ParentID != nil {
			methodCount[*e.ParentID]++
		}
	}

	var issues []models.QualityIssue
	for _, e := range entities {
		if e.Kind != models.EntityClass {
			continue
		}
		methods := methodCount[e.EntityID]
		loc, _ := e.LOC()

		severity, ok := godClassSeverity(methods, loc)
		if !ok {
			continue
		}
		issue := newIssue(projectID, "god_class", severity,
			fmt.Sprintf("Class %q has %d methods and %d lines", e.Name, methods, loc))
		issue.EntityID = &e.EntityID
		fp := e.FilePath
		issue.FilePath = &fp
		issue.Metadata["method_count"] = methods
		issue.Metadata["loc"] = loc
		issue.Suggestion = strPtr("Consider splitting responsibilities into smaller collaborators")
		issues = append(issues, issue)
	}
	return issues
}

func godClassSeverity(methods, loc int) (models.Severity, bool) {
	switch {
	case methods > godClassMethodsCrit || loc > godClassLOCCrit:
		return models.SeverityCritical, true
	case methods > godClassMethodsHigh || loc > godClassLOCHigh:
		return models.SeverityHigh, true
	case methods > godClassMethodsBase || loc > godClassLOCBase:
		return models.SeverityMedium, true
	default:
		return "", false
	}
}

// detectTightCoupling computes fan-in/fan-out per entity across every
// relation kind (spec §4.D: "count(relations where target=e)" /
// "source=e", not scoped to imports).
func detectTightCoupling(projectID string, entities []models.CodeEntity, relations []models.CodeRelation) []models.QualityIssue {
	fanIn := map[string]int{}
	fanOut := map[string]int{}
	for _, r := range relations {
		fanOut[r.SourceID]++
		fanIn[r.TargetID]++
	}

	entityByID := map[string]models.CodeEntity{}
	for _, e := range entities {
		entityByID[e.EntityID] = e
	}

	var issues []models.QualityIssue
	for _, e := range entities {
		in, out := fanIn[e.EntityID], fanOut[e.EntityID]
		max := in
		if out > max {
			max = out
		}
		var severity models.Severity
		switch {
		case max > couplingHigh:
			severity = models.SeverityHigh
		case max > couplingMedium:
			severity = models.SeverityMedium
		default:
			continue
		}
		issue := newIssue(projectID, "tight_coupling", severity,
			fmt.Sprintf("Entity %q has fan-in %d and fan-out %d", e.Name, in, out))
		issue.EntityID = &e.EntityID
		fp := e.FilePath
		issue.FilePath = &fp
		issue.Metadata["fan_in"] = in
		issue.Metadata["fan_out"] = out
		issues = append(issues, issue)
	}
	return issues
}

// detectDuplicateSignatures is the SPEC_FULL.md §D addition: two
// function/method entities in the same project sharing a normalized
// signature, scored low and only run when the caller opts in.
func detectDuplicateSignatures(projectID string, entities []models.CodeEntity) []models.QualityIssue {
	bySignature := map[string][]models.CodeEntity{}
	for _, e := range entities {
		if e.Kind != models.EntityFunction && e.Kind != models.EntityMethod {
			continue
		}
		if e.Signature == nil || *e.Signature == "" {
			continue
		}
		bySignature[*e.Signature] = append(bySignature[*e.Signature], e)
	}

	var issues []models.QualityIssue
	for sig, group := range bySignature {
		if len(group) < 2 {
			continue
		}
		issue := newIssue(projectID, "duplicate_signature", models.SeverityLow,
			fmt.Sprintf("%d entities share signature %q", len(group), sig))
		first := group[0]
		issue.EntityID = &first.EntityID
		fp := first.FilePath
		issue.FilePath = &fp
		names := make([]string, 0, len(group))
		for _, g := range group {
			names = append(names, g.QualifiedName)
		}
		issue.Metadata["entities"] = names
		issues = append(issues, issue)
	}
	return issues
}

func strPtr(s string) *string { return &s }
