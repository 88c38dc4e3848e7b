package quality

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/jordigilh/devctx-mcp/internal/models"
)

// Subscore defaults for the four scores spec §4.D leaves unspecified
// ("MAY use static defaults in a minimal implementation; their slots are
// reserved in the schema"). §9's open question notes the source computes
// only code_quality_score; these constants are this implementation's
// documented choice, recorded in DESIGN.md.
const (
	defaultTestCoverageScore    = 5.0
	defaultDocumentationScore   = 5.0
	defaultDependencyHealthScore = 5.0
	defaultTodoHealthScore      = 5.0
)

const (
	weightCode = 0.40
	weightTest = 0.25
	weightDocs = 0.15
	weightDeps = 0.10
	weightTodo = 0.10
)

// AssessDebt computes and persists a DebtSnapshot from currently open
// quality issues, per the formula in spec §4.D. Snapshots are immutable
// once written (spec §3).
func (g *Guardian) AssessDebt(ctx context.Context, projectID string) (*models.DebtSnapshot, error) {
	counts, err := g.db.QualityIssues.CountBySeverity(ctx, projectID)
	if err != nil {
		return nil, err
	}

	critical := counts[models.SeverityCritical]
	high := counts[models.SeverityHigh]
	medium := counts[models.SeverityMedium]
	low := counts[models.SeverityLow]

	weightSum := float64(critical)*models.IssueWeight(models.SeverityCritical) +
		float64(high)*models.IssueWeight(models.SeverityHigh) +
		float64(medium)*models.IssueWeight(models.SeverityMedium) +
		float64(low)*models.IssueWeight(models.SeverityLow)

	codeScore := 10 - weightSum/10
	if codeScore < 0 {
		codeScore = 0
	}

	overall := weightCode*codeScore + weightTest*defaultTestCoverageScore +
		weightDocs*defaultDocumentationScore + weightDeps*defaultDependencyHealthScore +
		weightTodo*defaultTodoHealthScore

	hours := float64(critical)*models.IssueHours(models.SeverityCritical) +
		float64(high)*models.IssueHours(models.SeverityHigh) +
		float64(medium)*models.IssueHours(models.SeverityMedium) +
		float64(low)*models.IssueHours(models.SeverityLow)

	snapshot := &models.DebtSnapshot{
		SnapshotID:            uuid.NewString(),
		ProjectID:             projectID,
		OverallScore:          overall,
		CodeQualityScore:      codeScore,
		TestCoverageScore:     defaultTestCoverageScore,
		DocumentationScore:    defaultDocumentationScore,
		DependencyHealthScore: defaultDependencyHealthScore,
		TodoHealthScore:       defaultTodoHealthScore,
		CriticalCount:         critical,
		HighCount:             high,
		MediumCount:           medium,
		LowCount:              low,
		EstimatedDaysToFix:    hours / 8,
	}

	if err := g.db.DebtSnapshots.Create(ctx, snapshot); err != nil {
		return nil, err
	}
	return snapshot, nil
}

// Trend reports the debt-snapshot history for get_quality_trends.
func (g *Guardian) Trend(ctx context.Context, projectID string, limit int) ([]models.DebtSnapshot, error) {
	if limit <= 0 {
		limit = 10
	}
	return g.db.DebtSnapshots.History(ctx, projectID, limit)
}

// Hotspot is one file's weighted open-issue ranking (spec §4.D: "group
// open issues by file_path, sum weights, sort descending... top-3 issue
// titles per file").
type Hotspot struct {
	FilePath    string   `json:"file_path"`
	TotalWeight float64  `json:"total_weight"`
	IssueCount  int      `json:"issue_count"`
	TopTitles   []string `json:"top_issue_titles"`
}

// Hotspots ranks files by summed open-issue weight, descending.
func (g *Guardian) Hotspots(ctx context.Context, projectID string, limit int) ([]Hotspot, error) {
	issues, err := g.db.QualityIssues.ListOpen(ctx, projectID, nil)
	if err != nil {
		return nil, err
	}

	type acc struct {
		weight float64
		count  int
		titles []string
	}
	byFile := map[string]*acc{}
	var order []string
	for _, issue := range issues {
		if issue.FilePath == nil {
			continue
		}
		fp := *issue.FilePath
		a, ok := byFile[fp]
		if !ok {
			a = &acc{}
			byFile[fp] = a
			order = append(order, fp)
		}
		a.weight += models.IssueWeight(issue.Severity)
		a.count++
		if len(a.titles) < 3 {
			a.titles = append(a.titles, issue.Title)
		}
	}

	hotspots := make([]Hotspot, 0, len(order))
	for _, fp := range order {
		a := byFile[fp]
		hotspots = append(hotspots, Hotspot{
			FilePath:    fp,
			TotalWeight: a.weight,
			IssueCount:  a.count,
			TopTitles:   a.titles,
		})
	}
	sort.Slice(hotspots, func(i, j int) bool { return hotspots[i].TotalWeight > hotspots[j].TotalWeight })

	if limit > 0 && len(hotspots) > limit {
		hotspots = hotspots[:limit]
	}
	return hotspots, nil
}

// ResolveIssue and IgnoreIssue implement the resolve_quality_issue /
// ignore_quality_issue tools (spec §6 tool table).
func (g *Guardian) ResolveIssue(ctx context.Context, issueID string, resolvedBy *string) error {
	return g.db.QualityIssues.Resolve(ctx, issueID, resolvedBy)
}

func (g *Guardian) IgnoreIssue(ctx context.Context, issueID string) error {
	return g.db.QualityIssues.Ignore(ctx, issueID)
}

// ListIssues implements list_quality_issues.
func (g *Guardian) ListIssues(ctx context.Context, projectID string, severity *models.Severity) ([]models.QualityIssue, error) {
	return g.db.QualityIssues.ListOpen(ctx, projectID, severity)
}
