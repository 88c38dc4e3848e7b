// Package models holds the persisted shapes described in spec §3. Every
// type here is a plain struct with `db` tags for sqlx scanning and `json`
// tags for the MCP tool results; no behavior lives on these types beyond
// small, side-effect-free helpers.
package models

import "time"

type Project struct {
	ProjectID string    `db:"project_id" json:"project_id"`
	Name      string    `db:"name" json:"name"`
	Path      string    `db:"path" json:"path"`
	Language  *string   `db:"language" json:"language,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

type EntityKind string

const (
	EntityModule        EntityKind = "module"
	EntityClass         EntityKind = "class"
	EntityFunction      EntityKind = "function"
	EntityMethod        EntityKind = "method"
	EntityInterface     EntityKind = "interface"
	EntityTypeAlias     EntityKind = "type_alias"
	EntityEnum          EntityKind = "enum"
	EntityReactComponent EntityKind = "react_component"
	EntityReactHook     EntityKind = "react_hook"
	EntityVariable      EntityKind = "variable"
)

type CodeEntity struct {
	EntityID       string            `db:"entity_id" json:"entity_id"`
	ProjectID      string            `db:"project_id" json:"project_id"`
	Kind           EntityKind        `db:"kind" json:"kind"`
	Name           string            `db:"name" json:"name"`
	QualifiedName  string            `db:"qualified_name" json:"qualified_name"`
	FilePath       string            `db:"file_path" json:"file_path"`
	LineStart      int               `db:"line_start" json:"line_start"`
	LineEnd        *int              `db:"line_end" json:"line_end,omitempty"`
	Signature      *string           `db:"signature" json:"signature,omitempty"`
	Docstring      *string           `db:"docstring" json:"docstring,omitempty"`
	ParentID       *string           `db:"parent_id" json:"parent_id,omitempty"`
	Metadata       map[string]any    `db:"-" json:"metadata,omitempty"`
	MetadataJSON   []byte            `db:"metadata" json:"-"`
}

// LOC returns line_end - line_start when both are set, and ok=false
// otherwise (spec §4.D: long-function / god-class sizing is only defined
// when both bounds are present).
func (e *CodeEntity) LOC() (loc int, ok bool) {
	if e.LineEnd == nil {
		return 0, false
	}
	return *e.LineEnd - e.LineStart, true
}

type RelationKind string

const (
	RelationContains  RelationKind = "contains"
	RelationInherits  RelationKind = "inherits"
	RelationImplements RelationKind = "implements"
	RelationImports   RelationKind = "imports"
	RelationCalls     RelationKind = "calls"
)

type CodeRelation struct {
	RelationID   string         `db:"relation_id" json:"relation_id"`
	ProjectID    string         `db:"project_id" json:"project_id"`
	SourceID     string         `db:"source_id" json:"source_id"`
	TargetID     string         `db:"target_id" json:"target_id"`
	Kind         RelationKind   `db:"kind" json:"kind"`
	FilePath     *string        `db:"file_path" json:"file_path,omitempty"`
	Metadata     map[string]any `db:"-" json:"metadata,omitempty"`
	MetadataJSON []byte         `db:"metadata" json:"-"`
}

// Resolved reports whether metadata.resolved is true (default false for a
// freshly-inserted relation whose target could not yet be matched, spec §3).
func (r *CodeRelation) Resolved() bool {
	if r.Metadata == nil {
		return false
	}
	v, ok := r.Metadata["resolved"].(bool)
	return ok && v
}

type Session struct {
	SessionID         string     `db:"session_id" json:"session_id"`
	ProjectID         string     `db:"project_id" json:"project_id"`
	StartTime         time.Time  `db:"start_time" json:"start_time"`
	EndTime           *time.Time `db:"end_time" json:"end_time,omitempty"`
	DurationMinutes   *int       `db:"duration_minutes" json:"duration_minutes,omitempty"`
	Goals             string     `db:"goals" json:"goals"`
	Achievements      *string    `db:"achievements" json:"achievements,omitempty"`
	NextSteps         *string    `db:"next_steps" json:"next_steps,omitempty"`
	FilesModified     []string   `db:"-" json:"files_modified,omitempty"`
	IssuesEncountered []string   `db:"-" json:"issues_encountered,omitempty"`
	ContextSummary    *string    `db:"context_summary" json:"context_summary,omitempty"`
}

type DecisionStatus string

const (
	DecisionActive     DecisionStatus = "active"
	DecisionSuperseded DecisionStatus = "superseded"
	DecisionDeprecated DecisionStatus = "deprecated"
)

type Decision struct {
	DecisionID     string            `db:"decision_id" json:"decision_id"`
	ProjectID      string            `db:"project_id" json:"project_id"`
	SessionID      *string           `db:"session_id" json:"session_id,omitempty"`
	Category       string            `db:"category" json:"category"`
	Title          string            `db:"title" json:"title"`
	Description    *string           `db:"description" json:"description,omitempty"`
	Reasoning      string            `db:"reasoning" json:"reasoning"`
	Alternatives   []string          `db:"-" json:"alternatives,omitempty"`
	TradeOffs      map[string]string `db:"-" json:"trade_offs,omitempty"`
	ImpactScope    *string           `db:"impact_scope" json:"impact_scope,omitempty"`
	Status         DecisionStatus    `db:"status" json:"status"`
	SupersededBy   *string           `db:"superseded_by" json:"superseded_by,omitempty"`
	CreatedAt      time.Time         `db:"created_at" json:"created_at"`
}

type NoteCategory string

const (
	NotePitfall      NoteCategory = "pitfall"
	NoteTip          NoteCategory = "tip"
	NoteOptimization NoteCategory = "optimization"
	NoteIssue        NoteCategory = "issue"
	NoteReminder     NoteCategory = "reminder"
)

type Note struct {
	NoteID          string       `db:"note_id" json:"note_id"`
	ProjectID       string       `db:"project_id" json:"project_id"`
	SessionID       *string      `db:"session_id" json:"session_id,omitempty"`
	Category        NoteCategory `db:"category" json:"category"`
	Title           string       `db:"title" json:"title"`
	Content         string       `db:"content" json:"content"`
	Importance      int          `db:"importance" json:"importance"`
	RelatedCode     *string      `db:"related_code" json:"related_code,omitempty"`
	RelatedEntities []string     `db:"-" json:"related_entities,omitempty"`
	Tags            []string     `db:"-" json:"tags,omitempty"`
	IsResolved      bool         `db:"is_resolved" json:"is_resolved"`
	ResolvedAt      *time.Time   `db:"resolved_at" json:"resolved_at,omitempty"`
	ResolvedNote    *string      `db:"resolved_note" json:"resolved_note,omitempty"`
	CreatedAt       time.Time    `db:"created_at" json:"created_at"`
}

type TodoCategory string

const (
	TodoFeature       TodoCategory = "feature"
	TodoBugfix        TodoCategory = "bugfix"
	TodoRefactor      TodoCategory = "refactor"
	TodoTest          TodoCategory = "test"
	TodoDocumentation TodoCategory = "documentation"
)

type TodoStatus string

const (
	TodoPending    TodoStatus = "pending"
	TodoInProgress TodoStatus = "in_progress"
	TodoCompleted  TodoStatus = "completed"
	TodoBlocked    TodoStatus = "blocked"
	TodoCancelled  TodoStatus = "cancelled"
)

type Todo struct {
	TodoID               string       `db:"todo_id" json:"todo_id"`
	ProjectID            string       `db:"project_id" json:"project_id"`
	SessionID            *string      `db:"session_id" json:"session_id,omitempty"`
	Title                string       `db:"title" json:"title"`
	Description          *string      `db:"description" json:"description,omitempty"`
	Category             TodoCategory `db:"category" json:"category"`
	Priority             int          `db:"priority" json:"priority"`
	EstimatedDifficulty  int          `db:"estimated_difficulty" json:"estimated_difficulty"`
	EstimatedHours       *float64     `db:"estimated_hours" json:"estimated_hours,omitempty"`
	Status               TodoStatus   `db:"status" json:"status"`
	Progress             int          `db:"progress" json:"progress"`
	DependsOn            []string     `db:"-" json:"depends_on,omitempty"`
	CompletedAt          *time.Time   `db:"completed_at" json:"completed_at,omitempty"`
	CompletionNote       *string      `db:"completion_note" json:"completion_note,omitempty"`
	CreatedAt            time.Time    `db:"created_at" json:"created_at"`
}

// Blocks is the reverse of DependsOn, derived at query time (spec §3).
func Blocks(all []*Todo, todoID string) []string {
	var blocked []string
	for _, t := range all {
		for _, dep := range t.DependsOn {
			if dep == todoID {
				blocked = append(blocked, t.TodoID)
				break
			}
		}
	}
	return blocked
}

type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

type IssueStatus string

const (
	IssueOpen       IssueStatus = "open"
	IssueInProgress IssueStatus = "in_progress"
	IssueResolved   IssueStatus = "resolved"
	IssueIgnored    IssueStatus = "ignored"
)

type QualityIssue struct {
	IssueID     string         `db:"issue_id" json:"issue_id"`
	ProjectID   string         `db:"project_id" json:"project_id"`
	IssueType   string         `db:"issue_type" json:"issue_type"`
	Severity    Severity       `db:"severity" json:"severity"`
	EntityID    *string        `db:"entity_id" json:"entity_id,omitempty"`
	FilePath    *string        `db:"file_path" json:"file_path,omitempty"`
	LineNumber  *int           `db:"line_number" json:"line_number,omitempty"`
	Title       string         `db:"title" json:"title"`
	Description *string        `db:"description" json:"description,omitempty"`
	Suggestion  *string        `db:"suggestion" json:"suggestion,omitempty"`
	Metadata    map[string]any `db:"-" json:"metadata,omitempty"`
	MetadataJSON []byte        `db:"metadata" json:"-"`
	Status      IssueStatus    `db:"status" json:"status"`
	DetectedAt  time.Time      `db:"detected_at" json:"detected_at"`
	ResolvedAt  *time.Time     `db:"resolved_at" json:"resolved_at,omitempty"`
	ResolvedBy  *string        `db:"resolved_by" json:"resolved_by,omitempty"`
}

// IssueWeight is the debt-scoring weight table from spec §4.D.
func IssueWeight(s Severity) float64 {
	switch s {
	case SeverityCritical:
		return 4
	case SeverityHigh:
		return 2
	case SeverityMedium:
		return 1
	case SeverityLow:
		return 0.5
	default:
		return 0
	}
}

// IssueHours is the estimated-fix-hours table from spec §4.D.
func IssueHours(s Severity) float64 {
	switch s {
	case SeverityCritical:
		return 8
	case SeverityHigh:
		return 4
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	default:
		return 0
	}
}

type DebtSnapshot struct {
	SnapshotID           string    `db:"snapshot_id" json:"snapshot_id"`
	ProjectID            string    `db:"project_id" json:"project_id"`
	OverallScore         float64   `db:"overall_score" json:"overall_score"`
	CodeQualityScore     float64   `db:"code_quality_score" json:"code_quality_score"`
	TestCoverageScore    float64   `db:"test_coverage_score" json:"test_coverage_score"`
	DocumentationScore   float64   `db:"documentation_score" json:"documentation_score"`
	DependencyHealthScore float64  `db:"dependency_health_score" json:"dependency_health_score"`
	TodoHealthScore      float64   `db:"todo_health_score" json:"todo_health_score"`
	CriticalCount        int       `db:"critical_count" json:"critical_count"`
	HighCount            int       `db:"high_count" json:"high_count"`
	MediumCount          int       `db:"medium_count" json:"medium_count"`
	LowCount             int       `db:"low_count" json:"low_count"`
	EstimatedDaysToFix   float64   `db:"estimated_days_to_fix" json:"estimated_days_to_fix"`
	CreatedAt            time.Time `db:"created_at" json:"created_at"`
}

type BlockLevel string

const (
	BlockLevelNone    BlockLevel = "none"
	BlockLevelWarning BlockLevel = "warning"
	BlockLevelBlock   BlockLevel = "block"
)

type ErrorRecord struct {
	ID                int64          `db:"id" json:"id"`
	ErrorID           string         `db:"error_id" json:"error_id"`
	ErrorType         string         `db:"error_type" json:"error_type"`
	ErrorScene        string         `db:"error_scene" json:"error_scene"`
	ErrorPattern      map[string]any `db:"-" json:"error_pattern"`
	ErrorPatternJSON  []byte         `db:"error_pattern" json:"-"`
	ErrorMessage      string         `db:"error_message" json:"error_message"`
	Solution          *string        `db:"solution" json:"solution,omitempty"`
	SolutionConfidence float64       `db:"solution_confidence" json:"solution_confidence"`
	BlockLevel        BlockLevel     `db:"block_level" json:"block_level"`
	AutoFix           bool           `db:"auto_fix" json:"auto_fix"`
	OccurrenceCount   int            `db:"occurrence_count" json:"occurrence_count"`
	BlockedCount      int            `db:"blocked_count" json:"blocked_count"`
	LastOccurredAt    time.Time      `db:"last_occurred_at" json:"last_occurred_at"`
	CreatedAt         time.Time      `db:"created_at" json:"created_at"`
}

type InterceptType string

const (
	InterceptBefore InterceptType = "before"
	InterceptAfter  InterceptType = "after"
)

type InterceptAction string

const (
	InterceptPassed  InterceptAction = "passed"
	InterceptWarned  InterceptAction = "warned"
	InterceptBlocked InterceptAction = "blocked"
)

type InterceptLog struct {
	ID               int64          `db:"id" json:"id"`
	ErrorRecordID    int64          `db:"error_record_id" json:"error_record_id"`
	InterceptType    InterceptType  `db:"intercept_type" json:"intercept_type"`
	InterceptAction  InterceptAction `db:"intercept_action" json:"intercept_action"`
	OperationType    string         `db:"operation_type" json:"operation_type"`
	OperationParams  map[string]any `db:"-" json:"operation_params,omitempty"`
	OperationParamsJSON []byte      `db:"operation_params" json:"-"`
	MatchConfidence  float64        `db:"match_confidence" json:"match_confidence"`
	SessionID        *string        `db:"session_id" json:"session_id,omitempty"`
	CreatedAt        time.Time      `db:"created_at" json:"created_at"`
}
