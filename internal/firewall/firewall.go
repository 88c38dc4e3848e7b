// Package firewall implements spec §4.E: content-addressed error
// fingerprinting, pre-operation confidence-scored matching against
// recorded errors, and the intercept log.
package firewall

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	apperrors "github.com/jordigilh/devctx-mcp/internal/errors"
	"github.com/jordigilh/devctx-mcp/internal/models"
	"github.com/jordigilh/devctx-mcp/internal/storage"
)

// Firewall wraps the ErrorRecord/InterceptLog repositories with the
// fingerprinting and scoring logic spec §4.E describes.
type Firewall struct {
	db  *storage.Store
	log *logrus.Entry
}

func New(db *storage.Store, log *logrus.Logger) *Firewall {
	return &Firewall{db: db, log: log.WithField("component", "firewall")}
}

// Fingerprint computes error_id = sha256_hex(error_type + ":" + canonical_json(pattern)),
// where canonical JSON sorts keys lexicographically and contains no
// insignificant whitespace (spec §4.E).
func Fingerprint(errorType string, pattern map[string]any) string {
	canonical := canonicalJSON(pattern)
	sum := sha256.Sum256([]byte(errorType + ":" + canonical))
	return hex.EncodeToString(sum[:])
}

// canonicalJSON renders v as compact JSON with map keys sorted
// lexicographically at every level.
func canonicalJSON(v any) string {
	var b strings.Builder
	writeCanonical(&b, v)
	return b.String()
}

func writeCanonical(b *strings.Builder, v any) {
	switch t := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				b.WriteByte(',')
			}
			kb, _ := json.Marshal(k)
			b.Write(kb)
			b.WriteByte(':')
			writeCanonical(b, t[k])
		}
		b.WriteByte('}')
	case []any:
		b.WriteByte('[')
		for i, e := range t {
			if i > 0 {
				b.WriteByte(',')
			}
			writeCanonical(b, e)
		}
		b.WriteByte(']')
	default:
		eb, _ := json.Marshal(t)
		b.Write(eb)
	}
}

// RecordResult is the response of record_error.
type RecordResult struct {
	IsNew   bool   `json:"is_new"`
	ErrorID string `json:"error_id"`
}

// RecordInput captures the error_firewall_record tool arguments (spec §4.E).
type RecordInput struct {
	ErrorType          string
	ErrorScene         string
	ErrorPattern       map[string]any
	ErrorMessage       string
	Solution           *string
	SolutionConfidence float64
	BlockLevel         models.BlockLevel
	AutoFix            bool
}

// RecordError computes the fingerprint and upserts the record. A repeat
// fingerprint bumps occurrence_count rather than inserting a duplicate row
// (spec §4.E idempotency invariant).
func (f *Firewall) RecordError(ctx context.Context, in RecordInput) (*RecordResult, error) {
	errorID := Fingerprint(in.ErrorType, in.ErrorPattern)

	rec := &models.ErrorRecord{
		ErrorID:            errorID,
		ErrorType:          in.ErrorType,
		ErrorScene:         in.ErrorScene,
		ErrorPattern:       in.ErrorPattern,
		ErrorMessage:       in.ErrorMessage,
		Solution:           in.Solution,
		SolutionConfidence: in.SolutionConfidence,
		BlockLevel:         in.BlockLevel,
		AutoFix:            in.AutoFix,
	}

	existing, err := f.db.ErrorRecords.ByErrorID(ctx, errorID)
	isNew := existing == nil
	if err != nil {
		// ByErrorID returns a NotFound error (not a nil record) on a miss;
		// only propagate genuine lookup failures.
		if !isNotFound(err) {
			return nil, err
		}
		isNew = true
	}

	if err := f.db.ErrorRecords.Upsert(ctx, rec); err != nil {
		return nil, err
	}

	return &RecordResult{IsNew: isNew, ErrorID: errorID}, nil
}

func isNotFound(err error) bool {
	var appErr *apperrors.AppError
	return apperrors.As(err, &appErr) && appErr.Type == apperrors.ErrorTypeNotFound
}

// CheckResult is the response of check_operation.
type CheckResult struct {
	ShouldBlock    bool    `json:"should_block"`
	ShouldWarn     bool    `json:"should_warn"`
	RiskLevel      string  `json:"risk_level"`
	ErrorID        *string `json:"error_id,omitempty"`
	ErrorScene     *string `json:"error_scene,omitempty"`
	MatchConfidence float64 `json:"match_confidence"`
	Solution       *string `json:"solution,omitempty"`
	AutoFix        bool    `json:"auto_fix"`
}

const confidenceThreshold = 0.5

// CheckOperation scores operation_params against every recorded error
// sharing operation_type as its error_type and carrying a non-none block
// level, selects the highest-confidence candidate above the threshold,
// writes an intercept log entry, and bumps blocked_count when the chosen
// action is a block (spec §4.E steps 1-7).
func (f *Firewall) CheckOperation(ctx context.Context, operationType string, operationParams map[string]any, sessionID *string) (*CheckResult, error) {
	candidates, err := f.db.ErrorRecords.ByType(ctx, operationType)
	if err != nil {
		return nil, err
	}

	var best *models.ErrorRecord
	var bestConfidence float64
	for i := range candidates {
		rec := &candidates[i]
		if rec.BlockLevel == models.BlockLevelNone {
			continue
		}
		confidence := matchConfidence(rec.ErrorPattern, operationParams)
		if confidence <= confidenceThreshold {
			continue
		}
		if best == nil || confidence > bestConfidence ||
			(confidence == bestConfidence && rec.LastOccurredAt.After(best.LastOccurredAt)) {
			best = rec
			bestConfidence = confidence
		}
	}

	if best == nil {
		return &CheckResult{ShouldBlock: false, RiskLevel: "low"}, nil
	}

	result := &CheckResult{
		ErrorID:         &best.ErrorID,
		ErrorScene:      &best.ErrorScene,
		MatchConfidence: bestConfidence,
		Solution:        best.Solution,
		AutoFix:         best.AutoFix,
	}

	var action models.InterceptAction
	switch best.BlockLevel {
	case models.BlockLevelBlock:
		result.ShouldBlock = true
		result.RiskLevel = "high"
		action = models.InterceptBlocked
	case models.BlockLevelWarning:
		result.ShouldWarn = true
		result.RiskLevel = "medium"
		action = models.InterceptWarned
	default:
		result.RiskLevel = "low"
		action = models.InterceptPassed
	}

	log := &models.InterceptLog{
		ErrorRecordID:   best.ID,
		InterceptType:   models.InterceptBefore,
		InterceptAction: action,
		OperationType:   operationType,
		OperationParams: operationParams,
		MatchConfidence: bestConfidence,
		SessionID:       sessionID,
	}
	// record_error/check_operation's writes are deliberately not shared in
	// one transaction with the match (spec §5): the intercept log is
	// observational, not authoritative, and a crash between the two writes
	// is tolerated.
	if err := f.db.InterceptLogs.Create(ctx, log); err != nil {
		return nil, err
	}
	if result.ShouldBlock {
		if err := f.db.ErrorRecords.IncrementBlocked(ctx, best.ID); err != nil {
			return nil, err
		}
	}

	return result, nil
}

// matchConfidence implements spec §4.E step 2: for each key in the stored
// pattern, weight 1.0 on an exact match, 0.8 on a case-insensitive string
// match, 0.0 otherwise, summed and divided by the pattern's key count. An
// empty pattern yields zero confidence rather than division by zero (spec
// §8: "empty operation_params and a pattern of size 0 returns should_block=false").
func matchConfidence(pattern map[string]any, params map[string]any) float64 {
	if len(pattern) == 0 {
		return 0
	}
	var sum float64
	for k, patternVal := range pattern {
		paramVal, ok := params[k]
		if !ok {
			continue
		}
		switch {
		case valuesEqual(patternVal, paramVal):
			sum += 1.0
		case caseInsensitiveStringEqual(patternVal, paramVal):
			sum += 0.8
		}
	}
	return sum / float64(len(pattern))
}

func valuesEqual(a, b any) bool {
	ajson, _ := json.Marshal(a)
	bjson, _ := json.Marshal(b)
	return string(ajson) == string(bjson)
}

func caseInsensitiveStringEqual(a, b any) bool {
	as, aok := a.(string)
	bs, bok := b.(string)
	return aok && bok && strings.EqualFold(as, bs)
}

// Query implements error_firewall_query: look up by error_id, or list by
// error_type with a limit.
func (f *Firewall) Query(ctx context.Context, errorID *string, errorType *string, limit int) ([]models.ErrorRecord, error) {
	if errorID != nil {
		rec, err := f.db.ErrorRecords.ByErrorID(ctx, *errorID)
		if err != nil {
			return nil, err
		}
		return []models.ErrorRecord{*rec}, nil
	}
	if errorType != nil {
		recs, err := f.db.ErrorRecords.ByType(ctx, *errorType)
		if err != nil {
			return nil, err
		}
		if limit > 0 && len(recs) > limit {
			recs = recs[:limit]
		}
		return recs, nil
	}
	return f.db.ErrorRecords.TopByOccurrence(ctx, limit)
}

// Stats is the response of error_firewall_stats, extended per SPEC_FULL.md
// §E with top_error_types.
type Stats struct {
	TotalOccurrences int                  `json:"total_occurrences"`
	TotalBlocked     int                  `json:"total_blocked"`
	BlockRate        float64              `json:"block_rate"`
	TopErrorTypes    []models.ErrorRecord `json:"top_error_types"`
}

func (f *Firewall) StatsSummary(ctx context.Context, topN int) (*Stats, error) {
	total, blocked, err := f.db.ErrorRecords.Stats(ctx)
	if err != nil {
		return nil, err
	}
	var rate float64
	if total > 0 {
		rate = float64(blocked) / float64(total)
	}
	if topN <= 0 {
		topN = 5
	}
	top, err := f.db.ErrorRecords.TopByOccurrence(ctx, topN)
	if err != nil {
		return nil, err
	}
	return &Stats{
		TotalOccurrences: total,
		TotalBlocked:     blocked,
		BlockRate:        rate,
		TopErrorTypes:    top,
	}, nil
}
