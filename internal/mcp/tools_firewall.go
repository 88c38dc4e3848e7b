package mcp

import (
	"context"
	"encoding/json"

	"github.com/getkin/kin-openapi/openapi3"

	"github.com/jordigilh/devctx-mcp/internal/firewall"
	"github.com/jordigilh/devctx-mcp/internal/models"
)

func registerFirewallTools(reg *Registry, d Deps) {
	reg.Register(Tool{
		Name:        "error_firewall_record",
		Description: "Record an error pattern so future matching operations can be blocked or warned about.",
		Schema: objectSchema(map[string]*openapi3.Schema{
			"error_type":          stringProp("Error type, used as the operation key at check time"),
			"error_scene":         stringProp("Human-readable description of when this error occurs"),
			"error_pattern":       objectProp("Parameter pattern that identifies this error"),
			"error_message":       stringProp("Example error message"),
			"solution":            stringProp("Known fix or workaround"),
			"solution_confidence": numberProp("Confidence in the solution, 0-1"),
			"block_level":         enumStringProp("Action to take on a match", "none", "warning", "block"),
			"auto_fix":            boolProp("Whether the solution can be applied automatically"),
		}, "error_type", "error_scene", "error_pattern", "error_message"),
		Handler: func(ctx context.Context, args json.RawMessage) (interface{}, error) {
			var in struct {
				ErrorType          string         `json:"error_type" validate:"required"`
				ErrorScene         string         `json:"error_scene" validate:"required"`
				ErrorPattern       map[string]any `json:"error_pattern" validate:"required"`
				ErrorMessage       string         `json:"error_message" validate:"required"`
				Solution           *string        `json:"solution"`
				SolutionConfidence float64        `json:"solution_confidence"`
				BlockLevel         string         `json:"block_level"`
				AutoFix            bool           `json:"auto_fix"`
			}
			if err := reg.ValidateArgs(args, &in); err != nil {
				return nil, err
			}
			blockLevel := models.BlockLevelWarning
			if in.BlockLevel != "" {
				blockLevel = models.BlockLevel(in.BlockLevel)
			}
			return d.Firewall.RecordError(ctx, firewall.RecordInput{
				ErrorType:          in.ErrorType,
				ErrorScene:         in.ErrorScene,
				ErrorPattern:       in.ErrorPattern,
				ErrorMessage:       in.ErrorMessage,
				Solution:           in.Solution,
				SolutionConfidence: in.SolutionConfidence,
				BlockLevel:         blockLevel,
				AutoFix:            in.AutoFix,
			})
		},
	})

	reg.Register(Tool{
		Name:        "error_firewall_check",
		Description: "Check whether a proposed operation matches a recorded error pattern, returning a block/warn decision and any known solution.",
		Schema: objectSchema(map[string]*openapi3.Schema{
			"operation_type":   stringProp("Operation type being attempted"),
			"operation_params": objectProp("Parameters of the proposed operation"),
			"session_id":       stringProp("Session the check originates from, if any"),
		}, "operation_type", "operation_params"),
		Handler: func(ctx context.Context, args json.RawMessage) (interface{}, error) {
			var in struct {
				OperationType   string         `json:"operation_type" validate:"required"`
				OperationParams map[string]any `json:"operation_params" validate:"required"`
				SessionID       *string        `json:"session_id"`
			}
			if err := reg.ValidateArgs(args, &in); err != nil {
				return nil, err
			}
			return d.Firewall.CheckOperation(ctx, in.OperationType, in.OperationParams, in.SessionID)
		},
	})

	reg.Register(Tool{
		Name:        "error_firewall_query",
		Description: "Look up recorded error records by id or type.",
		Schema: objectSchema(map[string]*openapi3.Schema{
			"error_id":   stringProp("Exact error id (fingerprint) to look up"),
			"error_type": stringProp("Error type to list"),
			"limit":      intProp("Maximum records to return (default 20)"),
		}),
		Handler: func(ctx context.Context, args json.RawMessage) (interface{}, error) {
			var in struct {
				ErrorID   *string `json:"error_id"`
				ErrorType *string `json:"error_type"`
				Limit     int     `json:"limit"`
			}
			if err := reg.ValidateArgs(args, &in); err != nil {
				return nil, err
			}
			if in.Limit <= 0 {
				in.Limit = 20
			}
			return d.Firewall.Query(ctx, in.ErrorID, in.ErrorType, in.Limit)
		},
	})

	reg.Register(Tool{
		Name:        "error_firewall_stats",
		Description: "Summarize error-firewall activity: total occurrences, total blocked, block rate, and the most frequent error types.",
		Schema: objectSchema(map[string]*openapi3.Schema{
			"top_n": intProp("Number of top error types to include (default 10)"),
		}),
		Handler: func(ctx context.Context, args json.RawMessage) (interface{}, error) {
			var in struct {
				TopN int `json:"top_n"`
			}
			if err := reg.ValidateArgs(args, &in); err != nil {
				return nil, err
			}
			if in.TopN <= 0 {
				in.TopN = 10
			}
			return d.Firewall.StatsSummary(ctx, in.TopN)
		},
	})
}
