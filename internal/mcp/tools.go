package mcp

import (
	"github.com/sirupsen/logrus"

	"github.com/jordigilh/devctx-mcp/internal/ai"
	"github.com/jordigilh/devctx-mcp/internal/analyzer"
	"github.com/jordigilh/devctx-mcp/internal/contextstore"
	"github.com/jordigilh/devctx-mcp/internal/firewall"
	"github.com/jordigilh/devctx-mcp/internal/quality"
	"github.com/jordigilh/devctx-mcp/internal/storage"
)

// Deps collects the five subsystems (plus the AI capability) a tool
// handler may depend on, so registration wiring happens in one place
// (cmd/devctx-mcp/main.go calls RegisterAll once at startup).
type Deps struct {
	Store      *storage.Store
	Analyzer   *analyzer.Analyzer
	Context    *contextstore.Store
	Quality    *quality.Guardian
	Firewall   *firewall.Firewall
	AI         ai.Capability
	Log        *logrus.Logger
}

// RegisterAll wires every tool in the spec §6 catalog into reg. Order
// matches the tool table's group ordering (Memory, Code, Context, Quality,
// Firewall) so tools/list responses read predictably.
func RegisterAll(reg *Registry, d Deps) {
	registerMemoryTools(reg, d)
	registerCodeTools(reg, d)
	registerContextTools(reg, d)
	registerQualityTools(reg, d)
	registerFirewallTools(reg, d)
}
