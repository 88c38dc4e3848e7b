package analyzer

import (
	"regexp"
	"strings"

	"github.com/jordigilh/devctx-mcp/internal/models"
)

// pythonParser produces the same shape of output Python's own `ast` module
// would (spec §4.B: "Uses the language's canonical AST"), but without one
// available to a Go binary it walks source lines and tracks indentation to
// recover the same module/class/function/method structure, qualified dotted
// names, reconstructed `name(params)->ret?` signatures, and leading
// docstrings. See DESIGN.md for why this, rather than a CPython AST
// dependency, backs the Python side of the analyzer.
type pythonParser struct {
	filePath string
	seen     map[string]int
}

func newPythonParser(filePath string) *pythonParser {
	return &pythonParser{filePath: filePath, seen: map[string]int{}}
}

var (
	reClassDef = regexp.MustCompile(`^(\s*)class\s+(\w+)\s*(?:\(([^)]*)\))?\s*:`)
	reDefDef   = regexp.MustCompile(`^(\s*)(?:async\s+)?def\s+(\w+)\s*\(([^)]*)\)\s*(?:->\s*([^:]+))?\s*:`)
	reImportS  = regexp.MustCompile(`^\s*import\s+([\w.]+)(?:\s+as\s+\w+)?`)
	reFromImp  = regexp.MustCompile(`^\s*from\s+([\w.]+)\s+import\s+(.+)`)
)

type pyScope struct {
	kind      string // "class" or "function"
	name      string
	qualified string
	indent    int
	entityID  string
}

// Parse walks source line by line, tracking an indentation-based scope
// stack; a `def` nested directly under a `class` scope becomes a `method`
// entity with a `contains` relation to its class, everything else a
// `function` (one nested inside another function gets that function as its
// parent, a nested qualified name, and a `contains` relation).
func (p *pythonParser) Parse(projectID, source string) *parsedFile {
	pf := &parsedFile{}
	lines := strings.Split(source, "\n")

	moduleName := moduleNameFromPath(p.filePath)
	moduleID := entityID(p.seen, p.filePath, "module", moduleName, 1)
	moduleEntity := &models.CodeEntity{
		EntityID: moduleID, ProjectID: projectID, Kind: models.EntityModule,
		Name: moduleName, QualifiedName: moduleName, FilePath: p.filePath, LineStart: 1,
		Metadata: map[string]any{"language": "python"},
	}
	if doc := leadingDocstring(lines); doc != "" {
		moduleEntity.Docstring = &doc
	}
	pf.entities = append(pf.entities, moduleEntity)

	var stack []pyScope
	var spans []scopeSpan

	closeScopesAbove := func(indent int) {
		for len(stack) > 0 && stack[len(stack)-1].indent >= indent {
			stack = stack[:len(stack)-1]
		}
	}

	for i, line := range lines {
		lineNum := i + 1
		if m := reClassDef.FindStringSubmatch(line); m != nil {
			indent := len(m[1])
			closeScopesAbove(indent)
			name := m[2]
			bases := splitTrim(m[3], ",")

			qualified := moduleName + "." + name
			parentID := ""
			if len(stack) > 0 {
				parentID = stack[len(stack)-1].entityID
				qualified = stack[len(stack)-1].qualified + "." + name
			}
			id := entityID(p.seen, p.filePath, "class", qualified, lineNum)
			entity := &models.CodeEntity{
				EntityID: id, ProjectID: projectID, Kind: models.EntityClass,
				Name: name, QualifiedName: qualified, FilePath: p.filePath, LineStart: lineNum,
				Metadata: map[string]any{"language": "python", "bases": bases},
			}
			if parentID != "" {
				entity.ParentID = &parentID
			}
			if doc := docstringAt(lines, i); doc != "" {
				entity.Docstring = &doc
			}
			pf.entities = append(pf.entities, entity)
			spans = append(spans, scopeSpan{entity: entity, indent: indent, defLine: i})

			for _, base := range bases {
				base = strings.TrimSpace(base)
				if base == "" || base == "object" {
					continue
				}
				rid := relationID(p.seen, p.filePath, "inherits", entity.EntityID, base, lineNum)
				pf.relations = append(pf.relations, &models.CodeRelation{
					RelationID: rid, ProjectID: projectID, SourceID: entity.EntityID, TargetID: base,
					Kind: models.RelationInherits, FilePath: &entity.FilePath, Metadata: map[string]any{"resolved": false},
				})
			}
			if parentID != "" {
				rid := relationID(p.seen, p.filePath, "contains", parentID, name, lineNum)
				pf.relations = append(pf.relations, &models.CodeRelation{
					RelationID: rid, ProjectID: projectID, SourceID: parentID, TargetID: entity.EntityID,
					Kind: models.RelationContains, FilePath: &entity.FilePath, Metadata: map[string]any{"member_type": "class"},
				})
			}

			stack = append(stack, pyScope{kind: "class", name: name, qualified: qualified, indent: indent, entityID: entity.EntityID})
			continue
		}

		if m := reDefDef.FindStringSubmatch(line); m != nil {
			indent := len(m[1])
			closeScopesAbove(indent)
			name := m[2]
			params := m[3]
			retType := strings.TrimSpace(m[4])

			kind := models.EntityFunction
			qualified := moduleName + "." + name
			var parentID string
			inClass := len(stack) > 0 && stack[len(stack)-1].kind == "class"
			if inClass {
				kind = models.EntityMethod
				parentID = stack[len(stack)-1].entityID
				qualified = stack[len(stack)-1].qualified + "." + name
			} else if len(stack) > 0 {
				qualified = stack[len(stack)-1].qualified + "." + name
				parentID = stack[len(stack)-1].entityID
			}

			sig := name + "(" + strings.TrimSpace(params) + ")"
			if retType != "" {
				sig += "->" + retType
			}

			id := entityID(p.seen, p.filePath, string(kind), qualified, lineNum)
			entity := &models.CodeEntity{
				EntityID: id, ProjectID: projectID, Kind: kind,
				Name: name, QualifiedName: qualified, FilePath: p.filePath, LineStart: lineNum,
				Signature: &sig, Metadata: map[string]any{"language": "python"},
			}
			if parentID != "" {
				entity.ParentID = &parentID
			}
			if doc := docstringAt(lines, i); doc != "" {
				entity.Docstring = &doc
			}
			pf.entities = append(pf.entities, entity)
			spans = append(spans, scopeSpan{entity: entity, indent: indent, defLine: i})

			if parentID != "" {
				relKind := models.RelationContains
				rid := relationID(p.seen, p.filePath, "contains", parentID, name, lineNum)
				pf.relations = append(pf.relations, &models.CodeRelation{
					RelationID: rid, ProjectID: projectID, SourceID: parentID, TargetID: entity.EntityID,
					Kind: relKind, FilePath: &entity.FilePath, Metadata: map[string]any{"member_type": "function"},
				})
			}

			stack = append(stack, pyScope{kind: "function", name: name, qualified: qualified, indent: indent, entityID: entity.EntityID})
			continue
		}

		trimmed := strings.TrimRight(line, " \t")
		if trimmed != "" {
			indent := len(line) - len(strings.TrimLeft(line, " \t"))
			if strings.TrimSpace(line) != "" {
				closeScopesAbove(indent + 1)
			}
		}

		if m := reImportS.FindStringSubmatch(line); m != nil {
			rid := relationID(p.seen, p.filePath, "imports", moduleID, m[1], lineNum)
			pf.relations = append(pf.relations, &models.CodeRelation{
				RelationID: rid, ProjectID: projectID, SourceID: moduleID, TargetID: m[1],
				Kind: models.RelationImports, FilePath: &moduleEntity.FilePath, Metadata: map[string]any{"resolved": false},
			})
		} else if m := reFromImp.FindStringSubmatch(line); m != nil {
			rid := relationID(p.seen, p.filePath, "imports", moduleID, m[1], lineNum)
			pf.relations = append(pf.relations, &models.CodeRelation{
				RelationID: rid, ProjectID: projectID, SourceID: moduleID, TargetID: m[1],
				Kind: models.RelationImports, FilePath: &moduleEntity.FilePath, Metadata: map[string]any{"resolved": false, "names": splitTrim(m[2], ",")},
			})
		}
	}

	// Close out line_end for every entity at the point its scope ended —
	// approximated here as the last line of the file for anything whose
	// scope was never explicitly closed (i.e. ran to EOF), and otherwise
	// the line before the next sibling/dedent at the same or shallower
	// indent. Computed in a second pass since scopes close asynchronously
	// with entity creation above.
	assignLineEnds(moduleEntity, spans, lines)

	return pf
}

// scopeSpan records the definition line and indentation of a class/function
// entity so assignLineEnds can scan forward for where its body closes.
type scopeSpan struct {
	entity  *models.CodeEntity
	indent  int
	defLine int // 0-based index into lines
}

// assignLineEnds finds, for every class/function entity, the last line of
// its body by scanning forward from its definition for the next non-blank
// line whose indentation is <= the entity's own definition indentation
// (the next dedent or sibling), trimming trailing blank lines from the
// body. A scope that never dedents before EOF closes at the file's last
// line.
func assignLineEnds(moduleEntity *models.CodeEntity, spans []scopeSpan, lines []string) {
	totalLines := len(lines)
	end := totalLines
	moduleEntity.LineEnd = &end

	for _, span := range spans {
		last := totalLines
		for i := span.defLine + 1; i < len(lines); i++ {
			if strings.TrimSpace(lines[i]) == "" {
				continue
			}
			indent := len(lines[i]) - len(strings.TrimLeft(lines[i], " \t"))
			if indent <= span.indent {
				last = i // 0-based index of the dedent line == 1-based line number of the last body line
				break
			}
		}
		for last > span.defLine+1 && strings.TrimSpace(lines[last-1]) == "" {
			last--
		}
		lineEnd := last
		span.entity.LineEnd = &lineEnd
	}
}

func leadingDocstring(lines []string) string {
	for _, l := range lines {
		t := strings.TrimSpace(l)
		if t == "" {
			continue
		}
		if strings.HasPrefix(t, `"""`) || strings.HasPrefix(t, "'''") {
			return extractDocstring(t)
		}
		return ""
	}
	return ""
}

func docstringAt(lines []string, defLineIdx int) string {
	for i := defLineIdx + 1; i < len(lines) && i < defLineIdx+3; i++ {
		t := strings.TrimSpace(lines[i])
		if t == "" {
			continue
		}
		if strings.HasPrefix(t, `"""`) || strings.HasPrefix(t, "'''") {
			return extractDocstring(t)
		}
		return ""
	}
	return ""
}

func extractDocstring(t string) string {
	quote := t[:3]
	rest := strings.TrimPrefix(t, quote)
	if idx := strings.Index(rest, quote); idx >= 0 {
		return strings.TrimSpace(rest[:idx])
	}
	return strings.TrimSpace(rest)
}

func moduleNameFromPath(filePath string) string {
	base := filePath
	if idx := strings.LastIndex(base, "/"); idx >= 0 {
		base = base[idx+1:]
	}
	base = strings.TrimSuffix(base, ".py")
	return base
}
