package analyzer

import (
	"regexp"
	"strings"

	"github.com/jordigilh/devctx-mcp/internal/models"
)

// jsTSParser is the tolerant regex + brace-balancer pipeline spec §4.B
// requires ("implementations MAY substitute a real parser if available").
// It is grounded line-for-line in the original Python
// JavaScriptTypeScriptAnalyzer (original_source/src/mcp_core/js_ts_analyzer.py):
// the same pattern families, the same brace-counting fallback, and the same
// "emit the entity, keep going" tolerance for malformed input.
type jsTSParser struct {
	filePath     string
	isTypeScript bool
	isJSX        bool
	seen         map[string]int
}

var (
	reClass = regexp.MustCompile(`(?:export\s+)?(?:default\s+)?(?:abstract\s+)?class\s+(\w+)(?:<[^>]+>)?(?:\s+extends\s+([^\s{]+))?(?:\s+implements\s+([^\s{]+))?\s*\{`)

	reFunctionDecl = regexp.MustCompile(`(?:export\s+)?(?:default\s+)?(?:async\s+)?function\s+(\w+)\s*(?:<[^>]+>)?\s*\(([^)]*)\)(?:\s*:\s*([^\s{]+))?\s*\{`)
	reArrowFunc    = regexp.MustCompile(`(?:export\s+)?(?:const|let|var)\s+(\w+)\s*(?:<[^>]+>)?\s*=\s*(?:async\s+)?\(([^)]*)\)(?:\s*:\s*([^\s{]+))?\s*=>\s*[{(]`)

	reInterface = regexp.MustCompile(`(?:export\s+)?interface\s+(\w+)(?:<[^>]+>)?(?:\s+extends\s+([^\s{]+))?\s*\{`)
	reTypeAlias = regexp.MustCompile(`(?:export\s+)?type\s+(\w+)(?:<[^>]+>)?\s*=\s*([^;]+);`)
	reEnum      = regexp.MustCompile(`(?:export\s+)?(?:const\s+)?enum\s+(\w+)\s*\{`)

	reFCTyped      = regexp.MustCompile(`(?:export\s+)?(?:default\s+)?(?:const|function)\s+(\w+)\s*:\s*(?:React\.)?FC(?:<[^>]+>)?\s*=`)
	reFCUpperArrow = regexp.MustCompile(`(?:export\s+)?(?:default\s+)?const\s+([A-Z]\w*)\s*=\s*(?:\([^)]*\)|[A-Za-z0-9_]+)\s*=>\s*[({]`)
	reFCUpperFunc  = regexp.MustCompile(`(?:export\s+)?(?:default\s+)?function\s+([A-Z]\w*)\s*\([^)]*\)\s*\{`)
	reHook         = regexp.MustCompile(`(?:export\s+)?(?:const|function)\s+(use[A-Z]\w*)\s*[=:(]`)

	reExportedVar = regexp.MustCompile(`export\s+(?:const|let|var)\s+([A-Z_][A-Z0-9_]*|\w+Schema|\w+Config)\s*(?::\s*([^=]+))?\s*=`)

	reImportDefault   = regexp.MustCompile(`import\s+(\w+)\s+from\s+["']([^"']+)["']`)
	reImportNamespace = regexp.MustCompile(`import\s+\*\s+as\s+(\w+)\s+from\s+["']([^"']+)["']`)
	reImportNamed     = regexp.MustCompile(`import\s+\{([^}]+)\}\s+from\s+["']([^"']+)["']`)
	reRequire         = regexp.MustCompile(`(?:const|let|var)\s+(\w+)\s*=\s*require\(["']([^"']+)["']\)`)

	reJSDocBlock   = regexp.MustCompile(`/\*\*[\s\S]*?\*/`)
	reLineComment  = regexp.MustCompile(`//[^\n]*`)
	reBlockComment = regexp.MustCompile(`/\*[\s\S]*?\*/`)
)

func newJSTSParser(filePath string) *jsTSParser {
	lower := strings.ToLower(filePath)
	return &jsTSParser{
		filePath:     filePath,
		isTypeScript: strings.HasSuffix(lower, ".ts") || strings.HasSuffix(lower, ".tsx"),
		isJSX:        strings.HasSuffix(lower, ".jsx") || strings.HasSuffix(lower, ".tsx"),
		seen:         map[string]int{},
	}
}

// cleanSource strips `//` and `/* */` comments while preserving JSDoc blocks,
// matching spec §4.B's comment-tolerance requirement.
func (p *jsTSParser) cleanSource(src string) string {
	placeholders := map[string]string{}
	i := 0
	src = reJSDocBlock.ReplaceAllStringFunc(src, func(m string) string {
		key := "\x00JSDOC" + itoa(i) + "\x00"
		placeholders[key] = m
		i++
		return key
	})
	src = reLineComment.ReplaceAllString(src, "")
	src = reBlockComment.ReplaceAllString(src, "")
	for key, orig := range placeholders {
		src = strings.Replace(src, key, orig, 1)
	}
	return src
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	digits := []byte{}
	for n > 0 {
		digits = append([]byte{byte('0' + n%10)}, digits...)
		n /= 10
	}
	return string(digits)
}

func lineOf(src string, pos int) int {
	return strings.Count(src[:pos], "\n") + 1
}

// findMatchingBrace performs the single linear brace-count pass spec §4.B
// calls for; on malformed input (unbalanced braces) it returns the end of
// source rather than erroring, so a pathological file degrades to a
// memberless entity instead of aborting analysis.
func findMatchingBrace(src string, openPos int) int {
	count := 1
	i := openPos + 1
	for i < len(src) && count > 0 {
		switch src[i] {
		case '{':
			count++
		case '}':
			count--
		}
		i++
	}
	return i - 1
}

type parsedFile struct {
	entities  []*models.CodeEntity
	relations []*models.CodeRelation
}

// Parse extracts entities and relations from one file's source, matching
// the original analyzer's pass order: imports, classes, functions,
// TS-only constructs, JSX-only constructs, exported variables, then a
// relation-building pass over everything collected.
func (p *jsTSParser) Parse(projectID, source string) *parsedFile {
	pf := &parsedFile{}
	clean := p.cleanSource(source)

	imports := p.extractImports(clean)
	p.extractClasses(projectID, clean, pf)
	p.extractFunctions(projectID, clean, pf)
	if p.isTypeScript {
		p.extractInterfaces(projectID, clean, pf)
		p.extractTypeAliases(projectID, clean, pf)
		p.extractEnums(projectID, clean, pf)
	}
	if p.isJSX {
		p.extractReactComponents(projectID, clean, pf)
	}
	p.extractHooks(projectID, clean, pf)
	p.extractExportedVariables(projectID, clean, pf)
	p.buildRelations(projectID, clean, imports, pf)

	return pf
}

func (p *jsTSParser) newEntity(projectID string, kind models.EntityKind, name string, lineStart, lineEnd int, signature string, metadata map[string]any) *models.CodeEntity {
	le := lineEnd
	id := entityID(p.seen, p.filePath, string(kind), name, lineStart)
	sig := signature
	return &models.CodeEntity{
		EntityID:      id,
		ProjectID:     projectID,
		Kind:          kind,
		Name:          name,
		QualifiedName: p.filePath + ":" + name,
		FilePath:      p.filePath,
		LineStart:     lineStart,
		LineEnd:       &le,
		Signature:     &sig,
		Metadata:      metadata,
	}
}

func (p *jsTSParser) extractClasses(projectID, src string, pf *parsedFile) {
	for _, m := range reClass.FindAllStringSubmatchIndex(src, -1) {
		name := src[m[2]:m[3]]
		var extends, implements string
		if m[4] != -1 {
			extends = src[m[4]:m[5]]
		}
		if m[6] != -1 {
			implements = src[m[6]:m[7]]
		}
		lineStart := lineOf(src, m[0])
		bodyStart := m[1]
		bodyEnd := findMatchingBrace(src, bodyStart-1)
		body := src[bodyStart:bodyEnd]
		lineEnd := lineStart + strings.Count(body, "\n")

		meta := map[string]any{
			"language": p.language(),
		}
		if extends != "" {
			meta["extends"] = extends
		}
		if implements != "" {
			meta["implements"] = splitTrim(implements, ",")
		}

		entity := p.newEntity(projectID, models.EntityClass, name, lineStart, lineEnd, src[m[0]:m[1]], meta)
		pf.entities = append(pf.entities, entity)

		p.extractClassMembers(projectID, body, name, entity.EntityID, lineStart, pf)
	}
}

func (p *jsTSParser) extractClassMembers(projectID, body, className, classID string, classLine int, pf *parsedFile) {
	reMethod := regexp.MustCompile(`(?:(?:public|private|protected|static|async|override)\s+)*(?:get\s+|set\s+)?(\w+)\s*(?:<[^>]+>)?\s*\(([^)]*)\)(?:\s*:\s*([^\s{]+))?\s*\{`)
	for _, m := range reMethod.FindAllStringSubmatchIndex(body, -1) {
		name := body[m[2]:m[3]]
		if name == "constructor" || name == "super" {
			continue
		}
		params := body[m[4]:m[5]]
		lineStart := classLine + strings.Count(body[:m[0]], "\n")
		bodyEnd := findMatchingBrace(body, m[1]-1)
		lineEnd := lineStart + strings.Count(body[m[0]:bodyEnd], "\n")

		entity := p.newEntity(projectID, models.EntityMethod, name, lineStart, lineEnd,
			name+"("+params+")", map[string]any{"language": p.language(), "class": className})
		entity.QualifiedName = p.filePath + ":" + className + "." + name
		parentID := classID
		entity.ParentID = &parentID
		pf.entities = append(pf.entities, entity)
	}
}

func (p *jsTSParser) extractFunctions(projectID, src string, pf *parsedFile) {
	inClassRanges := classRanges(src)
	extract := func(re *regexp.Regexp) {
		for _, m := range re.FindAllStringSubmatchIndex(src, -1) {
			if inAnyRange(inClassRanges, m[0]) {
				continue
			}
			name := src[m[2]:m[3]]
			params := ""
			if m[4] != -1 {
				params = src[m[4]:m[5]]
			}
			var retType string
			if len(m) > 6 && m[6] != -1 {
				retType = src[m[6]:m[7]]
			}
			lineStart := lineOf(src, m[0])
			sig := name + "(" + params + ")"
			if retType != "" {
				sig += ": " + retType
			}
			meta := map[string]any{
				"language": p.language(),
				"is_async": strings.Contains(src[m[0]:m[1]], "async"),
				"is_arrow": strings.Contains(src[m[0]:m[1]], "=>"),
			}
			// The match always ends on the opening delimiter: a brace for a
			// block body (reFunctionDecl always, reArrowFunc usually), or a
			// paren for a parenthesized single-expression arrow body (e.g.
			// `=> (<JSX/>)`) that findMatchingBrace can't close.
			lineEnd := lineStart
			if src[m[1]-1] == '{' {
				bodyEnd := findMatchingBrace(src, m[1]-1)
				lineEnd = lineOf(src, bodyEnd)
			}
			entity := p.newEntity(projectID, models.EntityFunction, name, lineStart, lineEnd, sig, meta)
			pf.entities = append(pf.entities, entity)
		}
	}
	extract(reFunctionDecl)
	extract(reArrowFunc)
}

func (p *jsTSParser) extractInterfaces(projectID, src string, pf *parsedFile) {
	for _, m := range reInterface.FindAllStringSubmatchIndex(src, -1) {
		name := src[m[2]:m[3]]
		var extends string
		if m[4] != -1 {
			extends = src[m[4]:m[5]]
		}
		lineStart := lineOf(src, m[0])
		meta := map[string]any{"language": "typescript"}
		if extends != "" {
			meta["extends"] = splitTrim(extends, ",")
		}
		pf.entities = append(pf.entities, p.newEntity(projectID, models.EntityInterface, name, lineStart, lineStart, src[m[0]:m[1]], meta))
	}
}

func (p *jsTSParser) extractTypeAliases(projectID, src string, pf *parsedFile) {
	for _, m := range reTypeAlias.FindAllStringSubmatchIndex(src, -1) {
		name := src[m[2]:m[3]]
		def := src[m[4]:m[5]]
		lineStart := lineOf(src, m[0])
		pf.entities = append(pf.entities, p.newEntity(projectID, models.EntityTypeAlias, name, lineStart, lineStart,
			"type "+name+" = "+def, map[string]any{"language": "typescript", "definition": def}))
	}
}

func (p *jsTSParser) extractEnums(projectID, src string, pf *parsedFile) {
	for _, m := range reEnum.FindAllStringSubmatchIndex(src, -1) {
		name := src[m[2]:m[3]]
		lineStart := lineOf(src, m[0])
		bodyEnd := findMatchingBrace(src, m[1]-1)
		body := src[m[1]:bodyEnd]
		lineEnd := lineStart + strings.Count(body, "\n")
		pf.entities = append(pf.entities, p.newEntity(projectID, models.EntityEnum, name, lineStart, lineEnd,
			"enum "+name, map[string]any{"language": "typescript", "is_const": strings.Contains(src[m[0]:m[1]], "const")}))
	}
}

// extractReactComponents covers function components, arrow components,
// typed `React.FC` assignments, and — per SPEC_FULL.md §B's supplement
// from the original's default-export handling — anonymous
// `export default function (...)` / `export default class extends
// React.Component` forms the distilled spec.md is silent on.
func (p *jsTSParser) extractReactComponents(projectID, src string, pf *parsedFile) {
	seenNames := map[string]bool{}
	extract := func(re *regexp.Regexp) {
		for _, m := range re.FindAllStringSubmatchIndex(src, -1) {
			name := src[m[2]:m[3]]
			if seenNames[name] {
				continue
			}
			seenNames[name] = true
			lineStart := lineOf(src, m[0])
			pf.entities = append(pf.entities, p.newEntity(projectID, models.EntityReactComponent, name, lineStart, lineStart,
				"React.FC "+name, map[string]any{"language": p.language(), "component_type": "functional", "framework": "react"}))
		}
	}
	extract(reFCTyped)
	extract(reFCUpperFunc)
	extract(reFCUpperArrow)

	if reDefaultAnonFunc.MatchString(src) {
		m := reDefaultAnonFunc.FindStringSubmatchIndex(src)
		lineStart := lineOf(src, m[0])
		name := "default"
		pf.entities = append(pf.entities, p.newEntity(projectID, models.EntityReactComponent, name, lineStart, lineStart,
			"export default function(...)", map[string]any{"language": p.language(), "component_type": "functional", "framework": "react", "anonymous": true}))
	}

	if m := reDefaultAnonClass.FindStringIndex(src); m != nil {
		lineStart := lineOf(src, m[0])
		pf.entities = append(pf.entities, p.newEntity(projectID, models.EntityReactComponent, "default", lineStart, lineStart,
			"export default class extends React.Component", map[string]any{"language": p.language(), "component_type": "class", "framework": "react", "anonymous": true}))
	}
}

var reDefaultAnonFunc = regexp.MustCompile(`export\s+default\s+function\s*\(`)
var reDefaultAnonClass = regexp.MustCompile(`export\s+default\s+class\s+extends\s+(?:React\.)?(?:Pure)?Component\b`)

func (p *jsTSParser) extractHooks(projectID, src string, pf *parsedFile) {
	for _, m := range reHook.FindAllStringSubmatchIndex(src, -1) {
		name := src[m[2]:m[3]]
		lineStart := lineOf(src, m[0])
		pf.entities = append(pf.entities, p.newEntity(projectID, models.EntityReactHook, name, lineStart, lineStart,
			"Hook "+name, map[string]any{"language": p.language(), "framework": "react"}))
	}
}

func (p *jsTSParser) extractExportedVariables(projectID, src string, pf *parsedFile) {
	for _, m := range reExportedVar.FindAllStringSubmatchIndex(src, -1) {
		name := src[m[2]:m[3]]
		var typeAnn string
		if len(m) > 4 && m[4] != -1 {
			typeAnn = strings.TrimSpace(src[m[4]:m[5]])
		}
		lineStart := lineOf(src, m[0])
		sig := name
		if typeAnn != "" {
			sig = name + ": " + typeAnn
		}
		pf.entities = append(pf.entities, p.newEntity(projectID, models.EntityVariable, name, lineStart, lineStart, sig,
			map[string]any{"language": p.language(), "is_exported": true, "is_const": strings.Contains(src[m[0]:m[1]], "const")}))
	}
}

type importSpec struct {
	name   string
	source string
}

func (p *jsTSParser) extractImports(src string) []importSpec {
	var out []importSpec
	for _, re := range []*regexp.Regexp{reImportDefault, reImportNamespace, reRequire} {
		for _, m := range re.FindAllStringSubmatch(src, -1) {
			out = append(out, importSpec{name: strings.TrimSpace(m[1]), source: m[2]})
		}
	}
	for _, m := range reImportNamed.FindAllStringSubmatch(src, -1) {
		for _, name := range splitTrim(m[1], ",") {
			out = append(out, importSpec{name: name, source: m[2]})
		}
	}
	return out
}

// buildRelations mirrors _build_relations in the original: inherits/implements
// from class metadata, contains from method->class, and a best-effort
// imports relation when an entity's signature or metadata textually
// references the imported name.
func (p *jsTSParser) buildRelations(projectID, src string, imports []importSpec, pf *parsedFile) {
	for _, e := range pf.entities {
		if extends, ok := e.Metadata["extends"].(string); ok && extends != "" {
			rid := relationID(p.seen, p.filePath, "inherits", e.EntityID, extends, e.LineStart)
			pf.relations = append(pf.relations, &models.CodeRelation{
				RelationID: rid, ProjectID: projectID, SourceID: e.EntityID, TargetID: extends,
				Kind: models.RelationInherits, FilePath: &e.FilePath, Metadata: map[string]any{"resolved": false},
			})
		}
		if impls, ok := e.Metadata["implements"].([]string); ok {
			for _, impl := range impls {
				impl = strings.TrimSpace(impl)
				rid := relationID(p.seen, p.filePath, "implements", e.EntityID, impl, e.LineStart)
				pf.relations = append(pf.relations, &models.CodeRelation{
					RelationID: rid, ProjectID: projectID, SourceID: e.EntityID, TargetID: impl,
					Kind: models.RelationImplements, FilePath: &e.FilePath, Metadata: map[string]any{"resolved": false},
				})
			}
		}
		if e.Kind == models.EntityMethod && e.ParentID != nil {
			rid := relationID(p.seen, p.filePath, "contains", *e.ParentID, e.Name, e.LineStart)
			pf.relations = append(pf.relations, &models.CodeRelation{
				RelationID: rid, ProjectID: projectID, SourceID: *e.ParentID, TargetID: e.EntityID,
				Kind: models.RelationContains, FilePath: &e.FilePath, Metadata: map[string]any{"member_type": "method"},
			})
		}
	}

	for _, imp := range imports {
		if strings.HasPrefix(imp.name, "_side_effect_") || imp.name == "" {
			continue
		}
		for _, e := range pf.entities {
			sig := ""
			if e.Signature != nil {
				sig = *e.Signature
			}
			if strings.Contains(sig, imp.name) {
				rid := relationID(p.seen, p.filePath, "imports", e.EntityID, imp.source, e.LineStart)
				pf.relations = append(pf.relations, &models.CodeRelation{
					RelationID: rid, ProjectID: projectID, SourceID: e.EntityID, TargetID: imp.source,
					Kind: models.RelationImports, FilePath: &e.FilePath, Metadata: map[string]any{"import_name": imp.name, "resolved": false},
				})
				break
			}
		}
	}
}

func (p *jsTSParser) language() string {
	if p.isTypeScript {
		return "typescript"
	}
	return "javascript"
}

func splitTrim(s, sep string) []string {
	parts := strings.Split(s, sep)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// classRanges returns [start,end) byte ranges of every class body, used to
// exclude methods already captured by extractClassMembers from the
// top-level function patterns (the original's _is_inside_class check).
func classRanges(src string) [][2]int {
	var ranges [][2]int
	for _, m := range reClass.FindAllStringIndex(src, -1) {
		bodyStart := m[1]
		bodyEnd := findMatchingBrace(src, bodyStart-1)
		ranges = append(ranges, [2]int{m[0], bodyEnd})
	}
	return ranges
}

func inAnyRange(ranges [][2]int, pos int) bool {
	for _, r := range ranges {
		if pos >= r[0] && pos < r[1] {
			return true
		}
	}
	return false
}
