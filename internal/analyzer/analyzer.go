// Package analyzer implements spec §4.B: a multi-language source-tree walk
// that emits a deterministic graph of entities and typed relations into the
// storage layer. It mirrors the teacher repository's pattern of a small
// orchestrating type wired against the storage facade, with language-
// specific parsing factored into sibling files (python.go, jsts.go).
package analyzer

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/jordigilh/devctx-mcp/internal/errors"
	"github.com/jordigilh/devctx-mcp/internal/models"
	"github.com/jordigilh/devctx-mcp/internal/storage"
)

var skipDirs = map[string]bool{
	".git": true, "node_modules": true, "__pycache__": true,
	".venv": true, "venv": true, ".archived": true,
}

// Result summarizes one analyze_codebase run for the tool layer.
type Result struct {
	ProjectID      string `json:"project_id"`
	FilesAnalyzed  int    `json:"files_analyzed"`
	FilesSkipped   int    `json:"files_skipped"`
	EntitiesFound  int    `json:"entities_found"`
	RelationsFound int    `json:"relations_found"`
	FilesRemoved   int    `json:"files_removed"`
}

// Analyzer orchestrates the file walk, per-language parse, cross-file
// resolution, and transactional persistence.
type Analyzer struct {
	store *storage.Store
	log   *logrus.Entry
}

func New(store *storage.Store, log *logrus.Logger) *Analyzer {
	return &Analyzer{store: store, log: log.WithField("component", "analyzer")}
}

// Analyze implements spec §4.B's analyze(project_path, project_id?)
// operation: walk, parse, diff against what is already persisted for files
// no longer on disk, resolve cross-file relation targets, and commit the
// whole result in one transaction.
func (a *Analyzer) Analyze(ctx context.Context, projectID, projectPath string) (*Result, error) {
	info, err := os.Stat(projectPath)
	if err != nil || !info.IsDir() {
		return nil, errors.NewFilesystemError("stat project path", err)
	}

	files, skipped, err := discoverFiles(projectPath)
	if err != nil {
		return nil, errors.NewFilesystemError("walk project tree", err)
	}

	result := &Result{ProjectID: projectID, FilesSkipped: skipped}
	var allEntities []*models.CodeEntity
	var allRelations []*models.CodeRelation
	var relPaths []string

	for _, f := range files {
		rel, relErr := filepath.Rel(projectPath, f)
		if relErr != nil {
			rel = f
		}
		rel = filepath.ToSlash(rel)

		src, readErr := os.ReadFile(f)
		if readErr != nil {
			a.log.WithError(readErr).WithField("file", rel).Warn("skipping unreadable file")
			continue
		}

		pf, lang := a.parseFile(projectID, rel, string(src))
		if lang == "" {
			continue
		}
		if pf == nil {
			a.log.WithField("file", rel).Warn("parse failed, skipping file")
			continue
		}
		relPaths = append(relPaths, rel)
		allEntities = append(allEntities, pf.entities...)
		allRelations = append(allRelations, pf.relations...)
		result.FilesAnalyzed++
	}

	if result.FilesAnalyzed == 0 && len(files) > 0 {
		a.log.Warn("no file in the tree was successfully parsed")
	}

	resolveCrossFile(allEntities, allRelations)

	err = a.store.WithTx(ctx, func(tx *storage.Store) error {
		existingPaths, err := tx.Entities.FilePaths(ctx, projectID)
		if err != nil {
			return err
		}
		stale := diffPaths(existingPaths, relPaths)
		if len(stale) > 0 {
			if err := tx.Entities.DeleteForFiles(ctx, projectID, stale); err != nil {
				return err
			}
			if err := tx.Relations.DeleteForFiles(ctx, projectID, stale); err != nil {
				return err
			}
			result.FilesRemoved = len(stale)
		}

		if len(relPaths) > 0 {
			if err := tx.Entities.DeleteForFiles(ctx, projectID, relPaths); err != nil {
				return err
			}
			if err := tx.Relations.DeleteForFiles(ctx, projectID, relPaths); err != nil {
				return err
			}
		}

		for _, e := range allEntities {
			if err := tx.Entities.Insert(ctx, e); err != nil {
				return err
			}
		}
		for _, r := range allRelations {
			if err := tx.Relations.Insert(ctx, r); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	result.EntitiesFound = len(allEntities)
	result.RelationsFound = len(allRelations)
	return result, nil
}

// parseFile dispatches on file extension per spec §4.B's language table.
// A per-file parse panic or error is caught, logged, and treated as a skip
// rather than aborting the whole analysis ("A parse error on one file is
// logged and skipped").
func (a *Analyzer) parseFile(projectID, relPath, source string) (pf *parsedFile, lang string) {
	ext := strings.ToLower(filepath.Ext(relPath))
	switch ext {
	case ".py":
		lang = "python"
	case ".js", ".mjs", ".cjs", ".jsx", ".ts", ".tsx":
		lang = "javascript_or_typescript"
	default:
		return nil, ""
	}

	defer func() {
		if r := recover(); r != nil {
			a.log.WithField("file", relPath).WithField("panic", r).Error("parser panicked, skipping file")
			pf = nil
		}
	}()

	switch ext {
	case ".py":
		return newPythonParser(relPath).Parse(projectID, source), lang
	default:
		return newJSTSParser(relPath).Parse(projectID, source), lang
	}
}

func discoverFiles(root string) ([]string, int, error) {
	var files []string
	skipped := 0
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		name := d.Name()
		if d.IsDir() {
			if path != root && (skipDirs[name] || strings.HasPrefix(name, ".")) {
				return filepath.SkipDir
			}
			return nil
		}
		ext := strings.ToLower(filepath.Ext(name))
		switch ext {
		case ".py", ".js", ".mjs", ".cjs", ".jsx", ".ts", ".tsx":
			files = append(files, path)
		default:
			skipped++
		}
		return nil
	})
	return files, skipped, err
}

// diffPaths returns paths present in existing but absent from fresh — the
// "files no longer present on disk" branch of spec §4.B.
func diffPaths(existing, fresh []string) []string {
	freshSet := make(map[string]bool, len(fresh))
	for _, p := range fresh {
		freshSet[p] = true
	}
	var stale []string
	for _, p := range existing {
		if !freshSet[p] {
			stale = append(stale, p)
		}
	}
	return stale
}
