// Package modgraph implements module path resolution, the import-stack
// cyclic-import check, and lexical scope management of spec §4.4. Grounded
// on internal/module/module.go's findModule/LoadModule shape, generalized
// from its flat search-path scan to the spec's directory-relative resolver.
package modgraph

import (
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	"tsnc/internal/source"
)

// DefaultExtension is appended to an import path lacking one.
const DefaultExtension = ".tsn"

// Resolve normalizes importPath against fromDir (the importing module's
// directory), appending DefaultExtension if the path has none, and returns
// the canonical absolute path plus its derived module id (spec §4.4).
func Resolve(fromDir, importPath string) (string, source.ModuleID, error) {
	if importPath == "" {
		return "", 0, errors.New("modgraph: empty import path")
	}
	joined := importPath
	if !filepath.IsAbs(importPath) {
		joined = filepath.Join(fromDir, importPath)
	}
	clean := filepath.Clean(joined)
	if filepath.Ext(clean) == "" {
		clean += DefaultExtension
	}
	abs, err := filepath.Abs(clean)
	if err != nil {
		return "", 0, errors.Wrapf(err, "modgraph: resolving %q", importPath)
	}
	return abs, source.HashPath(abs), nil
}

// normalizeDisplay trims a shared root for error messages; kept separate
// from Resolve's canonicalization so diagnostics can stay relative when the
// absolute path would be noisy.
func normalizeDisplay(path, root string) string {
	if rel, err := filepath.Rel(root, path); err == nil && !strings.HasPrefix(rel, "..") {
		return rel
	}
	return path
}
