package executor

import (
	"path/filepath"
	"strings"
)

// baseDir is appDir joined onto the workspace root when set, else the root
// itself. Every file action resolves against it.
func (e *Executor) baseDir(appDir string) string {
	if appDir == "" {
		return e.root
	}
	return filepath.Join(e.root, appDir)
}

// normalizeRel strips a redundant leading appDir prefix from a relative
// path. Callers sometimes include the app directory even though paths are
// already resolved beneath it.
func normalizeRel(path, appDir string) string {
	if appDir == "" || path == "" {
		return path
	}
	prefix := strings.TrimSuffix(filepath.ToSlash(appDir), "/") + "/"
	cleaned := filepath.ToSlash(path)
	if strings.HasPrefix(cleaned, prefix) {
		return cleaned[len(prefix):]
	}
	return path
}

// resolve turns a payload path into the absolute on-disk path and the
// base-directory-relative path used for script templating.
func (e *Executor) resolve(path, appDir string) (abs, rel string) {
	rel = normalizeRel(path, appDir)
	return filepath.Join(e.baseDir(appDir), rel), rel
}

// relativize makes an absolute test file path relative to the base
// directory; relative paths only get the appDir prefix stripped.
func (e *Executor) relativize(path, appDir string) string {
	if !filepath.IsAbs(path) {
		return normalizeRel(path, appDir)
	}
	rel, err := filepath.Rel(e.baseDir(appDir), path)
	if err != nil {
		return path
	}
	return rel
}
