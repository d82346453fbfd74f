// Package template renders script templates by substituting named
// placeholders with concrete path values.
package template

import (
	"regexp"
	"strings"
)

// Vars holds the values available to a script template. Paths are always
// relative to the execution's base directory.
type Vars struct {
	File          string
	OriginalFile  string
	TestFilePaths []string
}

var placeholderRe = regexp.MustCompile(`\{\{\s*(\w+)\s*\}\}`)

// Render substitutes every recognized placeholder in tmpl with its value.
// Recognized placeholders are file, originalFile and testFilePaths
// (space-joined). Unknown placeholders render as empty string.
func Render(tmpl string, vars Vars) string {
	return placeholderRe.ReplaceAllStringFunc(tmpl, func(match string) string {
		name := placeholderRe.FindStringSubmatch(match)[1]
		switch name {
		case "file":
			return vars.File
		case "originalFile":
			return vars.OriginalFile
		case "testFilePaths":
			return strings.Join(vars.TestFilePaths, " ")
		}
		return ""
	})
}
