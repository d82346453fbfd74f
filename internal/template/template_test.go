package template

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRenderFile(t *testing.T) {
	got := Render("pytest {{file}}", Vars{File: "tests/test_x.py"})
	assert.Equal(t, "pytest tests/test_x.py", got)
}

func TestRenderOriginalFile(t *testing.T) {
	got := Render("jest {{file}} --related {{originalFile}}", Vars{
		File:         "src/foo.test.ts",
		OriginalFile: "src/foo.ts",
	})
	assert.Equal(t, "jest src/foo.test.ts --related src/foo.ts", got)
}

func TestRenderTestFilePaths(t *testing.T) {
	got := Render("pytest --cov {{testFilePaths}}", Vars{
		TestFilePaths: []string{"tests/a.py", "tests/b.py"},
	})
	assert.Equal(t, "pytest --cov tests/a.py tests/b.py", got)
}

func TestRenderUnknownPlaceholderIsEmpty(t *testing.T) {
	got := Render("run {{file}} {{bogus}}", Vars{File: "a.py"})
	assert.Equal(t, "run a.py ", got)
}

func TestRenderWhitespaceInsidePlaceholder(t *testing.T) {
	got := Render("lint {{ file }}", Vars{File: "a.py"})
	assert.Equal(t, "lint a.py", got)
}

func TestRenderNoPlaceholders(t *testing.T) {
	got := Render("make test", Vars{File: "ignored"})
	assert.Equal(t, "make test", got)
}

func TestRenderRepeatedPlaceholder(t *testing.T) {
	got := Render("cp {{file}} {{file}}.bak", Vars{File: "x"})
	assert.Equal(t, "cp x x.bak", got)
}
