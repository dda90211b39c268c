package codebase

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func testAnalyzer() *Analyzer {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return NewAnalyzer(logger)
}

func TestCountLinesGo(t *testing.T) {
	src := `// Package demo does things.
package demo

/*
block comment
*/
func Demo() int {
	return 1 // trailing comments still count the line as code
}
`
	counts := countLines(src, "Go")
	assert.Equal(t, 4, counts.code)
	assert.Equal(t, 4, counts.comments)
	assert.Equal(t, 2, counts.blanks, "one blank line plus the trailing newline")
}

func TestCountLinesPython(t *testing.T) {
	src := `# module docstring stand-in
import os

def f():
    # inner comment
    return os.sep
`
	counts := countLines(src, "Python")
	assert.Equal(t, 3, counts.code)
	assert.Equal(t, 2, counts.comments)
}

func TestCountComplexity(t *testing.T) {
	src := `if a && b {
	for i := range xs {
		switch i {
		case 1:
		}
	}
} else if c || d {
}
`
	// if, &&, for, switch, case, else if's "if", ||
	assert.Equal(t, 7, countComplexity(src))
}

func TestDetectLanguage(t *testing.T) {
	assert.Equal(t, "Go", detectLanguage("main.go"))
	assert.Equal(t, "TypeScript", detectLanguage("App.TSX"))
	assert.Equal(t, "Docker", detectLanguage("Dockerfile"))
	assert.Equal(t, "", detectLanguage("README.md"), "unsupported types are skipped")
}

func TestIsTestPath(t *testing.T) {
	assert.True(t, isTestPath("internal/git/log_test.go"))
	assert.True(t, isTestPath("tests/unit/test_scoring.py"))
	assert.True(t, isTestPath("src/__tests__/app.test.js"))
	assert.False(t, isTestPath("internal/git/log.go"))
	assert.False(t, isTestPath("contest/rules.go"), "substring 'test' alone does not qualify")
}

func TestBandScores(t *testing.T) {
	assert.Equal(t, 90.0, complexityScore(5, 100))
	assert.Equal(t, 70.0, complexityScore(15, 100))
	assert.Equal(t, 10.0, complexityScore(80, 100))
	assert.Equal(t, 90.0, complexityScore(0, 0), "empty tree is not penalized")

	assert.Equal(t, 90.0, commentScore(15, 100))
	assert.Equal(t, 40.0, commentScore(1, 100))

	assert.Equal(t, 90.0, testScore(2, 10))
	assert.Equal(t, 40.0, testScore(0, 10))
}

func TestAnalyzeWalksTreeAndSkipsIgnoredDirs(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "main.go", "package main\n\nfunc main() {}\n")
	writeFile(t, root, "util/util_test.go", "package util\n")
	writeFile(t, root, "node_modules/dep/index.js", "var x = 1\n")
	writeFile(t, root, ".git/config", "[core]\n")
	writeFile(t, root, "README.md", "# readme\n")

	report, err := testAnalyzer().Analyze(root, "demo")
	require.NoError(t, err)

	assert.Equal(t, "demo", report.Repository)
	assert.Equal(t, 2, report.TotalFiles, "ignored dirs and unsupported types are excluded")
	assert.Equal(t, 1, report.TestFiles)
	assert.Equal(t, 2, report.LanguageFiles["Go"])
	assert.Zero(t, report.LanguageFiles["JavaScript"])
	assert.Greater(t, report.OverallScore, 0.0)
	assert.LessOrEqual(t, report.OverallScore, 100.0)
}

func TestAnalyzeOverallWeighting(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.go", "package a\n\nfunc A() int { return 1 }\n")

	report, err := testAnalyzer().Analyze(root, "demo")
	require.NoError(t, err)

	want := report.ComplexityScore*0.35 + report.CommentScore*0.2 +
		report.TestScore*0.2 + report.DependencyScore*0.25
	assert.InDelta(t, want, report.OverallScore, 1e-9)
}

func TestDependencyRiskLockfiles(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "package.json", `{"dependencies":{"left-pad":"*"}}`)

	score, warnings := dependencyRisk(root)
	// unpinned dep (1) + missing lockfile (3) = 4 points
	assert.Equal(t, 80.0, score)
	assert.Len(t, warnings, 2)

	writeFile(t, root, "package-lock.json", "{}")
	score, warnings = dependencyRisk(root)
	assert.Equal(t, 95.0, score)
	assert.Len(t, warnings, 1)
}

func TestDependencyRiskRequirements(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "requirements.txt", "requests==2.31.0\nflask\n# comment\n-r dev.txt\n")

	score, warnings := dependencyRisk(root)
	assert.Equal(t, 95.0, score)
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "1 unpinned")
}

func TestDependencyRiskDockerfile(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "Dockerfile", "FROM python:latest\nRUN pip install .\nFROM alpine:3.19\n")

	score, warnings := dependencyRisk(root)
	assert.Equal(t, 90.0, score)
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "python:latest")
}

func TestDependencyRiskFloorsAtZero(t *testing.T) {
	root := t.TempDir()
	lines := ""
	for i := 0; i < 30; i++ {
		lines += "pkg" + string(rune('a'+i)) + "\n"
	}
	writeFile(t, root, "requirements.txt", lines)

	score, _ := dependencyRisk(root)
	assert.Equal(t, 0.0, score)
}

func TestDependencyRiskCleanTree(t *testing.T) {
	score, warnings := dependencyRisk(t.TempDir())
	assert.Equal(t, 100.0, score)
	assert.Empty(t, warnings)
}
