// Package codebase performs static analysis over a repository's working
// tree: line counts, a keyword-based complexity approximation, comment
// density, test presence and dependency hygiene. It never looks at history.
package codebase

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/gitpulse/gitpulse-go/internal/models"
	"github.com/sirupsen/logrus"
)

// ignoredDirs are never descended into.
var ignoredDirs = map[string]bool{
	".git": true, "node_modules": true, "vendor": true, "dist": true,
	"build": true, ".venv": true, "venv": true, ".tox": true,
	".pytest_cache": true, ".mypy_cache": true, ".ruff_cache": true,
	"__pycache__": true, ".idea": true, ".vscode": true, "coverage": true,
	"logs": true, "data": true, "repositories": true,
}

// languageExtensions maps supported file extensions to language names.
// Unsupported file types are skipped, not errored.
var languageExtensions = map[string]string{
	".py":     "Python",
	".go":     "Go",
	".js":     "JavaScript",
	".jsx":    "JavaScript",
	".ts":     "TypeScript",
	".tsx":    "TypeScript",
	".php":    "PHP",
	".groovy": "Groovy",
	".gradle": "Groovy",
	".sh":     "Bash",
	".bash":   "Bash",
}

// slashCommentLanguages use // and /* */ comments.
var slashCommentLanguages = map[string]bool{
	"Go": true, "JavaScript": true, "TypeScript": true, "Groovy": true, "PHP": true,
}

// hashCommentLanguages use # comments.
var hashCommentLanguages = map[string]bool{
	"Python": true, "Bash": true, "Docker": true,
}

var (
	complexityKeywords = regexp.MustCompile(`\b(if|elif|else if|for|while|case|switch|catch|except|select)\b`)
	logicalOperators   = regexp.MustCompile(`(&&|\|\||\?:)`)
)

// Analyzer scans working trees.
type Analyzer struct {
	logger *logrus.Logger
}

// NewAnalyzer creates a static analyzer.
func NewAnalyzer(logger *logrus.Logger) *Analyzer {
	return &Analyzer{logger: logger}
}

// Analyze walks the working tree at repoPath and computes the structural
// quality report. Unreadable files are skipped with a warning.
func (a *Analyzer) Analyze(repoPath, repository string) (*models.CodebaseReport, error) {
	report := &models.CodebaseReport{
		Repository:        repository,
		LanguageFiles:     make(map[string]int),
		LanguageCodeLines: make(map[string]int),
		GeneratedAt:       time.Now().UTC(),
	}

	err := filepath.WalkDir(repoPath, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			if a.logger != nil {
				a.logger.WithError(err).WithField("path", path).Warn("skipping unreadable entry")
			}
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			if path != repoPath && ignoredDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}

		language := detectLanguage(d.Name())
		if language == "" {
			return nil
		}

		content, err := os.ReadFile(path)
		if err != nil {
			if a.logger != nil {
				a.logger.WithError(err).WithField("path", path).Warn("skipping unreadable file")
			}
			return nil
		}

		counts := countLines(string(content), language)
		report.TotalFiles++
		report.TotalLines += counts.total
		report.CodeLines += counts.code
		report.CommentLines += counts.comments
		report.BlankLines += counts.blanks
		report.LanguageFiles[language]++
		report.LanguageCodeLines[language] += counts.code
		report.Complexity += countComplexity(string(content))

		rel, relErr := filepath.Rel(repoPath, path)
		if relErr != nil {
			rel = path
		}
		if isTestPath(rel) {
			report.TestFiles++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	report.ComplexityScore = complexityScore(report.Complexity, report.CodeLines)
	report.CommentScore = commentScore(report.CommentLines, report.CodeLines)
	report.TestScore = testScore(report.TestFiles, report.TotalFiles)
	report.DependencyScore, report.DependencyWarnings = dependencyRisk(repoPath)

	report.OverallScore = report.ComplexityScore*0.35 +
		report.CommentScore*0.2 +
		report.TestScore*0.2 +
		report.DependencyScore*0.25

	return report, nil
}

func detectLanguage(name string) string {
	if name == "Dockerfile" || strings.HasSuffix(name, ".Dockerfile") {
		return "Docker"
	}
	return languageExtensions[strings.ToLower(filepath.Ext(name))]
}

func isTestPath(path string) bool {
	lowered := strings.ToLower(filepath.ToSlash(path))
	if strings.Contains(lowered, "/test/") || strings.Contains(lowered, "/tests/") ||
		strings.HasPrefix(lowered, "test/") || strings.HasPrefix(lowered, "tests/") ||
		strings.Contains(lowered, "__tests__") {
		return true
	}
	for _, suffix := range []string{"_test.go", "_test.py", ".spec.js", ".spec.ts", ".test.js", ".test.ts"} {
		if strings.HasSuffix(lowered, suffix) {
			return true
		}
	}
	return strings.HasPrefix(filepath.Base(lowered), "test_")
}

type lineCounts struct {
	total, code, comments, blanks int
}

// countLines classifies each line as blank, comment or code. Block comments
// are only tracked for the slash-comment languages.
func countLines(content, language string) lineCounts {
	var counts lineCounts
	inBlock := false

	for _, raw := range strings.Split(content, "\n") {
		counts.total++
		line := strings.TrimSpace(raw)
		if line == "" {
			counts.blanks++
			continue
		}

		if slashCommentLanguages[language] {
			if inBlock {
				counts.comments++
				if strings.Contains(line, "*/") {
					inBlock = false
				}
				continue
			}
			if strings.HasPrefix(line, "//") || strings.HasPrefix(line, "#") {
				counts.comments++
				continue
			}
			if strings.Contains(line, "/*") {
				counts.comments++
				if !strings.Contains(line, "*/") {
					inBlock = true
				}
				continue
			}
		} else if hashCommentLanguages[language] {
			if strings.HasPrefix(line, "#") {
				counts.comments++
				continue
			}
		}

		counts.code++
	}

	return counts
}

func countComplexity(content string) int {
	complexity := 0
	for _, raw := range strings.Split(content, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}
		complexity += len(complexityKeywords.FindAllString(line, -1))
		complexity += len(logicalOperators.FindAllString(line, -1))
	}
	return complexity
}

func complexityScore(complexity, codeLines int) float64 {
	if codeLines < 1 {
		codeLines = 1
	}
	per100 := float64(complexity) / float64(codeLines) * 100
	switch {
	case per100 <= 10:
		return 90
	case per100 <= 20:
		return 70
	case per100 <= 30:
		return 50
	case per100 <= 40:
		return 30
	default:
		return 10
	}
}

func commentScore(commentLines, codeLines int) float64 {
	if codeLines < 1 {
		codeLines = 1
	}
	ratio := float64(commentLines) / float64(codeLines)
	switch {
	case ratio >= 0.15:
		return 90
	case ratio >= 0.1:
		return 75
	case ratio >= 0.05:
		return 60
	default:
		return 40
	}
}

func testScore(testFiles, totalFiles int) float64 {
	if totalFiles < 1 {
		totalFiles = 1
	}
	ratio := float64(testFiles) / float64(totalFiles)
	switch {
	case ratio >= 0.2:
		return 90
	case ratio >= 0.1:
		return 75
	case ratio >= 0.05:
		return 60
	default:
		return 40
	}
}
