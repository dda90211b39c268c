package quality

import (
	"strings"
	"unicode"

	"github.com/gitpulse/gitpulse-go/internal/inference"
	"github.com/gitpulse/gitpulse-go/internal/models"
)

var conventionalPrefixes = []string{
	"feat", "fix", "docs", "style", "refactor", "test", "chore", "perf", "ci", "build",
}

var badMessagePatterns = []string{"wip", "temp", "test123", "asdf", "xxx", "todo", "fixme"}

// Heuristics computes the six sub-scores for one commit without the LLM.
// The scores are deliberately simple signals, not a static analysis.
func Heuristics(c *models.Commit, diff string) inference.Scores {
	return inference.Scores{
		CommitMessage: messageScore(c.Message),
		Complexity:    complexityScore(c),
		Documentation: documentationScore(diff),
		TestCoverage:  testCoverageScore(diff, c.Message),
		Consistency:   consistencyScore(diff),
		BestPractices: bestPracticesScore(diff),
	}
}

func messageScore(message string) float64 {
	if message == "" {
		return 20
	}

	score := 50.0
	lowered := strings.ToLower(message)

	if len(message) < 10 {
		score -= 20
	} else if len(message) >= 20 {
		score += 10
	}

	if _, body, found := strings.Cut(message, "\n\n"); found && len(body) > 20 {
		score += 15
	}

	if unicode.IsUpper(rune(message[0])) {
		score += 5
	}

	for _, prefix := range conventionalPrefixes {
		if strings.HasPrefix(lowered, prefix+":") || strings.HasPrefix(lowered, prefix+"(") {
			score += 15
			break
		}
	}

	if strings.Contains(message, "#") ||
		strings.Contains(lowered, "fixes") ||
		strings.Contains(lowered, "closes") ||
		strings.Contains(lowered, "resolves") {
		score += 10
	}

	for _, bad := range badMessagePatterns {
		if strings.Contains(lowered, bad) {
			score -= 15
			break
		}
	}

	return clamp(score)
}

// complexityScore rewards small, focused commits.
func complexityScore(c *models.Commit) float64 {
	total := c.LinesAdded + c.LinesRemoved
	switch {
	case total == 0:
		return 70
	case total > 1000:
		return 20
	case total > 500:
		return 40
	case total > 200:
		return 60
	case total > 50:
		return 75
	default:
		return 85
	}
}

func documentationScore(diff string) float64 {
	if diff == "" {
		return 50
	}
	lowered := strings.ToLower(diff)
	score := 50.0

	for _, pattern := range []string{`"""`, "'''", "//", "/*", "#", "readme", ".md"} {
		if strings.Contains(lowered, pattern) {
			score += 8
		}
	}
	for _, pattern := range []string{".md", ".rst", ".txt", "doc", "readme"} {
		if strings.Contains(lowered, pattern) {
			score += 15
			break
		}
	}

	return clamp(score)
}

func testCoverageScore(diff, message string) float64 {
	if diff == "" {
		return 30
	}
	lowered := strings.ToLower(diff)
	score := 30.0

	for _, pattern := range []string{"test_", "_test.", ".test.", "spec.", "_spec.", "tests/", "__tests__"} {
		if strings.Contains(lowered, pattern) {
			score += 20
			break
		}
	}
	for _, pattern := range []string{"pytest", "unittest", "jest", "mocha", "junit", "assert", "expect("} {
		if strings.Contains(lowered, pattern) {
			score += 10
			break
		}
	}
	if strings.Contains(strings.ToLower(message), "test") {
		score += 10
	}

	return clamp(score)
}

// consistencyScore penalizes mixed indentation and very long added lines.
func consistencyScore(diff string) float64 {
	if diff == "" {
		return 60
	}

	score := 60.0
	hasTabs, hasSpaces := false, false
	longLines := 0

	for _, line := range strings.Split(diff, "\n") {
		if !strings.HasPrefix(line, "+") {
			continue
		}
		if strings.Contains(line, "\t") {
			hasTabs = true
		}
		if strings.Contains(line, "    ") {
			hasSpaces = true
		}
		if len(line) > 120 {
			longLines++
		}
	}

	if hasTabs && hasSpaces {
		score -= 15
	}
	if longLines > 5 {
		score -= 10
	}

	return clamp(score)
}

func bestPracticesScore(diff string) float64 {
	if diff == "" {
		return 50
	}
	lowered := strings.ToLower(diff)
	score := 60.0

	// Added lines that smell: secrets, debug output, debt markers, eval.
	badPatterns := []string{
		"password", "secret", "api_key", "apikey", "token",
		"console.log", "print(", "debugger",
		"todo", "fixme", "hack", "xxx",
		"eval(", "exec(",
	}
	for _, pattern := range badPatterns {
		if strings.Contains(lowered, "+"+pattern) || strings.Contains(lowered, "+ "+pattern) {
			score -= 8
		}
	}

	goodPatterns := []string{
		"try:", "catch", "except",
		"logger", "logging",
		"typing", "-> ", ": str", ": int",
		"async ", "await ",
	}
	for _, pattern := range goodPatterns {
		if strings.Contains(lowered, pattern) {
			score += 5
		}
	}

	return clamp(score)
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
