package git

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/gitpulse/gitpulse-go/internal/models"
	"github.com/sirupsen/logrus"
)

// git log is emitted with ASCII record/unit separators so that commit
// messages containing pipes or newlines survive parsing. Each record is:
//
//	<RS>sha<US>parents<US>name<US>email<US>iso-date<US>message<US>\n<numstat lines>
const (
	recordSep = "\x1e"
	fieldSep  = "\x1f"

	logFormat = "--pretty=format:%x1e%H%x1f%P%x1f%an%x1f%ae%x1f%aI%x1f%B%x1f"
)

// logArgs builds the git log argument list for one branch under the given
// depth policy.
func logArgs(branch, depth string, recentDays, shallowCount int) []string {
	args := []string{"log", branch, "--numstat", logFormat}
	switch depth {
	case "recent":
		args = append(args, fmt.Sprintf("--since=%d days ago", recentDays))
	case "shallow":
		args = append(args, fmt.Sprintf("-n%d", shallowCount))
	}
	return args
}

// runLog executes git log for one branch and returns the raw output.
func (r *Repo) runLog(ctx context.Context, branch, depth string, recentDays, shallowCount int) (string, error) {
	cmd := exec.CommandContext(ctx, "git", logArgs(branch, depth, recentDays, shallowCount)...)
	cmd.Dir = r.Path
	output, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("git log %s: %w", branch, err)
	}
	return string(output), nil
}

// ParseLog parses raw git log output into commit records. Malformed records
// are skipped with a warning so one broken commit never aborts a walk.
// Binary numstat entries ("-") are ignored.
func ParseLog(output, repository, branch string, logger *logrus.Logger) []*models.Commit {
	var commits []*models.Commit

	for _, record := range strings.Split(output, recordSep) {
		if strings.TrimSpace(record) == "" {
			continue
		}

		parts := strings.SplitN(record, fieldSep, 7)
		if len(parts) < 7 {
			if logger != nil {
				logger.WithField("branch", branch).Warn("skipping malformed log record")
			}
			continue
		}

		committedAt, err := time.Parse(time.RFC3339, parts[4])
		if err != nil {
			if logger != nil {
				logger.WithFields(logrus.Fields{
					"sha":    parts[0],
					"branch": branch,
				}).WithError(err).Warn("skipping commit with unparseable date")
			}
			continue
		}

		commit := &models.Commit{
			SHA:         parts[0],
			Repository:  repository,
			ParentSHAs:  splitParents(parts[1]),
			AuthorName:  parts[2],
			AuthorEmail: strings.ToLower(strings.TrimSpace(parts[3])),
			Message:     strings.TrimSpace(parts[5]),
			CommittedAt: committedAt,
			Branches:    []string{branch},
		}

		for _, line := range strings.Split(parts[6], "\n") {
			change, ok := parseNumstatLine(line)
			if !ok {
				continue
			}
			commit.Files = append(commit.Files, change)
			commit.LinesAdded += change.Additions
			commit.LinesRemoved += change.Deletions
			commit.FilesChanged++
		}

		commits = append(commits, commit)
	}

	return commits
}

func splitParents(field string) []string {
	field = strings.TrimSpace(field)
	if field == "" {
		return nil
	}
	return strings.Fields(field)
}

// parseNumstatLine parses one "added\tremoved\tpath" line. Returns ok=false
// for blank lines, binary entries and anything else that is not numstat.
func parseNumstatLine(line string) (models.FileChange, bool) {
	fields := strings.Fields(line)
	if len(fields) < 3 {
		return models.FileChange{}, false
	}
	if fields[0] == "-" || fields[1] == "-" {
		return models.FileChange{}, false
	}

	additions, err := strconv.Atoi(fields[0])
	if err != nil {
		return models.FileChange{}, false
	}
	deletions, err := strconv.Atoi(fields[1])
	if err != nil {
		return models.FileChange{}, false
	}

	return models.FileChange{
		Path:      strings.Join(fields[2:], " "),
		Additions: additions,
		Deletions: deletions,
	}, true
}
