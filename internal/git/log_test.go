package git

import (
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func record(fields ...string) string {
	return recordSep + strings.Join(fields, fieldSep)
}

func TestParseLogSingleCommit(t *testing.T) {
	output := record(
		"abc123", "", "Alice", "ALICE@x.com", "2024-03-01T10:00:00Z",
		"feat: add parser\n\nLonger body here.", "\n10\t2\tinternal/parser.go\n3\t0\tREADME.md\n",
	)

	commits := ParseLog(output, "demo", "main", logrus.New())
	require.Len(t, commits, 1)

	c := commits[0]
	assert.Equal(t, "abc123", c.SHA)
	assert.Empty(t, c.ParentSHAs)
	assert.Equal(t, "Alice", c.AuthorName)
	assert.Equal(t, "alice@x.com", c.AuthorEmail, "emails are lowercased")
	assert.Equal(t, "feat: add parser\n\nLonger body here.", c.Message)
	assert.Equal(t, []string{"main"}, c.Branches)
	assert.Equal(t, 13, c.LinesAdded)
	assert.Equal(t, 2, c.LinesRemoved)
	assert.Equal(t, 2, c.FilesChanged)
}

func TestParseLogMergeCommitHasParentsAndNoDiff(t *testing.T) {
	output := record(
		"merge1", "p1 p2", "Bob", "bob@x.com", "2024-03-02T09:00:00Z",
		"Merge pull request #12 from feature", "\n",
	)

	commits := ParseLog(output, "demo", "main", logrus.New())
	require.Len(t, commits, 1)

	c := commits[0]
	assert.Equal(t, []string{"p1", "p2"}, c.ParentSHAs)
	assert.True(t, c.IsMerge())
	assert.Zero(t, c.LinesAdded)
	assert.Zero(t, c.FilesChanged)
}

func TestParseLogSkipsBinaryAndMalformed(t *testing.T) {
	output := record(
		"aaa", "", "Alice", "a@x.com", "2024-03-01T10:00:00Z", "add image",
		"\n-\t-\tlogo.png\n5\t1\tmain.go\n",
	) + record(
		// missing fields, must be skipped without aborting the walk
		"broken",
	) + record(
		"bbb", "aaa", "Alice", "a@x.com", "not-a-date", "bad date",
		"\n1\t1\tmain.go\n",
	)

	commits := ParseLog(output, "demo", "main", logrus.New())
	require.Len(t, commits, 1)
	assert.Equal(t, "aaa", commits[0].SHA)
	assert.Equal(t, 1, commits[0].FilesChanged, "binary numstat entries are skipped")
	assert.Equal(t, 5, commits[0].LinesAdded)
}

func TestParseLogMessageWithPipesAndNewlines(t *testing.T) {
	message := "fix: handle a|b cases\n\n- first\n- second"
	output := record(
		"ccc", "aaa", "Carol", "carol@x.com", "2024-04-01T00:00:00Z", message, "\n2\t2\tpkg/x.go\n",
	)

	commits := ParseLog(output, "demo", "dev", logrus.New())
	require.Len(t, commits, 1)
	assert.Equal(t, message, commits[0].Message)
}

func TestParseNumstatLine(t *testing.T) {
	tests := []struct {
		name string
		line string
		ok   bool
		add  int
		del  int
	}{
		{"regular", "12\t3\tsrc/main.go", true, 12, 3},
		{"binary", "-\t-\timage.png", false, 0, 0},
		{"blank", "", false, 0, 0},
		{"header noise", "not a numstat line", false, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			change, ok := parseNumstatLine(tt.line)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.add, change.Additions)
				assert.Equal(t, tt.del, change.Deletions)
			}
		})
	}
}

func TestLogArgsDepthPolicies(t *testing.T) {
	full := logArgs("main", "full", 90, 500)
	assert.Equal(t, []string{"log", "main", "--numstat", logFormat}, full)

	recent := strings.Join(logArgs("main", "recent", 30, 500), " ")
	assert.Contains(t, recent, "--since=30 days ago")

	shallow := strings.Join(logArgs("main", "shallow", 30, 250), " ")
	assert.Contains(t, shallow, "-n250")
}
