package git

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// Sentinel errors for the history extractor. ErrRepositoryUnreadable is
// fatal for a run; ErrHistoryTruncated is a warning marker, the truncated
// commit set is still usable.
var (
	ErrRepositoryUnreadable = errors.New("repository unreadable")
	ErrHistoryTruncated     = errors.New("history truncated at commit cap")
)

// Repo is a handle to one local git working copy. All access shells out to
// the git binary; the repository is never written to.
type Repo struct {
	Name string
	Path string
}

// Open validates that path is the root of a readable git repository.
func Open(ctx context.Context, path string) (*Repo, error) {
	cmd := exec.CommandContext(ctx, "git", "rev-parse", "--git-dir")
	cmd.Dir = path
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrRepositoryUnreadable, path, err)
	}
	return &Repo{Name: filepath.Base(path), Path: path}, nil
}

// DiscoverRepositories returns every direct subdirectory of dir that
// contains a .git directory.
func DiscoverRepositories(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read repositories dir: %w", err)
	}

	var repos []string
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		gitDir := filepath.Join(dir, entry.Name(), ".git")
		if _, err := os.Stat(gitDir); err == nil {
			repos = append(repos, filepath.Join(dir, entry.Name()))
		}
	}
	return repos, nil
}

// Branches lists local branch names (refs/heads only).
func (r *Repo) Branches(ctx context.Context) ([]string, error) {
	cmd := exec.CommandContext(ctx, "git", "for-each-ref", "refs/heads", "--format=%(refname:short)")
	cmd.Dir = r.Path
	output, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("list branches: %w", err)
	}

	var branches []string
	for _, line := range strings.Split(string(output), "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			branches = append(branches, line)
		}
	}
	return branches, nil
}

// DefaultBranch returns the branch HEAD points at, or "main" for a detached
// or unreadable HEAD.
func (r *Repo) DefaultBranch(ctx context.Context) string {
	cmd := exec.CommandContext(ctx, "git", "symbolic-ref", "--short", "HEAD")
	cmd.Dir = r.Path
	output, err := cmd.Output()
	if err != nil {
		return "main"
	}
	return strings.TrimSpace(string(output))
}

// OriginURL returns the origin remote URL, empty when none is configured.
func (r *Repo) OriginURL(ctx context.Context) string {
	cmd := exec.CommandContext(ctx, "git", "remote", "get-url", "origin")
	cmd.Dir = r.Path
	output, err := cmd.Output()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(output))
}

// Diff returns the patch text of one commit against its first parent,
// truncated to maxBytes. Merge commits with identical first-parent trees
// yield an empty patch.
func (r *Repo) Diff(ctx context.Context, sha string, maxBytes int) (string, error) {
	cmd := exec.CommandContext(ctx, "git", "show", "--format=", "--patch", "--first-parent", sha)
	cmd.Dir = r.Path
	output, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("git show %s: %w", sha, err)
	}

	diff := string(output)
	if maxBytes > 0 && len(diff) > maxBytes {
		diff = diff[:maxBytes]
	}
	return diff, nil
}
