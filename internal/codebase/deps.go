package codebase

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// dependencyRisk inspects the repository's dependency manifests and returns a
// hygiene score with human-readable warnings. Each finding adds risk points;
// the score is 100 minus five per point, floored at zero.
func dependencyRisk(repoPath string) (float64, []string) {
	risk := 0
	var warnings []string

	add := func(points int, format string, args ...any) {
		risk += points
		warnings = append(warnings, fmt.Sprintf(format, args...))
	}

	if data, err := os.ReadFile(filepath.Join(repoPath, "package.json")); err == nil {
		var pkg struct {
			Dependencies    map[string]string `json:"dependencies"`
			DevDependencies map[string]string `json:"devDependencies"`
		}
		if json.Unmarshal(data, &pkg) == nil {
			total := len(pkg.Dependencies) + len(pkg.DevDependencies)
			if total > 50 {
				add(2, "package.json declares %d dependencies", total)
			}
			for name, version := range pkg.Dependencies {
				if version == "*" || version == "latest" {
					add(1, "unpinned npm dependency %s@%s", name, version)
				}
			}
		}
		if !fileExists(filepath.Join(repoPath, "package-lock.json")) &&
			!fileExists(filepath.Join(repoPath, "yarn.lock")) &&
			!fileExists(filepath.Join(repoPath, "pnpm-lock.yaml")) {
			add(3, "package.json without a lockfile")
		}
	}

	if data, err := os.ReadFile(filepath.Join(repoPath, "requirements.txt")); err == nil {
		unpinned := 0
		for _, line := range strings.Split(string(data), "\n") {
			line = strings.TrimSpace(line)
			if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "-") {
				continue
			}
			if !strings.ContainsAny(line, "=<>~") {
				unpinned++
			}
		}
		if unpinned > 0 {
			add(unpinned, "%d unpinned entries in requirements.txt", unpinned)
		}
	}

	if fileExists(filepath.Join(repoPath, "composer.json")) &&
		!fileExists(filepath.Join(repoPath, "composer.lock")) {
		add(3, "composer.json without composer.lock")
	}

	for _, name := range []string{"build.gradle", "build.gradle.kts"} {
		data, err := os.ReadFile(filepath.Join(repoPath, name))
		if err != nil {
			continue
		}
		if strings.Contains(string(data), "+'") || strings.Contains(string(data), `+"`) {
			add(2, "dynamic version range in %s", name)
		}
	}

	if data, err := os.ReadFile(filepath.Join(repoPath, "Dockerfile")); err == nil {
		for _, line := range strings.Split(string(data), "\n") {
			line = strings.TrimSpace(line)
			if !strings.HasPrefix(strings.ToUpper(line), "FROM ") {
				continue
			}
			fields := strings.Fields(line)
			if len(fields) < 2 {
				continue
			}
			image := fields[1]
			if !strings.Contains(image, ":") || strings.HasSuffix(image, ":latest") {
				add(2, "Dockerfile base image %s is not version-pinned", image)
			}
		}
	}

	score := 100 - float64(risk)*5
	if score < 0 {
		score = 0
	}
	return score, warnings
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
