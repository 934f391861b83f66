// ABOUTME: Resolves the repository and branch of the working directory via the git CLI
// ABOUTME: Remote URLs are normalized to the owner/repo form providers expect

package worker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// ErrRepoUnknown is returned when no repository was given and none could be
// derived from the working directory.
var ErrRepoUnknown = errors.New("could not determine repository; pass --repo")

// RepoResolver derives defaults for a new session from local state.
type RepoResolver interface {
	Repo(ctx context.Context) (string, error)
	Branch(ctx context.Context) (string, error)
}

// GitResolver reads origin and HEAD from the repository at Dir.
// An empty Dir means the process working directory.
type GitResolver struct {
	Dir string
}

// Repo returns the origin remote as owner/repo.
func (g GitResolver) Repo(ctx context.Context) (string, error) {
	out, err := g.run(ctx, "config", "--get", "remote.origin.url")
	if err != nil {
		return "", err
	}
	return NormalizeRepo(out)
}

// Branch returns the checked-out branch name.
func (g GitResolver) Branch(ctx context.Context) (string, error) {
	out, err := g.run(ctx, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return "", err
	}
	if out == "" || out == "HEAD" {
		return "", errors.New("detached HEAD")
	}
	return out, nil
}

func (g GitResolver) run(ctx context.Context, args ...string) (string, error) {
	if g.Dir != "" {
		args = append([]string{"-C", g.Dir}, args...)
	}
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("git %s: %w (stderr: %s)",
			strings.Join(args, " "), err, strings.TrimSpace(stderr.String()))
	}
	return strings.TrimSpace(stdout.String()), nil
}

// NormalizeRepo converts a git remote URL into owner/repo. It accepts
// scp-style (git@host:owner/repo.git), URL-style (https://host/owner/repo),
// and bare owner/repo forms.
func NormalizeRepo(remote string) (string, error) {
	r := strings.TrimSpace(remote)
	if r == "" {
		return "", ErrRepoUnknown
	}

	switch {
	case strings.Contains(r, "://"):
		_, rest, _ := strings.Cut(r, "://")
		_, path, ok := strings.Cut(rest, "/")
		if !ok {
			return "", fmt.Errorf("remote %q has no path", remote)
		}
		r = path
	case strings.Contains(r, "@") && strings.Contains(r, ":"):
		_, path, _ := strings.Cut(r, ":")
		r = path
	}

	r = strings.TrimSuffix(strings.Trim(r, "/"), ".git")
	parts := strings.Split(r, "/")
	if len(parts) < 2 || parts[len(parts)-2] == "" || parts[len(parts)-1] == "" {
		return "", fmt.Errorf("remote %q is not an owner/repo path", remote)
	}
	return parts[len(parts)-2] + "/" + parts[len(parts)-1], nil
}
