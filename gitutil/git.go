// Package gitutil drives the git command line for clone, commit and push.
package gitutil

import (
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strings"

	logging "github.com/ipfs/go-log/v2"
)

var log = logging.Logger("git")

// Runner executes git with args inside dir and returns combined output.
type Runner interface {
	Run(ctx context.Context, dir string, args ...string) ([]byte, error)
}

// ExecRunner runs the git binary found in PATH.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, dir string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	// Never block on a credential prompt.
	cmd.Env = append(cmd.Environ(), "GIT_TERMINAL_PROMPT=0")
	return cmd.CombinedOutput()
}

// CommandError is a failed git invocation. Credentials embedded in URLs
// are redacted.
type CommandError struct {
	Args   []string
	Output string
	Err    error
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("git %s: %v: %s", strings.Join(e.Args, " "), e.Err, strings.TrimSpace(e.Output))
}

func (e *CommandError) Unwrap() error { return e.Err }

var credentialsRe = regexp.MustCompile(`://[^/@\s]+@`)

func redact(s string) string {
	return credentialsRe.ReplaceAllString(s, "://***@")
}

// Author identifies the committer.
type Author struct {
	Name  string
	Email string
}

// PushResult tells a real push apart from a no-op.
type PushResult int

const (
	Pushed PushResult = iota
	UpToDate
)

func (r PushResult) String() string {
	if r == UpToDate {
		return "up-to-date"
	}
	return "pushed"
}

// Repo is a working copy.
type Repo struct {
	Dir    string
	Runner Runner
}

func (r *Repo) run(ctx context.Context, args ...string) (string, error) {
	runner := r.Runner
	if runner == nil {
		runner = ExecRunner{}
	}
	out, err := runner.Run(ctx, r.Dir, args...)
	if err != nil {
		redacted := make([]string, len(args))
		for i, a := range args {
			redacted[i] = redact(a)
		}
		return string(out), &CommandError{Args: redacted, Output: redact(string(out)), Err: err}
	}
	return string(out), nil
}

// Clone makes a shallow clone of url into dir, which must exist and be
// empty. An empty branch clones the default branch.
func Clone(ctx context.Context, runner Runner, url, dir, branch string) (*Repo, error) {
	repo := &Repo{Dir: dir, Runner: runner}
	args := []string{"clone", "--depth", "1"}
	if branch != "" {
		args = append(args, "--branch", branch)
	}
	args = append(args, url, ".")
	if _, err := repo.run(ctx, args...); err != nil {
		return nil, err
	}
	return repo, nil
}

// AddAllAndHasChanges stages everything and reports whether the index
// differs from HEAD.
func (r *Repo) AddAllAndHasChanges(ctx context.Context) (bool, error) {
	if _, err := r.run(ctx, "add", "."); err != nil {
		return false, err
	}
	out, err := r.run(ctx, "status", "--porcelain")
	if err != nil {
		return false, err
	}
	return strings.TrimSpace(out) != "", nil
}

// Commit records the staged changes.
func (r *Repo) Commit(ctx context.Context, author Author, message string) error {
	_, err := r.run(ctx,
		"-c", "user.name="+author.Name,
		"-c", "user.email="+author.Email,
		"commit", "-m", message,
	)
	return err
}

// Push pushes the current branch to its upstream.
func (r *Repo) Push(ctx context.Context) (PushResult, error) {
	return r.push(ctx, "push")
}

// PushToBranch pushes HEAD to branch of remote, a remote name or URL.
func (r *Repo) PushToBranch(ctx context.Context, remote, branch string) (PushResult, error) {
	return r.push(ctx, "push", remote, "HEAD:"+branch)
}

func (r *Repo) push(ctx context.Context, args ...string) (PushResult, error) {
	out, err := r.run(ctx, args...)
	if err != nil {
		return Pushed, err
	}
	if strings.Contains(out, "Everything up-to-date") {
		return UpToDate, nil
	}
	return Pushed, nil
}

// DeleteRemoteBranch removes branch from remote. Failure is logged and
// reported as false: the branch usually does not exist yet.
func (r *Repo) DeleteRemoteBranch(ctx context.Context, remote, branch string) bool {
	if _, err := r.run(ctx, "push", "-d", remote, branch); err != nil {
		log.Warnf("deleting remote branch %s: %v", branch, err)
		return false
	}
	return true
}
