package tools

import (
	"context"
	"os/exec"
	"strings"

	"github.com/Fenix46/VibeCLI/errors"
)

func runGit(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	output, err := cmd.CombinedOutput()
	if err != nil {
		return "", errors.Wrapf(err, "git %s failed. Output:\n%s", args[0], strings.TrimSpace(string(output)))
	}
	return string(output), nil
}

// GitStatusTool shows the working tree status.
type GitStatusTool struct{ dir string }

func (t *GitStatusTool) Name() string { return "git_status" }
func (t *GitStatusTool) Description() string {
	return "Shows the git status of the project (short format)."
}
func (t *GitStatusTool) Parameters() *Schema { return Object(nil) }

func (t *GitStatusTool) Execute(ctx context.Context, args map[string]interface{}) (string, error) {
	out, err := runGit(ctx, t.dir, "status", "--short", "--branch")
	if err != nil {
		return "", err
	}
	return out, nil
}

// GitDiffTool shows unstaged or staged changes. The path filter goes through
// the same guards as the file tools.
type GitDiffTool struct{ root *fsRoot }

func (t *GitDiffTool) Name() string { return "git_diff" }
func (t *GitDiffTool) Description() string {
	return "Shows the git diff of the working tree or of the index."
}
func (t *GitDiffTool) Parameters() *Schema {
	return Object(map[string]*Schema{
		"staged": Boolean("Diff the index instead of the working tree."),
		"path":   String("Limit the diff to this path."),
	})
}

func (t *GitDiffTool) Execute(ctx context.Context, args map[string]interface{}) (string, error) {
	gitArgs := []string{"diff"}
	if boolArg(args, "staged") {
		gitArgs = append(gitArgs, "--cached")
	}
	if p := stringArg(args, "path"); p != "" {
		_, rel, err := t.root.resolve(p)
		if err != nil {
			return "", err
		}
		// Literal pathspec so git magic such as ":/" cannot widen the filter.
		gitArgs = append(gitArgs, "--", ":(literal)"+rel)
	}
	out, err := runGit(ctx, t.root.dir, gitArgs...)
	if err != nil {
		return "", err
	}
	if out == "" {
		return "No changes.", nil
	}
	return out, nil
}

// GitCommitTool records staged changes, optionally staging everything first.
type GitCommitTool struct{ dir string }

func (t *GitCommitTool) Name() string        { return "git_commit" }
func (t *GitCommitTool) Description() string { return "Creates a git commit with the given message." }
func (t *GitCommitTool) Parameters() *Schema {
	return Object(map[string]*Schema{
		"message": String("Commit message."),
		"add_all": Boolean("Stage all changes before committing."),
	}, "message")
}
func (t *GitCommitTool) IsDestructive(map[string]interface{}) bool { return true }

func (t *GitCommitTool) Execute(ctx context.Context, args map[string]interface{}) (string, error) {
	message := strings.TrimSpace(stringArg(args, "message"))
	if message == "" {
		return "", errors.New("commit message cannot be empty")
	}
	if boolArg(args, "add_all") {
		if _, err := runGit(ctx, t.dir, "add", "-A"); err != nil {
			return "", err
		}
	}
	return runGit(ctx, t.dir, "commit", "-m", message)
}
