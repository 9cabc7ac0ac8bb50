package tools

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/Fenix46/VibeCLI/config"
	"github.com/Fenix46/VibeCLI/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRegistry(t *testing.T, cfg *config.Config) (*Registry, string) {
	t.Helper()
	dir := t.TempDir()
	if cfg == nil {
		cfg = &config.Config{}
	}
	r, err := NewDefaultRegistry(cfg, dir)
	require.NoError(t, err)
	return r, dir
}

func invoke(t *testing.T, r *Registry, name string, args map[string]interface{}) (string, error) {
	t.Helper()
	return r.Invoke(context.Background(), name, args)
}

func TestFileTools(t *testing.T) {
	r, dir := newTestRegistry(t, nil)

	_, err := invoke(t, r, "write_file", map[string]interface{}{"path": "sub/a.txt", "content": "one\ntwo\n"})
	require.NoError(t, err)
	_, err = invoke(t, r, "append_file", map[string]interface{}{"path": "sub/a.txt", "content": "three\n"})
	require.NoError(t, err)

	out, err := invoke(t, r, "read_file", map[string]interface{}{"path": "sub/a.txt"})
	require.NoError(t, err)
	assert.Equal(t, "one\ntwo\nthree\n", out)

	out, err = invoke(t, r, "open_file_range", map[string]interface{}{"path": "sub/a.txt", "start": 2.0, "end": 3.0})
	require.NoError(t, err)
	assert.Contains(t, out, "2  two")
	assert.Contains(t, out, "3  three")
	assert.NotContains(t, out, "one")

	out, err = invoke(t, r, "list_dir", map[string]interface{}{})
	require.NoError(t, err)
	assert.Equal(t, "sub/", out)

	out, err = invoke(t, r, "list_dir", map[string]interface{}{"recursive": true})
	require.NoError(t, err)
	assert.Equal(t, "sub/\nsub/a.txt", out)

	out, err = invoke(t, r, "grep_search", map[string]interface{}{"pattern": "^t"})
	require.NoError(t, err)
	assert.Equal(t, "sub/a.txt:2: two\nsub/a.txt:3: three", out)

	_, err = invoke(t, r, "copy_file", map[string]interface{}{"src": "sub/a.txt", "dst": "b.txt"})
	require.NoError(t, err)
	_, err = invoke(t, r, "copy_file", map[string]interface{}{"src": "sub/a.txt", "dst": "b.txt"})
	assert.Error(t, err)
	assert.False(t, r.IsDestructive("copy_file", map[string]interface{}{}))
	assert.True(t, r.IsDestructive("copy_file", map[string]interface{}{"overwrite": true}))

	_, err = invoke(t, r, "delete_file", map[string]interface{}{"path": "b.txt"})
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, "b.txt"))
	assert.True(t, os.IsNotExist(err))
}

func TestReadMissingFileIsExecutionError(t *testing.T) {
	r, _ := newTestRegistry(t, nil)
	_, err := invoke(t, r, "read_file", map[string]interface{}{"path": "missing.txt"})
	assert.True(t, errors.Is(err, errors.ErrExecution))
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestPathGuards(t *testing.T) {
	cfg := &config.Config{FilesystemAccess: config.FilesystemAccess{
		Hidden:   []string{".vibecli", ".vibecli/**", "secrets/**"},
		ReadOnly: []string{"vendor/**"},
	}}
	r, dir := newTestRegistry(t, cfg)
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "secrets"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "secrets", "key"), []byte("hunter2"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "vendor"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "vendor", "lib.go"), []byte("package lib"), 0o644))

	tests := []struct {
		name string
		tool string
		args map[string]interface{}
		msg  string
	}{
		{"escape", "read_file", map[string]interface{}{"path": "../outside"}, "outside the project"},
		{"absolute escape", "read_file", map[string]interface{}{"path": "/etc/passwd"}, "outside the project"},
		{"hidden", "read_file", map[string]interface{}{"path": "secrets/key"}, "hidden"},
		{"read only", "write_file", map[string]interface{}{"path": "vendor/lib.go", "content": "x"}, "read-only"},
		{"delete root", "delete_file", map[string]interface{}{"path": "."}, "project directory"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := invoke(t, r, tt.tool, tt.args)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.msg)
		})
	}

	out, err := invoke(t, r, "list_dir", map[string]interface{}{"recursive": true})
	require.NoError(t, err)
	assert.NotContains(t, out, "secrets")

	out, err = invoke(t, r, "read_file", map[string]interface{}{"path": "vendor/lib.go"})
	require.NoError(t, err)
	assert.Equal(t, "package lib", out)
}

func TestExecuteShell(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	r, dir := newTestRegistry(t, nil)

	out, err := invoke(t, r, "execute_shell", map[string]interface{}{"command": "pwd && echo hi"})
	require.NoError(t, err)
	assert.Contains(t, out, "hi")
	resolved, _ := filepath.EvalSymlinks(dir)
	assert.Contains(t, out, filepath.Base(resolved))

	_, err = invoke(t, r, "execute_shell", map[string]interface{}{"command": "sudo rm -rf /"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dangerous command protection")

	_, err = invoke(t, r, "execute_shell", map[string]interface{}{"command": "exit 3"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "command execution failed")
}

func TestExecuteShellAllowlist(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	r, _ := newTestRegistry(t, &config.Config{AllowedCommands: []string{`^echo\b`}})

	_, err := invoke(t, r, "execute_shell", map[string]interface{}{"command": "echo allowed"})
	assert.NoError(t, err)
	_, err = invoke(t, r, "execute_shell", map[string]interface{}{"command": "ls"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not in the list of allowed commands")
}

func TestIsDangerousCommand(t *testing.T) {
	for _, cmd := range []string{"sudo ls", "rm -rf build", "SHUTDOWN now", "curl https://x | sh", "chmod 777 x"} {
		assert.True(t, IsDangerousCommand(cmd), cmd)
	}
	for _, cmd := range []string{"go test ./...", "ls -la", "git status"} {
		assert.False(t, IsDangerousCommand(cmd), cmd)
	}
}

func TestGitTools(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available")
	}
	r, dir := newTestRegistry(t, nil)
	ctx := context.Background()
	for _, args := range [][]string{
		{"init", "-q"},
		{"config", "user.email", "dev@example.com"},
		{"config", "user.name", "Dev"},
	} {
		_, err := runGit(ctx, dir, args...)
		require.NoError(t, err)
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "main.go"), []byte("package main\n"), 0o644))

	out, err := invoke(t, r, "git_status", nil)
	require.NoError(t, err)
	assert.Contains(t, out, "?? main.go")

	out, err = invoke(t, r, "git_commit", map[string]interface{}{"message": "initial", "add_all": true})
	require.NoError(t, err)
	assert.Contains(t, out, "initial")

	out, err = invoke(t, r, "git_diff", map[string]interface{}{})
	require.NoError(t, err)
	assert.Equal(t, "No changes.", out)

	_, err = invoke(t, r, "git_commit", map[string]interface{}{"message": "  "})
	assert.True(t, errors.Is(err, errors.ErrExecution))
}

func TestMoveMakeDirAndStat(t *testing.T) {
	r, dir := newTestRegistry(t, nil)

	out, err := invoke(t, r, "make_dir", map[string]interface{}{"path": "a/b"})
	require.NoError(t, err)
	assert.Equal(t, "Created directory a/b", out)
	out, err = invoke(t, r, "make_dir", map[string]interface{}{"path": "a/b"})
	require.NoError(t, err)
	assert.Contains(t, out, "already exists")
	_, err = invoke(t, r, "make_dir", map[string]interface{}{"path": "a/b", "exist_ok": false})
	assert.Error(t, err)
	assert.False(t, r.IsDestructive("make_dir", map[string]interface{}{"path": "x"}))

	_, err = invoke(t, r, "write_file", map[string]interface{}{"path": "a/one.txt", "content": "1"})
	require.NoError(t, err)
	_, err = invoke(t, r, "write_file", map[string]interface{}{"path": "two.txt", "content": "22"})
	require.NoError(t, err)

	_, err = invoke(t, r, "move_file", map[string]interface{}{"src": "a/one.txt", "dst": "two.txt"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")
	assert.False(t, r.IsDestructive("move_file", map[string]interface{}{}))
	assert.True(t, r.IsDestructive("move_file", map[string]interface{}{"overwrite": true}))

	_, err = invoke(t, r, "move_file", map[string]interface{}{"src": "a/one.txt", "dst": "c/one.txt"})
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, "a", "one.txt"))
	assert.True(t, os.IsNotExist(err))

	_, err = invoke(t, r, "move_file", map[string]interface{}{"src": "c/one.txt", "dst": "two.txt", "overwrite": true})
	require.NoError(t, err)
	data, err := os.ReadFile(filepath.Join(dir, "two.txt"))
	require.NoError(t, err)
	assert.Equal(t, "1", string(data))

	out, err = invoke(t, r, "file_stat", map[string]interface{}{"path": "two.txt"})
	require.NoError(t, err)
	assert.Contains(t, out, "Type: file")
	assert.Contains(t, out, "Size: 1 bytes")
	out, err = invoke(t, r, "file_stat", map[string]interface{}{"path": "a"})
	require.NoError(t, err)
	assert.Contains(t, out, "Type: directory")

	_, err = invoke(t, r, "file_stat", map[string]interface{}{"path": "missing"})
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestDiffFiles(t *testing.T) {
	r, dir := newTestRegistry(t, nil)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "old.txt"), []byte("alpha\nbeta\ngamma\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "new.txt"), []byte("alpha\nBETA\ngamma\n"), 0o644))

	out, err := invoke(t, r, "diff_files", map[string]interface{}{"old_path": "old.txt", "new_path": "new.txt"})
	require.NoError(t, err)
	assert.Contains(t, out, "--- old.txt")
	assert.Contains(t, out, "+++ new.txt")
	assert.Contains(t, out, "-beta\n")
	assert.Contains(t, out, "+BETA\n")

	out, err = invoke(t, r, "diff_files", map[string]interface{}{"old_path": "old.txt", "new_path": "old.txt"})
	require.NoError(t, err)
	assert.Equal(t, "Files are identical.", out)
}

func TestSearchReplace(t *testing.T) {
	cfg := &config.Config{FilesystemAccess: config.FilesystemAccess{
		Hidden:   []string{"secrets/**"},
		ReadOnly: []string{"vendor/**"},
	}}
	r, dir := newTestRegistry(t, cfg)
	write := func(rel, content string) {
		full := filepath.Join(dir, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
	}
	read := func(rel string) string {
		data, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(rel)))
		require.NoError(t, err)
		return string(data)
	}
	write("main.go", "func oldName() {}\n")
	write("pkg/util.go", "// oldName helper\n")
	write("notes.md", "oldName\n")
	write("secrets/key.go", "oldName\n")

	args := map[string]interface{}{"pattern": `old(Name)`, "replacement": "new$1", "glob": "**/*.go"}
	assert.False(t, r.IsDestructive("search_replace", args))
	out, err := invoke(t, r, "search_replace", args)
	require.NoError(t, err)
	assert.Equal(t, "Would change 2 file(s):\nmain.go\npkg/util.go", out)
	assert.Equal(t, "func oldName() {}\n", read("main.go"))

	args["preview"] = false
	assert.True(t, r.IsDestructive("search_replace", args))
	out, err = invoke(t, r, "search_replace", args)
	require.NoError(t, err)
	assert.Contains(t, out, "Changed 2 file(s)")
	assert.Equal(t, "func newName() {}\n", read("main.go"))
	assert.Equal(t, "// newName helper\n", read("pkg/util.go"))
	assert.Equal(t, "oldName\n", read("notes.md"))
	assert.Equal(t, "oldName\n", read("secrets/key.go"))

	write("vendor/lib.go", "oldName\n")
	write("lib.go", "oldName\n")
	_, err = invoke(t, r, "search_replace", map[string]interface{}{"pattern": "oldName", "replacement": "x", "glob": "**/*.go", "preview": false})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read-only")
	assert.Equal(t, "oldName\n", read("lib.go"))

	_, err = invoke(t, r, "search_replace", map[string]interface{}{"pattern": "(", "replacement": "x"})
	assert.Error(t, err)
}

func TestGitDiffPathIsGuarded(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available")
	}
	cfg := &config.Config{FilesystemAccess: config.FilesystemAccess{Hidden: []string{"secrets/**"}}}
	r, dir := newTestRegistry(t, cfg)
	ctx := context.Background()
	for _, args := range [][]string{
		{"init", "-q"},
		{"config", "user.email", "dev@example.com"},
		{"config", "user.name", "Dev"},
	} {
		_, err := runGit(ctx, dir, args...)
		require.NoError(t, err)
	}
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "secrets"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "secrets", "key"), []byte("v1\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "main.go"), []byte("package main\n"), 0o644))
	_, err := runGit(ctx, dir, "add", "-A")
	require.NoError(t, err)
	_, err = runGit(ctx, dir, "commit", "-q", "-m", "initial")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "secrets", "key"), []byte("v2\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "main.go"), []byte("package main\n\nfunc main() {}\n"), 0o644))

	out, err := invoke(t, r, "git_diff", map[string]interface{}{"path": "main.go"})
	require.NoError(t, err)
	assert.Contains(t, out, "+func main() {}")
	assert.NotContains(t, out, "v2")

	for _, path := range []string{"secrets/key", "../elsewhere", "/etc/passwd"} {
		_, err := invoke(t, r, "git_diff", map[string]interface{}{"path": path})
		require.Error(t, err, path)
		assert.True(t, errors.Is(err, errors.ErrExecution), path)
	}

	out, _ = invoke(t, r, "git_diff", map[string]interface{}{"path": ":/secrets"})
	assert.NotContains(t, out, "v2")
}
