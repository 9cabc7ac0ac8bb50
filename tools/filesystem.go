package tools

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/Fenix46/VibeCLI/config"
	"github.com/Fenix46/VibeCLI/errors"
)

const maxGrepMatches = 200

// fsRoot resolves tool paths inside the project directory and enforces the
// hidden and read-only globs from the configuration.
type fsRoot struct {
	dir    string
	access config.FilesystemAccess
}

// resolve returns the absolute path and the slash-separated path relative to the root.
func (r *fsRoot) resolve(path string) (string, string, error) {
	if path == "" {
		path = "."
	}
	full := path
	if !filepath.IsAbs(full) {
		full = filepath.Join(r.dir, path)
	}
	full = filepath.Clean(full)
	rel, err := filepath.Rel(r.dir, full)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", "", errors.New("access denied: path '%s' is outside the project directory", path)
	}
	rel = filepath.ToSlash(rel)

	hidden, err := isPathRestricted(rel, r.access.Hidden)
	if err != nil {
		return "", "", err
	}
	if hidden {
		return "", "", errors.New("access denied: path '%s' is hidden", path)
	}
	return full, rel, nil
}

func (r *fsRoot) resolveWritable(path string) (string, error) {
	full, rel, err := r.resolve(path)
	if err != nil {
		return "", err
	}
	readOnly, err := isPathRestricted(rel, r.access.ReadOnly)
	if err != nil {
		return "", err
	}
	if readOnly {
		return "", errors.New("access denied: path '%s' is read-only", path)
	}
	return full, nil
}

func (r *fsRoot) isHidden(rel string) bool {
	hidden, _ := isPathRestricted(rel, r.access.Hidden)
	return hidden
}

func pathSchema() *Schema { return String("Path relative to the project directory.") }

// ReadFileTool implements the tool for reading a file.
type ReadFileTool struct{ root *fsRoot }

func (t *ReadFileTool) Name() string { return "read_file" }
func (t *ReadFileTool) Description() string {
	return "Reads the entire content of a file."
}
func (t *ReadFileTool) Parameters() *Schema {
	return Object(map[string]*Schema{"path": pathSchema()}, "path")
}

func (t *ReadFileTool) Execute(ctx context.Context, args map[string]interface{}) (string, error) {
	path := stringArg(args, "path")
	full, _, err := t.root.resolve(path)
	if err != nil {
		return "", err
	}
	content, err := os.ReadFile(full)
	if err != nil {
		return "", errors.Wrapf(err, "failed to read file '%s'", path)
	}
	return string(content), nil
}

// WriteFileTool implements the tool for writing to a file.
type WriteFileTool struct{ root *fsRoot }

func (t *WriteFileTool) Name() string { return "write_file" }
func (t *WriteFileTool) Description() string {
	return "Writes content to a file, replacing it entirely. Parent directories are created."
}
func (t *WriteFileTool) Parameters() *Schema {
	return Object(map[string]*Schema{
		"path":    pathSchema(),
		"content": String("Full new content of the file."),
	}, "path", "content")
}
func (t *WriteFileTool) IsDestructive(map[string]interface{}) bool { return true }

func (t *WriteFileTool) Execute(ctx context.Context, args map[string]interface{}) (string, error) {
	path, content := stringArg(args, "path"), stringArg(args, "content")
	full, err := t.root.resolveWritable(path)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", errors.Wrapf(err, "failed to create parent directory of '%s'", path)
	}
	if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
		return "", errors.Wrapf(err, "failed to write to file '%s'", path)
	}
	return fmt.Sprintf("Successfully wrote %d bytes to %s", len(content), path), nil
}

// AppendFileTool appends content to a file, creating it when missing.
type AppendFileTool struct{ root *fsRoot }

func (t *AppendFileTool) Name() string { return "append_file" }
func (t *AppendFileTool) Description() string {
	return "Appends content to the end of a file, creating the file if needed."
}
func (t *AppendFileTool) Parameters() *Schema {
	return Object(map[string]*Schema{
		"path":    pathSchema(),
		"content": String("Text to append."),
	}, "path", "content")
}
func (t *AppendFileTool) IsDestructive(map[string]interface{}) bool { return true }

func (t *AppendFileTool) Execute(ctx context.Context, args map[string]interface{}) (string, error) {
	path, content := stringArg(args, "path"), stringArg(args, "content")
	full, err := t.root.resolveWritable(path)
	if err != nil {
		return "", err
	}
	f, err := os.OpenFile(full, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return "", errors.Wrapf(err, "failed to open file '%s'", path)
	}
	defer f.Close()
	if _, err := io.WriteString(f, content); err != nil {
		return "", errors.Wrapf(err, "failed to append to file '%s'", path)
	}
	return fmt.Sprintf("Successfully appended %d bytes to %s", len(content), path), nil
}

// ListDirTool lists a directory, skipping hidden paths.
type ListDirTool struct{ root *fsRoot }

func (t *ListDirTool) Name() string { return "list_dir" }
func (t *ListDirTool) Description() string {
	return "Lists the entries of a directory. Directories end with '/'."
}
func (t *ListDirTool) Parameters() *Schema {
	return Object(map[string]*Schema{
		"path":      String("Directory relative to the project directory. Defaults to the project root."),
		"recursive": Boolean("Walk subdirectories too."),
	})
}

func (t *ListDirTool) Execute(ctx context.Context, args map[string]interface{}) (string, error) {
	path := stringArg(args, "path")
	full, _, err := t.root.resolve(path)
	if err != nil {
		return "", err
	}

	var entries []string
	walkErr := filepath.WalkDir(full, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if p == full {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		rel, _ := filepath.Rel(t.root.dir, p)
		rel = filepath.ToSlash(rel)
		if t.root.isHidden(rel) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		name, _ := filepath.Rel(full, p)
		name = filepath.ToSlash(name)
		if d.IsDir() {
			name += "/"
		}
		entries = append(entries, name)
		if d.IsDir() && !boolArg(args, "recursive") {
			return filepath.SkipDir
		}
		return nil
	})
	if walkErr != nil {
		return "", errors.Wrapf(walkErr, "failed to list directory '%s'", path)
	}
	sort.Strings(entries)
	if len(entries) == 0 {
		return "(empty directory)", nil
	}
	return strings.Join(entries, "\n"), nil
}

// OpenFileRangeTool returns a numbered line range of a file.
type OpenFileRangeTool struct{ root *fsRoot }

func (t *OpenFileRangeTool) Name() string { return "open_file_range" }
func (t *OpenFileRangeTool) Description() string {
	return "Shows lines start..end (1-based, inclusive) of a file with line numbers."
}
func (t *OpenFileRangeTool) Parameters() *Schema {
	return Object(map[string]*Schema{
		"path":  pathSchema(),
		"start": Integer("First line, 1-based."),
		"end":   Integer("Last line, inclusive."),
	}, "path", "start", "end")
}

func (t *OpenFileRangeTool) Execute(ctx context.Context, args map[string]interface{}) (string, error) {
	path := stringArg(args, "path")
	start, end := intArg(args, "start", 1), intArg(args, "end", 0)
	if start < 1 || end < start {
		return "", errors.New("invalid line range %d-%d", start, end)
	}
	full, _, err := t.root.resolve(path)
	if err != nil {
		return "", err
	}
	f, err := os.Open(full)
	if err != nil {
		return "", errors.Wrapf(err, "failed to open file '%s'", path)
	}
	defer f.Close()

	var sb strings.Builder
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for n := 1; scanner.Scan() && n <= end; n++ {
		if n >= start {
			fmt.Fprintf(&sb, "%5d  %s\n", n, scanner.Text())
		}
	}
	if err := scanner.Err(); err != nil {
		return "", errors.Wrapf(err, "failed to read file '%s'", path)
	}
	if sb.Len() == 0 {
		return "", errors.New("file '%s' has fewer than %d lines", path, start)
	}
	return sb.String(), nil
}

// GrepSearchTool searches files under a path for a regular expression.
type GrepSearchTool struct{ root *fsRoot }

func (t *GrepSearchTool) Name() string { return "grep_search" }
func (t *GrepSearchTool) Description() string {
	return "Searches files for a regular expression and returns matching lines as path:line: text."
}
func (t *GrepSearchTool) Parameters() *Schema {
	return Object(map[string]*Schema{
		"pattern": String("Regular expression (RE2 syntax)."),
		"path":    String("File or directory to search. Defaults to the project root."),
	}, "pattern")
}

func (t *GrepSearchTool) Execute(ctx context.Context, args map[string]interface{}) (string, error) {
	re, err := regexp.Compile(stringArg(args, "pattern"))
	if err != nil {
		return "", errors.Wrapf(err, "invalid pattern")
	}
	full, _, err := t.root.resolve(stringArg(args, "path"))
	if err != nil {
		return "", err
	}

	var matches []string
	walkErr := filepath.WalkDir(full, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		rel, _ := filepath.Rel(t.root.dir, p)
		rel = filepath.ToSlash(rel)
		if rel != "." && (t.root.isHidden(rel) || d.Name() == ".git") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		found, err := grepFile(p, rel, re, maxGrepMatches-len(matches))
		if err != nil {
			return nil
		}
		matches = append(matches, found...)
		if len(matches) >= maxGrepMatches {
			return fs.SkipAll
		}
		return nil
	})
	if walkErr != nil {
		return "", errors.Wrapf(walkErr, "search failed")
	}
	if len(matches) == 0 {
		return "No matches found.", nil
	}
	return strings.Join(matches, "\n"), nil
}

func grepFile(path, rel string, re *regexp.Regexp, limit int) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []string
	scanner := bufio.NewScanner(f)
	for n := 1; scanner.Scan() && len(out) < limit; n++ {
		line := scanner.Text()
		if strings.ContainsRune(line, 0) {
			// Binary file.
			return nil, nil
		}
		if re.MatchString(line) {
			out = append(out, fmt.Sprintf("%s:%d: %s", rel, n, line))
		}
	}
	return out, scanner.Err()
}

// DeleteFileTool removes a file or an empty directory.
type DeleteFileTool struct{ root *fsRoot }

func (t *DeleteFileTool) Name() string { return "delete_file" }
func (t *DeleteFileTool) Description() string {
	return "Deletes a file or an empty directory."
}
func (t *DeleteFileTool) Parameters() *Schema {
	return Object(map[string]*Schema{"path": pathSchema()}, "path")
}
func (t *DeleteFileTool) IsDestructive(map[string]interface{}) bool { return true }

func (t *DeleteFileTool) Execute(ctx context.Context, args map[string]interface{}) (string, error) {
	path := stringArg(args, "path")
	full, err := t.root.resolveWritable(path)
	if err != nil {
		return "", err
	}
	if full == t.root.dir {
		return "", errors.New("refusing to delete the project directory")
	}
	if err := os.Remove(full); err != nil {
		return "", errors.Wrapf(err, "failed to delete '%s'", path)
	}
	return fmt.Sprintf("Deleted %s", path), nil
}

// CopyFileTool copies a file. It only counts as destructive when overwriting.
type CopyFileTool struct{ root *fsRoot }

func (t *CopyFileTool) Name() string { return "copy_file" }
func (t *CopyFileTool) Description() string {
	return "Copies a file. Fails if the destination exists unless overwrite is true."
}
func (t *CopyFileTool) Parameters() *Schema {
	return Object(map[string]*Schema{
		"src":       String("Source file."),
		"dst":       String("Destination file."),
		"overwrite": Boolean("Replace an existing destination."),
	}, "src", "dst")
}
func (t *CopyFileTool) IsDestructive(args map[string]interface{}) bool {
	return boolArg(args, "overwrite")
}

func (t *CopyFileTool) Execute(ctx context.Context, args map[string]interface{}) (string, error) {
	src, dst := stringArg(args, "src"), stringArg(args, "dst")
	srcFull, _, err := t.root.resolve(src)
	if err != nil {
		return "", err
	}
	dstFull, err := t.root.resolveWritable(dst)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(dstFull); err == nil && !boolArg(args, "overwrite") {
		return "", errors.New("destination '%s' already exists", dst)
	}
	data, err := os.ReadFile(srcFull)
	if err != nil {
		return "", errors.Wrapf(err, "failed to read '%s'", src)
	}
	if err := os.MkdirAll(filepath.Dir(dstFull), 0o755); err != nil {
		return "", errors.Wrapf(err, "failed to create parent directory of '%s'", dst)
	}
	if err := os.WriteFile(dstFull, data, 0o644); err != nil {
		return "", errors.Wrapf(err, "failed to write '%s'", dst)
	}
	return fmt.Sprintf("Copied %s to %s (%d bytes)", src, dst, len(data)), nil
}
