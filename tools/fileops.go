package tools

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/Fenix46/VibeCLI/errors"
	"github.com/bmatcuk/doublestar/v4"
	"github.com/pmezard/go-difflib/difflib"
)

// MoveFileTool moves or renames a file or directory.
type MoveFileTool struct{ root *fsRoot }

func (t *MoveFileTool) Name() string { return "move_file" }
func (t *MoveFileTool) Description() string {
	return "Moves or renames a file or directory. Fails if the destination exists unless overwrite is true."
}
func (t *MoveFileTool) Parameters() *Schema {
	return Object(map[string]*Schema{
		"src":       String("Source path."),
		"dst":       String("Destination path."),
		"overwrite": Boolean("Replace an existing destination."),
	}, "src", "dst")
}
func (t *MoveFileTool) IsDestructive(args map[string]interface{}) bool {
	return boolArg(args, "overwrite")
}

func (t *MoveFileTool) Execute(ctx context.Context, args map[string]interface{}) (string, error) {
	src, dst := stringArg(args, "src"), stringArg(args, "dst")
	srcFull, err := t.root.resolveWritable(src)
	if err != nil {
		return "", err
	}
	dstFull, err := t.root.resolveWritable(dst)
	if err != nil {
		return "", err
	}
	if srcFull == t.root.dir || dstFull == t.root.dir {
		return "", errors.New("refusing to move the project directory")
	}
	if _, err := os.Stat(srcFull); err != nil {
		return "", errors.Wrapf(err, "source '%s' not found", src)
	}
	if _, err := os.Stat(dstFull); err == nil {
		if !boolArg(args, "overwrite") {
			return "", errors.New("destination '%s' already exists", dst)
		}
		if err := os.RemoveAll(dstFull); err != nil {
			return "", errors.Wrapf(err, "failed to replace '%s'", dst)
		}
	}
	if err := os.MkdirAll(filepath.Dir(dstFull), 0o755); err != nil {
		return "", errors.Wrapf(err, "failed to create parent directory of '%s'", dst)
	}
	if err := os.Rename(srcFull, dstFull); err != nil {
		return "", errors.Wrapf(err, "failed to move '%s'", src)
	}
	return fmt.Sprintf("Moved %s to %s", src, dst), nil
}

// MakeDirTool creates a directory and its parents.
type MakeDirTool struct{ root *fsRoot }

func (t *MakeDirTool) Name() string { return "make_dir" }
func (t *MakeDirTool) Description() string {
	return "Creates a directory, including missing parents."
}
func (t *MakeDirTool) Parameters() *Schema {
	return Object(map[string]*Schema{
		"path":     pathSchema(),
		"exist_ok": Boolean("Succeed when the directory already exists. Defaults to true."),
	}, "path")
}

func (t *MakeDirTool) Execute(ctx context.Context, args map[string]interface{}) (string, error) {
	path := stringArg(args, "path")
	full, err := t.root.resolveWritable(path)
	if err != nil {
		return "", err
	}
	if info, err := os.Stat(full); err == nil {
		if !info.IsDir() {
			return "", errors.New("'%s' exists and is not a directory", path)
		}
		if v, ok := args["exist_ok"].(bool); ok && !v {
			return "", errors.New("directory '%s' already exists", path)
		}
		return fmt.Sprintf("Directory %s already exists", path), nil
	}
	if err := os.MkdirAll(full, 0o755); err != nil {
		return "", errors.Wrapf(err, "failed to create directory '%s'", path)
	}
	return fmt.Sprintf("Created directory %s", path), nil
}

// FileStatTool reports the type, size, mode and modification time of a path.
type FileStatTool struct{ root *fsRoot }

func (t *FileStatTool) Name() string { return "file_stat" }
func (t *FileStatTool) Description() string {
	return "Shows the type, size, permissions and modification time of a file or directory."
}
func (t *FileStatTool) Parameters() *Schema {
	return Object(map[string]*Schema{"path": pathSchema()}, "path")
}

func (t *FileStatTool) Execute(ctx context.Context, args map[string]interface{}) (string, error) {
	path := stringArg(args, "path")
	full, _, err := t.root.resolve(path)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(full)
	if err != nil {
		return "", errors.Wrapf(err, "failed to stat '%s'", path)
	}
	kind := "file"
	if info.IsDir() {
		kind = "directory"
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "Path: %s\n", path)
	fmt.Fprintf(&sb, "Type: %s\n", kind)
	fmt.Fprintf(&sb, "Size: %d bytes\n", info.Size())
	fmt.Fprintf(&sb, "Mode: %s\n", info.Mode())
	fmt.Fprintf(&sb, "Modified: %s\n", info.ModTime().Format("2006-01-02 15:04:05"))
	return sb.String(), nil
}

// DiffFilesTool shows a unified diff between two files.
type DiffFilesTool struct{ root *fsRoot }

func (t *DiffFilesTool) Name() string { return "diff_files" }
func (t *DiffFilesTool) Description() string {
	return "Compares two files and returns a unified diff."
}
func (t *DiffFilesTool) Parameters() *Schema {
	return Object(map[string]*Schema{
		"old_path": String("Original file."),
		"new_path": String("Changed file."),
	}, "old_path", "new_path")
}

func (t *DiffFilesTool) Execute(ctx context.Context, args map[string]interface{}) (string, error) {
	oldPath, newPath := stringArg(args, "old_path"), stringArg(args, "new_path")
	oldText, err := t.read(oldPath)
	if err != nil {
		return "", err
	}
	newText, err := t.read(newPath)
	if err != nil {
		return "", err
	}
	diff, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(oldText),
		B:        difflib.SplitLines(newText),
		FromFile: oldPath,
		ToFile:   newPath,
		Context:  3,
	})
	if err != nil {
		return "", errors.Wrapf(err, "failed to diff '%s' and '%s'", oldPath, newPath)
	}
	if diff == "" {
		return "Files are identical.", nil
	}
	return diff, nil
}

func (t *DiffFilesTool) read(path string) (string, error) {
	full, _, err := t.root.resolve(path)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(full)
	if err != nil {
		return "", errors.Wrapf(err, "failed to read file '%s'", path)
	}
	return string(data), nil
}

// SearchReplaceTool rewrites every match of a regular expression in the files
// selected by a glob. With preview set, the default, it only lists the files
// that would change.
type SearchReplaceTool struct{ root *fsRoot }

func (t *SearchReplaceTool) Name() string { return "search_replace" }
func (t *SearchReplaceTool) Description() string {
	return "Replaces a regular expression across files matching a glob. Set preview to false to write the changes."
}
func (t *SearchReplaceTool) Parameters() *Schema {
	return Object(map[string]*Schema{
		"pattern":     String("Regular expression (RE2 syntax)."),
		"replacement": String("Replacement text. $1 and ${name} expand capture groups."),
		"glob":        String("Files to rewrite, relative to the project directory. Defaults to every file."),
		"preview":     Boolean("Only list the files that would change. Defaults to true."),
	}, "pattern", "replacement")
}
func (t *SearchReplaceTool) IsDestructive(args map[string]interface{}) bool {
	return !previewArg(args)
}

func previewArg(args map[string]interface{}) bool {
	if v, ok := args["preview"].(bool); ok {
		return v
	}
	return true
}

func (t *SearchReplaceTool) Execute(ctx context.Context, args map[string]interface{}) (string, error) {
	re, err := regexp.Compile(stringArg(args, "pattern"))
	if err != nil {
		return "", errors.Wrapf(err, "invalid pattern")
	}
	replacement := stringArg(args, "replacement")
	glob := stringArg(args, "glob")
	if glob == "" {
		glob = "**"
	}
	if !doublestar.ValidatePattern(glob) {
		return "", errors.New("invalid glob '%s'", glob)
	}
	preview := previewArg(args)

	type rewrite struct{ rel, content string }
	var rewrites []rewrite
	walkErr := filepath.WalkDir(t.root.dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		rel, _ := filepath.Rel(t.root.dir, p)
		rel = filepath.ToSlash(rel)
		if rel == "." {
			return nil
		}
		if t.root.isHidden(rel) || d.Name() == ".git" {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		if ok, _ := doublestar.Match(glob, rel); !ok {
			return nil
		}
		data, err := os.ReadFile(p)
		if err != nil || !utf8.Valid(data) {
			return nil
		}
		if updated := re.ReplaceAllString(string(data), replacement); updated != string(data) {
			rewrites = append(rewrites, rewrite{rel: rel, content: updated})
		}
		return nil
	})
	if walkErr != nil {
		return "", errors.Wrapf(walkErr, "search and replace failed")
	}
	if len(rewrites) == 0 {
		return fmt.Sprintf("No matches for %s", re), nil
	}

	changed := make([]string, 0, len(rewrites))
	for _, rw := range rewrites {
		changed = append(changed, rw.rel)
	}
	if !preview {
		// Nothing is written unless every file may be.
		paths := make([]string, len(rewrites))
		for i, rw := range rewrites {
			if paths[i], err = t.root.resolveWritable(rw.rel); err != nil {
				return "", err
			}
		}
		for i, rw := range rewrites {
			if err := os.WriteFile(paths[i], []byte(rw.content), 0o644); err != nil {
				return "", errors.Wrapf(err, "failed to write '%s'", rw.rel)
			}
		}
	}
	verb := "Would change"
	if !preview {
		verb = "Changed"
	}
	return fmt.Sprintf("%s %d file(s):\n%s", verb, len(changed), strings.Join(changed, "\n")), nil
}
