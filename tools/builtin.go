package tools

import (
	"path/filepath"

	"github.com/Fenix46/VibeCLI/config"
	"github.com/Fenix46/VibeCLI/errors"
)

// NewDefaultRegistry returns a registry with the built-in file, git and shell
// tools rooted at projectDir.
func NewDefaultRegistry(cfg *config.Config, projectDir string) (*Registry, error) {
	dir, err := filepath.Abs(projectDir)
	if err != nil {
		return nil, errors.Wrapf(err, "could not resolve project directory")
	}
	root := &fsRoot{dir: dir, access: cfg.FilesystemAccess}

	r := NewRegistry()
	for _, t := range []Tool{
		&ReadFileTool{root: root},
		&WriteFileTool{root: root},
		&AppendFileTool{root: root},
		&ListDirTool{root: root},
		&OpenFileRangeTool{root: root},
		&GrepSearchTool{root: root},
		&DeleteFileTool{root: root},
		&CopyFileTool{root: root},
		&MoveFileTool{root: root},
		&MakeDirTool{root: root},
		&FileStatTool{root: root},
		&DiffFilesTool{root: root},
		&SearchReplaceTool{root: root},
		&GitStatusTool{dir: dir},
		&GitDiffTool{root: root},
		&GitCommitTool{dir: dir},
		&ExecuteShellTool{dir: dir, allowedCommands: cfg.AllowedCommands, protect: cfg.ProtectDangerousCommands()},
	} {
		if err := r.Register(t); err != nil {
			return nil, err
		}
	}
	return r, nil
}
