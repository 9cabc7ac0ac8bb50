package config

import (
	"os"
	"path/filepath"
	"regexp"

	"github.com/Fenix46/VibeCLI/errors"
	"gopkg.in/yaml.v3"
)

const (
	// DirName is the per-user and per-project directory holding config and context.
	DirName = ".vibecli"

	// MaxHistoryLimit is the upper bound on turns sent to a backend.
	MaxHistoryLimit = 50

	DefaultBackend       = "gemini"
	DefaultModel         = "gemini-2.0-flash-001"
	DefaultToolTimeout   = 30
	DefaultMaxOutputSize = 10000
)

type FilesystemAccess struct {
	Hidden   []string `yaml:"hidden"`
	ReadOnly []string `yaml:"read_only"`
}

type MCPServer struct {
	Name    string   `yaml:"name"`
	Command string   `yaml:"command"`
	Args    []string `yaml:"args"`
}

type Toolset struct {
	Name  string   `yaml:"name"`
	Tools []string `yaml:"tools"`
}

type Log struct {
	Level  string `yaml:"level"`
	File   string `yaml:"file"`
	Pretty *bool  `yaml:"pretty"`
}

type Config struct {
	Backend                     string           `yaml:"backend"`
	Model                       string           `yaml:"model"`
	SystemPrompt                string           `yaml:"system_prompt"`
	HistoryLimit                int              `yaml:"history_limit"`
	ToolTimeoutSeconds          int              `yaml:"tool_timeout_seconds"`
	MaxOutputSize               int              `yaml:"max_output_size"`
	DangerousCommandsProtection *bool            `yaml:"dangerous_commands_protection"`
	AllowedCommands             []string         `yaml:"allowed_commands"`
	FilesystemAccess            FilesystemAccess `yaml:"filesystem_access"`
	Toolsets                    []Toolset        `yaml:"toolsets"`
	AdditionalMCPServers        []MCPServer      `yaml:"additional_mcp_servers"`
	Log                         Log              `yaml:"log"`
}

// UserConfigPath returns ~/.vibecli/config.yaml.
func UserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", errors.Wrapf(err, "could not resolve home directory")
	}
	return filepath.Join(home, DirName, "config.yaml"), nil
}

// Load layers <home>/.vibecli/config.yaml and <projectDir>/.vibecli/config.yaml,
// then fills defaults and validates. An empty home skips the user layer.
func Load(home, projectDir string) (*Config, error) {
	cfg := &Config{}
	if home != "" {
		if err := loadIfExists(filepath.Join(home, DirName, "config.yaml"), cfg); err != nil {
			return nil, errors.Wrapf(err, "error loading user config")
		}
	}
	if err := loadIfExists(filepath.Join(projectDir, DirName, "config.yaml"), cfg); err != nil {
		return nil, errors.Wrapf(err, "error loading project config")
	}

	cfg.applyDefaults()
	// The context directory is never visible to tools.
	cfg.FilesystemAccess.Hidden = append(cfg.FilesystemAccess.Hidden, DirName, DirName+"/**")
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadIfExists(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	// Fields present in the later file replace the earlier ones wholesale.
	return yaml.Unmarshal(data, cfg)
}

func (c *Config) applyDefaults() {
	if c.Backend == "" {
		c.Backend = DefaultBackend
	}
	if c.Model == "" && c.Backend == DefaultBackend {
		c.Model = DefaultModel
	}
	if c.HistoryLimit <= 0 || c.HistoryLimit > MaxHistoryLimit {
		c.HistoryLimit = MaxHistoryLimit
	}
	if c.ToolTimeoutSeconds <= 0 {
		c.ToolTimeoutSeconds = DefaultToolTimeout
	}
	if c.MaxOutputSize <= 0 {
		c.MaxOutputSize = DefaultMaxOutputSize
	}
	if c.DangerousCommandsProtection == nil {
		on := true
		c.DangerousCommandsProtection = &on
	}
	if c.Log.Level == "" {
		c.Log.Level = "warn"
	}
	if c.Log.Pretty == nil {
		on := true
		c.Log.Pretty = &on
	}
}

// Validate checks fields that would otherwise fail late.
func (c *Config) Validate() error {
	for _, pattern := range c.AllowedCommands {
		if _, err := regexp.Compile(pattern); err != nil {
			return errors.Wrapf(err, "invalid allowed_commands pattern %q", pattern)
		}
	}
	for _, s := range c.AdditionalMCPServers {
		if s.Name == "" || s.Command == "" {
			return errors.New("additional_mcp_servers entries need both name and command")
		}
	}
	return nil
}

// ProtectDangerousCommands reports whether the shell tool refuses known destructive commands.
func (c *Config) ProtectDangerousCommands() bool {
	return c.DangerousCommandsProtection == nil || *c.DangerousCommandsProtection
}

// GetToolset finds a toolset by name. It falls back to the "default" toolset,
// and when no toolsets are configured at all it returns nil, meaning every tool.
func (c *Config) GetToolset(name string) (*Toolset, error) {
	if len(c.Toolsets) == 0 {
		return nil, nil
	}
	if name == "" {
		name = "default"
	}
	for i := range c.Toolsets {
		if c.Toolsets[i].Name == name {
			return &c.Toolsets[i], nil
		}
	}
	if name == "default" {
		return nil, errors.New("mandatory 'default' toolset not found in configuration")
	}
	return c.GetToolset("default")
}

// Save writes the config as yaml, creating the parent directory.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrapf(err, "could not create config directory")
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return errors.Wrapf(err, "could not encode config")
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return errors.Wrapf(err, "could not write config to %s", path)
	}
	return nil
}
