package main

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/Fenix46/VibeCLI/agent"
	"github.com/Fenix46/VibeCLI/config"
	"github.com/Fenix46/VibeCLI/errors"
	"github.com/Fenix46/VibeCLI/llm"
	"github.com/Fenix46/VibeCLI/logger"
	"github.com/Fenix46/VibeCLI/session"
	"github.com/Fenix46/VibeCLI/tools"
	"github.com/Fenix46/VibeCLI/tools/mcp"
	"github.com/rs/zerolog/log"
)

// runtime is everything a command needs once configuration is loaded.
type runtime struct {
	cfg      *config.Config
	dir      string
	logger   *logger.Logger
	registry *tools.Registry
	toolset  string
	servers  []*mcp.Client
}

// projectDir resolves the --dir flag to an absolute path.
func (o *rootOptions) projectDir() (string, error) {
	dir := o.dir
	if dir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return "", errors.Wrapf(err, "could not get working directory")
		}
		dir = wd
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", errors.Wrapf(err, "invalid project directory %s", dir)
	}
	return abs, nil
}

// loadConfig layers the user and project config and sets up logging on stderr.
func loadConfig(opts *rootOptions, stderr io.Writer) (*runtime, error) {
	dir, err := opts.projectDir()
	if err != nil {
		return nil, err
	}
	home, _ := os.UserHomeDir()
	cfg, err := config.Load(home, dir)
	if err != nil {
		return nil, err
	}
	if opts.logLevel != "" {
		cfg.Log.Level = opts.logLevel
	}
	l, err := logger.Setup(cfg.Log, stderr)
	if err != nil {
		return nil, err
	}
	return &runtime{cfg: cfg, dir: dir, logger: l}, nil
}

// loadRuntime additionally starts the MCP servers and builds the capability
// registry of the project directory for the selected toolset.
func loadRuntime(ctx context.Context, opts *rootOptions, toolset string, stderr io.Writer) (*runtime, error) {
	rt, err := loadConfig(opts, stderr)
	if err != nil {
		return nil, err
	}

	registry, err := tools.NewDefaultRegistry(rt.cfg, rt.dir)
	if err != nil {
		rt.Close()
		return nil, err
	}
	rt.servers = mcp.RegisterServers(ctx, registry, rt.cfg.AdditionalMCPServers)
	rt.toolset = toolset
	if rt.registry, err = rt.subset(registry); err != nil {
		rt.Close()
		return nil, err
	}
	log.Debug().Int("tools", rt.registry.Len()).Str("dir", rt.dir).Msg("Runtime ready")
	return rt, nil
}

func (rt *runtime) subset(registry *tools.Registry) (*tools.Registry, error) {
	ts, err := rt.cfg.GetToolset(rt.toolset)
	if err != nil {
		return nil, err
	}
	return registry.Subset(ts)
}

// registryFor builds the registry for another project directory, sharing the
// already running MCP servers.
func (rt *runtime) registryFor(dir string) (*tools.Registry, error) {
	if dir == rt.dir {
		return rt.registry, nil
	}
	registry, err := tools.NewDefaultRegistry(rt.cfg, dir)
	if err != nil {
		return nil, err
	}
	for _, s := range rt.servers {
		for _, t := range s.Tools() {
			if err := registry.Register(t); err != nil {
				log.Warn().Str("server", s.Name).Str("tool", t.Name()).Err(err).Msg("Skipping MCP tool")
			}
		}
	}
	return rt.subset(registry)
}

// Close stops MCP servers and closes the log file.
func (rt *runtime) Close() {
	for _, s := range rt.servers {
		if err := s.Stop(); err != nil {
			log.Warn().Err(err).Str("server", s.Name).Msg("Failed to stop MCP server")
		}
	}
	_ = rt.logger.Close()
}

// backendOverride lets a command pick another backend or model than the config.
type backendOverride struct {
	backend string
	model   string
}

func (rt *runtime) adapter(ctx context.Context, o backendOverride) (string, llm.Adapter, error) {
	backend, model := rt.cfg.Backend, rt.cfg.Model
	if o.backend != "" && o.backend != backend {
		backend, model = o.backend, ""
	}
	if o.model != "" {
		model = o.model
	}
	a, err := llm.New(ctx, backend, model)
	if err != nil {
		return "", nil, err
	}
	return backend, a, nil
}

func (rt *runtime) orchestrator(backend string, adapter llm.Adapter, registry *tools.Registry, dir string, history agent.History, mode agent.Mode) *agent.Orchestrator {
	return agent.New(agent.Options{
		Backend:      backend,
		Adapters:     map[string]llm.Adapter{backend: adapter},
		Executor:     tools.NewExecutor(registry, time.Duration(rt.cfg.ToolTimeoutSeconds)*time.Second, rt.cfg.MaxOutputSize),
		History:      history,
		SystemPrompt: rt.cfg.SystemPrompt,
		WorkDir:      dir,
		HistoryLimit: rt.cfg.HistoryLimit,
		Mode:         mode,
	})
}

func (rt *runtime) openContext() (*session.Store, error) {
	return session.Open(rt.dir)
}
