package main

import (
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/Fenix46/VibeCLI/config"
	"github.com/Fenix46/VibeCLI/errors"
	"github.com/Fenix46/VibeCLI/llm"
	"github.com/spf13/cobra"
)

// credentialEnv names the environment variable each backend reads its key from.
var credentialEnv = map[string]string{
	"anthropic": "ANTHROPIC_API_KEY",
	"openai":    "OPENAI_API_KEY",
	"gemini":    "GEMINI_API_KEY",
	"bedrock":   "AWS_PROFILE or AWS_ACCESS_KEY_ID/AWS_SECRET_ACCESS_KEY",
}

func newSetupCmd() *cobra.Command {
	var backend, model string
	var force bool

	cmd := &cobra.Command{
		Use:   "setup",
		Short: "Write the user configuration file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !slices.Contains(llm.Backends(), backend) {
				return errors.Wrapf(errors.ErrUnsupportedBackend, "'%s' (choose one of %s)", backend, strings.Join(llm.Backends(), ", "))
			}
			path, err := config.UserConfigPath()
			if err != nil {
				return err
			}
			if _, err := os.Stat(path); err == nil && !force {
				return errors.New("config already exists at %s (use --force to overwrite)", path)
			}

			if model == "" {
				model = llm.DefaultModels[backend]
			}
			cfg := &config.Config{
				Backend:            backend,
				Model:              model,
				HistoryLimit:       config.MaxHistoryLimit,
				ToolTimeoutSeconds: config.DefaultToolTimeout,
				MaxOutputSize:      config.DefaultMaxOutputSize,
				Toolsets:           []config.Toolset{{Name: "default"}},
				Log:                config.Log{Level: "warn"},
			}
			if err := cfg.Save(path); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Configuration written to %s\n", path)
			fmt.Fprintf(out, "Backend: %s, model: %s\n", backend, model)
			if env, ok := credentialEnv[backend]; ok {
				fmt.Fprintf(out, "Make sure %s is set before running 'vibecli chat'.\n", env)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&backend, "backend", config.DefaultBackend, "Model backend: "+strings.Join(llm.Backends(), ", "))
	cmd.Flags().StringVar(&model, "model", "", "Model name (defaults to the backend's default)")
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing configuration")
	return cmd
}
