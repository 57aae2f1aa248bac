package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"lorad/internal/config"
)

// newRootCmd constructs the command tree: serve and version.
func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "lorad",
		Short:         "LoRA model session manager for an Ollama-compatible inference service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String("config", "", "Config file (.yaml, .json or .toml); defaults to LORAD_CONFIG")
	root.PersistentFlags().String("log-level", "", "Log level: debug|info|warn|error")
	root.PersistentFlags().String("log-format", "", "Log format: json|console")

	root.AddCommand(newServeCmd(), newVersionCmd())
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "lorad", version)
		},
	}
}

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "serve",
		Short:   "Run the HTTP server",
		Args:    cobra.NoArgs,
		Example: "  lorad serve --ollama-url http://localhost:11434 --adapters-dir ./loras --default-model llama3",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg)
		},
	}
	f := cmd.Flags()
	f.String("addr", ":8080", "HTTP listen address; defaults to LORAD_ADDR")
	f.String("ollama-url", "", "Base URL of the inference service")
	f.String("create-mode", "", "Composite creation transport: http|cli")
	f.String("adapters-dir", "", "Directory holding adapter files")
	f.String("adapters-host-dir", "", "Adapter directory as seen by the inference service")
	f.String("default-model", "", "Default base model")
	f.Bool("unload-previous", true, "Unload the previous base model after a swap")
	f.String("cors-origins", "", "Comma-separated allowed CORS origins; enables CORS when set")
	return cmd
}

// loadConfig layers defaults < config file < environment < flags.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	var cfg config.Config
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		path = os.Getenv("LORAD_CONFIG")
	}
	if path != "" {
		c, err := config.Load(path)
		if err != nil {
			return cfg, fmt.Errorf("load config %s: %w", path, err)
		}
		cfg = c
	}
	if v := os.Getenv("LORAD_ADDR"); v != "" {
		cfg.Server.Addr = v
	}

	flags := cmd.Flags()
	str := func(name string, dst *string) {
		if flags.Changed(name) {
			*dst, _ = flags.GetString(name)
		}
	}
	str("addr", &cfg.Server.Addr)
	str("ollama-url", &cfg.Inference.BaseURL)
	str("create-mode", &cfg.Inference.CreateMode)
	str("adapters-dir", &cfg.Adapters.Dir)
	str("adapters-host-dir", &cfg.Adapters.HostDir)
	str("default-model", &cfg.Manager.DefaultModel)
	str("log-level", &cfg.Log.Level)
	str("log-format", &cfg.Log.Format)
	if flags.Changed("unload-previous") {
		v, _ := flags.GetBool("unload-previous")
		cfg.Manager.UnloadPrevious = &v
	}
	if flags.Changed("cors-origins") {
		v, _ := flags.GetString("cors-origins")
		cfg.Server.CORS.Origins = splitCSV(v)
		cfg.Server.CORS.Enabled = len(cfg.Server.CORS.Origins) > 0
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func splitCSV(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
