package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/chazu/meshql/pkg/config"
	"github.com/chazu/meshql/pkg/ctxlog"
	"github.com/chazu/meshql/pkg/tracing"
)

// errScriptFailed is returned by run and check after the result, errors
// included, has been written.
var errScriptFailed = errors.New("script failed")

const defaultConfigPath = ".meshql/config.yaml"

// options holds the global flag values of one command tree.
type options struct {
	cfgFile string
}

// newRootCmd builds the meshql command tree.
func newRootCmd() *cobra.Command {
	opts := &options{}
	rootCmd := &cobra.Command{
		Use:   "meshql",
		Short: "Build meshing directives for B-rep models",
		Long: `meshql evaluates Lisp scripts that load a B-rep model, select its
entities and queue meshing directives (transfinite, boundary layers, sizes,
algorithms, physical groups). The directives are validated and committed to
the mesh engine in order.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&opts.cfgFile, "config", "c", "",
		"config file (default: .meshql/config.yaml if present)")
	rootCmd.PersistentFlags().String("log-level", "", "log level: debug, info, warn or error")

	runCmd := &cobra.Command{
		Use:   "run <script>",
		Short: "Evaluate a script and generate its mesh",
		Long: `Evaluate a script, validate the directives it queued and generate the
mesh. The result is written as YAML.

Examples:
  meshql run examples/channel.mql
  meshql run --dim 2 examples/box.mql`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScript(cmd, opts, args[0], true)
		},
	}
	runCmd.Flags().Int("dim", 0, "highest mesh dimension to generate (default from config)")

	checkCmd := &cobra.Command{
		Use:   "check <script>",
		Short: "Evaluate and validate a script without generating",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScript(cmd, opts, args[0], false)
		},
	}

	initCmd := &cobra.Command{
		Use:   "init [path]",
		Short: "Write the default configuration file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := defaultConfigPath
			if len(args) == 1 {
				path = args[0]
			}
			if err := config.WriteDefault(path); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
			return nil
		},
	}

	rootCmd.AddCommand(runCmd, checkCmd, initCmd)
	return rootCmd
}

// loadConfig reads the config file over the defaults, then applies the
// flags the user set on cmd.
func loadConfig(cmd *cobra.Command, opts *options) (config.Config, error) {
	v := viper.New()
	// Defaults outrank the zero values of unchanged flags.
	config.SetDefaults(v)
	_ = v.BindPFlag("log.level", cmd.Flags().Lookup("log-level"))
	if f := cmd.Flags().Lookup("dim"); f != nil {
		_ = v.BindPFlag("generate.dim", f)
	}

	path := opts.cfgFile
	if path == "" {
		if _, err := os.Stat(defaultConfigPath); err == nil {
			path = defaultConfigPath
		}
	}
	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return config.Config{}, fmt.Errorf("reading config: %w", err)
		}
	}
	return config.Unmarshal(v)
}

func runScript(cmd *cobra.Command, opts *options, path string, generate bool) error {
	cfg, err := loadConfig(cmd, opts)
	if err != nil {
		return err
	}
	logger := ctxlog.New(cfg.Log.Level, cfg.Log.Format, cmd.ErrOrStderr())

	provider, err := tracing.NewProvider(cfg.Tracing, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer func() { _ = provider.Shutdown(context.Background()) }()

	source, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading script: %w", err)
	}

	app, err := NewApp(cfg, logger, provider.Tracer())
	if err != nil {
		return err
	}
	ctx := ctxlog.WithLogger(cmd.Context(), logger)

	var result EvalResult
	if generate {
		result = app.Evaluate(ctx, string(source))
	} else {
		result = app.Check(ctx, string(source))
	}
	logger.Info("script done", "script", path, "errors", len(result.Errors), "warnings", len(result.Warnings))

	if err := writeResult(cmd.OutOrStdout(), result); err != nil {
		return err
	}
	if !result.OK() {
		return errScriptFailed
	}
	return nil
}

func writeResult(w io.Writer, result EvalResult) error {
	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(2)
	if err := encoder.Encode(result); err != nil {
		return fmt.Errorf("writing result: %w", err)
	}
	return encoder.Close()
}
