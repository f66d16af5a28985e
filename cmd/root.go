// -- cmd/root.go --
package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/xkilldash9x/headless-mcp/internal/browser"
	"github.com/xkilldash9x/headless-mcp/internal/browser/cdp"
	"github.com/xkilldash9x/headless-mcp/internal/config"
	"github.com/xkilldash9x/headless-mcp/internal/observability"
)

// application carries state shared by the root command and its subcommands.
type application struct {
	cfgFile string
	v       *viper.Viper
	cfg     *config.Config
	logger  *zap.Logger

	// newLauncher builds the browser driver. Tests swap it for a fake.
	newLauncher func(logger *zap.Logger) browser.Launcher
}

func newApplication() *application {
	return &application{
		v: viper.New(),
		newLauncher: func(logger *zap.Logger) browser.Launcher {
			return cdp.NewLauncher(logger)
		},
	}
}

// flagBindings maps command-line flags onto configuration keys. A flag only
// overrides the key when the running command defines it.
var flagBindings = map[string]string{
	"chrome-path":    "browser.exec_path",
	"browser-arg":    "browser.args",
	"action-timeout": "browser.action_timeout",
	"launch-timeout": "browser.launch_timeout",
	"tool-prefix":    "server.tool_prefix",
	"metrics-addr":   "metrics.address",
	"metrics":        "metrics.enabled",
	"log-level":      "logger.level",
}

// NewRootCommand builds a fresh command tree. Running the root command without a
// subcommand serves MCP on stdio, which is how MCP clients launch the binary.
func NewRootCommand() *cobra.Command {
	return newRootCommand(newApplication())
}

func newRootCommand(app *application) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "headless-mcp",
		Short: "An MCP tool server that drives a single headless browser session over stdio.",
		// Version is set at build time. See cmd/version.go.
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Runs before any command, setting up config and logging.
			return app.initialize(cmd)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), app, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}

	rootCmd.PersistentFlags().StringVarP(&app.cfgFile, "config", "c", "", "config file (default is ./config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error). (Overrides config/env)")
	addServeFlags(rootCmd)
	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	rootCmd.AddCommand(newServeCmd(app))
	rootCmd.AddCommand(newToolsCmd(app))
	rootCmd.AddCommand(newConfigCmd(app))
	rootCmd.AddCommand(newVersionCmd())
	return rootCmd
}

// Execute runs the command tree with a signal-aware context.
func Execute(ctx context.Context) error {
	rootCmd := NewRootCommand()
	err := rootCmd.ExecuteContext(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		observability.GetLogger().Error("Command execution failed", zap.Error(err))
	}
	observability.Sync()
	return err
}

// initialize loads configuration and sets up the global logger.
func (app *application) initialize(cmd *cobra.Command) error {
	if err := app.initializeConfig(cmd); err != nil {
		// Initialize a fallback logger so the failure is still reported in a structured way.
		observability.Initialize(config.NewDefaultConfig().Logger(), zapcore.Lock(zapcore.AddSync(cmd.ErrOrStderr())))
		return err
	}

	// Stdout carries the MCP stream, so console logs always go to stderr.
	observability.Initialize(app.cfg.Logger(), zapcore.Lock(zapcore.AddSync(cmd.ErrOrStderr())))
	app.logger = observability.GetLogger()
	app.logger.Debug("Configuration loaded",
		zap.String("version", Version),
		zap.String("config_file", app.v.ConfigFileUsed()),
	)
	return nil
}

// initializeConfig reads the config file, environment variables and flags.
func (app *application) initializeConfig(cmd *cobra.Command) error {
	v := app.v
	config.SetDefaults(v)

	if app.cfgFile != "" {
		v.SetConfigFile(app.cfgFile)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("HEADLESS_MCP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found; proceed with defaults/env vars.
	}

	for name, key := range flagBindings {
		if f := cmd.Flags().Lookup(name); f != nil {
			if err := v.BindPFlag(key, f); err != nil {
				return fmt.Errorf("binding flag --%s: %w", name, err)
			}
		}
	}

	cfg, err := config.NewConfigFromViper(v)
	if err != nil {
		return err
	}
	app.cfg = cfg
	return nil
}
