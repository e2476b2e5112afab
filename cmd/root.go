package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xkilldash9x/waldo-cli/internal/config"
	"github.com/xkilldash9x/waldo-cli/pkg/observability"
)

// ctxKey namespaces the values this package stores on command contexts.
type ctxKey int

const configKey ctxKey = iota

// NewRootCommand builds the full waldo command tree. A fresh tree is
// built per call so tests can execute commands in isolation.
func NewRootCommand() *cobra.Command {
	var cfgFile string

	rootCmd := &cobra.Command{
		Use:   "waldo",
		Short: "Waldo runs and records scripted browser sessions.",
		Long: `Waldo drives a real Chrome or Chromium browser from plain-text step
scripts. It runs suites of scripts and writes verdicts, screenshots and
a manifest per run, records live browser sessions back into scripts,
renders finished runs as HTML or JUnit reports, and keeps run history
in Postgres when a store is configured.`,
		Version: Version,
		// RunE surfaces errors to Execute exactly once; without these
		// cobra would also print usage and the error itself.
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			v := viper.New()
			config.SetDefaults(v)
			if err := initializeConfig(v, cfgFile); err != nil {
				return err
			}

			cfg, err := config.NewConfigFromViper(v)
			if err != nil {
				// Fall back to a console logger so the failure is visible.
				observability.InitializeLogger(config.LoggerConfig{Level: "info", Format: "console"})
				return fmt.Errorf("loading configuration: %w", err)
			}

			observability.InitializeLogger(cfg.Logger)
			observability.GetLogger().Debug("Starting waldo.", zap.String("version", Version))

			cmd.SetContext(context.WithValue(cmd.Context(), configKey, cfg))
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is ./waldo.yaml)")
	rootCmd.SetVersionTemplate(`{{printf "%s version %s\n" .Name .Version}}`)

	rootCmd.AddCommand(
		newRunCmd(),
		newRecordCmd(),
		newReportCmd(pgStoreOpener{}),
		newTabsCmd(),
	)
	return rootCmd
}

// Execute runs the command tree under the signal-aware context from
// main. The error comes back to main so it owns the exit code.
func Execute(ctx context.Context) error {
	rootCmd := NewRootCommand()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		observability.GetLogger().Error("Command failed.", zap.Error(err))
		return err
	}
	return nil
}

// initializeConfig layers the config file and WALDO_* environment
// variables over the defaults already set on v. A missing default
// config file is fine; a missing explicit one is an error.
func initializeConfig(v *viper.Viper, cfgFile string) error {
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("waldo")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("WALDO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("reading config file: %w", err)
		}
	}
	return nil
}

// configFromContext retrieves the configuration stashed by
// PersistentPreRunE.
func configFromContext(ctx context.Context) (*config.Config, error) {
	cfg, ok := ctx.Value(configKey).(*config.Config)
	if !ok || cfg == nil {
		return nil, fmt.Errorf("configuration missing from command context")
	}
	return cfg, nil
}
