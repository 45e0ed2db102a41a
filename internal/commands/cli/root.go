// Package cli provides the CLI command structure for go_reactor.
package cli

import (
	"fmt"

	"github.com/andrei-cloud/go_reactor/internal/config"
	"github.com/andrei-cloud/go_reactor/internal/logging"
	"github.com/spf13/cobra"
)

var cfgFile string

// NewRootCommand creates and returns the root command with all subcommands.
func NewRootCommand() (*cobra.Command, error) {
	rootCmd := &cobra.Command{
		Use:   "go_reactor",
		Short: "Pooled JavaScript runtime for script-driven widgets",
		Long: `Hosts a fixed pool of JavaScript engine instances, starts widget launch
scripts on them and hot-reloads compiled scripts into every instance.`,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			// Initialize configuration before running any command.
			if err := config.Initialize(); err != nil {
				return fmt.Errorf("failed to initialize configuration: %w", err)
			}
			v := config.GetViper()
			if cfgFile != "" {
				config.SetConfigFile(cfgFile)
				if err := v.ReadInConfig(); err != nil {
					return fmt.Errorf("error reading config file: %w", err)
				}
			}

			// Bind flags to viper.
			flags := cmd.Root().PersistentFlags()
			_ = v.BindPFlag("log.level", flags.Lookup("log-level"))
			_ = v.BindPFlag("log.format", flags.Lookup("log-format"))
			_ = v.BindPFlag("scripts.output_root", flags.Lookup("scripts-root"))

			if err := config.Reload(); err != nil {
				return err
			}

			cfg := config.Get()
			logging.InitFromConfig(cfg.Log.Level, cfg.Log.Format)

			return nil
		},
	}

	// Add persistent flags that affect all commands.
	rootCmd.PersistentFlags().
		StringVar(&cfgFile, "config", "", "config file (default is $HOME/.go_reactor/config.yaml)")

	// Add global flags that can override config file settings.
	rootCmd.PersistentFlags().
		String("log-level", "info", "logging level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "", "logging format (human, json)")
	rootCmd.PersistentFlags().String("scripts-root", "", "compiled scripts output root")

	// Register all commands.
	if err := RegisterCommands(rootCmd); err != nil {
		return nil, fmt.Errorf("failed to register commands: %w", err)
	}

	return rootCmd, nil
}
