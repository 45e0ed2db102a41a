// Package server provides the long-running serve command.
package server

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/andrei-cloud/go_reactor/internal/config"
	"github.com/andrei-cloud/go_reactor/internal/reactor"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// NewServeCommand creates the serve command.
func NewServeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the script runtime",
		Long: `Build the instance pool, mount the configured widgets and keep them running.
SIGHUP reloads every script, SIGUSR1 rebuilds the pool.`,
		PreRunE: bindServeFlags,
		RunE:    runServe,
	}

	// Add serve command specific flags that can override config.
	cmd.Flags().Int("size", 1, "number of engine instances")
	cmd.Flags().Bool("debug", false, "start a debug server per instance")
	cmd.Flags().Bool("watch", false, "reload scripts when the output root changes")

	return cmd
}

func bindServeFlags(cmd *cobra.Command, _ []string) error {
	v := config.GetViper()
	_ = v.BindPFlag("pool.size", cmd.Flags().Lookup("size"))
	_ = v.BindPFlag("pool.debug_enabled", cmd.Flags().Lookup("debug"))
	_ = v.BindPFlag("watch.enabled", cmd.Flags().Lookup("watch"))

	return config.Reload()
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg := config.Get()

	rt, err := reactor.New(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize runtime: %w", err)
	}
	defer func() {
		if err := rt.Close(); err != nil {
			log.Error().Err(err).Msg("error during runtime shutdown")
		}
	}()

	for _, wc := range cfg.Widgets {
		if _, err := rt.Mount(wc); err != nil {
			log.Error().Err(err).Str("widget", wc.Name).Msg("failed to mount widget")
		}
	}
	if len(cfg.Widgets) == 0 {
		if _, err := rt.RestartAll(); err != nil {
			log.Warn().Err(err).Msg("main script not started")
		}
	}

	if cfg.Pool.DebugEnabled {
		addrs, err := rt.StartDebug()
		if err != nil {
			return fmt.Errorf("failed to start debug servers: %w", err)
		}
		log.Info().Strs("addresses", addrs).Msg("debug servers listening")
	}

	// Create a context that will be canceled when the server is stopping.
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	if cfg.Watch.Enabled {
		go func() {
			if err := rt.Watch(ctx); err != nil {
				log.Error().Err(err).Msg("script watcher stopped")
			}
		}()
	}

	// Reload scripts on SIGHUP, rebuild the pool on SIGUSR1.
	controlChan := make(chan os.Signal, 1)
	signal.Notify(controlChan, syscall.SIGHUP, syscall.SIGUSR1)
	defer signal.Stop(controlChan)
	go func() {
		for sig := range controlChan {
			switch sig {
			case syscall.SIGHUP:
				log.Info().Msg("reloading scripts...")
				if _, err := rt.RestartAll(); err != nil {
					log.Error().Err(err).Msg("failed to reload scripts")
				}
			case syscall.SIGUSR1:
				log.Info().Msg("rebuilding engine pool...")
				if err := rt.Rebuild(); err != nil {
					log.Error().Err(err).Msg("failed to rebuild engine pool")
				}
			}
		}
	}()

	stopChan := make(chan os.Signal, 1)
	signal.Notify(stopChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(stopChan)

	select {
	case <-stopChan:
	case <-ctx.Done():
	}
	log.Info().Msg("shutting down runtime...")

	return nil
}
