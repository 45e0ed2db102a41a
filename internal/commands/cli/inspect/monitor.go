package inspect

import (
	"time"

	"github.com/andrei-cloud/go_reactor/internal/config"
	"github.com/andrei-cloud/go_reactor/internal/monitor"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// NewMonitorCommand creates the monitor command.
func NewMonitorCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Watch every instance debug port",
		Long:  `Interactive view of all pool slots, refreshed periodically from their debug ports.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			// Log lines would corrupt the TUI.
			log.Logger = log.Logger.Level(zerolog.Disabled)

			interval, _ := cmd.Flags().GetDuration("interval")
			cfg := config.Get()
			ports := make([]int, cfg.Pool.Size)
			for i := range ports {
				ports[i] = cfg.Pool.DebugPort + i
			}

			return monitor.Run(cfg.Pool.DebugHost, ports, interval)
		},
	}
	cmd.Flags().Duration("interval", time.Second, "refresh interval")

	return cmd
}
