// Package cli provides centralized command registration.
package cli

import (
	"github.com/andrei-cloud/go_reactor/internal/commands/cli/inspect"
	"github.com/andrei-cloud/go_reactor/internal/commands/cli/scripts"
	"github.com/andrei-cloud/go_reactor/internal/commands/cli/server"
	"github.com/spf13/cobra"
)

// RegisterCommands registers all root commands.
func RegisterCommands(root *cobra.Command) error {
	root.AddCommand(server.NewServeCommand())
	root.AddCommand(scripts.NewRunCommand())
	root.AddCommand(scripts.NewBuildCommand())
	root.AddCommand(inspect.NewInspectCommand())
	root.AddCommand(inspect.NewMonitorCommand())

	return nil
}
