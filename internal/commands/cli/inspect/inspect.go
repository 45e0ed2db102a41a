// Package inspect provides commands that query running instances over their
// debug ports.
package inspect

import (
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/andrei-cloud/go_reactor/internal/config"
	"github.com/andrei-cloud/go_reactor/internal/debugsrv"
	"github.com/spf13/cobra"
)

// NewInspectCommand creates the inspect command.
func NewInspectCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Query an instance debug port",
		Long:  `Query the debug server of a running instance by its port.`,
	}
	cmd.PersistentFlags().Duration("timeout", 2*time.Second, "request timeout")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "status <port>",
			Short: "Show instance status",
			Args:  cobra.ExactArgs(1),
			RunE: withClient(func(out io.Writer, c *debugsrv.Client, _ []string) error {
				st, err := c.Status()
				if err != nil {
					return err
				}
				printStatus(out, st)
				return nil
			}),
		},
		&cobra.Command{
			Use:   "modules <port>",
			Short: "List loaded modules",
			Args:  cobra.ExactArgs(1),
			RunE: withClient(func(out io.Writer, c *debugsrv.Client, _ []string) error {
				mods, err := c.Modules()
				if err != nil {
					return err
				}
				for _, m := range mods {
					_, _ = fmt.Fprintln(out, m)
				}
				return nil
			}),
		},
		&cobra.Command{
			Use:   "eval <port> <expr>",
			Short: "Evaluate an expression on the instance",
			Args:  cobra.ExactArgs(2),
			RunE: withClient(func(out io.Writer, c *debugsrv.Client, args []string) error {
				v, err := c.Eval(args[1])
				if err != nil {
					return err
				}
				_, _ = fmt.Fprintln(out, v)
				return nil
			}),
		},
		&cobra.Command{
			Use:   "ps <port>",
			Short: "Show host process statistics",
			Args:  cobra.ExactArgs(1),
			RunE: withClient(func(out io.Writer, c *debugsrv.Client, _ []string) error {
				ps, err := c.Process()
				if err != nil {
					return err
				}
				w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
				_, _ = fmt.Fprintf(w, "PID\t%d\n", ps.PID)
				_, _ = fmt.Fprintf(w, "RSS\t%d\n", ps.RSS)
				_, _ = fmt.Fprintf(w, "CPU%%\t%.2f\n", ps.CPUPercent)
				_, _ = fmt.Fprintf(w, "Goroutines\t%d\n", ps.Goroutines)
				return w.Flush()
			}),
		},
	)

	return cmd
}

func withClient(fn func(io.Writer, *debugsrv.Client, []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		port, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid port %q: %w", args[0], err)
		}
		timeout, _ := cmd.Flags().GetDuration("timeout")

		c := debugsrv.Dial(fmt.Sprintf("%s:%d", config.Get().Pool.DebugHost, port), timeout)
		defer c.Close()

		return fn(cmd.OutOrStdout(), c, args)
	}
}

func printStatus(out io.Writer, st debugsrv.StatusReply) {
	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	_, _ = fmt.Fprintf(w, "Port\t%d\n", st.Port)
	_, _ = fmt.Fprintf(w, "Busy\t%t\n", st.Busy)
	_, _ = fmt.Fprintf(w, "Generation\t%d\n", st.Generation)
	if inst := st.Instance; inst != nil {
		_, _ = fmt.Fprintf(w, "Instance\t%s\n", inst.ID)
		_, _ = fmt.Fprintf(w, "Script\t%s\n", inst.Script)
		_, _ = fmt.Fprintf(w, "Run\t%s\n", inst.RunID)
		_, _ = fmt.Fprintf(w, "Running\t%t\n", inst.Running)
		_, _ = fmt.Fprintf(w, "Modules\t%d\n", inst.Modules)
		_, _ = fmt.Fprintf(w, "Cached\t%d\n", inst.Cached)
	}
	_ = w.Flush()
}
