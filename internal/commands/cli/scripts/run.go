// Package scripts provides the one-shot script commands.
package scripts

import (
	"fmt"
	"strings"

	"github.com/andrei-cloud/go_reactor/internal/config"
	"github.com/andrei-cloud/go_reactor/internal/jsenv"
	"github.com/andrei-cloud/go_reactor/internal/reactor"
	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// NewRunCommand creates the run command.
func NewRunCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <script>",
		Short: "Start a script once on a pooled instance",
		Long: `Check an instance out of the pool, start the script with the given arguments
and check the instance back in. Scripts read arguments through argv.getByName.`,
		Args: cobra.ExactArgs(1),
		RunE: runScript,
	}

	cmd.Flags().StringArray("arg", nil, "script argument as name=value (value may be JSON)")
	cmd.Flags().String("print", "", "expression to evaluate and print after the script ran")

	return cmd
}

func runScript(cmd *cobra.Command, positional []string) error {
	raw, _ := cmd.Flags().GetStringArray("arg")
	expr, _ := cmd.Flags().GetString("print")

	args, err := parseArguments(raw)
	if err != nil {
		return err
	}

	cfg := *config.Get()
	cfg.Pool.Size = 1

	rt, err := reactor.New(&cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize runtime: %w", err)
	}
	defer rt.Close()

	if err := rt.Run(positional[0], args); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if expr == "" {
		_, _ = fmt.Fprintf(out, "%s: ok\n", positional[0])
		return nil
	}

	env, ok := rt.Pool().Engines()[0].(*jsenv.Env)
	if !ok {
		return fmt.Errorf("instance does not support evaluation")
	}
	v, err := env.Eval(expr)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintln(out, v)

	return nil
}

// parseArguments turns name=value pairs into script arguments. Values that
// parse as JSON are passed decoded, anything else as a plain string.
func parseArguments(pairs []string) (jsenv.Arguments, error) {
	items := make([]jsenv.Argument, 0, len(pairs))
	for _, p := range pairs {
		name, value, ok := strings.Cut(p, "=")
		if !ok || name == "" {
			return jsenv.Arguments{}, fmt.Errorf("invalid argument %q, want name=value", p)
		}

		var decoded any
		if err := json.Unmarshal([]byte(value), &decoded); err != nil {
			decoded = value
		}
		items = append(items, jsenv.Argument{Name: name, Value: decoded})
	}

	return jsenv.NewArguments(items...)
}
