package scripts

import (
	"fmt"
	"path/filepath"

	"github.com/andrei-cloud/go_reactor/internal/build"
	"github.com/andrei-cloud/go_reactor/internal/config"
	"github.com/spf13/cobra"
)

// NewBuildCommand creates the build command.
func NewBuildCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "build",
		Short: "Compile script sources into the output root",
		Long: `Transpile TypeScript and JavaScript sources to CommonJS with external source
maps under <scripts.output_root>/<scripts.root_segment>.`,
		Args: cobra.NoArgs,
		RunE: runBuild,
	}

	cmd.Flags().String("src", "", "source directory (default scripts.source_dir)")
	cmd.Flags().String("out", "", "output directory (default output_root/root_segment)")

	return cmd
}

func runBuild(cmd *cobra.Command, _ []string) error {
	cfg := config.Get()

	src, _ := cmd.Flags().GetString("src")
	if src == "" {
		src = cfg.Scripts.SourceDir
	}
	out, _ := cmd.Flags().GetString("out")
	if out == "" {
		out = filepath.Join(cfg.Scripts.OutputRoot, cfg.Scripts.RootSegment)
	}

	res, err := build.Compile(src, out)
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "compiled %d, copied %d into %s\n", res.Compiled, res.Copied, out)
	if err != nil {
		return fmt.Errorf("build failed: %w", err)
	}

	return nil
}
