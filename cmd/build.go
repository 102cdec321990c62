package cmd

import (
	"github.com/spf13/cobra"
)

var buildCmd = &cobra.Command{
	Use:     "build",
	Aliases: []string{"b"},
	Short:   "Clean the output root and build every asset once",
	Long: `Remove the output root, then compile styles, templates and scripts and
copy images and fonts concurrently. Template and stylesheet errors are
reported as notifications and do not fail the build; any other error does.

Examples:
  sitepipe build                     # Build with .sitepipe.yml settings
  SITEPIPE_SCRIPTS_MINIFY=false sitepipe build`,
	Args: cobra.NoArgs,
	RunE: runBuild,
}

func init() {
	rootCmd.AddCommand(buildCmd)
}

func runBuild(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signalContext(cmd)
	defer stop()

	results, err := a.pipeline.Build(ctx)
	printSummary(cmd.OutOrStdout(), results)
	return err
}
