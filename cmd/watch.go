package cmd

import (
	"github.com/spf13/cobra"
)

var watchCmd = &cobra.Command{
	Use:     "watch",
	Aliases: []string{"w"},
	Short:   "Build, then rebuild stages as their sources change",
	Long: `Clean and build once, then watch the style, template and script sources.
A change reruns only the stage that owns the changed file. Rebuild errors
are reported and watching continues.`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signalContext(cmd)
	defer stop()

	results, err := a.pipeline.Dev(ctx)
	printSummary(cmd.OutOrStdout(), results)
	if err != nil {
		return err
	}
	printMetrics(cmd.OutOrStdout(), a.pipeline.Metrics())
	return nil
}
