package cmd

import (
	"github.com/spf13/cobra"

	"github.com/conneroisu/sitepipe/internal/server"
)

var devCmd = &cobra.Command{
	Use:     "dev",
	Aliases: []string{"d"},
	Short:   "Clean, build, then watch and serve with live reload",
	Long: `Run the default task: clean the output root, build every asset
concurrently, then watch the sources and serve the output with live reload
until interrupted. This is what sitepipe does without a subcommand.`,
	Args: cobra.NoArgs,
	RunE: runDev,
}

func init() {
	rootCmd.AddCommand(devCmd)
	devCmd.Flags().AddFlagSet(serverFlags())
}

func runDev(cmd *cobra.Command, args []string) error {
	if err := bindServerFlags(cmd); err != nil {
		return err
	}
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signalContext(cmd)
	defer stop()

	srv := server.New(a.cfg, a.logger)
	results, err := a.pipeline.Dev(ctx, srv)
	printSummary(cmd.OutOrStdout(), results)
	if err != nil {
		return err
	}
	printMetrics(cmd.OutOrStdout(), a.pipeline.Metrics())
	return nil
}
