package cmd

import (
	"github.com/spf13/cobra"

	"github.com/conneroisu/sitepipe/internal/server"
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	Aliases: []string{"s"},
	Short:   "Serve the output root with live reload",
	Long: `Serve the output root over HTTP without building. Browsers connected to
a served page reload whenever a file under the output root changes.

Examples:
  sitepipe serve
  SITEPIPE_SERVER_PORT=8080 sitepipe serve`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().AddFlagSet(serverFlags())
}

func runServe(cmd *cobra.Command, args []string) error {
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

	return server.New(a.cfg, a.logger).Start(ctx)
}
