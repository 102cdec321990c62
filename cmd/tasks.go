package cmd

import (
	"github.com/spf13/cobra"

	"github.com/conneroisu/sitepipe/internal/build"
	"github.com/conneroisu/sitepipe/internal/pipeline"
)

// taskCommands are the single-stage commands.
var taskCommands = []struct {
	name  string
	short string
	long  string
}{
	{build.StageClean, "Remove the output root", ""},
	{build.StageStyles, "Compile the entry stylesheet to CSS", ""},
	{build.StageTemplates, "Render every page template to HTML", ""},
	{build.StageScripts, "Bundle scripts with a shared vendors bundle", `Bundle every script entry with esbuild.

Bundles are ES modules. When an entry imports packages from node_modules,
the shared code lands in a vendors-<hash>.js chunk that the entry bundle
imports, so pages must load bundles with <script type="module">.`},
	{build.StageImg, "Copy images into the output root", ""},
	{build.StageFonts, "Copy fonts into the output root", ""},
	{build.StageSVG, "Combine SVG icons into a sprite", ""},
}

func init() {
	for _, task := range taskCommands {
		rootCmd.AddCommand(newTaskCmd(task.name, task.short, task.long))
	}
}

func newTaskCmd(name, short, long string) *cobra.Command {
	return &cobra.Command{
		Use:   name,
		Short: short,
		Long:  long,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, stop := signalContext(cmd)
			defer stop()

			result, err := a.pipeline.Run(ctx, name)
			printSummary(cmd.OutOrStdout(), []pipeline.StageResult{result})
			return err
		},
	}
}
