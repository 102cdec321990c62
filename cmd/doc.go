// Package cmd provides the command-line interface for sitepipe.
//
// Every pipeline task is a command. Running sitepipe without a subcommand
// performs the default task: clean the output root, build every asset
// concurrently, then watch the sources and serve the output with live reload.
//
// # Available Commands
//
//   - clean, styles, templates, scripts, img, fonts: run one stage
//   - svg: generate the icon sprite
//   - build: clean and build once, then exit
//   - watch: build, then rebuild on source changes
//   - serve: serve the output root with live reload
//   - config show: print the effective configuration
//   - version: print build information
//
// # Command Examples
//
//	// Develop with live reload on port 8080
//	SITEPIPE_SERVER_PORT=8080 sitepipe
//
//	// Production build with JSON logs
//	sitepipe build --log-format json
//
//	// Regenerate the sprite
//	sitepipe svg
package cmd
