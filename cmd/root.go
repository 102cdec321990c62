package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

// rootCmd runs the default task when called without a subcommand.
var rootCmd = &cobra.Command{
	Use:   "sitepipe",
	Short: "Build a static site from templates, styles, scripts and assets",
	Long: `sitepipe compiles Pug pages, SCSS, JavaScript, images, fonts and SVG
icons from src/ into dist/ and serves the result with live reload.

Without a subcommand sitepipe cleans the output root, builds every asset,
then watches the sources and serves the output until interrupted.

Configuration is read from .sitepipe.yml, SITEPIPE_* environment variables
(SITEPIPE_SERVER_PORT, SITEPIPE_WATCH_DEBOUNCE, ...) and flags.`,
	SilenceUsage: true,
	RunE:         runDev,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is .sitepipe.yml, can also use SITEPIPE_CONFIG_FILE env var)")
	rootCmd.PersistentFlags().VarP(newEnumValue("info", "debug", "info", "warn", "error"), "log-level", "l", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Var(newEnumValue("text", "text", "json"), "log-format", "log format (text, json)")
	rootCmd.Flags().AddFlagSet(serverFlags())
	viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("log.format", rootCmd.PersistentFlags().Lookup("log-format"))
}

// initConfig points viper at the configuration file and environment.
//
// Priority, highest first: flags, SITEPIPE_* variables, the file named by
// --config or SITEPIPE_CONFIG_FILE, then .sitepipe.yml in the working
// directory.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else if envConfigFile := os.Getenv("SITEPIPE_CONFIG_FILE"); envConfigFile != "" {
		viper.SetConfigFile(envConfigFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".sitepipe")
	}

	viper.SetEnvPrefix("SITEPIPE")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// A missing file falls back to the built-in path table.
	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	} else if _, ok := err.(viper.ConfigFileNotFoundError); !ok && cfgFile != "" {
		fmt.Fprintln(os.Stderr, "Warning: failed to read config file:", err)
	}
}

// ExecuteArgs runs the command line args with output written to out.
func ExecuteArgs(args []string, out io.Writer) error {
	rootCmd.SetArgs(args)
	rootCmd.SetOut(out)
	rootCmd.SetErr(out)
	defer func() {
		rootCmd.SetArgs(nil)
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
	}()
	return rootCmd.Execute()
}
