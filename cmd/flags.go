package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// enumValue is a string flag restricted to a fixed set of values, rejected
// at parse time.
type enumValue struct {
	value   string
	allowed []string
}

var _ pflag.Value = (*enumValue)(nil)

func newEnumValue(def string, allowed ...string) *enumValue {
	return &enumValue{value: def, allowed: allowed}
}

func (e *enumValue) String() string { return e.value }

func (e *enumValue) Set(v string) error {
	v = strings.ToLower(strings.TrimSpace(v))
	for _, a := range e.allowed {
		if v == a {
			e.value = v
			return nil
		}
	}
	return fmt.Errorf("must be one of %s", strings.Join(e.allowed, ", "))
}

func (e *enumValue) Type() string { return "string" }

// serverFlags returns the flags of commands that run the dev server.
func serverFlags() *pflag.FlagSet {
	fs := pflag.NewFlagSet("server", pflag.ContinueOnError)
	fs.IntP("port", "p", 3000, "Port to serve on (0 picks a free port)")
	fs.String("host", "localhost", "Host to bind to")
	return fs
}

// bindServerFlags binds the server flags of cmd to the configuration. Flags
// are bound when cmd runs since several commands share the keys.
func bindServerFlags(cmd *cobra.Command) error {
	if err := viper.BindPFlag("server.port", cmd.Flags().Lookup("port")); err != nil {
		return err
	}
	return viper.BindPFlag("server.host", cmd.Flags().Lookup("host"))
}
