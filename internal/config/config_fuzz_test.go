package config

import (
	"bytes"
	"strings"
	"testing"

	"github.com/spf13/viper"
)

// FuzzLoadConfig tests configuration loading with malformed YAML.
func FuzzLoadConfig(f *testing.F) {
	f.Add(`server:
  port: 8080
  host: localhost
paths:
  root: ./public`)

	f.Add(`server:
  port: "invalid_port"`)

	f.Add(`server:
  port: 65536`)

	f.Add(`paths:
  img:
    dest: ../outside`)

	f.Add(`watch:
  debounce: -5s`)

	f.Add(`malformed: yaml: content`)
	f.Add(``)

	f.Fuzz(func(t *testing.T, yamlContent string) {
		if len(yamlContent) > 50000 {
			t.Skip("Config content too large")
		}

		v := viper.New()
		SetDefaults(v)
		v.SetConfigType("yaml")
		if err := v.ReadConfig(bytes.NewBufferString(yamlContent)); err != nil {
			return
		}

		config, err := LoadFrom(v)
		if err != nil {
			return
		}

		// Whatever loads must satisfy validation.
		if config.Server.Port < 0 || config.Server.Port > 65535 {
			t.Errorf("Invalid port range: %d", config.Server.Port)
		}
		if config.Watch.Debounce < 0 {
			t.Errorf("Negative debounce: %v", config.Watch.Debounce)
		}
		for _, dest := range []string{
			config.Paths.Templates.Dest,
			config.Paths.Styles.Dest,
			config.Paths.Scripts.Dest,
			config.Paths.Img.Dest,
			config.Paths.Fonts.Dest,
			config.Paths.SVG.Dest,
		} {
			if !Within(config.Paths.Root, dest) {
				t.Errorf("Destination %q escapes root %q", dest, config.Paths.Root)
			}
		}
	})
}

// FuzzMatch tests that glob matching never panics and that every expanded
// base is a prefix of the pattern.
func FuzzMatch(f *testing.F) {
	f.Add("./src/**/*.scss", "src/a/b.scss")
	f.Add("./src/[img/*", "src/x")
	f.Add("{a,b}/*.js", "a/c.js")
	f.Add("", "")

	f.Fuzz(func(t *testing.T, pattern, name string) {
		_ = Match(pattern, name)

		base := Base(pattern)
		if base != "." && !strings.HasPrefix(Normalize(pattern), base) {
			t.Errorf("Base(%q) = %q is not a prefix", pattern, base)
		}
	})
}
