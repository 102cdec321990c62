// Package config provides configuration management for sitepipe using Viper
// for loading from files, environment variables, and command-line flags.
//
// The heart of the configuration is the path table: a fixed mapping from
// asset categories (templates, styles, scripts, images, fonts, vector icons)
// to source glob patterns and destination directories. The defaults reproduce
// the conventional src/ -> dist/ layout, so a project without a .sitepipe.yml
// builds exactly as expected. The table is built once at startup and never
// mutated afterwards.
package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Paths     PathsConfig     `mapstructure:"paths" yaml:"paths"`
	Server    ServerConfig    `mapstructure:"server" yaml:"server"`
	Templates TemplatesConfig `mapstructure:"templates" yaml:"templates"`
	Styles    StylesConfig    `mapstructure:"styles" yaml:"styles"`
	Scripts   ScriptsConfig   `mapstructure:"scripts" yaml:"scripts"`
	Sprite    SpriteConfig    `mapstructure:"sprite" yaml:"sprite"`
	Watch     WatchConfig     `mapstructure:"watch" yaml:"watch"`
	Notify    NotifyConfig    `mapstructure:"notify" yaml:"notify"`
	Log       LogConfig       `mapstructure:"log" yaml:"log"`
}

// PathEntry is one row of the path table.
type PathEntry struct {
	Src  string `mapstructure:"src" yaml:"src"`
	Dest string `mapstructure:"dest" yaml:"dest"`
}

type TemplatePaths struct {
	Pages string `mapstructure:"pages" yaml:"pages"`
	Src   string `mapstructure:"src" yaml:"src"`
	Dest  string `mapstructure:"dest" yaml:"dest"`
}

type StylePaths struct {
	Main string `mapstructure:"main" yaml:"main"`
	Src  string `mapstructure:"src" yaml:"src"`
	Dest string `mapstructure:"dest" yaml:"dest"`
}

type PathsConfig struct {
	Root      string        `mapstructure:"root" yaml:"root"`
	Templates TemplatePaths `mapstructure:"templates" yaml:"templates"`
	Styles    StylePaths    `mapstructure:"styles" yaml:"styles"`
	Scripts   PathEntry     `mapstructure:"scripts" yaml:"scripts"`
	Img       PathEntry     `mapstructure:"img" yaml:"img"`
	Fonts     PathEntry     `mapstructure:"fonts" yaml:"fonts"`
	SVG       PathEntry     `mapstructure:"svg" yaml:"svg"`
}

type ServerConfig struct {
	Port        int           `mapstructure:"port" yaml:"port"`
	Host        string        `mapstructure:"host" yaml:"host"`
	ReloadDelay time.Duration `mapstructure:"reload_delay" yaml:"reload_delay"`
}

type TemplatesConfig struct {
	Pretty       bool                   `mapstructure:"pretty" yaml:"pretty"`
	AssetsPrefix string                 `mapstructure:"assets_prefix" yaml:"assets_prefix"`
	Data         map[string]interface{} `mapstructure:"data" yaml:"data,omitempty"`
}

type StylesConfig struct {
	Suffix       string   `mapstructure:"suffix" yaml:"suffix"`
	Targets      []string `mapstructure:"targets" yaml:"targets"`
	SourceMap    bool     `mapstructure:"source_map" yaml:"source_map"`
	SassBinary   string   `mapstructure:"sass_binary" yaml:"sass_binary"`
	IncludePaths []string `mapstructure:"include_paths" yaml:"include_paths,omitempty"`
}

type ScriptsConfig struct {
	Entries   map[string]string `mapstructure:"entries" yaml:"entries"`
	Target    string            `mapstructure:"target" yaml:"target"`
	Minify    bool              `mapstructure:"minify" yaml:"minify"`
	SourceMap bool              `mapstructure:"source_map" yaml:"source_map"`
}

type SpriteConfig struct {
	Name string `mapstructure:"name" yaml:"name"`
}

type WatchConfig struct {
	Debounce time.Duration `mapstructure:"debounce" yaml:"debounce"`
}

type NotifyConfig struct {
	Desktop bool `mapstructure:"desktop" yaml:"desktop"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// defaults mirrors Default() as flat viper keys so environment variables and
// partial config files merge over them key by key.
var defaults = map[string]interface{}{
	"paths.root":            "./dist",
	"paths.templates.pages": "./src/views/pages/*.pug",
	"paths.templates.src":   "./src/views/**/*.pug",
	"paths.templates.dest":  "./dist",
	"paths.styles.main":     "./src/assets/styles/main.scss",
	"paths.styles.src":      "./src/assets/styles/**/*.scss",
	"paths.styles.dest":     "./dist/assets/styles",
	"paths.scripts.src":     "./src/assets/scripts/*.js",
	"paths.scripts.dest":    "./dist/assets/scripts",
	"paths.img.src":         "./src/assets/img/**/*.*",
	"paths.img.dest":        "./dist/assets/img",
	"paths.fonts.src":       "./src/assets/fonts/**/*.*",
	"paths.fonts.dest":      "./dist/assets/fonts",
	"paths.svg.src":         "./src/assets/img/**/*.svg",
	"paths.svg.dest":        "./dist/assets/img",

	"server.port":         3000,
	"server.host":         "localhost",
	"server.reload_delay": 50 * time.Millisecond,

	"templates.pretty":        true,
	"templates.assets_prefix": "/assets",

	"styles.suffix":      ".min",
	"styles.targets":     []string{"chrome109", "edge109", "firefox115", "safari15", "ios15"},
	"styles.source_map":  true,
	"styles.sass_binary": "sass",

	"scripts.entries":    map[string]interface{}{"main": "./src/assets/scripts/main.js"},
	"scripts.target":     "es2017",
	"scripts.minify":     true,
	"scripts.source_map": true,

	"sprite.name": "sprite.svg",

	"watch.debounce": 100 * time.Millisecond,

	"notify.desktop": true,

	"log.level":  "info",
	"log.format": "text",
}

// SetDefaults registers every default on v.
func SetDefaults(v *viper.Viper) {
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
}

// Default returns the built-in configuration without consulting viper's
// global state.
func Default() *Config {
	v := viper.New()
	SetDefaults(v)
	cfg, err := LoadFrom(v)
	if err != nil {
		// The built-in defaults always validate.
		panic(fmt.Sprintf("config: invalid defaults: %v", err))
	}
	return cfg
}

// Load reads the configuration from the global viper instance populated by
// the CLI (flags, SITEPIPE_* environment variables and .sitepipe.yml).
func Load() (*Config, error) {
	SetDefaults(viper.GetViper())
	return LoadFrom(viper.GetViper())
}

// LoadFrom unmarshals and validates the configuration held by v.
func LoadFrom(v *viper.Viper) (*Config, error) {
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to decode configuration: %w", err)
	}

	// An explicitly empty entries map falls back to the scripts glob.
	if config.Scripts.Entries == nil {
		config.Scripts.Entries = map[string]string{}
	}
	if config.Templates.Data == nil {
		config.Templates.Data = map[string]interface{}{}
	}

	if err := Validate(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// Validate checks configuration values for correctness.
func Validate(config *Config) error {
	if err := validatePaths(&config.Paths); err != nil {
		return fmt.Errorf("paths: %w", err)
	}

	if config.Server.Port < 0 || config.Server.Port > 65535 {
		return fmt.Errorf("server: port %d is not in valid range 0-65535", config.Server.Port)
	}
	if strings.ContainsAny(config.Server.Host, ";&|$`()<>\"'\\ ") {
		return fmt.Errorf("server: host %q contains invalid characters", config.Server.Host)
	}
	if config.Server.ReloadDelay < 0 {
		return fmt.Errorf("server: reload_delay must not be negative")
	}

	if config.Watch.Debounce < 0 {
		return fmt.Errorf("watch: debounce must not be negative")
	}

	if config.Sprite.Name == "" || strings.ContainsAny(config.Sprite.Name, `/\`) {
		return fmt.Errorf("sprite: name %q must be a plain file name", config.Sprite.Name)
	}

	for name, entry := range config.Scripts.Entries {
		if name == "" || entry == "" {
			return fmt.Errorf("scripts: entry %q -> %q is incomplete", name, entry)
		}
	}

	switch config.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log: unsupported format %q (supported: text, json)", config.Log.Format)
	}

	return nil
}

func validatePaths(paths *PathsConfig) error {
	root := filepath.Clean(paths.Root)
	switch root {
	case "", ".", "/":
		return fmt.Errorf("root %q would remove the project or filesystem on clean", paths.Root)
	}

	sources := map[string]string{
		"templates.pages": paths.Templates.Pages,
		"templates.src":   paths.Templates.Src,
		"styles.main":     paths.Styles.Main,
		"styles.src":      paths.Styles.Src,
		"scripts.src":     paths.Scripts.Src,
		"img.src":         paths.Img.Src,
		"fonts.src":       paths.Fonts.Src,
		"svg.src":         paths.SVG.Src,
	}
	for key, pattern := range sources {
		if strings.TrimSpace(pattern) == "" {
			return fmt.Errorf("%s: empty source pattern", key)
		}
		if !ValidPattern(pattern) {
			return fmt.Errorf("%s: malformed glob %q", key, pattern)
		}
	}

	destinations := map[string]string{
		"templates.dest": paths.Templates.Dest,
		"styles.dest":    paths.Styles.Dest,
		"scripts.dest":   paths.Scripts.Dest,
		"img.dest":       paths.Img.Dest,
		"fonts.dest":     paths.Fonts.Dest,
		"svg.dest":       paths.SVG.Dest,
	}
	for key, dest := range destinations {
		if dest == "" {
			return fmt.Errorf("%s: empty destination", key)
		}
		if !Within(root, dest) {
			return fmt.Errorf("%s: destination %q is outside root %q", key, dest, paths.Root)
		}
	}

	return nil
}

// Within reports whether path lies inside (or is) root.
func Within(root, path string) bool {
	rel, err := filepath.Rel(filepath.Clean(root), filepath.Clean(path))
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
