package build

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/evanw/esbuild/pkg/api"

	"github.com/conneroisu/sitepipe/internal/config"
	errs "github.com/conneroisu/sitepipe/internal/errors"
	"github.com/conneroisu/sitepipe/internal/logging"
)

const (
	// VendorsEntry is the name of the bundle holding third-party code.
	VendorsEntry = "vendors"

	vendorsPath      = "sitepipe:vendors"
	vendorsNamespace = "sitepipe-vendors"
)

var scriptTargets = map[string]api.Target{
	"es2015": api.ES2015,
	"es2016": api.ES2016,
	"es2017": api.ES2017,
	"es2018": api.ES2018,
	"es2019": api.ES2019,
	"es2020": api.ES2020,
	"es2021": api.ES2021,
	"es2022": api.ES2022,
	"es2023": api.ES2023,
	"esnext": api.ESNext,
}

// ParseScriptTarget maps a language level such as "es2017" to an esbuild
// target. An empty string selects esnext.
func ParseScriptTarget(target string) (api.Target, error) {
	if target == "" {
		return api.ESNext, nil
	}
	t, ok := scriptTargets[strings.ToLower(target)]
	if !ok {
		return 0, fmt.Errorf("unsupported script target %q", target)
	}
	return t, nil
}

// Scripts bundles every entry point with esbuild. Packages imported from
// node_modules are split into a shared vendors bundle.
type Scripts struct {
	// Entries maps bundle names to entry files. When empty, every file
	// matching Src becomes an entry named after its base name.
	Entries map[string]string
	Src     string
	Dest    string
	Options config.ScriptsConfig
	// Dir is the directory entries, node_modules and Dest resolve against.
	// Empty means the working directory.
	Dir    string
	Logger logging.Logger
}

// NewScripts creates the script stage from configuration.
func NewScripts(cfg *config.Config, logger logging.Logger) *Scripts {
	return &Scripts{
		Entries: cfg.Scripts.Entries,
		Src:     cfg.Paths.Scripts.Src,
		Dest:    cfg.Paths.Scripts.Dest,
		Options: cfg.Scripts,
		Logger:  logger.WithComponent(StageScripts),
	}
}

// Name implements Stage.
func (s *Scripts) Name() string { return StageScripts }

// Run bundles all entries. Every failure is fatal.
func (s *Scripts) Run(ctx context.Context) error {
	dir, err := s.workingDir()
	if err != nil {
		return errs.Fatal(StageScripts, err)
	}

	entries, err := s.entryPoints(dir)
	if err != nil {
		return errs.Fatal(StageScripts, err)
	}
	if len(entries) == 0 {
		s.Logger.Warn(ctx, nil, "No script entry points found", "src", s.Src)
		return nil
	}

	target, err := ParseScriptTarget(s.Options.Target)
	if err != nil {
		return errs.Fatal(StageScripts, err)
	}

	vendors, err := s.discoverVendors(dir, entries)
	if err != nil {
		return errs.Fatal(StageScripts, err)
	}
	if len(vendors) > 0 {
		entries = append(entries, api.EntryPoint{
			InputPath:  vendorsPath,
			OutputPath: VendorsEntry + ".bundle",
		})
	}

	opts := s.buildOptions(dir, entries, target)
	opts.Write = true
	opts.Splitting = true
	opts.ChunkNames = VendorsEntry + "-[hash]"
	opts.Plugins = []api.Plugin{vendorsPlugin(dir, vendors)}
	if s.Options.SourceMap {
		opts.Sourcemap = api.SourceMapLinked
	}

	result := api.Build(opts)
	if len(result.Errors) > 0 {
		return errs.Fatal(StageScripts, esbuildError(result.Errors))
	}

	s.Logger.Info(ctx, "Bundled scripts",
		"entries", len(entries),
		"vendors", len(vendors),
		"files", len(result.OutputFiles))
	return nil
}

func (s *Scripts) workingDir() (string, error) {
	if s.Dir == "" {
		return os.Getwd()
	}
	return filepath.Abs(s.Dir)
}

func (s *Scripts) resolve(dir, p string) string {
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(dir, filepath.FromSlash(p))
}

// entryPoints returns the entries sorted by bundle name.
func (s *Scripts) entryPoints(dir string) ([]api.EntryPoint, error) {
	entries := s.Entries
	if len(entries) == 0 {
		files, err := config.Expand(s.resolve(dir, s.Src))
		if err != nil {
			return nil, fmt.Errorf("failed to expand %s: %w", s.Src, err)
		}
		entries = make(map[string]string, len(files))
		for _, file := range files {
			name := strings.TrimSuffix(filepath.Base(file), filepath.Ext(file))
			entries[name] = file
		}
	}

	names := make([]string, 0, len(entries))
	for name := range entries {
		if name == VendorsEntry {
			return nil, fmt.Errorf("entry name %q is reserved", VendorsEntry)
		}
		names = append(names, name)
	}
	sort.Strings(names)

	points := make([]api.EntryPoint, 0, len(names))
	for _, name := range names {
		points = append(points, api.EntryPoint{
			InputPath:  s.resolve(dir, entries[name]),
			OutputPath: name + ".bundle",
		})
	}
	return points, nil
}

func (s *Scripts) buildOptions(dir string, entries []api.EntryPoint, target api.Target) api.BuildOptions {
	return api.BuildOptions{
		EntryPointsAdvanced: entries,
		AbsWorkingDir:       dir,
		Outdir:              s.resolve(dir, s.Dest),
		Bundle:              true,
		Format:              api.FormatESModule,
		Target:              target,
		MinifyWhitespace:    s.Options.Minify,
		MinifyIdentifiers:   s.Options.Minify,
		MinifySyntax:        s.Options.Minify,
		LogLevel:            api.LogLevelSilent,
	}
}

// discoverVendors runs a metafile-only build and returns the bare package
// specifiers that application code imports from node_modules.
func (s *Scripts) discoverVendors(dir string, entries []api.EntryPoint) ([]string, error) {
	opts := s.buildOptions(dir, entries, api.ESNext)
	opts.Write = false
	opts.Metafile = true

	result := api.Build(opts)
	if len(result.Errors) > 0 {
		return nil, esbuildError(result.Errors)
	}
	return vendorImports(result.Metafile)
}

type metafile struct {
	Inputs map[string]struct {
		Imports []struct {
			Path     string `json:"path"`
			Original string `json:"original"`
		} `json:"imports"`
	} `json:"inputs"`
}

// vendorImports extracts from an esbuild metafile the sorted, unique bare
// specifiers imported by non-vendor inputs and resolved into node_modules.
func vendorImports(meta string) ([]string, error) {
	var m metafile
	if err := json.Unmarshal([]byte(meta), &m); err != nil {
		return nil, fmt.Errorf("failed to parse esbuild metafile: %w", err)
	}

	seen := make(map[string]bool)
	for input, info := range m.Inputs {
		if inNodeModules(input) {
			continue
		}
		for _, imp := range info.Imports {
			if !inNodeModules(imp.Path) || !isBareSpecifier(imp.Original) {
				continue
			}
			seen[imp.Original] = true
		}
	}

	specs := make([]string, 0, len(seen))
	for spec := range seen {
		specs = append(specs, spec)
	}
	sort.Strings(specs)
	return specs, nil
}

func inNodeModules(p string) bool {
	p = filepath.ToSlash(p)
	return strings.HasPrefix(p, "node_modules/") || strings.Contains(p, "/node_modules/")
}

func isBareSpecifier(spec string) bool {
	return spec != "" && !strings.HasPrefix(spec, ".") && !strings.HasPrefix(spec, "/")
}

// vendorsPlugin serves the synthetic vendors entry as a module importing
// every vendor package.
func vendorsPlugin(dir string, vendors []string) api.Plugin {
	return api.Plugin{
		Name: "sitepipe-vendors",
		Setup: func(build api.PluginBuild) {
			build.OnResolve(api.OnResolveOptions{Filter: "^sitepipe:vendors$"},
				func(args api.OnResolveArgs) (api.OnResolveResult, error) {
					return api.OnResolveResult{Path: VendorsEntry, Namespace: vendorsNamespace}, nil
				})

			build.OnLoad(api.OnLoadOptions{Filter: ".*", Namespace: vendorsNamespace},
				func(args api.OnLoadArgs) (api.OnLoadResult, error) {
					var b strings.Builder
					for _, spec := range vendors {
						fmt.Fprintf(&b, "import %q;\n", spec)
					}
					contents := b.String()
					return api.OnLoadResult{
						Contents:   &contents,
						ResolveDir: dir,
						Loader:     api.LoaderJS,
					}, nil
				})
		},
	}
}

// esbuildError joins esbuild diagnostics into one error.
func esbuildError(msgs []api.Message) error {
	formatted := api.FormatMessages(msgs, api.FormatMessagesOptions{Kind: api.ErrorMessage})
	failures := make([]error, 0, len(formatted))
	for _, msg := range formatted {
		failures = append(failures, errors.New(strings.TrimSpace(msg)))
	}
	return errors.Join(failures...)
}
