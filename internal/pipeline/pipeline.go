// Package pipeline sequences the build stages.
//
// A full build has two barriers: the cleaner runs alone, then the build
// stages run concurrently, and only after all of them finish do the
// long-running watcher and dev server start.
package pipeline

import (
	"context"
	"fmt"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/conneroisu/sitepipe/internal/build"
	"github.com/conneroisu/sitepipe/internal/config"
	errs "github.com/conneroisu/sitepipe/internal/errors"
	"github.com/conneroisu/sitepipe/internal/logging"
	"github.com/conneroisu/sitepipe/internal/watcher"
)

// StageResult is the outcome of one stage run.
type StageResult struct {
	Name     string
	Duration time.Duration
	Err      error
}

// Status summarizes the result as "ok", "notified" (recoverable failure) or
// "failed".
func (r StageResult) Status() string {
	switch {
	case r.Err == nil:
		return "ok"
	case errs.IsRecoverable(r.Err):
		return "notified"
	default:
		return "failed"
	}
}

// Runner is a long-running component started after the build, such as the
// dev server. Start blocks until ctx is canceled.
type Runner interface {
	Start(ctx context.Context) error
}

// Pipeline holds the named stages and the watch routes over them.
type Pipeline struct {
	clean      build.Stage
	stages     []build.Stage
	manual     []build.Stage
	routes     []watcher.Route
	watchDelay time.Duration

	logger   logging.Logger
	notifier errs.Notifier
	handler  *errs.Handler
	metrics  *Metrics
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger.
func WithLogger(logger logging.Logger) Option {
	return func(p *Pipeline) { p.logger = logger }
}

// WithNotifier sets where recoverable failures are reported.
func WithNotifier(notifier errs.Notifier) Option {
	return func(p *Pipeline) { p.notifier = notifier }
}

// WithWatchDelay sets the per-stage debounce of the input watcher.
func WithWatchDelay(delay time.Duration) Option {
	return func(p *Pipeline) { p.watchDelay = delay }
}

// WithManual adds stages that only run when named explicitly.
func WithManual(stages ...build.Stage) Option {
	return func(p *Pipeline) { p.manual = append(p.manual, stages...) }
}

// WithRoute subscribes the stage named stage to changes matching pattern.
// Routes naming an unknown stage are ignored.
func WithRoute(pattern, stage string) Option {
	return func(p *Pipeline) {
		if s, ok := p.Stage(stage); ok {
			p.routes = append(p.routes, watcher.Route{Pattern: pattern, Stage: s})
		}
	}
}

// New creates a pipeline that runs clean first and then stages concurrently.
func New(clean build.Stage, stages []build.Stage, opts ...Option) *Pipeline {
	p := &Pipeline{
		clean:   clean,
		stages:  stages,
		logger:  logging.Nop(),
		metrics: NewMetrics(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.WithComponent("pipeline")
	p.handler = errs.NewHandler(p.logger, p.notifier)
	return p
}

// FromConfig wires every stage from configuration.
func FromConfig(cfg *config.Config, logger logging.Logger, notifier errs.Notifier, sass build.SassCompiler) *Pipeline {
	stages := []build.Stage{
		build.NewStyles(cfg, sass, logger),
		build.NewTemplates(cfg, logger),
		build.NewScripts(cfg, logger),
		build.NewCopier(build.StageImg, cfg.Paths.Img, logger),
		build.NewCopier(build.StageFonts, cfg.Paths.Fonts, logger),
	}

	return New(build.NewCleaner(cfg.Paths.Root, logger), stages,
		WithLogger(logger),
		WithNotifier(notifier),
		WithWatchDelay(cfg.Watch.Debounce),
		WithManual(build.NewSprite(cfg, logger)),
		WithRoute(cfg.Paths.Styles.Src, build.StageStyles),
		WithRoute(cfg.Paths.Templates.Src, build.StageTemplates),
		WithRoute(cfg.Paths.Scripts.Src, build.StageScripts),
	)
}

// Metrics returns the run metrics of every stage.
func (p *Pipeline) Metrics() *Metrics {
	return p.metrics
}

// Names returns every task name the pipeline can run, sorted.
func (p *Pipeline) Names() []string {
	var names []string
	for _, s := range p.all() {
		names = append(names, s.Name())
	}
	sort.Strings(names)
	return names
}

// Stage looks up a stage by name.
func (p *Pipeline) Stage(name string) (build.Stage, bool) {
	for _, s := range p.all() {
		if s.Name() == name {
			return s, true
		}
	}
	return nil, false
}

func (p *Pipeline) all() []build.Stage {
	all := make([]build.Stage, 0, len(p.stages)+len(p.manual)+1)
	if p.clean != nil {
		all = append(all, p.clean)
	}
	all = append(all, p.stages...)
	return append(all, p.manual...)
}

// Run runs the single task name. Recoverable failures are reported through
// the notifier and do not make Run fail.
func (p *Pipeline) Run(ctx context.Context, name string) (StageResult, error) {
	stage, ok := p.Stage(name)
	if !ok {
		return StageResult{Name: name}, fmt.Errorf("unknown task %q (available: %v)", name, p.Names())
	}
	result := p.runStage(ctx, stage)
	return result, p.handler.Handle(ctx, result.Err)
}

// Build cleans the output root and then runs every build stage
// concurrently. A fatal failure cancels the stages still running and is
// returned; recoverable failures are reported and the build carries on.
func (p *Pipeline) Build(ctx context.Context) ([]StageResult, error) {
	results := make([]StageResult, 0, len(p.stages)+1)

	if p.clean != nil {
		result := p.runStage(ctx, p.clean)
		results = append(results, result)
		if err := p.handler.Handle(ctx, result.Err); err != nil {
			return results, err
		}
	}

	stageResults := make([]StageResult, len(p.stages))
	g, gctx := errgroup.WithContext(ctx)
	for i, stage := range p.stages {
		i, stage := i, stage
		g.Go(func() error {
			stageResults[i] = p.runStage(gctx, stage)
			return p.handler.Handle(gctx, stageResults[i].Err)
		})
	}
	err := g.Wait()

	results = append(results, stageResults...)
	return results, err
}

// Watch reruns the routed stages whenever their sources change, until ctx is
// canceled. Failures never stop the watcher. Metrics restart with the watch
// session; the build before it is reported by its own results.
func (p *Pipeline) Watch(ctx context.Context) error {
	p.metrics.Reset()

	if len(p.routes) == 0 {
		<-ctx.Done()
		return nil
	}

	router := watcher.NewStageRouter(p.watchDelay, p.logger, p.routes...)
	router.OnResult = p.watchResult

	fw, err := watcher.NewFileWatcher(0, p.logger)
	if err != nil {
		return err
	}
	defer fw.Stop()

	fw.AddFilter(watcher.NoGitFilter)
	fw.AddFilter(watcher.NoTempFilter)
	fw.AddFilter(watcher.GlobFilter(router.Patterns()...))
	fw.AddHandler(router.Handler(ctx))

	missing, err := fw.WatchRoots(router.Patterns()...)
	if err != nil {
		return fmt.Errorf("failed to watch sources: %w", err)
	}
	for _, dir := range missing {
		p.logger.Warn(ctx, nil, "Source directory does not exist, not watching it", "dir", dir)
	}

	if err := fw.Start(ctx); err != nil {
		return err
	}
	p.logger.Info(ctx, "Watching sources", "dirs", len(fw.WatchList()), "routes", len(p.routes))

	<-ctx.Done()
	router.Stop()
	router.Wait()
	return nil
}

func (p *Pipeline) watchResult(ctx context.Context, name string, took time.Duration, err error) {
	p.metrics.Record(StageResult{Name: name, Duration: took, Err: err})
	if ferr := p.handler.Handle(ctx, err); ferr != nil {
		p.logger.Warn(ctx, ferr, "Rebuild failed, still watching", "stage", name)
	}
}

// Dev builds once and then runs the input watcher alongside runners until
// ctx is canceled or one of them fails.
func (p *Pipeline) Dev(ctx context.Context, runners ...Runner) ([]StageResult, error) {
	results, err := p.Build(ctx)
	if err != nil {
		return results, err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return p.Watch(gctx) })
	for _, runner := range runners {
		runner := runner
		g.Go(func() error { return runner.Start(gctx) })
	}
	return results, g.Wait()
}

func (p *Pipeline) runStage(ctx context.Context, stage build.Stage) StageResult {
	timer := logging.StartOperation(p.logger.With("stage", stage.Name()), stage.Name())
	err := stage.Run(ctx)
	result := StageResult{Name: stage.Name(), Duration: timer.End(ctx), Err: err}
	p.metrics.Record(result)
	return result
}
