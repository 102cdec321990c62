package watcher

import (
	"context"
	"sync"
	"time"

	"github.com/conneroisu/sitepipe/internal/config"
	"github.com/conneroisu/sitepipe/internal/logging"
)

// Stage is a rebuild the router can trigger.
type Stage interface {
	Name() string
	Run(ctx context.Context) error
}

// Route subscribes a stage to changes of files matching Pattern.
type Route struct {
	Pattern string
	Stage   Stage
}

// ResultFunc receives the outcome of every stage run started by the router.
type ResultFunc func(ctx context.Context, stage string, took time.Duration, err error)

// StageRouter reruns exactly the stages whose pattern matches a changed file.
//
// Triggers for one route are debounced by Delay. Runs of the same stage never
// overlap: changes arriving while a stage runs schedule a single trailing
// rerun once it finishes.
type StageRouter struct {
	Delay    time.Duration
	OnResult ResultFunc
	Logger   logging.Logger

	routes []*routeState
	wg     sync.WaitGroup
}

type routeState struct {
	Route

	mu      sync.Mutex
	timer   *time.Timer
	running bool
	pending bool
}

// NewStageRouter creates a router over routes.
func NewStageRouter(delay time.Duration, logger logging.Logger, routes ...Route) *StageRouter {
	if logger == nil {
		logger = logging.Nop()
	}
	r := &StageRouter{Delay: delay, Logger: logger.WithComponent("router")}
	for _, route := range routes {
		r.routes = append(r.routes, &routeState{Route: route})
	}
	return r
}

// Patterns returns the pattern of every route.
func (r *StageRouter) Patterns() []string {
	patterns := make([]string, 0, len(r.routes))
	for _, route := range r.routes {
		patterns = append(patterns, route.Pattern)
	}
	return patterns
}

// Handler adapts the router to a FileWatcher. Stages run under ctx.
func (r *StageRouter) Handler(ctx context.Context) ChangeHandler {
	return func(events []ChangeEvent) error {
		r.Handle(ctx, events)
		return nil
	}
}

// Handle triggers every route matched by at least one event and returns the
// names of the triggered stages.
func (r *StageRouter) Handle(ctx context.Context, events []ChangeEvent) []string {
	var triggered []string
	for _, route := range r.routes {
		for _, event := range events {
			if config.Match(route.Pattern, event.Path) {
				r.Logger.Debug(ctx, "Source changed",
					"path", event.Path,
					"type", event.Type.String(),
					"stage", route.Stage.Name())
				r.trigger(ctx, route)
				triggered = append(triggered, route.Stage.Name())
				break
			}
		}
	}
	return triggered
}

func (r *StageRouter) trigger(ctx context.Context, route *routeState) {
	if r.Delay <= 0 {
		r.start(ctx, route)
		return
	}

	route.mu.Lock()
	defer route.mu.Unlock()
	if route.timer != nil && route.timer.Stop() {
		// The stopped timer's run is replaced by the new one.
		r.wg.Done()
	}
	r.wg.Add(1)
	route.timer = time.AfterFunc(r.Delay, func() {
		defer r.wg.Done()
		r.start(ctx, route)
	})
}

func (r *StageRouter) start(ctx context.Context, route *routeState) {
	if ctx.Err() != nil {
		return
	}

	route.mu.Lock()
	if route.running {
		route.pending = true
		route.mu.Unlock()
		return
	}
	route.running = true
	route.mu.Unlock()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		for {
			r.run(ctx, route)

			route.mu.Lock()
			if route.pending && ctx.Err() == nil {
				route.pending = false
				route.mu.Unlock()
				continue
			}
			route.pending = false
			route.running = false
			route.mu.Unlock()
			return
		}
	}()
}

func (r *StageRouter) run(ctx context.Context, route *routeState) {
	name := route.Stage.Name()
	timer := logging.StartOperation(r.Logger.With("stage", name), "rebuild")
	err := route.Stage.Run(ctx)
	took := timer.End(ctx)

	if r.OnResult != nil {
		r.OnResult(ctx, name, took, err)
	}
}

// Wait blocks until every scheduled and running stage has finished. Cancel
// the context passed to Handle first to stop trailing reruns.
func (r *StageRouter) Wait() {
	r.wg.Wait()
}

// Stop cancels pending debounce timers.
func (r *StageRouter) Stop() {
	for _, route := range r.routes {
		route.mu.Lock()
		if route.timer != nil && route.timer.Stop() {
			r.wg.Done()
		}
		route.mu.Unlock()
	}
}
