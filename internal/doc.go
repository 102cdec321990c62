// Package internal contains the implementation packages of sitepipe.
//
// # Package Organization
//
//   - config: the path table and settings, loaded through viper
//   - build: one stage per asset kind (clean, styles, templates, scripts,
//     img, fonts, svg)
//   - pipeline: the task graph, clean first, then the stages concurrently,
//     then the watcher and dev server
//   - watcher: fsnotify events routed to the stage owning the changed file
//   - server: the dev server over the output root
//   - livereload: the WebSocket hub and browser client of the dev server
//   - errors: the recoverable/fatal error policy
//   - notify: desktop and log notifications of recoverable failures
//   - logging: structured logging over log/slog
//   - version: build information
//   - testutils: fixtures shared by the tests
//
// # Concurrency
//
// Stages write to disjoint destinations and run concurrently during a full
// build. While watching, runs of one stage never overlap; a change that
// arrives mid-run schedules a single rerun.
package internal
