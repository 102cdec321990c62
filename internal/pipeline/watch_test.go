package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/sitepipe/internal/build"
	errs "github.com/conneroisu/sitepipe/internal/errors"
	"github.com/conneroisu/sitepipe/internal/notify"
)

type countingStage struct {
	name string
	runs atomic.Int32
	fail atomic.Bool
}

func (s *countingStage) Name() string { return s.name }

func (s *countingStage) Run(ctx context.Context) error {
	s.runs.Add(1)
	if s.fail.Load() {
		return errs.Recoverable(s.name, "SASS", errors.New("Invalid CSS after \"a {\""))
	}
	return nil
}

func startWatch(t *testing.T, p *Pipeline) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Watch(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Error("watcher did not stop")
		}
	})
	// Give the watcher time to subscribe.
	time.Sleep(100 * time.Millisecond)
}

func watchFixture(t *testing.T) (dir string, styles, templates, scripts *countingStage, p *Pipeline, notes *notify.Recorder) {
	t.Helper()
	dir = t.TempDir()
	for _, sub := range []string{"styles/partials", "views/pages", "scripts"} {
		require.NoError(t, os.MkdirAll(filepath.Join(dir, sub), 0755))
	}

	styles = &countingStage{name: build.StageStyles}
	templates = &countingStage{name: build.StageTemplates}
	scripts = &countingStage{name: build.StageScripts}
	notes = &notify.Recorder{}

	glob := func(rel string) string { return filepath.ToSlash(filepath.Join(dir, rel)) }
	p = New(nil, []build.Stage{styles, templates, scripts},
		WithNotifier(notes),
		WithWatchDelay(20*time.Millisecond),
		WithRoute(glob("styles/**/*.scss"), build.StageStyles),
		WithRoute(glob("views/**/*.pug"), build.StageTemplates),
		WithRoute(glob("scripts/*.js"), build.StageScripts),
	)
	return dir, styles, templates, scripts, p, notes
}

func TestWatchTemplateEditRunsOnlyTemplates(t *testing.T) {
	dir, styles, templates, scripts, p, _ := watchFixture(t)
	startWatch(t, p)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "views/pages/index.pug"), []byte("h1 Hi\n"), 0644))

	require.Eventually(t, func() bool { return templates.runs.Load() >= 1 }, 3*time.Second, 10*time.Millisecond)
	time.Sleep(100 * time.Millisecond)
	assert.Zero(t, styles.runs.Load())
	assert.Zero(t, scripts.runs.Load())
}

func TestWatchIgnoresUnroutedFiles(t *testing.T) {
	dir, styles, templates, scripts, p, _ := watchFixture(t)
	startWatch(t, p)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "styles/notes.txt"), []byte("x"), 0644))
	time.Sleep(200 * time.Millisecond)

	assert.Zero(t, styles.runs.Load()+templates.runs.Load()+scripts.runs.Load())
}

func TestWatchSurvivesStyleErrors(t *testing.T) {
	dir, styles, _, _, p, notes := watchFixture(t)
	startWatch(t, p)

	styles.fail.Store(true)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "styles/partials/_a.scss"), []byte("a {"), 0644))
	require.Eventually(t, func() bool { return len(notes.Notifications()) == 1 }, 3*time.Second, 10*time.Millisecond)
	assert.Equal(t, "SASS", notes.Notifications()[0].Title)

	// A later valid edit still rebuilds.
	runs := styles.runs.Load()
	styles.fail.Store(false)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "styles/partials/_a.scss"), []byte("a {}"), 0644))
	require.Eventually(t, func() bool { return styles.runs.Load() > runs }, 3*time.Second, 10*time.Millisecond)

	snap := p.Metrics().Snapshot()[build.StageStyles]
	assert.GreaterOrEqual(t, snap.Notified, int64(1))
}

func TestWatchWithoutRoutesWaitsForCancel(t *testing.T) {
	p := New(nil, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.NoError(t, p.Watch(ctx))
}

func TestWatchStartsFreshSessionMetrics(t *testing.T) {
	styles := &countingStage{name: build.StageStyles}
	p := New(nil, []build.Stage{styles})

	_, err := p.Build(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{build.StageStyles}, p.Metrics().Stages())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, p.Watch(ctx))
	assert.Empty(t, p.Metrics().Stages())
}
