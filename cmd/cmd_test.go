package cmd

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/conneroisu/sitepipe/internal/config"
	errs "github.com/conneroisu/sitepipe/internal/errors"
	"github.com/conneroisu/sitepipe/internal/pipeline"
)

func TestCommandsRegistered(t *testing.T) {
	want := []string{
		"build", "clean", "config", "dev", "fonts", "img", "scripts",
		"serve", "styles", "svg", "templates", "version", "watch",
	}
	for _, name := range want {
		cmd, _, err := rootCmd.Find([]string{name})
		require.NoError(t, err, name)
		assert.Equal(t, name, cmd.Name())
	}
}

func TestScriptsHelpNamesModuleScripts(t *testing.T) {
	cmd, _, err := rootCmd.Find([]string{"scripts"})
	require.NoError(t, err)
	assert.Contains(t, cmd.Long, `<script type="module">`)
}

func TestRootRunsDefaultTask(t *testing.T) {
	assert.NotNil(t, rootCmd.RunE)
	for _, flag := range []string{"config", "log-level", "log-format"} {
		assert.NotNil(t, rootCmd.PersistentFlags().Lookup(flag), flag)
	}
}

func TestRenderSummary(t *testing.T) {
	results := []pipeline.StageResult{
		{Name: "clean", Duration: 2 * time.Millisecond},
		{Name: "styles", Duration: 40 * time.Millisecond,
			Err: errs.Recoverable("styles", "SASS", errors.New("expected \"}\""))},
		{Name: "scripts", Duration: time.Second,
			Err: errs.Fatal("scripts", errors.New("could not resolve \"./missing\""))},
	}

	out := renderSummary(results)
	assert.Contains(t, out, "Build summary")
	assert.Contains(t, out, "ok")
	assert.Contains(t, out, "notified")
	assert.Contains(t, out, "failed")
	assert.Contains(t, out, `could not resolve "./missing"`)
	assert.Contains(t, out, "3 stages in 1.042s")

	assert.Empty(t, renderSummary(nil))
}

func TestStyleForStatus(t *testing.T) {
	assert.Equal(t, okStyle, styleForStatus("ok"))
	assert.Equal(t, notifiedStyle, styleForStatus("notified"))
	assert.Equal(t, failedStyle, styleForStatus("failed"))
	assert.Equal(t, lipgloss.Color("196"), failedStyle.GetForeground())
}

func TestRenderMetrics(t *testing.T) {
	m := pipeline.NewMetrics()
	assert.Empty(t, renderMetrics(m))

	m.Record(pipeline.StageResult{Name: "styles", Duration: 10 * time.Millisecond})
	m.Record(pipeline.StageResult{Name: "styles", Duration: 30 * time.Millisecond,
		Err: errs.Recoverable("styles", "SASS", errors.New("bad"))})

	out := renderMetrics(m)
	assert.Contains(t, out, "runs=2 notified=1 failed=0 avg=20ms")
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "1.235s", formatDuration(1234567*time.Microsecond))
	assert.Equal(t, "250µs", formatDuration(250*time.Microsecond))
}

func TestVersionJSON(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, outputVersionJSON(&out))

	var info map[string]interface{}
	require.NoError(t, json.Unmarshal(out.Bytes(), &info))
	assert.Contains(t, info, "version")
	assert.Contains(t, info, "go_version")
}

func TestVersionUnsupportedFormat(t *testing.T) {
	old := versionFormat
	t.Cleanup(func() { versionFormat = old })

	versionFormat = "xml"
	err := runVersionCommand(&cobra.Command{}, nil)
	assert.ErrorContains(t, err, "unsupported format")
}

func TestConfigShowPrintsDefaults(t *testing.T) {
	cmd := &cobra.Command{}
	var out bytes.Buffer
	cmd.SetOut(&out)

	require.NoError(t, runConfigShow(cmd, nil))

	var cfg config.Config
	require.NoError(t, yaml.Unmarshal(out.Bytes(), &cfg))
	assert.Equal(t, config.Default().Paths, cfg.Paths)
}

func TestConfigInit(t *testing.T) {
	dir := t.TempDir()
	oldDir, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(oldDir) })

	cmd := &cobra.Command{}
	cmd.SetOut(&bytes.Buffer{})

	require.NoError(t, runConfigInit(cmd, nil))
	assert.FileExists(t, ".sitepipe.yml")

	err = runConfigInit(cmd, nil)
	assert.ErrorContains(t, err, "already exists")

	configInitForce = true
	t.Cleanup(func() { configInitForce = false })
	assert.NoError(t, runConfigInit(cmd, nil))
}

func TestEnumValue(t *testing.T) {
	v := newEnumValue("info", "debug", "info", "warn", "error")
	assert.Equal(t, "info", v.String())
	assert.Equal(t, "string", v.Type())

	require.NoError(t, v.Set(" DEBUG "))
	assert.Equal(t, "debug", v.String())

	err := v.Set("verbose")
	assert.ErrorContains(t, err, "must be one of debug, info, warn, error")
	assert.Equal(t, "debug", v.String())
}

func TestServerFlags(t *testing.T) {
	for _, name := range []string{"dev", "serve"} {
		cmd, _, err := rootCmd.Find([]string{name})
		require.NoError(t, err)
		assert.NotNil(t, cmd.Flags().Lookup("port"), name)
		assert.NotNil(t, cmd.Flags().Lookup("host"), name)
	}
	assert.NotNil(t, rootCmd.Flags().Lookup("port"))
}
