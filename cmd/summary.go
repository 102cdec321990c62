package cmd

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/conneroisu/sitepipe/internal/pipeline"
)

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("170"))
	stageStyle    = lipgloss.NewStyle().Width(12)
	durationStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241")).Width(10).Align(lipgloss.Right)
	okStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	notifiedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Bold(true)
	failedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).PaddingLeft(2)
)

// styleForStatus returns the style of a StageResult status.
func styleForStatus(status string) lipgloss.Style {
	switch status {
	case "ok":
		return okStyle
	case "notified":
		return notifiedStyle
	default:
		return failedStyle
	}
}

// renderSummary formats one line per stage result followed by the error of
// every failed stage.
func renderSummary(results []pipeline.StageResult) string {
	if len(results) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("Build summary"))
	b.WriteByte('\n')

	var total time.Duration
	for _, r := range results {
		total += r.Duration
		status := r.Status()
		b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
			stageStyle.Render(r.Name),
			styleForStatus(status).Width(10).Render(status),
			durationStyle.Render(formatDuration(r.Duration)),
		))
		b.WriteByte('\n')
		if r.Err != nil {
			for _, line := range strings.Split(r.Err.Error(), "\n") {
				b.WriteString(errorStyle.Render(line))
				b.WriteByte('\n')
			}
		}
	}
	fmt.Fprintf(&b, "%d stages in %s\n", len(results), formatDuration(total))
	return b.String()
}

// renderMetrics formats the accumulated per-stage counters of a session.
func renderMetrics(m *pipeline.Metrics) string {
	stages := m.Stages()
	if len(stages) == 0 {
		return ""
	}
	snapshot := m.Snapshot()

	var b strings.Builder
	b.WriteString(titleStyle.Render("Session"))
	b.WriteByte('\n')
	for _, name := range stages {
		s := snapshot[name]
		fmt.Fprintf(&b, "%s runs=%d notified=%d failed=%d avg=%s\n",
			stageStyle.Render(name), s.Runs, s.Notified, s.Failures, formatDuration(s.AverageDuration))
	}
	return b.String()
}

func printSummary(w io.Writer, results []pipeline.StageResult) {
	fmt.Fprint(w, renderSummary(results))
}

func printMetrics(w io.Writer, m *pipeline.Metrics) {
	fmt.Fprint(w, renderMetrics(m))
}

func formatDuration(d time.Duration) string {
	if d < time.Millisecond {
		return d.Round(time.Microsecond).String()
	}
	return d.Round(time.Millisecond).String()
}
