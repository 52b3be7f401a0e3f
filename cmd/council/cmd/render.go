package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/glamour/styles"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/hugo-lorenzo-mato/llm-council/internal/core"
	"github.com/hugo-lorenzo-mato/llm-council/internal/service/council"
)

var (
	accentColor = lipgloss.Color("#7C3AED")
	mutedColor  = lipgloss.Color("#6B7280")
	errorColor  = lipgloss.Color("#EF4444")

	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(accentColor)
	stageStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#06B6D4"))
	dimStyle   = lipgloss.NewStyle().Foreground(mutedColor)
	errorStyle = lipgloss.NewStyle().Bold(true).Foreground(errorColor)
)

func styled(color bool, style lipgloss.Style, s string) string {
	if !color {
		return s
	}
	return style.Render(s)
}

type renderOptions struct {
	Color bool
	Width int
}

// renderSession prints the final answer as markdown followed by the score
// and metrics tables.
func renderSession(w io.Writer, sess *core.Session, opts renderOptions) error {
	if opts.Width <= 0 {
		opts.Width = 80
	}

	fmt.Fprintln(w, styled(opts.Color, titleStyle, "Question"))
	fmt.Fprintln(w, sess.Query)
	fmt.Fprintln(w)

	if sess.Stage == core.StageError {
		fmt.Fprintln(w, styled(opts.Color, errorStyle, "Deliberation failed: "+sess.Error))
		return nil
	}
	if !sess.Stage.IsTerminal() {
		p := sess.Progress()
		fmt.Fprintln(w, styled(opts.Color, errorStyle, fmt.Sprintf(
			"Interrupted during %s: %d/%d opinions, %d reviews", p.Stage, p.Opinions, p.Agents, p.Reviews)))
		fmt.Fprintln(w)
	}

	if sess.FinalAnswer != nil {
		fmt.Fprintln(w, styled(opts.Color, titleStyle, "Final answer ("+sess.FinalAnswer.SynthesizerModel+")"))
		md, err := renderMarkdown(sess.FinalAnswer.Content, opts)
		if err != nil {
			return err
		}
		fmt.Fprintln(w, md)
		if len(sess.FinalAnswer.SourcesCited) > 0 {
			fmt.Fprintln(w, styled(opts.Color, dimStyle, "Sources: "+strings.Join(sess.FinalAnswer.SourcesCited, ", ")))
		}
		fmt.Fprintln(w)
	}

	if scores := scoreTable(sess, opts.Color); scores != "" {
		fmt.Fprintln(w, styled(opts.Color, titleStyle, "Peer scores"))
		fmt.Fprintln(w, scores)
		fmt.Fprintln(w)
	}

	fmt.Fprintln(w, styled(opts.Color, titleStyle, "Metrics"))
	fmt.Fprintln(w, metricsTable(sess.Metrics, opts.Color))
	return nil
}

func renderMarkdown(content string, opts renderOptions) (string, error) {
	style := glamour.WithStandardStyle(styles.NoTTYStyle)
	if opts.Color {
		style = glamour.WithAutoStyle()
	}
	r, err := glamour.NewTermRenderer(style, glamour.WithWordWrap(opts.Width))
	if err != nil {
		return "", fmt.Errorf("creating markdown renderer: %w", err)
	}
	out, err := r.Render(content)
	if err != nil {
		return "", fmt.Errorf("rendering answer: %w", err)
	}
	return strings.TrimRight(out, "\n"), nil
}

func newTable(color bool) *table.Table {
	t := table.New().Border(lipgloss.NormalBorder())
	if color {
		t = t.BorderStyle(dimStyle).StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return lipgloss.NewStyle().Bold(true).Padding(0, 1)
			}
			return lipgloss.NewStyle().Padding(0, 1)
		})
	} else {
		t = t.StyleFunc(func(int, int) lipgloss.Style { return lipgloss.NewStyle().Padding(0, 1) })
	}
	return t
}

func scoreTable(sess *core.Session, color bool) string {
	scores := council.MeanScores(sess.Reviews)
	if len(scores) == 0 {
		return ""
	}
	byID := make(map[string]core.Agent, len(sess.Agents))
	for _, a := range sess.Agents {
		byID[a.ID] = a
	}

	t := newTable(color).Headers("Agent", "Name", "Model", "Mean", "Reviews")
	for _, s := range scores {
		a := byID[s.AgentID]
		t.Row(s.AgentID, a.Name, a.Model, fmt.Sprintf("%.1f", s.Mean), fmt.Sprintf("%d", s.Count))
	}
	return t.Render()
}

func metricsTable(m core.SessionMetrics, color bool) string {
	t := newTable(color).Headers("Stage", "Prompt", "Completion", "Total", "Time")
	addRow := func(name string, u *core.StageUsage, l *core.LatencyStats) {
		if u == nil {
			return
		}
		var ms int64
		if l != nil {
			ms = l.TotalDurationMS
		}
		t.Row(name,
			fmt.Sprintf("%d", u.Totals.PromptTokens),
			fmt.Sprintf("%d", u.Totals.CompletionTokens),
			fmt.Sprintf("%d", u.Totals.TotalTokens),
			formatMS(ms))
	}
	addRow("opinions", m.Usage.Opinions, m.Latency.Opinions)
	addRow("review", m.Usage.Review, m.Latency.Review)
	addRow("synthesis", m.Usage.Synthesis, m.Latency.Synthesis)
	t.Row("total",
		fmt.Sprintf("%d", m.Usage.Total.PromptTokens),
		fmt.Sprintf("%d", m.Usage.Total.CompletionTokens),
		fmt.Sprintf("%d", m.Usage.Total.TotalTokens),
		formatMS(m.Latency.EndToEndMS))
	return t.Render()
}

func formatMS(ms int64) string {
	if ms < 1000 {
		return fmt.Sprintf("%dms", ms)
	}
	return fmt.Sprintf("%.1fs", float64(ms)/1000)
}
