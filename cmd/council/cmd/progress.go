package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/term"

	"github.com/hugo-lorenzo-mato/llm-council/internal/events"
)

// progressView reports session events while a deliberation runs.
type progressView struct {
	// log is the writer other output must use while the view is active.
	log io.Writer
	// wait blocks until the event channel has closed and the last line is written.
	wait func()
}

// watchProgress reports session events on w until ch closes.
func watchProgress(w io.Writer, ch <-chan events.Event, interactive bool) *progressView {
	if !interactive {
		lw := &lockedWriter{w: w}
		done := make(chan struct{})
		go func() {
			defer close(done)
			printProgress(lw, ch)
		}()
		return &progressView{log: lw, wait: func() { <-done }}
	}

	p := tea.NewProgram(newProgressModel(), tea.WithInput(nil), tea.WithOutput(w))
	forwarded := make(chan struct{})
	go func() {
		defer close(forwarded)
		for e := range ch {
			p.Send(eventMsg{e})
		}
		p.Send(finishedMsg{})
	}()
	exited := make(chan struct{})
	go func() {
		defer close(exited)
		_, _ = p.Run()
	}()
	return &progressView{
		log: programWriter{p: p},
		wait: func() {
			<-forwarded
			<-exited
		},
	}
}

// lockedWriter serializes writes from the progress printer and the logger.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(b []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(b)
}

// programWriter prints each write above the spinner. Writes after the
// program has exited are dropped.
type programWriter struct {
	p *tea.Program
}

func (w programWriter) Write(b []byte) (int, error) {
	w.p.Send(tea.Println(strings.TrimRight(string(b), "\n"))())
	return len(b), nil
}

func printProgress(w io.Writer, ch <-chan events.Event) {
	for e := range ch {
		if line, ok := progressLine(e); ok {
			fmt.Fprintln(w, line)
		}
	}
}

func progressLine(e events.Event) (string, bool) {
	switch ev := e.(type) {
	case events.StageStartedEvent:
		return "▸ " + ev.Stage + "...", true
	case events.StageCompletedEvent:
		return fmt.Sprintf("✓ %s: %d items, %d tokens, %s",
			ev.Stage, ev.Items, ev.Tokens, ev.Duration.Round(time.Millisecond)), true
	case events.SessionFailedEvent:
		return "✗ " + ev.Stage + ": " + ev.Error, true
	}
	return "", false
}

type eventMsg struct{ events.Event }

type finishedMsg struct{}

// progressModel shows a spinner next to the running stage and a line per
// finished one.
type progressModel struct {
	spinner spinner.Model
	stage   string
	lines   []string
	done    bool
}

func newProgressModel() progressModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = stageStyle
	return progressModel{spinner: s}
}

func (m progressModel) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m progressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case eventMsg:
		switch ev := msg.Event.(type) {
		case events.StageStartedEvent:
			m.stage = ev.Stage
		case events.StageCompletedEvent:
			line, _ := progressLine(ev)
			m.lines = append(m.lines, dimStyle.Render(line))
			m.stage = ""
		case events.SessionFailedEvent:
			line, _ := progressLine(ev)
			m.lines = append(m.lines, errorStyle.Render(line))
			m.stage = ""
		}
		return m, nil

	case finishedMsg:
		m.done = true
		m.stage = ""
		return m, tea.Quit

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m progressModel) View() string {
	var b strings.Builder
	for _, l := range m.lines {
		b.WriteString(l)
		b.WriteByte('\n')
	}
	if m.stage != "" && !m.done {
		b.WriteString(m.spinner.View())
		b.WriteString(" " + m.stage + "...\n")
	}
	return b.String()
}

func isTTY(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
