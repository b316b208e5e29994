package tui

import (
	"context"
	"fmt"
	"iter"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/ormasoftchile/gcloud-commander/pkg/steps"
	"github.com/ormasoftchile/gcloud-commander/pkg/stream"
)

// --- Tea messages ---

// eventMsg carries the next event of the run; ok is false once the event
// channel is closed.
type eventMsg struct {
	ev stream.Event
	ok bool
}

// summaryMsg delivers the summary of step idx.
type summaryMsg struct {
	idx  int
	text string
	err  error
}

type summaryState int

const (
	summaryNone summaryState = iota
	summaryPending
	summaryDone
	summaryFailed
)

type stepView struct {
	step    steps.Step
	failed  bool
	summary string
	state   summaryState
}

// Model is the top-level Bubble Tea model for an interactive run.
type Model struct {
	title     string
	ctx       context.Context
	events    <-chan stream.Event
	summarize SummaryFunc
	spinner   spinner.Model

	steps    []stepView
	selected int
	follow   bool

	done      bool
	failure   string
	startTime time.Time
	elapsed   time.Duration

	width  int
	height int
}

// NewModel returns a model that renders events as they arrive. summarize may
// be nil to disable summaries.
func NewModel(ctx context.Context, title string, events <-chan stream.Event, summarize SummaryFunc) Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = spinnerStyle
	return Model{
		title:     title,
		ctx:       ctx,
		events:    events,
		summarize: summarize,
		spinner:   sp,
		follow:    true,
		startTime: time.Now(),
		width:     100,
		height:    30,
	}
}

// Run shows events in an interactive Bubble Tea program. Quitting early
// stops consuming events. It returns a *RunError when the run failed.
func Run(ctx context.Context, title string, events iter.Seq[stream.Event], summarize SummaryFunc) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	ch := make(chan stream.Event)
	go func() {
		defer close(ch)
		for ev := range events {
			select {
			case ch <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()

	p := tea.NewProgram(NewModel(ctx, title, ch, summarize), tea.WithAltScreen(), tea.WithContext(ctx))
	final, err := p.Run()
	if err != nil {
		return err
	}
	if m, ok := final.(Model); ok && m.failure != "" {
		return &RunError{Message: m.failure}
	}
	return nil
}

// Init starts the spinner and waits for the first event.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.waitForEvent())
}

func (m Model) waitForEvent() tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-m.events
		return eventMsg{ev: ev, ok: ok}
	}
}

func (m Model) requestSummary(idx int, log string) tea.Cmd {
	if m.summarize == nil {
		return nil
	}
	return func() tea.Msg {
		text, err := m.summarize(m.ctx, log)
		return summaryMsg{idx: idx, text: text, err: err}
	}
}

// Update processes messages and returns the updated model and any commands.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case spinner.TickMsg:
		if m.done {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case eventMsg:
		return m.handleEvent(msg)

	case summaryMsg:
		if msg.idx >= 0 && msg.idx < len(m.steps) {
			sv := &m.steps[msg.idx]
			if msg.err != nil || strings.TrimSpace(msg.text) == "" {
				sv.state = summaryFailed
				sv.summary = FailedSummary
			} else {
				sv.state = summaryDone
				sv.summary = msg.text
			}
		}
		return m, nil
	}
	return m, nil
}

func (m Model) handleEvent(msg eventMsg) (tea.Model, tea.Cmd) {
	if !msg.ok {
		if !m.done {
			m.done = true
			m.failure = "Stream ended before the run finished."
			m.elapsed = time.Since(m.startTime)
		}
		return m, nil
	}

	switch msg.ev.Type {
	case stream.TypeStep:
		step, _ := msg.ev.Step()
		sv := stepView{step: step, failed: strings.Contains(step.Log, steps.FailureMarker)}
		if m.summarize != nil {
			sv.state = summaryPending
		}
		m.steps = append(m.steps, sv)
		idx := len(m.steps) - 1
		if m.follow {
			m.selected = idx
		}
		return m, tea.Batch(m.requestSummary(idx, step.Log), m.waitForEvent())
	case stream.TypeError:
		m.done = true
		m.failure = msg.ev.Message()
	case stream.TypeEnd:
		m.done = true
	}
	m.elapsed = time.Since(m.startTime)
	return m, m.waitForEvent()
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, keys.Quit):
		return m, tea.Quit
	case key.Matches(msg, keys.Up):
		if m.selected > 0 {
			m.selected--
			m.follow = false
		}
	case key.Matches(msg, keys.Down):
		if m.selected < len(m.steps)-1 {
			m.selected++
		}
		m.follow = m.selected == len(m.steps)-1
	case key.Matches(msg, keys.Follow):
		m.follow = true
		if len(m.steps) > 0 {
			m.selected = len(m.steps) - 1
		}
	}
	return m, nil
}

// View renders the header, the step list and the selected step.
func (m Model) View() string {
	var b strings.Builder
	b.WriteString(m.renderHeader() + "\n\n")

	for i, sv := range m.steps {
		glyph, style := GlyphPassed, stepPassed
		if sv.failed {
			glyph, style = GlyphFailed, stepFailed
		}
		line := fmt.Sprintf(" %s %d. %s", glyph, i+1, sv.step.Title)
		if i == m.selected {
			line = stepSelected.Render(line + " ◂")
		} else {
			line = style.Render(line)
		}
		b.WriteString(line + "\n")
	}
	if !m.done {
		b.WriteString(" " + m.spinner.View() + stepNormal.Render(" running…") + "\n")
	}

	if len(m.steps) > 0 {
		b.WriteString("\n" + m.renderDetail(m.steps[m.selected]) + "\n")
	}

	switch {
	case m.failure != "":
		b.WriteString("\n" + errorStyle.Render(GlyphFailed+" "+m.failure) + "\n")
	case m.done:
		b.WriteString("\n" + doneStyle.Render(fmt.Sprintf("%s Execution finished in %s.", GlyphPassed, m.elapsed.Round(time.Millisecond))) + "\n")
	}
	b.WriteString("\n" + keys.help())
	return b.String()
}

func (m Model) renderHeader() string {
	status := "running"
	if m.done {
		status = "done"
		if m.failure != "" {
			status = "failed"
		}
	}
	return headerStyle.Render("GCloud Commander · "+m.title) + dimStyle.Render(" ["+status+"]")
}

// maxLogLines bounds how much of a step log the detail panel shows.
const maxLogLines = 15

func (m Model) renderDetail(sv stepView) string {
	width := m.width - 4
	if width < 20 {
		width = 20
	}

	lines := strings.Split(sv.step.Log, "\n")
	if len(lines) > maxLogLines {
		lines = append([]string{dimStyle.Render(fmt.Sprintf("… %d earlier lines", len(lines)-maxLogLines))}, lines[len(lines)-maxLogLines:]...)
	}
	for i, l := range lines {
		if strings.HasPrefix(l, steps.StderrPrefix) {
			lines[i] = stderrStyle.Render(l)
		} else {
			lines[i] = logStyle.Render(l)
		}
	}

	parts := []string{panelTitle.Render(sv.step.Title), strings.Join(lines, "\n")}
	switch sv.state {
	case summaryPending:
		parts = append(parts, dimStyle.Render(GlyphSummary+" summarizing…"))
	case summaryDone:
		parts = append(parts, panelTitle.Render(GlyphSummary+" Summary"), renderMarkdown(sv.summary, width-4))
	case summaryFailed:
		parts = append(parts, errorStyle.Render(GlyphSummary+" "+sv.summary))
	}
	return panelBorder.Width(width).Render(lipgloss.JoinVertical(lipgloss.Left, parts...))
}
