// Package ui renders live transfer progress in the terminal with Bubble Tea.
package ui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/adamwoolhether/httpstream/client"
)

const barWidth = 40

// Transfer is one download shown by the view. Events is usually a
// download stream's Events channel.
type Transfer struct {
	Name   string
	Events <-chan client.Event[string]
}

// Result is the final state of a transfer.
type Result struct {
	Name     string
	Location string
	Err      error
}

type keyMap struct {
	Quit key.Binding
}

func defaultKeyMap() keyMap {
	return keyMap{
		Quit: key.NewBinding(
			key.WithKeys("ctrl+c", "q"),
			key.WithHelp("q", "cancel all and quit"),
		),
	}
}

type styles struct {
	title   lipgloss.Style
	name    lipgloss.Style
	success lipgloss.Style
	failure lipgloss.Style
	help    lipgloss.Style
}

func defaultStyles() styles {
	return styles{
		title:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7aa2f7")),
		name:    lipgloss.NewStyle().Width(24).Foreground(lipgloss.Color("#c0caf5")),
		success: lipgloss.NewStyle().Foreground(lipgloss.Color("#9ece6a")),
		failure: lipgloss.NewStyle().Foreground(lipgloss.Color("#f7768e")),
		help:    lipgloss.NewStyle().Foreground(lipgloss.Color("#565f89")),
	}
}

type row struct {
	name     string
	events   <-chan client.Event[string]
	fraction float64
	done     bool
	location string
	err      error
}

// eventMsg carries one stream event for row index.
type eventMsg struct {
	index int
	event client.Event[string]
}

// Model is the Bubble Tea model for a set of transfers.
type Model struct {
	rows      []row
	bar       progress.Model
	keys      keyMap
	styles    styles
	cancel    func()
	cancelled bool
}

// New returns a model watching transfers. cancel is invoked when the user
// quits early.
func New(transfers []Transfer, cancel func()) Model {
	rows := make([]row, len(transfers))
	for i, t := range transfers {
		rows[i] = row{name: t.Name, events: t.Events}
	}

	return Model{
		rows:   rows,
		bar:    progress.New(progress.WithDefaultGradient(), progress.WithWidth(barWidth)),
		keys:   defaultKeyMap(),
		styles: defaultStyles(),
		cancel: cancel,
	}
}

func (m Model) Init() tea.Cmd {
	cmds := make([]tea.Cmd, 0, len(m.rows))
	for i := range m.rows {
		cmds = append(cmds, next(i, m.rows[i].events))
	}

	return tea.Batch(cmds...)
}

// next waits for the following event of one stream.
func next(index int, events <-chan client.Event[string]) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-events
		if !ok {
			return nil
		}
		return eventMsg{index: index, event: ev}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if key.Matches(msg, m.keys.Quit) {
			if !m.cancelled && m.cancel != nil {
				m.cancel()
			}
			m.cancelled = true
			return m, tea.Quit
		}

	case eventMsg:
		r := &m.rows[msg.index]
		switch msg.event.Kind {
		case client.KindProgress:
			r.fraction = msg.event.Fraction
			return m, next(msg.index, r.events)
		case client.KindResponse:
			r.fraction, r.done, r.location = 1, true, msg.event.Payload
		case client.KindFailure:
			r.done, r.err = true, msg.event.Err
		}

		if m.finished() {
			return m, tea.Quit
		}
	}

	return m, nil
}

func (m Model) finished() bool {
	for _, r := range m.rows {
		if !r.done {
			return false
		}
	}
	return true
}

func (m Model) View() string {
	var b strings.Builder

	b.WriteString(m.styles.title.Render("httpstream"))
	b.WriteString("\n\n")

	for _, r := range m.rows {
		b.WriteString(m.styles.name.Render(truncate(r.name, 22)))
		switch {
		case r.err != nil:
			b.WriteString(m.styles.failure.Render("failed: " + r.err.Error()))
		case r.done:
			b.WriteString(m.bar.ViewAs(1))
			b.WriteString(" ")
			b.WriteString(m.styles.success.Render(r.location))
		default:
			b.WriteString(m.bar.ViewAs(r.fraction))
			fmt.Fprintf(&b, " %3.0f%%", r.fraction*100)
		}
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(m.styles.help.Render(m.keys.Quit.Help().Key + ": " + m.keys.Quit.Help().Desc))
	b.WriteString("\n")

	return b.String()
}

// Results reports every transfer's outcome. Unfinished transfers carry
// context.Canceled.
func (m Model) Results() []Result {
	out := make([]Result, len(m.rows))
	for i, r := range m.rows {
		out[i] = Result{Name: r.name, Location: r.location, Err: r.err}
		if !r.done {
			out[i].Err = context.Canceled
		}
	}
	return out
}

// Run shows the transfers until all finish, the user quits or ctx ends.
func Run(ctx context.Context, transfers []Transfer, cancel func(), opts ...tea.ProgramOption) ([]Result, error) {
	p := tea.NewProgram(New(transfers, cancel), append([]tea.ProgramOption{tea.WithContext(ctx)}, opts...)...)

	final, err := p.Run()
	if err != nil {
		if cancel != nil {
			cancel()
		}
		return nil, fmt.Errorf("running ui: %w", err)
	}

	return final.(Model).Results(), nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
