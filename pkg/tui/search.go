// Package tui renders a live per-host progress table while a search runs.
package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"github.com/liliang-cn/logparser/pkg/search"
)

var (
	headerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#7D56F4")).Bold(true)
	borderStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("62"))
	doneStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#04B575"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF5F87"))
	detailStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))
)

// HostStatusMsg updates the row of one host.
type HostStatusMsg struct {
	Host      string
	Stage     search.Stage
	Files     int
	FilesRead int
	Matches   int
	Err       error
}

// StatusFromProgress converts a search progress update into a message.
func StatusFromProgress(p search.Progress) HostStatusMsg {
	return HostStatusMsg{
		Host:      p.Host,
		Stage:     p.Stage,
		Files:     p.Files,
		FilesRead: p.FilesRead,
		Matches:   p.Matches,
		Err:       p.Err,
	}
}

// DoneMsg signals that the search is over.
type DoneMsg struct{}

type hostState struct {
	stage     search.Stage
	pending   bool
	files     int
	filesRead int
	matches   int
	err       error
	started   time.Time
	elapsed   time.Duration
}

// SearchModel is the progress table. Rows keep the order of the host list.
type SearchModel struct {
	hosts    []string
	states   map[string]*hostState
	term     string
	execute  bool
	spinner  spinner.Model
	bar      progress.Model
	width    int
	quitting bool
	finished bool
}

// NewSearchModel creates a model for hosts. execute selects whether file
// progress is shown.
func NewSearchModel(hosts []string, term string, execute bool) *SearchModel {
	states := make(map[string]*hostState, len(hosts))
	for _, h := range hosts {
		states[h] = &hostState{pending: true}
	}

	return &SearchModel{
		hosts:   hosts,
		states:  states,
		term:    term,
		execute: execute,
		spinner: spinner.New(spinner.WithSpinner(spinner.Dot)),
		bar: progress.New(
			progress.WithGradient("#7D56F4", "#04B575"),
			progress.WithoutPercentage(),
			progress.WithWidth(colProgress),
		),
		width: 100,
	}
}

// Finished reports whether the model stopped because the search ended, as
// opposed to the user quitting.
func (m *SearchModel) Finished() bool {
	return m.finished
}

func (m *SearchModel) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m *SearchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			m.quitting = true
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case HostStatusMsg:
		state, ok := m.states[msg.Host]
		if !ok {
			return m, nil
		}
		if state.pending {
			state.pending = false
			state.started = time.Now()
		}
		state.stage = msg.Stage
		state.files = msg.Files
		state.filesRead = msg.FilesRead
		state.matches = msg.Matches
		state.err = msg.Err
		if msg.Stage == search.StageDone || msg.Stage == search.StageUnreachable {
			state.elapsed = time.Since(state.started)
		}

	case DoneMsg:
		m.quitting = true
		m.finished = true
		return m, tea.Quit
	}

	return m, nil
}

const (
	colHost     = 20
	colStatus   = 14
	colProgress = 24
	colFiles    = 9
	colMatches  = 9
)

func (m *SearchModel) View() string {
	var b strings.Builder

	b.WriteString(headerStyle.Render("Searching for: " + m.term))
	b.WriteString("\n\n")

	widths := []int{colHost, colStatus, colProgress, colFiles, colMatches}
	b.WriteString(borderStyle.Render(border("┌", "┬", "┐", widths)))
	b.WriteString("\n")
	m.writeRow(&b, widths, "Host", "Status", "Progress", "Files", "Matches")
	b.WriteString(borderStyle.Render(border("├", "┼", "┤", widths)))
	b.WriteString("\n")

	for _, h := range m.hosts {
		state := m.states[h]
		status, bar, files, matches := m.cells(state)
		m.writeRow(&b, widths, truncate(h, colHost), status, bar, files, matches)
	}

	b.WriteString(borderStyle.Render(border("└", "┴", "┘", widths)))
	b.WriteString("\n")

	running, done, failed := m.getSummary()
	b.WriteString(detailStyle.Render(fmt.Sprintf("%d running, %d done, %d unreachable", running, done, failed)))
	b.WriteString("\n")
	if !m.quitting {
		b.WriteString(detailStyle.Render("Press q to quit"))
		b.WriteString("\n")
	}

	return b.String()
}

func (m *SearchModel) cells(state *hostState) (status, bar, files, matches string) {
	files, matches = "-", "-"
	switch {
	case state.pending:
		status = detailStyle.Render("waiting")
	case state.stage == search.StageUnreachable:
		status = errorStyle.Render("x unreachable")
		if state.err != nil {
			bar = truncate(state.err.Error(), colProgress)
		}
		return status, bar, files, matches
	case state.stage == search.StageDone:
		status = doneStyle.Render("* done " + formatDuration(state.elapsed))
	default:
		status = m.spinner.View() + " " + state.stage.String()
	}

	if state.stage >= search.StageReading {
		files = fmt.Sprintf("%d/%d", state.filesRead, state.files)
		if !m.execute {
			files = fmt.Sprintf("%d", state.files)
		}
	}
	if m.execute && state.stage >= search.StageReading {
		percent := 1.0
		if state.files > 0 {
			percent = float64(state.filesRead) / float64(state.files)
		}
		bar = m.bar.ViewAs(percent)
		matches = fmt.Sprintf("%d", state.matches)
	}
	return status, bar, files, matches
}

func (m *SearchModel) writeRow(b *strings.Builder, widths []int, cells ...string) {
	for i, c := range cells {
		b.WriteString(borderStyle.Render("│"))
		b.WriteString(" " + padRight(c, widths[i]) + " ")
	}
	b.WriteString(borderStyle.Render("│"))
	b.WriteString("\n")
}

// getSummary counts hosts in progress, finished and unreachable. Hosts not
// started yet are not counted.
func (m *SearchModel) getSummary() (running, done, failed int) {
	for _, h := range m.hosts {
		state := m.states[h]
		switch {
		case state.pending:
		case state.stage == search.StageUnreachable:
			failed++
		case state.stage == search.StageDone:
			done++
		default:
			running++
		}
	}
	return running, done, failed
}

// GetFinalSummary returns a one-line summary of the run.
func (m *SearchModel) GetFinalSummary() string {
	_, done, failed := m.getSummary()
	matches := 0
	for _, state := range m.states {
		matches += state.matches
	}
	return fmt.Sprintf("%d hosts: %d searched, %d unreachable, %d matching lines", len(m.hosts), done, failed, matches)
}

func border(left, mid, right string, widths []int) string {
	parts := make([]string, len(widths))
	for i, w := range widths {
		parts[i] = strings.Repeat("─", w+2)
	}
	return left + strings.Join(parts, mid) + right
}

func formatDuration(d time.Duration) string {
	if d >= time.Second {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	return fmt.Sprintf("%dms", d.Milliseconds())
}

func truncate(s string, max int) string {
	return runewidth.Truncate(s, max, "...")
}

func padRight(s string, width int) string {
	visibleWidth := runewidth.StringWidth(stripAnsi(s))
	if visibleWidth >= width {
		return s
	}
	return s + strings.Repeat(" ", width-visibleWidth)
}

// stripAnsi removes ANSI escape codes from a string
func stripAnsi(s string) string {
	var result strings.Builder
	inEscape := false
	for _, r := range s {
		if r == '\033' {
			inEscape = true
			continue
		}
		if inEscape {
			if r == 'm' {
				inEscape = false
			}
			continue
		}
		result.WriteRune(r)
	}
	return result.String()
}
