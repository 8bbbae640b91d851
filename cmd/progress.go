package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nextlevelbuilder/jobscout/internal/agent"
	"github.com/nextlevelbuilder/jobscout/internal/pipeline"
	"github.com/nextlevelbuilder/jobscout/pkg/protocol"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("243"))
	runningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
	doneStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("46"))
	failedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
)

type stageState int

const (
	statePending stageState = iota
	stateRunning
	stateRetrying
	stateDone
	stateFailed
)

type stageRow struct {
	spec     agent.Spec
	state    stageState
	attempt  int
	duration time.Duration
}

type eventMsg pipeline.Event

type doneMsg struct {
	report *pipeline.Report
	err    error
}

// progressModel renders one line per stage while a run is in flight.
type progressModel struct {
	spinner  spinner.Model
	url      string
	rows     []stageRow
	started  time.Time
	finished bool
	report   *pipeline.Report
	err      error
}

func newProgressModel(url string, stages []agent.Spec) progressModel {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = runningStyle
	rows := make([]stageRow, len(stages))
	for i, s := range stages {
		rows[i] = stageRow{spec: s}
	}
	return progressModel{spinner: sp, url: url, rows: rows, started: time.Now()}
}

func (m progressModel) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m progressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			return m, tea.Quit
		}
	case eventMsg:
		m.apply(pipeline.Event(msg))
	case doneMsg:
		m.finished = true
		m.report = msg.report
		m.err = msg.err
		return m, tea.Quit
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *progressModel) apply(e pipeline.Event) {
	for i := range m.rows {
		row := &m.rows[i]
		if row.spec.ID != e.Stage {
			continue
		}
		switch e.Type {
		case protocol.StageEventStarted:
			row.state = stateRunning
		case protocol.StageEventRetrying:
			row.state = stateRetrying
			row.attempt = e.Attempt
		case protocol.StageEventCompleted:
			row.state = stateDone
			row.duration = e.Duration
		case protocol.StageEventFailed:
			row.state = stateFailed
			row.duration = e.Duration
		}
		return
	}
}

func (m progressModel) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("jobscout") + " " + dimStyle.Render(m.url) + "\n\n")
	for i, row := range m.rows {
		label := fmt.Sprintf("%d. %s", i+1, row.spec.Name)
		switch row.state {
		case statePending:
			b.WriteString("  " + dimStyle.Render("· "+label))
		case stateRunning:
			b.WriteString("  " + m.spinner.View() + label)
		case stateRetrying:
			b.WriteString("  " + m.spinner.View() + label + runningStyle.Render(fmt.Sprintf(" (attempt %d)", row.attempt)))
		case stateDone:
			b.WriteString("  " + doneStyle.Render("✓ ") + label + dimStyle.Render(" "+row.duration.Round(100*time.Millisecond).String()))
		case stateFailed:
			b.WriteString("  " + failedStyle.Render("✗ "+label))
		}
		if row.spec.UsesTools && row.state != stateDone {
			b.WriteString(dimStyle.Render("  [web]"))
		}
		b.WriteString("\n")
	}
	b.WriteString("\n" + dimStyle.Render(fmt.Sprintf("elapsed %s · q to cancel", time.Since(m.started).Round(time.Second))) + "\n")
	return b.String()
}

// runWithProgress runs the pipeline behind a live progress view on stderr,
// keeping stdout clean for the report.
func runWithProgress(ctx context.Context, orch *pipeline.Orchestrator, profileURL string) (*pipeline.Report, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := tea.NewProgram(newProgressModel(profileURL, orch.Stages()),
		tea.WithOutput(os.Stderr), tea.WithContext(ctx))

	go func() {
		report, err := orch.RunObserved(ctx, profileURL, func(e pipeline.Event) {
			p.Send(eventMsg(e))
		})
		p.Send(doneMsg{report: report, err: err})
	}()

	final, err := p.Run()
	if err != nil && ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if err != nil {
		return nil, fmt.Errorf("progress view: %w", err)
	}
	m := final.(progressModel)
	if !m.finished {
		return nil, context.Canceled
	}
	return m.report, m.err
}
