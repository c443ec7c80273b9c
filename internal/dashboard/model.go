// Terminal dashboard over live monitoring snapshots
package dashboard

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"

	"aqua-monitor/internal/telemetry"
)

// Controller is what the dashboard needs from monitor.Controller.
type Controller interface {
	Snapshot() telemetry.MonitoringState
	Targets() []telemetry.SpeciesTarget
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Subscribe() (int, <-chan telemetry.MonitoringState)
	Unsubscribe(id int)
}

// snapshotMsg carries a state replacement from the controller.
type snapshotMsg struct{ telemetry.MonitoringState }

// controlMsg reports the outcome of a start or stop request.
type controlMsg struct {
	action string
	err    error
}

const headerLines = 4

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("14"))
	dimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	errStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	infoStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("12"))
)

type model struct {
	ctx     context.Context
	ctl     Controller
	updates <-chan telemetry.MonitoringState
	targets []telemetry.SpeciesTarget

	table  table.Model
	alerts viewport.Model
	state  telemetry.MonitoringState

	status    string
	statusErr bool
	busy      bool
	wrap      bool
	help      bool
	width     int
	height    int
}

func newModel(ctx context.Context, ctl Controller, updates <-chan telemetry.MonitoringState) model {
	targets := ctl.Targets()
	cols := []table.Column{
		{Title: "Species", Width: 16},
		{Title: "Count", Width: 8},
		{Title: "Threshold", Width: 10},
		{Title: "Status", Width: 8},
	}
	t := table.New(table.WithColumns(cols), table.WithHeight(len(targets)+1))
	m := model{
		ctx:     ctx,
		ctl:     ctl,
		updates: updates,
		targets: targets,
		table:   t,
		alerts:  viewport.New(0, 0),
		wrap:    true,
	}
	m.setState(ctl.Snapshot())
	return m
}

// waitForSnapshot blocks on the subscription and hands the next snapshot to
// Update. A closed channel ends the loop.
func waitForSnapshot(ch <-chan telemetry.MonitoringState) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		s, ok := <-ch
		if !ok {
			return nil
		}
		return snapshotMsg{s}
	}
}

func (m model) control(action string) tea.Cmd {
	ctx, ctl := m.ctx, m.ctl
	return func() tea.Msg {
		var err error
		switch action {
		case "start":
			err = ctl.Start(ctx)
		case "stop":
			err = ctl.Stop(ctx)
		}
		return controlMsg{action: action, err: err}
	}
}

func (m model) Init() tea.Cmd { return waitForSnapshot(m.updates) }

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.table.SetWidth(msg.Width)
		m.alerts.Width = msg.Width
		m.resize()
		m.refreshAlerts()
	case snapshotMsg:
		m.setState(msg.MonitoringState)
		return m, waitForSnapshot(m.updates)
	case controlMsg:
		m.busy = false
		if msg.err != nil {
			m.status = fmt.Sprintf("%s failed: %v", msg.action, msg.err)
			m.statusErr = true
		} else {
			m.status = msg.action + " ok"
			m.statusErr = false
		}
	case tea.KeyMsg:
		if m.help {
			switch msg.String() {
			case "?", "h", "esc":
				m.help = false
			case "q", "ctrl+c":
				return m, tea.Quit
			}
			return m, nil
		}
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "s", "r":
			if m.busy {
				return m, nil
			}
			m.busy = true
			m.status = "starting..."
			m.statusErr = false
			return m, m.control("start")
		case "x":
			if m.busy {
				return m, nil
			}
			m.busy = true
			m.status = "stopping..."
			m.statusErr = false
			return m, m.control("stop")
		case "w":
			m.wrap = !m.wrap
			m.refreshAlerts()
		case "?", "h":
			m.help = true
		case "j", "down":
			m.alerts.ScrollDown(1)
		case "k", "up":
			m.alerts.ScrollUp(1)
		}
	}
	return m, nil
}

func (m *model) setState(s telemetry.MonitoringState) {
	m.state = s
	rows := make([]table.Row, 0, len(m.targets))
	for _, t := range m.targets {
		n := s.SpeciesCounts[t.Name]
		mark := "ok"
		if n < t.Threshold {
			mark = "LOW"
		}
		rows = append(rows, table.Row{t.Name, strconv.Itoa(n), strconv.Itoa(t.Threshold), mark})
	}
	m.table.SetRows(rows)
	m.resize()
	m.refreshAlerts()
}

func (m *model) resize() {
	h := m.height - headerLines - lipgloss.Height(m.table.View()) - 4
	if h < 1 {
		h = 1
	}
	m.alerts.Height = h
}

func (m *model) refreshAlerts() {
	if len(m.state.Alerts) == 0 {
		m.alerts.SetContent(dimStyle.Render("no alerts"))
		return
	}
	lines := make([]string, 0, len(m.state.Alerts))
	for _, a := range m.state.Alerts {
		line := fmt.Sprintf("[%s] %s", a.CreatedAt.Local().Format(time.TimeOnly), a.Message)
		if m.wrap && m.alerts.Width > 0 {
			line = wordwrap.String(line, m.alerts.Width)
		}
		lines = append(lines, alertStyle(a.Kind).Render(line))
	}
	m.alerts.SetContent(strings.Join(lines, "\n"))
	m.alerts.GotoBottom()
}

func statusStyle(st telemetry.ConnectionStatus) lipgloss.Style {
	switch st {
	case telemetry.StatusConnecting:
		return warnStyle
	case telemetry.StatusConnected:
		return okStyle
	case telemetry.StatusError:
		return errStyle
	}
	return dimStyle
}

func alertStyle(k telemetry.AlertKind) lipgloss.Style {
	switch k {
	case telemetry.AlertError:
		return errStyle
	case telemetry.AlertWarning:
		return warnStyle
	}
	return infoStyle
}

func (m model) View() string {
	if m.help {
		return m.renderHelp()
	}
	divider := strings.Repeat("─", max(m.width, 20))
	sections := []string{
		m.renderHeader(),
		divider,
		m.table.View(),
		divider,
		"Alerts:",
		m.alerts.View(),
		divider,
		m.renderBottom(),
	}
	return strings.Join(sections, "\n")
}

func (m model) renderHeader() string {
	st := m.state.ConnectionStatus
	health := telemetry.Summarize(m.state, m.targets)
	healthStyle := okStyle
	if health != telemetry.HealthGood {
		healthStyle = warnStyle
	}
	frame := "-"
	if m.state.CurrentFrame != nil {
		frame = strconv.Itoa(*m.state.CurrentFrame)
	}
	geofence := okStyle.Render("inside")
	if m.state.GeofenceCrossed {
		geofence = errStyle.Render("CROSSED")
	}
	legend := make([]string, 0, len(m.targets))
	for _, t := range m.targets {
		c := lipgloss.NewStyle()
		if t.Color != "" {
			c = c.Foreground(lipgloss.Color(t.Color))
		}
		legend = append(legend, c.Render("■ "+t.Name))
	}
	lines := []string{
		titleStyle.Render("Aqua Monitor") + "  " + statusStyle(st).Render("● "+string(st)),
		fmt.Sprintf("Total fish: %d | Frame: %s | Geofence: %s", m.state.TotalFish, frame, geofence),
		"Health: " + healthStyle.Render(string(health)),
		strings.Join(legend, "  "),
	}
	return strings.Join(lines, "\n")
}

func (m model) renderBottom() string {
	keys := dimStyle.Render("s start | x stop | r retry | w wrap | ? help | q quit")
	if m.status == "" {
		return keys
	}
	style := okStyle
	if m.statusErr {
		style = errStyle
	}
	return style.Render(m.status) + "  " + keys
}

func (m model) renderHelp() string {
	lines := []string{
		"Key Bindings:",
		" s  start analysis",
		" r  retry after a failed connection",
		" x  stop analysis",
		" w  toggle alert wrap",
		" j/k or up/down  scroll alerts",
		" h/? toggle this help view",
		" q  quit",
	}
	return strings.Join(lines, "\n")
}

// Run shows the dashboard until the user quits or ctx is cancelled.
func Run(ctx context.Context, ctl Controller, opts ...tea.ProgramOption) error {
	id, updates := ctl.Subscribe()
	defer ctl.Unsubscribe(id)

	opts = append([]tea.ProgramOption{tea.WithAltScreen(), tea.WithContext(ctx)}, opts...)
	p := tea.NewProgram(newModel(ctx, ctl, updates), opts...)
	_, err := p.Run()
	if err != nil && ctx.Err() != nil {
		return nil
	}
	return err
}
