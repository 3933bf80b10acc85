package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/NimbleMarkets/ntcharts/canvas/runes"
	"github.com/NimbleMarkets/ntcharts/linechart/streamlinechart"

	"github.com/gwillem/cyberdog/pkg/action"
	"github.com/gwillem/cyberdog/pkg/monitor"
	"github.com/gwillem/cyberdog/pkg/motion"
)

type RunCommand struct {
	Hz      int    `long:"hz" default:"30" description:"Display refresh frequency"`
	Remote  string `long:"remote" description:"Also accept remote commands on this address (overrides remote_addr)"`
	LogFile string `long:"log-file" default:"cyberdog.log" description:"Write logs to this file"`
}

const (
	headerHeight = 2 // title + blank line
	legendHeight = 2 // legend row + blank
	footerHeight = 7 // log box height
	maxLogs      = 5 // number of log messages to show
	borderSize   = 2 // chart border
)

// Leg colors - distinct colors for each leg
var limbColors = [motion.Count]string{
	motion.LeftFront:   "196", // red
	motion.RightFront:  "226", // yellow
	motion.LeftBehind:  "46",  // green
	motion.RightBehind: "51",  // cyan
}

// Key bindings
var actionKeys = map[string]action.Kind{
	"w": action.Forward,
	"s": action.Backward,
	"a": action.TurnLeft,
	"d": action.TurnRight,
	"x": action.Sway,
	"h": action.Wave,
	"c": action.Sit,
	"r": action.Rest,
}

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	chartStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("240"))
	statusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	errStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("9")) // bright red
)

type runModel struct {
	mon           *monitor.Monitor
	session       *session
	chart         *streamlinechart.Model
	steps         int
	speed         int
	width         int      // terminal width
	height        int      // terminal height
	logs          []string // last N log messages
	state         monitor.State
	quitting      bool
	lastPositions *motion.Pose // previous positions, to detect movement
}

func (m *runModel) addLog(msg string) {
	m.logs = append(m.logs, msg)
	if len(m.logs) > maxLogs {
		m.logs = m.logs[len(m.logs)-maxLogs:]
	}
}

// hasMovement checks if any leg position has changed from the last state
func (m *runModel) hasMovement(positions motion.Pose) bool {
	return m.lastPositions == nil || *m.lastPositions != positions
}

// Messages from the monitor
type stateMsg monitor.State
type logMsg string

// errMsg reports a failed key action.
type errMsg struct{ err error }

func waitForState(mon *monitor.Monitor) tea.Cmd {
	return func() tea.Msg {
		return stateMsg(<-mon.States())
	}
}

func waitForLog(mon *monitor.Monitor) tea.Cmd {
	return func() tea.Msg {
		return logMsg(<-mon.Logs())
	}
}

// enqueue runs off the UI goroutine since a full queue blocks.
func (m *runModel) enqueue(kind action.Kind) tea.Cmd {
	s, steps, speed := m.session, m.steps, m.speed
	return func() tea.Msg {
		if _, err := s.dog.Enqueue(context.Background(), action.NewCommand(kind, steps, speed)); err != nil {
			return errMsg{fmt.Errorf("enqueue %s: %w", kind, err)}
		}
		return nil
	}
}

func (m *runModel) suspend() tea.Cmd {
	s := m.session
	return func() tea.Msg {
		if err := s.dog.Suspend(context.Background()); err != nil {
			return errMsg{fmt.Errorf("suspend: %w", err)}
		}
		return nil
	}
}

// chartSize calculates the size of the chart based on terminal dimensions
func (m *runModel) chartSize() (width, height int) {
	if m.width == 0 || m.height == 0 {
		return 80, 20 // default size before we know terminal size
	}
	width = m.width - borderSize - 2
	if width < 40 {
		width = 40
	}
	height = m.height - headerHeight - legendHeight - footerHeight - borderSize
	if height < 10 {
		height = 10
	}
	return width, height
}

func (m *runModel) resizeChart() {
	w, h := m.chartSize()
	m.chart.Resize(w, h)
}

func initialRunModel(mon *monitor.Monitor, s *session, steps, speed int) runModel {
	chart := streamlinechart.New(80, 20,
		streamlinechart.WithYRange(0, 180),
	)

	for _, l := range motion.Limbs() {
		style := lipgloss.NewStyle().Foreground(lipgloss.Color(limbColors[l]))
		chart.SetDataSetStyles(l.String(), runes.ThinLineStyle, style)
	}

	return runModel{
		mon:     mon,
		session: s,
		chart:   &chart,
		steps:   steps,
		speed:   speed,
	}
}

func (m runModel) Init() tea.Cmd {
	return tea.Batch(
		waitForState(m.mon),
		waitForLog(m.mon),
	)
}

func (m runModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resizeChart()
		return m, nil

	case tea.KeyMsg:
		key := msg.String()
		switch key {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		case " ":
			return m, m.suspend()
		case "+", "=":
			m.steps = min(m.steps+1, action.MaxSteps)
			return m, nil
		case "-":
			m.steps = max(m.steps-1, action.MinSteps)
			return m, nil
		case "]":
			m.speed = min(m.speed+100, action.MaxSpeed)
			return m, nil
		case "[":
			m.speed = max(m.speed-100, action.MinSpeed)
			return m, nil
		}
		if kind, ok := actionKeys[key]; ok {
			return m, m.enqueue(kind)
		}

	case stateMsg:
		state := monitor.State(msg)
		m.state = state
		// Only update chart if there's movement (freeze when idle)
		if m.hasMovement(state.Positions) {
			for _, l := range motion.Limbs() {
				m.chart.PushDataSet(l.String(), float64(state.Positions.At(l)))
			}
			m.chart.DrawAll()
			pos := state.Positions
			m.lastPositions = &pos
		}
		return m, waitForState(m.mon)

	case logMsg:
		m.addLog(string(msg))
		return m, waitForLog(m.mon)

	case errMsg:
		m.addLog(errStyle.Render(msg.err.Error()))
		return m, nil
	}

	return m, nil
}

func (m runModel) View() string {
	if m.quitting {
		return "Dog stopped.\n"
	}

	var sb strings.Builder

	// Header
	sb.WriteString(titleStyle.Render("CyberDog"))
	sb.WriteString(fmt.Sprintf(" - %s, %d queued", m.state.Executor, m.state.Pending))
	if m.state.Current != nil {
		sb.WriteString(fmt.Sprintf(", playing %s", m.state.Current.Kind))
	}
	sb.WriteString(statusStyle.Render(fmt.Sprintf("  [steps %d, speed %d]", m.steps, m.speed)))
	sb.WriteString("\n\n")

	// Chart
	sb.WriteString(chartStyle.Render(m.chart.View()))
	sb.WriteString("\n")

	// Legend
	sb.WriteString(renderLegend(m.state.Positions))
	sb.WriteString("\n")

	// Log box
	logStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Width(m.width - 4)

	var logLines string
	if len(m.logs) == 0 {
		logLines = statusStyle.Render("w/s/a/d walk and turn, x sway, h wave, c sit, r rest, space stop, +/- steps, [/] speed, q quit")
	} else {
		logLines = strings.Join(m.logs, "\n")
	}
	sb.WriteString(logStyle.Render(logLines))
	sb.WriteString("\n")

	return sb.String()
}

func renderLegend(pos motion.Pose) string {
	var items []string
	for _, l := range motion.Limbs() {
		colorStyle := lipgloss.NewStyle().Foreground(lipgloss.Color(limbColors[l])).Bold(true)
		item := colorStyle.Render("━━") + fmt.Sprintf(" %s %3d°", l, pos.At(l))
		items = append(items, item)
	}
	return strings.Join(items, "  ")
}

func (c *RunCommand) Execute(args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if c.Remote != "" {
		cfg.RemoteAddr = c.Remote
	}

	logger, err := newLogger(c.LogFile)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s, err := openSession(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer s.Close()

	mon := monitor.New(monitor.Config{Dog: s.dog, Hz: c.Hz})
	defer mon.Close()

	go func() {
		if err := mon.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Warnw("monitor stopped", "error", err)
		}
	}()

	p := tea.NewProgram(initialRunModel(mon, s, action.DefaultSteps, action.DefaultSpeed), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error running program: %v\n", err)
		return err
	}
	return nil
}
