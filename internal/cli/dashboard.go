package cli

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	app "github.com/skycast-io/skycast/internal"
	"github.com/skycast-io/skycast/internal/telemetry"
)

// Dashboard panel indices.
const (
	panelPipeline = iota
	panelDrops
	panelCircuit
	panelCount
)

// dashboardModel drives an interactive view of a local analytics
// pipeline built from the effective configuration. Keys inject
// simulated tool-call events so the buffer, rate limiter, and circuit
// breaker can be observed against the real endpoint.
type dashboardModel struct {
	collector *telemetry.Collector
	cfg       telemetry.Config

	activePanel int
	width       int
	height      int

	stats    telemetry.Stats
	injected int
}

// tickMsg refreshes the stats snapshot once per second.
type tickMsg time.Time

func tick() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Style definitions.
var (
	dashTitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("230")).
			Background(lipgloss.Color("62")).
			Padding(0, 1)

	dashPanelStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(1, 2)

	dashActivePanelStyle = lipgloss.NewStyle().
				BorderStyle(lipgloss.RoundedBorder()).
				BorderForeground(lipgloss.Color("62")).
				Padding(1, 2)

	dashHeaderStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("62")).
			MarginBottom(1)

	circuitClosedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("46"))
	circuitOpenStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)

	dashHelpStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

func newDashboardModel(collector *telemetry.Collector, cfg telemetry.Config) dashboardModel {
	return dashboardModel{
		collector:   collector,
		cfg:         cfg,
		activePanel: panelPipeline,
		stats:       collector.Stats(),
	}
}

func (m dashboardModel) Init() tea.Cmd {
	return tick()
}

func (m dashboardModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			return m, tea.Quit
		case "tab":
			m.activePanel = (m.activePanel + 1) % panelCount
			return m, nil
		case "shift+tab":
			m.activePanel = (m.activePanel - 1 + panelCount) % panelCount
			return m, nil
		case "s":
			ms := int64(12)
			m.collector.Track("get_forecast", telemetry.StatusSuccess,
				telemetry.Metadata{Service: "open-meteo", ResponseTimeMs: &ms})
			m.injected++
			m.stats = m.collector.Stats()
			return m, nil
		case "e":
			m.collector.Track("get_forecast", telemetry.StatusError,
				telemetry.Metadata{ErrorType: "service_error"})
			m.injected++
			m.stats = m.collector.Stats()
			return m, nil
		case "f":
			go m.collector.Flush()
			return m, nil
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tickMsg:
		m.stats = m.collector.Stats()
		return m, tick()
	}

	return m, nil
}

func (m dashboardModel) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	title := dashTitleStyle.Render(" Skycast Analytics Pipeline ")
	help := dashHelpStyle.Render("s: success event | e: error event | f: flush | tab: switch panel | q: quit")

	pipeline := m.applyPanelStyle(panelPipeline, m.renderPipelinePanel())
	drops := m.applyPanelStyle(panelDrops, m.renderDropsPanel())
	circuit := m.applyPanelStyle(panelCircuit, m.renderCircuitPanel())

	var body string
	if m.width > 110 {
		body = lipgloss.JoinHorizontal(lipgloss.Top, pipeline, drops, circuit)
	} else {
		body = lipgloss.JoinVertical(lipgloss.Left, pipeline, drops, circuit)
	}

	return fmt.Sprintf("%s\n\n%s\n\n%s", title, body, help)
}

func (m dashboardModel) applyPanelStyle(panel int, content string) string {
	style := dashPanelStyle
	if m.activePanel == panel {
		style = dashActivePanelStyle
	}
	return style.Render(content)
}

func (m dashboardModel) renderPipelinePanel() string {
	s := m.stats
	lastFlush := "never"
	if !s.LastFlush.IsZero() {
		lastFlush = s.LastFlush.Format("15:04:05")
	}
	return dashHeaderStyle.Render("Pipeline") + "\n" +
		fmt.Sprintf("level       %s\n", s.Level) +
		fmt.Sprintf("buffered    %d / 100\n", s.Buffered) +
		fmt.Sprintf("tracked     %d\n", s.Tracked) +
		fmt.Sprintf("sent        %d\n", s.Sent) +
		fmt.Sprintf("flushes     %d (%d this hour)\n", s.FlushAttempts, s.FlushesThisHour) +
		fmt.Sprintf("last flush  %s\n", lastFlush) +
		fmt.Sprintf("injected    %d", m.injected)
}

func (m dashboardModel) renderDropsPanel() string {
	s := m.stats
	return dashHeaderStyle.Render("Drops") + "\n" +
		fmt.Sprintf("rate limited  %d\n", s.DroppedRateLimited) +
		fmt.Sprintf("buffer full   %d\n", s.DroppedOverflow) +
		fmt.Sprintf("circuit open  %d\n", s.DroppedCircuitOpen) +
		fmt.Sprintf("send failed   %d", s.DroppedSendFailed)
}

func (m dashboardModel) renderCircuitPanel() string {
	s := m.stats
	state := circuitClosedStyle.Render("CLOSED")
	until := ""
	if s.CircuitOpen {
		state = circuitOpenStyle.Render("OPEN")
		until = fmt.Sprintf("\nopen until    %s", s.CircuitOpenUntil.Format("15:04:05"))
	}
	return dashHeaderStyle.Render("Circuit") + "\n" +
		fmt.Sprintf("state         %s\n", state) +
		fmt.Sprintf("failures      %d%s", s.ConsecutiveSendFailures, until)
}

var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Interactive view of the analytics pipeline",
	Long: `Run a local analytics pipeline against the configured endpoint and
watch it live: buffer occupancy, drop counters, and circuit-breaker
state. Keys inject simulated tool-call events, which makes this a
sandbox for verifying analytics behavior before deploying.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
		cfg, err := telemetry.LoadConfig(app.ResolveBasePath(), appVersion, logger)
		if err != nil {
			return fmt.Errorf("loading configuration: %w", err)
		}

		sender := telemetry.NewHTTPSender(cfg.Endpoint, cfg.Version, nil)
		collector := telemetry.NewCollector(cfg, sender, logger)
		defer collector.Shutdown()

		p := tea.NewProgram(newDashboardModel(collector, cfg), tea.WithAltScreen())
		if _, err := p.Run(); err != nil {
			return fmt.Errorf("running dashboard: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(dashboardCmd)
}
