package monitor

import (
	"context"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Big0290/memory-context-manager-v2/internal/registry"
)

var (
	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("0")).
			Background(lipgloss.Color("51")).
			Bold(true).
			Padding(0, 1)

	sectionStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("51")).
			Bold(true).
			MarginTop(1)

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("45"))

	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("231")).
			Bold(true)

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245"))

	healthyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("46")).
			Bold(true)

	warningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("226")).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)

	containerStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("238")).
			Padding(1, 2)

	footerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245")).
			MarginTop(1)

	footerKeyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("51")).
			Bold(true)
)

// Model is the bubbletea model for the source health dashboard.
type Model struct {
	client     *Client
	interval   time.Duration
	health     Health
	sources    []registry.Info
	lastUpdate time.Time
	err        error
	quitting   bool
}

// NewModel creates a dashboard model polling the daemon at baseURL.
func NewModel(baseURL string, interval time.Duration) Model {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return Model{
		client:   NewClient(baseURL),
		interval: interval,
	}
}

type tickMsg time.Time

type snapshotMsg struct {
	health  Health
	sources []registry.Info
}

type errMsg error

func (m Model) Init() tea.Cmd {
	return tea.Batch(tick(m.interval), fetchSnapshot(m.client))
}

func tick(interval time.Duration) tea.Cmd {
	return tea.Tick(interval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func fetchSnapshot(client *Client) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		health, err := client.Healthz(ctx)
		if err != nil {
			return errMsg(err)
		}
		sources, err := client.Sources(ctx)
		if err != nil {
			return errMsg(err)
		}
		return snapshotMsg{health: health, sources: sources}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		case "r":
			return m, fetchSnapshot(m.client)
		}

	case tickMsg:
		return m, tea.Batch(tick(m.interval), fetchSnapshot(m.client))

	case snapshotMsg:
		m.health = msg.health
		m.sources = msg.sources
		m.lastUpdate = time.Now()
		m.err = nil
		return m, nil

	case errMsg:
		m.err = error(msg)
		return m, nil
	}

	return m, nil
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}
	if m.err != nil {
		return m.renderError()
	}
	return m.renderDashboard()
}

func (m Model) renderError() string {
	var content string
	content += headerStyle.Render(" memctx monitor ") + "\n\n"
	content += errorStyle.Render("cannot reach memctxd") + "\n\n"
	content += dimStyle.Render("URL: ") + valueStyle.Render(m.client.baseURL) + "\n"
	content += dimStyle.Render("Error: ") + errorStyle.Render(m.err.Error()) + "\n\n"
	content += footerKeyStyle.Render("[q]") + footerStyle.Render(" quit  ") +
		footerKeyStyle.Render("[r]") + footerStyle.Render(" retry") + "\n"
	return containerStyle.Render(content)
}

func healthBadge(h registry.HealthStatus) string {
	switch h {
	case registry.Healthy:
		return healthyStyle.Render("healthy  ")
	case registry.Degraded:
		return warningStyle.Render("degraded ")
	default:
		return errorStyle.Render("unhealthy")
	}
}

func statusBadge(h Health) string {
	if h.Status == "ok" {
		return healthyStyle.Render("OK")
	}
	return warningStyle.Render("DEGRADED")
}

func (m Model) renderDashboard() string {
	lastUpdate := "never"
	if !m.lastUpdate.IsZero() {
		lastUpdate = m.lastUpdate.Format("15:04:05")
	}

	var content string
	content += headerStyle.Render(" memctx monitor ") + "\n"
	content += fmt.Sprintf("%s   %s %s   %s\n",
		statusBadge(m.health),
		dimStyle.Render("service:"),
		valueStyle.Render(m.health.Service),
		dimStyle.Render(lastUpdate),
	)

	content += sectionStyle.Render("┃ Sources") + "\n"
	if len(m.sources) == 0 {
		content += dimStyle.Render("  no sources registered") + "\n"
	}
	for _, info := range m.sources {
		content += fmt.Sprintf("  %s %s %s  %s %s  %s %s  %s %s\n",
			healthBadge(info.Health),
			valueStyle.Render(fmt.Sprintf("%-10s", info.ID)),
			dimStyle.Render(fmt.Sprintf("(%s)", info.Type)),
			labelStyle.Render("rel:"),
			valueStyle.Render(fmt.Sprintf("%.2f", info.Reliability)),
			labelStyle.Render("lat:"),
			valueStyle.Render(formatLatency(info.AvgLatency)),
			labelStyle.Render("calls:"),
			valueStyle.Render(fmt.Sprintf("%d", info.TotalCalls)),
		)
	}

	content += sectionStyle.Render("┃ Summary") + "\n"
	content += fmt.Sprintf("  %s %s   %s %s   %s %s\n",
		labelStyle.Render("healthy:"),
		healthyStyle.Render(fmt.Sprintf("%d", m.health.Healthy)),
		labelStyle.Render("degraded:"),
		warningStyle.Render(fmt.Sprintf("%d", m.health.Degraded)),
		labelStyle.Render("unhealthy:"),
		errorStyle.Render(fmt.Sprintf("%d", m.health.Unhealthy)),
	)

	content += "\n" + footerKeyStyle.Render("[q]") + footerStyle.Render(" quit  ") +
		footerKeyStyle.Render("[r]") + footerStyle.Render(" refresh  ") +
		footerStyle.Render(fmt.Sprintf("auto: %v", m.interval))

	return containerStyle.Render(content)
}

func formatLatency(d time.Duration) string {
	if d < time.Millisecond {
		return "<1ms"
	}
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	return fmt.Sprintf("%.1fs", d.Seconds())
}

// Run starts the dashboard and blocks until the user quits.
func Run(baseURL string, interval time.Duration) error {
	p := tea.NewProgram(NewModel(baseURL, interval))
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("running dashboard: %w", err)
	}
	return nil
}
