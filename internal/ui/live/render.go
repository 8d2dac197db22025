package live

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/DDownesK12Solutions/PIPSPlus-Sync-UI-sub000/internal/runner"
)

// chromeHeight is the number of rows used by the header, stats line and
// footer around the log viewport.
const chromeHeight = 6

var (
	titleStyle   = lipgloss.NewStyle().Bold(true)
	labelStyle   = lipgloss.NewStyle().Faint(true)
	footerStyle  = lipgloss.NewStyle().Faint(true)
	warningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))

	statusStyles = map[runner.Status]lipgloss.Style{
		runner.StatusRunning:   lipgloss.NewStyle().Foreground(lipgloss.Color("12")),
		runner.StatusSuccess:   lipgloss.NewStyle().Foreground(lipgloss.Color("10")),
		runner.StatusError:     lipgloss.NewStyle().Foreground(lipgloss.Color("9")),
		runner.StatusBlocked:   lipgloss.NewStyle().Foreground(lipgloss.Color("9")),
		runner.StatusCancelled: lipgloss.NewStyle().Foreground(lipgloss.Color("11")),
	}
)

func (m Model) View() string {
	if m.quitting {
		return ""
	}
	var b strings.Builder
	b.WriteString(m.renderHeader())
	b.WriteString("\n")
	b.WriteString(m.logs.View())
	b.WriteString("\n")
	b.WriteString(m.renderStats())
	b.WriteString("\n")
	b.WriteString(m.renderFooter())
	return b.String()
}

func (m Model) renderHeader() string {
	status := string(m.state.Status)
	if status == "" {
		status = string(runner.StatusIdle)
	}
	style, ok := statusStyles[m.state.Status]
	if !ok {
		style = labelStyle
	}
	parts := []string{
		titleStyle.Render("pipsync"),
		labelStyle.Render("client ") + m.state.ClientID,
		labelStyle.Render("status ") + style.Render(status),
	}
	if m.state.CorrelationID != "" {
		parts = append(parts, labelStyle.Render("run ")+m.state.CorrelationID)
	}
	if elapsed := m.elapsed(); elapsed != "" {
		parts = append(parts, labelStyle.Render("elapsed ")+elapsed)
	}
	if m.state.Reconnected {
		parts = append(parts, warningStyle.Render("reconnected"))
	}
	return strings.Join(parts, "  ")
}

// elapsed formats the run duration, frozen at EndTime once terminal.
func (m Model) elapsed() string {
	if m.state.StartTime.IsZero() {
		return ""
	}
	end := m.now
	if !m.state.EndTime.IsZero() {
		end = m.state.EndTime
	}
	d := end.Sub(m.state.StartTime)
	if d < 0 {
		d = 0
	}
	return d.Truncate(time.Second).String()
}

func (m Model) renderStats() string {
	if m.state.Stats == nil {
		return ""
	}
	var parts []string
	if v, ok := m.state.Stats.Sync["RecordCount"]; ok {
		parts = append(parts, fmt.Sprintf("records %v", v))
	}
	if v, ok := m.state.Stats.Rules["RuleMatchCount"]; ok {
		parts = append(parts, fmt.Sprintf("rule matches %v", v))
	}
	if v, ok := m.state.Stats.Rules["RuleErrorCount"]; ok {
		parts = append(parts, fmt.Sprintf("rule errors %v", v))
	}
	if len(parts) == 0 {
		parts = append(parts, fmt.Sprintf("sync keys %d, rule keys %d",
			len(m.state.Stats.Sync), len(m.state.Stats.Rules)))
	}
	return labelStyle.Render("stats ") + strings.Join(parts, "  ")
}

func (m Model) renderFooter() string {
	keys := []string{"q quit"}
	switch m.state.Status {
	case runner.StatusRunning:
		keys = append(keys, "s stop")
	case runner.StatusBlocked:
		keys = append(keys, "j join")
	}
	footer := footerStyle.Render(strings.Join(keys, " · "))
	if m.warning != "" {
		footer += "  " + warningStyle.Render("poll: "+m.warning)
	}
	if m.actions != "" {
		footer += "  " + labelStyle.Render(m.actions)
	}
	return footer
}

// renderLogs formats the log lines for the viewport.
func renderLogs(lines []runner.LogLine) string {
	if len(lines) == 0 {
		return labelStyle.Render("waiting for progress...")
	}
	var b strings.Builder
	for i, line := range lines {
		if i > 0 {
			b.WriteString("\n")
		}
		if line.Timestamp != "" {
			b.WriteString(labelStyle.Render(line.Timestamp))
			b.WriteString(" ")
		}
		if line.Level != "" && line.Level != "info" {
			b.WriteString("[" + line.Level + "] ")
		}
		b.WriteString(line.Message)
	}
	return b.String()
}
