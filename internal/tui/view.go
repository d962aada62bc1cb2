package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"github.com/verte-zerg/tuimer/internal/countdown"
)

const (
	defaultCardWidth = 48
	maxCardWidth     = 72
	labelWidth       = 14
)

var (
	labelStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#B0B0B0"))
	timeStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#F0F0F0")).Bold(true)
	alarmStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF4D4F")).Bold(true)
	stateStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#8C8C8C"))
	footerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#6E6E6E"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF4D4F"))
	cardStyle   = lipgloss.NewStyle().
			Padding(0, 1).
			Border(lipgloss.RoundedBorder(), true).
			BorderForeground(lipgloss.Color("#4A4A4A"))
	selectedCardStyle = cardStyle.BorderForeground(lipgloss.Color("#C89A3A"))
	bigTimeStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("#C89A3A"))
)

// View implements tea.Model.
func (m *Model) View() string {
	if t := m.expandedTimer(); t != nil {
		return m.renderExpanded(t.State())
	}

	var b strings.Builder
	if len(m.timers) == 0 {
		b.WriteString(stateStyle.Render("No timers. Press a to add one."))
		b.WriteString("\n")
	}
	width := m.cardWidth()
	for i, t := range m.timers {
		b.WriteString(m.renderCard(t.State(), i == m.selected, width))
		b.WriteString("\n")
	}
	if m.adding {
		b.WriteString(m.input.View())
		b.WriteString("\n")
		if m.inputErr != "" {
			b.WriteString(errorStyle.Render(m.inputErr))
			b.WriteString("\n")
		}
	}
	b.WriteString(m.renderFooter())
	return b.String()
}

func (m *Model) cardWidth() int {
	if m.width <= 0 {
		return defaultCardWidth
	}
	w := m.width - 4
	if w > maxCardWidth {
		w = maxCardWidth
	}
	if w < labelWidth+12 {
		w = labelWidth + 12
	}
	return w
}

func (m *Model) renderCard(st countdown.State, selected bool, width int) string {
	label := runewidth.Truncate(st.Label, labelWidth, "…")
	label = runewidth.FillRight(label, labelWidth)
	clock := timeStyle.Render(fmt.Sprintf("%6s", countdown.FormatTime(st.RemainingSeconds)))
	if st.Alarming {
		clock = alarmStyle.Render(fmt.Sprintf("%6s", countdown.FormatTime(st.RemainingSeconds)))
	}
	header := fmt.Sprintf("%s %s  %s", labelStyle.Render(label), clock, renderState(st))

	barWidth := width - 4
	if barWidth < 1 {
		barWidth = 1
	}
	m.bar.Width = barWidth
	body := header + "\n" + m.bar.ViewAs(fraction(st))

	style := cardStyle
	if selected {
		style = selectedCardStyle
	}
	return style.Width(width).Render(body)
}

func (m *Model) renderExpanded(st countdown.State) string {
	big := bigTimeStyle.Render(bigText(countdown.FormatTime(st.RemainingSeconds)))
	if st.Alarming {
		big = alarmStyle.Render(bigText(countdown.FormatTime(st.RemainingSeconds)))
	}
	lines := []string{
		labelStyle.Render(st.Label),
		"",
		big,
		"",
		timeStyle.Render(fmt.Sprintf("Time: %d seconds", st.RemainingSeconds)),
		renderState(st),
		"",
		footerStyle.Render("esc/f collapse · " + m.help.ShortHelpView(m.keys.ShortHelp())),
	}
	content := lipgloss.JoinVertical(lipgloss.Center, lines...)
	if m.width == 0 || m.height == 0 {
		return content
	}
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, content)
}

func (m *Model) renderFooter() string {
	m.keys.Toggle.SetHelp("space", "start")
	if t := m.current(); t != nil && t.State().Running {
		m.keys.Toggle.SetHelp("space", "pause")
	}
	segments := []string{}
	if m.status != "" {
		segments = append(segments, alarmStyle.Render(m.status))
	}
	segments = append(segments, m.help.View(m.keys))
	return footerStyle.Render(strings.Join(segments, "\n"))
}

func renderState(st countdown.State) string {
	switch {
	case st.Alarming:
		return alarmStyle.Render("ALARM")
	case st.Running:
		return stateStyle.Render("running")
	case st.RemainingSeconds == 0:
		return stateStyle.Render("done")
	case st.RemainingSeconds < st.InitialSeconds:
		return stateStyle.Render("paused")
	default:
		return stateStyle.Render("ready")
	}
}

func fraction(st countdown.State) float64 {
	if st.InitialSeconds <= 0 {
		return 0
	}
	f := float64(st.RemainingSeconds) / float64(st.InitialSeconds)
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
