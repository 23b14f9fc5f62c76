// Package reportui renders bulk-dispatch reports for the operator CLI,
// either as a static styled summary or an interactive pager.
package reportui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/mizuki-dev/guildgate/internal/domain"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	failStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	detailStyle  = lipgloss.NewStyle().Faint(true)
	helpStyle    = lipgloss.NewStyle().Faint(true).MarginTop(1)
)

// Render returns the non-interactive summary of a report.
func Render(report *domain.DispatchReport) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(fmt.Sprintf("Dispatch %s → guild %s", report.ID, report.GuildID)))
	b.WriteString("\n")
	b.WriteString(fmt.Sprintf("%s  %s\n",
		successStyle.Render(fmt.Sprintf("success: %d", report.SuccessCount)),
		failStyle.Render(fmt.Sprintf("fail: %d", report.FailCount)),
	))
	for _, o := range report.Outcomes {
		b.WriteString(renderOutcome(o))
		b.WriteString("\n")
	}
	return b.String()
}

func renderOutcome(o domain.UserOutcome) string {
	line := fmt.Sprintf("%s  %s", o.UserID, o.Outcome)
	if o.Outcome == domain.OutcomeAdded {
		line = successStyle.Render("✔ " + line)
	} else {
		line = failStyle.Render("✘ " + line)
	}
	if o.Detail != "" {
		line += " " + detailStyle.Render(o.Detail)
	}
	return line
}

const pageSize = 15

type model struct {
	report *domain.DispatchReport
	offset int
}

func (m model) Init() tea.Cmd { return nil }

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			return m, tea.Quit
		case "down", "j":
			if m.offset+pageSize < len(m.report.Outcomes) {
				m.offset++
			}
		case "up", "k":
			if m.offset > 0 {
				m.offset--
			}
		case "pgdown", " ":
			m.offset = min(m.offset+pageSize, max(0, len(m.report.Outcomes)-pageSize))
		case "pgup":
			m.offset = max(0, m.offset-pageSize)
		}
	}
	return m, nil
}

func (m model) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(fmt.Sprintf("Dispatch %s → guild %s", m.report.ID, m.report.GuildID)))
	b.WriteString("\n")
	b.WriteString(fmt.Sprintf("%s  %s\n\n",
		successStyle.Render(fmt.Sprintf("success: %d", m.report.SuccessCount)),
		failStyle.Render(fmt.Sprintf("fail: %d", m.report.FailCount)),
	))

	end := min(m.offset+pageSize, len(m.report.Outcomes))
	for _, o := range m.report.Outcomes[m.offset:end] {
		b.WriteString(renderOutcome(o))
		b.WriteString("\n")
	}
	b.WriteString(helpStyle.Render(fmt.Sprintf("%d-%d of %d  ·  j/k scroll · q quit", m.offset+1, end, len(m.report.Outcomes))))
	return b.String()
}

// Show runs the interactive pager for a report.
func Show(report *domain.DispatchReport) error {
	if len(report.Outcomes) == 0 {
		fmt.Print(Render(report))
		return nil
	}
	_, err := tea.NewProgram(model{report: report}).Run()
	return err
}
