// Package ui provides terminal styling for the CLI output.
package ui

import (
	"github.com/charmbracelet/lipgloss"
)

var (
	Success = lipgloss.Color("#8BC34A")
	Failure = lipgloss.Color("#e53935")
	Warning = lipgloss.Color("#FFC107")
	Accent  = lipgloss.Color("#2196F3")
	Muted   = lipgloss.Color("#808080")

	passStyle   = lipgloss.NewStyle().Foreground(Success).Bold(true)
	failStyle   = lipgloss.NewStyle().Foreground(Failure).Bold(true)
	warnStyle   = lipgloss.NewStyle().Foreground(Warning)
	accentStyle = lipgloss.NewStyle().Foreground(Accent)
	mutedStyle  = lipgloss.NewStyle().Foreground(Muted)
	headerStyle = lipgloss.NewStyle().Bold(true).Underline(true)
)

func RenderPass(s string) string   { return passStyle.Render(s) }
func RenderFail(s string) string   { return failStyle.Render(s) }
func RenderWarn(s string) string   { return warnStyle.Render(s) }
func RenderAccent(s string) string { return accentStyle.Render(s) }
func RenderMuted(s string) string  { return mutedStyle.Render(s) }
func RenderHeader(s string) string { return headerStyle.Render(s) }

// SyncBadge renders a compact sync state marker for list rows.
func SyncBadge(state string) string {
	switch state {
	case "pending":
		return warnStyle.Render("~")
	case "conflicted":
		return failStyle.Render("!")
	default:
		return passStyle.Render("✓")
	}
}
