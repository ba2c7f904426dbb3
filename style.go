package main

import "github.com/charmbracelet/lipgloss"

var (
	keyword = lipgloss.NewStyle().
		Foreground(lipgloss.Color("#04B575")).
		Render

	paragraph = lipgloss.NewStyle().
			Width(78).
			Padding(0, 0, 0, 2).
			Render

	headingStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#EE6FF8"))
	labelStyle   = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#909090", Dark: "#626262"})
	okStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("#04B575"))
	badStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF5F87"))
	sectionStyle = lipgloss.NewStyle().PaddingLeft(2)
)

func check(ok bool) string {
	if ok {
		return okStyle.Render("✓")
	}
	return badStyle.Render("✗")
}
