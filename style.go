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

	okMark = lipgloss.NewStyle().
		Foreground(lipgloss.Color("#04B575")).
		Render("ok")

	failMark = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF5F87")).
			Bold(true).
			Render("error")

	faint = lipgloss.NewStyle().
		Faint(true).
		Render
)
