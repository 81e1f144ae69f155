package main

import (
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
	"github.com/muesli/termenv"
)

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15"))

	codeStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("14"))

	winnerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("10"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("8"))
)

// setupOutput applies the color preference to tables and logs.
func setupOutput(g *Globals) {
	if g.NoColor {
		lipgloss.SetColorProfile(termenv.Ascii)
	}
}

// newLogger builds the root logger. format is "text" or "json".
func newLogger(level, format string, noColor bool) (*log.Logger, error) {
	lvl, err := log.ParseLevel(level)
	if err != nil {
		return nil, err
	}

	logger := log.NewWithOptions(os.Stderr, log.Options{
		Level:           lvl,
		ReportTimestamp: true,
		TimeFormat:      "15:04:05.000",
	})
	if format == "json" {
		logger.SetFormatter(log.JSONFormatter)
	}

	styles := log.DefaultStyles()
	styles.Levels[log.ErrorLevel] = lipgloss.NewStyle().
		SetString("ERRO").
		Bold(true).
		Foreground(lipgloss.Color("204"))
	styles.Keys["error"] = lipgloss.NewStyle().Foreground(lipgloss.Color("204"))
	styles.Keys["room"] = lipgloss.NewStyle().Foreground(lipgloss.Color("86"))
	styles.Values["room"] = lipgloss.NewStyle().Bold(true)
	logger.SetStyles(styles)

	if noColor {
		logger.SetColorProfile(termenv.Ascii)
	}
	return logger, nil
}
