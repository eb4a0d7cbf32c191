package ui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/papapumpkin/tempo/internal/knowledge"
	"github.com/papapumpkin/tempo/internal/work"
)

// Semantic color palette.
var (
	colorPrimary = lipgloss.Color("#00BFFF") // headers
	colorAccent  = lipgloss.Color("#FFD700") // warnings, cooling down
	colorSuccess = lipgloss.Color("#00E676") // done, fresh
	colorDanger  = lipgloss.Color("#FF5252") // errors, blocked
	colorMuted   = lipgloss.Color("#8C8C8C") // de-emphasized
	colorBlue    = lipgloss.Color("#5B8DEF") // in progress
)

// Status icons.
const (
	iconDone    = "✓"
	iconFailed  = "✗"
	iconWorking = "◎"
	iconWaiting = "·"
	iconWarn    = "⚠"
	iconRetry   = "↻"
	iconNext    = "▶"
)

var (
	styleHeader  = lipgloss.NewStyle().Foreground(colorPrimary).Bold(true)
	styleSuccess = lipgloss.NewStyle().Foreground(colorSuccess).Bold(true)
	styleWarn    = lipgloss.NewStyle().Foreground(colorAccent).Bold(true)
	styleError   = lipgloss.NewStyle().Foreground(colorDanger).Bold(true)
	styleMuted   = lipgloss.NewStyle().Foreground(colorMuted)
	styleWorking = lipgloss.NewStyle().Foreground(colorBlue)
	styleRef     = lipgloss.NewStyle().Bold(true)
)

// styleBox frames one item in the layer view.
var styleBox = lipgloss.NewStyle().
	Border(lipgloss.RoundedBorder()).
	BorderForeground(colorMuted).
	Padding(0, 1)

func statusStyle(s work.Status) lipgloss.Style {
	switch s {
	case work.StatusDone:
		return styleSuccess
	case work.StatusInProgress:
		return styleWorking
	case work.StatusBlocked:
		return styleError
	default:
		return styleMuted
	}
}

func statusIcon(s work.Status) string {
	switch s {
	case work.StatusDone:
		return iconDone
	case work.StatusInProgress:
		return iconWorking
	case work.StatusBlocked:
		return iconFailed
	default:
		return iconWaiting
	}
}

func freshnessStyle(f knowledge.Freshness) lipgloss.Style {
	switch f {
	case knowledge.Fresh:
		return styleSuccess
	case knowledge.Stale:
		return styleWarn
	case knowledge.Orphaned:
		return styleError
	default:
		return styleMuted
	}
}
