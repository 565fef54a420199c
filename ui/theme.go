package ui

import "github.com/charmbracelet/lipgloss"

// Palette.
var (
	ColorRose    = lipgloss.Color("#FF5A79")
	ColorCoral   = lipgloss.Color("#FF8A65")
	ColorPlum    = lipgloss.Color("#8E44AD")
	ColorSky     = lipgloss.Color("#4FC3F7")
	ColorMint    = lipgloss.Color("#2ECC71")
	ColorSlate   = lipgloss.Color("#7F8C8D")
	ColorWarning = lipgloss.Color("#F4D03F")
	ColorError   = lipgloss.Color("#E74C3C")
)

// Styles are the shared lipgloss styles of every command.
var Styles = struct {
	Title     lipgloss.Style
	Subtitle  lipgloss.Style
	Bold      lipgloss.Style
	Muted     lipgloss.Style
	Success   lipgloss.Style
	Warning   lipgloss.Style
	Error     lipgloss.Style
	Highlight lipgloss.Style

	Unread lipgloss.Style
	Typing lipgloss.Style
	Online lipgloss.Style

	Mine   lipgloss.Style
	Theirs lipgloss.Style

	Box lipgloss.Style
}{
	Title:     lipgloss.NewStyle().Bold(true).Foreground(ColorRose),
	Subtitle:  lipgloss.NewStyle().Foreground(ColorCoral),
	Bold:      lipgloss.NewStyle().Bold(true),
	Muted:     lipgloss.NewStyle().Foreground(ColorSlate),
	Success:   lipgloss.NewStyle().Foreground(ColorMint),
	Warning:   lipgloss.NewStyle().Foreground(ColorWarning),
	Error:     lipgloss.NewStyle().Foreground(ColorError),
	Highlight: lipgloss.NewStyle().Foreground(ColorRose).Bold(true),

	Unread: lipgloss.NewStyle().Bold(true).Foreground(ColorRose),
	Typing: lipgloss.NewStyle().Italic(true).Foreground(ColorPlum),
	Online: lipgloss.NewStyle().Foreground(ColorMint),

	Mine:   lipgloss.NewStyle().Foreground(ColorSky),
	Theirs: lipgloss.NewStyle().Foreground(ColorCoral),

	Box: lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorPlum).
		Padding(0, 1),
}

// Status glyphs shown next to the current user's messages.
const (
	glyphSending   = "○"
	glyphSent      = "✓"
	glyphDelivered = "✓✓"
	glyphSeen      = "👁"
	glyphOnline    = "●"
)
