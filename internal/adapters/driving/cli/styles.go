package cli

import (
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

// Palette shared by every styled command output.
var (
	colorPrimary   = lipgloss.Color("#7C3AED") // Purple
	colorSecondary = lipgloss.Color("#06B6D4") // Cyan
	colorMuted     = lipgloss.Color("#6C7086") // Medium gray
	colorWarning   = lipgloss.Color("#F9E2AF") // Yellow
)

// outputStyles renders result listings. The zero value prints plain text.
type outputStyles struct {
	Rank   lipgloss.Style
	Title  lipgloss.Style
	Source lipgloss.Style
	Score  lipgloss.Style
	Notice lipgloss.Style
}

// stylesFor returns coloured styles when w is an interactive terminal.
func stylesFor(w io.Writer) outputStyles {
	f, ok := w.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return outputStyles{}
	}
	return outputStyles{
		Rank:   lipgloss.NewStyle().Foreground(colorPrimary).Bold(true),
		Title:  lipgloss.NewStyle().Bold(true),
		Source: lipgloss.NewStyle().Foreground(colorSecondary),
		Score:  lipgloss.NewStyle().Foreground(colorMuted),
		Notice: lipgloss.NewStyle().Foreground(colorWarning).Italic(true),
	}
}
