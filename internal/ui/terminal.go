package ui

import (
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/fatih/color"
	"github.com/muesli/termenv"
	"golang.org/x/term"
)

// IsTerminal reports whether stdout is a TTY.
func IsTerminal() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// ShouldUseColor follows the NO_COLOR and CLICOLOR conventions. NO_COLOR
// wins over CLICOLOR_FORCE; otherwise color is used on a TTY.
func ShouldUseColor() bool {
	if _, ok := os.LookupEnv("NO_COLOR"); ok {
		return false
	}
	if os.Getenv("CLICOLOR") == "0" {
		return false
	}
	if f := os.Getenv("CLICOLOR_FORCE"); f != "" && f != "0" {
		return true
	}
	return IsTerminal()
}

// ColorProfile is the profile lipgloss renders with after Configure.
func ColorProfile(useColor bool) termenv.Profile {
	if !useColor {
		return termenv.Ascii
	}
	if p := termenv.EnvColorProfile(); p != termenv.Ascii {
		return p
	}
	// Forced color on a non-TTY: termenv reports Ascii, so pick ANSI256.
	return termenv.ANSI256
}

// Configure applies the color decision to both renderers in use: lipgloss
// for styled output and fatih/color for journal diffs. noColor is the
// --no-color flag.
func Configure(noColor bool) {
	useColor := !noColor && ShouldUseColor()
	lipgloss.SetColorProfile(ColorProfile(useColor))
	color.NoColor = !useColor
}
