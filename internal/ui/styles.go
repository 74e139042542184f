// Package ui provides terminal styling for tl output.
// Colors adapt to light and dark terminals.
package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	ColorPass   = lipgloss.AdaptiveColor{Light: "#86b300", Dark: "#c2d94c"}
	ColorWarn   = lipgloss.AdaptiveColor{Light: "#f2ae49", Dark: "#ffb454"}
	ColorFail   = lipgloss.AdaptiveColor{Light: "#f07171", Dark: "#f07178"}
	ColorMuted  = lipgloss.AdaptiveColor{Light: "#828c99", Dark: "#6c7680"}
	ColorAccent = lipgloss.AdaptiveColor{Light: "#399ee6", Dark: "#59c2ff"}
)

var (
	PassStyle   = lipgloss.NewStyle().Foreground(ColorPass)
	WarnStyle   = lipgloss.NewStyle().Foreground(ColorWarn)
	FailStyle   = lipgloss.NewStyle().Foreground(ColorFail)
	MutedStyle  = lipgloss.NewStyle().Foreground(ColorMuted)
	AccentStyle = lipgloss.NewStyle().Foreground(ColorAccent)

	// HeaderStyle is used for section headers in `tl show`.
	HeaderStyle = lipgloss.NewStyle().Bold(true).Foreground(ColorAccent)
	// SubjectStyle is the issue subject line.
	SubjectStyle = lipgloss.NewStyle().Bold(true)
	// LabelStyle pads field labels so values line up.
	LabelStyle = lipgloss.NewStyle().Foreground(ColorMuted).Width(16)
)

const (
	IconPass = "✓"
	IconWarn = "⚠"
	IconFail = "✗"
	IconInfo = "ℹ"
)

const (
	TreeLast   = "└─ "
	TreeIndent = "  "
)

const Separator = "──────────────────────────────────────────"

func RenderPass(s string) string   { return PassStyle.Render(s) }
func RenderWarn(s string) string   { return WarnStyle.Render(s) }
func RenderFail(s string) string   { return FailStyle.Render(s) }
func RenderMuted(s string) string  { return MutedStyle.Render(s) }
func RenderAccent(s string) string { return AccentStyle.Render(s) }

// RenderHeader renders a section header in uppercase.
func RenderHeader(s string) string {
	return HeaderStyle.Render(strings.ToUpper(s))
}

// RenderSeparator renders a muted rule.
func RenderSeparator() string {
	return MutedStyle.Render(Separator)
}

// RenderIssueRef renders "#id" in the accent color.
func RenderIssueRef(id int64) string {
	return AccentStyle.Render(fmt.Sprintf("#%d", id))
}

// RenderField renders one "label  value" row.
func RenderField(label, value string) string {
	return LabelStyle.Render(label) + value
}

func RenderPassIcon() string { return PassStyle.Render(IconPass) }
func RenderWarnIcon() string { return WarnStyle.Render(IconWarn) }
func RenderFailIcon() string { return FailStyle.Render(IconFail) }
func RenderInfoIcon() string { return AccentStyle.Render(IconInfo) }
