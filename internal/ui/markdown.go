package ui

import (
	"os"

	"github.com/charmbracelet/glamour"
	"github.com/fatih/color"
	"golang.org/x/term"
)

// maxReadableWidth caps the wrap width for journal notes and descriptions.
const maxReadableWidth = 100

// RenderMarkdown renders issue descriptions and journal notes with glamour.
// The raw text is returned when color is off or rendering fails.
func RenderMarkdown(markdown string) string {
	if color.NoColor || markdown == "" {
		return markdown
	}

	wrapWidth := 80
	if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 0 {
		wrapWidth = w
	}
	if wrapWidth > maxReadableWidth {
		wrapWidth = maxReadableWidth
	}

	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(wrapWidth),
	)
	if err != nil {
		return markdown
	}
	rendered, err := renderer.Render(markdown)
	if err != nil {
		return markdown
	}
	return rendered
}
