package ui

import (
	"fmt"
	"os"
	"os/exec"
	"strings"

	"golang.org/x/term"
)

// PagerOptions controls pager use for long output such as `tl journal`.
type PagerOptions struct {
	NoPager bool
}

// shouldUsePager is false for --no-pager, TL_NO_PAGER or a non-TTY stdout.
func shouldUsePager(opts PagerOptions) bool {
	if opts.NoPager || os.Getenv("TL_NO_PAGER") != "" {
		return false
	}
	return IsTerminal()
}

// pagerCommand checks TL_PAGER, then PAGER, and defaults to "less".
func pagerCommand() string {
	if pager := os.Getenv("TL_PAGER"); pager != "" {
		return pager
	}
	if pager := os.Getenv("PAGER"); pager != "" {
		return pager
	}
	return "less"
}

// terminalHeight is 0 when stdout is not a TTY.
func terminalHeight() int {
	fd := int(os.Stdout.Fd())
	if !term.IsTerminal(fd) {
		return 0
	}

	_, height, err := term.GetSize(fd)
	if err != nil {
		return 0
	}
	return height
}

func contentHeight(content string) int {
	if content == "" {
		return 0
	}
	return strings.Count(content, "\n") + 1
}

// ToPager writes content to stdout, through a pager when it would not fit
// on screen.
func ToPager(content string, opts PagerOptions) error {
	if !shouldUsePager(opts) {
		fmt.Print(content)
		return nil
	}
	if h := terminalHeight(); h > 0 && contentHeight(content) <= h-1 {
		fmt.Print(content)
		return nil
	}

	parts := strings.Fields(pagerCommand())
	if len(parts) == 0 {
		fmt.Print(content)
		return nil
	}
	cmd := exec.Command(parts[0], parts[1:]...) // #nosec G204 - pager command is user-configurable by design
	cmd.Stdin = strings.NewReader(content)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Env = os.Environ()
	if os.Getenv("LESS") == "" {
		// -R keeps colors, -F quits when content fits, -X keeps the screen.
		cmd.Env = append(cmd.Env, "LESS=-RFX")
	}
	return cmd.Run()
}
