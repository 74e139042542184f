// Package timeparsing parses the date expressions accepted by date fields.
//
// Parsing is layered, first match wins:
//  1. Absolute date (2009-12-31)
//  2. Compact offset (+2w, -1d, 3m)
//  3. Natural language (tomorrow, next friday) via olebedev/when
package timeparsing

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"

	"github.com/tracklog/tracklog/internal/types"
)

// compactOffsetRe matches [+-]?(\d+)([dwmy]). Hours are meaningless for a
// calendar date so they are not accepted here.
var compactOffsetRe = regexp.MustCompile(`^([+-]?)(\d+)([dwmy])$`)

var parser = newParser()

func newParser() *when.Parser {
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	return w
}

// ParseCompactOffset applies a compact offset such as "+2w" to now.
func ParseCompactOffset(s string, now time.Time) (time.Time, error) {
	m := compactOffsetRe.FindStringSubmatch(s)
	if m == nil {
		return time.Time{}, fmt.Errorf("not a compact offset: %q", s)
	}
	n, err := strconv.Atoi(m[2])
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid offset amount: %q", m[2])
	}
	if m[1] == "-" {
		n = -n
	}
	switch m[3] {
	case "d":
		return now.AddDate(0, 0, n), nil
	case "w":
		return now.AddDate(0, 0, 7*n), nil
	case "m":
		return now.AddDate(0, n, 0), nil
	default:
		return now.AddDate(n, 0, 0), nil
	}
}

// IsCompactOffset returns true if s matches compact offset syntax.
func IsCompactOffset(s string) bool {
	return compactOffsetRe.MatchString(s)
}

// ParseNaturalLanguage resolves an English expression relative to now.
func ParseNaturalLanguage(s string, now time.Time) (time.Time, error) {
	r, err := parser.Parse(s, now)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse %q: %w", s, err)
	}
	if r == nil {
		return time.Time{}, fmt.Errorf("no date found in %q", s)
	}
	return r.Time, nil
}

// ParseDate resolves a date field value. Blank input is an error; callers
// treat blank as "clear the field" before getting here.
func ParseDate(s string, now time.Time) (types.Date, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return types.Date{}, fmt.Errorf("empty date")
	}
	if d, err := types.ParseDate(s); err == nil {
		return d, nil
	}
	if IsCompactOffset(s) {
		t, err := ParseCompactOffset(s, now)
		if err != nil {
			return types.Date{}, err
		}
		return types.DateOf(t), nil
	}
	// Anything that looks like a numeric date but failed above is a typo,
	// not an English phrase.
	if strings.ContainsAny(s[:1], "0123456789") {
		return types.Date{}, fmt.Errorf("invalid date %q: expected YYYY-MM-DD", s)
	}
	t, err := ParseNaturalLanguage(s, now)
	if err != nil {
		return types.Date{}, err
	}
	return types.DateOf(t), nil
}

// ParseClock parses an HH:MM time of day into minutes since midnight.
func ParseClock(s string) (int, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("invalid time %q: expected HH:MM", s)
	}
	return t.Hour()*60 + t.Minute(), nil
}
