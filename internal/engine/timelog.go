package engine

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/tracklog/tracklog/internal/timeparsing"
	"github.com/tracklog/tracklog/internal/types"
	"github.com/tracklog/tracklog/internal/validation"
)

// logTime records spent time submitted with a mutation. The time entry is
// validated on its own: a rejected entry becomes a warning and never fails
// the issue change it came with. Only storage errors are returned.
func (m *mutation) logTime(issue *types.Issue, tl *TimeLog, out **types.TimeEntry) error {
	if tl == nil {
		return nil
	}
	hours, ok, reason := m.timeLogHours(tl)
	if !ok {
		if reason != "" {
			m.warn("time entry not saved: %s", reason)
		}
		return nil
	}
	if !m.can(issue, types.CapLogTime) {
		m.warn("time entry not saved: %s cannot log time on issue #%d", m.actor, issue.ID)
		return nil
	}

	activityID := tl.ActivityID
	if activityID == 0 {
		if a, ok := m.e.catalog.DefaultActivity(); ok {
			activityID = a.ID
		}
	}
	if _, ok := m.e.catalog.Activity(activityID); !ok {
		m.warn("time entry not saved: activity is not included in the list")
		return nil
	}

	spentOn := types.DateOf(m.now)
	if strings.TrimSpace(tl.SpentOn) != "" {
		d, err := timeparsing.ParseDate(tl.SpentOn, m.now)
		if err != nil {
			m.warn("time entry not saved: spent on is not a valid date")
			return nil
		}
		spentOn = d
	}

	entry := &types.TimeEntry{
		ProjectID:  issue.ProjectID,
		IssueID:    types.Int64Ptr(issue.ID),
		UserID:     m.actor.ID,
		Hours:      hours,
		ActivityID: activityID,
		Comments:   tl.Comments,
		SpentOn:    spentOn,
	}
	if err := m.tx.AddTimeEntry(m.ctx, entry); err != nil {
		return err
	}
	issue.SpentHours = issue.SpentHours.Add(hours)
	*out = entry
	return nil
}

// timeLogHours resolves the logged duration. Blank hours with no clock
// range means nothing was logged, which is not an error.
func (m *mutation) timeLogHours(tl *TimeLog) (decimal.Decimal, bool, string) {
	if strings.TrimSpace(tl.Hours) != "" {
		h, err := validation.ParseHours(tl.Hours)
		if err != nil {
			return decimal.Zero, false, "hours is invalid"
		}
		if !h.IsPositive() {
			return decimal.Zero, false, "hours must be greater than 0"
		}
		return h, true, ""
	}
	if strings.TrimSpace(tl.SpentFrom) == "" && strings.TrimSpace(tl.SpentTo) == "" {
		return decimal.Zero, false, ""
	}
	from, err1 := timeparsing.ParseClock(tl.SpentFrom)
	to, err2 := timeparsing.ParseClock(tl.SpentTo)
	if err1 != nil || err2 != nil {
		return decimal.Zero, false, "spent from and spent to must be HH:MM"
	}
	if to <= from {
		return decimal.Zero, false, "spent to must be after spent from"
	}
	return decimal.NewFromInt(int64(to - from)).Div(decimal.NewFromInt(60)).Round(2), true, ""
}
