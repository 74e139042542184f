package notification

import (
	"fmt"
	"strings"

	"github.com/tracklog/tracklog/internal/types"
)

// Message is the human readable form of an event.
type Message struct {
	Subject string
	Text    string
}

// Render formats ev for people: a subject line and a body listing the
// journal details and notes.
func Render(ev Event) Message {
	var subject string
	switch {
	case ev.Issue == nil:
		subject = string(ev.Kind)
	case ev.Kind == KindCreated:
		subject = fmt.Sprintf("Issue #%d created: %s", ev.Issue.ID, truncate(ev.Issue.Subject, 60))
	case ev.Kind == KindDeleted:
		subject = fmt.Sprintf("Issue #%d deleted: %s", ev.Issue.ID, truncate(ev.Issue.Subject, 60))
	default:
		subject = fmt.Sprintf("Issue #%d updated: %s", ev.Issue.ID, truncate(ev.Issue.Subject, 60))
	}

	var body strings.Builder
	if ev.Issue != nil {
		fmt.Fprintf(&body, "Issue #%d has been %s by %s.\n", ev.Issue.ID, verb(ev.Kind), ev.Actor)
	}
	if ev.Journal != nil {
		if len(ev.Journal.Details) > 0 {
			body.WriteString("\n")
		}
		for _, d := range ev.Journal.Details {
			body.WriteString("  * ")
			body.WriteString(DescribeDetail(d))
			body.WriteString("\n")
		}
		if notes := strings.TrimSpace(ev.Journal.Notes); notes != "" {
			body.WriteString("\n")
			body.WriteString(notes)
			body.WriteString("\n")
		}
	}
	return Message{Subject: subject, Text: body.String()}
}

func verb(k Kind) string {
	switch k {
	case KindCreated:
		return "created"
	case KindDeleted:
		return "deleted"
	}
	return "updated"
}

// DescribeDetail renders one journal detail, e.g.
// "priority_id changed from 4 to 7".
func DescribeDetail(d *types.JournalDetail) string {
	if d.Property == types.PropertyAttachment {
		return fmt.Sprintf("File %s added", value(d.Value))
	}
	name := d.PropKey
	if d.Property == types.PropertyCustomField {
		name = "custom field " + name
	}
	switch {
	case d.OldValue == nil:
		return fmt.Sprintf("%s set to %s", name, value(d.Value))
	case d.Value == nil:
		return fmt.Sprintf("%s deleted (%s)", name, value(d.OldValue))
	}
	return fmt.Sprintf("%s changed from %s to %s", name, value(d.OldValue), value(d.Value))
}

func value(v *string) string {
	if v == nil {
		return "none"
	}
	return *v
}

// truncate shortens a string to the specified length with ellipsis.
func truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return "..."
	}
	return string(r[:maxLen-3]) + "..."
}
