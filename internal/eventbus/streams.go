package eventbus

import (
	"fmt"
	"strconv"

	"github.com/nats-io/nats.go"

	"github.com/tracklog/tracklog/internal/notification"
)

const (
	// StreamJournal is the JetStream stream for issue events.
	StreamJournal = "TRACKLOG_JOURNAL"

	// SubjectPrefix is the subject prefix for all issue events.
	SubjectPrefix = "tracklog."
)

// SubjectForEvent returns the NATS subject for ev.
// Format: tracklog.<kind>.<project_id> (e.g. tracklog.issue.updated.1).
func SubjectForEvent(ev notification.Event) string {
	project := "0"
	if ev.Issue != nil {
		project = strconv.FormatInt(ev.Issue.ProjectID, 10)
	}
	return SubjectPrefix + string(ev.Kind) + "." + project
}

// EnsureStreams creates the journal stream if it does not already exist.
func EnsureStreams(js nats.JetStreamContext) error {
	if _, err := js.StreamInfo(StreamJournal); err == nil {
		return nil
	}

	_, err := js.AddStream(&nats.StreamConfig{
		Name:     StreamJournal,
		Subjects: []string{SubjectPrefix + ">"},
		Storage:  nats.FileStorage,
		// Retain last 100000 messages or 256MB, whichever comes first.
		MaxMsgs:  100000,
		MaxBytes: 256 << 20,
	})
	if err != nil {
		return fmt.Errorf("create %s stream: %w", StreamJournal, err)
	}
	return nil
}
