package notification

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/tracklog/tracklog/internal/types"
)

// Kind classifies an issue event.
type Kind string

// Event kinds
const (
	KindCreated Kind = "issue.created"
	KindUpdated Kind = "issue.updated"
	KindDeleted Kind = "issue.deleted"
)

// Event is what the mutation core hands to the dispatcher after a commit:
// the issue as persisted, the journal (nil for creations and deletions)
// and the actor.
type Event struct {
	ID         string         `json:"id"`
	Kind       Kind           `json:"kind"`
	Issue      *types.Issue   `json:"issue"`
	Journal    *types.Journal `json:"journal,omitempty"`
	Actor      types.Actor    `json:"actor"`
	Recipients []int64        `json:"recipients,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// NewEvent builds an event with a fresh id and the default recipient list.
func NewEvent(kind Kind, issue *types.Issue, journal *types.Journal, actor types.Actor, at time.Time) Event {
	return Event{
		ID:         uuid.NewString(),
		Kind:       kind,
		Issue:      issue,
		Journal:    journal,
		Actor:      actor,
		Recipients: Recipients(issue, actor),
		OccurredAt: at,
	}
}

// Recipients returns the users to notify about an issue: its author,
// assignees and watchers, without the actor, sorted.
func Recipients(issue *types.Issue, actor types.Actor) []int64 {
	if issue == nil {
		return nil
	}
	seen := map[int64]bool{0: true, actor.ID: true}
	var out []int64
	add := func(id int64) {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	add(issue.AuthorID)
	for _, id := range issue.AssigneeIDs {
		add(id)
	}
	for _, id := range issue.WatcherIDs {
		add(id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
