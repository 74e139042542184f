package workflow

import (
	"errors"
	"fmt"
	"sort"
)

// ErrNoDefaultStatus is returned when neither the tracker nor the status
// list names a default status.
var ErrNoDefaultStatus = errors.New("no default issue status is defined")

// AllowedTransitions returns the statuses reachable from `from` on the
// tracker for any of the roles, in status list order. The current status is
// not included.
func (c *Catalog) AllowedTransitions(trackerID int64, roleIDs []int64, from int64) []int64 {
	roles := make(map[int64]bool, len(roleIDs))
	for _, id := range roleIDs {
		roles[id] = true
	}
	seen := make(map[int64]bool)
	var out []int64
	for _, t := range c.Transitions {
		if t.TrackerID != trackerID || t.From != from || !roles[t.RoleID] {
			continue
		}
		if t.To == from || seen[t.To] {
			continue
		}
		seen[t.To] = true
		out = append(out, t.To)
	}
	sort.Slice(out, func(i, j int) bool {
		return c.statusOrder[out[i]] < c.statusOrder[out[j]]
	})
	return out
}

// CanTransition reports whether the roles may move an issue of the tracker
// from one status to another. Staying in place is always allowed.
func (c *Catalog) CanTransition(trackerID int64, roleIDs []int64, from, to int64) bool {
	if from == to {
		return true
	}
	for _, id := range c.AllowedTransitions(trackerID, roleIDs, from) {
		if id == to {
			return true
		}
	}
	return false
}

// DefaultStatus returns the status new issues of the tracker start in.
func (c *Catalog) DefaultStatus(trackerID int64) (int64, error) {
	if t, ok := c.trackers[trackerID]; ok && t.DefaultStatusID != 0 {
		return t.DefaultStatusID, nil
	}
	for _, s := range c.Statuses {
		if s.IsDefault {
			return s.ID, nil
		}
	}
	return 0, fmt.Errorf("tracker %d: %w", trackerID, ErrNoDefaultStatus)
}

// IsClosed reports whether the status belongs to the closed class.
func (c *Catalog) IsClosed(statusID int64) bool {
	s, ok := c.statuses[statusID]
	return ok && s.IsClosed
}
