package engine

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/tracklog/tracklog/internal/storage"
	"github.com/tracklog/tracklog/internal/types"
)

// rollup recomputes the derived dates and estimate of every ancestor
// affected by the mutation: the new parent chain and, when the parent
// changed, the old one. It returns the ancestors that need saving. The
// walk stops at the first ancestor whose values do not change.
func (m *mutation) rollup() ([]*types.Issue, error) {
	var roots []int64
	if m.proposed.ParentID != nil {
		roots = append(roots, *m.proposed.ParentID)
	}
	if m.snapshot != nil && m.snapshot.ParentID != nil {
		old := *m.snapshot.ParentID
		if m.proposed.ParentID == nil || *m.proposed.ParentID != old {
			roots = append(roots, old)
		}
	}
	if len(roots) == 0 {
		return nil, nil
	}

	// Issues already recomputed in this mutation, by id.
	updated := map[int64]*types.Issue{m.proposed.ID: m.proposed}
	var out []*types.Issue
	for _, id := range roots {
		for id != 0 {
			parent, err := m.loadForRollup(id, updated)
			if err != nil {
				return nil, err
			}
			changed, err := m.recompute(parent, updated)
			if err != nil {
				return nil, err
			}
			if !changed {
				break
			}
			if _, seen := updated[parent.ID]; !seen {
				out = append(out, parent)
			}
			updated[parent.ID] = parent
			if parent.ParentID == nil {
				break
			}
			id = *parent.ParentID
		}
	}
	return out, nil
}

func (m *mutation) loadForRollup(id int64, updated map[int64]*types.Issue) (*types.Issue, error) {
	if issue, ok := updated[id]; ok {
		return issue, nil
	}
	return m.tx.GetIssue(m.ctx, id)
}

// recompute derives start, due and estimate of parent from its children,
// using the in-flight version of any child touched by this mutation.
// A parent without children keeps its own values.
func (m *mutation) recompute(parent *types.Issue, updated map[int64]*types.Issue) (bool, error) {
	stored, err := m.tx.GetChildren(m.ctx, parent.ID)
	if err != nil {
		return false, err
	}
	children := make([]*types.Issue, 0, len(stored)+1)
	included := map[int64]bool{}
	for _, c := range stored {
		if u, ok := updated[c.ID]; ok {
			c = u
		}
		if c.ParentID == nil || *c.ParentID != parent.ID {
			continue
		}
		included[c.ID] = true
		children = append(children, c)
	}
	for id, u := range updated {
		if !included[id] && u.ParentID != nil && *u.ParentID == parent.ID {
			children = append(children, u)
		}
	}
	if len(children) == 0 {
		return false, nil
	}

	var start, due *types.Date
	var estimate *decimal.Decimal
	for _, c := range children {
		if c.StartDate != nil && (start == nil || c.StartDate.Before(*start)) {
			d := *c.StartDate
			start = &d
		}
		if c.DueDate != nil && (due == nil || c.DueDate.After(*due)) {
			d := *c.DueDate
			due = &d
		}
		if c.EstimatedHours != nil {
			sum := *c.EstimatedHours
			if estimate != nil {
				sum = estimate.Add(*c.EstimatedHours)
			}
			estimate = &sum
		}
	}

	changed := !sameDate(parent.StartDate, start) ||
		!sameDate(parent.DueDate, due) ||
		!sameHours(parent.EstimatedHours, estimate)
	if changed {
		parent.StartDate = start
		parent.DueDate = due
		parent.EstimatedHours = estimate
	}
	return changed, nil
}

func sameDate(a, b *types.Date) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return !a.Before(*b) && !a.After(*b)
}

func sameHours(a, b *decimal.Decimal) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}

// RollupRemoved recomputes the ancestors of an issue deleted in tx. Call it
// after the issue row is gone.
func (e *Engine) RollupRemoved(ctx context.Context, tx storage.Transaction, removed *types.Issue) error {
	if removed.ParentID == nil {
		return nil
	}
	m := e.newMutation(ctx, tx, types.Actor{}, removed)
	m.proposed = removed.Clone()
	m.proposed.ParentID = nil
	ancestors, err := m.rollup()
	if err != nil {
		return err
	}
	for _, a := range ancestors {
		if err := tx.UpdateIssue(ctx, a); err != nil {
			return err
		}
	}
	return nil
}
