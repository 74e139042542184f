package query

import (
	"context"

	"github.com/tracklog/tracklog/internal/storage"
	"github.com/tracklog/tracklog/internal/types"
)

// Select returns the issues in store that match the query, ordered by id.
// A positive limit caps the result after filtering.
func (r *Result) Select(ctx context.Context, store storage.Reader, limit int) ([]*types.Issue, error) {
	candidates, err := store.ListIssues(ctx, r.Filter)
	if err != nil {
		return nil, err
	}
	var out []*types.Issue
	for _, issue := range candidates {
		if !r.Match(issue) {
			continue
		}
		out = append(out, issue)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// IDs returns the ids of issues.
func IDs(issues []*types.Issue) []int64 {
	ids := make([]int64, len(issues))
	for i, issue := range issues {
		ids[i] = issue.ID
	}
	return ids
}
