package types

// IssueFilter narrows issue queries. Zero values mean "any".
type IssueFilter struct {
	ProjectID *int64
	ParentID  *int64
	StatusID  *int64
	IDs       []int64
	Limit     int
}
