package query

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tracklog/tracklog/internal/timeparsing"
	"github.com/tracklog/tracklog/internal/types"
	"github.com/tracklog/tracklog/internal/workflow"
)

// Result is a compiled query. Filter narrows the storage scan with the
// equality terms of the top-level AND chain; Predicate decides the rest.
type Result struct {
	Filter    types.IssueFilter
	Predicate func(*types.Issue) bool
}

// Match reports whether issue satisfies the whole query.
func (r *Result) Match(issue *types.Issue) bool {
	return r.Predicate(issue)
}

// Evaluator compiles a query AST against a workflow catalog. Names
// (statuses, logins, "me") resolve through the catalog and the actor.
type Evaluator struct {
	catalog *workflow.Catalog
	actor   types.Actor
	now     time.Time
}

// NewEvaluator creates an Evaluator for actor at reference time now.
func NewEvaluator(c *workflow.Catalog, actor types.Actor, now time.Time) *Evaluator {
	return &Evaluator{catalog: c, actor: actor, now: now}
}

type predicate = func(*types.Issue) bool

// Evaluate compiles node.
func (e *Evaluator) Evaluate(node Node) (*Result, error) {
	pred, err := e.buildPredicate(node)
	if err != nil {
		return nil, err
	}
	res := &Result{Predicate: pred}
	e.extractBaseFilters(node, &res.Filter)
	return res, nil
}

func (e *Evaluator) buildPredicate(node Node) (predicate, error) {
	switch n := node.(type) {
	case *ComparisonNode:
		pred, err := e.buildComparison(n)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", n.Field, err)
		}
		return pred, nil
	case *AndNode:
		left, right, err := e.pair(n.Left, n.Right)
		if err != nil {
			return nil, err
		}
		return func(i *types.Issue) bool { return left(i) && right(i) }, nil
	case *OrNode:
		left, right, err := e.pair(n.Left, n.Right)
		if err != nil {
			return nil, err
		}
		return func(i *types.Issue) bool { return left(i) || right(i) }, nil
	case *NotNode:
		operand, err := e.buildPredicate(n.Operand)
		if err != nil {
			return nil, err
		}
		return func(i *types.Issue) bool { return !operand(i) }, nil
	default:
		return nil, fmt.Errorf("unexpected node type: %T", node)
	}
}

func (e *Evaluator) pair(a, b Node) (predicate, predicate, error) {
	left, err := e.buildPredicate(a)
	if err != nil {
		return nil, nil, err
	}
	right, err := e.buildPredicate(b)
	if err != nil {
		return nil, nil, err
	}
	return left, right, nil
}

func (e *Evaluator) buildComparison(c *ComparisonNode) (predicate, error) {
	if strings.HasPrefix(c.Field, customFieldPrefix) {
		return e.customFieldPredicate(c)
	}
	switch c.Field {
	case "id":
		id, err := parseID(c.Value)
		if err != nil {
			return nil, err
		}
		return ordered(c.Op, func(i *types.Issue) (int, bool) { return cmpInt(i.ID, id), true })
	case "subject":
		return textPredicate(c, func(i *types.Issue) string { return i.Subject })
	case "description":
		return textPredicate(c, func(i *types.Issue) string { return i.Description })
	case "project":
		ids, err := e.projectIDs(c.Value)
		if err != nil {
			return nil, err
		}
		return membership(c.Op, ids, func(i *types.Issue) []int64 { return []int64{i.ProjectID} })
	case "tracker":
		ids, err := e.trackerIDs(c.Value)
		if err != nil {
			return nil, err
		}
		return membership(c.Op, ids, func(i *types.Issue) []int64 { return []int64{i.TrackerID} })
	case "status":
		return e.statusPredicate(c)
	case "priority":
		rank, err := e.priorityRank(c.Value)
		if err != nil {
			return nil, err
		}
		return ordered(c.Op, func(i *types.Issue) (int, bool) {
			r, ok := e.rankOf(i.PriorityID)
			return cmpInt(int64(r), int64(rank)), ok
		})
	case "assignee":
		return e.userPredicate(c, func(i *types.Issue) []int64 { return i.AssigneeIDs })
	case "watcher":
		return e.userPredicate(c, func(i *types.Issue) []int64 { return i.WatcherIDs })
	case "author":
		return e.userPredicate(c, func(i *types.Issue) []int64 { return []int64{i.AuthorID} })
	case "category":
		return e.optionalRefPredicate(c, e.categoryIDs, func(i *types.Issue) *int64 { return i.CategoryID })
	case "version":
		return e.optionalRefPredicate(c, e.versionIDs, func(i *types.Issue) *int64 { return i.FixedVersionID })
	case "parent":
		return e.optionalRefPredicate(c, func(v string) ([]int64, error) {
			id, err := parseID(v)
			return []int64{id}, err
		}, func(i *types.Issue) *int64 { return i.ParentID })
	case "start":
		return e.datePredicate(c, func(i *types.Issue) *types.Date { return i.StartDate })
	case "due":
		return e.datePredicate(c, func(i *types.Issue) *types.Date { return i.DueDate })
	case "estimated":
		return decimalPredicate(c, func(i *types.Issue) *decimal.Decimal { return i.EstimatedHours })
	case "spent":
		return decimalPredicate(c, func(i *types.Issue) *decimal.Decimal { return &i.SpentHours })
	case "created":
		return e.timePredicate(c, func(i *types.Issue) *time.Time { return &i.CreatedOn })
	case "updated":
		return e.timePredicate(c, func(i *types.Issue) *time.Time { return &i.UpdatedOn })
	case "closed":
		return e.timePredicate(c, func(i *types.Issue) *time.Time { return i.ClosedOn })
	case "billable":
		want, err := parseBool(c.Value)
		if err != nil {
			return nil, err
		}
		return equality(c.Op, func(i *types.Issue) bool { return i.Billable == want })
	default:
		return nil, fmt.Errorf("unknown field")
	}
}

// statusPredicate accepts a status name or id. The keywords "open" and
// "closed" select by the closed flag of the status instead.
func (e *Evaluator) statusPredicate(c *ComparisonNode) (predicate, error) {
	if wantClosed, ok := statusKeyword(c.Value); ok {
		return equality(c.Op, func(i *types.Issue) bool { return e.catalog.IsClosed(i.StatusID) == wantClosed })
	}
	ids, err := e.statusIDs(c.Value)
	if err != nil {
		return nil, err
	}
	return membership(c.Op, ids, func(i *types.Issue) []int64 { return []int64{i.StatusID} })
}

func statusKeyword(v string) (closed bool, ok bool) {
	switch strings.ToLower(v) {
	case "open":
		return false, true
	case "closed":
		return true, true
	}
	return false, false
}

func (e *Evaluator) userPredicate(c *ComparisonNode, get func(*types.Issue) []int64) (predicate, error) {
	if isNone(c.Value) {
		return equality(c.Op, func(i *types.Issue) bool { return len(get(i)) == 0 })
	}
	id, err := e.userID(c.Value)
	if err != nil {
		return nil, err
	}
	return membership(c.Op, []int64{id}, get)
}

func (e *Evaluator) optionalRefPredicate(c *ComparisonNode, resolve func(string) ([]int64, error), get func(*types.Issue) *int64) (predicate, error) {
	if isNone(c.Value) {
		return equality(c.Op, func(i *types.Issue) bool { return get(i) == nil })
	}
	ids, err := resolve(c.Value)
	if err != nil {
		return nil, err
	}
	return membership(c.Op, ids, func(i *types.Issue) []int64 {
		if v := get(i); v != nil {
			return []int64{*v}
		}
		return nil
	})
}

func (e *Evaluator) datePredicate(c *ComparisonNode, get func(*types.Issue) *types.Date) (predicate, error) {
	if isNone(c.Value) {
		return equality(c.Op, func(i *types.Issue) bool { return get(i) == nil })
	}
	target, err := timeparsing.ParseDate(c.Value, e.now)
	if err != nil {
		return nil, err
	}
	return ordered(c.Op, func(i *types.Issue) (int, bool) {
		d := get(i)
		if d == nil {
			return 0, false
		}
		return d.Time().Compare(target.Time()), true
	})
}

// timePredicate compares timestamps. An offset is relative to now and
// counted backwards, so updated>7d means "in the last 7 days". A date
// compares by calendar day.
func (e *Evaluator) timePredicate(c *ComparisonNode, get func(*types.Issue) *time.Time) (predicate, error) {
	if isNone(c.Value) {
		return equality(c.Op, func(i *types.Issue) bool { return get(i) == nil })
	}
	if c.ValueType == TokenDuration {
		threshold, err := timeparsing.ParseCompactOffset("-"+strings.TrimLeft(c.Value, "+-"), e.now)
		if err != nil {
			return nil, err
		}
		return ordered(c.Op, func(i *types.Issue) (int, bool) {
			t := get(i)
			if t == nil {
				return 0, false
			}
			return t.Compare(threshold), true
		})
	}
	target, err := timeparsing.ParseDate(c.Value, e.now)
	if err != nil {
		return nil, err
	}
	return ordered(c.Op, func(i *types.Issue) (int, bool) {
		t := get(i)
		if t == nil {
			return 0, false
		}
		return types.DateOf(t.In(e.now.Location())).Time().Compare(target.Time()), true
	})
}

func decimalPredicate(c *ComparisonNode, get func(*types.Issue) *decimal.Decimal) (predicate, error) {
	if isNone(c.Value) {
		return equality(c.Op, func(i *types.Issue) bool { return get(i) == nil })
	}
	target, err := decimal.NewFromString(c.Value)
	if err != nil {
		return nil, fmt.Errorf("invalid number %q", c.Value)
	}
	return ordered(c.Op, func(i *types.Issue) (int, bool) {
		v := get(i)
		if v == nil {
			return 0, false
		}
		return v.Cmp(target), true
	})
}

// customFieldPredicate compares custom values as numbers when both sides
// are numeric and as case-insensitive text otherwise.
func (e *Evaluator) customFieldPredicate(c *ComparisonNode) (predicate, error) {
	ref := strings.TrimPrefix(c.Field, customFieldPrefix)
	cf, err := e.customField(ref)
	if err != nil {
		return nil, err
	}
	get := func(i *types.Issue) string { return i.CustomValue(cf.ID) }
	if isNone(c.Value) {
		return equality(c.Op, func(i *types.Issue) bool { return get(i) == "" })
	}
	target := c.Value
	targetNum, numErr := decimal.NewFromString(target)
	return ordered(c.Op, func(i *types.Issue) (int, bool) {
		v := get(i)
		if v == "" {
			return 0, false
		}
		if numErr == nil {
			if n, err := decimal.NewFromString(v); err == nil {
				return n.Cmp(targetNum), true
			}
		}
		return strings.Compare(strings.ToLower(v), strings.ToLower(target)), true
	})
}

// textPredicate matches a case-insensitive substring.
func textPredicate(c *ComparisonNode, get func(*types.Issue) string) (predicate, error) {
	needle := strings.ToLower(c.Value)
	return equality(c.Op, func(i *types.Issue) bool {
		return strings.Contains(strings.ToLower(get(i)), needle)
	})
}

// equality turns a match function into an = or != predicate.
func equality(op ComparisonOp, match predicate) (predicate, error) {
	switch op {
	case OpEquals:
		return match, nil
	case OpNotEquals:
		return func(i *types.Issue) bool { return !match(i) }, nil
	default:
		return nil, fmt.Errorf("operator %s is not supported", op)
	}
}

// membership matches when any of the issue's values is in want.
func membership(op ComparisonOp, want []int64, get func(*types.Issue) []int64) (predicate, error) {
	return equality(op, func(i *types.Issue) bool {
		for _, v := range get(i) {
			if slices.Contains(want, v) {
				return true
			}
		}
		return false
	})
}

// ordered builds a predicate from a three-way comparison. Issues without
// a value (ok false) match only !=.
func ordered(op ComparisonOp, compare func(*types.Issue) (int, bool)) (predicate, error) {
	var test func(int) bool
	switch op {
	case OpEquals:
		test = func(c int) bool { return c == 0 }
	case OpNotEquals:
		return func(i *types.Issue) bool {
			c, ok := compare(i)
			return !ok || c != 0
		}, nil
	case OpLess:
		test = func(c int) bool { return c < 0 }
	case OpLessEq:
		test = func(c int) bool { return c <= 0 }
	case OpGreater:
		test = func(c int) bool { return c > 0 }
	case OpGreaterEq:
		test = func(c int) bool { return c >= 0 }
	default:
		return nil, fmt.Errorf("unexpected operator: %s", op)
	}
	return func(i *types.Issue) bool {
		c, ok := compare(i)
		return ok && test(c)
	}, nil
}

// extractBaseFilters copies equality terms of the top-level AND chain
// into the storage filter. Anything it cannot express is left to the
// predicate, which always runs.
func (e *Evaluator) extractBaseFilters(node Node, filter *types.IssueFilter) {
	switch n := node.(type) {
	case *AndNode:
		e.extractBaseFilters(n.Left, filter)
		e.extractBaseFilters(n.Right, filter)
	case *ComparisonNode:
		if n.Op != OpEquals {
			return
		}
		single := func(ids []int64, err error) (int64, bool) {
			if err != nil || len(ids) != 1 {
				return 0, false
			}
			return ids[0], true
		}
		switch n.Field {
		case "id":
			if id, err := parseID(n.Value); err == nil {
				filter.IDs = []int64{id}
			}
		case "project":
			if id, ok := single(e.projectIDs(n.Value)); ok {
				filter.ProjectID = &id
			}
		case "status":
			if _, keyword := statusKeyword(n.Value); keyword {
				return
			}
			if id, ok := single(e.statusIDs(n.Value)); ok {
				filter.StatusID = &id
			}
		case "parent":
			if id, err := parseID(n.Value); err == nil {
				filter.ParentID = &id
			}
		}
	}
}

func (e *Evaluator) projectIDs(v string) ([]int64, error) {
	if id, err := parseID(v); err == nil {
		return []int64{id}, nil
	}
	if p, ok := e.catalog.ProjectByIdentifier(v); ok {
		return []int64{p.ID}, nil
	}
	for _, p := range e.catalog.Projects {
		if strings.EqualFold(p.Name, v) {
			return []int64{p.ID}, nil
		}
	}
	return nil, fmt.Errorf("unknown project %q", v)
}

func (e *Evaluator) trackerIDs(v string) ([]int64, error) {
	if id, err := parseID(v); err == nil {
		return []int64{id}, nil
	}
	for _, t := range e.catalog.Trackers {
		if strings.EqualFold(t.Name, v) {
			return []int64{t.ID}, nil
		}
	}
	return nil, fmt.Errorf("unknown tracker %q", v)
}

func (e *Evaluator) statusIDs(v string) ([]int64, error) {
	if id, err := parseID(v); err == nil {
		return []int64{id}, nil
	}
	for _, s := range e.catalog.Statuses {
		if strings.EqualFold(s.Name, v) {
			return []int64{s.ID}, nil
		}
	}
	return nil, fmt.Errorf("unknown status %q", v)
}

// priorityRank is the position of a priority in the catalog, lowest first.
func (e *Evaluator) priorityRank(v string) (int, error) {
	for rank, p := range e.catalog.Priorities {
		if strings.EqualFold(p.Name, v) || strconv.FormatInt(p.ID, 10) == v {
			return rank, nil
		}
	}
	return 0, fmt.Errorf("unknown priority %q", v)
}

func (e *Evaluator) rankOf(priorityID int64) (int, bool) {
	for rank, p := range e.catalog.Priorities {
		if p.ID == priorityID {
			return rank, true
		}
	}
	return 0, false
}

func (e *Evaluator) userID(v string) (int64, error) {
	if strings.EqualFold(v, "me") {
		if e.actor.ID == 0 {
			return 0, fmt.Errorf("'me' needs a known actor")
		}
		return e.actor.ID, nil
	}
	if id, err := parseID(v); err == nil {
		return id, nil
	}
	if u, ok := e.catalog.UserByLogin(v); ok {
		return u.ID, nil
	}
	return 0, fmt.Errorf("unknown user %q", v)
}

// categoryIDs resolves a category name in every project that has one.
func (e *Evaluator) categoryIDs(v string) ([]int64, error) {
	if id, err := parseID(v); err == nil {
		return []int64{id}, nil
	}
	var ids []int64
	for _, p := range e.catalog.Projects {
		for _, c := range p.Categories {
			if strings.EqualFold(c.Name, v) {
				ids = append(ids, c.ID)
			}
		}
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("unknown category %q", v)
	}
	return ids, nil
}

// versionIDs resolves a version name in every project that has one.
// Numeric names like "1.0" are names, not ids.
func (e *Evaluator) versionIDs(v string) ([]int64, error) {
	var ids []int64
	for _, p := range e.catalog.Projects {
		for _, ver := range p.Versions {
			if strings.EqualFold(ver.Name, v) {
				ids = append(ids, ver.ID)
			}
		}
	}
	if len(ids) > 0 {
		return ids, nil
	}
	if id, err := parseID(v); err == nil {
		return []int64{id}, nil
	}
	return nil, fmt.Errorf("unknown version %q", v)
}

func (e *Evaluator) customField(ref string) (*types.CustomField, error) {
	if id, err := parseID(ref); err == nil {
		if cf, ok := e.catalog.CustomField(id); ok {
			return cf, nil
		}
	}
	for _, cf := range e.catalog.CustomFields {
		if strings.EqualFold(cf.Name, ref) {
			return cf, nil
		}
	}
	return nil, fmt.Errorf("unknown custom field %q", ref)
}

func parseID(v string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimPrefix(v, "#"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", v)
	}
	return id, nil
}

func parseBool(v string) (bool, error) {
	switch strings.ToLower(v) {
	case "true", "yes", "1":
		return true, nil
	case "false", "no", "0":
		return false, nil
	default:
		return false, fmt.Errorf("invalid boolean value: %s", v)
	}
}

func isNone(v string) bool {
	switch strings.ToLower(v) {
	case "none", "null":
		return true
	}
	return false
}

func cmpInt(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// Compile parses and evaluates a query string.
func Compile(query string, c *workflow.Catalog, actor types.Actor, now time.Time) (*Result, error) {
	node, err := Parse(query)
	if err != nil {
		return nil, err
	}
	return NewEvaluator(c, actor, now).Evaluate(node)
}
