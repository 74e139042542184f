package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tracklog/tracklog/internal/query"
	"github.com/tracklog/tracklog/internal/types"
	"github.com/tracklog/tracklog/internal/ui"
)

const defaultListLimit = 50

var listCmd = &cobra.Command{
	Use:     "list",
	GroupID: "issues",
	Short:   "List issues matching a query",
	Long: `List the issues you may view, optionally filtered with --where.

Fields: id, subject, description, project, tracker, status, priority,
assignee, author, watcher, category, version, parent, start, due,
estimated, spent, created, updated, closed, billable, cf.<name or id>.
status=open and status=closed select by the status' closed flag; 'me' is
the acting user; 'none' matches an empty field; 7d on a timestamp means
"7 days ago".

Examples:
  tl list --where 'status=open AND assignee=me'
  tl list --where 'project=ecookbook AND (priority>=High OR due<+1w)'
  tl list --where 'updated>7d AND NOT tracker=Bug' --limit 0`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		r := openRuntime(rootCtx)
		where, _ := cmd.Flags().GetString("where")
		limit, _ := cmd.Flags().GetInt("limit")

		issues := selectIssues(r, where, limit)
		if jsonOutput {
			if issues == nil {
				issues = []*types.Issue{}
			}
			outputJSON(issues)
			return
		}
		if len(issues) == 0 {
			fmt.Printf("%s No matching issues\n", ui.RenderInfoIcon())
			return
		}
		for _, issue := range issues {
			fmt.Println(renderListRow(r, issue))
		}
		if limit > 0 && len(issues) == limit {
			fmt.Println(ui.RenderMuted(fmt.Sprintf("Showing the first %d issues; use --limit 0 for all.", limit)))
		}
	},
}

// selectIssues returns the issues the actor may view that match where.
// An empty where matches every issue.
func selectIssues(r *runtime, where string, limit int) []*types.Issue {
	actor := r.actor()
	if strings.TrimSpace(where) == "" {
		where = "id>0"
	}
	q, err := query.Compile(where, r.catalog, actor, r.engine.Now())
	if err != nil {
		FatalErrorWithHint(fmt.Sprintf("invalid query: %v", err), "See 'tl list --help' for the query syntax")
	}
	matches, err := q.Select(rootCtx, r.store, 0)
	if err != nil {
		FatalError("%v", err)
	}
	var out []*types.Issue
	for _, issue := range matches {
		if !r.engine.Can(rootCtx, actor, issue, types.CapView) {
			continue
		}
		out = append(out, issue)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

func renderListRow(r *runtime, issue *types.Issue) string {
	c := r.catalog
	status := valueName(c, types.FieldStatus, ptr(idString(issue.StatusID)))
	if c.IsClosed(issue.StatusID) {
		status = ui.RenderMuted(status)
	}
	cols := []string{
		ui.RenderIssueRef(issue.ID),
		ui.RenderMuted(valueName(c, types.FieldTracker, ptr(idString(issue.TrackerID)))),
		status,
		valueName(c, types.FieldPriority, ptr(idString(issue.PriorityID))),
		issue.Subject,
	}
	if len(issue.AssigneeIDs) > 0 {
		cols = append(cols, ui.RenderAccent("@"+userNames(c, issue.AssigneeIDs)))
	}
	return strings.Join(cols, "  ")
}

// targetIDs merges issue ids given as arguments with the issues matched by
// --where. At least one of the two is required.
func targetIDs(cmd *cobra.Command, r *runtime, args []string) []int64 {
	where, _ := cmd.Flags().GetString("where")
	var ids []int64
	if len(args) > 0 {
		parsed, err := parseIDArgs(args)
		if err != nil {
			FatalError("%v", err)
		}
		ids = parsed
	}
	if strings.TrimSpace(where) != "" {
		seen := make(map[int64]bool, len(ids))
		for _, id := range ids {
			seen[id] = true
		}
		for _, issue := range selectIssues(r, where, 0) {
			if !seen[issue.ID] {
				seen[issue.ID] = true
				ids = append(ids, issue.ID)
			}
		}
		if len(ids) == 0 {
			FatalError("no issues match %q", where)
		}
	}
	if len(ids) == 0 {
		FatalErrorWithHint("no issues given", "Pass issue ids or --where <query>")
	}
	return ids
}

func registerWhereFlag(cmd *cobra.Command) {
	cmd.Flags().String("where", "", "Also select the issues matching this query (see 'tl list --help')")
}

func init() {
	registerWhereFlag(listCmd)
	listCmd.Flags().Int("limit", defaultListLimit, "Maximum issues to show (0 for all)")
	rootCmd.AddCommand(listCmd)
}
