package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tracklog/tracklog/internal/storage"
	"github.com/tracklog/tracklog/internal/types"
	"github.com/tracklog/tracklog/internal/ui"
	"github.com/tracklog/tracklog/internal/workflow"
)

// issueView is what `tl show --json` prints.
type issueView struct {
	*types.Issue
	Children    []*types.Issue      `json:"children,omitempty"`
	Attachments []*types.Attachment `json:"attachments,omitempty"`
	Transitions []int64             `json:"allowed_status_ids"`
}

var showCmd = &cobra.Command{
	Use:     "show <id>",
	GroupID: "issues",
	Short:   "Show an issue",
	Args:    cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ids, err := parseIDArgs(args)
		if err != nil {
			FatalError("%v", err)
		}
		r := openRuntime(rootCtx)
		actor := r.actor()

		issue := loadVisibleIssue(r, ids[0], actor)
		children, err := r.store.GetChildren(rootCtx, issue.ID)
		if err != nil {
			FatalError("%v", err)
		}
		attachments, err := r.store.GetAttachments(rootCtx, issue.ID)
		if err != nil {
			FatalError("%v", err)
		}
		view := issueView{
			Issue:       issue,
			Children:    children,
			Attachments: attachments,
			Transitions: allowedStatuses(r, actor, issue),
		}

		asYAML, _ := cmd.Flags().GetBool("yaml")
		switch {
		case jsonOutput:
			outputJSON(view)
		case asYAML:
			outputYAML(view)
		default:
			full, _ := cmd.Flags().GetBool("full")
			fmt.Print(renderIssue(r.catalog, view, full))
		}
	},
}

var journalCmd = &cobra.Command{
	Use:     "journal <id>",
	GroupID: "issues",
	Short:   "Show the change history of an issue",
	Args:    cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ids, err := parseIDArgs(args)
		if err != nil {
			FatalError("%v", err)
		}
		r := openRuntime(rootCtx)
		issue := loadVisibleIssue(r, ids[0], r.actor())

		journals, err := r.store.GetJournals(rootCtx, issue.ID)
		if err != nil {
			FatalError("%v", err)
		}
		if jsonOutput {
			outputJSON(journals)
			return
		}
		if len(journals) == 0 {
			fmt.Printf("%s No history for %s\n", ui.RenderInfoIcon(), ui.RenderIssueRef(issue.ID))
			return
		}
		noPager, _ := cmd.Flags().GetBool("no-pager")
		if err := ui.ToPager(renderJournals(r.catalog, journals), ui.PagerOptions{NoPager: noPager}); err != nil {
			FatalError("%v", err)
		}
	},
}

// loadVisibleIssue exits unless the issue exists and actor may view it.
// Invisible issues are reported as missing.
func loadVisibleIssue(r *runtime, id int64, actor types.Actor) *types.Issue {
	issue, err := r.store.GetIssue(rootCtx, id)
	if err == nil && !r.engine.Can(rootCtx, actor, issue, types.CapView) {
		err = storage.ErrNotFound
	}
	if errors.Is(err, storage.ErrNotFound) {
		FatalError("issue #%d not found", id)
	}
	if err != nil {
		FatalError("%v", err)
	}
	return issue
}

// allowedStatuses lists the statuses the actor may move the issue to,
// including its current one.
func allowedStatuses(r *runtime, actor types.Actor, issue *types.Issue) []int64 {
	out := []int64{issue.StatusID}
	if !r.engine.Can(rootCtx, actor, issue, types.CapChangeStatus) {
		return out
	}
	roles := r.catalog.RolesFor(actor, issue.ProjectID)
	if actor.Admin || r.engine.Can(rootCtx, actor, issue, types.CapBypassWorkflow) {
		for _, s := range r.catalog.Statuses {
			if s.ID != issue.StatusID {
				out = append(out, s.ID)
			}
		}
		return out
	}
	return append(out, r.catalog.AllowedTransitions(issue.TrackerID, roles, issue.StatusID)...)
}

func renderIssue(c *workflow.Catalog, v issueView, full bool) string {
	var b strings.Builder
	issue := v.Issue
	tracker := valueName(c, types.FieldTracker, ptr(idString(issue.TrackerID)))
	fmt.Fprintf(&b, "%s %s %s\n", ui.RenderMuted(tracker), ui.RenderIssueRef(issue.ID), ui.SubjectStyle.Render(issue.Subject))
	fmt.Fprintln(&b, ui.RenderSeparator())

	status := valueName(c, types.FieldStatus, ptr(idString(issue.StatusID)))
	if c.IsClosed(issue.StatusID) {
		status = ui.RenderMuted(status)
	}
	rows := [][2]string{
		{"Project", valueName(c, types.FieldProject, ptr(idString(issue.ProjectID)))},
		{"Status", status},
		{"Priority", valueName(c, types.FieldPriority, ptr(idString(issue.PriorityID)))},
		{"Author", userName(c, issue.AuthorID)},
		{"Assignees", userNames(c, issue.AssigneeIDs)},
	}
	if issue.CategoryID != nil {
		rows = append(rows, [2]string{"Category", valueName(c, types.FieldCategory, ptr(idString(*issue.CategoryID)))})
	}
	if issue.FixedVersionID != nil {
		rows = append(rows, [2]string{"Target version", valueName(c, types.FieldFixedVersion, ptr(idString(*issue.FixedVersionID)))})
	}
	if issue.ParentID != nil {
		rows = append(rows, [2]string{"Parent task", fmt.Sprintf("#%d", *issue.ParentID)})
	}
	if issue.StartDate != nil {
		rows = append(rows, [2]string{"Start date", issue.StartDate.String()})
	}
	if issue.DueDate != nil {
		rows = append(rows, [2]string{"Due date", issue.DueDate.String()})
	}
	if issue.EstimatedHours != nil {
		rows = append(rows, [2]string{"Estimated time", issue.EstimatedHours.String() + " h"})
	}
	rows = append(rows, [2]string{"Spent time", issue.SpentHours.String() + " h"})
	if issue.Billable {
		rows = append(rows, [2]string{"Billable", "yes"})
	}
	for _, cf := range c.ApplicableCustomFields(issue.ProjectID, issue.TrackerID) {
		if v := issue.CustomValue(cf.ID); v != "" {
			rows = append(rows, [2]string{cf.Name, v})
		}
	}
	for _, row := range rows {
		fmt.Fprintln(&b, ui.RenderField(row[0], row[1]))
	}

	if issue.Description != "" {
		fmt.Fprintf(&b, "\n%s\n", ui.RenderHeader("Description"))
		desc := issue.Description
		if !full {
			desc = ui.TruncateLines(desc, ui.DefaultMaxLines, 5)
		}
		fmt.Fprintln(&b, strings.TrimRight(ui.RenderMarkdown(desc), "\n"))
	}
	if len(v.Children) > 0 {
		fmt.Fprintf(&b, "\n%s\n", ui.RenderHeader("Subtasks"))
		for _, child := range v.Children {
			fmt.Fprintf(&b, "%s%s %s %s\n", ui.TreeIndent, ui.RenderIssueRef(child.ID),
				ui.RenderMuted(valueName(c, types.FieldStatus, ptr(idString(child.StatusID)))), child.Subject)
		}
	}
	if len(v.Attachments) > 0 {
		fmt.Fprintf(&b, "\n%s\n", ui.RenderHeader("Files"))
		for _, a := range v.Attachments {
			fmt.Fprintf(&b, "%s%s %s\n", ui.TreeIndent, a.Filename, ui.RenderMuted(fmt.Sprintf("(%d bytes)", a.Filesize)))
		}
	}
	if len(v.Transitions) > 1 {
		names := make([]string, 0, len(v.Transitions)-1)
		for _, id := range v.Transitions[1:] {
			names = append(names, valueName(c, types.FieldStatus, ptr(idString(id))))
		}
		fmt.Fprintf(&b, "\n%s %s\n", ui.RenderMuted("Next statuses:"), strings.Join(names, ", "))
	}
	return b.String()
}

func renderJournals(c *workflow.Catalog, journals []*types.Journal) string {
	var b strings.Builder
	for i, j := range journals {
		if i > 0 {
			fmt.Fprintln(&b)
		}
		fmt.Fprintf(&b, "%s %s %s\n",
			ui.RenderAccent(fmt.Sprintf("#%d", i+1)),
			userName(c, j.UserID),
			ui.RenderMuted(j.CreatedOn.Local().Format("2006-01-02 15:04")))
		for _, d := range j.Details {
			fmt.Fprintf(&b, "%s%s%s\n", ui.TreeIndent, ui.TreeLast, renderDetail(c, d))
		}
		if j.Notes != "" {
			fmt.Fprintln(&b, ui.Indent(strings.TrimRight(ui.RenderMarkdown(j.Notes), "\n"), ui.TreeIndent))
		}
	}
	return b.String()
}

func ptr(s string) *string { return &s }

func init() {
	showCmd.Flags().Bool("yaml", false, "Output in YAML format")
	showCmd.Flags().Bool("full", false, "Show the full description")
	journalCmd.Flags().Bool("no-pager", false, "Do not pipe output through a pager")
	rootCmd.AddCommand(showCmd, journalCmd)
}
