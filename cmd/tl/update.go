package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/tracklog/tracklog/internal/engine"
	"github.com/tracklog/tracklog/internal/types"
	"github.com/tracklog/tracklog/internal/ui"
	"github.com/tracklog/tracklog/internal/validation"
	"github.com/tracklog/tracklog/internal/workflow"
)

var createCmd = &cobra.Command{
	Use:     "create [subject]",
	GroupID: "issues",
	Short:   "Create an issue",
	Long: `Create an issue in a project. The status falls back to the tracker's
default when you may not set the one given.

Examples:
  tl create "Printing fails" --project ecookbook --tracker Bug
  tl create "Release notes" --project ecookbook --due "next friday" --assignee jsmith`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		r := openRuntime(rootCtx)
		actor := r.actor()

		changes, err := changeSetFromFlags(cmd, r.catalog)
		if err != nil {
			FatalError("%v", err)
		}
		if len(args) == 1 {
			changes[types.FieldSubject] = args[0]
		}
		projectRaw, ok := changes[types.FieldProject]
		if !ok {
			FatalErrorWithHint("no project given", "Pass --project <identifier>")
		}
		projectID, _ := strconv.ParseInt(projectRaw, 10, 64)

		watchers, _ := cmd.Flags().GetStringSlice("watcher")
		watcherIDs, err := resolveAssignees(r.catalog, watchers)
		if err != nil {
			FatalError("%v", err)
		}
		ids, _ := validation.ParseIDList(watcherIDs)
		notes, _ := cmd.Flags().GetString("notes")

		res, err := r.engine.Create(rootCtx, actor, engine.NewIssue{
			ProjectID:   projectID,
			Changes:     changes,
			Notes:       notes,
			WatcherIDs:  ids,
			Attachments: attachmentsFromFlags(cmd, actor.ID),
		})
		if err != nil {
			exitWithError(err)
		}

		if jsonOutput {
			outputJSON(res)
			return
		}
		fmt.Printf("%s Created issue %s: %s\n", ui.RenderPassIcon(), ui.RenderIssueRef(res.Issue.ID), res.Issue.Subject)
		if s, ok := r.catalog.Status(res.Issue.StatusID); ok {
			fmt.Printf("  %s\n", ui.RenderField("Status", s.Name))
		}
		printWarnings(res.Warnings)
	},
}

var updateCmd = &cobra.Command{
	Use:     "update <id>",
	GroupID: "issues",
	Short:   "Update an issue and record the change in its journal",
	Long: `Update issue attributes, add notes, log time or attach files in one
journaled change. Only the flags you pass are changed; an empty value clears
an optional field.

Examples:
  tl update 12 --status Resolved --notes "Fixed in r42"
  tl update 12 --due +2w --assignee jsmith --assignee dlopper
  tl update 12 --from 10:00 --to 12:30 --comment "review"`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ids, err := parseIDArgs(args)
		if err != nil {
			FatalError("%v", err)
		}
		r := openRuntime(rootCtx)
		actor := r.actor()

		upd, err := updateFromFlags(cmd, r.catalog, actor.ID)
		if err != nil {
			FatalError("%v", err)
		}
		res, err := r.engine.Apply(rootCtx, ids[0], actor, upd)
		if err != nil {
			exitWithError(err)
		}
		printMutation(r.catalog, "Updated", res)
	},
}

var logTimeCmd = &cobra.Command{
	Use:     "log-time <id>",
	GroupID: "issues",
	Short:   "Log spent time on an issue",
	Long: `Log spent time on an issue without changing it.

Examples:
  tl log-time 12 --hours 1.5 --activity Design
  tl log-time 12 --from 10:00 --to 12:30 --spent-on yesterday`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ids, err := parseIDArgs(args)
		if err != nil {
			FatalError("%v", err)
		}
		r := openRuntime(rootCtx)
		tl, err := timeLogFromFlags(cmd, r.catalog)
		if err != nil {
			FatalError("%v", err)
		}
		if tl == nil {
			FatalErrorWithHint("no time given", "Pass --hours or --from/--to")
		}
		res, err := r.engine.Apply(rootCtx, ids[0], r.actor(), engine.Update{TimeLog: tl})
		if err != nil {
			exitWithError(err)
		}
		if jsonOutput {
			outputJSON(res)
			return
		}
		if res.TimeEntry == nil {
			printWarnings(res.Warnings)
			FatalError("no time was logged on #%d", ids[0])
		}
		fmt.Printf("%s Logged %s hours on %s\n", ui.RenderPassIcon(), res.TimeEntry.Hours.String(), ui.RenderIssueRef(ids[0]))
		printWarnings(res.Warnings)
	},
}

func updateFromFlags(cmd *cobra.Command, c *workflow.Catalog, author int64) (engine.Update, error) {
	changes, err := changeSetFromFlags(cmd, c)
	if err != nil {
		return engine.Update{}, err
	}
	tl, err := timeLogFromFlags(cmd, c)
	if err != nil {
		return engine.Update{}, err
	}
	notes, _ := cmd.Flags().GetString("notes")
	upd := engine.Update{
		Changes:     changes,
		Notes:       notes,
		TimeLog:     tl,
		Attachments: attachmentsFromFlags(cmd, author),
	}
	if cmd.Flags().Changed("lock-version") {
		v, _ := cmd.Flags().GetInt("lock-version")
		upd.LockVersion = &v
	}
	return upd, nil
}

// printMutation prints a single-issue result: the summary line, one line
// per change, then warnings.
func printMutation(c *workflow.Catalog, verb string, res *engine.Result) {
	if jsonOutput {
		outputJSON(res)
		return
	}
	if res.Journal == nil && res.TimeEntry == nil {
		fmt.Printf("%s No changes to %s\n", ui.RenderInfoIcon(), ui.RenderIssueRef(res.Issue.ID))
		printWarnings(res.Warnings)
		return
	}
	fmt.Printf("%s %s issue %s\n", ui.RenderPassIcon(), verb, ui.RenderIssueRef(res.Issue.ID))
	for _, line := range renderChanges(c, res.Changes) {
		fmt.Printf("  %s%s\n", ui.TreeLast, line)
	}
	if res.Journal != nil && res.Journal.Notes != "" {
		fmt.Printf("  %s%s\n", ui.TreeLast, ui.RenderMuted("Notes added"))
	}
	if res.TimeEntry != nil {
		fmt.Printf("  %s%s hours logged\n", ui.TreeLast, res.TimeEntry.Hours.String())
	}
	printWarnings(res.Warnings)
}

func init() {
	registerFieldFlags(createCmd)
	registerAttachFlag(createCmd)
	createCmd.Flags().StringSlice("watcher", nil, "Watcher login or id, repeatable")
	createCmd.Flags().StringP("notes", "m", "", "Initial notes, recorded in the journal")

	registerFieldFlags(updateCmd)
	registerAttachFlag(updateCmd)
	registerTimeFlags(updateCmd)
	updateCmd.Flags().StringP("notes", "m", "", "Notes for the journal entry")
	updateCmd.Flags().Int("lock-version", 0, "Fail if the issue changed since this lock version")

	registerTimeFlags(logTimeCmd)

	rootCmd.AddCommand(createCmd, updateCmd, logTimeCmd)
}
