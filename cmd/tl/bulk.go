package main

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/tracklog/tracklog/internal/bulk"
	"github.com/tracklog/tracklog/internal/config"
	"github.com/tracklog/tracklog/internal/deletions"
	"github.com/tracklog/tracklog/internal/move"
	"github.com/tracklog/tracklog/internal/types"
	"github.com/tracklog/tracklog/internal/ui"
)

var bulkEditCmd = &cobra.Command{
	Use:     "bulk-edit [<id>...] [--where <query>]",
	GroupID: "bulk",
	Short:   "Apply the same change to many issues",
	Long: `Apply one set of field values and notes to every listed issue. Fields
you do not pass stay as they are; 'none' clears a field. Each issue is
checked on its own, so some may fail while the others are saved.

Examples:
  tl bulk-edit 1,2,3 --priority High
  tl bulk-edit 4 5 --assignee none --notes "Unassigned for triage"
  tl bulk-edit --where 'status=open AND assignee=rhill' --assignee dlopper`,
	Args: cobra.ArbitraryArgs,
	Run: func(cmd *cobra.Command, args []string) {
		r := openRuntime(rootCtx)
		actor := r.actor()
		ids := targetIDs(cmd, r, args)
		changes, err := changeSetFromFlags(cmd, r.catalog)
		if err != nil {
			FatalError("%v", err)
		}
		notes, _ := cmd.Flags().GetString("notes")

		r.acquireRunLock(rootCtx, "bulk-edit")
		res, err := bulk.New(r.engine).Apply(rootCtx, ids, actor, changes, notes)
		if err != nil {
			if res != nil {
				reportRun(res.Succeeded, res.Warnings, "updated")
			}
			exitWithError(err)
		}
		if jsonOutput {
			outputJSON(res)
		} else {
			reportRun(res.Succeeded, res.Warnings, "updated")
		}
		if err := res.Err(); err != nil {
			exitWithError(err)
		}
	},
}

func newMoveCmd(mode move.Mode) *cobra.Command {
	verb, past := "Move", "moved"
	if mode == move.ModeCopy {
		verb, past = "Copy", "copied"
	}
	cmd := &cobra.Command{
		Use:     string(mode) + " [<id>...] [--where <query>] --to-project <project>",
		GroupID: "bulk",
		Short:   verb + " issues to another project",
		Args:    cobra.ArbitraryArgs,
		Run: func(cmd *cobra.Command, args []string) {
			r := openRuntime(rootCtx)
			ids := targetIDs(cmd, r, args)

			target, _ := cmd.Flags().GetString("to-project")
			if target == "" {
				FatalErrorWithHint("no target project", "Pass --to-project <identifier>")
			}
			projectRaw, err := resolveProject(r.catalog, target)
			if err != nil {
				FatalError("%v", err)
			}
			req := move.Request{
				IDs:   ids,
				Actor: r.actor(),
				Mode:  mode,
			}
			req.TargetProjectID, _ = strconv.ParseInt(projectRaw, 10, 64)
			if tracker, _ := cmd.Flags().GetString("to-tracker"); tracker != "" {
				raw, err := resolveTracker(r.catalog, tracker)
				if err != nil {
					FatalError("%v", err)
				}
				req.TargetTrackerID, _ = strconv.ParseInt(raw, 10, 64)
			}
			req.Overrides, err = changeSetFromFlags(cmd, r.catalog)
			if err != nil {
				FatalError("%v", err)
			}
			req.Notes, _ = cmd.Flags().GetString("notes")
			if mode == move.ModeCopy {
				req.Copy.Attachments, _ = cmd.Flags().GetBool("attachments")
				req.Copy.Children, _ = cmd.Flags().GetBool("children")
				req.Copy.Watchers, _ = cmd.Flags().GetBool("watchers")
			}

			r.acquireRunLock(rootCtx, string(mode))
			res, err := move.New(r.engine).Run(rootCtx, req)
			if err != nil {
				if res != nil {
					reportRun(res.Succeeded, res.Warnings, past)
				}
				exitWithError(err)
			}
			if jsonOutput {
				outputJSON(res)
			} else {
				reportRun(res.Succeeded, res.Warnings, past)
				printCopies(res.Copies)
			}
			if err := res.Err(); err != nil {
				exitWithError(err)
			}
		},
	}
	registerOverrideFlags(cmd)
	registerWhereFlag(cmd)
	cmd.Flags().String("to-project", "", "Target project identifier or id")
	cmd.Flags().String("to-tracker", "", "Target tracker (default: keep when the project has it)")
	cmd.Flags().StringP("notes", "m", "", "Notes added to every "+string(mode))
	if mode == move.ModeCopy {
		cmd.Flags().Bool("attachments", false, "Copy attachments")
		cmd.Flags().Bool("children", false, "Copy sub-issues")
		cmd.Flags().Bool("watchers", false, "Copy watchers")
	}
	return cmd
}

// registerOverrideFlags adds the field flags, minus the ones move and copy
// set through --to-project and --to-tracker.
func registerOverrideFlags(cmd *cobra.Command) {
	registerFieldFlags(cmd)
	_ = cmd.Flags().MarkHidden("project")
	_ = cmd.Flags().MarkHidden("tracker")
}

var deleteCmd = &cobra.Command{
	Use:     "delete [<id>...] [--where <query>]",
	GroupID: "bulk",
	Short:   "Delete issues and their sub-issues",
	Long: `Delete issues together with their sub-issues, journals and files.

When time was logged on them, say what happens to it with --todo:
  destroy          delete the time entries
  nullify          keep the entries on the project, detached from any issue
  reassign:<id>    move the entries to another issue

Every deleted issue is recorded in .tracklog/deletions.jsonl.`,
	Args: cobra.ArbitraryArgs,
	Run: func(cmd *cobra.Command, args []string) {
		todo, _ := cmd.Flags().GetString("todo")
		disp, err := deletions.ParseDisposition(todo)
		if err != nil {
			FatalError("%v", err)
		}
		reason, _ := cmd.Flags().GetString("reason")

		r := openRuntime(rootCtx)
		ids := targetIDs(cmd, r, args)
		r.acquireRunLock(rootCtx, "delete")
		d := deletions.New(r.engine, config.ResolvePath("deletions.manifest"))
		res, err := d.Delete(rootCtx, ids, r.actor(), disp, reason)
		if err != nil {
			exitWithError(err)
		}
		if jsonOutput {
			outputJSON(res)
		} else {
			fmt.Printf("%s Deleted %d issue(s)", ui.RenderPassIcon(), len(res.Deleted))
			if res.TimeEntries > 0 {
				fmt.Printf(", %d time entries handled (%s)", res.TimeEntries, disp.Todo)
			}
			fmt.Println()
			printWarnings(res.Warnings)
		}
		if err := res.Err(); err != nil {
			exitWithError(err)
		}
	},
}

// reportRun prints the succeeded ids of a coordinator run and its warnings.
func reportRun(succeeded []int64, warnings map[int64][]string, past string) {
	if jsonOutput {
		return
	}
	fmt.Printf("%s %d issue(s) %s", ui.RenderPassIcon(), len(succeeded), past)
	if len(succeeded) > 0 {
		fmt.Printf(": %s", types.FormatIDs(succeeded))
	}
	fmt.Println()
	ids := make([]int64, 0, len(warnings))
	for id := range warnings {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		for _, w := range warnings[id] {
			printWarnings([]string{fmt.Sprintf("#%d: %s", id, w)})
		}
	}
}

func printCopies(copies map[int64]int64) {
	src := make([]int64, 0, len(copies))
	for id := range copies {
		src = append(src, id)
	}
	sort.Slice(src, func(i, j int) bool { return src[i] < src[j] })
	for _, id := range src {
		fmt.Printf("  %s%s → %s\n", ui.TreeLast, ui.RenderIssueRef(id), ui.RenderIssueRef(copies[id]))
	}
}

func init() {
	registerFieldFlags(bulkEditCmd)
	registerWhereFlag(bulkEditCmd)
	registerWhereFlag(deleteCmd)
	bulkEditCmd.Flags().StringP("notes", "m", "", "Notes added to every issue")

	deleteCmd.Flags().String("todo", "", "What to do with logged time: destroy, nullify or reassign:<id>")
	deleteCmd.Flags().String("reason", "", "Reason recorded in the deletion manifest")

	rootCmd.AddCommand(bulkEditCmd, newMoveCmd(move.ModeMove), newMoveCmd(move.ModeCopy), deleteCmd)
}
