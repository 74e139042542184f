package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tracklog/tracklog/internal/types"
	"github.com/tracklog/tracklog/internal/ui"
)

type statusOption struct {
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	Closed  bool   `json:"is_closed"`
	Current bool   `json:"current,omitempty"`
}

var statusesCmd = &cobra.Command{
	Use:     "statuses <id>",
	GroupID: "setup",
	Short:   "List the statuses you may move an issue to",
	Long: `List the statuses the acting user may set on an issue, following the
workflow of its tracker and the user's roles in its project.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ids, err := parseIDArgs(args)
		if err != nil {
			FatalError("%v", err)
		}
		r := openRuntime(rootCtx)
		actor := r.actor()
		issue := loadVisibleIssue(r, ids[0], actor)

		var out []statusOption
		for _, id := range allowedStatuses(r, actor, issue) {
			s, ok := r.catalog.Status(id)
			if !ok {
				continue
			}
			out = append(out, statusOption{ID: s.ID, Name: s.Name, Closed: s.IsClosed, Current: s.ID == issue.StatusID})
		}
		if jsonOutput {
			outputJSON(out)
			return
		}
		fmt.Printf("Statuses for %s (%s):\n", ui.RenderIssueRef(issue.ID), valueName(r.catalog, types.FieldTracker, ptr(idString(issue.TrackerID))))
		for _, s := range out {
			marker := ui.TreeIndent
			if s.Current {
				marker = ui.RenderAccent("* ")
			}
			name := s.Name
			if s.Closed {
				name += " " + ui.RenderMuted("(closed)")
			}
			fmt.Printf("  %s%d  %s\n", marker, s.ID, name)
		}
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		if jsonOutput {
			outputJSON(map[string]string{"version": Version, "build": Build})
			return
		}
		fmt.Printf("tl version %s (%s)\n", Version, Build)
	},
}

func init() {
	rootCmd.AddCommand(statusesCmd, versionCmd)
}
