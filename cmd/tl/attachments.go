package main

import (
	"mime"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/tracklog/tracklog/internal/engine"
	"github.com/tracklog/tracklog/internal/types"
	"github.com/tracklog/tracklog/internal/workflow"
)

// registerAttachFlag adds --attach. Only the file metadata is recorded;
// tracklog does not store file contents.
func registerAttachFlag(cmd *cobra.Command) {
	cmd.Flags().StringArray("attach", nil, "Attach a file (metadata only), repeatable")
}

func attachmentsFromFlags(cmd *cobra.Command, author int64) []*types.Attachment {
	paths, _ := cmd.Flags().GetStringArray("attach")
	var out []*types.Attachment
	for _, path := range paths {
		// A blank name is passed through; the engine skips it with a warning.
		a := &types.Attachment{AuthorID: author}
		if path != "" {
			a.Filename = filepath.Base(path)
			a.ContentType = mime.TypeByExtension(filepath.Ext(path))
			if info, err := os.Stat(path); err == nil {
				a.Filesize = info.Size()
			} else {
				WarnError("cannot read %s: %v", path, err)
			}
		}
		out = append(out, a)
	}
	return out
}

// registerTimeFlags adds the spent time flags shared by update and log-time.
func registerTimeFlags(cmd *cobra.Command) {
	cmd.Flags().String("hours", "", "Spent time (2.5, 2:30, 2h30m)")
	cmd.Flags().String("from", "", "Spent time start, HH:MM (with --to)")
	cmd.Flags().String("to", "", "Spent time end, HH:MM (with --from)")
	cmd.Flags().String("activity", "", "Time entry activity name or id (default: catalog default)")
	cmd.Flags().String("comment", "", "Time entry comment")
	cmd.Flags().String("spent-on", "", "Day the time was spent (default: today)")
}

// timeLogFromFlags returns nil when no time flag was given.
func timeLogFromFlags(cmd *cobra.Command, c *workflow.Catalog) (*engine.TimeLog, error) {
	tl := &engine.TimeLog{}
	tl.Hours, _ = cmd.Flags().GetString("hours")
	tl.SpentFrom, _ = cmd.Flags().GetString("from")
	tl.SpentTo, _ = cmd.Flags().GetString("to")
	tl.Comments, _ = cmd.Flags().GetString("comment")
	tl.SpentOn, _ = cmd.Flags().GetString("spent-on")
	if activity, _ := cmd.Flags().GetString("activity"); activity != "" {
		id, err := resolveActivity(c, activity)
		if err != nil {
			return nil, err
		}
		tl.ActivityID = id
	}
	if *tl == (engine.TimeLog{}) {
		return nil, nil
	}
	return tl, nil
}
