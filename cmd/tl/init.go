package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/tracklog/tracklog/internal/config"
	"github.com/tracklog/tracklog/internal/hooks"
	"github.com/tracklog/tracklog/internal/storage/factory"
	"github.com/tracklog/tracklog/internal/ui"
	"github.com/tracklog/tracklog/internal/workflow"
)

const notifyTemplate = `# tracklog notification routes
#
# Every committed issue change is dispatched to the routes below.
# Types: log (structured log line), webhook (signed JSON POST),
# bus (NATS JetStream, needs nats.url in config.yaml).
# Executable scripts in .tracklog/hooks/ (on_create, on_update, on_close,
# on_delete) always run as well.

[[route]]
name = "log"
type = "log"

# [[route]]
# name = "ci"
# type = "webhook"
# url = "https://ci.example.com/hooks/tracklog"
# secret = "change-me"
# kinds = ["issue.updated", "issue.deleted"]
# timeout = "10s"

# [[route]]
# name = "journal"
# type = "bus"
`

// projectConfig is the starter .tracklog/config.yaml.
type projectConfig struct {
	Backend string `yaml:"backend"`
	DB      string `yaml:"db,omitempty"`
	Actor   string `yaml:"actor,omitempty"`
}

var initCmd = &cobra.Command{
	Use:     "init",
	GroupID: "setup",
	Short:   "Create a tracklog project in the current directory",
	Long: `Create .tracklog/ with a config file, the starter workflow catalog,
the notification routes and an empty database.

Edit .tracklog/workflow.yaml to describe your statuses, trackers, projects,
users, roles and status transitions.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		backend, _ := cmd.Flags().GetString("backend")
		force, _ := cmd.Flags().GetBool("force")

		cwd, err := os.Getwd()
		if err != nil {
			FatalError("%v", err)
		}
		dir := filepath.Join(cwd, config.DirName)
		workflowPath := filepath.Join(dir, "workflow.yaml")
		if _, err := os.Stat(workflowPath); err == nil && !force {
			FatalErrorWithHint(fmt.Sprintf("%s already exists", dir), "Use --force to overwrite the starter files")
		}
		if err := os.MkdirAll(filepath.Join(dir, hooks.DirName), 0o750); err != nil {
			FatalError("failed to create %s: %v", dir, err)
		}

		cfg := projectConfig{Backend: backend, Actor: config.GetString("actor")}
		data, err := yaml.Marshal(&cfg)
		if err != nil {
			FatalError("%v", err)
		}
		data = append([]byte("# tracklog project settings. TL_* environment variables override these.\n"), data...)
		files := []struct {
			name string
			data []byte
		}{
			{"config.yaml", data},
			{"workflow.yaml", workflow.DefaultYAML},
			{"notify.toml", []byte(notifyTemplate)},
		}
		for _, f := range files {
			if err := os.WriteFile(filepath.Join(dir, f.name), f.data, 0o600); err != nil {
				FatalError("failed to write %s: %v", f.name, err)
			}
		}

		// Re-read config so relative paths resolve against the new project.
		if err := config.Initialize(); err != nil {
			FatalError("%v", err)
		}
		applyConfigOverrides(cmd)

		opts := storeOptions()
		store, err := factory.New(rootCtx, backend, opts)
		if err != nil {
			if errors.Is(err, os.ErrPermission) {
				FatalErrorWithHint(err.Error(), "Check the permissions of "+dir)
			}
			FatalError("failed to create database: %v", err)
		}
		_ = store.Close()

		if jsonOutput {
			outputJSON(map[string]string{
				"path":     dir,
				"backend":  backend,
				"database": store.Path(),
			})
			return
		}
		fmt.Printf("%s Initialized tracklog in %s\n", ui.RenderPassIcon(), dir)
		fmt.Printf("  %s\n", ui.RenderMuted("Edit workflow.yaml to define statuses, projects and roles."))
	},
}

func init() {
	initCmd.Flags().String("backend", factory.BackendSQLite, "Storage backend (sqlite, dolt)")
	initCmd.Flags().Bool("force", false, "Overwrite existing starter files")
	rootCmd.AddCommand(initCmd)
}
