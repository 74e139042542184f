package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tracklog/tracklog/internal/config"
	"github.com/tracklog/tracklog/internal/debug"
	"github.com/tracklog/tracklog/internal/telemetry"
	"github.com/tracklog/tracklog/internal/ui"
)

var (
	// Version is set at build time.
	Version = "0.1.0"
	Build   = "dev"
)

var (
	dbPath     string
	actorLogin string
	jsonOutput bool

	verboseFlag bool
	quietFlag   bool
	noColorFlag bool

	rootCtx    context.Context
	rootCancel context.CancelFunc

	// rt is opened lazily by commands that touch the database.
	rt *runtime
)

func init() {
	if err := config.Initialize(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to initialize config: %v\n", err)
	}

	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "Database path (default: .tracklog/tracklog.db)")
	rootCmd.PersistentFlags().StringVar(&actorLogin, "actor", "", "Login of the acting user (default: $TL_ACTOR, config actor, $USER)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "Enable verbose/debug output")
	rootCmd.PersistentFlags().BoolVarP(&quietFlag, "quiet", "q", false, "Suppress non-essential output (errors only)")
	rootCmd.PersistentFlags().BoolVar(&noColorFlag, "no-color", false, "Disable colored output")
	rootCmd.Flags().BoolP("version", "V", false, "Print version information")

	rootCmd.AddGroup(&cobra.Group{ID: "issues", Title: "Working With Issues:"})
	rootCmd.AddGroup(&cobra.Group{ID: "bulk", Title: "Bulk Operations:"})
	rootCmd.AddGroup(&cobra.Group{ID: "setup", Title: "Setup & Reference Data:"})
}

var rootCmd = &cobra.Command{
	Use:   "tl",
	Short: "tl - issue mutation and journaling engine",
	Long: `tl edits issues under workflow and permission rules and records every
change in a journal. Bulk edit, move, copy and delete apply the same rules
to many issues at once.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	Run: func(cmd *cobra.Command, args []string) {
		if v, _ := cmd.Flags().GetBool("version"); v {
			fmt.Printf("tl version %s (%s)\n", Version, Build)
			return
		}
		_ = cmd.Help()
	},
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		setupSignalContext()
		applyVerbosityFlags()
		applyConfigOverrides(cmd)
		ui.Configure(noColorFlag)
		if err := telemetry.Init(rootCtx, "tl", Version); err != nil {
			WarnError("telemetry disabled: %v", err)
		}
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		shutdown()
	},
}

func setupSignalContext() {
	rootCtx, rootCancel = signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func applyVerbosityFlags() {
	debug.SetVerbose(verboseFlag)
	debug.SetQuiet(quietFlag)
	debug.SetFormat(config.GetString("log.format"))
}

// applyConfigOverrides copies explicitly set flags into config so that flags
// win over env and files.
func applyConfigOverrides(cmd *cobra.Command) {
	if cmd.Flags().Changed("db") {
		config.Set("db", dbPath)
	}
	if cmd.Flags().Changed("actor") {
		config.Set("actor", actorLogin)
	}
	if cmd.Flags().Changed("json") {
		config.Set("json", jsonOutput)
	}
	jsonOutput = config.GetBool("json")
}

// shutdown drains notifications and closes everything opened for the
// command. Safe to call more than once.
func shutdown() {
	if rt != nil {
		rt.Close()
		rt = nil
	}
	telemetry.Shutdown(context.Background())
	if rootCancel != nil {
		rootCancel()
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		exitWithError(err)
	}
}
