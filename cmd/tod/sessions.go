package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/erentorlak/todv2/internal/config"
	"github.com/erentorlak/todv2/internal/state"
)

var purgeOlderThan time.Duration

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Inspect and clean up stored sessions",
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored sessions, most recent first",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(func(store state.Store) error {
			infos, err := store.ListSessions()
			if err != nil {
				return err
			}
			printSessions(os.Stdout, infos)
			return nil
		})
	},
}

var sessionsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Print the state of one session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(func(store state.Store) error {
			s, err := store.GetSession(args[0])
			if err != nil {
				return err
			}
			if s == nil {
				return fmt.Errorf("session %s not found", args[0])
			}
			data, err := json.MarshalIndent(s, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(data))
			return nil
		})
	},
}

var sessionsDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete one session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(func(store state.Store) error {
			if err := store.DeleteSession(args[0]); err != nil {
				return err
			}
			printStatus("✓", "Deleted session "+args[0], color.FgGreen)
			return nil
		})
	},
}

var sessionsPurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete sessions not updated within the retention period",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		retention := cfg.Store.Retention
		if purgeOlderThan > 0 {
			retention = purgeOlderThan
		}
		if retention <= 0 {
			return fmt.Errorf("no retention configured; pass --older-than")
		}
		return withStore(func(store state.Store) error {
			n, err := state.NewJanitor(store, retention, 0).Sweep()
			if err != nil {
				return err
			}
			printStatus("✓", fmt.Sprintf("Purged %d session(s) older than %s", n, retention), color.FgGreen)
			return nil
		})
	},
}

func init() {
	sessionsPurgeCmd.Flags().DurationVar(&purgeOlderThan, "older-than", 0, "Override store.retention")

	sessionsCmd.AddCommand(sessionsListCmd)
	sessionsCmd.AddCommand(sessionsShowCmd)
	sessionsCmd.AddCommand(sessionsDeleteCmd)
	sessionsCmd.AddCommand(sessionsPurgeCmd)
}

// withStore opens the configured session database for the duration of fn.
func withStore(fn func(state.Store) error) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	db, err := state.OpenAndMigrate(cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("open session store: %w", err)
	}
	defer db.Close()
	return fn(db)
}

func printSessions(w io.Writer, infos []state.SessionInfo) {
	if len(infos) == 0 {
		fmt.Fprintln(w, "No sessions.")
		return
	}
	ended := color.New(color.Faint)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tINTENT\tUPDATED\tSTATUS")
	for _, info := range infos {
		intent := info.Intent
		if intent == "" {
			intent = "-"
		}
		status := "open"
		if info.Ended {
			status = ended.Sprint("ended")
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", info.ID, intent, info.UpdatedAt.Local().Format(time.DateTime), status)
	}
	tw.Flush()
}
