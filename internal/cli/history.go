package cli

import (
	"context"
	"flag"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/DDownesK12Solutions/PIPSPlus-Sync-UI-sub000/internal/history"
)

func runHistory(cmd *Command) func(args []string, stdout, stderr io.Writer) int {
	return func(args []string, stdout, stderr io.Writer) int {
		if wantsHelp(args) {
			printCommandUsage(cmd, stdout)
			return ExitOK
		}
		fs := flag.NewFlagSet(cmd.Name, flag.ContinueOnError)
		fs.SetOutput(stderr)
		configPath := fs.String("config", "", "Path to config file (default: search for .pipsync/config.yml)")
		limit := fs.Int("limit", 20, "Maximum number of runs to list")
		if err := fs.Parse(args); err != nil {
			return ExitUsage
		}

		cfg, err := loadConfig(*configPath)
		if err != nil {
			fmt.Fprintf(stderr, "Failed to load config: %v\n", err)
			return ExitError
		}

		store, err := history.Open(cfg.History.Path)
		if err != nil {
			fmt.Fprintf(stderr, "Failed to open history: %v\n", err)
			return ExitError
		}
		defer store.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		entries, err := store.Recent(ctx, *limit)
		if err != nil {
			fmt.Fprintf(stderr, "Failed to list history: %v\n", err)
			return ExitError
		}
		if len(entries) == 0 {
			fmt.Fprintln(stdout, "No recorded runs yet.")
			return ExitOK
		}

		w := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ENDED\tSTATUS\tCLIENT\tENTITY\tSOT\tRECORDS\tRULE ERRORS\tRUN")
		for _, entry := range entries {
			ended := ""
			if !entry.EndedAt.IsZero() {
				ended = entry.EndedAt.Local().Format("2006-01-02 15:04")
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\t%d\t%s\n",
				ended, entry.Status, entry.ClientID, entry.EntityType, entry.SourceOfTruth,
				entry.RecordCount, entry.RuleErrorCount, entry.CorrelationID)
		}
		_ = w.Flush()
		return ExitOK
	}
}
