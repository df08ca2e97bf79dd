package cmd

import (
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"wormhole/internal/history"
	"wormhole/pkg/utils"
)

var historyLimit int

// historyCmd lists past transfers
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent transfers",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		path := cfg.HistoryPath()
		if path == "" {
			return errors.New("transfer history is disabled, set --history")
		}

		store, err := history.Open(path)
		if err != nil {
			return err
		}
		defer store.Close()

		entries, err := store.List(historyLimit)
		if err != nil {
			return err
		}
		printHistory(entries)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Number of entries to show, 0 for all")
}

func printHistory(entries []history.Entry) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	defer w.Flush()

	fmt.Fprintln(w, "FINISHED\tDIRECTION\tNAMEPLATE\tNAME\tSIZE\tOUTCOME")
	for _, e := range entries {
		name := e.Filename
		if name == "" {
			name = "(" + e.Kind + ")"
		}
		outcome := e.Outcome
		if e.Reason != "" {
			outcome += ": " + e.Reason
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			e.FinishedAt.Local().Format(time.DateTime),
			e.Direction,
			e.Nameplate,
			name,
			utils.FormatFileSize(e.Size),
			outcome)
	}
}
