package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var docsCmd = &cobra.Command{
	Use:   "docs",
	Short: "Show the per-document access leaderboard",
	Args:  cobra.NoArgs,
	RunE:  runDocs,
}

func init() {
	rootCmd.AddCommand(docsCmd)
}

func runDocs(cmd *cobra.Command, args []string) error {
	svc, err := buildService(cmd.Context())
	if err != nil {
		return err
	}

	stats, err := svc.DocumentLeaderboard(cmd.Context())
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "CID\tNAME\tEVENTS\tFIRST SEEN\tLAST SEEN")
	for _, s := range stats {
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n",
			s.CID, s.Name, s.EventCount, formatSeen(s.FirstSeen), formatSeen(s.LastSeen))
	}
	return w.Flush()
}

func formatSeen(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Format(time.RFC3339)
}
