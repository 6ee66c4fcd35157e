package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/tendant/simple-tracking/pkg/simpletracking"
)

var registerCmd = &cobra.Command{
	Use:   "register [file]",
	Short: "Register tracked documents from a JSON file",
	Long: `Register one or more tracked documents.

The file holds either a single JSON object or a JSON array of objects
with fields cid, name, file_path and metadata. Use "-" to read from
stdin. Entries without a cid are skipped; registration is idempotent
by cid.`,
	Args: cobra.ExactArgs(1),
	RunE: runRegister,
}

func init() {
	rootCmd.AddCommand(registerCmd)
}

type registerEntry struct {
	CID      string                 `json:"cid"`
	Name     string                 `json:"name"`
	FilePath string                 `json:"file_path"`
	Metadata map[string]interface{} `json:"metadata"`
}

func runRegister(cmd *cobra.Command, args []string) error {
	var data []byte
	var err error
	if args[0] == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(args[0])
	}
	if err != nil {
		return err
	}

	var entries []registerEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		var single registerEntry
		if err := json.Unmarshal(data, &single); err != nil {
			return fmt.Errorf("invalid JSON: %w", err)
		}
		entries = []registerEntry{single}
	}

	svc, err := buildService(cmd.Context())
	if err != nil {
		return err
	}

	reqs := make([]simpletracking.RegisterDocumentRequest, 0, len(entries))
	for _, e := range entries {
		reqs = append(reqs, simpletracking.RegisterDocumentRequest{
			CID:      e.CID,
			Name:     e.Name,
			FilePath: e.FilePath,
			Metadata: e.Metadata,
		})
	}

	registered, err := svc.RegisterDocuments(cmd.Context(), reqs)
	if err != nil {
		return err
	}

	for _, cid := range registered {
		fmt.Fprintln(cmd.OutOrStdout(), cid)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "registered %d of %d documents\n", len(registered), len(entries))
	return nil
}
