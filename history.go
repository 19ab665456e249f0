package main

import (
	"encoding/json"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/ircup/internal/config"
	"github.com/tonimelisma/ircup/internal/uploadstore"
)

func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent uploads",
		Args:  cobra.NoArgs,
		RunE:  runHistory,
	}

	cmd.Flags().Int("limit", 20, "number of uploads to show")

	return cmd
}

func runHistory(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())

	limit, err := cmd.Flags().GetInt("limit")
	if err != nil {
		return err
	}

	store, err := uploadstore.Open(cmd.Context(), config.DatabasePath(cc.Cfg.DataDir), cc.Logger)
	if err != nil {
		return err
	}
	defer store.Close()

	entries, err := store.List(cmd.Context(), limit)
	if err != nil {
		return err
	}

	if cc.Flags.JSON {
		return printHistoryJSON(os.Stdout, entries)
	}

	if len(entries) == 0 {
		cc.Statusf("No uploads recorded.\n")
		return nil
	}

	printHistoryTable(os.Stdout, entries)

	return nil
}

type historyJSON struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Path       string    `json:"path"`
	Size       int64     `json:"size"`
	Type       string    `json:"type"`
	URL        string    `json:"url"`
	Network    string    `json:"network"`
	Target     string    `json:"target,omitempty"`
	Authorized bool      `json:"authorized"`
	UploadedAt time.Time `json:"uploaded_at"`
}

func printHistoryJSON(w io.Writer, entries []uploadstore.Entry) error {
	out := make([]historyJSON, 0, len(entries))

	for _, e := range entries {
		out = append(out, historyJSON{
			ID:         e.ID,
			Name:       e.Name,
			Path:       e.Path,
			Size:       e.Size,
			Type:       e.MIMEType,
			URL:        e.ShareURL,
			Network:    e.Network,
			Target:     e.Target,
			Authorized: e.Authorized,
			UploadedAt: e.UploadedAt,
		})
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	return enc.Encode(out)
}

func printHistoryTable(w io.Writer, entries []uploadstore.Entry) {
	rows := make([][]string, 0, len(entries))

	for _, e := range entries {
		auth := "no"
		if e.Authorized {
			auth = "yes"
		}

		rows = append(rows, []string{
			formatTime(e.UploadedAt),
			formatSize(e.Size),
			e.Target,
			auth,
			e.ShareURL,
		})
	}

	printTable(w, []string{"UPLOADED", "SIZE", "TARGET", "AUTH", "URL"}, rows)
}

