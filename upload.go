package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/ircup/internal/config"
	"github.com/tonimelisma/ircup/internal/upload"
)

// errSomeUploadsFailed makes the process exit non-zero after the per-file
// results have been printed.
var errSomeUploadsFailed = errors.New("one or more uploads failed")

func newUploadCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "upload FILE...",
		Short: "Upload files and share the links",
		Long: `Connect to the configured IRC network, upload each file to the tus
server and post its link to the target channel or user.

When the network advertises EXTJWT, a token is requested before the uploads
start and sent as the Authorization header.`,
		Args: cobra.MinimumNArgs(1),
		RunE: runUpload,
	}

	addSessionFlags(cmd)

	return cmd
}

// addSessionFlags registers the flags that override [irc] settings for
// commands that connect.
func addSessionFlags(cmd *cobra.Command) {
	cmd.Flags().String("target", "", "channel or nick to share links with")
	cmd.Flags().String("server", "", "IRC server URL (irc://, ircs://, ws://, wss://)")
	cmd.Flags().String("nick", "", "nickname to register with")
}

func runUpload(cmd *cobra.Command, args []string) error {
	cc := mustCLIContext(cmd.Context())
	ctx := shutdownContext(cmd.Context(), cc.Logger)

	// Stat everything first so a typo fails before connecting.
	for _, path := range args {
		if _, err := os.Stat(path); err != nil {
			return fmt.Errorf("stat %s: %w", path, err)
		}
	}

	session, err := NewSession(ctx, config.NewHolder(cc.Cfg, cc.CfgPath), cc.Logger)
	if err != nil {
		return err
	}
	defer session.Close()

	files := make([]*upload.File, 0, len(args))

	for _, path := range args {
		f, err := session.File(path)
		if err != nil {
			return err
		}

		files = append(files, f)
	}

	pipeline, err := session.Pipeline()
	if err != nil {
		return err
	}

	outcomes, err := pipeline.Run(ctx, files)
	if err != nil {
		return err
	}

	return reportOutcomes(cc, os.Stdout, outcomes)
}

// outcomeJSON is the --json form of one upload result.
type outcomeJSON struct {
	Path       string `json:"path"`
	Name       string `json:"name"`
	Size       int64  `json:"size"`
	Type       string `json:"type"`
	URL        string `json:"url,omitempty"`
	Authorized bool   `json:"authorized"`
	Error      string `json:"error,omitempty"`
}

// reportOutcomes prints one line per file (or a JSON array) and returns
// errSomeUploadsFailed when any file failed.
func reportOutcomes(cc *CLIContext, w io.Writer, outcomes []upload.Outcome) error {
	failed := false

	if cc.Flags.JSON {
		out := make([]outcomeJSON, 0, len(outcomes))

		for _, o := range outcomes {
			j := outcomeJSON{
				Path:       o.File.Path,
				Name:       o.File.Name,
				Size:       o.File.Size,
				Type:       o.File.Type,
				URL:        o.ShareURL,
				Authorized: o.Authorized,
			}

			if o.Err != nil {
				j.Error = o.Err.Error()
				failed = true
			}

			out = append(out, j)
		}

		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")

		if err := enc.Encode(out); err != nil {
			return err
		}
	} else {
		for _, o := range outcomes {
			if o.Err != nil {
				failed = true
				cc.Statusf("%s: %v\n", o.File.Name, o.Err)

				continue
			}

			fmt.Fprintln(w, o.ShareURL)
			cc.Statusf("Uploaded %s (%s)\n", o.File.Name, formatSize(o.File.Size))
		}
	}

	if failed {
		return errSomeUploadsFailed
	}

	return nil
}
