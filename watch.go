package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/ircup/internal/config"
	"github.com/tonimelisma/ircup/internal/upload"
	"github.com/tonimelisma/ircup/internal/watch"
)

// watchQueueSize bounds settled files waiting for the uploader.
const watchQueueSize = 64

func newWatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch DIR",
		Short: "Upload and share files as they appear in a directory",
		Long: `Stay connected and upload every file created or modified under DIR once
it has stopped changing for watch.settle_delay. Files already present when
watching starts are left alone.

Send SIGHUP (or run "ircup reload") to re-read the config file. Upload and
watch settings take effect immediately; IRC settings need a restart.`,
		Args: cobra.ExactArgs(1),
		RunE: runWatch,
	}

	addSessionFlags(cmd)

	return cmd
}

func newReloadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reload",
		Short: "Make a running watcher re-read its config file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cc := mustCLIContext(cmd.Context())

			if err := sendSIGHUP(config.PIDPath(cc.Cfg.DataDir)); err != nil {
				return err
			}

			cc.Statusf("Reload requested.\n")

			return nil
		},
	}
}

func runWatch(cmd *cobra.Command, args []string) error {
	cc := mustCLIContext(cmd.Context())
	logger := cc.Logger

	cleanup, err := writePIDFile(config.PIDPath(cc.Cfg.DataDir))
	if err != nil {
		return err
	}
	defer cleanup()

	ctx := shutdownContext(cmd.Context(), logger)
	holder := config.NewHolder(cc.Cfg, cc.CfgPath)

	w, err := watch.New(args[0], cc.Cfg.Watch.SettleDelayDuration(), cc.Cfg.Watch.Ignore, logger)
	if err != nil {
		return err
	}
	defer w.Close()

	session, err := NewSession(ctx, holder, logger)
	if err != nil {
		return err
	}
	defer session.Close()

	cc.Statusf("Watching %s; sharing to %s\n", w.Root(), session.Target)

	settled := make(chan string, watchQueueSize)
	watchErr := make(chan error, 1)

	go func() { watchErr <- w.Run(ctx, settled) }()

	reload := reloadSignals(ctx)

	for {
		select {
		case <-ctx.Done():
			logger.Info("watch stopped")
			return nil

		case err := <-watchErr:
			return err

		case <-session.Conn.Done():
			if err := session.Conn.Err(); err != nil {
				return fmt.Errorf("connection to %s lost: %w", session.Conn, err)
			}

			return fmt.Errorf("connection to %s closed", session.Conn)

		case <-reload:
			reloadConfig(holder, w, logger)

		case path := <-settled:
			uploadSettled(ctx, cc, session, path, drain(settled))
		}
	}
}

// drain collects whatever else has settled so one pipeline run (and one
// token request) covers the batch.
func drain(ch <-chan string) []string {
	var paths []string

	for {
		select {
		case p := <-ch:
			paths = append(paths, p)
		default:
			return paths
		}
	}
}

func uploadSettled(ctx context.Context, cc *CLIContext, session *Session, first string, rest []string) {
	logger := cc.Logger
	files := make([]*upload.File, 0, 1+len(rest))

	for _, path := range append([]string{first}, rest...) {
		f, err := session.File(path)
		if err != nil {
			logger.Warn("skipping file", slog.String("path", path), slog.String("error", err.Error()))
			continue
		}

		files = append(files, f)
	}

	if len(files) == 0 {
		return
	}

	pipeline, err := session.Pipeline()
	if err != nil {
		logger.Error("building upload pipeline", slog.String("error", err.Error()))
		return
	}

	outcomes, err := pipeline.Run(ctx, files)
	if err != nil {
		logger.Warn("upload batch interrupted", slog.String("error", err.Error()))
	}

	if err := reportOutcomes(cc, os.Stdout, outcomes); err != nil && !errors.Is(err, errSomeUploadsFailed) {
		logger.Warn("reporting outcomes", slog.String("error", err.Error()))
	}
}

// reloadConfig re-reads the config file. An invalid file keeps the
// previous config.
func reloadConfig(holder *config.Holder, w *watch.Watcher, logger *slog.Logger) {
	cfg, err := holder.Reload()
	if err != nil {
		logger.Error("config reload failed; keeping previous config",
			slog.String("path", holder.Path()),
			slog.String("error", err.Error()),
		)

		return
	}

	w.Reconfigure(cfg.Watch.SettleDelayDuration(), cfg.Watch.Ignore)

	logger.Info("config reloaded", slog.String("path", holder.Path()))
}
