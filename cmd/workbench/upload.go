package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"ragworkbench/internal/ingest"
	"ragworkbench/internal/view"
)

func newUploadCmd(opts *rootOptions) *cobra.Command {
	var (
		userID  string
		lang    string
		timeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "upload <file>",
		Short: "Upload a document and follow its ingestion",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := opts.load()
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()
			if userID == "" {
				userID = cfg.Ingest.UserID
			}

			file, err := ingest.OpenFile(args[0])
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			out := cmd.OutOrStdout()
			labels := view.Catalog(view.MatchLocale(lang, cfg.App.Locale))
			updates := make(chan ingest.Snapshot, 16)
			tracker := ingest.NewTracker(
				ingest.NewClient(cfg.Ingest.BaseURL, userID, cfg.UploadTimeout()),
				ingest.WithPollInterval(cfg.PollInterval()),
				ingest.WithLogger(log),
				ingest.WithObserver(func(s ingest.Snapshot) {
					select {
					case updates <- s:
					default:
					}
				}),
			)
			defer tracker.Close()

			if _, err := tracker.StartUpload(ctx, file); err != nil {
				return err
			}
			return followIngestion(ctx, out, tracker, updates, labels)
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "user id sent as X-User-ID (default ingest.user_id)")
	cmd.Flags().StringVar(&lang, "lang", "", "output language (en, es)")
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Minute, "give up after this long")
	return cmd
}

// followIngestion prints every distinct snapshot until the task settles.
// The ticker covers observer updates dropped on a full channel.
func followIngestion(ctx context.Context, out io.Writer, tracker *ingest.Tracker, updates <-chan ingest.Snapshot, s view.Strings) error {
	var last string
	show := func(snap ingest.Snapshot) {
		line := fmt.Sprintf("%-24s %3d%%", view.StageLabel(snap, s), snap.Progress)
		if snap.Error != "" {
			line += "  " + snap.Error
		}
		if line != last {
			fmt.Fprintln(out, line)
			last = line
		}
	}

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	show(tracker.Snapshot())
	for {
		var snap ingest.Snapshot
		select {
		case <-ctx.Done():
			return ctx.Err()
		case snap = <-updates:
		case <-ticker.C:
			snap = tracker.Snapshot()
		}
		show(snap)
		switch {
		case snap.Stage == ingest.StageCompleted:
			return nil
		case snap.Stage == ingest.StageIdle && snap.Error != "":
			return fmt.Errorf("ingestion failed: %s", snap.Error)
		}
	}
}
