package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/GriffinCanCode/tapedeck/internal/playlist"
	"github.com/GriffinCanCode/tapedeck/internal/session"
)

var recordCmd = &cobra.Command{
	Use:   "record",
	Short: "Record the playlist now; press Enter or Ctrl-C to stop early",
	RunE:  runRecord,
}

func runRecord(cmd *cobra.Command, _ []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	pl, err := playlist.LoadM3U(cfg.Playlist)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
		return err
	}

	deps, err := buildDeps(ctx, cfg, func() (*playlist.Playlist, error) { return pl, nil })
	if err != nil {
		return err
	}
	mgr := session.NewManager(deps)

	// session outlives the signal context so Stop can still finalize and encode
	st, err := mgr.Start(context.WithoutCancel(ctx))
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Recording %q (%d tracks, %s). Start playback now; press Enter to stop.\n",
		pl.Name, pl.Len(), pl.TotalDuration().Round(time.Second))

	go printEvents(cmd, mgr.Events(), st.SessionID)

	enter := make(chan struct{})
	go func() {
		// no stdin (daemonized, piped from /dev/null): only signals stop
		if _, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n'); err == nil {
			close(enter)
		}
	}()

	finished := make(chan error, 1)
	go func() { finished <- mgr.Wait(context.Background()) }()

	select {
	case err = <-finished:
		st = mgr.Status()
	case <-enter:
		fmt.Fprintln(out, "Stopping...")
		st, err = mgr.Stop(context.Background())
	case <-ctx.Done():
		fmt.Fprintln(out, "Stopping...")
		st, err = mgr.Stop(context.Background())
	}

	if errors.Is(err, session.ErrNotRunning) {
		// finished on its own while the stop was being requested
		st, err = mgr.Status(), mgr.Wait(context.Background())
	}
	if err != nil {
		return fmt.Errorf("stopped at track %d: %w", st.Index+1, err)
	}
	fmt.Fprintf(out, "Done: %d finalized, %d discarded, %d encoded.\n", st.Finalized, st.Discarded, st.Encoded)
	return nil
}

func printEvents(cmd *cobra.Command, events <-chan session.Event, sessionID string) {
	out := cmd.OutOrStdout()
	for e := range events {
		if e.SessionID != sessionID {
			continue
		}
		switch e.Type {
		case session.EventTrackStarted:
			fmt.Fprintf(out, "  [%02d] recording %s\n", e.Index+1, e.Title)
		case session.EventTrackCompleted:
			fmt.Fprintf(out, "  [%02d] saved %s (%d bytes)\n", e.Index+1, e.Path, e.Bytes)
		case session.EventTrackDiscarded:
			fmt.Fprintf(out, "  [%02d] discarded %d bytes, retrying\n", e.Index+1, e.Bytes)
		case session.EventTrackEncoded:
			fmt.Fprintf(out, "  [%02d] encoded %s\n", e.Index+1, e.Path)
		case session.EventEncodeFailed:
			fmt.Fprintf(out, "  [%02d] encode failed, raw kept at %s: %s\n", e.Index+1, e.Path, e.Error)
		case session.EventArchiveFailed:
			fmt.Fprintf(out, "  [%02d] archive upload failed for %s: %s\n", e.Index+1, e.Path, e.Error)
		case session.EventSessionFailed:
			fmt.Fprintf(out, "Session failed at track %d: %s\n", e.Index+1, e.Error)
		}
	}
}
