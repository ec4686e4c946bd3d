// Package watch tails run lifecycle events from the archive's Pub/Sub
// channel and waits on run completion.
package watch

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/dyluth/drey/internal/coordinator"
	"github.com/dyluth/drey/internal/format"
	"github.com/dyluth/drey/internal/store"
)

// Tail subscribes to run events and writes one formatted line per event
// until the context is cancelled. A non-empty runID filters to that run.
func Tail(ctx context.Context, client *store.Client, w io.Writer, runID string) error {
	sub, err := client.SubscribeRunEvents(ctx)
	if err != nil {
		return fmt.Errorf("failed to subscribe to run events: %w", err)
	}
	defer sub.Close()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case err, ok := <-sub.Errors():
			if !ok {
				return nil
			}
			fmt.Fprintf(w, "watch: %v\n", err)

		case e, ok := <-sub.Events():
			if !ok {
				return nil
			}
			if runID != "" && e.RunID != runID {
				continue
			}
			fmt.Fprintln(w, format.FormatEvent(e))
		}
	}
}

// PollForTerminal polls the archive until the run reaches a terminal status.
// Returns the final run snapshot or an error if timeout occurs.
// Polls every 200ms for the specified timeout duration.
func PollForTerminal(ctx context.Context, client *store.Client, runID string, timeout time.Duration) (coordinator.RunInfo, error) {
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	timeoutCh := time.After(timeout)

	for {
		select {
		case <-ctx.Done():
			return coordinator.RunInfo{}, ctx.Err()

		case <-timeoutCh:
			return coordinator.RunInfo{}, fmt.Errorf("timeout waiting for run %s after %v", runID, timeout)

		case <-ticker.C:
			info, err := client.GetRun(ctx, runID)
			if err != nil {
				if store.IsNotFound(err) {
					// Not archived yet, continue polling
					continue
				}
				return coordinator.RunInfo{}, fmt.Errorf("failed to query run: %w", err)
			}
			if info.Status.Terminal() {
				return info, nil
			}
		}
	}
}
