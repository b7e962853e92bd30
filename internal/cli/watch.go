package cli

import (
	"context"
	"io"
	"time"

	"github.com/CentralLabFacilities/bonsai-sub000"
)

// watchSettle lets editors finish writing before the reload.
const watchSettle = 100 * time.Millisecond

// runWatch loads and starts the chart, then restarts it whenever one of
// its sources changes. Load failures wait for the next change.
func runWatch(ctx context.Context, engine *bonsai.Engine, plan loadPlan, con *console, out io.Writer) error {
	for {
		if err := loadAndStart(ctx, engine, plan, con, out); err != nil {
			printSystemMessage(out, "Waiting for changes...")
		}

		iterCtx, cancel := context.WithCancel(ctx)
		changes, err := engine.Watch(iterCtx)
		if err != nil {
			cancel()
			return err
		}

		select {
		case <-ctx.Done():
			cancel()
			engine.Stop()
			printSystemMessage(out, "Stopping watcher.")
			return nil
		case _, ok := <-changes:
			cancel()
			if !ok {
				return nil
			}
			printSystemMessage(out, "Change detected, reloading.")
			time.Sleep(watchSettle)
		}
	}
}
