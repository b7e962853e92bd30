package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/CentralLabFacilities/bonsai-sub000"
	"github.com/CentralLabFacilities/bonsai-sub000/internal/config"
	"github.com/CentralLabFacilities/bonsai-sub000/internal/presentation/tui"
	"github.com/CentralLabFacilities/bonsai-sub000/pkg/domain"
)

// ErrLoadFailed is returned when a chart cannot be started.
var ErrLoadFailed = errors.New("chart failed to load")

// Execute handles the 'run' command: load, start and wait until the chart
// finishes, a fatal error occurs or ctx is cancelled. In watch mode the
// chart is reloaded and restarted on every source change.
func Execute(ctx context.Context, opts RunOptions, in io.Reader, out io.Writer) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := createLogger(opts, cfg)

	fatal := make(chan error, 1)
	engine, plan, err := createEngine(opts, cfg, logger, domain.LifecycleHooks{},
		bonsai.WithFatalHandler(func(err error) {
			select {
			case fatal <- err:
			default:
			}
		}))
	if err != nil {
		return err
	}
	defer engine.Close()

	con := newConsole(out, false)
	engine.AddStatusListener(con)
	engine.AddExceptionListener(con)

	if opts.Interactive && in != nil {
		go readCommands(ctx, in, out, engine)
	}

	if opts.Watch {
		tui.PrintBanner(out, bonsai.Version)
		return runWatch(ctx, engine, plan, con, out)
	}

	if err := loadAndStart(ctx, engine, plan, con, out); err != nil {
		return err
	}
	select {
	case <-ctx.Done():
		engine.Stop()
		printSystemMessage(out, "Interrupted.")
		return nil
	case err := <-fatal:
		return err
	case <-con.finished:
		select {
		case err := <-fatal:
			return err
		default:
		}
		printSystemMessage(out, "Finished at %s.", strings.Join(engine.ActiveStates(), ", "))
		return nil
	}
}

func loadAndStart(ctx context.Context, engine *bonsai.Engine, plan loadPlan, con *console, out io.Writer) error {
	res := engine.Load(ctx, plan.overrides)
	if !res.Success() {
		printReport(out, plan.chart, res, false)
		return fmt.Errorf("%w: %w", ErrLoadFailed, res.Err())
	}
	if n := len(res.Validation.Warnings()); n > 0 {
		printSystemMessage(out, "Loaded with %d warning(s).", n)
	}
	con.arm()
	return engine.Start(ctx)
}

// readCommands interprets input lines: control words or event names.
func readCommands(ctx context.Context, in io.Reader, out io.Writer, engine *bonsai.Engine) {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
		case "pause":
			engine.Pause()
		case "resume":
			engine.Resume()
		case "stop":
			engine.Stop()
		case "status":
			fmt.Fprintln(out, tui.StatusLine(engine.Status(), engine.ActiveStates()))
		case "events":
			printSystemMessage(out, "Accepts: %s", strings.Join(engine.PossibleEvents(), ", "))
		default:
			if _, err := engine.FireEvent(ctx, line); err != nil {
				printSystemMessage(out, "Event '%s' rejected: %v", line, err)
			}
		}
	}
}
