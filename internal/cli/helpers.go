package cli

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/CentralLabFacilities/bonsai-sub000/internal/config"
	"github.com/CentralLabFacilities/bonsai-sub000/internal/logging"
	"github.com/CentralLabFacilities/bonsai-sub000/internal/presentation/tui"
	"github.com/CentralLabFacilities/bonsai-sub000/pkg/domain"
)

// createLogger configures the application logger. Flags override the
// environment; logs always go to stderr.
func createLogger(opts RunOptions, cfg config.Config) *slog.Logger {
	level := logging.ParseLevel(cfg.LogLevel)
	if opts.Debug {
		level = slog.LevelDebug
	}
	return logging.New(level, opts.JSONLog || cfg.LogJSON)
}

// printSystemMessage prints a standardized system message.
func printSystemMessage(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, ">>> %s\n", fmt.Sprintf(format, args...))
}

// printReport renders a loading result as terminal markdown.
func printReport(w io.Writer, source string, res *domain.LoadingResult, raw bool) {
	md := tui.Report(source, res)
	if raw {
		fmt.Fprint(w, md)
		return
	}
	out, err := tui.NewRenderer()(md)
	if err != nil {
		out = md
	}
	fmt.Fprint(w, out)
}
