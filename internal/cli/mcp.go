package cli

import (
	"context"
	"fmt"

	"github.com/CentralLabFacilities/bonsai-sub000"
	"github.com/CentralLabFacilities/bonsai-sub000/internal/config"
	"github.com/CentralLabFacilities/bonsai-sub000/internal/logging"
	mcpadapter "github.com/CentralLabFacilities/bonsai-sub000/pkg/adapters/mcp"
	"github.com/CentralLabFacilities/bonsai-sub000/pkg/domain"
)

// ServeMCP exposes the engine to MCP clients over stdio or SSE.
// Logs stay off stdout so they cannot corrupt the stdio transport.
func ServeMCP(ctx context.Context, opts RunOptions, transport, addr string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := logging.NewNop()
	if opts.Debug {
		logger = createLogger(opts, cfg)
	}

	engine, plan, err := createEngine(opts, cfg, logger, domain.LifecycleHooks{})
	if err != nil {
		return err
	}
	defer engine.Close()

	if res := engine.Load(ctx, plan.overrides); !res.Success() {
		logger.Warn("chart not loaded", "err", res.Err())
	}

	srv := mcpadapter.NewServer(engine, bonsai.Version, logger)
	switch transport {
	case "stdio":
		return srv.ServeStdio()
	case "sse":
		return srv.ServeSSE(ctx, addr)
	default:
		return fmt.Errorf("unknown transport %q (want stdio or sse)", transport)
	}
}
