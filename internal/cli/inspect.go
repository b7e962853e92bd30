package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/CentralLabFacilities/bonsai-sub000/internal/compiler"
	"github.com/CentralLabFacilities/bonsai-sub000/internal/config"
	"github.com/CentralLabFacilities/bonsai-sub000/internal/logging"
	"github.com/CentralLabFacilities/bonsai-sub000/internal/presentation/graph"
	"github.com/CentralLabFacilities/bonsai-sub000/pkg/domain"
)

// Validate loads the chart without starting it and prints the report.
// It returns ErrLoadFailed if the chart could not be started.
func Validate(ctx context.Context, opts RunOptions, raw bool, out io.Writer) error {
	res, plan, err := load(ctx, opts)
	if err != nil {
		return err
	}
	printReport(out, plan.chart, res, raw)
	if !res.Success() {
		return ErrLoadFailed
	}
	return nil
}

// Compose writes the composed chart as YAML. Validation findings do not
// prevent composition; assembly errors do.
func Compose(ctx context.Context, opts RunOptions, out io.Writer) error {
	res, _, err := load(ctx, opts)
	if err != nil {
		return err
	}
	if res.Composed == nil {
		return fmt.Errorf("%w: %w", ErrLoadFailed, res.Err())
	}
	_, err = out.Write(res.Composed)
	return err
}

// Graph writes a Mermaid flowchart of the composed chart.
func Graph(ctx context.Context, opts RunOptions, out io.Writer) error {
	res, _, err := load(ctx, opts)
	if err != nil {
		return err
	}
	if res.Composed == nil {
		return fmt.Errorf("%w: %w", ErrLoadFailed, res.Err())
	}
	doc, err := decode(res.Composed)
	if err != nil {
		return err
	}
	_, err = io.WriteString(out, graph.GenerateMermaid(doc, nil))
	return err
}

func decode(composed []byte) (*domain.Document, error) {
	p := compiler.NewParser()
	raw, err := p.Parse(composed)
	if err != nil {
		return nil, err
	}
	return p.Compile(raw)
}

// load runs a single load with a quiet logger unless debugging.
func load(ctx context.Context, opts RunOptions) (*domain.LoadingResult, loadPlan, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, loadPlan{}, err
	}
	logger := logging.NewNop()
	if opts.Debug {
		logger = createLogger(opts, cfg)
	}
	cfg.Heartbeat = 0

	engine, plan, err := createEngine(opts, cfg, logger, domain.LifecycleHooks{})
	if err != nil {
		return nil, loadPlan{}, err
	}
	defer engine.Close()
	return engine.Load(ctx, plan.overrides), plan, nil
}
