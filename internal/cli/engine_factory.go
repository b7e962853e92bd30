package cli

import (
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/CentralLabFacilities/bonsai-sub000"
	"github.com/CentralLabFacilities/bonsai-sub000/internal/config"
	"github.com/CentralLabFacilities/bonsai-sub000/internal/telemetry"
	"github.com/CentralLabFacilities/bonsai-sub000/pkg/adapters/process"
	"github.com/CentralLabFacilities/bonsai-sub000/pkg/domain"
	"github.com/CentralLabFacilities/bonsai-sub000/pkg/observability"
	"github.com/CentralLabFacilities/bonsai-sub000/pkg/skills"
)

// loadPlan is the resolved chart source plus everything Load needs.
type loadPlan struct {
	chart     string
	overrides map[string]string
}

// createEngine initializes an engine with standard CLI conventions:
// environment settings, then the project file, then flags.
func createEngine(opts RunOptions, cfg config.Config, logger *slog.Logger, hooks domain.LifecycleHooks, extra ...bonsai.Option) (*bonsai.Engine, loadPlan, error) {
	includes, err := ParseKeyValues(opts.Includes)
	if err != nil {
		return nil, loadPlan{}, fmt.Errorf("--include: %w", err)
	}
	set, err := ParseKeyValues(opts.Set)
	if err != nil {
		return nil, loadPlan{}, fmt.Errorf("--set: %w", err)
	}

	project := &config.Project{Chart: opts.Chart}
	if opts.Project != "" {
		if project, err = config.LoadProject(opts.Project); err != nil {
			return nil, loadPlan{}, err
		}
		if opts.Chart != "" {
			project.Chart = opts.Chart
		}
	}
	project.Merge(includes, set)
	if project.Chart == "" {
		return nil, loadPlan{}, fmt.Errorf("no chart given")
	}

	if opts.Debug {
		hooks = observability.Chain(hooks, observability.LogHooks(logger))
	}

	engineOpts := []bonsai.Option{
		bonsai.WithLogger(logger),
		bonsai.WithLifecycleHooks(hooks),
		bonsai.WithHeartbeat(cfg.Heartbeat),
		bonsai.WithEndTimeout(cfg.EndTimeout),
		bonsai.WithExceptionCapacity(cfg.ExceptionCapacity),
		bonsai.WithIncludes(project.Includes),
		bonsai.WithContextValues(project.Context),
		bonsai.WithAllowUnknownSkills(opts.AllowUnknown || project.AllowUnknownSkills || cfg.AllowUnknownSkills),
		bonsai.WithWarningsAsErrors(opts.Strict || project.WarningsAsErrors || cfg.WarningsAsErrors),
		bonsai.WithTracer(telemetry.Tracer()),
	}
	engineOpts = append(engineOpts, extra...)

	engine, err := bonsai.New(project.Chart, engineOpts...)
	if err != nil {
		return nil, loadPlan{}, fmt.Errorf("error initializing engine: %w", err)
	}
	skills.Register(engine.Registry(), "")
	if project.Processes != "" {
		procs, err := process.LoadProcesses(project.Processes)
		if err != nil {
			_ = engine.Close()
			return nil, loadPlan{}, err
		}
		err = process.Register(engine.Registry(), "", procs,
			process.WithBaseDir(filepath.Dir(project.Processes)),
			process.WithLogger(logger))
		if err != nil {
			_ = engine.Close()
			return nil, loadPlan{}, err
		}
		logger.Debug("process skills registered", "file", project.Processes, "count", len(procs))
	}

	return engine, loadPlan{chart: project.Chart, overrides: project.Set}, nil
}
