package runtime

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"strings"

	"github.com/CentralLabFacilities/bonsai-sub000/internal/assembler"
	"github.com/CentralLabFacilities/bonsai-sub000/internal/chart"
	"github.com/CentralLabFacilities/bonsai-sub000/internal/expr"
	"github.com/CentralLabFacilities/bonsai-sub000/internal/validator"
	"github.com/CentralLabFacilities/bonsai-sub000/pkg/domain"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

// Load assembles, evaluates, configures and validates the chart at source.
// A running machine is stopped first. Load may be repeated to swap charts;
// only a successful result replaces the loaded chart.
func (c *Controller) Load(ctx context.Context, source string, overrides map[string]string) *domain.LoadingResult {
	ctx, span := c.tracer.Start(ctx, "bonsai.load", trace.WithAttributes(attribute.String("bonsai.source", source)))
	defer span.End()

	c.mu.Lock()
	defer c.mu.Unlock()

	c.loading.Store(true)
	c.notifyStatus()
	defer func() {
		c.loading.Store(false)
		c.notifyStatus()
	}()

	c.stopLocked()
	c.source = source
	c.overrides = maps.Clone(overrides)

	res, next := c.load(ctx, source, overrides)
	c.result.Store(res)
	if !res.Success() {
		c.chart = nil
		c.ready.Store(false)
		span.RecordError(res.Err())
		c.logger.Warn("chart not loaded", "source", source, "err", res.Err())
		c.publishLocked()
		return res
	}

	c.chart = next
	c.ready.Store(true)
	c.publishLocked()
	c.logger.Info("chart loaded",
		"source", source,
		"chart", next.doc.Name,
		"states", len(next.doc.States),
		"warnings", len(res.Validation.Warnings()))
	return res
}

// Reload repeats the last load with the same source and overrides and
// restarts the machine if it was running.
func (c *Controller) Reload(ctx context.Context) *domain.LoadingResult {
	c.mu.Lock()
	source, overrides := c.source, c.overrides
	wasRunning := c.running.Load()
	c.mu.Unlock()

	if source == "" {
		return &domain.LoadingResult{LoadErrors: []error{domain.ErrNotLoaded}}
	}
	res := c.Load(ctx, source, overrides)
	if res.Success() && wasRunning {
		if err := c.Start(ctx); err != nil {
			res.LoadErrors = append(res.LoadErrors, fmt.Errorf("restart: %w", err))
		}
	}
	return res
}

func (c *Controller) load(ctx context.Context, source string, overrides map[string]string) (*domain.LoadingResult, *loaded) {
	res := &domain.LoadingResult{WarningsAsErrors: c.warningsAsErrors}

	asm := assembler.New(c.loader, assembler.WithIncludes(c.includes), assembler.WithLogger(c.logger))
	composed, err := asm.Assemble(source)
	if err != nil {
		res.LoadErrors = append(res.LoadErrors, err)
		var le *domain.LoadingError
		if errors.As(err, &le) && errors.Is(err, domain.ErrDuplicateState) {
			res.Validation.Add(validator.DuplicateID(le.Key))
		}
		return res, nil
	}
	res.Composed = composed.Composed
	res.Sources = composed.Sources
	doc := composed.Document

	eval := expr.New(expr.WithValues(c.contextValues), expr.WithLogger(c.logger))
	vars, err := eval.EvalDatamodel(doc.Datamodel, overrides)
	res.Variables = vars
	if err != nil {
		res.LoadErrors = append(res.LoadErrors, err)
		return res, nil
	}

	next := &loaded{
		doc:     doc,
		eval:    eval,
		prefix:  vars[domain.StatePrefixVariable],
		options: make(map[domain.StateIndex]map[string]string),
	}
	for i := range doc.States {
		idx := domain.StateIndex(i)
		if doc.IsSimple(idx) {
			next.options[idx] = optionsFor(doc.States[i].ID, vars)
		}
	}

	outcomes := c.configure(ctx, next, res)
	res.Validation.Merge(validator.New(c.logger).Validate(doc, outcomes))
	if !res.Success() {
		return res, nil
	}

	next.interp = chart.New(doc, eval, c.callbacks(), chart.WithLogger(c.logger))
	return res, next
}

// configure builds and configures one skill instance per simple state to
// collect its outcomes and resource failures. Skills are configured in
// parallel; results are merged in document order.
func (c *Controller) configure(ctx context.Context, next *loaded, res *domain.LoadingResult) validator.Outcomes {
	doc := next.doc
	type outcome struct {
		finding  *domain.Finding
		err      error
		statuses []domain.ExitStatus
	}
	results := make([]outcome, len(doc.States))

	g, _ := errgroup.WithContext(ctx)
	for i := range doc.States {
		idx := domain.StateIndex(i)
		if !doc.IsSimple(idx) {
			continue
		}
		id := doc.States[i].ID
		skill := domain.SkillName(id)
		if domain.IsTerminalSkill(skill) {
			continue
		}
		key := next.prefix + skill
		if !c.registry.Has(key) {
			f := validator.UnknownSkill(id, key, c.allowUnknown)
			results[i].finding = &f
			continue
		}
		g.Go(func() error {
			results[i].statuses, results[i].err = c.configureState(id, key, next.options[idx])
			return nil
		})
	}
	_ = g.Wait()

	outcomes := make(validator.Outcomes)
	res.Outcomes = make(map[string][]domain.ExitStatus)
	for i, r := range results {
		if r.finding != nil {
			res.Validation.Add(*r.finding)
		}
		if r.err != nil {
			res.ConfigErrors = append(res.ConfigErrors, r.err)
		}
		if r.statuses != nil {
			outcomes[domain.StateIndex(i)] = r.statuses
			res.Outcomes[doc.States[i].ID] = r.statuses
		}
	}
	return outcomes
}

func (c *Controller) configureState(stateID, key string, options map[string]string) (statuses []domain.ExitStatus, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("configure %s: panic: %v", stateID, p)
		}
	}()

	skill, err := c.registry.New(key)
	if err != nil {
		return nil, err
	}
	cfg := c.catalog.Configurator(stateID, options)
	if err := skill.Configure(cfg); err != nil {
		return cfg.Outcomes(), errors.Join(fmt.Errorf("configure %s: %w", stateID, err), cfg.Err())
	}
	return cfg.Outcomes(), cfg.Err()
}

// optionsFor extracts the options of a state: root variables named
// "<stateID>.<key>" with the prefix removed.
func optionsFor(stateID string, vars map[string]string) map[string]string {
	prefix := stateID + "."
	opts := make(map[string]string)
	for k, v := range vars {
		if key, ok := strings.CutPrefix(k, prefix); ok && key != "" {
			opts[key] = v
		}
	}
	return opts
}
