// Package whatif runs what-if cycles: it fetches the plan the optimizer
// chooses for a query, applies the analyst's operator overrides through
// optimizer switches, fetches the plan chosen under those switches and
// compares the two.
package whatif

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/atomic"

	"github.com/grafana/whatif/internal/compare"
	"github.com/grafana/whatif/internal/modification"
	"github.com/grafana/whatif/internal/oracle"
	"github.com/grafana/whatif/internal/plan"
	"github.com/grafana/whatif/internal/translate"
)

// Arguments holds the dependencies of an Engine.
type Arguments struct {
	// Oracle is the session every plan of this engine is fetched from.
	Oracle oracle.Oracle

	Logger   log.Logger
	Registry prometheus.Registerer
}

// Report is the outcome of a what-if cycle.
type Report struct {
	Query string

	QEP *plan.Tree
	AQP *plan.Tree

	// Requests are the requests that were translated and compared.
	Requests []modification.Request
	// Unresolved are requests whose target is not in the QEP. They had no
	// effect on the cycle.
	Unresolved []modification.Request

	Overlay    oracle.Overlay
	Warnings   []translate.Warning
	Comparison *compare.Result

	// ResetErr is set when the AQP was fetched but the oracle could not
	// restore its configuration afterwards. The comparison is still valid.
	ResetErr error
}

// NoOp reports whether the cycle ran without an overlay, in which case the
// AQP is the QEP.
func (r *Report) NoOp() bool {
	return len(r.Overlay) == 0
}

// Engine sequences one what-if session against one oracle session.
//
// Every operation takes the engine lock, so at most one oracle call is in
// flight per engine. Use one Engine per analyst session.
type Engine struct {
	oracle  oracle.Oracle
	logger  log.Logger
	metrics *metrics

	state *atomic.Int32

	mut         sync.Mutex
	query       string
	qep         *plan.Tree
	resolution  modification.Resolution
	translation *translate.Translation
	aqp         *plan.Tree
	resetErr    error
}

// New returns an Idle engine running on args.Oracle.
func New(args Arguments) (*Engine, error) {
	if args.Oracle == nil {
		return nil, errors.New("what-if engine requires an oracle")
	}
	logger := args.Logger
	if logger == nil {
		logger = log.NewNopLogger()
	}
	logger = log.With(logger, "component", "whatif")

	return &Engine{
		oracle:  args.Oracle,
		logger:  logger,
		metrics: newMetrics(args.Registry, logger),
		state:   atomic.NewInt32(int32(Idle)),
	}, nil
}

// State returns the current state without waiting for a running operation.
func (e *Engine) State() State {
	return State(e.state.Load())
}

func (e *Engine) setState(s State) {
	e.state.Store(int32(s))
	e.metrics.state.Set(float64(s))
}

func (e *Engine) require(op string, allowed ...State) error {
	if cur := e.State(); !slices.Contains(allowed, cur) {
		return &StateError{Op: op, Current: cur, Allowed: allowed}
	}
	return nil
}

// clearCycle drops everything derived from a modification set.
func (e *Engine) clearCycle() {
	e.resolution = modification.Resolution{}
	e.translation = nil
	e.aqp = nil
	e.resetErr = nil
}

// GenerateQEP fetches the plan the optimizer chooses for query with its
// default configuration. It may be called in any state and always starts a
// new cycle, discarding the previous QEP and any collected modifications.
// On failure the engine is left Idle.
func (e *Engine) GenerateQEP(ctx context.Context, query string) (*plan.Tree, error) {
	e.mut.Lock()
	defer e.mut.Unlock()

	e.clearCycle()
	e.query, e.qep = "", nil
	e.setState(Idle)

	fetch, err := e.oracle.FetchPlan(ctx, query, nil)
	if err != nil {
		e.metrics.oracleCalls.WithLabelValues(phaseQEP, outcomeFailure).Inc()
		level.Error(e.logger).Log("msg", "failed to fetch query execution plan", "err", err)
		return nil, err
	}
	e.metrics.oracleCalls.WithLabelValues(phaseQEP, outcomeSuccess).Inc()
	if fetch.ResetErr != nil {
		e.metrics.resetFailures.Inc()
		level.Warn(e.logger).Log("msg", "oracle reported a reset failure for a plain plan", "err", fetch.ResetErr)
	}

	e.query, e.qep = query, fetch.Tree
	e.setState(QEPFetched)
	level.Debug(e.logger).Log("msg", "fetched query execution plan", "nodes", fetch.Tree.Len())
	return fetch.Tree, nil
}

// QEP returns the plan of the current cycle, or nil when Idle.
func (e *Engine) QEP() *plan.Tree {
	e.mut.Lock()
	defer e.mut.Unlock()
	return e.qep
}

// Collect resolves set against the QEP. An empty or nil set is valid and
// leads to a cycle without oracle call whose AQP is the QEP. Requests
// whose target is not in the QEP are kept as unresolved and ignored by the
// rest of the cycle.
//
// Collect may be called again until the AQP is fetched; the latest set
// replaces the previous one.
func (e *Engine) Collect(set *modification.Set) error {
	e.mut.Lock()
	defer e.mut.Unlock()
	return e.collect(set)
}

func (e *Engine) collect(set *modification.Set) error {
	if err := e.require("collect modifications", QEPFetched, ModificationsCollected, OverlayBuilt); err != nil {
		return err
	}
	e.clearCycle()

	// Validate before resolving so a bad request fails the same way
	// whether or not its target exists.
	for _, r := range set.Requests() {
		if err := r.Validate(); err != nil {
			return err
		}
	}

	e.resolution = set.Resolve(e.qep)
	if targets := e.resolution.UnresolvedTargets(); len(targets) > 0 {
		level.Warn(e.logger).Log("msg", "ignoring modifications for addresses absent from the plan", "addresses", joinAddresses(targets))
	}
	e.setState(ModificationsCollected)
	return nil
}

// BuildOverlay translates the collected requests into optimizer switches.
func (e *Engine) BuildOverlay() (*translate.Translation, error) {
	e.mut.Lock()
	defer e.mut.Unlock()
	return e.buildOverlay()
}

func (e *Engine) buildOverlay() (*translate.Translation, error) {
	if err := e.require("build overlay", ModificationsCollected); err != nil {
		return nil, err
	}

	tr, err := translate.Translate(e.resolution.Resolved)
	if err != nil {
		return nil, err
	}
	for _, w := range tr.Warnings {
		e.metrics.contradictions.Inc()
		level.Warn(e.logger).Log("msg", "contradicting modifications, only one can take effect", "detail", w.String())
	}

	e.translation = tr
	e.setState(OverlayBuilt)
	return tr, nil
}

// FetchAQP fetches the plan the optimizer chooses under the overlay. With
// an empty overlay the QEP is reused and the oracle is not called. On
// oracle failure the modifications are dropped and the engine returns to
// QEPFetched, so a new set can be collected without refetching the QEP.
func (e *Engine) FetchAQP(ctx context.Context) (*plan.Tree, error) {
	e.mut.Lock()
	defer e.mut.Unlock()
	return e.fetchAQP(ctx)
}

func (e *Engine) fetchAQP(ctx context.Context) (*plan.Tree, error) {
	if err := e.require("fetch alternative plan", OverlayBuilt); err != nil {
		return nil, err
	}

	if len(e.translation.Overlay) == 0 {
		e.aqp = e.qep
		e.setState(AQPFetched)
		level.Debug(e.logger).Log("msg", "no modifications to apply, reusing query execution plan")
		return e.aqp, nil
	}

	fetch, err := e.oracle.FetchPlan(ctx, e.query, e.translation.Overlay)
	if err != nil {
		e.metrics.oracleCalls.WithLabelValues(phaseAQP, outcomeFailure).Inc()
		level.Error(e.logger).Log("msg", "failed to fetch alternative plan", "overlay", e.translation.Overlay.String(), "err", err)
		e.clearCycle()
		e.setState(QEPFetched)
		return nil, err
	}
	e.metrics.oracleCalls.WithLabelValues(phaseAQP, outcomeSuccess).Inc()

	if fetch.ResetErr != nil {
		e.metrics.resetFailures.Inc()
		level.Warn(e.logger).Log("msg", "alternative plan fetched but optimizer configuration was not reset", "err", fetch.ResetErr)
	}

	e.aqp, e.resetErr = fetch.Tree, fetch.ResetErr
	e.setState(AQPFetched)
	return e.aqp, nil
}

// Compare diffs the AQP against the QEP and ends the cycle. The engine is
// Idle afterwards whether or not the comparison succeeded; everything the
// cycle produced is in the returned report.
func (e *Engine) Compare() (*Report, error) {
	e.mut.Lock()
	defer e.mut.Unlock()
	return e.compare()
}

func (e *Engine) compare() (*Report, error) {
	if err := e.require("compare plans", AQPFetched); err != nil {
		return nil, err
	}

	res, err := compare.Compare(e.qep, e.aqp, e.resolution.Resolved)
	if err != nil {
		e.endCycle()
		return nil, err
	}
	e.setState(Compared)

	report := &Report{
		Query:      e.query,
		QEP:        e.qep,
		AQP:        e.aqp,
		Requests:   e.resolution.Resolved,
		Unresolved: e.resolution.Unresolved,
		Overlay:    e.translation.Overlay,
		Warnings:   e.translation.Warnings,
		Comparison: res,
		ResetErr:   e.resetErr,
	}

	e.metrics.mismatches.Add(float64(len(res.Mismatches)))
	if pct, ok := res.CostChangePercent(); ok {
		e.metrics.costChangePercent.Observe(pct)
	}
	level.Info(e.logger).Log(
		"msg", "what-if cycle complete",
		"original_cost", res.OriginalCost,
		"modified_cost", res.ModifiedCost,
		"cost_delta", res.CostDelta,
		"mismatches", len(res.Mismatches),
	)

	e.endCycle()
	return report, nil
}

func (e *Engine) endCycle() {
	e.clearCycle()
	e.query, e.qep = "", nil
	e.setState(Idle)
}

// WhatIf runs the rest of a cycle for set: it collects, translates,
// fetches the AQP and compares. A QEP must have been generated first.
func (e *Engine) WhatIf(ctx context.Context, set *modification.Set) (*Report, error) {
	e.mut.Lock()
	defer e.mut.Unlock()

	if err := e.collect(set); err != nil {
		return nil, err
	}
	if _, err := e.buildOverlay(); err != nil {
		return nil, err
	}
	if _, err := e.fetchAQP(ctx); err != nil {
		return nil, err
	}
	return e.compare()
}

func joinAddresses(addrs []plan.Address) string {
	s := make([]string, len(addrs))
	for i, a := range addrs {
		s[i] = a.String()
	}
	return strings.Join(s, ",")
}
