// Package selector decides, at each decision point, how pending orders are
// batched and in which order and at what time the batches are released.
package selector

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"pickbatch/internal/metrics"
	"pickbatch/internal/model"
	"pickbatch/internal/opt"
	"pickbatch/internal/routing"
)

// Trigger names the event that caused a decision.
type Trigger string

const (
	InitialRelease Trigger = "initial_release"
	NewOrder       Trigger = "new_order"
	OneBatch       Trigger = "one_batch"
	LastOrder      Trigger = "last_order"
)

// Config is the parameter bundle of the selector. Callers validate it.
type Config struct {
	MaxBatchSize   int
	Rearrangement  float64
	Threshold      float64
	Release        float64
	TimeLimit      time.Duration
	Rule           Rule
	UnitsPerSecond float64
	// MaxIterations and Seed pass through to the optimizer.
	MaxIterations int
	Seed          int64
	// Now stamps decisions and defaults to time.Now. The optimizer's time
	// budget always runs on the wall clock.
	Now func() time.Time
}

// Plan is the outcome of one decision.
type Plan struct {
	Trigger Trigger       `json:"trigger"`
	Batches []model.Batch `json:"batches"`
	Metrics *opt.Metrics  `json:"ils,omitempty"`
	// Delay is set when a lone batch was held back.
	Delay   *Delay    `json:"delay,omitempty"`
	Decided time.Time `json:"decided"`
}

// Delayed reports whether the single-batch release delay applied.
func (p Plan) Delayed() bool { return p.Delay != nil }

// Selector runs the batching pipeline for the decision points.
type Selector struct {
	cfg    Config
	layout model.Layout
}

func New(cfg Config, layout model.Layout) *Selector {
	return &Selector{cfg: cfg, layout: layout}
}

// Layout is the warehouse geometry the selector routes against.
func (s *Selector) Layout() model.Layout { return s.layout }

// Config returns the parameter bundle.
func (s *Selector) Config() Config { return s.cfg }

func (s *Selector) now() time.Time {
	if s.cfg.Now != nil {
		return s.cfg.Now()
	}
	return time.Now()
}

// Plan handles the initial release and every later decision while more
// orders may still arrive. A lone batch gets a delayed release time; several
// batches are ordered by the configured rule and released now.
func (s *Selector) Plan(trigger Trigger, orders []model.Order) (Plan, error) {
	return s.decide(trigger, orders, false)
}

// Final handles the last order: the rule always applies and every batch is
// released now.
func (s *Selector) Final(orders []model.Order) (Plan, error) {
	return s.decide(LastOrder, orders, true)
}

func (s *Selector) decide(trigger Trigger, orders []model.Order, final bool) (Plan, error) {
	now := s.now()
	plan := Plan{Trigger: trigger, Batches: []model.Batch{}, Decided: now}
	metrics.Decisions.WithLabelValues(string(trigger)).Inc()
	if len(orders) == 0 {
		return plan, nil
	}
	if err := routing.Validate(orders); err != nil {
		return plan, fmt.Errorf("%s: %w", trigger, err)
	}
	for _, o := range opt.Oversized(orders, s.cfg.MaxBatchSize) {
		log.Warn().
			Str("order_id", o.ID).
			Int("items", o.Size()).
			Int("max_batch_size", s.cfg.MaxBatchSize).
			Msg("order exceeds batch capacity, batching it alone")
	}

	batches := model.Solution(opt.BuildInitialBatches(orders, s.cfg.MaxBatchSize))
	if len(batches) > 1 {
		best, m := opt.Solve(batches, s.params())
		batches = best
		plan.Metrics = &m
		opt.RecordMetrics(string(trigger), len(orders), now, m)
		metrics.ILSIterations.Add(float64(m.Iterations))
		metrics.ILSImprovements.Add(float64(m.Improvements))
		metrics.ILSDuration.WithLabelValues(string(trigger)).Observe(m.Elapsed.Seconds())
	}

	if !final && len(batches) == 1 {
		d, err := ReleaseDelay(batches[0], s.layout, s.cfg.Release, s.cfg.UnitsPerSecond, now)
		if err != nil {
			return plan, err
		}
		batches[0].ReleaseAt = d.Release
		plan.Batches = batches
		plan.Delay = &d
		metrics.ReleaseDelay.Observe(d.Release.Sub(now).Seconds())
		log.Debug().
			Str("trigger", string(trigger)).
			Str("batch_id", batches[0].ID).
			Dur("delay", d.Release.Sub(now)).
			Msg("holding lone batch")
		return plan, nil
	}

	sorted, err := Sort(batches, s.cfg.Rule, s.layout)
	if err != nil {
		return plan, err
	}
	for i := range sorted {
		sorted[i].ReleaseAt = now
	}
	plan.Batches = sorted
	return plan, nil
}

func (s *Selector) params() opt.Params {
	return opt.Params{
		Layout:        s.layout,
		MaxBatchSize:  s.cfg.MaxBatchSize,
		Rearrangement: s.cfg.Rearrangement,
		Threshold:     s.cfg.Threshold,
		TimeLimit:     s.cfg.TimeLimit,
		MaxIterations: s.cfg.MaxIterations,
		Seed:          s.cfg.Seed,
	}
}
