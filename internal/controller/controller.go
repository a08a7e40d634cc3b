// Package controller runs the decision loop that turns arriving orders into
// released batches for a single picker.
//
// One goroutine, Run, owns the pending pool and the current plan. Producers
// talk to it over channels; the selector always receives an owned copy of
// the pool.
package controller

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"pickbatch/internal/metrics"
	"pickbatch/internal/model"
	"pickbatch/internal/routing"
	"pickbatch/internal/selector"
	"pickbatch/internal/sink"
)

var (
	// ErrStopped is returned when the decision loop is not running anymore.
	ErrStopped = errors.New("controller stopped")
	// ErrFinished is returned for orders submitted after the last order.
	ErrFinished = errors.New("order stream already finished")
	// ErrDuplicateOrder is returned for an order id seen before.
	ErrDuplicateOrder = errors.New("duplicate order id")
	// ErrRunning is returned by a second call to Run.
	ErrRunning = errors.New("controller already running")
)

const defaultTick = 200 * time.Millisecond

type submission struct {
	order model.Order
	last  bool
}

// Snapshot is a consistent copy of the controller state.
type Snapshot struct {
	Pending    int              `json:"pending"`
	Planned    []model.Batch    `json:"planned"`
	PickerBusy bool             `json:"pickerBusy"`
	BusyUntil  time.Time        `json:"busyUntil,omitempty"`
	Finished   bool             `json:"finished"`
	Released   int              `json:"released"`
	Trigger    selector.Trigger `json:"lastTrigger,omitempty"`
	Delay      *selector.Delay  `json:"delay,omitempty"`
	Current    *sink.Release    `json:"current,omitempty"`
}

// Controller reacts to order arrivals and picker availability.
type Controller struct {
	sel  *selector.Selector
	out  sink.Sink
	tick time.Duration
	now  func() time.Time

	orders chan submission
	picker chan struct{}
	snaps  chan chan Snapshot
	done   chan struct{}

	running atomic.Bool

	mu       sync.Mutex
	seen     map[string]struct{}
	finished bool
}

type Option func(*Controller)

// WithTick sets how often release times are checked.
func WithTick(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.tick = d
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

func New(sel *selector.Selector, out sink.Sink, opts ...Option) *Controller {
	c := &Controller{
		sel:    sel,
		out:    out,
		tick:   defaultTick,
		now:    time.Now,
		orders: make(chan submission, 64),
		picker: make(chan struct{}, 1),
		snaps:  make(chan chan Snapshot),
		done:   make(chan struct{}),
		seen:   map[string]struct{}{},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Submit hands a new order to the decision loop. Orders without an arrival
// time are stamped with the current time.
func (c *Controller) Submit(ctx context.Context, o model.Order) error {
	return c.submit(ctx, o, false)
}

// Finish hands over the last order. No order is accepted afterwards; Run
// returns once every remaining batch has been released.
func (c *Controller) Finish(ctx context.Context, o model.Order) error {
	return c.submit(ctx, o, true)
}

func (c *Controller) submit(ctx context.Context, o model.Order, last bool) error {
	if err := routing.Validate([]model.Order{o}); err != nil {
		return fmt.Errorf("order %s: %w", o.ID, err)
	}
	if o.ArrivedAt.IsZero() {
		o.ArrivedAt = c.now()
	}
	c.mu.Lock()
	if c.finished {
		c.mu.Unlock()
		return ErrFinished
	}
	select {
	case <-c.done:
		c.mu.Unlock()
		return ErrStopped
	default:
	}
	if _, dup := c.seen[o.ID]; dup {
		c.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrDuplicateOrder, o.ID)
	}
	c.seen[o.ID] = struct{}{}
	c.finished = last
	c.mu.Unlock()

	select {
	case c.orders <- submission{order: o, last: last}:
		return nil
	case <-c.done:
		return ErrStopped
	case <-ctx.Done():
		c.mu.Lock()
		delete(c.seen, o.ID)
		if last {
			c.finished = false
		}
		c.mu.Unlock()
		return ctx.Err()
	}
}

// PickerAvailable marks the picker idle regardless of its estimated arrival.
func (c *Controller) PickerAvailable() {
	select {
	case c.picker <- struct{}{}:
	default:
	}
}

// Snapshot asks the decision loop for a copy of its state. It waits while a
// decision is being computed.
func (c *Controller) Snapshot(ctx context.Context) (Snapshot, error) {
	reply := make(chan Snapshot, 1)
	select {
	case c.snaps <- reply:
	case <-c.done:
		return Snapshot{}, ErrStopped
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	}
	select {
	case s := <-reply:
		return s, nil
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	}
}

// Done is closed when Run returns.
func (c *Controller) Done() <-chan struct{} { return c.done }

// loop is the state owned by Run.
type loop struct {
	*Controller
	pool      []model.Order
	planned   []model.Batch
	busy      bool
	busyUntil time.Time
	last      bool
	released  int
	trigger   selector.Trigger
	delay     *selector.Delay
	current   *sink.Release
	// replanned is the signature of the last batch already re-planned once.
	replanned string
}

// Run owns the decision loop until the last batch is released or ctx ends.
// initial is the initial release; it may be empty.
func (c *Controller) Run(ctx context.Context, initial []model.Order) error {
	if !c.running.CompareAndSwap(false, true) {
		return ErrRunning
	}
	defer close(c.done)

	l := &loop{Controller: c}
	if len(initial) > 0 {
		now := c.now()
		c.mu.Lock()
		for i := range initial {
			if initial[i].ArrivedAt.IsZero() {
				initial[i].ArrivedAt = now
			}
			c.seen[initial[i].ID] = struct{}{}
		}
		c.mu.Unlock()
		l.pool = slices.Clone(initial)
		if err := l.decide(selector.InitialRelease); err != nil {
			return err
		}
	}

	ticker := time.NewTicker(c.tick)
	defer ticker.Stop()
	for {
		l.release(ctx)
		if l.last && len(l.planned) == 0 && len(l.pool) == 0 {
			log.Info().Int("released", l.released).Msg("all orders released")
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case s := <-c.orders:
			l.pool = append(l.pool, s.order)
			if s.last {
				l.last = true
				if err := l.decide(selector.LastOrder); err != nil {
					return err
				}
				continue
			}
			if err := l.decide(selector.NewOrder); err != nil {
				return err
			}
		case <-c.picker:
			l.busy = false
			l.current = nil
		case reply := <-c.snaps:
			reply <- l.snapshot()
		case <-ticker.C:
		}
	}
}

// decide replaces the plan with a fresh decision over the whole pool.
func (l *loop) decide(trigger selector.Trigger) error {
	snapshot := slices.Clone(l.pool)
	var (
		p   selector.Plan
		err error
	)
	if trigger == selector.LastOrder {
		p, err = l.sel.Final(snapshot)
	} else {
		p, err = l.sel.Plan(trigger, snapshot)
	}
	if err != nil {
		return fmt.Errorf("decision %s: %w", trigger, err)
	}
	l.planned = p.Batches
	l.trigger = trigger
	l.delay = p.Delay
	metrics.PendingOrders.Set(float64(len(l.pool)))

	ev := log.Info().
		Str("trigger", string(trigger)).
		Int("orders", len(snapshot)).
		Int("batches", len(p.Batches))
	if p.Metrics != nil {
		ev = ev.Int("ils_iterations", p.Metrics.Iterations).Int("total_length", p.Metrics.BestLength)
	}
	if p.Delay != nil {
		ev = ev.Time("release_at", p.Delay.Release)
	}
	ev.Msg("decision")
	return nil
}

// release hands the first due batch to the picker when it is idle.
func (l *loop) release(ctx context.Context) {
	now := l.now()
	if l.busy {
		if now.Before(l.busyUntil) {
			return
		}
		l.busy, l.current = false, nil
	}
	if len(l.planned) == 0 {
		return
	}
	b := l.planned[0]
	if now.Before(b.ReleaseAt) {
		return
	}
	// The last remaining batch gets one fresh decision per order set, so a
	// leftover of a multi-batch plan is held like any other lone batch.
	if !l.last && len(l.planned) == 1 {
		if sig := signature(b); sig != l.replanned {
			l.replanned = sig
			if err := l.decide(selector.OneBatch); err != nil {
				log.Error().Err(err).Msg("re-plan of lone batch failed, releasing as planned")
			} else {
				l.release(ctx)
				return
			}
		}
	}

	r, err := sink.NewRelease(b, l.sel.Layout(), l.sel.Config().UnitsPerSecond, now)
	if err != nil {
		log.Error().Err(err).Str("batch_id", b.ID).Msg("cannot route released batch")
		return
	}
	r.Trigger = string(l.trigger)
	l.planned = l.planned[1:]
	l.pool = without(l.pool, b.Orders)
	l.busy, l.busyUntil = true, r.ArrivalAt
	l.current = &r
	l.released++

	metrics.ReleasedBatches.Inc()
	metrics.ReleasedOrders.Add(float64(r.OrderCount))
	metrics.TourLength.Observe(float64(r.TourLength))
	metrics.PendingOrders.Set(float64(len(l.pool)))
	if err := l.out.Publish(ctx, r); err != nil {
		log.Warn().Err(err).Str("batch_id", r.BatchID).Msg("publish release")
	}
}

func (l *loop) snapshot() Snapshot {
	s := Snapshot{
		Pending:    len(l.pool),
		Planned:    make([]model.Batch, len(l.planned)),
		PickerBusy: l.busy && l.now().Before(l.busyUntil),
		Finished:   l.last,
		Released:   l.released,
		Trigger:    l.trigger,
	}
	for i, b := range l.planned {
		s.Planned[i] = b.Clone()
	}
	if s.PickerBusy {
		s.BusyUntil = l.busyUntil
	}
	if l.delay != nil {
		d := *l.delay
		s.Delay = &d
	}
	if l.current != nil {
		r := *l.current
		s.Current = &r
	}
	return s
}

// signature identifies a batch by its order ids.
func signature(b model.Batch) string {
	ids := make([]string, len(b.Orders))
	for i, o := range b.Orders {
		ids[i] = o.ID
	}
	sort.Strings(ids)
	return strings.Join(ids, ",")
}

func without(pool, gone []model.Order) []model.Order {
	drop := make(map[string]struct{}, len(gone))
	for _, o := range gone {
		drop[o.ID] = struct{}{}
	}
	out := pool[:0]
	for _, o := range pool {
		if _, ok := drop[o.ID]; !ok {
			out = append(out, o)
		}
	}
	return out
}
