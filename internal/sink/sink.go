// Package sink delivers released batches to the picker and any presentation
// listeners. Delivery is one-way: a sink never reports back to the
// controller beyond a transport error.
package sink

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/rs/zerolog/log"

	"pickbatch/internal/model"
	"pickbatch/internal/routing"
)

// Release is a batch handed to the picker.
type Release struct {
	BatchID    string         `json:"batchId"`
	Trigger    string         `json:"trigger,omitempty"`
	OrderIDs   []string       `json:"orderIds"`
	OrderCount int            `json:"orderCount"`
	ItemCount  int            `json:"itemCount"`
	TourLength int            `json:"tourLength"`
	Sequence   []routing.Stop `json:"sequence"`
	StartedAt  time.Time      `json:"startedAt"`
	ArrivalAt  time.Time      `json:"arrivalAt"`
}

// NewRelease routes b and estimates when the picker is back at the depot.
// A non-positive unitsPerSecond makes the arrival equal to the start.
func NewRelease(b model.Batch, layout model.Layout, unitsPerSecond float64, start time.Time) (Release, error) {
	tour, err := routing.BatchTour(b, layout)
	if err != nil {
		return Release{}, err
	}
	r := Release{
		BatchID:    b.ID,
		OrderCount: len(b.Orders),
		ItemCount:  b.Size(),
		TourLength: tour.Length,
		Sequence:   tour.Stops,
		StartedAt:  start,
		ArrivalAt:  start,
	}
	for _, o := range b.Orders {
		r.OrderIDs = append(r.OrderIDs, o.ID)
	}
	if unitsPerSecond > 0 {
		secs := float64(tour.Length) / unitsPerSecond
		r.ArrivalAt = start.Add(time.Duration(math.Round(secs * float64(time.Second))))
	}
	return r, nil
}

// Sink receives released batches.
type Sink interface {
	Publish(ctx context.Context, r Release) error
}

// Stream is a sink that listeners can subscribe to.
type Stream interface {
	Sink
	Subscribe() chan Release
	Unsubscribe(ch chan Release)
}

// Multi publishes to every sink and joins their errors.
type Multi []Sink

func (m Multi) Publish(ctx context.Context, r Release) error {
	var errs []error
	for _, s := range m {
		if err := s.Publish(ctx, r); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Log writes every release to the structured log; it is the picker display
// when no other sink is configured.
type Log struct{}

func (Log) Publish(_ context.Context, r Release) error {
	log.Info().
		Str("batch_id", r.BatchID).
		Str("trigger", r.Trigger).
		Int("orders", r.OrderCount).
		Int("items", r.ItemCount).
		Int("tour_length", r.TourLength).
		Time("start", r.StartedAt).
		Time("arrival", r.ArrivalAt).
		Msg("batch released")
	return nil
}
