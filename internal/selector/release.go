package selector

import (
	"math"
	"time"

	"github.com/rs/zerolog/log"

	"pickbatch/internal/model"
	"pickbatch/internal/routing"
)

// Delay is the breakdown of a single-batch release decision.
type Delay struct {
	// ServiceTime is the batch's own tour length (st_j).
	ServiceTime int `json:"serviceTime"`
	// SlowestOrder has the longest stand-alone tour (st_i) in the batch.
	SlowestOrder string `json:"slowestOrder"`
	StandAlone   int    `json:"standAlone"`
	// Waited is how long the slowest order has been waiting (r_i).
	Waited time.Duration `json:"waited"`
	// Units is the raw formula value in tour length units; may be negative.
	Units   float64   `json:"units"`
	Release time.Time `json:"release"`
}

// ReleaseDelay computes when a lone batch should be released:
//
//	units   = (1+alpha)*r_i + alpha*st_i - st_j
//	release = max(now, now + units/unitsPerSecond)
//
// st_i and r_i belong to the order with the longest stand-alone tour (the
// first one on ties). A precondition violation and a non-positive
// unitsPerSecond are logged; the result is never before now.
func ReleaseDelay(b model.Batch, layout model.Layout, alpha, unitsPerSecond float64, now time.Time) (Delay, error) {
	tour, err := routing.BatchTour(b, layout)
	if err != nil {
		return Delay{}, err
	}
	d := Delay{ServiceTime: tour.Length, Release: now, StandAlone: -1}
	var slowest model.Order
	for _, o := range b.Orders {
		t, err := routing.OrderTour(o, layout)
		if err != nil {
			return Delay{}, err
		}
		if t.Length > d.StandAlone {
			d.StandAlone, slowest = t.Length, o
		}
	}
	if d.StandAlone < 0 {
		d.StandAlone = 0
	} else {
		d.SlowestOrder = slowest.ID
		d.Waited = now.Sub(slowest.ArrivedAt)
		if d.Waited < 0 {
			d.Waited = -d.Waited
		}
	}

	r := d.Waited.Seconds()
	lhs := (1+alpha)*r + alpha*float64(d.StandAlone)
	d.Units = lhs - float64(d.ServiceTime)
	if nowSec := float64(now.UnixNano()) / 1e9; lhs > 2*nowSec+float64(d.ServiceTime) {
		log.Warn().
			Float64("lhs", lhs).
			Float64("now", nowSec).
			Int("service_time", d.ServiceTime).
			Msg("release delay precondition violated")
	}
	if unitsPerSecond <= 0 || math.IsNaN(unitsPerSecond) {
		log.Warn().Float64("units_per_second", unitsPerSecond).Msg("non-positive tour speed, releasing now")
		return d, nil
	}
	if secs := d.Units / unitsPerSecond; secs > 0 {
		d.Release = now.Add(time.Duration(math.Round(secs * float64(time.Second))))
	}
	return d, nil
}
