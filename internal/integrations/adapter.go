package integrations

import (
	"context"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"pickbatch/internal/model"
)

// OrderSource yields orders with positioned items and an arrival time.
type OrderSource interface {
	Name() string
	// Available reports without blocking whether Next has an order.
	Available() bool
	// Next consumes the next order and stamps its arrival.
	Next() (model.Order, bool)
}

// Target is the part of the controller a feed drives.
type Target interface {
	Submit(ctx context.Context, o model.Order) error
	Finish(ctx context.Context, o model.Order) error
}

// TakeInitial consumes up to n orders for the initial release.
func TakeInitial(src OrderSource, n int) []model.Order {
	var out []model.Order
	for len(out) < n && src.Available() {
		o, ok := src.Next()
		if !ok {
			break
		}
		out = append(out, o)
	}
	return out
}

// Feed hands the remaining orders of src to dst, one per limiter token. The
// order that empties the source goes through Finish. A nil limiter does not
// pace.
func Feed(ctx context.Context, src OrderSource, dst Target, limiter *rate.Limiter) error {
	sent := 0
	for src.Available() {
		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				return err
			}
		}
		o, ok := src.Next()
		if !ok {
			break
		}
		send, kind := dst.Submit, "order"
		if !src.Available() {
			send, kind = dst.Finish, "last order"
		}
		if err := send(ctx, o); err != nil {
			log.Warn().Err(err).Str("source", src.Name()).Str("order_id", o.ID).Msg(kind + " rejected")
			return err
		}
		sent++
		log.Debug().Str("source", src.Name()).Str("order_id", o.ID).Int("items", o.Size()).Msg(kind + " handed over")
	}
	log.Info().Str("source", src.Name()).Int("orders", sent).Msg("order source exhausted")
	return nil
}
