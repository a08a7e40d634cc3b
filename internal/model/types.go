package model

import (
	"time"

	"github.com/google/uuid"
)

// Core domain types shared by the optimizer, the selector and the runtime.

// Position is an integer storage location: aisle x, cross-aisle y, shelf level z.
type Position struct {
	X int `json:"x"`
	Y int `json:"y"`
	Z int `json:"z"`
}

// Item is one requested unit. Pos is nil until the item has been joined
// with the warehouse catalog.
type Item struct {
	ID  string    `json:"itemId"`
	Pos *Position `json:"position,omitempty"`
}

// Order is a non-divisible customer order.
type Order struct {
	ID        string    `json:"orderId"`
	Items     []Item    `json:"items"`
	ArrivedAt time.Time `json:"arrivedAt"`
}

// Size is the item count of the order; duplicates count twice.
func (o Order) Size() int { return len(o.Items) }

// Batch is a group of orders picked in one tour.
type Batch struct {
	ID        string    `json:"batchId"`
	Orders    []Order   `json:"orders"`
	ReleaseAt time.Time `json:"releaseAt,omitempty"`
}

// NewBatchID returns a fresh globally unique batch id.
func NewBatchID() string { return uuid.New().String() }

// NewBatch creates a batch with a fresh id holding the given orders.
func NewBatch(orders ...Order) Batch {
	return Batch{ID: NewBatchID(), Orders: orders}
}

// Size is the sum of item counts across the batch's orders.
func (b Batch) Size() int {
	n := 0
	for _, o := range b.Orders {
		n += o.Size()
	}
	return n
}

// Items flattens the batch in order sequence.
func (b Batch) Items() []Item {
	out := make([]Item, 0, b.Size())
	for _, o := range b.Orders {
		out = append(out, o.Items...)
	}
	return out
}

// Clone copies the order list. Orders and items are treated as immutable
// once positioned, so their backing arrays are shared.
func (b Batch) Clone() Batch {
	b.Orders = append([]Order(nil), b.Orders...)
	return b
}

// Layout holds the warehouse extents used by the routing geometry.
type Layout struct {
	MaxX int `json:"maxX" yaml:"max_x_position"`
	MaxY int `json:"maxY" yaml:"max_y_position"`
	MaxZ int `json:"maxZ" yaml:"max_z_position"`
}

// Solution is one candidate state of the optimizer.
type Solution []Batch

// Clone deep-copies the batch list so moves on the copy never alias the source.
func (s Solution) Clone() Solution {
	if s == nil {
		return nil
	}
	out := make(Solution, len(s))
	for i, b := range s {
		out[i] = b.Clone()
	}
	return out
}

// OrderIDs lists every order id in batch order.
func (s Solution) OrderIDs() []string {
	var ids []string
	for _, b := range s {
		for _, o := range b.Orders {
			ids = append(ids, o.ID)
		}
	}
	return ids
}

// Orders flattens the solution in batch order.
func (s Solution) Orders() []Order {
	var out []Order
	for _, b := range s {
		out = append(out, b.Orders...)
	}
	return out
}

// Compact drops batches without orders in place, keeping the order of the rest.
func (s Solution) Compact() Solution {
	out := s[:0]
	for _, b := range s {
		if len(b.Orders) > 0 {
			out = append(out, b)
		}
	}
	return out
}
