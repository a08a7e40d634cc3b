package opt

import "pickbatch/internal/model"

// BuildInitialBatches packs orders first-come-first-served: an order joins
// the open batch while it fits, otherwise the open batch is closed and the
// order starts a new one. An order larger than maxBatchSize ends up alone in
// its own batch; Oversized lets callers spot those first.
func BuildInitialBatches(orders []model.Order, maxBatchSize int) []model.Batch {
	var (
		batches []model.Batch
		open    []model.Order
		size    int
	)
	for _, o := range orders {
		if len(open) > 0 && size+o.Size() > maxBatchSize {
			batches = append(batches, model.NewBatch(open...))
			open, size = nil, 0
		}
		open = append(open, o)
		size += o.Size()
	}
	if len(open) > 0 {
		batches = append(batches, model.NewBatch(open...))
	}
	return batches
}

// Oversized returns the orders that cannot fit any batch on their own.
func Oversized(orders []model.Order, maxBatchSize int) []model.Order {
	var out []model.Order
	for _, o := range orders {
		if o.Size() > maxBatchSize {
			out = append(out, o)
		}
	}
	return out
}
