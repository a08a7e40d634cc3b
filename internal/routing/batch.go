package routing

import "pickbatch/internal/model"

// BatchTour routes every item of every order in the batch.
func BatchTour(b model.Batch, layout model.Layout) (Tour, error) {
	return SShape(b.Items(), layout)
}

// OrderTour routes a single order on its own (its stand-alone service tour).
func OrderTour(o model.Order, layout model.Layout) (Tour, error) {
	return SShape(o.Items, layout)
}

// Length is the tour length over the given orders.
func Length(orders []model.Order, layout model.Layout) (int, error) {
	n := 0
	for _, o := range orders {
		n += o.Size()
	}
	items := make([]model.Item, 0, n)
	for _, o := range orders {
		items = append(items, o.Items...)
	}
	t, err := SShape(items, layout)
	return t.Length, err
}

// Validate checks that every item of every order can be routed.
func Validate(orders []model.Order) error {
	for _, o := range orders {
		for _, it := range o.Items {
			if err := validate(it); err != nil {
				return err
			}
		}
	}
	return nil
}
