package api

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"pickbatch/internal/model"
)

// orderIn is the intake body: {"orderId":"A1","items":[{"itemId":"165"}]}.
type orderIn struct {
	OrderID string `json:"orderId"`
	Items   []struct {
		ItemID string `json:"itemId"`
	} `json:"items"`
}

func validateOrder(in orderIn) (model.Order, error) {
	if len(in.Items) == 0 {
		return model.Order{}, errors.New("order needs at least one item")
	}
	o := model.Order{ID: strings.TrimSpace(in.OrderID)}
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	for i, it := range in.Items {
		id := strings.TrimSpace(it.ItemID)
		if id == "" {
			return model.Order{}, fmt.Errorf("items[%d]: itemId is required", i)
		}
		o.Items = append(o.Items, model.Item{ID: id})
	}
	return o, nil
}
