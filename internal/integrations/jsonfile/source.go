// Package jsonfile replays orders from a JSON file:
//
//	[{"order_id": "A1", "items": [{"item_id": "165"}, {"item_id": "228"}]}]
//
// Orders without an id get a generated one.
package jsonfile

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"pickbatch/internal/model"
)

// Enricher positions the items of an order.
type Enricher interface {
	Enrich(o model.Order) (model.Order, error)
}

type fileItem struct {
	ItemID json.RawMessage `json:"item_id"`
}

type fileOrder struct {
	OrderID string     `json:"order_id"`
	Items   []fileItem `json:"items"`
}

// Source hands out the file's orders in file order.
type Source struct {
	name string
	now  func() time.Time

	mu     sync.Mutex
	orders []model.Order
}

// Open reads and enriches every order of the file up front, so unknown
// items fail at startup rather than mid-run.
func Open(path string, cat Enricher) (*Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	s, err := Load(f, cat)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	s.name = "jsonfile:" + path
	return s, nil
}

func Load(r io.Reader, cat Enricher) (*Source, error) {
	var raw []fileOrder
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode orders: %w", err)
	}
	s := &Source{name: "jsonfile", now: time.Now}
	for i, fo := range raw {
		o := model.Order{ID: fo.OrderID}
		if o.ID == "" {
			o.ID = uuid.NewString()
		}
		for _, fi := range fo.Items {
			id, err := itemID(fi.ItemID)
			if err != nil {
				return nil, fmt.Errorf("order %d: %w", i, err)
			}
			o.Items = append(o.Items, model.Item{ID: id})
		}
		if len(o.Items) == 0 {
			return nil, fmt.Errorf("order %s has no items", o.ID)
		}
		if cat != nil {
			var err error
			if o, err = cat.Enrich(o); err != nil {
				return nil, err
			}
		}
		s.orders = append(s.orders, o)
	}
	return s, nil
}

// itemID accepts string and numeric item ids.
func itemID(raw json.RawMessage) (string, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil && s != "" {
		return s, nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String(), nil
	}
	return "", fmt.Errorf("bad item_id %s", string(raw))
}

func (s *Source) Name() string { return s.name }

// Len is the number of orders not handed out yet.
func (s *Source) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.orders)
}

func (s *Source) Available() bool { return s.Len() > 0 }

func (s *Source) Next() (model.Order, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.orders) == 0 {
		return model.Order{}, false
	}
	o := s.orders[0]
	s.orders = s.orders[1:]
	o.ArrivedAt = s.now()
	return o, true
}
