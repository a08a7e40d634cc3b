// Package warehouse supplies the layout geometry and the item-id to storage
// position lookup used to enrich orders before they reach the optimizer.
package warehouse

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"pickbatch/internal/model"
)

// ErrUnknownItem is returned for an item id missing from the catalog.
var ErrUnknownItem = errors.New("unknown item")

var catalogColumns = []string{"id", "abs_x_position", "abs_y_position", "abs_z_position"}

// Catalog maps item ids to storage positions.
type Catalog struct {
	positions map[string]model.Position
}

// NewCatalog builds a catalog from an in-memory map.
func NewCatalog(positions map[string]model.Position) *Catalog {
	c := &Catalog{positions: make(map[string]model.Position, len(positions))}
	for id, p := range positions {
		c.positions[id] = p
	}
	return c
}

// OpenCatalogCSV loads a catalog file; see LoadCatalogCSV.
func OpenCatalogCSV(path string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	c, err := LoadCatalogCSV(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

// LoadCatalogCSV reads semicolon separated rows with the header
// id;abs_x_position;abs_y_position;abs_z_position. Extra columns are
// ignored. Coordinates must be non-negative integers; "3.0" is accepted.
// The first row wins for a repeated id.
func LoadCatalogCSV(r io.Reader) (*Catalog, error) {
	cr := csv.NewReader(r)
	cr.Comma = ';'
	cr.TrimLeadingSpace = true
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))] = i
	}
	cols := make([]int, len(catalogColumns))
	for i, name := range catalogColumns {
		j, ok := idx[name]
		if !ok {
			return nil, fmt.Errorf("missing column %q", name)
		}
		cols[i] = j
	}

	c := &Catalog{positions: map[string]model.Position{}}
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		id := strings.TrimSpace(rec[cols[0]])
		if id == "" {
			return nil, fmt.Errorf("line %d: empty id", line)
		}
		var xyz [3]int
		for k := 0; k < 3; k++ {
			v, err := parseCoord(rec[cols[k+1]])
			if err != nil {
				return nil, fmt.Errorf("line %d: column %s: %w", line, catalogColumns[k+1], err)
			}
			xyz[k] = v
		}
		if _, dup := c.positions[id]; !dup {
			c.positions[id] = model.Position{X: xyz[0], Y: xyz[1], Z: xyz[2]}
		}
	}
	return c, nil
}

func parseCoord(s string) (int, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, fmt.Errorf("%q is not a number", s)
	}
	if f != math.Trunc(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%q is not an integer", s)
	}
	if f < 0 {
		return 0, fmt.Errorf("%q is negative", s)
	}
	return int(f), nil
}

// Len is the number of known items.
func (c *Catalog) Len() int { return len(c.positions) }

// Lookup returns the position of an item.
func (c *Catalog) Lookup(id string) (model.Position, error) {
	p, ok := c.positions[id]
	if !ok {
		return model.Position{}, fmt.Errorf("%w: %s", ErrUnknownItem, id)
	}
	return p, nil
}

// Enrich returns a copy of o with every item positioned.
func (c *Catalog) Enrich(o model.Order) (model.Order, error) {
	items := make([]model.Item, len(o.Items))
	for i, it := range o.Items {
		p, err := c.Lookup(it.ID)
		if err != nil {
			return model.Order{}, fmt.Errorf("order %s: %w", o.ID, err)
		}
		items[i] = model.Item{ID: it.ID, Pos: &p}
	}
	o.Items = items
	return o, nil
}

// Extent is the smallest layout holding every catalogued position.
func (c *Catalog) Extent() model.Layout {
	var l model.Layout
	for _, p := range c.positions {
		l.MaxX = max(l.MaxX, p.X)
		l.MaxY = max(l.MaxY, p.Y)
		l.MaxZ = max(l.MaxZ, p.Z)
	}
	return l
}

// Covers reports whether every catalogued position lies inside layout.
func (c *Catalog) Covers(layout model.Layout) bool {
	e := c.Extent()
	return e.MaxX <= layout.MaxX && e.MaxY <= layout.MaxY && e.MaxZ <= layout.MaxZ
}

type layoutFile struct {
	MaxX *int `json:"max_x_position"`
	MaxY *int `json:"max_y_position"`
	MaxZ *int `json:"max_z_position"`
}

// LoadLayoutJSON reads {"max_x_position":..,"max_y_position":..,"max_z_position":..}.
func LoadLayoutJSON(r io.Reader) (model.Layout, error) {
	var f layoutFile
	if err := json.NewDecoder(r).Decode(&f); err != nil {
		return model.Layout{}, fmt.Errorf("decode layout: %w", err)
	}
	if f.MaxX == nil || f.MaxY == nil || f.MaxZ == nil {
		return model.Layout{}, errors.New("layout needs max_x_position, max_y_position and max_z_position")
	}
	l := model.Layout{MaxX: *f.MaxX, MaxY: *f.MaxY, MaxZ: *f.MaxZ}
	if l.MaxX < 0 || l.MaxY < 0 || l.MaxZ < 0 {
		return model.Layout{}, fmt.Errorf("layout extents must be non-negative, got %+v", l)
	}
	return l, nil
}
