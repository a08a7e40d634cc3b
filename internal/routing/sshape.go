// Package routing computes picker tours through a parallel-aisle warehouse
// using the S-shape (boustrophedon) heuristic.
package routing

import (
	"fmt"
	"sort"

	"pickbatch/internal/model"
)

// depotY is the cross-aisle coordinate of the depot, one unit before the
// first storage location. The depot aisle is 0.
const depotY = -1

// GeometryError reports an item that cannot be placed in the layout.
type GeometryError struct {
	ItemID string
	Reason string
}

func (e *GeometryError) Error() string {
	return fmt.Sprintf("item %q: %s", e.ItemID, e.Reason)
}

// Stop is one visit of the tour. Aisle is the folded aisle index the picker
// walks; the item keeps its physical position.
type Stop struct {
	Item  model.Item `json:"item"`
	Aisle int        `json:"aisle"`
}

// Tour is the result of a routing computation.
type Tour struct {
	Length int    `json:"length"`
	Stops  []Stop `json:"stops"`
}

// Aisle folds a physical aisle x into the pass that serves it: locations on
// both sides of one walking aisle share an index.
func Aisle(x int) int { return (x + 1) / 2 }

// SShape returns the S-shape tour over items. Input order does not matter.
// The traversal direction is local to the call and starts upwards.
func SShape(items []model.Item, layout model.Layout) (Tour, error) {
	stops, err := sequence(items)
	if err != nil {
		return Tour{}, err
	}
	if len(stops) == 0 {
		return Tour{Stops: []Stop{}}, nil
	}
	farY := layout.MaxY
	up := true
	curAisle, curY := 0, depotY
	length := 0
	for i, s := range stops {
		y := s.Item.Pos.Y
		switch {
		case i == 0:
			length += abs(s.Aisle-curAisle) + abs(y-curY)
		case s.Aisle == curAisle && y == curY:
			// same location, nothing to walk
		case s.Aisle == curAisle:
			length += abs(y - curY)
		case up:
			length += abs(curY-farY) + abs(curAisle-s.Aisle) + abs(farY-y)
			up = false
		default:
			length += abs(curY-depotY) + abs(curAisle-s.Aisle) + abs(depotY-y)
			up = true
		}
		curAisle, curY = s.Aisle, y
	}
	length += abs(curAisle) + abs(curY-depotY)
	return Tour{Length: length, Stops: stops}, nil
}

// sequence validates items and orders them for traversal: aisles ascending,
// y ascending in even-ranked aisles and descending in odd-ranked ones.
func sequence(items []model.Item) ([]Stop, error) {
	stops := make([]Stop, 0, len(items))
	for _, it := range items {
		if err := validate(it); err != nil {
			return nil, err
		}
		stops = append(stops, Stop{Item: it, Aisle: Aisle(it.Pos.X)})
	}
	sort.SliceStable(stops, func(i, j int) bool {
		a, b := stops[i], stops[j]
		if a.Aisle != b.Aisle {
			return a.Aisle < b.Aisle
		}
		if a.Item.Pos.Y != b.Item.Pos.Y {
			return a.Item.Pos.Y < b.Item.Pos.Y
		}
		return a.Item.Pos.Z < b.Item.Pos.Z
	})
	rank := 0
	for start := 0; start < len(stops); rank++ {
		end := start
		for end < len(stops) && stops[end].Aisle == stops[start].Aisle {
			end++
		}
		if rank%2 == 1 {
			group := stops[start:end]
			sort.SliceStable(group, func(i, j int) bool {
				return group[i].Item.Pos.Y > group[j].Item.Pos.Y
			})
		}
		start = end
	}
	return stops, nil
}

func validate(it model.Item) error {
	if it.Pos == nil {
		return &GeometryError{ItemID: it.ID, Reason: "missing position"}
	}
	if it.Pos.X < 0 || it.Pos.Y < 0 || it.Pos.Z < 0 {
		return &GeometryError{ItemID: it.ID, Reason: fmt.Sprintf("negative coordinate (%d,%d,%d)", it.Pos.X, it.Pos.Y, it.Pos.Z)}
	}
	return nil
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
