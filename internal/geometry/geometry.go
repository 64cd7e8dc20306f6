// Package geometry turns bounding boxes into GeoJSON footprints, splitting
// boxes that cross the antimeridian.
package geometry

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/mohammed-shakir/harmony-core/internal/core/errs"
)

// BBox is [west, south, east, north] in degrees. west > east means the box
// wraps through the antimeridian.
type BBox struct {
	West, South, East, North float64
}

// FromSlice checks that b has exactly four finite entries with south <= north.
func FromSlice(b []float64) (BBox, error) {
	if len(b) != 4 {
		return BBox{}, fmt.Errorf("%w: bounding box needs 4 entries, got %d", errs.ErrGeometry, len(b))
	}
	for i, v := range b {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return BBox{}, fmt.Errorf("%w: bounding box entry %d is not finite", errs.ErrGeometry, i)
		}
	}
	bb := BBox{West: b[0], South: b[1], East: b[2], North: b[3]}
	if bb.South > bb.North {
		return BBox{}, fmt.Errorf("%w: south %v is above north %v", errs.ErrGeometry, bb.South, bb.North)
	}
	return bb, nil
}

// CrossesAntimeridian is true when the west edge is numerically east of the
// east edge. west == east is a (degenerate) non-crossing box.
func (b BBox) CrossesAntimeridian() bool { return b.West > b.East }

// Split returns the box itself, or its [west, 180] and [-180, east] halves
// when it crosses.
func (b BBox) Split() []BBox {
	if !b.CrossesAntimeridian() {
		return []BBox{b}
	}
	return []BBox{
		{West: b.West, South: b.South, East: 180, North: b.North},
		{West: -180, South: b.South, East: b.East, North: b.North},
	}
}

// Ring is the closed counter-clockwise ring SW, SE, NE, NW, SW.
func (b BBox) Ring() orb.Ring {
	return orb.Ring{
		{b.West, b.South},
		{b.East, b.South},
		{b.East, b.North},
		{b.West, b.North},
		{b.West, b.South},
	}
}

// Build returns nil when there are no boxes. When no box crosses the
// antimeridian the result is one Polygon holding a ring per box; once any box
// crosses, every ring becomes its own polygon in a MultiPolygon. Zero-area
// rings are kept.
func Build(boxes [][]float64) (*geojson.Geometry, error) {
	if len(boxes) == 0 {
		return nil, nil
	}
	var (
		rings   []orb.Ring
		crosses bool
	)
	for i, raw := range boxes {
		bb, err := FromSlice(raw)
		if err != nil {
			return nil, fmt.Errorf("box %d: %w", i, err)
		}
		crosses = crosses || bb.CrossesAntimeridian()
		for _, part := range bb.Split() {
			rings = append(rings, part.Ring())
		}
	}
	if !crosses {
		return geojson.NewGeometry(orb.Polygon(rings)), nil
	}
	mp := make(orb.MultiPolygon, 0, len(rings))
	for _, r := range rings {
		mp = append(mp, orb.Polygon{r})
	}
	return geojson.NewGeometry(mp), nil
}
