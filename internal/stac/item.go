package stac

import (
	"fmt"
	"slices"

	"github.com/mohammed-shakir/harmony-core/internal/core/errs"
	"github.com/mohammed-shakir/harmony-core/internal/geometry"
	"github.com/mohammed-shakir/harmony-core/internal/job"
)

// NewItem builds the item for the linkIndex-th data link of j. The first
// data link carries the "data" role, later ones "overview".
func NewItem(j *job.Job, linkIndex int) (*Item, error) {
	if err := job.Check(j); err != nil {
		return nil, err
	}
	data := j.DataLinks()
	if linkIndex < 0 || linkIndex >= len(data) {
		return nil, fmt.Errorf("%w: item index %d outside [0,%d)", errs.ErrMalformedInput, linkIndex, len(data))
	}
	link := data[linkIndex]

	var boxes [][]float64
	if link.BBox != nil {
		boxes = append(boxes, link.BBox)
	}
	geom, err := geometry.Build(boxes)
	if err != nil {
		return nil, fmt.Errorf("item %d: %w", linkIndex, err)
	}

	props := Properties{Created: j.CreatedAt()}
	if t := link.Temporal; t != nil {
		if t.Start != "" {
			start := t.Start
			props.Datetime = &start
		}
		props.StartDatetime = t.Start
		props.EndDatetime = t.End
	}

	role := RoleData
	if linkIndex > 0 {
		role = RoleOverview
	}

	return &Item{
		Type:        "Feature",
		StacVersion: Version,
		ID:          j.RequestID(),
		BBox:        slices.Clone(link.BBox),
		Geometry:    geom,
		Properties:  props,
		Assets: map[string]Asset{
			link.Href: {
				Href:  link.Href,
				Title: link.Title,
				Type:  link.Type,
				Roles: []string{role},
			},
		},
		Links: []Link{
			{Href: "./" + CatalogFile, Rel: RelRoot, Title: "root catalog", Type: "application/json"},
			{Href: "./" + CatalogFile, Rel: RelParent, Title: "parent catalog", Type: "application/json"},
		},
	}, nil
}
