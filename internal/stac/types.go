// Package stac builds SpatioTemporal Asset Catalog documents describing the
// output of a job.
package stac

import "github.com/paulmach/orb/geojson"

const Version = "1.0.0"

// CatalogFile is the catalog's name beside its items. Item back-links and the
// catalog's own root link point at it so both resolve from either document.
const CatalogFile = "catalog.json"

type Link struct {
	Href  string `json:"href"`
	Rel   string `json:"rel"`
	Title string `json:"title,omitempty"`
	Type  string `json:"type,omitempty"`
}

type Asset struct {
	Href  string   `json:"href"`
	Title string   `json:"title,omitempty"`
	Type  string   `json:"type,omitempty"`
	Roles []string `json:"roles"`
}

type Properties struct {
	Created       string  `json:"created"`
	Datetime      *string `json:"datetime"`
	StartDatetime string  `json:"start_datetime,omitempty"`
	EndDatetime   string  `json:"end_datetime,omitempty"`
}

// Item is a GeoJSON Feature. Geometry encodes as null when absent.
type Item struct {
	Type        string            `json:"type"`
	StacVersion string            `json:"stac_version"`
	ID          string            `json:"id"`
	BBox        []float64         `json:"bbox,omitempty"`
	Geometry    *geojson.Geometry `json:"geometry"`
	Properties  Properties        `json:"properties"`
	Assets      map[string]Asset  `json:"assets"`
	Links       []Link            `json:"links"`
}

type Catalog struct {
	Type        string `json:"type"`
	StacVersion string `json:"stac_version"`
	ID          string `json:"id"`
	Title       string `json:"title,omitempty"`
	Description string `json:"description"`
	Links       []Link `json:"links"`
}

const (
	RelSelf   = "self"
	RelRoot   = "root"
	RelParent = "parent"
	RelItem   = "item"

	RoleData     = "data"
	RoleOverview = "overview"
)
