package operation

import "encoding/json"

// Source is one collection and the granules/variables requested from it.
type Source struct {
	Collection string     `json:"collection"`
	Variables  []Variable `json:"variables,omitempty"`
	Granules   []Granule  `json:"granules,omitempty"`
}

type Variable struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	FullPath string `json:"fullPath,omitempty"`
}

type Granule struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
	URL  string `json:"url"`
}

type SRS struct {
	Proj4 string `json:"proj4,omitempty"`
	WKT   string `json:"wkt,omitempty"`
	EPSG  string `json:"epsg,omitempty"`
}

// Format holds output-format options. Unset options are omitted on the wire.
type Format struct {
	Mime          string   `json:"mime,omitempty"`
	CRS           string   `json:"crs,omitempty"`
	SRS           *SRS     `json:"srs,omitempty"`
	IsTransparent *bool    `json:"isTransparent,omitempty"`
	Width         *float64 `json:"width,omitempty"`
	Height        *float64 `json:"height,omitempty"`
	DPI           *float64 `json:"dpi,omitempty"`
	Interpolation string   `json:"interpolation,omitempty"`
}

type Dimension struct {
	Name string   `json:"name"`
	Min  *float64 `json:"min,omitempty"`
	Max  *float64 `json:"max,omitempty"`
}

// Subset is the spatial subset. BBox is [west, south, east, north]; its
// length is only checked by schema validation.
type Subset struct {
	BBox       []float64       `json:"bbox,omitempty"`
	Shape      json.RawMessage `json:"shape,omitempty"`
	Dimensions []Dimension     `json:"dimensions,omitempty"`
}

// Temporal bounds are always normalized RFC 3339 strings.
type Temporal struct {
	Start string `json:"start,omitempty"`
	End   string `json:"end,omitempty"`
}

// Model is the plain field set used to build a DataOperation. A string field
// is assigned when non-empty, a slice when non-nil and a pointer when non-nil.
type Model struct {
	Client        string
	Callback      string
	Sources       []Source
	Format        *Format
	User          string
	Subset        *Subset
	IsSynchronous *bool
	RequestID     string
	Temporal      *Temporal
}
