package stac

import (
	"strconv"

	"github.com/mohammed-shakir/harmony-core/internal/job"
)

// NewCatalog builds the root catalog of j: the job's non-data links verbatim,
// a root link when the job has none, then one relative item link per data
// link.
func NewCatalog(j *job.Job) (*Catalog, error) {
	if err := job.Check(j); err != nil {
		return nil, err
	}
	related := j.RelatedLinks()
	links := make([]Link, 0, len(related)+2)
	hasRoot := false
	for _, l := range related {
		if l.Rel == RelRoot {
			hasRoot = true
		}
		links = append(links, Link{Href: l.Href, Rel: l.Rel, Title: l.Title, Type: l.Type})
	}
	if !hasRoot {
		links = append(links, Link{Href: "./" + CatalogFile, Rel: RelRoot, Title: "root", Type: "application/json"})
	}
	for i, l := range j.DataLinks() {
		links = append(links, Link{Href: "./" + strconv.Itoa(i), Rel: RelItem, Title: l.Title, Type: "application/json"})
	}

	desc := "Harmony output for " + j.RequestID()
	if j.Request() != "" {
		desc = "Harmony output for " + j.Request()
	}
	return &Catalog{
		Type:        "Catalog",
		StacVersion: Version,
		ID:          j.RequestID(),
		Title:       "Harmony output for " + j.RequestID(),
		Description: desc,
		Links:       links,
	}, nil
}

// Documents renders the catalog and every item of j.
func Documents(j *job.Job) (*Catalog, []*Item, error) {
	cat, err := NewCatalog(j)
	if err != nil {
		return nil, nil, err
	}
	n := len(j.DataLinks())
	items := make([]*Item, 0, n)
	for i := range n {
		it, err := NewItem(j, i)
		if err != nil {
			return nil, nil, err
		}
		items = append(items, it)
	}
	return cat, items, nil
}
