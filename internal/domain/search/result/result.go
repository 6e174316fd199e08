package result

import (
	"fmt"
	"slices"

	"github.com/kailas-cloud/curator/internal/domain/facet"
)

// Item is a single content item in a search page or an export listing.
type Item struct {
	id           int64
	title        string
	description  string
	resourceType string
	previewURL   string
}

// NewItem creates an item. The id must be positive.
func NewItem(id int64, title, description, resourceType, previewURL string) (Item, error) {
	if id <= 0 {
		return Item{}, fmt.Errorf("item id must be positive, got %d", id)
	}
	return Item{
		id: id, title: title, description: description,
		resourceType: resourceType, previewURL: previewURL,
	}, nil
}

// ID returns the item identifier.
func (i Item) ID() int64 { return i.id }

// Title returns the item title.
func (i Item) Title() string { return i.title }

// Description returns the item description.
func (i Item) Description() string { return i.description }

// ResourceType returns the item's resource type.
func (i Item) ResourceType() string { return i.resourceType }

// PreviewURL returns the item preview link.
func (i Item) PreviewURL() string { return i.previewURL }

// Page is one successful search response. It is immutable once built and is
// replaced wholesale by the next successful response.
type Page struct {
	items      []Item
	facets     []facet.Group
	selected   facet.Selection
	totalCount int
}

// NewPage creates a search page.
func NewPage(items []Item, facets []facet.Group, selected facet.Selection, totalCount int) (Page, error) {
	if totalCount < 0 {
		return Page{}, fmt.Errorf("negative total count %d", totalCount)
	}
	if selected.Values == nil || selected.Missing == nil {
		selected = facet.NewSelection()
	}
	return Page{
		items:      slices.Clone(items),
		facets:     slices.Clone(facets),
		selected:   selected,
		totalCount: totalCount,
	}, nil
}

// Items returns the items on this page.
func (p Page) Items() []Item { return slices.Clone(p.items) }

// Facets returns the facet groups in server order.
func (p Page) Facets() []facet.Group { return slices.Clone(p.facets) }

// Selected returns the server's echo of the selected facets.
func (p Page) Selected() facet.Selection { return p.selected }

// TotalCount returns the number of matching items across all pages.
func (p Page) TotalCount() int { return p.totalCount }

// NumPages returns ceil(totalCount / pageSize); zero when nothing matched.
func (p Page) NumPages(pageSize int) int {
	if pageSize <= 0 || p.totalCount == 0 {
		return 0
	}
	return (p.totalCount + pageSize - 1) / pageSize
}
