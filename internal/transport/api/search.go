package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/oapi-codegen/runtime"
	"go.uber.org/zap"

	"github.com/kailas-cloud/curator/internal/domain"
	"github.com/kailas-cloud/curator/internal/domain/facet"
	"github.com/kailas-cloud/curator/internal/domain/search/result"
	"github.com/kailas-cloud/curator/internal/usecase/search"
)

type itemDTO struct {
	ID           int64  `json:"id"`
	Title        string `json:"title"`
	Description  string `json:"description"`
	ResourceType string `json:"resource_type"`
	PreviewURL   string `json:"preview_url"`
}

type facetDTO struct {
	Facet struct {
		Key          string `json:"key"`
		Label        string `json:"label"`
		MissingCount int    `json:"missing_count"`
	} `json:"facet"`
	Values []struct {
		Key   string `json:"key"`
		Label string `json:"label"`
		Count int    `json:"count"`
	} `json:"values"`
}

// orderedFacets keeps facet_counts in payload order.
type orderedFacets []facetDTO

// UnmarshalJSON walks the object token by token so key order survives.
func (o *orderedFacets) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("facet_counts: expected object")
	}
	for dec.More() {
		if _, err := dec.Token(); err != nil {
			return err
		}
		var f facetDTO
		if err := dec.Decode(&f); err != nil {
			return err
		}
		*o = append(*o, f)
	}
	_, err = dec.Token()
	return err
}

type searchResponse struct {
	Count                 int                        `json:"count"`
	Results               []itemDTO                  `json:"results"`
	FacetCounts           orderedFacets              `json:"facet_counts"`
	SelectedFacets        map[string]map[string]bool `json:"selected_facets"`
	SelectedMissingFacets map[string]bool            `json:"selected_missing_facets"`
}

type itemListResponse struct {
	Results []itemDTO `json:"results"`
}

// Search runs the repository search with an encoded query string.
func (c *Client) Search(ctx context.Context, repo, rawQuery string) (result.Page, error) {
	var resp searchResponse
	path := "/api/v1/repositories/" + url.PathEscape(repo) + "/search/" + rawQuery
	if err := c.do(ctx, "search", http.MethodGet, path, nil, searchResponseSchema, &resp); err != nil {
		return result.Page{}, err
	}
	return resp.toPage(c.logger)
}

// FetchByIDs loads the records for ids in a single request.
func (c *Client) FetchByIDs(ctx context.Context, repo string, ids []int64) ([]result.Item, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	param, err := runtime.StyleParamWithLocation("form", false, "id", runtime.ParamLocationQuery, ids)
	if err != nil {
		return nil, fmt.Errorf("fetch by ids: style id param: %w", err)
	}
	var resp itemListResponse
	path := "/api/v1/repositories/" + url.PathEscape(repo) + "/resources/?" + param
	if err := c.do(ctx, "fetch_by_ids", http.MethodGet, path, nil, itemListSchema, &resp); err != nil {
		return nil, err
	}
	return toItems(resp.Results)
}

// Searcher binds Search to one repository.
type Searcher struct {
	client *Client
	repo   string
}

// SearcherFor returns a searcher scoped to repo.
func (c *Client) SearcherFor(repo string) search.Searcher {
	return Searcher{client: c, repo: repo}
}

// Search implements the search use case contract.
func (s Searcher) Search(ctx context.Context, rawQuery string) (result.Page, error) {
	return s.client.Search(ctx, s.repo, rawQuery)
}

// toPage converts the payload. A facet group whose key cannot be addressed in
// a query is dropped with a warning; the rest of the page is kept.
func (r searchResponse) toPage(log *zap.Logger) (result.Page, error) {
	items, err := toItems(r.Results)
	if err != nil {
		return result.Page{}, err
	}

	groups := make([]facet.Group, 0, len(r.FacetCounts))
	for _, f := range r.FacetCounts {
		d, err := facet.NewDescriptor(f.Facet.Key, f.Facet.Label, f.Facet.MissingCount)
		if err != nil {
			log.Warn("skipping facet group", zap.String("facet", f.Facet.Key), zap.Error(err))
			continue
		}
		values := make([]facet.Value, 0, len(f.Values))
		for _, v := range f.Values {
			label := v.Label
			if label == "" {
				label = v.Key
			}
			values = append(values, facet.Value{Key: v.Key, Label: label, Count: v.Count})
		}
		groups = append(groups, facet.Group{Facet: d, Values: values})
	}

	echo := facet.NewSelection()
	for fk, vals := range r.SelectedFacets {
		for vk, on := range vals {
			if !on {
				continue
			}
			if echo.Values[fk] == nil {
				echo.Values[fk] = map[string]bool{}
			}
			echo.Values[fk][vk] = true
		}
	}
	for fk, on := range r.SelectedMissingFacets {
		if on {
			echo.Missing[fk] = true
		}
	}

	page, err := result.NewPage(items, groups, echo, r.Count)
	if err != nil {
		return result.Page{}, fmt.Errorf("%w: %w", domain.ErrInvalidPayload, err)
	}
	return page, nil
}

func toItems(dtos []itemDTO) ([]result.Item, error) {
	items := make([]result.Item, 0, len(dtos))
	for _, d := range dtos {
		it, err := result.NewItem(d.ID, d.Title, d.Description, d.ResourceType, d.PreviewURL)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", domain.ErrInvalidPayload, err)
		}
		items = append(items, it)
	}
	return items, nil
}
