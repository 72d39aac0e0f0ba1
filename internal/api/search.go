package api

import (
	"context"
	"net/http"
	"net/url"

	"github.com/example/carpool-client/internal/models"
)

const opSearch = "search"

// SearchCarpools asks the backend for matches of the given type. Scores are
// computed server side; results come back best first.
func (c *Client) SearchCarpools(ctx context.Context, searchType models.SearchType) ([]models.SearchResult, error) {
	var out []models.SearchResult
	err := c.do(ctx, call{
		op:       opSearch,
		method:   http.MethodGet,
		path:     "/search",
		query:    url.Values{"type": {string(searchType)}},
		auth:     true,
		fallback: "Search failed",
		check: func() error {
			if _, err := models.ParseSearchType(string(searchType)); err != nil {
				return &Error{Kind: KindInvalidInput, Op: opSearch, Message: err.Error()}
			}
			return nil
		},
	}, &out)
	if err != nil {
		return nil, err
	}
	return out, nil
}
