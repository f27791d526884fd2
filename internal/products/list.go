package products

import (
	"github.com/castlemart/castlemart-backend/pkg/db/models"
	"github.com/castlemart/castlemart-backend/pkg/pagination"
)

// ListFilters describe the supported filter knobs for the catalog browse endpoint.
type ListFilters struct {
	Tag         string `json:"tag,omitempty"`
	Query       string `json:"q,omitempty"`
	IncludeAll  bool   `json:"-"`
	OnlyInStock bool   `json:"in_stock,omitempty"`
}

// ListParams capture the inputs needed to paginate and filter the catalog.
type ListParams struct {
	Filters ListFilters
	Limit   int
	Cursor  string
}

// ListResult wraps paginated products plus the next page cursor.
type ListResult struct {
	Products   []models.Product `json:"products"`
	NextCursor string           `json:"next_cursor,omitempty"`
}

type listQuery struct {
	activeOnly bool
	inStock    bool
	tag        string
	search     string
	limit      int
	cursor     *pagination.Cursor
}
