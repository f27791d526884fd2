package controllers

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/castlemart/castlemart-backend/api/responses"
	"github.com/castlemart/castlemart-backend/api/validators"
	"github.com/castlemart/castlemart-backend/internal/products"
	"github.com/castlemart/castlemart-backend/pkg/db/models"
	"github.com/castlemart/castlemart-backend/pkg/enums"
	pkgerrors "github.com/castlemart/castlemart-backend/pkg/errors"
	"github.com/castlemart/castlemart-backend/pkg/logger"
	"github.com/castlemart/castlemart-backend/pkg/pagination"
)

const maxProductSearchLength = 100

type productResponse struct {
	ID          uuid.UUID      `json:"id"`
	SKU         string         `json:"sku"`
	Name        string         `json:"name"`
	Description *string        `json:"description,omitempty"`
	PriceCents  int64          `json:"price_cents"`
	Currency    enums.Currency `json:"currency"`
	StockQty    int64          `json:"stock_qty"`
	Tags        []string       `json:"tags,omitempty"`
	IsActive    bool           `json:"is_active"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

type productListResponse struct {
	Products   []productResponse `json:"products"`
	NextCursor string            `json:"next_cursor,omitempty"`
}

func newProductResponse(product *models.Product) *productResponse {
	if product == nil {
		return nil
	}
	return &productResponse{
		ID:          product.ID,
		SKU:         product.SKU,
		Name:        product.Name,
		Description: product.Description,
		PriceCents:  product.PriceCents,
		Currency:    product.Currency,
		StockQty:    product.StockQty,
		Tags:        product.Tags,
		IsActive:    product.IsActive,
		CreatedAt:   product.CreatedAt,
		UpdatedAt:   product.UpdatedAt,
	}
}

func parseProductListParams(r *http.Request, includeAll bool) (products.ListParams, error) {
	limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
	if err != nil {
		return products.ListParams{}, err
	}
	return products.ListParams{
		Filters: products.ListFilters{
			Tag:         strings.TrimSpace(r.URL.Query().Get("tag")),
			Query:       validators.SanitizeString(r.URL.Query().Get("q"), maxProductSearchLength),
			IncludeAll:  includeAll,
			OnlyInStock: r.URL.Query().Get("in_stock") == "true",
		},
		Limit:  limit,
		Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
	}, nil
}

func writeProductList(w http.ResponseWriter, result *products.ListResult) {
	rows := make([]productResponse, 0, len(result.Products))
	for i := range result.Products {
		rows = append(rows, *newProductResponse(&result.Products[i]))
	}
	responses.WriteSuccess(w, productListResponse{
		Products:   rows,
		NextCursor: result.NextCursor,
	})
}

// ListProducts handles GET /api/v1/products. Inactive listings never show
// up here; managing them goes through the admin surface.
func ListProducts(svc products.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "product service unavailable"))
			return
		}

		params, err := parseProductListParams(r, false)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.ListProducts(r.Context(), params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		writeProductList(w, result)
	}
}

// ProductDetail handles GET /api/v1/products/{productId}.
func ProductDetail(svc products.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "product service unavailable"))
			return
		}

		productID, err := parseProductID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		product, err := svc.GetProduct(r.Context(), productID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if !product.IsActive {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "product not found"))
			return
		}

		responses.WriteSuccess(w, newProductResponse(product))
	}
}
