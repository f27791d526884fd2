package controllers

import (
	"net/http"
	"strings"

	"github.com/castlemart/castlemart-backend/api/responses"
	"github.com/castlemart/castlemart-backend/api/validators"
	"github.com/castlemart/castlemart-backend/internal/products"
	"github.com/castlemart/castlemart-backend/pkg/enums"
	pkgerrors "github.com/castlemart/castlemart-backend/pkg/errors"
	"github.com/castlemart/castlemart-backend/pkg/logger"
)

type createProductRequest struct {
	SKU         string   `json:"sku" validate:"required"`
	Name        string   `json:"name" validate:"required"`
	Description *string  `json:"description,omitempty"`
	PriceCents  int64    `json:"price_cents" validate:"min=0"`
	Currency    string   `json:"currency,omitempty"`
	StockQty    int64    `json:"stock_qty" validate:"min=0"`
	Tags        []string `json:"tags,omitempty" validate:"omitempty,dive,required"`
}

func (req createProductRequest) toCreateInput() (products.CreateProductInput, error) {
	var currency enums.Currency
	if raw := strings.TrimSpace(req.Currency); raw != "" {
		parsed, err := enums.ParseCurrency(strings.ToUpper(raw))
		if err != nil {
			return products.CreateProductInput{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid currency")
		}
		currency = parsed
	}
	return products.CreateProductInput{
		SKU:         req.SKU,
		Name:        req.Name,
		Description: req.Description,
		PriceCents:  req.PriceCents,
		Currency:    currency,
		StockQty:    req.StockQty,
		Tags:        req.Tags,
	}, nil
}

type updateProductRequest struct {
	Name        *string  `json:"name,omitempty"`
	Description *string  `json:"description,omitempty"`
	PriceCents  *int64   `json:"price_cents,omitempty" validate:"omitempty,min=0"`
	Tags        []string `json:"tags,omitempty" validate:"omitempty,dive,required"`
	IsActive    *bool    `json:"is_active,omitempty"`
}

// AdminListProducts handles GET /api/v1/admin/products. Unlike the
// storefront listing it includes inactive rows.
func AdminListProducts(svc products.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "product service unavailable"))
			return
		}

		if _, err := requesterFromContext(r); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		params, err := parseProductListParams(r, true)
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

// AdminCreateProduct handles POST /api/v1/admin/products.
func AdminCreateProduct(svc products.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "product service unavailable"))
			return
		}

		if _, err := requesterFromContext(r); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req createProductRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input, err := req.toCreateInput()
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		product, err := svc.CreateProduct(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, newProductResponse(product))
	}
}

// AdminUpdateProduct handles PATCH /api/v1/admin/products/{productId}.
// Absent fields keep their stored values.
func AdminUpdateProduct(svc products.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "product service unavailable"))
			return
		}

		if _, err := requesterFromContext(r); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		productID, err := parseProductID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req updateProductRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		product, err := svc.UpdateProduct(r.Context(), productID, products.UpdateProductInput{
			Name:        req.Name,
			Description: req.Description,
			PriceCents:  req.PriceCents,
			Tags:        req.Tags,
			IsActive:    req.IsActive,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, newProductResponse(product))
	}
}

// AdminDeactivateProduct handles DELETE /api/v1/admin/products/{productId}.
// The row stays for order history; it just leaves the storefront.
func AdminDeactivateProduct(svc products.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "product service unavailable"))
			return
		}

		if _, err := requesterFromContext(r); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		productID, err := parseProductID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := svc.DeactivateProduct(r.Context(), productID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, map[string]string{"status": "deactivated"})
	}
}
