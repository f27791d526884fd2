package controllers

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/castlemart/castlemart-backend/api/responses"
	"github.com/castlemart/castlemart-backend/api/validators"
	"github.com/castlemart/castlemart-backend/internal/inventory"
	"github.com/castlemart/castlemart-backend/pkg/db/models"
	"github.com/castlemart/castlemart-backend/pkg/enums"
	pkgerrors "github.com/castlemart/castlemart-backend/pkg/errors"
	"github.com/castlemart/castlemart-backend/pkg/logger"
	"github.com/castlemart/castlemart-backend/pkg/pagination"
)

const maxAdjustmentNoteLength = 500

type adjustInventoryRequest struct {
	Delta int64   `json:"delta" validate:"required"`
	Note  *string `json:"note" validate:"omitempty,max=500"`
}

type inventoryTransactionResponse struct {
	ID            uuid.UUID             `json:"id"`
	ProductID     uuid.UUID             `json:"product_id"`
	OrderID       *uuid.UUID            `json:"order_id,omitempty"`
	Reason        enums.InventoryReason `json:"reason"`
	QuantityDelta int64                 `json:"quantity_delta"`
	StockBefore   int64                 `json:"stock_before"`
	StockAfter    int64                 `json:"stock_after"`
	Actor         string                `json:"actor"`
	Note          *string               `json:"note,omitempty"`
	CreatedAt     time.Time             `json:"created_at"`
}

type adjustInventoryResponse struct {
	ProductID   uuid.UUID                     `json:"product_id"`
	StockBefore int64                         `json:"stock_before"`
	StockAfter  int64                         `json:"stock_after"`
	Transaction *inventoryTransactionResponse `json:"transaction,omitempty"`
}

type inventoryLedgerResponse struct {
	Transactions []inventoryTransactionResponse `json:"transactions"`
	NextCursor   string                         `json:"next_cursor,omitempty"`
}

func newInventoryTransactionResponse(txn *models.InventoryTransaction) *inventoryTransactionResponse {
	if txn == nil {
		return nil
	}
	return &inventoryTransactionResponse{
		ID:            txn.ID,
		ProductID:     txn.ProductID,
		OrderID:       txn.OrderID,
		Reason:        txn.Reason,
		QuantityDelta: txn.QuantityDelta,
		StockBefore:   txn.StockBefore,
		StockAfter:    txn.StockAfter,
		Actor:         txn.Actor,
		Note:          txn.Note,
		CreatedAt:     txn.CreatedAt,
	}
}

// AdminAdjustInventory handles POST /api/v1/admin/inventory/{productId}/adjust.
// The delta is signed; decrements that would drive stock negative are
// rejected by the service.
func AdminAdjustInventory(svc inventory.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "inventory service unavailable"))
			return
		}

		requester, err := requesterFromContext(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		productID, err := parseProductID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req adjustInventoryRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if req.Note != nil {
			trimmed := validators.SanitizeString(*req.Note, maxAdjustmentNoteLength)
			req.Note = &trimmed
		}

		result, err := svc.ManualAdjust(r.Context(), inventory.ManualAdjustInput{
			ProductID: productID,
			Delta:     req.Delta,
			Actor:     requester.UserID.String(),
			Note:      req.Note,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if logg != nil {
			wctx := logg.WithFields(r.Context(), map[string]any{
				"product_id":  productID.String(),
				"delta":       req.Delta,
				"stock_after": result.StockAfter,
			})
			logg.Info(wctx, "inventory adjusted")
		}

		responses.WriteSuccess(w, adjustInventoryResponse{
			ProductID:   result.ProductID,
			StockBefore: result.StockBefore,
			StockAfter:  result.StockAfter,
			Transaction: newInventoryTransactionResponse(result.Transaction),
		})
	}
}

// AdminInventoryLedger handles GET /api/v1/admin/inventory/{productId}/ledger.
func AdminInventoryLedger(svc inventory.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "inventory service unavailable"))
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

		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		params := inventory.LedgerListParams{
			ProductID: &productID,
			Params: pagination.Params{
				Limit:  limit,
				Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
			},
		}
		if raw := strings.TrimSpace(r.URL.Query().Get("reason")); raw != "" {
			reason, err := enums.ParseInventoryReason(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "unknown inventory reason filter"))
				return
			}
			params.Reason = &reason
		}

		page, err := svc.ListTransactions(r.Context(), params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		entries := make([]inventoryTransactionResponse, 0, len(page.Transactions))
		for i := range page.Transactions {
			entries = append(entries, *newInventoryTransactionResponse(&page.Transactions[i]))
		}

		responses.WriteSuccess(w, inventoryLedgerResponse{
			Transactions: entries,
			NextCursor:   page.NextCursor,
		})
	}
}

// AdminInventoryReplay handles GET /api/v1/admin/inventory/{productId}/replay.
// It recomputes stock from the ledger and reports whether the counter agrees.
func AdminInventoryReplay(svc inventory.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "inventory service unavailable"))
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

		result, err := svc.Replay(r.Context(), productID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if logg != nil && !result.Consistent {
			wctx := logg.WithFields(r.Context(), map[string]any{
				"product_id":    productID.String(),
				"ledger_stock":  result.LedgerStock,
				"counter_stock": result.CounterStock,
			})
			logg.Warn(wctx, "ledger replay mismatch")
		}

		responses.WriteSuccess(w, result)
	}
}
