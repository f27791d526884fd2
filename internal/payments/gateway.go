package payments

import (
	"context"
	"fmt"

	"github.com/castlemart/castlemart-backend/pkg/square"
)

const gatewayStatusCompleted = "COMPLETED"

// VerifyResult is the gateway's view of one payment attempt.
type VerifyResult struct {
	Completed   bool
	AmountCents int64
	Currency    string
	Status      string
}

// RefundParams describe a refund against a captured payment. The idempotency
// key keeps gateway retries from refunding twice.
type RefundParams struct {
	Reference      string
	AmountCents    int64
	Currency       string
	Reason         string
	IdempotencyKey string
}

// RefundResult carries the gateway's refund handle.
type RefundResult struct {
	RefundID string
	Status   string
}

// Gateway is the payment provider surface the order flow depends on.
type Gateway interface {
	Verify(ctx context.Context, reference string) (VerifyResult, error)
	Refund(ctx context.Context, params RefundParams) (RefundResult, error)
}

type squareGateway struct {
	client *square.Client
}

// NewSquareGateway adapts the Square client to the Gateway port.
func NewSquareGateway(client *square.Client) (Gateway, error) {
	if client == nil {
		return nil, fmt.Errorf("square client required")
	}
	return &squareGateway{client: client}, nil
}

func (g *squareGateway) Verify(ctx context.Context, reference string) (VerifyResult, error) {
	payment, err := g.client.GetPayment(ctx, reference)
	if err != nil {
		return VerifyResult{}, err
	}

	var result VerifyResult
	if payment == nil {
		return result, nil
	}
	if status := payment.GetStatus(); status != nil {
		result.Status = *status
	}
	if money := payment.GetAmountMoney(); money != nil {
		if amount := money.GetAmount(); amount != nil {
			result.AmountCents = *amount
		}
		if currency := money.GetCurrency(); currency != nil {
			result.Currency = string(*currency)
		}
	}
	result.Completed = result.Status == gatewayStatusCompleted
	return result, nil
}

func (g *squareGateway) Refund(ctx context.Context, params RefundParams) (RefundResult, error) {
	refund, err := g.client.RefundPayment(ctx, square.RefundCreateParams{
		PaymentID:      params.Reference,
		AmountCents:    params.AmountCents,
		Currency:       params.Currency,
		Reason:         params.Reason,
		IdempotencyKey: params.IdempotencyKey,
	})
	if err != nil {
		return RefundResult{}, err
	}

	var result RefundResult
	if refund == nil {
		return result, nil
	}
	result.RefundID = refund.GetID()
	if status := refund.GetStatus(); status != nil {
		result.Status = *status
	}
	return result, nil
}
