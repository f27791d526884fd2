package checkout

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/castlemart/castlemart-backend/pkg/config"
	pkgerrors "github.com/castlemart/castlemart-backend/pkg/errors"
)

// PricingPolicy computes order totals from snapshot lines. All arithmetic on
// cents is exact; the single rounding step is the tax calculation.
type PricingPolicy struct {
	taxRate               decimal.Decimal
	shippingFlatCents     int64
	shippingFreeOverCents int64
}

// NewPricingPolicy parses the configured tax rate and shipping thresholds.
func NewPricingPolicy(cfg config.PricingConfig) (PricingPolicy, error) {
	rate, err := decimal.NewFromString(cfg.TaxRate)
	if err != nil {
		return PricingPolicy{}, fmt.Errorf("parse tax rate %q: %w", cfg.TaxRate, err)
	}
	if rate.IsNegative() {
		return PricingPolicy{}, fmt.Errorf("tax rate %q is negative", cfg.TaxRate)
	}
	if cfg.ShippingFlatCents < 0 {
		return PricingPolicy{}, fmt.Errorf("shipping flat fee %d is negative", cfg.ShippingFlatCents)
	}
	return PricingPolicy{
		taxRate:               rate,
		shippingFlatCents:     cfg.ShippingFlatCents,
		shippingFreeOverCents: cfg.ShippingFreeOverCents,
	}, nil
}

// QuoteLine is one priced snapshot line.
type QuoteLine struct {
	UnitPriceCents int64
	Quantity       int64
}

// Quote is the priced order breakdown. TotalCents is the sum of the other
// three fields; nothing is re-rounded after the tax step.
type Quote struct {
	SubtotalCents int64 `json:"subtotal_cents"`
	TaxCents      int64 `json:"tax_cents"`
	ShippingCents int64 `json:"shipping_cents"`
	TotalCents    int64 `json:"total_cents"`
}

// Quote prices the given lines. Tax is subtotal times the rate, rounded
// half-up to whole cents exactly once.
func (p PricingPolicy) Quote(lines []QuoteLine) (Quote, error) {
	if len(lines) == 0 {
		return Quote{}, pkgerrors.New(pkgerrors.CodeValidation, "no lines to price")
	}

	var subtotal int64
	for _, line := range lines {
		if line.Quantity <= 0 {
			return Quote{}, pkgerrors.New(pkgerrors.CodeValidation, "line quantity must be positive")
		}
		if line.UnitPriceCents < 0 {
			return Quote{}, pkgerrors.New(pkgerrors.CodeValidation, "line price must not be negative")
		}
		subtotal += line.UnitPriceCents * line.Quantity
	}

	// decimal.Round rounds half away from zero, which is half-up for the
	// non-negative amounts handled here.
	tax := decimal.NewFromInt(subtotal).Mul(p.taxRate).Round(0).IntPart()

	shipping := p.shippingFlatCents
	if p.shippingFreeOverCents > 0 && subtotal >= p.shippingFreeOverCents {
		shipping = 0
	}

	return Quote{
		SubtotalCents: subtotal,
		TaxCents:      tax,
		ShippingCents: shipping,
		TotalCents:    subtotal + tax + shipping,
	}, nil
}
