package payment

import "github.com/shopspring/decimal"

var hundred = decimal.NewFromInt(100)

// DefaultTaxRate is Chile's IVA.
var DefaultTaxRate = decimal.RequireFromString("0.19")

type Charges struct {
	Price      decimal.Decimal
	Commission decimal.Decimal
	Tax        decimal.Decimal
	Total      decimal.Decimal
}

// Compute applies the house commission to the hammer price and tax to the
// sum of both. Amounts are rounded to two places.
func Compute(price int64, commissionPct, taxRate decimal.Decimal) Charges {
	p := decimal.NewFromInt(price)
	commission := p.Mul(commissionPct).Div(hundred).Round(2)
	tax := p.Add(commission).Mul(taxRate).Round(2)
	return Charges{
		Price:      p,
		Commission: commission,
		Tax:        tax,
		Total:      p.Add(commission).Add(tax),
	}
}
