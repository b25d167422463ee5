package payment

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var ErrMissingAccessToken = errors.New("missing MERCADOPAGO_ACCESS_TOKEN")
var ErrGatewayNotConfigured = errors.New("payment gateway not configured")

type Checkout struct {
	Reference string // adjudication id
	Title     string
	Amount    decimal.Decimal
	ExpiresAt time.Time
}

type CheckoutResult struct {
	ProviderRef string
	URL         string
}

type Gateway interface {
	CreateCheckout(ctx context.Context, c Checkout) (CheckoutResult, error)
}
