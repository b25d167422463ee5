package payment

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/mercadopago/sdk-go/pkg/config"
	"github.com/mercadopago/sdk-go/pkg/preference"
	"go.uber.org/zap"
)

// MercadoPago creates checkout preferences. In mock mode it never calls the
// provider and hands out local URLs instead.
type MercadoPago struct {
	client   preference.Client
	mockMode bool
	baseURL  string
	log      *zap.Logger
}

func NewMercadoPago(accessToken string, mock bool, publicBaseURL string, log *zap.Logger) (*MercadoPago, error) {
	log = log.Named("payment.gateway")
	baseURL := strings.TrimRight(publicBaseURL, "/")
	if mock {
		log.Info("mock mode enabled")
		return &MercadoPago{mockMode: true, baseURL: baseURL, log: log}, nil
	}
	if accessToken == "" {
		log.Error("missing access token")
		return nil, ErrMissingAccessToken
	}

	cfg, err := config.New(accessToken)
	if err != nil {
		log.Error("failed creating sdk config", zap.Error(err))
		return nil, err
	}
	log.Info("Mercado Pago client initialized")
	return &MercadoPago{client: preference.NewClient(cfg), baseURL: baseURL, log: log}, nil
}

func (g *MercadoPago) CreateCheckout(ctx context.Context, c Checkout) (CheckoutResult, error) {
	if g != nil && g.mockMode {
		ref := uuid.NewString()
		g.log.Info("mock checkout", zap.String("reference", c.Reference), zap.String("provider_ref", ref))
		return CheckoutResult{ProviderRef: ref, URL: g.baseURL + "/payments/mock/" + ref}, nil
	}
	if g == nil || g.client == nil {
		return CheckoutResult{}, ErrGatewayNotConfigured
	}

	amount, _ := c.Amount.Float64()
	expires := c.ExpiresAt
	req := preference.Request{
		Items: []preference.ItemRequest{{
			ID:         c.Reference,
			Title:      c.Title,
			Quantity:   1,
			UnitPrice:  amount,
			CurrencyID: "CLP",
		}},
		ExternalReference: c.Reference,
		Expires:           true,
		ExpirationDateTo:  &expires,
	}
	if g.baseURL != "" {
		req.NotificationURL = g.baseURL + "/payments/webhook"
		req.BackURLs = &preference.BackURLsRequest{
			Success: g.baseURL + "/payments/return",
			Pending: g.baseURL + "/payments/return",
			Failure: g.baseURL + "/payments/return",
		}
	}

	resp, err := g.client.Create(ctx, req)
	if err != nil {
		g.log.Error("sdk create failed", zap.String("reference", c.Reference), zap.Error(err))
		return CheckoutResult{}, err
	}
	g.log.Info("checkout created", zap.String("reference", c.Reference), zap.String("provider_ref", resp.ID))
	return CheckoutResult{ProviderRef: resp.ID, URL: resp.InitPoint}, nil
}
