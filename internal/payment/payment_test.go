package payment

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/DoyleJ11/martillo-live/internal/engine"
	"github.com/DoyleJ11/martillo-live/internal/store"
)

type fakeGateway struct {
	calls []Checkout
	err   error
}

func (f *fakeGateway) CreateCheckout(_ context.Context, c Checkout) (CheckoutResult, error) {
	f.calls = append(f.calls, c)
	if f.err != nil {
		return CheckoutResult{}, f.err
	}
	return CheckoutResult{ProviderRef: "pref-1", URL: "https://pay.example/pref-1"}, nil
}

func TestCompute(t *testing.T) {
	cases := []struct {
		name      string
		price     int64
		pct       string
		wantComm  string
		wantTax   string
		wantTotal string
	}{
		{"ten percent", 1000000, "10", "100000.00", "209000.00", "1309000.00"},
		{"no commission", 105000, "0", "0.00", "19950.00", "124950.00"},
		{"fractional", 333333, "12.5", "41666.63", "71249.93", "446249.56"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := Compute(tc.price, decimal.RequireFromString(tc.pct), DefaultTaxRate)
			assert.Equal(t, tc.wantComm, c.Commission.StringFixed(2))
			assert.Equal(t, tc.wantTax, c.Tax.StringFixed(2))
			assert.Equal(t, tc.wantTotal, c.Total.StringFixed(2))
		})
	}
}

func newFixture(t *testing.T) (*store.Memory, *fakeGateway, *Service) {
	t.Helper()
	return newFixtureWith(t, Options{TaxRate: DefaultTaxRate})
}

func newFixtureWith(t *testing.T, opts Options) (*store.Memory, *fakeGateway, *Service) {
	t.Helper()
	ctx := context.Background()
	m := store.NewMemory()
	m.PutAuction(engine.Auction{
		ID:            "a1",
		Status:        engine.AuctionLive,
		CommissionPct: decimal.NewFromInt(10),
		Lots:          []engine.Lot{{ID: "l1", Title: "Reloj", Status: engine.LotAdjudicated, CurrentPrice: 1000000}},
	})
	require.NoError(t, m.InsertAdjudication(ctx, engine.Adjudication{
		ID: "adj-1", AuctionID: "a1", LotID: "l1", BidderID: "b1", FinalPrice: 1000000,
	}))
	gw := &fakeGateway{}
	svc := NewService(m, gw, opts, zaptest.NewLogger(t))
	return m, gw, svc
}

func TestCreatePaymentOrderKeepsZeroTax(t *testing.T) {
	_, _, svc := newFixtureWith(t, Options{TaxRate: decimal.Zero})

	o, err := svc.CreatePaymentOrder(context.Background(), "adj-1")
	require.NoError(t, err)
	assert.True(t, o.Charges.Tax.IsZero(), "tax = %s", o.Charges.Tax)
	assert.Equal(t, "1100000.00", o.Charges.Total.StringFixed(2))
}

func TestCreatePaymentOrderIsIdempotent(t *testing.T) {
	ctx := context.Background()
	_, gw, svc := newFixture(t)
	now := time.Date(2026, 5, 1, 15, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	o1, err := svc.CreatePaymentOrder(ctx, "adj-1")
	require.NoError(t, err)
	assert.Equal(t, "https://pay.example/pref-1", o1.URL)
	assert.Equal(t, now.Add(48*time.Hour), o1.ExpiresAt)
	assert.Equal(t, "1309000.00", o1.Charges.Total.StringFixed(2))
	require.Len(t, gw.calls, 1)
	assert.Equal(t, "adj-1", gw.calls[0].Reference)

	o2, err := svc.CreatePaymentOrder(ctx, "adj-1")
	require.NoError(t, err)
	assert.Equal(t, o1.ID, o2.ID)
	assert.Len(t, gw.calls, 1, "existing order must be reused")

	now = now.Add(49 * time.Hour)
	o3, err := svc.CreatePaymentOrder(ctx, "adj-1")
	require.NoError(t, err)
	assert.Equal(t, o1.ID, o3.ID)
	assert.Len(t, gw.calls, 2, "expired order gets a fresh checkout")
}

func TestCreatePaymentOrderGatewayFailure(t *testing.T) {
	ctx := context.Background()
	m, gw, svc := newFixture(t)
	gw.err = errors.New("provider down")

	_, err := svc.CreatePaymentOrder(ctx, "adj-1")
	require.Error(t, err)

	_, err = m.FindPaymentOrder(ctx, "adj-1")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestCreatePaymentOrderUnknownAdjudication(t *testing.T) {
	_, _, svc := newFixture(t)
	_, err := svc.CreatePaymentOrder(context.Background(), "nope")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestMercadoPagoMock(t *testing.T) {
	gw, err := NewMercadoPago("", true, "http://localhost:8080/", zaptest.NewLogger(t))
	require.NoError(t, err)

	res, err := gw.CreateCheckout(context.Background(), Checkout{Reference: "adj-1"})
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080/payments/mock/"+res.ProviderRef, res.URL)

	_, err = NewMercadoPago("", false, "", zaptest.NewLogger(t))
	assert.ErrorIs(t, err, ErrMissingAccessToken)
}
