package payments

import (
	"context"
	"errors"
	"testing"

	"github.com/stripe/stripe-go/v78"
)

type stubSessionAPI struct {
	getFn func(id string, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
}

func (s *stubSessionAPI) Get(id string, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	if s.getFn != nil {
		return s.getFn(id, params)
	}
	return nil, errors.New("not implemented")
}

type stubIntentAPI struct {
	getFn    func(id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
	updateFn func(id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
}

func (s *stubIntentAPI) Get(id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
	if s.getFn != nil {
		return s.getFn(id, params)
	}
	return nil, errors.New("not implemented")
}

func (s *stubIntentAPI) Update(id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
	if s.updateFn != nil {
		return s.updateFn(id, params)
	}
	return nil, errors.New("not implemented")
}

type stubChargeAPI struct {
	getFn func(id string, params *stripe.ChargeParams) (*stripe.Charge, error)
}

func (s *stubChargeAPI) Get(id string, params *stripe.ChargeParams) (*stripe.Charge, error) {
	if s.getFn != nil {
		return s.getFn(id, params)
	}
	return nil, errors.New("not implemented")
}

type stubRefundAPI struct {
	newFn func(params *stripe.RefundParams) (*stripe.Refund, error)
}

func (s *stubRefundAPI) New(params *stripe.RefundParams) (*stripe.Refund, error) {
	if s.newFn != nil {
		return s.newFn(params)
	}
	return nil, errors.New("not implemented")
}

type stubReviewAPI struct {
	openFn func(ctx context.Context, paymentIntentID string) (*stripe.Review, error)
}

func (s *stubReviewAPI) Open(ctx context.Context, paymentIntentID string) (*stripe.Review, error) {
	if s.openFn != nil {
		return s.openFn(ctx, paymentIntentID)
	}
	return nil, errors.New("not implemented")
}

func newTestProvider(t *testing.T, clients stripeClients) *StripeProvider {
	t.Helper()
	if clients.sessions == nil {
		clients.sessions = &stubSessionAPI{}
	}
	if clients.intents == nil {
		clients.intents = &stubIntentAPI{}
	}
	if clients.charges == nil {
		clients.charges = &stubChargeAPI{}
	}
	if clients.refunds == nil {
		clients.refunds = &stubRefundAPI{}
	}
	if clients.reviews == nil {
		clients.reviews = &stubReviewAPI{}
	}
	provider, err := NewStripeProvider(StripeProviderConfig{Clients: &clients})
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}
	return provider
}

func TestRetrieveSessionExpandsPaymentIntent(t *testing.T) {
	var expanded []string
	provider := newTestProvider(t, stripeClients{
		sessions: &stubSessionAPI{
			getFn: func(id string, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
				for _, e := range params.Expand {
					expanded = append(expanded, *e)
				}
				return &stripe.CheckoutSession{
					ID:            id,
					Status:        stripe.CheckoutSessionStatusComplete,
					PaymentIntent: &stripe.PaymentIntent{ID: "pi_123"},
				}, nil
			},
		},
	})

	session, err := provider.RetrieveSession(context.Background(), "cs_123")
	if err != nil {
		t.Fatalf("retrieve session: %v", err)
	}
	if session.PaymentIntentID != "pi_123" {
		t.Fatalf("unexpected payment intent %q", session.PaymentIntentID)
	}
	if len(expanded) != 1 || expanded[0] != "payment_intent" {
		t.Fatalf("unexpected expands %v", expanded)
	}
}

func TestCreateRefundRequiresPaymentIntent(t *testing.T) {
	provider := newTestProvider(t, stripeClients{})
	if _, err := provider.CreateRefund(context.Background(), RefundParams{Amount: 500}); !errors.Is(err, ErrNoPaymentIntent) {
		t.Fatalf("expected ErrNoPaymentIntent, got %v", err)
	}
}

func TestCreateRefundForwardsAmountAndIntent(t *testing.T) {
	var got *stripe.RefundParams
	provider := newTestProvider(t, stripeClients{
		refunds: &stubRefundAPI{
			newFn: func(params *stripe.RefundParams) (*stripe.Refund, error) {
				got = params
				return &stripe.Refund{
					ID:     "re_1",
					Amount: *params.Amount,
					Status: stripe.RefundStatusSucceeded,
					Charge: &stripe.Charge{ID: "ch_1"},
				}, nil
			},
		},
	})

	refund, err := provider.CreateRefund(context.Background(), RefundParams{
		PaymentIntentID: "pi_123",
		Amount:          2500,
	})
	if err != nil {
		t.Fatalf("create refund: %v", err)
	}
	if got == nil || got.PaymentIntent == nil || *got.PaymentIntent != "pi_123" {
		t.Fatalf("payment intent not forwarded: %+v", got)
	}
	if got.Amount == nil || *got.Amount != 2500 {
		t.Fatalf("amount not forwarded: %+v", got)
	}
	if refund.ChargeID != "ch_1" {
		t.Fatalf("unexpected charge id %q", refund.ChargeID)
	}
}

func TestRetrieveChargeMapsFraudOutcome(t *testing.T) {
	provider := newTestProvider(t, stripeClients{
		charges: &stubChargeAPI{
			getFn: func(id string, _ *stripe.ChargeParams) (*stripe.Charge, error) {
				return &stripe.Charge{
					ID:                 id,
					Amount:             10000,
					Currency:           stripe.CurrencyEUR,
					PaymentIntent:      &stripe.PaymentIntent{ID: "pi_123"},
					BalanceTransaction: &stripe.BalanceTransaction{ID: "txn_1"},
					Outcome: &stripe.ChargeOutcome{
						RiskLevel: "elevated",
						RiskScore: 62,
					},
				}, nil
			},
		},
	})

	charge, err := provider.RetrieveCharge(context.Background(), "ch_1")
	if err != nil {
		t.Fatalf("retrieve charge: %v", err)
	}
	if charge.RiskLevel != "elevated" {
		t.Fatalf("unexpected outcome %+v", charge)
	}
	if charge.RiskScore == nil || *charge.RiskScore != 62 {
		t.Fatalf("risk score = %v, want 62", charge.RiskScore)
	}
	if charge.Currency != "EUR" {
		t.Fatalf("unexpected currency %q", charge.Currency)
	}
	if charge.BalanceTransactionID != "txn_1" {
		t.Fatalf("unexpected balance transaction %q", charge.BalanceTransactionID)
	}
}

func TestRequireStrongAuthRequestsChallenge(t *testing.T) {
	var got *stripe.PaymentIntentParams
	provider := newTestProvider(t, stripeClients{
		intents: &stubIntentAPI{
			updateFn: func(id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
				got = params
				return &stripe.PaymentIntent{ID: id}, nil
			},
		},
	})

	if err := provider.RequireStrongAuth(context.Background(), "pi_123"); err != nil {
		t.Fatalf("require strong auth: %v", err)
	}
	if got == nil || got.PaymentMethodOptions == nil || got.PaymentMethodOptions.Card == nil {
		t.Fatalf("card options not set: %+v", got)
	}
	if got.PaymentMethodOptions.Card.RequestThreeDSecure == nil || *got.PaymentMethodOptions.Card.RequestThreeDSecure != "any" {
		t.Fatalf("challenge not requested: %+v", got.PaymentMethodOptions.Card)
	}
}

func TestOpenReviewRequiresPaymentIntent(t *testing.T) {
	provider := newTestProvider(t, stripeClients{})
	if _, err := provider.OpenReview(context.Background(), " "); !errors.Is(err, ErrNoPaymentIntent) {
		t.Fatalf("expected ErrNoPaymentIntent, got %v", err)
	}
}
