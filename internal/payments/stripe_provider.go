package payments

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"
)

// StripeLogger defines the logging contract for Stripe provider operations.
type StripeLogger func(ctx context.Context, event string, fields map[string]any)

type stripeSessionAPI interface {
	Get(id string, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
}

type stripePaymentIntentAPI interface {
	Get(id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
	Update(id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
}

type stripeChargeAPI interface {
	Get(id string, params *stripe.ChargeParams) (*stripe.Charge, error)
}

type stripeRefundAPI interface {
	New(params *stripe.RefundParams) (*stripe.Refund, error)
}

type stripeReviewAPI interface {
	Open(ctx context.Context, paymentIntentID string) (*stripe.Review, error)
}

type stripeClients struct {
	sessions stripeSessionAPI
	intents  stripePaymentIntentAPI
	charges  stripeChargeAPI
	refunds  stripeRefundAPI
	reviews  stripeReviewAPI
}

// StripeProviderConfig configures the StripeProvider.
type StripeProviderConfig struct {
	APIKey   string
	Backends *stripe.Backends
	Logger   StripeLogger
	Clients  *stripeClients
}

// StripeProvider implements the Provider interface using Stripe APIs.
type StripeProvider struct {
	api    stripeClients
	logger StripeLogger
}

// NewStripeProvider constructs a Stripe Provider using the given configuration.
func NewStripeProvider(cfg StripeProviderConfig) (*StripeProvider, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" && cfg.Clients == nil {
		return nil, errors.New("stripe: api key is required")
	}

	var clients stripeClients
	if cfg.Clients != nil {
		clients = *cfg.Clients
	} else {
		sc := client.New(apiKey, cfg.Backends)
		backend := stripe.GetBackend(stripe.APIBackend)
		if cfg.Backends != nil && cfg.Backends.API != nil {
			backend = cfg.Backends.API
		}
		clients = stripeClients{
			sessions: sc.CheckoutSessions,
			intents:  sc.PaymentIntents,
			charges:  sc.Charges,
			refunds:  sc.Refunds,
			reviews:  &reviewClient{backend: backend, key: apiKey},
		}
	}

	if clients.sessions == nil || clients.intents == nil || clients.charges == nil || clients.refunds == nil || clients.reviews == nil {
		return nil, errors.New("stripe: incomplete client configuration")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &StripeProvider{api: clients, logger: logger}, nil
}

// RetrieveSession fetches a checkout session with the payment intent expanded.
func (p *StripeProvider) RetrieveSession(ctx context.Context, sessionID string) (CheckoutSession, error) {
	if p == nil {
		return CheckoutSession{}, errors.New("stripe: provider is nil")
	}
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	params.AddExpand("payment_intent")

	session, err := p.api.sessions.Get(sessionID, params)
	if err != nil {
		return CheckoutSession{}, fmt.Errorf("stripe: retrieve session: %w", err)
	}

	result := CheckoutSession{
		ID:     session.ID,
		Status: string(session.Status),
	}
	if session.PaymentIntent != nil {
		result.PaymentIntentID = session.PaymentIntent.ID
	}
	if session.Customer != nil {
		result.CustomerID = session.Customer.ID
	}
	return result, nil
}

// RetrievePaymentIntent fetches a payment intent with its latest charge expanded.
func (p *StripeProvider) RetrievePaymentIntent(ctx context.Context, intentID string) (PaymentIntent, error) {
	if p == nil {
		return PaymentIntent{}, errors.New("stripe: provider is nil")
	}
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	params.AddExpand("latest_charge")

	intent, err := p.api.intents.Get(intentID, params)
	if err != nil {
		return PaymentIntent{}, fmt.Errorf("stripe: retrieve payment intent: %w", err)
	}

	result := PaymentIntent{ID: intent.ID}
	if intent.Customer != nil {
		result.CustomerID = intent.Customer.ID
	}
	if charge := intent.LatestCharge; charge != nil {
		result.LatestChargeID = charge.ID
		if charge.Invoice != nil {
			result.InvoiceID = charge.Invoice.ID
		}
	}
	return result, nil
}

// RetrieveCharge fetches a charge including the PSP fraud outcome.
func (p *StripeProvider) RetrieveCharge(ctx context.Context, chargeID string) (Charge, error) {
	if p == nil {
		return Charge{}, errors.New("stripe: provider is nil")
	}
	params := &stripe.ChargeParams{}
	params.Context = ctx

	charge, err := p.api.charges.Get(chargeID, params)
	if err != nil {
		return Charge{}, fmt.Errorf("stripe: retrieve charge: %w", err)
	}
	return stripeCharge(charge), nil
}

// CreateRefund issues a refund for the payment intent.
func (p *StripeProvider) CreateRefund(ctx context.Context, req RefundParams) (Refund, error) {
	if p == nil {
		return Refund{}, errors.New("stripe: provider is nil")
	}
	intentID := strings.TrimSpace(req.PaymentIntentID)
	if intentID == "" {
		return Refund{}, ErrNoPaymentIntent
	}

	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(intentID),
	}
	params.Context = ctx
	if key := strings.TrimSpace(req.IdempotencyKey); key != "" {
		params.SetIdempotencyKey(key)
	}
	if req.Amount > 0 {
		params.Amount = stripe.Int64(req.Amount)
	}
	if reason := mapStripeRefundReason(req.Reason); reason != "" {
		params.Reason = stripe.String(reason)
	}

	refund, err := p.api.refunds.New(params)
	if err != nil {
		return Refund{}, fmt.Errorf("stripe: refund payment intent: %w", err)
	}

	p.logger(ctx, "payments.stripe.refund.created", map[string]any{
		"paymentIntent": intentID,
		"refund":        refund.ID,
		"amount":        refund.Amount,
	})

	result := Refund{
		ID:     refund.ID,
		Amount: refund.Amount,
		Status: string(refund.Status),
	}
	if refund.Charge != nil {
		result.ChargeID = refund.Charge.ID
	}
	return result, nil
}

// OpenReview opens a manual fraud review for the payment.
func (p *StripeProvider) OpenReview(ctx context.Context, paymentIntentID string) (Review, error) {
	if p == nil {
		return Review{}, errors.New("stripe: provider is nil")
	}
	intentID := strings.TrimSpace(paymentIntentID)
	if intentID == "" {
		return Review{}, ErrNoPaymentIntent
	}

	review, err := p.api.reviews.Open(ctx, intentID)
	if err != nil {
		return Review{}, fmt.Errorf("stripe: open review: %w", err)
	}

	p.logger(ctx, "payments.stripe.review.opened", map[string]any{
		"paymentIntent": intentID,
		"review":        review.ID,
	})

	result := Review{ID: review.ID, Open: review.Open}
	if review.PaymentIntent != nil {
		result.PaymentIntent = review.PaymentIntent.ID
	}
	return result, nil
}

// RequireStrongAuth forces a 3DS challenge on the next confirmation attempt.
func (p *StripeProvider) RequireStrongAuth(ctx context.Context, paymentIntentID string) error {
	if p == nil {
		return errors.New("stripe: provider is nil")
	}
	intentID := strings.TrimSpace(paymentIntentID)
	if intentID == "" {
		return ErrNoPaymentIntent
	}

	params := &stripe.PaymentIntentParams{
		PaymentMethodOptions: &stripe.PaymentIntentPaymentMethodOptionsParams{
			Card: &stripe.PaymentIntentPaymentMethodOptionsCardParams{
				RequestThreeDSecure: stripe.String("any"),
			},
		},
	}
	params.Context = ctx

	if _, err := p.api.intents.Update(intentID, params); err != nil {
		return fmt.Errorf("stripe: require strong auth: %w", err)
	}

	p.logger(ctx, "payments.stripe.intent.stepup", map[string]any{
		"paymentIntent": intentID,
	})
	return nil
}

// reviewClient issues review creation calls directly against the API backend.
// The SDK exposes review retrieval and approval but not creation.
type reviewClient struct {
	backend stripe.Backend
	key     string
}

type reviewOpenParams struct {
	stripe.Params `form:"*"`
	PaymentIntent *string `form:"payment_intent"`
}

func (c *reviewClient) Open(ctx context.Context, paymentIntentID string) (*stripe.Review, error) {
	params := &reviewOpenParams{
		PaymentIntent: stripe.String(paymentIntentID),
	}
	params.Context = ctx

	review := &stripe.Review{}
	if err := c.backend.Call(http.MethodPost, "/v1/reviews", c.key, params, review); err != nil {
		return nil, err
	}
	return review, nil
}

func stripeCharge(charge *stripe.Charge) Charge {
	if charge == nil {
		return Charge{}
	}

	result := Charge{
		ID:             charge.ID,
		Amount:         charge.Amount,
		AmountRefunded: charge.AmountRefunded,
		Currency:       strings.ToUpper(string(charge.Currency)),
	}
	if charge.PaymentIntent != nil {
		result.PaymentIntentID = charge.PaymentIntent.ID
	}
	if charge.Invoice != nil {
		result.InvoiceID = charge.Invoice.ID
	}
	if charge.Customer != nil {
		result.CustomerID = charge.Customer.ID
	}
	if charge.BalanceTransaction != nil {
		result.BalanceTransactionID = charge.BalanceTransaction.ID
	}
	if outcome := charge.Outcome; outcome != nil {
		result.RiskLevel = outcome.RiskLevel
		score := outcome.RiskScore
		result.RiskScore = &score
	}
	return result
}

func mapStripeRefundReason(reason string) string {
	switch strings.ToLower(strings.TrimSpace(reason)) {
	case string(stripe.RefundReasonDuplicate):
		return string(stripe.RefundReasonDuplicate)
	case string(stripe.RefundReasonFraudulent):
		return string(stripe.RefundReasonFraudulent)
	case string(stripe.RefundReasonRequestedByCustomer):
		return string(stripe.RefundReasonRequestedByCustomer)
	default:
		return ""
	}
}
