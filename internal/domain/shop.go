package domain

// LuxuryFeatures carries the per-shop fraud controls applied to high-value
// checkouts.
type LuxuryFeatures struct {
	// FraudReviewThreshold is the deposit (major units) above which a manual
	// review is opened. Zero disables the check.
	FraudReviewThreshold int64
	// RequireStrongCustomerAuth requests a 3DS challenge on flagged payments.
	RequireStrongCustomerAuth bool
}

// ShopSettings is the per-tenant configuration consulted during webhook
// processing.
type ShopSettings struct {
	Shop                 string
	LuxuryFeatures       LuxuryFeatures
	SubscriptionsEnabled bool
}
