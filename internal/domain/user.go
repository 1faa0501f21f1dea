package domain

// SubscriptionNone marks a user whose subscription was deleted at the provider.
const SubscriptionNone = "none"
