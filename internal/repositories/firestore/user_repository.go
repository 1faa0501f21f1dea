package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	pfirestore "github.com/loopwear/api/internal/platform/firestore"
)

const usersCollection = "users"

// UserRepository implements repositories.UserRepository backed by the users
// collection, keyed by shop + "__" + provider customer id. Writes are merge
// patches; nothing in the service reads the documents back.
type UserRepository struct {
	users *pfirestore.BaseRepository[map[string]any]
}

// NewUserRepository constructs a Firestore-backed user repository.
func NewUserRepository(provider *pfirestore.Provider) (*UserRepository, error) {
	if provider == nil {
		return nil, errors.New("user repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository(provider, usersCollection,
		pfirestore.MapEncoder[map[string]any](), pfirestore.MapDecoder())
	return &UserRepository{users: base}, nil
}

func userDocID(shop, stripeCustomerID string) string {
	return strings.TrimSpace(shop) + "__" + strings.TrimSpace(stripeCustomerID)
}

// SetSubscriptionID records the customer's current subscription id, creating
// the user document when it does not exist yet.
func (r *UserRepository) SetSubscriptionID(ctx context.Context, shop, stripeCustomerID, subscriptionID string, now time.Time) error {
	if strings.TrimSpace(stripeCustomerID) == "" {
		return errors.New("user repository: stripe customer id is required")
	}
	return r.merge(ctx, shop, stripeCustomerID, map[string]any{
		"shop":             strings.TrimSpace(shop),
		"stripeCustomerId": strings.TrimSpace(stripeCustomerID),
		"subscriptionId":   strings.TrimSpace(subscriptionID),
		"updatedAt":        now,
	})
}

// SetSubscriptionPaymentStatus records the outcome of the latest subscription
// invoice alongside the subscription id it belongs to.
func (r *UserRepository) SetSubscriptionPaymentStatus(ctx context.Context, shop, stripeCustomerID, subscriptionID, status string, now time.Time) error {
	if strings.TrimSpace(stripeCustomerID) == "" {
		return errors.New("user repository: stripe customer id is required")
	}
	return r.merge(ctx, shop, stripeCustomerID, map[string]any{
		"shop":                      strings.TrimSpace(shop),
		"stripeCustomerId":          strings.TrimSpace(stripeCustomerID),
		"subscriptionId":            strings.TrimSpace(subscriptionID),
		"subscriptionPaymentStatus": strings.TrimSpace(status),
		"updatedAt":                 now,
	})
}

func (r *UserRepository) merge(ctx context.Context, shop, stripeCustomerID string, payload map[string]any) error {
	_, err := r.users.Set(ctx, userDocID(shop, stripeCustomerID), payload, firestore.MergeAll)
	return err
}
