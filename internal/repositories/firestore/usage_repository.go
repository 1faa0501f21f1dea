package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	pfirestore "github.com/loopwear/api/internal/platform/firestore"
)

const subscriptionUsageCollection = "subscriptionUsage"

type usageDocument struct {
	Shop       string    `firestore:"shop"`
	CustomerID string    `firestore:"customerId"`
	Period     string    `firestore:"period"`
	Count      int64     `firestore:"count"`
	UpdatedAt  time.Time `firestore:"updatedAt"`
}

// SubscriptionUsageRepository implements repositories.SubscriptionUsageRepository
// with transactional per-month counters.
type SubscriptionUsageRepository struct {
	provider *pfirestore.Provider
	usage    *pfirestore.BaseRepository[usageDocument]
}

// NewSubscriptionUsageRepository constructs a Firestore-backed usage repository.
func NewSubscriptionUsageRepository(provider *pfirestore.Provider) (*SubscriptionUsageRepository, error) {
	if provider == nil {
		return nil, errors.New("usage repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[usageDocument](provider, subscriptionUsageCollection, nil, nil)
	return &SubscriptionUsageRepository{provider: provider, usage: base}, nil
}

func usageDocID(shop, customerID, period string) string {
	return fmt.Sprintf("%s__%s__%s", strings.TrimSpace(shop), strings.TrimSpace(customerID), strings.TrimSpace(period))
}

// Increment bumps the counter for (shop, customerID) in the YYYY-MM period and
// returns the new value.
func (r *SubscriptionUsageRepository) Increment(ctx context.Context, shop, customerID, period string) (int64, error) {
	if r == nil || r.provider == nil {
		return 0, errors.New("usage repository not initialised")
	}
	if strings.TrimSpace(customerID) == "" || strings.TrimSpace(period) == "" {
		return 0, errors.New("usage repository: customer id and period are required")
	}

	now := time.Now().UTC()
	var next int64

	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := r.usage.DocumentRef(ctx, usageDocID(shop, customerID, period))
		if err != nil {
			return err
		}

		snap, err := tx.Get(ref)
		switch status.Code(err) {
		case codes.NotFound:
			doc := usageDocument{
				Shop:       strings.TrimSpace(shop),
				CustomerID: strings.TrimSpace(customerID),
				Period:     strings.TrimSpace(period),
				Count:      1,
				UpdatedAt:  now,
			}
			if err := tx.Create(ref, doc); err != nil {
				return err
			}
			next = doc.Count
			return nil
		case codes.OK:
			// proceed
		default:
			return err
		}

		var doc usageDocument
		if err := snap.DataTo(&doc); err != nil {
			return fmt.Errorf("firestore usage decode %s: %w", snap.Ref.ID, err)
		}

		doc.Count++
		doc.UpdatedAt = now
		if err := tx.Set(ref, doc); err != nil {
			return err
		}
		next = doc.Count
		return nil
	}, pfirestore.WithTxAttempts(3))
	if err != nil {
		return 0, pfirestore.WrapError("subscriptionUsage.increment", err)
	}
	return next, nil
}
