package firestore

import (
	"context"
	"errors"
	"strings"

	"github.com/loopwear/api/internal/domain"
	pfirestore "github.com/loopwear/api/internal/platform/firestore"
	"github.com/loopwear/api/internal/repositories"
)

const shopsCollection = "shops"

type shopSettingsDocument struct {
	FraudReviewThreshold      int64 `firestore:"fraudReviewThreshold"`
	RequireStrongCustomerAuth bool  `firestore:"requireStrongCustomerAuth"`
	SubscriptionsEnabled      bool  `firestore:"subscriptionsEnabled"`
}

// ShopSettingsRepository implements repositories.ShopSettingsRepository backed
// by the shops collection.
type ShopSettingsRepository struct {
	shops *pfirestore.BaseRepository[shopSettingsDocument]
}

// NewShopSettingsRepository constructs a Firestore-backed settings repository.
func NewShopSettingsRepository(provider *pfirestore.Provider) (*ShopSettingsRepository, error) {
	if provider == nil {
		return nil, errors.New("shop settings repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[shopSettingsDocument](provider, shopsCollection, nil, nil)
	return &ShopSettingsRepository{shops: base}, nil
}

// Get returns the shop settings. Shops without a settings document get
// zero-valued defaults: no fraud threshold, no SCA, subscriptions disabled.
func (r *ShopSettingsRepository) Get(ctx context.Context, shop string) (domain.ShopSettings, error) {
	name := strings.TrimSpace(shop)
	settings := domain.ShopSettings{Shop: name}
	if name == "" {
		return settings, errors.New("shop settings repository: shop is required")
	}

	doc, err := r.shops.Get(ctx, name)
	if err != nil {
		if repositories.IsNotFound(err) {
			return settings, nil
		}
		return settings, err
	}

	settings.LuxuryFeatures = domain.LuxuryFeatures{
		FraudReviewThreshold:      doc.Data.FraudReviewThreshold,
		RequireStrongCustomerAuth: doc.Data.RequireStrongCustomerAuth,
	}
	settings.SubscriptionsEnabled = doc.Data.SubscriptionsEnabled
	return settings, nil
}
