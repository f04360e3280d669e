package cache

import (
	"context"
	"time"

	"caissepro/backend/internal/domain"
)

// PromotionCache holds promotions keyed by code so Apply can skip the store.
type PromotionCache interface {
	Get(ctx context.Context, code string) (*domain.Promotion, bool, error)
	Set(ctx context.Context, code string, value *domain.Promotion, ttl time.Duration) error
	Delete(ctx context.Context, code string) error
}

type NoopPromotionCache struct{}

func (NoopPromotionCache) Get(_ context.Context, _ string) (*domain.Promotion, bool, error) {
	return nil, false, nil
}

func (NoopPromotionCache) Set(_ context.Context, _ string, _ *domain.Promotion, _ time.Duration) error {
	return nil
}

func (NoopPromotionCache) Delete(_ context.Context, _ string) error {
	return nil
}
