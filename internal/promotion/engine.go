package promotion

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"caissepro/backend/internal/cache"
	"caissepro/backend/internal/domain"
	"caissepro/backend/internal/store"
)

var hundred = decimal.NewFromInt(100)

// Lookup resolves an active promotion by code.
type Lookup func(ctx context.Context, code string) (*domain.Promotion, error)

type Engine struct {
	cache    cache.PromotionCache
	cacheTTL time.Duration
	lookup   Lookup
}

func NewEngine(cacheStore cache.PromotionCache, cacheTTL time.Duration, lookup Lookup) *Engine {
	if cacheStore == nil {
		cacheStore = cache.NoopPromotionCache{}
	}
	if cacheTTL <= 0 {
		cacheTTL = 60 * time.Second
	}

	return &Engine{
		cache:    cacheStore,
		cacheTTL: cacheTTL,
		lookup:   lookup,
	}
}

// ComputeDiscount returns the raw discount for amount. An AMOUNT discount is
// not capped here; Apply clamps the final amount at zero.
func ComputeDiscount(amount decimal.Decimal, kind domain.DiscountType, value decimal.Decimal) decimal.Decimal {
	if kind == domain.DiscountPercentage {
		return amount.Mul(value).Div(hundred).Round(2)
	}
	return value
}

func (e *Engine) Apply(ctx context.Context, code string, amount decimal.Decimal, now time.Time) (domain.PromotionResult, error) {
	if amount.IsNegative() {
		return domain.PromotionResult{}, fmt.Errorf("%w: amount must not be negative", store.ErrInvalidInput)
	}

	promo, err := e.resolve(ctx, code)
	if err != nil {
		return domain.PromotionResult{}, err
	}
	if !promo.ActiveAt(now) {
		return domain.PromotionResult{}, fmt.Errorf("%w: promotion %s is not active", store.ErrInvalidState, code)
	}

	discount := ComputeDiscount(amount, promo.Type, promo.Value)
	final := amount.Sub(discount)
	if final.IsNegative() {
		final = decimal.Zero
	}
	return domain.PromotionResult{
		Code:        promo.Code,
		Amount:      amount,
		Discount:    discount,
		FinalAmount: final,
	}, nil
}

// Invalidate drops a cached code after the promotion changed.
func (e *Engine) Invalidate(ctx context.Context, code string) {
	if err := e.cache.Delete(ctx, code); err != nil {
		log.Warn().Err(err).Str("component", "promotion").Str("code", code).Msg("cache invalidation failed")
	}
}

func (e *Engine) resolve(ctx context.Context, code string) (*domain.Promotion, error) {
	if cached, ok, err := e.cache.Get(ctx, code); err == nil && ok {
		return cached, nil
	}

	promo, err := e.lookup(ctx, code)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: promotion %s", store.ErrNotFound, code)
	}
	if err != nil {
		return nil, err
	}
	if promo.Lifecycle != domain.LifecycleActive {
		return nil, fmt.Errorf("%w: promotion %s", store.ErrNotFound, code)
	}
	_ = e.cache.Set(ctx, code, promo, e.cacheTTL)
	return promo, nil
}
