package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/rs/zerolog/log"

	"caissepro/backend/internal/domain"
	"caissepro/backend/internal/promotion"
	"caissepro/backend/internal/sequence"
	"caissepro/backend/internal/store"
	"caissepro/backend/internal/validation"
	"caissepro/backend/internal/xid"
)

var ErrForbidden = errors.New("forbidden")

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type Service struct {
	repo       store.Repository
	promotions *promotion.Engine
	codes      *sequence.Generator
	now        func() time.Time
}

// New wires the service. A nil engine gets an uncached one over repo and a
// nil generator draws from repo.NextSequence.
func New(repo store.Repository, promotions *promotion.Engine, codes *sequence.Generator) *Service {
	if promotions == nil {
		promotions = promotion.NewEngine(nil, 0, PromotionLookup(repo))
	}
	if codes == nil {
		codes = sequence.NewGenerator(sequence.CounterFunc(repo.NextSequence))
	}

	return &Service{
		repo:       repo,
		promotions: promotions,
		codes:      codes,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// PromotionLookup resolves active promotions by code from repo.
func PromotionLookup(repo store.Repository) promotion.Lookup {
	return func(ctx context.Context, code string) (*domain.Promotion, error) {
		return repo.GetPromotionByCode(ctx, code, store.ViewActive)
	}
}

// SetClock overrides the time source.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

func (s *Service) Ping(ctx context.Context) error {
	_, err := s.repo.ListUsers(ctx, domain.RoleAdmin)
	return err
}

func requireRole(ctx context.Context, roles ...domain.Role) (domain.Actor, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.UserID == "" {
		return domain.Actor{}, fmt.Errorf("%w: authentication required", ErrForbidden)
	}
	if len(roles) > 0 && !slices.Contains(roles, actor.Role) {
		return domain.Actor{}, fmt.Errorf("%w: role %s may not perform this action", ErrForbidden, actor.Role)
	}
	return actor, nil
}

func validate(v validation.Violations) error {
	if err := v.Err(); err != nil {
		return fmt.Errorf("%w: %w", store.ErrInvalidInput, err)
	}
	return nil
}

func invalidInput(format string, args ...any) error {
	return fmt.Errorf("%w: %s", store.ErrInvalidInput, fmt.Sprintf(format, args...))
}

func invalidState(format string, args ...any) error {
	return fmt.Errorf("%w: %s", store.ErrInvalidState, fmt.Sprintf(format, args...))
}

func notFound(what string, err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%w: %s", store.ErrNotFound, what)
	}
	return err
}

func (s *Service) nextCode(ctx context.Context, scope string, exists sequence.ExistsFunc) (string, error) {
	return s.codes.Next(ctx, scope, exists)
}

// logAudit records a mutation after it succeeded. Failures are logged only.
func (s *Service) logAudit(ctx context.Context, table string, action domain.AuditAction, details any) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		actor = domain.Actor{UserID: "system"}
	}

	payload, err := json.Marshal(details)
	if err != nil {
		payload = []byte("{}")
	}

	if err := s.repo.CreateAuditLog(ctx, domain.AuditLog{
		ID:         xid.New(),
		UserID:     actor.UserID,
		Table:      table,
		Action:     action,
		Details:    payload,
		IPAddress:  actor.IPAddress,
		DeviceInfo: actor.DeviceInfo,
		CreatedAt:  s.now(),
	}); err != nil {
		log.Warn().Err(err).Str("component", "audit").Str("table", table).Str("action", string(action)).Msg("failed to write audit log")
	}
}
