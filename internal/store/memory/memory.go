package memory

import (
	"context"
	"fmt"
	"maps"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"caissepro/backend/internal/domain"
	"caissepro/backend/internal/sequence"
	"caissepro/backend/internal/store"
	"caissepro/backend/internal/xid"
)

type state struct {
	users      map[string]domain.User
	categories map[string]domain.Category
	products   map[string]domain.Product
	clients    map[string]domain.Client
	promotions map[string]domain.Promotion
	sales      map[string]domain.Sale
	lines      map[string]domain.SaleLine
	payments   map[string]domain.Payment
	invoices   map[string]domain.Invoice
	auditLogs  []domain.AuditLog
	sequences  map[string]int64
}

func newState() *state {
	return &state{
		users:      make(map[string]domain.User),
		categories: make(map[string]domain.Category),
		products:   make(map[string]domain.Product),
		clients:    make(map[string]domain.Client),
		promotions: make(map[string]domain.Promotion),
		sales:      make(map[string]domain.Sale),
		lines:      make(map[string]domain.SaleLine),
		payments:   make(map[string]domain.Payment),
		invoices:   make(map[string]domain.Invoice),
		auditLogs:  make([]domain.AuditLog, 0, 128),
		sequences:  make(map[string]int64),
	}
}

func (st *state) clone() *state {
	return &state{
		users:      maps.Clone(st.users),
		categories: maps.Clone(st.categories),
		products:   maps.Clone(st.products),
		clients:    maps.Clone(st.clients),
		promotions: maps.Clone(st.promotions),
		sales:      maps.Clone(st.sales),
		lines:      maps.Clone(st.lines),
		payments:   maps.Clone(st.payments),
		invoices:   maps.Clone(st.invoices),
		auditLogs:  slices.Clone(st.auditLogs),
		sequences:  maps.Clone(st.sequences),
	}
}

// Store keeps every entity in maps guarded by one mutex. A Store handed to a
// WithinTx callback shares the maps and runs with the parent's lock held.
type Store struct {
	mu   *sync.RWMutex
	st   *state
	inTx bool
}

func New() *Store {
	return &Store{mu: &sync.RWMutex{}, st: newState()}
}

// NewSeeded returns a store with dev accounts and a small catalog.
func NewSeeded() *Store {
	s := New()
	now := time.Now().UTC()
	for _, u := range seedUsers(now) {
		s.st.users[u.ID] = u
	}

	categories := []domain.Category{
		{ID: xid.New(), Name: "Boissons", Lifecycle: domain.LifecycleActive, CreatedAt: now, UpdatedAt: now},
		{ID: xid.New(), Name: "Epicerie", Lifecycle: domain.LifecycleActive, CreatedAt: now, UpdatedAt: now},
		{ID: xid.New(), Name: "Hygiene", Lifecycle: domain.LifecycleActive, CreatedAt: now, UpdatedAt: now},
	}
	for _, c := range categories {
		s.st.categories[c.ID] = c
	}

	products := []struct {
		name     string
		price    string
		stock    int
		category int
	}{
		{"Eau minerale 1.5L", "0.80", 120, 0},
		{"Jus d'orange 1L", "2.35", 48, 0},
		{"Cafe moulu 250g", "3.90", 36, 1},
		{"Riz basmati 1kg", "2.60", 60, 1},
		{"Savon de Marseille", "1.95", 4, 2},
	}
	for _, p := range products {
		s.st.sequences[sequence.ScopeProduct]++
		product := domain.Product{
			ID:         xid.New(),
			Code:       sequence.Format(sequence.ScopeProduct, s.st.sequences[sequence.ScopeProduct]),
			Name:       p.name,
			UnitPrice:  decimal.RequireFromString(p.price),
			Stock:      p.stock,
			StockMin:   5,
			CategoryID: categories[p.category].ID,
			Active:     true,
			Lifecycle:  domain.LifecycleActive,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		s.st.products[product.ID] = product
	}
	return s
}

// seedUsers builds the dev accounts. Passwords come from SEED_ADMIN_PASSWORD
// and SEED_CASHIER_PASSWORD, falling back to dev defaults with a warning.
func seedUsers(now time.Time) []domain.User {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "Admin#2024")
	cashierPwd := envOr("SEED_CASHIER_PASSWORD", "Caisse#2024")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_CASHIER_PASSWORD") == "" {
		log.Warn().Str("component", "memory-store").Msg("using default dev credentials; set SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD to override")
	}

	users := make([]domain.User, 0, 3)
	for _, u := range []struct {
		username string
		email    string
		password string
		role     domain.Role
	}{
		{"admin", envOr("SEED_ADMIN_EMAIL", "admin@caissepro.local"), adminPwd, domain.RoleAdmin},
		{"stock", "stock@caissepro.local", adminPwd, domain.RoleStockOwner},
		{"caisse", "caisse@caissepro.local", cashierPwd, domain.RoleCashier},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatal().Err(err).Str("user", u.username).Msg("hash seed password")
		}
		users = append(users, domain.User{
			ID:           xid.New(),
			Username:     u.username,
			Email:        u.email,
			PasswordHash: string(hash),
			Role:         u.role,
			Status:       domain.UserStatusActive,
			CreatedAt:    now,
			UpdatedAt:    now,
		})
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func (s *Store) lock() func() {
	if s.inTx {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

func (s *Store) rlock() func() {
	if s.inTx {
		return func() {}
	}
	s.mu.RLock()
	return s.mu.RUnlock
}

func (s *Store) WithinTx(ctx context.Context, fn store.TxFunc) error {
	if s.inTx {
		return fn(ctx, s)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.st.clone()
	tx := &Store{mu: s.mu, st: s.st, inTx: true}
	if err := fn(ctx, tx); err != nil {
		*s.st = *snapshot
		return err
	}
	return nil
}

// Sequence reports the last value drawn for scope.
func (s *Store) Sequence(scope string) int64 {
	defer s.rlock()()
	return s.st.sequences[scope]
}

func (s *Store) NextSequence(_ context.Context, scope string) (int64, error) {
	defer s.lock()()
	s.st.sequences[scope]++
	return s.st.sequences[scope], nil
}

func (s *Store) CreateUser(_ context.Context, user domain.User) (*domain.User, error) {
	defer s.lock()()

	for _, existing := range s.st.users {
		if sameText(existing.Email, user.Email) {
			return nil, fmt.Errorf("%w: a user with this email already exists", store.ErrConflict)
		}
	}
	s.st.users[user.ID] = user
	created := user
	return &created, nil
}

func (s *Store) GetUser(_ context.Context, id string) (*domain.User, error) {
	defer s.rlock()()

	user, ok := s.st.users[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &user, nil
}

func (s *Store) GetUserByEmail(_ context.Context, email string) (*domain.User, error) {
	defer s.rlock()()

	for _, user := range s.st.users {
		if sameText(user.Email, email) {
			found := user
			return &found, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) ListUsers(_ context.Context, role domain.Role) ([]domain.User, error) {
	defer s.rlock()()

	users := make([]domain.User, 0, len(s.st.users))
	for _, user := range s.st.users {
		if role != "" && user.Role != role {
			continue
		}
		users = append(users, user)
	}
	slices.SortFunc(users, func(a, b domain.User) int { return b.CreatedAt.Compare(a.CreatedAt) })
	return users, nil
}

func (s *Store) UpdateUser(_ context.Context, user domain.User) (*domain.User, error) {
	defer s.lock()()

	if _, ok := s.st.users[user.ID]; !ok {
		return nil, store.ErrNotFound
	}
	for _, existing := range s.st.users {
		if existing.ID != user.ID && sameText(existing.Email, user.Email) {
			return nil, fmt.Errorf("%w: a user with this email already exists", store.ErrConflict)
		}
	}
	s.st.users[user.ID] = user
	updated := user
	return &updated, nil
}

func (s *Store) DeleteUser(_ context.Context, id string) error {
	defer s.lock()()

	if _, ok := s.st.users[id]; !ok {
		return store.ErrNotFound
	}
	for _, sale := range s.st.sales {
		if sale.CashierID == id {
			return fmt.Errorf("%w: user has recorded sales", store.ErrConflict)
		}
	}
	delete(s.st.users, id)
	return nil
}

func (s *Store) CreateAuditLog(_ context.Context, entry domain.AuditLog) error {
	defer s.lock()()

	if entry.ID == "" {
		entry.ID = xid.New()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	s.st.auditLogs = append(s.st.auditLogs, entry)
	return nil
}

func (s *Store) GetAuditLog(_ context.Context, id string) (*domain.AuditLog, error) {
	defer s.rlock()()

	for _, entry := range s.st.auditLogs {
		if entry.ID == id {
			found := entry
			return &found, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) ListAuditLogs(_ context.Context, filter store.AuditFilter) ([]domain.AuditLog, error) {
	defer s.rlock()()

	entries := make([]domain.AuditLog, 0, len(s.st.auditLogs))
	for i := len(s.st.auditLogs) - 1; i >= 0; i-- {
		entry := s.st.auditLogs[i]
		if filter.UserID != "" && entry.UserID != filter.UserID {
			continue
		}
		if filter.Table != "" && entry.Table != filter.Table {
			continue
		}
		if filter.Action != "" && entry.Action != filter.Action {
			continue
		}
		if !inPeriod(entry.CreatedAt, filter.From, filter.To) {
			continue
		}
		entries = append(entries, entry)
		if filter.Limit > 0 && len(entries) >= filter.Limit {
			break
		}
	}
	return entries, nil
}

func (s *Store) DeleteAuditLogsBefore(_ context.Context, before time.Time) (int, error) {
	defer s.lock()()

	kept := s.st.auditLogs[:0]
	removed := 0
	for _, entry := range s.st.auditLogs {
		if entry.CreatedAt.Before(before) {
			removed++
			continue
		}
		kept = append(kept, entry)
	}
	s.st.auditLogs = kept
	return removed, nil
}

func sameText(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

func containsFold(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(strings.TrimSpace(needle)))
}

func inPeriod(at time.Time, from, to *time.Time) bool {
	if from != nil && at.Before(*from) {
		return false
	}
	if to != nil && at.After(*to) {
		return false
	}
	return true
}
