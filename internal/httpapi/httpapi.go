package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/netip"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"caissepro/backend/internal/domain"
	"caissepro/backend/internal/logger"
	"caissepro/backend/internal/service"
	"caissepro/backend/internal/store"
	"caissepro/backend/internal/validation"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
	maxAuditLimit   = 1000
	maxBodyBytes    = 1 << 20
)

type Options struct {
	AllowedOrigin string
	// ExposeMetrics serves the prometheus registry on /metrics.
	ExposeMetrics bool
}

type API struct {
	service       *service.Service
	auth          *AuthManager
	allowedOrigin string
	exposeMetrics bool
	loginLimiter  *attemptLimiter
	metrics       *httpMetrics
}

func New(svc *service.Service, auth *AuthManager, opts Options) *API {
	origin := opts.AllowedOrigin
	if origin == "" {
		origin = "*"
	}
	return &API{
		service:       svc,
		auth:          auth,
		allowedOrigin: origin,
		exposeMetrics: opts.ExposeMetrics,
		loginLimiter:  newAttemptLimiter(5, time.Minute),
		metrics:       newHTTPMetrics(),
	}
}

type attemptLimiter struct {
	mu      sync.Mutex
	max     int
	window  time.Duration
	entries map[string][]time.Time
}

func newAttemptLimiter(max int, window time.Duration) *attemptLimiter {
	if max < 1 {
		max = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &attemptLimiter{max: max, window: window, entries: make(map[string][]time.Time)}
}

// Allow records an attempt for key and reports whether it fits in the window.
func (l *attemptLimiter) Allow(key string) bool {
	if l == nil {
		return true
	}
	now := time.Now()
	cutoff := now.Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	kept := l.entries[key][:0]
	for _, ts := range l.entries[key] {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	if len(kept) >= l.max {
		l.entries[key] = kept
		return false
	}
	l.entries[key] = append(kept, now)
	return true
}

func clientKey(r *http.Request) string {
	host := strings.TrimSpace(r.RemoteAddr)
	if host == "" {
		return "unknown"
	}
	if addr, err := netip.ParseAddrPort(host); err == nil {
		return addr.Addr().String()
	}
	if idx := strings.LastIndex(host, ":"); idx > 0 {
		return host[:idx]
	}
	return host
}

func (a *API) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", a.handleHealth)
	if a.exposeMetrics {
		mux.Handle("GET /metrics", a.metrics.handler())
	}

	a.routeAuth(mux)
	a.routeCatalog(mux)
	a.routeClients(mux)
	a.routePromotions(mux)
	a.routeSales(mux)
	a.routeSaleLines(mux)
	a.routePayments(mux)
	a.routeInvoices(mux)
	a.routeAudit(mux)

	return a.withMiddleware(mux)
}

// requireAuth resolves the bearer token into an actor. Listing roles
// narrows the route further; the service still checks its own rules.
func (a *API) requireAuth(next http.HandlerFunc, roles ...domain.Role) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authorization := strings.TrimSpace(r.Header.Get("Authorization"))
		if !strings.HasPrefix(strings.ToLower(authorization), "bearer ") {
			writeError(w, http.StatusUnauthorized, errors.New("missing bearer token"))
			return
		}

		token := strings.TrimSpace(authorization[len("Bearer "):])
		actor, err := a.auth.ParseToken(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, err)
			return
		}

		if len(roles) > 0 && !isRoleAllowed(actor.Role, roles) {
			writeError(w, http.StatusForbidden, errors.New("forbidden role"))
			return
		}

		actor.IPAddress = clientKey(r)
		actor.DeviceInfo = r.UserAgent()
		next(w, r.WithContext(service.WithActor(r.Context(), actor)))
	}
}

func isRoleAllowed(role domain.Role, allowed []domain.Role) bool {
	for _, allow := range allowed {
		if role == allow {
			return true
		}
	}
	return false
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := a.service.Ping(ctx); err != nil {
		log := logger.WithComponent("http")
		log.Error().Err(err).Msg("health check failed")
		writeJSON(w, http.StatusServiceUnavailable, envelope{Success: false, Message: "storage unavailable"})
		return
	}
	writeData(w, http.StatusOK, "ok", map[string]any{
		"at": time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) withMiddleware(next http.Handler) http.Handler {
	log := logger.WithComponent("http")

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Cross-Origin-Opener-Policy", "same-origin")
		w.Header().Set("Access-Control-Allow-Origin", a.allowedOrigin)
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PATCH,DELETE,OPTIONS")
		w.Header().Set("Vary", "Origin")

		if r.Method == http.MethodPost || r.Method == http.MethodPatch || r.Method == http.MethodPut {
			r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		startedAt := time.Now()
		next.ServeHTTP(rec, r)
		elapsed := time.Since(startedAt)

		a.metrics.observe(r, rec.status, elapsed)
		log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("duration", elapsed).
			Msg("request")
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

type envelope struct {
	Success bool                    `json:"success"`
	Message string                  `json:"message"`
	Data    any                     `json:"data,omitempty"`
	Errors  []validation.FieldError `json:"errors,omitempty"`
}

type pageResult[T any] struct {
	Items []T `json:"items"`
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Total int `json:"total"`
}

// paginate slices items according to the page and limit query parameters.
func paginate[T any](r *http.Request, items []T) pageResult[T] {
	q := r.URL.Query()
	page := parsePositiveLimit(q.Get("page"), 1, 0)
	limit := parsePositiveLimit(q.Get("limit"), defaultPageSize, maxPageSize)

	start := len(items)
	if page-1 < len(items)/limit+1 {
		start = min((page-1)*limit, len(items))
	}
	end := min(start+limit, len(items))

	out := make([]T, 0, end-start)
	out = append(out, items[start:end]...)
	return pageResult[T]{Items: out, Page: page, Limit: limit, Total: len(items)}
}

// statusFor maps service and store errors onto HTTP statuses.
func statusFor(err error) int {
	var verr *validation.Error
	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, service.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrInvalidState),
		errors.Is(err, store.ErrConflict),
		errors.Is(err, store.ErrInsufficientStock):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeServiceError(w http.ResponseWriter, err error) {
	writeError(w, statusFor(err), err)
}

func writeError(w http.ResponseWriter, status int, err error) {
	body := envelope{Success: false, Message: err.Error()}

	var verr *validation.Error
	if errors.As(err, &verr) {
		body.Message = "validation failed"
		body.Errors = verr.Fields()
	}
	if status >= 500 {
		log := logger.WithComponent("http")
		log.Error().Err(err).Int("status", status).Msg("internal error")
		body.Message = "internal server error"
	}
	writeJSON(w, status, body)
}

func writeData(w http.ResponseWriter, status int, message string, data any) {
	if message == "" {
		message = http.StatusText(status)
	}
	writeJSON(w, status, envelope{Success: true, Message: message, Data: data})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func decodeJSON(r *http.Request, dest any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		return fmt.Errorf("%w: malformed request body: %v", store.ErrInvalidInput, err)
	}
	return nil
}

// bind decodes the request body into a T and answers 400 on failure.
func bind[T any](w http.ResponseWriter, r *http.Request) (T, bool) {
	var req T
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return req, false
	}
	return req, true
}

func parsePositiveLimit(raw string, fallback int, max int) int {
	limit := fallback
	trimmed := strings.TrimSpace(raw)
	if trimmed != "" {
		if parsed, err := strconv.Atoi(trimmed); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if max > 0 && limit > max {
		return max
	}
	return limit
}

func badQuery(key string, err error) error {
	return fmt.Errorf("%w: query parameter %s: %v", store.ErrInvalidInput, key, err)
}

// queryTime accepts RFC 3339 timestamps or plain dates. A plain date read
// as an upper bound covers the whole day.
func queryTime(q url.Values, key string, endOfDay bool) (*time.Time, error) {
	raw := strings.TrimSpace(q.Get(key))
	if raw == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		t = t.UTC()
		return &t, nil
	}
	t, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return nil, badQuery(key, errors.New("expected RFC 3339 or YYYY-MM-DD"))
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return &t, nil
}

func queryPeriod(q url.Values) (from, to *time.Time, err error) {
	if from, err = queryTime(q, "from", false); err != nil {
		return nil, nil, err
	}
	if to, err = queryTime(q, "to", true); err != nil {
		return nil, nil, err
	}
	return from, to, nil
}

func queryDecimal(q url.Values, key string) (*decimal.Decimal, error) {
	raw := strings.TrimSpace(q.Get(key))
	if raw == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return nil, badQuery(key, err)
	}
	return &d, nil
}

func queryBool(q url.Values, key string) (bool, error) {
	raw := strings.TrimSpace(q.Get(key))
	if raw == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return false, badQuery(key, err)
	}
	return b, nil
}

func queryView(q url.Values) (store.View, error) {
	switch strings.ToLower(strings.TrimSpace(q.Get("view"))) {
	case "", "active":
		return store.ViewActive, nil
	case "deleted":
		return store.ViewDeleted, nil
	case "all":
		return store.ViewAll, nil
	default:
		return store.ViewActive, badQuery("view", errors.New("expected active, deleted or all"))
	}
}
