package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"caissepro/backend/internal/domain"
	"caissepro/backend/internal/sequence"
	"caissepro/backend/internal/service"
	"caissepro/backend/internal/store"
	"caissepro/backend/internal/validation"
)

func TestMiddlewareSetsSecurityHeaders(t *testing.T) {
	api := newTestAPI(t)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	res := httptest.NewRecorder()

	api.Handler().ServeHTTP(res, req)

	if got := res.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Fatalf("expected X-Content-Type-Options nosniff, got %q", got)
	}
	if got := res.Header().Get("X-Frame-Options"); got != "DENY" {
		t.Fatalf("expected X-Frame-Options DENY, got %q", got)
	}
	if got := res.Header().Get("Referrer-Policy"); got == "" {
		t.Fatalf("expected Referrer-Policy to be set")
	}
}

func TestPreflightShortCircuits(t *testing.T) {
	api := newTestAPI(t)
	req := httptest.NewRequest(http.MethodOptions, "/api/v1/sales", nil)
	res := httptest.NewRecorder()

	api.Handler().ServeHTTP(res, req)

	if res.Code != http.StatusNoContent {
		t.Fatalf("expected 204 for preflight, got %d", res.Code)
	}
	if got := res.Header().Get("Access-Control-Allow-Methods"); !strings.Contains(got, "DELETE") {
		t.Fatalf("expected DELETE in allowed methods, got %q", got)
	}
}

func TestLoginRateLimitReturns429(t *testing.T) {
	handler := newTestAPI(t).Handler()
	body := fmt.Sprintf(`{"email":%q,"password":"wrong-pass"}`, testAdminEmail)

	for i := 0; i < 6; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		req.RemoteAddr = "127.0.0.1:5000"
		res := httptest.NewRecorder()

		handler.ServeHTTP(res, req)

		if i < 5 && res.Code != http.StatusUnauthorized {
			t.Fatalf("attempt %d expected 401 before limit, got %d", i+1, res.Code)
		}
		if i == 5 && res.Code != http.StatusTooManyRequests {
			t.Fatalf("attempt 6 expected 429, got %d", res.Code)
		}
	}

	// Another address keeps its own budget.
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader(body))
	req.RemoteAddr = "127.0.0.2:5000"
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusUnauthorized {
		t.Fatalf("expected a fresh address to reach the credential check, got %d", res.Code)
	}
}

func TestJSONBodyTooLargeRejected(t *testing.T) {
	api := newTestAPI(t)
	veryLong := strings.Repeat("a", (1<<20)+1024)
	body := fmt.Sprintf(`{"email":"%s","password":"x"}`, veryLong)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	res := httptest.NewRecorder()

	api.Handler().ServeHTTP(res, req)

	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for too large body, got %d", res.Code)
	}
}

func TestInternalErrorsAreNotLeaked(t *testing.T) {
	res := httptest.NewRecorder()
	writeServiceError(res, errors.New("pq: relation \"sales\" does not exist"))

	if res.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", res.Code)
	}
	if strings.Contains(res.Body.String(), "relation") {
		t.Fatalf("internal detail leaked: %s", res.Body.String())
	}
}

func TestStatusFor(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"validation", fmt.Errorf("%w: %w", store.ErrInvalidInput, validation.Violations{"name": "required"}.Err()), http.StatusBadRequest},
		{"invalid input", fmt.Errorf("%w: le montant dépasse le restant dû", store.ErrInvalidInput), http.StatusBadRequest},
		{"not found", fmt.Errorf("%w: sale not found", store.ErrNotFound), http.StatusNotFound},
		{"invalid state", fmt.Errorf("%w: vente sans lignes", store.ErrInvalidState), http.StatusConflict},
		{"conflict", store.ErrConflict, http.StatusConflict},
		{"sequence exhausted", sequence.ErrExhausted, http.StatusConflict},
		{"insufficient stock", store.ErrInsufficientStock, http.StatusConflict},
		{"forbidden", fmt.Errorf("%w: role CAISSIER", service.ErrForbidden), http.StatusForbidden},
		{"credentials", service.ErrInvalidCredentials, http.StatusUnauthorized},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := statusFor(tc.err); got != tc.want {
				t.Fatalf("statusFor(%v) = %d, want %d", tc.err, got, tc.want)
			}
		})
	}
}

func TestParsePositiveLimitCaps(t *testing.T) {
	if got := parsePositiveLimit("9999", 50, 200); got != 200 {
		t.Fatalf("expected capped limit 200, got %d", got)
	}
	if got := parsePositiveLimit("", 50, 200); got != 50 {
		t.Fatalf("expected fallback limit 50, got %d", got)
	}
	if got := parsePositiveLimit("invalid", 50, 200); got != 50 {
		t.Fatalf("expected fallback on invalid input, got %d", got)
	}
}

func TestPaginateOutOfRange(t *testing.T) {
	items := []int{1, 2, 3, 4, 5}
	req := httptest.NewRequest(http.MethodGet, "/?page=99999999999&limit=2", nil)

	page := paginate(req, items)
	if len(page.Items) != 0 || page.Total != 5 {
		t.Fatalf("expected an empty page past the end, got %+v", page)
	}

	req = httptest.NewRequest(http.MethodGet, "/?page=3&limit=2", nil)
	page = paginate(req, items)
	if len(page.Items) != 1 || page.Items[0] != 5 {
		t.Fatalf("expected the last item alone on page 3, got %+v", page.Items)
	}
}

func TestRequireAuthAttachesCallerDetails(t *testing.T) {
	api := newTestAPI(t)
	resp, err := api.auth.Issue(domain.User{ID: "u-1", Email: "a@caissepro.local", Role: domain.RoleAdmin})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	var seen domain.Actor
	handler := api.requireAuth(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = service.ActorFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}, domain.RoleAdmin)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.7:4242"
	req.Header.Set("User-Agent", "caisse-terminal/1.0")
	req.Header.Set("Authorization", "Bearer "+resp.AccessToken)
	res := httptest.NewRecorder()
	handler(res, req)

	if res.Code != http.StatusNoContent {
		t.Fatalf("expected handler to run, got %d", res.Code)
	}
	if seen.UserID != "u-1" || seen.IPAddress != "10.0.0.7" || seen.DeviceInfo != "caisse-terminal/1.0" {
		t.Fatalf("unexpected actor on context: %+v", seen)
	}
}
