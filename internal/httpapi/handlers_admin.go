package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"caissepro/backend/internal/domain"
	"caissepro/backend/internal/store"
)

func (a *API) routeAuth(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/auth/login", a.handleLogin)
	mux.HandleFunc("GET /api/v1/auth/me", a.requireAuth(a.handleMe))
	mux.HandleFunc("POST /api/v1/auth/password", a.requireAuth(a.handleChangePassword))

	admin := domain.RoleAdmin
	mux.HandleFunc("GET /api/v1/users", a.requireAuth(a.handleListUsers, admin))
	mux.HandleFunc("POST /api/v1/users", a.requireAuth(a.handleCreateUser, admin))
	mux.HandleFunc("GET /api/v1/users/{id}", a.requireAuth(a.handleGetUser, admin))
	mux.HandleFunc("PATCH /api/v1/users/{id}", a.requireAuth(a.handleUpdateUser, admin))
	mux.HandleFunc("PATCH /api/v1/users/{id}/role", a.requireAuth(a.handleChangeUserRole, admin))
	mux.HandleFunc("PATCH /api/v1/users/{id}/status", a.requireAuth(a.handleChangeUserStatus, admin))
	mux.HandleFunc("DELETE /api/v1/users/{id}", a.requireAuth(a.handleDeleteUser, admin))
}

func (a *API) routeAudit(mux *http.ServeMux) {
	admin := domain.RoleAdmin
	mux.HandleFunc("GET /api/v1/audit-logs", a.requireAuth(a.handleListAuditLogs, admin))
	mux.HandleFunc("GET /api/v1/audit-logs/stats", a.requireAuth(a.handleAuditStats, admin))
	mux.HandleFunc("GET /api/v1/audit-logs/{id}", a.requireAuth(a.handleGetAuditLog, admin))
	mux.HandleFunc("POST /api/v1/audit-logs/purge", a.requireAuth(a.handlePurgeAuditLogs, admin))
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if !a.loginLimiter.Allow(clientKey(r)) {
		writeError(w, http.StatusTooManyRequests, errors.New("too many login attempts"))
		return
	}

	req, ok := bind[domain.LoginRequest](w, r)
	if !ok {
		return
	}

	user, err := a.service.Login(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	resp, err := a.auth.Issue(user)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeData(w, http.StatusOK, "logged in", resp)
}

func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	user, err := a.service.CurrentUser(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeData(w, http.StatusOK, "", user)
}

func (a *API) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	req, ok := bind[domain.PasswordChangeRequest](w, r)
	if !ok {
		return
	}
	if err := a.service.ChangePassword(r.Context(), req); err != nil {
		writeServiceError(w, err)
		return
	}
	writeData(w, http.StatusOK, "password changed", nil)
}

func (a *API) handleListUsers(w http.ResponseWriter, r *http.Request) {
	role := domain.Role(strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("role"))))
	users, err := a.service.ListUsers(r.Context(), role)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeData(w, http.StatusOK, "", paginate(r, users))
}

func (a *API) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	req, ok := bind[domain.UserCreateRequest](w, r)
	if !ok {
		return
	}
	created, err := a.service.CreateUser(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeData(w, http.StatusCreated, "user created", created)
}

func (a *API) handleGetUser(w http.ResponseWriter, r *http.Request) {
	user, err := a.service.GetUser(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeData(w, http.StatusOK, "", user)
}

func (a *API) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	req, ok := bind[domain.UserUpdateRequest](w, r)
	if !ok {
		return
	}
	user, err := a.service.UpdateUser(r.Context(), r.PathValue("id"), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeData(w, http.StatusOK, "user updated", user)
}

func (a *API) handleChangeUserRole(w http.ResponseWriter, r *http.Request) {
	req, ok := bind[domain.UserRoleRequest](w, r)
	if !ok {
		return
	}
	user, err := a.service.ChangeUserRole(r.Context(), r.PathValue("id"), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeData(w, http.StatusOK, "role changed", user)
}

func (a *API) handleChangeUserStatus(w http.ResponseWriter, r *http.Request) {
	req, ok := bind[domain.UserStatusRequest](w, r)
	if !ok {
		return
	}
	user, err := a.service.ChangeUserStatus(r.Context(), r.PathValue("id"), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeData(w, http.StatusOK, "status changed", user)
}

func (a *API) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	if err := a.service.DeleteUser(r.Context(), r.PathValue("id")); err != nil {
		writeServiceError(w, err)
		return
	}
	writeData(w, http.StatusOK, "user deleted", nil)
}

func (a *API) handleListAuditLogs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	from, to, err := queryPeriod(q)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	entries, err := a.service.ListAuditLogs(r.Context(), store.AuditFilter{
		UserID: strings.TrimSpace(q.Get("user_id")),
		Table:  strings.TrimSpace(q.Get("table")),
		Action: domain.AuditAction(strings.ToUpper(strings.TrimSpace(q.Get("action")))),
		From:   from,
		To:     to,
		Limit:  parsePositiveLimit(q.Get("limit"), 0, maxAuditLimit),
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeData(w, http.StatusOK, "", entries)
}

func (a *API) handleAuditStats(w http.ResponseWriter, r *http.Request) {
	from, to, err := queryPeriod(r.URL.Query())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	stats, err := a.service.AuditStats(r.Context(), from, to)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeData(w, http.StatusOK, "", stats)
}

func (a *API) handleGetAuditLog(w http.ResponseWriter, r *http.Request) {
	entry, err := a.service.GetAuditLog(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeData(w, http.StatusOK, "", entry)
}

func (a *API) handlePurgeAuditLogs(w http.ResponseWriter, r *http.Request) {
	req, ok := bind[domain.AuditPurgeRequest](w, r)
	if !ok {
		return
	}
	removed, err := a.service.PurgeAuditLogs(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeData(w, http.StatusOK, "audit logs purged", map[string]int{"removed": removed})
}
