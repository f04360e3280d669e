package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"caissepro/backend/internal/domain"
	"caissepro/backend/internal/store"
	"caissepro/backend/internal/xid"
)

var ErrInvalidCredentials = errors.New("invalid credentials")

const (
	temporaryPasswordLength = 12
	passwordUpper           = "ABCDEFGHJKLMNPQRSTUVWXYZ"
	passwordLower           = "abcdefghijkmnopqrstuvwxyz"
	passwordDigits          = "23456789"
	passwordSpecial         = "!@#$%^&*"
)

// Login checks the credentials and stamps the last login time. Blocked and
// inactive accounts are refused even with a correct password.
func (s *Service) Login(ctx context.Context, req domain.LoginRequest) (domain.User, error) {
	if err := validate(req.Validate()); err != nil {
		return domain.User{}, err
	}

	user, err := s.repo.GetUserByEmail(ctx, strings.TrimSpace(req.Email))
	if errors.Is(err, store.ErrNotFound) {
		return domain.User{}, ErrInvalidCredentials
	}
	if err != nil {
		return domain.User{}, err
	}
	if !VerifyPassword(user.PasswordHash, req.Password) {
		return domain.User{}, ErrInvalidCredentials
	}
	switch user.Status {
	case domain.UserStatusBlocked:
		return domain.User{}, fmt.Errorf("%w: account is blocked", ErrForbidden)
	case domain.UserStatusInactive:
		return domain.User{}, fmt.Errorf("%w: account is inactive", ErrForbidden)
	}

	now := s.now()
	user.LastLoginAt = &now
	saved, err := s.repo.UpdateUser(ctx, *user)
	if err != nil {
		return domain.User{}, err
	}
	return *saved, nil
}

// CurrentUser returns the account behind the caller's token.
func (s *Service) CurrentUser(ctx context.Context) (domain.User, error) {
	actor, err := requireRole(ctx)
	if err != nil {
		return domain.User{}, err
	}
	return s.GetUser(ctx, actor.UserID)
}

func (s *Service) ListUsers(ctx context.Context, role domain.Role) ([]domain.User, error) {
	if _, err := requireRole(ctx, domain.RoleAdmin); err != nil {
		return nil, err
	}
	if role != "" && !role.Valid() {
		return nil, invalidInput("unknown role %s", role)
	}
	return s.repo.ListUsers(ctx, role)
}

func (s *Service) GetUser(ctx context.Context, id string) (domain.User, error) {
	user, err := s.repo.GetUser(ctx, id)
	if err != nil {
		return domain.User{}, notFound("user not found", err)
	}
	return *user, nil
}

// CreateUser provisions an account with a generated temporary password,
// returned once in the response.
func (s *Service) CreateUser(ctx context.Context, req domain.UserCreateRequest) (domain.UserCreateResponse, error) {
	if _, err := requireRole(ctx, domain.RoleAdmin); err != nil {
		return domain.UserCreateResponse{}, err
	}
	if err := validate(req.Validate()); err != nil {
		return domain.UserCreateResponse{}, err
	}

	password, err := temporaryPassword()
	if err != nil {
		return domain.UserCreateResponse{}, fmt.Errorf("generate temporary password: %w", err)
	}
	hash, err := HashPassword(password)
	if err != nil {
		return domain.UserCreateResponse{}, err
	}

	role := req.Role
	if role == "" {
		role = domain.RoleCashier
	}
	now := s.now()
	created, err := s.repo.CreateUser(ctx, domain.User{
		ID:           xid.New(),
		Username:     strings.TrimSpace(req.Username),
		Email:        strings.ToLower(strings.TrimSpace(req.Email)),
		PasswordHash: hash,
		Role:         role,
		Status:       domain.UserStatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	if err != nil {
		return domain.UserCreateResponse{}, err
	}

	s.logAudit(ctx, "users", domain.AuditCreate, created)
	return domain.UserCreateResponse{User: *created, TemporaryPassword: password}, nil
}

func (s *Service) UpdateUser(ctx context.Context, id string, req domain.UserUpdateRequest) (domain.User, error) {
	if _, err := requireRole(ctx, domain.RoleAdmin); err != nil {
		return domain.User{}, err
	}
	if err := validate(req.Validate()); err != nil {
		return domain.User{}, err
	}

	return s.mutateUser(ctx, id, func(user *domain.User) {
		if req.Username != nil {
			user.Username = strings.TrimSpace(*req.Username)
		}
		if req.Email != nil {
			user.Email = strings.ToLower(strings.TrimSpace(*req.Email))
		}
	})
}

func (s *Service) ChangeUserRole(ctx context.Context, id string, req domain.UserRoleRequest) (domain.User, error) {
	if _, err := requireRole(ctx, domain.RoleAdmin); err != nil {
		return domain.User{}, err
	}
	if err := validate(req.Validate()); err != nil {
		return domain.User{}, err
	}
	return s.mutateUser(ctx, id, func(user *domain.User) { user.Role = req.Role })
}

func (s *Service) ChangeUserStatus(ctx context.Context, id string, req domain.UserStatusRequest) (domain.User, error) {
	actor, err := requireRole(ctx, domain.RoleAdmin)
	if err != nil {
		return domain.User{}, err
	}
	if err := validate(req.Validate()); err != nil {
		return domain.User{}, err
	}
	if actor.UserID == id && req.Status != domain.UserStatusActive {
		return domain.User{}, invalidState("an administrator cannot deactivate their own account")
	}
	return s.mutateUser(ctx, id, func(user *domain.User) { user.Status = req.Status })
}

// ChangePassword lets the caller replace their own password.
func (s *Service) ChangePassword(ctx context.Context, req domain.PasswordChangeRequest) error {
	actor, err := requireRole(ctx)
	if err != nil {
		return err
	}
	if err := validate(req.Validate()); err != nil {
		return err
	}

	user, err := s.repo.GetUser(ctx, actor.UserID)
	if err != nil {
		return notFound("user not found", err)
	}
	if !VerifyPassword(user.PasswordHash, req.OldPassword) {
		return invalidInput("current password is incorrect")
	}
	hash, err := HashPassword(req.NewPassword)
	if err != nil {
		return err
	}

	user.PasswordHash = hash
	user.UpdatedAt = s.now()
	if _, err := s.repo.UpdateUser(ctx, *user); err != nil {
		return err
	}

	s.logAudit(ctx, "users", domain.AuditUpdate, map[string]string{"id": user.ID, "change": "password"})
	return nil
}

func (s *Service) DeleteUser(ctx context.Context, id string) error {
	actor, err := requireRole(ctx, domain.RoleAdmin)
	if err != nil {
		return err
	}
	if actor.UserID == id {
		return invalidState("an administrator cannot delete their own account")
	}

	user, err := s.repo.GetUser(ctx, id)
	if err != nil {
		return notFound("user not found", err)
	}
	if err := s.repo.DeleteUser(ctx, id); err != nil {
		return notFound("user not found", err)
	}

	s.logAudit(ctx, "users", domain.AuditDelete, map[string]string{"id": user.ID, "email": user.Email})
	return nil
}

func (s *Service) mutateUser(ctx context.Context, id string, change func(*domain.User)) (domain.User, error) {
	existing, err := s.repo.GetUser(ctx, id)
	if err != nil {
		return domain.User{}, notFound("user not found", err)
	}

	updated := *existing
	change(&updated)
	updated.UpdatedAt = s.now()
	saved, err := s.repo.UpdateUser(ctx, updated)
	if err != nil {
		return domain.User{}, err
	}

	s.logAudit(ctx, "users", domain.AuditUpdate, map[string]any{"before": existing, "after": saved})
	return *saved, nil
}

func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

func VerifyPassword(hash, password string) bool {
	if hash == "" || password == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// temporaryPassword draws one character of each required class and fills
// the rest from all of them, then shuffles.
func temporaryPassword() (string, error) {
	classes := []string{passwordUpper, passwordLower, passwordDigits, passwordSpecial}
	all := strings.Join(classes, "")

	out := make([]byte, 0, temporaryPasswordLength)
	for _, class := range classes {
		c, err := randomChar(class)
		if err != nil {
			return "", err
		}
		out = append(out, c)
	}
	for len(out) < temporaryPasswordLength {
		c, err := randomChar(all)
		if err != nil {
			return "", err
		}
		out = append(out, c)
	}
	for i := len(out) - 1; i > 0; i-- {
		j, err := rand.Int(rand.Reader, big.NewInt(int64(i+1)))
		if err != nil {
			return "", err
		}
		out[i], out[j.Int64()] = out[j.Int64()], out[i]
	}
	return string(out), nil
}

func randomChar(set string) (byte, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(len(set))))
	if err != nil {
		return 0, err
	}
	return set[n.Int64()], nil
}
