package httpapi

import (
	"errors"
	"fmt"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"

	"caissepro/backend/internal/domain"
)

const tokenIssuer = "caissepro"

var errInvalidToken = errors.New("invalid or expired token")

// AuthManager signs and verifies the bearer tokens handed out at login.
// Credentials themselves are checked by the service.
type AuthManager struct {
	secret   []byte
	tokenTTL time.Duration
	now      func() time.Time
}

type accessClaims struct {
	jwtlib.RegisteredClaims
	Email string      `json:"email"`
	Role  domain.Role `json:"role"`
}

func NewAuthManager(secret string, tokenTTL time.Duration) *AuthManager {
	if secret == "" {
		secret = "dev-change-me"
	}
	if tokenTTL <= 0 {
		tokenTTL = 8 * time.Hour
	}
	return &AuthManager{
		secret:   []byte(secret),
		tokenTTL: tokenTTL,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Issue signs a token for user and returns the login payload.
func (a *AuthManager) Issue(user domain.User) (domain.LoginResponse, error) {
	issuedAt := a.now()
	expiresAt := issuedAt.Add(a.tokenTTL)

	claims := accessClaims{
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   user.ID,
			Issuer:    tokenIssuer,
			IssuedAt:  jwtlib.NewNumericDate(issuedAt),
			ExpiresAt: jwtlib.NewNumericDate(expiresAt),
		},
		Email: user.Email,
		Role:  user.Role,
	}
	signed, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return domain.LoginResponse{}, fmt.Errorf("sign token: %w", err)
	}

	return domain.LoginResponse{
		AccessToken: signed,
		Role:        user.Role,
		ExpiresAt:   expiresAt.Format(time.RFC3339),
		User:        user,
	}, nil
}

func (a *AuthManager) ParseToken(tokenStr string) (domain.Actor, error) {
	claims := &accessClaims{}
	token, err := jwtlib.ParseWithClaims(tokenStr, claims, func(t *jwtlib.Token) (any, error) {
		if _, ok := t.Method.(*jwtlib.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return a.secret, nil
	},
		jwtlib.WithValidMethods([]string{"HS256"}),
		jwtlib.WithIssuer(tokenIssuer),
		jwtlib.WithTimeFunc(a.now),
	)
	if err != nil || !token.Valid {
		return domain.Actor{}, errInvalidToken
	}

	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return domain.Actor{}, errInvalidToken
	}
	if !claims.Role.Valid() {
		return domain.Actor{}, errInvalidToken
	}

	return domain.Actor{UserID: sub, Email: claims.Email, Role: claims.Role}, nil
}
