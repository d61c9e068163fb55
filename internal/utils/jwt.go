package utils

import (
	"fmt"
	"strconv"
	"time"

	"github.com/Kyz7/identity/internal/models"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

type AccessClaims struct {
	Username string   `json:"username"`
	Roles    []string `json:"roles"`
	jwt.RegisteredClaims
}

// UserID returns the numeric subject of the claims.
func (c *AccessClaims) UserID() (uint, error) {
	id, err := strconv.ParseUint(c.Subject, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid subject: %w", err)
	}
	return uint(id), nil
}

// JWTMinter signs HS256 access tokens for users.
type JWTMinter struct {
	key []byte
	ttl time.Duration
	now func() time.Time
}

func NewJWTMinter(secret string, ttl time.Duration) *JWTMinter {
	return &JWTMinter{key: []byte(secret), ttl: ttl, now: time.Now}
}

func (m *JWTMinter) TTL() time.Duration { return m.ttl }

// Mint issues an access token whose subject is u.ID. Roles must be preloaded
// on u to appear in the claims.
func (m *JWTMinter) Mint(u *models.User) (string, error) {
	now := m.now()
	claims := AccessClaims{
		Username: u.Username,
		Roles:    u.RoleNames(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatUint(uint64(u.ID), 10),
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.key)
}

func (m *JWTMinter) Parse(tokenStr string) (*AccessClaims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &AccessClaims{}, func(token *jwt.Token) (interface{}, error) {
		return m.key, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(m.now))
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}

	claims, ok := token.Claims.(*AccessClaims)
	if !ok {
		return nil, fmt.Errorf("invalid token claims")
	}
	return claims, nil
}
