package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Role values carried in tokens. An organiser owns an organisation and sees
// everything in it; an agent only sees the patients assigned to them.
const (
	RoleOrganiser = "organiser"
	RoleAgent     = "agent"
)

// Claims is the JWT payload issued at login. Subject carries the user ID.
type Claims struct {
	jwt.RegisteredClaims
	Role string `json:"role"`
}

// TokenConfig holds the HMAC signing configuration shared by issuing and
// verification.
type TokenConfig struct {
	Secret []byte
	TTL    time.Duration
	Issuer string
}

// IssueToken signs a new token for the given user.
func IssueToken(cfg TokenConfig, userID, role string) (string, error) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(cfg.TTL)),
		},
		Role: role,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(cfg.Secret)
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return signed, nil
}

// ParseToken verifies a token string and returns its claims.
func ParseToken(cfg TokenConfig, tokenStr string) (*Claims, error) {
	claims := &Claims{}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"HS256"}),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}

	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		return cfg.Secret, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("parsing token: %w", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	return claims, nil
}
