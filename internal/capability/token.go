package capability

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/ternarybob/pipewatch/internal/common"
	"github.com/ternarybob/pipewatch/internal/interfaces"
)

const tokenIssuer = "pipewatch"

// Claims is the session token payload. Capabilities holds the same names and
// patterns Static accepts.
type Claims struct {
	Capabilities []string `json:"capabilities"`
	jwt.RegisteredClaims
}

// IssueToken signs a session token granting capabilities to subject
func IssueToken(subject string, capabilities []string, secret string, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", errors.New("token secret is required")
	}

	now := time.Now()
	claims := &Claims{
		Capabilities: capabilities,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    tokenIssuer,
			Subject:   subject,
		},
	}
	if ttl != 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// ParseToken validates a session token and returns its claims
func ParseToken(tokenString, secret string) (*Claims, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(secret), nil
	}, jwt.WithIssuer(tokenIssuer))
	if err != nil {
		return nil, err
	}

	if !token.Valid {
		return nil, errors.New("invalid token")
	}

	return claims, nil
}

// FromToken builds a static gate from a signed session token. Capabilities
// are resolved once; an expiring token does not revoke them mid-session.
func FromToken(tokenString, secret string) (*Static, error) {
	claims, err := ParseToken(tokenString, secret)
	if err != nil {
		return nil, fmt.Errorf("failed to parse session token: %w", err)
	}
	return NewStatic(claims.Capabilities...), nil
}

// FromConfig builds the gate described by the [capabilities] section.
// A token takes precedence over the granted list.
func FromConfig(cfg common.CapabilitiesConfig) (interfaces.CapabilityGate, error) {
	if cfg.Token != "" {
		return FromToken(cfg.Token, cfg.TokenSecret)
	}
	return NewStatic(cfg.Granted...), nil
}
