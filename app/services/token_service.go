package services

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/amirphl/booster/utils"
	"github.com/golang-jwt/jwt/v5"
)

// Token service error constants
var (
	ErrTokenExpired = errors.New("token has expired")
	ErrTokenInvalid = errors.New("invalid token")
	ErrTokenScope   = errors.New("token lacks required scope")
)

// Service token scopes
const (
	ScopeBoost = "boost"
	ScopeAdmin = "admin"
)

// TokenService issues and validates the HS256 tokens carried by booster workers
type TokenService interface {
	GenerateServiceToken(serviceName string, scopes []string) (string, error)
	ValidateServiceToken(token string) (*ServiceTokenClaims, error)
}

// ServiceTokenClaims represents the claims of a service JWT
type ServiceTokenClaims struct {
	ServiceName string   `json:"service_name"`
	Scopes      []string `json:"scopes"`
	jwt.RegisteredClaims
}

// HasScope reports whether the token grants scope
func (c *ServiceTokenClaims) HasScope(scope string) bool {
	return slices.Contains(c.Scopes, scope)
}

// TokenServiceImpl implements TokenService
type TokenServiceImpl struct {
	secretKey []byte
	ttl       time.Duration
	issuer    string
	audience  string
}

// NewTokenService creates a new token service
func NewTokenService(secretKey, issuer, audience string, ttl time.Duration) (TokenService, error) {
	if secretKey == "" {
		return nil, fmt.Errorf("secret key is required")
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("token ttl must be positive")
	}
	return &TokenServiceImpl{
		secretKey: []byte(secretKey),
		ttl:       ttl,
		issuer:    issuer,
		audience:  audience,
	}, nil
}

// GenerateServiceToken signs a token for serviceName with the given scopes
func (s *TokenServiceImpl) GenerateServiceToken(serviceName string, scopes []string) (string, error) {
	if serviceName == "" {
		return "", fmt.Errorf("service name is required")
	}

	tokenID, err := generateTokenID()
	if err != nil {
		return "", err
	}

	now := utils.UTCNow()
	claims := ServiceTokenClaims{
		ServiceName: serviceName,
		Scopes:      scopes,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        tokenID,
			Subject:   serviceName,
			Issuer:    s.issuer,
			Audience:  jwt.ClaimStrings{s.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secretKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// ValidateServiceToken validates a token and returns its claims
func (s *TokenServiceImpl) ValidateServiceToken(token string) (*ServiceTokenClaims, error) {
	claims := &ServiceTokenClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secretKey, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithAudience(s.audience),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}
	if !parsed.Valid || claims.ServiceName == "" {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}

// generateTokenID generates a unique token ID
func generateTokenID() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate token id: %w", err)
	}
	return hex.EncodeToString(b), nil
}
