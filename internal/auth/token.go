package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// StationClaims is the token body the catalog/identity service signs for a
// broadcaster: which broadcast id it may go live on, and the display
// metadata shown to listeners.
type StationClaims struct {
	BroadcastID string `json:"broadcast_id"`
	DisplayName string `json:"display_name"`
	StationName string `json:"station_name"`
	jwt.RegisteredClaims
}

// TokenService verifies station tokens against the shared secret. Token
// issuance lives in the identity service; GenerateToken exists for tests
// and local tooling.
type TokenService struct {
	secret      []byte
	expiryHours int
}

// NewTokenService creates a TokenService
func NewTokenService(secret string, expiryHours int) *TokenService {
	return &TokenService{
		secret:      []byte(secret),
		expiryHours: expiryHours,
	}
}

// GenerateToken signs a station token for a broadcast
func (s *TokenService) GenerateToken(broadcastID, displayName, stationName string) (string, error) {
	claims := StationClaims{
		BroadcastID: broadcastID,
		DisplayName: displayName,
		StationName: stationName,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Duration(s.expiryHours) * time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    "aircast-identity",
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// ValidateToken parses and validates a station token
func (s *TokenService) ValidateToken(tokenString string) (*StationClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &StationClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	claims, ok := token.Claims.(*StationClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}
	if claims.BroadcastID == "" {
		return nil, fmt.Errorf("token carries no broadcast id")
	}

	return claims, nil
}
