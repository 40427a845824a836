package utils

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/atelier-hq/atelier-backend/internal/models"
	"github.com/golang-jwt/jwt/v5"
)

const tokenIssuer = "atelier-backend"

type Claims struct {
	UserID string `json:"userId"`
	Kind   string `json:"kind"`
	jwt.RegisteredClaims
}

// GenerateToken signs a credential for p. Issuance belongs to the identity
// service; this exists for tooling and tests.
func GenerateToken(secret string, p models.Principal, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &Claims{
		UserID: p.ID,
		Kind:   string(p.Kind),
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    tokenIssuer,
			ID:        GenerateID(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

func ValidateToken(secret, tokenString string) (*Claims, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(secret), nil
	})

	if err != nil {
		return nil, err
	}

	if !token.Valid {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}

// JWTVerifier turns a bearer credential into a Principal.
type JWTVerifier struct {
	secret string
}

func NewJWTVerifier(secret string) *JWTVerifier {
	return &JWTVerifier{secret: secret}
}

func (v *JWTVerifier) Verify(_ context.Context, credential string) (models.Principal, error) {
	credential = strings.TrimSpace(credential)
	credential = strings.TrimSpace(strings.TrimPrefix(credential, "Bearer "))
	if credential == "" {
		return models.Principal{}, errors.New("missing credential")
	}

	claims, err := ValidateToken(v.secret, credential)
	if err != nil {
		return models.Principal{}, err
	}

	p := models.Principal{ID: claims.UserID, Kind: models.PrincipalKind(claims.Kind)}
	if !p.Valid() {
		return models.Principal{}, errors.New("token carries no valid principal")
	}
	return p, nil
}
