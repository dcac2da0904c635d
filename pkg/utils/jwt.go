package utils

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const stateIssuer = "clipflow"

// StateClaims travel in the OAuth state parameter. Nonce ties the callback
// to the authorization attempt that produced it.
type StateClaims struct {
	Nonce string `json:"nonce"`
	jwt.RegisteredClaims
}

// GenerateStateToken signs a fresh state carrying nonce.
func GenerateStateToken(secretKey, nonce string, ttl time.Duration) (string, error) {
	if secretKey == "" {
		return "", errors.New("state signing key is empty")
	}

	now := time.Now()
	claims := StateClaims{
		Nonce: nonce,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    stateIssuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secretKey))
}

// ValidateStateToken checks signature, issuer and expiry and returns the claims.
func ValidateStateToken(secretKey, tokenString string) (*StateClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &StateClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid token signing method")
		}
		return []byte(secretKey), nil
	}, jwt.WithIssuer(stateIssuer), jwt.WithExpirationRequired())
	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*StateClaims); ok && token.Valid {
		return claims, nil
	}

	return nil, errors.New("invalid state token")
}
