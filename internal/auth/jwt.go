package auth

import (
	"errors"
	"fmt"
	"time"

	"plate-bidding/internal/biddingerrors"

	"github.com/golang-jwt/jwt/v5"
)

// Claims identifies a bidder or an operator
type Claims struct {
	UserID     string `json:"user_id"`
	Username   string `json:"username"`
	IsOperator bool   `json:"is_operator"`
	jwt.RegisteredClaims
}

// GenerateJWT creates a signed token for a user
func GenerateJWT(userID, username string, isOperator bool, secretKey string, ttl time.Duration) (string, error) {
	if userID == "" {
		return "", errors.New("user id is required")
	}

	now := time.Now()
	claims := &Claims{
		UserID:     userID,
		Username:   username,
		IsOperator: isOperator,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Subject:   userID,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secretKey))
	if err != nil {
		return "", fmt.Errorf("failed to sign JWT: %w", err)
	}
	return signed, nil
}

// ValidateJWT verifies a token and returns its claims.
// Every failure wraps biddingerrors.ErrUnauthorized.
func ValidateJWT(tokenString, secretKey string) (*Claims, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(secretKey), nil
	}, jwt.WithExpirationRequired())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", biddingerrors.ErrUnauthorized, err)
	}
	if !token.Valid || claims.UserID == "" {
		return nil, fmt.Errorf("%w: invalid token", biddingerrors.ErrUnauthorized)
	}
	return claims, nil
}
