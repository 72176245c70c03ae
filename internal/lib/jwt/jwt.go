package jwt

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/Shivanand-hulikatti/event-booking/internal/model"
)

// ErrInvalidToken is returned for tokens that fail signature, expiry or
// claim checks.
var ErrInvalidToken = errors.New("invalid token")

// NewToken generates new JWT token for the principal and returns tokenString and err
func NewToken(p model.Principal, secret string, duration time.Duration) (string, error) {
	token := jwt.New(jwt.SigningMethodHS256)

	claims := token.Claims.(jwt.MapClaims)
	claims["uid"] = p.ID
	claims["email"] = p.Email
	claims["role"] = string(p.Role)
	claims["exp"] = time.Now().Add(duration).Unix()

	tokenString, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", err
	}

	return tokenString, nil
}

// Parse verifies tokenString and extracts the principal it was issued for.
func Parse(tokenString, secret string) (model.Principal, error) {
	token, err := jwt.Parse(tokenString, func(*jwt.Token) (any, error) {
		return []byte(secret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return model.Principal{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return model.Principal{}, ErrInvalidToken
	}

	uid, _ := claims["uid"].(string)
	email, _ := claims["email"].(string)
	role, _ := claims["role"].(string)
	if uid == "" {
		return model.Principal{}, fmt.Errorf("%w: missing uid", ErrInvalidToken)
	}

	return model.Principal{ID: uid, Email: email, Role: model.Role(role)}, nil
}
