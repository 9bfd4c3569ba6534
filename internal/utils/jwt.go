// Package utils mints the bearer tokens accepted by middleware.JWTAuth.
package utils

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// AccessToken is a signed JWT and its expiry.
type AccessToken struct {
	Token string
	Exp   time.Time
}

// NewAccessToken signs an HS256 token with subject userID and the given
// role, valid for ttl from now.
func NewAccessToken(secret, userID, role string, ttl time.Duration) (AccessToken, error) {
	return newAccessToken(secret, userID, role, time.Now().UTC(), ttl)
}

func newAccessToken(secret, userID, role string, now time.Time, ttl time.Duration) (AccessToken, error) {
	exp := now.Add(ttl)
	claims := jwt.MapClaims{
		"sub":  userID,
		"role": role,
		"exp":  exp.Unix(),
		"iat":  now.Unix(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return AccessToken{}, err
	}
	return AccessToken{Token: signed, Exp: exp}, nil
}
