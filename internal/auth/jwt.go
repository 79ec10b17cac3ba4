/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Token purposes. A password reset token can never be used as a session.
const (
	PurposeSession       = "session"
	PurposePasswordReset = "password_reset"
)

// Claims extends standard registered claims with the account and token purpose.
type Claims struct {
	UserID  string `json:"uid"`
	Email   string `json:"email,omitempty"`
	Purpose string `json:"purpose"`
	jwt.RegisteredClaims
}

// Issue creates a signed HS256 token valid for ttl from now.
func Issue(secret []byte, claims Claims, ttl time.Duration) (string, error) {
	return IssueAt(secret, claims, ttl, time.Now())
}

// IssueAt creates a signed HS256 token valid for ttl from now.
func IssueAt(secret []byte, claims Claims, ttl time.Duration, now time.Time) (string, error) {
	if claims.Purpose == "" {
		claims.Purpose = PurposeSession
	}
	claims.RegisteredClaims = jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		IssuedAt:  jwt.NewNumericDate(now),
		Subject:   claims.UserID,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secret)
}

// Parse validates token string. Only HS256 is accepted.
func Parse(secret []byte, token string) (*Claims, error) {
	return ParseAt(secret, token, time.Now())
}

// ParseAt validates token string against the given time.
func ParseAt(secret []byte, token string, now time.Time) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		return secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(func() time.Time { return now }),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, err
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || claims.UserID == "" {
		return nil, jwt.ErrTokenInvalidClaims
	}

	return claims, nil
}
