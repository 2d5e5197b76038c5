package auth

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/golang-jwt/jwt/v5"
)

// ErrNoUserClaim is returned when a token carries no usable user id.
var ErrNoUserClaim = errors.New("token has no user id claim")

// userClaims are checked in order.
var userClaims = []string{"userId", "user_id", "id", "sub"}

// UserFromToken reads the user id from a JWT bearer token without verifying
// its signature. The server verifies tokens; the client only needs the id to
// decide which targeted notifications belong to it.
func UserFromToken(token string) (int64, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return 0, fmt.Errorf("parse token: %w", err)
	}

	for _, name := range userClaims {
		v, ok := claims[name]
		if !ok {
			continue
		}
		if id, ok := claimInt(v); ok {
			return id, nil
		}
	}

	return 0, ErrNoUserClaim
}

func claimInt(v any) (int64, bool) {
	switch n := v.(type) {
	case float64:
		if n != float64(int64(n)) {
			return 0, false
		}
		return int64(n), true
	case string:
		id, err := strconv.ParseInt(n, 10, 64)
		return id, err == nil
	}
	return 0, false
}
