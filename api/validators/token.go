package validators

import (
	"errors"
	"strings"
)

var ErrInvalidToken = errors.New("invalid auth token")

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, error) {
	raw := strings.TrimSpace(header)
	if raw == "" {
		return "", ErrInvalidToken
	}
	if len(raw) < 7 || !strings.EqualFold(raw[:7], "bearer ") {
		return "", ErrInvalidToken
	}
	token := strings.TrimSpace(raw[7:])
	if token == "" {
		return "", ErrInvalidToken
	}
	return token, nil
}
