package core

import (
	"encoding/base32"
	"encoding/base64"
	"errors"
	"strings"

	"github.com/gorilla/securecookie"
)

// newSessionID returns an opaque server-side session key (256 bits of entropy).
func newSessionID() (string, error) {
	b := securecookie.GenerateRandomKey(32)
	if b == nil {
		return "", errors.New("failed to generate session id")
	}
	return strings.TrimRight(base32.StdEncoding.EncodeToString(b), "="), nil
}

// newCSRFToken returns a random token embedded in forms and echoed back on unsafe requests.
func newCSRFToken() (string, error) {
	b := securecookie.GenerateRandomKey(32)
	if b == nil {
		return "", errors.New("failed to generate csrf token")
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
