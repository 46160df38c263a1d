package auth

import (
	"errors"
	"time"
)

// Verification failure taxonomy. Any failure means the request carries
// no identity; callers must reject, never fall back to a default.
var (
	ErrMalformedToken    = errors.New("auth: malformed token")
	ErrInvalidSignature  = errors.New("auth: invalid signature")
	ErrExpired           = errors.New("auth: token expired")
	ErrKeySetUnavailable = errors.New("auth: key set unavailable")
)

// Claims are the verified identity attributes extracted from a bearer
// token. Ephemeral; never persisted.
type Claims struct {
	Subject   string
	Email     string
	Issuer    string
	ExpiresAt time.Time
}
