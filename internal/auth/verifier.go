package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jws"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"go.uber.org/zap"
)

// Verifier validates bearer tokens against the identity provider's
// rotating JWKS. The key set is cached process-wide; a token signed by
// a key the cache has not seen triggers a forced refresh before the
// token is rejected, so key rotation never locks verified users out.
type Verifier struct {
	jwksURL  string
	issuer   string
	audience string
	skew     time.Duration
	cache    *jwk.Cache
	log      *zap.SugaredLogger
}

func NewVerifier(ctx context.Context, jwksURL, issuer, audience string, ttl, skew time.Duration, log *zap.SugaredLogger) (*Verifier, error) {
	cache := jwk.NewCache(ctx)
	if err := cache.Register(jwksURL, jwk.WithMinRefreshInterval(ttl)); err != nil {
		return nil, fmt.Errorf("register jwks url: %w", err)
	}
	return &Verifier{
		jwksURL:  jwksURL,
		issuer:   strings.TrimRight(issuer, "/"),
		audience: audience,
		skew:     skew,
		cache:    cache,
		log:      log,
	}, nil
}

// Verify parses and validates token, returning the identity claims.
// Failure modes: ErrMalformedToken, ErrInvalidSignature, ErrExpired,
// ErrKeySetUnavailable.
func (v *Verifier) Verify(ctx context.Context, token string) (Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Claims{}, ErrMalformedToken
	}

	msg, err := jws.Parse([]byte(token))
	if err != nil || len(msg.Signatures()) == 0 {
		return Claims{}, ErrMalformedToken
	}
	kid := msg.Signatures()[0].ProtectedHeaders().KeyID()

	set, err := v.cache.Get(ctx, v.jwksURL)
	if err != nil {
		return Claims{}, fmt.Errorf("%w: %v", ErrKeySetUnavailable, err)
	}
	if kid != "" {
		if _, ok := set.LookupKeyID(kid); !ok {
			// Unknown kid: the provider may have rotated keys since the
			// last fetch. Refresh once before giving up.
			refreshed, rerr := v.cache.Refresh(ctx, v.jwksURL)
			if rerr != nil {
				return Claims{}, fmt.Errorf("%w: %v", ErrKeySetUnavailable, rerr)
			}
			set = refreshed
			if _, ok := set.LookupKeyID(kid); !ok {
				v.log.Warnw("token signed by unknown key", "kid", kid)
				return Claims{}, ErrInvalidSignature
			}
		}
	}

	opts := []jwt.ParseOption{
		jwt.WithKeySet(set),
		jwt.WithValidate(true),
		jwt.WithAcceptableSkew(v.skew),
		jwt.WithIssuer(v.issuer),
	}
	if v.audience != "" {
		opts = append(opts, jwt.WithAudience(v.audience))
	}
	tok, err := jwt.Parse([]byte(token), opts...)
	if err != nil {
		if jwt.IsValidationError(err) {
			if errors.Is(err, jwt.ErrTokenExpired()) {
				return Claims{}, ErrExpired
			}
			return Claims{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
		}
		return Claims{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	sub := tok.Subject()
	if sub == "" {
		return Claims{}, ErrMalformedToken
	}
	email := ""
	if e, ok := tok.Get("email"); ok {
		email, _ = e.(string)
	}
	return Claims{
		Subject:   sub,
		Email:     email,
		Issuer:    tok.Issuer(),
		ExpiresAt: tok.Expiration(),
	}, nil
}
