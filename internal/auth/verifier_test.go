package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"go.uber.org/zap"
)

const testIssuer = "https://auth.example.test"

type keyPair struct {
	priv jwk.Key
	pub  jwk.Key
}

func newKeyPair(t *testing.T, kid string) keyPair {
	t.Helper()
	raw, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}
	priv, err := jwk.FromRaw(raw)
	if err != nil {
		t.Fatal(err)
	}
	_ = priv.Set(jwk.KeyIDKey, kid)
	_ = priv.Set(jwk.AlgorithmKey, jwa.RS256)
	pub, err := priv.PublicKey()
	if err != nil {
		t.Fatal(err)
	}
	return keyPair{priv: priv, pub: pub}
}

// jwksServer serves a swappable key set.
type jwksServer struct {
	mu  sync.Mutex
	set jwk.Set
	srv *httptest.Server
}

func newJWKSServer(t *testing.T, keys ...jwk.Key) *jwksServer {
	t.Helper()
	s := &jwksServer{}
	s.swap(keys...)
	s.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		defer s.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(s.set)
	}))
	t.Cleanup(s.srv.Close)
	return s
}

func (s *jwksServer) swap(keys ...jwk.Key) {
	set := jwk.NewSet()
	for _, k := range keys {
		_ = set.AddKey(k)
	}
	s.mu.Lock()
	s.set = set
	s.mu.Unlock()
}

func signToken(t *testing.T, kp keyPair, sub, email string, exp time.Time) string {
	t.Helper()
	tok := jwt.New()
	_ = tok.Set(jwt.SubjectKey, sub)
	_ = tok.Set(jwt.IssuerKey, testIssuer)
	_ = tok.Set(jwt.AudienceKey, "authenticated")
	_ = tok.Set(jwt.IssuedAtKey, time.Now().Add(-time.Minute))
	_ = tok.Set(jwt.ExpirationKey, exp)
	if email != "" {
		_ = tok.Set("email", email)
	}
	signed, err := jwt.Sign(tok, jwt.WithKey(jwa.RS256, kp.priv))
	if err != nil {
		t.Fatal(err)
	}
	return string(signed)
}

func newTestVerifier(t *testing.T, jwksURL string) *Verifier {
	t.Helper()
	v, err := NewVerifier(context.Background(), jwksURL, testIssuer, "authenticated",
		time.Minute, time.Minute, zap.NewNop().Sugar())
	if err != nil {
		t.Fatal(err)
	}
	return v
}

func TestVerifier_Verify(t *testing.T) {
	kp := newKeyPair(t, "k1")
	srv := newJWKSServer(t, kp.pub)
	v := newTestVerifier(t, srv.srv.URL)
	ctx := context.Background()

	t.Run("valid token", func(t *testing.T) {
		tok := signToken(t, kp, "user-1", "a@b.com", time.Now().Add(time.Hour))
		claims, err := v.Verify(ctx, tok)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if claims.Subject != "user-1" {
			t.Errorf("subject = %q", claims.Subject)
		}
		if claims.Email != "a@b.com" {
			t.Errorf("email = %q", claims.Email)
		}
		if claims.Issuer != testIssuer {
			t.Errorf("issuer = %q", claims.Issuer)
		}
		if claims.ExpiresAt.Before(time.Now()) {
			t.Error("expiry should be in the future")
		}
	})

	t.Run("expired token", func(t *testing.T) {
		tok := signToken(t, kp, "user-1", "", time.Now().Add(-time.Hour))
		if _, err := v.Verify(ctx, tok); !errors.Is(err, ErrExpired) {
			t.Fatalf("expected ErrExpired, got %v", err)
		}
	})

	t.Run("tampered signature", func(t *testing.T) {
		tok := signToken(t, kp, "user-1", "", time.Now().Add(time.Hour))
		// Flip one character in the middle of the signature segment.
		b := []byte(tok)
		i := strings.LastIndexByte(tok, '.') + 1 + 20
		if b[i] == 'A' {
			b[i] = 'B'
		} else {
			b[i] = 'A'
		}
		if _, err := v.Verify(ctx, string(b)); !errors.Is(err, ErrInvalidSignature) {
			t.Fatalf("expected ErrInvalidSignature, got %v", err)
		}
	})

	t.Run("malformed token", func(t *testing.T) {
		for _, tok := range []string{"", "not-a-jwt", "a.b", "a.b.c"} {
			if _, err := v.Verify(ctx, tok); !errors.Is(err, ErrMalformedToken) {
				t.Fatalf("token %q: expected ErrMalformedToken, got %v", tok, err)
			}
		}
	})

	t.Run("missing subject", func(t *testing.T) {
		tok := signToken(t, kp, "", "", time.Now().Add(time.Hour))
		if _, err := v.Verify(ctx, tok); !errors.Is(err, ErrMalformedToken) {
			t.Fatalf("expected ErrMalformedToken, got %v", err)
		}
	})
}

func TestVerifier_KeyRotation(t *testing.T) {
	kp1 := newKeyPair(t, "k1")
	srv := newJWKSServer(t, kp1.pub)
	v := newTestVerifier(t, srv.srv.URL)
	ctx := context.Background()

	// Prime the cache with the original key.
	if _, err := v.Verify(ctx, signToken(t, kp1, "user-1", "", time.Now().Add(time.Hour))); err != nil {
		t.Fatal(err)
	}

	// Rotate: provider publishes a new key and signs with it. A
	// cached-only verifier would reject; ours must refresh and accept.
	kp2 := newKeyPair(t, "k2")
	srv.swap(kp1.pub, kp2.pub)
	claims, err := v.Verify(ctx, signToken(t, kp2, "user-2", "", time.Now().Add(time.Hour)))
	if err != nil {
		t.Fatalf("expected rotation refresh to succeed, got %v", err)
	}
	if claims.Subject != "user-2" {
		t.Errorf("subject = %q", claims.Subject)
	}

	// A kid no provider key matches is rejected after a refresh.
	kp3 := newKeyPair(t, "k3")
	if _, err := v.Verify(ctx, signToken(t, kp3, "user-3", "", time.Now().Add(time.Hour))); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}
}

func TestVerifier_KeySetUnavailable(t *testing.T) {
	kp := newKeyPair(t, "k1")
	srv := newJWKSServer(t, kp.pub)
	url := srv.srv.URL
	srv.srv.Close()

	v, err := NewVerifier(context.Background(), url, testIssuer, "authenticated",
		time.Minute, time.Minute, zap.NewNop().Sugar())
	if err != nil {
		t.Fatal(err)
	}
	tok := signToken(t, kp, "user-1", "", time.Now().Add(time.Hour))
	if _, err := v.Verify(context.Background(), tok); !errors.Is(err, ErrKeySetUnavailable) {
		t.Fatalf("expected ErrKeySetUnavailable, got %v", err)
	}
}
