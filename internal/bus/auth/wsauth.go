// Package auth authenticates bus clients connecting over HTTP-upgraded
// transports (the WebSocket bus backend's dial handshake).
package auth

import (
	"errors"
	"net/http"
	"strings"
	"time"

	ivisauth "ivis-core/internal/auth"
)

// Authenticator validates an incoming bus connection request and returns the
// logical client identifier embedded in its credentials.
type Authenticator interface {
	Authenticate(r *http.Request) (string, error)
}

// AllowAll accepts every connection without checking credentials. It backs
// deployments that rely on network-level isolation instead of token auth.
type AllowAll struct{}

// Authenticate always succeeds with an empty subject.
func (AllowAll) Authenticate(*http.Request) (string, error) {
	return "", nil
}

// HMACAuthenticator validates HS256 bearer tokens carried either in the
// auth_token query parameter or the X-Auth-Token header.
type HMACAuthenticator struct {
	verifier *ivisauth.HMACTokenVerifier
}

// NewHMACAuthenticator constructs an Authenticator backed by the shared
// secret, allowing a small clock skew between token issuer and bus.
func NewHMACAuthenticator(secret string) (Authenticator, error) {
	verifier, err := ivisauth.NewHMACTokenVerifier(secret, 2*time.Second)
	if err != nil {
		return nil, err
	}
	return &HMACAuthenticator{verifier: verifier}, nil
}

// Authenticate validates the incoming token and returns the logical client identifier.
func (a *HMACAuthenticator) Authenticate(r *http.Request) (string, error) {
	if a == nil || a.verifier == nil {
		return "", errors.New("verifier not configured")
	}
	token := strings.TrimSpace(r.URL.Query().Get("auth_token"))
	if token == "" {
		token = strings.TrimSpace(r.Header.Get("X-Auth-Token"))
	}
	if token == "" {
		return "", errors.New("missing auth token")
	}
	claims, err := a.verifier.Verify(token)
	if err != nil {
		return "", err
	}
	return claims.Subject, nil
}
