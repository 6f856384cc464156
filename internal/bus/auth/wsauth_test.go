package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"testing"
	"time"
)

func TestHMACAuthenticatorAcceptsValidToken(t *testing.T) {
	authn, err := NewHMACAuthenticator("secret")
	if err != nil {
		t.Fatalf("NewHMACAuthenticator: %v", err)
	}
	token := makeToken(t, "secret", "viewer-1", time.Now().Add(time.Minute))

	req := &http.Request{URL: &url.URL{RawQuery: "auth_token=" + token}}
	subject, err := authn.Authenticate(req)
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if subject != "viewer-1" {
		t.Fatalf("unexpected subject: %q", subject)
	}
}

func TestHMACAuthenticatorRejectsMissingToken(t *testing.T) {
	authn, err := NewHMACAuthenticator("secret")
	if err != nil {
		t.Fatalf("NewHMACAuthenticator: %v", err)
	}
	req := &http.Request{URL: &url.URL{}, Header: http.Header{}}
	if _, err := authn.Authenticate(req); err == nil {
		t.Fatal("expected missing token error")
	}
}

func TestAllowAllAcceptsEverything(t *testing.T) {
	var authn Authenticator = AllowAll{}
	subject, err := authn.Authenticate(&http.Request{URL: &url.URL{}})
	if err != nil || subject != "" {
		t.Fatalf("expected no-op success, got subject=%q err=%v", subject, err)
	}
}

func makeToken(t *testing.T, secret, subject string, expires time.Time) string {
	t.Helper()
	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"HS256","typ":"JWT"}`))
	payload := fmt.Sprintf(`{"sub":"%s","exp":%d,"iat":%d}`, subject, expires.Unix(), expires.Add(-time.Minute).Unix())
	encodedPayload := base64.RawURLEncoding.EncodeToString([]byte(payload))
	signingInput := header + "." + encodedPayload
	mac := hmac.New(sha256.New, []byte(secret))
	if _, err := mac.Write([]byte(signingInput)); err != nil {
		t.Fatalf("mac write: %v", err)
	}
	signature := base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
	return signingInput + "." + signature
}
