package main

import (
	"net/http/httptest"
	"testing"
	"time"

	"wanderfield/simcore/internal/auth"
)

func TestAllowAllAuthenticatorAdmitsAnonymous(t *testing.T) {
	subject, err := allowAllAuthenticator{}.Authenticate(httptest.NewRequest("GET", "/ws", nil))
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if subject != "" {
		t.Fatalf("subject = %q, want empty", subject)
	}
}

func TestHMACAuthenticatorAcceptsSignedTokens(t *testing.T) {
	const secret = "wanderfield-test-secret"
	authenticator, err := newHMACWebsocketAuthenticator(secret)
	if err != nil {
		t.Fatalf("newHMACWebsocketAuthenticator: %v", err)
	}

	token, err := auth.SignToken(secret, auth.TokenClaims{
		Subject:   "maya",
		ExpiresAt: time.Now().Add(time.Minute),
	})
	if err != nil {
		t.Fatalf("SignToken: %v", err)
	}

	//1.- The query parameter is the browser path; the header serves tooling.
	byQuery := httptest.NewRequest("GET", "/ws?auth_token="+token, nil)
	if subject, err := authenticator.Authenticate(byQuery); err != nil || subject != "maya" {
		t.Fatalf("query auth = (%q, %v), want maya", subject, err)
	}

	byHeader := httptest.NewRequest("GET", "/ws", nil)
	byHeader.Header.Set("X-Auth-Token", token)
	if subject, err := authenticator.Authenticate(byHeader); err != nil || subject != "maya" {
		t.Fatalf("header auth = (%q, %v), want maya", subject, err)
	}
}

func TestHMACAuthenticatorRejectsBadTokens(t *testing.T) {
	authenticator, err := newHMACWebsocketAuthenticator("wanderfield-test-secret")
	if err != nil {
		t.Fatalf("newHMACWebsocketAuthenticator: %v", err)
	}

	if _, err := authenticator.Authenticate(httptest.NewRequest("GET", "/ws", nil)); err == nil {
		t.Fatal("expected missing token to fail")
	}

	forged, err := auth.SignToken("other-secret", auth.TokenClaims{
		Subject:   "maya",
		ExpiresAt: time.Now().Add(time.Minute),
	})
	if err != nil {
		t.Fatalf("SignToken: %v", err)
	}
	bad := httptest.NewRequest("GET", "/ws?auth_token="+forged, nil)
	if _, err := authenticator.Authenticate(bad); err == nil {
		t.Fatal("expected foreign signature to fail")
	}

	expired, err := auth.SignToken("wanderfield-test-secret", auth.TokenClaims{
		Subject:   "maya",
		ExpiresAt: time.Now().Add(-time.Minute),
	})
	if err != nil {
		t.Fatalf("SignToken: %v", err)
	}
	stale := httptest.NewRequest("GET", "/ws?auth_token="+expired, nil)
	if _, err := authenticator.Authenticate(stale); err == nil {
		t.Fatal("expected expired token to fail")
	}
}

func TestWithWebsocketAuthenticatorOverridesDefault(t *testing.T) {
	authenticator, err := newHMACWebsocketAuthenticator("wanderfield-test-secret")
	if err != nil {
		t.Fatalf("newHMACWebsocketAuthenticator: %v", err)
	}
	server := newTestServer(t, nil, WithWebsocketAuthenticator(authenticator))
	if server.wsAuth != authenticator {
		t.Fatal("expected the custom authenticator to be wired")
	}

	//1.- A nil authenticator must not clobber the default.
	fallback := newTestServer(t, nil, WithWebsocketAuthenticator(nil))
	if fallback.wsAuth == nil {
		t.Fatal("expected the default authenticator to survive")
	}
}
