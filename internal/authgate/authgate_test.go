package authgate

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"
)

func TestBearerTokenExtractsFromHeader(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer abc123")
	if got := bearerToken(req); got != "abc123" {
		t.Fatalf("expected abc123, got %q", got)
	}
}

func TestBearerTokenRejectsMissingOrMalformed(t *testing.T) {
	cases := []string{"", "abc123", "Basic abc123"}
	for _, h := range cases {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if h != "" {
			req.Header.Set("Authorization", h)
		}
		if got := bearerToken(req); got != "" {
			t.Fatalf("header %q: expected empty token, got %q", h, got)
		}
	}
}

func TestFirstNonEmpty(t *testing.T) {
	if got := firstNonEmpty("", "", "x", "y"); got != "x" {
		t.Fatalf("expected x, got %q", got)
	}
	if got := firstNonEmpty("", ""); got != "" {
		t.Fatalf("expected empty, got %q", got)
	}
}

func TestNeedsRefresh(t *testing.T) {
	now := time.Unix(1000, 0)
	soon := TokenResponse{Expires: now.Add(10 * time.Second).Unix()}
	later := TokenResponse{Expires: now.Add(time.Hour).Unix()}
	if !NeedsRefresh(soon, now) {
		t.Fatalf("expected refresh needed when expiry is 10s away")
	}
	if NeedsRefresh(later, now) {
		t.Fatalf("expected no refresh needed when expiry is an hour away")
	}
}

// fakeProvider serves a minimal OIDC discovery document plus a token
// endpoint, enough for Gate.ensureInitialized and PasswordGrant to work
// against a real (if fake) HTTP round trip.
func fakeProvider(t *testing.T, tokenHandler http.HandlerFunc) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	var srv *httptest.Server
	mux.HandleFunc("/.well-known/openid-configuration", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{
			"issuer":                 srv.URL,
			"authorization_endpoint": srv.URL + "/auth",
			"token_endpoint":         srv.URL + "/token",
			"userinfo_endpoint":      srv.URL + "/userinfo",
			"jwks_uri":               srv.URL + "/jwks",
		})
	})
	mux.HandleFunc("/jwks", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"keys": []any{}})
	})
	if tokenHandler != nil {
		mux.HandleFunc("/token", tokenHandler)
	}
	srv = httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestPasswordGrantNormalizesResponse(t *testing.T) {
	srv := fakeProvider(t, func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Fatalf("parse form: %v", err)
		}
		if r.FormValue("grant_type") != "password" {
			t.Fatalf("expected password grant, got %q", r.FormValue("grant_type"))
		}
		json.NewEncoder(w).Encode(map[string]any{
			"access_token":       "tok",
			"token_type":         "Bearer",
			"expires_in":         3600,
			"refresh_token":      "refresh",
			"refresh_expires_in": 7200,
			"scope":              "openid",
		})
	})

	gate := New(srv.URL, "client-id", "secret")
	before := time.Now()
	tok, err := gate.PasswordGrant(context.Background(), "alice", "hunter2")
	if err != nil {
		t.Fatalf("PasswordGrant: %v", err)
	}
	if tok.AccessToken != "tok" || tok.TokenType != "Bearer" {
		t.Fatalf("unexpected token response: %+v", tok)
	}
	if tok.Expires < before.Add(3500*time.Second).Unix() {
		t.Fatalf("expected expires roughly 1h out, got %d", tok.Expires)
	}
	if tok.RefreshToken != "refresh" {
		t.Fatalf("expected refresh token carried through")
	}
}

func TestRefreshGrantSendsRefreshTokenGrant(t *testing.T) {
	srv := fakeProvider(t, func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		if r.FormValue("grant_type") != "refresh_token" {
			t.Fatalf("expected refresh_token grant, got %q", r.FormValue("grant_type"))
		}
		if r.FormValue("refresh_token") != "old-refresh" {
			t.Fatalf("expected old-refresh token forwarded, got %q", r.FormValue("refresh_token"))
		}
		json.NewEncoder(w).Encode(map[string]any{"access_token": "new-tok", "token_type": "Bearer", "expires_in": 60})
	})

	gate := New(srv.URL, "client-id", "")
	tok, err := gate.RefreshGrant(context.Background(), "old-refresh")
	if err != nil {
		t.Fatalf("RefreshGrant: %v", err)
	}
	if tok.AccessToken != "new-tok" {
		t.Fatalf("unexpected access token: %q", tok.AccessToken)
	}
}

func TestMiddlewareReturns503WhenDiscoveryUnreachable(t *testing.T) {
	unreachable, err := url.Parse("http://127.0.0.1:1")
	if err != nil {
		t.Fatal(err)
	}
	gate := New(unreachable.String(), "client-id", "")

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer whatever")

	gate.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not run when discovery is unreachable")
	})).ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}

func TestMiddlewareReturns401WithoutBearerToken(t *testing.T) {
	srv := fakeProvider(t, nil)
	gate := New(srv.URL, "client-id", "")

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)

	gate.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not run without a bearer token")
	})).ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestUserInfoForUsesClaimsWhenComplete(t *testing.T) {
	gate := New("", "", "")
	claims := Claims{PreferredName: "alice", GivenName: "Alice", FamilyName: "Smith", Email: "alice@example.com"}
	info, err := gate.UserInfoFor(context.Background(), "irrelevant", claims)
	if err != nil {
		t.Fatalf("UserInfoFor: %v", err)
	}
	if info.Username != "alice" || info.Email != "alice@example.com" || info.FirstName != "Alice" || info.LastName != "Smith" {
		t.Fatalf("unexpected userinfo: %+v", info)
	}
}
