// Package authgate implements the Auth Gate (component F, §4.5): a lazily
// initialized OIDC validator, bearer-token verification middleware, and a
// token/userinfo endpoint pair proxying the upstream provider.
package authgate

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	oidc "github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
)

// ErrDiscoveryUnavailable is returned when the provider's discovery
// document could not be fetched within the probe timeout (§4.5).
var ErrDiscoveryUnavailable = errors.New("authgate: OIDC discovery unavailable")

// Gate lazily initializes an OIDC validator on first use and serves the
// token/userinfo endpoints against the same provider.
type Gate struct {
	discoveryURL string
	clientID     string
	clientSecret string

	mu        sync.Mutex
	provider  *oidc.Provider
	verifier  *oidc.IDTokenVerifier
	oauth2Cfg *oauth2.Config
}

// New builds a Gate. No network call is made until the first protected
// request or token/userinfo call (§4.5's lazy singleton).
func New(discoveryURL, clientID, clientSecret string) *Gate {
	return &Gate{discoveryURL: discoveryURL, clientID: clientID, clientSecret: clientSecret}
}

// DiscoveryURL returns the upstream provider's discovery document URL, for
// the `.well-known/openid-configuration` redirect (§6).
func (g *Gate) DiscoveryURL() string {
	return g.discoveryURL
}

// ensureInitialized probes the discovery URL with a 5s timeout and builds
// the provider/verifier on success. Safe for concurrent callers: they are
// serialized, a failed probe is retried by the next caller, and once one
// succeeds the rest return without dialing out.
func (g *Gate) ensureInitialized(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.provider != nil {
		return nil
	}

	probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	provider, err := oidc.NewProvider(probeCtx, g.discoveryURL)
	if err != nil {
		return ErrDiscoveryUnavailable
	}

	g.provider = provider
	g.verifier = provider.Verifier(&oidc.Config{ClientID: g.clientID, SkipClientIDCheck: g.clientID == ""})
	g.oauth2Cfg = &oauth2.Config{
		ClientID:     g.clientID,
		ClientSecret: g.clientSecret,
		Endpoint:     provider.Endpoint(),
		Scopes:       []string{oidc.ScopeOpenID, "email", "profile"},
	}
	return nil
}

// Claims is the subset of an ID token's claim set the userinfo derivation
// reads from, in priority order per field (§4.5).
type Claims struct {
	Subject       string `json:"sub"`
	PreferredName string `json:"preferred_username"`
	Username      string `json:"username"`
	GivenName     string `json:"given_name"`
	FirstName     string `json:"first_name"`
	FamilyName    string `json:"family_name"`
	LastName      string `json:"last_name"`
	Email         string `json:"email"`
}

type contextKey string

const claimsContextKey contextKey = "authgate.claims"

// WithClaims attaches a verified claim set to ctx.
func WithClaims(ctx context.Context, c Claims) context.Context {
	return context.WithValue(ctx, claimsContextKey, c)
}

// ClaimsFromContext extracts the claim set a prior Middleware call attached.
func ClaimsFromContext(ctx context.Context) (Claims, bool) {
	c, ok := ctx.Value(claimsContextKey).(Claims)
	return c, ok
}

// Middleware verifies the bearer token on every request, initializing the
// validator lazily. 503 on discovery failure, 401 on a missing or invalid
// token (§4.5).
func (g *Gate) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := g.ensureInitialized(r.Context()); err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}

		token := bearerToken(r)
		if token == "" {
			w.Header().Set("WWW-Authenticate", `Bearer realm="databrowser"`)
			http.Error(w, "missing bearer token", http.StatusUnauthorized)
			return
		}

		idToken, err := g.verifier.Verify(r.Context(), token)
		if err != nil {
			w.Header().Set("WWW-Authenticate", `Bearer realm="databrowser"`)
			http.Error(w, "invalid or expired token", http.StatusUnauthorized)
			return
		}

		var claims Claims
		if err := idToken.Claims(&claims); err != nil {
			http.Error(w, "invalid token claims", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
	})
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(h) <= len(prefix) || !strings.EqualFold(h[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(h[len(prefix):])
}

// TokenResponse is the normalized shape every token-endpoint call returns
// (§4.5), regardless of the upstream provider's field names.
type TokenResponse struct {
	AccessToken    string `json:"access_token"`
	TokenType      string `json:"token_type"`
	Expires        int64  `json:"expires"`
	RefreshToken   string `json:"refresh_token,omitempty"`
	RefreshExpires int64  `json:"refresh_expires,omitempty"`
	Scope          string `json:"scope,omitempty"`
}

// rawProviderToken mirrors the token endpoint's raw JSON response before
// normalization.
type rawProviderToken struct {
	AccessToken      string `json:"access_token"`
	TokenType        string `json:"token_type"`
	ExpiresIn        int64  `json:"expires_in"`
	RefreshToken     string `json:"refresh_token"`
	RefreshExpiresIn int64  `json:"refresh_expires_in"`
	Scope            string `json:"scope"`
}

// PasswordGrant exchanges a username/password pair for a token via the
// resource-owner-password-credentials grant (§4.5).
func (g *Gate) PasswordGrant(ctx context.Context, username, password string) (TokenResponse, error) {
	if err := g.ensureInitialized(ctx); err != nil {
		return TokenResponse{}, err
	}
	form := map[string]string{
		"grant_type": "password",
		"username":   username,
		"password":   password,
		"client_id":  g.clientID,
	}
	return g.tokenRequest(ctx, form)
}

// RefreshGrant exchanges a refresh token for a fresh access token (§4.5).
func (g *Gate) RefreshGrant(ctx context.Context, refreshToken string) (TokenResponse, error) {
	if err := g.ensureInitialized(ctx); err != nil {
		return TokenResponse{}, err
	}
	form := map[string]string{
		"grant_type":    "refresh_token",
		"refresh_token": refreshToken,
		"client_id":     g.clientID,
	}
	return g.tokenRequest(ctx, form)
}

// NeedsRefresh reports whether tok's access token should be proactively
// refreshed: fewer than 30s remain until expiry (§4.5).
func NeedsRefresh(tok TokenResponse, now time.Time) bool {
	return time.Unix(tok.Expires, 0).Sub(now) < 30*time.Second
}

func (g *Gate) tokenRequest(ctx context.Context, form map[string]string) (TokenResponse, error) {
	values := make(url.Values)
	for k, v := range form {
		values.Set(k, v)
	}
	if g.clientSecret != "" {
		values.Set("client_secret", g.clientSecret)
	}

	endpoint := g.oauth2Cfg.Endpoint.TokenURL
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(values.Encode()))
	if err != nil {
		return TokenResponse{}, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return TokenResponse{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return TokenResponse{}, errors.New("authgate: token endpoint rejected grant")
	}

	var raw rawProviderToken
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return TokenResponse{}, err
	}

	now := time.Now()
	out := TokenResponse{
		AccessToken:  raw.AccessToken,
		TokenType:    raw.TokenType,
		Expires:      now.Add(time.Duration(raw.ExpiresIn) * time.Second).Unix(),
		RefreshToken: raw.RefreshToken,
		Scope:        raw.Scope,
	}
	if raw.RefreshExpiresIn > 0 {
		out.RefreshExpires = now.Add(time.Duration(raw.RefreshExpiresIn) * time.Second).Unix()
	}
	return out, nil
}

// UserInfo is the normalized identity shape §4.5 derives from claims,
// falling back to the provider's userinfo endpoint.
type UserInfo struct {
	Username  string `json:"username"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
}

// ErrIncompleteUserInfo is returned when neither the verified claims nor
// the provider's userinfo endpoint yield the required fields (§4.5).
var ErrIncompleteUserInfo = errors.New("authgate: userinfo incomplete")

// UserInfoFor derives a UserInfo from claims using a field priority list.
// Only when claims lack a username or an email does it query the
// provider's userinfo endpoint, which then fills any field still empty.
func (g *Gate) UserInfoFor(ctx context.Context, token string, claims Claims) (UserInfo, error) {
	info := UserInfo{
		Username:  firstNonEmpty(claims.PreferredName, claims.Username, claims.Subject),
		FirstName: firstNonEmpty(claims.GivenName, claims.FirstName),
		LastName:  firstNonEmpty(claims.FamilyName, claims.LastName),
		Email:     claims.Email,
	}
	if info.Username != "" && info.Email != "" {
		return info, nil
	}

	if err := g.ensureInitialized(ctx); err != nil {
		return UserInfo{}, err
	}
	remote, err := g.provider.UserInfo(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token}))
	if err == nil {
		var rc Claims
		if err := remote.Claims(&rc); err == nil {
			info.Username = firstNonEmpty(info.Username, rc.PreferredName, rc.Username, rc.Subject)
			info.FirstName = firstNonEmpty(info.FirstName, rc.GivenName, rc.FirstName)
			info.LastName = firstNonEmpty(info.LastName, rc.FamilyName, rc.LastName)
			info.Email = firstNonEmpty(info.Email, rc.Email)
		}
	}

	if info.Username == "" || info.Email == "" {
		return UserInfo{}, ErrIncompleteUserInfo
	}
	return info, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
