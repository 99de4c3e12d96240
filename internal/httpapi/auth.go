package httpapi

import (
	"net/http"

	"github.com/freva-nextgen/databrowser/internal/authgate"
)

// handleAuthStatus serves `GET /auth/v2/status` (§6): the caller's verified
// token claims, as proof the bearer token is live.
func (s *Server) handleAuthStatus(w http.ResponseWriter, r *http.Request) {
	claims, _ := authgate.ClaimsFromContext(r.Context())
	writeJSON(w, http.StatusOK, claims)
}

// handleUserInfo serves `GET /auth/v2/userinfo` (§4.5, §6).
func (s *Server) handleUserInfo(w http.ResponseWriter, r *http.Request) {
	claims, _ := authgate.ClaimsFromContext(r.Context())
	token := bearerTokenFromHeader(r)

	info, err := s.gate.UserInfoFor(r.Context(), token, claims)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// tokenRequestForm is the subset of the token endpoint's form body §4.5
// recognizes across both supported grant types.
type tokenRequestForm struct {
	GrantType    string
	Username     string
	Password     string
	RefreshToken string
}

// handleToken serves `POST /auth/v2/token` (§4.5, §6): forwards either a
// password or refresh_token grant to the upstream provider and normalizes
// the response.
func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeError(w, newAPIError(http.StatusUnprocessableEntity, "invalid form body"))
		return
	}
	form := tokenRequestForm{
		GrantType:    r.FormValue("grant_type"),
		Username:     r.FormValue("username"),
		Password:     r.FormValue("password"),
		RefreshToken: r.FormValue("refresh_token"),
	}

	var (
		tok authgate.TokenResponse
		err error
	)
	switch form.GrantType {
	case "password":
		tok, err = s.gate.PasswordGrant(r.Context(), form.Username, form.Password)
	case "refresh_token":
		tok, err = s.gate.RefreshGrant(r.Context(), form.RefreshToken)
	default:
		writeError(w, newAPIError(http.StatusUnprocessableEntity, "unsupported grant_type"))
		return
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tok)
}

// handleOIDCRedirect serves `GET /auth/v2/.well-known/openid-configuration`
// (§6): a 302 to the upstream provider's own discovery document.
func (s *Server) handleOIDCRedirect(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, s.gate.DiscoveryURL(), http.StatusFound)
}

func bearerTokenFromHeader(r *http.Request) string {
	const prefix = "Bearer "
	h := r.Header.Get("Authorization")
	if len(h) > len(prefix) {
		return h[len(prefix):]
	}
	return ""
}
