package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/freva-nextgen/databrowser/internal/authgate"
)

// userDataAddRequest is the body `POST /databrowser/userdata` accepts (§6).
type userDataAddRequest struct {
	UserMetadata []map[string]any  `json:"user_metadata"`
	Facets       map[string]string `json:"facets"`
}

// handleUserDataAdd implements §4.4's add(user, records, extra_facets) over
// HTTP: 202 with a human-readable summary, 422 when every record is
// invalid, 503/500 when the duplicate lookup against the index fails.
// Index and document-store write failures are logged by the ingestor and
// do not fail the request.
func (s *Server) handleUserDataAdd(w http.ResponseWriter, r *http.Request) {
	var req userDataAddRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, newAPIError(http.StatusUnprocessableEntity, "invalid request body"))
		return
	}

	user := usernameFromContext(r)
	summary, err := s.ingestor.Add(r.Context(), user, req.UserMetadata, req.Facets)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, summary)
}

// handleUserDataDelete implements §4.4's delete(user, search_keys): the
// caller's own user scope is forced server-side regardless of what the
// request names (§4.4).
func (s *Server) handleUserDataDelete(w http.ResponseWriter, r *http.Request) {
	keys := make(map[string]string, len(r.URL.Query()))
	for k, v := range r.URL.Query() {
		if len(v) > 0 {
			keys[k] = v[0]
		}
	}

	user := usernameFromContext(r)
	n, err := s.ingestor.Delete(r.Context(), user, keys)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"deleted": n})
}

// usernameFromContext extracts the verified caller's identity from the
// claims the Auth Gate's middleware attached (§4.5).
func usernameFromContext(r *http.Request) string {
	claims, ok := authgate.ClaimsFromContext(r.Context())
	if !ok {
		return ""
	}
	if claims.PreferredName != "" {
		return claims.PreferredName
	}
	if claims.Username != "" {
		return claims.Username
	}
	return claims.Subject
}
