package httpapi

import (
	"net/http"

	"github.com/freva-nextgen/databrowser/internal/authgate"
	"github.com/freva-nextgen/databrowser/internal/chunkstore"
	"github.com/freva-nextgen/databrowser/internal/flavour"
	"github.com/freva-nextgen/databrowser/internal/ingest"
	"github.com/freva-nextgen/databrowser/internal/search"
)

// Server wires the databrowser's five components (C, E, F, G plus the
// flavour translator) into a single http.Handler (§6, §4.8).
type Server struct {
	facade     *search.Facade
	translator *flavour.Translator
	ingestor   *ingest.Ingestor
	gate       *authgate.Gate
	chunks     *chunkstore.Store // nil when the zarr-stream service isn't enabled (§4.6)
}

// New builds a Server. chunks may be nil when API_SERVICES doesn't list
// zarr-stream, in which case /load and /zarr routes answer 503.
func New(facade *search.Facade, translator *flavour.Translator, ingestor *ingest.Ingestor, gate *authgate.Gate, chunks *chunkstore.Store) *Server {
	return &Server{facade: facade, translator: translator, ingestor: ingestor, gate: gate, chunks: chunks}
}

// Handler builds the routed, middleware-wrapped http.Handler this service
// serves (§6's route table, prefixed `/api/freva-nextgen` unless noted).
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", healthHandler)
	mux.HandleFunc("GET /", healthHandler)

	const p = "/api/freva-nextgen/databrowser"
	mux.HandleFunc("GET "+p+"/overview", s.handleOverview)
	mux.HandleFunc("GET "+p+"/data-search/{flavour}/{uniq_key}", s.handleDataSearch)
	mux.HandleFunc("GET "+p+"/metadata-search/{flavour}/{uniq_key}", s.handleMetadataSearch)
	mux.HandleFunc("GET "+p+"/extended-search/{flavour}/{uniq_key}", s.handleExtendedSearch)
	mux.HandleFunc("GET "+p+"/intake-catalogue/{flavour}/{uniq_key}", s.handleIntakeCatalogue)
	mux.HandleFunc("GET "+p+"/count/{flavour}/{uniq_key}", s.handleCount)
	mux.HandleFunc("GET "+p+"/load/{flavour}", s.requireAuth(s.handleLoad))
	mux.HandleFunc("POST "+p+"/userdata", s.requireAuth(s.handleUserDataAdd))
	mux.HandleFunc("DELETE "+p+"/userdata", s.requireAuth(s.handleUserDataDelete))

	// The {uuidDotZarr} wildcard matches the whole "<uuid>.zarr" path
	// segment; net/http's routing patterns only wildcard entire segments,
	// so handlers strip the ".zarr" suffix themselves (see uuidFromPath).
	const dp = "/api/freva-nextgen/data-portal"
	mux.HandleFunc("GET "+dp+"/zarr/{uuidDotZarr}/.zmetadata", s.requireAuth(s.handleZMetadata))
	mux.HandleFunc("GET "+dp+"/zarr/{uuidDotZarr}/.zgroup", s.requireAuth(s.handleZGroup))
	mux.HandleFunc("GET "+dp+"/zarr/{uuidDotZarr}/.zattrs", s.requireAuth(s.handleZAttrs))
	mux.HandleFunc("GET "+dp+"/zarr/{uuidDotZarr}/status", s.requireAuth(s.handleZarrStatus))
	mux.HandleFunc("GET "+dp+"/zarr/{uuidDotZarr}/{var}/.zarray", s.requireAuth(s.handleVariableZArray))
	mux.HandleFunc("GET "+dp+"/zarr/{uuidDotZarr}/{var}/.zattrs", s.requireAuth(s.handleVariableZAttrs))
	mux.HandleFunc("GET "+dp+"/zarr/{uuidDotZarr}/{var}/{chunk}", s.requireAuth(s.handleChunk))

	const ap = "/api/freva-nextgen/auth/v2"
	mux.HandleFunc("GET "+ap+"/status", s.requireAuth(s.handleAuthStatus))
	mux.HandleFunc("GET "+ap+"/userinfo", s.requireAuth(s.handleUserInfo))
	mux.HandleFunc("POST "+ap+"/token", s.handleToken)
	mux.HandleFunc("GET "+ap+"/.well-known/openid-configuration", s.handleOIDCRedirect)

	return recoverPanics(logRequests(mux))
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.Write([]byte("ok\n"))
}

// requireAuth wraps h with the Auth Gate's bearer-token middleware, per
// the route table's Auth column.
func (s *Server) requireAuth(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.gate.Middleware(h).ServeHTTP(w, r)
	}
}
