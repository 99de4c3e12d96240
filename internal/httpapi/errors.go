// Package httpapi is the HTTP Surface (component I, §4.8): routing,
// streaming response bodies, status codes, and error mapping over the
// Search Facade, User-Data Ingestor, Auth Gate, and Chunk-Store Front-End.
package httpapi

import (
	"errors"
	"net/http"

	"github.com/freva-nextgen/databrowser/internal/authgate"
	"github.com/freva-nextgen/databrowser/internal/chunkstore"
	"github.com/freva-nextgen/databrowser/internal/ingest"
	"github.com/freva-nextgen/databrowser/internal/query"
	"github.com/freva-nextgen/databrowser/internal/search"
)

// apiError pairs an HTTP status with a user-visible message. It is the one
// shape every handler's error path converts into, per §7's propagation
// policy: validation errors are raised eagerly, upstream errors are
// remapped at the single I/O wrapper per dependency.
type apiError struct {
	status int
	msg    string
}

func (e *apiError) Error() string { return e.msg }

func newAPIError(status int, msg string) *apiError {
	return &apiError{status: status, msg: msg}
}

// classify maps a component error to the status table in §7/§4.3/§4.6.
func classify(err error) *apiError {
	var ae *apiError
	if errors.As(err, &ae) {
		return ae
	}

	var unknownFacet *query.UnknownFacetError
	switch {
	case errors.As(err, &unknownFacet):
		return newAPIError(http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, search.ErrUpstreamUnavailable):
		return newAPIError(http.StatusServiceUnavailable, "search backend unavailable")
	case errors.Is(err, search.ErrNoRows):
		return newAPIError(http.StatusNotFound, "no records matched the query")
	case errors.Is(err, search.ErrTooLarge):
		return newAPIError(http.StatusRequestEntityTooLarge, "result exceeds max_results")
	case errors.Is(err, ingest.ErrAllInvalid):
		return newAPIError(http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, authgate.ErrDiscoveryUnavailable):
		return newAPIError(http.StatusServiceUnavailable, "authentication provider unavailable")
	case errors.Is(err, authgate.ErrIncompleteUserInfo):
		return newAPIError(http.StatusNotFound, "userinfo incomplete")
	case errors.Is(err, chunkstore.ErrUUIDUnknown):
		return newAPIError(http.StatusNotFound, "unknown uuid")
	case errors.Is(err, chunkstore.ErrJobFailed):
		return newAPIError(http.StatusInternalServerError, err.Error())
	case errors.Is(err, chunkstore.ErrChunkTimeout):
		return newAPIError(http.StatusGatewayTimeout, "chunk materialization timed out")
	default:
		return newAPIError(http.StatusInternalServerError, "internal error")
	}
}

// writeError maps err to its status code and writes a plain-text body.
// Streaming handlers never call this after bytes have already been
// flushed (§7: partial data is flushed and the stream ends).
func writeError(w http.ResponseWriter, err error) {
	ae := classify(err)
	http.Error(w, ae.msg, ae.status)
}
