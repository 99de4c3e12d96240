package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/freva-nextgen/databrowser/internal/cache"
)

// zarrStreamDisabled is written whenever a chunk-store route is hit but the
// front-end wasn't wired in (API_SERVICES doesn't list zarr-stream, §4.6).
const zarrStreamDisabled = "zarr-stream service not enabled"

func (s *Server) requireChunkStore(w http.ResponseWriter) bool {
	if s.chunks == nil {
		http.Error(w, zarrStreamDisabled, http.StatusServiceUnavailable)
		return false
	}
	return true
}

// handleLoad serves `GET /databrowser/load/{flavour}` (§4.6 items 1-3): it
// enumerates matching uris, publishes a materialization job per uri, and
// streams back the proxy zarr URLs (or the intake-wrapped envelope).
func (s *Server) handleLoad(w http.ResponseWriter, r *http.Request) {
	if !s.requireChunkStore(w) {
		return
	}
	flav, err := flavourParam(r.PathValue("flavour"))
	if err != nil {
		writeError(w, err)
		return
	}
	in := queryInput(r, flav)
	catalogueType := r.URL.Query().Get("catalogue-type")

	if catalogueType == "intake" {
		w.Header().Set("Content-Type", "application/json")
	} else {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	}
	t := &streamTracker{ResponseWriter: w}
	if err := s.chunks.Load(r.Context(), in, catalogueType, t); err != nil {
		writeStreamError(t, err)
	}
}

// handleZMetadata serves `GET .../zarr/{uuid}.zarr/.zmetadata` (§4.6).
func (s *Server) handleZMetadata(w http.ResponseWriter, r *http.Request) {
	if !s.requireChunkStore(w) {
		return
	}
	data, err := s.chunks.ZMetadata(r.Context(), uuidFromPath(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeRawJSON(w, data)
}

// handleZGroup serves `GET .../zarr/{uuid}.zarr/.zgroup` (§4.6).
func (s *Server) handleZGroup(w http.ResponseWriter, r *http.Request) {
	if !s.requireChunkStore(w) {
		return
	}
	data, err := s.chunks.ZGroup(r.Context(), uuidFromPath(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeRawJSON(w, data)
}

// handleZAttrs serves `GET .../zarr/{uuid}.zarr/.zattrs` (§4.6).
func (s *Server) handleZAttrs(w http.ResponseWriter, r *http.Request) {
	if !s.requireChunkStore(w) {
		return
	}
	data, err := s.chunks.ZAttrs(r.Context(), uuidFromPath(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeRawJSON(w, data)
}

// handleVariableZArray serves `GET .../zarr/{uuid}.zarr/{var}/.zarray`.
func (s *Server) handleVariableZArray(w http.ResponseWriter, r *http.Request) {
	if !s.requireChunkStore(w) {
		return
	}
	data, err := s.chunks.VariableZArray(r.Context(), uuidFromPath(r), r.PathValue("var"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeRawJSON(w, data)
}

// handleVariableZAttrs serves `GET .../zarr/{uuid}.zarr/{var}/.zattrs`.
func (s *Server) handleVariableZAttrs(w http.ResponseWriter, r *http.Request) {
	if !s.requireChunkStore(w) {
		return
	}
	data, err := s.chunks.VariableZAttrs(r.Context(), uuidFromPath(r), r.PathValue("var"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeRawJSON(w, data)
}

// handleChunk serves `GET .../zarr/{uuid}.zarr/{var}/{chunk_id}` (§4.6): the
// more specific ".zarray"/".zattrs" routes above take those two names, and
// every other last segment reaches this handler and is passed on as the
// chunk id without being validated here.
func (s *Server) handleChunk(w http.ResponseWriter, r *http.Request) {
	if !s.requireChunkStore(w) {
		return
	}
	data, err := s.chunks.Chunk(r.Context(), uuidFromPath(r), r.PathValue("var"), r.PathValue("chunk"))
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Write(data)
}

// handleZarrStatus serves `GET .../zarr/{uuid}.zarr/status?timeout=<s>`
// (§4.6): 200 on OK, 500 with reason on FAILED, 404 on an unknown uuid.
func (s *Server) handleZarrStatus(w http.ResponseWriter, r *http.Request) {
	if !s.requireChunkStore(w) {
		return
	}
	timeout := 20 * time.Second
	if raw := r.URL.Query().Get("timeout"); raw != "" {
		if secs, err := strconv.Atoi(raw); err == nil && secs > 0 {
			timeout = time.Duration(secs) * time.Second
		}
	}

	status, err := s.chunks.Status(r.Context(), uuidFromPath(r), timeout)
	if err != nil {
		writeError(w, err)
		return
	}
	if status.State == cache.StateFailed {
		writeError(w, newAPIError(http.StatusInternalServerError, status.Reason))
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func writeRawJSON(w http.ResponseWriter, data []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.Write(data)
}
