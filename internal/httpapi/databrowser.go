package httpapi

import (
	"encoding/json"
	"net/http"
)

// handleOverview serves `GET /databrowser/overview` (§6): the static
// flavour/facet listing, plus the supplemented is_user_flavour detail
// (SPEC_FULL §12).
func (s *Server) handleOverview(w http.ResponseWriter, r *http.Request) {
	type overviewEntry struct {
		Flavour       string   `json:"flavour"`
		Facets        []string `json:"facets"`
		IsUserFlavour bool     `json:"is_user_flavour"`
	}
	overview := s.facade.Overview()
	out := make([]overviewEntry, 0, len(overview))
	for _, o := range overview {
		out = append(out, overviewEntry{
			Flavour:       string(o.Flavour),
			Facets:        o.Facets,
			IsUserFlavour: string(o.Flavour) == "user",
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"flavours": out})
}

// handleDataSearch serves `GET /databrowser/data-search/{flavour}/{uniq_key}`
// (§4.3 item 3, §6): a flushed text/plain stream of uniq_key values.
func (s *Server) handleDataSearch(w http.ResponseWriter, r *http.Request) {
	flav, err := flavourParam(r.PathValue("flavour"))
	if err != nil {
		writeError(w, err)
		return
	}
	uniqKey := uniqKeyParam(r.PathValue("uniq_key"))
	in := queryInput(r, flav)

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	t := &streamTracker{ResponseWriter: w}
	if err := s.facade.DataSearch(r.Context(), in, uniqKey, t); err != nil {
		writeStreamError(t, err)
	}
}

// handleMetadataSearch serves `GET /databrowser/metadata-search/...` (§4.3
// item 2, §6): facet counts plus a capped set of search results.
func (s *Server) handleMetadataSearch(w http.ResponseWriter, r *http.Request) {
	flav, err := flavourParam(r.PathValue("flavour"))
	if err != nil {
		writeError(w, err)
		return
	}
	in := queryInput(r, flav)
	facets := r.URL.Query()["facets"]

	result, err := s.facade.MetadataSearch(r.Context(), in, facets, 10)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleExtendedSearch serves `GET /databrowser/extended-search/...` (§6):
// the same operation as metadata-search with a caller-supplied max-results.
func (s *Server) handleExtendedSearch(w http.ResponseWriter, r *http.Request) {
	flav, err := flavourParam(r.PathValue("flavour"))
	if err != nil {
		writeError(w, err)
		return
	}
	in := queryInput(r, flav)
	facets := r.URL.Query()["facets"]
	maxResults := intParam(r.URL.Query(), "max-results", 150)

	result, err := s.facade.MetadataSearch(r.Context(), in, facets, maxResults)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleIntakeCatalogue serves `GET /databrowser/intake-catalogue/...`
// (§4.3 item 4, §6): a streamed esm-intake-catalog manifest, attachment
// disposition, 404 on zero rows, 413 when it exceeds max-results.
func (s *Server) handleIntakeCatalogue(w http.ResponseWriter, r *http.Request) {
	flav, err := flavourParam(r.PathValue("flavour"))
	if err != nil {
		writeError(w, err)
		return
	}
	uniqKey := uniqKeyParam(r.PathValue("uniq_key"))
	in := queryInput(r, flav)
	maxResults := intParam(r.URL.Query(), "max-results", 0)

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", `attachment; filename="intake-catalogue.json"`)
	t := &streamTracker{ResponseWriter: w}
	if err := s.facade.IntakeCatalogue(r.Context(), in, uniqKey, maxResults, t); err != nil {
		writeStreamError(t, err)
	}
}

// handleCount serves the supplemented `GET /databrowser/count/...` route
// (SPEC_FULL §12; §4.3 item 5's count(detail) operation).
func (s *Server) handleCount(w http.ResponseWriter, r *http.Request) {
	flav, err := flavourParam(r.PathValue("flavour"))
	if err != nil {
		writeError(w, err)
		return
	}
	in := queryInput(r, flav)
	detail := boolParam(r.URL.Query(), "detail", false)

	result, err := s.facade.Count(r.Context(), in, detail)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
