package httpapi

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/freva-nextgen/databrowser/internal/catalog"
	"github.com/freva-nextgen/databrowser/internal/flavour"
	"github.com/freva-nextgen/databrowser/internal/query"
)

// reservedParams names the query parameters §6's route table treats as
// control parameters rather than facet constraints; everything else on the
// request becomes a facet name/value (§4.2).
var reservedParams = map[string]struct{}{
	"time": {}, "time_select": {}, "bbox": {}, "bbox_select": {},
	"start": {}, "multi-version": {}, "translate": {}, "facets": {},
	"max-results": {}, "catalogue-type": {},
}

// queryInput builds a query.Input from a request's flavour path segment and
// its raw query string, per §4.2's Input shape.
func queryInput(r *http.Request, flav flavour.Name) query.Input {
	values := r.URL.Query()
	facets := make(map[string][]string)
	for k, v := range values {
		if _, reserved := reservedParams[k]; reserved {
			continue
		}
		facets[k] = v
	}

	return query.Input{
		Flavour:      flav,
		Translate:    boolParam(values, "translate", true),
		Facets:       facets,
		Time:         values.Get("time"),
		TimeSelect:   catalog.TimeSelect(values.Get("time_select")),
		BBox:         values.Get("bbox"),
		BBoxSelect:   catalog.BBoxSelect(values.Get("bbox_select")),
		MultiVersion: boolParam(values, "multi-version", false),
	}
}

func boolParam(v map[string][]string, key string, def bool) bool {
	vals, ok := v[key]
	if !ok || len(vals) == 0 {
		return def
	}
	b, err := strconv.ParseBool(vals[0])
	if err != nil {
		return def
	}
	return b
}

func intParam(v map[string][]string, key string, def int) int {
	vals, ok := v[key]
	if !ok || len(vals) == 0 {
		return def
	}
	n, err := strconv.Atoi(vals[0])
	if err != nil {
		return def
	}
	return n
}

// uniqKeyParam parses the {uniq_key} path segment, defaulting to file.
func uniqKeyParam(s string) catalog.UniqKey {
	if s == string(catalog.UniqKeyURI) {
		return catalog.UniqKeyURI
	}
	return catalog.UniqKeyFile
}

// uuidFromPath strips the ".zarr" suffix net/http's whole-segment wildcard
// can't express, recovering the bare job uuid from the routed path segment.
func uuidFromPath(r *http.Request) string {
	return strings.TrimSuffix(r.PathValue("uuidDotZarr"), ".zarr")
}

// flavourParam parses and validates the {flavour} path segment.
func flavourParam(s string) (flavour.Name, error) {
	f := flavour.Name(s)
	if !flavour.Valid(f) {
		return "", newAPIError(http.StatusUnprocessableEntity, "unknown flavour "+s)
	}
	return f, nil
}
