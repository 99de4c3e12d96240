// Package flavour implements the bidirectional mapping between the
// canonical ("freva") facet vocabulary and each interchangeable naming
// convention a client may query with (component A, §4.1).
package flavour

import (
	"sort"
	"strings"

	"github.com/freva-nextgen/databrowser/internal/catalog"
)

// Name identifies one of the interchangeable facet vocabularies.
type Name string

const (
	Freva    Name = "freva"
	CMIP6    Name = "cmip6"
	CMIP5    Name = "cmip5"
	Cordex   Name = "cordex"
	NextGEMS Name = "nextgems"
	User     Name = "user"
)

// All lists every recognized flavour, in the order the overview endpoint
// reports them.
var All = []Name{Freva, CMIP6, CMIP5, Cordex, NextGEMS, User}

// Valid reports whether n names a known flavour.
func Valid(n Name) bool {
	for _, f := range All {
		if f == n {
			return true
		}
	}
	return false
}

// Translator holds the per-flavour forward (canonical -> flavour-specific)
// and backward (flavour-specific -> canonical) tables. The zero value is
// not usable; construct with New.
type Translator struct {
	forward  map[Name]map[string]string
	backward map[Name]map[string]string
}

// New builds the default Translator with the five non-user tables (freva's
// is the canonical identity table); the user flavour reuses the canonical
// identity table too (§4.1).
func New() *Translator {
	t := &Translator{
		forward:  make(map[Name]map[string]string),
		backward: make(map[Name]map[string]string),
	}
	for name, table := range defaultTables {
		t.forward[name] = table
		back := make(map[string]string, len(table))
		for canonical, mapped := range table {
			back[mapped] = canonical
		}
		t.backward[name] = back
	}
	identity := make(map[string]string, len(catalog.CanonicalFacets))
	for _, f := range catalog.CanonicalFacets {
		identity[f] = f
	}
	t.forward[Freva] = identity
	t.backward[Freva] = identity
	t.forward[User] = identity
	t.backward[User] = identity
	return t
}

// Forward maps a canonical facet name to flavour's name for it. It is the
// identity function for unmapped names and for the user flavour.
func (t *Translator) Forward(f Name, canonical string) string {
	canonical = strings.ToLower(canonical)
	if table, ok := t.forward[f]; ok {
		if mapped, ok := table[canonical]; ok {
			return mapped
		}
	}
	return canonical
}

// Backward maps a flavour-specific name back to its canonical name. It is
// the identity function for unmapped names and for the user flavour.
func (t *Translator) Backward(f Name, flavourName string) string {
	flavourName = strings.ToLower(flavourName)
	if table, ok := t.backward[f]; ok {
		if canonical, ok := table[flavourName]; ok {
			return canonical
		}
	}
	return flavourName
}

// ValidFacets returns the set of query parameter names that are legal for
// f: the flavour's mapped names when translate is true, the canonical
// names the flavour exposes otherwise.
func (t *Translator) ValidFacets(f Name, translate bool) map[string]struct{} {
	table := t.forward[f]
	out := make(map[string]struct{}, len(table))
	for canonical, mapped := range table {
		if translate {
			out[mapped] = struct{}{}
		} else {
			out[canonical] = struct{}{}
		}
	}
	return out
}

// PrimaryFacets returns the primary canonical facets, mapped through f,
// including cordex's additional primary set (§4.1).
func (t *Translator) PrimaryFacets(f Name) []string {
	primaries := append([]string(nil), catalog.PrimaryFacets...)
	if f == Cordex {
		primaries = append(primaries, catalog.CordexPrimaryExtra...)
	}
	out := make([]string, 0, len(primaries))
	for _, p := range primaries {
		out = append(out, t.Forward(f, p))
	}
	sort.Strings(out)
	return out
}

// TranslateQuery renames the keys of q: canonical -> flavour-specific when
// backwards is false, flavour-specific -> canonical when backwards is
// true. Values are passed through unchanged.
func (t *Translator) TranslateQuery(f Name, q map[string][]string, backwards bool) map[string][]string {
	out := make(map[string][]string, len(q))
	for k, v := range q {
		var newKey string
		if backwards {
			newKey = t.Backward(f, k)
		} else {
			newKey = t.Forward(f, k)
		}
		out[newKey] = v
	}
	return out
}

// defaultTables are the per-flavour canonical -> flavour-specific name
// mappings, lifted field-for-field from the upstream Translator's
// `_cmip5_lookup`/`_cmip6_lookup`/`_cordex_lookup`/`_nextgems_lookup`
// properties (see DESIGN.md's component ledger, A/B, for the citation).
var defaultTables = map[Name]map[string]string{
	CMIP5: {
		"project":          "project",
		"product":          "product",
		"institute":        "institution_id",
		"model":            "model_id",
		"experiment":       "experiment",
		"time_frequency":   "time_frequency",
		"realm":            "realm",
		"variable":         "variable",
		"ensemble":         "member_id",
		"time_aggregation": "time_aggregation",
		"cmor_table":       "cmor_table",
		"dataset":          "dataset",
		"driving_model":    "driving_model",
		"format":           "format",
		"fs_type":          "fs_type",
		"grid_label":       "grid_label",
		"grid_id":          "grid_id",
		"level_type":       "level_type",
		"rcm_name":         "rcm_name",
		"rcm_version":      "rcm_version",
	},
	CMIP6: {
		"project":          "mip_era",
		"product":          "activity_id",
		"institute":        "institution_id",
		"model":            "source_id",
		"experiment":       "experiment_id",
		"time_frequency":   "frequency",
		"realm":            "realm",
		"variable":         "variable_id",
		"ensemble":         "member_id",
		"time_aggregation": "time_aggregation",
		"cmor_table":       "table_id",
		"dataset":          "dataset",
		"driving_model":    "driving_model",
		"format":           "format",
		"fs_type":          "fs_type",
		"grid_label":       "grid_label",
		"grid_id":          "grid_id",
		"level_type":       "level_type",
		"rcm_name":         "rcm_name",
		"rcm_version":      "rcm_version",
	},
	Cordex: {
		"project":          "project",
		"product":          "domain",
		"institute":        "institution",
		"model":            "model",
		"experiment":       "experiment",
		"time_frequency":   "time_frequency",
		"realm":            "realm",
		"variable":         "variable",
		"ensemble":         "ensemble",
		"time_aggregation": "time_aggregation",
		"cmor_table":       "cmor_table",
		"dataset":          "dataset",
		"driving_model":    "driving_model",
		"format":           "format",
		"fs_type":          "fs_type",
		"grid_label":       "grid_label",
		"grid_id":          "grid_id",
		"level_type":       "level_type",
		"rcm_name":         "rcm_name",
		"rcm_version":      "rcm_version",
	},
	NextGEMS: {
		"project":          "project",
		"product":          "experiment_id",
		"institute":        "institution_id",
		"model":            "source_id",
		"experiment":       "experiment",
		"time_frequency":   "time_frequency",
		"realm":            "realm",
		"variable":         "variable_id",
		"ensemble":         "member_id",
		"time_aggregation": "time_reduction",
		"cmor_table":       "cmor_table",
		"dataset":          "dataset",
		"driving_model":    "driving_model",
		"format":           "format",
		"fs_type":          "fs_type",
		"grid_label":       "grid_label",
		"grid_id":          "grid_id",
		"level_type":       "level_type",
		"rcm_name":         "rcm_name",
		"rcm_version":      "rcm_version",
	},
}
