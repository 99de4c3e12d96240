// Package catalog defines the shared vocabulary, record shape, and query
// primitives that every databrowser component builds on: facets, flavours,
// time ranges, and bounding boxes.
package catalog

import "strings"

// CanonicalFacets lists every facet name in the freva (authoritative)
// vocabulary, in the order attributes are reported by the intake catalogue
// header (§4.3 item 4).
var CanonicalFacets = []string{
	"project", "product", "institute", "model", "experiment",
	"time_frequency", "realm", "variable", "ensemble", "time_aggregation",
	"cmor_table", "grid_label", "grid_id", "dataset", "driving_model",
	"format", "fs_type", "level_type", "rcm_name", "rcm_version",
	"user", "time", "bbox",
}

// PrimaryFacets lists the canonical facets included in default facet
// listings and in the intake aggregation control. cordex additionally
// surfaces rcm_name, driving_model, and rcm_version as primary (§4.1).
var PrimaryFacets = []string{
	"project", "product", "institute", "model", "experiment",
	"time_frequency", "realm", "variable", "ensemble", "time_aggregation",
}

// CordexPrimaryExtra lists the additional facets cordex treats as primary.
var CordexPrimaryExtra = []string{"rcm_name", "driving_model", "rcm_version"}

var canonicalSet = func() map[string]struct{} {
	m := make(map[string]struct{}, len(CanonicalFacets))
	for _, f := range CanonicalFacets {
		m[f] = struct{}{}
	}
	return m
}()

// IsCanonical reports whether name is a known canonical facet.
func IsCanonical(name string) bool {
	_, ok := canonicalSet[strings.ToLower(name)]
	return ok
}

// IsPrimary reports whether name is a primary canonical facet, optionally
// widened by the cordex flavour's extra primary set.
func IsPrimary(name string, cordex bool) bool {
	name = strings.ToLower(name)
	for _, f := range PrimaryFacets {
		if f == name {
			return true
		}
	}
	if cordex {
		for _, f := range CordexPrimaryExtra {
			if f == name {
				return true
			}
		}
	}
	return false
}

// SplitNegation applies the negation rules of §3: a leading '!' or '-', or
// the case-insensitive prefix "not ", denotes a negated value. It returns
// the negation flag and the value with the marker stripped.
func SplitNegation(value string) (negated bool, clean string) {
	if len(value) == 0 {
		return false, value
	}
	switch value[0] {
	case '!', '-':
		return true, value[1:]
	}
	if len(value) > 4 && strings.EqualFold(value[:4], "not ") {
		return true, value[4:]
	}
	return false, value
}

// StripNotSuffix removes a trailing "_not_" marker from a facet name, used
// when a caller names the field itself as the negation carrier
// (e.g. "experiment_not_") rather than negating each value.
func StripNotSuffix(name string) (stripped string, negates bool) {
	const suffix = "_not_"
	if strings.HasSuffix(name, suffix) {
		return strings.TrimSuffix(name, suffix), true
	}
	return name, false
}

// Facet is a single (name, value) constraint taken from a request. Values
// within one name combine disjunctively; distinct names combine
// conjunctively (§3).
type Facet struct {
	Name   string
	Values []string
}
