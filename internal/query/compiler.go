// Package query compiles a facet/time/bbox query map into the Lucene-style
// request the external search backend expects (component B, §4.2).
package query

import (
	"fmt"
	"sort"
	"strings"

	"github.com/freva-nextgen/databrowser/internal/catalog"
	"github.com/freva-nextgen/databrowser/internal/flavour"
)

// Shard names the index shard a compiled query targets.
type Shard string

const (
	ShardLatest     Shard = "latest"
	ShardHistorical Shard = "historical"
)

// Input is the raw request a caller wants compiled.
type Input struct {
	Flavour      flavour.Name
	Translate    bool
	Facets       map[string][]string
	Time         string
	TimeSelect   catalog.TimeSelect
	BBox         string
	BBoxSelect   catalog.BBoxSelect
	MultiVersion bool
}

// Compiled is the result of compiling an Input: the shard to target and the
// Solr-style request parameters.
type Compiled struct {
	Shard  Shard
	Params map[string][]string
}

// UnknownFacetError is returned when a query names a facet the flavour
// doesn't expose.
type UnknownFacetError struct {
	Facet string
}

func (e *UnknownFacetError) Error() string {
	return fmt.Sprintf("unknown facet %q", e.Facet)
}

// Compile translates in against tr, validates every facet name, and builds
// the fq clauses and target shard described in §4.2.
func Compile(in Input, tr *flavour.Translator) (Compiled, error) {
	valid := tr.ValidFacets(in.Flavour, in.Translate)
	var fq []string

	facetNames := make([]string, 0, len(in.Facets))
	for name := range in.Facets {
		facetNames = append(facetNames, name)
	}
	sort.Strings(facetNames)

	for _, rawName := range facetNames {
		name, forcedNeg := catalog.StripNotSuffix(rawName)
		nativeName := name
		if in.Translate {
			if _, ok := valid[name]; !ok {
				// name wasn't given in flavour-native form; treat it as
				// canonical and translate forward to the native field.
				nativeName = tr.Forward(in.Flavour, name)
			}
		}
		if _, ok := valid[nativeName]; !ok {
			return Compiled{}, &UnknownFacetError{Facet: rawName}
		}
		clause := compileFacetClause(nativeName, in.Facets[rawName], forcedNeg)
		if clause != "" {
			fq = append(fq, clause)
		}
	}

	if in.Time != "" {
		timeRange, err := catalog.ParseTimeExpr(in.Time)
		if err != nil {
			return Compiled{}, err
		}
		sel := in.TimeSelect
		if sel == "" {
			sel = catalog.TimeFlexible
		}
		fq = append(fq, timeClause(timeRange, sel))
	}

	if in.BBox != "" {
		b, err := catalog.ParseBBoxExpr(in.BBox)
		if err != nil {
			return Compiled{}, err
		}
		sel := in.BBoxSelect
		if sel == "" {
			sel = catalog.TimeFlexible
		}
		fq = append(fq, bboxClause(b, sel))
	}

	if in.Flavour == flavour.User {
		fq = append(fq, "user:*")
	} else {
		fq = append(fq, "-user:*")
	}

	shard := ShardLatest
	if in.MultiVersion {
		shard = ShardHistorical
	}

	return Compiled{
		Shard: shard,
		Params: map[string][]string{
			"q":  {"*:*"},
			"fq": fq,
		},
	}, nil
}

// compileFacetClause partitions values into positives/negatives per §3's
// negation rules, Lucene-escapes each, and emits the OR-joined clause(s).
// forcedNeg inverts every value's polarity, for facet names carrying a
// "_not_" suffix.
func compileFacetClause(name string, values []string, forcedNeg bool) string {
	var positives, negatives []string
	for _, v := range values {
		neg, clean := catalog.SplitNegation(v)
		if forcedNeg {
			neg = !neg
		}
		escaped := catalog.EscapeLucene(strings.ToLower(clean))
		if neg {
			negatives = append(negatives, escaped)
		} else {
			positives = append(positives, escaped)
		}
	}

	var parts []string
	if len(positives) > 0 {
		parts = append(parts, fmt.Sprintf("%s:(%s)", name, strings.Join(positives, " OR ")))
	}
	if len(negatives) > 0 {
		parts = append(parts, fmt.Sprintf("-%s:(%s)", name, strings.Join(negatives, " OR ")))
	}
	return strings.Join(parts, " AND ")
}

// timeClause renders a field-op predicate against the record's stored time
// interval for the given selector.
func timeClause(tr catalog.TimeRange, sel catalog.TimeSelect) string {
	op := selectOp(sel)
	return fmt.Sprintf("time:%s(%s TO %s)", op, tr.Start.Format("2006-01-02T15:04:05"), tr.End.Format("2006-01-02T15:04:05"))
}

// bboxClause renders an ENVELOPE(west,east,north,south) predicate against
// the record's stored spatial envelope for the given selector, matching
// the backend's RPT spatial query syntax.
func bboxClause(b catalog.BBox, sel catalog.BBoxSelect) string {
	op := selectOp(sel)
	return fmt.Sprintf(`bbox:"%s(ENVELOPE(%g,%g,%g,%g))"`, op, b.West, b.East, b.North, b.South)
}

func selectOp(sel catalog.TimeSelect) string {
	switch sel {
	case catalog.TimeStrict:
		return "Within"
	case catalog.TimeFile:
		return "Contains"
	default:
		return "Intersects"
	}
}
