package catalog

import (
	"fmt"
	"strconv"
	"strings"
)

// BBoxSelect names the spatial selector a bbox predicate uses to relate a
// query envelope to a record's stored envelope. It mirrors TimeSelect
// (§4.2): the same three selectors map identically onto a spatial
// predicate.
type BBoxSelect = TimeSelect

// BBox is an axis-aligned rectangle on the globe: west<=east in [-180,180]
// and south<=north in [-90,90] (§3).
type BBox struct {
	West  float64
	East  float64
	North float64
	South float64
}

// Validate enforces the range invariants of §3.
func (b BBox) Validate() error {
	if b.West > b.East {
		return fmt.Errorf("bbox west %.4f is east of east %.4f", b.West, b.East)
	}
	if b.South > b.North {
		return fmt.Errorf("bbox south %.4f is north of north %.4f", b.South, b.North)
	}
	if b.West < -180 || b.East > 180 {
		return fmt.Errorf("bbox longitude out of [-180,180]: west=%.4f east=%.4f", b.West, b.East)
	}
	if b.South < -90 || b.North > 90 {
		return fmt.Errorf("bbox latitude out of [-90,90]: south=%.4f north=%.4f", b.South, b.North)
	}
	return nil
}

// ParseBBoxExpr parses the "min_lon,max_lon by min_lat,max_lat" syntax
// (§4.2) and validates the result.
func ParseBBoxExpr(expr string) (BBox, error) {
	expr = strings.TrimSpace(expr)
	parts := strings.SplitN(expr, "by", 2)
	if len(parts) != 2 {
		return BBox{}, fmt.Errorf("bbox expression %q: expected \"min_lon,max_lon by min_lat,max_lat\"", expr)
	}
	west, east, err := parsePair(parts[0])
	if err != nil {
		return BBox{}, fmt.Errorf("bbox longitude pair: %w", err)
	}
	south, north, err := parsePair(parts[1])
	if err != nil {
		return BBox{}, fmt.Errorf("bbox latitude pair: %w", err)
	}
	b := BBox{West: west, East: east, North: north, South: south}
	if err := b.Validate(); err != nil {
		return BBox{}, err
	}
	return b, nil
}

func parsePair(s string) (a, b float64, err error) {
	fields := strings.SplitN(strings.TrimSpace(s), ",", 2)
	if len(fields) != 2 {
		return 0, 0, fmt.Errorf("expected \"a,b\", got %q", s)
	}
	a, err = strconv.ParseFloat(strings.TrimSpace(fields[0]), 64)
	if err != nil {
		return 0, 0, err
	}
	b, err = strconv.ParseFloat(strings.TrimSpace(fields[1]), 64)
	if err != nil {
		return 0, 0, err
	}
	return a, b, nil
}

// Intersects reports whether the two envelopes overlap.
func (b BBox) Intersects(other BBox) bool {
	return b.West <= other.East && other.West <= b.East &&
		b.South <= other.North && other.South <= b.North
}

// Within reports whether b is wholly contained in other.
func (b BBox) Within(other BBox) bool {
	return b.West >= other.West && b.East <= other.East &&
		b.South >= other.South && b.North <= other.North
}

// Contains reports whether b wholly contains other.
func (b BBox) Contains(other BBox) bool {
	return other.Within(b)
}

// Matches evaluates the record envelope b against the query envelope query
// under the given selector.
func (b BBox) Matches(query BBox, sel BBoxSelect) bool {
	switch sel {
	case TimeStrict:
		return b.Within(query)
	case TimeFile:
		return b.Contains(query)
	default:
		return b.Intersects(query)
	}
}
