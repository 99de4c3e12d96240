package catalog

import (
	"fmt"
	"strings"
	"time"
)

// TimeSelect names the selector a time predicate uses to relate a query
// interval to a record's stored interval (§4.2).
type TimeSelect string

const (
	// TimeStrict requires the record interval to be wholly contained in the
	// query interval ("Within").
	TimeStrict TimeSelect = "strict"
	// TimeFlexible requires only that the intervals overlap ("Intersects").
	TimeFlexible TimeSelect = "flexible"
	// TimeFile requires the query interval to be contained in the record
	// interval ("Contains").
	TimeFile TimeSelect = "file"
)

// defaultTimeLayout is the ISO-8601 layout records and queries are parsed
// and rendered with.
const defaultTimeLayout = "2006-01-02T15:04:05"

var (
	// timeLeftDefault and timeRightDefault bound an open-ended time
	// expression's missing endpoint (§4.2).
	timeLeftDefault  = mustParseTime("0001-01-01T00:00:00")
	timeRightDefault = mustParseTime("9999-12-31T23:59:59")
)

func mustParseTime(s string) time.Time {
	t, err := time.Parse(defaultTimeLayout, s)
	if err != nil {
		panic(err)
	}
	return t
}

// TimeRange is a closed interval [Start, End], both ends inclusive,
// describing either a record's temporal coverage or a query's requested
// window.
type TimeRange struct {
	Start time.Time
	End   time.Time
}

// ParseTimeExpr parses an ISO-8601 instant or the "<start> to <end>" syntax
// with either endpoint optional (§4.2). An empty expression yields the
// all-time default range.
func ParseTimeExpr(expr string) (TimeRange, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return TimeRange{Start: timeLeftDefault, End: timeRightDefault}, nil
	}
	// Pad with spaces so "<start> to" and "to <end>" still contain " to ".
	padded := " " + expr + " "
	if idx := strings.Index(strings.ToLower(padded), " to "); idx >= 0 {
		left := strings.TrimSpace(padded[:idx])
		right := strings.TrimSpace(padded[idx+4:])
		start := timeLeftDefault
		end := timeRightDefault
		var err error
		if left != "" {
			if start, err = parseInstant(left); err != nil {
				return TimeRange{}, fmt.Errorf("parse time range start %q: %w", left, err)
			}
		}
		if right != "" {
			if end, err = parseInstant(right); err != nil {
				return TimeRange{}, fmt.Errorf("parse time range end %q: %w", right, err)
			}
		}
		return TimeRange{Start: start, End: end}, nil
	}
	t, err := parseInstant(expr)
	if err != nil {
		return TimeRange{}, fmt.Errorf("parse time instant %q: %w", expr, err)
	}
	return TimeRange{Start: t, End: t}, nil
}

// parseInstant accepts a handful of ISO-8601 granularities: a bare year,
// year-month, date, or full timestamp.
func parseInstant(s string) (time.Time, error) {
	layouts := []string{
		defaultTimeLayout,
		"2006-01-02T15:04:05Z07:00",
		"2006-01-02",
		"2006-01",
		"2006",
	}
	var lastErr error
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		} else {
			lastErr = err
		}
	}
	return time.Time{}, lastErr
}

// Intersects reports whether r and other share any instant.
func (r TimeRange) Intersects(other TimeRange) bool {
	return !r.Start.After(other.End) && !other.Start.After(r.End)
}

// Within reports whether r is wholly contained in other (strict selector:
// the record interval, r, contained in the query interval, other).
func (r TimeRange) Within(other TimeRange) bool {
	return !r.Start.Before(other.Start) && !r.End.After(other.End)
}

// Contains reports whether r wholly contains other (file selector: the
// query interval, other, contained in the record interval, r).
func (r TimeRange) Contains(other TimeRange) bool {
	return other.Within(r)
}

// Matches evaluates the record interval r against the query interval query
// under the given selector, per the invariant flexible ⊇ strict ⊇ ∅ and
// file ⊇ ∅ (§8).
func (r TimeRange) Matches(query TimeRange, sel TimeSelect) bool {
	switch sel {
	case TimeStrict:
		return r.Within(query)
	case TimeFile:
		return r.Contains(query)
	default:
		return r.Intersects(query)
	}
}

// String renders the range using the ISO-8601 layout records are stored
// with.
func (r TimeRange) String() string {
	return r.Start.Format(defaultTimeLayout) + " to " + r.End.Format(defaultTimeLayout)
}
