package catalog

import "strings"

// UniqKey names the per-record identifier a caller chooses: either the
// record's file path or its uri.
type UniqKey string

const (
	UniqKeyFile UniqKey = "file"
	UniqKeyURI  UniqKey = "uri"
)

// Record is a single document in the index: at minimum a unique file and
// uri, any subset of canonical facets, a time interval, and a bbox (§3).
type Record struct {
	File   string            `json:"file"`
	URI    string            `json:"uri"`
	Facets map[string]string `json:"facets,omitempty"`
	Time   *TimeRange        `json:"-"`
	BBox   *BBox             `json:"-"`
	User   string            `json:"user,omitempty"`
}

// FSTypeDefault is the fallback filesystem type applied when a record
// omits fs_type (§3). Open Question (i) in spec.md notes the original
// hard-codes this rather than deriving it from the uri; callers ingesting
// non-POSIX uris must set fs_type explicitly.
const FSTypeDefault = "posix"

// Get returns a canonical facet value from the record, honoring the file/
// fs_type/user/time special-cases that aren't stored in Facets.
func (r Record) Get(name string) (string, bool) {
	switch strings.ToLower(name) {
	case "file":
		return r.File, r.File != ""
	case "uri":
		return r.URI, r.URI != ""
	case "user":
		return r.User, r.User != ""
	case "fs_type":
		if v, ok := r.Facets["fs_type"]; ok && v != "" {
			return v, true
		}
		return FSTypeDefault, true
	default:
		v, ok := r.Facets[strings.ToLower(name)]
		return v, ok
	}
}

// UniqValue resolves the value of the requested uniq_key for this record.
func (r Record) UniqValue(key UniqKey) string {
	if key == UniqKeyFile {
		return r.File
	}
	return r.URI
}

// luceneSpecial lists the characters Lucene-style query syntax treats as
// active and that must be backslash-escaped before a value is embedded in
// a query clause: + - & | ! ( ) { } [ ] ^ ~ : / and the double quote (§4.2).
const luceneSpecial = `+-&|!(){}[]^~:/"`

// EscapeLucene backslash-escapes every Lucene special character in value.
// Feeding an already-escaped value back through this function is
// idempotent only when the value contains no special character at all:
// preceding backslashes are not inspected, so every special char, escaped
// or not, gains exactly one more leading backslash (§8).
func EscapeLucene(value string) string {
	var b strings.Builder
	b.Grow(len(value) + 8)
	for i := 0; i < len(value); i++ {
		c := value[i]
		if strings.IndexByte(luceneSpecial, c) >= 0 {
			b.WriteByte('\\')
		}
		b.WriteByte(c)
	}
	return b.String()
}
