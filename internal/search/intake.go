package search

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/freva-nextgen/databrowser/internal/catalog"
	"github.com/freva-nextgen/databrowser/internal/flavour"
	"github.com/freva-nextgen/databrowser/internal/query"
)

// IntakeAttribute is one column the intake catalogue's header describes.
type IntakeAttribute struct {
	ColumnName string `json:"column_name"`
}

// AggregationControl names the column intake aggregation merges over and
// the strategy used, mirroring esm-intake-catalog's convention.
type AggregationControl struct {
	VariableColumnName string              `json:"variable_column_name"`
	Aggregations       []IntakeAggregation `json:"aggregations"`
}

// IntakeAggregation is one aggregation rule.
type IntakeAggregation struct {
	Type          string `json:"type"`
	AttributeName string `json:"attribute_name"`
}

type intakeHeader struct {
	EsmcatVersion      string              `json:"esmcat_version"`
	Attributes         []IntakeAttribute   `json:"attributes"`
	AssetsColumnName   string              `json:"assets_column_name"`
	AggregationControl AggregationControl  `json:"aggregation_control"`
}

const esmcatVersion = "0.1.0"

// IntakeCatalogue implements §4.3 item 4: it streams a JSON object whose
// catalog_dict array holds one object per matching record, flushing after
// each backend page. uniqKey is forced to the caller's requested key for
// the assets column. maxResults=0 disables the 413 check.
func (f *Facade) IntakeCatalogue(ctx context.Context, in query.Input, uniqKey catalog.UniqKey, maxResults int, w io.Writer) error {
	compiled, err := query.Compile(in, f.translator)
	if err != nil {
		return err
	}

	countParams := baseParams(compiled)
	countParams.Set("rows", "0")
	countResp, err := f.client.selectDocs(ctx, compiled.Shard, countParams)
	if err != nil {
		return err
	}
	if countResp.Response.NumFound == 0 {
		return ErrNoRows
	}
	if maxResults > 0 && countResp.Response.NumFound > maxResults {
		return ErrTooLarge
	}

	bw := bufio.NewWriter(w)
	header := f.buildIntakeHeader(in.Flavour, uniqKey)
	headerJSON, err := json.Marshal(header)
	if err != nil {
		return err
	}
	// headerJSON ends with '}'; splice in the catalog_dict array that
	// follows so the whole response is one JSON object.
	if _, err := bw.Write(headerJSON[:len(headerJSON)-1]); err != nil {
		return err
	}
	if _, err := bw.WriteString(`,"catalog_dict":[`); err != nil {
		return err
	}

	validFacets := f.translator.ValidFacets(in.Flavour, in.Translate)
	cursor := "*"
	first := true
	for {
		params := baseParams(compiled)
		params.Set("rows", strconv.Itoa(batchSize))
		params.Set("sort", string(uniqKey)+" desc")
		params.Set("cursorMark", cursor)

		resp, err := f.client.selectDocs(ctx, compiled.Shard, params)
		if err != nil {
			return err
		}
		for _, doc := range resp.Response.Docs {
			if !first {
				bw.WriteByte(',')
			}
			first = false
			projected := projectRecord(doc, validFacets, uniqKey)
			data, err := json.Marshal(projected)
			if err != nil {
				return err
			}
			bw.Write(data)
		}
		if err := bw.Flush(); err != nil {
			return err
		}
		if flusher, ok := w.(http.Flusher); ok {
			flusher.Flush()
		}
		if resp.NextCursorMark == "" || resp.NextCursorMark == cursor {
			break
		}
		cursor = resp.NextCursorMark
	}

	if _, err := bw.WriteString("]}"); err != nil {
		return err
	}
	if err := bw.Flush(); err != nil {
		return err
	}

	f.record(in, compiled)
	return nil
}

// BuildIntakeHeader exposes the intake catalogue header shape for callers
// outside this package that wrap other payloads in the same envelope
// (the Chunk-Store Front-End's intake-mode `/load/{flavour}`, §4.6 item 3).
func (f *Facade) BuildIntakeHeader(flav flavour.Name, uniqKey catalog.UniqKey) any {
	return f.buildIntakeHeader(flav, uniqKey)
}

func (f *Facade) buildIntakeHeader(flav flavour.Name, uniqKey catalog.UniqKey) intakeHeader {
	var attrs []IntakeAttribute
	for _, canonical := range catalog.CanonicalFacets {
		if canonical == "time" || canonical == "bbox" {
			continue
		}
		attrs = append(attrs, IntakeAttribute{ColumnName: f.translator.Forward(flav, canonical)})
	}
	variableColumn := f.translator.Forward(flav, "variable")
	return intakeHeader{
		EsmcatVersion:    esmcatVersion,
		Attributes:       attrs,
		AssetsColumnName: string(uniqKey),
		AggregationControl: AggregationControl{
			VariableColumnName: variableColumn,
			Aggregations: []IntakeAggregation{
				{Type: "union", AttributeName: variableColumn},
			},
		},
	}
}

// projectRecord keeps only the non-null fields of doc that the flavour
// exposes, plus the uniq_key value, per §4.3 item 4.
func projectRecord(doc map[string]any, validFacets map[string]struct{}, uniqKey catalog.UniqKey) map[string]any {
	out := make(map[string]any, len(validFacets)+1)
	for name := range validFacets {
		if v, ok := doc[name]; ok && !isEmptyValue(v) {
			out[name] = v
		}
	}
	if v, ok := doc[string(uniqKey)]; ok {
		out[string(uniqKey)] = v
	}
	return out
}

func isEmptyValue(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(x) == ""
	default:
		return false
	}
}
