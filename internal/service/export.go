package service

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/ledgerline/ledgerlog/internal/model"
)

// MaxExportRows caps one export request.
const MaxExportRows = 50000

type ExportType string

const (
	ExportAPI        ExportType = "api"
	ExportErrors     ExportType = "errors"
	ExportActivities ExportType = "activities"
)

func ParseExportType(raw string) (ExportType, bool) {
	switch t := ExportType(strings.ToLower(raw)); t {
	case ExportAPI, ExportErrors, ExportActivities:
		return t, true
	}
	return "", false
}

// CollectExport pages through every record of type t inside r, oldest first.
func (s *LoggingService) CollectExport(ctx context.Context, t ExportType, r model.TimeRange) ([]any, error) {
	var out []any
	page := model.Page{Limit: model.MaxPageLimit, SortField: "timestamp", SortDesc: false}
	for len(out) < MaxExportRows {
		var (
			got int
			err error
		)
		switch t {
		case ExportAPI:
			var recs []model.APILog
			recs, err = s.store.FindAPILogs(ctx, model.APILogFilter{TimeRange: r}, page)
			for i := range recs {
				out = append(out, recs[i])
			}
			got = len(recs)
		case ExportErrors:
			var recs []model.ErrorLog
			recs, err = s.store.FindErrorLogs(ctx, model.ErrorLogFilter{TimeRange: r}, page)
			for i := range recs {
				out = append(out, recs[i])
			}
			got = len(recs)
		case ExportActivities:
			var recs []model.UserActivity
			recs, err = s.store.FindActivities(ctx, model.ActivityFilter{TimeRange: r}, page)
			for i := range recs {
				out = append(out, recs[i])
			}
			got = len(recs)
		default:
			return nil, fmt.Errorf("unknown export type %q", t)
		}
		if err != nil {
			return nil, err
		}
		if got < page.Limit {
			break
		}
		page.Skip += got
	}
	if len(out) > MaxExportRows {
		out = out[:MaxExportRows]
	}
	return out, nil
}

type field struct {
	key   string
	value json.RawMessage
}

// orderedFields decodes one JSON object keeping its key order.
func orderedFields(raw []byte) ([]field, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, fmt.Errorf("expected object, got %v", tok)
	}
	var fields []field
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("expected key, got %v", tok)
		}
		var v json.RawMessage
		if err := dec.Decode(&v); err != nil {
			return nil, err
		}
		fields = append(fields, field{key: key, value: v})
	}
	return fields, nil
}

func cellValue(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return s
		}
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return string(raw)
	}
	return buf.String()
}

// WriteCSV renders records with a header taken from the first record's keys. Nested
// values are written as compact JSON; quoting follows RFC 4180.
func WriteCSV(w io.Writer, records []any) error {
	cw := csv.NewWriter(w)
	if len(records) == 0 {
		cw.Flush()
		return cw.Error()
	}

	var header []string
	for i, rec := range records {
		raw, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("encode record %d: %w", i, err)
		}
		fields, err := orderedFields(raw)
		if err != nil {
			return fmt.Errorf("decode record %d: %w", i, err)
		}
		if header == nil {
			header = make([]string, len(fields))
			for j, f := range fields {
				header[j] = f.key
			}
			if err := cw.Write(header); err != nil {
				return err
			}
		}
		byKey := make(map[string]json.RawMessage, len(fields))
		for _, f := range fields {
			byKey[f.key] = f.value
		}
		row := make([]string, len(header))
		for j, key := range header {
			row[j] = cellValue(byKey[key])
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func WriteJSON(w io.Writer, records []any) error {
	if records == nil {
		records = []any{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(records)
}
