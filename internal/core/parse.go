// Package core holds the export document model and the pure transforms
// applied to it: parsing, the validity gate, aggregation and formatting.
package core

import (
	"bytes"
	"encoding/json"
	"errors"
	"math"
	"time"
)

var utf8BOM = []byte("\xef\xbb\xbf")

// Raw is a well-formed, compacted JSON document. It may still fail the
// validity gate in Decode.
type Raw []byte

// ParseError reports text that is not JSON at all. It is the only load
// failure shown to the user.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string {
	if e.Err == nil {
		return ErrMalformedDocument.Error()
	}
	return ErrMalformedDocument.Error() + ": " + e.Err.Error()
}

func (e *ParseError) Unwrap() error { return e.Err }

func (e *ParseError) Is(target error) bool { return target == ErrMalformedDocument }

// ParseDocument reads data as UTF-8 text and checks that it is JSON.
// Any JSON value is accepted here, including arrays and null.
func ParseDocument(data []byte) (Raw, error) {
	data = bytes.TrimPrefix(data, utf8BOM)
	data = bytes.ToValidUTF8(data, []byte("\uFFFD"))

	if len(bytes.TrimSpace(data)) == 0 {
		return nil, &ParseError{Err: errors.New("empty input")}
	}
	var v json.RawMessage
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, &ParseError{Err: err}
	}

	var buf bytes.Buffer
	if err := json.Compact(&buf, data); err != nil {
		return nil, &ParseError{Err: err}
	}
	return Raw(buf.Bytes()), nil
}

// Decode applies the validity gate. It reports false, never an error, when
// the document is not an object, or when categories or byCategory is absent,
// null or not an array. Key names are matched exactly.
//
// Everything past the gate is read leniently: a category or byCategory item
// that is not an object, lacks an id or has an unreadable sum is skipped, a
// month whose value is not an object has no entries, and an unreadable
// spend cell is dropped. Budget cells never fail (see Budget).
func (r Raw) Decode() (Document, bool) {
	fields, ok := object(r)
	if !ok {
		return Document{}, false
	}

	var doc Document
	if doc.Categories, ok = decodeCategories(fields["categories"]); !ok {
		return Document{}, false
	}
	if doc.ByCategory, ok = decodeCategorySums(fields["byCategory"]); !ok {
		return Document{}, false
	}
	doc.Meta = decodeMeta(fields["meta"])
	doc.ByMonthByCategory = decodeMonths(fields["byMonthByCategory"], func(b json.RawMessage) (Amount, bool) {
		var a Amount
		if err := a.UnmarshalJSON(b); err != nil {
			return 0, false
		}
		return a, true
	})
	doc.ByMonthBudget = decodeMonths(fields["byMonthBudget"], func(b json.RawMessage) (Budget, bool) {
		var bu Budget
		_ = bu.UnmarshalJSON(b)
		return bu, true
	})
	return doc, true
}

// maxDateMillis is the largest epoch offset, in milliseconds, that still
// names a calendar date.
const maxDateMillis = 8.64e15

func decodeMeta(b json.RawMessage) *Meta {
	fields, ok := object(b)
	if !ok {
		return nil
	}
	m := &Meta{}
	at := bytes.TrimSpace(fields["exportedAt"])
	if len(at) == 0 {
		return m
	}
	switch at[0] {
	case '"':
		_ = json.Unmarshal(at, &m.ExportedAt)
	case '-', '0', '1', '2', '3', '4', '5', '6', '7', '8', '9':
		// Epoch milliseconds. Zero reads as "no timestamp".
		var ms float64
		if err := json.Unmarshal(at, &ms); err != nil || ms == 0 {
			return m
		}
		if math.Abs(ms) > maxDateMillis {
			m.ExportedAt = string(at)
			return m
		}
		t := time.UnixMilli(int64(ms)).UTC()
		if t.Year() < 0 || t.Year() > 9999 {
			m.ExportedAt = string(at)
			return m
		}
		m.ExportedAt = t.Format(time.RFC3339Nano)
	}
	return m
}

func decodeCategories(b json.RawMessage) ([]Category, bool) {
	items, ok := array(b)
	if !ok {
		return nil, false
	}
	out := make([]Category, 0, len(items))
	for _, item := range items {
		fields, ok := object(item)
		if !ok {
			continue
		}
		id, ok := scalarString(fields["id"])
		if !ok {
			continue
		}
		name, _ := scalarString(fields["name"])
		icon, _ := scalarString(fields["icon"])
		out = append(out, Category{ID: id, Name: name, Icon: icon})
	}
	return out, true
}

func decodeCategorySums(b json.RawMessage) ([]CategorySum, bool) {
	items, ok := array(b)
	if !ok {
		return nil, false
	}
	out := make([]CategorySum, 0, len(items))
	for _, item := range items {
		fields, ok := object(item)
		if !ok {
			continue
		}
		id, ok := scalarString(fields["categoryId"])
		if !ok {
			continue
		}
		var sum Amount
		if err := sum.UnmarshalJSON(fields["sum"]); err != nil {
			continue
		}
		out = append(out, CategorySum{CategoryID: id, Sum: sum})
	}
	return out, true
}

func decodeMonths[T any](b json.RawMessage, cell func(json.RawMessage) (T, bool)) map[string]map[string]T {
	months, ok := object(b)
	if !ok {
		return nil
	}
	out := make(map[string]map[string]T, len(months))
	for key, month := range months {
		cells, _ := object(month)
		m := make(map[string]T, len(cells))
		for id, c := range cells {
			if v, ok := cell(c); ok {
				m[id] = v
			}
		}
		out[key] = m
	}
	return out
}

// object decodes a JSON object into its raw members. Duplicate keys keep
// the last value.
func object(b []byte) (map[string]json.RawMessage, bool) {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || b[0] != '{' {
		return nil, false
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(b, &fields); err != nil {
		return nil, false
	}
	return fields, true
}

func array(b []byte) ([]json.RawMessage, bool) {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || b[0] != '[' {
		return nil, false
	}
	var items []json.RawMessage
	if err := json.Unmarshal(b, &items); err != nil {
		return nil, false
	}
	return items, true
}

// scalarString reads a string, or the literal text of a number, so that
// numeric ids still join.
func scalarString(b []byte) (string, bool) {
	b = bytes.TrimSpace(b)
	if len(b) == 0 {
		return "", false
	}
	switch {
	case b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return "", false
		}
		return s, true
	case b[0] == '-' || (b[0] >= '0' && b[0] <= '9'):
		return string(b), true
	}
	return "", false
}
