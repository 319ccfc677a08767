package core

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

type (
	// Document is the decoded export produced by the budgeting tool.
	// It is treated as immutable once decoded.
	Document struct {
		Meta              *Meta                        `json:"meta,omitempty"`
		Categories        []Category                   `json:"categories"`
		ByCategory        []CategorySum                `json:"byCategory"`
		ByMonthByCategory map[string]map[string]Amount `json:"byMonthByCategory,omitempty"`
		ByMonthBudget     map[string]map[string]Budget `json:"byMonthBudget,omitempty"`
	}

	Meta struct {
		ExportedAt string `json:"exportedAt,omitempty"`
	}

	Category struct {
		ID   string `json:"id"`
		Name string `json:"name"`
		Icon string `json:"icon,omitempty"`
	}

	// CategorySum is the all-time spend for one category. Negative sums are refunds.
	CategorySum struct {
		CategoryID string `json:"categoryId"`
		Sum        Amount `json:"sum"`
	}

	// Amount is a signed number that also accepts numeric strings and null.
	Amount float64

	// Budget is a monthly ceiling. Set is false when no budget was entered,
	// which is not the same thing as a zero budget.
	Budget struct {
		Value float64
		Set   bool
	}
)

var (
	ErrMalformedDocument = errors.New("malformed export document")
	ErrInvalidAmount     = errors.New("invalid amount")
)

// Label is the display name of the category, prefixed by its icon when present.
func (c Category) Label() string {
	if c.Icon != "" {
		return c.Icon + " " + c.Name
	}
	return c.Name
}

func (a *Amount) UnmarshalJSON(b []byte) error {
	if isBlank(b) {
		*a = 0
		return nil
	}
	v, ok := number(b)
	if !ok {
		return fmt.Errorf("%w: %s", ErrInvalidAmount, bytes.TrimSpace(b))
	}
	*a = Amount(v)
	return nil
}

// UnmarshalJSON never fails. Anything that does not read as a number,
// free text included, means nothing was planned.
func (b *Budget) UnmarshalJSON(data []byte) error {
	*b = Budget{}
	if isBlank(data) {
		return nil
	}
	if v, ok := number(data); ok {
		*b = Budget{Value: v, Set: true}
	}
	return nil
}

func (b Budget) MarshalJSON() ([]byte, error) {
	if !b.Set {
		return []byte("null"), nil
	}
	return json.Marshal(b.Value)
}

// number reads a JSON scalar as a number: JSON numbers, numeric strings and
// booleans (true is 1) qualify. NaN and infinities do not.
func number(b []byte) (float64, bool) {
	b = bytes.TrimSpace(b)
	if len(b) == 0 {
		return 0, false
	}
	var v float64
	switch b[0] {
	case '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return 0, false
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return 0, false
		}
		v = f
	case 't', 'f':
		var t bool
		if err := json.Unmarshal(b, &t); err != nil {
			return 0, false
		}
		if t {
			v = 1
		}
	default:
		if err := json.Unmarshal(b, &v); err != nil {
			return 0, false
		}
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// isBlank reports a missing value, null or a whitespace-only string.
func isBlank(b []byte) bool {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return true
	}
	if b[0] != '"' {
		return false
	}
	var s string
	return json.Unmarshal(b, &s) == nil && strings.TrimSpace(s) == ""
}
