package marketdata

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Provider payloads are decoded into map[string]any with json.Number enabled,
// so numbers arrive as json.Number, float64 or formatted strings depending on
// the endpoint. The helpers below coerce those shapes without panicking.

// Section returns raw[key] as an object, or nil.
func Section(raw map[string]any, key string) map[string]any {
	if raw == nil {
		return nil
	}
	m, _ := raw[key].(map[string]any)
	return m
}

// String returns v as a trimmed string. Numbers are formatted, nil yields "".
func String(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return strings.TrimSpace(fmt.Sprint(t))
	}
}

// Bool interprets provider flags: booleans, "Yes"/"No", "true"/"false", "Y"/"N" and non-zero numbers.
func Bool(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "yes", "y", "true", "1":
			return true
		}
		return false
	case json.Number:
		f, err := t.Float64()
		return err == nil && f != 0
	case float64:
		return t != 0
	default:
		return false
	}
}

// Strings returns v as a string slice when it is a list; other shapes yield nil.
func Strings(v any) []string {
	switch t := v.(type) {
	case []string:
		return t
	case []any:
		out := make([]string, 0, len(t))
		for _, e := range t {
			if s := String(e); s != "" {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// IsBlank reports whether v carries no usable value: nil, an empty or "-" string, or a numeric zero.
func IsBlank(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		s := strings.TrimSpace(t)
		return s == "" || s == "-"
	case json.Number:
		f, err := t.Float64()
		return err == nil && f == 0
	case float64:
		return t == 0
	case int:
		return t == 0
	case int64:
		return t == 0
	default:
		return false
	}
}

// Decimal parses a numeric provider value. Blank values yield zero.
// Thousands separators in strings are accepted ("1,234.50").
func Decimal(v any) (decimal.Decimal, error) {
	if IsBlank(v) {
		return decimal.Zero, nil
	}
	switch t := v.(type) {
	case json.Number:
		return decimal.NewFromString(t.String())
	case float64:
		return decimal.NewFromFloat(t), nil
	case int:
		return decimal.NewFromInt(int64(t)), nil
	case int64:
		return decimal.NewFromInt(t), nil
	case string:
		return decimal.NewFromString(strings.ReplaceAll(strings.TrimSpace(t), ",", ""))
	default:
		return decimal.Zero, fmt.Errorf("unsupported numeric type %T", v)
	}
}

var (
	maxInt64 = decimal.NewFromInt(math.MaxInt64)
	minInt64 = decimal.NewFromInt(math.MinInt64)
)

// Int64 parses an integral provider value. Blank values yield zero; fractional values are truncated.
// Values outside the int64 range are rejected.
func Int64(v any) (int64, error) {
	d, err := Decimal(v)
	if err != nil {
		return 0, err
	}
	d = d.Truncate(0)
	if d.GreaterThan(maxInt64) || d.LessThan(minInt64) {
		return 0, fmt.Errorf("value %s overflows int64", d)
	}
	return d.IntPart(), nil
}

// FirstPresent returns the value of the first key in keys whose value is not blank.
func FirstPresent(raw map[string]any, keys ...string) (any, bool) {
	for _, k := range keys {
		if v, ok := raw[k]; ok && !IsBlank(v) {
			return v, true
		}
	}
	return nil, false
}
