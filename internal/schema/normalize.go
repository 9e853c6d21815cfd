package schema

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

const (
	nullToken    = "\x00NULL"
	keySeparator = "\x1f"
	timeLayout   = "2006-01-02 15:04:05.999999999"
)

var timeParseLayouts = []string{
	"2006-01-02 15:04:05",
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

const dateLayout = "2006-01-02"

// NormalizeValue renders a value of a dataType column in a canonical form so
// representations of the same datum compare equal. Temporal columns compare by
// instant (time.Time vs "2026-03-14 09:30:00"), numeric columns by value
// ("10.50" vs 10.5, bool vs 0/1) and text columns byte for byte. An empty
// dataType falls back to value-based detection.
func NormalizeValue(dataType string, value interface{}) string {
	if value == nil {
		return nullToken
	}
	switch {
	case IsTemporalType(dataType):
		return normalizeTemporal(value, IsDateType(dataType))
	case IsTextType(dataType), IsBinaryType(dataType):
		if s, ok := textOf(value); ok {
			return s
		}
		return normalizeScalar(value)
	case IsIntegerType(dataType), IsFloatType(dataType), IsDecimalType(dataType):
		if s, ok := textOf(value); ok {
			return normalizeNumeric(s)
		}
		return normalizeScalar(value)
	}

	if s, ok := textOf(value); ok {
		if t, ok := parseTimeString(s); ok {
			return t.UTC().Format(timeLayout)
		}
		return normalizeNumeric(s)
	}
	return normalizeScalar(value)
}

// RowKey joins normalized values into a map key. types[i] is the column type of
// values[i]; a short or nil types slice leaves the rest untyped.
func RowKey(types []string, values []interface{}) string {
	parts := make([]string, len(values))
	for i, v := range values {
		dataType := ""
		if i < len(types) {
			dataType = types[i]
		}
		parts[i] = NormalizeValue(dataType, v)
	}
	return strings.Join(parts, keySeparator)
}

func textOf(value interface{}) (string, bool) {
	switch v := value.(type) {
	case string:
		return v, true
	case []byte:
		return string(v), true
	case json.Number:
		return v.String(), true
	}
	return "", false
}

func normalizeTemporal(value interface{}, dateOnly bool) string {
	var t time.Time
	switch v := value.(type) {
	case time.Time:
		t = v
	default:
		s, ok := textOf(value)
		if !ok {
			return normalizeScalar(value)
		}
		parsed, err := ParseTemporal(s)
		if err != nil {
			return s
		}
		t = parsed
	}
	if dateOnly {
		return t.UTC().Format(dateLayout)
	}
	return t.UTC().Format(timeLayout)
}

func normalizeScalar(value interface{}) string {
	switch v := value.(type) {
	case time.Time:
		return v.UTC().Format(timeLayout)
	case bool:
		if v {
			return "1"
		}
		return "0"
	case int:
		return strconv.FormatInt(int64(v), 10)
	case int8:
		return strconv.FormatInt(int64(v), 10)
	case int16:
		return strconv.FormatInt(int64(v), 10)
	case int32:
		return strconv.FormatInt(int64(v), 10)
	case int64:
		return strconv.FormatInt(v, 10)
	case uint:
		return strconv.FormatUint(uint64(v), 10)
	case uint8:
		return strconv.FormatUint(uint64(v), 10)
	case uint16:
		return strconv.FormatUint(uint64(v), 10)
	case uint32:
		return strconv.FormatUint(uint64(v), 10)
	case uint64:
		return strconv.FormatUint(v, 10)
	case float32:
		return normalizeFloat(float64(v))
	case float64:
		return normalizeFloat(v)
	default:
		return fmt.Sprint(v)
	}
}

func normalizeFloat(f float64) string {
	if f == math.Trunc(f) && math.Abs(f) < 1e15 {
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func normalizeNumeric(s string) string {
	if isDecimalLiteral(s) {
		return trimDecimal(s)
	}
	if f, ok := parseExponent(s); ok {
		return normalizeFloat(f)
	}
	return s
}

func parseTimeString(s string) (time.Time, bool) {
	if len(s) < 10 || s[4] != '-' || s[7] != '-' {
		return time.Time{}, false
	}
	for _, layout := range timeParseLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// isDecimalLiteral matches -?digits.digits
func isDecimalLiteral(s string) bool {
	if s == "" {
		return false
	}
	start := 0
	if s[0] == '-' {
		start = 1
	}
	dot := strings.IndexByte(s, '.')
	if dot <= start || dot == len(s)-1 {
		return false
	}
	for i := start; i < len(s); i++ {
		if i != dot && (s[i] < '0' || s[i] > '9') {
			return false
		}
	}
	return true
}

func trimDecimal(s string) string {
	s = strings.TrimRight(s, "0")
	s = strings.TrimSuffix(s, ".")
	if s == "-0" {
		return "0"
	}
	return s
}

// parseExponent handles floats that encoding/json renders in exponent form
func parseExponent(s string) (float64, bool) {
	if !strings.ContainsAny(s, "eE") || strings.ContainsAny(s, " \t") {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsInf(f, 0) || math.IsNaN(f) {
		return 0, false
	}
	return f, true
}
