package model

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Stringify renders a field value the way it is compared and displayed:
// strings as-is, numbers in their shortest form, nil as "null" and
// composite values as compact JSON.
func Stringify(v any) string {
	switch x := v.(type) {
	case nil:
		return "null"
	case string:
		return x
	case bool:
		return strconv.FormatBool(x)
	case float64:
		return formatFloat(x)
	case float32:
		return formatFloat(float64(x))
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case int32:
		return strconv.FormatInt(int64(x), 10)
	case uint64:
		return strconv.FormatUint(x, 10)
	case json.Number:
		return x.String()
	default:
		b, err := json.Marshal(x)
		if err != nil {
			return ""
		}
		return string(b)
	}
}

func formatFloat(f float64) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// Normalize maps a value to the form kept in stats examples: nil becomes
// "null", scalars are unchanged and anything else becomes its JSON string.
// The result is always comparable with ==.
func Normalize(v any) any {
	switch v.(type) {
	case nil:
		return "null"
	case string, bool, float64, float32, int, int64, int32, uint64, json.Number:
		return v
	default:
		return Stringify(v)
	}
}

// ToNumber converts a value to a finite float64. Strings are parsed after
// trimming; an empty string is zero.
func ToNumber(v any) (float64, bool) {
	var f float64
	switch x := v.(type) {
	case float64:
		f = x
	case float32:
		f = float64(x)
	case int:
		f = float64(x)
	case int64:
		f = float64(x)
	case int32:
		f = float64(x)
	case uint64:
		f = float64(x)
	case json.Number:
		n, err := x.Float64()
		if err != nil {
			return 0, false
		}
		f = n
	case bool:
		if x {
			f = 1
		}
	case nil:
		f = 0
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return 0, true
		}
		n, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false
		}
		f = n
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// IsNumber reports whether v is a numeric Go value.
func IsNumber(v any) bool {
	switch v.(type) {
	case float64, float32, int, int64, int32, uint64, json.Number:
		return true
	}
	return false
}
