package effect

import (
	"encoding/json"
	"math"
	"strconv"
)

// State is a keyed property set persisted by the host for one processor.
// Values are JSON/YAML friendly scalars. Getters never fail: a missing key,
// a value of the wrong kind or a non-finite number yields the default.
type State map[string]any

// Float returns the numeric value stored under key, or def.
func (s State) Float(key string, def float64) float64 {
	v, ok := s[key]
	if !ok {
		return def
	}

	var f float64

	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int64:
		f = float64(n)
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return def
		}

		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return def
		}

		f = parsed
	default:
		return def
	}

	if math.IsNaN(f) || math.IsInf(f, 0) {
		return def
	}

	return f
}

// Int returns the value under key rounded to the nearest integer, or def.
func (s State) Int(key string, def int) int {
	f := s.Float(key, math.NaN())
	if math.IsNaN(f) {
		return def
	}

	return int(math.Round(f))
}

// String returns the string stored under key, or def.
func (s State) String(key, def string) string {
	if v, ok := s[key].(string); ok {
		return v
	}

	return def
}

// Bool returns the boolean stored under key, or def. The strings "true" and
// "false" and the numbers 0 and 1 are accepted as well.
func (s State) Bool(key string, def bool) bool {
	switch v := s[key].(type) {
	case bool:
		return v
	case string:
		b, err := strconv.ParseBool(v)
		if err != nil {
			return def
		}

		return b
	case float64:
		if v == 0 || v == 1 {
			return v == 1
		}
	case int:
		if v == 0 || v == 1 {
			return v == 1
		}
	}

	return def
}
