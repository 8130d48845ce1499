package feature

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Properties is the untyped property bag of a feature.
type Properties map[string]any

// Clone returns a shallow copy.
func (p Properties) Clone() Properties {
	out := make(Properties, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Lookup returns the first present, non-nil value among keys.
func (p Properties) Lookup(keys ...string) (any, bool) {
	for _, k := range keys {
		if v, ok := p[k]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

// String returns the first value among keys rendered as a string.
func (p Properties) String(keys ...string) string {
	v, ok := p.Lookup(keys...)
	if !ok {
		return ""
	}
	switch x := v.(type) {
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case int:
		return strconv.Itoa(x)
	case bool:
		return strconv.FormatBool(x)
	case json.Number:
		return x.String()
	default:
		return ""
	}
}

// Float returns the first numeric value among keys. Numeric strings are accepted.
func (p Properties) Float(keys ...string) (float64, bool) {
	v, ok := p.Lookup(keys...)
	if !ok {
		return 0, false
	}
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case json.Number:
		f, err := x.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// Int is Float truncated towards zero.
func (p Properties) Int(keys ...string) (int, bool) {
	f, ok := p.Float(keys...)
	return int(f), ok
}

// Bool returns the first boolean among keys. "true"/"1"/"yes" strings and
// non-zero numbers count as true.
func (p Properties) Bool(keys ...string) bool {
	v, ok := p.Lookup(keys...)
	if !ok {
		return false
	}
	switch x := v.(type) {
	case bool:
		return x
	case string:
		switch strings.ToLower(strings.TrimSpace(x)) {
		case "true", "1", "yes":
			return true
		}
		return false
	case float64:
		return x != 0
	case int:
		return x != 0
	default:
		return false
	}
}

func (p Properties) normalized() map[string]any {
	if p == nil {
		return map[string]any{}
	}
	return p
}
