// Package mapsafe reads typed values out of decoded YAML or JSON maps.
package mapsafe

// Lookup returns m[key] converted to T. Integer and float values convert to
// each other, since YAML decodes whole numbers as int and JSON as float64.
func Lookup[T any](m map[string]any, key string) (T, bool) {
	var zero T

	val, ok := m[key]
	if !ok || val == nil {
		return zero, false
	}

	switch any(zero).(type) {
	case int:
		if n, ok := toFloat(val); ok {
			return any(int(n)).(T), true
		}
	case int64:
		if n, ok := toFloat(val); ok {
			return any(int64(n)).(T), true
		}
	case float64:
		if n, ok := toFloat(val); ok {
			return any(n).(T), true
		}
	default:
		if v, ok := val.(T); ok {
			return v, true
		}
	}

	return zero, false
}

// Get is Lookup with a default for missing or mistyped values.
func Get[T any](m map[string]any, key string, defaultValue T) T {
	if v, ok := Lookup[T](m, key); ok {
		return v
	}
	return defaultValue
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case uint64:
		return float64(x), true
	case float64:
		return x, true
	default:
		return 0, false
	}
}
