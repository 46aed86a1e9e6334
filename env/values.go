package env

import "fmt"

// Values is the validated, coerced environment. It is never mutated after
// validation and is shared read-only by every call.
type Values map[string]any

// Has reports whether key holds a value after validation.
func (v Values) Has(key string) bool {
	_, ok := v[key]
	return ok
}

// String returns the value of key as a string, or "" when absent.
func (v Values) String(key string) string {
	switch value := v[key].(type) {
	case nil:
		return ""
	case string:
		return value
	default:
		return fmt.Sprint(value)
	}
}

// Int returns the value of key when it was validated as an integer.
func (v Values) Int(key string) int64 {
	switch value := v[key].(type) {
	case int64:
		return value
	case float64:
		return int64(value)
	default:
		return 0
	}
}

// Float returns the value of key when it was validated as a number.
func (v Values) Float(key string) float64 {
	switch value := v[key].(type) {
	case float64:
		return value
	case int64:
		return float64(value)
	default:
		return 0
	}
}

// Bool returns the value of key when it was validated as a boolean.
func (v Values) Bool(key string) bool {
	b, _ := v[key].(bool)
	return b
}
