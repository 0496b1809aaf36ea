package model

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Stringify renders a form or reference value as the string used for
// comparisons. Integral floats (the shape JSON numbers decode into) render
// without a fractional part so 5.0 and "5" compare equal.
func Stringify(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case json.Number:
		return v.String()
	case float64:
		if v == math.Trunc(v) && !math.IsInf(v, 0) && math.Abs(v) < 1e15 {
			return strconv.FormatInt(int64(v), 10)
		}
		return strconv.FormatFloat(v, 'f', -1, 64)
	case float32:
		return Stringify(float64(v))
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case int32:
		return strconv.FormatInt(int64(v), 10)
	case uint:
		return strconv.FormatUint(uint64(v), 10)
	case uint64:
		return strconv.FormatUint(v, 10)
	case bool:
		return strconv.FormatBool(v)
	case Option:
		return Stringify(v.Value)
	case *Option:
		if v == nil {
			return ""
		}
		return Stringify(v.Value)
	case map[string]any:
		if id, ok := ReferenceID(v); ok {
			return Stringify(id)
		}
		return fmt.Sprint(v)
	default:
		return fmt.Sprint(v)
	}
}

// ReferenceID extracts the identifier of an option reference stored as an
// object ({id, name} or {value, label}).
func ReferenceID(ref map[string]any) (any, bool) {
	if ref == nil {
		return nil, false
	}
	if id, ok := ref["id"]; ok && id != nil {
		return id, true
	}
	if value, ok := ref["value"]; ok && value != nil {
		return value, true
	}
	return nil, false
}

// IsEmpty reports whether a value counts as missing for the required check:
// nil, blank strings, empty collections and option references without an id.
func IsEmpty(value any) bool {
	switch v := value.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(v) == ""
	case []any:
		return len(v) == 0
	case map[string]any:
		_, ok := ReferenceID(v)
		return !ok
	case Option:
		return v.Value == nil || Stringify(v.Value) == ""
	case *Option:
		return v == nil || v.Value == nil || Stringify(v.Value) == ""
	default:
		return false
	}
}
