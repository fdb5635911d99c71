package hydrate

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/roach88/kvorm/internal/meta"
)

// Format renders a scalar as its flat-mapping string. nil becomes "".
// Plain Go integer types are accepted so callers can pass literal ids.
func Format(v any) (string, error) {
	switch val := v.(type) {
	case nil:
		return "", nil
	case string:
		return val, nil
	case int64:
		return strconv.FormatInt(val, 10), nil
	case int:
		return strconv.Itoa(val), nil
	case int32:
		return strconv.FormatInt(int64(val), 10), nil
	case uint64:
		return strconv.FormatUint(val, 10), nil
	case uint:
		return strconv.FormatUint(uint64(val), 10), nil
	case uint32:
		return strconv.FormatUint(uint64(val), 10), nil
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64), nil
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32), nil
	case bool:
		if val {
			return "1", nil
		}
		return "0", nil
	case time.Time:
		return val.UTC().Format(time.RFC3339Nano), nil
	case fmt.Stringer:
		return val.String(), nil
	default:
		return "", fmt.Errorf("unsupported value type %T", v)
	}
}

// Parse converts a flat-mapping string back into a value of the given
// kind. The empty string is null for every kind.
func Parse(kind meta.Kind, s string) (any, error) {
	if s == "" {
		return nil, nil
	}
	switch kind {
	case meta.KindString:
		return s, nil
	case meta.KindInt:
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse int %q: %w", s, err)
		}
		return n, nil
	case meta.KindFloat:
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, fmt.Errorf("parse float %q: %w", s, err)
		}
		return f, nil
	case meta.KindBool:
		b, err := strconv.ParseBool(s)
		if err != nil {
			return nil, fmt.Errorf("parse bool %q: %w", s, err)
		}
		return b, nil
	case meta.KindTime:
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return nil, fmt.Errorf("parse time %q: %w", s, err)
		}
		return t.UTC(), nil
	default:
		return nil, fmt.Errorf("unsupported kind %s", kind)
	}
}

// Coerce converts a loosely typed value, as decoded from JSON or YAML,
// into the Go type that properties of kind hold. Strings are parsed with
// Parse; numbers must fit the kind exactly.
func Coerce(kind meta.Kind, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	if s, ok := v.(string); ok {
		return Parse(kind, s)
	}

	switch kind {
	case meta.KindString:
		return Format(v)
	case meta.KindInt:
		switch n := v.(type) {
		case int:
			return int64(n), nil
		case int64:
			return n, nil
		case uint64:
			if n > math.MaxInt64 {
				return nil, fmt.Errorf("%d overflows int", n)
			}
			return int64(n), nil
		case float64:
			if n != math.Trunc(n) || math.Abs(n) > 1<<53 {
				return nil, fmt.Errorf("%v is not an integer", n)
			}
			return int64(n), nil
		case json.Number:
			return n.Int64()
		}
	case meta.KindFloat:
		switch n := v.(type) {
		case float64:
			return n, nil
		case int:
			return float64(n), nil
		case int64:
			return float64(n), nil
		case json.Number:
			return n.Float64()
		}
	case meta.KindBool:
		if b, ok := v.(bool); ok {
			return b, nil
		}
	case meta.KindTime:
		if t, ok := v.(time.Time); ok {
			return t.UTC(), nil
		}
	}
	return nil, fmt.Errorf("cannot use %T as %s", v, kind)
}
