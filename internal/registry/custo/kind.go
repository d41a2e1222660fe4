package custo

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Kind is the storage type of a customized field.
type Kind int

const (
	KindString Kind = iota
	KindEnum
	KindDate
	KindDateTime
	KindBytes
	KindBool
	KindInt32
	KindInt64
	KindFloat
	KindDouble
	KindObject
)

const dateLayout = "2006-01-02"

var kindNames = map[Kind]string{
	KindString:   "string",
	KindEnum:     "enum",
	KindDate:     "date",
	KindDateTime: "date-time",
	KindBytes:    "byte",
	KindBool:     "boolean",
	KindInt32:    "int32",
	KindInt64:    "int64",
	KindFloat:    "float",
	KindDouble:   "double",
	KindObject:   "object",
}

func (k Kind) String() string {
	if n, ok := kindNames[k]; ok {
		return n
	}
	return "kind(" + strconv.Itoa(int(k)) + ")"
}

// Queryable reports whether predicates may compare values of this kind.
func (k Kind) Queryable() bool {
	return k != KindBytes && k != KindObject
}

// Decode converts a JSON value (as produced by a json.Decoder with UseNumber) into the
// internal representation stored in Identity attributes:
// string, time.Time, []byte, bool, int64, float64 or json.RawMessage.
func (k Kind) Decode(v any) (any, error) {
	switch k {
	case KindString, KindEnum:
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("expected string, got %T", v)
		}
		return s, nil
	case KindDate:
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("expected date string, got %T", v)
		}
		if _, err := time.Parse(dateLayout, s); err != nil {
			return nil, fmt.Errorf("invalid date %q", s)
		}
		return s, nil
	case KindDateTime:
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("expected date-time string, got %T", v)
		}
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return nil, fmt.Errorf("invalid date-time %q", s)
		}
		return t, nil
	case KindBytes:
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("expected base64 string, got %T", v)
		}
		b, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return nil, fmt.Errorf("invalid base64: %w", err)
		}
		return b, nil
	case KindBool:
		b, ok := v.(bool)
		if !ok {
			return nil, fmt.Errorf("expected boolean, got %T", v)
		}
		return b, nil
	case KindInt32, KindInt64:
		n, err := toInt64(v)
		if err != nil {
			return nil, err
		}
		if k == KindInt32 && (n < math.MinInt32 || n > math.MaxInt32) {
			return nil, fmt.Errorf("value %d out of int32 range", n)
		}
		return n, nil
	case KindFloat, KindDouble:
		return toFloat64(v)
	case KindObject:
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("encode object: %w", err)
		}
		return json.RawMessage(raw), nil
	}
	return nil, fmt.Errorf("unsupported kind %s", k)
}

// Encode converts an internal value back to its JSON form.
func (k Kind) Encode(v any) any {
	switch k {
	case KindDateTime:
		if t, ok := v.(time.Time); ok {
			return t.Format(time.RFC3339Nano)
		}
	case KindBytes:
		if b, ok := v.([]byte); ok {
			return base64.StdEncoding.EncodeToString(b)
		}
	}
	return v
}

// Coerce parses a predicate value. Unlike Decode it accepts the textual form of
// numbers and booleans, since query-string predicates only carry strings.
func (k Kind) Coerce(v any) (any, error) {
	s, isString := v.(string)
	switch k {
	case KindBool:
		if isString {
			b, err := strconv.ParseBool(s)
			if err != nil {
				return nil, fmt.Errorf("invalid boolean %q", s)
			}
			return b, nil
		}
	case KindInt32, KindInt64:
		if isString {
			return k.Decode(json.Number(strings.TrimSpace(s)))
		}
	case KindFloat, KindDouble:
		if isString {
			return k.Decode(json.Number(strings.TrimSpace(s)))
		}
	case KindDate:
		// Partial dates are valid bounds for range operators.
		if isString {
			return s, nil
		}
	}
	return k.Decode(v)
}

// Compare orders two internal values of this kind. It returns -1, 0 or +1.
func (k Kind) Compare(a, b any) int {
	switch k {
	case KindDateTime:
		ta, _ := a.(time.Time)
		tb, _ := b.(time.Time)
		return ta.Compare(tb)
	case KindBool:
		ba, _ := a.(bool)
		bb, _ := b.(bool)
		switch {
		case ba == bb:
			return 0
		case !ba:
			return -1
		default:
			return 1
		}
	case KindInt32, KindInt64:
		na, _ := a.(int64)
		nb, _ := b.(int64)
		return cmpOrdered(na, nb)
	case KindFloat, KindDouble:
		fa, _ := a.(float64)
		fb, _ := b.(float64)
		return cmpOrdered(fa, fb)
	case KindBytes:
		ba, _ := a.([]byte)
		bb, _ := b.([]byte)
		return bytes.Compare(ba, bb)
	case KindObject:
		ra, _ := a.(json.RawMessage)
		rb, _ := b.(json.RawMessage)
		return bytes.Compare(ra, rb)
	}
	sa, _ := a.(string)
	sb, _ := b.(string)
	return strings.Compare(sa, sb)
}

func cmpOrdered[T int64 | float64](a, b T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func toInt64(v any) (int64, error) {
	switch n := v.(type) {
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, fmt.Errorf("invalid integer %q", n.String())
		}
		return i, nil
	case float64:
		if n != math.Trunc(n) {
			return 0, fmt.Errorf("invalid integer %v", n)
		}
		return int64(n), nil
	case int:
		return int64(n), nil
	case int64:
		return n, nil
	}
	return 0, fmt.Errorf("expected integer, got %T", v)
}

func toFloat64(v any) (float64, error) {
	switch n := v.(type) {
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return 0, fmt.Errorf("invalid number %q", n.String())
		}
		return f, nil
	case float64:
		return n, nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	}
	return 0, fmt.Errorf("expected number, got %T", v)
}
