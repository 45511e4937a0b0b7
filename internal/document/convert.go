package document

import (
	"encoding/json"
	"fmt"
	"math"
	"math/big"
	"sort"
	"time"
)

// Date is a calendar date without a time of day. It converts to an ISO-8601
// date string (YYYY-MM-DD).
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// DateOf returns the date part of t in t's location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

// FromGo converts a Go value into a JSON-safe Value. Times become RFC 3339
// strings, dates become YYYY-MM-DD, decimals (*big.Rat, *big.Float, json.Number)
// become floats. Map keys are sorted because Go maps carry no order.
// Unsupported types are reported as errors.
func FromGo(in any) (Value, error) {
	switch x := in.(type) {
	case nil:
		return Null(), nil
	case Value:
		return x.Clone(), nil
	case *Value:
		if x == nil {
			return Null(), nil
		}
		return x.Clone(), nil
	case bool:
		return Bool(x), nil
	case string:
		return String(x), nil
	case int:
		return Int(int64(x)), nil
	case int8:
		return Int(int64(x)), nil
	case int16:
		return Int(int64(x)), nil
	case int32:
		return Int(int64(x)), nil
	case int64:
		return Int(x), nil
	case uint:
		return fromUint(uint64(x)), nil
	case uint8:
		return Int(int64(x)), nil
	case uint16:
		return Int(int64(x)), nil
	case uint32:
		return Int(int64(x)), nil
	case uint64:
		return fromUint(x), nil
	case float32:
		return fromFloat(float64(x))
	case float64:
		return fromFloat(x)
	case json.Number:
		return parseNumber(x.String())
	case *big.Rat:
		if x == nil {
			return Null(), nil
		}
		f, _ := x.Float64()
		return fromFloat(f)
	case *big.Float:
		if x == nil {
			return Null(), nil
		}
		f, _ := x.Float64()
		return fromFloat(f)
	case time.Time:
		return String(x.Format(time.RFC3339Nano)), nil
	case *time.Time:
		if x == nil {
			return Null(), nil
		}
		return String(x.Format(time.RFC3339Nano)), nil
	case Date:
		return String(x.String()), nil
	case json.RawMessage:
		return Parse(x)
	case map[string]any:
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		obj := Object()
		for _, k := range keys {
			member, err := FromGo(x[k])
			if err != nil {
				return Value{}, fmt.Errorf("%s: %w", k, err)
			}
			obj.Set(k, member)
		}
		return obj, nil
	case map[string]string:
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		obj := Object()
		for _, k := range keys {
			obj.Set(k, String(x[k]))
		}
		return obj, nil
	case []any:
		arr := Value{kind: KindArray, arr: make([]Value, 0, len(x))}
		for i, e := range x {
			elem, err := FromGo(e)
			if err != nil {
				return Value{}, fmt.Errorf("[%d]: %w", i, err)
			}
			arr.arr = append(arr.arr, elem)
		}
		return arr, nil
	case []string:
		arr := Value{kind: KindArray, arr: make([]Value, 0, len(x))}
		for _, e := range x {
			arr.arr = append(arr.arr, String(e))
		}
		return arr, nil
	case []map[string]any:
		arr := Value{kind: KindArray, arr: make([]Value, 0, len(x))}
		for i, e := range x {
			elem, err := FromGo(e)
			if err != nil {
				return Value{}, fmt.Errorf("[%d]: %w", i, err)
			}
			arr.arr = append(arr.arr, elem)
		}
		return arr, nil
	default:
		return Value{}, fmt.Errorf("document: unsupported type %T", in)
	}
}

// MustFromGo is FromGo for literals known to convert.
func MustFromGo(in any) Value {
	v, err := FromGo(in)
	if err != nil {
		panic(err)
	}
	return v
}

// Normalize re-validates a Value tree so it can be serialized, rejecting
// NaN and infinite floats anywhere in the tree.
func Normalize(v Value) (Value, error) {
	switch v.kind {
	case KindFloat:
		return fromFloat(v.f)
	case KindArray:
		out := Value{kind: KindArray, arr: make([]Value, len(v.arr))}
		for i, e := range v.arr {
			n, err := Normalize(e)
			if err != nil {
				return Value{}, fmt.Errorf("[%d]: %w", i, err)
			}
			out.arr[i] = n
		}
		return out, nil
	case KindObject:
		out := Value{kind: KindObject, obj: make([]Member, len(v.obj))}
		for i, m := range v.obj {
			n, err := Normalize(m.Value)
			if err != nil {
				return Value{}, fmt.Errorf("%s: %w", m.Key, err)
			}
			out.obj[i] = Member{Key: m.Key, Value: n}
		}
		return out, nil
	default:
		return v, nil
	}
}

func fromUint(u uint64) Value {
	if u > math.MaxInt64 {
		return Float(float64(u))
	}
	return Int(int64(u))
}

func fromFloat(f float64) (Value, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return Value{}, fmt.Errorf("document: %v is not representable in JSON", f)
	}
	return Float(f), nil
}
