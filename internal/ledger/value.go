// Package ledger talks to the external settlement network. Typed transaction
// and script arguments use the network's tagged-union JSON encoding; numeric
// kinds carry string-encoded fixed-point values so no precision is lost in
// transit.
package ledger

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"
)

// Kind is the closed set of value tags the ledger understands.
type Kind string

const (
	KindUInt     Kind = "UInt"
	KindUInt64   Kind = "UInt64"
	KindInt      Kind = "Int"
	KindInt64    Kind = "Int64"
	KindUFix64   Kind = "UFix64"
	KindFix64    Kind = "Fix64"
	KindString   Kind = "String"
	KindBool     Kind = "Bool"
	KindAddress  Kind = "Address"
	KindArray    Kind = "Array"
	KindOptional Kind = "Optional"
	KindDict     Kind = "Dictionary"
)

// Value is one typed ledger argument or return value.
type Value struct {
	Kind Kind

	// Exactly one of the following is meaningful, depending on Kind.
	Str      string // numeric kinds (string-encoded), String, Address
	Bool     bool
	Elems    []Value     // Array
	Inner    *Value      // Optional; nil means "none"
	Pairs    []DictEntry // Dictionary
}

// DictEntry is one key/value pair of a Dictionary value.
type DictEntry struct {
	Key   Value
	Value Value
}

// UInt64 builds an unsigned integer value.
func UInt64(v uint64) Value {
	return Value{Kind: KindUInt64, Str: strconv.FormatUint(v, 10)}
}

// Int builds a signed integer value.
func Int(v int64) Value {
	return Value{Kind: KindInt, Str: strconv.FormatInt(v, 10)}
}

// UFix64 builds a fixed-point value with exactly 8 fractional digits. The
// formatting is part of the wire contract and must be bit-stable.
func UFix64(v float64) Value {
	return Value{Kind: KindUFix64, Str: FormatFixed(v)}
}

// Fix64 builds a signed fixed-point value with exactly 8 fractional digits.
func Fix64(v float64) Value {
	return Value{Kind: KindFix64, Str: FormatFixed(v)}
}

// String builds a string value.
func String(v string) Value {
	return Value{Kind: KindString, Str: v}
}

// Bool builds a boolean value.
func Bool(v bool) Value {
	return Value{Kind: KindBool, Bool: v}
}

// Address builds an address value.
func Address(v string) Value {
	return Value{Kind: KindAddress, Str: v}
}

// Array builds an array value.
func Array(elems ...Value) Value {
	return Value{Kind: KindArray, Elems: elems}
}

// Optional wraps a value; pass nil for "none".
func Optional(inner *Value) Value {
	return Value{Kind: KindOptional, Inner: inner}
}

// OptionalString wraps a string, mapping the empty string to "none".
func OptionalString(v string) Value {
	if v == "" {
		return Optional(nil)
	}
	inner := String(v)
	return Optional(&inner)
}

// FormatFixed renders v as a fixed-point decimal string with exactly 8
// fractional digits.
func FormatFixed(v float64) string {
	return decimal.NewFromFloat(v).StringFixed(8)
}

type wireValue struct {
	Type  string          `json:"type"`
	Value json.RawMessage `json:"value"`
}

type wirePair struct {
	Key   json.RawMessage `json:"key"`
	Value json.RawMessage `json:"value"`
}

// MarshalJSON encodes the value in the ledger's tagged-union wire format.
func (v Value) MarshalJSON() ([]byte, error) {
	var payload any
	switch v.Kind {
	case KindUInt, KindUInt64, KindInt, KindInt64, KindUFix64, KindFix64, KindString, KindAddress:
		payload = v.Str
	case KindBool:
		payload = v.Bool
	case KindArray:
		elems := v.Elems
		if elems == nil {
			elems = []Value{}
		}
		payload = elems
	case KindOptional:
		if v.Inner == nil {
			payload = nil
		} else {
			payload = *v.Inner
		}
	case KindDict:
		pairs := make([]map[string]Value, 0, len(v.Pairs))
		for _, p := range v.Pairs {
			pairs = append(pairs, map[string]Value{"key": p.Key, "value": p.Value})
		}
		payload = pairs
	default:
		return nil, fmt.Errorf("ledger: cannot encode value of kind %q", v.Kind)
	}
	return json.Marshal(struct {
		Type  Kind `json:"type"`
		Value any  `json:"value"`
	}{v.Kind, payload})
}

// Decode parses a tagged-union payload. Unrecognized tags fail loudly; the
// decoder never coerces an unknown shape into a best guess.
func Decode(raw []byte) (Value, error) {
	var w wireValue
	if err := json.Unmarshal(raw, &w); err != nil {
		return Value{}, fmt.Errorf("ledger: decode value: %w", err)
	}
	return decodeWire(w)
}

func decodeWire(w wireValue) (Value, error) {
	kind := Kind(w.Type)
	switch kind {
	case KindUInt, KindUInt64, KindInt, KindInt64, KindUFix64, KindFix64, KindString, KindAddress:
		var s string
		if err := json.Unmarshal(w.Value, &s); err != nil {
			return Value{}, fmt.Errorf("ledger: %s payload is not a string: %w", kind, err)
		}
		return Value{Kind: kind, Str: s}, nil
	case KindBool:
		var b bool
		if err := json.Unmarshal(w.Value, &b); err != nil {
			return Value{}, fmt.Errorf("ledger: Bool payload is not a boolean: %w", err)
		}
		return Value{Kind: kind, Bool: b}, nil
	case KindArray:
		var raws []json.RawMessage
		if err := json.Unmarshal(w.Value, &raws); err != nil {
			return Value{}, fmt.Errorf("ledger: Array payload is not a list: %w", err)
		}
		elems := make([]Value, 0, len(raws))
		for i, r := range raws {
			elem, err := Decode(r)
			if err != nil {
				return Value{}, fmt.Errorf("ledger: array element %d: %w", i, err)
			}
			elems = append(elems, elem)
		}
		return Value{Kind: kind, Elems: elems}, nil
	case KindOptional, "OptionalValue":
		if string(w.Value) == "null" || len(w.Value) == 0 {
			return Value{Kind: KindOptional}, nil
		}
		inner, err := Decode(w.Value)
		if err != nil {
			return Value{}, fmt.Errorf("ledger: optional inner: %w", err)
		}
		return Value{Kind: KindOptional, Inner: &inner}, nil
	case KindDict:
		var raws []wirePair
		if err := json.Unmarshal(w.Value, &raws); err != nil {
			return Value{}, fmt.Errorf("ledger: Dictionary payload is not a pair list: %w", err)
		}
		pairs := make([]DictEntry, 0, len(raws))
		for i, r := range raws {
			key, err := Decode(r.Key)
			if err != nil {
				return Value{}, fmt.Errorf("ledger: dictionary key %d: %w", i, err)
			}
			val, err := Decode(r.Value)
			if err != nil {
				return Value{}, fmt.Errorf("ledger: dictionary value %d: %w", i, err)
			}
			pairs = append(pairs, DictEntry{Key: key, Value: val})
		}
		return Value{Kind: KindDict, Pairs: pairs}, nil
	default:
		return Value{}, fmt.Errorf("ledger: unsupported value tag %q", w.Type)
	}
}

// Float returns the numeric payload of a numeric value.
func (v Value) Float() (float64, error) {
	switch v.Kind {
	case KindUInt, KindUInt64, KindInt, KindInt64, KindUFix64, KindFix64:
		f, err := strconv.ParseFloat(v.Str, 64)
		if err != nil {
			return 0, fmt.Errorf("ledger: parse %s %q: %w", v.Kind, v.Str, err)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("ledger: value of kind %q is not numeric", v.Kind)
	}
}

// Uint returns the unsigned integer payload of an integer value.
func (v Value) Uint() (uint64, error) {
	switch v.Kind {
	case KindUInt, KindUInt64:
		n, err := strconv.ParseUint(v.Str, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("ledger: parse %s %q: %w", v.Kind, v.Str, err)
		}
		return n, nil
	default:
		return 0, fmt.Errorf("ledger: value of kind %q is not an unsigned integer", v.Kind)
	}
}

// Unwrap resolves Optional nesting; ok is false for "none".
func (v Value) Unwrap() (Value, bool) {
	if v.Kind != KindOptional {
		return v, true
	}
	if v.Inner == nil {
		return Value{}, false
	}
	return v.Inner.Unwrap()
}

// DictField finds the value stored under a String key in a Dictionary.
func (v Value) DictField(key string) (Value, bool) {
	if v.Kind != KindDict {
		return Value{}, false
	}
	for _, p := range v.Pairs {
		if p.Key.Kind == KindString && p.Key.Str == key {
			return p.Value, true
		}
	}
	return Value{}, false
}

// FloatSlice converts an Array of numeric values into a float slice.
func (v Value) FloatSlice() ([]float64, error) {
	if v.Kind != KindArray {
		return nil, fmt.Errorf("ledger: value of kind %q is not an array", v.Kind)
	}
	out := make([]float64, 0, len(v.Elems))
	for i, e := range v.Elems {
		f, err := e.Float()
		if err != nil {
			return nil, fmt.Errorf("ledger: array element %d: %w", i, err)
		}
		out = append(out, f)
	}
	return out, nil
}
