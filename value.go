// Copyright 2018 Jordi Deu-Pons
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may not use this
// file except in compliance with the License. You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software distributed under
// the License is distributed on an "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF
// ANY KIND, either express or implied. See the License for the specific language
// governing permissions and limitations under the License.

package gendas

import (
	"fmt"
	"strconv"
)

// ValueKind identifies the dynamic type carried by a Value.
type ValueKind int

const (
	// KindString is a plain string cell.
	KindString ValueKind = iota
	// KindInt64 is a signed 64-bit integer cell. Sequence coordinates
	// (begin/end columns) are always this kind.
	KindInt64
	// KindFloat64 is a floating point cell.
	KindFloat64
)

func (k ValueKind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindInt64:
		return "int64"
	case KindFloat64:
		return "float64"
	default:
		return "unknown"
	}
}

// Value is a single typed table cell. It is the tagged union the GLOSSARY
// asks for in place of the source language's dynamic row type.
type Value struct {
	kind ValueKind
	str  string
	i64  int64
	f64  float64
}

// StringValue builds a string-kinded Value.
func StringValue(s string) Value { return Value{kind: KindString, str: s} }

// IntValue builds an int64-kinded Value.
func IntValue(i int64) Value { return Value{kind: KindInt64, i64: i} }

// FloatValue builds a float64-kinded Value.
func FloatValue(f float64) Value { return Value{kind: KindFloat64, f64: f} }

// Kind reports the dynamic type of v.
func (v Value) Kind() ValueKind { return v.kind }

// String returns v's textual representation, converting numeric kinds.
func (v Value) String() string {
	switch v.kind {
	case KindString:
		return v.str
	case KindInt64:
		return strconv.FormatInt(v.i64, 10)
	case KindFloat64:
		return strconv.FormatFloat(v.f64, 'g', -1, 64)
	default:
		return ""
	}
}

// Int64 returns v as an int64. It panics if v is not KindInt64; callers that
// don't control the schema should check Kind first.
func (v Value) Int64() int64 {
	if v.kind != KindInt64 {
		panic(fmt.Sprintf("gendas: Value.Int64 called on a %s value", v.kind))
	}
	return v.i64
}

// Float64 returns v as a float64, promoting an int64 cell if necessary.
func (v Value) Float64() float64 {
	switch v.kind {
	case KindFloat64:
		return v.f64
	case KindInt64:
		return float64(v.i64)
	default:
		panic(fmt.Sprintf("gendas: Value.Float64 called on a %s value", v.kind))
	}
}

// Equal reports whether v and o carry the same kind and content. Used by the
// join engine's `on`-column equality check (spec.md §4.3).
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		// Allow cross int/float comparison, same as comparing 25 == 25.0 in
		// the dynamically-typed source language.
		if (v.kind == KindInt64 && o.kind == KindFloat64) || (v.kind == KindFloat64 && o.kind == KindInt64) {
			return v.Float64() == o.Float64()
		}
		return false
	}
	switch v.kind {
	case KindString:
		return v.str == o.str
	case KindInt64:
		return v.i64 == o.i64
	case KindFloat64:
		return v.f64 == o.f64
	default:
		return false
	}
}

// Parser converts a raw text cell (as read from a tab-separated line) into a
// typed Value. A Schema holds one Parser per column.
type Parser func(raw string) (Value, error)

// ParseString is the identity Parser.
func ParseString(raw string) (Value, error) { return StringValue(raw), nil }

// ParseInt64 parses raw as a base-10 signed integer.
func ParseInt64(raw string) (Value, error) {
	i, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return Value{}, err
	}
	return IntValue(i), nil
}

// ParseFloat64 parses raw as a floating point number.
func ParseFloat64(raw string) (Value, error) {
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return Value{}, err
	}
	return FloatValue(f), nil
}
