// SPDX-FileCopyrightText: Copyright (c) 2020 Artyom Pervukhin
//
// SPDX-License-Identifier: MIT

// Package csvstruct scans rows obtained from a csv.Reader into structs.
//
// Struct fields are matched to header columns with their "csv" tag,
// a comma separated list of column names, or their name. A field with
// a `case:"ignore"` tag matches columns regardless of case.
//
// It supports string, integer, unsigned integer, float and boolean
// fields, and fields with a type implementing encoding.TextUnmarshaler.
package csvstruct

import (
	"encoding"
	"errors"
	"fmt"
	"reflect"
	"slices"
	"strconv"
	"strings"
)

var textUnmarshalerType = reflect.TypeFor[encoding.TextUnmarshaler]()

// Scanner scans a CSV row into dst. It must be called with the type
// it was created from by [NewScanner].
type Scanner func(row []string, dst any) error

type setter struct {
	csvIdx   int
	fieldIdx int
	fn       func(field reflect.Value, s string) error
}

func colIdx(header []string, f reflect.StructField) int {
	ignoreCase := f.Tag.Get("case") == "ignore"

	idxFn := func(x string) int {
		return slices.IndexFunc(header, func(v string) bool {
			if !ignoreCase {
				return x == v
			}
			return strings.EqualFold(x, v)
		})
	}

	for t := range strings.SplitSeq(f.Tag.Get("csv"), ",") {
		if t == "" {
			continue
		}
		if i := idxFn(t); i != -1 {
			return i
		}
	}

	return idxFn(f.Name)
}

// setterFor returns the function that sets a field of type t from
// a string.
func setterFor(t reflect.Type) func(reflect.Value, string) error {
	if reflect.PointerTo(t).Implements(textUnmarshalerType) {
		return func(field reflect.Value, s string) error {
			return field.Addr().Interface().(encoding.TextUnmarshaler).UnmarshalText([]byte(s))
		}
	}

	switch t.Kind() {
	case reflect.String:
		return func(field reflect.Value, s string) error {
			field.SetString(s)
			return nil
		}
	case reflect.Bool:
		return func(field reflect.Value, s string) error {
			x, err := strconv.ParseBool(s)
			if err != nil {
				return err
			}
			field.SetBool(x)
			return nil
		}
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return func(field reflect.Value, s string) error {
			x, err := strconv.ParseInt(s, 0, t.Bits())
			if err != nil {
				return err
			}
			field.SetInt(x)
			return nil
		}
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return func(field reflect.Value, s string) error {
			x, err := strconv.ParseUint(s, 0, t.Bits())
			if err != nil {
				return err
			}
			field.SetUint(x)
			return nil
		}
	case reflect.Float32, reflect.Float64:
		return func(field reflect.Value, s string) error {
			x, err := strconv.ParseFloat(s, t.Bits())
			if err != nil {
				return err
			}
			field.SetFloat(x)
			return nil
		}
	}
	return nil
}

// NewScanner returns a [Scanner] for header and the type of dst, which
// must be a pointer to a struct. It does not modify dst.
//
// Only exported fields are processed. Fields tagged `csv:"-"` and fields
// without a matching column are ignored.
func NewScanner(header []string, dst any) (Scanner, error) {
	originalType := reflect.TypeOf(dst)
	if originalType == nil || originalType.Kind() != reflect.Pointer || originalType.Elem().Kind() != reflect.Struct {
		panic("csvstruct: dst must be a pointer to a struct type")
	}
	st := originalType.Elem()

	var setters []setter
	for i := range st.NumField() {
		field := st.Field(i)
		if !field.IsExported() || field.Tag.Get("csv") == "-" {
			continue
		}

		csvIdx := colIdx(header, field)
		if csvIdx == -1 {
			continue
		}

		fn := setterFor(field.Type)
		if fn == nil {
			return nil, fmt.Errorf("field %q has unsupported type", field.Name)
		}
		setters = append(setters, setter{csvIdx: csvIdx, fieldIdx: i, fn: fn})
	}
	if len(setters) == 0 {
		return nil, errors.New("no matches found between header and csv-tagged struct fields")
	}

	return func(row []string, dst any) error {
		if reflect.TypeOf(dst) != originalType {
			panic("csvstruct: Scanner called on the different type from the one used in the NewScanner call")
		}
		v := reflect.ValueOf(dst).Elem()
		for _, s := range setters {
			if s.csvIdx >= len(row) {
				return fmt.Errorf("missing column %d", s.csvIdx+1)
			}
			if err := s.fn(v.Field(s.fieldIdx), row[s.csvIdx]); err != nil {
				return err
			}
		}
		return nil
	}, nil
}
