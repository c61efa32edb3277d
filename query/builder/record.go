package builder

import (
	"fmt"
	"reflect"
	"strings"
)

// toValues flattens a record into column -> value. Accepted shapes are
// map[string]interface{}, *schema.Record-like types exposing Map(), and
// structs (or pointers to structs) whose fields carry `db` tags. Nil
// values and nil pointers are dropped so partial records stay partial.
func toValues(record interface{}) (map[string]interface{}, error) {
	if record == nil {
		return nil, ErrNilRecord
	}

	switch r := record.(type) {
	case map[string]interface{}:
		return dropNil(r), nil
	case interface{ Map() map[string]interface{} }:
		return dropNil(r.Map()), nil
	}

	v := reflect.ValueOf(record)
	for v.Kind() == reflect.Ptr {
		if v.IsNil() {
			return nil, ErrNilRecord
		}
		v = v.Elem()
	}

	switch v.Kind() {
	case reflect.Map:
		if v.Type().Key().Kind() != reflect.String {
			return nil, fmt.Errorf("unsupported record key type %s", v.Type().Key())
		}
		out := make(map[string]interface{}, v.Len())
		iter := v.MapRange()
		for iter.Next() {
			if val, ok := deref(iter.Value()); ok {
				out[iter.Key().String()] = val
			}
		}
		return out, nil
	case reflect.Struct:
		out := make(map[string]interface{})
		structValues(v, out)
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported record type %T", record)
	}
}

func structValues(v reflect.Value, out map[string]interface{}) {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}

		tag := f.Tag.Get("db")
		if tag == "-" {
			continue
		}
		name, _, _ := strings.Cut(tag, ",")

		if f.Anonymous && name == "" && f.Type.Kind() == reflect.Struct {
			structValues(v.Field(i), out)
			continue
		}
		if name == "" {
			name = snakeCase(f.Name)
		}
		if val, ok := deref(v.Field(i)); ok {
			out[name] = val
		}
	}
}

// deref unwraps pointers and interfaces, reporting false for nil.
func deref(v reflect.Value) (interface{}, bool) {
	for v.Kind() == reflect.Ptr || v.Kind() == reflect.Interface {
		if v.IsNil() {
			return nil, false
		}
		v = v.Elem()
	}
	if !v.IsValid() {
		return nil, false
	}
	return v.Interface(), true
}

func dropNil(m map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(m))
	for k, val := range m {
		if val, ok := deref(reflect.ValueOf(val)); ok {
			out[k] = val
		}
	}
	return out
}

func snakeCase(s string) string {
	var b strings.Builder
	for i, r := range s {
		if r >= 'A' && r <= 'Z' {
			if i > 0 && !(s[i-1] >= 'A' && s[i-1] <= 'Z') {
				b.WriteByte('_')
			}
			b.WriteRune(r + ('a' - 'A'))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
