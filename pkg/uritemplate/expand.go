package uritemplate

import (
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"
)

// Pair is a single entry of an associative value. Use Pairs when the order
// of an exploded map matters, plain maps are expanded in sorted key order.
type Pair struct {
	Key   string
	Value string
}

type Pairs []Pair

type valueKind int

const (
	undefined valueKind = iota
	scalar
	list
	assoc
)

type value struct {
	kind  valueKind
	str   string
	items []string
	pairs []Pair
}

// Fill expands the template with the supplied values. It returns false if
// the template is in an error state or if any value could not be expanded.
func (t *Template) Fill(values map[string]any) (string, bool) {
	if t.err != nil {
		return "", false
	}

	var sb strings.Builder

	for _, s := range t.segments {
		if s.expr == nil {
			sb.WriteString(s.literal)
			continue
		}

		if err := s.expr.expand(&sb, values); err != nil {
			return "", false
		}
	}

	return sb.String(), true
}

func (e *expression) expand(sb *strings.Builder, values map[string]any) error {
	first := true

	for _, v := range e.vars {
		val, err := classify(values[v.name])
		if err != nil {
			return fmt.Errorf("variable %s: %w", v.name, err)
		}

		part, defined, err := e.expandVar(v, val)
		if err != nil {
			return err
		}

		if !defined {
			continue
		}

		if first {
			sb.WriteString(e.op.first)
			first = false
		} else {
			sb.WriteString(e.op.sep)
		}

		sb.WriteString(part)
	}

	return nil
}

func (e *expression) expandVar(v varspec, val value) (string, bool, error) {
	switch val.kind {
	case scalar:
		return e.named(v.name, val.str, e.encode(truncate(val.str, v.prefix))), true, nil

	case list:
		if len(val.items) == 0 {
			return "", false, nil
		}

		parts := make([]string, 0, len(val.items))
		for _, item := range val.items {
			encoded := e.encode(truncate(item, v.prefix))
			if v.explode {
				encoded = e.named(v.name, item, encoded)
			}
			parts = append(parts, encoded)
		}

		if v.explode {
			return strings.Join(parts, e.op.sep), true, nil
		}

		joined := strings.Join(parts, ",")
		return e.named(v.name, joined, joined), true, nil

	case assoc:
		if len(val.pairs) == 0 {
			return "", false, nil
		}

		if v.prefix >= 0 {
			return "", false, fmt.Errorf("variable %s: prefix length on associative value (%w)", v.name, ErrUnsupportedValue)
		}

		parts := make([]string, 0, len(val.pairs)*2)
		for _, p := range val.pairs {
			key := e.encode(p.Key)
			encoded := e.encode(p.Value)

			if !v.explode {
				parts = append(parts, key, encoded)
				continue
			}

			if e.op.named && p.Value == "" {
				parts = append(parts, key+e.op.ifEmpty)
			} else {
				parts = append(parts, key+"="+encoded)
			}
		}

		if v.explode {
			return strings.Join(parts, e.op.sep), true, nil
		}

		joined := strings.Join(parts, ",")
		return e.named(v.name, joined, joined), true, nil
	}

	return "", false, nil
}

// named applies the name=value form of named operators. raw is the value
// before encoding and decides whether the empty marker is used.
func (e *expression) named(name, raw, encoded string) string {
	if !e.op.named {
		return encoded
	}

	if raw == "" {
		return name + e.op.ifEmpty
	}

	return name + "=" + encoded
}

func (e *expression) encode(s string) string {
	return encode(s, e.op.reserved)
}

const upperhex = "0123456789ABCDEF"

func encode(s string, allowReserved bool) string {
	var sb strings.Builder
	sb.Grow(len(s))

	for i := 0; i < len(s); i++ {
		c := s[i]

		if isUnreserved(c) || (allowReserved && isReserved(c)) {
			sb.WriteByte(c)
			continue
		}

		if allowReserved && c == '%' && i+2 < len(s) && isHex(s[i+1]) && isHex(s[i+2]) {
			sb.WriteString(s[i : i+3])
			i += 2
			continue
		}

		sb.WriteByte('%')
		sb.WriteByte(upperhex[c>>4])
		sb.WriteByte(upperhex[c&15])
	}

	return sb.String()
}

func isUnreserved(c byte) bool {
	return (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9') ||
		c == '-' || c == '.' || c == '_' || c == '~'
}

func isReserved(c byte) bool {
	return strings.IndexByte(":/?#[]@!$&'()*+,;=", c) >= 0
}

func isHex(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'A' && c <= 'F') || (c >= 'a' && c <= 'f')
}

// truncate keeps the first n characters (not bytes) of s.
func truncate(s string, n int) string {
	if n < 0 {
		return s
	}

	count := 0
	for idx := range s {
		if count == n {
			return s[:idx]
		}
		count++
	}

	return s
}

func classify(v any) (value, error) {
	switch x := v.(type) {
	case nil:
		return value{}, nil
	case string:
		return value{kind: scalar, str: x}, nil
	case Pairs:
		return value{kind: assoc, pairs: x}, nil
	case []Pair:
		return value{kind: assoc, pairs: x}, nil
	case fmt.Stringer:
		return value{kind: scalar, str: x.String()}, nil
	}

	rv := reflect.ValueOf(v)

	for rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return value{}, nil
		}
		rv = rv.Elem()
	}

	if s, ok := scalarString(rv); ok {
		return value{kind: scalar, str: s}, nil
	}

	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.IsNil() {
			return value{}, nil
		}

		items := make([]string, 0, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			item, err := classify(rv.Index(i).Interface())
			if err != nil {
				return value{}, err
			}
			if item.kind == undefined {
				continue
			}
			if item.kind != scalar {
				return value{}, fmt.Errorf("nested composite in list (%w)", ErrUnsupportedValue)
			}
			items = append(items, item.str)
		}
		return value{kind: list, items: items}, nil

	case reflect.Map:
		if rv.IsNil() {
			return value{}, nil
		}
		if rv.Type().Key().Kind() != reflect.String {
			return value{}, fmt.Errorf("map keys must be strings (%w)", ErrUnsupportedValue)
		}

		keys := make([]string, 0, rv.Len())
		for _, k := range rv.MapKeys() {
			keys = append(keys, k.String())
		}
		sort.Strings(keys)

		pairs := make([]Pair, 0, len(keys))
		for _, k := range keys {
			item, err := classify(rv.MapIndex(reflect.ValueOf(k).Convert(rv.Type().Key())).Interface())
			if err != nil {
				return value{}, err
			}
			if item.kind == undefined {
				continue
			}
			if item.kind != scalar {
				return value{}, fmt.Errorf("nested composite in map (%w)", ErrUnsupportedValue)
			}
			pairs = append(pairs, Pair{Key: k, Value: item.str})
		}
		return value{kind: assoc, pairs: pairs}, nil
	}

	return value{}, fmt.Errorf("%T (%w)", v, ErrUnsupportedValue)
}

func scalarString(rv reflect.Value) (string, bool) {
	switch rv.Kind() {
	case reflect.String:
		return rv.String(), true
	case reflect.Bool:
		return strconv.FormatBool(rv.Bool()), true
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(rv.Int(), 10), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return strconv.FormatUint(rv.Uint(), 10), true
	case reflect.Float32:
		return strconv.FormatFloat(rv.Float(), 'f', -1, 32), true
	case reflect.Float64:
		return strconv.FormatFloat(rv.Float(), 'f', -1, 64), true
	}
	return "", false
}
