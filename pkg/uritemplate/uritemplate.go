// Package uritemplate implements RFC 6570 URI Templates, levels 1 to 4.
//
// A template is compiled once and can then be filled any number of times.
// Templates that fail to compile are kept in an error state instead of
// failing loudly, and filling them always yields no result.
package uritemplate

import (
	"fmt"
	"strconv"
	"strings"
)

var (
	ErrUnbalancedBraces  = fmt.Errorf("unbalanced braces")
	ErrEmptyExpression   = fmt.Errorf("empty expression")
	ErrInvalidVarName    = fmt.Errorf("invalid variable name")
	ErrInvalidPrefix     = fmt.Errorf("invalid prefix length")
	ErrExplodeWithPrefix = fmt.Errorf("explode modifier combined with prefix length")
	ErrUnsupportedValue  = fmt.Errorf("unsupported value")
)

const maxPrefixLength = 9999

// operator holds the formatting rules selected by the leading character
// of an expression.
type operator struct {
	first    string
	sep      string
	named    bool
	ifEmpty  string
	reserved bool
}

var simpleOperator = operator{sep: ","}

var operators = map[byte]operator{
	'+': {sep: ",", reserved: true},
	'#': {first: "#", sep: ",", reserved: true},
	'.': {first: ".", sep: "."},
	'/': {first: "/", sep: "/"},
	';': {first: ";", sep: ";", named: true},
	'?': {first: "?", sep: "&", named: true, ifEmpty: "="},
	'&': {first: "&", sep: "&", named: true, ifEmpty: "="},
}

type varspec struct {
	name    string
	explode bool
	prefix  int
}

type expression struct {
	op   operator
	vars []varspec
}

type segment struct {
	literal string
	expr    *expression
}

// Template is a compiled URI template.
type Template struct {
	raw      string
	segments []segment
	err      error
}

// Compile parses a template string. The returned template is never nil;
// use Err to find out if it is usable.
func Compile(template string) *Template {
	t := &Template{raw: template}
	t.err = t.parse(template)
	if t.err != nil {
		t.segments = nil
	}
	return t
}

// Expand compiles and fills a template in one go.
func Expand(template string, values map[string]any) (string, bool) {
	return Compile(template).Fill(values)
}

func (t *Template) String() string {
	return t.raw
}

// Err returns the reason the template could not be compiled, if any.
func (t *Template) Err() error {
	return t.err
}

// Variables returns the names of all variables referenced by the template,
// in order of first appearance.
func (t *Template) Variables() []string {
	seen := map[string]struct{}{}
	names := []string{}

	for _, s := range t.segments {
		if s.expr == nil {
			continue
		}
		for _, v := range s.expr.vars {
			if _, ok := seen[v.name]; ok {
				continue
			}
			seen[v.name] = struct{}{}
			names = append(names, v.name)
		}
	}

	return names
}

func (t *Template) parse(template string) error {
	rest := template

	for len(rest) > 0 {
		open := strings.IndexByte(rest, '{')
		closing := strings.IndexByte(rest, '}')

		if open < 0 {
			if closing >= 0 {
				return fmt.Errorf("stray '}' in %q (%w)", template, ErrUnbalancedBraces)
			}
			t.segments = append(t.segments, segment{literal: rest})
			return nil
		}

		if closing >= 0 && closing < open {
			return fmt.Errorf("stray '}' in %q (%w)", template, ErrUnbalancedBraces)
		}

		if open > 0 {
			t.segments = append(t.segments, segment{literal: rest[:open]})
		}

		rest = rest[open+1:]

		end := strings.IndexByte(rest, '}')
		if end < 0 {
			return fmt.Errorf("unterminated expression in %q (%w)", template, ErrUnbalancedBraces)
		}

		body := rest[:end]
		if strings.IndexByte(body, '{') >= 0 {
			return fmt.Errorf("nested '{' in %q (%w)", template, ErrUnbalancedBraces)
		}

		expr, err := parseExpression(body)
		if err != nil {
			return err
		}

		t.segments = append(t.segments, segment{expr: expr})
		rest = rest[end+1:]
	}

	return nil
}

func parseExpression(body string) (*expression, error) {
	if body == "" {
		return nil, ErrEmptyExpression
	}

	expr := &expression{op: simpleOperator}

	if op, ok := operators[body[0]]; ok {
		expr.op = op
		body = body[1:]
	}

	for _, spec := range strings.Split(body, ",") {
		v, err := parseVarspec(spec)
		if err != nil {
			return nil, err
		}
		expr.vars = append(expr.vars, v)
	}

	return expr, nil
}

func parseVarspec(spec string) (varspec, error) {
	v := varspec{name: spec, prefix: -1}

	if strings.HasSuffix(v.name, "*") {
		v.explode = true
		v.name = strings.TrimSuffix(v.name, "*")
	}

	if idx := strings.IndexByte(v.name, ':'); idx >= 0 {
		length, err := parsePrefix(v.name[idx+1:])
		if err != nil {
			return v, fmt.Errorf("variable %q: %w", spec, err)
		}
		if v.explode {
			return v, fmt.Errorf("variable %q (%w)", spec, ErrExplodeWithPrefix)
		}
		v.prefix = length
		v.name = v.name[:idx]
	}

	if !validName(v.name) {
		return v, fmt.Errorf("variable %q (%w)", spec, ErrInvalidVarName)
	}

	return v, nil
}

// parsePrefix accepts a length between 1 and 9999 without leading zeros.
func parsePrefix(digits string) (int, error) {
	if digits == "" || len(digits) > 4 || digits[0] == '0' {
		return 0, fmt.Errorf("%q (%w)", digits, ErrInvalidPrefix)
	}

	for i := 0; i < len(digits); i++ {
		if digits[i] < '0' || digits[i] > '9' {
			return 0, fmt.Errorf("%q (%w)", digits, ErrInvalidPrefix)
		}
	}

	length, err := strconv.Atoi(digits)
	if err != nil || length > maxPrefixLength {
		return 0, fmt.Errorf("%q (%w)", digits, ErrInvalidPrefix)
	}

	return length, nil
}

func validName(name string) bool {
	if name == "" {
		return false
	}

	for i := 0; i < len(name); i++ {
		c := name[i]
		switch {
		case c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z', c >= '0' && c <= '9', c == '_', c == '.':
		case c == '%' && i+2 < len(name) && isHex(name[i+1]) && isHex(name[i+2]):
			i += 2
		default:
			return false
		}
	}

	return true
}
