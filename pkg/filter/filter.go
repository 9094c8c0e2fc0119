// Package filter encodes field filters into the EDC `filter` query parameter.
//
// A filter map associates a field name with a plain value (equality), an Op
// (explicit operator) or a slice (any of the values). Terms are joined with
// ";" (AND); alternatives of a slice are joined with "," (OR) and wrapped in
// parentheses.
package filter

import (
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode"
)

// Connectors of the filter grammar.
const (
	And = ";"
	Or  = ","
)

// Operators understood by the service.
const (
	Equal          = "=="
	NotEqual       = "!="
	Greater        = ">"
	GreaterOrEqual = ">="
	Less           = "<"
	LessOrEqual    = "<="
	Contains       = "=like="
)

// Op is a value compared with an explicit operator.
type Op struct {
	Operator string
	Value    any
}

// Gt is shorthand for Op{Greater, v}.
func Gt(v any) Op { return Op{Operator: Greater, Value: v} }

// Ge is shorthand for Op{GreaterOrEqual, v}.
func Ge(v any) Op { return Op{Operator: GreaterOrEqual, Value: v} }

// Lt is shorthand for Op{Less, v}.
func Lt(v any) Op { return Op{Operator: Less, Value: v} }

// Le is shorthand for Op{LessOrEqual, v}.
func Le(v any) Op { return Op{Operator: LessOrEqual, Value: v} }

// Ne is shorthand for Op{NotEqual, v}.
func Ne(v any) Op { return Op{Operator: NotEqual, Value: v} }

// Like is shorthand for Op{Contains, v}.
func Like(v any) Op { return Op{Operator: Contains, Value: v} }

// Build encodes filters. Keys are emitted in sorted order so equal maps
// produce equal strings. snake_case keys are converted to camelCase.
// An empty map yields "".
func Build(filters map[string]any) string {
	keys := make([]string, 0, len(filters))
	for k := range filters {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	terms := make([]string, 0, len(keys))
	for _, k := range keys {
		if term := buildTerm(CamelCase(k), filters[k]); term != "" {
			terms = append(terms, term)
		}
	}
	return strings.Join(terms, And)
}

func buildTerm(field string, value any) string {
	switch v := value.(type) {
	case Op:
		op := v.Operator
		if op == "" {
			op = Equal
		}
		return field + op + FormatValue(v.Value)
	case []string:
		alts := make([]string, len(v))
		for i, item := range v {
			alts[i] = field + Equal + FormatValue(item)
		}
		return group(alts)
	case string, []byte:
		return field + Equal + FormatValue(v)
	}

	rv := reflect.ValueOf(value)
	if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
		alts := make([]string, rv.Len())
		for i := range alts {
			alts[i] = buildTerm(field, rv.Index(i).Interface())
		}
		return group(alts)
	}

	return field + Equal + FormatValue(value)
}

func group(alts []string) string {
	switch len(alts) {
	case 0:
		return ""
	case 1:
		return alts[0]
	default:
		return "(" + strings.Join(alts, Or) + ")"
	}
}

const specialChars = ";,()=<>!\" "

// FormatValue renders a single filter value. Strings containing grammar
// characters or spaces are double-quoted.
func FormatValue(value any) string {
	switch v := value.(type) {
	case nil:
		return "null"
	case string:
		if v == "" || strings.ContainsAny(v, specialChars) {
			return strconv.Quote(v)
		}
		return v
	case []byte:
		return FormatValue(string(v))
	case bool:
		return strconv.FormatBool(v)
	case time.Time:
		return v.UTC().Format(time.RFC3339)
	case fmt.Stringer:
		return FormatValue(v.String())
	default:
		return fmt.Sprint(v)
	}
}

// CamelCase converts snake_case to camelCase. Keys without underscores are
// returned unchanged.
func CamelCase(key string) string {
	if !strings.Contains(key, "_") {
		return key
	}

	var b strings.Builder
	upper := false
	for i, r := range key {
		switch {
		case r == '_':
			upper = b.Len() > 0
		case upper:
			b.WriteRune(unicode.ToUpper(r))
			upper = false
		case i == 0:
			b.WriteRune(unicode.ToLower(r))
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
