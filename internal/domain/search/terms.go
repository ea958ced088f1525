package search

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
	"unicode/utf16"

	"github.com/kailas-cloud/clarityreplay/internal/domain/kind"
)

// Params are the query parameters of a find call. A parameter may repeat.
type Params map[string][]string

// ParamsFrom converts loosely typed search parameters. Scalars become a
// single value, slices and arrays one value per element, nil values are
// dropped.
func ParamsFrom(m map[string]any) Params {
	out := make(Params, len(m))
	for k, v := range m {
		out[k] = stringValues(v)
	}
	return out
}

func stringValues(v any) []string {
	if v == nil {
		return nil
	}
	switch t := v.(type) {
	case string:
		return []string{t}
	case []string:
		return append([]string(nil), t...)
	case fmt.Stringer:
		return []string{t.String()}
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.Type().Elem().Kind() == reflect.Uint8 {
			return []string{string(rv.Bytes())}
		}
		out := make([]string, 0, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			ev := rv.Index(i)
			if (ev.Kind() == reflect.Interface || ev.Kind() == reflect.Pointer) && ev.IsNil() {
				continue
			}
			out = append(out, stringValues(ev.Interface())...)
		}
		return out
	case reflect.Map:
		// Sets are commonly passed as map[T]struct{} or map[T]bool.
		keys := rv.MapKeys()
		out := make([]string, 0, len(keys))
		for _, key := range keys {
			out = append(out, fmt.Sprint(key.Interface()))
		}
		sort.Strings(out)
		return out
	case reflect.Pointer:
		if rv.IsNil() {
			return nil
		}
		return stringValues(rv.Elem().Interface())
	}
	return []string{fmt.Sprint(v)}
}

// Term is one search parameter with its values. Value order is not
// significant.
type Term struct {
	Param  string
	Values []string
}

// Hash combines the parameter and value hashes with XOR so that value
// order does not change the result.
func (t Term) Hash() uint32 {
	h := stringHash(t.Param)
	for _, v := range t.Values {
		h ^= stringHash(v)
	}
	return h
}

// Equal reports whether t and o have the same parameter and the same set
// of values.
func (t Term) Equal(o Term) bool {
	if t.Param != o.Param || len(t.Values) != len(o.Values) {
		return false
	}
	have := make(map[string]struct{}, len(t.Values))
	for _, v := range t.Values {
		have[v] = struct{}{}
	}
	for _, v := range o.Values {
		if _, ok := have[v]; !ok {
			return false
		}
	}
	return true
}

func (t Term) String() string {
	return t.Param + "=" + strings.Join(t.Values, ",")
}

// Terms is the full set of parameters of a search for one entity kind.
type Terms struct {
	kind  kind.Kind
	terms []Term
}

// NewTerms builds search terms for kind k. Terms are held sorted by
// parameter name; value order is kept as given, without repeats. Invalid
// UTF-8 becomes U+FFFD, as it does once written to XML.
func NewTerms(k kind.Kind, params Params) Terms {
	terms := make([]Term, 0, len(params))
	for p, vals := range params {
		values := make([]string, 0, len(vals))
		seen := make(map[string]struct{}, len(vals))
		for _, v := range vals {
			v = validUTF8(v)
			if _, ok := seen[v]; ok {
				continue
			}
			seen[v] = struct{}{}
			values = append(values, v)
		}
		terms = append(terms, Term{Param: validUTF8(p), Values: values})
	}
	sort.Slice(terms, func(i, j int) bool { return terms[i].Param < terms[j].Param })
	return Terms{kind: k, terms: terms}
}

// Kind returns the kind searched for.
func (t Terms) Kind() kind.Kind { return t.kind }

// Terms returns the individual terms sorted by parameter.
func (t Terms) Terms() []Term { return t.terms }

// Params returns the terms as query parameters.
func (t Terms) Params() Params {
	out := make(Params, len(t.terms))
	for _, term := range t.terms {
		out[term.Param] = append([]string(nil), term.Values...)
	}
	return out
}

// Hash is the order-insensitive hash that names the search file.
func (t Terms) Hash() uint32 {
	h := stringHash(t.kind.Class())
	for _, term := range t.terms {
		h ^= term.Hash()
	}
	return h
}

// Equal reports whether both searches are for the same kind with the same
// parameters and values, ignoring value order.
func (t Terms) Equal(o Terms) bool {
	if t.kind != o.kind || len(t.terms) != len(o.terms) {
		return false
	}
	byParam := make(map[string]Term, len(o.terms))
	for _, term := range o.terms {
		byParam[term.Param] = term
	}
	for _, term := range t.terms {
		other, ok := byParam[term.Param]
		if !ok || !term.Equal(other) {
			return false
		}
	}
	return true
}

func (t Terms) String() string {
	var b strings.Builder
	b.WriteString("Terms[kind=")
	b.WriteString(t.kind.Class())
	for _, term := range t.terms {
		b.WriteByte(',')
		b.WriteString(term.String())
	}
	b.WriteByte(']')
	return b.String()
}

func validUTF8(s string) string {
	return strings.ToValidUTF8(s, "\uFFFD")
}

// stringHash is the 32-bit polynomial hash s[0]*31^(n-1) + ... + s[n-1]
// over UTF-16 code units. It must stay stable: it names files on disk.
func stringHash(s string) uint32 {
	var h uint32
	for _, c := range utf16.Encode([]rune(s)) {
		h = 31*h + uint32(c)
	}
	return h
}
