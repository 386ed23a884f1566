package scheduler

import (
	"bytes"
	"fmt"
	"sort"
	"strconv"
)

// fingerprint computes the canonical identity of a SharedParams value: a
// byte string produced by serialising its (key, value) pairs ordered by
// key ascending, using a canonical JSON-like encoding with no
// insignificant whitespace and shortest-round-trip number formatting.
// Two SharedParams values with equal content always produce
// byte-identical fingerprints, regardless of construction order (P5).
func fingerprint(s SharedParams) string {
	type kv struct {
		key string
		val string
	}

	pairs := []kv{{"model", encodeString(s.Model)}}

	if s.MaxTokens != nil {
		pairs = append(pairs, kv{"max_tokens", encodeInt(*s.MaxTokens)})
	}
	if s.N != nil {
		pairs = append(pairs, kv{"n", encodeInt(*s.N)})
	}
	if s.HasStop {
		pairs = append(pairs, kv{"stop", encodeStringList(s.Stop)})
	}
	if s.Temperature != nil {
		pairs = append(pairs, kv{"temperature", encodeFloat(*s.Temperature)})
	}

	sort.Slice(pairs, func(i, j int) bool { return pairs[i].key < pairs[j].key })

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, p := range pairs {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.WriteString(encodeString(p.key))
		buf.WriteByte(':')
		buf.WriteString(p.val)
	}
	buf.WriteByte('}')
	return buf.String()
}

// encodeString produces a canonical, UTF-8-safe, minimally-escaped JSON
// string literal.
func encodeString(s string) string {
	var buf bytes.Buffer
	buf.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			buf.WriteString(`\"`)
		case '\\':
			buf.WriteString(`\\`)
		case '\n':
			buf.WriteString(`\n`)
		case '\t':
			buf.WriteString(`\t`)
		case '\r':
			buf.WriteString(`\r`)
		default:
			buf.WriteRune(r)
		}
	}
	buf.WriteByte('"')
	return buf.String()
}

func encodeStringList(list []string) string {
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, s := range list {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.WriteString(encodeString(s))
	}
	buf.WriteByte(']')
	return buf.String()
}

func encodeInt(n int) string {
	return strconv.Itoa(n)
}

// encodeFloat uses the shortest decimal representation that round-trips
// to the same float64, so two equal parameter values always canonicalize
// to the same fingerprint regardless of how the caller wrote the number.
func encodeFloat(f float64) string {
	if f == float64(int64(f)) {
		// Shortest round-trip form for integral floats still needs a
		// decimal point to stay distinguishable from an int-typed field,
		// matching typical JSON-number canonicalisation.
		return fmt.Sprintf("%d.0", int64(f))
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}
