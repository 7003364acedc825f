// Package partialjson turns the accumulated output of a streaming LLM call into
// decodable JSON. Model output is a JSON object arriving a few characters at a
// time, often wrapped in prose or a markdown code fence.
package partialjson

import (
	"encoding/json"
	"strings"
)

type frame struct {
	object    bool
	expectKey bool
}

type scanState struct {
	doc      string // text from the first '{'
	stack    []frame
	inString bool
	escaped  bool
	end      int // index just past the closed top-level value, or -1
}

// body returns the text to search for objects: the contents of a code fence
// opened before any '{', otherwise raw itself.
func body(raw string) string {
	fence := strings.Index(raw, "```")
	if fence < 0 {
		return raw
	}
	if brace := strings.IndexByte(raw, '{'); brace >= 0 && brace < fence {
		return raw
	}
	rest := raw[fence+3:]
	nl := strings.IndexByte(rest, '\n')
	if nl < 0 {
		return ""
	}
	return rest[nl+1:]
}

// scan walks the first object of s. ok is false when the brackets do not
// match; st.doc is empty when s holds no '{'.
func scan(s string) (scanState, bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return scanState{end: -1}, false
	}
	st := scanState{doc: s[start:], end: -1}
	s = st.doc

	for i := 0; i < len(s); i++ {
		c := s[i]
		if st.inString {
			switch {
			case st.escaped:
				st.escaped = false
			case c == '\\':
				st.escaped = true
			case c == '"':
				st.inString = false
			}
			continue
		}

		switch c {
		case '"':
			st.inString = true
		case '{':
			st.stack = append(st.stack, frame{object: true, expectKey: true})
		case '[':
			st.stack = append(st.stack, frame{})
		case '}', ']':
			if len(st.stack) == 0 {
				return st, false
			}
			top := st.stack[len(st.stack)-1]
			if top.object != (c == '}') {
				return st, false
			}
			st.stack = st.stack[:len(st.stack)-1]
			if len(st.stack) == 0 {
				st.end = i + 1
				return st, true
			}
		case ':':
			if n := len(st.stack); n > 0 && st.stack[n-1].object {
				st.stack[n-1].expectKey = false
			}
		case ',':
			if n := len(st.stack); n > 0 && st.stack[n-1].object {
				st.stack[n-1].expectKey = true
			}
		}
	}
	return st, true
}

// Objects returns every complete top-level JSON object in raw, in order.
// Bracketed prose that is not valid JSON is skipped.
func Objects(raw string) []string {
	var out []string
	s := body(raw)
	for {
		st, ok := scan(s)
		switch {
		case st.doc == "":
			return out
		case !ok:
			s = st.doc[1:]
		case st.end < 0:
			return out
		default:
			if v := st.doc[:st.end]; json.Valid([]byte(v)) {
				out = append(out, v)
			}
			s = st.doc[st.end:]
		}
	}
}

// Extract returns the first complete top-level JSON object in raw, dropping
// any surrounding text. ok is false if no object has been closed yet.
func Extract(raw string) (string, bool) {
	objs := Objects(raw)
	if len(objs) == 0 {
		return "", false
	}
	return objs[0], true
}

// Repair closes a truncated JSON object: open strings are terminated,
// incomplete literals are completed or dropped, dangling separators are
// removed and open containers are closed. A complete object is returned as
// is. ok is false when raw contains no object yet or is structurally invalid.
func Repair(raw string) (string, bool) {
	s := body(raw)
	var st scanState
	for {
		var ok bool
		st, ok = scan(s)
		if st.doc == "" {
			return "", false
		}
		if !ok {
			s = st.doc[1:]
			continue
		}
		if st.end < 0 {
			break
		}
		if v := st.doc[:st.end]; json.Valid([]byte(v)) {
			return v, true
		}
		s = st.doc[st.end:]
	}

	out := st.doc
	topExpectsKey := func() bool {
		n := len(st.stack)
		return n > 0 && st.stack[n-1].object && st.stack[n-1].expectKey
	}

	if st.inString {
		if st.escaped {
			out = out[:len(out)-1]
		}
		out = trimPartialUnicode(out) + `"`
		if topExpectsKey() {
			out += ":null"
		}
	} else {
		out = completeLiteral(strings.TrimRight(out, " \t\r\n"))
		switch out[len(out)-1] {
		case ',':
			out = out[:len(out)-1]
		case ':':
			out += "null"
		case '"':
			if topExpectsKey() {
				out += ":null"
			}
		}
	}

	var b strings.Builder
	b.WriteString(out)
	for i := len(st.stack) - 1; i >= 0; i-- {
		if st.stack[i].object {
			b.WriteByte('}')
		} else {
			b.WriteByte(']')
		}
	}
	return b.String(), true
}

// trimPartialUnicode drops a trailing, unfinished \uXXXX escape.
func trimPartialUnicode(s string) string {
	i := strings.LastIndex(s, `\u`)
	if i < 0 || len(s)-i >= 6 {
		return s
	}
	for _, c := range s[i+2:] {
		if !isHex(c) {
			return s
		}
	}
	return s[:i]
}

// completeLiteral finishes a trailing true/false/null prefix and trims a
// trailing number that cannot be parsed yet ("1.", "2e", "-").
func completeLiteral(s string) string {
	i := len(s)
	for i > 0 && isLiteralByte(s[i-1]) {
		i--
	}
	run := s[i:]
	if run == "" {
		return s
	}
	for _, lit := range []string{"true", "false", "null"} {
		if strings.HasPrefix(lit, run) {
			return s[:i] + lit
		}
	}
	trimmed := strings.TrimRight(run, ".eE+-")
	return strings.TrimRight(s[:i]+trimmed, " \t\r\n")
}

func isLiteralByte(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' ||
		c == '.' || c == '-' || c == '+'
}

func isHex(c rune) bool {
	return c >= '0' && c <= '9' || c >= 'a' && c <= 'f' || c >= 'A' && c <= 'F'
}
