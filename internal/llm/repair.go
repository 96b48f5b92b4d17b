package llm

import (
	"bytes"
	"encoding/json"
)

// RepairOnce cuts the raw reply down to one JSON object. It keeps the longest
// span that starts at a '{' and decodes as a complete object, so braces in
// surrounding prose do not matter. When no span decodes it falls back to the
// text between the first '{' and the last '}'. It reports false when there is
// nothing to strip or no object at all. Callers must not apply it to its own
// output.
func RepairOnce(raw []byte) ([]byte, bool) {
	var out []byte
	for i := 0; i < len(raw); i++ {
		if raw[i] != '{' {
			continue
		}
		if n := objectLen(raw[i:]); n > len(out) {
			out = raw[i : i+n]
		}
	}
	if out == nil {
		start := bytes.IndexByte(raw, '{')
		end := bytes.LastIndexByte(raw, '}')
		if start < 0 || end < start {
			return raw, false
		}
		out = raw[start : end+1]
	}
	if len(bytes.TrimSpace(raw)) == len(out) {
		return raw, false
	}
	return out, true
}

// objectLen returns the byte length of the JSON object at the start of b, or
// 0 if b does not start with one.
func objectLen(b []byte) int {
	dec := json.NewDecoder(bytes.NewReader(b))
	var v json.RawMessage
	if err := dec.Decode(&v); err != nil {
		return 0
	}
	return int(dec.InputOffset())
}
