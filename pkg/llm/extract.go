// SPDX-License-Identifier: Apache-2.0

package llm

import (
	"encoding/json"
	"errors"
	"strings"
)

// ErrNoJSONObject is the typed failure of ExtractJSONObject: no syntactically
// valid JSON object could be located in the input.
var ErrNoJSONObject = errors.New("no JSON object found in text")

// ExtractJSONObject locates the first syntactically valid JSON object in
// arbitrary oracle output. Fenced code blocks are tried first since models
// frequently wrap their answer in markdown; the fallback is a brace-depth
// scan that tolerates prose on either side of the object.
func ExtractJSONObject(text string) (json.RawMessage, error) {
	for _, block := range fencedBlocks(text) {
		if obj, ok := scanObject(block); ok {
			return obj, nil
		}
	}
	if obj, ok := scanObject(text); ok {
		return obj, nil
	}
	return nil, ErrNoJSONObject
}

// fencedBlocks returns the contents of all ``` fenced blocks, language tag
// stripped.
func fencedBlocks(text string) []string {
	var blocks []string
	rest := text
	for {
		start := strings.Index(rest, "```")
		if start < 0 {
			break
		}
		rest = rest[start+3:]
		end := strings.Index(rest, "```")
		if end < 0 {
			break
		}
		block := rest[:end]
		rest = rest[end+3:]

		// Drop a language tag such as "json" on the opening line.
		if nl := strings.IndexByte(block, '\n'); nl >= 0 {
			first := strings.TrimSpace(block[:nl])
			if first != "" && !strings.ContainsAny(first, "{}") {
				block = block[nl+1:]
			}
		}
		blocks = append(blocks, block)
	}
	return blocks
}

// scanObject finds the first balanced {...} span that parses as JSON.
// String literals and escapes are respected so braces inside values do not
// confuse the depth count.
func scanObject(text string) (json.RawMessage, bool) {
	for offset := 0; offset < len(text); {
		start := strings.IndexByte(text[offset:], '{')
		if start < 0 {
			return nil, false
		}
		start += offset

		depth := 0
		inString := false
		escaped := false
		for i := start; i < len(text); i++ {
			c := text[i]
			if inString {
				switch {
				case escaped:
					escaped = false
				case c == '\\':
					escaped = true
				case c == '"':
					inString = false
				}
				continue
			}
			switch c {
			case '"':
				inString = true
			case '{':
				depth++
			case '}':
				depth--
				if depth == 0 {
					candidate := text[start : i+1]
					if json.Valid([]byte(candidate)) {
						return json.RawMessage(candidate), true
					}
					i = len(text) // abandon this start position
				}
			}
		}
		offset = start + 1
	}
	return nil, false
}
