// Package extract pulls structured data out of free-form model output.
// Everything here is pure: no state, no I/O.
package extract

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/kaptinlin/jsonrepair"
)

// ErrNoJSON means the text contains no object candidate.
var ErrNoJSON = errors.New("no json object found in text")

// JSONObject returns the first balanced {...} substring of text.
// Braces inside JSON strings are ignored.
func JSONObject(text string) (string, bool) {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return "", false
	}
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
				return text[start : i+1], true
			}
		}
	}
	return "", false
}

// DecodeJSON extracts the first object from text and decodes it into v.
// Malformed or truncated objects get one pass through jsonrepair.
func DecodeJSON(text string, v any) error {
	obj, ok := JSONObject(text)
	if !ok {
		// truncated output: take everything from the first brace and let repair close it
		start := strings.IndexByte(text, '{')
		if start < 0 {
			return ErrNoJSON
		}
		obj = text[start:]
	}
	if err := json.Unmarshal([]byte(obj), v); err == nil {
		return nil
	}
	fixed, err := jsonrepair.JSONRepair(obj)
	if err != nil {
		return err
	}
	return json.Unmarshal([]byte(fixed), v)
}
