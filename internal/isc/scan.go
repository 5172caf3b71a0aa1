package isc

import (
	"bytes"
	"fmt"
	"strconv"
	"unicode"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
)

// ParseValue parses a single array element. Unlike a scanf-style read it
// rejects trailing garbage, empty text and values that cannot take part in a
// reduction (NaN, ±Inf).
func ParseValue(text string) (float64, error) {
	if text == "" {
		return 0, errors.E(errors.Invalid, "empty numeric text")
	}
	v, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return 0, errors.E(errors.Invalid, fmt.Sprintf("malformed number %q", text), err)
	}
	if !usable(v) {
		return 0, errors.E(errors.Invalid, fmt.Sprintf("non-finite number %q", text))
	}
	return v, nil
}

// Scan reduces one segment of whitespace separated array text. The text
// before the first separator and after the last one is returned verbatim,
// since either may be a fragment of a number cut by the segment boundary.
// Malformed complete tokens keep their position but do not compete.
func Scan(text []byte, d Direction) MinMaxResult {
	first := bytes.IndexFunc(text, unicode.IsSpace)
	if first < 0 {
		return MinMaxResult{Left: string(text)}
	}
	last := bytes.LastIndexFunc(text, unicode.IsSpace)

	res := MinMaxResult{
		Left:  string(text[:first]),
		Right: string(text[last+1:]),
		Split: true,
	}
	tokens := bytes.Fields(text[first : last+1])
	for i, tok := range tokens {
		v, err := ParseValue(string(tok))
		if err != nil {
			log.Debug.Printf("scan: position %d: %v", i+1, err)
			continue
		}
		if !res.Found || d.Better(v, res.Value) {
			res.Value = v
			res.Index = uint64(i + 1)
			res.Found = true
		}
	}
	res.MaxIndex = uint64(len(tokens) + 1)
	return res
}
