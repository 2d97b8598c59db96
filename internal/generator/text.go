package generator

import (
	"math/rand"
	"strings"

	"github.com/dbsmedya/populous/internal/perrors"
	"github.com/dbsmedya/populous/internal/vars"
)

var textCharClasses = map[string]string{
	"<a-Z>":         "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ",
	"<a-z>":         "abcdefghijklmnopqrstuvwxyz",
	"<A-Z>":         "ABCDEFGHIJKLMNOPQRSTUVWXYZ",
	"<0-9>":         "0123456789",
	"<spaces>":      " \t",
	"<printable>":   "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ!\"#$%&'()*+,-./:;<=>?@[\\]^_`{|}~ \t\n\r\x0b\x0c",
	"<punctuation>": "!\"#$%&'()*+,-./:;<=>?@[\\]^_`{|}~",
	"<newline>":     "\n",
}

// Text yields a random string of runes drawn uniformly from a character
// class template.
type Text struct {
	item, field        string
	minLength, maxLen  int
	chars              string
}

func init() {
	Register("Text", newText)
}

func newText(item, field string, p Params) (Generator, error) {
	minLength := popInt(p, "min_length", 0)
	maxLength := popInt(p, "max_length", 0)
	if maxLength == 0 {
		maxLength = 10000
	}
	charsDesc := popString(p, "chars", "<a-Z><0-9> ")
	if err := rejectUnknown(item, field, p); err != nil {
		return nil, err
	}
	if minLength > maxLength {
		return nil, perrors.ValidationFieldf(item, field, "min_length (%d) is greater than max_length (%d)", minLength, maxLength)
	}

	return &Text{item: item, field: field, minLength: minLength, maxLen: maxLength, chars: resolveChars(charsDesc)}, nil
}

func resolveChars(description string) string {
	for category, chars := range textCharClasses {
		description = strings.ReplaceAll(description, category, chars)
	}
	return description
}

func (t *Text) Next(vars.Env) (any, error) {
	if len(t.chars) == 0 {
		return "", nil
	}
	n := t.minLength
	if t.maxLen > t.minLength {
		n += rand.Intn(t.maxLen - t.minLength + 1)
	}

	var sb strings.Builder
	sb.Grow(n)
	for i := 0; i < n; i++ {
		sb.WriteByte(t.chars[rand.Intn(len(t.chars))])
	}
	return sb.String(), nil
}
