package macro

import (
	"net/url"
	"strings"
)

// formFixups turns url.QueryEscape output into the classic
// application/x-www-form-urlencoded form: '*' stays literal, '~' is escaped.
var formFixups = strings.NewReplacer("%2A", "*", "~", "%7E")

// Replace substitutes every occurrence of every token in input with the
// mapper's value for it. The scan is a single left-to-right pass, so a value
// that itself contains token text is emitted verbatim and never expanded.
// Anything that is not an exact token passes through unchanged.
func Replace(m Mapper, input string) string {
	if input == "" || !strings.Contains(input, tokenOpen) {
		return input
	}
	values := m.Values()
	pairs := make([]string, 0, 2*len(tokens))
	for _, tok := range tokens {
		pairs = append(pairs, tok, values[tok])
	}
	return strings.NewReplacer(pairs...).Replace(input)
}

// EncodeFormValue form-encodes s using UTF-8: spaces become '+', ASCII
// letters, digits and ".-*_" are kept, every other byte is %XX escaped.
func EncodeFormValue(s string) string {
	if s == "" {
		return ""
	}
	return formFixups.Replace(url.QueryEscape(s))
}
