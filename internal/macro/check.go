package macro

import (
	"regexp"
	"strings"

	"github.com/sahilm/fuzzy"
)

var bracketed = regexp.MustCompile(`\[\[[^\[\]]*\]\]`)

// Unknown lists the bracketed sequences in input that look like tokens but
// are not known ones. Each distinct sequence is reported once, in order of
// first appearance. Unknown sequences are not an error for Replace; this is
// only used to lint templates.
func Unknown(input string) []string {
	matches := bracketed.FindAllString(input, -1)
	if len(matches) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(matches))
	var out []string
	for _, m := range matches {
		if IsToken(m) {
			continue
		}
		if _, ok := seen[m]; ok {
			continue
		}
		seen[m] = struct{}{}
		out = append(out, m)
	}
	return out
}

// Suggest returns the known tokens that best match candidate, best first.
// Brackets around candidate are ignored.
func Suggest(candidate string) []string {
	name := strings.TrimSuffix(strings.TrimPrefix(strings.TrimSpace(candidate), tokenOpen), tokenClose)
	name = strings.TrimSpace(name)
	if name == "" {
		return nil
	}
	names := make([]string, len(tokens))
	for i, tok := range tokens {
		names[i] = tokenName(tok)
	}
	matches := fuzzy.Find(name, names)
	out := make([]string, 0, len(matches))
	for _, match := range matches {
		out = append(out, tokens[match.Index])
	}
	return out
}

func tokenName(tok string) string {
	return strings.TrimSuffix(strings.TrimPrefix(tok, tokenOpen), tokenClose)
}
