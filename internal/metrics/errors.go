package metrics

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"unicode"

	"github.com/lib/pq"
)

// typeLabel names an error that does not implement Labeler. Postgres errors
// from the class directory are named by SQLSTATE condition, transport
// failures by kind, and anything else by its Go type.
func typeLabel(err error) string {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		if name := pqErr.Code.Name(); name != "" {
			return "Postgres " + strings.ReplaceAll(name, "_", " ")
		}
		return "Postgres error"
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		if urlErr.Timeout() {
			return "Request timeout"
		}
		return "Request error"
	}

	name := strings.TrimPrefix(fmt.Sprintf("%T", err), "*")
	pkg := ""
	if i := strings.LastIndex(name, "."); i >= 0 {
		pkg, name = name[:i], name[i+1:]
	}
	if i := strings.LastIndex(pkg, "/"); i >= 0 {
		pkg = pkg[i+1:]
	}
	switch pkg {
	case "errors", "fmt":
		return "Other error"
	}

	label := strings.Join(splitCamel(name), " ")
	if label == "" {
		return "Unknown error"
	}
	label = strings.ToUpper(label[:1]) + label[1:]
	if pkg != "" && pkg != "main" {
		label += " (" + pkg + ")"
	}
	return label
}

// splitCamel breaks a Go identifier into words. Acronyms keep their case,
// other words are lowercased: "HTTPStatusError" gives HTTP, status, error.
func splitCamel(ident string) []string {
	runes := []rune(ident)
	if len(runes) == 0 {
		return nil
	}
	var words []string
	start := 0
	for i := 1; i < len(runes); i++ {
		prev, cur := runes[i-1], runes[i]
		nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
		if unicode.IsUpper(cur) && (unicode.IsLower(prev) || unicode.IsDigit(prev) || (unicode.IsUpper(prev) && nextLower)) {
			words = append(words, camelWord(runes[start:i]))
			start = i
		}
	}
	return append(words, camelWord(runes[start:]))
}

func camelWord(r []rune) string {
	w := string(r)
	if len(r) > 1 && w == strings.ToUpper(w) {
		return w
	}
	return strings.ToLower(w)
}
