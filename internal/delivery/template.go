package delivery

import (
	"regexp"
	"strings"
)

var placeholderPattern = regexp.MustCompile(`\{\{\s*(\w+)\s*\}\}`)

// Templates maps template identifiers to bodies with {{placeholder}} slots.
type Templates map[string]string

// Render produces the final message body for a request: the literal message
// when present, otherwise the named template with placeholders substituted
// from the request data. Unknown placeholders resolve to the empty string,
// never an error.
func (t Templates) Render(message, template string, data map[string]string) string {
	if message != "" {
		return message
	}

	body, ok := t[template]
	if !ok {
		return ""
	}

	rendered := placeholderPattern.ReplaceAllStringFunc(body, func(match string) string {
		key := placeholderPattern.FindStringSubmatch(match)[1]
		return data[key]
	})
	return strings.TrimSpace(rendered)
}
