package bot

import (
	"strings"

	"golang.org/x/text/width"
)

// PostbackSplitChar separates fields in postback data. All modules build
// and parse postback strings with it, e.g. "news$topic$3".
const PostbackSplitChar = "$"

// BuildPostback joins fields into postback data. Fields must not contain
// the split character; there is no escaping.
func BuildPostback(fields ...string) string {
	return strings.Join(fields, PostbackSplitChar)
}

// SplitPostback splits postback data into its fields.
func SplitPostback(data string) []string {
	return strings.Split(data, PostbackSplitChar)
}

// NormalizeInput folds fullwidth forms to their halfwidth equivalents so
// dialog input typed on a CJK keyboard, like "３／５" or "０８：３０",
// parses the same as its ASCII form.
func NormalizeInput(s string) string {
	return width.Narrow.String(s)
}
