package classify

import (
	"regexp"
	"strings"
)

var bracketTag = regexp.MustCompile(`\[([^\]]+)\]`)
var nonToken = regexp.MustCompile(`[^a-z0-9_]`)

// Fingerprint derives a creative fingerprint from an ad name. Naming
// convention: "Adset Name - tag" takes the suffix after the last " - ",
// "[tag]" takes the bracketed token, anything else is sanitized and
// capped at 30 characters.
func Fingerprint(adName string) string {
	if idx := strings.LastIndex(adName, " - "); idx >= 0 {
		return strings.ToLower(strings.TrimSpace(adName[idx+3:]))
	}
	if m := bracketTag.FindStringSubmatch(adName); m != nil {
		return strings.ToLower(strings.TrimSpace(m[1]))
	}
	fp := nonToken.ReplaceAllString(strings.ToLower(adName), "_")
	if len(fp) > 30 {
		fp = fp[:30]
	}
	return fp
}
