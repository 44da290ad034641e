package moderation

import "regexp"

var piiPatterns = []struct {
	re     *regexp.Regexp
	marker string
}{
	{regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`), "[REDACTED_EMAIL]"},
	// Cards before phones so long digit runs are not misread as phone numbers.
	{regexp.MustCompile(`\b(?:\d[ -]*?){13,19}\b`), "[REDACTED_CARD]"},
	{regexp.MustCompile(`\+?[0-9][0-9\-() ]{7,}[0-9]`), "[REDACTED_PHONE]"},
	{regexp.MustCompile(`\bsk-[a-zA-Z0-9\-_]{16,}\b`), "[REDACTED_KEY]"},
}

// RedactPII masks common high-risk PII patterns before text is persisted.
func RedactPII(input string) (redacted string, changed bool) {
	out := input
	for _, p := range piiPatterns {
		next := p.re.ReplaceAllString(out, p.marker)
		changed = changed || next != out
		out = next
	}
	return out, changed
}
