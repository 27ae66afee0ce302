package memory

import (
	"regexp"
	"strings"
)

// Redaction placeholders substituted by Anonymize.
const (
	redactedEmail = "[email]"
	redactedURL   = "[url]"
	redactedIP    = "[ip]"
	redactedPhone = "[phone]"
)

var (
	emailPattern = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)
	urlPattern   = regexp.MustCompile(`(?i)\b(?:https?://|www\.)[^\s<>"']+`)
	ipPattern    = regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}\b`)
	// Phone numbers need a leading "+", an area code in parentheses, or the
	// 3-3/4-4 dash or dot layout. Space-grouped figures such as "10 000 000"
	// are left alone.
	phonePattern = regexp.MustCompile(`\+\d{1,3}[\s.\-]?(?:\(\d{1,4}\)[\s.\-]?)?\d{2,4}(?:[\s.\-]?\d{2,4}){1,3}\b` +
		`|\(\d{2,4}\)[\s.\-]?\d{3,4}[\s.\-]?\d{4}\b` +
		`|\b\d{3}[.\-]\d{3,4}[.\-]\d{4}\b`)
)

// identifyingKeys are metadata keys dropped from global memories.
var identifyingKeys = map[string]struct{}{
	"user_id":     {},
	"userid":      {},
	"email":       {},
	"name":        {},
	"author":      {},
	"owner":       {},
	"client":      {},
	"client_name": {},
	"clientname":  {},
	"phone":       {},
	"ip":          {},
	"session_id":  {},
	"sessionid":   {},
}

// Anonymize replaces email addresses, URLs, IP addresses and phone numbers
// in text with fixed placeholders.
func Anonymize(text string) string {
	text = emailPattern.ReplaceAllString(text, redactedEmail)
	text = urlPattern.ReplaceAllString(text, redactedURL)
	text = ipPattern.ReplaceAllString(text, redactedIP)
	text = phonePattern.ReplaceAllString(text, redactedPhone)
	return text
}

// anonymizeMetadata returns a copy of meta without identifying keys and with
// string values passed through Anonymize. Nested maps are handled
// recursively.
func anonymizeMetadata(meta map[string]any) map[string]any {
	if len(meta) == 0 {
		return nil
	}
	out := make(map[string]any, len(meta))
	for k, v := range meta {
		if _, drop := identifyingKeys[strings.ToLower(k)]; drop {
			continue
		}
		switch val := v.(type) {
		case string:
			out[k] = Anonymize(val)
		case map[string]any:
			out[k] = anonymizeMetadata(val)
		default:
			out[k] = v
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
