// Package anonymize scrubs personally identifiable information from insight
// text before it is persisted or analysed.
//
// The scrubbing is pattern-based and best-effort, aimed at the Italian field
// force the product serves: emails, phone numbers (international-prefixed and
// 3-3-4 grouped forms), full names, street addresses, and fiscal codes.
// Known limitations are accepted rather than papered over:
//
//   - any two consecutive capitalized words are treated as a name, so
//     capitalized phrases ("Santo Stefano") are redacted too;
//   - phone detection covers the common Italian formats only;
//   - this is not a general PII-detection engine.
package anonymize

import "regexp"

// Replacement tokens. All-caps with underscores so no pattern below can
// re-match them — Text is idempotent.
const (
	EmailToken      = "[EMAIL_REDACTED]"
	PhoneToken      = "[PHONE_REDACTED]"
	NameToken       = "[NAME_REDACTED]"
	AddressToken    = "[ADDRESS_REDACTED]"
	FiscalCodeToken = "[FISCAL_CODE_REDACTED]"
)

var (
	emailRe      = regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`)
	phoneIntlRe  = regexp.MustCompile(`\b(\+39[-.\s]?)?\d{10,11}\b`)
	phoneGroupRe = regexp.MustCompile(`\b\d{3}[-.\s]\d{3}[-.\s]\d{4}\b`)
	nameRe       = regexp.MustCompile(`\b[A-Z][a-z]+ [A-Z][a-z]+\b`)
	addressRe    = regexp.MustCompile(`(?i)\b(via|corso|viale|piazza)\s+[A-Za-z\s]+\d+`)
	fiscalRe     = regexp.MustCompile(`\b[A-Z]{6}\d{2}[A-Z]\d{2}[A-Z]\d{3}[A-Z]\b`)
)

// Text redacts PII patterns from text. Pure and deterministic; empty input
// is returned unchanged. Later patterns operate on the output of earlier
// ones — replacements are plain textual substitutions.
func Text(text string) string {
	if text == "" {
		return text
	}

	anon := emailRe.ReplaceAllString(text, EmailToken)
	anon = phoneIntlRe.ReplaceAllString(anon, PhoneToken)
	anon = phoneGroupRe.ReplaceAllString(anon, PhoneToken)
	anon = nameRe.ReplaceAllString(anon, NameToken)
	anon = addressRe.ReplaceAllString(anon, AddressToken)
	anon = fiscalRe.ReplaceAllString(anon, FiscalCodeToken)
	return anon
}
