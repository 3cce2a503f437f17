package model

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

var keyFolder = cases.Fold()

// EmailKey normalizes an email address into the natural key used for
// duplicate detection within a campaign: NFKC-normalized, case-folded,
// whitespace-trimmed. The local part is kept verbatim otherwise; plus-tag
// stripping is deliberately not applied (tags distinguish real inboxes).
func EmailKey(email string) string {
	s := strings.TrimSpace(email)
	if s == "" {
		return ""
	}
	s = norm.NFKC.String(s)
	return keyFolder.String(s)
}

// DomainKey normalizes a bare domain the same way EmailKey does, for use
// when deriving an organization's web domain.
func DomainKey(domain string) string {
	s := strings.TrimSpace(domain)
	s = strings.TrimPrefix(s, "www.")
	if s == "" {
		return ""
	}
	return keyFolder.String(norm.NFKC.String(s))
}
