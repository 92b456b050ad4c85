// Package policy holds the small, explicit validation checks that gate
// a snippet before execution and a swagger source before compilation:
// size ceilings and a domain allowlist.
package policy

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/mfp-dev/mfp/internal/errs"
)

// CheckCodeSize rejects a snippet larger than maxBytes before it is
// even parsed, let alone sent to a sandbox.
func CheckCodeSize(code []byte, maxBytes int) error {
	if len(code) > maxBytes {
		return errs.New(errs.PolicyViolation, "policy: code size %d exceeds limit %d bytes", len(code), maxBytes)
	}
	return nil
}

// CheckDomainAllowed rejects a base URL whose host isn't present in
// allowlist. An empty allowlist permits every host: operators opt into
// the restriction by populating domain_allowlist at all.
func CheckDomainAllowed(rawURL string, allowlist []string) error {
	if len(allowlist) == 0 {
		return nil
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return errs.Wrap(errs.PolicyViolation, err, "policy: parse base url %q: %v", rawURL, err)
	}
	host := strings.ToLower(u.Hostname())
	for _, allowed := range allowlist {
		if strings.EqualFold(host, strings.TrimSpace(allowed)) {
			return nil
		}
	}
	return errs.New(errs.PolicyViolation, "policy: host %q is not in the domain allowlist", host)
}

var urlRe = regexp.MustCompile(`https?://[^\s'"]+`)

// ExtractURLs returns every http(s) URL literal appearing in code,
// deduplicated in first-seen order. This is a static, textual scan —
// not a real Python parser — so it only catches URLs that appear as
// literal substrings in the snippet, not ones built up by string
// concatenation or formatting at runtime.
func ExtractURLs(code string) []string {
	matches := urlRe.FindAllString(code, -1)
	seen := make(map[string]struct{}, len(matches))
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		if _, ok := seen[m]; ok {
			continue
		}
		seen[m] = struct{}{}
		out = append(out, m)
	}
	return out
}

// CheckCodeURLs statically extracts every URL literal in code and
// rejects the snippet if any resolves to a host outside allowlist.
func CheckCodeURLs(code string, allowlist []string) error {
	if len(allowlist) == 0 {
		return nil
	}
	for _, u := range ExtractURLs(code) {
		if err := CheckDomainAllowed(u, allowlist); err != nil {
			return err
		}
	}
	return nil
}
