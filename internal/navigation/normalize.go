package navigation

import (
	"net/url"
	"strings"
)

// FragmentRoutedHost is the one host whose normalized form keeps the URL fragment.
// Its webmail client routes entirely through the fragment (#inbox, #sent/...), so a
// fragment change there is a real navigation. Everywhere else fragments and queries
// are cosmetic. Keep this an isolated exception rather than a rule.
const FragmentRoutedHost = "mail.google.com"

var ignoredPrefixes = []string{
	"chrome:",
	"chrome-extension:",
	"chrome-search:",
	"chrome-untrusted:",
	"edge:",
	"brave:",
	"about:",
	"devtools:",
	"view-source:",
	"moz-extension:",
	"data:",
	"javascript:",
	"blob:",
}

var newTabPages = []string{
	"https://www.google.com/_/chrome/newtab",
	"https://ntp.msn.com/edge/ntp",
}

// Normalize reduces a URL to the part that identifies a page: origin plus path,
// and the fragment on FragmentRoutedHost. Unparseable or opaque URLs normalize
// to themselves.
func Normalize(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return raw
	}

	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	normalized := strings.ToLower(u.Scheme) + "://" + strings.ToLower(u.Host) + path
	if isFragmentRouted(u) && u.Fragment != "" {
		normalized += "#" + u.EscapedFragment()
	}
	return normalized
}

// Ignored reports whether raw points at a browser-internal or new tab page
// that carries no content worth logging.
func Ignored(raw string) bool {
	lower := strings.ToLower(strings.TrimSpace(raw))
	if lower == "" {
		return true
	}
	for _, prefix := range ignoredPrefixes {
		if strings.HasPrefix(lower, prefix) {
			return true
		}
	}
	for _, page := range newTabPages {
		if strings.HasPrefix(lower, page) {
			return true
		}
	}
	return false
}

// NeedsGracePeriod reports whether the page updates its title only after the
// URL change has been announced.
func NeedsGracePeriod(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return isFragmentRouted(u)
}

func isFragmentRouted(u *url.URL) bool {
	return strings.EqualFold(u.Hostname(), FragmentRoutedHost)
}
