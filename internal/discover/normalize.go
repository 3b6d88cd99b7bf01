package discover

import (
	"net/url"
	"strings"
)

// NormalizeOptions controls URL canonicalization.
type NormalizeOptions struct {
	// FoldWWW treats www.example.com and example.com as the same host.
	FoldWWW bool
	// TrackingPrefixes lists query parameter name prefixes to strip
	// (utm_, fbclid, ...). Matching is prefix-based so utm_source and
	// utm_campaign both fall under "utm_".
	TrackingPrefixes []string
}

// Normalize canonicalizes a URL for deduplication: lowercases scheme and
// host, folds www., strips default ports, drops the fragment, user info and
// tracking parameters, sorts the remaining query keys, and trims the
// trailing slash. Returns ok=false for anything that is not an absolute
// http(s) URL.
func Normalize(raw string, opts NormalizeOptions) (norm, host string, ok bool) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", "", false
	}

	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return "", "", false
	}

	host = strings.ToLower(u.Hostname())
	if host == "" {
		return "", "", false
	}
	if opts.FoldWWW {
		host = strings.TrimPrefix(host, "www.")
	}

	hostport := host
	if port := u.Port(); port != "" && !isDefaultPort(scheme, port) {
		hostport = host + ":" + port
	}

	q := u.Query()
	for key := range q {
		if hasAnyPrefix(key, opts.TrackingPrefixes) {
			q.Del(key)
		}
	}

	clean := url.URL{
		Scheme:   scheme,
		Host:     hostport,
		Path:     strings.TrimSuffix(u.Path, "/"),
		RawQuery: q.Encode(), // Encode sorts keys
	}
	return clean.String(), host, true
}

func isDefaultPort(scheme, port string) bool {
	return (scheme == "http" && port == "80") || (scheme == "https" && port == "443")
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if p != "" && strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}
