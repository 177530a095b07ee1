package search

import (
	"net/url"
	"strings"
)

// NormalizeURL canonicalizes a candidate page URL. It reports false for
// anything that is not an absolute http(s) URL.
func NormalizeURL(raw string) (string, bool) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return "", false
	}
	u.Scheme = strings.ToLower(u.Scheme)
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", false
	}
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	u.RawFragment = ""
	if u.Path != "/" {
		u.Path = strings.TrimSuffix(u.Path, "/")
		u.RawPath = strings.TrimSuffix(u.RawPath, "/")
	} else if u.RawQuery == "" {
		u.Path = ""
	}
	return u.String(), true
}

// hostBlocked reports whether host is one of blocked or a subdomain of one.
func hostBlocked(host string, blocked []string) bool {
	host = strings.TrimPrefix(strings.ToLower(host), "www.")
	for _, b := range blocked {
		b = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(b)), "www.")
		if b == "" {
			continue
		}
		if host == b || strings.HasSuffix(host, "."+b) {
			return true
		}
	}
	return false
}

// filterCandidates normalizes urls and drops invalid, blocked and
// duplicate entries, keeping first-seen order.
func filterCandidates(urls []string, blocked []string) []string {
	seen := make(map[string]bool, len(urls))
	out := make([]string, 0, len(urls))
	for _, raw := range urls {
		norm, ok := NormalizeURL(raw)
		if !ok || seen[norm] {
			continue
		}
		u, _ := url.Parse(norm)
		if hostBlocked(u.Hostname(), blocked) {
			continue
		}
		seen[norm] = true
		out = append(out, norm)
	}
	return out
}
