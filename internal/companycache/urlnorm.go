package companycache

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// trackingParams are dropped before cache lookup: the same company page
// arrives under many tracking-decorated URLs.
var trackingParams = map[string]bool{
	"gclid":            true,
	"fbclid":           true,
	"msclkid":          true,
	"mc_cid":           true,
	"mc_eid":           true,
	"mkt_tok":          true,
	"trk":              true,
	"trkinfo":          true,
	"original_referer": true,
	"refid":            true,
}

// Normalize canonicalizes a company URL for cache keying: lowercased scheme
// and host, default ports and fragments removed, tracking query parameters
// stripped, remaining query sorted, and the trailing slash trimmed from the
// path. Internationalized hostnames are folded byte-wise only; distinct
// spellings of the same IDN stay distinct keys.
func Normalize(rawURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", fmt.Errorf("parse company url: %w", err)
	}
	if u.Host == "" {
		return "", fmt.Errorf("company url %q has no host", rawURL)
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	if u.Scheme == "http" {
		u.Host = strings.TrimSuffix(u.Host, ":80")
	}
	if u.Scheme == "https" {
		u.Host = strings.TrimSuffix(u.Host, ":443")
	}
	u.Fragment = ""

	q := u.Query()
	for key := range q {
		lk := strings.ToLower(key)
		if trackingParams[lk] || strings.HasPrefix(lk, "utm_") {
			q.Del(key)
		}
	}
	for key, vals := range q {
		sort.Strings(vals)
		q[key] = vals
	}
	u.RawQuery = q.Encode()

	u.Path = strings.TrimSuffix(u.Path, "/")

	return u.String(), nil
}
