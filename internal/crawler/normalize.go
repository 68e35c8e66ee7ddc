package crawler

import (
	"net/url"
	"sort"
	"strings"
)

// Tracking parameters dropped during canonicalization.
var trackingParams = map[string]bool{
	"fbclid":       true,
	"gclid":        true,
	"msclkid":      true,
	"mc_cid":       true,
	"mc_eid":       true,
	"ref":          true,
	"utm_campaign": true,
	"utm_content":  true,
	"utm_medium":   true,
	"utm_source":   true,
	"utm_term":     true,
}

// NormalizeURL canonicalizes a URL for visited-set keying. The rule is
// deterministic: lowercase scheme and host, drop the fragment, drop default
// ports, drop the trailing slash on non-root paths, drop known tracking
// query parameters and sort the remainder.
func NormalizeURL(rawURL string) (string, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}

	parsed.Fragment = ""
	parsed.Scheme = strings.ToLower(parsed.Scheme)
	parsed.Host = strings.ToLower(parsed.Host)

	path := parsed.Path
	if path == "" {
		path = "/"
	} else if path != "/" {
		path = strings.TrimSuffix(path, "/")
		if path == "" {
			path = "/"
		}
	}
	parsed.Path = path

	// Remove default ports
	if parsed.Port() == "80" && parsed.Scheme == "http" {
		host, _, _ := strings.Cut(parsed.Host, ":")
		parsed.Host = host
	}
	if parsed.Port() == "443" && parsed.Scheme == "https" {
		host, _, _ := strings.Cut(parsed.Host, ":")
		parsed.Host = host
	}

	query := parsed.Query()
	for param := range query {
		if trackingParams[strings.ToLower(param)] {
			query.Del(param)
		}
	}
	parsed.RawQuery = sortedEncode(query)

	return parsed.String(), nil
}

// sortedEncode encodes query values with keys in sorted order so two URLs
// differing only in parameter order normalize identically.
func sortedEncode(values url.Values) string {
	if len(values) == 0 {
		return ""
	}
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	for _, k := range keys {
		vs := values[k]
		sort.Strings(vs)
		for _, v := range vs {
			if sb.Len() > 0 {
				sb.WriteByte('&')
			}
			sb.WriteString(url.QueryEscape(k))
			sb.WriteByte('=')
			sb.WriteString(url.QueryEscape(v))
		}
	}
	return sb.String()
}

// SameHost reports whether two URLs share a host, ignoring a www prefix.
func SameHost(a, b string) bool {
	pa, err := url.Parse(a)
	if err != nil {
		return false
	}
	pb, err := url.Parse(b)
	if err != nil {
		return false
	}
	return stripWWW(pa.Hostname()) == stripWWW(pb.Hostname())
}

func stripWWW(host string) string {
	return strings.TrimPrefix(strings.ToLower(host), "www.")
}

// SourceIDFromURL derives the source identifier for a crawled origin: the
// www-stripped host.
func SourceIDFromURL(rawURL string) (string, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	host := stripWWW(parsed.Hostname())
	if host == "" {
		return "", ErrUnsupportedFormat
	}
	return host, nil
}
