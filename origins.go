package hexprox

import (
	"net/url"
	"strings"
)

// OriginPolicy is the allow-list consulted to decide redirect-vs-proxy for
// tile requests. Browsers calling from an approved origin need the tile bytes
// proxied inline because a redirect is unusable under cross-origin
// restrictions; everyone else gets the cheap redirect. This is not CORS
// header enforcement, which happens in the HTTP layer.
type OriginPolicy struct {
	exact    map[string]struct{}
	wildcard []wildcardOrigin
}

type wildcardOrigin struct {
	scheme string
	domain string // bare domain, matches itself and any subdomain
}

// NewOriginPolicy compiles patterns into a policy. Each pattern is either an
// exact origin ("https://maps.conservation.ca.gov") or a wildcard over
// subdomains ("https://*.ca.gov", which also matches "https://ca.gov").
func NewOriginPolicy(patterns []string) *OriginPolicy {
	p := &OriginPolicy{exact: make(map[string]struct{})}
	for _, raw := range patterns {
		pattern := strings.TrimSpace(strings.TrimSuffix(raw, "/"))
		if pattern == "" {
			continue
		}
		scheme, rest, ok := strings.Cut(pattern, "://")
		if ok && strings.HasPrefix(rest, "*.") {
			p.wildcard = append(p.wildcard, wildcardOrigin{
				scheme: scheme,
				domain: strings.TrimPrefix(rest, "*."),
			})
			continue
		}
		p.exact[pattern] = struct{}{}
	}
	return p
}

// Allows reports whether origin (the raw Origin header value) matches the
// allow-list. An empty origin never matches.
func (p *OriginPolicy) Allows(origin string) bool {
	origin = strings.TrimSuffix(strings.TrimSpace(origin), "/")
	if origin == "" {
		return false
	}
	if _, ok := p.exact[origin]; ok {
		return true
	}

	u, err := url.Parse(origin)
	if err != nil || u.Scheme == "" || u.Hostname() == "" {
		return false
	}
	host := strings.ToLower(u.Hostname())
	for _, w := range p.wildcard {
		if u.Scheme != w.scheme {
			continue
		}
		if host == w.domain || strings.HasSuffix(host, "."+w.domain) {
			return true
		}
	}
	return false
}
