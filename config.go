// Package hexprox implements a credential-aware reverse proxy in front of the
// HxGN streaming imagery service (WMTS/WMS). It hides vendor API credentials
// from end clients and re-exposes the vendor's tile and capabilities endpoints
// under its own URL scheme.
//
// The Gateway type is the core: it resolves an external API key (or legacy
// embedded credentials) to a vendor session, decides whether a tile request
// is answered with a redirect or a fully proxied body, and rewrites
// capabilities documents to point back at the proxy.
package hexprox

import (
	"github.com/hexprox/hexprox/internal/hexagon"
	"github.com/hexprox/hexprox/internal/secretstore"
)

// Config holds the proxy configuration.
type Config struct {
	// Listen is the HTTP listen address, e.g. ":8080".
	Listen string `json:"listen" yaml:"listen"`
	// ExternalBaseURL is the proxy's externally visible base URL without a
	// trailing slash, e.g. "https://tiles.example.gov". Capabilities
	// documents are rewritten against it.
	ExternalBaseURL string `json:"external_base_url" yaml:"external_base_url"`
	// Upstream overrides the vendor endpoints.
	Upstream UpstreamConfig `json:"upstream" yaml:"upstream"`
	// Origins is the allow-list of browser origins that get fully proxied
	// tile bodies instead of redirects. Entries are exact origins or
	// wildcard patterns like "https://*.ca.gov".
	Origins []string `json:"origins" yaml:"origins"`
	// RefreshIntervalMinutes is how long a cached credential set serves
	// before a background re-fetch is scheduled. Zero means the default
	// of 30 minutes.
	RefreshIntervalMinutes int `json:"refresh_interval_minutes" yaml:"refresh_interval_minutes"`
	// SecretStore selects where credential-set documents live.
	SecretStore secretstore.Config `json:"secret_store" yaml:"secret_store"`
	// RateLimit configures the optional per-API-key tile rate limit.
	RateLimit RateLimitConfig `json:"rate_limit,omitempty" yaml:"rate_limit,omitempty"`
	// Log configures the structured logger.
	Log LogConfig `json:"log,omitempty" yaml:"log,omitempty"`
}

// UpstreamConfig holds the vendor endpoint URLs. Empty fields fall back to
// the production HxGN streaming endpoints.
type UpstreamConfig struct {
	TokenURL   string `json:"token_url,omitempty" yaml:"token_url,omitempty"`
	WMTSURL    string `json:"wmts_url,omitempty" yaml:"wmts_url,omitempty"`
	TileParams string `json:"tile_params,omitempty" yaml:"tile_params,omitempty"`
}

// Endpoints returns the vendor endpoints with defaults applied.
func (u UpstreamConfig) Endpoints() hexagon.Endpoints {
	ep := hexagon.DefaultEndpoints()
	if u.TokenURL != "" {
		ep.TokenURL = u.TokenURL
	}
	if u.WMTSURL != "" {
		ep.WMTSURL = u.WMTSURL
	}
	if u.TileParams != "" {
		ep.TileParams = u.TileParams
	}
	return ep
}

// RateLimitConfig configures the per-API-key token bucket. A zero PerSecond
// disables limiting.
type RateLimitConfig struct {
	PerSecond float64 `json:"per_second,omitempty" yaml:"per_second,omitempty"`
	Burst     float64 `json:"burst,omitempty" yaml:"burst,omitempty"`
}

// LogConfig configures the structured logger.
type LogConfig struct {
	Level  string `json:"level,omitempty" yaml:"level,omitempty"`
	Format string `json:"format,omitempty" yaml:"format,omitempty"`
}

// DefaultOrigins is the origin allow-list served when config omits one:
// state GIS portals plus the partner ArcGIS domains.
var DefaultOrigins = []string{
	"https://*.ca.gov",
	"https://maps.conservation.ca.gov",
	"https://docgis.conservation.ca.gov",
	"https://gis.conservation.ca.gov",
	"https://gisportal.co.fresno.ca.us",
	"https://gispublic.waterboards.ca.gov",
	"https://*.arcgis.com",
}

// ApplyDefaults fills zero-valued fields with production defaults.
func (c *Config) ApplyDefaults() {
	if c.Listen == "" {
		c.Listen = ":8080"
	}
	if len(c.Origins) == 0 {
		c.Origins = append([]string(nil), DefaultOrigins...)
	}
	if c.RefreshIntervalMinutes == 0 {
		c.RefreshIntervalMinutes = 30
	}
}
