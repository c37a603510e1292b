package hexprox

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hexprox/hexprox/internal/credpool"
	"github.com/hexprox/hexprox/internal/hexagon"
	"github.com/hexprox/hexprox/internal/secretstore"
	"github.com/hexprox/hexprox/internal/tasks"
)

// GenericAuthMessage is the single client-facing message for every credential
// failure. Bad API keys, malformed credential records, and vendor rejections
// are deliberately indistinguishable to an external caller.
const GenericAuthMessage = "Invalid credentials or inability to communicate with credential server"

// Gateway is the per-request routing core. It owns the process-wide caches
// (credential pool and session registry) as explicit state rather than
// package globals, so concurrency discipline and test isolation stay visible.
// Neither cache evicts; the key-space is bounded by the provisioned client
// population.
type Gateway struct {
	pool     *credpool.Pool
	sessions *hexagon.Registry
	origins  *OriginPolicy
	upstream hexagon.Endpoints
	external string
}

// NewGateway wires a gateway from cfg, reading credential sets from store and
// scheduling background refreshes on queue. Call cfg.ApplyDefaults first.
func NewGateway(cfg Config, store secretstore.Store, queue *tasks.Queue, sessionOpts ...hexagon.Option) *Gateway {
	ep := cfg.Upstream.Endpoints()
	return &Gateway{
		pool: credpool.NewPool(store, queue,
			credpool.WithRefreshInterval(time.Duration(cfg.RefreshIntervalMinutes)*time.Minute)),
		sessions: hexagon.NewRegistry(ep, sessionOpts...),
		origins:  NewOriginPolicy(cfg.Origins),
		upstream: ep,
		external: strings.TrimSuffix(cfg.ExternalBaseURL, "/"),
	}
}

// Pool exposes the credential pool, primarily for the /about probe.
func (g *Gateway) Pool() *credpool.Pool { return g.pool }

// SessionForKey resolves an external API key to a vendor session. Credential
// selection rotates across the key's provisioned credential pairs; each pair
// maps to exactly one session process-wide.
func (g *Gateway) SessionForKey(ctx context.Context, apiKey string) (*hexagon.Session, error) {
	cred, err := g.pool.Resolve(ctx, apiKey)
	if err != nil {
		return nil, err
	}
	return g.sessions.GetOrCreate(cred), nil
}

// SessionForLegacy resolves base64-embedded vendor credentials from the v1
// URL scheme. Decoded values are normalized (embedded spaces stripped) before
// hashing, so credentials differing only by pasted whitespace share one
// session.
func (g *Gateway) SessionForLegacy(idB64, secretB64 string) (*hexagon.Session, error) {
	id, err := decodeSegment(idB64)
	if err != nil {
		return nil, fmt.Errorf("%w: client id is not base64", hexagon.ErrInvalidCredential)
	}
	secret, err := decodeSegment(secretB64)
	if err != nil {
		return nil, fmt.Errorf("%w: client secret is not base64", hexagon.ErrInvalidCredential)
	}

	cred, err := hexagon.NewCredential(
		strings.ReplaceAll(id, " ", ""),
		strings.ReplaceAll(secret, " ", ""),
	)
	if err != nil {
		return nil, err
	}
	return g.sessions.GetOrCreate(cred), nil
}

func decodeSegment(s string) (string, error) {
	if b, err := base64.StdEncoding.DecodeString(s); err == nil {
		return string(b), nil
	}
	b, err := base64.RawStdEncoding.DecodeString(s)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// ShouldProxy reports whether a request with the given Origin header must get
// the tile bytes proxied inline. Only browser contexts from approved origins
// qualify; requests without an Origin header (desktop clients) are redirected
// straight to the vendor.
func (g *Gateway) ShouldProxy(origin string) bool {
	return g.origins.Allows(origin)
}

// RewriteDocument replaces every occurrence of the vendor's advertised base
// endpoint in a capabilities/general document with this proxy's own base URL,
// so embedded links route back through the proxy instead of leaking the
// vendor endpoint. version is the URL scheme prefix ("v1" or "v2") and
// keySegment the credential path portion (API key, or "id/secret" for v1).
func (g *Gateway) RewriteDocument(body []byte, version, keySegment string) []byte {
	replacement := g.external + "/" + version + "/wmts/" + keySegment + "/"
	return bytes.ReplaceAll(body, []byte(g.upstream.WMTSURL), []byte(replacement))
}

// IsCredentialError reports whether err belongs to the class of failures that
// surface to the client as the uniform 403 response.
func IsCredentialError(err error) bool {
	if errors.Is(err, credpool.ErrInvalidAPIKey) ||
		errors.Is(err, credpool.ErrMalformedRecord) ||
		errors.Is(err, hexagon.ErrInvalidCredential) {
		return true
	}
	var authErr *hexagon.AuthError
	return errors.As(err, &authErr)
}
