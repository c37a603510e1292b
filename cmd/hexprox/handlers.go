package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	hexprox "github.com/hexprox/hexprox"
	"github.com/hexprox/hexprox/internal/hexagon"
	"github.com/hexprox/hexprox/internal/logging"
	"github.com/hexprox/hexprox/internal/metrics"
	"github.com/hexprox/hexprox/internal/ratelimit"
	"github.com/hexprox/hexprox/internal/version"
)

type server struct {
	gw     *hexprox.Gateway
	limits *ratelimit.Store // nil when rate limiting is disabled
}

func (s *server) handleRoot(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{
		"message": fmt.Sprintf("HexProx is up, version %s", version.Short()),
	})
}

// handleAbout is the liveness + API-key validation probe.
func (s *server) handleAbout(w http.ResponseWriter, r *http.Request) {
	apiKey := chi.URLParam(r, "apiKey")
	if _, err := s.gw.Pool().Resolve(r.Context(), apiKey); err != nil {
		s.denyCredentials(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/plain")
	fmt.Fprintf(w, "HexProx %s", version.String())
}

func (s *server) handleKeyedTile(w http.ResponseWriter, r *http.Request) {
	apiKey := chi.URLParam(r, "apiKey")
	s.serveTile(w, r, apiKey, func(ctx context.Context) (*hexagon.Session, error) {
		return s.gw.SessionForKey(ctx, apiKey)
	})
}

func (s *server) handleLegacyTile(w http.ResponseWriter, r *http.Request) {
	id, secret := chi.URLParam(r, "clientID"), chi.URLParam(r, "clientSecret")
	s.serveTile(w, r, id, func(context.Context) (*hexagon.Session, error) {
		return s.gw.SessionForLegacy(id, secret)
	})
}

func (s *server) handleKeyedDocument(w http.ResponseWriter, r *http.Request) {
	apiKey := chi.URLParam(r, "apiKey")
	s.serveDocument(w, r, "v2", apiKey, func(ctx context.Context) (*hexagon.Session, error) {
		return s.gw.SessionForKey(ctx, apiKey)
	})
}

func (s *server) handleLegacyDocument(w http.ResponseWriter, r *http.Request) {
	id, secret := chi.URLParam(r, "clientID"), chi.URLParam(r, "clientSecret")
	s.serveDocument(w, r, "v1", id+"/"+secret, func(context.Context) (*hexagon.Session, error) {
		return s.gw.SessionForLegacy(id, secret)
	})
}

type sessionResolver func(ctx context.Context) (*hexagon.Session, error)

// serveTile is the shared tile path for both URL schemes: validate, resolve a
// session, then either redirect to the signed vendor URL or proxy the tile
// bytes inline when the caller is a browser on an approved origin.
func (s *server) serveTile(w http.ResponseWriter, r *http.Request, limitKey string, resolve sessionResolver) {
	ext := chi.URLParam(r, "ext")
	if !hexagon.AllowedExtension(ext) {
		metrics.TileRequestsTotal.WithLabelValues("none", "rejected").Inc()
		http.Error(w, fmt.Sprintf("File extension %s not supported", ext), http.StatusNotFound)
		return
	}

	matrix, row, col, err := tileCoordinates(r)
	if err != nil {
		metrics.TileRequestsTotal.WithLabelValues("none", "rejected").Inc()
		http.Error(w, "Invalid tile coordinate", http.StatusNotFound)
		return
	}

	if s.limits != nil && !s.limits.Allow(limitKey) {
		metrics.RateLimitRejections.WithLabelValues("api_key").Inc()
		http.Error(w, "Too many requests", http.StatusTooManyRequests)
		return
	}

	sess, err := resolve(r.Context())
	if err != nil {
		metrics.TileRequestsTotal.WithLabelValues("none", "error").Inc()
		s.denyCredentials(w, r, err)
		return
	}

	if s.gw.ShouldProxy(r.Header.Get("Origin")) {
		s.proxyTile(w, r, sess, matrix, row, col, ext)
		return
	}

	target, err := sess.TileURL(r.Context(), matrix, row, col, ext)
	if err != nil {
		metrics.TileRequestsTotal.WithLabelValues("redirect", "error").Inc()
		s.denyCredentials(w, r, err)
		return
	}
	metrics.TileRequestsTotal.WithLabelValues("redirect", "success").Inc()
	http.Redirect(w, r, target, http.StatusTemporaryRedirect)
}

// proxyTile fetches the tile and returns it inline. Browsers cannot follow a
// cross-origin redirect from a script-initiated image load, so this path
// pays the bandwidth for that client class only.
func (s *server) proxyTile(w http.ResponseWriter, r *http.Request, sess *hexagon.Session, matrix, row, col int, ext string) {
	start := time.Now()
	resp, err := sess.FetchTile(r.Context(), matrix, row, col, ext)
	metrics.UpstreamDuration.WithLabelValues("tile").Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.TileRequestsTotal.WithLabelValues("proxied", "error").Inc()
		var reqErr *hexagon.RequestError
		if errors.As(err, &reqErr) {
			logging.FromContext(r.Context()).Warn("vendor tile request failed",
				"status", reqErr.StatusCode)
			http.Error(w, "Tile not available", http.StatusNotFound)
			return
		}
		s.denyCredentials(w, r, err)
		return
	}
	defer resp.Body.Close()

	w.Header().Set("Content-Type", hexagon.ContentType(ext))
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, resp.Body); err != nil {
		logging.FromContext(r.Context()).Warn("streaming tile to client failed", "error", err.Error())
		return
	}
	metrics.TileRequestsTotal.WithLabelValues("proxied", "success").Inc()
}

// serveDocument is the capabilities/general passthrough. The vendor body is
// buffered, every vendor base-URL occurrence is rewritten to point back at
// the proxy, and the vendor status is forwarded. Vendor response headers are
// not copied, so a stale Content-Encoding can never reach the client after
// the HTTP client has already decoded the body.
func (s *server) serveDocument(w http.ResponseWriter, r *http.Request, urlVersion, keySegment string, resolve sessionResolver) {
	sess, err := resolve(r.Context())
	if err != nil {
		metrics.DocumentRequestsTotal.WithLabelValues("error").Inc()
		s.denyCredentials(w, r, err)
		return
	}

	path := chi.URLParam(r, "*")
	start := time.Now()
	resp, err := sess.FetchDocument(r.Context(), path, r.URL.RawQuery)
	metrics.UpstreamDuration.WithLabelValues("document").Observe(time.Since(start).Seconds())
	if err != nil {
		var reqErr *hexagon.RequestError
		if errors.As(err, &reqErr) {
			// Forward the vendor's status; links in error documents still
			// get rewritten so the vendor endpoint never leaks.
			metrics.DocumentRequestsTotal.WithLabelValues("error").Inc()
			s.writeDocument(w, reqErr.StatusCode, []byte(reqErr.Body), urlVersion, keySegment)
			return
		}
		metrics.DocumentRequestsTotal.WithLabelValues("error").Inc()
		s.denyCredentials(w, r, err)
		return
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		metrics.DocumentRequestsTotal.WithLabelValues("error").Inc()
		http.Error(w, "Failed to read vendor response", http.StatusBadGateway)
		return
	}
	metrics.DocumentRequestsTotal.WithLabelValues("success").Inc()
	s.writeDocument(w, resp.StatusCode, body, urlVersion, keySegment)
}

func (s *server) writeDocument(w http.ResponseWriter, status int, body []byte, urlVersion, keySegment string) {
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(status)
	_, _ = w.Write(s.gw.RewriteDocument(body, urlVersion, keySegment))
}

// denyCredentials collapses every credential-class failure into one generic
// 403. The distinction between a bad key, a malformed record, and a vendor
// rejection lives in the logs only.
func (s *server) denyCredentials(w http.ResponseWriter, r *http.Request, err error) {
	log := logging.FromContext(r.Context())
	if hexprox.IsCredentialError(err) {
		log.Info("credential failure", "error", err.Error())
	} else {
		log.Warn("request failed", "error", err.Error())
	}
	http.Error(w, hexprox.GenericAuthMessage, http.StatusForbidden)
}

func tileCoordinates(r *http.Request) (matrix, row, col int, err error) {
	if matrix, err = strconv.Atoi(chi.URLParam(r, "matrix")); err != nil {
		return 0, 0, 0, err
	}
	if row, err = strconv.Atoi(chi.URLParam(r, "row")); err != nil {
		return 0, 0, 0, err
	}
	if col, err = strconv.Atoi(chi.URLParam(r, "col")); err != nil {
		return 0, 0, 0, err
	}
	return matrix, row, col, nil
}
