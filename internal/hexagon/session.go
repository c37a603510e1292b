package hexagon

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/hexprox/hexprox/internal/metrics"
)

// Default HxGN streaming endpoints. Deployments override these via config;
// tests point them at an httptest server.
const (
	DefaultTokenURL   = "https://services.hxgncontent.com/streaming/oauth/token?grant_type=client_credentials"
	DefaultWMTSURL    = "https://services.hxgncontent.com/streaming/wmts?/"
	DefaultTileParams = "1.0.0/HxGN_Imagery/default/WebMercator/"
)

// renewMargin is subtracted from the vendor-reported token TTL so a token is
// never presented within its last moments of validity.
const renewMargin = 5 * time.Second

// TileExtensions is the allow-list of tile file extensions the vendor serves.
var TileExtensions = []string{"jpg", "png", "xxx", "txt", "html", "gml"}

// AllowedExtension reports whether ext is on the tile extension allow-list.
func AllowedExtension(ext string) bool {
	for _, e := range TileExtensions {
		if e == ext {
			return true
		}
	}
	return false
}

// ContentType maps a tile extension to the response media type used when the
// tile bytes are proxied inline.
func ContentType(ext string) string {
	switch ext {
	case "jpg":
		return "image/jpeg"
	case "png":
		return "image/png"
	case "txt":
		return "text/plain"
	case "html":
		return "text/html"
	case "gml":
		return "application/gml+xml"
	default:
		return "application/octet-stream"
	}
}

// AuthError reports a rejection from the vendor token endpoint.
type AuthError struct {
	StatusCode int
	Body       string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("vendor token endpoint returned status %d: %s", e.StatusCode, e.Body)
}

// RequestError reports a non-success status from a vendor tile or document
// request. Callers must not assume any particular vendor body format.
type RequestError struct {
	StatusCode int
	Body       string
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("vendor returned status %d: %s", e.StatusCode, e.Body)
}

// Endpoints groups the vendor URLs a session talks to.
type Endpoints struct {
	// TokenURL is the OAuth-style token endpoint, including the grant_type
	// query parameter. Client credentials are appended as further parameters.
	TokenURL string
	// WMTSURL is the streaming WMTS base, ending in "?/" so that tile paths
	// and further parameters can be appended directly.
	WMTSURL string
	// TileParams is the fixed layer/matrix-set path segment between the WMTS
	// base and the matrix/row/col coordinates.
	TileParams string
}

// DefaultEndpoints returns the production HxGN streaming endpoints.
func DefaultEndpoints() Endpoints {
	return Endpoints{
		TokenURL:   DefaultTokenURL,
		WMTSURL:    DefaultWMTSURL,
		TileParams: DefaultTileParams,
	}
}

// Option configures a Session at construction.
type Option func(*Session)

// WithHTTPClient replaces the HTTP client used for vendor calls.
func WithHTTPClient(c *http.Client) Option {
	return func(s *Session) { s.client = c }
}

// WithClock replaces the session clock. Tests use this to step across the
// token renewal boundary without sleeping.
func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

// Session owns one vendor credential pair and its bearer token lifecycle.
// A session is created lazily by the Registry on the first request that needs
// its credential and lives for the rest of the process.
//
// All methods are safe for concurrent use; the token refresh is serialized so
// concurrent callers trigger at most one fetch per expiry.
type Session struct {
	cred   Credential
	ep     Endpoints
	client *http.Client
	now    func() time.Time

	mu      sync.Mutex
	token   string
	renewAt time.Time
}

// NewSession creates a session for cred against the given endpoints.
func NewSession(cred Credential, ep Endpoints, opts ...Option) *Session {
	s := &Session{
		cred:   cred,
		ep:     ep,
		client: &http.Client{},
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type tokenResponse struct {
	AccessToken string  `json:"access_token"`
	ExpiresIn   float64 `json:"expires_in"`
}

// BearerToken returns a currently valid vendor bearer token, fetching a new
// one from the token endpoint when the cached token is absent or inside the
// renewal margin. A non-success token response yields an *AuthError.
func (s *Session) BearerToken(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.token != "" && s.now().Before(s.renewAt) {
		return s.token, nil
	}

	u := fmt.Sprintf("%s&client_id=%s&client_secret=%s", s.ep.TokenURL, s.cred.id, s.cred.secret)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", fmt.Errorf("build token request: %w", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		metrics.TokenRefreshes.WithLabelValues("error").Inc()
		return "", fmt.Errorf("vendor token request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		metrics.TokenRefreshes.WithLabelValues("error").Inc()
		return "", fmt.Errorf("read token response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		metrics.TokenRefreshes.WithLabelValues("error").Inc()
		return "", &AuthError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var tok tokenResponse
	if err := json.Unmarshal(body, &tok); err != nil {
		return "", fmt.Errorf("decode token response: %w", err)
	}
	if tok.AccessToken == "" {
		return "", &AuthError{StatusCode: resp.StatusCode, Body: "token response missing access_token"}
	}

	s.token = tok.AccessToken
	s.renewAt = s.now().Add(time.Duration(tok.ExpiresIn)*time.Second - renewMargin)
	metrics.TokenRefreshes.WithLabelValues("success").Inc()
	return s.token, nil
}

// TileURL composes the signed vendor URL for one WMTS tile. The current
// bearer token is appended, refreshing it first if needed.
func (s *Session) TileURL(ctx context.Context, matrix, row, col int, ext string) (string, error) {
	token, err := s.BearerToken(ctx)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s%s%d/%d/%d.%s&access_token=%s",
		s.ep.WMTSURL, s.ep.TileParams, matrix, row, col, ext, token), nil
}

// FetchTile performs the tile GET and returns the raw vendor response with
// its body still open; the caller owns closing it. A non-success status is
// returned as a *RequestError carrying the status and body.
func (s *Session) FetchTile(ctx context.Context, matrix, row, col int, ext string) (*http.Response, error) {
	u, err := s.TileURL(ctx, matrix, row, col, ext)
	if err != nil {
		return nil, err
	}
	return s.get(ctx, u)
}

// FetchDocument passes an arbitrary vendor sub-path (capabilities documents
// and the like) through with the bearer token appended. rawQuery, when not
// empty, is forwarded ahead of the token parameter.
func (s *Session) FetchDocument(ctx context.Context, path, rawQuery string) (*http.Response, error) {
	token, err := s.BearerToken(ctx)
	if err != nil {
		return nil, err
	}
	u := s.ep.WMTSURL + path
	if rawQuery != "" {
		u += "&" + rawQuery
	}
	u += "&access_token=" + token
	return s.get(ctx, u)
}

// SaveTile downloads one tile to destDir under matrix/row/col.ext and returns
// the written path. This is the file-backed variant used for batch pulls; the
// proxy itself streams tiles and never touches disk.
func (s *Session) SaveTile(ctx context.Context, matrix, row, col int, ext, destDir string) (string, error) {
	resp, err := s.FetchTile(ctx, matrix, row, col, ext)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	path := filepath.Join(destDir, fmt.Sprint(matrix), fmt.Sprint(row), fmt.Sprintf("%d.%s", col, ext))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("create tile directory: %w", err)
	}
	out, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create tile file: %w", err)
	}
	defer out.Close()
	if _, err := io.Copy(out, resp.Body); err != nil {
		return "", fmt.Errorf("write tile: %w", err)
	}
	return path, nil
}

func (s *Session) get(ctx context.Context, u string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("build vendor request: %w", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("vendor request: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 8192))
		resp.Body.Close()
		return nil, &RequestError{StatusCode: resp.StatusCode, Body: string(body)}
	}
	return resp, nil
}
