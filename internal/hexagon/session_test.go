package hexagon

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// fakeVendor is an httptest vendor serving both the token endpoint and tile
// paths, counting token fetches.
type fakeVendor struct {
	t           *testing.T
	tokenCalls  atomic.Int64
	tokenStatus int
	expiresIn   float64
	tileStatus  int
	tileBody    string
	srv         *httptest.Server
}

func newFakeVendor(t *testing.T) *fakeVendor {
	t.Helper()
	v := &fakeVendor{
		t:           t,
		tokenStatus: http.StatusOK,
		expiresIn:   3600,
		tileStatus:  http.StatusOK,
		tileBody:    "tile-bytes",
	}
	v.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/oauth/token") {
			v.tokenCalls.Add(1)
			if v.tokenStatus != http.StatusOK {
				w.WriteHeader(v.tokenStatus)
				fmt.Fprint(w, `{"error":"invalid_client"}`)
				return
			}
			fmt.Fprintf(w, `{"access_token":"tok-%d","expires_in":%g}`, v.tokenCalls.Load(), v.expiresIn)
			return
		}
		if v.tileStatus != http.StatusOK {
			w.WriteHeader(v.tileStatus)
			fmt.Fprint(w, "vendor error body")
			return
		}
		fmt.Fprint(w, v.tileBody)
	}))
	t.Cleanup(v.srv.Close)
	return v
}

func (v *fakeVendor) endpoints() Endpoints {
	return Endpoints{
		TokenURL:   v.srv.URL + "/oauth/token?grant_type=client_credentials",
		WMTSURL:    v.srv.URL + "/wmts?/",
		TileParams: DefaultTileParams,
	}
}

// fakeClock is a settable clock shared with the session under test.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func testCredential(t *testing.T) Credential {
	t.Helper()
	cred, err := NewCredential("test-client-id", "test-client-secret")
	if err != nil {
		t.Fatalf("NewCredential: %v", err)
	}
	return cred
}

func TestBearerTokenCachedWithinTTL(t *testing.T) {
	vendor := newFakeVendor(t)
	clock := newFakeClock()
	s := NewSession(testCredential(t), vendor.endpoints(), WithClock(clock.Now))

	tok1, err := s.BearerToken(context.Background())
	if err != nil {
		t.Fatalf("BearerToken: %v", err)
	}

	// Just inside the renewal margin: TTL 3600s − 5s margin, so anything
	// before 3595s reuses the cached token.
	clock.Advance(3594 * time.Second)
	tok2, err := s.BearerToken(context.Background())
	if err != nil {
		t.Fatalf("BearerToken: %v", err)
	}
	if tok1 != tok2 {
		t.Errorf("token changed within validity window: %q then %q", tok1, tok2)
	}
	if n := vendor.tokenCalls.Load(); n != 1 {
		t.Errorf("token endpoint called %d times, want 1", n)
	}
}

func TestBearerTokenRenewedAtMargin(t *testing.T) {
	vendor := newFakeVendor(t)
	clock := newFakeClock()
	s := NewSession(testCredential(t), vendor.endpoints(), WithClock(clock.Now))

	tok1, err := s.BearerToken(context.Background())
	if err != nil {
		t.Fatalf("BearerToken: %v", err)
	}

	// At TTL − 5s the cached token is no longer trusted.
	clock.Advance(3595 * time.Second)
	tok2, err := s.BearerToken(context.Background())
	if err != nil {
		t.Fatalf("BearerToken: %v", err)
	}
	if tok1 == tok2 {
		t.Error("expected a fresh token at the renewal margin")
	}
	if n := vendor.tokenCalls.Load(); n != 2 {
		t.Errorf("token endpoint called %d times, want 2", n)
	}
}

func TestBearerTokenUpstreamRejection(t *testing.T) {
	vendor := newFakeVendor(t)
	vendor.tokenStatus = http.StatusUnauthorized
	s := NewSession(testCredential(t), vendor.endpoints())

	_, err := s.BearerToken(context.Background())
	var authErr *AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("BearerToken error = %v, want *AuthError", err)
	}
	if authErr.StatusCode != http.StatusUnauthorized {
		t.Errorf("AuthError.StatusCode = %d, want 401", authErr.StatusCode)
	}
}

func TestTileURLComposition(t *testing.T) {
	vendor := newFakeVendor(t)
	s := NewSession(testCredential(t), vendor.endpoints())

	u, err := s.TileURL(context.Background(), 12, 345, 678, "png")
	if err != nil {
		t.Fatalf("TileURL: %v", err)
	}
	want := vendor.srv.URL + "/wmts?/" + DefaultTileParams + "12/345/678.png&access_token=tok-1"
	if u != want {
		t.Errorf("TileURL = %q, want %q", u, want)
	}
}

func TestFetchTileSuccess(t *testing.T) {
	vendor := newFakeVendor(t)
	s := NewSession(testCredential(t), vendor.endpoints())

	resp, err := s.FetchTile(context.Background(), 10, 1, 2, "jpg")
	if err != nil {
		t.Fatalf("FetchTile: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if string(body) != "tile-bytes" {
		t.Errorf("tile body = %q, want %q", body, "tile-bytes")
	}
}

func TestFetchTileVendorError(t *testing.T) {
	vendor := newFakeVendor(t)
	vendor.tileStatus = http.StatusTooManyRequests
	s := NewSession(testCredential(t), vendor.endpoints())

	_, err := s.FetchTile(context.Background(), 10, 1, 2, "jpg")
	var reqErr *RequestError
	if !errors.As(err, &reqErr) {
		t.Fatalf("FetchTile error = %v, want *RequestError", err)
	}
	if reqErr.StatusCode != http.StatusTooManyRequests {
		t.Errorf("RequestError.StatusCode = %d, want 429", reqErr.StatusCode)
	}
	if reqErr.Body != "vendor error body" {
		t.Errorf("RequestError.Body = %q, want vendor body for diagnostics", reqErr.Body)
	}
}

func TestFetchDocumentForwardsQuery(t *testing.T) {
	var captured string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/oauth/token") {
			fmt.Fprint(w, `{"access_token":"doc-token","expires_in":3600}`)
			return
		}
		captured = r.URL.RequestURI()
		fmt.Fprint(w, "<Capabilities/>")
	}))
	defer srv.Close()

	s := NewSession(testCredential(t), Endpoints{
		TokenURL:   srv.URL + "/oauth/token?grant_type=client_credentials",
		WMTSURL:    srv.URL + "/wmts?/",
		TileParams: DefaultTileParams,
	})

	resp, err := s.FetchDocument(context.Background(), "1.0.0/WMTSCapabilities.xml", "service=WMTS")
	if err != nil {
		t.Fatalf("FetchDocument: %v", err)
	}
	resp.Body.Close()

	if !strings.Contains(captured, "service=WMTS") {
		t.Errorf("query parameters not forwarded: %q", captured)
	}
	if !strings.Contains(captured, "access_token=doc-token") {
		t.Errorf("bearer token not appended: %q", captured)
	}
}

func TestSaveTile(t *testing.T) {
	vendor := newFakeVendor(t)
	s := NewSession(testCredential(t), vendor.endpoints())

	dir := t.TempDir()
	path, err := s.SaveTile(context.Background(), 9, 88, 77, "png", dir)
	if err != nil {
		t.Fatalf("SaveTile: %v", err)
	}
	want := filepath.Join(dir, "9", "88", "77.png")
	if path != want {
		t.Errorf("SaveTile path = %q, want %q", path, want)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading saved tile: %v", err)
	}
	if string(data) != "tile-bytes" {
		t.Errorf("saved tile content = %q, want %q", data, "tile-bytes")
	}
}

func TestAllowedExtension(t *testing.T) {
	for _, ext := range TileExtensions {
		if !AllowedExtension(ext) {
			t.Errorf("AllowedExtension(%q) = false, want true", ext)
		}
	}
	for _, ext := range []string{"gif", "exe", "PNG", ""} {
		if AllowedExtension(ext) {
			t.Errorf("AllowedExtension(%q) = true, want false", ext)
		}
	}
}
