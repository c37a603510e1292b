// Package credpool maps external API keys to vendor credential sets fetched
// from the secret store. A cold key is fetched synchronously because the
// request cannot proceed without it; a cached key older than the refresh
// interval is re-fetched in the background after the current request, and a
// failed refresh never displaces the stale-but-valid cached set.
package credpool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/hexprox/hexprox/internal/hexagon"
	"github.com/hexprox/hexprox/internal/logging"
	"github.com/hexprox/hexprox/internal/metrics"
	"github.com/hexprox/hexprox/internal/secretstore"
	"github.com/hexprox/hexprox/internal/tasks"
)

// DefaultRefreshInterval is how long a cached credential set serves before a
// background re-fetch is scheduled.
const DefaultRefreshInterval = 30 * time.Minute

// secretPrefix is the secret-store naming convention for credential sets.
const secretPrefix = "credential-set-"

var (
	// ErrInvalidAPIKey is returned when no credential set exists for a key.
	// The secret store's own error text is deliberately not included.
	ErrInvalidAPIKey = errors.New("invalid api key")

	// ErrMalformedRecord is returned when the fetched document does not have
	// the required credential-set shape.
	ErrMalformedRecord = errors.New("malformed credential record")
)

// Set is one deserialized credential-set document.
type Set struct {
	Count   int
	Creds   []hexagon.Credential
	Org     string
	Contact string
}

type entry struct {
	set           Set
	lastRefreshed time.Time
}

// Option configures a Pool at construction.
type Option func(*Pool)

// WithRefreshInterval overrides the staleness interval.
func WithRefreshInterval(d time.Duration) Option {
	return func(p *Pool) { p.interval = d }
}

// WithClock replaces the pool clock for tests.
func WithClock(now func() time.Time) Option {
	return func(p *Pool) { p.now = now }
}

// WithRand replaces the selection source. Selection only distributes load
// across the vendor's per-credential quotas; it does not need to be
// unpredictable, so tests may pass a fixed-seed source.
func WithRand(r *rand.Rand) Option {
	return func(p *Pool) { p.rng = r }
}

// Pool is the process-wide API key → credential set cache.
type Pool struct {
	store    secretstore.Store
	queue    *tasks.Queue
	interval time.Duration
	now      func() time.Time

	rngMu sync.Mutex
	rng   *rand.Rand

	mu       sync.Mutex
	keys     map[string]*entry
	inflight map[string]chan struct{}
	pending  map[string]bool
}

// NewPool creates a pool reading from store. queue may be nil, in which case
// stale entries are only replaced by the next cold fetch after a restart.
func NewPool(store secretstore.Store, queue *tasks.Queue, opts ...Option) *Pool {
	p := &Pool{
		store:    store,
		queue:    queue,
		interval: DefaultRefreshInterval,
		now:      time.Now,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
		keys:     make(map[string]*entry),
		inflight: make(map[string]chan struct{}),
		pending:  make(map[string]bool),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Resolve returns one vendor credential for apiKey. With a single-set record
// the choice is deterministic; with multiple sets it is a uniform random pick.
func (p *Pool) Resolve(ctx context.Context, apiKey string) (hexagon.Credential, error) {
	p.mu.Lock()
	if e, ok := p.keys[apiKey]; ok {
		set := e.set
		stale := p.now().Sub(e.lastRefreshed) > p.interval
		alreadyPending := p.pending[apiKey]
		if stale && !alreadyPending && p.queue != nil {
			p.pending[apiKey] = true
		}
		p.mu.Unlock()

		if stale && !alreadyPending && p.queue != nil {
			p.scheduleRefresh(apiKey)
		}
		return p.pick(set), nil
	}

	// Cold key. If another request is already fetching it, wait for that
	// fetch instead of hitting the secret store again.
	if ch, ok := p.inflight[apiKey]; ok {
		p.mu.Unlock()
		select {
		case <-ch:
		case <-ctx.Done():
			return hexagon.Credential{}, ctx.Err()
		}
		p.mu.Lock()
		if e, ok := p.keys[apiKey]; ok {
			set := e.set
			p.mu.Unlock()
			return p.pick(set), nil
		}
		// The other fetch failed; fall through and try ourselves.
	}
	ch := make(chan struct{})
	p.inflight[apiKey] = ch
	p.mu.Unlock()

	set, err := p.fetch(ctx, apiKey, "cold")

	p.mu.Lock()
	delete(p.inflight, apiKey)
	if err == nil {
		p.keys[apiKey] = &entry{set: set, lastRefreshed: p.now()}
	}
	p.mu.Unlock()
	close(ch)

	if err != nil {
		return hexagon.Credential{}, err
	}
	return p.pick(set), nil
}

// Len returns the number of cached API keys.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.keys)
}

func (p *Pool) pick(set Set) hexagon.Credential {
	if set.Count <= 1 {
		return set.Creds[0]
	}
	p.rngMu.Lock()
	i := p.rng.Intn(set.Count)
	p.rngMu.Unlock()
	return set.Creds[i]
}

func (p *Pool) scheduleRefresh(apiKey string) {
	accepted := p.queue.Enqueue(tasks.Task{
		Name: "refresh-credentials",
		Run: func(ctx context.Context) error {
			return p.refresh(ctx, apiKey)
		},
	})
	if !accepted {
		p.mu.Lock()
		delete(p.pending, apiKey)
		p.mu.Unlock()
	}
}

// refresh re-fetches apiKey's credential set. A failure leaves the existing
// cached entry in place; the next stale resolution schedules another attempt.
func (p *Pool) refresh(ctx context.Context, apiKey string) error {
	defer func() {
		p.mu.Lock()
		delete(p.pending, apiKey)
		p.mu.Unlock()
	}()

	set, err := p.fetch(ctx, apiKey, "background")
	if err != nil {
		return fmt.Errorf("refresh credentials for key %s: %w", logging.MaskKey(apiKey), err)
	}
	p.mu.Lock()
	p.keys[apiKey] = &entry{set: set, lastRefreshed: p.now()}
	p.mu.Unlock()
	return nil
}

func (p *Pool) fetch(ctx context.Context, apiKey, trigger string) (Set, error) {
	doc, err := p.store.Fetch(ctx, secretPrefix+apiKey)
	if err != nil {
		metrics.CredentialRefreshes.WithLabelValues(trigger, "error").Inc()
		if errors.Is(err, secretstore.ErrNotFound) {
			return Set{}, ErrInvalidAPIKey
		}
		// The store's internal error text stays in the logs.
		logging.Logger.Warn("secret store fetch failed",
			"api_key", logging.MaskKey(apiKey), "error", err.Error())
		return Set{}, ErrInvalidAPIKey
	}

	set, err := parseSet(doc)
	if err != nil {
		metrics.CredentialRefreshes.WithLabelValues(trigger, "error").Inc()
		return Set{}, err
	}
	metrics.CredentialRefreshes.WithLabelValues(trigger, "success").Inc()
	return set, nil
}

// ValidateDocument checks that doc is a well-formed credential-set document.
// The operator CLI runs this before provisioning a secret.
func ValidateDocument(doc []byte) error {
	_, err := parseSet(doc)
	return err
}

func parseSet(doc []byte) (Set, error) {
	var raw interface{}
	if err := json.Unmarshal(doc, &raw); err != nil {
		return Set{}, fmt.Errorf("%w: not valid JSON", ErrMalformedRecord)
	}
	if err := setSchema.Validate(raw); err != nil {
		return Set{}, fmt.Errorf("%w: schema violation", ErrMalformedRecord)
	}

	var rec struct {
		Count int `json:"count"`
		Sets  []struct {
			ClientID     string `json:"client_id"`
			ClientSecret string `json:"client_secret"`
		} `json:"sets"`
		Org     string `json:"org"`
		Contact string `json:"contact"`
	}
	if err := json.Unmarshal(doc, &rec); err != nil {
		return Set{}, fmt.Errorf("%w: not valid JSON", ErrMalformedRecord)
	}
	if len(rec.Sets) != rec.Count {
		return Set{}, fmt.Errorf("%w: count does not match sets", ErrMalformedRecord)
	}

	set := Set{Count: rec.Count, Org: rec.Org, Contact: rec.Contact}
	for _, s := range rec.Sets {
		cred, err := hexagon.NewCredential(s.ClientID, s.ClientSecret)
		if err != nil {
			return Set{}, fmt.Errorf("%w: unusable credential pair", ErrMalformedRecord)
		}
		set.Creds = append(set.Creds, cred)
	}
	return set, nil
}
