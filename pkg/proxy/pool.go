package proxy

import (
	"bufio"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"
)

// ErrUnknownProxy is returned when reporting on a proxy the pool never issued.
var ErrUnknownProxy = errors.New("proxy not in pool")

// Config defines settings for the Proxy Pool.
type Config struct {
	// MaxFailures in a row before a proxy is benched.
	MaxFailures int
	// Cooldown is how long a benched proxy sits out.
	Cooldown time.Duration
}

type entry struct {
	url        *url.URL
	failures   int
	successes  int
	benchUntil time.Time
}

// Pool rotates through a set of outbound proxies round-robin, benching any
// proxy that keeps failing until its cooldown expires.
type Pool struct {
	mu      sync.Mutex
	cfg     Config
	entries []*entry
	index   map[string]*entry
	next    int
	now     func() time.Time
}

// NewPool creates an empty pool. Zero config values get defaults.
func NewPool(cfg Config) *Pool {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 3
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 5 * time.Minute
	}
	return &Pool{
		cfg:   cfg,
		index: make(map[string]*entry),
		now:   time.Now,
	}
}

// LoadFile adds proxies from a file with one URL per line. Blank lines and
// lines starting with '#' are skipped.
func (p *Pool) LoadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open proxy list: %w", err)
	}
	defer f.Close()

	var raw []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		raw = append(raw, line)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read proxy list: %w", err)
	}
	return p.Add(raw...)
}

// Add parses proxy URLs and appends them to the rotation. A missing scheme
// defaults to http. Duplicates are ignored.
func (p *Pool) Add(rawURLs ...string) error {
	parsed := make([]*url.URL, 0, len(rawURLs))
	for _, raw := range rawURLs {
		if !strings.Contains(raw, "://") {
			raw = "http://" + raw
		}
		u, err := url.Parse(raw)
		if err != nil {
			return fmt.Errorf("invalid proxy %q: %w", raw, err)
		}
		if u.Host == "" {
			return fmt.Errorf("invalid proxy %q: missing host", raw)
		}
		parsed = append(parsed, u)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	for _, u := range parsed {
		key := u.String()
		if _, ok := p.index[key]; ok {
			continue
		}
		e := &entry{url: u}
		p.entries = append(p.entries, e)
		p.index[key] = e
	}
	return nil
}

// Len returns the number of proxies in the pool, benched or not.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}

// Next returns the next available proxy, or nil when the pool is empty or
// every proxy is benched.
func (p *Pool) Next() *url.URL {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	for range p.entries {
		e := p.entries[p.next]
		p.next = (p.next + 1) % len(p.entries)

		if !e.benchUntil.IsZero() {
			if now.Before(e.benchUntil) {
				continue
			}
			e.benchUntil = time.Time{}
			e.failures = 0
		}
		return e.url
	}
	return nil
}

// MarkSuccess records a successful request through u.
func (p *Pool) MarkSuccess(u *url.URL) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	e, err := p.lookup(u)
	if err != nil {
		return err
	}
	e.successes++
	if e.failures > 0 {
		e.failures--
	}
	return nil
}

// MarkFailure records a failed request through u, benching it once it
// reaches MaxFailures.
func (p *Pool) MarkFailure(u *url.URL) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	e, err := p.lookup(u)
	if err != nil {
		return err
	}
	e.failures++
	if e.failures >= p.cfg.MaxFailures {
		e.benchUntil = p.now().Add(p.cfg.Cooldown)
	}
	return nil
}

// Must be called with p.mu held.
func (p *Pool) lookup(u *url.URL) (*entry, error) {
	if u == nil {
		return nil, errors.New("nil proxy url")
	}
	e, ok := p.index[u.String()]
	if !ok {
		return nil, fmt.Errorf("%s: %w", u.Redacted(), ErrUnknownProxy)
	}
	return e, nil
}
