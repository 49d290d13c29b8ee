package useragent

import (
	"math/rand/v2"
	"sync/atomic"
)

// Desktop browser User-Agents matching the TLS fingerprints the search client
// can present.
var Desktop = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:133.0) Gecko/20100101 Firefox/133.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10.15; rv:133.0) Gecko/20100101 Firefox/133.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/18.1 Safari/605.1.15",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36 Edg/131.0.0.0",
}

// Pool hands out User-Agents round-robin or at random.
type Pool struct {
	uas     []string
	counter atomic.Uint64
}

// NewPool copies uas into a pool, falling back to Desktop when empty.
func NewPool(uas []string) *Pool {
	if len(uas) == 0 {
		uas = Desktop
	}
	return &Pool{uas: append([]string(nil), uas...)}
}

// Next returns the next User-Agent round-robin. Safe for concurrent use.
func (p *Pool) Next() string {
	idx := p.counter.Add(1) - 1
	return p.uas[idx%uint64(len(p.uas))]
}

// Random returns a uniformly chosen User-Agent.
func (p *Pool) Random() string {
	return p.uas[rand.IntN(len(p.uas))]
}

// Len returns the pool size.
func (p *Pool) Len() int {
	return len(p.uas)
}
