package httpclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"time"
)

// ErrTooManyRedirects is returned when a request exceeds Config.MaxRedirects.
var ErrTooManyRedirects = errors.New("too many redirects")

// Config defines the setup for the HTTP Client.
type Config struct {
	Timeout time.Duration
	// MaxRedirects caps followed redirects. Zero means 10; negative disables
	// redirect following and returns the 3xx response as-is.
	MaxRedirects int
	UseCookieJar bool
	// Transport, e.g. a fingerprinted or proxied RoundTripper.
	Transport http.RoundTripper
	// Header values set on every request that does not already carry them.
	Header http.Header
}

// Client wraps http.Client with a redirect policy, optional cookie jar and
// default headers.
type Client struct {
	*http.Client
	header http.Header
}

// New creates a new HTTP client based on the provided configuration.
func New(cfg Config) (*Client, error) {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxRedirects == 0 {
		cfg.MaxRedirects = 10
	}

	c := &http.Client{
		Timeout:       cfg.Timeout,
		CheckRedirect: redirectPolicy(cfg.MaxRedirects),
	}

	if cfg.UseCookieJar {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create cookie jar: %w", err)
		}
		c.Jar = jar
	}

	if cfg.Transport != nil {
		c.Transport = cfg.Transport
	}

	return &Client{Client: c, header: cfg.Header.Clone()}, nil
}

func redirectPolicy(max int) func(*http.Request, []*http.Request) error {
	if max < 0 {
		return func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		}
	}
	return func(req *http.Request, via []*http.Request) error {
		if len(via) >= max {
			return fmt.Errorf("stopped after %d redirects: %w", max, ErrTooManyRedirects)
		}
		return nil
	}
}

// Do executes req under ctx, which controls cancellation independently of
// the client timeout.
func (c *Client) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	if ctx == nil {
		return nil, errors.New("httpclient: nil context")
	}

	r := req.Clone(ctx)
	for key, values := range c.header {
		if r.Header.Get(key) != "" {
			continue
		}
		for _, v := range values {
			r.Header.Add(key, v)
		}
	}

	resp, err := c.Client.Do(r)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", r.Method, r.URL.Redacted(), err)
	}
	return resp, nil
}
