package fingerprint

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"

	utls "github.com/refraction-networking/utls"
)

// Profile names the TLS ClientHello the search client presents.
type Profile string

const (
	ProfileChrome  Profile = "chrome"
	ProfileFirefox Profile = "firefox"
	ProfileSafari  Profile = "safari"
	ProfileGo      Profile = "go"     // crypto/tls, no mimicry
	ProfileRandom  Profile = "random" // randomized uTLS hello
)

var helloIDs = map[Profile]utls.ClientHelloID{
	ProfileChrome:  utls.HelloChrome_Auto,
	ProfileFirefox: utls.HelloFirefox_Auto,
	ProfileSafari:  utls.HelloIOS_Auto,
	ProfileRandom:  utls.HelloRandomizedALPN,
}

// ParseProfile maps a configuration value to a Profile. Empty means Chrome.
func ParseProfile(s string) (Profile, error) {
	p := Profile(strings.ToLower(strings.TrimSpace(s)))
	if p == "" {
		return ProfileChrome, nil
	}
	if p == ProfileGo {
		return p, nil
	}
	if _, ok := helloIDs[p]; !ok {
		return "", fmt.Errorf("unknown tls fingerprint %q", s)
	}
	return p, nil
}

// Transport returns an http.RoundTripper presenting the given fingerprint.
// ProfileGo yields a plain clone of http.DefaultTransport. proxyFunc, when
// set, becomes the transport's Proxy.
func Transport(p Profile, proxyFunc func(*http.Request) (*url.URL, error)) (http.RoundTripper, error) {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if proxyFunc != nil {
		transport.Proxy = proxyFunc
	}
	if p == ProfileGo {
		return transport, nil
	}

	helloID, ok := helloIDs[p]
	if !ok {
		return nil, fmt.Errorf("unknown tls fingerprint %q", p)
	}

	dial := transport.DialContext
	transport.DialTLSContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
		conn, err := dial(ctx, network, addr)
		if err != nil {
			return nil, err
		}

		host, _, err := net.SplitHostPort(addr)
		if err != nil {
			host = addr
		}

		spec, err := http1Spec(helloID)
		if err != nil {
			_ = conn.Close()
			return nil, err
		}

		cfg := &utls.Config{ServerName: host, NextProtos: []string{"http/1.1"}}
		if tc := transport.TLSClientConfig; tc != nil {
			cfg.RootCAs = tc.RootCAs
			cfg.InsecureSkipVerify = tc.InsecureSkipVerify
		}

		uConn := utls.UClient(conn, cfg, utls.HelloCustom)
		if err := uConn.ApplyPreset(spec); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("failed to apply %s hello: %w", p, err)
		}
		if err := uConn.HandshakeContext(ctx); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("utls handshake with %s failed: %w", host, err)
		}
		if proto := uConn.ConnectionState().NegotiatedProtocol; proto != "" && proto != "http/1.1" {
			_ = uConn.Close()
			return nil, fmt.Errorf("utls handshake with %s negotiated unsupported protocol %q", host, proto)
		}
		return uConn, nil
	}

	return transport, nil
}

// http1Spec builds a fresh hello spec for id with ALPN limited to http/1.1.
// http.Transport only switches to HTTP/2 on a *tls.Conn, so a uTLS
// connection must never agree to h2.
func http1Spec(id utls.ClientHelloID) (*utls.ClientHelloSpec, error) {
	spec, err := utls.UTLSIdToSpec(id)
	if err != nil {
		return nil, fmt.Errorf("failed to build %s hello: %w", id.Str(), err)
	}
	for _, ext := range spec.Extensions {
		if alpn, ok := ext.(*utls.ALPNExtension); ok {
			alpn.AlpnProtocols = []string{"http/1.1"}
		}
	}
	return &spec, nil
}
