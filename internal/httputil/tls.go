package httputil

import (
	"context"
	"crypto/tls"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/pkg/errors"
	utls "github.com/refraction-networking/utls"
	"golang.org/x/net/http2"
)

const dialTimeout = 30 * time.Second

// FingerprintTransport performs requests with a Chrome TLS Client Hello so
// anti-bot frontends treat them like browser traffic. HTTP/2 is tried first
// and HTTP/1.1 is used when the h2 round trip fails.
type FingerprintTransport struct {
	h2Once sync.Once
	h2     *http2.Transport
	h1     *http.Transport
}

// NewFingerprintTransport returns a transport using utls HelloChrome_120.
func NewFingerprintTransport() *FingerprintTransport {
	return &FingerprintTransport{
		h1: &http.Transport{
			DialTLSContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
				return dialChrome(ctx, network, addr, []string{"http/1.1"})
			},
			MaxIdleConnsPerHost: 5,
			IdleConnTimeout:     30 * time.Second,
		},
	}
}

func (t *FingerprintTransport) http2() *http2.Transport {
	t.h2Once.Do(func() {
		t.h2 = &http2.Transport{
			DialTLSContext: func(ctx context.Context, network, addr string, _ *tls.Config) (net.Conn, error) {
				return dialChrome(ctx, network, addr, nil)
			},
		}
	})
	return t.h2
}

// RoundTrip implements http.RoundTripper.
func (t *FingerprintTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.URL.Scheme != "https" {
		return t.h1.RoundTrip(req)
	}
	// Only bodiless requests can be replayed on the fallback transport.
	if req.Body == nil || req.Body == http.NoBody {
		resp, err := t.http2().RoundTrip(req)
		if err == nil {
			return resp, nil
		}
		return t.h1.RoundTrip(req.Clone(req.Context()))
	}
	return t.h1.RoundTrip(req)
}

// dialChrome dials addr and performs a utls handshake mimicking Chrome 120.
func dialChrome(ctx context.Context, network, addr string, protos []string) (net.Conn, error) {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		host = addr
	}

	dialer := &net.Dialer{Timeout: dialTimeout}
	conn, err := dialer.DialContext(ctx, network, addr)
	if err != nil {
		return nil, err
	}

	cfg := &utls.Config{
		ServerName: host,
		MinVersion: tls.VersionTLS12,
	}
	if len(protos) > 0 {
		cfg.NextProtos = protos
	}
	tlsConn := utls.UClient(conn, cfg, utls.HelloChrome_120)
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		conn.Close()
		return nil, errors.Wrap(err, "tls handshake")
	}

	return tlsConn, nil
}
