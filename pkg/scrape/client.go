package scrape

import (
	"net"
	"net/http"
	"time"

	"golang.org/x/net/http2"
)

// newHTTPClient builds the client configuration mandated by spec §4.D: a 5s
// total request timeout, a 60s idle connection timeout, up to 200 idle
// conns per host, 30s TCP keep-alive and a 30s HTTP/2 keep-alive ping.
func newHTTPClient() *http.Client {
	dialer := &net.Dialer{Timeout: 5 * time.Second, KeepAlive: 30 * time.Second}

	transport := &http.Transport{
		DialContext:         dialer.DialContext,
		MaxIdleConns:        200,
		MaxIdleConnsPerHost: 200,
		IdleConnTimeout:     60 * time.Second,
	}

	if h2, err := http2.ConfigureTransports(transport); err == nil {
		h2.ReadIdleTimeout = 30 * time.Second
		h2.PingTimeout = 30 * time.Second
	}

	return &http.Client{Transport: transport, Timeout: 5 * time.Second}
}
