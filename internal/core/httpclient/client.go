// Package httpclient configures the HTTP client used for outbound calls to
// the work-items service.
package httpclient

import (
	"net"
	"net/http"
	"time"
)

const defaultTimeout = 15 * time.Second

type Option func(*http.Client)

func WithTimeout(d time.Duration) Option {
	return func(c *http.Client) { c.Timeout = d }
}

// NewOutbound creates a client with bounded dial, TLS and overall timeouts.
func NewOutbound(opts ...Option) *http.Client {
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: 5 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		MaxIdleConns:          64,
		MaxIdleConnsPerHost:   16,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		ResponseHeaderTimeout: 10 * time.Second,
	}
	c := &http.Client{
		Transport: transport,
		Timeout:   defaultTimeout,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}
