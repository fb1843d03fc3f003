// Package httpc provides the HTTP client used for every remote collaborator.
// Use it instead of http.DefaultClient so timeouts are always set.
package httpc

import (
	"net"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Default timeouts for HTTP operations.
const (
	DefaultTimeout         = 30 * time.Second
	DefaultConnectTimeout  = 10 * time.Second
	DefaultKeepAlive       = 30 * time.Second
	DefaultIdleConnTimeout = 90 * time.Second
)

// shared is reused by every client so connections pool across services.
var shared = &http.Transport{
	Proxy: http.ProxyFromEnvironment,
	DialContext: (&net.Dialer{
		Timeout:   DefaultConnectTimeout,
		KeepAlive: DefaultKeepAlive,
	}).DialContext,
	MaxIdleConns:          100,
	MaxIdleConnsPerHost:   10,
	IdleConnTimeout:       DefaultIdleConnTimeout,
	TLSHandshakeTimeout:   10 * time.Second,
	ExpectContinueTimeout: 1 * time.Second,
}

// New returns a client for the named remote service. Requests are traced
// through otelhttp with span names like "lmnt POST /synthesize".
// A non-positive timeout means DefaultTimeout.
func New(service string, timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &http.Client{
		Timeout: timeout,
		Transport: otelhttp.NewTransport(shared,
			otelhttp.WithSpanNameFormatter(SpanName(service)),
		),
	}
}

// SpanName returns an otelhttp span name formatter for service.
func SpanName(service string) func(string, *http.Request) string {
	return func(_ string, r *http.Request) string {
		name := r.Method + " " + r.URL.Path
		if service == "" {
			return name
		}
		return service + " " + name
	}
}
