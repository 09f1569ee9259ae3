// Package fares talks to external flight pricing providers and normalizes
// their payloads into FareQuote records.
package fares

import (
	"context"
	"crypto/tls"
	"hash/fnv"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"farematrix/internal/models"
)

// DefaultUserAgent identifies the scraper to providers so robots.txt rules and
// rate limits can be applied to it specifically.
const DefaultUserAgent = "FareMatrix/1.0 (+https://github.com/farematrix)"

// Client performs one fare search against an external pricing provider.
type Client interface {
	// Provider returns the provider name used for rate limiting, circuit
	// breaking, and the Source field of produced quotes.
	Provider() string
	// Search returns the priced itineraries for the task. An empty slice with
	// a nil error means the provider answered but had no fares.
	Search(ctx context.Context, task models.Task) ([]models.FareQuote, error)
}

// HTTPClientConfig tunes the shared HTTP transport.
type HTTPClientConfig struct {
	ConnectTimeout        time.Duration
	ResponseHeaderTimeout time.Duration
	TotalTimeout          time.Duration
	ProxyURL              string
	ProxyPool             []string
	InsecureSkipVerify    bool
}

// BuildHTTPClient constructs an *http.Client with explicit dial, header, and
// total timeouts. When a proxy pool is configured, requests are pinned to a
// pool entry by target hostname so a given provider always exits through the
// same proxy.
func BuildHTTPClient(cfg HTTPClientConfig) *http.Client {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}
	if cfg.ResponseHeaderTimeout <= 0 {
		cfg.ResponseHeaderTimeout = 25 * time.Second
	}
	if cfg.TotalTimeout <= 0 {
		cfg.TotalTimeout = 30 * time.Second
	}

	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   cfg.ConnectTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ResponseHeaderTimeout: cfg.ResponseHeaderTimeout,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
	}
	if cfg.InsecureSkipVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	switch {
	case len(cfg.ProxyPool) > 0:
		pool := cfg.ProxyPool
		transport.Proxy = func(req *http.Request) (*url.URL, error) {
			return url.Parse(selectProxyFromPool(pool, req.URL.Hostname()))
		}
	case cfg.ProxyURL != "":
		proxyURL, err := url.Parse(cfg.ProxyURL)
		if err == nil {
			transport.Proxy = http.ProxyURL(proxyURL)
		}
	}

	return &http.Client{
		Transport: transport,
		Timeout:   cfg.TotalTimeout,
	}
}

// selectProxyFromPool hashes the hostname onto the pool so the same provider
// keeps the same exit address across requests.
func selectProxyFromPool(pool []string, hostname string) string {
	h := fnv.New32a()
	h.Write([]byte(strings.ToLower(hostname)))
	return pool[int(h.Sum32())%len(pool)]
}
