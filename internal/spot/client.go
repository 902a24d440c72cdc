package spot

import (
	"net/http"
	"time"

	"fundingflow/config"
)

// newPooledClient builds an HTTP client with the connection pool settings
// shared by all REST sources.
func newPooledClient(pool config.ConnectionPoolConfig, timeout time.Duration) *http.Client {
	transport := &http.Transport{
		MaxIdleConns:        pool.MaxIdleConns,
		MaxIdleConnsPerHost: pool.MaxConnsPerHost,
		MaxConnsPerHost:     pool.MaxConnsPerHost,
		IdleConnTimeout:     pool.IdleConnTimeout,
	}
	return &http.Client{
		Transport: transport,
		Timeout:   timeout,
	}
}
