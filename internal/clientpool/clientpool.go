// Package clientpool provides a small fan-out of keep-alive HTTP clients
// for the request driver. A single client's connection pool becomes a
// bottleneck under high worker concurrency; a handful of independent pools,
// handed out round-robin, keeps per-pool queues short while still bounding
// total file descriptors.
//
// Retries are never attempted here: an automatic retry would corrupt the
// timing data the streaming parser is trying to measure, so failures are
// always surfaced to the caller directly.
package clientpool

import (
	"net/http"
	"sync/atomic"
	"time"
)

const (
	// DefaultMaxConnectionsPerClient bounds each pooled client's keep-alive
	// connections.
	DefaultMaxConnectionsPerClient = 50
	// DefaultRequestTimeout is the per-request deadline.
	DefaultRequestTimeout = 600 * time.Second

	minClients = 3
	maxClients = 10
)

// ClampClientCount implements K = clamp(runners/20, 3, 10).
func ClampClientCount(numRunners int) int {
	k := numRunners / 20
	if k < minClients {
		k = minClients
	}
	if k > maxClients {
		k = maxClients
	}
	return k
}

// Pool hands out pre-constructed *http.Client values round-robin.
type Pool struct {
	clients []*http.Client
	next    atomic.Uint64
}

// Config controls how a Pool's clients are constructed.
type Config struct {
	NumRunners              int
	MaxConnectionsPerClient int
	RequestTimeout          time.Duration
}

// New builds a Pool sized per ClampClientCount(cfg.NumRunners).
func New(cfg Config) *Pool {
	maxConns := cfg.MaxConnectionsPerClient
	if maxConns <= 0 {
		maxConns = DefaultMaxConnectionsPerClient
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}

	k := ClampClientCount(cfg.NumRunners)
	clients := make([]*http.Client, k)
	for i := range clients {
		transport := &http.Transport{
			MaxConnsPerHost:     maxConns,
			MaxIdleConnsPerHost: maxConns,
			DisableKeepAlives:   false,
		}
		clients[i] = &http.Client{
			Transport: transport,
			Timeout:   timeout,
			// Retries are corruptive to timing data: this client never
			// reattempts a request on error, and no custom Transport
			// retry wrapper is layered on top.
		}
	}
	return &Pool{clients: clients}
}

// Get returns the next client in round-robin order.
func (p *Pool) Get() *http.Client {
	i := p.next.Add(1) - 1
	return p.clients[i%uint64(len(p.clients))]
}

// Size reports how many clients the pool holds.
func (p *Pool) Size() int {
	return len(p.clients)
}

// CloseIdleConnections releases idle connections on every pooled client.
func (p *Pool) CloseIdleConnections() {
	for _, c := range p.clients {
		c.CloseIdleConnections()
	}
}
