// Copyright 2026 WorkspacesIO Authors
// SPDX-License-Identifier: Apache-2.0

// Package clientcache maintains a process-wide cache of constructed S3 and
// STS clients, keyed by a fingerprint of the node facts that define the
// connection. Building a client sets up TLS and connection pooling, which is
// expensive relative to a request; two logically identical node
// registrations share one client, and any credential or endpoint change
// produces a new cache entry. Stale entries are abandoned rather than
// evicted: the cache is bounded by the number of distinct nodes, not by
// request volume.
package clientcache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sts"

	"github.com/workspacesio/workspaces/pkg/logger"
	"github.com/workspacesio/workspaces/pkg/registry"
)

// Kind selects the client type to construct.
type Kind string

const (
	KindS3  Kind = "s3"
	KindSTS Kind = "sts"
)

// Fingerprint derives the cache key for a client: a SHA-256 digest over the
// lowercase concatenation of kind, region, API URL, and the node keys.
func Fingerprint(kind Kind, facts *registry.ConnectionFacts) string {
	n := &facts.Node
	input := strings.ToLower(string(kind) + n.RegionName + n.APIURL + n.AccessKeyID + n.SecretAccessKey)
	sum := sha256.Sum256([]byte(input))
	return hex.EncodeToString(sum[:])
}

// Cache holds constructed clients for every node the process has talked to.
// Safe for concurrent use; construct-on-miss is double-checked under the
// write lock so rebuilds converge to one retained instance per key.
type Cache struct {
	mu         sync.RWMutex
	s3Clients  map[string]*s3.Client
	stsClients map[string]*sts.Client

	timeout time.Duration

	// Shared HTTP client for connection reuse across all cached clients
	httpClient *http.Client
}

// New creates a client cache. timeout bounds individual HTTP calls made by
// cached clients; maxIdleConns sizes the shared transport.
func New(timeout time.Duration, maxIdleConns int) *Cache {
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	if maxIdleConns == 0 {
		maxIdleConns = 100
	}

	return &Cache{
		s3Clients:  make(map[string]*s3.Client),
		stsClients: make(map[string]*sts.Client),
		timeout:    timeout,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        maxIdleConns,
				MaxIdleConnsPerHost: maxIdleConns / 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

// S3 returns a data-plane client for the node, building one on first use.
func (c *Cache) S3(ctx context.Context, facts *registry.ConnectionFacts) (*s3.Client, error) {
	key := Fingerprint(KindS3, facts)

	c.mu.RLock()
	client, exists := c.s3Clients[key]
	c.mu.RUnlock()
	if exists {
		return client, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if client, exists := c.s3Clients[key]; exists {
		return client, nil
	}

	awsCfg, err := c.loadConfig(ctx, facts)
	if err != nil {
		return nil, err
	}
	client = s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(facts.Node.APIURL)
		o.UsePathStyle = true
	})
	c.s3Clients[key] = client

	logger.Debug().
		Str("node", facts.Node.Name).
		Str("endpoint", facts.Node.APIURL).
		Msg("constructed s3 client")

	return client, nil
}

// STS returns an issuance client for the node, building one on first use.
// The endpoint follows the registry's addressing rule (explicit STS URL,
// synthesized regional cloud endpoint, or the node API URL itself).
func (c *Cache) STS(ctx context.Context, facts *registry.ConnectionFacts) (*sts.Client, error) {
	key := Fingerprint(KindSTS, facts)

	c.mu.RLock()
	client, exists := c.stsClients[key]
	c.mu.RUnlock()
	if exists {
		return client, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if client, exists := c.stsClients[key]; exists {
		return client, nil
	}

	awsCfg, err := c.loadConfig(ctx, facts)
	if err != nil {
		return nil, err
	}
	client = sts.NewFromConfig(awsCfg, func(o *sts.Options) {
		o.BaseEndpoint = aws.String(facts.STSEndpoint)
	})
	c.stsClients[key] = client

	logger.Debug().
		Str("node", facts.Node.Name).
		Str("endpoint", facts.STSEndpoint).
		Msg("constructed sts client")

	return client, nil
}

// loadConfig builds an aws.Config carrying the node-level keys and the
// shared HTTP client.
func (c *Cache) loadConfig(ctx context.Context, facts *registry.ConnectionFacts) (aws.Config, error) {
	staticCreds := credentials.NewStaticCredentialsProvider(
		facts.Node.AccessKeyID,
		facts.Node.SecretAccessKey,
		"",
	)

	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(facts.Node.RegionName),
		config.WithCredentialsProvider(staticCreds),
		config.WithHTTPClient(c.httpClient),
	)
	if err != nil {
		return aws.Config{}, fmt.Errorf("load aws config: %w", err)
	}
	return awsCfg, nil
}

// Size returns the number of cached clients of both kinds.
func (c *Cache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.s3Clients) + len(c.stsClients)
}

// Close releases idle connections. Cached clients become unusable only once
// no request holds them.
func (c *Cache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.s3Clients = make(map[string]*s3.Client)
	c.stsClients = make(map[string]*sts.Client)
	c.httpClient.CloseIdleConnections()

	return nil
}
