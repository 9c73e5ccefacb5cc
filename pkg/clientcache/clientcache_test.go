// Copyright 2026 WorkspacesIO Authors
// SPDX-License-Identifier: Apache-2.0

package clientcache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/workspacesio/workspaces/pkg/registry"
	"github.com/workspacesio/workspaces/pkg/types"
)

func testFacts(name, secret string) *registry.ConnectionFacts {
	return &registry.ConnectionFacts{
		Node: types.StorageNode{
			Name:            name,
			APIURL:          "http://minio.local:9000",
			AccessKeyID:     "minioadmin",
			SecretAccessKey: secret,
			RegionName:      "us-east-1",
		},
		STSEndpoint: "http://minio.local:9000",
		Flavor:      registry.FlavorNodeNative,
	}
}

func TestFingerprint(t *testing.T) {
	base := testFacts("node-a", "secret-1")

	t.Run("stable", func(t *testing.T) {
		assert.Equal(t, Fingerprint(KindS3, base), Fingerprint(KindS3, testFacts("node-a", "secret-1")))
	})

	t.Run("secret change produces a new key", func(t *testing.T) {
		rotated := testFacts("node-a", "secret-2")
		assert.NotEqual(t, Fingerprint(KindS3, base), Fingerprint(KindS3, rotated))
	})

	t.Run("kind is part of the key", func(t *testing.T) {
		assert.NotEqual(t, Fingerprint(KindS3, base), Fingerprint(KindSTS, base))
	})

	t.Run("case insensitive", func(t *testing.T) {
		upper := testFacts("node-a", "secret-1")
		upper.Node.RegionName = "US-EAST-1"
		assert.Equal(t, Fingerprint(KindS3, base), Fingerprint(KindS3, upper))
	})

	t.Run("node name does not affect the key", func(t *testing.T) {
		renamed := testFacts("node-b", "secret-1")
		assert.Equal(t, Fingerprint(KindS3, base), Fingerprint(KindS3, renamed))
	})
}

func TestCache_ConstructOnMiss(t *testing.T) {
	c := New(time.Second, 10)
	defer c.Close()
	ctx := context.Background()
	facts := testFacts("node-a", "secret-1")

	first, err := c.S3(ctx, facts)
	require.NoError(t, err)
	second, err := c.S3(ctx, facts)
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Equal(t, 1, c.Size())
}

func TestCache_DistinctFactsDistinctClients(t *testing.T) {
	c := New(time.Second, 10)
	defer c.Close()
	ctx := context.Background()

	a, err := c.S3(ctx, testFacts("node-a", "secret-1"))
	require.NoError(t, err)
	b, err := c.S3(ctx, testFacts("node-a", "secret-2"))
	require.NoError(t, err)
	assert.NotSame(t, a, b)
	assert.Equal(t, 2, c.Size())
}

func TestCache_STSAndS3AreSeparateEntries(t *testing.T) {
	c := New(time.Second, 10)
	defer c.Close()
	ctx := context.Background()
	facts := testFacts("node-a", "secret-1")

	_, err := c.S3(ctx, facts)
	require.NoError(t, err)
	_, err = c.STS(ctx, facts)
	require.NoError(t, err)
	assert.Equal(t, 2, c.Size())
}

func TestCache_ConcurrentAccessConverges(t *testing.T) {
	c := New(time.Second, 10)
	defer c.Close()
	ctx := context.Background()
	facts := testFacts("node-a", "secret-1")

	const workers = 32
	results := make([]any, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			client, err := c.S3(ctx, facts)
			assert.NoError(t, err)
			results[i] = client
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, c.Size())
	for i := 1; i < workers; i++ {
		assert.Same(t, results[0], results[i])
	}
}

func TestCache_CloseResets(t *testing.T) {
	c := New(time.Second, 10)
	ctx := context.Background()

	_, err := c.S3(ctx, testFacts("node-a", "secret-1"))
	require.NoError(t, err)
	require.NoError(t, c.Close())
	assert.Equal(t, 0, c.Size())
}
