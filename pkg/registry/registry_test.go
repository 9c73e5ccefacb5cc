// Copyright 2026 WorkspacesIO Authors
// SPDX-License-Identifier: Apache-2.0

package registry

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/workspacesio/workspaces/pkg/db"
	"github.com/workspacesio/workspaces/pkg/db/memory"
	"github.com/workspacesio/workspaces/pkg/types"
)

func TestResolve_STSAddressing(t *testing.T) {
	tests := []struct {
		name           string
		node           types.StorageNode
		expectEndpoint string
		expectFlavor   Flavor
	}{
		{
			name: "node native serves sts on its api url",
			node: types.StorageNode{
				Name:   "minio-local",
				APIURL: "http://minio.local:9000",
			},
			expectEndpoint: "http://minio.local:9000",
			expectFlavor:   FlavorNodeNative,
		},
		{
			name: "explicit sts url wins",
			node: types.StorageNode{
				Name:      "minio-split",
				APIURL:    "http://minio.local:9000",
				STSAPIURL: "http://sts.local:9001",
			},
			expectEndpoint: "http://sts.local:9001",
			expectFlavor:   FlavorNodeNative,
		},
		{
			name: "assume role arn implies regional cloud endpoint",
			node: types.StorageNode{
				Name:          "aws-east",
				APIURL:        "https://s3.us-east-2.amazonaws.com",
				RegionName:    "us-east-2",
				AssumeRoleARN: "arn:aws:iam::123456789012:role/workspaces",
			},
			expectEndpoint: "https://sts.us-east-2.amazonaws.com",
			expectFlavor:   FlavorCloud,
		},
		{
			name: "explicit sts url wins even on cloud nodes",
			node: types.StorageNode{
				Name:          "aws-gov",
				APIURL:        "https://s3.us-gov-west-1.amazonaws.com",
				RegionName:    "us-gov-west-1",
				STSAPIURL:     "https://sts.us-gov-west-1.amazonaws.com",
				AssumeRoleARN: "arn:aws-us-gov:iam::123456789012:role/workspaces",
			},
			expectEndpoint: "https://sts.us-gov-west-1.amazonaws.com",
			expectFlavor:   FlavorCloud,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			store := memory.New()
			node := tt.node
			node.ID = uuid.New()
			node.CreatorID = uuid.New()
			require.NoError(t, store.CreateNode(ctx, &node))

			reg := New(store, DefaultConfig())
			facts, err := reg.Resolve(ctx, node.ID)
			require.NoError(t, err)
			assert.Equal(t, tt.expectEndpoint, facts.STSEndpoint)
			assert.Equal(t, tt.expectFlavor, facts.Flavor)
			assert.Equal(t, 12*time.Hour, facts.MaxSessionDuration)

			byName, err := reg.ResolveByName(ctx, node.Name)
			require.NoError(t, err)
			assert.Equal(t, facts.STSEndpoint, byName.STSEndpoint)
		})
	}
}

func TestResolve_UnknownNode(t *testing.T) {
	reg := New(memory.New(), Config{})
	_, err := reg.Resolve(context.Background(), uuid.New())
	assert.ErrorIs(t, err, db.ErrNodeNotFound)
}
