// Copyright 2026 WorkspacesIO Authors
// SPDX-License-Identifier: Apache-2.0

// Package registry resolves storage node connection facts. It is a pure
// read-through of the persistence layer: node keys can be rotated at any
// time, so facts are always read fresh, never cached.
package registry

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/workspacesio/workspaces/pkg/db"
	"github.com/workspacesio/workspaces/pkg/types"
)

// Flavor tags how a node issues temporary credentials.
type Flavor int

const (
	// FlavorNodeNative means the node implements its own STS-compatible
	// issuance (MinIO and similar), authenticated with the node keys.
	FlavorNodeNative Flavor = iota
	// FlavorCloud means a public-cloud STS with an assume-role ARN and a
	// synthesized regional endpoint.
	FlavorCloud
)

// ConnectionFacts is everything needed to construct clients for a node and
// to call its credential issuance endpoint.
type ConnectionFacts struct {
	Node types.StorageNode
	// STSEndpoint is the effective endpoint for issuance calls.
	STSEndpoint string
	Flavor      Flavor
	// MaxSessionDuration is the provider-imposed ceiling on credential
	// lifetimes for this node.
	MaxSessionDuration time.Duration
}

// Config bounds registry lookups and node session lifetimes.
type Config struct {
	// MaxSessionDuration caps issued credential lifetimes per node.
	MaxSessionDuration time.Duration `mapstructure:"max_session_duration"`
}

// DefaultConfig returns the standard session ceiling.
func DefaultConfig() Config {
	return Config{MaxSessionDuration: 12 * time.Hour}
}

// Registry resolves nodes by id or name.
type Registry struct {
	store  db.Store
	config Config
}

// New creates a registry over the given store.
func New(store db.Store, cfg Config) *Registry {
	if cfg.MaxSessionDuration == 0 {
		cfg.MaxSessionDuration = DefaultConfig().MaxSessionDuration
	}
	return &Registry{store: store, config: cfg}
}

// Resolve returns the connection facts for a node, or db.ErrNodeNotFound.
func (r *Registry) Resolve(ctx context.Context, nodeID uuid.UUID) (*ConnectionFacts, error) {
	node, err := r.store.GetNode(ctx, nodeID)
	if err != nil {
		return nil, err
	}
	return r.facts(node), nil
}

// ResolveByName returns the connection facts for a node by unique name.
func (r *Registry) ResolveByName(ctx context.Context, name string) (*ConnectionFacts, error) {
	node, err := r.store.GetNodeByName(ctx, name)
	if err != nil {
		return nil, err
	}
	return r.facts(node), nil
}

// facts applies the STS addressing rule: an explicit STS URL wins; an
// assume-role ARN implies the canonical regional cloud endpoint; otherwise
// the node's own API URL serves STS requests.
func (r *Registry) facts(node *types.StorageNode) *ConnectionFacts {
	f := &ConnectionFacts{
		Node:               *node,
		Flavor:             FlavorNodeNative,
		MaxSessionDuration: r.config.MaxSessionDuration,
	}
	if node.IsCloud() {
		f.Flavor = FlavorCloud
	}

	switch {
	case node.STSAPIURL != "":
		f.STSEndpoint = node.STSAPIURL
	case node.IsCloud():
		f.STSEndpoint = fmt.Sprintf("https://sts.%s.amazonaws.com", node.RegionName)
	default:
		f.STSEndpoint = node.APIURL
	}
	return f
}
