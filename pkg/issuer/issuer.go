// Copyright 2026 WorkspacesIO Authors
// SPDX-License-Identifier: Apache-2.0

// Package issuer mints temporary storage credentials scoped to exactly what
// a requester is authorized to touch. It composes the policy computation,
// the node registry, the client cache, and the token lifecycle manager; one
// credential is issued per (requester, storage node) pair, since a single
// STS credential cannot span storage back-ends.
package issuer

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/google/uuid"

	"github.com/workspacesio/workspaces/pkg/apierr"
	"github.com/workspacesio/workspaces/pkg/clientcache"
	"github.com/workspacesio/workspaces/pkg/db"
	"github.com/workspacesio/workspaces/pkg/logger"
	"github.com/workspacesio/workspaces/pkg/policy"
	"github.com/workspacesio/workspaces/pkg/registry"
	"github.com/workspacesio/workspaces/pkg/token"
	"github.com/workspacesio/workspaces/pkg/types"
)

// Config bounds issuance behavior.
type Config struct {
	// DefaultTTL is used when the caller requests no explicit lifetime. It
	// is silently capped by the node and share ceilings.
	DefaultTTL time.Duration `mapstructure:"default_ttl"`
	// UpstreamTimeout bounds each issuance call against a storage node.
	UpstreamTimeout time.Duration `mapstructure:"upstream_timeout"`
}

// DefaultConfig returns the standard issuance bounds.
func DefaultConfig() Config {
	return Config{
		DefaultTTL:      1 * time.Hour,
		UpstreamTimeout: 5 * time.Second,
	}
}

// Request asks for credentials covering a set of workspaces and roots.
type Request struct {
	RequesterID  uuid.UUID
	WorkspaceIDs []uuid.UUID
	RootIDs      []uuid.UUID
	// TTL is the requested credential lifetime; zero means the default.
	// An explicit TTL above the ceiling fails with InvalidTTL.
	TTL time.Duration
}

// Issuer orchestrates credential issuance.
type Issuer struct {
	store    db.Store
	registry *registry.Registry
	clients  *clientcache.Cache
	tokens   *token.Manager
	config   Config
	now      func() time.Time
}

// New creates an Issuer.
func New(store db.Store, reg *registry.Registry, clients *clientcache.Cache, tokens *token.Manager, cfg Config) *Issuer {
	if cfg.DefaultTTL == 0 {
		cfg.DefaultTTL = DefaultConfig().DefaultTTL
	}
	if cfg.UpstreamTimeout == 0 {
		cfg.UpstreamTimeout = DefaultConfig().UpstreamTimeout
	}
	return &Issuer{
		store:    store,
		registry: reg,
		clients:  clients,
		tokens:   tokens,
		config:   cfg,
		now:      time.Now,
	}
}

// WithClock overrides the time source, for tests.
func (i *Issuer) WithClock(now func() time.Time) *Issuer {
	i.now = now
	return i
}

// nodeTargets groups resolved targets by the storage node that serves them.
type nodeTargets struct {
	nodeID     uuid.UUID
	workspaces []policy.WorkspaceTarget
	roots      []policy.RootTarget
}

// Issue resolves the request's targets, computes a least-privilege policy
// per storage node, and mints (or reuses) one credential per node.
func (i *Issuer) Issue(ctx context.Context, req Request) ([]types.S3Token, error) {
	start := i.now()

	requester, err := i.store.GetUser(ctx, req.RequesterID)
	if err != nil {
		recordIssuance("not_found", start)
		return nil, apierr.NotFound("requester %s", req.RequesterID)
	}

	groups, err := i.resolveTargets(ctx, req)
	if err != nil {
		recordIssuance("not_found", start)
		return nil, err
	}

	shares, err := i.store.ListSharesForSharee(ctx, requester.ID)
	if err != nil {
		recordIssuance("internal", start)
		return nil, fmt.Errorf("load shares: %w", err)
	}

	now := i.now()
	var issued []types.S3Token
	resolvedAny := false
	for _, group := range groups {
		result := policy.Compute(policy.Input{
			Requester:  *requester,
			Workspaces: group.workspaces,
			Roots:      group.roots,
			Shares:     shares,
			Now:        now,
		})
		if result.Empty() {
			continue
		}
		resolvedAny = true

		t, err := i.issueForNode(ctx, requester, group.nodeID, &result, req.TTL, now)
		if err != nil {
			recordIssuance(apierr.KindOf(err).String(), start)
			return nil, err
		}
		issued = append(issued, *t)
	}

	if !resolvedAny {
		recordIssuance("forbidden", start)
		return nil, apierr.Forbidden("no target grants access to user %s", requester.Username)
	}

	recordIssuance("success", start)
	return issued, nil
}

// resolveTargets loads every referenced workspace and root, with its node
// and owner, grouped per storage node.
func (i *Issuer) resolveTargets(ctx context.Context, req Request) ([]*nodeTargets, error) {
	byNode := make(map[uuid.UUID]*nodeTargets)
	group := func(nodeID uuid.UUID) *nodeTargets {
		g, ok := byNode[nodeID]
		if !ok {
			g = &nodeTargets{nodeID: nodeID}
			byNode[nodeID] = g
		}
		return g
	}

	var order []uuid.UUID
	for _, wsID := range req.WorkspaceIDs {
		ws, err := i.store.GetWorkspace(ctx, wsID)
		if err != nil {
			return nil, apierr.NotFound("workspace %s", wsID)
		}
		root, err := i.store.GetRoot(ctx, ws.RootID)
		if err != nil {
			return nil, apierr.NotFound("root %s", ws.RootID)
		}
		owner, err := i.store.GetUser(ctx, ws.OwnerID)
		if err != nil {
			return nil, apierr.NotFound("workspace owner %s", ws.OwnerID)
		}
		if _, ok := byNode[root.NodeID]; !ok {
			order = append(order, root.NodeID)
		}
		g := group(root.NodeID)
		g.workspaces = append(g.workspaces, policy.WorkspaceTarget{
			Workspace:     *ws,
			Root:          *root,
			OwnerUsername: owner.Username,
		})
	}
	for _, rootID := range req.RootIDs {
		root, err := i.store.GetRoot(ctx, rootID)
		if err != nil {
			return nil, apierr.NotFound("root %s", rootID)
		}
		if _, ok := byNode[root.NodeID]; !ok {
			order = append(order, root.NodeID)
		}
		g := group(root.NodeID)
		g.roots = append(g.roots, policy.RootTarget{Root: *root})
	}

	groups := make([]*nodeTargets, 0, len(order))
	for _, nodeID := range order {
		groups = append(groups, byNode[nodeID])
	}
	return groups, nil
}

// issueForNode reuses a covering credential when one exists, otherwise
// mints a fresh one against the node's STS endpoint and records it.
func (i *Issuer) issueForNode(ctx context.Context, requester *types.User, nodeID uuid.UUID, result *policy.Result, requestedTTL time.Duration, now time.Time) (*types.S3Token, error) {
	facts, err := i.registry.Resolve(ctx, nodeID)
	if err != nil {
		return nil, apierr.NotFound("storage node %s", nodeID)
	}

	ttl, err := i.effectiveTTL(requestedTTL, facts, result, now)
	if err != nil {
		return nil, err
	}

	// Opportunistic reuse: a still-valid credential covering the targets
	// saves an upstream call. Skipped for explicit TTL requests, which pin
	// the lifetime.
	if requestedTTL == 0 {
		if existing, err := i.tokens.Find(ctx, requester.ID, nodeID, result.WorkspaceIDs, result.RootIDs); err == nil && existing != nil {
			return existing, nil
		}
	}

	stsClient, err := i.clients.STS(ctx, facts)
	if err != nil {
		return nil, apierr.Upstream(err, "build sts client for node %s", facts.Node.Name)
	}

	policyJSON, err := result.Document.ToJSON()
	if err != nil {
		return nil, fmt.Errorf("marshal policy: %w", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, i.config.UpstreamTimeout)
	defer cancel()

	creds, err := i.callUpstream(callCtx, stsClient, facts, requester, policyJSON, ttl)
	if err != nil {
		return nil, apierr.Upstream(err, "issue credential on node %s", facts.Node.Name)
	}

	t := &types.S3Token{
		ID:              uuid.New(),
		AccessKeyID:     aws.ToString(creds.AccessKeyId),
		SecretAccessKey: aws.ToString(creds.SecretAccessKey),
		SessionToken:    aws.ToString(creds.SessionToken),
		Expiration:      aws.ToTime(creds.Expiration),
		Policy:          policyJSON,
		OwnerID:         requester.ID,
		StorageNodeID:   facts.Node.ID,
		WorkspaceIDs:    result.WorkspaceIDs,
		RootIDs:         result.RootIDs,
		Created:         now,
	}
	if t.Expiration.IsZero() {
		t.Expiration = now.Add(ttl)
	}

	// A credential minted upstream but not persisted stays valid and usable
	// directly; it just will not be found for reuse.
	if err := i.tokens.Save(ctx, t); err != nil {
		logger.Ctx(ctx).Warn().Err(err).
			Str("node", facts.Node.Name).
			Str("user", requester.Username).
			Msg("credential minted but not persisted")
	}

	return t, nil
}

// effectiveTTL applies the lifetime invariant: never beyond the node's
// maximum session duration, never beyond the soonest-expiring share the
// policy relies on. The default TTL clamps silently; an explicit request
// above the ceiling is an error that reports the ceiling.
func (i *Issuer) effectiveTTL(requested time.Duration, facts *registry.ConnectionFacts, result *policy.Result, now time.Time) (time.Duration, error) {
	ceiling := facts.MaxSessionDuration
	if result.Ceiling != nil {
		if shareCeiling := result.Ceiling.Sub(now); shareCeiling < ceiling {
			ceiling = shareCeiling
		}
	}
	if ceiling <= 0 {
		return 0, apierr.Forbidden("every share backing this request has expired")
	}

	if requested == 0 {
		if i.config.DefaultTTL < ceiling {
			return i.config.DefaultTTL, nil
		}
		return ceiling, nil
	}
	if requested > ceiling {
		return 0, apierr.InvalidTTL(ceiling, "requested ttl %s exceeds ceiling %s", requested, ceiling)
	}
	return requested, nil
}

// callUpstream invokes the node's STS-equivalent issuance operation:
// AssumeRole for public-cloud nodes, GetFederationToken for node-native
// back-ends that implement their own STS-compatible issuance.
func (i *Issuer) callUpstream(ctx context.Context, client *sts.Client, facts *registry.ConnectionFacts, requester *types.User, policyJSON string, ttl time.Duration) (*upstreamCreds, error) {
	duration := int32(ttl / time.Second)

	if facts.Flavor == registry.FlavorCloud {
		out, err := client.AssumeRole(ctx, &sts.AssumeRoleInput{
			RoleArn:         aws.String(facts.Node.AssumeRoleARN),
			RoleSessionName: aws.String(requester.Username),
			Policy:          aws.String(policyJSON),
			DurationSeconds: aws.Int32(duration),
		})
		if err != nil {
			return nil, err
		}
		return &upstreamCreds{
			AccessKeyId:     out.Credentials.AccessKeyId,
			SecretAccessKey: out.Credentials.SecretAccessKey,
			SessionToken:    out.Credentials.SessionToken,
			Expiration:      out.Credentials.Expiration,
		}, nil
	}

	out, err := client.GetFederationToken(ctx, &sts.GetFederationTokenInput{
		Name:            aws.String(requester.Username),
		Policy:          aws.String(policyJSON),
		DurationSeconds: aws.Int32(duration),
	})
	if err != nil {
		return nil, err
	}
	return &upstreamCreds{
		AccessKeyId:     out.Credentials.AccessKeyId,
		SecretAccessKey: out.Credentials.SecretAccessKey,
		SessionToken:    out.Credentials.SessionToken,
		Expiration:      out.Credentials.Expiration,
	}, nil
}

// upstreamCreds normalizes the credential shape across the two issuance calls.
type upstreamCreds struct {
	AccessKeyId     *string
	SecretAccessKey *string
	SessionToken    *string
	Expiration      *time.Time
}
