// Copyright 2026 WorkspacesIO Authors
// SPDX-License-Identifier: Apache-2.0

// Package policy computes minimal, least-privilege policy documents from a
// requester, a target set of workspaces and roots, and a snapshot of the
// share graph. The computation is pure: no I/O, deterministic for fixed
// inputs.
package policy

import (
	"path"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/workspacesio/workspaces/pkg/types"
)

// S3 actions granted per permission level.
var (
	readActions      = []string{"s3:GetObject"}
	readWriteActions = []string{"s3:GetObject", "s3:PutObject", "s3:DeleteObject"}
)

// WorkspaceTarget is a workspace resolved together with its root and owner,
// so the computation needs no lookups of its own.
type WorkspaceTarget struct {
	Workspace     types.Workspace
	Root          types.WorkspaceRoot
	OwnerUsername string
}

// RootTarget is a root requested as a whole.
type RootTarget struct {
	Root types.WorkspaceRoot
}

// Input is an immutable snapshot for one Compute call. Shares holds every
// share granted to the requester; expired ones are treated as absent.
type Input struct {
	Requester  types.User
	Workspaces []WorkspaceTarget
	Roots      []RootTarget
	Shares     []types.Share
	Now        time.Time
}

// Grant is one (permission, prefix) access decision derived from a target.
type Grant struct {
	Permission types.SharePermission
	Bucket     string
	// Prefix is a directory-style prefix within the bucket, with a trailing
	// separator unless it covers the whole bucket.
	Prefix      string
	WorkspaceID *uuid.UUID
	RootID      *uuid.UUID
	// ShareExpiration is set when the grant relies on an expiring share.
	ShareExpiration *time.Time
}

// Result of a policy computation.
type Result struct {
	Document Document
	Grants   []Grant
	// WorkspaceIDs and RootIDs identify the targets whose statements
	// contributed to the document.
	WorkspaceIDs []uuid.UUID
	RootIDs      []uuid.UUID
	// Ceiling is the soonest expiration among relied-upon shares, nil when
	// no expiring share contributed.
	Ceiling *time.Time
}

// Empty reports whether no target resolved to a grant.
func (r *Result) Empty() bool {
	return len(r.Grants) == 0
}

// WorkspacePrefix returns the directory-style prefix of a workspace within
// its root's bucket. Managed roots follow {base}/{username}/{name}/;
// unmanaged roots use the workspace's explicit base path.
func WorkspacePrefix(root *types.WorkspaceRoot, ws *types.Workspace, ownerUsername string) string {
	var p string
	if root.RootType == types.RootTypeUnmanaged {
		p = path.Join(root.BasePath, ws.BasePath)
	} else {
		p = path.Join(root.BasePath, ownerUsername, ws.Name)
	}
	if p == "" || p == "." {
		return ""
	}
	// Trailing separator prevents sibling-prefix leakage: alice/report must
	// not also match alice/report2.
	return p + "/"
}

// RootPrefix returns the directory-style prefix of a root within its bucket,
// or "" when the root spans the whole bucket.
func RootPrefix(root *types.WorkspaceRoot) string {
	if root.BasePath == "" {
		return ""
	}
	return path.Join(root.BasePath) + "/"
}

// Compute classifies each target as owner-full, shared, or public-read and
// merges the surviving grants into a minimal policy document. Targets the
// requester cannot access are silently excluded; callers must check Empty.
func Compute(in Input) Result {
	var res Result

	sharesByWorkspace := make(map[uuid.UUID][]types.Share)
	for _, s := range in.Shares {
		if s.ShareeID != in.Requester.ID || s.Expired(in.Now) {
			continue
		}
		sharesByWorkspace[s.WorkspaceID] = append(sharesByWorkspace[s.WorkspaceID], s)
	}

	for _, t := range in.Workspaces {
		g, ok := classifyWorkspace(&in, t, sharesByWorkspace)
		if !ok {
			continue
		}
		res.Grants = append(res.Grants, g)
	}
	for _, t := range in.Roots {
		if t.Root.RootType != types.RootTypePublic {
			continue
		}
		rootID := t.Root.ID
		res.Grants = append(res.Grants, Grant{
			Permission: types.PermissionRead,
			Bucket:     t.Root.Bucket,
			Prefix:     RootPrefix(&t.Root),
			RootID:     &rootID,
		})
	}

	res.Grants = mergeGrants(res.Grants)
	for _, g := range res.Grants {
		if g.WorkspaceID != nil {
			res.WorkspaceIDs = append(res.WorkspaceIDs, *g.WorkspaceID)
		}
		if g.RootID != nil {
			res.RootIDs = append(res.RootIDs, *g.RootID)
		}
		if g.ShareExpiration != nil {
			if res.Ceiling == nil || g.ShareExpiration.Before(*res.Ceiling) {
				res.Ceiling = g.ShareExpiration
			}
		}
	}

	res.Document = buildDocument(res.Grants)
	return res
}

// classifyWorkspace applies the access rules in precedence order: ownership,
// then a live share, then public-root read.
func classifyWorkspace(in *Input, t WorkspaceTarget, shares map[uuid.UUID][]types.Share) (Grant, bool) {
	wsID := t.Workspace.ID
	g := Grant{
		Bucket:      t.Root.Bucket,
		Prefix:      WorkspacePrefix(&t.Root, &t.Workspace, t.OwnerUsername),
		WorkspaceID: &wsID,
	}

	if t.Workspace.OwnerID == in.Requester.ID {
		g.Permission = types.PermissionReadWrite
		return g, true
	}

	if best, ok := bestShare(shares[wsID]); ok {
		g.Permission = best.Permission
		g.ShareExpiration = best.Expiration
		return g, true
	}

	if t.Root.RootType == types.RootTypePublic {
		g.Permission = types.PermissionRead
		return g, true
	}

	return Grant{}, false
}

// bestShare picks the strongest live share: READ_WRITE over READ, and among
// equal permissions the one expiring last (no expiration wins).
func bestShare(shares []types.Share) (types.Share, bool) {
	var best types.Share
	found := false
	for _, s := range shares {
		if !found {
			best, found = s, true
			continue
		}
		if s.Permission.Satisfies(types.PermissionReadWrite) && !best.Permission.Satisfies(types.PermissionReadWrite) {
			best = s
			continue
		}
		if s.Permission != best.Permission {
			continue
		}
		if best.Expiration != nil && (s.Expiration == nil || s.Expiration.After(*best.Expiration)) {
			best = s
		}
	}
	return best, found
}

// mergeGrants deduplicates by (permission, bucket, prefix) and drops a READ
// grant shadowed by a READ_WRITE grant on the identical prefix. Duplicate or
// over-broad statements are a security smell, and providers impose
// statement-count limits.
func mergeGrants(grants []Grant) []Grant {
	type key struct {
		perm   types.SharePermission
		bucket string
		prefix string
	}
	seen := make(map[key]int, len(grants))
	var out []Grant
	for _, g := range grants {
		k := key{g.Permission, g.Bucket, g.Prefix}
		if i, ok := seen[k]; ok {
			// Keep associations from the duplicate so token bookkeeping
			// stays complete.
			if g.WorkspaceID != nil && out[i].WorkspaceID == nil {
				out[i].WorkspaceID = g.WorkspaceID
			}
			if g.RootID != nil && out[i].RootID == nil {
				out[i].RootID = g.RootID
			}
			if g.ShareExpiration != nil &&
				(out[i].ShareExpiration == nil || g.ShareExpiration.Before(*out[i].ShareExpiration)) {
				out[i].ShareExpiration = g.ShareExpiration
			}
			continue
		}
		seen[k] = len(out)
		out = append(out, g)
	}

	// Drop reads fully shadowed by a read-write on the same prefix.
	rw := make(map[[2]string]bool)
	for _, g := range out {
		if g.Permission == types.PermissionReadWrite {
			rw[[2]string{g.Bucket, g.Prefix}] = true
		}
	}
	filtered := out[:0]
	for _, g := range out {
		if g.Permission == types.PermissionRead && rw[[2]string{g.Bucket, g.Prefix}] {
			continue
		}
		filtered = append(filtered, g)
	}
	return filtered
}

// buildDocument renders the grant set as a minimal policy document: one
// object statement per permission level and one ListBucket statement per
// bucket, each with merged resources.
func buildDocument(grants []Grant) Document {
	doc := Document{Version: DocumentVersion}
	if len(grants) == 0 {
		return doc
	}

	objectARNs := map[types.SharePermission][]string{}
	listPrefixes := map[string][]string{}
	for _, g := range grants {
		arn := "arn:aws:s3:::" + g.Bucket + "/" + g.Prefix + "*"
		objectARNs[g.Permission] = append(objectARNs[g.Permission], arn)
		listPrefixes[g.Bucket] = append(listPrefixes[g.Bucket], g.Prefix+"*")
	}

	for _, perm := range []types.SharePermission{types.PermissionReadWrite, types.PermissionRead} {
		arns := objectARNs[perm]
		if len(arns) == 0 {
			continue
		}
		sort.Strings(arns)
		actions := readActions
		if perm == types.PermissionReadWrite {
			actions = readWriteActions
		}
		doc.Statements = append(doc.Statements, Statement{
			Effect:    EffectAllow,
			Actions:   actions,
			Resources: arns,
		})
	}

	buckets := make([]string, 0, len(listPrefixes))
	for b := range listPrefixes {
		buckets = append(buckets, b)
	}
	sort.Strings(buckets)
	for _, b := range buckets {
		prefixes := listPrefixes[b]
		sort.Strings(prefixes)
		doc.Statements = append(doc.Statements, Statement{
			Effect:    EffectAllow,
			Actions:   []string{"s3:ListBucket"},
			Resources: []string{"arn:aws:s3:::" + b},
			Condition: map[string]Condition{
				"StringLike": {"s3:prefix": dedupe(prefixes)},
			},
		})
	}

	return doc
}

func dedupe(values []string) []string {
	out := values[:0]
	var last string
	for i, v := range values {
		if i > 0 && v == last {
			continue
		}
		out = append(out, v)
		last = v
	}
	return out
}
