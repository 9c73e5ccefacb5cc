// Copyright 2026 WorkspacesIO Authors
// SPDX-License-Identifier: Apache-2.0

// Package types defines the domain model shared by the server, the
// persistence layer, and the credential issuance core.
package types

import (
	"time"

	"github.com/google/uuid"
)

// RootType defines the naming convention and default access pattern for
// workspaces under a root.
type RootType string

const (
	// RootTypePublic allows read access to everyone by default. Workspaces
	// are laid out as {username}/{workspace_name}.
	RootTypePublic RootType = "public"
	// RootTypePrivate allows only the creator by default, with the same
	// layout as public roots.
	RootTypePrivate RootType = "private"
	// RootTypeUnmanaged maps arbitrary external paths. Workspaces carry an
	// explicit base path and no naming convention is enforced.
	RootTypeUnmanaged RootType = "unmanaged"
)

// Valid reports whether t is a known root type.
func (t RootType) Valid() bool {
	switch t {
	case RootTypePublic, RootTypePrivate, RootTypeUnmanaged:
		return true
	}
	return false
}

// SharePermission is the level of access granted by a share.
type SharePermission string

const (
	PermissionRead      SharePermission = "READ"
	PermissionReadWrite SharePermission = "READ_WRITE"
)

// Satisfies reports whether p grants at least the level of need.
func (p SharePermission) Satisfies(need SharePermission) bool {
	if need == PermissionRead {
		return p == PermissionRead || p == PermissionReadWrite
	}
	return p == PermissionReadWrite
}

// User is an account that owns workspaces and registers storage nodes.
type User struct {
	ID       uuid.UUID `json:"id"`
	Sub      string    `json:"sub"`
	Username string    `json:"username"`
	Email    string    `json:"email"`
	Created  time.Time `json:"created"`
}

// ApiKey is a long-lived credential for CLI access. Only the bcrypt hash of
// the secret is stored.
type ApiKey struct {
	ID         uuid.UUID `json:"id"`
	KeyID      string    `json:"key_id"`
	SecretHash string    `json:"-"`
	UserID     uuid.UUID `json:"user_id"`
	Created    time.Time `json:"created"`
}

// StorageNode is an S3-compatible back-end registered by some user. The
// node-level keys are used to call the provider's STS-equivalent endpoint,
// never handed to requesters directly.
type StorageNode struct {
	ID     uuid.UUID `json:"id"`
	Name   string    `json:"name"`
	APIURL string    `json:"api_url"`
	// STSAPIURL optionally points at a separate STS endpoint.
	STSAPIURL       string    `json:"sts_api_url,omitempty"`
	CreatorID       uuid.UUID `json:"creator_id"`
	AccessKeyID     string    `json:"access_key_id"`
	SecretAccessKey string    `json:"-"`
	RegionName      string    `json:"region_name"`
	// AssumeRoleARN marks the node as a public-cloud back-end whose STS
	// flow is AssumeRole against a regional endpoint. The role should carry
	// no permissions of its own; the session policy is the only grant.
	AssumeRoleARN string    `json:"assume_role_arn,omitempty"`
	Created       time.Time `json:"created"`
}

// IsCloud reports whether the node uses the public-cloud AssumeRole flow
// rather than node-native federation.
func (n *StorageNode) IsCloud() bool {
	return n.AssumeRoleARN != ""
}

// WorkspaceRoot is a bucket and base path boundary on one storage node.
type WorkspaceRoot struct {
	ID       uuid.UUID `json:"id"`
	NodeID   uuid.UUID `json:"node_id"`
	RootType RootType  `json:"root_type"`
	Bucket   string    `json:"bucket"`
	BasePath string    `json:"base_path"`
	Created  time.Time `json:"created"`
}

// Workspace is a directory-like prefix under a root, owned by one user.
// Workspace names are unique per owner.
type Workspace struct {
	ID      uuid.UUID `json:"id"`
	Name    string    `json:"name"`
	OwnerID uuid.UUID `json:"owner_id"`
	RootID  uuid.UUID `json:"root_id"`
	// BasePath is set only for workspaces in unmanaged roots, where it
	// overrides the {username}/{name} convention.
	BasePath string    `json:"base_path,omitempty"`
	Created  time.Time `json:"created"`
}

// Share grants a sharee READ or READ_WRITE on a workspace, optionally until
// an expiration instant. Unique per (workspace, creator, sharee).
type Share struct {
	ID          uuid.UUID       `json:"id"`
	WorkspaceID uuid.UUID       `json:"workspace_id"`
	CreatorID   uuid.UUID       `json:"creator_id"`
	ShareeID    uuid.UUID       `json:"sharee_id"`
	Permission  SharePermission `json:"permission"`
	Expiration  *time.Time      `json:"expiration,omitempty"`
	Created     time.Time       `json:"created"`
}

// Expired reports whether the share has lapsed at instant now.
func (s *Share) Expired(now time.Time) bool {
	return s.Expiration != nil && !now.Before(*s.Expiration)
}

// S3Token is a short-lived credential minted against one storage node,
// scoped by the policy document it was issued with. It is associated with
// the workspaces and roots whose grants contributed to that policy.
type S3Token struct {
	ID              uuid.UUID `json:"id"`
	AccessKeyID     string    `json:"access_key_id"`
	SecretAccessKey string    `json:"secret_access_key"`
	SessionToken    string    `json:"session_token"`
	Expiration      time.Time `json:"expiration"`
	// Policy is the JSON policy document the token was minted with.
	Policy        string      `json:"policy"`
	OwnerID       uuid.UUID   `json:"owner_id"`
	StorageNodeID uuid.UUID   `json:"storage_node_id"`
	WorkspaceIDs  []uuid.UUID `json:"workspace_ids"`
	RootIDs       []uuid.UUID `json:"root_ids"`
	Created       time.Time   `json:"created"`
}

// ValidFor reports whether the token is still usable at instant now with at
// least margin left before expiration.
func (t *S3Token) ValidFor(now time.Time, margin time.Duration) bool {
	return now.Add(margin).Before(t.Expiration)
}
