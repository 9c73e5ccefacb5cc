// Copyright 2026 WorkspacesIO Authors
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/workspacesio/workspaces/pkg/db"
	"github.com/workspacesio/workspaces/pkg/issuer"
	"github.com/workspacesio/workspaces/pkg/logger"
	"github.com/workspacesio/workspaces/pkg/policy"
	"github.com/workspacesio/workspaces/pkg/types"
)

type createUserRequest struct {
	Sub      string `json:"sub"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

type createUserResponse struct {
	User types.User `json:"user"`
	// ApiKey is "{key_id}:{secret}", shown once at registration.
	ApiKey string `json:"api_key"`
}

func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, err.Error())
		return
	}
	if req.Username == "" || req.Email == "" {
		badRequest(w, "username and email are required")
		return
	}
	if req.Sub == "" {
		req.Sub = req.Username
	}

	user := types.User{
		ID:       uuid.New(),
		Sub:      req.Sub,
		Username: req.Username,
		Email:    req.Email,
		Created:  time.Now(),
	}
	if err := s.store.CreateUser(r.Context(), &user); err != nil {
		writeError(w, r, err)
		return
	}

	secret := newApiKeySecret()
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		writeError(w, r, err)
		return
	}
	key := types.ApiKey{
		ID:         uuid.New(),
		KeyID:      uuid.NewString(),
		SecretHash: string(hash),
		UserID:     user.ID,
		Created:    time.Now(),
	}
	if err := s.store.CreateApiKey(r.Context(), &key); err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, createUserResponse{
		User:   user,
		ApiKey: key.KeyID + ":" + secret,
	})
}

type createNodeRequest struct {
	Name            string `json:"name"`
	APIURL          string `json:"api_url"`
	STSAPIURL       string `json:"sts_api_url"`
	RegionName      string `json:"region_name"`
	AccessKeyID     string `json:"access_key_id"`
	SecretAccessKey string `json:"secret_access_key"`
	AssumeRoleARN   string `json:"assume_role_arn"`
}

func (s *Server) handleCreateNode(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r.Context())

	var req createNodeRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, err.Error())
		return
	}
	if req.Name == "" || req.APIURL == "" || req.AccessKeyID == "" || req.SecretAccessKey == "" {
		badRequest(w, "name, api_url, access_key_id and secret_access_key are required")
		return
	}
	if req.RegionName == "" {
		req.RegionName = "us-east-1"
	}

	node := types.StorageNode{
		ID:              uuid.New(),
		Name:            req.Name,
		APIURL:          req.APIURL,
		STSAPIURL:       req.STSAPIURL,
		CreatorID:       user.ID,
		AccessKeyID:     req.AccessKeyID,
		SecretAccessKey: req.SecretAccessKey,
		RegionName:      req.RegionName,
		AssumeRoleARN:   req.AssumeRoleARN,
		Created:         time.Now(),
	}
	if err := s.store.CreateNode(r.Context(), &node); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, node)
}

type createRootRequest struct {
	NodeName string         `json:"node_name"`
	RootType types.RootType `json:"root_type"`
	Bucket   string         `json:"bucket"`
	BasePath string         `json:"base_path"`
}

func (s *Server) handleCreateRoot(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r.Context())

	var req createRootRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, err.Error())
		return
	}
	if !req.RootType.Valid() {
		badRequest(w, "root_type must be public, private or unmanaged")
		return
	}
	if req.Bucket == "" {
		badRequest(w, "bucket is required")
		return
	}

	node, err := s.store.GetNodeByName(r.Context(), req.NodeName)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if node.CreatorID != user.ID {
		writeJSON(w, http.StatusForbidden, map[string]errorBody{"error": {Kind: "Forbidden", Detail: "only the node creator may add roots"}})
		return
	}

	root := types.WorkspaceRoot{
		ID:       uuid.New(),
		NodeID:   node.ID,
		RootType: req.RootType,
		Bucket:   req.Bucket,
		BasePath: req.BasePath,
		Created:  time.Now(),
	}
	if err := s.store.CreateRoot(r.Context(), &root); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, root)
}

func (s *Server) handleListWorkspaces(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r.Context())

	params := db.ListWorkspacesParams{
		OwnerID:  &user.ID,
		ShareeID: &user.ID,
		Name:     r.URL.Query().Get("name"),
	}
	workspaces, err := s.store.ListWorkspaces(r.Context(), &params)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if workspaces == nil {
		workspaces = []types.Workspace{}
	}
	writeJSON(w, http.StatusOK, workspaces)
}

type createWorkspaceRequest struct {
	Name      string `json:"name"`
	Public    bool   `json:"public"`
	Unmanaged bool   `json:"unmanaged"`
	NodeName  string `json:"node_name"`
	// BasePath is required for unmanaged workspaces.
	BasePath string `json:"base_path"`
}

func (s *Server) handleCreateWorkspace(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r.Context())

	var req createWorkspaceRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, err.Error())
		return
	}
	if req.Name == "" || req.NodeName == "" {
		badRequest(w, "name and node_name are required")
		return
	}

	rootType := types.RootTypePrivate
	if req.Public {
		rootType = types.RootTypePublic
	}
	if req.Unmanaged {
		rootType = types.RootTypeUnmanaged
		if req.BasePath == "" {
			badRequest(w, "base_path is required for unmanaged workspaces")
			return
		}
	}

	node, err := s.store.GetNodeByName(r.Context(), req.NodeName)
	if err != nil {
		writeError(w, r, err)
		return
	}
	roots, err := s.store.ListRootsByNode(r.Context(), node.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	// A node can carry several roots of one type. Bind to the oldest so
	// repeated creates land in the same root.
	var root *types.WorkspaceRoot
	for i := range roots {
		if roots[i].RootType != rootType {
			continue
		}
		if root == nil || roots[i].Created.Before(root.Created) ||
			(roots[i].Created.Equal(root.Created) && roots[i].ID.String() < root.ID.String()) {
			root = &roots[i]
		}
	}
	if root == nil {
		writeError(w, r, db.ErrRootNotFound)
		return
	}

	ws := types.Workspace{
		ID:      uuid.New(),
		Name:    req.Name,
		OwnerID: user.ID,
		RootID:  root.ID,
		Created: time.Now(),
	}
	if req.Unmanaged {
		ws.BasePath = req.BasePath
	}
	if err := s.store.CreateWorkspace(r.Context(), &ws); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, ws)
}

func (s *Server) handleDeleteWorkspace(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r.Context())

	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		badRequest(w, "invalid workspace id")
		return
	}
	ws, err := s.store.GetWorkspace(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if ws.OwnerID != user.ID {
		writeJSON(w, http.StatusForbidden, map[string]errorBody{"error": {Kind: "Forbidden", Detail: "only the owner may delete a workspace"}})
		return
	}

	// Purge the workspace's objects before removing the record. Best effort:
	// an unreachable node leaves orphaned objects, not a dangling record.
	if err := s.purgeWorkspace(r.Context(), ws, user.Username); err != nil {
		logger.Ctx(r.Context()).Warn().Err(err).
			Str("workspace", ws.Name).
			Msg("workspace object purge failed")
	}

	if err := s.store.DeleteWorkspace(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}

// purgeWorkspace deletes every object under the workspace prefix using the
// node-level keys.
func (s *Server) purgeWorkspace(ctx context.Context, ws *types.Workspace, ownerUsername string) error {
	root, err := s.store.GetRoot(ctx, ws.RootID)
	if err != nil {
		return err
	}
	facts, err := s.registry.Resolve(ctx, root.NodeID)
	if err != nil {
		return err
	}
	client, err := s.clients.S3(ctx, facts)
	if err != nil {
		return err
	}

	prefix := policy.WorkspacePrefix(root, ws, ownerUsername)
	paginator := s3.NewListObjectsV2Paginator(client, &s3.ListObjectsV2Input{
		Bucket: aws.String(root.Bucket),
		Prefix: aws.String(prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return err
		}
		if len(page.Contents) == 0 {
			continue
		}
		objects := make([]s3types.ObjectIdentifier, 0, len(page.Contents))
		for _, obj := range page.Contents {
			objects = append(objects, s3types.ObjectIdentifier{Key: obj.Key})
		}
		if _, err := client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(root.Bucket),
			Delete: &s3types.Delete{Objects: objects},
		}); err != nil {
			return err
		}
	}
	return nil
}

type createShareRequest struct {
	WorkspaceID uuid.UUID             `json:"workspace_id"`
	ShareeID    uuid.UUID             `json:"sharee_id"`
	Permission  types.SharePermission `json:"permission"`
	Expiration  *time.Time            `json:"expiration,omitempty"`
}

func (s *Server) handleCreateShare(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r.Context())

	var req createShareRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, err.Error())
		return
	}
	if req.Permission == "" {
		req.Permission = types.PermissionRead
	}
	if req.Permission != types.PermissionRead && req.Permission != types.PermissionReadWrite {
		badRequest(w, "permission must be READ or READ_WRITE")
		return
	}

	ws, err := s.store.GetWorkspace(r.Context(), req.WorkspaceID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if ws.OwnerID != user.ID {
		writeJSON(w, http.StatusForbidden, map[string]errorBody{"error": {Kind: "Forbidden", Detail: "only the owner may share a workspace"}})
		return
	}
	if _, err := s.store.GetUser(r.Context(), req.ShareeID); err != nil {
		writeError(w, r, err)
		return
	}

	share := types.Share{
		ID:          uuid.New(),
		WorkspaceID: req.WorkspaceID,
		CreatorID:   user.ID,
		ShareeID:    req.ShareeID,
		Permission:  req.Permission,
		Expiration:  req.Expiration,
		Created:     time.Now(),
	}
	if err := s.store.CreateShare(r.Context(), &share); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, share)
}

type issueTokenRequest struct {
	WorkspaceIDs []uuid.UUID `json:"workspace_ids"`
	RootIDs      []uuid.UUID `json:"root_ids"`
	TTLSeconds   int64       `json:"ttl_seconds"`
}

type issuedCredential struct {
	AccessKeyID     string          `json:"access_key_id"`
	SecretAccessKey string          `json:"secret_access_key"`
	SessionToken    string          `json:"session_token"`
	Expiration      time.Time       `json:"expiration"`
	Policy          json.RawMessage `json:"policy"`
	StorageNodeID   uuid.UUID       `json:"storage_node_id"`
	WorkspaceIDs    []uuid.UUID     `json:"workspace_ids"`
	RootIDs         []uuid.UUID     `json:"root_ids"`
}

func (s *Server) handleIssueToken(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r.Context())

	var req issueTokenRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, err.Error())
		return
	}
	if len(req.WorkspaceIDs) == 0 && len(req.RootIDs) == 0 {
		badRequest(w, "at least one workspace_id or root_id is required")
		return
	}
	if req.TTLSeconds < 0 {
		badRequest(w, "ttl_seconds must be non-negative")
		return
	}

	tokens, err := s.issuer.Issue(r.Context(), issuer.Request{
		RequesterID:  user.ID,
		WorkspaceIDs: req.WorkspaceIDs,
		RootIDs:      req.RootIDs,
		TTL:          time.Duration(req.TTLSeconds) * time.Second,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	out := make([]issuedCredential, 0, len(tokens))
	for _, t := range tokens {
		out = append(out, issuedCredential{
			AccessKeyID:     t.AccessKeyID,
			SecretAccessKey: t.SecretAccessKey,
			SessionToken:    t.SessionToken,
			Expiration:      t.Expiration,
			Policy:          json.RawMessage(t.Policy),
			StorageNodeID:   t.StorageNodeID,
			WorkspaceIDs:    t.WorkspaceIDs,
			RootIDs:         t.RootIDs,
		})
	}
	writeJSON(w, http.StatusCreated, out)
}
