// Copyright 2026 WorkspacesIO Authors
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/workspacesio/workspaces/pkg/clientcache"
	"github.com/workspacesio/workspaces/pkg/db"
	"github.com/workspacesio/workspaces/pkg/db/memory"
	"github.com/workspacesio/workspaces/pkg/issuer"
	"github.com/workspacesio/workspaces/pkg/registry"
	"github.com/workspacesio/workspaces/pkg/token"
	"github.com/workspacesio/workspaces/pkg/types"
)

// testAPI bundles the server with an authenticated client helper.
type testAPI struct {
	store  db.Store
	server *httptest.Server
	sts    *httptest.Server
}

func newTestAPI(t *testing.T) *testAPI {
	return newTestAPIWithConfig(t, Config{})
}

func newTestAPIWithConfig(t *testing.T, cfg Config) *testAPI {
	store := memory.New()

	// Minimal STS-compatible endpoint answering GetFederationToken.
	sts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		w.Header().Set("Content-Type", "text/xml")
		expiration := time.Now().Add(time.Hour).UTC().Format(time.RFC3339)
		fmt.Fprintf(w, `<GetFederationTokenResponse xmlns="https://sts.amazonaws.com/doc/2011-06-15/">
  <GetFederationTokenResult>
    <Credentials>
      <AccessKeyId>ASIAFAKEKEY</AccessKeyId>
      <SecretAccessKey>fake-secret</SecretAccessKey>
      <SessionToken>fake-session</SessionToken>
      <Expiration>%s</Expiration>
    </Credentials>
  </GetFederationTokenResult>
  <ResponseMetadata><RequestId>req-1</RequestId></ResponseMetadata>
</GetFederationTokenResponse>`, expiration)
	}))
	t.Cleanup(sts.Close)

	reg := registry.New(store, registry.DefaultConfig())
	clients := clientcache.New(5*time.Second, 10)
	t.Cleanup(func() { clients.Close() })
	tokens := token.New(store)
	iss := issuer.New(store, reg, clients, tokens, issuer.DefaultConfig())

	server := httptest.NewServer(NewServer(store, iss, reg, clients, cfg))
	t.Cleanup(server.Close)

	return &testAPI{store: store, server: server, sts: sts}
}

// do sends a JSON request, optionally authenticated, and decodes the reply.
func (a *testAPI) do(t *testing.T, method, path, apiKey string, body, out any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, a.server.URL+path, &buf)
	require.NoError(t, err)
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp
}

// register creates a user and returns it with its api key.
func (a *testAPI) register(t *testing.T, username string) (types.User, string) {
	t.Helper()
	var created struct {
		User   types.User `json:"user"`
		ApiKey string     `json:"api_key"`
	}
	resp := a.do(t, http.MethodPost, "/api/user", "", map[string]string{
		"username": username,
		"email":    username + "@example.com",
	}, &created)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	return created.User, created.ApiKey
}

func TestCreateUserAndAuth(t *testing.T) {
	a := newTestAPI(t)
	_, key := a.register(t, "alice")

	t.Run("key works", func(t *testing.T) {
		resp := a.do(t, http.MethodGet, "/api/workspace", key, nil, nil)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("missing token rejected", func(t *testing.T) {
		resp := a.do(t, http.MethodGet, "/api/workspace", "", nil, nil)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("wrong secret rejected", func(t *testing.T) {
		keyID, _, _ := strings.Cut(key, ":")
		resp := a.do(t, http.MethodGet, "/api/workspace", keyID+":wrong", nil, nil)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("duplicate username conflicts", func(t *testing.T) {
		resp := a.do(t, http.MethodPost, "/api/user", "", map[string]string{
			"username": "alice",
			"email":    "alice2@example.com",
		}, nil)
		assert.Equal(t, http.StatusConflict, resp.StatusCode)
	})

	t.Run("missing fields rejected", func(t *testing.T) {
		resp := a.do(t, http.MethodPost, "/api/user", "", map[string]string{"username": "noemail"}, nil)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

// setupNode registers a node with one private root through the API.
func setupNode(t *testing.T, a *testAPI, key, name string) {
	t.Helper()
	resp := a.do(t, http.MethodPost, "/api/node", key, map[string]string{
		"name":              name,
		"api_url":           a.sts.URL,
		"access_key_id":     "minioadmin",
		"secret_access_key": "minioadmin",
	}, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = a.do(t, http.MethodPost, "/api/node/root", key, map[string]string{
		"node_name": name,
		"root_type": "private",
		"bucket":    "workspaces",
	}, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
}

func TestNodeAndRootLifecycle(t *testing.T) {
	a := newTestAPI(t)
	_, aliceKey := a.register(t, "alice")
	_, bobKey := a.register(t, "bob")
	setupNode(t, a, aliceKey, "minio-test")

	t.Run("only creator adds roots", func(t *testing.T) {
		resp := a.do(t, http.MethodPost, "/api/node/root", bobKey, map[string]string{
			"node_name": "minio-test",
			"root_type": "public",
			"bucket":    "published",
		}, nil)
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	})

	t.Run("bad root type rejected", func(t *testing.T) {
		resp := a.do(t, http.MethodPost, "/api/node/root", aliceKey, map[string]string{
			"node_name": "minio-test",
			"root_type": "shared",
			"bucket":    "x",
		}, nil)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("unknown node 404", func(t *testing.T) {
		resp := a.do(t, http.MethodPost, "/api/node/root", aliceKey, map[string]string{
			"node_name": "nowhere",
			"root_type": "private",
			"bucket":    "x",
		}, nil)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})
}

func TestWorkspaceLifecycle(t *testing.T) {
	a := newTestAPI(t)
	alice, aliceKey := a.register(t, "alice")
	bob, bobKey := a.register(t, "bob")
	setupNode(t, a, aliceKey, "minio-test")

	var ws types.Workspace
	resp := a.do(t, http.MethodPost, "/api/workspace", aliceKey, map[string]any{
		"name":      "report",
		"node_name": "minio-test",
	}, &ws)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, alice.ID, ws.OwnerID)

	t.Run("listed for owner", func(t *testing.T) {
		var got []types.Workspace
		resp := a.do(t, http.MethodGet, "/api/workspace", aliceKey, nil, &got)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.Len(t, got, 1)
		assert.Equal(t, ws.ID, got[0].ID)
	})

	t.Run("not listed for stranger", func(t *testing.T) {
		var got []types.Workspace
		resp := a.do(t, http.MethodGet, "/api/workspace", bobKey, nil, &got)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Empty(t, got)
	})

	t.Run("listed for sharee after share", func(t *testing.T) {
		resp := a.do(t, http.MethodPost, "/api/workspace/share", aliceKey, map[string]any{
			"workspace_id": ws.ID,
			"sharee_id":    bob.ID,
			"permission":   "READ",
		}, nil)
		require.Equal(t, http.StatusCreated, resp.StatusCode)

		var got []types.Workspace
		resp = a.do(t, http.MethodGet, "/api/workspace", bobKey, nil, &got)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.Len(t, got, 1)
		assert.Equal(t, ws.ID, got[0].ID)
	})

	t.Run("only owner shares", func(t *testing.T) {
		resp := a.do(t, http.MethodPost, "/api/workspace/share", bobKey, map[string]any{
			"workspace_id": ws.ID,
			"sharee_id":    bob.ID,
		}, nil)
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	})

	t.Run("only owner deletes", func(t *testing.T) {
		resp := a.do(t, http.MethodDelete, "/api/workspace/"+ws.ID.String(), bobKey, nil, nil)
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)

		resp = a.do(t, http.MethodDelete, "/api/workspace/"+ws.ID.String(), aliceKey, nil, nil)
		assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	})
}

func TestIssueTokenEndpoint(t *testing.T) {
	a := newTestAPI(t)
	_, aliceKey := a.register(t, "alice")
	_, carolKey := a.register(t, "carol")
	setupNode(t, a, aliceKey, "minio-test")

	var ws types.Workspace
	resp := a.do(t, http.MethodPost, "/api/workspace", aliceKey, map[string]any{
		"name":      "report",
		"node_name": "minio-test",
	}, &ws)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	t.Run("owner gets credentials", func(t *testing.T) {
		var creds []struct {
			AccessKeyID  string          `json:"access_key_id"`
			SessionToken string          `json:"session_token"`
			Policy       json.RawMessage `json:"policy"`
			WorkspaceIDs []uuid.UUID     `json:"workspace_ids"`
		}
		resp := a.do(t, http.MethodPost, "/api/token", aliceKey, map[string]any{
			"workspace_ids": []uuid.UUID{ws.ID},
		}, &creds)
		require.Equal(t, http.StatusCreated, resp.StatusCode)
		require.Len(t, creds, 1)
		assert.Equal(t, "ASIAFAKEKEY", creds[0].AccessKeyID)
		assert.Equal(t, []uuid.UUID{ws.ID}, creds[0].WorkspaceIDs)
		assert.Contains(t, string(creds[0].Policy), "arn:aws:s3:::workspaces/alice/report/*")
	})

	t.Run("stranger forbidden", func(t *testing.T) {
		var body struct {
			Error struct {
				Kind string `json:"kind"`
			} `json:"error"`
		}
		resp := a.do(t, http.MethodPost, "/api/token", carolKey, map[string]any{
			"workspace_ids": []uuid.UUID{ws.ID},
		}, &body)
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
		assert.Equal(t, "Forbidden", body.Error.Kind)
	})

	t.Run("unknown workspace 404", func(t *testing.T) {
		resp := a.do(t, http.MethodPost, "/api/token", aliceKey, map[string]any{
			"workspace_ids": []uuid.UUID{uuid.New()},
		}, nil)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("empty target set rejected", func(t *testing.T) {
		resp := a.do(t, http.MethodPost, "/api/token", aliceKey, map[string]any{}, nil)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("negative ttl rejected", func(t *testing.T) {
		resp := a.do(t, http.MethodPost, "/api/token", aliceKey, map[string]any{
			"workspace_ids": []uuid.UUID{ws.ID},
			"ttl_seconds":   -1,
		}, nil)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestCreateWorkspaceBindsOldestRoot(t *testing.T) {
	a := newTestAPI(t)
	_, aliceKey := a.register(t, "alice")
	setupNode(t, a, aliceKey, "minio-test")

	// setupNode already created one private root; fetch it through the store
	// and add a second private root on the same node.
	node, err := a.store.GetNodeByName(context.Background(), "minio-test")
	require.NoError(t, err)
	roots, err := a.store.ListRootsByNode(context.Background(), node.ID)
	require.NoError(t, err)
	require.Len(t, roots, 1)
	first := roots[0]

	resp := a.do(t, http.MethodPost, "/api/node/root", aliceKey, map[string]string{
		"node_name": "minio-test",
		"root_type": "private",
		"bucket":    "workspaces-overflow",
	}, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	// Repeated creates all land in the oldest private root.
	for i := 0; i < 3; i++ {
		var ws types.Workspace
		resp := a.do(t, http.MethodPost, "/api/workspace", aliceKey, map[string]any{
			"name":      fmt.Sprintf("report-%d", i),
			"node_name": "minio-test",
		}, &ws)
		require.Equal(t, http.StatusCreated, resp.StatusCode)
		assert.Equal(t, first.ID, ws.RootID)
	}
}

func TestIssueTokenRateLimited(t *testing.T) {
	a := newTestAPIWithConfig(t, Config{IssueRPS: 1, IssueBurstMultiplier: 1})
	_, aliceKey := a.register(t, "alice")
	bob, bobKey := a.register(t, "bob")
	setupNode(t, a, aliceKey, "minio-test")

	var ws types.Workspace
	resp := a.do(t, http.MethodPost, "/api/workspace", aliceKey, map[string]any{
		"name":      "report",
		"node_name": "minio-test",
	}, &ws)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	issue := func(key string) *http.Response {
		return a.do(t, http.MethodPost, "/api/token", key, map[string]any{
			"workspace_ids": []uuid.UUID{ws.ID},
		}, nil)
	}

	resp = issue(aliceKey)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	t.Run("drained bucket returns 429", func(t *testing.T) {
		var body struct {
			Error struct {
				Kind string `json:"kind"`
			} `json:"error"`
		}
		resp := a.do(t, http.MethodPost, "/api/token", aliceKey, map[string]any{
			"workspace_ids": []uuid.UUID{ws.ID},
		}, &body)
		assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
		assert.Equal(t, "SlowDown", body.Error.Kind)
	})

	t.Run("buckets are per user", func(t *testing.T) {
		resp := a.do(t, http.MethodPost, "/api/workspace/share", aliceKey, map[string]any{
			"workspace_id": ws.ID,
			"sharee_id":    bob.ID,
			"permission":   "READ",
		}, nil)
		require.Equal(t, http.StatusCreated, resp.StatusCode)

		resp = issue(bobKey)
		assert.Equal(t, http.StatusCreated, resp.StatusCode)
	})

	t.Run("other routes unaffected", func(t *testing.T) {
		resp := a.do(t, http.MethodGet, "/api/workspace", aliceKey, nil, nil)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})
}
