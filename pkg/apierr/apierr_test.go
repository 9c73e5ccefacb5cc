// Copyright 2026 WorkspacesIO Authors
// SPDX-License-Identifier: Apache-2.0

package apierr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindHTTPStatus(t *testing.T) {
	tests := []struct {
		kind   Kind
		status int
	}{
		{KindNotFound, http.StatusNotFound},
		{KindForbidden, http.StatusForbidden},
		{KindInvalidTTL, http.StatusBadRequest},
		{KindUpstream, http.StatusBadGateway},
		{Kind(0), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			assert.Equal(t, tt.status, tt.kind.HTTPStatus())
		})
	}
}

func TestKindOfThroughWrapping(t *testing.T) {
	err := fmt.Errorf("issue credentials: %w", Forbidden("no access"))
	assert.Equal(t, KindForbidden, KindOf(err))
	assert.Equal(t, Kind(0), KindOf(errors.New("plain")))
	assert.Equal(t, Kind(0), KindOf(nil))
}

func TestInvalidTTLCarriesCeiling(t *testing.T) {
	err := InvalidTTL(30*time.Minute, "requested %s", 2*time.Hour)
	e, ok := AsError(err)
	require.True(t, ok)
	assert.Equal(t, KindInvalidTTL, e.Kind)
	assert.Equal(t, 30*time.Minute, e.MaxTTL)
}

func TestUpstreamPreservesCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := Upstream(cause, "issue credential on node %s", "minio-test")
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "UpstreamError")
	assert.Contains(t, err.Error(), "connection refused")
}
