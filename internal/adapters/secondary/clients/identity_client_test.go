package clients

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jupiterclapton/cenackle/services/social-service/internal/core/domain"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) *IdentityClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewIdentityClient(srv.URL+"/", "s3cr3t", time.Second)
}

func TestGetUser(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/users/u1", r.URL.Path)
		assert.Equal(t, "Bearer s3cr3t", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success":true,"data":{"id":"u1","username":"alice","displayName":"Alice","avatarUrl":null,"verified":true}}`))
	})

	p, err := c.GetUser(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "u1", p.ID)
	assert.Equal(t, "alice", p.Username)
	require.NotNil(t, p.DisplayName)
	assert.Equal(t, "Alice", *p.DisplayName)
	assert.Nil(t, p.AvatarURL)
	assert.True(t, p.Verified)
}

func TestGetUser_Errors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr error
	}{
		{"not found", http.StatusNotFound, `{"success":false}`, domain.ErrUserNotFound},
		{"empty data", http.StatusOK, `{"data":null}`, domain.ErrUserNotFound},
		{"server error", http.StatusInternalServerError, `oops`, domain.ErrUpstreamUnavailable},
		{"unauthorized", http.StatusUnauthorized, ``, domain.ErrUpstreamUnavailable},
		{"garbage", http.StatusOK, `<html>`, domain.ErrUpstreamUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})
			_, err := c.GetUser(context.Background(), "u1")
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestGetUser_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	c := NewIdentityClient(srv.URL, "", time.Second)
	_, err := c.GetUser(context.Background(), "u1")
	assert.ErrorIs(t, err, domain.ErrUpstreamUnavailable)
}

func TestListUsers(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/users", r.URL.Path)
		assert.Equal(t, "15", r.URL.Query().Get("limit"))
		_, _ = w.Write([]byte(`{"data":{"users":[{"id":"a","username":"a"},{"id":"","username":"broken"},{"id":"b","username":"b"}]}}`))
	})

	users, err := c.ListUsers(context.Background(), 15)
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, "a", users[0].ID)
	assert.Equal(t, "b", users[1].ID)
}

func TestListAllUsers(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/admin/users", r.URL.Path)
		assert.Equal(t, "3", r.URL.Query().Get("page"))
		assert.Equal(t, "100", r.URL.Query().Get("limit"))
		_, _ = w.Write([]byte(`{"data":{"users":[]}}`))
	})

	users, err := c.ListAllUsers(context.Background(), 3, 100)
	require.NoError(t, err)
	assert.Empty(t, users)
}
