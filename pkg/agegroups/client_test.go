package agegroups

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/enrollhub/enrollment-service/internal/models"
	"github.com/enrollhub/enrollment-service/pkg/config"
)

func TestClientListDecodesGroups(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/age-groups/", r.URL.Path)
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "svc", user)
		assert.Equal(t, "secret", pass)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"id":"a","min_age":0,"max_age":5},{"min_age":10,"max_age":20}]`))
	}))
	defer srv.Close()

	c := NewClient(config.AgeGroupsConfig{URL: srv.URL + "/", Username: "svc", Password: "secret"}, nil)
	groups, err := c.List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []models.AgeGroup{{MinAge: 0, MaxAge: 5}, {MinAge: 10, MaxAge: 20}}, groups)
}

func TestClientListNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "down", http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(config.AgeGroupsConfig{URL: srv.URL}, nil)
	_, err := c.List(context.Background())
	require.ErrorIs(t, err, ErrUnexpectedStatus)
	assert.Contains(t, err.Error(), "502")
}

func TestClientListMalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"not":"a list"}`))
	}))
	defer srv.Close()

	c := NewClient(config.AgeGroupsConfig{URL: srv.URL}, nil)
	_, err := c.List(context.Background())
	require.Error(t, err)
}

func TestClientListTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}))
	defer srv.Close()

	c := NewClient(config.AgeGroupsConfig{URL: srv.URL, Timeout: 20 * time.Millisecond}, nil)
	_, err := c.List(context.Background())
	require.Error(t, err)
}
