package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/enrollhub/enrollment-service/internal/service"
)

func newAuthRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(BasicAuth(service.NewAuthService(map[string]string{"alice": "wonderland"}, nil)))
	router.GET("/whoami", func(c *gin.Context) {
		user, ok := CurrentUser(c)
		if !ok {
			c.Status(http.StatusInternalServerError)
			return
		}
		c.String(http.StatusOK, user)
	})
	return router
}

func TestBasicAuthAcceptsValidCredentials(t *testing.T) {
	recorder := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.SetBasicAuth("alice", "wonderland")
	newAuthRouter().ServeHTTP(recorder, req)

	require.Equal(t, http.StatusOK, recorder.Code)
	assert.Equal(t, "alice", recorder.Body.String())
}

func TestBasicAuthRejects(t *testing.T) {
	cases := map[string]func(r *http.Request){
		"missing header": func(*http.Request) {},
		"wrong password": func(r *http.Request) { r.SetBasicAuth("alice", "nope") },
		"bearer token":   func(r *http.Request) { r.Header.Set("Authorization", "Bearer abc") },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			recorder := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
			mutate(req)
			newAuthRouter().ServeHTTP(recorder, req)

			assert.Equal(t, http.StatusUnauthorized, recorder.Code)
			assert.True(t, strings.HasPrefix(recorder.Header().Get("WWW-Authenticate"), "Basic"))
			assert.Contains(t, recorder.Body.String(), `"code":"UNAUTHORIZED"`)
		})
	}
}

func TestCurrentUserUnset(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	_, ok := CurrentUser(c)
	assert.False(t, ok)
}

type authFunc func(ctx context.Context, u, p string) (string, error)

func (f authFunc) Authenticate(ctx context.Context, u, p string) (string, error) { return f(ctx, u, p) }

func TestBasicAuthUsesAuthenticatorResult(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(BasicAuth(authFunc(func(_ context.Context, u, _ string) (string, error) {
		return strings.ToLower(u), nil
	})))
	router.GET("/", func(c *gin.Context) {
		user, _ := CurrentUser(c)
		c.String(http.StatusOK, user)
	})

	recorder := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.SetBasicAuth("ALICE", "x")
	router.ServeHTTP(recorder, req)
	assert.Equal(t, "alice", recorder.Body.String())
}

func TestMetricsMiddlewareLabelsByRoute(t *testing.T) {
	gin.SetMode(gin.TestMode)
	metrics := service.NewMetricsService()
	router := gin.New()
	router.Use(Metrics(metrics, "/metrics"))
	router.GET("/enrollments/:id", func(c *gin.Context) { c.Status(http.StatusOK) })
	router.GET("/metrics", func(c *gin.Context) { c.Status(http.StatusOK) })

	for _, path := range []string{"/enrollments/a", "/enrollments/b", "/metrics", "/nowhere"} {
		router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	families, err := metrics.Registry().Gather()
	require.NoError(t, err)
	routes := map[string]bool{}
	for _, mf := range families {
		if mf.GetName() != "http_requests_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, l := range m.GetLabel() {
				if l.GetName() == "path" {
					routes[l.GetValue()] = true
				}
			}
		}
	}
	assert.Equal(t, map[string]bool{"/enrollments/:id": true, "unmatched": true}, routes)
}
