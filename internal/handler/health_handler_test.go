package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/enrollhub/enrollment-service/internal/service"
)

type healthCheckerMock struct {
	report service.HealthReport
}

func (m healthCheckerMock) Check(context.Context) service.HealthReport { return m.report }

func TestHealthHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)

	ok := NewHealthHandler(healthCheckerMock{report: service.HealthReport{
		Status: service.HealthOK, Dependencies: map[string]string{"store": service.HealthOK},
	}})
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/health", nil)
	ok.Health(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ok"`)

	down := NewHealthHandler(healthCheckerMock{report: service.HealthReport{
		Status:       service.HealthDown,
		Dependencies: map[string]string{"store": service.HealthOK, "rabbitmq": service.HealthDown},
		Failed:       []string{"rabbitmq"},
	}})
	w = httptest.NewRecorder()
	c, _ = gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/health", nil)
	down.Health(c)
	require.Equal(t, http.StatusServiceUnavailable, w.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "Cannot connect to rabbitmq", body["detail"])
}

func TestMetricsHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/metrics", nil)
	Metrics(service.NewMetricsService())(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "goroutines_total")

	r := gin.New()
	r.GET("/metrics", Metrics(nil))
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "metrics disabled")
}
