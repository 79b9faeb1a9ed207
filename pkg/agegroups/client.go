// Package agegroups is the HTTP client for the upstream age-range service.
package agegroups

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/enrollhub/enrollment-service/internal/models"
	"github.com/enrollhub/enrollment-service/pkg/config"
)

// ErrUnexpectedStatus is returned for any non-2xx upstream response.
var ErrUnexpectedStatus = errors.New("agegroups: unexpected status")

// Client lists the currently valid age ranges. It keeps no state between
// calls.
type Client struct {
	baseURL  string
	username string
	password string
	http     *http.Client
}

// NewClient builds a client from configuration. A nil httpClient gets one
// with the configured timeout.
func NewClient(cfg config.AgeGroupsConfig, httpClient *http.Client) *Client {
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Client{
		baseURL:  strings.TrimRight(cfg.URL, "/"),
		username: cfg.Username,
		password: cfg.Password,
		http:     httpClient,
	}
}

// List calls GET {base}/age-groups/.
func (c *Client) List(ctx context.Context) ([]models.AgeGroup, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/age-groups/", nil)
	if err != nil {
		return nil, fmt.Errorf("build age groups request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.username != "" || c.password != "" {
		req.SetBasicAuth(c.username, c.password)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch age groups: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode)
	}

	var groups []models.AgeGroup
	if err := json.NewDecoder(resp.Body).Decode(&groups); err != nil {
		return nil, fmt.Errorf("decode age groups: %w", err)
	}
	return groups, nil
}
