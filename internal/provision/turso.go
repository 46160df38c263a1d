package provision

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"cronhub/internal/registry"
)

// Client talks to the Turso platform API for one organization.
type Client struct {
	apiURL string
	token  string
	org    string
	group  string
	http   *http.Client
	log    *zap.SugaredLogger
}

func NewClient(apiURL, token, org, group string, log *zap.SugaredLogger) *Client {
	return &Client{
		apiURL: strings.TrimRight(apiURL, "/"),
		token:  token,
		org:    org,
		group:  group,
		http:   &http.Client{Timeout: 30 * time.Second},
		log:    log,
	}
}

type DatabaseInfo struct {
	Name     string `json:"Name"`
	Hostname string `json:"Hostname"`
}

// Provision creates a database and credential for the tenant and
// returns the populated record. The record is NOT persisted here.
func (c *Client) Provision(ctx context.Context, tenantID, email string) (registry.TenantRecord, error) {
	dbName := DatabaseName(tenantID)

	info, err := c.CreateDatabase(ctx, dbName)
	if err != nil {
		return registry.TenantRecord{}, err
	}
	token, err := c.CreateToken(ctx, dbName)
	if err != nil {
		return registry.TenantRecord{}, err
	}

	now := time.Now().UTC()
	return registry.TenantRecord{
		TenantID:         tenantID,
		Email:            email,
		DBName:           info.Name,
		DBURL:            "libsql://" + info.Hostname,
		DBToken:          token,
		StorageUsedBytes: 0,
		CreatedAt:        now,
		UpdatedAt:        now,
	}, nil
}

// CreateDatabase creates dbName in the organization's group. When the
// platform answers "already exists" the existing database is looked up
// and returned instead, so a crash-and-retry between database creation
// and registry insert converges.
func (c *Client) CreateDatabase(ctx context.Context, dbName string) (DatabaseInfo, error) {
	url := fmt.Sprintf("%s/v1/organizations/%s/databases", c.apiURL, c.org)
	body, status, err := c.do(ctx, http.MethodPost, url, map[string]string{
		"name":  dbName,
		"group": c.group,
	})
	if err != nil {
		return DatabaseInfo{}, &APIError{Op: "create database", Retryable: true, Err: err}
	}
	if status == http.StatusOK || status == http.StatusCreated {
		var resp struct {
			Database DatabaseInfo `json:"database"`
		}
		if jerr := json.Unmarshal(body, &resp); jerr != nil {
			return DatabaseInfo{}, &APIError{Op: "create database", Status: status, Body: string(body), Err: jerr}
		}
		return resp.Database, nil
	}
	if quotaResponse(status, body) {
		return DatabaseInfo{}, ErrQuotaExceeded
	}
	if strings.Contains(string(body), "already exists") {
		return c.getDatabase(ctx, dbName)
	}
	return DatabaseInfo{}, &APIError{Op: "create database", Status: status, Body: string(body), Retryable: status >= 500}
}

func (c *Client) getDatabase(ctx context.Context, dbName string) (DatabaseInfo, error) {
	url := fmt.Sprintf("%s/v1/organizations/%s/databases/%s", c.apiURL, c.org, dbName)
	body, status, err := c.do(ctx, http.MethodGet, url, nil)
	if err != nil {
		return DatabaseInfo{}, &APIError{Op: "get database", Retryable: true, Err: err}
	}
	if status != http.StatusOK {
		return DatabaseInfo{}, &APIError{Op: "get database", Status: status, Body: string(body), Retryable: status >= 500}
	}
	var resp struct {
		Database DatabaseInfo `json:"database"`
	}
	if jerr := json.Unmarshal(body, &resp); jerr != nil {
		return DatabaseInfo{}, &APIError{Op: "get database", Status: status, Body: string(body), Err: jerr}
	}
	return resp.Database, nil
}

// CreateToken mints a full-access, non-expiring credential for dbName.
func (c *Client) CreateToken(ctx context.Context, dbName string) (string, error) {
	url := fmt.Sprintf("%s/v1/organizations/%s/databases/%s/auth/tokens", c.apiURL, c.org, dbName)
	body, status, err := c.do(ctx, http.MethodPost, url, map[string]string{
		"expiration":    "never",
		"authorization": "full-access",
	})
	if err != nil {
		return "", &APIError{Op: "create token", Retryable: true, Err: err}
	}
	if status != http.StatusOK && status != http.StatusCreated {
		if quotaResponse(status, body) {
			return "", ErrQuotaExceeded
		}
		return "", &APIError{Op: "create token", Status: status, Body: string(body), Retryable: status >= 500}
	}
	var resp struct {
		JWT string `json:"jwt"`
	}
	if jerr := json.Unmarshal(body, &resp); jerr != nil || resp.JWT == "" {
		return "", &APIError{Op: "create token", Status: status, Body: string(body), Err: jerr}
	}
	return resp.JWT, nil
}

func (c *Client) do(ctx context.Context, method, url string, payload any) ([]byte, int, error) {
	var rd io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, 0, err
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, rd)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, 0, err
	}
	return body, resp.StatusCode, nil
}

// quotaResponse reports whether the platform rejected the request for
// quota reasons. Server errors are never quota, even when the body
// mentions it: a 5xx "quota service unavailable" is transient.
func quotaResponse(status int, body []byte) bool {
	if status == http.StatusPaymentRequired {
		return true
	}
	if status >= 500 {
		return false
	}
	return strings.Contains(strings.ToLower(string(body)), "quota")
}

// DatabaseName derives the platform database name from a tenant id.
// The platform only accepts lowercase letters, digits and dashes.
func DatabaseName(tenantID string) string {
	var b strings.Builder
	b.WriteString("user-")
	for _, r := range strings.ToLower(tenantID) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-':
			b.WriteRune(r)
		case r == '_':
			b.WriteByte('-')
		}
	}
	return b.String()
}
