package authority

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-retryablehttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/platinummonkey/rolesync/pkg/observability"
	"github.com/platinummonkey/rolesync/pkg/rbac"
)

const (
	defaultTimeout      = 15 * time.Second
	defaultRetryMax     = 3
	defaultRetryWaitMax = 5 * time.Second
	maxErrorBody        = 64 << 10
)

// Config configures the authority client.
type Config struct {
	BaseURL  string
	Token    string
	Timeout  time.Duration
	RetryMax int
	// Transport is wrapped with tracing; nil uses http.DefaultTransport.
	Transport http.RoundTripper
}

// Client talks to the role authority over HTTP. Reads are retried on transport errors;
// writes are sent once. Every failure is a *rbac.RemoteError.
type Client struct {
	baseURL *url.URL
	token   string
	reads   *http.Client
	writes  *http.Client
	logger  *observability.Logger
	metrics *observability.Metrics
}

var _ rbac.Authority = (*Client)(nil)

// NewClient creates a client for cfg.BaseURL.
func NewClient(cfg Config, logger *observability.Logger, metrics *observability.Metrics) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid authority url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("invalid authority url %q: scheme must be http or https", cfg.BaseURL)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.RetryMax < 0 {
		cfg.RetryMax = 0
	} else if cfg.RetryMax == 0 {
		cfg.RetryMax = defaultRetryMax
	}
	transport := cfg.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}
	traced := otelhttp.NewTransport(transport,
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return "authority " + r.Method + " " + r.URL.Path
		}),
	)

	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = cfg.RetryMax
	retryClient.RetryWaitMin = 100 * time.Millisecond
	retryClient.RetryWaitMax = defaultRetryWaitMax
	retryClient.HTTPClient = &http.Client{Transport: traced, Timeout: cfg.Timeout}
	retryClient.Logger = nil
	retryClient.CheckRetry = func(ctx context.Context, resp *http.Response, err error) (bool, error) {
		if err != nil {
			return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
		}
		return false, nil
	}
	// Hand the last error back instead of retryablehttp's "giving up" wrapper.
	retryClient.ErrorHandler = retryablehttp.PassthroughErrorHandler

	return &Client{
		baseURL: base,
		token:   cfg.Token,
		reads:   retryClient.StandardClient(),
		writes:  &http.Client{Transport: traced, Timeout: cfg.Timeout},
		logger:  observability.OrNop(logger).Component("authority"),
		metrics: metrics,
	}, nil
}

// ListRoles returns every role.
func (c *Client) ListRoles(ctx context.Context) ([]rbac.Role, error) {
	var roles []rbac.Role
	if err := c.do(ctx, "list roles", http.MethodGet, "/permissions/roles/", nil, nil, &roles); err != nil {
		return nil, err
	}
	return roles, nil
}

// ListPermissions returns the permission catalog.
func (c *Client) ListPermissions(ctx context.Context, q rbac.PermissionQuery) ([]rbac.Permission, error) {
	query := url.Values{}
	if q.ActiveOnly {
		query.Set("is_active", "true")
	}
	if q.Limit > 0 {
		query.Set("limit", strconv.Itoa(q.Limit))
	}
	var perms []rbac.Permission
	if err := c.do(ctx, "list permissions", http.MethodGet, "/permissions/", query, nil, &perms); err != nil {
		return nil, err
	}
	return perms, nil
}

// ListRolePermissions returns the permissions assigned to roleID.
func (c *Client) ListRolePermissions(ctx context.Context, roleID int64) ([]rbac.Permission, error) {
	var perms []rbac.Permission
	path := fmt.Sprintf("/permissions/roles/%d/permissions/", roleID)
	if err := c.do(ctx, "list role permissions", http.MethodGet, path, nil, nil, &perms); err != nil {
		return nil, err
	}
	return perms, nil
}

// CreateRole creates a role and returns it with its new id.
func (c *Client) CreateRole(ctx context.Context, fields rbac.RoleFields) (rbac.Role, error) {
	var role rbac.Role
	if err := c.do(ctx, "create role", http.MethodPost, "/permissions/roles/", nil, fields, &role); err != nil {
		return rbac.Role{}, err
	}
	return role, nil
}

// UpdateRole replaces the role's editable fields.
func (c *Client) UpdateRole(ctx context.Context, roleID int64, fields rbac.RoleFields) error {
	return c.do(ctx, "update role", http.MethodPut, fmt.Sprintf("/permissions/roles/%d", roleID), nil, fields, nil)
}

// DeleteRole deletes a role.
func (c *Client) DeleteRole(ctx context.Context, roleID int64) error {
	return c.do(ctx, "delete role", http.MethodDelete, fmt.Sprintf("/permissions/roles/%d", roleID), nil, nil, nil)
}

// ClearRolePermissions removes every permission of a role.
func (c *Client) ClearRolePermissions(ctx context.Context, roleID int64) error {
	path := fmt.Sprintf("/permissions/roles/%d/permissions/", roleID)
	return c.do(ctx, "clear role permissions", http.MethodDelete, path, nil, nil, nil)
}

type bulkAssignRequest struct {
	RoleID        int64   `json:"role_id"`
	PermissionIDs []int64 `json:"permission_ids"`
}

// AssignPermissions adds permissionIDs to a role.
func (c *Client) AssignPermissions(ctx context.Context, roleID int64, permissionIDs []int64) error {
	body := bulkAssignRequest{RoleID: roleID, PermissionIDs: permissionIDs}
	return c.do(ctx, "assign permissions", http.MethodPost, "/permissions/bulk-assign-permissions", nil, body, nil)
}

// Broadcast sends a notification to the authority's broadcast endpoint.
func (c *Client) Broadcast(ctx context.Context, n rbac.Notification) error {
	return c.do(ctx, "broadcast", http.MethodPost, "/notifications/broadcast", nil, n, nil)
}

func (c *Client) do(ctx context.Context, op, method, path string, query url.Values, body, out interface{}) error {
	start := time.Now()
	status := 0
	defer func() { c.metrics.ObserveAuthorityRequest(op, status, start) }()

	u := *c.baseURL
	u.Path = c.baseURL.Path + path
	u.RawQuery = query.Encode()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return &rbac.RemoteError{Op: op, Err: fmt.Errorf("encode request: %w", err)}
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return &rbac.RemoteError{Op: op, Err: err}
	}
	requestID := observability.GetRequestID(ctx)
	if requestID == "" {
		requestID = uuid.NewString()
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", requestID)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	client := c.writes
	if method == http.MethodGet {
		client = c.reads
	}

	logger := c.logger.WithFields(map[string]interface{}{
		"op":         op,
		"method":     method,
		"path":       u.Path,
		"request_id": requestID,
	})

	resp, err := client.Do(req)
	if err != nil {
		logger.WithError(err).Warn("authority unreachable")
		return &rbac.RemoteError{Op: op, Err: err}
	}
	defer resp.Body.Close()
	status = resp.StatusCode

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		detail := parseDetail(raw)
		logger.WithFields(map[string]interface{}{
			"status": resp.StatusCode,
			"detail": detail,
		}).Debug("authority rejected request")
		return &rbac.RemoteError{Op: op, StatusCode: resp.StatusCode, Detail: detail}
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return &rbac.RemoteError{Op: op, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

// parseDetail extracts the "detail" of an error body. It is either a string or a list of
// validation entries carrying "msg".
func parseDetail(raw []byte) string {
	var body struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(raw, &body); err != nil || len(body.Detail) == 0 {
		return ""
	}

	var text string
	if err := json.Unmarshal(body.Detail, &text); err == nil {
		return text
	}

	var entries []struct {
		Msg string `json:"msg"`
	}
	if err := json.Unmarshal(body.Detail, &entries); err == nil {
		msgs := make([]string, 0, len(entries))
		for _, e := range entries {
			if e.Msg != "" {
				msgs = append(msgs, e.Msg)
			}
		}
		return strings.Join(msgs, "; ")
	}
	return ""
}
