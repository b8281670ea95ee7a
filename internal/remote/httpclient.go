package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/farmkeeper/farmkeeper/internal/common"
	"github.com/farmkeeper/farmkeeper/internal/logging"
	"github.com/farmkeeper/farmkeeper/internal/models"
)

const (
	defaultTimeout   = 15 * time.Second
	maxResponseBytes = 8 << 20

	// orgSelectionCode is the error code the backend answers with when a
	// login matches more than one organization.
	orgSelectionCode = "organization_selection_required"
)

// HTTPClient talks JSON over HTTP to the farmkeeper backend. The session
// token is kept in memory only; a restart requires a fresh login (or the
// offline vault).
type HTTPClient struct {
	baseURL string
	http    *http.Client
	log     logging.Logger

	mu     sync.RWMutex
	token  string
	expiry time.Time
}

var _ Client = (*HTTPClient)(nil)

func NewHTTPClient(baseURL string, timeout time.Duration, log logging.Logger) *HTTPClient {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if log == nil {
		log = logging.Nop{}
	}
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		log:     log.With("component", "remote"),
	}
}

type loginRequest struct {
	Email          string `json:"email"`
	Password       string `json:"password"`
	OrganizationID int64  `json:"organization_id,omitempty"`
}

type loginResponse struct {
	Token string         `json:"token"`
	User  models.Profile `json:"user"`
}

type registerRequest struct {
	Email    string `json:"email"`
	FullName string `json:"full_name"`
	Password string `json:"password"`
}

// apiError is the error body the backend sends for 4xx responses.
type apiError struct {
	Code          string                `json:"code"`
	Message       string                `json:"message"`
	Organizations []models.Organization `json:"organizations,omitempty"`
}

func (c *HTTPClient) Login(ctx context.Context, email string, password []byte, organizationID int64) (*models.Profile, error) {
	req := loginRequest{Email: email, Password: string(password), OrganizationID: organizationID}
	status, body, err := c.do(ctx, http.MethodPost, "/api/login", req, nil)
	if err != nil {
		return nil, err
	}
	if err := classify(http.MethodPost, "/api/login", status, body); err != nil {
		return nil, err
	}
	var lr loginResponse
	if err := json.Unmarshal(body, &lr); err != nil {
		return nil, fmt.Errorf("failed to decode login response: %w", err)
	}
	if lr.Token == "" {
		return nil, fmt.Errorf("login response carried no token: %w", ErrValidation)
	}
	c.setToken(lr.Token)
	c.log.Info(ctx, "logged in", "email", email, "user_id", lr.User.UserID)
	return &lr.User, nil
}

func (c *HTTPClient) Register(ctx context.Context, email, fullName string, password []byte) error {
	req := registerRequest{Email: email, FullName: fullName, Password: string(password)}
	status, body, err := c.do(ctx, http.MethodPost, "/api/register", req, nil)
	if err != nil {
		return err
	}
	return classify(http.MethodPost, "/api/register", status, body)
}

func (c *HTTPClient) Ping(ctx context.Context) error {
	status, body, err := c.do(ctx, http.MethodGet, "/api/ping", nil, nil)
	if err != nil {
		return err
	}
	return classify(http.MethodGet, "/api/ping", status, body)
}

func (c *HTTPClient) List(ctx context.Context, kind models.Kind) ([]Item, error) {
	path := "/api/" + collection(kind)
	status, body, err := c.do(ctx, http.MethodGet, path, nil, nil)
	if err != nil {
		return nil, err
	}
	if err := classify(http.MethodGet, path, status, body); err != nil {
		return nil, err
	}
	var raws []json.RawMessage
	if err := json.Unmarshal(body, &raws); err != nil {
		return nil, fmt.Errorf("failed to decode %s list: %w", kind, err)
	}
	items := make([]Item, 0, len(raws))
	for _, raw := range raws {
		item, err := decodeItem(kind, raw)
		if err != nil {
			return nil, err
		}
		items = append(items, *item)
	}
	return items, nil
}

func (c *HTTPClient) Create(ctx context.Context, rec models.Record, parentServerID int64) (*Item, error) {
	kind := rec.Kind()
	path := "/api/" + collection(kind)
	reqBody, err := encodeBody(rec, parentServerID, true)
	if err != nil {
		return nil, err
	}
	headers := map[string]string{common.IdempotencyKeyHeaderName: rec.Meta().ClientToken}
	status, body, err := c.do(ctx, http.MethodPost, path, reqBody, headers)
	if err != nil {
		return nil, err
	}
	// A replayed create hits the idempotency token on the server, which
	// answers 409 with the record it already holds.
	if status == http.StatusConflict {
		if item, derr := decodeItem(kind, body); derr == nil {
			c.log.Debug(ctx, "create replay matched existing record",
				"kind", kind, "server_id", *item.Record.Meta().ServerID)
			return item, nil
		}
	}
	if err := classify(http.MethodPost, path, status, body); err != nil {
		return nil, err
	}
	return decodeItem(kind, body)
}

func (c *HTTPClient) Update(ctx context.Context, serverID int64, rec models.Record, parentServerID int64) (*Item, error) {
	kind := rec.Kind()
	path := "/api/" + collection(kind) + "/" + strconv.FormatInt(serverID, 10)
	reqBody, err := encodeBody(rec, parentServerID, false)
	if err != nil {
		return nil, err
	}
	status, body, err := c.do(ctx, http.MethodPut, path, reqBody, nil)
	if err != nil {
		return nil, err
	}
	if err := classify(http.MethodPut, path, status, body); err != nil {
		return nil, err
	}
	return decodeItem(kind, body)
}

func (c *HTTPClient) Delete(ctx context.Context, kind models.Kind, serverID int64) error {
	path := "/api/" + collection(kind) + "/" + strconv.FormatInt(serverID, 10)
	status, body, err := c.do(ctx, http.MethodDelete, path, nil, nil)
	if err != nil {
		return err
	}
	return classify(http.MethodDelete, path, status, body)
}

func (c *HTTPClient) Authenticated() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.token == "" {
		return false
	}
	return c.expiry.IsZero() || time.Now().Before(c.expiry)
}

func (c *HTTPClient) Logout() {
	c.mu.Lock()
	c.token = ""
	c.expiry = time.Time{}
	c.mu.Unlock()
}

// setToken installs the session token and reads its expiry. The parse is
// unverified: the server signs tokens, this client only needs exp.
func (c *HTTPClient) setToken(token string) {
	var expiry time.Time
	if tok, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{}); err == nil {
		if exp, err := tok.Claims.GetExpirationTime(); err == nil && exp != nil {
			expiry = exp.Time
		}
	}
	c.mu.Lock()
	c.token = token
	c.expiry = expiry
	c.mu.Unlock()
}

func (c *HTTPClient) bearer() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// do runs one request and returns the status and body. The returned error
// covers transport problems only; callers classify the status themselves
// because some of them (create replay) read meaning into specific codes.
func (c *HTTPClient) do(ctx context.Context, method, path string, body any, headers map[string]string) (int, []byte, error) {
	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return 0, nil, fmt.Errorf("failed to encode request: %w", err)
		}
		rd = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if tok := c.bearer(); tok != "" {
		req.Header.Set(common.AuthHeaderName, "Bearer "+tok)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return 0, nil, ctx.Err()
		}
		return 0, nil, fmt.Errorf("%s %s: %w: %v", method, path, ErrUnavailable, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return 0, nil, fmt.Errorf("%s %s: %w: %v", method, path, ErrUnavailable, err)
	}
	return resp.StatusCode, raw, nil
}

// classify maps a response status onto the package's sentinel errors.
func classify(method, path string, status int, body []byte) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return fmt.Errorf("%s %s: %w", method, path, common.ErrUnauthorized)
	case status == http.StatusNotFound:
		return fmt.Errorf("%s %s: %w", method, path, common.ErrNotFound)
	case status >= 500:
		return fmt.Errorf("%s %s: status %d: %w", method, path, status, ErrUnavailable)
	}
	var ae apiError
	if err := json.Unmarshal(body, &ae); err == nil {
		if ae.Code == orgSelectionCode && len(ae.Organizations) > 0 {
			return &OrgSelectionError{Organizations: ae.Organizations}
		}
		if ae.Message != "" {
			return fmt.Errorf("%s %s: %s: %w", method, path, ae.Message, ErrValidation)
		}
	}
	return fmt.Errorf("%s %s: status %d: %w", method, path, status, ErrValidation)
}
