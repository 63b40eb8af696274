package webservice

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/passkeeper/internal/common"
	"github.com/dmitrijs2005/passkeeper/internal/logging"
	"github.com/dmitrijs2005/passkeeper/internal/models"
	"github.com/golang-jwt/jwt/v5"
)

const (
	defaultRequestTimeout = 15 * time.Second

	// errorBodyLimit caps how much of a non-2xx response body ends up in the
	// returned error.
	errorBodyLimit = 512

	// tokenExpirationLeeway refreshes tokens slightly before their exp claim.
	tokenExpirationLeeway = 30 * time.Second
)

// HTTPClient implements Client over JSON/HTTP with bearer authentication.
type HTTPClient struct {
	baseURL string
	http    *http.Client
	log     logging.Logger

	mu          sync.Mutex
	username    string
	authHash    string
	token       string
	tokenExpiry time.Time
}

// Option configures an HTTPClient.
type Option func(*HTTPClient)

// WithHTTPClient replaces the underlying *http.Client (tests).
func WithHTTPClient(h *http.Client) Option {
	return func(c *HTTPClient) { c.http = h }
}

// WithToken seeds the client with a previously persisted bearer token.
func WithToken(token string) Option {
	return func(c *HTTPClient) {
		c.token = token
		c.tokenExpiry = tokenExpiration(token)
	}
}

// WithLogger attaches a logger.
func WithLogger(log logging.Logger) Option {
	return func(c *HTTPClient) { c.log = log }
}

// insecureTransportAllowed is flipped by the insecure build tag only; release
// builds reject any non-TLS server URL at construction time.
// See insecure_dev.go.
var insecureTransportAllowed = false

// NewHTTPClient constructs a client for the given server URL, authenticating
// as username with the locally computed master-password authentication hash.
// A non-https URL is a hard precondition failure unless the build explicitly
// allows insecure transport.
func NewHTTPClient(serverURL, username, masterPasswordAuthenticationHash string, opts ...Option) (*HTTPClient, error) {
	parsed, err := url.Parse(serverURL)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid server url: %v", common.ErrValidation, err)
	}
	if parsed.Scheme != "https" && !insecureTransportAllowed {
		return nil, fmt.Errorf("%w: server url must use https", common.ErrValidation)
	}
	if parsed.Scheme != "https" && parsed.Scheme != "http" {
		return nil, fmt.Errorf("%w: unsupported url scheme %q", common.ErrValidation, parsed.Scheme)
	}
	if strings.TrimSpace(username) == "" {
		return nil, fmt.Errorf("%w: blank username", common.ErrValidation)
	}
	if masterPasswordAuthenticationHash == "" {
		return nil, fmt.Errorf("%w: empty authentication hash", common.ErrValidation)
	}

	c := &HTTPClient{
		baseURL:  strings.TrimRight(serverURL, "/"),
		http:     &http.Client{Timeout: defaultRequestTimeout},
		log:      logging.Nop(),
		username: username,
		authHash: masterPasswordAuthenticationHash,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *HTTPClient) SetCredentials(username, masterPasswordAuthenticationHash string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.username = username
	c.authHash = masterPasswordAuthenticationHash
	c.token = ""
	c.tokenExpiry = time.Time{}
}

func (c *HTTPClient) Token() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token
}

func (c *HTTPClient) Close() error {
	c.http.CloseIdleConnections()
	return nil
}

// tokenExpiration extracts the exp claim from a JWT-like token without
// verifying the signature (the client has no verification key; expiry is only
// used to refresh proactively instead of bouncing off a 401).
func tokenExpiration(token string) time.Time {
	if token == "" {
		return time.Time{}
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}
	}
	return exp.Time
}

// requestToken performs the password-authenticated token request.
func (c *HTTPClient) requestToken(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/token", nil)
	if err != nil {
		return err
	}
	c.mu.Lock()
	req.SetBasicAuth(c.username, c.authHash)
	c.mu.Unlock()

	resp, err := c.http.Do(req)
	if err != nil {
		return mapTransportError(err)
	}
	defer resp.Body.Close()

	if err := mapStatusError(resp); err != nil {
		return err
	}

	var payload struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return fmt.Errorf("%w: token response: %v", common.ErrDeserializationFailed, err)
	}

	c.mu.Lock()
	c.token = payload.Token
	c.tokenExpiry = tokenExpiration(payload.Token)
	c.mu.Unlock()
	return nil
}

func (c *HTTPClient) currentToken() (token string, valid bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token == "" {
		return "", false
	}
	if !c.tokenExpiry.IsZero() && time.Now().After(c.tokenExpiry.Add(-tokenExpirationLeeway)) {
		return "", false
	}
	return c.token, true
}

// do performs one authenticated JSON request. On 401 it re-authenticates via
// the token endpoint and retries exactly once.
func (c *HTTPClient) do(ctx context.Context, method, path string, body, out any) error {
	token, ok := c.currentToken()
	if !ok {
		if err := c.requestToken(ctx); err != nil {
			return err
		}
		token, _ = c.currentToken()
	}

	err := c.doOnce(ctx, method, path, token, body, out)
	if !errors.Is(err, common.ErrUnauthorized) {
		return err
	}

	c.log.Debug(ctx, "request unauthorized, re-authenticating once", "path", path)
	if err := c.requestToken(ctx); err != nil {
		return err
	}
	token, _ = c.currentToken()
	return c.doOnce(ctx, method, path, token, body, out)
}

func (c *HTTPClient) doOnce(ctx context.Context, method, path, token string, body, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%w: request body: %v", common.ErrDeserializationFailed, err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return mapTransportError(err)
	}
	defer resp.Body.Close()

	if err := mapStatusError(resp); err != nil {
		return err
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("%w: response body: %v", common.ErrDeserializationFailed, err)
		}
	}
	return nil
}

func mapTransportError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || os.IsTimeout(err) {
		return fmt.Errorf("%w: %v", common.ErrTimeout, err)
	}
	return fmt.Errorf("%w: %v", common.ErrRequestFailed, err)
}

func mapStatusError(resp *http.Response) error {
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusUnauthorized:
		return common.ErrUnauthorized
	case resp.StatusCode == http.StatusForbidden:
		return common.ErrForbidden
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyLimit))
		return fmt.Errorf("%w: status %d: %s", common.ErrRequestFailed, resp.StatusCode,
			strings.TrimSpace(string(body)))
	}
}

func (c *HTTPClient) Register(ctx context.Context, invitationCode string, user *models.User) error {
	if strings.TrimSpace(invitationCode) == "" {
		return fmt.Errorf("%w: blank invitation code", common.ErrValidation)
	}
	path := "/register?invitationCode=" + url.QueryEscape(invitationCode)
	return c.do(ctx, http.MethodPut, path, user, nil)
}

func (c *HTTPClient) GetUsers(ctx context.Context) ([]models.User, error) {
	var users []models.User
	if err := c.do(ctx, http.MethodGet, "/users", nil, &users); err != nil {
		return nil, err
	}
	return users, nil
}

func (c *HTTPClient) GetUserDetails(ctx context.Context) (*models.User, error) {
	var user models.User
	if err := c.do(ctx, http.MethodGet, "/user", nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

func (c *HTTPClient) SetUserDetails(ctx context.Context, user *models.User) error {
	return c.do(ctx, http.MethodPut, "/user", user, nil)
}

func (c *HTTPClient) GetUserItems(ctx context.Context) ([]models.Item, error) {
	var items []models.Item
	if err := c.do(ctx, http.MethodGet, "/user/items", nil, &items); err != nil {
		return nil, err
	}
	return items, nil
}

func (c *HTTPClient) SetUserItems(ctx context.Context, items []models.Item) error {
	return c.do(ctx, http.MethodPut, "/user/items", items, nil)
}

func (c *HTTPClient) GetUserItemAuthorizations(ctx context.Context) ([]models.ItemAuthorization, error) {
	var auths []models.ItemAuthorization
	if err := c.do(ctx, http.MethodGet, "/user/itemauthorizations", nil, &auths); err != nil {
		return nil, err
	}
	return auths, nil
}

func (c *HTTPClient) SetUserItemAuthorizations(ctx context.Context, auths []models.ItemAuthorization) error {
	return c.do(ctx, http.MethodPut, "/user/itemauthorizations", auths, nil)
}
