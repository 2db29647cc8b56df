// Package client talks to the gallery API over HTTP and WebSocket. It
// provides the remote store, asset store and auth provider the gallery core
// runs against in remote mode.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/promptgallery/gallery-backend/internal/domain"
	"github.com/rs/zerolog"
)

const defaultTimeout = 30 * time.Second

// TokenSource supplies the bearer token for authenticated calls. An empty
// token with a nil error means the call goes out anonymously.
type TokenSource interface {
	AccessToken(ctx context.Context) (string, error)
}

// Client is a thin JSON client for the gallery API
type Client struct {
	baseURL string
	http    *http.Client
	tokens  TokenSource
	logger  zerolog.Logger
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the default http.Client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithTokenSource attaches bearer tokens to requests
func WithTokenSource(ts TokenSource) Option {
	return func(c *Client) { c.tokens = ts }
}

// WithLogger sets the client logger
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// New creates a Client for the API at baseURL, e.g. http://localhost:8080
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: defaultTimeout},
		logger:  zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With().Str("component", "api_client").Logger()
	return c
}

// BaseURL returns the API root
func (c *Client) BaseURL() string {
	return c.baseURL
}

// problem mirrors the API's RFC 7807 body
type problem struct {
	Title  string              `json:"title"`
	Status int                 `json:"status"`
	Detail string              `json:"detail"`
	Errors []domain.FieldError `json:"errors"`
}

// do sends a request and decodes a JSON response into out when out is not
// nil. Non-2xx responses become *domain.BackendError, except 400 responses
// with field errors, which become *domain.ValidationError.
func (c *Client) do(ctx context.Context, op, method, path string, body io.Reader, contentType string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return domain.NewBackendError(op, fmt.Errorf("failed to create request: %w", err))
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	if c.tokens != nil {
		token, err := c.tokens.AccessToken(ctx)
		if err != nil {
			return err
		}
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return domain.NewBackendError(op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return c.responseError(op, resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return domain.NewBackendError(op, fmt.Errorf("failed to decode response: %w", err))
	}
	return nil
}

func (c *Client) doJSON(ctx context.Context, op, method, path string, in, out interface{}) error {
	var body io.Reader
	contentType := ""
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(data)
		contentType = "application/json"
	}
	return c.do(ctx, op, method, path, body, contentType, out)
}

func (c *Client) responseError(op string, resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))

	var p problem
	if json.Unmarshal(raw, &p) != nil || (p.Detail == "" && p.Title == "") {
		p.Detail = strings.TrimSpace(string(raw))
		if p.Detail == "" {
			p.Detail = http.StatusText(resp.StatusCode)
		}
	}

	if resp.StatusCode == http.StatusBadRequest && len(p.Errors) > 0 {
		return &domain.ValidationError{Fields: p.Errors}
	}

	be := &domain.BackendError{Op: op, Status: resp.StatusCode, Message: p.Detail}
	if be.Message == "" {
		be.Message = p.Title
	}
	switch resp.StatusCode {
	case http.StatusUnauthorized:
		be.Err = domain.ErrAuthRequired
	case http.StatusForbidden:
		be.Err = domain.ErrForbidden
	case http.StatusNotFound:
		be.Err = domain.ErrNotFound
	}
	c.logger.Debug().Str("op", op).Int("status", resp.StatusCode).Str("detail", be.Message).Msg("API call failed")
	return be
}

// IsStatus reports whether err is a BackendError carrying status
func IsStatus(err error, status int) bool {
	var be *domain.BackendError
	return errors.As(err, &be) && be.Status == status
}
