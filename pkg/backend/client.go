// Package backend is the HTTP client for the REST endpoints the session and chat layers
// depend on.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const (
	pathLogin    = "/public/api/auth/login"
	pathRegister = "/public/api/auth/register"
	pathRefresh  = "/public/api/auth/refresh"
	pathUsers    = "/public/api/auth"
	pathChat     = "/api/chat"
)

// RejectedError is returned for every non-2xx answer. It carries the response verbatim.
type RejectedError struct {
	Method     string
	Path       string
	StatusCode int
	Status     string
	Body       []byte
}

func (e *RejectedError) Error() string {
	body := strings.TrimSpace(string(e.Body))
	if len(body) > 200 {
		body = body[:200] + "..."
	}
	if body == "" {
		return fmt.Sprintf("%s %s: %s", e.Method, e.Path, e.Status)
	}
	return fmt.Sprintf("%s %s: %s: %s", e.Method, e.Path, e.Status, body)
}

// TokenSource returns the bearer token to attach to protected calls, or "".
type TokenSource func() string

type Client struct {
	baseURL string
	http    *http.Client
	token   TokenSource
}

type Option func(*Client)

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.http = h
		}
	}
}

func WithTokenSource(ts TokenSource) Option {
	return func(c *Client) { c.token = ts }
}

func NewClient(baseURL string, opts ...Option) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("backend: empty base url")
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, errors.Wrap(err, "backend: invalid base url")
	}
	c := &Client{baseURL: baseURL, http: http.DefaultClient}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

func (c *Client) BaseURL() string { return c.baseURL }

func (c *Client) Login(ctx context.Context, req LoginRequest) (*LoginResponse, error) {
	var resp LoginResponse
	if err := c.doJSON(ctx, http.MethodPost, pathLogin, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Register forwards an arbitrary registration payload and returns the raw answer.
func (c *Client) Register(ctx context.Context, payload any) (json.RawMessage, error) {
	var resp json.RawMessage
	if err := c.doJSON(ctx, http.MethodPost, pathRegister, payload, &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	var resp TokenPair
	if err := c.doJSON(ctx, http.MethodPost, pathRefresh, RefreshRequest{RefreshToken: refreshToken}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) ListUsers(ctx context.Context, page, size int) (*UserPage, error) {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("size", strconv.Itoa(size))
	var resp UserPage
	if err := c.doJSON(ctx, http.MethodGet, pathUsers+"?"+q.Encode(), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Chat sends one raw text turn of the assistant conversation identified by conversationID
// and returns the raw text reply.
func (c *Client) Chat(ctx context.Context, conversationID, text string) (string, error) {
	q := url.Values{}
	q.Set("conversationId", conversationID)
	req, err := c.newRequest(ctx, http.MethodPost, pathChat+"?"+q.Encode(), strings.NewReader(text))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	req.Header.Set("Accept", "text/plain, */*")
	body, err := c.do(req)
	if err != nil {
		return "", err
	}
	return string(body), nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, in any, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return errors.Wrap(err, "marshal request")
		}
		body = bytes.NewReader(b)
	}
	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	data, err := c.do(req)
	if err != nil {
		return err
	}
	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return errors.Wrapf(err, "decode %s %s response", method, path)
	}
	return nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, errors.Wrap(err, "build request")
	}
	if c.token != nil && !strings.HasPrefix(path, "/public/") {
		if tok := c.token(); tok != "" {
			req.Header.Set("Authorization", "Bearer "+tok)
		}
	}
	return req, nil
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "%s %s", req.Method, req.URL.Path)
	}
	defer func() { _ = resp.Body.Close() }()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrapf(err, "read %s %s response", req.Method, req.URL.Path)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		log.Debug().
			Str("component", "backend").
			Str("method", req.Method).
			Str("path", req.URL.Path).
			Int("status", resp.StatusCode).
			Msg("backend rejected request")
		return nil, &RejectedError{
			Method:     req.Method,
			Path:       req.URL.Path,
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       data,
		}
	}
	return data, nil
}
