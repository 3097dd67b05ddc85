package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Credentials is the login data for a server. Every field must be present
// before a connection can be attempted.
type Credentials struct {
	Username string
	Password string
	Host     string
	Port     int
}

// Complete reports whether every field needed for a connection is set.
func (c Credentials) Complete() bool {
	return c.Username != "" && c.Password != "" && c.Host != "" && c.Port != 0
}

type loginUser struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type tokenInfo struct {
	Token string `json:"token"`
}

// Client is an authenticated HTTP session against one server. It logs in
// lazily, attaches the bearer token to every request and re-issues the login
// call once when the server answers 401. A failed refresh surfaces an
// unauthorized error instead of retrying indefinitely.
type Client struct {
	Host string
	Port int

	httpClient *http.Client
	limiter    *rate.Limiter

	mu    sync.Mutex
	creds *Credentials
	token string
}

// New creates a client for the given server. The credentials may be cleared
// later via Logout.
func New(creds Credentials) *Client {
	c := creds
	return &Client{
		Host:       creds.Host,
		Port:       creds.Port,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		// 10 req/s keeps a section sync from hammering the server
		limiter: rate.NewLimiter(rate.Every(100*time.Millisecond), 1),
		creds:   &c,
	}
}

// BaseURL returns the http origin of the server.
func (c *Client) BaseURL() string {
	return fmt.Sprintf("http://%s:%d", c.Host, c.Port)
}

// SocketURL returns the websocket endpoint for the status push channel.
func (c *Client) SocketURL() string {
	return fmt.Sprintf("ws://%s:%d/api/socket/status", c.Host, c.Port)
}

// Logout clears the cached token. When clearCredentials is set the stored
// credentials are dropped too, making any further automatic login impossible
// until the user re-authenticates.
func (c *Client) Logout(clearCredentials bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = ""
	if clearCredentials {
		c.creds = nil
	}
}

// Token returns a valid bearer token, logging in first if none is cached.
// Used by the status channel to authenticate its websocket handshake.
func (c *Client) Token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token != "" {
		return c.token, nil
	}
	if err := c.refreshTokenLocked(ctx); err != nil {
		return "", err
	}
	return c.token, nil
}

// refreshTokenLocked re-issues the login call and stores the fresh token.
// Caller holds c.mu.
func (c *Client) refreshTokenLocked(ctx context.Context) error {
	creds := c.creds
	if creds == nil {
		return unauthorizedErr("no credentials")
	}

	body, err := json.Marshal(loginUser{Username: creds.Username, Password: creds.Password})
	if err != nil {
		return decodeErr("encode login", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL()+"/login", bytes.NewReader(body))
	if err != nil {
		return otherErr(err.Error())
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return transportErr("login", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return unauthorizedErr(readBodyMessage(resp))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return otherErr(fmt.Sprintf("login: status %d", resp.StatusCode))
	}

	var info tokenInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return decodeErr("decode login response", err)
	}
	c.token = info.Token
	return nil
}

// do executes one authenticated request described by build, retrying exactly
// once after a token refresh when the server answers 401. build must return a
// fresh request each call so the body can be re-sent.
func (c *Client) do(ctx context.Context, build func() (*http.Request, error)) (*http.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, transportErr("rate limiter", err)
	}

	resp, err := c.attempt(ctx, build)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized {
		return resp, nil
	}
	resp.Body.Close()

	c.mu.Lock()
	c.token = ""
	refreshErr := c.refreshTokenLocked(ctx)
	c.mu.Unlock()
	if refreshErr != nil {
		return nil, refreshErr
	}

	resp, err = c.attempt(ctx, build)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusUnauthorized {
		msg := readBodyMessage(resp)
		resp.Body.Close()
		return nil, unauthorizedErr(msg)
	}
	return resp, nil
}

func (c *Client) attempt(ctx context.Context, build func() (*http.Request, error)) (*http.Response, error) {
	req, err := build()
	if err != nil {
		return nil, otherErr(err.Error())
	}
	req = req.WithContext(ctx)

	c.mu.Lock()
	if c.token == "" {
		if err := c.refreshTokenLocked(ctx); err != nil {
			c.mu.Unlock()
			return nil, err
		}
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	c.mu.Unlock()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, transportErr(req.URL.Path, err)
	}
	return resp, nil
}

// doJSON runs a JSON request/response round trip. body and result may be nil.
func (c *Client) doJSON(ctx context.Context, method, path string, query url.Values, body, result any) error {
	var encoded []byte
	if body != nil {
		var err error
		encoded, err = json.Marshal(body)
		if err != nil {
			return decodeErr("encode request", err)
		}
	}

	resp, err := c.do(ctx, func() (*http.Request, error) {
		req, err := http.NewRequest(method, c.endpoint(path, query), bytes.NewReader(encoded))
		if err != nil {
			return nil, err
		}
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		req.Header.Set("Accept", "application/json")
		return req, nil
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return otherErr(fmt.Sprintf("%s: status %d: %s", path, resp.StatusCode, readBodyMessage(resp)))
	}
	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return decodeErr("decode "+path, err)
		}
	}
	return nil
}

// doBytes runs a GET and returns the raw response body.
func (c *Client) doBytes(ctx context.Context, path string, query url.Values) ([]byte, error) {
	resp, err := c.do(ctx, func() (*http.Request, error) {
		return http.NewRequest(http.MethodGet, c.endpoint(path, query), nil)
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, otherErr(fmt.Sprintf("%s: status %d", path, resp.StatusCode))
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, transportErr("read "+path, err)
	}
	return data, nil
}

func (c *Client) endpoint(path string, query url.Values) string {
	u := c.BaseURL() + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

func readBodyMessage(resp *http.Response) string {
	data, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		return resp.Status
	}
	msg := strings.TrimSpace(string(data))
	if msg == "" {
		return resp.Status
	}
	return msg
}
