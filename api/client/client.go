package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"time"

	"github.com/vocdoni/zk-anonvote/api"
	"go.vocdoni.io/dvote/log"
)

const (
	// HTTPGET is the method string used for calling Request()
	HTTPGET = http.MethodGet
	// HTTPPOST is the method string used for calling Request()
	HTTPPOST = http.MethodPost
	// HTTPDELETE is the method string used for calling Request()
	HTTPDELETE = http.MethodDelete

	errCodeNot200 = "API error"

	// DefaultRetries this enables Request() to handle the situation where the server connection fails
	DefaultRetries = 3
	// DefaultTimeout is the default timeout for the HTTP client
	DefaultTimeout = 10 * time.Second
	// retryDelay is the time to wait between two attempts
	retryDelay = 500 * time.Millisecond
)

// HTTPclient is the zk-anonvote API HTTP client.
type HTTPclient struct {
	c       *http.Client
	host    *url.URL
	retries int
}

// New returns a client for the API host provided. It does not check the host
// is reachable, use Ping for that.
func New(host string) (*HTTPclient, error) {
	hostURL, err := url.Parse(host)
	if err != nil {
		return nil, err
	}
	if hostURL.Scheme == "" || hostURL.Host == "" {
		return nil, fmt.Errorf("invalid host %q", host)
	}

	tr := &http.Transport{
		IdleConnTimeout:    DefaultTimeout,
		DisableCompression: false,
		WriteBufferSize:    1 * 1024 * 1024, // 1 MiB
		ReadBufferSize:     1 * 1024 * 1024, // 1 MiB
	}
	c := &HTTPclient{
		c:       &http.Client{Transport: tr, Timeout: DefaultTimeout},
		host:    hostURL,
		retries: DefaultRetries,
	}
	log.Debugw("http client created", "host", hostURL.String())
	return c, nil
}

// Ping checks the API host is up.
func (c *HTTPclient) Ping(ctx context.Context) error {
	data, status, err := c.Request(ctx, HTTPGET, nil, nil, api.PingEndpoint)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return fmt.Errorf("%s: %d (%s)", errCodeNot200, status, data)
	}
	return nil
}

// Host returns the API host address.
func (c *HTTPclient) Host() string {
	return c.host.String()
}

// SetRetries configures the number of attempts of each request. Values lower
// than one are treated as one.
func (c *HTTPclient) SetRetries(n int) {
	c.retries = max(n, 1)
}

// SetTimeout configures the timeout for the HTTP client.
func (c *HTTPclient) SetTimeout(d time.Duration) {
	c.c.Timeout = d
	if tr, ok := c.c.Transport.(*http.Transport); ok {
		tr.ResponseHeaderTimeout = d
	}
}

// Request performs a `method` type raw request to the endpoint specified in urlPath parameter.
// Method is either GET or POST. If POST, a JSON struct should be attached. Returns the response,
// the status code and an error. Only transport failures are retried, a response with any
// status code is returned to the caller.
//
// Supports query parameters via `params` slice. If the slice is not empty, it should contain pairs of strings;
// the first element of each pair is the key, and the second element is the value.
func (c *HTTPclient) Request(ctx context.Context, method string, jsonBody any, params []string, urlPath ...string) ([]byte, int, error) {
	return c.request(ctx, c.retries, method, jsonBody, params, urlPath...)
}

// RequestOnce is like Request but sends the request a single time, whatever
// the retries configured. It must be used for the requests that are not
// idempotent, where a transport failure does not tell whether the server
// processed the request.
func (c *HTTPclient) RequestOnce(ctx context.Context, method string, jsonBody any, params []string, urlPath ...string) ([]byte, int, error) {
	return c.request(ctx, 1, method, jsonBody, params, urlPath...)
}

func (c *HTTPclient) request(ctx context.Context, retries int, method string, jsonBody any, params []string, urlPath ...string) ([]byte, int, error) {
	var (
		body []byte
		err  error
	)

	if jsonBody != nil {
		body, err = json.Marshal(jsonBody)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to marshal JSON: %w", err)
		}
	}

	u := *c.host
	u.Path = path.Join(u.Path, path.Join(urlPath...))

	// Expecting even-length slice: [key1, val1, key2, val2, ...]
	if len(params) > 0 {
		values := url.Values{}
		for i := 0; i < len(params)-1; i += 2 {
			values.Set(params[i], params[i+1])
		}
		u.RawQuery = values.Encode()
	}

	headers := http.Header{}
	if jsonBody != nil {
		headers.Set("Content-Type", "application/json")
		headers.Set("Accept", "application/json")
	}

	log.Debugw("http client request",
		"type", method,
		"url", u.String(),
		"body", func() string {
			if len(body) > 512 {
				return string(body[:512]) + "..."
			}
			return string(body)
		}(),
	)

	var resp *http.Response
	for i := 1; i <= retries; i++ {
		var reqBody io.Reader
		if body != nil {
			reqBody = bytes.NewReader(body)
		}
		req, rerr := http.NewRequestWithContext(ctx, method, u.String(), reqBody)
		if rerr != nil {
			return nil, 0, fmt.Errorf("failed to create request: %w", rerr)
		}
		req.Header = headers

		resp, err = c.c.Do(req)
		if err == nil {
			break
		}
		if ctx.Err() != nil {
			return nil, 0, ctx.Err()
		}
		log.Warnw("http request failed", "error", err.Error(), "attempt", i, "retries", retries)
		if i < retries {
			select {
			case <-ctx.Done():
				return nil, 0, ctx.Err()
			case <-time.After(retryDelay):
			}
		}
	}
	if err != nil {
		return nil, 0, fmt.Errorf("http request failed after %d attempts: %w", retries, err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			log.Warnw("failed to close response body", "error", err.Error())
		}
	}()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("failed to read response body: %w", err)
	}
	return data, resp.StatusCode, nil
}

// ParseError decodes an API error body. It returns nil if the body is not a
// well-formed API error.
func ParseError(data []byte) *api.ErrorResponse {
	var apiErr api.ErrorResponse
	if err := json.Unmarshal(data, &apiErr); err != nil {
		return nil
	}
	if apiErr.Code == 0 || apiErr.Error == "" {
		return nil
	}
	return &apiErr
}
