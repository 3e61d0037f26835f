package httpx

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/andybalholm/brotli"

	"github.com/guarzo/pokepack/internal/ratelimit"
)

const userAgent = "pokepack/1.0"

// StatusError is returned for any non-2xx response.
type StatusError struct {
	Service    string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: HTTP %d: %s", e.Service, e.StatusCode, e.Body)
}

// Client performs rate limited JSON GET requests against one upstream API.
type Client struct {
	Service string
	HTTP    *http.Client
	Header  http.Header
	Limiter *ratelimit.Limiter
}

// New creates a client for service. header is sent with every request.
func New(service string, timeout time.Duration, limiter *ratelimit.Limiter, header http.Header) *Client {
	if header == nil {
		header = http.Header{}
	}
	return &Client{
		Service: service,
		HTTP:    &http.Client{Timeout: timeout},
		Header:  header,
		Limiter: limiter,
	}
}

// GetJSON fetches u and decodes the JSON body into into. A non-zero timeout
// bounds this single request on top of the client timeout.
func (c *Client) GetJSON(ctx context.Context, u string, timeout time.Duration, into any) error {
	if err := c.Limiter.Wait(ctx); err != nil {
		return err
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	for k, vs := range c.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Accept-Encoding", "gzip, br")
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("%s request failed: %w", c.Service, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return &StatusError{Service: c.Service, StatusCode: resp.StatusCode, Body: errorBody(resp)}
	}

	reader, err := decodedBody(resp)
	if err != nil {
		return fmt.Errorf("%s: failed to create reader: %w", c.Service, err)
	}
	defer reader.Close()

	if err := json.NewDecoder(reader).Decode(into); err != nil {
		return fmt.Errorf("%s: parsing response: %w", c.Service, err)
	}
	return nil
}

// decodedBody unwraps the body according to Content-Encoding. Setting
// Accept-Encoding by hand disables net/http's transparent gzip handling.
// Closing the result does not close resp.Body.
func decodedBody(resp *http.Response) (io.ReadCloser, error) {
	switch resp.Header.Get("Content-Encoding") {
	case "gzip":
		return gzip.NewReader(resp.Body)
	case "br":
		return io.NopCloser(brotli.NewReader(resp.Body)), nil
	default:
		return io.NopCloser(resp.Body), nil
	}
}

// errorBody returns the start of an error response, or "" when the body
// is empty or cannot be decoded.
func errorBody(resp *http.Response) string {
	reader, err := decodedBody(resp)
	if err != nil {
		return ""
	}
	defer reader.Close()
	b, _ := io.ReadAll(io.LimitReader(reader, 512))
	return string(b)
}
