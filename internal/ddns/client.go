package ddns

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/netip"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	userAgent   = "ddns"
	contentType = "application/json"
	maxBodySize = 1 << 20
)

// Record is a DNS A record as stored by Cloudflare.
type Record struct {
	ID   string
	Name string
	IP   netip.Addr
}

type options struct {
	httpClient *http.Client
	newBackOff func() backoff.BackOff
}

type Option func(*options)

// WithHTTPClient sets the client used for all requests.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) {
		o.httpClient = c
	}
}

// WithBackOff sets the retry policy. The function is called once per request.
func WithBackOff(fn func() backoff.BackOff) Option {
	return func(o *options) {
		o.newBackOff = fn
	}
}

func defaultBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxElapsedTime = 30 * time.Second
	return backoff.WithMaxRetries(b, 4)
}

func newOptions(opts []Option) options {
	o := options{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		newBackOff: defaultBackOff,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Client talks to the Cloudflare v4 API. Requests failing on transport errors,
// 429 or 5xx responses are retried, other failures are permanent.
type Client struct {
	baseURL *url.URL
	token   string
	opts    options
}

func NewClient(baseURL *url.URL, token string, opts ...Option) *Client {
	u := *baseURL
	u.Path = strings.TrimRight(u.Path, "/")
	return &Client{
		baseURL: &u,
		token:   token,
		opts:    newOptions(opts),
	}
}

type fullRecord struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Content string `json:"content"`
}

// GetRecord returns the only A record called name in zone zoneID.
func (c *Client) GetRecord(ctx context.Context, zoneID, name string) (Record, error) {
	u := c.baseURL.JoinPath("zones", zoneID, "dns_records")
	q := u.Query()
	q.Set("type", "A")
	q.Set("name", name)
	u.RawQuery = q.Encode()

	var records []fullRecord
	if err := c.do(ctx, http.MethodGet, u, nil, &records); err != nil {
		return Record{}, err
	}
	if len(records) != 1 {
		return Record{}, fmt.Errorf("expected 1 record, got %d records", len(records))
	}
	rec := records[0]
	if rec.Name != name {
		return Record{}, fmt.Errorf("expected record %s, found %s", name, rec.Name)
	}
	ip, err := netip.ParseAddr(rec.Content)
	if err != nil {
		return Record{}, fmt.Errorf("parsing record content: %w", err)
	}
	return Record{ID: rec.ID, Name: rec.Name, IP: ip}, nil
}

type patchRequest struct {
	Type    string `json:"type"`
	Name    string `json:"name"`
	Content string `json:"content"`
	Proxied bool   `json:"proxied"`
}

// UpdateRecord points the record id at ip.
func (c *Client) UpdateRecord(ctx context.Context, zoneID, id, name string, ip netip.Addr, proxied bool) error {
	body, err := json.Marshal(patchRequest{
		Type:    "A",
		Name:    name,
		Content: ip.String(),
		Proxied: proxied,
	})
	if err != nil {
		return err
	}
	u := c.baseURL.JoinPath("zones", zoneID, "dns_records", id)
	return c.do(ctx, http.MethodPatch, u, body, nil)
}

type apiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type envelope struct {
	Success bool            `json:"success"`
	Errors  []apiError      `json:"errors"`
	Result  json.RawMessage `json:"result"`
}

func (c *Client) do(ctx context.Context, method string, u *url.URL, body []byte, out any) error {
	attempt := 0
	op := func() error {
		attempt++
		var rd io.Reader
		if body != nil {
			rd = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, u.String(), rd)
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Authorization", "Bearer "+c.token)
		req.Header.Set("User-Agent", userAgent)
		if body != nil {
			req.Header.Set("Content-Type", contentType)
		}

		resp, err := c.opts.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer func() {
			_ = resp.Body.Close()
		}()
		return decodeResponse(resp, out)
	}
	notify := func(err error, next time.Duration) {
		slog.WarnContext(ctx, "cloudflare request failed, retrying",
			"method", method,
			"attempt", attempt,
			"next", next,
			"error", err)
	}
	return backoff.RetryNotify(op, backoff.WithContext(c.opts.newBackOff(), ctx), notify)
}

func retryable(code int) bool {
	return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
}

func decodeResponse(resp *http.Response, out any) error {
	fail := func(err error) error {
		if retryable(resp.StatusCode) {
			return err
		}
		return backoff.Permanent(err)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return fail(fmt.Errorf("reading response body: %w", err))
	}

	mediaType, _, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if err != nil || mediaType != contentType {
		return fail(fmt.Errorf("unexpected response, status: %d, content type: %q, body: %s",
			resp.StatusCode, resp.Header.Get("Content-Type"), raw))
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fail(fmt.Errorf("decoding json response failed: %w", err))
	}

	if resp.StatusCode/100 != 2 || !env.Success {
		return fail(&APIError{StatusCode: resp.StatusCode, Errors: env.Errors})
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(env.Result, out); err != nil {
		return backoff.Permanent(fmt.Errorf("decoding result: %w", err))
	}
	return nil
}

// APIError is a response of the Cloudflare API which was not successful.
type APIError struct {
	StatusCode int
	Errors     []apiError
}

func (e *APIError) Error() string {
	if len(e.Errors) == 0 {
		return fmt.Sprintf("cloudflare api: status code: %d", e.StatusCode)
	}
	msgs := make([]string, 0, len(e.Errors))
	for _, ae := range e.Errors {
		msgs = append(msgs, fmt.Sprintf("%d: %s", ae.Code, ae.Message))
	}
	return fmt.Sprintf("cloudflare api: status code: %d, errors: %s", e.StatusCode, strings.Join(msgs, "; "))
}

// IsAPIError reports whether err carries a response of the API.
func IsAPIError(err error) bool {
	var ae *APIError
	return errors.As(err, &ae)
}
