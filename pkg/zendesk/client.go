// Package zendesk is the pagination client for the Zendesk Support API. It
// exposes the three listing strategies the replication engine consumes
// (cursor, offset and incremental export) as lazy page sequences, and
// surfaces a missing per-parent resource as ErrNotFound.
package zendesk

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/ajitpratap0/ticketsync/pkg/errors"
	gojson "github.com/goccy/go-json"
	"go.uber.org/zap"
)

// ErrNotFound reports that the requested resource does not exist, e.g. the
// audits of a deleted ticket.
var ErrNotFound = stderrors.New("zendesk: resource not found")

const (
	missingScopeDescription = "You are missing the following required scopes: read"
	noAccessMessage         = "You do not have access to this page. Please contact the account owner of this help desk for further help."
)

// Doer performs authenticated GET requests. *clients.HTTPClient implements it.
type Doer interface {
	Get(ctx context.Context, rawURL string, headers map[string]string) (*http.Response, error)
}

// APIError is a non-retryable error response with its decoded body.
type APIError struct {
	StatusCode  int
	URL         string
	Description string
	Message     string
	Body        string
}

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Description
	}
	if msg == "" {
		msg = http.StatusText(e.StatusCode)
	}
	return fmt.Sprintf("HTTP %d from %s: %s", e.StatusCode, e.URL, msg)
}

// IsPermissionDenied reports whether err is one of the API responses sent to
// accounts that lack access to a resource, such as custom field definitions
// on lower plan tiers.
func IsPermissionDenied(err error) bool {
	var apiErr *APIError
	if !stderrors.As(err, &apiErr) {
		return false
	}
	return apiErr.Description == missingScopeDescription || apiErr.Message == noAccessMessage
}

// Client issues API requests relative to an account's base URL.
type Client struct {
	doer     Doer
	baseURL  string
	pageSize int
	logger   *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithPageSize sets per_page / page[size] on listing requests.
func WithPageSize(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.pageSize = n
		}
	}
}

// WithLogger sets the client logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		c.logger = l
	}
}

// NewClient creates a client for the account rooted at baseURL.
func NewClient(doer Doer, baseURL string, opts ...Option) *Client {
	c := &Client{
		doer:     doer,
		baseURL:  strings.TrimRight(baseURL, "/"),
		pageSize: 100,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With(zap.String("component", "zendesk_client"))
	return c
}

// PageSize returns the configured listing page size.
func (c *Client) PageSize() int {
	return c.pageSize
}

// GetJSON fetches path (relative to the base URL, or absolute) and decodes
// the object body. Numbers are kept as json.Number.
func (c *Client) GetJSON(ctx context.Context, path string, params url.Values) (map[string]any, error) {
	body, err := c.get(ctx, path, params)
	if err != nil {
		return nil, err
	}
	var page map[string]any
	dec := gojson.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&page); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeData, "failed to decode response")
	}
	return page, nil
}

func (c *Client) get(ctx context.Context, path string, params url.Values) ([]byte, error) {
	rawURL, err := c.resolve(path, params)
	if err != nil {
		return nil, err
	}

	resp, err := c.doer.Get(ctx, rawURL, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConnection, "failed to read response")
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%s: %w", rawURL, ErrNotFound)
	case resp.StatusCode >= 400:
		apiErr := decodeAPIError(resp.StatusCode, rawURL, body)
		errType := errors.ErrorTypeInternal
		switch resp.StatusCode {
		case http.StatusUnauthorized:
			errType = errors.ErrorTypeAuthentication
		case http.StatusForbidden:
			errType = errors.ErrorTypePermission
		}
		return nil, errors.Wrap(apiErr, errType, "api request failed")
	}
	return body, nil
}

func (c *Client) resolve(path string, params url.Values) (string, error) {
	raw := path
	if !strings.HasPrefix(path, "http://") && !strings.HasPrefix(path, "https://") {
		raw = c.baseURL + "/" + strings.TrimLeft(path, "/")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrorTypeValidation, "invalid request url")
	}
	if len(params) > 0 {
		q := u.Query()
		for k, vs := range params {
			q.Del(k)
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

// decodeAPIError understands both body shapes the API uses for errors:
// {"error": "...", "description": "..."} and {"error": {"title": ..., "message": ...}}.
func decodeAPIError(status int, rawURL string, body []byte) *APIError {
	apiErr := &APIError{StatusCode: status, URL: rawURL, Body: string(body)}

	var envelope struct {
		Error       gojson.RawMessage `json:"error"`
		Description string            `json:"description"`
	}
	if err := gojson.Unmarshal(body, &envelope); err != nil {
		return apiErr
	}
	apiErr.Description = envelope.Description

	var detail struct {
		Title   string `json:"title"`
		Message string `json:"message"`
	}
	if err := gojson.Unmarshal(envelope.Error, &detail); err == nil {
		apiErr.Message = detail.Message
	} else {
		var s string
		if gojson.Unmarshal(envelope.Error, &s) == nil {
			apiErr.Message = s
		}
	}
	return apiErr
}
