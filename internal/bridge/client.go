package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/a3tai/pdf-field-builder/internal/document"
)

// DefaultTimeout applies when the client is created without one
const DefaultTimeout = 30 * time.Second

// errorBodyLimit caps how much of an error response is read
const errorBodyLimit = 4 << 10

var (
	ErrNotFound     = errors.New("not found")
	ErrUnauthorized = errors.New("unauthorized")
	ErrRejected     = errors.New("request rejected by server")
	ErrMalformed    = errors.New("malformed response")
)

// APIError is a failed call to the template API
type APIError struct {
	Op     string `json:"operation"`
	Status int    `json:"status,omitempty"`
	Err    error  `json:"error"`
}

func (e *APIError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("template API %s failed (status %d): %v", e.Op, e.Status, e.Err)
	}
	return fmt.Sprintf("template API %s failed: %v", e.Op, e.Err)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// SaveResponse is the server's answer to a save
type SaveResponse struct {
	Success bool          `json:"success"`
	Message string        `json:"message"`
	Fields  []FieldRecord `json:"fields"`
}

// API is the remote template service
type API interface {
	FetchTemplate(ctx context.Context, templateID string) (Template, error)
	FetchDocument(ctx context.Context, ref string) ([]byte, error)
	FetchFields(ctx context.Context, templateID string) ([]FieldRecord, error)
	SaveFields(ctx context.Context, templateID string, records []FieldRecord) (SaveResponse, error)
}

// Client talks to the template API over HTTP
type Client struct {
	base       *url.URL
	token      string
	maxDocSize int64
	httpClient *http.Client
}

// ClientOption configures a Client
type ClientOption func(*Client)

// WithToken sends a bearer token on every request
func WithToken(token string) ClientOption {
	return func(c *Client) {
		c.token = token
	}
}

// WithHTTPClient replaces the underlying HTTP client
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithMaxDocumentSize limits downloaded PDFs
func WithMaxDocumentSize(n int64) ClientOption {
	return func(c *Client) {
		c.maxDocSize = n
	}
}

// NewClient creates a client for the API rooted at baseURL
func NewClient(baseURL string, timeout time.Duration, opts ...ClientOption) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(baseURL, "/") + "/")
	if err != nil {
		return nil, fmt.Errorf("invalid API URL %q: %w", baseURL, err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("invalid API URL %q: scheme must be http or https", baseURL)
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	c := &Client{
		base:       base,
		httpClient: &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// resolve turns an API path or a document reference into an absolute URL.
// Relative references, rooted ones included, resolve against the API base path.
func (c *Client) resolve(ref string) (string, error) {
	if !strings.HasPrefix(ref, "//") {
		ref = strings.TrimPrefix(ref, "/")
	}
	u, err := url.Parse(ref)
	if err != nil {
		return "", err
	}
	return c.base.ResolveReference(u).String(), nil
}

func (c *Client) newRequest(ctx context.Context, method, ref string, body io.Reader) (*http.Request, error) {
	target, err := c.resolve(ref)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, err
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return req, nil
}

// doJSON executes a request with an optional JSON body and decodes the JSON
// response into result.
func (c *Client) doJSON(ctx context.Context, op, method, path string, body, result any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return &APIError{Op: op, Err: fmt.Errorf("encode request: %w", err)}
		}
		reader = bytes.NewReader(raw)
	}

	req, err := c.newRequest(ctx, method, path, reader)
	if err != nil {
		return &APIError{Op: op, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json; charset=utf-8")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &APIError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	if err := statusError(op, resp); err != nil {
		return err
	}
	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return &APIError{Op: op, Status: resp.StatusCode, Err: fmt.Errorf("%w: %v", ErrMalformed, err)}
	}
	return nil
}

func statusError(op string, resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	var cause error
	switch resp.StatusCode {
	case http.StatusNotFound:
		cause = ErrNotFound
	case http.StatusUnauthorized, http.StatusForbidden:
		cause = ErrUnauthorized
	default:
		cause = errors.New(http.StatusText(resp.StatusCode))
	}

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyLimit))
	var payload struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if json.Unmarshal(raw, &payload) == nil {
		if msg := firstNonEmpty(payload.Message, payload.Error); msg != "" {
			cause = fmt.Errorf("%w: %s", cause, msg)
		}
	}
	return &APIError{Op: op, Status: resp.StatusCode, Err: cause}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func templatePath(templateID string, parts ...string) string {
	p := "api/templates/" + url.PathEscape(templateID)
	for _, part := range parts {
		p += "/" + part
	}
	return p
}

// FetchTemplate implements API
func (c *Client) FetchTemplate(ctx context.Context, templateID string) (Template, error) {
	var resp struct {
		Template *Template `json:"template"`
	}
	if err := c.doJSON(ctx, "fetch_template", http.MethodGet, templatePath(templateID), nil, &resp); err != nil {
		return Template{}, err
	}
	if resp.Template == nil {
		return Template{}, &APIError{Op: "fetch_template", Err: fmt.Errorf("%w: missing template", ErrMalformed)}
	}
	return *resp.Template, nil
}

// FetchDocument implements API. The document is read up to the configured
// maximum size.
func (c *Client) FetchDocument(ctx context.Context, ref string) ([]byte, error) {
	const op = "fetch_document"
	if ref == "" {
		return nil, &APIError{Op: op, Err: ErrNotFound}
	}
	req, err := c.newRequest(ctx, http.MethodGet, ref, nil)
	if err != nil {
		return nil, &APIError{Op: op, Err: err}
	}
	req.Header.Set("Accept", "application/pdf")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &APIError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	if err := statusError(op, resp); err != nil {
		return nil, err
	}

	var body io.Reader = resp.Body
	if c.maxDocSize > 0 {
		body = io.LimitReader(resp.Body, c.maxDocSize+1)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, &APIError{Op: op, Status: resp.StatusCode, Err: err}
	}
	if c.maxDocSize > 0 && int64(len(data)) > c.maxDocSize {
		return nil, &APIError{Op: op, Status: resp.StatusCode, Err: document.ErrTooLarge}
	}
	return data, nil
}

// FetchFields implements API
func (c *Client) FetchFields(ctx context.Context, templateID string) ([]FieldRecord, error) {
	var resp struct {
		Success *bool         `json:"success"`
		Message string        `json:"message"`
		Fields  []FieldRecord `json:"fields"`
	}
	if err := c.doJSON(ctx, "fetch_fields", http.MethodGet, templatePath(templateID, "fields"), nil, &resp); err != nil {
		return nil, err
	}
	if resp.Success != nil && !*resp.Success {
		return nil, &APIError{Op: "fetch_fields", Err: fmt.Errorf("%w: %s", ErrRejected, resp.Message)}
	}
	if resp.Fields == nil {
		resp.Fields = []FieldRecord{}
	}
	return resp.Fields, nil
}

// SaveFields implements API
func (c *Client) SaveFields(ctx context.Context, templateID string, records []FieldRecord) (SaveResponse, error) {
	if records == nil {
		records = []FieldRecord{}
	}
	body := struct {
		Fields []FieldRecord `json:"fields"`
	}{Fields: records}

	var resp SaveResponse
	if err := c.doJSON(ctx, "save_fields", http.MethodPost, templatePath(templateID, "fields"), body, &resp); err != nil {
		return SaveResponse{}, err
	}
	return resp, nil
}
