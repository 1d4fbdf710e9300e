package connector

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/lherron/aiomigrate/internal/domain"
)

const (
	defaultTimeout = 30 * time.Second
	defaultBackoff = 500 * time.Millisecond
	pageSize       = 100
	maxErrorBody   = 64 << 10
)

// Options configures a Client
type Options struct {
	Info          EndpointInfo
	Dialect       Dialect
	APIKey        string
	Timeout       time.Duration
	MaxRetries    int
	Backoff       time.Duration
	TLSSkipVerify bool
	// HTTPClient overrides the client built from Timeout and TLSSkipVerify
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Client implements Connector over the endpoint REST API
type Client struct {
	info       EndpointInfo
	dialect    Dialect
	apiKey     string
	baseURL    string
	http       *http.Client
	maxRetries int
	backoff    time.Duration
	logger     *slog.Logger

	rolesMu sync.Mutex
	roles   []wireRole
}

var _ Connector = (*Client)(nil)

// New creates a client for one endpoint
func New(opts Options) (*Client, error) {
	if opts.Dialect == nil {
		d, err := DialectFor(opts.Info.Dialect)
		if err != nil {
			return nil, err
		}
		opts.Dialect = d
	}
	if opts.Info.URL == "" {
		return nil, fmt.Errorf("endpoint %q has no url", opts.Info.Label())
	}
	if opts.APIKey == "" {
		return nil, fmt.Errorf("endpoint %q has no api key", opts.Info.Label())
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.Backoff <= 0 {
		opts.Backoff = defaultBackoff
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		transport := http.DefaultTransport.(*http.Transport).Clone()
		if opts.TLSSkipVerify {
			transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec
		}
		httpClient = &http.Client{Timeout: opts.Timeout, Transport: transport}
	}

	baseURL := opts.Info.URL
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	opts.Info.Dialect = opts.Dialect.Name()

	return &Client{
		info:       opts.Info,
		dialect:    opts.Dialect,
		apiKey:     opts.APIKey,
		baseURL:    baseURL,
		http:       httpClient,
		maxRetries: opts.MaxRetries,
		backoff:    opts.Backoff,
		logger:     opts.Logger.With("endpoint", opts.Info.Label()),
	}, nil
}

// Info returns the endpoint identity
func (c *Client) Info() EndpointInfo {
	return c.info
}

// SupportsTaskType reports whether the endpoint accepts the task type
func (c *Client) SupportsTaskType(kind domain.TaskKind, taskType string) bool {
	return c.dialect.SupportsTaskType(kind, taskType)
}

// APIError is a non-2xx response
type APIError struct {
	Method  string
	Path    string
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s %s: %d %s", e.Method, e.Path, e.Status, http.StatusText(e.Status))
	}
	return fmt.Sprintf("%s %s: %d %s: %s", e.Method, e.Path, e.Status, http.StatusText(e.Status), e.Message)
}

func (e *APIError) duplicate() bool {
	msg := strings.ToLower(e.Message)
	return e.Status == http.StatusBadRequest &&
		(strings.Contains(msg, "already exists") || strings.Contains(msg, "must be unique"))
}

func (e *APIError) Is(target error) bool {
	switch target {
	case domain.ErrDuplicateName:
		return e.duplicate()
	case domain.ErrNotFound:
		return e.Status == http.StatusNotFound
	case domain.ErrUnauthorized:
		return e.Status == http.StatusUnauthorized || e.Status == http.StatusForbidden
	case domain.ErrValidation:
		return (e.Status == http.StatusBadRequest && !e.duplicate()) || e.Status == http.StatusUnprocessableEntity
	case domain.ErrUnavailable:
		return retryable(e.Status)
	}
	return false
}

func retryable(status int) bool {
	return status == http.StatusTooManyRequests || status >= 500
}

// do sends one request, retrying throttled and server-side failures
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var payload []byte
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		payload = data
	}

	for attempt := 0; ; attempt++ {
		err := c.send(ctx, method, path, payload, out)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !errors.Is(err, domain.ErrUnavailable) || attempt >= c.maxRetries {
			return err
		}

		wait := c.backoff << attempt
		c.logger.Debug("retrying request", "method", method, "path", path, "attempt", attempt+1, "wait", wait, "error", err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

func (c *Client) send(ctx context.Context, method, path string, payload []byte, out any) error {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	c.dialect.Authorize(req.Header, c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w: %v", method, path, domain.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &APIError{Method: method, Path: path, Status: resp.StatusCode, Message: errorMessage(data)}
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s %s: failed to decode response: %w", method, path, err)
	}
	return nil
}

func errorMessage(data []byte) string {
	var body struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(data, &body); err == nil && body.Message != "" {
		return body.Message
	}
	return strings.TrimSpace(string(data))
}

type searchCriterion struct {
	FieldName    string  `json:"fieldName,omitempty"`
	IDValue      *int64  `json:"idValue,omitempty"`
	IDTest       string  `json:"idTest,omitempty"`
	StringTest   string  `json:"stringTest,omitempty"`
	StringValue  *string `json:"stringValue,omitempty"`
	NumericTest  string  `json:"numericTest,omitempty"`
	NumericValue *int64  `json:"numericValue,omitempty"`
}

type searchRequest struct {
	MaxItems       int               `json:"maxItems"`
	SearchCriteria []searchCriterion `json:"searchCriteria"`
	SortByObjectID bool              `json:"sortByObjectID"`
}

func nameEquals(field, value string) searchCriterion {
	return searchCriterion{FieldName: field, StringTest: "equal", StringValue: &value}
}

func numberEquals(field string, value int64) searchCriterion {
	return searchCriterion{FieldName: field, NumericTest: "equal", NumericValue: &value}
}

// search runs one search request and returns the raw items under key
func (c *Client) search(ctx context.Context, resource, key string, req searchRequest) ([]json.RawMessage, error) {
	var page map[string]json.RawMessage
	if err := c.do(ctx, http.MethodPost, resource+"/search", req, &page); err != nil {
		return nil, err
	}
	var items []json.RawMessage
	if raw, ok := page[key]; ok {
		if err := json.Unmarshal(raw, &items); err != nil {
			return nil, fmt.Errorf("%s/search: failed to decode %s: %w", resource, key, err)
		}
	}
	return items, nil
}

// listAll pages through a resource by ascending id until a page comes back empty
func (c *Client) listAll(ctx context.Context, resource, key string, fn func(json.RawMessage) error) error {
	var lastID int64
	for {
		id := lastID
		items, err := c.search(ctx, resource, key, searchRequest{
			MaxItems:       pageSize,
			SearchCriteria: []searchCriterion{{IDValue: &id, IDTest: "greater-than"}},
			SortByObjectID: true,
		})
		if err != nil {
			return err
		}
		if len(items) == 0 {
			return nil
		}

		for _, item := range items {
			if err := fn(item); err != nil {
				return err
			}
		}

		var last struct {
			ID int64 `json:"ID"`
		}
		if err := json.Unmarshal(items[len(items)-1], &last); err != nil {
			return fmt.Errorf("%s/search: failed to decode id: %w", resource, err)
		}
		if last.ID <= lastID {
			return fmt.Errorf("%s/search: paging did not advance past id %d", resource, lastID)
		}
		lastID = last.ID
	}
}

// create posts a new object and returns its id
func (c *Client) create(ctx context.Context, resource string, body any) (int64, error) {
	var created struct {
		ID int64 `json:"ID"`
	}
	if err := c.do(ctx, http.MethodPost, resource, body, &created); err != nil {
		return 0, err
	}
	if created.ID == 0 {
		return 0, fmt.Errorf("POST %s: response carried no id", resource)
	}
	return created.ID, nil
}
