// Package backend talks to the lead-management backend: user registration,
// resume upload and the saved contact list.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/leadwatch/internal/models"
	"golang.org/x/time/rate"
)

const (
	// DefaultBaseURL is the hosted backend
	DefaultBaseURL = "https://jobseekers-for-linkedin-production.up.railway.app"

	// DefaultTimeout is the default HTTP timeout
	DefaultTimeout = 30 * time.Second

	// DefaultRateLimit is requests per second towards the backend
	DefaultRateLimit = 5

	networkErrorMessage = "Network error: Unable to connect to server. Please check your internet connection."
)

// ErrMissingUserID is returned when registration succeeds without a user id
var ErrMissingUserID = errors.New("Invalid response: user_id not found in server response")

// APIError is a non-2xx backend response. Message is safe to show to the user.
type APIError struct {
	StatusCode int
	Message    string
	Endpoint   string
}

func (e *APIError) Error() string {
	return e.Message
}

// NetworkError wraps a transport failure
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string {
	return networkErrorMessage
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// Client is a backend API client
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     arbor.ILogger
	limiter    *rate.Limiter
	retry      *RetryPolicy
}

// ClientOption configures the Client
type ClientOption func(*Client)

// WithBaseURL sets a custom base URL
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(baseURL, "/")
	}
}

// WithHTTPClient sets a custom HTTP client
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithTimeout sets the HTTP timeout
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		if timeout > 0 {
			c.httpClient = &http.Client{Timeout: timeout}
		}
	}
}

// WithLogger sets a logger
func WithLogger(logger arbor.ILogger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithRetryPolicy sets the retry policy
func WithRetryPolicy(policy *RetryPolicy) ClientOption {
	return func(c *Client) {
		c.retry = policy
	}
}

// NewClient creates a new backend client
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    DefaultBaseURL,
		httpClient: &http.Client{Timeout: DefaultTimeout},
		limiter:    rate.NewLimiter(rate.Limit(DefaultRateLimit), DefaultRateLimit),
		retry:      NewRetryPolicy(3),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// BaseURL returns the configured base URL
func (c *Client) BaseURL() string {
	return c.baseURL
}

// do sends one request with retries and decodes a JSON reply into result
func (c *Client) do(ctx context.Context, method, path string, contentType string, body func() (io.Reader, error), result interface{}) error {
	return c.retry.Do(ctx, c.logger, func() error {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limit wait failed: %w", err)
		}

		var reader io.Reader
		if body != nil {
			r, err := body()
			if err != nil {
				return fmt.Errorf("failed to build request body: %w", err)
			}
			reader = r
		}

		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Accept", "application/json")
		if contentType != "" {
			req.Header.Set("Content-Type", contentType)
		}

		if c.logger != nil {
			c.logger.Debug().Str("method", method).Str("path", path).Msg("Backend request")
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return &NetworkError{Err: err}
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return &APIError{
				StatusCode: resp.StatusCode,
				Message:    errorMessage(resp),
				Endpoint:   path,
			}
		}

		if result == nil {
			_, _ = io.Copy(io.Discard, resp.Body)
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("Request failed: %w", err)
		}
		return nil
	})
}

// errorMessage prefers a JSON "message", then a JSON string, then the raw body,
// then the status text
func errorMessage(resp *http.Response) string {
	fallback := http.StatusText(resp.StatusCode)
	if fallback == "" {
		fallback = resp.Status
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err != nil || len(bytes.TrimSpace(raw)) == 0 {
		return fallback
	}

	var structured errorBody
	if json.Unmarshal(raw, &structured) == nil && structured.Message != "" {
		return structured.Message
	}
	var text string
	if json.Unmarshal(raw, &text) == nil && text != "" {
		return text
	}
	return strings.TrimSpace(string(raw))
}

func jsonBody(v interface{}) func() (io.Reader, error) {
	return func() (io.Reader, error) {
		data, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		return bytes.NewReader(data), nil
	}
}

// Register registers a username and returns the backend user id
func (c *Client) Register(ctx context.Context, username string) (string, error) {
	var resp registerResponse
	if err := c.do(ctx, http.MethodPost, "/register", "application/json", jsonBody(registerRequest{Username: username}), &resp); err != nil {
		return "", err
	}
	if resp.UserID == "" {
		return "", ErrMissingUserID
	}
	return resp.UserID, nil
}

// UploadResume uploads a resume as multipart form data
func (c *Client) UploadResume(ctx context.Context, userID, filename string, data []byte) (*ResumeUpload, error) {
	buf := &bytes.Buffer{}
	w := multipart.NewWriter(buf)
	if err := w.WriteField("user_id", userID); err != nil {
		return nil, fmt.Errorf("failed to build upload: %w", err)
	}
	part, err := w.CreateFormFile("file", filename)
	if err != nil {
		return nil, fmt.Errorf("failed to build upload: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return nil, fmt.Errorf("failed to build upload: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("failed to build upload: %w", err)
	}
	payload := buf.Bytes()

	var result ResumeUpload
	body := func() (io.Reader, error) { return bytes.NewReader(payload), nil }
	if err := c.do(ctx, http.MethodPost, "/upload-resume", w.FormDataContentType(), body, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// SaveContacts stores leads in the user's backend contact list
func (c *Client) SaveContacts(ctx context.Context, userID string, leads []models.Lead) (*SaveResult, error) {
	if len(leads) == 0 {
		return &SaveResult{}, nil
	}

	var result SaveResult
	req := saveContactsRequest{UserID: userID, Contacts: leads}
	if err := c.do(ctx, http.MethodPost, "/hr-contacts", "application/json", jsonBody(req), &result); err != nil {
		return nil, err
	}
	if result.Saved == 0 {
		result.Saved = len(leads)
	}
	return &result, nil
}

// FetchContacts returns one page of the user's saved contacts. Pages start at 1.
func (c *Client) FetchContacts(ctx context.Context, userID string, page, pageSize int) (*ContactsPage, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 50
	}

	params := url.Values{}
	params.Set("user_id", userID)
	params.Set("page", strconv.Itoa(page))
	params.Set("page_size", strconv.Itoa(pageSize))

	var result ContactsPage
	if err := c.do(ctx, http.MethodGet, "/hr-contacts?"+params.Encode(), "", nil, &result); err != nil {
		return nil, err
	}
	if result.Page == 0 {
		result.Page = page
	}
	if result.PageSize == 0 {
		result.PageSize = pageSize
	}
	return &result, nil
}
