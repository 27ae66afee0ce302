// Package functions invokes named remote functions hosted on a Supabase
// project (Edge Functions).
package functions

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/easeaico/studio-memory/internal/observe"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
)

// maxResponseBytes bounds how much of a function response is read.
const maxResponseBytes = 32 << 20

// ErrResponseTooLarge is returned when a response body exceeds the read
// limit. The body is never truncated.
var ErrResponseTooLarge = errors.New("function response too large")

// Error is a failure reported by the remote function itself, as opposed to
// a transport failure reaching it.
type Error struct {
	Function string
	Status   int
	// Message is the remote error message. It is empty when the response
	// carried no usable message.
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("function %s returned status %d", e.Function, e.Status)
	}
	return fmt.Sprintf("function %s returned status %d: %s", e.Function, e.Status, e.Message)
}

// Client calls remote functions over HTTP.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	maxBody    int64
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default instrumented HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// NewClient creates a Client for the project at baseURL (e.g.
// https://xyz.supabase.co) authenticating with apiKey.
func NewClient(baseURL, apiKey string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		maxBody: maxResponseBytes,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Invoke posts payload as JSON to the function called name and returns the
// raw response body. Non-2xx responses produce an *Error; transport errors
// are returned as they came from the HTTP client.
func (c *Client) Invoke(ctx context.Context, name string, payload any) (json.RawMessage, error) {
	ctx, span := observe.StartSpan(ctx, "functions.invoke")
	defer span.End()
	span.SetAttributes(attribute.String("function.name", name))

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode payload for %s: %w", name, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/functions/v1/"+name, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build request for %s: %w", name, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
		req.Header.Set("apikey", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody+1))
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if int64(len(data)) > c.maxBody {
		err := fmt.Errorf("%w: %s exceeded %d bytes", ErrResponseTooLarge, name, c.maxBody)
		span.RecordError(err)
		return nil, err
	}
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 || resp.Header.Get("x-relay-error") == "true" {
		return nil, &Error{
			Function: name,
			Status:   resp.StatusCode,
			Message:  errorMessage(data),
		}
	}

	return json.RawMessage(data), nil
}

// errorMessage pulls a message out of an error body shaped like
// {"error": "..."}, {"error": {"message": "..."}} or {"message": "..."}.
func errorMessage(body []byte) string {
	var envelope struct {
		Error   json.RawMessage `json:"error"`
		Message string          `json:"message"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return ""
	}

	if len(envelope.Error) > 0 {
		var s string
		if err := json.Unmarshal(envelope.Error, &s); err == nil && s != "" {
			return s
		}
		var nested struct {
			Message string `json:"message"`
		}
		if err := json.Unmarshal(envelope.Error, &nested); err == nil && nested.Message != "" {
			return nested.Message
		}
	}

	return envelope.Message
}
