// Package httputil holds the HTTP client seam used by the cloud analysis
// client and the JSON response helpers used by the device API.
package httputil

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"sync"
	"time"
)

// DefaultTimeout bounds a single cloud request.
const DefaultTimeout = 15 * time.Second

// HTTPClient sends requests. *http.Client satisfies it; tests use
// MockHTTPClient.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// NewStandardClient returns an *http.Client with the given timeout, or
// DefaultTimeout when timeout is not positive.
func NewStandardClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &http.Client{Timeout: timeout}
}

// MockResponse is a canned reply.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    http.Header
	Error      error
}

// MockHTTPClient replays queued responses in order and records each request
// together with its body.
type MockHTTPClient struct {
	mu          sync.Mutex
	requests    []*http.Request
	bodies      []string
	responses   []*MockResponse
	responseIdx int

	// DoFunc, when set, answers every request instead of the queue.
	DoFunc func(req *http.Request) (*http.Response, error)
}

// NewMockHTTPClient creates a mock with no queued responses.
func NewMockHTTPClient() *MockHTTPClient {
	return &MockHTTPClient{}
}

// AddResponse queues a response with a raw body.
func (m *MockHTTPClient) AddResponse(statusCode int, body string) *MockHTTPClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = append(m.responses, &MockResponse{
		StatusCode: statusCode,
		Body:       body,
		Headers:    make(http.Header),
	})
	return m
}

// AddJSONResponse queues a response whose body is v encoded as JSON.
func (m *MockHTTPClient) AddJSONResponse(statusCode int, v any) *MockHTTPClient {
	body, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	m.AddResponse(statusCode, string(body))
	m.mu.Lock()
	m.responses[len(m.responses)-1].Headers.Set("Content-Type", "application/json")
	m.mu.Unlock()
	return m
}

// AddErrorResponse queues a transport error.
func (m *MockHTTPClient) AddErrorResponse(err error) *MockHTTPClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = append(m.responses, &MockResponse{Error: err})
	return m
}

// Do records req and returns the next queued response. With the queue
// exhausted it answers 200 with an empty body.
func (m *MockHTTPClient) Do(req *http.Request) (*http.Response, error) {
	var body string
	if req.Body != nil {
		b, _ := io.ReadAll(req.Body)
		req.Body.Close()
		body = string(b)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, req)
	m.bodies = append(m.bodies, body)

	if m.DoFunc != nil {
		return m.DoFunc(req)
	}

	if m.responseIdx < len(m.responses) {
		resp := m.responses[m.responseIdx]
		m.responseIdx++
		if resp.Error != nil {
			return nil, resp.Error
		}
		return &http.Response{
			StatusCode: resp.StatusCode,
			Body:       io.NopCloser(bytes.NewBufferString(resp.Body)),
			Header:     resp.Headers,
			Request:    req,
		}, nil
	}

	return &http.Response{
		StatusCode: http.StatusOK,
		Body:       io.NopCloser(bytes.NewBufferString("")),
		Header:     make(http.Header),
		Request:    req,
	}, nil
}

// GetRequest returns the nth recorded request, or nil.
func (m *MockHTTPClient) GetRequest(n int) *http.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n < 0 || n >= len(m.requests) {
		return nil
	}
	return m.requests[n]
}

// RequestBody returns the body of the nth recorded request.
func (m *MockHTTPClient) RequestBody(n int) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n < 0 || n >= len(m.bodies) {
		return ""
	}
	return m.bodies[n]
}

// RequestCount returns the number of recorded requests.
func (m *MockHTTPClient) RequestCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

// Reset clears recorded requests and queued responses.
func (m *MockHTTPClient) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests, m.bodies, m.responses = nil, nil, nil
	m.responseIdx = 0
	m.DoFunc = nil
}
