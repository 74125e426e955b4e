package httprecorder

import (
	"bytes"
	"io"
	"net/http"
	"net/url"
	"sync"
)

type Request struct {
	Method string
	URL    url.URL
	Header http.Header
	Body   []byte
}

// RequestRecorder keeps a copy of every request passed to Record.
type RequestRecorder struct {
	mu       sync.RWMutex
	requests []Request
}

func New() *RequestRecorder {
	return &RequestRecorder{}
}

// Record stores a copy of the incoming request ensuring the body can still
// be consumed by the caller
func (r *RequestRecorder) Record(request *http.Request) (err error) {
	req := Request{
		Method: request.Method,
		URL:    *request.URL,
		Header: request.Header.Clone(),
	}

	if request.Body != nil {
		req.Body, err = io.ReadAll(request.Body)
		if err != nil {
			return err
		}
		request.Body = io.NopCloser(bytes.NewReader(req.Body))
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.requests = append(r.requests, req)

	return nil
}

// Handler wraps next so every request is recorded before it is served.
func (r *RequestRecorder) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		_ = r.Record(req)
		next.ServeHTTP(w, req)
	})
}

func (r *RequestRecorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requests = nil
}

func (r *RequestRecorder) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.requests)
}

func (r *RequestRecorder) AllRequests() []Request {
	r.mu.RLock()
	defer r.mu.RUnlock()
	requests := make([]Request, len(r.requests))
	copy(requests, r.requests)
	return requests
}

func (r *RequestRecorder) LastRequest() *Request {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(r.requests) == 0 {
		return nil
	}
	req := r.requests[len(r.requests)-1]
	return &req
}

// FindRequests returns the recorded requests with the given method and path.
func (r *RequestRecorder) FindRequests(method, path string) []Request {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var requests []Request
	for _, req := range r.requests {
		if req.Method == method && req.URL.Path == path {
			requests = append(requests, req)
		}
	}
	return requests
}
