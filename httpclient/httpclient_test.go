package httpclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"gotest.tools/v3/assert"
	"gotest.tools/v3/assert/cmp"

	"github.com/esmem/esmem/o11y"
	"github.com/esmem/esmem/testing/httprecorder"
	"github.com/esmem/esmem/testing/testcontext"
)

func TestNewRequest_Formats(t *testing.T) {
	req := NewRequest("GET", "/%s.tar.gz", time.Second, "elasticsearch-7.17.9")
	assert.Check(t, cmp.Equal(req.url, "/elasticsearch-7.17.9.tar.gz"))
	assert.Check(t, cmp.Equal(req.Route, "/%s.tar.gz"))
	assert.Check(t, cmp.Equal(req.Method, "GET"))
	assert.Check(t, cmp.Equal(req.Timeout, time.Second))
}

func TestClient_Call_Decodes(t *testing.T) {
	ctx := testcontext.Background()

	okHandler := func(w http.ResponseWriter, r *http.Request) {
		// language=json
		_, _ = io.WriteString(w, `{"name": "node-1", "cluster_name": "esmem"}`)
	}

	server := httptest.NewServer(http.HandlerFunc(okHandler))
	defer server.Close()
	client := New(Config{
		Name:    "name",
		BaseURL: server.URL,
		Timeout: time.Second,
	})
	req := NewRequest("GET", "/", time.Second)

	m := make(map[string]string)
	req.Decoder = NewJSONDecoder(&m)

	err := client.Call(ctx, req)
	assert.Check(t, err)
	assert.Check(t, cmp.DeepEqual(m, map[string]string{
		"name":         "node-1",
		"cluster_name": "esmem",
	}))
}

func TestClient_Call_DecodesBytesAndWriter(t *testing.T) {
	ctx := testcontext.Background()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "archive-bytes")
	}))
	defer server.Close()
	client := New(Config{Name: "bytes", BaseURL: server.URL})

	var bs []byte
	req := NewRequest("GET", "/", time.Second)
	req.Decoder = NewBytesDecoder(&bs)
	assert.Assert(t, client.Call(ctx, req))
	assert.Check(t, cmp.Equal(string(bs), "archive-bytes"))

	sb := &strings.Builder{}
	req.Decoder = NewWriterDecoder(sb)
	assert.Assert(t, client.Call(ctx, req))
	assert.Check(t, cmp.Equal(sb.String(), "archive-bytes"))
}

func TestClient_Call_Timeouts(t *testing.T) {
	okHandler := func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(200)
	}
	longHandler := func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Minute):
		}
		w.WriteHeader(200)
	}

	tests := []struct {
		name              string
		handler           func(w http.ResponseWriter, r *http.Request)
		totalTimeout      time.Duration
		perRequestTimeout time.Duration
		wantError         error
	}{
		{
			name:      "good response",
			handler:   okHandler,
			wantError: nil,
		},
		{
			name:              "timeout with retries",
			handler:           longHandler,
			totalTimeout:      time.Second,
			perRequestTimeout: time.Millisecond,
			wantError:         context.DeadlineExceeded,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(tt.handler))
			defer server.Close()
			client := New(Config{
				Name:    tt.name,
				BaseURL: server.URL,
				Timeout: tt.totalTimeout,
			})
			req := NewRequest("GET", "/", tt.perRequestTimeout)
			ctx := testcontext.Background()
			err := client.Call(ctx, req)
			if tt.wantError == nil {
				assert.Check(t, err)
			} else {
				assert.Check(t, errors.Is(err, tt.wantError), err.Error())
			}
		})
	}
}

func TestClient_Call_ContextCancel(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Minute):
		}
		w.WriteHeader(200)
	}))
	defer server.Close()

	client := New(Config{
		Name:    "context-cancel",
		BaseURL: server.URL,
		Timeout: 10 * time.Second,
	})
	req := NewRequest("GET", "/", time.Minute)
	ctx, cancel := context.WithCancel(testcontext.Background())
	defer cancel()

	callErr := make(chan error)
	go func() {
		callErr <- client.Call(ctx, req)
	}()

	time.Sleep(time.Millisecond * 10)
	cancel()

	select {
	case <-time.After(time.Second * 5):
		t.Error("context cancellation did not stop the client")
	case err := <-callErr:
		assert.Check(t, errors.Is(err, context.Canceled))
	}
}

func TestClient_Call_SetQuery(t *testing.T) {
	recorder := httprecorder.New()
	server := httptest.NewServer(recorder.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(200)
	})))
	defer server.Close()

	client := New(Config{
		Name:       "query",
		BaseURL:    server.URL,
		AcceptType: JSON,
		Timeout:    10 * time.Second,
	})
	req := NewRequest("GET", "/", time.Second)
	req.Query = url.Values{}
	req.Query.Set("pretty", "true")
	req.Headers = map[string]string{"X-Opaque-Id": "probe"}

	err := client.Call(context.Background(), req)
	assert.Check(t, err)
	last := recorder.LastRequest()
	assert.Assert(t, last != nil)
	assert.Check(t, cmp.Equal(last.URL.RawQuery, "pretty=true"))
	assert.Check(t, cmp.Equal(last.Header.Get("Accept"), JSON))
	assert.Check(t, cmp.Equal(last.Header.Get("X-Opaque-Id"), "probe"))
}

func TestClient_Call_RetriesServerErrors(t *testing.T) {
	recorder := httprecorder.New()
	server := httptest.NewServer(recorder.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if recorder.Len() < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})))
	defer server.Close()

	client := New(Config{
		Name:    "retries",
		BaseURL: server.URL,
		Timeout: 10 * time.Second,
	})
	err := client.Call(testcontext.Background(), NewRequest("GET", "/", time.Second))
	assert.Check(t, err)
	assert.Check(t, cmp.Equal(recorder.Len(), 3))
}

func TestClient_Call_DisableRetries(t *testing.T) {
	recorder := httprecorder.New()
	server := httptest.NewServer(recorder.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})))
	defer server.Close()

	client := New(Config{
		Name:           "no-retries",
		BaseURL:        server.URL,
		Timeout:        10 * time.Second,
		DisableRetries: true,
	})
	err := client.Call(testcontext.Background(), NewRequest("GET", "/", time.Second))
	assert.Check(t, HasStatusCode(err, http.StatusServiceUnavailable))
	assert.Check(t, cmp.Equal(recorder.Len(), 1))
}

func TestClient_Call_NoContent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	client := New(Config{Name: "no-content", BaseURL: server.URL})
	err := client.Call(testcontext.Background(), NewRequest("GET", "/", time.Second))
	assert.Check(t, IsNoContent(err))
	assert.Check(t, o11y.IsWarning(err))
}

func TestClient_Call_NotFoundIsPermanent(t *testing.T) {
	recorder := httprecorder.New()
	server := httptest.NewServer(recorder.Handler(http.NotFoundHandler()))
	defer server.Close()

	client := New(Config{Name: "not-found", BaseURL: server.URL, Timeout: 10 * time.Second})
	err := client.Call(testcontext.Background(), NewRequest("GET", "/missing", time.Second))
	assert.Check(t, IsRequestProblem(err))
	assert.Check(t, cmp.ErrorContains(err, "the response from GET /missing was 404 (Not Found) (1 attempts)"))
	assert.Check(t, cmp.Equal(recorder.Len(), 1))
}

func TestHTTPError_As(t *testing.T) {
	for _, code := range []int{400, 404, 500, 503} {
		t.Run(fmt.Sprintf("code-%d", code), func(t *testing.T) {
			err := &HTTPError{code: code}
			wErr := fmt.Errorf("foo: %w", err)

			ne := &HTTPError{}
			assert.Check(t, errors.As(wErr, &ne))
			assert.Check(t, cmp.Equal(ne.Code(), code))

			// no two instances are equivalent
			assert.Check(t, !errors.Is(err, &HTTPError{code: code}))
		})
	}
}

func TestHasStatusCode(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		codes []int
		want  bool
	}{
		{
			name:  "With matching code",
			err:   &HTTPError{code: 400},
			codes: []int{400, 500},
			want:  true,
		},
		{
			name:  "With different code",
			err:   &HTTPError{code: 200},
			codes: []int{400, 500},
			want:  false,
		},
		{
			name:  "Empty error",
			err:   &HTTPError{},
			codes: []int{400},
			want:  false,
		},
		{
			name:  "Nil error",
			err:   nil,
			codes: []int{400},
			want:  false,
		},
		{
			name:  "Other kind of error",
			err:   errors.New("some other error"),
			codes: []int{400},
			want:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Check(t, cmp.Equal(HasStatusCode(tt.err, tt.codes...), tt.want))
		})
	}
}

func TestIsRequestProblem(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "With problem code", err: &HTTPError{code: 400}, want: true},
		{name: "With non-request error code", err: &HTTPError{code: 500}, want: false},
		{name: "With good code", err: &HTTPError{code: 200}, want: false},
		{name: "Empty error", err: &HTTPError{}, want: false},
		{name: "Nil error", err: nil, want: false},
		{name: "Other kind of error", err: errors.New("some other error"), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Check(t, cmp.Equal(IsRequestProblem(tt.err), tt.want))
		})
	}
}
