package orchestration

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bizmatters/agent-builder/fluid-api/internal/models"
)

type recordedAttempt struct {
	method string
	status int
}

type fakeRecorder struct {
	started   int
	succeeded int
	failed    []string
	attempts  []recordedAttempt
}

func (f *fakeRecorder) RecordTaskStarted(context.Context) { f.started++ }

func (f *fakeRecorder) RecordTaskSucceeded(context.Context, time.Duration) { f.succeeded++ }

func (f *fakeRecorder) RecordTaskFailed(_ context.Context, code string, _ time.Duration) {
	f.failed = append(f.failed, code)
}

func (f *fakeRecorder) RecordHTTPAttempt(_ context.Context, method string, status int) {
	f.attempts = append(f.attempts, recordedAttempt{method: method, status: status})
}

func newTestExecutor(recorder MetricsRecorder) *HTTPExecutor {
	return NewHTTPExecutor(ExecutorConfig{
		Timeout: 2 * time.Second,
		Retry:   fastPolicy(),
		Metrics: recorder,
	}, nil)
}

func getSpec(url string) *models.RequestSpec {
	return &models.RequestSpec{
		Method:  "GET",
		URL:     url,
		Headers: map[string]string{},
		Body:    map[string]any{},
	}
}

func TestHTTPExecutor_Execute_JSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/fact", r.URL.Path)

		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.Header().Set("X-Rate-Limit", "100")
		_, _ = w.Write([]byte(`{"fact": "Cats sleep a lot.", "length": 17}`))
	}))
	defer server.Close()

	spec := getSpec(server.URL + "/fact")
	envelope, err := newTestExecutor(nil).Execute(context.Background(), spec, false)

	require.NoError(t, err)
	assert.NotEmpty(t, envelope.ID)
	assert.Equal(t, *spec, envelope.Request)
	assert.Equal(t, http.StatusOK, envelope.StatusCode)
	assert.GreaterOrEqual(t, envelope.ElapsedTime, 0.0)
	assert.Equal(t, map[string]any{
		"fact":   "Cats sleep a lot.",
		"length": json.Number("17"),
	}, envelope.Response)

	assert.Equal(t, "application/json", envelope.Metadata[models.MetadataContentType])
	assert.Equal(t, int64(len(`{"fact": "Cats sleep a lot.", "length": 17}`)), envelope.Metadata[models.MetadataContentLength])
	headers, ok := envelope.Metadata[models.MetadataHeaders].(map[string]string)
	require.True(t, ok)
	assert.Equal(t, "100", headers["X-Rate-Limit"])
}

func TestHTTPExecutor_Execute_SendsHeadersAndBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.Equal(t, "api.internal", r.Host)

		var payload map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, map[string]any{"name": "widget"}, payload)

		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	spec := &models.RequestSpec{
		Method: "POST",
		URL:    server.URL + "/items",
		Headers: map[string]string{
			"Authorization": "Bearer secret",
			"Host":          "api.internal",
		},
		Body: map[string]any{"name": "widget"},
	}

	envelope, err := newTestExecutor(nil).Execute(context.Background(), spec, false)

	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, envelope.StatusCode)
	assert.Nil(t, envelope.Response)
	assert.Nil(t, envelope.Metadata[models.MetadataContentType])
}

func TestHTTPExecutor_Execute_EmptyBodyNotSent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		payload, err := io.ReadAll(r.Body)
		assert.NoError(t, err)
		assert.Empty(t, payload)
		assert.Empty(t, r.Header.Get("Content-Type"))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	spec := getSpec(server.URL)
	spec.Method = "DELETE"

	envelope, err := newTestExecutor(nil).Execute(context.Background(), spec, false)

	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, envelope.StatusCode)
}

func TestHTTPExecutor_Execute_Raw(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte("not json at all"))
	}))
	defer server.Close()

	envelope, err := newTestExecutor(nil).Execute(context.Background(), getSpec(server.URL), true)

	require.NoError(t, err)
	assert.Equal(t, "not json at all", envelope.Response)
	assert.Equal(t, "text/plain", envelope.Metadata[models.MetadataContentType])
}

func TestHTTPExecutor_Execute_RetriesUntilSuccess(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(`{"ok": true}`))
	}))
	defer server.Close()

	recorder := &fakeRecorder{}
	envelope, err := newTestExecutor(recorder).Execute(context.Background(), getSpec(server.URL), false)

	require.NoError(t, err)
	assert.Equal(t, map[string]any{"ok": true}, envelope.Response)
	assert.Equal(t, int32(3), atomic.LoadInt32(&hits))
	assert.Equal(t, []recordedAttempt{
		{method: "GET", status: 500},
		{method: "GET", status: 500},
		{method: "GET", status: 200},
	}, recorder.attempts)
}

func TestHTTPExecutor_Execute_Failures(t *testing.T) {
	tests := []struct {
		name           string
		handler        http.HandlerFunc
		expectedStatus int
	}{
		{
			name: "persistent server error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = w.Write([]byte("maintenance"))
			},
			expectedStatus: http.StatusServiceUnavailable,
		},
		{
			name: "client error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusNotFound)
			},
			expectedStatus: http.StatusNotFound,
		},
		{
			name: "undecodable body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte("<html>oops</html>"))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var hits int32
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				atomic.AddInt32(&hits, 1)
				tt.handler(w, r)
			}))
			defer server.Close()

			envelope, err := newTestExecutor(nil).Execute(context.Background(), getSpec(server.URL), false)

			assert.Nil(t, envelope)
			require.ErrorIs(t, err, ErrTransportFailure)

			var failure *TransportFailureError
			require.True(t, errors.As(err, &failure))
			assert.Equal(t, 3, failure.Attempts)
			assert.Equal(t, tt.expectedStatus, failure.StatusCode)
			assert.Equal(t, int32(3), atomic.LoadInt32(&hits))
		})
	}
}

func TestHTTPExecutor_Execute_Unreachable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	recorder := &fakeRecorder{}
	envelope, err := newTestExecutor(recorder).Execute(context.Background(), getSpec(url), false)

	assert.Nil(t, envelope)
	var failure *TransportFailureError
	require.True(t, errors.As(err, &failure))
	assert.Equal(t, 3, failure.Attempts)
	assert.Zero(t, failure.StatusCode)
	assert.Len(t, recorder.attempts, 3)
}

func TestHTTPExecutor_Execute_InvalidRequestNotRetried(t *testing.T) {
	recorder := &fakeRecorder{}
	spec := getSpec("http://example.com")
	spec.Method = "BAD METHOD"

	_, err := newTestExecutor(recorder).Execute(context.Background(), spec, false)

	var failure *TransportFailureError
	require.True(t, errors.As(err, &failure))
	assert.Equal(t, 1, failure.Attempts)
	assert.Len(t, recorder.attempts, 1)
}
