package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewOpenAIClient(t *testing.T) {
	client := NewOpenAIClient(Config{APIKey: "sk-test"}, nil)

	assert.NotNil(t, client.httpClient)
	assert.NotNil(t, client.tracer)
	assert.NotNil(t, client.breaker)
	assert.Equal(t, DefaultOpenAIBaseURL, client.baseURL)
	assert.Equal(t, DefaultModel, client.Model())
	assert.Equal(t, DefaultTimeout, client.httpClient.Timeout)

	client = NewOpenAIClient(Config{BaseURL: "http://localhost:11434/v1/", Model: "llama3"}, nil)
	assert.Equal(t, "http://localhost:11434/v1", client.baseURL)
	assert.Equal(t, "llama3", client.Model())
}

func TestOpenAIClient_Generate(t *testing.T) {
	tests := []struct {
		name           string
		serverResponse func(w http.ResponseWriter, r *http.Request)
		expectedError  string
		expectedResult string
	}{
		{
			name: "successful_completion",
			serverResponse: func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "POST", r.Method)
				assert.Equal(t, "/chat/completions", r.URL.Path)
				assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
				assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

				var req chatCompletionRequest
				err := json.NewDecoder(r.Body).Decode(&req)
				assert.NoError(t, err)
				assert.Equal(t, "gpt-4.1", req.Model)
				assert.Equal(t, []chatMessage{
					{Role: "system", Content: "system prompt"},
					{Role: "user", Content: "get a cat fact"},
				}, req.Messages)

				w.Header().Set("Content-Type", "application/json")
				w.Write([]byte(`{
					"id": "chatcmpl-1",
					"choices": [
						{"index": 0, "message": {"role": "assistant", "content": "{\"method\": \"GET\"}"}},
						{"index": 1, "message": {"role": "assistant", "content": "ignored"}}
					],
					"usage": {"total_tokens": 42}
				}`))
			},
			expectedResult: `{"method": "GET"}`,
		},
		{
			name: "server_error_with_message",
			serverResponse: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusTooManyRequests)
				w.Write([]byte(`{"error": {"message": "Rate limit reached"}}`))
			},
			expectedError: "openai returned status 429: Rate limit reached",
		},
		{
			name: "server_error_plain",
			serverResponse: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
				w.Write([]byte("Internal server error"))
			},
			expectedError: "openai returned status 500: Internal server error",
		},
		{
			name: "invalid_json_response",
			serverResponse: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte("invalid json"))
			},
			expectedError: "failed to decode response",
		},
		{
			name: "no_choices",
			serverResponse: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`{"choices": []}`))
			},
			expectedError: ErrEmptyCompletion.Error(),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(tt.serverResponse))
			defer server.Close()

			client := NewOpenAIClient(Config{APIKey: "sk-test", BaseURL: server.URL}, nil)

			result, err := client.Generate(context.Background(), "system prompt", "get a cat fact")

			if tt.expectedError != "" {
				assert.Error(t, err)
				assert.Contains(t, err.Error(), tt.expectedError)
			} else {
				assert.NoError(t, err)
				assert.Equal(t, tt.expectedResult, result)
			}
		})
	}
}

func TestOpenAIClient_CircuitBreaker(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := NewOpenAIClient(Config{BaseURL: server.URL}, nil)

	for i := 0; i < 6; i++ {
		_, err := client.Generate(context.Background(), "system", "task")
		require.Error(t, err)
	}
	assert.Equal(t, 6, calls)

	_, err := client.Generate(context.Background(), "system", "task")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "circuit breaker is open")
	assert.Equal(t, 6, calls)
	assert.False(t, client.IsHealthy(context.Background()))
}

func TestOpenAIClient_IsHealthy(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		expected bool
	}{
		{name: "healthy", status: http.StatusOK, expected: true},
		{name: "unauthorized", status: http.StatusUnauthorized, expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/models", r.URL.Path)
				w.WriteHeader(tt.status)
			}))
			defer server.Close()

			client := NewOpenAIClient(Config{BaseURL: server.URL}, nil)
			assert.Equal(t, tt.expected, client.IsHealthy(context.Background()))
		})
	}
}

func TestNew(t *testing.T) {
	generator, err := New(context.Background(), Config{}, nil)
	require.NoError(t, err)
	assert.IsType(t, &OpenAIClient{}, generator)

	generator, err = New(context.Background(), Config{Provider: "Gemini", APIKey: "test-key"}, nil)
	require.NoError(t, err)
	assert.IsType(t, &GeminiClient{}, generator)
	assert.Equal(t, DefaultGeminiModel, generator.Model())

	_, err = New(context.Background(), Config{Provider: "gemini"}, nil)
	assert.Error(t, err)

	_, err = New(context.Background(), Config{Provider: "anthropic"}, nil)
	assert.Error(t, err)
}
