package summarizer

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

const responsesOK = `{
  "id": "resp_1",
  "object": "response",
  "created_at": 1700000000,
  "status": "completed",
  "model": "gpt-5-mini",
  "output": [
    {
      "type": "message",
      "id": "msg_1",
      "status": "completed",
      "role": "assistant",
      "content": [{"type": "output_text", "text": "  All systems nominal.  ", "annotations": []}]
    }
  ]
}`

func TestOpenAIBackendGenerateSuccess(t *testing.T) {
	t.Parallel()

	var gotAuth string
	var gotBody map[string]any

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/responses" {
			http.Error(w, "unexpected path", http.StatusNotFound)
			return
		}

		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("failed to decode request body: %v", err)
		}

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(responsesOK))
	}))
	defer srv.Close()

	b := NewOpenAIBackend(BackendConfig{BaseURL: srv.URL + "/", Model: "gpt-5-mini"})

	text, err := b.Generate(context.Background(), Request{
		Credential:   "sk-test",
		SystemPrompt: "You are terse.",
		UserContent:  "CPU Usage: 1%",
	})
	if err != nil {
		t.Fatalf("Generate() unexpected error: %v", err)
	}
	if text != "All systems nominal." {
		t.Fatalf("unexpected text: %q", text)
	}
	if gotAuth != "Bearer sk-test" {
		t.Fatalf("unexpected Authorization header: %q", gotAuth)
	}
	if gotBody["instructions"] != "You are terse." {
		t.Fatalf("unexpected instructions: %v", gotBody["instructions"])
	}
	if gotBody["input"] != "CPU Usage: 1%" {
		t.Fatalf("unexpected input: %v", gotBody["input"])
	}
	if gotBody["model"] != "gpt-5-mini" {
		t.Fatalf("unexpected model: %v", gotBody["model"])
	}
}

func TestOpenAIBackendMissingCredentialMakesNoCall(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	b := NewOpenAIBackend(BackendConfig{BaseURL: srv.URL + "/"})

	_, err := b.Generate(context.Background(), Request{UserContent: "x"})
	if KindOf(err) != KindAuthFailure {
		t.Fatalf("expected auth failure, got %v", err)
	}
	if hits.Load() != 0 {
		t.Fatalf("expected no request, got %d", hits.Load())
	}
}

func TestOpenAIBackendStatusClassification(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		status int
		want   Kind
	}{
		{"unauthorized is auth failure", http.StatusUnauthorized, KindAuthFailure},
		{"too many requests is quota", http.StatusTooManyRequests, KindQuotaExceeded},
		{"server error is network failure", http.StatusInternalServerError, KindNetworkFailure},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()

			var hits atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				hits.Add(1)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(test.status)
				_, _ = w.Write([]byte(`{"error":{"message":"nope","type":"invalid_request_error"}}`))
			}))
			defer srv.Close()

			b := NewOpenAIBackend(BackendConfig{BaseURL: srv.URL + "/"})

			_, err := b.Generate(context.Background(), Request{Credential: "sk", UserContent: "x"})

			var genErr *Error
			if !errors.As(err, &genErr) {
				t.Fatalf("expected *Error, got %T (%v)", err, err)
			}
			if genErr.Kind != test.want {
				t.Fatalf("expected %s, got %s", test.want, genErr.Kind)
			}
			if genErr.StatusCode != test.status {
				t.Fatalf("StatusCode = %d, want %d", genErr.StatusCode, test.status)
			}
			if hits.Load() != 1 {
				t.Fatalf("expected exactly one request, got %d", hits.Load())
			}
		})
	}
}

func TestOpenAIBackendEmptyOutputIsMalformed(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"resp_2","object":"response","status":"completed","output":[]}`))
	}))
	defer srv.Close()

	b := NewOpenAIBackend(BackendConfig{BaseURL: srv.URL + "/"})

	_, err := b.Generate(context.Background(), Request{Credential: "sk", UserContent: "x"})
	if KindOf(err) != KindMalformedResponse {
		t.Fatalf("expected malformed response, got %v", err)
	}
}
