package summarizer

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"hoststatus/internal/domain"
)

type stubBackend struct {
	mu       sync.Mutex
	calls    int
	text     string
	err      error
	lastReq  Request
	blocking bool
}

func (s *stubBackend) Name() string {
	return "stub"
}

func (s *stubBackend) Generate(ctx context.Context, req Request) (string, error) {
	s.mu.Lock()
	s.calls++
	s.lastReq = req
	s.mu.Unlock()

	if s.blocking {
		<-ctx.Done()
		return "", ctx.Err()
	}

	return s.text, s.err
}

func (s *stubBackend) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.calls
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func registryWithStub(stub *stubBackend, factoryCalls *int) *Registry {
	r := NewRegistry()
	r.Register("stub", func(BackendConfig) (Backend, error) {
		if factoryCalls != nil {
			*factoryCalls++
		}
		return stub, nil
	})
	return r
}

func TestFormatSnapshotKeepsInsertionOrder(t *testing.T) {
	var snap domain.Snapshot
	snap.Add("OS", "Linux-6.1")
	snap.Add("CPU Usage", "12.5%")
	snap.Add("Disk", "100 GB")

	got := FormatSnapshot(snap)
	want := "OS: Linux-6.1\nCPU Usage: 12.5%\nDisk: 100 GB"
	if got != want {
		t.Fatalf("unexpected snapshot text:\ngot  %q\nwant %q", got, want)
	}

	if again := FormatSnapshot(snap); again != got {
		t.Fatalf("expected identical snapshots to render identically, got %q vs %q", again, got)
	}
}

func TestInputContentPrefersSnapshot(t *testing.T) {
	var snap domain.Snapshot
	snap.Add("Hostname", "box")

	in := Input{Snapshot: snap, Text: "ignored"}
	if got := in.Content(); got != "Hostname: box" {
		t.Fatalf("unexpected content: %q", got)
	}

	if got := (Input{Text: "free text"}).Content(); got != "free text" {
		t.Fatalf("unexpected content: %q", got)
	}

	if !(Input{Text: "  "}).Empty() {
		t.Fatalf("expected whitespace-only input to be empty")
	}
}

func TestSummarizeUnsupportedProviderMakesNoCall(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	stub := &stubBackend{text: "unused"}
	factoryCalls := 0
	s := New(registryWithStub(stub, &factoryCalls), discardLogger())

	result := s.Summarize(context.Background(), Input{Text: "data"}, BackendConfig{
		Provider:   "claude-local",
		BaseURL:    srv.URL,
		Credential: "key",
	})

	if result.OK() {
		t.Fatalf("expected failure for unknown provider")
	}
	if result.Err.Kind != KindUnsupportedProvider {
		t.Fatalf("unexpected kind: %s", result.Err.Kind)
	}
	if stub.callCount() != 0 || factoryCalls != 0 {
		t.Fatalf("expected no backend to be built or called, got factory=%d generate=%d", factoryCalls, stub.callCount())
	}
	if hits.Load() != 0 {
		t.Fatalf("expected no network call, got %d", hits.Load())
	}
	if !strings.Contains(result.Report(), "unsupported_provider") {
		t.Fatalf("expected failure description in report, got %q", result.Report())
	}
}

func TestSummarizeDelegatesToSelectedBackend(t *testing.T) {
	stub := &stubBackend{text: "Host is healthy."}
	s := New(registryWithStub(stub, nil), discardLogger())

	var snap domain.Snapshot
	snap.Add("CPU Usage", "3%")
	snap.Add("Memory Usage", "40%")

	result := s.Summarize(context.Background(), Input{Snapshot: snap}, BackendConfig{
		Provider:     " STUB ",
		Model:        "tiny",
		Credential:   "secret",
		SystemPrompt: "Summarize.",
	})

	if !result.OK() {
		t.Fatalf("unexpected error: %v", result.Err)
	}
	if result.Report() != "Host is healthy." {
		t.Fatalf("unexpected report: %q", result.Report())
	}
	if result.Provider != "stub" {
		t.Fatalf("unexpected provider: %q", result.Provider)
	}

	req := stub.lastReq
	if req.UserContent != "CPU Usage: 3%\nMemory Usage: 40%" {
		t.Fatalf("unexpected user content: %q", req.UserContent)
	}
	if req.SystemPrompt != "Summarize." || req.Model != "tiny" || req.Credential != "secret" {
		t.Fatalf("unexpected request: %+v", req)
	}
}

func TestSummarizeMaterializesBackendErrors(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantKind Kind
	}{
		{
			"Typed error is kept",
			&Error{Kind: KindQuotaExceeded, Provider: "stub", Detail: "quota"},
			KindQuotaExceeded,
		},
		{
			"Foreign error becomes network failure",
			errors.New("connection reset"),
			KindNetworkFailure,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			stub := &stubBackend{err: test.err}
			s := New(registryWithStub(stub, nil), discardLogger())

			result := s.Summarize(context.Background(), Input{Text: "x"}, BackendConfig{Provider: "stub"})
			if result.OK() {
				t.Fatalf("expected failure")
			}
			if result.Err.Kind != test.wantKind {
				t.Fatalf("expected %s, got %s", test.wantKind, result.Err.Kind)
			}
			if stub.callCount() != 1 {
				t.Fatalf("expected exactly one call, got %d", stub.callCount())
			}
		})
	}
}

func TestSummarizeEnforcesTimeout(t *testing.T) {
	stub := &stubBackend{blocking: true}
	s := New(registryWithStub(stub, nil), discardLogger())

	start := time.Now()
	result := s.Summarize(context.Background(), Input{Text: "x"}, BackendConfig{
		Provider: "stub",
		Timeout:  20 * time.Millisecond,
	})

	if result.OK() {
		t.Fatalf("expected timeout failure")
	}
	if result.Err.Kind != KindNetworkFailure {
		t.Fatalf("expected network failure, got %s", result.Err.Kind)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Fatalf("timeout was not enforced, took %v", elapsed)
	}
}

func TestResultReport(t *testing.T) {
	ok := Result{Provider: "ollama", Text: "fine"}
	if ok.Report() != "fine" {
		t.Fatalf("unexpected report: %q", ok.Report())
	}

	failed := Result{
		Provider: "gemini",
		Err:      &Error{Kind: KindAuthFailure, Detail: "credential is empty"},
	}
	want := "Error generating response with gemini (auth_failure): credential is empty"
	if failed.Report() != want {
		t.Fatalf("unexpected report:\ngot  %q\nwant %q", failed.Report(), want)
	}
}

func TestResultReportIncludesCause(t *testing.T) {
	failed := Result{
		Provider: "ollama",
		Err: &Error{
			Kind:   KindMalformedResponse,
			Detail: "decode chat response",
			Cause:  errors.New("unexpected end of JSON input"),
		},
	}
	want := "Error generating response with ollama (malformed_response): decode chat response: unexpected end of JSON input"
	if failed.Report() != want {
		t.Fatalf("unexpected report:\ngot  %q\nwant %q", failed.Report(), want)
	}

	causeOnly := Result{
		Provider: "ollama",
		Err:      &Error{Kind: KindNetworkFailure, Cause: errors.New("boom")},
	}
	if got := causeOnly.Report(); got != "Error generating response with ollama (network_failure): boom" {
		t.Fatalf("unexpected report: %q", got)
	}
}

func TestSummarizeTransportFailureReportsCause(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	baseURL := srv.URL
	srv.Close()

	s := New(NewRegistry(), discardLogger())
	result := s.Summarize(context.Background(), Input{Text: "data"}, BackendConfig{
		Provider: ProviderOllama,
		BaseURL:  baseURL,
		Timeout:  2 * time.Second,
	})

	if result.OK() || result.Err.Kind != KindNetworkFailure {
		t.Fatalf("expected network failure, got %+v", result)
	}
	if result.Err.Cause == nil {
		t.Fatalf("expected transport cause to be kept")
	}

	report := result.Report()
	if !strings.Contains(report, "request failed") {
		t.Fatalf("expected detail in report, got %q", report)
	}
	if !strings.Contains(report, result.Err.Cause.Error()) {
		t.Fatalf("expected cause %q in report, got %q", result.Err.Cause.Error(), report)
	}
}

func TestRegistryProvidersAreSorted(t *testing.T) {
	got := strings.Join(NewRegistry().Providers(), ",")
	if got != "gemini,ollama,openai" {
		t.Fatalf("unexpected providers: %s", got)
	}
}

func TestStatusErrorClassification(t *testing.T) {
	tests := []struct {
		status int
		want   Kind
	}{
		{http.StatusUnauthorized, KindAuthFailure},
		{http.StatusForbidden, KindAuthFailure},
		{http.StatusTooManyRequests, KindQuotaExceeded},
		{http.StatusInternalServerError, KindNetworkFailure},
		{http.StatusBadRequest, KindNetworkFailure},
	}

	for _, test := range tests {
		t.Run(http.StatusText(test.status), func(t *testing.T) {
			err := statusError("openai", test.status, "body")
			if err.Kind != test.want {
				t.Fatalf("expected %s, got %s", test.want, err.Kind)
			}
			if KindOf(err) != test.want {
				t.Fatalf("KindOf mismatch: %s", KindOf(err))
			}
		})
	}
}
