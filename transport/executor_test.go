package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goliatone/go-integrations/core"
)

type recordingSleeper struct {
	mu    sync.Mutex
	waits []time.Duration
}

func (s *recordingSleeper) Sleep(_ context.Context, d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.waits = append(s.waits, d)
	return nil
}

type countingAuth struct {
	calls atomic.Int32
	ok    bool
	err   error
}

func (a *countingAuth) AuthHeader(context.Context) (string, string, bool, error) {
	n := a.calls.Add(1)
	return "Authorization", fmt.Sprintf("Bearer token-%d", n), a.ok, a.err
}

type denyLimiter struct{}

func (denyLimiter) Wait(context.Context) error { return errors.New("burst exceeded") }

func newTestExecutor(server *httptest.Server, sleeper *recordingSleeper) *Executor {
	return NewExecutor(core.TransportConfig{TimeoutMS: 2000, Retries: 3, RetryDelayMS: 1000},
		WithHTTPClient(server.Client()),
		WithSleeper(sleeper.Sleep),
	)
}

type loadPayload struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

func TestExecutor_NotFoundAttemptedOnce(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"message":"Load not found"}`))
	}))
	defer server.Close()
	sleeper := &recordingSleeper{}

	res := Request[loadPayload](context.Background(), newTestExecutor(server, sleeper), server.URL+"/loads/1", RequestOptions{})
	if res.Success {
		t.Fatalf("expected failure")
	}
	if hits.Load() != 1 || res.Attempts != 1 {
		t.Fatalf("expected a single attempt, got hits=%d attempts=%d", hits.Load(), res.Attempts)
	}
	if res.Error.Code != "HTTP_404" || res.Error.Message != "Load not found" || res.Error.Retryable {
		t.Fatalf("unexpected error %+v", res.Error)
	}
	if len(sleeper.waits) != 0 {
		t.Fatalf("expected no waits, got %v", sleeper.waits)
	}
}

func TestExecutor_RetriesServerErrorsWithLinearBackoff(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if hits.Add(1) <= 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"id":"ld_1","status":"booked"}`))
	}))
	defer server.Close()
	sleeper := &recordingSleeper{}
	auth := &countingAuth{ok: true}

	res := Request[loadPayload](context.Background(), newTestExecutor(server, sleeper), server.URL, RequestOptions{Auth: auth})
	if !res.Success {
		t.Fatalf("expected success, got %+v", res.Error)
	}
	if res.Data.ID != "ld_1" || res.Data.Status != "booked" {
		t.Fatalf("unexpected data %+v", res.Data)
	}
	if res.Attempts != 4 {
		t.Fatalf("expected 4 attempts, got %d", res.Attempts)
	}
	want := []time.Duration{time.Second, 2 * time.Second, 3 * time.Second}
	if len(sleeper.waits) != len(want) {
		t.Fatalf("expected waits %v, got %v", want, sleeper.waits)
	}
	for i := range want {
		if sleeper.waits[i] != want[i] {
			t.Fatalf("expected waits %v, got %v", want, sleeper.waits)
		}
	}
	if auth.calls.Load() != 4 {
		t.Fatalf("expected auth header per attempt, got %d", auth.calls.Load())
	}
}

func TestExecutor_GivesUpAfterRetries(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":"slow down"}`))
	}))
	defer server.Close()

	res := Request[loadPayload](context.Background(), newTestExecutor(server, &recordingSleeper{}), server.URL,
		RequestOptions{Retries: 2, RetryDelay: 10 * time.Millisecond})
	if res.Success || res.Error.Code != "HTTP_429" || res.Error.Message != "slow down" {
		t.Fatalf("unexpected result %+v", res.Error)
	}
	if hits.Load() != 3 || res.Attempts != 3 {
		t.Fatalf("expected 3 attempts, got hits=%d attempts=%d", hits.Load(), res.Attempts)
	}
}

func TestExecutor_NegativeRetriesDisablesRetry(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	res := Request[loadPayload](context.Background(), newTestExecutor(server, &recordingSleeper{}), server.URL, RequestOptions{Retries: -1})
	if res.Success || hits.Load() != 1 {
		t.Fatalf("expected single failed attempt, got hits=%d", hits.Load())
	}
	if res.Error.Message != "Bad Gateway" {
		t.Fatalf("expected status text fallback, got %q", res.Error.Message)
	}
}

func TestExecutor_TimeoutIsRetried(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			select {
			case <-r.Context().Done():
			case <-time.After(time.Second):
			}
			return
		}
		_, _ = w.Write([]byte(`{"id":"ld_2"}`))
	}))
	defer server.Close()

	res := Request[loadPayload](context.Background(), newTestExecutor(server, &recordingSleeper{}), server.URL,
		RequestOptions{Timeout: 50 * time.Millisecond})
	if !res.Success || res.Data.ID != "ld_2" {
		t.Fatalf("expected retry after timeout to succeed, got %+v", res.Error)
	}
	if res.Attempts != 2 {
		t.Fatalf("expected 2 attempts, got %d", res.Attempts)
	}
}

func TestExecutor_NetworkErrorIsRetried(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	endpoint := server.URL
	client := server.Client()
	server.Close()

	sleeper := &recordingSleeper{}
	exec := NewExecutor(core.TransportConfig{Retries: 1, RetryDelayMS: 5}, WithHTTPClient(client), WithSleeper(sleeper.Sleep))
	res := exec.Do(context.Background(), endpoint, RequestOptions{})
	if res.Success || res.Error.Code != CodeNetworkError || !res.Error.Retryable {
		t.Fatalf("expected network error, got %+v", res.Error)
	}
	if res.Attempts != 2 || len(sleeper.waits) != 1 {
		t.Fatalf("expected one retry, got attempts=%d waits=%v", res.Attempts, sleeper.waits)
	}
}

func TestExecutor_MissingCredentialsNotRetried(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { hits.Add(1) }))
	defer server.Close()

	res := newTestExecutor(server, &recordingSleeper{}).Do(context.Background(), server.URL, RequestOptions{Auth: &countingAuth{}})
	if res.Success || res.Error.Code != CodeAuthUnavailable {
		t.Fatalf("expected auth unavailable, got %+v", res.Error)
	}
	if hits.Load() != 0 {
		t.Fatalf("expected no request without credentials")
	}
}

func TestExecutor_LocalLimiterFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	defer server.Close()

	res := newTestExecutor(server, &recordingSleeper{}).Do(context.Background(), server.URL, RequestOptions{Limiter: denyLimiter{}})
	if res.Success || res.Error.Code != CodeRateLimitedLocal {
		t.Fatalf("expected local rate limit failure, got %+v", res.Error)
	}
}

func TestExecutor_DecodeErrorNotRetried(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte(`<html>oops</html>`))
	}))
	defer server.Close()

	res := Request[loadPayload](context.Background(), newTestExecutor(server, &recordingSleeper{}), server.URL, RequestOptions{})
	if res.Success || res.Error.Code != CodeDecodeError || hits.Load() != 1 {
		t.Fatalf("expected decode error after one attempt, got %+v hits=%d", res.Error, hits.Load())
	}
}

func TestExecutor_JSONBodyAndMethod(t *testing.T) {
	var gotMethod, gotType, gotBody string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod, gotType = r.Method, r.Header.Get("Content-Type")
		buf := make([]byte, r.ContentLength)
		_, _ = r.Body.Read(buf)
		gotBody = string(buf)
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	res := newTestExecutor(server, &recordingSleeper{}).Do(context.Background(), server.URL, RequestOptions{
		Method: http.MethodPost,
		Body:   map[string]string{"invoice": "INV-1"},
	})
	if !res.Success || res.StatusCode != http.StatusCreated {
		t.Fatalf("expected created, got %+v", res)
	}
	if gotMethod != http.MethodPost || gotType != "application/json" || gotBody != `{"invoice":"INV-1"}` {
		t.Fatalf("unexpected request method=%q type=%q body=%q", gotMethod, gotType, gotBody)
	}
}

func TestExtractErrorMessage(t *testing.T) {
	cases := []struct {
		name string
		body string
		want string
	}{
		{"message", `{"message":"bad load"}`, "bad load"},
		{"error string", `{"error":"invalid_grant"}`, "invalid_grant"},
		{"error object", `{"error":{"message":"quota"}}`, "quota"},
		{"description", `{"error_description":"expired"}`, "expired"},
		{"errors list", `{"errors":[{"message":"first"}]}`, "first"},
		{"non json", `<html/>`, "Internal Server Error"},
		{"wrong types", `{"message":42,"error":[1]}`, "Internal Server Error"},
		{"array body", `[1,2]`, "Internal Server Error"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ExtractErrorMessage([]byte(tc.body), 500, ""); got != tc.want {
				t.Fatalf("expected %q, got %q", tc.want, got)
			}
		})
	}
	if got := ExtractErrorMessage(nil, 799, ""); got != "HTTP 799" {
		t.Fatalf("expected numeric fallback, got %q", got)
	}
}

func TestRequestError_AsError(t *testing.T) {
	err := (&RequestError{Code: "HTTP_401", Status: 401, Message: "unauthorized"}).AsError()
	if err.TextCode != "HTTP_401" || err.Code != 401 {
		t.Fatalf("unexpected envelope %+v", err)
	}
	if err := (&RequestError{Code: CodeTimeout, Message: "timed out"}).AsError(); err.Code != http.StatusBadGateway {
		t.Fatalf("expected bad gateway for timeout, got %d", err.Code)
	}
}

type scriptedDoer struct {
	mu        sync.Mutex
	attempts  []AttemptRequest
	responses []Response
}

func (d *scriptedDoer) Do(_ context.Context, req AttemptRequest) (Response, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.attempts = append(d.attempts, req)
	res := d.responses[0]
	if len(d.responses) > 1 {
		d.responses = d.responses[1:]
	}
	return res, nil
}

func TestExecutor_CustomDoerReceivesEachAttempt(t *testing.T) {
	doer := &scriptedDoer{responses: []Response{
		{StatusCode: http.StatusBadGateway, StatusText: "Bad Gateway"},
		{StatusCode: http.StatusOK, Body: []byte(`{"id":"L-7","status":"covered"}`)},
	}}
	sleeper := &recordingSleeper{}
	exec := NewExecutor(core.TransportConfig{TimeoutMS: 1500, Retries: 2, RetryDelayMS: 10},
		WithDoer(doer),
		WithSleeper(sleeper.Sleep),
	)
	auth := &countingAuth{ok: true}

	res := Request[loadPayload](context.Background(), exec, "https://tms.example.com/loads/L-7", RequestOptions{
		Method: http.MethodGet,
		Auth:   auth,
	})
	if !res.Success || res.Data.Status != "covered" || res.Attempts != 2 {
		t.Fatalf("unexpected result %+v", res)
	}
	if len(doer.attempts) != 2 {
		t.Fatalf("expected 2 attempts, got %d", len(doer.attempts))
	}
	first, second := doer.attempts[0], doer.attempts[1]
	if first.URL != "https://tms.example.com/loads/L-7" || first.Timeout != 1500*time.Millisecond {
		t.Fatalf("unexpected attempt %+v", first)
	}
	if first.Headers["Authorization"] == second.Headers["Authorization"] {
		t.Fatalf("expected auth header to be resolved per attempt, got %q twice", first.Headers["Authorization"])
	}
}
