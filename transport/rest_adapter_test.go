package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	goerrors "github.com/goliatone/go-errors"
)

func TestRESTAdapter_ResponseLimitReturnsRichError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("12345"))
	}))
	defer server.Close()

	adapter := NewRESTAdapter(server.Client())
	adapter.MaxResponseBodyBytes = 4

	_, err := adapter.Do(context.Background(), AttemptRequest{Method: http.MethodGet, URL: server.URL})
	if err == nil {
		t.Fatalf("expected response body limit error")
	}

	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		t.Fatalf("expected go-errors envelope, got %T", err)
	}
	if rich.Category != goerrors.CategoryExternal {
		t.Fatalf("expected external category, got %q", rich.Category)
	}
	if rich.TextCode != CodeNetworkError {
		t.Fatalf("expected %q text code, got %q", CodeNetworkError, rich.TextCode)
	}
	if rich.Code != http.StatusBadGateway {
		t.Fatalf("expected %d code, got %d", http.StatusBadGateway, rich.Code)
	}
}

func TestRESTAdapter_RelativeURLIsBadInput(t *testing.T) {
	_, err := NewRESTAdapter(nil).Do(context.Background(), AttemptRequest{URL: "/loads"})
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) || rich.Category != goerrors.CategoryBadInput {
		t.Fatalf("expected bad input error, got %v", err)
	}
	if rich.TextCode != CodeInvalidRequest {
		t.Fatalf("expected %q text code, got %q", CodeInvalidRequest, rich.TextCode)
	}
}

func TestRESTAdapter_MergesHeadersAndQuery(t *testing.T) {
	var gotQuery, gotHeader, gotAccept string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("page")
		gotHeader = r.Header.Get("X-Api-Key")
		gotAccept = r.Header.Get("Accept")
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	res, err := NewRESTAdapter(server.Client()).Do(context.Background(), AttemptRequest{
		URL:     server.URL + "/carriers?limit=10",
		Headers: map[string]string{"X-Api-Key": "k1"},
		Query:   map[string]string{"page": "2"},
	})
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	if res.StatusCode != http.StatusNoContent || res.StatusText != "No Content" {
		t.Fatalf("unexpected response %d %q", res.StatusCode, res.StatusText)
	}
	if gotQuery != "2" || gotHeader != "k1" || gotAccept != "application/json" {
		t.Fatalf("unexpected request query=%q key=%q accept=%q", gotQuery, gotHeader, gotAccept)
	}
}

func TestStatusText_NeverEmpty(t *testing.T) {
	if got := statusText(599, ""); got != "HTTP 599" {
		t.Fatalf("expected numeric fallback, got %q", got)
	}
	if got := statusText(404, "404 Not Found"); got != "Not Found" {
		t.Fatalf("expected reason phrase, got %q", got)
	}
}
