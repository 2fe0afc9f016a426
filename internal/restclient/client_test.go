package restclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
)

func TestClient_GetJoinsPathAndDecodes(t *testing.T) {
	t.Parallel()

	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"name":"tenant-1"}`))
	}))
	t.Cleanup(srv.Close)

	client, err := New(Options{BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	var out struct {
		Name string `json:"name"`
	}
	if err := client.Get(context.Background(), "/tenant/currentTenant", &out, nil); err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if out.Name != "tenant-1" {
		t.Fatalf("got %q, want %q", out.Name, "tenant-1")
	}
	if gotPath != "/tenant/currentTenant" {
		t.Fatalf("got path %q", gotPath)
	}
}

func TestClient_GetNon2xxReturnsRequestError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"message":"nope"}`))
	}))
	t.Cleanup(srv.Close)

	client, err := New(Options{BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	err = client.Get(context.Background(), "/user/currentUser", nil, nil)
	if err == nil {
		t.Fatal("expected an error")
	}
	reqErr, ok := err.(*RequestError)
	if !ok {
		t.Fatalf("got %T, want *RequestError", err)
	}
	if reqErr.StatusCode != http.StatusUnauthorized {
		t.Fatalf("got status %d, want %d", reqErr.StatusCode, http.StatusUnauthorized)
	}
}

func TestClient_XSRFTokenCapturedFromCookie(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "XSRF-TOKEN", Value: "abc123"})
		w.Write([]byte(`{}`))
	}))
	t.Cleanup(srv.Close)

	client, err := New(Options{BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if err := client.PostForm(context.Background(), "/tenant/oauth", url.Values{"grant_type": {"PASSWORD"}}, nil, nil); err != nil {
		t.Fatalf("PostForm() error = %v", err)
	}

	if got := client.XSRFToken(); got != "abc123" {
		t.Fatalf("XSRFToken() = %q, want %q", got, "abc123")
	}
}
