package openai

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestListModels(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/models" {
			t.Errorf("path = %q, want /models", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Errorf("authorization = %q", got)
		}
		w.Write([]byte(`{"data":[{"id":"gpt-4o-mini"},{"id":"gpt-4o"}]}`))
	}))
	defer srv.Close()

	c := NewClient("sk-test", srv.URL)
	n, err := c.ListModels(context.Background())
	if err != nil {
		t.Fatalf("ListModels: %v", err)
	}
	if n != 2 {
		t.Errorf("models = %d, want 2", n)
	}
}

func TestListModels_Unauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	if _, err := NewClient("sk-bad", srv.URL).ListModels(context.Background()); err == nil {
		t.Fatal("ListModels: want error on 401")
	}
}

func TestListModels_NoKey(t *testing.T) {
	if _, err := NewClient("", "").ListModels(context.Background()); err == nil {
		t.Fatal("ListModels: want error without an api key")
	}
}
