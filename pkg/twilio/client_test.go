package twilio

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c := NewClient("AC123", "secret", "whatsapp:+14155238886")
	c.baseURL = srv.URL
	c.httpClient = srv.Client()
	return c
}

func TestSend(t *testing.T) {
	var gotPath, gotTo, gotBody string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if user, pass, ok := r.BasicAuth(); !ok || user != "AC123" || pass != "secret" {
			t.Errorf("basic auth = %q/%q, want account credentials", user, pass)
		}
		if err := r.ParseForm(); err != nil {
			t.Fatalf("parse form: %v", err)
		}
		gotTo = r.PostForm.Get("To")
		gotBody = r.PostForm.Get("Body")
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"sid":"SM1"}`))
	})

	if err := c.Send(context.Background(), "whatsapp:+628123456789", "hi"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if gotPath != "/2010-04-01/Accounts/AC123/Messages.json" {
		t.Errorf("path = %q", gotPath)
	}
	if gotTo != "whatsapp:+628123456789" || gotBody != "hi" {
		t.Errorf("to = %q body = %q", gotTo, gotBody)
	}
}

func TestSend_APIError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"code":21211,"message":"invalid 'To' number"}`))
	})
	err := c.Send(context.Background(), "whatsapp:+0", "hi")
	if err == nil {
		t.Fatal("Send: want error")
	}
	if got := err.Error(); got != "twilio: invalid 'To' number" {
		t.Errorf("error = %q", got)
	}
}

func TestSend_Unconfigured(t *testing.T) {
	c := NewClient("", "", "")
	if err := c.Send(context.Background(), "whatsapp:+628123456789", "hi"); err == nil {
		t.Fatal("Send: want error on unconfigured client")
	}
}

func TestCheckCredentials(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   bool
	}{
		{"active account", http.StatusOK, `{"status":"active"}`, true},
		{"suspended account", http.StatusOK, `{"status":"suspended"}`, false},
		{"bad credentials", http.StatusUnauthorized, `{}`, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				w.Write([]byte(tc.body))
			})
			if got := c.CheckCredentials(context.Background()); got != tc.want {
				t.Errorf("CheckCredentials = %v, want %v", got, tc.want)
			}
		})
	}
}
