package backend

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
)

func TestRequestRTCToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/rtc/token" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var req map[string]string
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req["channel_id"] != "c1" || req["user_id"] != "alice" {
			t.Errorf("unexpected request: %v", req)
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"token": "tok-1"})
	}))
	defer srv.Close()

	logger := zerolog.Nop()
	c := New(srv.URL, &logger)

	token, err := c.RequestRTCToken(context.Background(), "app1", "c1", "alice")
	if err != nil {
		t.Fatalf("request token: %v", err)
	}
	if token != "tok-1" {
		t.Fatalf("unexpected token %q", token)
	}
}

func TestAuthTokenIsSent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer session-token" {
			t.Errorf("unexpected authorization header %q", got)
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"token": "tok-1"})
	}))
	defer srv.Close()

	logger := zerolog.Nop()
	c := New(srv.URL, &logger)
	c.SetAuthToken("session-token")

	if _, err := c.RequestRTCToken(context.Background(), "app1", "c1", "alice"); err != nil {
		t.Fatalf("request token: %v", err)
	}
}

func TestRequestRTCTokenBackendError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	logger := zerolog.Nop()
	c := New(srv.URL, &logger)

	if _, err := c.RequestRTCToken(context.Background(), "app1", "c1", "alice"); err == nil {
		t.Fatal("expected error on non-200 response")
	}
}

func TestRequestUserMap(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"users": map[string]int{"alice": 1001}})
	}))
	defer srv.Close()

	logger := zerolog.Nop()
	c := New(srv.URL, &logger)

	users, err := c.RequestUserMap(context.Background(), "app1", "c1", "alice")
	if err != nil {
		t.Fatalf("request user map: %v", err)
	}
	if users["alice"] != 1001 {
		t.Fatalf("unexpected mapping: %v", users)
	}
}
