package portal

import (
	"compress/gzip"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"
)

func TestListJobs(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/jobs" {
			http.NotFound(w, r)
			return
		}
		if r.Header.Get("Authorization") != "" {
			t.Errorf("catalog request must not carry a token")
		}
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Content-Encoding", "gzip")
		gz := gzip.NewWriter(w)
		defer gz.Close()
		_, _ = gz.Write([]byte(`[
			{"id": 1, "title": "Backend Engineer", "company": "DataFlow", "description": "Build APIs", "requirements": "Go"},
			{"id": "abc", "title": "Data Scientist", "company": "VectorLabs", "description": "Models"}
		]`))
	}))
	defer srv.Close()

	client := New(zap.NewNop(), srv.URL)

	jobs, err := client.ListJobs(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if jobs.Len() != 2 {
		t.Fatalf("expected 2 jobs, got %d", jobs.Len())
	}

	first := jobs.FindByID("1")
	if first == nil {
		t.Fatalf("expected numeric id to be normalised to \"1\": %+v", jobs.Items[0])
	}
	if first.Title != "Backend Engineer" || first.Company != "DataFlow" || first.Requirements != "Go" {
		t.Fatalf("unexpected job: %+v", first)
	}

	if jobs.FindByID("abc") == nil {
		t.Fatalf("expected string id to be kept")
	}
	if jobs.FindByID("missing") != nil {
		t.Fatalf("did not expect unknown id to be found")
	}
}

func TestMe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer secret" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"detail": "Invalid token"}`))
			return
		}
		_, _ = w.Write([]byte(`{"id": 42, "username": "alice", "email": "alice@example.com", "role": "student"}`))
	}))
	defer srv.Close()

	client := New(nil, srv.URL+"/")

	user, err := client.Me(context.Background(), "secret")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if user.ID != "42" || user.Username != "alice" || user.Role != "student" {
		t.Fatalf("unexpected user: %+v", user)
	}

	_, err = client.Me(context.Background(), "wrong")
	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("expected StatusError, got %v", err)
	}
	if statusErr.Code != http.StatusUnauthorized || statusErr.Detail != "Invalid token" {
		t.Fatalf("unexpected status error: %+v", statusErr)
	}

	if _, err := client.Me(context.Background(), ""); err == nil {
		t.Fatalf("expected error for empty token")
	}
}

func TestMatchURL(t *testing.T) {
	tests := []struct {
		base string
		want string
	}{
		{base: "http://localhost:8000", want: "ws://localhost:8000/ws/match"},
		{base: "https://portal.example.com/", want: "wss://portal.example.com/ws/match"},
		{base: "", want: "ws://localhost:8000/ws/match"},
	}

	for _, tt := range tests {
		t.Run(tt.base, func(t *testing.T) {
			if got := New(nil, tt.base).MatchURL(); got != tt.want {
				t.Fatalf("expected %q, got %q", tt.want, got)
			}
		})
	}
}
