package rest

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newServer(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL+"/", "tok", WithTimeout(5*time.Second))
}

func TestGetThread(t *testing.T) {
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/conversations/c1" || r.Header.Get("Authorization") != "Bearer tok" {
			t.Errorf("request = %s %s auth=%q", r.Method, r.URL.Path, r.Header.Get("Authorization"))
		}
		_, _ = io.WriteString(w, `{"id":12,"title":"Unit 4B","participant_ids":[1,2]}`)
	})

	th, err := c.GetThread(context.Background(), "c1")
	if err != nil {
		t.Fatal(err)
	}
	if th.ID != "12" || th.Title != "Unit 4B" || len(th.ParticipantIDs) != 2 {
		t.Errorf("thread = %+v", th)
	}
}

func TestGetMessagesSince(t *testing.T) {
	since := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	tests := []struct {
		name string
		body string
	}{
		{"bare array", `[{"id":"1","sender_id":"2","content":"a","sent_at":"2026-03-01T09:00:01Z"}]`},
		{"wrapped", `{"messages":[{"id":1,"sender_id":2,"content":"a","sent_at":1772355601000}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
				if got := r.URL.Query().Get("since"); got != "2026-03-01T09:00:00Z" {
					t.Errorf("since = %q", got)
				}
				_, _ = io.WriteString(w, tt.body)
			})
			msgs, err := c.GetMessages(context.Background(), "c1", since)
			if err != nil {
				t.Fatal(err)
			}
			if len(msgs) != 1 || msgs[0].ID != "1" || msgs[0].Content != "a" {
				t.Fatalf("messages = %+v", msgs)
			}
			if !msgs[0].SentAt.Equal(since.Add(time.Second)) {
				t.Errorf("sent_at = %v", msgs[0].SentAt)
			}
		})
	}
}

func TestCreateMessage(t *testing.T) {
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/conversations/c1/messages" {
			t.Errorf("request = %s %s", r.Method, r.URL.Path)
		}
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["content"] != "Hello" {
			t.Errorf("body = %v", body)
		}
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `{"id":99,"sender_id":1,"content":"Hello"}`)
	})

	m, err := c.CreateMessage(context.Background(), "c1", "Hello")
	if err != nil {
		t.Fatal(err)
	}
	if m.ID != "99" || m.ConversationID != "c1" {
		t.Errorf("message = %+v", m)
	}
}

func TestNon2xxBecomesAPIError(t *testing.T) {
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = io.WriteString(w, `{"message":"not a participant"}`)
	})

	err := c.NotifyRecipient(context.Background(), "c1", "x")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error = %v, want *APIError", err)
	}
	if apiErr.Status != http.StatusForbidden || apiErr.Message != "not a participant" {
		t.Errorf("APIError = %+v", apiErr)
	}
}
