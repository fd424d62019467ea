package loki

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestNewClient_EmptyURL(t *testing.T) {
	if _, err := NewClient("  ", ""); err == nil {
		t.Fatal("NewClient with empty URL should fail")
	}
}

func TestPushStoryJSON(t *testing.T) {
	var got PushRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/loki/api/v1/push" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL+"/", "")
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	raw := []byte(`{"storyId":"s1","mappingId":4,"eventName":"play.post","points":10,"createdAt":"2026-01-02T03:04:05Z"}`)
	if err := c.PushStoryJSON(context.Background(), raw); err != nil {
		t.Fatalf("PushStoryJSON: %v", err)
	}

	if len(got.Streams) != 1 {
		t.Fatalf("streams = %d, want 1", len(got.Streams))
	}
	s := got.Streams[0]
	if s.Stream["job"] != "playground-flow" || s.Stream["event_name"] != "play.post" || s.Stream["mapping_id"] != "4" {
		t.Errorf("labels = %v", s.Stream)
	}
	want := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC).UnixNano()
	if len(s.Values) != 1 || s.Values[0][0] != jsonInt(want) || s.Values[0][1] != string(raw) {
		t.Errorf("values = %v", s.Values)
	}
}

func TestPushStoryJSON_UnparsablePayload(t *testing.T) {
	var got PushRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
	}))
	defer srv.Close()

	c, _ := NewClient(srv.URL, "worker")
	if err := c.PushStoryJSON(context.Background(), []byte("not json")); err != nil {
		t.Fatalf("PushStoryJSON: %v", err)
	}
	if got.Streams[0].Stream["job"] != "worker" || len(got.Streams[0].Stream) != 1 {
		t.Errorf("labels = %v", got.Streams[0].Stream)
	}
}

func TestPush_Non2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	c, _ := NewClient(srv.URL, "")
	err := c.Push(context.Background(), time.Now(), "line", map[string]string{"event_name": "story 1/x"})
	if err == nil {
		t.Fatal("Push should fail on 400")
	}
}

func jsonInt(n int64) string {
	b, _ := json.Marshal(n)
	return string(b)
}
