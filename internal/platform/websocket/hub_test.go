package websocket

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	gorillawebsocket "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

func newTestClient(topics ...string) *Client {
	return &Client{ID: "c-" + strings.Join(topics, ","), Topics: topics, Send: make(chan []byte, 4)}
}

func TestHub_RegisterAndUnregister(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	c := newTestClient(WardTopic)

	hub.Register(c)
	if hub.ClientCount() != 1 || hub.TopicCount(WardTopic) != 1 {
		t.Fatalf("expected 1 client on ward, got %d/%d", hub.ClientCount(), hub.TopicCount(WardTopic))
	}

	hub.Unregister(c)
	hub.Unregister(c)
	if hub.ClientCount() != 0 || hub.TopicCount(WardTopic) != 0 {
		t.Error("expected hub to be empty")
	}
	if _, ok := <-c.Send; ok {
		t.Error("expected Send to be closed")
	}
}

func TestHub_BroadcastOnlyToSubscribers(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	a := newTestClient(PatientTopic("PAT-1"))
	b := newTestClient(PatientTopic("PAT-2"))
	hub.Register(a)
	hub.Register(b)

	_ = hub.Publish(context.Background(), Event{Type: "patient.updated", Topic: PatientTopic("PAT-1"), PatientID: "PAT-1", Version: 3})

	select {
	case msg := <-a.Send:
		var ev Event
		if err := json.Unmarshal(msg, &ev); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if ev.PatientID != "PAT-1" || ev.Version != 3 || ev.Timestamp.IsZero() {
			t.Errorf("unexpected event %+v", ev)
		}
	default:
		t.Fatal("expected subscriber to receive event")
	}
	select {
	case <-b.Send:
		t.Fatal("non-subscriber received event")
	default:
	}
}

func TestHub_FullBufferDoesNotBlock(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	c := &Client{ID: "slow", Topics: []string{WardTopic}, Send: make(chan []byte, 1)}
	hub.Register(c)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 5; i++ {
			hub.Broadcast(WardTopic, Event{Type: "patient.updated"})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("broadcast blocked on a full client buffer")
	}
}

func TestHub_SubscribeUnsubscribe(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	c := newTestClient()
	hub.Register(c)

	hub.ProcessMessage(c, ClientMessage{Action: "subscribe", Topics: []string{"patient:PAT-1", "patient:PAT-1"}})
	if len(c.Topics) != 1 || hub.TopicCount("patient:PAT-1") != 1 {
		t.Fatalf("expected one deduplicated subscription, got %v", c.Topics)
	}

	hub.ProcessMessage(c, ClientMessage{Action: "unsubscribe", Topics: []string{"patient:PAT-1"}})
	if len(c.Topics) != 0 || hub.TopicCount("patient:PAT-1") != 0 {
		t.Errorf("expected no subscriptions, got %v", c.Topics)
	}
}

func TestHub_SubscribeMergesRepeatedTopics(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	c := newTestClient()
	hub.Register(c)

	hub.Subscribe(c, []string{WardTopic})
	hub.Subscribe(c, []string{WardTopic, "patient:PAT-2", "", "patient:PAT-2"})

	want := []string{WardTopic, "patient:PAT-2"}
	if diff := cmp.Diff(want, c.Topics); diff != "" {
		t.Errorf("topics mismatch (-want +got):\n%s", diff)
	}
	if hub.TopicCount("patient:PAT-2") != 1 || hub.TopicCount(WardTopic) != 1 {
		t.Errorf("expected one registration per topic")
	}
}

func TestHandler_EndToEnd(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	e := echo.New()
	NewHandler(hub, nil, nil).RegisterRoutes(e)
	srv := httptest.NewServer(e)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?topics=patient:PAT-9"
	conn, _, err := gorillawebsocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for hub.TopicCount("patient:PAT-9") == 0 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	hub.Broadcast(PatientTopic("PAT-9"), Event{Type: "patient.updated", PatientID: "PAT-9"})

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.Contains(string(msg), `"patientId":"PAT-9"`) {
		t.Errorf("unexpected message %s", msg)
	}
}

func TestHandler_RejectsForeignOrigin(t *testing.T) {
	h := NewHandler(NewHub(zerolog.Nop()), []string{"http://ward.local"}, nil)
	req := httptest.NewRequest("GET", "/ws", nil)
	req.Header.Set("Origin", "http://evil.test")
	if h.upgrader.CheckOrigin(req) {
		t.Error("expected foreign origin to be rejected")
	}
	req.Header.Set("Origin", "http://ward.local")
	if !h.upgrader.CheckOrigin(req) {
		t.Error("expected allowed origin to pass")
	}
}
