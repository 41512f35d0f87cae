package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/jonakson/beautyconnect/internal/events"
)

type chanSubscriber chan events.Event

func (c chanSubscriber) Subscribe(ctx context.Context) (<-chan events.Event, error) {
	return c, nil
}

func startHub(t *testing.T, opts HandlerOptions) (chanSubscriber, *Hub, *httptest.Server) {
	t.Helper()
	sub := make(chanSubscriber, 8)
	hub := NewHub(sub, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = hub.Run(ctx)
		close(done)
	}()

	srv := httptest.NewServer(NewHandler(hub, opts, nil))
	t.Cleanup(func() {
		srv.Close()
		cancel()
		<-done
	})
	return sub, hub, srv
}

func dial(t *testing.T, srv *httptest.Server, businessID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/businesses/" + businessID
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial error: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func waitClients(t *testing.T, hub *Hub, businessID string, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for hub.Clients(businessID) != want {
		if time.Now().After(deadline) {
			t.Fatalf("clients(%s) = %d, want %d", businessID, hub.Clients(businessID), want)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHub_DeliversOnlyMatchingBusiness(t *testing.T) {
	sub, hub, srv := startHub(t, HandlerOptions{})
	b1, b2 := uuid.New(), uuid.New()

	watcher := dial(t, srv, b1.String())
	other := dial(t, srv, b2.String())
	waitClients(t, hub, b1.String(), 1)
	waitClients(t, hub, b2.String(), 1)

	appt := uuid.New()
	sub <- events.New(events.BookingCommitted, b1, appt)

	_ = watcher.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got events.Event
	if err := watcher.ReadJSON(&got); err != nil {
		t.Fatalf("ReadJSON error: %v", err)
	}
	if got.Type != events.BookingCommitted || got.AppointmentID != appt.String() || got.BusinessID != b1.String() {
		t.Fatalf("event = %+v", got)
	}

	_ = other.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	if _, _, err := other.ReadMessage(); err == nil {
		t.Fatalf("client of another business received an event")
	}
}

func TestHub_UnregistersOnDisconnect(t *testing.T) {
	_, hub, srv := startHub(t, HandlerOptions{})
	b := uuid.NewString()

	conn := dial(t, srv, b)
	waitClients(t, hub, b, 1)
	_ = conn.Close()
	waitClients(t, hub, b, 0)
}

func TestHandler_RejectsBadBusinessID(t *testing.T) {
	_, _, srv := startHub(t, HandlerOptions{})
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/businesses/not-a-uuid"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		t.Fatalf("expected dial to fail")
	}
	if resp == nil || resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("response = %v, want 400", resp)
	}
}

func TestHandler_RejectsForeignOrigin(t *testing.T) {
	_, _, srv := startHub(t, HandlerOptions{AllowedOrigins: []string{"https://app.example.com"}})
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/businesses/" + uuid.NewString()

	header := http.Header{"Origin": []string{"https://evil.example.com"}}
	if _, _, err := websocket.DefaultDialer.Dial(url, header); err == nil {
		t.Fatalf("expected foreign origin to be refused")
	}
	header.Set("Origin", "https://app.example.com")
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	if err != nil {
		t.Fatalf("Dial error: %v", err)
	}
	_ = conn.Close()
}

func TestHealthAndReadiness(t *testing.T) {
	failing := errors.New("redis: connection refused")
	_, _, srv := startHub(t, HandlerOptions{Ready: map[string]Check{
		"database": func(ctx context.Context) error { return nil },
		"redis":    func(ctx context.Context) error { return failing },
	}})

	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz error: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("/healthz status = %d, want 200", resp.StatusCode)
	}

	resp, err = http.Get(srv.URL + "/readyz")
	if err != nil {
		t.Fatalf("GET /readyz error: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("/readyz status = %d, want 503", resp.StatusCode)
	}
	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if body["database"] != "ok" || body["redis"] != failing.Error() {
		t.Fatalf("body = %v", body)
	}
}
