package remote

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/kalambet/wterm/internal/settings"
)

func TestConfirm_Ack(t *testing.T) {
	var gotPath, gotAuth, gotReqID string
	var gotBody EventRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		gotReqID = r.Header.Get("X-Request-ID")
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ack":1}`))
	}))
	defer srv.Close()

	c := NewClientWithHTTPClient(srv.URL+"/", "secret", srv.Client())
	ack, err := c.Confirm(context.Background(), "serverNameConfigSet", "B")
	if err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	if ack != settings.AckOK {
		t.Errorf("ack = %d, want %d", ack, settings.AckOK)
	}
	if gotPath != "/events/serverNameConfigSet" {
		t.Errorf("path = %q", gotPath)
	}
	if gotAuth != "Bearer secret" {
		t.Errorf("auth = %q", gotAuth)
	}
	if gotReqID == "" || gotReqID != gotBody.ID {
		t.Errorf("request id header %q, body id %q", gotReqID, gotBody.ID)
	}
	if gotBody.Event != "serverNameConfigSet" || gotBody.Payload != "B" {
		t.Errorf("body = %+v", gotBody)
	}
}

func TestConfirm_Rejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"ack":0,"reason":"read-only"}`))
	}))
	defer srv.Close()

	ack, err := NewClientWithHTTPClient(srv.URL, "", srv.Client()).Confirm(context.Background(), "xConfigSet", 1)
	if err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	if ack != settings.AckRejected {
		t.Errorf("ack = %d, want 0", ack)
	}
}

func TestConfirm_Errors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"http error", http.StatusUnauthorized, `{"error":{"message":"nope"}}`},
		{"missing ack", http.StatusOK, `{"ok":true}`},
		{"non-numeric ack", http.StatusOK, `{"ack":"1"}`},
		{"not json", http.StatusOK, `ack=1`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			ack, err := NewClientWithHTTPClient(srv.URL, "", srv.Client()).Confirm(context.Background(), "xConfigSet", 1)
			if err == nil {
				t.Fatal("expected error")
			}
			if ack != settings.AckRejected {
				t.Errorf("ack = %d on error, want 0", ack)
			}
		})
	}
}

func TestConfirm_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	ack, err := NewClient(url, "", time.Second).Confirm(context.Background(), "xConfigSet", 1)
	if err == nil || ack != settings.AckRejected {
		t.Errorf("Confirm = (%d, %v), want (0, error)", ack, err)
	}
}

type stubConfirmer struct {
	mu     sync.Mutex
	events []string
	ack    int
	err    error
	block  chan struct{}
}

func (s *stubConfirmer) Confirm(ctx context.Context, event string, _ any) (int, error) {
	if s.block != nil {
		select {
		case <-s.block:
		case <-ctx.Done():
			return settings.AckRejected, ctx.Err()
		}
	}
	s.mu.Lock()
	s.events = append(s.events, event)
	s.mu.Unlock()
	return s.ack, s.err
}

func collect(n int) (func(int), <-chan []int) {
	var mu sync.Mutex
	var acks []int
	out := make(chan []int, 1)
	return func(ack int) {
		mu.Lock()
		defer mu.Unlock()
		acks = append(acks, ack)
		if len(acks) == n {
			out <- append([]int(nil), acks...)
		}
	}, out
}

func waitAcks(t *testing.T, ch <-chan []int) []int {
	t.Helper()
	select {
	case acks := <-ch:
		return acks
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for callbacks")
		return nil
	}
}

func TestDispatcher_DeliversInOrder(t *testing.T) {
	stub := &stubConfirmer{ack: settings.AckOK}
	d := NewDispatcher(stub, 8)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)

	cb, done := collect(3)
	d.Send("aConfigSet", 1, cb)
	d.Send("bConfigSet", 2, cb)
	d.Send("cConfigSet", 3, cb)

	acks := waitAcks(t, done)
	for _, a := range acks {
		if a != settings.AckOK {
			t.Errorf("ack = %d, want 1", a)
		}
	}
	stub.mu.Lock()
	defer stub.mu.Unlock()
	want := []string{"aConfigSet", "bConfigSet", "cConfigSet"}
	for i := range want {
		if stub.events[i] != want[i] {
			t.Errorf("events = %v, want %v", stub.events, want)
			break
		}
	}
}

func TestDispatcher_ErrorIsRejection(t *testing.T) {
	stub := &stubConfirmer{ack: settings.AckOK, err: errors.New("boom")}
	d := NewDispatcher(stub, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)

	cb, done := collect(1)
	d.Send("aConfigSet", 1, cb)
	if acks := waitAcks(t, done); acks[0] != settings.AckRejected {
		t.Errorf("ack = %d, want 0", acks[0])
	}
}

func TestDispatcher_QueueFull(t *testing.T) {
	d := NewDispatcher(&stubConfirmer{}, 1)

	var got []int
	d.Send("aConfigSet", 1, func(a int) { got = append(got, a) })
	d.Send("bConfigSet", 2, func(a int) { got = append(got, a) })

	if len(got) != 1 || got[0] != settings.AckRejected {
		t.Errorf("callbacks = %v, want one immediate rejection", got)
	}
}

func TestDispatcher_StopRejectsPending(t *testing.T) {
	stub := &stubConfirmer{ack: settings.AckOK, block: make(chan struct{})}
	d := NewDispatcher(stub, 4)
	ctx, cancel := context.WithCancel(context.Background())

	cb, done := collect(3)
	d.Send("aConfigSet", 1, cb)
	d.Send("bConfigSet", 2, cb)

	finished := make(chan struct{})
	go func() {
		d.Run(ctx)
		close(finished)
	}()
	cancel()
	<-finished

	d.Send("cConfigSet", 3, cb)
	for _, a := range waitAcks(t, done) {
		if a != settings.AckRejected {
			t.Errorf("ack = %d after stop, want 0", a)
		}
	}
}

func TestLoopback(t *testing.T) {
	got := -1
	Loopback{}.Send("xConfigSet", nil, func(a int) { got = a })
	if got != settings.AckOK {
		t.Errorf("ack = %d, want 1", got)
	}
}
