package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/kalambet/wterm/internal/locale"
	"github.com/kalambet/wterm/internal/schema"
	"github.com/kalambet/wterm/internal/storage"
)

func newTestPeer(t *testing.T, token string) (http.Handler, *storage.Store) {
	t.Helper()
	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	reg, err := schema.Terminal(locale.New())
	if err != nil {
		t.Fatalf("schema: %v", err)
	}
	return NewPeerHandler(PeerDeps{Store: store, Registry: reg, Token: token}), store
}

func postEvent(t *testing.T, h http.Handler, event, body, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/events/"+event, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeAck(t *testing.T, rec *httptest.ResponseRecorder) ackResponse {
	t.Helper()
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var resp ackResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decoding ack: %v", err)
	}
	return resp
}

func TestPeer_Health(t *testing.T) {
	h, _ := newTestPeer(t, "secret")

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 without auth", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"ok"`) {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestPeer_RequiresToken(t *testing.T) {
	h, _ := newTestPeer(t, "secret")

	rec := postEvent(t, h, "serverNameConfigSet", `{"payload":"B"}`, "")
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("no token: status = %d, want 401", rec.Code)
	}
	rec = postEvent(t, h, "serverNameConfigSet", `{"payload":"B"}`, "wrong")
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("wrong token: status = %d, want 401", rec.Code)
	}
}

func TestPeer_AcceptsGlobalWrite(t *testing.T) {
	h, store := newTestPeer(t, "secret")

	rec := postEvent(t, h, "serverNameConfigSet",
		`{"id":"r1","event":"serverNameConfigSet","payload":"prod-db"}`, "secret")
	if resp := decodeAck(t, rec); resp.Ack != 1 {
		t.Fatalf("ack = %+v, want 1", resp)
	}

	g, err := store.GetGlobal("serverName")
	if err != nil {
		t.Fatalf("GetGlobal: %v", err)
	}
	if g.ValueJSON != `"prod-db"` {
		t.Errorf("stored = %s, want \"prod-db\"", g.ValueJSON)
	}
}

func TestPeer_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		event  string
		body   string
		reason string
	}{
		{"local key", "languageConfigSet", `{"payload":"ru"}`, "not a global"},
		{"unknown key", "nopeConfigSet", `{"payload":"x"}`, "not a global"},
		{"bad suffix", "serverNameChanged", `{"payload":"x"}`, "unknown event"},
		{"wrong kind", "serverNameConfigSet", `{"payload":42}`, "expected a string"},
		{"null payload", "serverNameConfigSet", `{"payload":null}`, "expected a string"},
		{"too long", "serverNameConfigSet", `{"payload":"` + strings.Repeat("x", 65) + `"}`, "longer than 64"},
		{"control char", "serverNameConfigSet", `{"payload":"a\u0007b"}`, "non-printable"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, store := newTestPeer(t, "")
			resp := decodeAck(t, postEvent(t, h, tt.event, tt.body, ""))
			if resp.Ack != 0 {
				t.Fatalf("ack = %d, want 0", resp.Ack)
			}
			if !strings.Contains(resp.Reason, tt.reason) {
				t.Errorf("reason = %q, want it to contain %q", resp.Reason, tt.reason)
			}
			if _, err := store.GetGlobal("serverName"); !errors.Is(err, storage.ErrNotFound) {
				t.Errorf("rejected write was persisted (err = %v)", err)
			}
		})
	}
}

func TestPeer_AcceptsMaxLengthName(t *testing.T) {
	h, _ := newTestPeer(t, "")
	name := strings.Repeat("я", maxServerNameLen)
	body, _ := json.Marshal(map[string]any{"payload": name})
	if resp := decodeAck(t, postEvent(t, h, "serverNameConfigSet", string(body), "")); resp.Ack != 1 {
		t.Errorf("ack = %+v, want 1 for %d runes", resp, maxServerNameLen)
	}
}

func TestPeer_MalformedBody(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"not json", `payload=x`},
		{"missing payload", `{"id":"r1"}`},
		{"event mismatch", `{"event":"otherConfigSet","payload":"x"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, _ := newTestPeer(t, "")
			rec := postEvent(t, h, "serverNameConfigSet", tt.body, "")
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
		})
	}
}

func TestPeer_Globals(t *testing.T) {
	h, _ := newTestPeer(t, "secret")
	decodeAck(t, postEvent(t, h, "serverNameConfigSet", `{"payload":"A"}`, "secret"))
	decodeAck(t, postEvent(t, h, "serverNameConfigSet", `{"payload":"B"}`, "secret"))

	req := httptest.NewRequest(http.MethodGet, "/globals", nil)
	req.Header.Set("Authorization", "Bearer secret")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var got map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got["serverName"] != "B" {
		t.Errorf("globals = %v, want serverName=B", got)
	}
}
