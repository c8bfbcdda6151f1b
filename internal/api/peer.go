package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"unicode"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/wterm/internal/schema"
	"github.com/kalambet/wterm/internal/settings"
	"github.com/kalambet/wterm/internal/storage"
)

const maxRequestBodySize = 1 << 20 // 1MB

// maxServerNameLen caps the title a terminal may push to the peer.
const maxServerNameLen = 64

// GlobalStore persists the peer's authoritative values.
type GlobalStore interface {
	PutGlobal(key, valueJSON string) error
	AllGlobals() ([]storage.GlobalSetting, error)
}

// PeerDeps holds dependencies for the peer handler.
type PeerDeps struct {
	Store    GlobalStore
	Registry *schema.Registry
	// Token guards every route but /health. Empty disables auth.
	Token  string
	Logger *slog.Logger
}

// eventBody mirrors the request the terminal posts for each confirmation.
type eventBody struct {
	ID      string          `json:"id"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

type ackResponse struct {
	Ack    int    `json:"ack"`
	Reason string `json:"reason,omitempty"`
}

// NewPeerHandler returns the http.Handler of the remote authority that
// confirms or rejects writes to global settings.
func NewPeerHandler(deps PeerDeps) http.Handler {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Get("/health", handleHealth)

	r.Group(func(r chi.Router) {
		if deps.Token != "" {
			r.Use(BearerAuth(deps.Token))
		}
		r.Post("/events/{event}", handleEvent(deps))
		r.Get("/globals", handleGlobals(deps))
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

func handleEvent(deps PeerDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		event := chi.URLParam(r, "event")

		var body eventBody
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if len(body.Payload) == 0 {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "payload is required")
			return
		}
		if body.Event != "" && body.Event != event {
			httpError(w, http.StatusBadRequest, "invalid_request_error",
				"event %q in body does not match path %q", body.Event, event)
			return
		}

		log := deps.Logger.With("event", event, "id", body.ID)

		value, err := acceptGlobal(deps.Registry, event, body.Payload)
		if err != nil {
			log.Info("rejected global write", "reason", err)
			writeAck(w, ackResponse{Ack: settings.AckRejected, Reason: err.Error()})
			return
		}

		stored, err := json.Marshal(value)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "encoding value: %v", err)
			return
		}
		if err := deps.Store.PutGlobal(keyOf(event), string(stored)); err != nil {
			log.Error("persisting global failed", "error", err)
			httpError(w, http.StatusInternalServerError, "api_error", "persisting value: %v", err)
			return
		}

		log.Debug("confirmed global write", "value", value)
		writeAck(w, ackResponse{Ack: settings.AckOK})
	}
}

func keyOf(event string) string {
	key, _ := settings.KeyFromEvent(event)
	return key
}

var errNotGlobal = errors.New("not a global setting")

// acceptGlobal decides whether payload is an acceptable value for the key
// named by event and returns it in its schema kind.
func acceptGlobal(reg *schema.Registry, event string, payload json.RawMessage) (any, error) {
	key, ok := settings.KeyFromEvent(event)
	if !ok {
		return nil, fmt.Errorf("unknown event %q", event)
	}
	d, ok := reg.Lookup(key)
	if !ok || !d.Global {
		return nil, fmt.Errorf("%s: %w", key, errNotGlobal)
	}

	var raw any
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, fmt.Errorf("%s: undecodable payload", key)
	}
	value, ok := d.Coerce(raw)
	if !ok {
		return nil, fmt.Errorf("%s: expected a %s", key, d.Kind)
	}

	if key == schema.KeyServerName {
		if err := validServerName(value.(string)); err != nil {
			return nil, err
		}
	}
	return value, nil
}

func validServerName(name string) error {
	if utf8.RuneCountInString(name) > maxServerNameLen {
		return fmt.Errorf("serverName: longer than %d characters", maxServerNameLen)
	}
	for _, r := range name {
		if !unicode.IsPrint(r) {
			return fmt.Errorf("serverName: contains non-printable character %U", r)
		}
	}
	return nil
}

func handleGlobals(deps PeerDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		globals, err := deps.Store.AllGlobals()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "listing globals: %v", err)
			return
		}

		out := make(map[string]json.RawMessage, len(globals))
		for _, g := range globals {
			out[g.Key] = json.RawMessage(g.ValueJSON)
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(out)
	}
}

func writeAck(w http.ResponseWriter, resp ackResponse) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}
