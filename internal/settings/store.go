// Package settings owns the live terminal configuration. It seeds values from
// the schema defaults and the persisted snapshot, validates and applies
// writes, mirrors global settings to the remote peer optimistically, and
// rolls them back when the peer rejects them.
//
// A Store is safe for concurrent use. Collaborators invoked from the change
// dispatch (storage, localizer, title) run while the Store's lock is held and
// must not call back into the Store.
//
// Overlapping writes to the same global key are not serialized: whichever
// confirmation resolves last decides the outcome, and a late rejection of a
// stale write restores the value that write replaced even if a newer write
// has since been confirmed.
package settings

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/kalambet/wterm/internal/locale"
	"github.com/kalambet/wterm/internal/schema"
)

// StorageName is the document the Store persists itself under.
const StorageName = "terminal-config"

// Acknowledgement codes. Any code other than AckOK is a rejection.
const (
	AckRejected = 0
	AckOK       = 1
)

// EventSuffix is appended to a key to form its remote confirmation event.
const EventSuffix = "ConfigSet"

// EventName returns the remote event that confirms a write to key.
func EventName(key string) string { return key + EventSuffix }

// KeyFromEvent reverses EventName.
func KeyFromEvent(event string) (string, bool) {
	key, ok := strings.CutSuffix(event, EventSuffix)
	return key, ok && key != ""
}

// KV persists named string documents.
type KV interface {
	Get(name string) (string, bool, error)
	Set(name, value string) error
}

// Localizer produces user-facing messages and switches the active language.
type Localizer interface {
	Get(key string, args ...any) string
	SetLocale(code string)
}

// Transport delivers a confirmation request to the remote peer. Send must not
// block on the peer; cb receives the acknowledgement code later, on any
// goroutine.
type Transport interface {
	Send(event string, payload any, cb func(ack int))
}

// TitleSetter displays the application title.
type TitleSetter interface {
	SetTitle(title string)
}

// Recorder keeps a log of confirmation outcomes.
type Recorder interface {
	RecordConfirmation(id, key string, value, previous any, ack int) error
}

// Deps are the Store's collaborators. Storage and Locale are required;
// a nil Transport keeps global writes local.
type Deps struct {
	Storage   KV
	Locale    Localizer
	Transport Transport
	Title     TitleSetter
	Recorder  Recorder
	Logger    *slog.Logger
	// Highlight decorates each allowed value in validation messages.
	Highlight func(string) string
	// Rollback receives a localized notice after a rejected write is undone.
	Rollback func(msg string)
}

// Entry is one row of List.
type Entry struct {
	Value  any  `json:"value" yaml:"value"`
	Global bool `json:"global" yaml:"global"`
}

// Confirmation is a pending remote confirmation of a global write. Previous
// is restored if the peer rejects Value.
type Confirmation struct {
	ID       string
	Key      string
	Value    any
	Previous any
}

// Store holds the live configuration.
type Store struct {
	reg    *schema.Registry
	deps   Deps
	logger *slog.Logger

	mu    sync.Mutex
	state map[string]any

	inflight pending
}

// New builds a Store over reg, seeded with reg's defaults overlaid by the
// snapshot persisted under StorageName. A missing, unreadable or malformed
// snapshot leaves the defaults in place.
func New(reg *schema.Registry, deps Deps) *Store {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Highlight == nil {
		deps.Highlight = func(s string) string { return s }
	}
	s := &Store{
		reg:    reg,
		deps:   deps,
		logger: deps.Logger,
		state:  reg.Defaults(),
	}

	raw, ok, err := deps.Storage.Get(StorageName)
	switch {
	case err != nil:
		s.logger.Warn("settings: reading persisted snapshot failed, using defaults", "error", err)
	case ok:
		for k, v := range decodeSnapshot(reg, raw, s.logger) {
			s.state[k] = v
		}
	}
	return s
}

// Get returns the current value of key. The second result is false for keys
// missing from the schema.
func (s *Store) Get(key string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.state[key]
	return v, ok
}

// Set validates raw, transforms it and applies it immediately. For a global
// key, unless localOnly is set, the new value is then sent to the peer for
// confirmation; Set does not wait for the answer, and a rejection later
// restores the previous value through the same change dispatch.
//
// Validation failures return *UnknownKeyError or *InvalidValueError carrying
// a localized message and leave the state untouched.
func (s *Store) Set(key, raw string, localOnly bool) error {
	d, ok := s.reg.Lookup(key)
	if !ok {
		return &UnknownKeyError{Key: key, Message: s.deps.Locale.Get(locale.ConfNoKey, key)}
	}
	if !d.Allows(raw) {
		return s.invalid(d, raw, nil)
	}
	value, err := d.Apply(raw)
	if err != nil {
		return s.invalid(d, raw, err)
	}

	s.mu.Lock()
	previous := s.state[key]
	s.state[key] = value
	s.onUpdate(keySet(key))
	s.mu.Unlock()

	if localOnly || !d.Global || s.deps.Transport == nil {
		return nil
	}

	c := Confirmation{ID: uuid.New().String(), Key: key, Value: value, Previous: previous}
	s.confirm(c)
	return nil
}

// SetLocal applies a write without asking the peer, even for global keys.
func (s *Store) SetLocal(key, raw string) error {
	return s.Set(key, raw, true)
}

// Reset restores every non-global key to its default. Global keys keep their
// value since the peer owns it.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	changed := make(map[string]struct{}, s.reg.Len())
	for _, k := range s.reg.Keys() {
		d, _ := s.reg.Lookup(k)
		if !d.Global {
			s.state[k] = d.Default
		}
		changed[k] = struct{}{}
	}
	s.onUpdate(changed)
}

// List returns a copy of every key's value and global flag.
func (s *Store) List() map[string]Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]Entry, len(s.state))
	for _, k := range s.reg.Keys() {
		d, _ := s.reg.Lookup(k)
		out[k] = Entry{Value: s.state[k], Global: d.Global}
	}
	return out
}

// Keys returns the schema keys in declaration order.
func (s *Store) Keys() []string {
	return s.reg.Keys()
}

// Descriptor exposes the schema entry for key.
func (s *Store) Descriptor(key string) (schema.Descriptor, bool) {
	return s.reg.Lookup(key)
}

// ApplyLocale activates the configured language. It is meant to run once
// the application has finished initializing.
func (s *Store) ApplyLocale() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if code, ok := s.state[schema.KeyLanguage].(string); ok {
		s.deps.Locale.SetLocale(code)
	}
}

// Pending returns the number of confirmations still awaiting an answer.
func (s *Store) Pending() int {
	return s.inflight.count()
}

// Wait blocks until every confirmation sent so far has resolved or ctx is done.
func (s *Store) Wait(ctx context.Context) error {
	select {
	case <-s.inflight.idle():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Store) invalid(d schema.Descriptor, raw string, cause error) error {
	var allowed string
	if d.Values != nil {
		hl := make([]string, len(d.Values))
		for i, v := range d.Values {
			hl[i] = s.deps.Highlight(v)
		}
		allowed = strings.Join(hl, ", ")
	} else {
		allowed = s.deps.Highlight(d.Kind.String())
	}
	return &InvalidValueError{
		Key:     d.Key,
		Value:   raw,
		Allowed: d.Values,
		Message: s.deps.Locale.Get(locale.ConfInvVal, d.Key, allowed),
		Err:     cause,
	}
}

func keySet(keys ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		m[k] = struct{}{}
	}
	return m
}
