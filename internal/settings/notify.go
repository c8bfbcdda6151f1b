package settings

import (
	"fmt"

	"github.com/kalambet/wterm/internal/schema"
)

// onUpdate is the change dispatch run after every mutation. Callers hold s.mu.
// The table is fixed: a new reaction means a new branch here.
func (s *Store) onUpdate(changed map[string]struct{}) {
	if _, ok := changed[schema.KeyLanguage]; ok {
		if code, ok := s.state[schema.KeyLanguage].(string); ok {
			s.deps.Locale.SetLocale(code)
		}
	}
	if _, ok := changed[schema.KeyServerName]; ok && s.deps.Title != nil {
		s.deps.Title.SetTitle(fmt.Sprint(s.state[schema.KeyServerName]))
	}
	s.persist()
}

// persist writes the full state under StorageName. Failures are logged; the
// in-memory state stays authoritative for the process.
func (s *Store) persist() {
	doc, err := encodeSnapshot(s.reg.Keys(), s.state)
	if err != nil {
		s.logger.Error("settings: encoding snapshot failed", "error", err)
		return
	}
	if err := s.deps.Storage.Set(StorageName, doc); err != nil {
		s.logger.Error("settings: persisting snapshot failed", "error", err)
	}
}
