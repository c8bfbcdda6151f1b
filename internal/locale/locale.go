// Package locale holds the terminal's built-in message tables and tracks the
// active language.
package locale

import (
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"
	"sync"

	"golang.org/x/text/language"
)

// Fallback is used when a message is missing from the active table.
const Fallback = "en"

// Catalog resolves message keys against the active locale.
type Catalog struct {
	tables  map[string]map[string]string
	codes   []string
	matcher language.Matcher
	// ordered maps matcher indexes back to locale codes.
	ordered []string
	getenv  func(string) string

	mu     sync.RWMutex
	active string
}

// New returns a Catalog over the built-in tables with the fallback locale active.
func New() *Catalog {
	return NewWithTables(builtin)
}

// NewWithTables returns a Catalog over tables. A table for Fallback must exist.
func NewWithTables(tables map[string]map[string]string) *Catalog {
	codes := make([]string, 0, len(tables))
	for code := range tables {
		codes = append(codes, code)
	}
	sort.Strings(codes)

	// The fallback goes first so the matcher prefers it on weak matches.
	tags := []language.Tag{language.Make(Fallback)}
	ordered := []string{Fallback}
	for _, c := range codes {
		if c == Fallback {
			continue
		}
		tags = append(tags, language.Make(c))
		ordered = append(ordered, c)
	}

	return &Catalog{
		tables:  tables,
		codes:   codes,
		matcher: language.NewMatcher(tags),
		ordered: ordered,
		getenv:  os.Getenv,
		active:  Fallback,
	}
}

// Get formats the message for key in the active locale. Missing keys fall
// back to the Fallback table, then to the key itself.
func (c *Catalog) Get(key string, args ...any) string {
	c.mu.RLock()
	active := c.active
	c.mu.RUnlock()

	format, ok := c.tables[active][key]
	if !ok {
		format, ok = c.tables[Fallback][key]
	}
	if !ok {
		return key
	}
	if len(args) == 0 {
		return format
	}
	return fmt.Sprintf(format, args...)
}

// SetLocale activates code. Unknown codes are ignored.
func (c *Catalog) SetLocale(code string) {
	if _, ok := c.tables[code]; !ok {
		slog.Debug("locale: ignoring unknown locale", "code", code)
		return
	}
	c.mu.Lock()
	c.active = code
	c.mu.Unlock()
}

// Locale returns the active locale code.
func (c *Catalog) Locale() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.active
}

// Locales returns the supported locale codes, sorted.
func (c *Catalog) Locales() []string {
	return append([]string(nil), c.codes...)
}

// SuggestLocale picks the supported locale closest to the user's environment
// (LC_ALL, LC_MESSAGES, LANG), or Fallback when nothing matches.
func (c *Catalog) SuggestLocale() string {
	var desired []language.Tag
	for _, name := range []string{"LC_ALL", "LC_MESSAGES", "LANG"} {
		v := envLocale(c.getenv(name))
		if v == "" {
			continue
		}
		if tag, err := language.Parse(v); err == nil {
			desired = append(desired, tag)
		}
	}
	if len(desired) == 0 {
		return Fallback
	}
	_, idx, conf := c.matcher.Match(desired...)
	if conf == language.No {
		return Fallback
	}
	return c.ordered[idx]
}

// envLocale turns POSIX values like "ru_RU.UTF-8" into BCP 47 ("ru-RU").
func envLocale(v string) string {
	if i := strings.IndexAny(v, ".@"); i >= 0 {
		v = v[:i]
	}
	if v == "" || v == "C" || v == "POSIX" {
		return ""
	}
	return strings.ReplaceAll(v, "_", "-")
}
