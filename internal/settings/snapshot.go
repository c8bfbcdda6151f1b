package settings

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/kalambet/wterm/internal/schema"
)

// decodeSnapshot extracts the known, well-typed values from a persisted
// document. Anything else is dropped; a malformed document yields nil.
func decodeSnapshot(reg *schema.Registry, raw string, logger *slog.Logger) map[string]any {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	if !gjson.Valid(raw) {
		logger.Warn("settings: persisted snapshot is not valid JSON, using defaults")
		return nil
	}
	doc := gjson.Parse(raw)
	if !doc.IsObject() {
		logger.Warn("settings: persisted snapshot is not an object, using defaults", "type", doc.Type.String())
		return nil
	}

	out := make(map[string]any)
	doc.ForEach(func(k, v gjson.Result) bool {
		key := k.String()
		d, ok := reg.Lookup(key)
		if !ok {
			logger.Debug("settings: dropping unknown persisted key", "key", key)
			return true
		}
		val, ok := d.Coerce(snapshotValue(d, v))
		if !ok {
			logger.Warn("settings: dropping persisted value of wrong kind", "key", key, "kind", d.Kind.String(), "raw", v.Raw)
			return true
		}
		out[key] = val
		return true
	})
	return out
}

// snapshotValue converts a persisted JSON value for d. Integer settings are
// read from the raw literal since gjson decodes every number as float64.
func snapshotValue(d schema.Descriptor, v gjson.Result) any {
	if d.Kind == schema.KindInt && v.Type == gjson.Number {
		if n, err := strconv.ParseInt(v.Raw, 10, 64); err == nil {
			return n
		}
	}
	return v.Value()
}

// encodeSnapshot writes state as a JSON object with keys in schema order.
func encodeSnapshot(keys []string, state map[string]any) (string, error) {
	doc := "{}"
	for _, k := range keys {
		v, ok := state[k]
		if !ok {
			continue
		}
		var err error
		doc, err = sjson.Set(doc, escapePath(k), v)
		if err != nil {
			return "", fmt.Errorf("encoding %s: %w", k, err)
		}
	}
	return doc, nil
}

var pathEscaper = strings.NewReplacer(`\`, `\\`, `.`, `\.`, `*`, `\*`, `?`, `\?`)

// escapePath makes a setting key safe to use as a literal sjson path.
func escapePath(key string) string {
	return pathEscaper.Replace(key)
}
