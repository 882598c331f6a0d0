// Package filterurl serializes filter state to and from URL query
// parameters so that a view's current filters survive page reloads and
// shared links.
//
// The codec is pure: it owns no state and operates on the FilterState
// held by a paginated query store. Binding connects the two, writing
// the serialized query to a Location whenever the filters change.
package filterurl

import (
	"net/url"
	"slices"
	"strconv"
)

// Codec overrides serialization for one filter key whose value is not
// a plain string (numeric ranges, timestamps, enums).
type Codec struct {
	Serialize   func(value any) string
	Deserialize func(raw string) any
}

// Config declares how a resource's filters map onto query parameters.
type Config struct {
	// Defaults maps keys to the value considered "no filter". Keys at
	// their default are omitted from the query and count as inactive.
	Defaults map[string]any
	// Exclude lists keys never synchronized to the URL.
	Exclude []string
	// Codecs holds per-key overrides for non-string values.
	Codecs map[string]Codec
}

func (c Config) excluded(key string) bool {
	return slices.Contains(c.Exclude, key)
}

// encode renders one value using the key's codec if present, else the
// generic scalar form.
func (c Config) encode(key string, value any) string {
	if codec, ok := c.Codecs[key]; ok && codec.Serialize != nil {
		return codec.Serialize(value)
	}
	return encodeScalar(value)
}

// Serialize builds the query parameters for the given filters. Unset
// values, excluded keys and default-valued keys are omitted.
func Serialize(filters map[string]any, cfg Config) url.Values {
	query := make(url.Values)
	for key, value := range filters {
		if cfg.excluded(key) || isUnset(value) {
			continue
		}
		encoded := cfg.encode(key, value)
		if def, ok := cfg.Defaults[key]; ok && !isUnset(def) && encoded == cfg.encode(key, def) {
			continue
		}
		query.Set(key, encoded)
	}
	return query
}

// Deserialize recovers a partial filter state from query parameters.
// For repeated parameters the first occurrence wins. Values with a
// per-key codec use it; otherwise a string that round-trips exactly
// through numeric parse becomes a number, everything else stays a string.
func Deserialize(query url.Values, cfg Config) map[string]any {
	filters := make(map[string]any)
	for key, vals := range query {
		if cfg.excluded(key) || len(vals) == 0 || vals[0] == "" {
			continue
		}
		raw := vals[0]
		if codec, ok := cfg.Codecs[key]; ok && codec.Deserialize != nil {
			filters[key] = codec.Deserialize(raw)
			continue
		}
		filters[key] = coerce(raw)
	}
	return filters
}

// HasActiveFilters reports whether any non-excluded key holds a set,
// non-default value.
func HasActiveFilters(filters map[string]any, cfg Config) bool {
	for key, value := range filters {
		if cfg.excluded(key) || isUnset(value) {
			continue
		}
		encoded := cfg.encode(key, value)
		if def, ok := cfg.Defaults[key]; ok && !isUnset(def) && encoded == cfg.encode(key, def) {
			continue
		}
		return true
	}
	return false
}

// Cleared returns the filter state after a "clear filters" command:
// declared defaults for known keys, unset for every other key present.
func Cleared(current map[string]any, cfg Config) map[string]any {
	cleared := make(map[string]any, len(cfg.Defaults))
	for key, def := range cfg.Defaults {
		cleared[key] = def
	}
	for key := range current {
		if _, known := cleared[key]; !known {
			cleared[key] = nil
		}
	}
	return cleared
}

// isUnset reports whether a value is semantically "no filter".
func isUnset(value any) bool {
	if value == nil {
		return true
	}
	s, ok := value.(string)
	return ok && s == ""
}

func encodeScalar(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	default:
		return ""
	}
}

// coerce turns a query-parameter string back into a scalar. Only exact
// numeric round trips are treated as numbers, so identifiers like
// "0123" stay strings.
func coerce(raw string) any {
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil && strconv.FormatInt(n, 10) == raw {
		return int(n)
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil && strconv.FormatFloat(f, 'f', -1, 64) == raw {
		return f
	}
	return raw
}
