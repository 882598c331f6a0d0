package pagestore

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Fingerprint renders the identity of one fetch: resource, canonical
// filter encoding, page size and offset. Two fetches with equal
// fingerprints are the same logical query, so the fingerprint doubles
// as the cache key and the singleflight key.
func Fingerprint(resource string, filters map[string]any, limit, offset int) string {
	keys := make([]string, 0, len(filters))
	for key, value := range filters {
		if value == nil {
			continue
		}
		if s, ok := value.(string); ok && s == "" {
			continue
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(resource)
	b.WriteByte('|')
	for i, key := range keys {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(key)
		b.WriteByte('=')
		b.WriteString(encodeFingerprintValue(filters[key]))
	}
	b.WriteByte('|')
	b.WriteString(strconv.Itoa(limit))
	b.WriteByte('|')
	b.WriteString(strconv.Itoa(offset))
	return b.String()
}

func encodeFingerprintValue(value any) string {
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
		return fmt.Sprint(v)
	}
}
