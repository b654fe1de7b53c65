// Package lockkey builds canonical lock-table keys from a scope name and a
// set of record filter fields. Distinct filter combinations for the same
// scope must map to distinct keys, and the same combination must always map
// to the same key regardless of field order.
package lockkey

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// ErrMissingScope is returned when a key is requested without a scope.
var ErrMissingScope = errors.New("lock key requires a scope")

// ErrMissingFilters is returned when a key is requested without any
// identifying filter fields.
var ErrMissingFilters = errors.New("lock key requires at least one filter field")

// Build returns the canonical key for (scope, filters). Filter fields are
// sorted by name so callers may supply them in any order. Filter values come
// straight out of decoded JSON, so numbers arrive as float64 and are
// normalized to their integer form when exact.
func Build(scope string, filters map[string]any) (string, error) {
	scope = strings.TrimSpace(scope)
	if scope == "" {
		return "", ErrMissingScope
	}
	if len(filters) == 0 {
		return "", ErrMissingFilters
	}

	names := make([]string, 0, len(filters))
	for name := range filters {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString(scope)
	for _, name := range names {
		b.WriteByte('|')
		b.WriteString(name)
		b.WriteByte('=')
		b.WriteString(formatValue(filters[name]))
	}
	return b.String(), nil
}

func formatValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		if t == float64(int64(t)) {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprintf("%v", t)
	}
}
