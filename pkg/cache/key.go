package cache

import "strings"

// GlobalKey is the scope used by resources that are not study-scoped.
const GlobalKey = "__global__"

// KeyPrefix is prepended to every Redis key written by RedisStore.
const KeyPrefix = "edc:cache"

// Key identifies one cache entry in a shared backend.
type Key struct {
	// Namespace separates resources sharing a backend (e.g. "sites").
	Namespace string

	// Scope is the study key or GlobalKey.
	Scope string
}

// String generates the backend key.
// Format: edc:cache:{namespace}:{scope}
//
// Example:
//
//	edc:cache:sites:STUDY1
func (k Key) String() string {
	parts := []string{KeyPrefix}

	if ns := strings.Trim(k.Namespace, ":"); ns != "" {
		parts = append(parts, ns)
	}

	scope := k.Scope
	if scope == "" {
		scope = GlobalKey
	}
	parts = append(parts, scope)

	return strings.Join(parts, ":")
}

// Pattern returns the SCAN pattern matching every key of a namespace.
func Pattern(namespace string) string {
	return Key{Namespace: namespace, Scope: "*"}.String()
}
