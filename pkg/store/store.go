package store

import (
	"sort"
	"strings"
)

// Store is a hierarchical key-value backend. Keys are slash separated paths
// such as "connectionsHistory/0/hostName". A Store is acquired per operation
// through an Opener and released with Close.
type Store interface {
	// Children lists the immediate child names under path, sorted.
	Children(path string) ([]string, error)
	// Get returns the value at key and whether it exists.
	Get(key string) ([]byte, bool, error)
	Put(key string, value []byte) error
	// DeleteTree removes path and every key below it.
	DeleteTree(path string) error
	// Flush forces pending writes to durable storage.
	Flush() error
	Close() error
}

// Opener acquires a Store for the duration of one operation.
type Opener func() (Store, error)

// Join builds a key from path segments.
func Join(parts ...string) string {
	return strings.Join(parts, "/")
}

// childNames extracts the distinct first segment below prefix from keys.
func childNames(prefix string, keys []string) []string {
	p := strings.TrimSuffix(prefix, "/") + "/"
	seen := map[string]struct{}{}
	out := []string{}
	for _, k := range keys {
		if !strings.HasPrefix(k, p) {
			continue
		}
		rest := k[len(p):]
		if i := strings.Index(rest, "/"); i >= 0 {
			rest = rest[:i]
		}
		if rest == "" {
			continue
		}
		if _, ok := seen[rest]; ok {
			continue
		}
		seen[rest] = struct{}{}
		out = append(out, rest)
	}
	sort.Strings(out)
	return out
}

// inTree reports whether key is path itself or lies below it.
func inTree(path, key string) bool {
	path = strings.TrimSuffix(path, "/")
	return key == path || strings.HasPrefix(key, path+"/")
}
