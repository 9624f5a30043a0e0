package util

import "strings"

// Key joins non-empty parts with ':' into a namespaced storage key,
// e.g. Key("mcache", "doc", "users") == "mcache:doc:users".
func Key(parts ...string) string {
	kept := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, ":")
}

// CollectionKey is the Redis hash holding a collection's documents.
func CollectionKey(prefix, ns string) string { return Key(prefix, "doc", ns) }

// LockKey is the Redis key guarding one identifier of a collection.
func LockKey(prefix, ns, id string) string { return Key(prefix, "lock", ns, id) }
