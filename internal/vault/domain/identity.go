package domain

import "strings"

// Identity is an opaque token identifying an authenticated caller.
// The engine never authenticates identities; it only compares them against
// stored owner sets.
type Identity string

// IsZero reports whether the identity is empty after trimming.
func (id Identity) IsZero() bool {
	return strings.TrimSpace(string(id)) == ""
}

// IsValid reports whether the identity is usable as an owner token:
// non-empty after trimming and free of NUL bytes, which the storage layer
// reserves as a key separator.
func (id Identity) IsValid() bool {
	return !id.IsZero() && !strings.ContainsRune(string(id), 0)
}

// normalizeIdentity trims surrounding whitespace from an identity token.
func normalizeIdentity(id Identity) Identity {
	return Identity(strings.TrimSpace(string(id)))
}
