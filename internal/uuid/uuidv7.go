// Package uuid generates the time-ordered identifiers used as primary keys.
package uuid

import (
	googleuuid "github.com/google/uuid"
)

// New returns a UUIDv7 string. The millisecond timestamp prefix keeps
// freshly inserted rows clustered at the tail of btree indexes, which
// matters for the append-heavy snapshot and sync log tables.
func New() string {
	id, err := googleuuid.NewV7()
	if err != nil {
		// The only failure mode is the entropy source; fall back to v4.
		return googleuuid.New().String()
	}
	return id.String()
}

// Parse validates and canonicalizes a UUID string.
func Parse(s string) (string, error) {
	parsed, err := googleuuid.Parse(s)
	if err != nil {
		return "", err
	}
	return parsed.String(), nil
}

// IsValid reports whether s is a well-formed UUID.
func IsValid(s string) bool {
	_, err := googleuuid.Parse(s)
	return err == nil
}
