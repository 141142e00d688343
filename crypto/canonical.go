package crypto

import "encoding/json"

// Canonical marshals v to its canonical JSON encoding: UTF-8, struct fields
// in declaration order (Go's encoding/json already emits struct fields in
// declaration order, which is what makes this "canonical" rather than a
// general map-keyed serialization), and no trailing whitespace. It produces
// the same bytes as the json.Marshal calls core/types uses for block hashes
// and transaction signing bytes.
//
// Callers must pass a struct (not a map) so field order is stable; for the
// same reason core/types signs transactions through a single "signing view"
// struct (signingView in event.go).
func Canonical(v any) ([]byte, error) {
	return json.Marshal(v)
}
