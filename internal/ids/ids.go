package ids

import "github.com/oklog/ulid/v2"

// New returns a lexicographically sortable identifier used to correlate
// outbound calls with the inbound request that caused them.
func New() string {
	return ulid.Make().String()
}

// Valid reports whether s is an identifier produced by New.
func Valid(s string) bool {
	_, err := ulid.ParseStrict(s)
	return err == nil
}
