// Package ids generates the identifiers used as directory primary
// keys. ULIDs sort by creation time, which keeps index scans cheap on
// the append-heavy tables.
package ids

import "github.com/oklog/ulid/v2"

// New returns a fresh ULID string.
func New() string {
	return ulid.Make().String()
}
