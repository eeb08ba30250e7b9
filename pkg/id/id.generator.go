package id

import (
	"crypto/rand"
	"time"

	"github.com/oklog/ulid/v2"
)

// Prefixes for the record families this service mints.
const (
	PrefixLead    = "lead"
	PrefixMessage = "msg"
)

// Generate returns a prefixed, lexicographically sortable ID,
// e.g. lead_01J8ZQ34R2V5WX6Y7Z8A9B0C1D.
func Generate(prefix string) string {
	id := ulid.MustNew(ulid.Timestamp(time.Now()), ulid.Monotonic(rand.Reader, 0))
	return prefix + "_" + id.String()
}
