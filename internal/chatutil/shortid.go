package chatutil

import (
	"github.com/lithammer/shortuuid/v4"
	"github.com/oklog/ulid/v2"
)

// ShortID returns a short, URL-safe unique id for log correlation and for
// permission-request ids. Uses shortuuid (base57-encoded UUID), matching the
// style the wider example corpus uses for human-facing short identifiers.
func ShortID() string {
	return shortuuid.New()
}

// ULID returns a lexically sortable unique id, used for anything ordered by
// creation time (e.g. pending-interaction ids within a session).
func ULID() string {
	return ulid.Make().String()
}
