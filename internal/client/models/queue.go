package models

import (
	"net/http"
	"time"
)

// QueueEntry is a persisted submission that has not been delivered yet.
// It is immutable apart from deletion.
//
// ReadErr is set when the stored row could not be unsealed or decoded. Such
// an entry keeps its ID and CreatedAt, has no fields, and cannot be sent.
type QueueEntry struct {
	ID        int64
	Payload   Payload
	CreatedAt time.Time
	ReadErr   error
}

// Readable reports whether the entry's payload was restored.
func (e QueueEntry) Readable() bool {
	return e.ReadErr == nil
}

// CachedResponse is the stored copy of a successful asset fetch.
type CachedResponse struct {
	Status int
	Header http.Header
	Body   []byte
}
