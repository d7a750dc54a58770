package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrTransport means a remote call failed or returned a non-success status.
	ErrTransport = errors.New("transport error")

	// ErrMalformedRecord means a response decoded but violated the record shape.
	ErrMalformedRecord = errors.New("malformed record")

	// ErrUpsertFailed means the store rejected an atomic write.
	ErrUpsertFailed = errors.New("upsert failed")

	// ErrPictureUnavailable means the picture of the day could not be fetched or decoded.
	ErrPictureUnavailable = errors.New("picture of the day unavailable")
)

// MalformedRecordError locates a record that failed extraction.
type MalformedRecordError struct {
	Date  string // enclosing feed key
	Index int    // position within the date's array
	ID    string // empty when the id itself is missing
	Field string
	Err   error
}

func (e *MalformedRecordError) Error() string {
	if e.Date == "" {
		return fmt.Sprintf("malformed feed: %s: %v", e.Field, e.Err)
	}
	if e.ID != "" {
		return fmt.Sprintf("malformed record %s[%d] (id %s): field %s: %v", e.Date, e.Index, e.ID, e.Field, e.Err)
	}
	return fmt.Sprintf("malformed record %s[%d]: field %s: %v", e.Date, e.Index, e.Field, e.Err)
}

func (e *MalformedRecordError) Unwrap() error { return e.Err }

// Is makes every MalformedRecordError match ErrMalformedRecord.
func (e *MalformedRecordError) Is(target error) bool {
	return target == ErrMalformedRecord
}
