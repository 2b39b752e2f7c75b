/*
Package uid – session identifiers.

Every upload session and CLI invocation is tagged with a ULID so log lines of
one run can be grouped and sorted by start time.
*/
package uid

import (
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
)

// New returns a fresh 26-character ULID for the current time.
func New() string {
	return ulid.Make().String()
}

// NewAt returns a ULID for the given time.
func NewAt(t time.Time) string {
	return ulid.MustNew(ulid.Timestamp(t), ulid.DefaultEntropy()).String()
}

// Time extracts the timestamp encoded in a ULID string.
func Time(s string) (time.Time, error) {
	id, err := ulid.ParseStrict(s)
	if err != nil {
		return time.Time{}, fmt.Errorf("uid: %w", err)
	}
	return ulid.Time(id.Time()), nil
}
