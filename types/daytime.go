package types

import "time"

// DateTime wraps time.Time for OCPP-J timestamp fields; the embedded
// time.Time keeps RFC3339 JSON compatibility.
type DateTime struct {
	time.Time
}

func NewDateTime(time time.Time) *DateTime {
	return &DateTime{Time: time}
}
