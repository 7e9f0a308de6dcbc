package pointers

import "time"

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T { return &v }

func String(v string) *string { return &v }
func Bool(v bool) *bool       { return &v }

// TimeUTC returns a pointer to t normalised to UTC.
func TimeUTC(t time.Time) *time.Time {
	u := t.UTC()
	return &u
}
