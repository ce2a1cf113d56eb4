package inter

import "time"

// Timestamp is a wall-clock instant in nanoseconds since the Unix epoch.
// It is unsigned so that it encodes with RLP, which has no signed integers.
type Timestamp uint64

// TimestampOf converts a time.Time. Instants before the epoch clamp to zero.
func TimestampOf(t time.Time) Timestamp {
	ns := t.UnixNano()
	if ns < 0 {
		return 0
	}
	return Timestamp(ns)
}

// Time converts the timestamp back to a UTC time.Time.
func (t Timestamp) Time() time.Time {
	return time.Unix(0, int64(t)).UTC()
}

// Unix returns whole seconds since the epoch.
func (t Timestamp) Unix() int64 {
	return int64(t) / int64(time.Second)
}

func (t Timestamp) String() string {
	return t.Time().Format(time.RFC3339Nano)
}
