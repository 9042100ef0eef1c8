package echo

import "github.com/google/uuid"

// TrackerLen is the number of payload bytes used to tag probes of one run.
const TrackerLen = len(uuid.UUID{})

// NewPayload returns a payload of size bytes. When size allows, the first
// TrackerLen bytes hold tracker; the rest is an incrementing byte pattern.
func NewPayload(size int, tracker uuid.UUID) []byte {
	if size <= 0 {
		return []byte{}
	}
	b := make([]byte, size)
	start := 0
	if size >= TrackerLen {
		t, _ := tracker.MarshalBinary()
		copy(b, t)
		start = TrackerLen
	}
	for i := start; i < size; i++ {
		b[i] = byte(i)
	}
	return b
}

// Tracker returns the tracker carried by payload, if it is long enough to
// hold one.
func Tracker(payload []byte) (uuid.UUID, bool) {
	if len(payload) < TrackerLen {
		return uuid.Nil, false
	}
	var t uuid.UUID
	if err := t.UnmarshalBinary(payload[:TrackerLen]); err != nil {
		return uuid.Nil, false
	}
	return t, true
}
