package stream

import (
	"bytes"
)

var (
	dataPrefix = []byte("data:")
	doneMarker = []byte("[DONE]")
)

// Data extracts the payload of an SSE "data:" line. Comments, event names
// and other fields report ok == false.
func Data(line []byte) (payload []byte, ok bool) {
	line = bytes.TrimSpace(line)
	if !bytes.HasPrefix(line, dataPrefix) {
		return nil, false
	}
	return bytes.TrimSpace(line[len(dataPrefix):]), true
}

// IsDone reports whether an SSE payload is the end-of-stream sentinel.
func IsDone(payload []byte) bool {
	return bytes.Equal(payload, doneMarker)
}
