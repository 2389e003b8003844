package wire

import "errors"

// Failure modes named in the framing contract. Transient I/O errors from the
// underlying conn are wrapped with these so callers can classify without
// string matching.
var (
	// ErrClosed is returned by ReadFrame when it observes the reserved
	// length-0 frame, signalling the peer is closing cleanly.
	ErrClosed = errors.New("wire: peer closed cleanly")

	// ErrTruncated is returned when a read ends before the declared length
	// is satisfied — a short read or EOF mid-frame.
	ErrTruncated = errors.New("wire: truncated frame")

	// ErrSerialization is returned when decoded bytes do not form a valid
	// message (unknown tag, malformed length prefix).
	ErrSerialization = errors.New("wire: serialization error")

	// ErrWrite wraps failures writing a frame to the underlying connection.
	ErrWrite = errors.New("wire: write error")

	// ErrAck is returned when a writer's post-frame read does not observe
	// the two-byte "OK" acknowledgement.
	ErrAck = errors.New("wire: peer did not acknowledge")
)
