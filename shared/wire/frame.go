package wire

import (
	"encoding/binary"
	"fmt"
	"io"
)

// CHUNK bounds the size of a single read or write against the underlying
// connection while streaming a frame's payload.
const CHUNK = 8192

// ackBytes is the literal two-byte acknowledgement a receiver writes after
// successfully decoding a frame.
var ackBytes = [2]byte{'O', 'K'}

// WriteFrame writes one length-prefixed frame: a 4-byte big-endian length
// followed by payload, streamed in chunks of at most CHUNK bytes.
func WriteFrame(w io.Writer, payload []byte) error {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(payload)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return fmt.Errorf("%w: length prefix: %v", ErrWrite, err)
	}

	for off := 0; off < len(payload); off += CHUNK {
		end := off + CHUNK
		if end > len(payload) {
			end = len(payload)
		}
		if _, err := w.Write(payload[off:end]); err != nil {
			return fmt.Errorf("%w: payload: %v", ErrWrite, err)
		}
	}
	return nil
}

// WriteClose writes the reserved length-0 frame that signals a clean close.
func WriteClose(w io.Writer) error {
	var lenBuf [4]byte
	if _, err := w.Write(lenBuf[:]); err != nil {
		return fmt.Errorf("%w: close frame: %v", ErrWrite, err)
	}
	return nil
}

// ReadFrame reads one length-prefixed frame, consuming the payload in chunks
// of at most CHUNK bytes. A length of 0 yields ErrClosed. A short read at any
// point yields ErrTruncated.
func ReadFrame(r io.Reader) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, fmt.Errorf("%w: length prefix: %v", ErrTruncated, err)
	}
	length := binary.BigEndian.Uint32(lenBuf[:])
	if length == 0 {
		return nil, ErrClosed
	}

	payload := make([]byte, length)
	for off := uint32(0); off < length; {
		end := off + CHUNK
		if end > length {
			end = length
		}
		n, err := io.ReadFull(r, payload[off:end])
		off += uint32(n)
		if err != nil {
			return nil, fmt.Errorf("%w: payload at offset %d: %v", ErrTruncated, off, err)
		}
	}
	return payload, nil
}

// WriteOK writes the two-byte acknowledgement a receiver sends after a
// successful decode.
func WriteOK(w io.Writer) error {
	if _, err := w.Write(ackBytes[:]); err != nil {
		return fmt.Errorf("%w: %v", ErrWrite, err)
	}
	return nil
}

// ReadAck reads the two-byte acknowledgement a writer waits for after
// sending a frame. Any byte mismatch or read failure is ErrAck.
func ReadAck(r io.Reader) error {
	var got [2]byte
	if _, err := io.ReadFull(r, got[:]); err != nil {
		return fmt.Errorf("%w: %v", ErrAck, err)
	}
	if got != ackBytes {
		return fmt.Errorf("%w: got %q", ErrAck, got[:])
	}
	return nil
}

// Send encodes msg, writes it as a framed message, and waits for the peer's
// OK acknowledgement. Used by every sender role: the Scheduler dispatching
// jobs, the Registry pinging agents, and the Reporter Link reporting
// completions.
func Send(rw io.ReadWriter, msg Message) error {
	payload, err := Encode(msg)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSerialization, err)
	}
	if err := WriteFrame(rw, payload); err != nil {
		return err
	}
	return ReadAck(rw)
}

// Receive reads one framed message, decodes it, and — only on a successful
// decode — writes the OK acknowledgement. A decode failure leaves the
// acknowledgement unsent, so the caller can close the session per the
// framing contract.
func Receive(rw io.ReadWriter) (Message, error) {
	payload, err := ReadFrame(rw)
	if err != nil {
		return nil, err
	}
	msg, err := Decode(payload)
	if err != nil {
		return nil, err
	}
	if err := WriteOK(rw); err != nil {
		return nil, err
	}
	return msg, nil
}
