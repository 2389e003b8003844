package wire

import (
	"bytes"
	"errors"
	"io"
	"math/rand"
	"testing"
)

func TestWriteReadFrameRoundTrip(t *testing.T) {
	tests := []struct {
		name    string
		payload []byte
	}{
		{"single-byte payload framed with positive length", []byte{0x01}},
		{"small payload", []byte("hello")},
		{"payload larger than one chunk", bytes.Repeat([]byte("x"), CHUNK+100)},
		{"payload exactly one chunk", bytes.Repeat([]byte("y"), CHUNK)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			if err := WriteFrame(&buf, tt.payload); err != nil {
				t.Fatalf("WriteFrame failed: %v", err)
			}
			got, err := ReadFrame(&buf)
			if err != nil {
				t.Fatalf("ReadFrame failed: %v", err)
			}
			if !bytes.Equal(got, tt.payload) {
				t.Errorf("payload mismatch: got %d bytes, want %d bytes", len(got), len(tt.payload))
			}
		})
	}
}

func TestReadFrameZeroLengthIsClosed(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteClose(&buf); err != nil {
		t.Fatalf("WriteClose failed: %v", err)
	}
	_, err := ReadFrame(&buf)
	if !errors.Is(err, ErrClosed) {
		t.Errorf("err = %v, want ErrClosed", err)
	}
}

func TestReadFrameTruncated(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteFrame(&buf, []byte("hello world")); err != nil {
		t.Fatalf("WriteFrame failed: %v", err)
	}
	full := buf.Bytes()
	short := bytes.NewReader(full[:len(full)-3])
	_, err := ReadFrame(short)
	if !errors.Is(err, ErrTruncated) {
		t.Errorf("err = %v, want ErrTruncated", err)
	}
}

func TestWriteOKReadAck(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteOK(&buf); err != nil {
		t.Fatalf("WriteOK failed: %v", err)
	}
	if err := ReadAck(&buf); err != nil {
		t.Errorf("ReadAck failed: %v", err)
	}
}

func TestReadAckMismatch(t *testing.T) {
	buf := bytes.NewBufferString("NO")
	err := ReadAck(buf)
	if !errors.Is(err, ErrAck) {
		t.Errorf("err = %v, want ErrAck", err)
	}
}

// loopback adapts a pair of pipes into a single io.ReadWriter so Send/Receive
// can be exercised without a real socket.
type loopback struct {
	r io.Reader
	w io.Writer
}

func (l loopback) Read(p []byte) (int, error)  { return l.r.Read(p) }
func (l loopback) Write(p []byte) (int, error) { return l.w.Write(p) }

func TestSendReceiveRoundTrip(t *testing.T) {
	c2sR, c2sW := io.Pipe()
	s2cR, s2cW := io.Pipe()

	client := loopback{r: s2cR, w: c2sW}
	server := loopback{r: c2sR, w: s2cW}

	msg := RegisterAgent{Name: "alpha", Hostname: "127.0.0.1", Port: 9001}

	done := make(chan error, 1)
	go func() {
		done <- Send(client, msg)
	}()

	got, err := Receive(server)
	if err != nil {
		t.Fatalf("Receive failed: %v", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	ra, ok := got.(RegisterAgent)
	if !ok {
		t.Fatalf("received type = %T, want RegisterAgent", got)
	}
	if ra != msg {
		t.Errorf("received = %+v, want %+v", ra, msg)
	}
}

// TestFramingSurvivesArbitrarySplitting verifies that a reader sees the same
// sequence of frames regardless of how the underlying stream was segmented,
// by feeding the concatenated bytes through a reader that returns a random
// number of bytes per Read call.
func TestFramingSurvivesArbitrarySplitting(t *testing.T) {
	var wire bytes.Buffer
	msgs := []Message{
		Ping{},
		RegisterAgent{Name: "a", Hostname: "h1", Port: 1},
		JobComplete{JobName: "j1", AgentName: "a", Outcome: OutcomeSuccess},
	}
	for _, m := range msgs {
		payload, err := Encode(m)
		if err != nil {
			t.Fatalf("Encode failed: %v", err)
		}
		if err := WriteFrame(&wire, payload); err != nil {
			t.Fatalf("WriteFrame failed: %v", err)
		}
	}

	r := &randomSplitReader{data: wire.Bytes(), rng: rand.New(rand.NewSource(1))}

	for i, want := range msgs {
		payload, err := ReadFrame(r)
		if err != nil {
			t.Fatalf("frame %d: ReadFrame failed: %v", i, err)
		}
		got, err := Decode(payload)
		if err != nil {
			t.Fatalf("frame %d: Decode failed: %v", i, err)
		}
		if !reflect_DeepEqualMessage(got, want) {
			t.Errorf("frame %d mismatch: got %#v, want %#v", i, got, want)
		}
	}
}

// randomSplitReader returns between 1 and 7 bytes per Read call regardless
// of the caller's buffer size, simulating arbitrary TCP segmentation.
type randomSplitReader struct {
	data []byte
	pos  int
	rng  *rand.Rand
}

func (r *randomSplitReader) Read(p []byte) (int, error) {
	if r.pos >= len(r.data) {
		return 0, io.EOF
	}
	n := 1 + r.rng.Intn(7)
	if n > len(p) {
		n = len(p)
	}
	if r.pos+n > len(r.data) {
		n = len(r.data) - r.pos
	}
	copy(p, r.data[r.pos:r.pos+n])
	r.pos += n
	return n, nil
}

func reflect_DeepEqualMessage(a, b Message) bool {
	ae, err1 := Encode(a)
	be, err2 := Encode(b)
	if err1 != nil || err2 != nil {
		return false
	}
	return bytes.Equal(ae, be)
}
