package wire

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// Encode produces the deterministic, endian-stable byte representation of
// msg: a one-byte tag followed by the variant's fields in declaration order.
func Encode(msg Message) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte(byte(msg.Tag()))

	switch m := msg.(type) {
	case Ping:
		// no fields
	case RegisterAgent:
		writeString(&buf, m.Name)
		writeString(&buf, m.Hostname)
		writeInt32(&buf, m.Port)
	case DispatchJob:
		writeString(&buf, m.JobName)
		writeString(&buf, m.Command)
		writeString(&buf, m.Args)
		writeOptString(&buf, m.AgentName)
		writeOptInt32Slice(&buf, m.ValidReturnCodes)
	case JobComplete:
		writeInt64(&buf, m.StartedAt)
		writeInt64(&buf, m.CompletedAt)
		writeString(&buf, m.JobName)
		writeString(&buf, m.Command)
		writeString(&buf, m.AgentName)
		writeInt32(&buf, m.ReturnCode)
		writeInt32(&buf, int32(m.Outcome))
		writeString(&buf, m.Output)
	default:
		return nil, fmt.Errorf("wire: encode: unknown message type %T", msg)
	}

	return buf.Bytes(), nil
}

// Decode parses the byte-for-byte output of Encode back into a Message.
// The decoder accepts any encoding the encoder produces, as the framing
// contract requires.
func Decode(data []byte) (Message, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("wire: decode: %w", ErrTruncated)
	}
	r := bytes.NewReader(data)

	tagByte, err := r.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("wire: decode tag: %w", err)
	}
	tag := Tag(tagByte)

	switch tag {
	case TagPing:
		return Ping{}, nil
	case TagRegisterAgent:
		name, err := readString(r)
		if err != nil {
			return nil, fmt.Errorf("wire: decode RegisterAgent.Name: %w", err)
		}
		hostname, err := readString(r)
		if err != nil {
			return nil, fmt.Errorf("wire: decode RegisterAgent.Hostname: %w", err)
		}
		port, err := readInt32(r)
		if err != nil {
			return nil, fmt.Errorf("wire: decode RegisterAgent.Port: %w", err)
		}
		return RegisterAgent{Name: name, Hostname: hostname, Port: port}, nil
	case TagDispatchJob:
		jobName, err := readString(r)
		if err != nil {
			return nil, fmt.Errorf("wire: decode DispatchJob.JobName: %w", err)
		}
		command, err := readString(r)
		if err != nil {
			return nil, fmt.Errorf("wire: decode DispatchJob.Command: %w", err)
		}
		args, err := readString(r)
		if err != nil {
			return nil, fmt.Errorf("wire: decode DispatchJob.Args: %w", err)
		}
		agentName, err := readOptString(r)
		if err != nil {
			return nil, fmt.Errorf("wire: decode DispatchJob.AgentName: %w", err)
		}
		codes, err := readOptInt32Slice(r)
		if err != nil {
			return nil, fmt.Errorf("wire: decode DispatchJob.ValidReturnCodes: %w", err)
		}
		return DispatchJob{
			JobName:          jobName,
			Command:          command,
			Args:             args,
			AgentName:        agentName,
			ValidReturnCodes: codes,
		}, nil
	case TagJobComplete:
		startedAt, err := readInt64(r)
		if err != nil {
			return nil, fmt.Errorf("wire: decode JobComplete.StartedAt: %w", err)
		}
		completedAt, err := readInt64(r)
		if err != nil {
			return nil, fmt.Errorf("wire: decode JobComplete.CompletedAt: %w", err)
		}
		jobName, err := readString(r)
		if err != nil {
			return nil, fmt.Errorf("wire: decode JobComplete.JobName: %w", err)
		}
		command, err := readString(r)
		if err != nil {
			return nil, fmt.Errorf("wire: decode JobComplete.Command: %w", err)
		}
		agentName, err := readString(r)
		if err != nil {
			return nil, fmt.Errorf("wire: decode JobComplete.AgentName: %w", err)
		}
		returnCode, err := readInt32(r)
		if err != nil {
			return nil, fmt.Errorf("wire: decode JobComplete.ReturnCode: %w", err)
		}
		outcome, err := readInt32(r)
		if err != nil {
			return nil, fmt.Errorf("wire: decode JobComplete.Outcome: %w", err)
		}
		output, err := readString(r)
		if err != nil {
			return nil, fmt.Errorf("wire: decode JobComplete.Output: %w", err)
		}
		return JobComplete{
			StartedAt:   startedAt,
			CompletedAt: completedAt,
			JobName:     jobName,
			Command:     command,
			AgentName:   agentName,
			ReturnCode:  returnCode,
			Outcome:     Outcome(outcome),
			Output:      output,
		}, nil
	default:
		return nil, fmt.Errorf("wire: decode: %w: tag 0x%02x", ErrSerialization, tagByte)
	}
}

// --- field primitives ---

func writeString(buf *bytes.Buffer, s string) {
	writeInt32(buf, int32(len(s)))
	buf.WriteString(s)
}

func readString(r *bytes.Reader) (string, error) {
	n, err := readInt32(r)
	if err != nil {
		return "", err
	}
	if n < 0 {
		return "", fmt.Errorf("%w: negative string length %d", ErrSerialization, n)
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", fmt.Errorf("%w: %v", ErrTruncated, err)
	}
	return string(b), nil
}

func writeOptString(buf *bytes.Buffer, s *string) {
	if s == nil {
		buf.WriteByte(0)
		return
	}
	buf.WriteByte(1)
	writeString(buf, *s)
}

func readOptString(r *bytes.Reader) (*string, error) {
	present, err := r.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTruncated, err)
	}
	if present == 0 {
		return nil, nil
	}
	s, err := readString(r)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func writeOptInt32Slice(buf *bytes.Buffer, vals []int32) {
	if vals == nil {
		buf.WriteByte(0)
		return
	}
	buf.WriteByte(1)
	writeInt32(buf, int32(len(vals)))
	for _, v := range vals {
		writeInt32(buf, v)
	}
}

func readOptInt32Slice(r *bytes.Reader) ([]int32, error) {
	present, err := r.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTruncated, err)
	}
	if present == 0 {
		return nil, nil
	}
	n, err := readInt32(r)
	if err != nil {
		return nil, err
	}
	if n < 0 {
		return nil, fmt.Errorf("%w: negative slice length %d", ErrSerialization, n)
	}
	vals := make([]int32, n)
	for i := range vals {
		v, err := readInt32(r)
		if err != nil {
			return nil, err
		}
		vals[i] = v
	}
	return vals, nil
}

func writeInt32(buf *bytes.Buffer, v int32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], uint32(v))
	buf.Write(b[:])
}

func readInt32(r *bytes.Reader) (int32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrTruncated, err)
	}
	return int32(binary.BigEndian.Uint32(b[:])), nil
}

func writeInt64(buf *bytes.Buffer, v int64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(v))
	buf.Write(b[:])
}

func readInt64(r *bytes.Reader) (int64, error) {
	var b [8]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrTruncated, err)
	}
	return int64(binary.BigEndian.Uint64(b[:])), nil
}
