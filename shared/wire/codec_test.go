package wire

import (
	"reflect"
	"testing"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	agent := "alpha"

	tests := []struct {
		name string
		msg  Message
	}{
		{
			name: "Ping",
			msg:  Ping{},
		},
		{
			name: "RegisterAgent",
			msg:  RegisterAgent{Name: "alpha", Hostname: "127.0.0.1", Port: 9001},
		},
		{
			name: "DispatchJob without optional fields",
			msg: DispatchJob{
				JobName: "j1",
				Command: "/bin/true",
				Args:    "",
			},
		},
		{
			name: "DispatchJob with optional fields",
			msg: DispatchJob{
				JobName:          "j1",
				Command:          "/usr/bin/restic",
				Args:             "backup --tag nightly /data",
				AgentName:        &agent,
				ValidReturnCodes: []int32{0, 3},
			},
		},
		{
			name: "JobComplete success",
			msg: JobComplete{
				StartedAt:   1000,
				CompletedAt: 1005,
				JobName:     "j1",
				Command:     "/bin/true",
				AgentName:   "alpha",
				ReturnCode:  0,
				Outcome:     OutcomeSuccess,
				Output:      "",
			},
		},
		{
			name: "JobComplete failure with output",
			msg: JobComplete{
				StartedAt:   1000,
				CompletedAt: 1001,
				JobName:     "j2",
				Command:     "/bin/false",
				AgentName:   "beta",
				ReturnCode:  -1,
				Outcome:     OutcomeFailure,
				Output:      "signal: killed\n",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := Encode(tt.msg)
			if err != nil {
				t.Fatalf("Encode failed: %v", err)
			}

			got, err := Decode(data)
			if err != nil {
				t.Fatalf("Decode failed: %v", err)
			}

			if !reflect.DeepEqual(got, tt.msg) {
				t.Errorf("round-trip mismatch:\n got:  %#v\n want: %#v", got, tt.msg)
			}
		})
	}
}

func TestEncodeTagByte(t *testing.T) {
	tests := []struct {
		name string
		msg  Message
		tag  Tag
	}{
		{"Ping", Ping{}, TagPing},
		{"RegisterAgent", RegisterAgent{}, TagRegisterAgent},
		{"DispatchJob", DispatchJob{}, TagDispatchJob},
		{"JobComplete", JobComplete{}, TagJobComplete},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := Encode(tt.msg)
			if err != nil {
				t.Fatalf("Encode failed: %v", err)
			}
			if len(data) == 0 {
				t.Fatal("encoded message is empty")
			}
			if Tag(data[0]) != tt.tag {
				t.Errorf("tag byte = 0x%02x, want 0x%02x", data[0], tt.tag)
			}
		})
	}
}

func TestDecodeUnknownTag(t *testing.T) {
	_, err := Decode([]byte{0xFF})
	if err == nil {
		t.Fatal("expected error for unknown tag")
	}
}

func TestDecodeEmpty(t *testing.T) {
	_, err := Decode(nil)
	if err == nil {
		t.Fatal("expected error decoding empty buffer")
	}
}

func TestDecodeTruncatedString(t *testing.T) {
	// RegisterAgent with a declared name length that exceeds the remaining
	// bytes — must fail, not panic or read garbage.
	data, err := Encode(RegisterAgent{Name: "alpha", Hostname: "h", Port: 1})
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	// Keep the tag, the 4-byte name length (5) and only 3 of the name bytes.
	truncated := data[:1+4+3]
	if _, err := Decode(truncated); err == nil {
		t.Fatal("expected error decoding truncated message")
	}
}

func TestDispatchJobOptionalFieldsNil(t *testing.T) {
	msg := DispatchJob{JobName: "j1", Command: "/bin/true", Args: ""}
	data, err := Encode(msg)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	decoded, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	got, ok := decoded.(DispatchJob)
	if !ok {
		t.Fatalf("decoded type = %T, want DispatchJob", decoded)
	}
	if got.AgentName != nil {
		t.Errorf("AgentName = %v, want nil", got.AgentName)
	}
	if got.ValidReturnCodes != nil {
		t.Errorf("ValidReturnCodes = %v, want nil", got.ValidReturnCodes)
	}
}
