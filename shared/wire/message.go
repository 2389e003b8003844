// Package wire implements the framed binary protocol shared by the
// coordinator and every agent: a tagged-union message set, a deterministic
// encoder/decoder, and the length-prefixed, chunked, OK-acknowledged framing
// that carries it over TCP.
package wire

import "github.com/actiondispatch/dispatch/shared/model"

// Tag identifies which message variant follows in an encoded frame.
type Tag byte

const (
	TagPing          Tag = 0x01
	TagRegisterAgent Tag = 0x02
	TagDispatchJob   Tag = 0x03
	TagJobComplete   Tag = 0x04
)

// Outcome classifies the result of one job run on one agent. It is the same
// enum model.Outcome persists to the runs collection; JobComplete carries it
// unchanged from agent to store.
type Outcome = model.Outcome

const (
	OutcomeFailure = model.OutcomeFailure
	OutcomeSuccess = model.OutcomeSuccess
	OutcomeUnknown = model.OutcomeUnknown
)

// Message is implemented by every wire variant. The tag is fixed per type
// and drives both encoding and dispatch on decode.
type Message interface {
	Tag() Tag
}

// Ping carries no payload; it exists purely as a liveness signal, sent
// coordinator→agent on the Registry's Ping tick. The Agent Server
// acknowledges and logs it; it does not forward it to the coordinator.
type Ping struct{}

func (Ping) Tag() Tag { return TagPing }

// RegisterAgent announces an agent's identity and reachable endpoint. Sent
// once by an agent immediately after it opens its Reporter Link.
type RegisterAgent struct {
	Name     string
	Hostname string
	Port     int32
}

func (RegisterAgent) Tag() Tag { return TagRegisterAgent }

// DispatchJob instructs a specific agent to run a command. Args is a single
// whitespace-delimited string, not a pre-tokenised slice — tokenisation is
// the executor's job, matching the wire shape spec'd for this variant.
// AgentName and ValidReturnCodes are optional: a nil AgentName or nil
// ValidReturnCodes encodes a cleared presence flag and decodes back to nil.
type DispatchJob struct {
	JobName          string
	Command          string
	Args             string
	AgentName        *string
	ValidReturnCodes []int32
}

func (DispatchJob) Tag() Tag { return TagDispatchJob }

// JobComplete reports the outcome of one job run on one agent. Emitted by
// the executor and carried to the coordinator over the Reporter Link.
type JobComplete struct {
	StartedAt   int64
	CompletedAt int64
	JobName     string
	Command     string
	AgentName   string
	ReturnCode  int32
	Outcome     Outcome
	Output      string
}

func (JobComplete) Tag() Tag { return TagJobComplete }
