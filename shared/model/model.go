// Package model defines the domain enums and document shapes shared by the
// Store Gateway, the Registry, the Scheduler, and the Completion Ingestor.
// The wire message set lives in shared/wire; this package is the persisted
// counterpart.
package model

// AgentStatus is the connection state of an agent as recorded in the
// agents collection. Encoded as an integer on the wire to the store:
// Offline=0, Online=1.
type AgentStatus int32

const (
	AgentStatusOffline AgentStatus = 0
	AgentStatusOnline  AgentStatus = 1
)

func (s AgentStatus) String() string {
	if s == AgentStatusOnline {
		return "Online"
	}
	return "Offline"
}

// JobStatus is the execution state of a job definition. Encoded as an
// integer: Pending=0, Running=1, Completed=2, Error=3. Error is reserved —
// the core never assigns it.
type JobStatus int32

const (
	JobStatusPending   JobStatus = 0
	JobStatusRunning   JobStatus = 1
	JobStatusCompleted JobStatus = 2
	JobStatusError     JobStatus = 3
)

func (s JobStatus) String() string {
	switch s {
	case JobStatusPending:
		return "Pending"
	case JobStatusRunning:
		return "Running"
	case JobStatusCompleted:
		return "Completed"
	case JobStatusError:
		return "Error"
	default:
		return "JobStatus(?)"
	}
}

// Agent is the document shape stored in the agents collection.
type Agent struct {
	Name     string      `bson:"name"`
	Hostname string      `bson:"hostname"`
	Port     int32       `bson:"port"`
	LastPing int64       `bson:"last_ping"`
	Status   AgentStatus `bson:"status"`
}

// Job is the document shape stored in the jobs collection.
type Job struct {
	Name             string    `bson:"name"`
	Command          string    `bson:"command"`
	Args             []string  `bson:"args"`
	Env              []string  `bson:"env"`
	Cwd              string    `bson:"cwd"`
	TimeoutSeconds   int64     `bson:"timeout"`
	Retries          int32     `bson:"retries"`
	ValidReturnCodes []int32   `bson:"valid_return_codes"`
	NextRun          int64     `bson:"next_run"`
	AgentsRequired   []string  `bson:"agents_required"`
	Status           JobStatus `bson:"status"`
	AgentsRunning    []string  `bson:"agents_running"`
	AgentsComplete   []string  `bson:"agents_complete"`
}

// Run is one append-only history row in the runs collection.
type Run struct {
	StartedAt   int64   `bson:"started_at"`
	CompletedAt int64   `bson:"completed_at"`
	JobName     string  `bson:"job_name"`
	Command     string  `bson:"command"`
	AgentName   string  `bson:"agent_name"`
	ReturnCode  int32   `bson:"return_code"`
	Outcome     Outcome `bson:"outcome"`
	Output      string  `bson:"output"`
}

// Outcome is the per-run classification. Encoded as an integer:
// Failure=0, Success=1, Unknown=2.
type Outcome int32

const (
	OutcomeFailure Outcome = 0
	OutcomeSuccess Outcome = 1
	OutcomeUnknown Outcome = 2
)

func (o Outcome) String() string {
	switch o {
	case OutcomeFailure:
		return "Failure"
	case OutcomeSuccess:
		return "Success"
	case OutcomeUnknown:
		return "Unknown"
	default:
		return "Outcome(?)"
	}
}
