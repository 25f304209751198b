// Package types defines CipherSwarm's domain entities: Project, HashList,
// HashItem, Campaign, Attack, Task, Agent, HashcatBenchmark, HashcatStatus,
// and AgentError, plus the enums and state machines that govern them.
package types

import "time"

// Project is the isolation boundary: it owns HashLists, Campaigns, and
// (transitively) Attacks, Tasks, and HashItems.
type Project struct {
	ID        string
	Name      string
	CreatedAt time.Time
}

// HashType identifies a hashcat hash mode.
type HashType int

const (
	HashTypeMD5 HashType = 0
)

// HashList is an ordered collection of HashItems bound to one HashType and
// one Project.
type HashList struct {
	ID        string
	ProjectID string
	Name      string
	HashType  HashType
	Processed bool
	CreatedAt time.Time
	UpdatedAt time.Time
	Version   int64
}

// HashItem is one hash within a HashList.
type HashItem struct {
	ID           string
	HashListID   string
	HashValue    string
	Salt         string
	Cracked      bool
	PlainText    *string
	CrackedTime  *time.Time
	CrackedByID  *string // Attack.ID that cracked it
	Version      int64
}

// Priority is an ordinal: deferred < low < normal < high.
type Priority int

const (
	PriorityDeferred Priority = iota
	PriorityLow
	PriorityNormal
	PriorityHigh
)

func (p Priority) String() string {
	switch p {
	case PriorityDeferred:
		return "deferred"
	case PriorityLow:
		return "low"
	case PriorityNormal:
		return "normal"
	case PriorityHigh:
		return "high"
	default:
		return "unknown"
	}
}

// Campaign is a named unit of work against one HashList within one Project.
type Campaign struct {
	ID        string
	ProjectID string
	HashListID string
	Name      string
	Priority  Priority
	Paused    bool
	CreatorID string
	CreatedAt time.Time
	UpdatedAt time.Time
	Version   int64
}

// AttackMode enumerates the hashcat invocation recipes CipherSwarm supports.
type AttackMode string

const (
	AttackModeDictionary  AttackMode = "dictionary"
	AttackModeMask        AttackMode = "mask"
	AttackModeBruteForce  AttackMode = "brute_force"
	AttackModeHybridDM    AttackMode = "hybrid_dm"
	AttackModeHybridMD    AttackMode = "hybrid_md"
	AttackModeIncremental AttackMode = "incremental"
)

// AttackState is the lifecycle state of an Attack (spec.md §4.1).
type AttackState string

const (
	AttackPending   AttackState = "pending"
	AttackRunning   AttackState = "running"
	AttackCompleted AttackState = "completed"
	AttackExhausted AttackState = "exhausted"
	AttackFailed    AttackState = "failed"
	AttackPaused    AttackState = "paused"
	AttackAbandoned AttackState = "abandoned"
)

// WorkloadProfile mirrors hashcat's -w flag (1-4).
type WorkloadProfile int

// Attack is one hashcat invocation recipe within a Campaign.
type Attack struct {
	ID         string
	CampaignID string

	AttackMode AttackMode
	Mask       string

	IncrementMin int
	IncrementMax int

	CustomCharset1 string
	CustomCharset2 string
	CustomCharset3 string
	CustomCharset4 string

	MarkovEnabled    bool
	OptimizedKernels bool
	WorkloadProfile  WorkloadProfile

	LeftRuleListID  *string
	RightRuleListID *string

	WordListID *string
	RuleListID *string
	MaskListID *string

	// ComplexityValue is the nonnegative candidate-space size estimate.
	ComplexityValue int64

	State AttackState

	CreatedAt time.Time
	UpdatedAt time.Time
	Version   int64
}

// TaskState is the lifecycle state of a Task (spec.md §4.1).
type TaskState string

const (
	TaskPending   TaskState = "pending"
	TaskRunning   TaskState = "running"
	TaskPaused    TaskState = "paused"
	TaskCompleted TaskState = "completed"
	TaskFailed    TaskState = "failed"
	TaskExhausted TaskState = "exhausted"
	TaskAbandoned TaskState = "abandoned"
)

// Incomplete reports whether s is one of {pending, running, paused}.
func (s TaskState) Incomplete() bool {
	switch s {
	case TaskPending, TaskRunning, TaskPaused:
		return true
	default:
		return false
	}
}

func (s TaskState) Terminal() bool {
	switch s {
	case TaskCompleted, TaskFailed, TaskExhausted, TaskAbandoned:
		return true
	default:
		return false
	}
}

// Task is one assignment of an Attack to an Agent.
type Task struct {
	ID       string
	AttackID string
	AgentID  *string // nil once reassigned/cleared

	State TaskState

	// Stale forces the agent to re-sync cracked hashes before continuing.
	Stale bool

	RetryCount      int
	PreemptionCount int
	LastError       string

	ActivityTimestamp time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time

	Version int64
}

// AgentState is the lifecycle state of an Agent (spec.md §4.6).
type AgentState string

const (
	AgentPending AgentState = "pending"
	AgentActive  AgentState = "active"
	AgentOffline AgentState = "offline"
	AgentError   AgentState = "error"
)

// DeviceEntry describes one compute device (GPU/CPU) on an Agent.
type DeviceEntry struct {
	ID   int
	Name string
	Type string
}

// AdvancedConfiguration holds an Agent's operator-tunable behavior.
type AdvancedConfiguration struct {
	UpdateInterval     time.Duration
	UseNativeHashcat   bool
	DeviceSelection    []int
}

// Agent is a worker that runs hashcat.
type Agent struct {
	ID         string
	UserID     string
	ProjectIDs []string

	State   AgentState
	Trusted bool

	HostName        string
	OperatingSystem string
	LastIPAddress   string
	LastSeenAt      time.Time

	Devices []DeviceEntry

	AdvancedConfig *AdvancedConfiguration

	CreatedAt time.Time
	UpdatedAt time.Time
	Version   int64
}

// HasProject reports whether the agent belongs to projectID.
func (a *Agent) HasProject(projectID string) bool {
	for _, p := range a.ProjectIDs {
		if p == projectID {
			return true
		}
	}
	return false
}

// HashcatBenchmark is a (agent, hash_type) -> hash_speed measurement.
type HashcatBenchmark struct {
	ID        string
	AgentID   string
	HashType  HashType
	HashSpeed int64 // guesses/sec
	CreatedAt time.Time
}

// DeviceStatus is the per-device telemetry nested inside a HashcatStatus.
type DeviceStatus struct {
	DeviceID    int
	DeviceName  string
	DeviceType  string
	Speed       int64
	Utilization float64
	Temperature float64
}

// HashcatGuess carries the candidate-mask metadata hashcat reports.
type HashcatGuess struct {
	GuessBase       string
	GuessBaseCount  int64
	GuessBaseOffset int64
	GuessModule     string
}

// Hashcat's own runtime status codes, as reported in HashcatStatus.Status
// (hashcat's status.c): STATUS_EXHAUSTED and STATUS_CRACKED are the two
// terminal codes a running task can report; every other code (running,
// paused, autotuning, ...) is non-terminal from the scheduler's view.
const (
	HashcatStatusExhausted = 5
	HashcatStatusCracked   = 6
)

// HashcatStatus is a periodic telemetry frame from a running Task.
type HashcatStatus struct {
	ID     string
	TaskID string

	Time time.Time

	// Progress is [done, total].
	Progress [2]int64

	Status int // hashcat's numeric state code

	Guess HashcatGuess

	RestorePoint    int64
	RejectedCount   int64
	DeviceStatuses  []DeviceStatus
}

// FractionDone returns done/total, or 0 if total is 0.
func (h *HashcatStatus) FractionDone() float64 {
	if h == nil || h.Progress[1] == 0 {
		return 0
	}
	return float64(h.Progress[0]) / float64(h.Progress[1])
}

// AgentErrorSeverity ranks an AgentError's impact.
type AgentErrorSeverity string

const (
	SeverityInfo    AgentErrorSeverity = "info"
	SeverityWarning AgentErrorSeverity = "warning"
	SeverityMajor   AgentErrorSeverity = "major"
	SeverityFatal   AgentErrorSeverity = "fatal"
)

// AgentError is an incident attributable to an Agent and optionally a Task.
// Only Fatal severity blocks reassignment of the same task.
type AgentError struct {
	ID       string
	AgentID  string
	TaskID   *string
	Severity AgentErrorSeverity
	Message  string
	Code     string
	CreatedAt time.Time
}
