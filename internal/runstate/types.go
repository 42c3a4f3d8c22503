package runstate

import "time"

// Phase is the aggregate position of a run.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseConnecting
	PhaseThinking
	PhaseRanked
	PhaseFinalizing
	PhaseComplete
	PhaseErrored
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseConnecting:
		return "connecting"
	case PhaseThinking:
		return "thinking"
	case PhaseRanked:
		return "ranked"
	case PhaseFinalizing:
		return "finalizing"
	case PhaseComplete:
		return "complete"
	case PhaseErrored:
		return "errored"
	default:
		return "unknown"
	}
}

// IsTerminal reports whether only a new run can leave the phase.
func (p Phase) IsTerminal() bool {
	return p == PhaseComplete || p == PhaseErrored
}

// IsLive reports whether the run can still accept events.
func (p Phase) IsLive() bool {
	return p != PhaseIdle && !p.IsTerminal()
}

// Stage is the lifecycle position of one job within a run.
type Stage int

const (
	StageListed Stage = iota
	StageTailoring
	StageAuditing
	StageApplying
	StageApplied
	StageViolation
)

func (s Stage) String() string {
	switch s {
	case StageListed:
		return "listed"
	case StageTailoring:
		return "tailoring"
	case StageAuditing:
		return "auditing"
	case StageApplying:
		return "applying"
	case StageApplied:
		return "applied"
	case StageViolation:
		return "violation"
	default:
		return "unknown"
	}
}

func (s Stage) IsTerminal() bool {
	return s == StageApplied || s == StageViolation
}

// Applied and Violation share the last rank: neither can follow the other.
func (s Stage) rank() int {
	if s == StageViolation {
		return int(StageApplied)
	}
	return int(s)
}

// CanAdvance reports whether a job may move from one stage to another.
// Stages only move forward and terminal stages never move.
func CanAdvance(from, to Stage) bool {
	return !from.IsTerminal() && to.rank() > from.rank()
}

// FailureKind classifies why a run ended in PhaseErrored.
type FailureKind string

const (
	FailureConnect     FailureKind = "connect_failed"
	FailureInterrupted FailureKind = "stream_interrupted"
	FailurePeer        FailureKind = "peer_error"
	FailureProtocol    FailureKind = "protocol_violation"
)

type Violation struct {
	Reason  string
	Details []string
}

type Tag struct {
	Name     string
	Category string
}

// Artifact is the identity summary derived from the résumé.
type Artifact struct {
	Tags         []Tag
	Achievements []string
}

// JobView is one job known to the run.
type JobView struct {
	ID                 string
	Title              string
	Company            string
	Description        string
	MatchScore         *int
	Reasoning          string
	InterviewQuestions []string
	MissingSkills      []string
	Stage              Stage
	Violation          *Violation
}

// State is a snapshot of a run. Values handed out by the Store are deep copies.
type State struct {
	RunID         string
	Phase         Phase
	StatusMessage string
	Error         string
	Failure       FailureKind
	Catalog       []JobView
	Ranked        bool
	RankedJobs    []JobView
	Artifact      *Artifact
	StartedAt     time.Time
	FinishedAt    time.Time
}

// Jobs returns the list the run currently shows: the ranked list once it arrived,
// the catalog before that.
func (s State) Jobs() []JobView {
	if s.Ranked {
		return s.RankedJobs
	}
	return s.Catalog
}

// Job looks a job up by id in the current list.
func (s State) Job(id string) (JobView, bool) {
	for _, job := range s.Jobs() {
		if job.ID == id {
			return job, true
		}
	}
	return JobView{}, false
}

func (s State) clone() State {
	out := s
	out.Catalog = cloneJobs(s.Catalog)
	out.RankedJobs = cloneJobs(s.RankedJobs)
	if s.Artifact != nil {
		artifact := Artifact{
			Tags:         append([]Tag(nil), s.Artifact.Tags...),
			Achievements: append([]string(nil), s.Artifact.Achievements...),
		}
		out.Artifact = &artifact
	}
	return out
}

func cloneJobs(jobs []JobView) []JobView {
	if jobs == nil {
		return nil
	}
	out := make([]JobView, len(jobs))
	for i, job := range jobs {
		out[i] = job.clone()
	}
	return out
}

func (j JobView) clone() JobView {
	out := j
	if j.MatchScore != nil {
		score := *j.MatchScore
		out.MatchScore = &score
	}
	out.InterviewQuestions = append([]string(nil), j.InterviewQuestions...)
	out.MissingSkills = append([]string(nil), j.MissingSkills...)
	if j.Violation != nil {
		out.Violation = &Violation{
			Reason:  j.Violation.Reason,
			Details: append([]string(nil), j.Violation.Details...),
		}
	}
	return out
}
