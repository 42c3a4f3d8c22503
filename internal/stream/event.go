// Package stream decodes the status messages of the matching pipeline into typed events.
package stream

type Kind string

const (
	KindThinking  Kind = "thinking"
	KindArtifact  Kind = "artifact"
	KindRanked    Kind = "ranked"
	KindTailoring Kind = "tailoring"
	KindAuditing  Kind = "auditing"
	KindApplying  Kind = "applying"
	KindApplied   Kind = "applied"
	KindViolation Kind = "violation"
	KindComplete  Kind = "complete"
	KindError     Kind = "error"
)

// Event is one decoded pipeline status. Only the fields of its Kind are set.
type Event struct {
	Kind      Kind
	Message   string
	JobID     string
	JobTitle  string
	Reason    string
	Details   []string
	Jobs      []RankedJob
	Artifact  *Artifact
	// Malformed explains why a ranked payload could not be read. Jobs is empty then.
	Malformed string
}

// RankedJob is an entry of the ranked list, in server rank order.
type RankedJob struct {
	ID                 string   `mapstructure:"id"`
	Title              string   `mapstructure:"title"`
	Company            string   `mapstructure:"company"`
	Description        string   `mapstructure:"description"`
	MatchScore         *float64 `mapstructure:"match_score"`
	Reasoning          string   `mapstructure:"reasoning"`
	InterviewQuestions []string `mapstructure:"interview_questions"`
	MissingSkills      []string `mapstructure:"missing_skills"`
}

// Artifact summarises the candidate identity derived from the résumé.
type Artifact struct {
	Tags         []Tag    `mapstructure:"tags"`
	Achievements []string `mapstructure:"achievements"`
}

type Tag struct {
	Name     string `mapstructure:"name"`
	Category string `mapstructure:"category"`
}

// IsJobEvent reports whether the kind addresses a single job by id.
func (k Kind) IsJobEvent() bool {
	switch k {
	case KindTailoring, KindAuditing, KindApplying, KindApplied, KindViolation:
		return true
	default:
		return false
	}
}
