// Package projection derives what the client shows from a run state snapshot.
// Project has no hidden state: the same State always yields the same ViewModel.
package projection

import (
	"fmt"

	"github.com/spigell/jobpilot/internal/logger"
	"github.com/spigell/jobpilot/internal/runstate"
)

const (
	LabelRanked    = "ranked matches"
	LabelAvailable = "available jobs"

	maxAchievements    = 5
	descriptionPreview = 150
)

type Badge string

const (
	BadgeTailoring Badge = "tailoring"
	BadgeAuditing  Badge = "auditing"
	BadgeApplying  Badge = "applying"
	BadgeApplied   Badge = "applied"
	BadgeBlocked   Badge = "blocked"
)

type ViewModel struct {
	RunID     string           `json:"run_id,omitempty"`
	Phase     string           `json:"phase"`
	Message   string           `json:"message,omitempty"`
	Error     string           `json:"error,omitempty"`
	Failure   string           `json:"failure,omitempty"`
	Busy      bool             `json:"busy"`
	CanStart  bool             `json:"can_start"`
	ListLabel string           `json:"list_label"`
	Jobs      []JobCard        `json:"jobs"`
	Counts    Counts           `json:"counts"`
	Artifact  *ArtifactSummary `json:"artifact,omitempty"`
}

type JobCard struct {
	ID                 string     `json:"id"`
	Title              string     `json:"title"`
	Company            string     `json:"company"`
	Preview            string     `json:"preview,omitempty"`
	Stage              string     `json:"stage"`
	Badges             []Badge    `json:"badges,omitempty"`
	MatchLabel         string     `json:"match_label,omitempty"`
	InsightsTab        bool       `json:"insights_tab"`
	Reasoning          string     `json:"reasoning,omitempty"`
	InterviewQuestions []string   `json:"interview_questions,omitempty"`
	MissingSkills      []string   `json:"missing_skills,omitempty"`
	Violation          *Violation `json:"violation,omitempty"`
}

type Violation struct {
	Reason  string   `json:"reason"`
	Details []string `json:"details,omitempty"`
}

type Counts struct {
	Listed     int `json:"listed"`
	InProgress int `json:"in_progress"`
	Applied    int `json:"applied"`
	Violations int `json:"violations"`
}

type ArtifactSummary struct {
	Tags         []string `json:"tags"`
	Achievements []string `json:"achievements"`
}

// Project builds the view model for state.
func Project(state runstate.State) ViewModel {
	jobs := state.Jobs()

	vm := ViewModel{
		RunID:     state.RunID,
		Phase:     state.Phase.String(),
		Message:   state.StatusMessage,
		Error:     state.Error,
		Failure:   string(state.Failure),
		Busy:      state.Phase.IsLive(),
		ListLabel: listLabel(jobs),
		Jobs:      make([]JobCard, 0, len(jobs)),
		Artifact:  summarize(state.Artifact),
	}
	vm.CanStart = !vm.Busy

	for _, job := range jobs {
		vm.Jobs = append(vm.Jobs, card(job))
	}
	vm.Counts = recount(jobs)

	return vm
}

func listLabel(jobs []runstate.JobView) string {
	if len(jobs) > 0 && jobs[0].MatchScore != nil {
		return LabelRanked
	}
	return LabelAvailable
}

func card(job runstate.JobView) JobCard {
	c := JobCard{
		ID:                 job.ID,
		Title:              job.Title,
		Company:            job.Company,
		Preview:            logger.TruncateForLog(job.Description, descriptionPreview),
		Stage:              job.Stage.String(),
		Badges:             badges(job),
		Reasoning:          job.Reasoning,
		InterviewQuestions: append([]string(nil), job.InterviewQuestions...),
		MissingSkills:      append([]string(nil), job.MissingSkills...),
	}

	if job.MatchScore != nil {
		c.MatchLabel = fmt.Sprintf("%d%% match", *job.MatchScore)
	}
	c.InsightsTab = job.Stage != runstate.StageViolation && job.MatchScore != nil

	if job.Violation != nil {
		c.Violation = &Violation{
			Reason:  job.Violation.Reason,
			Details: append([]string(nil), job.Violation.Details...),
		}
	}

	return c
}

func badges(job runstate.JobView) []Badge {
	switch job.Stage {
	case runstate.StageTailoring:
		return []Badge{BadgeTailoring}
	case runstate.StageAuditing:
		return []Badge{BadgeAuditing}
	case runstate.StageApplying:
		return []Badge{BadgeApplying}
	case runstate.StageApplied:
		return []Badge{BadgeApplied}
	case runstate.StageViolation:
		return []Badge{BadgeBlocked}
	}
	return nil
}

func recount(jobs []runstate.JobView) Counts {
	var counts Counts
	for _, job := range jobs {
		switch job.Stage {
		case runstate.StageListed:
			counts.Listed++
		case runstate.StageApplied:
			counts.Applied++
		case runstate.StageViolation:
			counts.Violations++
		default:
			counts.InProgress++
		}
	}
	return counts
}

func summarize(artifact *runstate.Artifact) *ArtifactSummary {
	if artifact == nil {
		return nil
	}

	summary := &ArtifactSummary{
		Tags:         make([]string, 0, len(artifact.Tags)),
		Achievements: append([]string(nil), artifact.Achievements...),
	}
	for _, tag := range artifact.Tags {
		summary.Tags = append(summary.Tags, tag.Name)
	}
	if len(summary.Achievements) > maxAchievements {
		summary.Achievements = summary.Achievements[:maxAchievements]
	}

	return summary
}

// Badge returns the card's primary badge, empty for listed jobs.
func (c JobCard) Badge() Badge {
	if len(c.Badges) == 0 {
		return ""
	}
	return c.Badges[0]
}
