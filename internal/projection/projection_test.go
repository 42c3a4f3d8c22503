package projection

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/spigell/jobpilot/internal/runstate"
)

func score(v int) *int { return &v }

func TestProjectCatalog(t *testing.T) {
	state := runstate.State{
		Catalog: []runstate.JobView{
			{ID: "1", Title: "Backend Engineer", Company: "Acme", Description: "Go services"},
		},
	}

	want := ViewModel{
		Phase:     "idle",
		CanStart:  true,
		ListLabel: LabelAvailable,
		Jobs: []JobCard{
			{ID: "1", Title: "Backend Engineer", Company: "Acme", Preview: "Go services", Stage: "listed"},
		},
		Counts: Counts{Listed: 1},
	}

	if diff := cmp.Diff(want, Project(state), cmpopts.EquateEmpty()); diff != "" {
		t.Fatalf("view model mismatch (-want +got):\n%s", diff)
	}
}

func TestProjectRankedRun(t *testing.T) {
	state := runstate.State{
		RunID:         "run-1",
		Phase:         runstate.PhaseRanked,
		StatusMessage: "Auto-applying to: X",
		Catalog:       []runstate.JobView{{ID: "9", Title: "ignored"}},
		Ranked:        true,
		RankedJobs: []runstate.JobView{
			{ID: "1", Title: "X", Company: "Y", MatchScore: score(80), Reasoning: "fits", Stage: runstate.StageApplying},
			{ID: "2", Title: "Z", Company: "Y", MatchScore: score(65), Stage: runstate.StageViolation,
				Violation: &runstate.Violation{Reason: "fabricated skill", Details: []string{"Rust"}}},
			{ID: "3", Title: "W", Company: "V", MatchScore: score(50), Stage: runstate.StageApplied},
			{ID: "4", Title: "Q", Company: "V", Stage: runstate.StageListed},
		},
		Artifact: &runstate.Artifact{
			Tags:         []runstate.Tag{{Name: "Go", Category: "languages"}, {Name: "Docker"}},
			Achievements: []string{"a", "b", "c", "d", "e", "f"},
		},
	}

	want := ViewModel{
		RunID:     "run-1",
		Phase:     "ranked",
		Message:   "Auto-applying to: X",
		Busy:      true,
		ListLabel: LabelRanked,
		Jobs: []JobCard{
			{ID: "1", Title: "X", Company: "Y", Stage: "applying", Badges: []Badge{BadgeApplying}, MatchLabel: "80% match", InsightsTab: true, Reasoning: "fits"},
			{ID: "2", Title: "Z", Company: "Y", Stage: "violation", Badges: []Badge{BadgeBlocked}, MatchLabel: "65% match",
				Violation: &Violation{Reason: "fabricated skill", Details: []string{"Rust"}}},
			{ID: "3", Title: "W", Company: "V", Stage: "applied", Badges: []Badge{BadgeApplied}, MatchLabel: "50% match", InsightsTab: true},
			{ID: "4", Title: "Q", Company: "V", Stage: "listed"},
		},
		Counts: Counts{Listed: 1, InProgress: 1, Applied: 1, Violations: 1},
		Artifact: &ArtifactSummary{
			Tags:         []string{"Go", "Docker"},
			Achievements: []string{"a", "b", "c", "d", "e"},
		},
	}

	if diff := cmp.Diff(want, Project(state), cmpopts.EquateEmpty()); diff != "" {
		t.Fatalf("view model mismatch (-want +got):\n%s", diff)
	}
}

func TestProjectErroredRunKeepsProgress(t *testing.T) {
	state := runstate.State{
		RunID:   "run-1",
		Phase:   runstate.PhaseErrored,
		Error:   "connection closed before the run finished",
		Failure: runstate.FailureInterrupted,
		Ranked:  true,
		RankedJobs: []runstate.JobView{
			{ID: "1", Title: "X", Stage: runstate.StageTailoring},
		},
	}

	vm := Project(state)
	if vm.Busy || !vm.CanStart {
		t.Fatalf("expected start control available after error: %+v", vm)
	}
	if vm.Failure != "stream_interrupted" || vm.Error == "" {
		t.Fatalf("unexpected error fields: %q %q", vm.Failure, vm.Error)
	}
	if vm.Jobs[0].Badge() != BadgeTailoring {
		t.Fatalf("expected tailoring badge kept, got %q", vm.Jobs[0].Badge())
	}
	if vm.ListLabel != LabelAvailable {
		t.Fatalf("expected available label without scores, got %q", vm.ListLabel)
	}
}

func TestProjectIsPure(t *testing.T) {
	state := runstate.State{
		Ranked:     true,
		RankedJobs: []runstate.JobView{{ID: "1", MatchScore: score(70), MissingSkills: []string{"Rust"}}},
	}

	first := Project(state)
	first.Jobs[0].MissingSkills[0] = "mutated"

	if diff := cmp.Diff(first.Jobs[0].MatchLabel, Project(state).Jobs[0].MatchLabel); diff != "" {
		t.Fatalf("projection not stable: %s", diff)
	}
	if state.RankedJobs[0].MissingSkills[0] != "Rust" {
		t.Fatalf("projection shares memory with state")
	}
}

func TestPreviewTruncated(t *testing.T) {
	long := strings.Repeat("x", 200)
	vm := Project(runstate.State{Catalog: []runstate.JobView{{ID: "1", Description: long}}})

	if got := vm.Jobs[0].Preview; got != strings.Repeat("x", 150)+"..." {
		t.Fatalf("unexpected preview length %d", len(got))
	}
}
