package report

import (
	"encoding/json"
	"os"
	"testing"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/spigell/jobpilot/internal/projection"
)

func messages(logs *observer.ObservedLogs) []string {
	var out []string
	for _, entry := range logs.All() {
		out = append(out, entry.Message)
	}
	return out
}

func TestRenderLogsChanges(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	r := New(zap.New(core))

	connecting := projection.ViewModel{RunID: "run-1", Phase: "connecting", Busy: true, ListLabel: projection.LabelAvailable,
		Jobs: []projection.JobCard{{ID: "1", Title: "X", Company: "Y", Stage: "listed"}}}
	r.Render(connecting)
	r.Render(connecting)

	ranked := projection.ViewModel{RunID: "run-1", Phase: "ranked", Message: "ranked 2 matches", Busy: true, ListLabel: projection.LabelRanked,
		Jobs: []projection.JobCard{
			{ID: "1", Title: "X", Company: "Y", Stage: "listed", MatchLabel: "80% match"},
			{ID: "2", Title: "Z", Company: "Y", Stage: "listed", MatchLabel: "60% match"},
		},
		Artifact: &projection.ArtifactSummary{Tags: []string{"Go"}, Achievements: []string{"a"}},
	}
	r.Render(ranked)

	progress := ranked
	progress.Message = "Tailoring application for: X"
	progress.Jobs = []projection.JobCard{
		{ID: "1", Title: "X", Company: "Y", Stage: "tailoring", Badges: []projection.Badge{projection.BadgeTailoring}, MatchLabel: "80% match"},
		{ID: "2", Title: "Z", Company: "Y", Stage: "violation", Badges: []projection.Badge{projection.BadgeBlocked}, MatchLabel: "60% match",
			Violation: &projection.Violation{Reason: "fabricated skill", Details: []string{"Rust"}}},
	}
	r.Render(progress)

	want := []string{
		"run phase changed",
		"run phase changed",
		"ranked 2 matches",
		"jobs ranked",
		"identity artifact",
		"Tailoring application for: X",
		"job stage changed",
		"application blocked",
	}
	if diff := cmp.Diff(want, messages(logs)); diff != "" {
		t.Fatalf("log lines mismatch (-want +got):\n%s", diff)
	}

	blocked := logs.FilterMessage("application blocked").All()[0]
	if blocked.Level != zapcore.WarnLevel {
		t.Fatalf("expected warn level, got %s", blocked.Level)
	}
	fields := blocked.ContextMap()
	if fields["job_id"] != "2" || fields["reason"] != "fabricated skill" || fields["run_id"] != "run-1" {
		t.Fatalf("unexpected fields: %v", fields)
	}
}

func TestRenderErrored(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	r := New(zap.New(core))

	r.Render(projection.ViewModel{RunID: "run-1", Phase: "thinking"})
	r.Render(projection.ViewModel{RunID: "run-1", Phase: "errored", Failure: "stream_interrupted", Error: "connection reset", CanStart: true})

	failed := logs.FilterMessage("run failed").All()
	if len(failed) != 1 {
		t.Fatalf("expected one failure line, got %d", len(failed))
	}
	if failed[0].ContextMap()["failure"] != "stream_interrupted" {
		t.Fatalf("unexpected fields: %v", failed[0].ContextMap())
	}
}

func TestRenderNewRunReportsJobsAgain(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	r := New(zap.New(core))

	card := projection.JobCard{ID: "1", Title: "X", Stage: "applied", Badges: []projection.Badge{projection.BadgeApplied}}
	r.Render(projection.ViewModel{RunID: "run-1", Phase: "complete", Jobs: []projection.JobCard{card}})
	r.Render(projection.ViewModel{RunID: "run-2", Phase: "complete", Jobs: []projection.JobCard{card}})

	if n := logs.FilterMessage("job stage changed").Len(); n != 2 {
		t.Fatalf("expected job reported for each run, got %d", n)
	}
}

func TestDump(t *testing.T) {
	vm := projection.ViewModel{RunID: "run-1", Phase: "complete", Jobs: []projection.JobCard{{ID: "1", Title: "X", Stage: "applied"}}}

	name, err := Dump(vm)
	if err != nil {
		t.Fatalf("dump: %v", err)
	}
	t.Cleanup(func() { os.Remove(name) })

	data, err := os.ReadFile(name)
	if err != nil {
		t.Fatalf("read dump: %v", err)
	}

	var got projection.ViewModel
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("decode dump: %v", err)
	}
	if got.RunID != "run-1" || len(got.Jobs) != 1 || got.Jobs[0].Stage != "applied" {
		t.Fatalf("unexpected dump: %+v", got)
	}
}

func TestByCompany(t *testing.T) {
	vm := projection.ViewModel{Jobs: []projection.JobCard{
		{Title: "X", Company: "Acme", Stage: "applied", MatchLabel: "80% match"},
		{Title: "Z", Company: "Acme", Stage: "violation", Violation: &projection.Violation{Reason: "fabricated skill"}},
		{Title: "W", Stage: "listed", MissingSkills: []string{"Rust", "K8s"}},
	}}

	want := map[string][]map[string]string{
		"Acme": {
			{"title": "X", "stage": "applied", "match": "80% match"},
			{"title": "Z", "stage": "violation", "blocked": "fabricated skill"},
		},
		"unknown company": {
			{"title": "W", "stage": "listed", "missing skills": "Rust, K8s"},
		},
	}
	if diff := cmp.Diff(want, ByCompany(vm)); diff != "" {
		t.Fatalf("report mismatch (-want +got):\n%s", diff)
	}
}
