// Package runstate holds the state machine of a matching run: the aggregate
// phase and one lifecycle record per job.
package runstate

import (
	"fmt"
	"sync"
	"time"

	"github.com/spigell/jobpilot/internal/stream"
)

// Store owns the run state. A single writer applies events; readers receive copies.
type Store struct {
	mu          sync.RWMutex
	state       State
	index       map[string]int
	subscribers []func(State)
	changeCh    chan struct{}
	now         func() time.Time
}

func NewStore() *Store {
	return &Store{
		index:    make(map[string]int),
		changeCh: make(chan struct{}, 1),
		now:      time.Now,
	}
}

// Snapshot returns a deep copy of the current state.
func (s *Store) Snapshot() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.clone()
}

// Subscribe registers fn to receive a snapshot after every change.
// fn runs on the writer's goroutine and must not call back into the writer.
func (s *Store) Subscribe(fn func(State)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscribers = append(s.subscribers, fn)
}

// Changes signals state changes. Signals coalesce when nobody is reading.
func (s *Store) Changes() <-chan struct{} {
	return s.changeCh
}

// SeedCatalog replaces the unranked job list shown before ranking arrives.
func (s *Store) SeedCatalog(jobs []JobView) error {
	s.mu.Lock()
	if s.state.Phase.IsLive() {
		s.mu.Unlock()
		return fmt.Errorf("seed catalog: %w", ErrRunInProgress)
	}

	catalog := make([]JobView, 0, len(jobs))
	seen := make(map[string]struct{}, len(jobs))
	for _, job := range jobs {
		if job.ID == "" {
			continue
		}
		if _, dup := seen[job.ID]; dup {
			continue
		}
		seen[job.ID] = struct{}{}

		job = job.clone()
		job.Stage = StageListed
		job.Violation = nil
		catalog = append(catalog, job)
	}
	s.state.Catalog = catalog
	s.mu.Unlock()

	s.notify()
	return nil
}

// Start discards the previous run and enters PhaseConnecting for runID.
// The catalog survives.
func (s *Store) Start(runID string) {
	s.mu.Lock()
	s.state = State{
		RunID:     runID,
		Phase:     PhaseConnecting,
		Catalog:   s.state.Catalog,
		StartedAt: s.now(),
	}
	s.index = make(map[string]int)
	s.mu.Unlock()

	s.notify()
}

// Reset returns to PhaseIdle, keeping the catalog.
func (s *Store) Reset() {
	s.mu.Lock()
	s.state = State{Catalog: s.state.Catalog}
	s.index = make(map[string]int)
	s.mu.Unlock()

	s.notify()
}

// Apply performs the transition for one decoded event. It returns nil when the
// state changed. Dropped events return an error matching IsIgnorable. A
// duplicate ranked list moves the run to PhaseErrored and returns ErrProtocolViolation.
func (s *Store) Apply(event stream.Event) error {
	s.mu.Lock()
	changed, err := s.apply(event)
	s.mu.Unlock()

	if changed {
		s.notify()
	}
	return err
}

// Fail ends a live run in PhaseErrored. Job stages keep their last value.
func (s *Store) Fail(kind FailureKind, message string) error {
	s.mu.Lock()
	if err := s.checkLive(string(kind)); err != nil {
		s.mu.Unlock()
		return err
	}
	s.fail(kind, message)
	s.mu.Unlock()

	s.notify()
	return nil
}

func (s *Store) checkLive(what string) error {
	switch {
	case s.state.Phase == PhaseIdle:
		return fmt.Errorf("%s: %w", what, ErrNotRunning)
	case s.state.Phase.IsTerminal():
		return fmt.Errorf("%s after %s: %w", what, s.state.Phase, ErrRunFinished)
	}
	return nil
}

func (s *Store) apply(event stream.Event) (bool, error) {
	if err := s.checkLive(string(event.Kind)); err != nil {
		return false, err
	}

	st := &s.state
	switch event.Kind {
	case stream.KindThinking:
		st.StatusMessage = event.Message
		if st.Phase == PhaseConnecting {
			st.Phase = PhaseThinking
		}
		return true, nil

	case stream.KindArtifact:
		st.Artifact = toArtifact(event.Artifact)
		return true, nil

	case stream.KindRanked:
		if st.Ranked {
			s.fail(FailureProtocol, "ranked list received more than once")
			return true, fmt.Errorf("duplicate ranked event: %w", ErrProtocolViolation)
		}
		if event.Malformed != "" {
			return false, fmt.Errorf("ranked event: %s: %w", event.Malformed, ErrMalformedEvent)
		}
		s.setRanked(event.Jobs)
		st.Phase = PhaseRanked
		st.StatusMessage = fmt.Sprintf("ranked %d matches", len(st.RankedJobs))
		s.settle()
		return true, nil

	case stream.KindTailoring, stream.KindAuditing, stream.KindApplying, stream.KindApplied, stream.KindViolation:
		return s.applyJob(event)

	case stream.KindComplete:
		st.Phase = PhaseComplete
		st.StatusMessage = event.Message
		st.FinishedAt = s.now()
		return true, nil

	case stream.KindError:
		s.fail(FailurePeer, event.Message)
		return true, nil
	}

	return false, fmt.Errorf("unsupported event kind %q", event.Kind)
}

func (s *Store) applyJob(event stream.Event) (bool, error) {
	st := &s.state

	idx, ok := s.index[event.JobID]
	if !st.Ranked || !ok {
		return false, fmt.Errorf("%s for job %q: %w", event.Kind, event.JobID, ErrUnknownJob)
	}

	job := &st.RankedJobs[idx]
	target := stageFor(event.Kind)
	if !CanAdvance(job.Stage, target) {
		return false, fmt.Errorf("job %q %s -> %s: %w", job.ID, job.Stage, target, ErrStaleTransition)
	}

	job.Stage = target

	title := event.JobTitle
	if title == "" {
		title = job.Title
	}

	switch target {
	case StageTailoring:
		st.StatusMessage = fmt.Sprintf("Tailoring application for: %s", title)
	case StageAuditing:
		st.StatusMessage = fmt.Sprintf("Auditing application for: %s", title)
	case StageApplying:
		st.StatusMessage = fmt.Sprintf("Auto-applying to: %s", title)
	case StageViolation:
		job.Violation = &Violation{
			Reason:  event.Reason,
			Details: append([]string(nil), event.Details...),
		}
		st.StatusMessage = fmt.Sprintf("Blocked application to %s: %s", title, event.Reason)
	}

	s.settle()
	return true, nil
}

func (s *Store) setRanked(ranked []stream.RankedJob) {
	st := &s.state

	catalog := make(map[string]JobView, len(st.Catalog))
	for _, job := range st.Catalog {
		catalog[job.ID] = job
	}

	st.Ranked = true
	st.RankedJobs = make([]JobView, 0, len(ranked))
	s.index = make(map[string]int, len(ranked))

	for _, entry := range ranked {
		if entry.ID == "" {
			continue
		}
		if _, dup := s.index[entry.ID]; dup {
			continue
		}

		job := JobView{
			ID:                 entry.ID,
			Title:              entry.Title,
			Company:            entry.Company,
			Description:        entry.Description,
			MatchScore:         clampScore(entry.MatchScore),
			Reasoning:          entry.Reasoning,
			InterviewQuestions: append([]string(nil), entry.InterviewQuestions...),
			MissingSkills:      dedupe(entry.MissingSkills),
			Stage:              StageListed,
		}

		// The ranked list may carry only ids and scores; fill details from the catalog.
		if known, ok := catalog[entry.ID]; ok {
			if job.Title == "" {
				job.Title = known.Title
			}
			if job.Company == "" {
				job.Company = known.Company
			}
			if job.Description == "" {
				job.Description = known.Description
			}
		}

		s.index[job.ID] = len(st.RankedJobs)
		st.RankedJobs = append(st.RankedJobs, job)
	}
}

// settle moves a ranked run to PhaseFinalizing once every ranked job is terminal.
func (s *Store) settle() {
	st := &s.state
	if st.Phase != PhaseRanked {
		return
	}
	for _, job := range st.RankedJobs {
		if !job.Stage.IsTerminal() {
			return
		}
	}
	st.Phase = PhaseFinalizing
}

func (s *Store) fail(kind FailureKind, message string) {
	s.state.Phase = PhaseErrored
	s.state.Failure = kind
	s.state.Error = message
	s.state.FinishedAt = s.now()
}

func (s *Store) notify() {
	s.mu.RLock()
	subs := make([]func(State), len(s.subscribers))
	copy(subs, s.subscribers)
	snapshot := s.state.clone()
	s.mu.RUnlock()

	for _, fn := range subs {
		fn(snapshot.clone())
	}

	select {
	case s.changeCh <- struct{}{}:
	default:
	}
}

func stageFor(kind stream.Kind) Stage {
	switch kind {
	case stream.KindTailoring:
		return StageTailoring
	case stream.KindAuditing:
		return StageAuditing
	case stream.KindApplying:
		return StageApplying
	case stream.KindApplied:
		return StageApplied
	case stream.KindViolation:
		return StageViolation
	default:
		return StageListed
	}
}

func toArtifact(in *stream.Artifact) *Artifact {
	if in == nil {
		return &Artifact{}
	}
	out := &Artifact{Achievements: append([]string(nil), in.Achievements...)}
	for _, tag := range in.Tags {
		if tag.Name == "" {
			continue
		}
		out.Tags = append(out.Tags, Tag{Name: tag.Name, Category: tag.Category})
	}
	return out
}

func clampScore(score *float64) *int {
	if score == nil {
		return nil
	}
	var v int
	switch {
	case *score >= 100:
		v = 100
	case *score > 0:
		v = int(*score + 0.5)
	}
	return &v
}

func dedupe(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
