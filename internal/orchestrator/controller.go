// Package orchestrator drives matching runs: it opens the stream, feeds
// decoded events into the run state store and retires superseded runs.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spigell/jobpilot/internal/auth"
	"github.com/spigell/jobpilot/internal/connection"
	"github.com/spigell/jobpilot/internal/logger"
	"github.com/spigell/jobpilot/internal/portal"
	"github.com/spigell/jobpilot/internal/projection"
	"github.com/spigell/jobpilot/internal/runstate"
	"github.com/spigell/jobpilot/internal/stream"
)

const payloadPreview = 200

var (
	// ErrPrecondition is returned by StartRun when no connection may be opened.
	ErrPrecondition = errors.New("run precondition failed")
	// ErrSuperseded is returned by StartRun when another run replaced it while dialing.
	ErrSuperseded = errors.New("run superseded")
)

type TokenSource interface {
	Token() (string, error)
}

type Catalog interface {
	ListJobs(ctx context.Context) (*portal.Jobs, error)
}

// Stream is a live connection the controller can retire.
type Stream interface {
	Cancel()
}

type Dialer interface {
	Dial(ctx context.Context, req connection.Request, cb connection.Callbacks) (Stream, error)
}

type DialerFunc func(ctx context.Context, req connection.Request, cb connection.Callbacks) (Stream, error)

func (f DialerFunc) Dial(ctx context.Context, req connection.Request, cb connection.Callbacks) (Stream, error) {
	return f(ctx, req, cb)
}

// ManagerDialer adapts a connection manager to Dialer.
func ManagerDialer(m *connection.Manager) Dialer {
	return DialerFunc(func(ctx context.Context, req connection.Request, cb connection.Callbacks) (Stream, error) {
		h, err := m.Start(ctx, req, cb)
		if err != nil {
			return nil, err
		}
		return h, nil
	})
}

type Config struct {
	Logger  *zap.Logger
	Tokens  TokenSource
	Catalog Catalog
	Dialer  Dialer
	Store   *runstate.Store
}

type Controller struct {
	logger  *zap.Logger
	tokens  TokenSource
	catalog Catalog
	dialer  Dialer
	store   *runstate.Store
	now     func() time.Time

	mu     sync.Mutex
	gen    uint64
	live   Stream
	cancel context.CancelFunc
	runLog *zap.Logger

	subMu       sync.Mutex
	subscribers []func(projection.ViewModel)
}

func New(cfg Config) *Controller {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Store == nil {
		cfg.Store = runstate.NewStore()
	}

	c := &Controller{
		logger:  cfg.Logger,
		tokens:  cfg.Tokens,
		catalog: cfg.Catalog,
		dialer:  cfg.Dialer,
		store:   cfg.Store,
		now:     time.Now,
		runLog:  cfg.Logger,
	}
	c.store.Subscribe(c.publish)

	return c
}

// Subscribe registers fn to receive the view model after every state change.
// fn runs on the delivering goroutine and must not call back into the controller.
func (c *Controller) Subscribe(fn func(projection.ViewModel)) {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	c.subscribers = append(c.subscribers, fn)
}

// View returns the current view model.
func (c *Controller) View() projection.ViewModel {
	return projection.Project(c.store.Snapshot())
}

// LoadCatalog fetches the job catalog and shows it until a ranking arrives.
func (c *Controller) LoadCatalog(ctx context.Context) error {
	if c.catalog == nil {
		return errors.New("catalog is not configured")
	}

	jobs, err := c.catalog.ListJobs(ctx)
	if err != nil {
		return err
	}

	views := make([]runstate.JobView, 0, jobs.Len())
	for _, job := range jobs.Items {
		if job == nil {
			continue
		}
		views = append(views, runstate.JobView{
			ID:          job.ID,
			Title:       job.Title,
			Company:     job.Company,
			Description: job.Description,
		})
	}

	if err := c.store.SeedCatalog(views); err != nil {
		return err
	}

	c.logger.Info("job catalog loaded", zap.Int("count", len(views)))
	return nil
}

// StartRun retires any previous run and starts a new one for resume.
func (c *Controller) StartRun(ctx context.Context, resume string) (string, error) {
	if strings.TrimSpace(resume) == "" {
		return "", fmt.Errorf("%w: resume text is empty", ErrPrecondition)
	}
	if c.tokens == nil {
		return "", fmt.Errorf("%w: %v", ErrPrecondition, auth.ErrTokenMissing)
	}
	token, err := c.tokens.Token()
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrPrecondition, err)
	}
	if err := auth.CheckToken(token, c.now()); err != nil {
		return "", fmt.Errorf("%w: %v", ErrPrecondition, err)
	}

	c.mu.Lock()
	c.retireLocked()
	c.gen++
	gen := c.gen
	runID := uuid.NewString()
	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.runLog = logger.WithRun(c.logger, runID)
	c.store.Start(runID)
	runLog := c.runLog
	c.mu.Unlock()

	runLog.Info("starting run", zap.Int("resume_chars", len([]rune(resume))))

	live, err := c.dialer.Dial(runCtx, connection.Request{Token: token, ResumeText: resume}, connection.Callbacks{
		OnMessage: func(data []byte) { c.deliver(gen, data) },
		OnFailure: func(f connection.Failure) { c.failed(gen, f) },
	})

	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.gen {
		cancel()
		if live != nil {
			live.Cancel()
		}
		runLog.Debug("run replaced while connecting", zap.NamedError("dial_error", err))
		return runID, ErrSuperseded
	}

	if err != nil {
		var failure *connection.Failure
		message := err.Error()
		if errors.As(err, &failure) && failure.Message != "" {
			message = failure.Message
		}
		if failErr := c.store.Fail(runstate.FailureConnect, message); failErr != nil {
			runLog.Debug("connect failure not recorded", zap.Error(failErr))
		}
		c.retireLocked()
		runLog.Error("could not open match stream", zap.Error(err))
		return runID, err
	}

	c.live = live
	if c.store.Snapshot().Phase.IsTerminal() {
		c.retireLocked()
	}

	return runID, nil
}

// CancelRun retires the live run, if any, and returns the store to idle.
func (c *Controller) CancelRun() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.retireLocked()
	c.gen++
	c.store.Reset()
	c.runLog.Info("run cancelled")
	c.runLog = c.logger
}

// Wait blocks until the current run reaches a terminal phase or ctx ends.
func (c *Controller) Wait(ctx context.Context) (projection.ViewModel, error) {
	for {
		state := c.store.Snapshot()
		if !state.Phase.IsLive() {
			return projection.Project(state), nil
		}

		select {
		case <-ctx.Done():
			return projection.Project(state), ctx.Err()
		case <-c.store.Changes():
		}
	}
}

// Close retires the live run without touching the store.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.retireLocked()
	c.gen++
}

func (c *Controller) deliver(gen uint64, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.gen {
		c.logger.Debug("dropping message from retired run",
			zap.String("payload", logger.TruncateForLog(string(data), payloadPreview)))
		return
	}

	event, err := stream.Decode(data)
	if err != nil {
		c.runLog.Warn("dropping undecodable message", zap.Error(err),
			zap.String("payload", logger.TruncateForLog(string(data), payloadPreview)))
		return
	}

	log := c.runLog.With(zap.String("event", string(event.Kind)))
	if event.JobID != "" {
		log = logger.WithFields(log, logger.JobFields(event.JobID, "")...)
	}

	if err := c.store.Apply(event); err != nil {
		if runstate.IsIgnorable(err) {
			log.Debug("event ignored", zap.Error(err))
		} else {
			log.Error("event ended the run", zap.Error(err))
		}
	} else {
		log.Debug("event applied")
	}

	c.finishLocked()
}

func (c *Controller) failed(gen uint64, f connection.Failure) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.gen {
		return
	}

	kind := runstate.FailureInterrupted
	if f.Kind == connection.PeerError {
		kind = runstate.FailurePeer
	}

	if err := c.store.Fail(kind, f.Message); err != nil {
		c.runLog.Debug("connection closed after run ended", zap.Error(err))
	} else {
		c.runLog.Error("match stream failed", zap.Stringer("kind", f.Kind), zap.String("reason", f.Message))
	}

	c.retireLocked()
}

// finishLocked closes the stream once the run reached a terminal phase.
func (c *Controller) finishLocked() {
	state := c.store.Snapshot()
	if !state.Phase.IsTerminal() {
		return
	}

	fields := append(logger.RunFields(state.RunID, state.Phase.String()),
		zap.Duration("elapsed", state.FinishedAt.Sub(state.StartedAt)))
	c.logger.Info("run finished", fields...)

	c.retireLocked()
}

// retireLocked marks the live stream stale and closes it. c.mu must be held.
func (c *Controller) retireLocked() {
	if c.live != nil {
		c.live.Cancel()
		c.live = nil
	}
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
}

func (c *Controller) publish(state runstate.State) {
	vm := projection.Project(state)

	c.subMu.Lock()
	subs := make([]func(projection.ViewModel), len(c.subscribers))
	copy(subs, c.subscribers)
	c.subMu.Unlock()

	for _, fn := range subs {
		fn(vm)
	}
}
