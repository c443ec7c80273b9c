package monitor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"aqua-monitor/internal/backend"
	"aqua-monitor/internal/logging"
	"aqua-monitor/internal/stream"
	"aqua-monitor/internal/telemetry"
)

// Controller errors.
var (
	ErrAlreadyActive = errors.New("monitor: stream already connecting or open")
	ErrStopRejected  = errors.New("monitor: backend rejected stop request")
	ErrStopFailed    = errors.New("monitor: stop request failed")
)

// StopRejectedError carries the backend's explanation for a refused stop.
type StopRejectedError struct {
	Message string
}

func (e *StopRejectedError) Error() string {
	if e.Message == "" {
		return ErrStopRejected.Error()
	}
	return ErrStopRejected.Error() + ": " + e.Message
}

// Is makes errors.Is(err, ErrStopRejected) match.
func (e *StopRejectedError) Is(target error) bool { return target == ErrStopRejected }

// Backend is the detection service as seen by the controller.
type Backend interface {
	OpenStream(ctx context.Context) (io.ReadCloser, error)
	StopAnalysis(ctx context.Context) (backend.StopResult, error)
}

// Recorder receives ingestion metrics. All methods must be cheap.
type Recorder interface {
	StreamOpened()
	StreamFailed()
	PayloadDropped()
	StopRequested(confirmed bool)
	StateApplied(telemetry.MonitoringState, []telemetry.SpeciesTarget)
	StatusChanged(telemetry.ConnectionStatus)
}

// Phase is a connection lifecycle state.
type Phase int

// Lifecycle phases.
const (
	PhaseIdle Phase = iota
	PhaseConnecting
	PhaseOpen
	PhaseClosed
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseConnecting:
		return "connecting"
	case PhaseOpen:
		return "open"
	case PhaseClosed:
		return "closed"
	case PhaseFailed:
		return "failed"
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

// Status maps the phase to the status exposed in MonitoringState.
func (p Phase) Status() telemetry.ConnectionStatus {
	switch p {
	case PhaseConnecting:
		return telemetry.StatusConnecting
	case PhaseOpen:
		return telemetry.StatusConnected
	case PhaseFailed:
		return telemetry.StatusError
	}
	return telemetry.StatusDisconnected
}

type endReason int

const (
	endNone endReason = iota
	endNotice
	endBackendError
)

// session is one stream connection. Fields other than done are guarded by
// Controller.mu.
type session struct {
	ctx    context.Context
	cancel context.CancelFunc
	body   io.Closer
	ended  endReason
	done   chan struct{}
}

// Controller owns the push connection and the live MonitoringState. At most
// one session exists at a time.
type Controller struct {
	backend Backend
	reducer Reducer
	rec     Recorder
	log     *slog.Logger

	stopMu sync.Mutex // serializes Stop and Start

	mu      sync.Mutex
	phase   Phase
	sess    *session
	subs    map[int]chan telemetry.MonitoringState
	nextSub int

	state atomic.Pointer[telemetry.MonitoringState]
}

// Option configures a Controller.
type Option func(*Controller)

// WithRecorder attaches a metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(c *Controller) {
		if r != nil {
			c.rec = r
		}
	}
}

// WithClock sets the clock used to stamp alerts.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.reducer.Now = now }
}

// WithLogger sets the controller logger. Defaults to the logger in the
// context passed to Start, or slog.Default.
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) { c.log = l }
}

// NewController returns an idle controller for the given targets.
func NewController(b Backend, targets []telemetry.SpeciesTarget, opts ...Option) *Controller {
	c := &Controller{
		backend: b,
		reducer: NewReducer(targets),
		rec:     nopRecorder{},
		subs:    make(map[int]chan telemetry.MonitoringState),
	}
	for _, o := range opts {
		o(c)
	}
	zero := telemetry.NewMonitoringState(c.reducer.Targets)
	c.state.Store(&zero)
	return c
}

// Targets returns the configured species targets.
func (c *Controller) Targets() []telemetry.SpeciesTarget {
	out := make([]telemetry.SpeciesTarget, len(c.reducer.Targets))
	copy(out, c.reducer.Targets)
	return out
}

// Phase returns the current lifecycle phase.
func (c *Controller) Phase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

// Snapshot returns a copy of the current state.
func (c *Controller) Snapshot() telemetry.MonitoringState {
	return c.state.Load().Clone()
}

// Subscribe registers a listener for state replacements. The channel holds
// only the latest snapshot; a slow reader skips intermediate ones.
func (c *Controller) Subscribe() (int, <-chan telemetry.MonitoringState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextSub
	c.nextSub++
	ch := make(chan telemetry.MonitoringState, 1)
	ch <- c.state.Load().Clone()
	c.subs[id] = ch
	return id, ch
}

// Unsubscribe removes a listener and closes its channel.
func (c *Controller) Unsubscribe(id int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ch, ok := c.subs[id]; ok {
		delete(c.subs, id)
		close(ch)
	}
}

// Start opens a new stream. It returns ErrAlreadyActive, changing nothing,
// when a stream is already connecting or open. Otherwise the state is reset
// to zero before the connection begins. Start does not wait for the
// handshake; the session outlives ctx and ends only through Stop or a
// transport error. A Start issued while a stop request is in flight waits for
// that request to settle.
func (c *Controller) Start(ctx context.Context) error {
	c.stopMu.Lock()
	defer c.stopMu.Unlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	for {
		if c.phase == PhaseConnecting || c.phase == PhaseOpen {
			return ErrAlreadyActive
		}
		prev := c.sess
		if prev == nil {
			break
		}
		// A failed or closed session may still be unwinding and needs the
		// lock to do so.
		c.mu.Unlock()
		<-prev.done
		c.mu.Lock()
		if c.sess == prev {
			break
		}
	}

	base := logging.NewContext(context.WithoutCancel(ctx), c.logger(ctx))
	sctx, cancel := context.WithCancel(base)
	s := &session{ctx: sctx, cancel: cancel, done: make(chan struct{})}
	c.sess = s
	c.phase = PhaseConnecting

	fresh := telemetry.NewMonitoringState(c.reducer.Targets)
	fresh.ConnectionStatus = PhaseConnecting.Status()
	c.publishLocked(fresh)

	logging.FromContext(sctx).Info("starting analysis stream")
	go c.run(s)
	return nil
}

// Stop asks the backend to stop and, once it confirms, tears the stream down
// before returning. Stopping an idle or closed controller does nothing. If
// the backend refuses or cannot be reached the phase and state are left as
// they were and the error is returned; in particular a failed controller
// whose backend is unreachable stays failed until the next Start.
func (c *Controller) Stop(ctx context.Context) error {
	c.stopMu.Lock()
	defer c.stopMu.Unlock()

	c.mu.Lock()
	phase, s := c.phase, c.sess
	c.mu.Unlock()
	if phase == PhaseIdle || phase == PhaseClosed {
		return nil
	}

	log := c.logger(ctx)
	res, err := c.backend.StopAnalysis(ctx)
	if err != nil {
		c.rec.StopRequested(false)
		log.Error("stop request failed", "err", err)
		return fmt.Errorf("%w: %w", ErrStopFailed, err)
	}
	if !res.Success {
		c.rec.StopRequested(false)
		log.Warn("backend refused stop", "message", res.Message)
		return &StopRejectedError{Message: res.Message}
	}
	c.rec.StopRequested(true)

	c.mu.Lock()
	if c.sess != s || c.phase == PhaseClosed {
		c.mu.Unlock()
		return nil
	}
	s.cancel()
	if s.body != nil {
		_ = s.body.Close()
	}
	c.phase = PhaseClosed
	next := *c.state.Load()
	next.ConnectionStatus = PhaseClosed.Status()
	c.publishLocked(next)
	c.mu.Unlock()

	<-s.done
	log.Info("analysis stopped", "message", res.Message)
	return nil
}

func (c *Controller) run(s *session) {
	defer close(s.done)
	log := logging.FromContext(s.ctx)

	body, err := c.backend.OpenStream(s.ctx)
	if err != nil {
		c.fail(s, err)
		return
	}

	c.mu.Lock()
	if !c.liveLocked(s) {
		c.mu.Unlock()
		_ = body.Close()
		return
	}
	s.body = body
	c.phase = PhaseOpen
	next := *c.state.Load()
	next.ConnectionStatus = PhaseOpen.Status()
	c.publishLocked(next)
	c.mu.Unlock()
	c.rec.StreamOpened()
	log.Info("analysis stream open")

	err = stream.Read(s.ctx, body, func(ev telemetry.StreamEvent) bool {
		return c.apply(s, ev)
	}, stream.WithDropHook(func(string, error) { c.rec.PayloadDropped() }))
	_ = body.Close()

	if s.ctx.Err() != nil {
		return
	}
	if err != nil {
		c.fail(s, err)
		return
	}
	c.finish(s)
}

func (c *Controller) apply(s *session, ev telemetry.StreamEvent) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.liveLocked(s) {
		return false
	}
	next, raised := c.reducer.Apply(*c.state.Load(), ev)
	switch {
	case ev.BackendError != nil:
		s.ended = endBackendError
	case ev.End != nil && s.ended == endNone:
		s.ended = endNotice
	}
	c.publishLocked(next)
	c.rec.StateApplied(next, c.reducer.Targets)
	for _, a := range raised {
		logging.FromContext(s.ctx).Info("alert raised", "kind", a.Kind, "source", a.Source, "message", a.Message)
	}
	return true
}

// finish handles a stream the backend closed on its own.
func (c *Controller) finish(s *session) {
	c.mu.Lock()
	if !c.liveLocked(s) {
		c.mu.Unlock()
		return
	}
	switch s.ended {
	case endNotice:
		c.phase = PhaseClosed
		next := *c.state.Load()
		next.ConnectionStatus = PhaseClosed.Status()
		c.publishLocked(next)
		c.mu.Unlock()
		logging.FromContext(s.ctx).Info("analysis stream ended by backend")
	case endBackendError:
		c.phase = PhaseFailed
		next := *c.state.Load()
		next.ConnectionStatus = PhaseFailed.Status()
		c.publishLocked(next)
		c.mu.Unlock()
		c.rec.StreamFailed()
		logging.FromContext(s.ctx).Warn("analysis stream closed after backend error")
	default:
		c.mu.Unlock()
		c.fail(s, io.ErrUnexpectedEOF)
	}
}

func (c *Controller) fail(s *session, err error) {
	c.mu.Lock()
	if !c.liveLocked(s) {
		c.mu.Unlock()
		return
	}
	c.phase = PhaseFailed
	next, _ := c.reducer.ConnectionFailed(*c.state.Load(), err.Error())
	c.publishLocked(next)
	c.mu.Unlock()
	c.rec.StreamFailed()
	logging.FromContext(s.ctx).Error("analysis stream failed", "err", err)
}

func (c *Controller) logger(ctx context.Context) *slog.Logger {
	if c.log != nil {
		return c.log
	}
	return logging.FromContext(ctx)
}

// liveLocked reports whether s is still the active, uncancelled session.
func (c *Controller) liveLocked(s *session) bool {
	return c.sess == s && s.ctx.Err() == nil && (c.phase == PhaseConnecting || c.phase == PhaseOpen)
}

func (c *Controller) publishLocked(next telemetry.MonitoringState) {
	if prev := c.state.Load(); prev == nil || prev.ConnectionStatus != next.ConnectionStatus {
		c.rec.StatusChanged(next.ConnectionStatus)
	}
	c.state.Store(&next)
	for _, ch := range c.subs {
		snap := next.Clone()
		select {
		case ch <- snap:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- snap
		}
	}
}

type nopRecorder struct{}

func (nopRecorder) StreamOpened()                                                     {}
func (nopRecorder) StreamFailed()                                                     {}
func (nopRecorder) PayloadDropped()                                                   {}
func (nopRecorder) StopRequested(bool)                                                {}
func (nopRecorder) StateApplied(telemetry.MonitoringState, []telemetry.SpeciesTarget) {}
func (nopRecorder) StatusChanged(telemetry.ConnectionStatus)                          {}
