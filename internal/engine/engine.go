// SPDX-License-Identifier: MIT
/*
Package engine implements the passthrough routing engine: it owns the
user's intent (running, endpoint selection, processing config), reconciles
it against permission, the feedback safety policy and the device catalog,
and builds or tears down the single live audio graph.

Concurrency:
  - All state transitions happen on one control goroutine. Public calls
    are queued, drained in batches and reconciled once per batch, so the
    latest intent wins and redundant rebuilds are skipped
  - The audio callback reads gain and threshold through atomics and
    writes the level and gate envelope the same way
  - Catalog notifications only set a pending flag; they are folded into
    the next batch after any in-flight rebuild has settled
*/
package engine

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"passthru/internal/audio"
	"passthru/internal/dsp"
	"passthru/internal/log"
	"passthru/internal/permission"
	"passthru/internal/safety"
	"passthru/pkg/bitint"

	goaudio "github.com/go-audio/audio"
	"github.com/sirupsen/logrus"
)

const (
	DefaultBufferFrames = 256
	DefaultRestartDelay = 50 * time.Millisecond

	requestQueueSize = 32
)

// Catalog is the subset of the device catalog the engine depends on.
type Catalog interface {
	Default(dir audio.Direction) (audio.Endpoint, bool)
	Lookup(e audio.Endpoint) (audio.Endpoint, bool)
	Subscribe(onChange func())
	Unsubscribe()
}

// Options wires an Engine to its collaborators.
type Options struct {
	Catalog    Catalog
	Devices    audio.DeviceService
	Backend    audio.Backend
	Permission permission.Service

	Config Config
	// Initial selections. A zero endpoint follows the system default.
	Input  audio.Endpoint
	Output audio.Endpoint

	BufferFrames int     // Rounded up to a power of two
	Channels     int     // 0 uses what both endpoints support
	SampleRate   float64 // 0 uses the device default

	// RestartDelay is slept between teardown and rebuild when a running
	// graph is reconfigured. Zero selects DefaultRestartDelay, negative
	// disables it.
	RestartDelay time.Duration

	Logger *logrus.Entry
}

// Status is a snapshot of everything the controlling layer observes.
type Status struct {
	State          State
	DesiredRunning bool
	Input          audio.Endpoint
	Output         audio.Endpoint
	Config         Config
	LatencyMs      float64
	Rebuilds       uint64
}

func (s Status) equal(o Status) bool {
	return s.State.equal(o.State) &&
		s.DesiredRunning == o.DesiredRunning &&
		s.Input == o.Input &&
		s.Output == o.Output &&
		s.Config == o.Config &&
		s.LatencyMs == o.LatencyMs &&
		s.Rebuilds == o.Rebuilds
}

type change uint8

const (
	changeSelection change = 1 << iota
	changeTopology
)

type request struct {
	apply func() change
	done  chan State
}

// Engine routes one input endpoint to one output endpoint.
type Engine struct {
	opts Options
	log  *logrus.Entry

	// Shared with the audio thread.
	gain      *dsp.AtomicFloat32
	threshold *dsp.AtomicFloat32
	level     *dsp.AtomicFloat32
	gate      *dsp.NoiseGate

	// Owned by the control goroutine.
	desired   bool
	input     audio.Endpoint
	output    audio.Endpoint
	cfg       Config
	state     State
	graph     *graph
	latencyMs float64

	rebuilds       atomic.Uint64
	catalogPending atomic.Bool

	reqs    chan request
	wake    chan struct{}
	quit    chan struct{}
	stopped chan struct{}

	lifeMu  sync.Mutex
	started bool
	closed  bool

	mu        sync.RWMutex
	status    Status
	observers map[int]func(Status)
	nextObs   int
}

// New validates opts and returns an engine in the Idle state. Call Start
// to begin processing requests.
func New(opts Options) (*Engine, error) {
	switch {
	case opts.Catalog == nil:
		return nil, errors.New("engine: catalog is required")
	case opts.Devices == nil:
		return nil, errors.New("engine: device service is required")
	case opts.Backend == nil:
		return nil, errors.New("engine: audio backend is required")
	case opts.Permission == nil:
		return nil, errors.New("engine: permission service is required")
	}

	if opts.Config == (Config{}) {
		opts.Config = DefaultConfig()
	}
	if err := opts.Config.Validate(); err != nil {
		return nil, err
	}
	if opts.BufferFrames <= 0 {
		opts.BufferFrames = DefaultBufferFrames
	}
	if opts.RestartDelay == 0 {
		opts.RestartDelay = DefaultRestartDelay
	}
	if opts.Logger == nil {
		opts.Logger = log.Component("engine")
	}

	threshold := dsp.NewAtomicFloat32(opts.Config.GateThreshold)
	e := &Engine{
		opts:      opts,
		log:       opts.Logger,
		gain:      dsp.NewAtomicFloat32(opts.Config.Gain),
		threshold: threshold,
		level:     dsp.NewAtomicFloat32(0),
		gate:      dsp.NewNoiseGate(threshold),
		input:     opts.Input,
		output:    opts.Output,
		cfg:       opts.Config,
		reqs:      make(chan request, requestQueueSize),
		wake:      make(chan struct{}, 1),
		quit:      make(chan struct{}),
		stopped:   make(chan struct{}),
		observers: make(map[int]func(Status)),
	}
	e.status = e.snapshot()
	return e, nil
}

// Start subscribes to catalog changes and launches the control goroutine.
func (e *Engine) Start() error {
	e.lifeMu.Lock()
	defer e.lifeMu.Unlock()
	switch {
	case e.closed:
		return ErrClosed
	case e.started:
		return nil
	}
	e.started = true

	e.opts.Catalog.Subscribe(e.OnCatalogChanged)
	go e.run()
	e.log.Debug("engine started")
	return nil
}

// Close deactivates any live graph, unsubscribes from the catalog and
// stops the control goroutine. Further calls return ErrClosed.
func (e *Engine) Close() error {
	e.lifeMu.Lock()
	defer e.lifeMu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	close(e.quit)

	if e.started {
		<-e.stopped
	} else {
		close(e.stopped)
	}
	return nil
}

// SetDesiredRunning records the intent to run. Turning it on activates
// the graph; the returned error is the reason it did not reach Running.
func (e *Engine) SetDesiredRunning(on bool) error {
	st, err := e.do(func() change {
		e.desired = on
		return 0
	})
	if err != nil {
		return err
	}
	if on {
		return st.Cause()
	}
	return nil
}

// SetInputEndpoint selects the input. A zero endpoint follows the system
// default. A running graph is rebuilt if the effective input changes.
func (e *Engine) SetInputEndpoint(ep audio.Endpoint) error {
	return e.setEndpoint(audio.Input, ep)
}

// SetOutputEndpoint selects the output. The safety policy is evaluated
// again before any rebuild.
func (e *Engine) SetOutputEndpoint(ep audio.Endpoint) error {
	return e.setEndpoint(audio.Output, ep)
}

func (e *Engine) setEndpoint(dir audio.Direction, ep audio.Endpoint) error {
	if !ep.IsZero() && ep.Direction != dir {
		return fmt.Errorf("%s is not an %s endpoint", ep, dir)
	}
	_, err := e.do(func() change {
		sel := &e.output
		if dir == audio.Input {
			sel = &e.input
		}
		if *sel == ep {
			return 0
		}
		*sel = ep
		return changeSelection
	})
	return err
}

// SetConfig replaces the processing config. Gain and threshold changes
// reach a running graph without a rebuild.
func (e *Engine) SetConfig(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	_, err := e.do(func() change {
		return e.applyConfig(cfg)
	})
	return err
}

// UpdateConfig applies fn to the current config on the control goroutine.
// The result is validated; an invalid config is discarded.
func (e *Engine) UpdateConfig(fn func(*Config)) error {
	var verr error
	_, err := e.do(func() change {
		cfg := e.cfg
		fn(&cfg)
		if verr = cfg.Validate(); verr != nil {
			return 0
		}
		return e.applyConfig(cfg)
	})
	if err != nil {
		return err
	}
	return verr
}

func (e *Engine) applyConfig(cfg Config) change {
	old := e.cfg
	e.cfg = cfg
	e.gain.Store(cfg.Gain)
	e.threshold.Store(cfg.GateThreshold)
	if old.topologyChanged(cfg) {
		return changeTopology
	}
	return 0
}

// OnCatalogChanged tells the engine the endpoint set or defaults changed.
// It never blocks; bursts of notifications are coalesced.
func (e *Engine) OnCatalogChanged() {
	e.catalogPending.Store(true)
	select {
	case e.wake <- struct{}{}:
	default:
	}
}

// Status returns the latest published snapshot.
func (e *Engine) Status() Status {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.status
}

// Level returns the most recent meter reading in [0,1]. It is 0 when
// metering is disabled or the engine is not running.
func (e *Engine) Level() float32 {
	return e.level.Load()
}

// GateSmoothing returns the gate envelope in [0,1].
func (e *Engine) GateSmoothing() float32 {
	return e.gate.Smoothing()
}

// LatencyMs returns the latency estimate of the last successful
// activation.
func (e *Engine) LatencyMs() float64 {
	return e.Status().LatencyMs
}

// Rebuilds counts the graphs built since the engine was created.
func (e *Engine) Rebuilds() uint64 {
	return e.rebuilds.Load()
}

// Observe registers fn to receive every status change. fn runs on the
// control goroutine and must not call back into the engine or block.
func (e *Engine) Observe(fn func(Status)) (cancel func()) {
	e.mu.Lock()
	id := e.nextObs
	e.nextObs++
	e.observers[id] = fn
	e.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			e.mu.Lock()
			delete(e.observers, id)
			e.mu.Unlock()
		})
	}
}

func (e *Engine) do(apply func() change) (State, error) {
	e.lifeMu.Lock()
	started, closed := e.started, e.closed
	e.lifeMu.Unlock()
	switch {
	case closed:
		return State{}, ErrClosed
	case !started:
		return State{}, ErrNotStarted
	}

	req := request{apply: apply, done: make(chan State, 1)}
	select {
	case e.reqs <- req:
	case <-e.quit:
		return State{}, ErrClosed
	}
	select {
	case st := <-req.done:
		return st, nil
	case <-e.stopped:
		return State{}, ErrClosed
	}
}

func (e *Engine) run() {
	defer close(e.stopped)
	for {
		select {
		case <-e.quit:
			e.shutdown()
			return
		case req := <-e.reqs:
			e.process([]request{req})
		case <-e.wake:
			e.process(nil)
		}
	}
}

func (e *Engine) shutdown() {
	e.opts.Catalog.Unsubscribe()
	e.desired = false
	e.deactivate()
	e.publish()
	e.log.Debug("engine stopped")
}

// process applies one batch of requests and reconciles once.
func (e *Engine) process(batch []request) {
drain:
	for {
		select {
		case req := <-e.reqs:
			batch = append(batch, req)
		default:
			break drain
		}
	}

	var ch change
	for _, req := range batch {
		ch |= req.apply()
	}
	if e.catalogPending.Swap(false) {
		e.resolveSelections()
		ch |= changeSelection
	}

	e.reconcile(ch)
	e.publish()

	for _, req := range batch {
		req.done <- e.state
	}
}

// reconcile is the single place the live graph is brought in line with
// the current intent.
func (e *Engine) reconcile(ch change) {
	switch {
	case !e.desired:
		if e.graph != nil || e.state.Kind == Running || e.state.Kind == Starting {
			e.deactivate()
		}
	case e.graph == nil:
		e.activate()
	case ch&changeTopology != 0 || (ch&changeSelection != 0 && e.graphStale()):
		e.log.Debug("rebuilding graph")
		e.deactivate()
		e.restartPause()
		e.activate()
	}
}

func (e *Engine) restartPause() {
	if e.opts.RestartDelay > 0 {
		time.Sleep(e.opts.RestartDelay)
	}
}

// resolveSelections refreshes selected endpoints from the catalog. A
// selection that vanished falls back to the current system default.
func (e *Engine) resolveSelections() {
	e.input = e.resolve(e.input)
	e.output = e.resolve(e.output)
}

func (e *Engine) resolve(sel audio.Endpoint) audio.Endpoint {
	if sel.IsZero() {
		return sel
	}
	if cur, ok := e.opts.Catalog.Lookup(sel); ok {
		return cur
	}
	def, ok := e.opts.Catalog.Default(sel.Direction)
	e.log.WithFields(logrus.Fields{
		"endpoint":  sel.Name,
		"direction": sel.Direction.String(),
		"fallback":  def.String(),
	}).Warn("selected endpoint unavailable, falling back to system default")
	if !ok {
		return audio.Endpoint{}
	}
	return def
}

// effective returns the endpoint a graph would use for dir.
func (e *Engine) effective(dir audio.Direction) (audio.Endpoint, bool) {
	sel := e.output
	if dir == audio.Input {
		sel = e.input
	}
	if !sel.IsZero() {
		return sel, true
	}
	return e.opts.Catalog.Default(dir)
}

func (e *Engine) graphStale() bool {
	if e.graph == nil {
		return false
	}
	e.resolveSelections()
	in, okIn := e.effective(audio.Input)
	out, okOut := e.effective(audio.Output)
	return !okIn || !okOut || !in.Equal(e.graph.input) || !out.Equal(e.graph.output)
}

func (e *Engine) activate() {
	if p := e.opts.Permission.Query(); p != permission.Granted {
		e.log.WithField("permission", p.String()).Warn("microphone access not granted")
		e.block(ReasonPermission)
		return
	}

	e.resolveSelections()
	in, ok := e.effective(audio.Input)
	if !ok {
		e.fail(fmt.Errorf("input: %w", ErrEndpointUnavailable))
		return
	}
	out, ok := e.effective(audio.Output)
	if !ok {
		e.fail(fmt.Errorf("output: %w", ErrEndpointUnavailable))
		return
	}

	if d := safety.Evaluate(out); !d.Allow {
		e.log.WithField("output", out.Name).Warn("refusing to route microphone to built-in speaker")
		e.block(BlockReason(d.Reason))
		return
	}

	e.teardown()
	e.setState(State{Kind: Starting})

	frames, err := e.prepareDevices(in, out)
	if err != nil {
		e.fail(err)
		return
	}

	channels := channelsFor(in, out, e.opts.Channels)
	g := newGraph(in, out, &goaudio.Format{NumChannels: channels, SampleRate: int(e.opts.SampleRate)})
	if e.cfg.GateEnabled {
		g.addStage(e.gate)
	}
	g.addStage(dsp.NewGain(e.gain))
	if e.cfg.MeteringEnabled {
		g.addTap(dsp.NewLevelMeter(e.level))
	}
	e.gate.Reset()
	e.rebuilds.Add(1)

	stream, err := e.opts.Backend.OpenStream(audio.StreamConfig{
		Input:           in,
		Output:          out,
		Channels:        channels,
		SampleRate:      e.opts.SampleRate,
		FramesPerBuffer: frames,
	}, g.process)
	if err != nil {
		e.fail(fmt.Errorf("%w: %w", ErrEngineStart, err))
		return
	}
	if err := stream.Start(); err != nil {
		if cerr := stream.Close(); cerr != nil {
			e.log.WithError(cerr).Warn("close stream after failed start")
		}
		e.fail(fmt.Errorf("%w: %w", ErrEngineStart, err))
		return
	}

	g.stream = stream
	g.buf.Format.SampleRate = int(stream.SampleRate())
	e.graph = g
	e.latencyMs = EstimateLatencyMs(stream.FramesPerBuffer(), stream.SampleRate())
	e.setState(State{Kind: Running})

	e.log.WithFields(logrus.Fields{
		"input":       in.Name,
		"output":      out.Name,
		"channels":    channels,
		"frames":      stream.FramesPerBuffer(),
		"sample_rate": stream.SampleRate(),
		"latency_ms":  fmt.Sprintf("%.1f", e.latencyMs),
		"gate":        e.cfg.GateEnabled,
		"metering":    e.cfg.MeteringEnabled,
	}).Info("passthrough running")
}

// prepareDevices asks the platform to make the selected endpoints the
// system defaults and to use a small buffer. Unsupported requests are
// skipped; the granted buffer size is returned.
func (e *Engine) prepareDevices(in, out audio.Endpoint) (int, error) {
	want := bitint.NextPowerOfTwo(e.opts.BufferFrames)
	frames := want

	for _, ep := range []audio.Endpoint{in, out} {
		if err := e.opts.Devices.SetDefaultEndpoint(ep); err != nil {
			if !errors.Is(err, audio.ErrUnsupported) {
				return 0, fmt.Errorf("%w: set default %s: %w", ErrEngineStart, ep.Direction, err)
			}
		}
	}

	granted := 0
	for _, ep := range []audio.Endpoint{in, out} {
		got, err := e.opts.Devices.SetBufferFrames(ep, want)
		switch {
		case errors.Is(err, audio.ErrUnsupported):
			continue
		case err != nil:
			return 0, fmt.Errorf("%w: buffer size for %s: %w", ErrEngineStart, ep.Direction, err)
		}
		granted = max(granted, got)
	}
	if granted > 0 {
		frames = granted
	}
	if frames != want {
		e.log.Debugf("requested %d frames, platform granted %d", want, frames)
	}
	return frames, nil
}

// deactivate stops the live graph and returns to Idle. Calling it when
// already idle changes nothing.
func (e *Engine) deactivate() {
	e.teardown()
	if e.state.Kind != Idle {
		e.setState(State{})
	}
}

func (e *Engine) teardown() {
	g := e.graph
	e.graph = nil
	if g != nil {
		if err := g.stream.Stop(); err != nil {
			e.log.WithError(err).Warn("stop stream")
		}
		if err := g.stream.Close(); err != nil {
			e.log.WithError(err).Warn("close stream")
		}
		e.log.Debug("graph torn down")
	}
	e.gate.Reset()
	e.level.Store(0)
}

func (e *Engine) block(reason BlockReason) {
	e.desired = false
	e.teardown()
	e.setState(State{Kind: Blocked, Reason: reason})
}

func (e *Engine) fail(err error) {
	e.desired = false
	e.teardown()
	e.log.WithError(err).Error("passthrough failed")
	e.setState(State{Kind: Failed, Err: err})
}

func (e *Engine) setState(s State) {
	e.state = s
	e.publish()
}

func (e *Engine) snapshot() Status {
	return Status{
		State:          e.state,
		DesiredRunning: e.desired,
		Input:          e.input,
		Output:         e.output,
		Config:         e.cfg,
		LatencyMs:      e.latencyMs,
		Rebuilds:       e.rebuilds.Load(),
	}
}

// publish stores a new snapshot and notifies observers if it changed.
func (e *Engine) publish() {
	s := e.snapshot()

	e.mu.Lock()
	if s.equal(e.status) {
		e.mu.Unlock()
		return
	}
	e.status = s
	fns := make([]func(Status), 0, len(e.observers))
	for _, fn := range e.observers {
		fns = append(fns, fn)
	}
	e.mu.Unlock()

	for _, fn := range fns {
		fn(s)
	}
}
