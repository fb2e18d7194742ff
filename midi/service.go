package midi

import (
	"log/slog"
	"sync"
	"time"
)

const (
	// DefaultMonitorInterval is how often the liveness poll re-queries
	// the device directory for silent disconnects.
	DefaultMonitorInterval = 1 * time.Second

	// DefaultReconnectInterval is how often the reconnection process
	// retries unconnected desired slots.
	DefaultReconnectInterval = 2 * time.Second
)

// DeviceList is one enumeration snapshot of the directory. Ordinal
// indices are positions within these slices and are valid only for
// the lifetime of the snapshot.
type DeviceList struct {
	Inputs  []string
	Outputs []string
}

// Status is the externally visible connection state.
type Status struct {
	Enabled         bool
	InputConnected  bool
	OutputConnected bool
	InputName       string
	OutputName      string
	Reconnecting    bool
}

// StatusFunc receives the status on every state transition. It is
// called with internal state locked: implementations must return
// quickly and must not call back into the Service.
type StatusFunc func(Status)

// DeviceListFunc receives the refreshed directory after a completed
// reconnection, so ordinal-indexed pickers can refresh before using
// stale indices. Same calling constraints as StatusFunc.
type DeviceListFunc func(DeviceList)

// slot is the remembered intent for one direction. desiredName is the
// durable identity to restore; requestedOrdinal is a pending
// connect-by-ordinal that never resolved to a name.
type slot struct {
	desiredName      string
	requestedOrdinal int
	connectedName    string
}

func (sl *slot) wanted() bool {
	return sl.desiredName != "" || sl.requestedOrdinal >= 0
}

func (sl *slot) clear() {
	sl.desiredName = ""
	sl.requestedOrdinal = -1
}

// Service owns at most one active input handle and one active output
// handle and keeps the logical connection alive across physical
// disconnects, power cycles and re-enumeration. Construct it once at
// process start; Enable and Disable bracket its lifetime.
type Service struct {
	log        *slog.Logger
	drv        Driver
	dispatcher *Dispatcher

	statusFn  StatusFunc
	devicesFn DeviceListFunc

	monitorEvery   time.Duration
	reconnectEvery time.Duration
	ledBatchSize   int
	ledBatchPause  time.Duration
	allowFallback  bool
	pause          func(time.Duration)

	mu                sync.Mutex
	enabled           bool
	unavailableLogged bool

	in      slot
	out     slot
	inConn  Input
	outConn Output

	reconnecting  bool
	monitorLoop   *loop
	reconnectLoop *loop
}

type options struct {
	log            *slog.Logger
	driver         Driver
	driverSet      bool
	actions        Actions
	statusFn       StatusFunc
	devicesFn      DeviceListFunc
	debounce       time.Duration
	monitorEvery   time.Duration
	reconnectEvery time.Duration
	ledBatchSize   int
	ledBatchPause  time.Duration
	allowFallback  bool
}

// Option configures a Service.
type Option func(*options)

// WithLogger sets the structured logger. Defaults to slog.Default().
func WithLogger(log *slog.Logger) Option {
	return func(o *options) { o.log = log }
}

// WithDriver injects a transport binding, bypassing the loader. A nil
// driver puts the service in the capability-unavailable degraded mode.
func WithDriver(d Driver) Option {
	return func(o *options) { o.driver = d; o.driverSet = true }
}

// WithActions wires the action delegates invoked by dispatched
// shortcuts.
func WithActions(a Actions) Option {
	return func(o *options) { o.actions = a }
}

// WithStatusSink wires the status notification sink.
func WithStatusSink(fn StatusFunc) Option {
	return func(o *options) { o.statusFn = fn }
}

// WithDeviceListSink wires the device-list-changed sink.
func WithDeviceListSink(fn DeviceListFunc) Option {
	return func(o *options) { o.devicesFn = fn }
}

// WithDebounceWindow overrides the shortcut debounce window.
func WithDebounceWindow(d time.Duration) Option {
	return func(o *options) { o.debounce = d }
}

// WithMonitorInterval overrides the liveness poll interval.
func WithMonitorInterval(d time.Duration) Option {
	return func(o *options) { o.monitorEvery = d }
}

// WithReconnectInterval overrides the reconnection retry interval.
func WithReconnectInterval(d time.Duration) Option {
	return func(o *options) { o.reconnectEvery = d }
}

// WithLEDBatchSize overrides how many LED writes are issued per batch
// during a bulk reset.
func WithLEDBatchSize(n int) Option {
	return func(o *options) { o.ledBatchSize = n }
}

// WithLEDBatchPause overrides the pacing delay between LED reset
// batches.
func WithLEDBatchPause(d time.Duration) Option {
	return func(o *options) { o.ledBatchPause = d }
}

// AllowFallbackDevice permits the reconnection process to attach to
// the first available device of a direction when neither the
// remembered name nor the remembered ordinal can be satisfied. Off by
// default: silently substituting a different physical controller is
// rarely what the user meant.
func AllowFallbackDevice() Option {
	return func(o *options) { o.allowFallback = true }
}

// NewService builds the service. When no driver is injected the
// native binding is resolved through the once-per-process loader; a
// failed load leaves the service in degraded mode where every
// operation is a safe no-op.
func NewService(opts ...Option) *Service {
	o := options{
		monitorEvery:   DefaultMonitorInterval,
		reconnectEvery: DefaultReconnectInterval,
		ledBatchSize:   defaultLEDBatchSize,
		ledBatchPause:  defaultLEDBatchPause,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.log == nil {
		o.log = slog.Default()
	}
	if !o.driverSet {
		o.driver = loadDriver(o.log)
	}
	if o.ledBatchSize <= 0 {
		o.ledBatchSize = defaultLEDBatchSize
	}

	s := &Service{
		log:            o.log,
		drv:            o.driver,
		dispatcher:     NewDispatcher(o.actions, o.debounce, o.log),
		statusFn:       o.statusFn,
		devicesFn:      o.devicesFn,
		monitorEvery:   o.monitorEvery,
		reconnectEvery: o.reconnectEvery,
		ledBatchSize:   o.ledBatchSize,
		ledBatchPause:  o.ledBatchPause,
		allowFallback:  o.allowFallback,
		pause:          time.Sleep,
	}
	s.in.requestedOrdinal = -1
	s.out.requestedOrdinal = -1
	return s
}

// ApplySettings rebuilds the shortcut map wholesale from the host's
// settings. Call it again on every configuration change.
func (s *Service) ApplySettings(cfg Settings) {
	s.dispatcher.Rebuild(cfg.Actions, cfg.Scenes)
}

// Enable starts the liveness monitor. Returns false when the
// capability is unavailable.
func (s *Service) Enable() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.drv == nil {
		s.logUnavailableLocked()
		return false
	}
	if s.enabled {
		return true
	}
	s.enabled = true
	s.startMonitorLocked()
	s.syncReconnectLocked()
	s.log.Info("midi: enabled")
	s.notifyStatusLocked()
	return true
}

// Disable is the single authoritative shutdown path: it stops both
// timers and closes both handles unconditionally and is safe to call
// repeatedly.
func (s *Service) Disable() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopMonitorLocked()
	s.stopReconnectLocked()
	s.closeInputLocked()
	s.closeOutputLocked()
	s.in.clear()
	s.out.clear()
	s.reconnecting = false
	if !s.enabled {
		return
	}
	s.enabled = false
	s.log.Info("midi: disabled")
	s.notifyStatusLocked()
}

// Devices enumerates the current directory. The result is never
// cached: device topology changes with no push notification from the
// binding.
func (s *Service) Devices() DeviceList {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.devicesLocked()
}

func (s *Service) devicesLocked() DeviceList {
	if s.drv == nil {
		s.logUnavailableLocked()
		return DeviceList{}
	}
	return DeviceList{
		Inputs:  s.listLocked(true),
		Outputs: s.listLocked(false),
	}
}

func (s *Service) listLocked(input bool) []string {
	var names []string
	var err error
	if input {
		names, err = s.drv.ListInputs()
	} else {
		names, err = s.drv.ListOutputs()
	}
	if err != nil {
		s.log.Error("midi: device enumeration failed", "input", input, "err", err)
		return nil
	}
	return names
}

// Status reports the current connection state.
func (s *Service) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statusLocked()
}

func (s *Service) statusLocked() Status {
	return Status{
		Enabled:         s.enabled,
		InputConnected:  s.inConn != nil,
		OutputConnected: s.outConn != nil,
		InputName:       s.in.connectedName,
		OutputName:      s.out.connectedName,
		Reconnecting:    s.reconnecting,
	}
}

// ConnectInput connects the input slot by ordinal within a fresh
// enumeration. retryOnFail hands a failure off to the reconnection
// process instead of surfacing it.
func (s *Service) ConnectInput(ordinal int, retryOnFail bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connectInputLocked("", ordinal, retryOnFail)
}

// ConnectInputByName connects the input slot by stable port name. The
// ordinal is re-resolved live before opening.
func (s *Service) ConnectInputByName(name string, retryOnFail bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connectInputLocked(name, -1, retryOnFail)
}

// ConnectOutput connects the output slot by ordinal within a fresh
// enumeration.
func (s *Service) ConnectOutput(ordinal int, retryOnFail bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connectOutputLocked("", ordinal, retryOnFail)
}

// ConnectOutputByName connects the output slot by stable port name.
func (s *Service) ConnectOutputByName(name string, retryOnFail bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connectOutputLocked(name, -1, retryOnFail)
}

// DisconnectInput closes the input handle. preserveIdentity keeps the
// remembered device name so the reconnection process restores it (a
// soft disconnect); false forgets the intent entirely.
func (s *Service) DisconnectInput(preserveIdentity bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeInputLocked()
	if !preserveIdentity {
		s.in.clear()
	}
	s.syncReconnectLocked()
	s.notifyStatusLocked()
}

// DisconnectOutput closes the output handle, keeping or forgetting
// the remembered identity like DisconnectInput.
func (s *Service) DisconnectOutput(preserveIdentity bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeOutputLocked()
	if !preserveIdentity {
		s.out.clear()
	}
	s.syncReconnectLocked()
	s.notifyStatusLocked()
}

// resolvePort picks the port to open: by name when name is non-empty,
// otherwise by ordinal. Returns "" when neither resolves against the
// fresh snapshot.
func resolvePort(names []string, name string, ordinal int) string {
	if name != "" {
		if indexOf(names, name) >= 0 {
			return name
		}
		return ""
	}
	if ordinal >= 0 && ordinal < len(names) {
		return names[ordinal]
	}
	return ""
}

func (s *Service) connectInputLocked(name string, ordinal int, retryOnFail bool) bool {
	if s.drv == nil {
		s.logUnavailableLocked()
		return false
	}
	// Single owner per direction: always disconnect first, even when
	// believed unnecessary, to stay correct under racing calls.
	s.closeInputLocked()

	resolved := resolvePort(s.listLocked(true), name, ordinal)
	if resolved == "" {
		s.log.Warn("midi: input not found", "name", name, "ordinal", ordinal)
		return s.connectFailedLocked(&s.in, name, ordinal, retryOnFail)
	}

	conn, err := s.drv.OpenInput(resolved, s.handleMessage, func(err error) {
		s.handleInputError(resolved, err)
	})
	if err != nil {
		s.log.Error("midi: open input failed", "device", resolved, "err", err)
		return s.connectFailedLocked(&s.in, name, ordinal, retryOnFail)
	}

	s.inConn = conn
	s.in.connectedName = resolved
	// The resolved name becomes the durable identity; a pending
	// ordinal request is now obsolete.
	s.in.desiredName = resolved
	s.in.requestedOrdinal = -1
	s.log.Info("midi: input connected", "device", resolved)
	s.syncReconnectLocked()
	s.notifyStatusLocked()
	return true
}

func (s *Service) connectOutputLocked(name string, ordinal int, retryOnFail bool) bool {
	if s.drv == nil {
		s.logUnavailableLocked()
		return false
	}
	s.closeOutputLocked()

	resolved := resolvePort(s.listLocked(false), name, ordinal)
	if resolved == "" {
		s.log.Warn("midi: output not found", "name", name, "ordinal", ordinal)
		return s.connectFailedLocked(&s.out, name, ordinal, retryOnFail)
	}

	conn, err := s.drv.OpenOutput(resolved)
	if err != nil {
		s.log.Error("midi: open output failed", "device", resolved, "err", err)
		return s.connectFailedLocked(&s.out, name, ordinal, retryOnFail)
	}

	// A re-plugged or power-cycled controller is not guaranteed to
	// reset its own LED state; clear it before reporting ready.
	s.resetLEDsLocked(conn, ledResetFirst, ledResetLast)

	s.outConn = conn
	s.out.connectedName = resolved
	s.out.desiredName = resolved
	s.out.requestedOrdinal = -1
	s.log.Info("midi: output connected", "device", resolved)
	s.syncReconnectLocked()
	s.notifyStatusLocked()
	return true
}

// connectFailedLocked records the unsatisfied request and optionally
// hands off to the reconnection process. Returns false always.
func (s *Service) connectFailedLocked(sl *slot, name string, ordinal int, retryOnFail bool) bool {
	if !retryOnFail {
		return false
	}
	if name != "" {
		sl.desiredName = name
	} else if ordinal >= 0 {
		sl.requestedOrdinal = ordinal
	}
	s.syncReconnectLocked()
	s.notifyStatusLocked()
	return false
}

func (s *Service) closeInputLocked() {
	if s.inConn == nil {
		return
	}
	if err := s.inConn.Close(); err != nil {
		s.log.Warn("midi: close input failed", "device", s.in.connectedName, "err", err)
	}
	s.inConn = nil
	s.in.connectedName = ""
}

func (s *Service) closeOutputLocked() {
	if s.outConn == nil {
		return
	}
	if err := s.outConn.Close(); err != nil {
		s.log.Warn("midi: close output failed", "device", s.out.connectedName, "err", err)
	}
	s.outConn = nil
	s.out.connectedName = ""
}

// handleMessage runs inline on the transport's delivery goroutine.
func (s *Service) handleMessage(msg Message) {
	s.dispatcher.Handle(msg)
}

// handleInputError fires when the input listener dies mid-stream.
// The handle must not be closed from the listener's own goroutine, so
// the soft disconnect is dispatched to a fresh one.
func (s *Service) handleInputError(name string, err error) {
	s.log.Warn("midi: input listener died", "device", name, "err", err)
	go func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.inConn == nil || s.in.connectedName != name {
			return
		}
		s.closeInputLocked()
		s.syncReconnectLocked()
		s.notifyStatusLocked()
	}()
}

func (s *Service) notifyStatusLocked() {
	st := s.statusLocked()
	s.log.Debug("midi: status",
		"enabled", st.Enabled,
		"input", st.InputName,
		"output", st.OutputName,
		"reconnecting", st.Reconnecting,
	)
	if s.statusFn != nil {
		s.statusFn(st)
	}
}

func (s *Service) logUnavailableLocked() {
	// Degraded mode is reported once, not per call.
	if s.unavailableLogged {
		return
	}
	s.unavailableLogged = true
	s.log.Warn("midi: capability unavailable, all operations degrade to no-ops")
}

func indexOf(names []string, name string) int {
	for i, n := range names {
		if n == name {
			return i
		}
	}
	return -1
}
