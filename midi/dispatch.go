package midi

import (
	"log/slog"
	"sync"
	"time"
)

// Direction selects which way NavigatePresentation moves.
type Direction int

const (
	Forward Direction = iota
	Backward
)

func (d Direction) String() string {
	if d == Backward {
		return "backward"
	}
	return "forward"
}

// Global action names accepted in the settings binding table.
const (
	ActionNextSlide     = "next_slide"
	ActionPreviousSlide = "previous_slide"
	ActionStartStream   = "start_stream"
	ActionStopStream    = "stop_stream"
)

// clientLocalActions are bindings a headless service recognizes but
// does not execute: they need a UI surface, and the inbound message
// also reaches any interested UI process through the status relay.
var clientLocalActions = map[string]struct{}{
	"open_search":   {},
	"open_settings": {},
}

// Actions are the external collaborators a dispatched shortcut
// delegates to. Calls are fire and forget: collaborators log their own
// failures, and a nil member is a no-op.
type Actions struct {
	NavigatePresentation func(Direction)
	StartExternalStream  func()
	StopExternalStream   func()
	SwitchScene          func(name string)
}

type bindingKind int

const (
	bindAction bindingKind = iota
	bindScene
)

type binding struct {
	kind   bindingKind
	target string // action name or scene name
}

// Dispatcher canonicalizes inbound messages into signatures, maps them
// to configured actions and debounces repeats. The mapping is a derived
// cache: it is rebuilt wholesale from configuration, never patched.
type Dispatcher struct {
	log     *slog.Logger
	actions Actions
	window  time.Duration
	now     func() time.Time

	mu        sync.Mutex
	bindings  map[string]binding
	lastFired map[string]time.Time
}

// DefaultDebounceWindow is the minimum elapsed time between honored
// dispatches of the same signature. Contact bounce and driver
// duplication otherwise fire one physical press twice.
const DefaultDebounceWindow = 200 * time.Millisecond

func NewDispatcher(actions Actions, window time.Duration, log *slog.Logger) *Dispatcher {
	if window <= 0 {
		window = DefaultDebounceWindow
	}
	if log == nil {
		log = slog.Default()
	}
	return &Dispatcher{
		log:       log,
		actions:   actions,
		window:    window,
		now:       time.Now,
		bindings:  map[string]binding{},
		lastFired: map[string]time.Time{},
	}
}

// Rebuild replaces the whole signature map from the two configuration
// sources. Scene bindings are applied last, so on a signature collision
// the scene binding overrides the global one.
func (d *Dispatcher) Rebuild(global map[string][]string, scenes []SceneBinding) {
	m := make(map[string]binding)
	for action, shortcuts := range global {
		for _, raw := range shortcuts {
			sig := normalizeSignature(raw)
			if sig == "" {
				d.log.Warn("midi: skipping malformed shortcut", "action", action, "shortcut", raw)
				continue
			}
			m[sig] = binding{kind: bindAction, target: action}
		}
	}
	for _, scene := range scenes {
		if scene.Name == "" {
			d.log.Warn("midi: skipping scene binding without a name")
			continue
		}
		for _, raw := range scene.Shortcuts {
			sig := normalizeSignature(raw)
			if sig == "" {
				d.log.Warn("midi: skipping malformed shortcut", "scene", scene.Name, "shortcut", raw)
				continue
			}
			m[sig] = binding{kind: bindScene, target: scene.Name}
		}
	}

	d.mu.Lock()
	d.bindings = m
	d.mu.Unlock()
	d.log.Info("midi: shortcut map rebuilt", "bindings", len(m))
}

// Handle runs inline on the transport's delivery goroutine and must
// not block: it does map lookups and fire-and-forget delegate calls.
func (d *Dispatcher) Handle(msg Message) {
	if !msg.IsPress() {
		return
	}
	sig := msg.Signature()
	if sig == "" {
		return
	}

	d.mu.Lock()
	b, ok := d.bindings[sig]
	if !ok {
		d.mu.Unlock()
		return
	}
	now := d.now()
	if last, seen := d.lastFired[sig]; seen && now.Sub(last) < d.window {
		d.mu.Unlock()
		d.log.Debug("midi: shortcut debounced", "signature", sig)
		return
	}
	d.lastFired[sig] = now
	d.mu.Unlock()

	d.invoke(b, sig)
}

func (d *Dispatcher) invoke(b binding, sig string) {
	switch b.kind {
	case bindScene:
		d.log.Info("midi: shortcut dispatched", "signature", sig, "scene", b.target)
		if d.actions.SwitchScene != nil {
			d.actions.SwitchScene(b.target)
		}
	case bindAction:
		if _, local := clientLocalActions[b.target]; local {
			d.log.Debug("midi: client-local action left to the UI process", "signature", sig, "action", b.target)
			return
		}
		d.log.Info("midi: shortcut dispatched", "signature", sig, "action", b.target)
		switch b.target {
		case ActionNextSlide:
			if d.actions.NavigatePresentation != nil {
				d.actions.NavigatePresentation(Forward)
			}
		case ActionPreviousSlide:
			if d.actions.NavigatePresentation != nil {
				d.actions.NavigatePresentation(Backward)
			}
		case ActionStartStream:
			if d.actions.StartExternalStream != nil {
				d.actions.StartExternalStream()
			}
		case ActionStopStream:
			if d.actions.StopExternalStream != nil {
				d.actions.StopExternalStream()
			}
		default:
			d.log.Warn("midi: unknown action in shortcut map", "action", b.target)
		}
	}
}
