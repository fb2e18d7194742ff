package midi

import (
	"log/slog"
	"sync"
)

// Driver is the uniform surface over a native MIDI binding. Two
// implementations exist: the rtmidi binding (primary) and the raw
// portmidi binding (fallback). The loader picks one per process.
type Driver interface {
	// ListInputs returns the current input port names, freshly
	// queried. Ordinal indices are positions within the returned
	// slice and do not outlive the call.
	ListInputs() ([]string, error)

	// ListOutputs returns the current output port names, freshly
	// queried.
	ListOutputs() ([]string, error)

	// OpenInput opens the named input port. recv is invoked inline
	// from the binding's delivery goroutine for every normalized
	// message and must not block. onError, if non-nil, is invoked
	// when the listener dies (for example when the device is
	// unplugged mid-stream).
	OpenInput(name string, recv func(Message), onError func(error)) (Input, error)

	// OpenOutput opens the named output port for writing.
	OpenOutput(name string) (Output, error)

	Close() error
}

// Input is an open input port handle.
type Input interface {
	Close() error
}

// Output is an open output port handle.
type Output interface {
	NoteOn(channel, key, velocity uint8) error
	NoteOff(channel, key uint8) error
	Close() error
}

var (
	loadOnce sync.Once
	loaded   Driver
)

// loadDriver resolves the native MIDI capability. The attempt is made
// once per process lifetime: a failed attempt is remembered, not
// retried, since repeated cheap probing would only mask a persistent
// environment defect. On total failure it returns nil and the caller
// degrades every operation to a safe no-op.
func loadDriver(log *slog.Logger) Driver {
	loadOnce.Do(func() {
		drv, err := newRtmidiDriver(log)
		if err == nil {
			log.Info("midi: transport binding loaded", "binding", "rtmidi")
			loaded = drv
			return
		}
		log.Warn("midi: primary binding failed, trying fallback", "err", err)

		fb, ferr := newPortmidiDriver(log)
		if ferr != nil {
			log.Error("midi: no transport binding available", "primary_err", err, "fallback_err", ferr)
			return
		}
		log.Info("midi: transport binding loaded", "binding", "portmidi")
		loaded = fb
	})
	return loaded
}
