package midi

import "github.com/pkg/errors"

var (
	// ErrUnavailable means no native transport binding could be loaded.
	// The failed load attempt is remembered for the process lifetime.
	ErrUnavailable = errors.New("midi: transport binding unavailable")

	// ErrDeviceNotFound means the requested port name or ordinal was
	// absent from the directory at connect time.
	ErrDeviceNotFound = errors.New("midi: device not found")
)
