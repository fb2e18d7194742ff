package midi

import (
	"log/slog"
	"strings"
	"time"

	"github.com/pkg/errors"
	gomidi "gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
	"gitlab.com/gomidi/midi/v2/drivers/rtmididrv"
)

// Ports matching any of these patterns are virtual/system loopbacks,
// never real control surfaces, and are hidden from the directory.
var excludedPortPatterns = []string{"Midi Through", "Through Port", "Dummy"}

// rtmidiDriver is the primary transport binding.
type rtmidiDriver struct {
	log *slog.Logger
	drv *rtmididrv.Driver
}

func newRtmidiDriver(log *slog.Logger) (*rtmidiDriver, error) {
	drv, err := rtmididrv.New()
	if err != nil {
		return nil, errors.Wrap(err, "rtmididrv")
	}
	return &rtmidiDriver{log: log, drv: drv}, nil
}

func (d *rtmidiDriver) ListInputs() ([]string, error) {
	ins, err := d.drv.Ins()
	if err != nil {
		return nil, errors.Wrap(err, "list inputs")
	}
	names := make([]string, 0, len(ins))
	for _, in := range ins {
		if excludedPort(in.String()) {
			continue
		}
		names = append(names, in.String())
	}
	return names, nil
}

func (d *rtmidiDriver) ListOutputs() ([]string, error) {
	outs, err := d.drv.Outs()
	if err != nil {
		return nil, errors.Wrap(err, "list outputs")
	}
	names := make([]string, 0, len(outs))
	for _, out := range outs {
		if excludedPort(out.String()) {
			continue
		}
		names = append(names, out.String())
	}
	return names, nil
}

func (d *rtmidiDriver) OpenInput(name string, recv func(Message), onError func(error)) (Input, error) {
	ins, err := d.drv.Ins()
	if err != nil {
		return nil, errors.Wrap(err, "list inputs")
	}
	var found drivers.In
	for _, in := range ins {
		if in.String() == name {
			found = in
			break
		}
	}
	if found == nil {
		return nil, errors.Wrapf(ErrDeviceNotFound, "input %q", name)
	}
	if err := found.Open(); err != nil {
		return nil, errors.Wrapf(err, "open input %q", name)
	}

	stop, err := gomidi.ListenTo(found, func(msg gomidi.Message, _ int32) {
		if m, ok := translateMessage(msg); ok {
			recv(m)
		}
	}, gomidi.HandleError(func(listenErr error) {
		d.log.Warn("midi: listener error", "device", name, "err", listenErr)
		if onError != nil {
			onError(listenErr)
		}
	}))
	if err != nil {
		_ = found.Close()
		return nil, errors.Wrapf(err, "listen %q", name)
	}
	return &rtmidiInput{port: found, stop: stop}, nil
}

func (d *rtmidiDriver) OpenOutput(name string) (Output, error) {
	outs, err := d.drv.Outs()
	if err != nil {
		return nil, errors.Wrap(err, "list outputs")
	}
	var found drivers.Out
	for _, out := range outs {
		if out.String() == name {
			found = out
			break
		}
	}
	if found == nil {
		return nil, errors.Wrapf(ErrDeviceNotFound, "output %q", name)
	}
	if err := found.Open(); err != nil {
		return nil, errors.Wrapf(err, "open output %q", name)
	}
	send, err := gomidi.SendTo(found)
	if err != nil {
		_ = found.Close()
		return nil, errors.Wrapf(err, "sender %q", name)
	}
	return &rtmidiOutput{port: found, send: send}, nil
}

func (d *rtmidiDriver) Close() error {
	return d.drv.Close()
}

type rtmidiInput struct {
	port drivers.In
	stop func()
}

func (i *rtmidiInput) Close() error {
	if i.stop != nil {
		i.stop()
		i.stop = nil
	}
	return i.port.Close()
}

type rtmidiOutput struct {
	port drivers.Out
	send func(gomidi.Message) error
}

func (o *rtmidiOutput) NoteOn(channel, key, velocity uint8) error {
	return o.send(gomidi.NoteOn(channel, key, velocity))
}

func (o *rtmidiOutput) NoteOff(channel, key uint8) error {
	return o.send(gomidi.NoteOff(channel, key))
}

func (o *rtmidiOutput) Close() error {
	return o.port.Close()
}

// translateMessage normalizes a wire message into the tagged union the
// rest of the subsystem consumes. Anything outside the three channel
// message kinds is dropped here.
func translateMessage(msg gomidi.Message) (Message, bool) {
	var ch, key, vel uint8
	switch {
	case msg.GetNoteStart(&ch, &key, &vel):
		return Message{Type: NoteOn, Channel: ch, Key: key, Value: vel, Time: time.Now()}, true
	case msg.GetNoteEnd(&ch, &key):
		return Message{Type: NoteOff, Channel: ch, Key: key, Time: time.Now()}, true
	case msg.GetControlChange(&ch, &key, &vel):
		return Message{Type: ControlChange, Channel: ch, Key: key, Value: vel, Time: time.Now()}, true
	}
	return Message{}, false
}

func excludedPort(name string) bool {
	for _, pat := range excludedPortPatterns {
		if strings.Contains(strings.ToLower(name), strings.ToLower(pat)) {
			return true
		}
	}
	return false
}
