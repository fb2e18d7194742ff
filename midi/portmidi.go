package midi

import (
	"log/slog"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rakyll/portmidi"
)

const (
	pmMaxEventsPerPoll = 1024
	pmPollingPeriod    = 10 * time.Millisecond

	pmStatusNoteOff       = 0x80
	pmStatusNoteOn        = 0x90
	pmStatusControlChange = 0xb0
	pmStatusCodeMask      = 0xf0
	pmChannelMask         = 0x0f
)

// portmidiDriver is the raw-native fallback binding, used when the
// rtmidi binding cannot be loaded on the current platform. portmidi
// has no push delivery, so inputs are drained by a polling goroutine.
type portmidiDriver struct {
	log *slog.Logger
}

func newPortmidiDriver(log *slog.Logger) (*portmidiDriver, error) {
	if err := portmidi.Initialize(); err != nil {
		return nil, errors.Wrap(err, "portmidi initialize")
	}
	return &portmidiDriver{log: log}, nil
}

func (d *portmidiDriver) ListInputs() ([]string, error) {
	return d.list(true), nil
}

func (d *portmidiDriver) ListOutputs() ([]string, error) {
	return d.list(false), nil
}

func (d *portmidiDriver) list(input bool) []string {
	var names []string
	for i := 0; i < portmidi.CountDevices(); i++ {
		info := portmidi.Info(portmidi.DeviceID(i))
		if info == nil || excludedPort(info.Name) {
			continue
		}
		if (input && info.IsInputAvailable) || (!input && info.IsOutputAvailable) {
			names = append(names, info.Name)
		}
	}
	return names
}

func (d *portmidiDriver) find(name string, input bool) (portmidi.DeviceID, bool) {
	for i := 0; i < portmidi.CountDevices(); i++ {
		info := portmidi.Info(portmidi.DeviceID(i))
		if info == nil || info.Name != name {
			continue
		}
		if (input && info.IsInputAvailable) || (!input && info.IsOutputAvailable) {
			return portmidi.DeviceID(i), true
		}
	}
	return 0, false
}

func (d *portmidiDriver) OpenInput(name string, recv func(Message), onError func(error)) (Input, error) {
	id, ok := d.find(name, true)
	if !ok {
		return nil, errors.Wrapf(ErrDeviceNotFound, "input %q", name)
	}
	stream, err := portmidi.NewInputStream(id, pmMaxEventsPerPoll)
	if err != nil {
		return nil, errors.Wrapf(err, "open input %q", name)
	}
	in := &portmidiInput{
		stream: stream,
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go in.poll(recv, onError)
	return in, nil
}

func (d *portmidiDriver) OpenOutput(name string) (Output, error) {
	id, ok := d.find(name, false)
	if !ok {
		return nil, errors.Wrapf(ErrDeviceNotFound, "output %q", name)
	}
	stream, err := portmidi.NewOutputStream(id, pmMaxEventsPerPoll, 0)
	if err != nil {
		return nil, errors.Wrapf(err, "open output %q", name)
	}
	return &portmidiOutput{stream: stream}, nil
}

func (d *portmidiDriver) Close() error {
	return portmidi.Terminate()
}

type portmidiInput struct {
	stream *portmidi.Stream

	closeOnce sync.Once
	stop      chan struct{}
	done      chan struct{}
}

func (i *portmidiInput) poll(recv func(Message), onError func(error)) {
	defer close(i.done)
	for {
		select {
		case <-i.stop:
			return
		default:
		}
		time.Sleep(pmPollingPeriod)

		events, err := i.stream.Read(pmMaxEventsPerPoll)
		if err != nil {
			select {
			case <-i.stop: // closing; the read error is expected
			default:
				if onError != nil {
					onError(err)
				}
			}
			return
		}
		for _, evt := range events {
			if m, ok := translateEvent(evt); ok {
				recv(m)
			}
		}
	}
}

func (i *portmidiInput) Close() error {
	var err error
	i.closeOnce.Do(func() {
		close(i.stop)
		<-i.done
		err = i.stream.Close()
	})
	return err
}

type portmidiOutput struct {
	mu     sync.Mutex
	stream *portmidi.Stream
}

func (o *portmidiOutput) NoteOn(channel, key, velocity uint8) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.stream.WriteShort(pmStatusNoteOn|int64(channel&pmChannelMask), int64(key), int64(velocity))
}

func (o *portmidiOutput) NoteOff(channel, key uint8) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.stream.WriteShort(pmStatusNoteOff|int64(channel&pmChannelMask), int64(key), 0)
}

func (o *portmidiOutput) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.stream.Close()
}

func translateEvent(evt portmidi.Event) (Message, bool) {
	if len(evt.SysEx) != 0 {
		return Message{}, false
	}
	status := evt.Status & pmStatusCodeMask
	ch := uint8(evt.Status & pmChannelMask)
	key := uint8(evt.Data1)
	val := uint8(evt.Data2)
	now := time.Now()

	switch status {
	case pmStatusNoteOn:
		if val == 0 {
			return Message{Type: NoteOff, Channel: ch, Key: key, Time: now}, true
		}
		return Message{Type: NoteOn, Channel: ch, Key: key, Value: val, Time: now}, true
	case pmStatusNoteOff:
		return Message{Type: NoteOff, Channel: ch, Key: key, Time: now}, true
	case pmStatusControlChange:
		return Message{Type: ControlChange, Channel: ch, Key: key, Value: val, Time: now}, true
	}
	return Message{}, false
}
