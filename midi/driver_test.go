package midi

import (
	"sync"

	"github.com/pkg/errors"
)

// fakeDriver is an in-memory transport binding with a mutable port
// directory and scripted message delivery.
type fakeDriver struct {
	mu      sync.Mutex
	inputs  []string
	outputs []string

	listErr       error
	openInputErr  error
	openOutputErr error

	openedInputs  []*fakeInput
	openedOutputs []*fakeOutput
}

func newFakeDriver(inputs, outputs []string) *fakeDriver {
	return &fakeDriver{inputs: inputs, outputs: outputs}
}

func (f *fakeDriver) setInputs(names ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inputs = names
}

func (f *fakeDriver) setOutputs(names ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.outputs = names
}

func (f *fakeDriver) ListInputs() ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	return append([]string(nil), f.inputs...), nil
}

func (f *fakeDriver) ListOutputs() ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	return append([]string(nil), f.outputs...), nil
}

func (f *fakeDriver) OpenInput(name string, recv func(Message), onError func(error)) (Input, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.openInputErr != nil {
		return nil, f.openInputErr
	}
	if indexOf(f.inputs, name) < 0 {
		return nil, errors.Wrapf(ErrDeviceNotFound, "input %q", name)
	}
	in := &fakeInput{name: name, recv: recv, onError: onError}
	f.openedInputs = append(f.openedInputs, in)
	return in, nil
}

func (f *fakeDriver) OpenOutput(name string) (Output, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.openOutputErr != nil {
		return nil, f.openOutputErr
	}
	if indexOf(f.outputs, name) < 0 {
		return nil, errors.Wrapf(ErrDeviceNotFound, "output %q", name)
	}
	out := &fakeOutput{name: name}
	f.openedOutputs = append(f.openedOutputs, out)
	return out, nil
}

func (f *fakeDriver) Close() error { return nil }

func (f *fakeDriver) lastInput() *fakeInput {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.openedInputs) == 0 {
		return nil
	}
	return f.openedInputs[len(f.openedInputs)-1]
}

func (f *fakeDriver) lastOutput() *fakeOutput {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.openedOutputs) == 0 {
		return nil
	}
	return f.openedOutputs[len(f.openedOutputs)-1]
}

type fakeInput struct {
	name    string
	recv    func(Message)
	onError func(error)

	mu     sync.Mutex
	closed bool
}

func (i *fakeInput) deliver(m Message) {
	i.recv(m)
}

func (i *fakeInput) Close() error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.closed = true
	return nil
}

func (i *fakeInput) isClosed() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.closed
}

type ledWrite struct {
	note uint8
	on   bool
}

type fakeOutput struct {
	name string

	mu        sync.Mutex
	writes    []ledWrite
	failNotes map[uint8]bool
	closed    bool
}

func (o *fakeOutput) NoteOn(channel, key, velocity uint8) error {
	return o.record(key, true)
}

func (o *fakeOutput) NoteOff(channel, key uint8) error {
	return o.record(key, false)
}

func (o *fakeOutput) record(key uint8, on bool) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.writes = append(o.writes, ledWrite{note: key, on: on})
	if o.failNotes[key] {
		return errors.New("simulated write failure")
	}
	return nil
}

func (o *fakeOutput) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.closed = true
	return nil
}

func (o *fakeOutput) writeCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.writes)
}

func (o *fakeOutput) resetWrites() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.writes = nil
}
